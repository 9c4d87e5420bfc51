package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Sternrassler/bookshelf-prefetch/internal/config"
	"github.com/Sternrassler/bookshelf-prefetch/pkg/cache"
	"github.com/Sternrassler/bookshelf-prefetch/pkg/client"
	"github.com/Sternrassler/bookshelf-prefetch/pkg/logging"
	"github.com/Sternrassler/bookshelf-prefetch/pkg/pagination"
	"github.com/Sternrassler/bookshelf-prefetch/pkg/prefetch"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

func main() {
	// .env is optional
	_ = godotenv.Load()

	cfg := config.Load()
	logging.Setup(logging.ConfigFor(cfg.Level, cfg.Pretty))
	logger := logging.NewLogger("bookshelf-proxy")

	if err := cfg.Validate(); err != nil {
		logger.Fatal().Err(err).Msg("Invalid configuration")
	}

	if err := run(cfg, logger); err != nil {
		logger.Fatal().Err(err).Msg("Server failed")
	}
}

func run(cfg *config.Config, logger zerolog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	redisClient, err := connectRedis(ctx, cfg.Redis.URL)
	if err != nil {
		return err
	}
	if redisClient != nil {
		defer redisClient.Close()
		logger.Info().Msg("Connected to Redis, response cache enabled")
	}

	svc, err := newService(cfg, redisClient)
	if err != nil {
		return err
	}

	if cfg.WarmOnStart {
		warmCtx, cancel := context.WithTimeout(ctx, warmDeadline(cfg))
		result, err := svc.Warm(warmCtx, cfg.DefaultPageSize)
		cancel()
		if err != nil {
			logger.Error().Err(err).Msg("Warm on start failed")
		} else if result.Partial() {
			logger.Warn().Interface("failed", result.FailureReasons()).Msg("Warm on start incomplete")
		}
	}

	srv := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           newRouter(svc, redisClient),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info().
			Str("addr", srv.Addr).
			Strs("categories", svc.Categories()).
			Int("page_size", svc.DefaultPageSize()).
			Msg("Starting bookshelf proxy")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info().Msg("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

// warmDeadline bounds a full warm: categories run MaxConcurrency at a time,
// and each group may use its whole FetchTimeout.
func warmDeadline(cfg *config.Config) time.Duration {
	concurrency := cfg.MaxConcurrency
	if concurrency < 1 {
		concurrency = 1
	}
	waves := (len(cfg.Categories) + concurrency - 1) / concurrency
	if waves < 1 {
		waves = 1
	}
	return time.Duration(waves)*cfg.FetchTimeout + time.Second
}

// connectRedis returns nil when no URL is configured.
func connectRedis(ctx context.Context, rawURL string) (*redis.Client, error) {
	if rawURL == "" {
		return nil, nil
	}
	opts, err := redis.ParseURL(rawURL)
	if err != nil {
		return nil, err
	}
	redisClient := redis.NewClient(opts)
	if err := redisClient.Ping(ctx).Err(); err != nil {
		redisClient.Close()
		return nil, err
	}
	return redisClient, nil
}

func newService(cfg *config.Config, redisClient *redis.Client) (*prefetch.Service, error) {
	clientCfg := client.DefaultConfig(cfg.UserAgent)
	clientCfg.BaseURL = cfg.BaseURL
	clientCfg.APIKey = cfg.APIKey
	clientCfg.MaxRetries = cfg.MaxRetries
	if redisClient != nil {
		manager, err := cache.NewManager(redisClient)
		if err != nil {
			return nil, err
		}
		clientCfg.Cache = manager
	}

	books, err := client.New(clientCfg)
	if err != nil {
		return nil, err
	}

	svcCfg := prefetch.DefaultConfig()
	svcCfg.Categories = cfg.Categories
	svcCfg.DefaultPageSize = cfg.DefaultPageSize
	svcCfg.InitialOffset = cfg.InitialOffset
	svcCfg.Fetch = pagination.Config{
		MaxConcurrency: cfg.MaxConcurrency,
		Timeout:        cfg.FetchTimeout,
	}
	return prefetch.NewService(books, svcCfg)
}
