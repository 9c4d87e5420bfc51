// Package config loads the bookshelf proxy configuration from the environment.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/Sternrassler/bookshelf-prefetch/pkg/client"
	"github.com/Sternrassler/bookshelf-prefetch/pkg/logging"
	"github.com/Sternrassler/bookshelf-prefetch/pkg/prefetch"
	"github.com/spf13/viper"
)

// DefaultUserAgent identifies the proxy to the Books API when USER_AGENT is unset.
const DefaultUserAgent = "BookshelfPrefetch/1.0.0 (+https://github.com/Sternrassler/bookshelf-prefetch)"

// reservedCategories collide with fixed route segments under /api/books/cache/.
var reservedCategories = map[string]bool{
	"full": true,
}

// ReservedCategory reports whether name cannot be used as a category.
func ReservedCategory(name string) bool {
	return reservedCategories[prefetch.NormalizeCategory(name)]
}

type (
	Config struct {
		HTTP
		Log
		Books
		Prefetch
		Redis
	}

	HTTP struct {
		Port            int
		ShutdownTimeout time.Duration
	}
	Log struct {
		Level  string
		Pretty bool
	}
	Books struct {
		BaseURL    string
		APIKey     string
		UserAgent  string
		MaxRetries int
	}
	Prefetch struct {
		Categories      []string
		DefaultPageSize int
		InitialOffset   int
		FetchTimeout    time.Duration
		MaxConcurrency  int
		WarmOnStart     bool
	}
	Redis struct {
		URL string // empty disables the response cache
	}
)

// Load reads the configuration from environment variables, falling back to defaults.
func Load() *Config {
	v := viper.New()
	v.AutomaticEnv()
	v.SetDefault("port", 8080)
	v.SetDefault("shutdown_timeout", "10s")
	v.SetDefault("log_level", "info")
	v.SetDefault("log_pretty", false)
	v.SetDefault("books_api_base_url", client.DefaultBaseURL)
	v.SetDefault("books_api_key", "")
	v.SetDefault("user_agent", DefaultUserAgent)
	v.SetDefault("books_api_max_retries", 2)
	v.SetDefault("categories", strings.Join(prefetch.DefaultCategories, ","))
	v.SetDefault("default_page_size", 9)
	v.SetDefault("initial_offset", 0)
	v.SetDefault("fetch_timeout", "15s")
	v.SetDefault("max_concurrency", 8)
	v.SetDefault("warm_on_start", false)
	v.SetDefault("redis_url", "")

	return &Config{
		HTTP: HTTP{
			Port:            v.GetInt("PORT"),
			ShutdownTimeout: v.GetDuration("SHUTDOWN_TIMEOUT"),
		},
		Log: Log{
			Level:  v.GetString("LOG_LEVEL"),
			Pretty: v.GetBool("LOG_PRETTY"),
		},
		Books: Books{
			BaseURL:    v.GetString("BOOKS_API_BASE_URL"),
			APIKey:     v.GetString("BOOKS_API_KEY"),
			UserAgent:  v.GetString("USER_AGENT"),
			MaxRetries: v.GetInt("BOOKS_API_MAX_RETRIES"),
		},
		Prefetch: Prefetch{
			Categories:      splitList(v.GetString("CATEGORIES")),
			DefaultPageSize: v.GetInt("DEFAULT_PAGE_SIZE"),
			InitialOffset:   v.GetInt("INITIAL_OFFSET"),
			FetchTimeout:    v.GetDuration("FETCH_TIMEOUT"),
			MaxConcurrency:  v.GetInt("MAX_CONCURRENCY"),
			WarmOnStart:     v.GetBool("WARM_ON_START"),
		},
		Redis: Redis{
			URL: v.GetString("REDIS_URL"),
		},
	}
}

// Validate reports every invalid setting at once.
func (c *Config) Validate() error {
	var errs []error

	if c.Port <= 0 || c.Port > 65535 {
		errs = append(errs, fmt.Errorf("PORT must be between 1 and 65535, got %d", c.Port))
	}
	if c.ShutdownTimeout <= 0 {
		errs = append(errs, errors.New("SHUTDOWN_TIMEOUT must be positive"))
	}
	if !logging.ValidLevel(c.Level) {
		errs = append(errs, fmt.Errorf("LOG_LEVEL %q is not one of debug, info, warn, error", c.Level))
	}
	if u, err := url.Parse(c.BaseURL); err != nil || !u.IsAbs() {
		errs = append(errs, fmt.Errorf("BOOKS_API_BASE_URL %q must be an absolute URL", c.BaseURL))
	}
	if c.UserAgent == "" {
		errs = append(errs, errors.New("USER_AGENT is required"))
	}
	if c.MaxRetries < 0 {
		errs = append(errs, errors.New("BOOKS_API_MAX_RETRIES cannot be negative"))
	}
	if len(c.Categories) == 0 {
		errs = append(errs, errors.New("CATEGORIES must name at least one category"))
	}
	for _, category := range c.Categories {
		if ReservedCategory(category) {
			errs = append(errs, fmt.Errorf("CATEGORIES cannot include reserved name %q", category))
		}
	}
	if c.DefaultPageSize <= 0 {
		errs = append(errs, errors.New("DEFAULT_PAGE_SIZE must be positive"))
	}
	if c.InitialOffset < 0 {
		errs = append(errs, errors.New("INITIAL_OFFSET cannot be negative"))
	}
	if c.FetchTimeout <= 0 {
		errs = append(errs, errors.New("FETCH_TIMEOUT must be positive"))
	}
	if c.MaxConcurrency < 1 {
		errs = append(errs, errors.New("MAX_CONCURRENCY must be at least 1"))
	}

	return errors.Join(errs...)
}

// Addr returns the listen address for the HTTP server.
func (c *Config) Addr() string {
	return fmt.Sprintf(":%d", c.Port)
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
