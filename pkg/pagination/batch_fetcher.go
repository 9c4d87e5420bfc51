package pagination

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

// ErrTaskTimeout marks a task that ran past its per-task deadline.
var ErrTaskTimeout = errors.New("task timed out")

// Config holds batch fetcher configuration
type Config struct {
	// MaxConcurrency is the maximum number of tasks in flight.
	MaxConcurrency int

	// Timeout bounds each task individually.
	Timeout time.Duration
}

// DefaultConfig returns the default batch configuration: one slot per
// default genre and the catalog client's request timeout.
func DefaultConfig() Config {
	return Config{
		MaxConcurrency: 8,
		Timeout:        15 * time.Second,
	}
}

// TaskFunc fetches one key and reports how many records it produced.
type TaskFunc func(ctx context.Context, key string) (int, error)

// Outcome is the result of one task.
type Outcome struct {
	Key      string
	Records  int
	Err      error
	Duration time.Duration
}

// BatchFetcher runs one task per key in parallel.
type BatchFetcher struct {
	config Config
}

// NewBatchFetcher creates a new batch fetcher
func NewBatchFetcher(config Config) *BatchFetcher {
	if config.MaxConcurrency <= 0 {
		config.MaxConcurrency = 8
	}
	if config.Timeout <= 0 {
		config.Timeout = 15 * time.Second
	}

	return &BatchFetcher{
		config: config,
	}
}

// Config returns the effective configuration.
func (bf *BatchFetcher) Config() Config {
	return bf.config
}

// FetchAll runs fn for every key and waits for all of them. A failing or
// timed-out task is reported in its Outcome and never cancels the others.
// Outcomes are returned in key order.
func (bf *BatchFetcher) FetchAll(ctx context.Context, keys []string, fn TaskFunc) []Outcome {
	start := time.Now()
	outcomes := make([]Outcome, len(keys))

	if len(keys) == 0 {
		return outcomes
	}

	log.Debug().
		Int("tasks", len(keys)).
		Int("max_concurrency", bf.config.MaxConcurrency).
		Dur("timeout", bf.config.Timeout).
		Msg("Starting parallel fetch")

	// Plain Group, not WithContext: tasks must not cancel each other.
	var g errgroup.Group
	g.SetLimit(bf.config.MaxConcurrency)

	for i, key := range keys {
		g.Go(func() error {
			outcomes[i] = bf.run(ctx, key, fn)
			return nil
		})
	}
	_ = g.Wait()

	failed := 0
	for _, o := range outcomes {
		if o.Err != nil {
			failed++
		}
	}

	log.Debug().
		Int("tasks", len(keys)).
		Int("failed", failed).
		Dur("duration", time.Since(start)).
		Msg("Parallel fetch complete")

	return outcomes
}

// run executes a single task under its own deadline.
func (bf *BatchFetcher) run(ctx context.Context, key string, fn TaskFunc) Outcome {
	started := time.Now()
	outcome := Outcome{Key: key}

	if err := ctx.Err(); err != nil {
		outcome.Err = err
		return outcome
	}

	taskCtx, cancel := context.WithTimeout(ctx, bf.config.Timeout)
	defer cancel()

	n, err := fn(taskCtx, key)
	outcome.Duration = time.Since(started)
	if err != nil {
		if errors.Is(taskCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
			err = fmt.Errorf("%w after %s: %w", ErrTaskTimeout, bf.config.Timeout, err)
		}
		outcome.Err = err
		return outcome
	}

	outcome.Records = n
	return outcome
}
