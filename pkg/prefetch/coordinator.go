package prefetch

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/Sternrassler/bookshelf-prefetch/pkg/book"
	"github.com/Sternrassler/bookshelf-prefetch/pkg/logging"
	"github.com/Sternrassler/bookshelf-prefetch/pkg/pagination"
	"github.com/rs/zerolog"
)

// Source is one external catalog provider.
type Source interface {
	// Fetch returns up to pageSize raw records of category starting at offset.
	// An exhausted range is an empty slice with a nil error.
	Fetch(ctx context.Context, category string, offset, pageSize int) ([]book.RawRecord, error)
}

// SourceFunc adapts a function to Source.
type SourceFunc func(ctx context.Context, category string, offset, pageSize int) ([]book.RawRecord, error)

// Fetch calls f.
func (f SourceFunc) Fetch(ctx context.Context, category string, offset, pageSize int) ([]book.RawRecord, error) {
	return f(ctx, category, offset, pageSize)
}

// NormalizeFunc maps a page of raw records to records.
type NormalizeFunc func([]book.RawRecord) []book.Record

// WarmResult is the per-category outcome of WarmAll.
type WarmResult struct {
	// Succeeded lists categories whose buffer was replaced, sorted.
	Succeeded []string

	// Empty lists categories whose provider returned no records, sorted.
	// Their cursor and buffer are unchanged.
	Empty []string

	// Failed maps each failed category to its *RefillError.
	Failed map[string]error
}

// Partial reports whether at least one category failed.
func (r *WarmResult) Partial() bool {
	return len(r.Failed) > 0
}

// FailureReasons returns the failure messages keyed by category.
func (r *WarmResult) FailureReasons() map[string]string {
	out := make(map[string]string, len(r.Failed))
	for c, err := range r.Failed {
		out[c] = err.Error()
	}
	return out
}

// Coordinator runs refills against a Source and commits them into a Store.
type Coordinator struct {
	store     *Store
	source    Source
	fetcher   *pagination.BatchFetcher
	normalize NormalizeFunc
	logger    zerolog.Logger
}

// NewCoordinator creates a coordinator. A nil normalize uses book.NormalizeAll.
func NewCoordinator(store *Store, source Source, fetcher *pagination.BatchFetcher, normalize NormalizeFunc) *Coordinator {
	if normalize == nil {
		normalize = book.NormalizeAll
	}
	return &Coordinator{
		store:     store,
		source:    source,
		fetcher:   fetcher,
		normalize: normalize,
		logger:    logging.NewLogger("prefetch"),
	}
}

// WarmAll refills every known category concurrently, replacing buffers that
// receive records. It waits for every category and never rolls back the ones
// that succeeded. The error is non-nil only for an invalid pageSize.
func (c *Coordinator) WarmAll(ctx context.Context, pageSize int) (*WarmResult, error) {
	if err := validatePageSize(pageSize); err != nil {
		return nil, err
	}

	start := time.Now()
	categories := c.store.Categories()
	outcomes := c.fetcher.FetchAll(ctx, categories, func(ctx context.Context, category string) (int, error) {
		return c.refill(ctx, category, pageSize, true)
	})
	RefillDuration.WithLabelValues("warm").Observe(time.Since(start).Seconds())

	result := &WarmResult{
		Succeeded: []string{},
		Empty:     []string{},
		Failed:    make(map[string]error),
	}
	for _, o := range outcomes {
		switch {
		case o.Err != nil:
			result.Failed[o.Key] = c.asRefillError(o.Key, o.Err)
		case o.Records == 0:
			result.Empty = append(result.Empty, o.Key)
		default:
			result.Succeeded = append(result.Succeeded, o.Key)
		}
	}
	sort.Strings(result.Succeeded)
	sort.Strings(result.Empty)

	event := c.logger.Info()
	if result.Partial() {
		event = c.logger.Warn()
	}
	event.
		Int("page_size", pageSize).
		Int("succeeded", len(result.Succeeded)).
		Int("empty", len(result.Empty)).
		Int("failed", len(result.Failed)).
		Dur("duration", time.Since(start)).
		Msg("Warm complete")

	return result, nil
}

// ExtendOne refills one category, appending to its buffer (creating it if it
// was drained). Returns the number of records appended.
func (c *Coordinator) ExtendOne(ctx context.Context, category string, pageSize int) (int, error) {
	if err := validatePageSize(pageSize); err != nil {
		return 0, err
	}
	category = NormalizeCategory(category)
	if !c.store.Known(category) {
		return 0, fmt.Errorf("%w: %s", ErrCategoryNotFound, category)
	}

	start := time.Now()
	outcomes := c.fetcher.FetchAll(ctx, []string{category}, func(ctx context.Context, category string) (int, error) {
		return c.refill(ctx, category, pageSize, false)
	})
	RefillDuration.WithLabelValues("extend").Observe(time.Since(start).Seconds())

	o := outcomes[0]
	if o.Err != nil {
		return 0, c.asRefillError(category, o.Err)
	}
	return o.Records, nil
}

// refill runs one category end to end under its refill semaphore: read the
// cursor, fetch, then commit records and cursor in one step.
func (c *Coordinator) refill(ctx context.Context, category string, pageSize int, replace bool) (int, error) {
	release, err := c.store.acquireRefill(ctx, category)
	if err != nil {
		RefillsTotal.WithLabelValues(category, outcomeFailure).Inc()
		return 0, err
	}
	defer release()

	logger := logging.ForCategory(c.logger, category)
	cursor, err := c.store.Cursor(category)
	if err != nil {
		return 0, err
	}

	raw, err := c.source.Fetch(ctx, category, cursor.Offset, pageSize)
	if err != nil {
		RefillsTotal.WithLabelValues(category, outcomeFailure).Inc()
		logger.Warn().
			Err(err).
			Int("offset", cursor.Offset).
			Int("page_size", pageSize).
			Msg("Refill failed")
		return 0, &RefillError{Category: category, Offset: cursor.Offset, Err: err}
	}

	if len(raw) == 0 {
		RefillsTotal.WithLabelValues(category, outcomeEmpty).Inc()
		logger.Info().
			Int("offset", cursor.Offset).
			Int("page_size", pageSize).
			Msg("Provider returned no records, cursor held")
		return 0, nil
	}

	records := c.normalize(raw)
	if err := c.store.commit(category, records, pageSize, pageSize, replace); err != nil {
		return 0, err
	}
	RefillsTotal.WithLabelValues(category, outcomeSuccess).Inc()

	logger.Debug().
		Int("offset", cursor.Offset).
		Int("next_offset", cursor.Offset+pageSize).
		Int("records", len(records)).
		Bool("replace", replace).
		Msg("Refill applied")

	return len(records), nil
}

// asRefillError makes sure every failure reported to callers matches
// ErrProviderUnavailable, including timeouts raised outside the Source.
func (c *Coordinator) asRefillError(category string, err error) error {
	if re, ok := err.(*RefillError); ok {
		return re
	}
	var re *RefillError
	if errors.As(err, &re) {
		cause := re.Err
		if errors.Is(err, pagination.ErrTaskTimeout) {
			cause = fmt.Errorf("%w: %w", pagination.ErrTaskTimeout, re.Err)
		}
		return &RefillError{Category: re.Category, Offset: re.Offset, Err: cause}
	}
	offset := 0
	if cursor, cerr := c.store.Cursor(category); cerr == nil {
		offset = cursor.Offset
	}
	return &RefillError{Category: category, Offset: offset, Err: err}
}
