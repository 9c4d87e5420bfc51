package prefetch

import (
	"context"
	"errors"
	"fmt"

	"github.com/Sternrassler/bookshelf-prefetch/pkg/book"
	"github.com/Sternrassler/bookshelf-prefetch/pkg/logging"
	"github.com/Sternrassler/bookshelf-prefetch/pkg/pagination"
	"github.com/rs/zerolog"
)

// DefaultCategories is the genre set served when none is configured.
var DefaultCategories = []string{
	"romance", "fiction", "thriller", "action",
	"mystery", "history", "horror", "fantasy",
}

// Config holds service configuration.
type Config struct {
	// Categories is the initial known category set.
	Categories []string

	// DefaultPageSize is used when a caller passes no page size.
	DefaultPageSize int

	// InitialOffset is the first cursor offset of every category.
	InitialOffset int

	// Fetch bounds refill fan-out and per-category timeouts.
	Fetch pagination.Config

	// Normalize maps provider pages to records (default: book.NormalizeAll).
	Normalize NormalizeFunc
}

// DefaultConfig returns a default service configuration.
func DefaultConfig() Config {
	categories := make([]string, len(DefaultCategories))
	copy(categories, DefaultCategories)
	return Config{
		Categories:      categories,
		DefaultPageSize: 9,
		InitialOffset:   0,
		Fetch:           pagination.DefaultConfig(),
	}
}

// Service is the public face of the prefetch cache. It owns its Store; there
// is no package-level cache state.
type Service struct {
	store       *Store
	coordinator *Coordinator
	pageSize    int
	logger      zerolog.Logger
}

// NewService creates a service over source.
func NewService(source Source, cfg Config) (*Service, error) {
	if source == nil {
		return nil, errors.New("source is required")
	}
	if len(cfg.Categories) == 0 {
		return nil, errors.New("at least one category is required")
	}
	if err := validatePageSize(cfg.DefaultPageSize); err != nil {
		return nil, fmt.Errorf("default page size: %w", err)
	}
	if cfg.InitialOffset < 0 {
		return nil, fmt.Errorf("initial offset must be non-negative, got %d", cfg.InitialOffset)
	}

	store := NewStore(cfg.InitialOffset, cfg.Categories...)
	if len(store.Categories()) == 0 {
		return nil, errors.New("no valid category names")
	}

	return &Service{
		store:       store,
		coordinator: NewCoordinator(store, source, pagination.NewBatchFetcher(cfg.Fetch), cfg.Normalize),
		pageSize:    cfg.DefaultPageSize,
		logger:      logging.NewLogger("prefetch"),
	}, nil
}

// DefaultPageSize returns the configured default page size.
func (s *Service) DefaultPageSize() int {
	return s.pageSize
}

// Warm fetches an initial window for every known category.
func (s *Service) Warm(ctx context.Context, pageSize int) (*WarmResult, error) {
	return s.coordinator.WarmAll(ctx, pageSize)
}

// Consume takes up to n records from the tail of category's buffer. A drained
// category is removed, so the next Consume reports ErrCategoryNotCached.
// Consume never fetches.
func (s *Service) Consume(category string, n int) ([]book.Record, error) {
	if err := validatePageSize(n); err != nil {
		return nil, err
	}
	category = NormalizeCategory(category)

	records, err := s.store.Take(category, n)
	if err != nil {
		ConsumeMisses.Inc()
		s.logger.Debug().Str("category", category).Msg("Consume miss")
		return nil, err
	}

	ConsumedRecords.WithLabelValues(category).Add(float64(len(records)))
	s.logger.Debug().
		Str("category", category).
		Int("requested", n).
		Int("records", len(records)).
		Msg("Consumed records")
	return records, nil
}

// Extend appends the next window of category and returns the appended count.
func (s *Service) Extend(ctx context.Context, category string, pageSize int) (int, error) {
	return s.coordinator.ExtendOne(ctx, category, pageSize)
}

// AddCategory registers a new category. Returns false if it was already known
// or the name is empty.
func (s *Service) AddCategory(category string) bool {
	added := s.store.Register(category)
	if added {
		s.logger.Info().Str("category", NormalizeCategory(category)).Msg("Category registered")
	}
	return added
}

// Categories returns the known categories, sorted.
func (s *Service) Categories() []string {
	return s.store.Categories()
}

// View returns a copy of category's buffered records without consuming them.
func (s *Service) View(category string) ([]book.Record, error) {
	view, ok := s.store.Get(category)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrCategoryNotCached, NormalizeCategory(category))
	}
	return view.Records, nil
}

// Snapshot returns a copy of every cached category.
func (s *Service) Snapshot() map[string][]book.Record {
	return s.store.Snapshot()
}

// Stats summarizes every known category.
func (s *Service) Stats() []CategoryStats {
	return s.store.Stats()
}
