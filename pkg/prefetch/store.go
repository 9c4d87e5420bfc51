package prefetch

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/Sternrassler/bookshelf-prefetch/pkg/book"
	"github.com/Sternrassler/bookshelf-prefetch/pkg/pagination"
)

// slot holds one known category. buf is nil while the category is not cached;
// its cursor is then parked so offsets keep increasing across removals.
type slot struct {
	// refill is a one-slot semaphore serializing refills of this category
	// end to end, from cursor read to commit.
	refill chan struct{}

	mu     sync.Mutex
	buf    *Buffer
	parked pagination.Cursor
}

func (s *slot) cursor() pagination.Cursor {
	if s.buf != nil {
		return s.buf.Cursor()
	}
	return s.parked
}

// remove drops the buffer and parks its cursor.
func (s *slot) remove() {
	if s.buf == nil {
		return
	}
	s.parked = s.buf.Cursor()
	s.buf = nil
}

// BufferView is a read-only copy of a cached category.
type BufferView struct {
	Category string
	Records  []book.Record
	Cursor   pagination.Cursor
}

// CategoryStats summarizes one known category.
type CategoryStats struct {
	Category string            `json:"category"`
	Cached   bool              `json:"cached"`
	Buffered int               `json:"buffered"`
	Cursor   pagination.Cursor `json:"cursor"`
}

// Store maps categories to their buffers.
//
// Lock order is slot.mu before Store.mu; Store.mu only guards the slot map,
// which grows on Register and never shrinks.
type Store struct {
	mu            sync.RWMutex
	slots         map[string]*slot
	initialOffset int
}

// NewStore creates an empty store with the given categories registered at
// initialOffset.
func NewStore(initialOffset int, categories ...string) *Store {
	s := &Store{
		slots:         make(map[string]*slot),
		initialOffset: initialOffset,
	}
	for _, c := range categories {
		s.Register(c)
	}
	return s
}

// NormalizeCategory canonicalizes a category key.
func NormalizeCategory(category string) string {
	return strings.ToLower(strings.TrimSpace(category))
}

// Register adds a category to the known set. Returns false if the key is empty
// or already known.
func (s *Store) Register(category string) bool {
	category = NormalizeCategory(category)
	if category == "" {
		return false
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.slots[category]; ok {
		return false
	}
	s.slots[category] = &slot{
		refill: make(chan struct{}, 1),
		parked: pagination.NewCursor(s.initialOffset),
	}
	return true
}

// Known reports whether the category is registered.
func (s *Store) Known(category string) bool {
	return s.slot(category) != nil
}

// Categories returns the known categories, sorted.
func (s *Store) Categories() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]string, 0, len(s.slots))
	for c := range s.slots {
		out = append(out, c)
	}
	sort.Strings(out)
	return out
}

// Get returns a copy of the category's buffer, or false when it is not cached.
func (s *Store) Get(category string) (BufferView, bool) {
	category = NormalizeCategory(category)
	sl := s.slot(category)
	if sl == nil {
		return BufferView{}, false
	}

	sl.mu.Lock()
	defer sl.mu.Unlock()

	if sl.buf == nil {
		return BufferView{}, false
	}
	return BufferView{
		Category: category,
		Records:  sl.buf.Records(),
		Cursor:   sl.buf.Cursor(),
	}, true
}

// Cursor returns the category's cursor whether or not it is cached.
func (s *Store) Cursor(category string) (pagination.Cursor, error) {
	category = NormalizeCategory(category)
	sl := s.slot(category)
	if sl == nil {
		return pagination.Cursor{}, fmt.Errorf("%w: %s", ErrCategoryNotFound, category)
	}

	sl.mu.Lock()
	defer sl.mu.Unlock()
	return sl.cursor(), nil
}

// Put replaces the category's buffer with records, keeping its cursor.
// An empty records slice removes the buffer and parks its cursor, so the
// category reads as not cached.
func (s *Store) Put(category string, records []book.Record) error {
	if len(records) > 0 {
		return s.commit(category, records, 0, 0, true)
	}

	category = NormalizeCategory(category)
	sl := s.slot(category)
	if sl == nil {
		return fmt.Errorf("%w: %s", ErrCategoryNotFound, category)
	}

	sl.mu.Lock()
	defer sl.mu.Unlock()

	sl.remove()
	bufferedRecords.WithLabelValues(category).Set(0)
	return nil
}

// AppendTo appends records to the category's buffer, creating it if absent.
// An empty records slice leaves the store unchanged.
func (s *Store) AppendTo(category string, records []book.Record) error {
	return s.commit(category, records, 0, 0, false)
}

// commit applies a refill atomically: records and cursor move together under
// the category lock, so consumers never see one without the other.
func (s *Store) commit(category string, records []book.Record, delta, pageSize int, replace bool) error {
	category = NormalizeCategory(category)
	sl := s.slot(category)
	if sl == nil {
		return fmt.Errorf("%w: %s", ErrCategoryNotFound, category)
	}
	if len(records) == 0 {
		return nil
	}

	sl.mu.Lock()
	defer sl.mu.Unlock()

	if sl.buf == nil || replace {
		sl.buf = NewBuffer(category, sl.cursor())
	}
	sl.buf.Append(records)
	sl.buf.AdvanceCursor(delta, pageSize)

	bufferedRecords.WithLabelValues(category).Set(float64(sl.buf.Len()))
	return nil
}

// Take removes up to n records from the tail of the category's buffer and
// drops the buffer once it is empty.
func (s *Store) Take(category string, n int) ([]book.Record, error) {
	category = NormalizeCategory(category)
	sl := s.slot(category)
	if sl == nil {
		return nil, fmt.Errorf("%w: %s", ErrCategoryNotCached, category)
	}

	sl.mu.Lock()
	defer sl.mu.Unlock()

	if sl.buf == nil {
		return nil, fmt.Errorf("%w: %s", ErrCategoryNotCached, category)
	}

	out := sl.buf.Take(n)
	if sl.buf.Len() == 0 {
		sl.remove()
	}
	bufferedRecords.WithLabelValues(category).Set(float64(s.lenLocked(sl)))
	return out, nil
}

// RemoveIfEmpty drops the category's buffer if it holds no records.
// Returns true if a buffer was removed.
func (s *Store) RemoveIfEmpty(category string) bool {
	sl := s.slot(NormalizeCategory(category))
	if sl == nil {
		return false
	}

	sl.mu.Lock()
	defer sl.mu.Unlock()

	if sl.buf == nil || sl.buf.Len() > 0 {
		return false
	}
	sl.remove()
	return true
}

// Snapshot copies every cached category.
func (s *Store) Snapshot() map[string][]book.Record {
	out := make(map[string][]book.Record)
	for _, c := range s.Categories() {
		if view, ok := s.Get(c); ok {
			out[c] = view.Records
		}
	}
	return out
}

// Stats summarizes every known category, sorted by name.
func (s *Store) Stats() []CategoryStats {
	categories := s.Categories()
	out := make([]CategoryStats, 0, len(categories))
	for _, c := range categories {
		sl := s.slot(c)
		sl.mu.Lock()
		out = append(out, CategoryStats{
			Category: c,
			Cached:   sl.buf != nil,
			Buffered: s.lenLocked(sl),
			Cursor:   sl.cursor(),
		})
		sl.mu.Unlock()
	}
	return out
}

// acquireRefill takes the category's refill semaphore, waiting at most until
// ctx is done. The returned func releases it.
func (s *Store) acquireRefill(ctx context.Context, category string) (func(), error) {
	sl := s.slot(category)
	if sl == nil {
		return nil, fmt.Errorf("%w: %s", ErrCategoryNotFound, category)
	}

	select {
	case sl.refill <- struct{}{}:
		return func() { <-sl.refill }, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (s *Store) slot(category string) *slot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.slots[category]
}

func (s *Store) lenLocked(sl *slot) int {
	if sl.buf == nil {
		return 0
	}
	return sl.buf.Len()
}
