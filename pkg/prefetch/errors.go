package prefetch

import (
	"errors"
	"fmt"
)

var (
	// ErrProviderUnavailable indicates the catalog provider failed or timed out
	// for a category refill.
	ErrProviderUnavailable = errors.New("provider unavailable")

	// ErrCategoryNotCached indicates a consume on a category that was never
	// warmed or has been drained.
	ErrCategoryNotCached = errors.New("category not cached")

	// ErrCategoryNotFound indicates a category outside the known set.
	ErrCategoryNotFound = errors.New("category not found")

	// ErrInvalidPageSize indicates a non-positive page size or count.
	ErrInvalidPageSize = errors.New("invalid page size")
)

// RefillError reports a failed refill of a single category.
// It matches ErrProviderUnavailable and the underlying cause via errors.Is/As.
type RefillError struct {
	Category string
	Offset   int
	Err      error
}

// Error implements the error interface.
func (e *RefillError) Error() string {
	return fmt.Sprintf("refill %s at offset %d: %v", e.Category, e.Offset, e.Err)
}

// Unwrap implements error unwrapping for errors.Is/As.
func (e *RefillError) Unwrap() []error {
	return []error{ErrProviderUnavailable, e.Err}
}

func validatePageSize(n int) error {
	if n <= 0 {
		return fmt.Errorf("%w: %d (must be positive)", ErrInvalidPageSize, n)
	}
	return nil
}
