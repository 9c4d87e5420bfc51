package pagination

import "fmt"

// Cursor is a position into an offset-paginated result set.
type Cursor struct {
	// Offset is the index of the next record to request (startIndex).
	Offset int `json:"offset"`

	// PageSize is the page size of the last successful refill.
	PageSize int `json:"page_size"`
}

// NewCursor creates a cursor at the given offset. Negative offsets clamp to 0.
func NewCursor(offset int) Cursor {
	if offset < 0 {
		offset = 0
	}
	return Cursor{Offset: offset}
}

// Advance moves the cursor forward by delta and records the page size used.
// Non-positive deltas leave the cursor unchanged.
func (c *Cursor) Advance(delta, pageSize int) {
	if delta <= 0 {
		return
	}
	c.Offset += delta
	c.PageSize = pageSize
}

// String renders the cursor for logs.
func (c Cursor) String() string {
	return fmt.Sprintf("offset=%d page_size=%d", c.Offset, c.PageSize)
}
