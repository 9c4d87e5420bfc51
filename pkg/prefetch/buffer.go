package prefetch

import (
	"github.com/Sternrassler/bookshelf-prefetch/pkg/book"
	"github.com/Sternrassler/bookshelf-prefetch/pkg/pagination"
)

// Buffer is the ordered record queue of one category plus its cursor into the
// catalog. Refills append at the tail and consumption takes from the tail, so
// both ends of the work happen without shifting the slice.
//
// Buffer is not safe for concurrent use; Store serializes access per category.
type Buffer struct {
	category string
	records  []book.Record
	cursor   pagination.Cursor
}

// NewBuffer creates an empty buffer positioned at cursor.
func NewBuffer(category string, cursor pagination.Cursor) *Buffer {
	return &Buffer{
		category: category,
		cursor:   cursor,
	}
}

// Category returns the category key.
func (b *Buffer) Category() string {
	return b.category
}

// Len returns the number of buffered records.
func (b *Buffer) Len() int {
	return len(b.records)
}

// Cursor returns the current catalog position.
func (b *Buffer) Cursor() pagination.Cursor {
	return b.cursor
}

// Append concatenates records at the tail. No dedup and no cap.
func (b *Buffer) Append(records []book.Record) {
	b.records = append(b.records, records...)
}

// Take removes up to n records from the tail and returns them in their
// buffered order. When n covers the whole buffer it is drained.
func (b *Buffer) Take(n int) []book.Record {
	if n <= 0 || len(b.records) == 0 {
		return []book.Record{}
	}

	if n >= len(b.records) {
		out := b.records
		b.records = nil
		return out
	}

	cut := len(b.records) - n
	out := make([]book.Record, n)
	copy(out, b.records[cut:])
	// Drop references so the backing array does not pin taken records.
	clear(b.records[cut:])
	b.records = b.records[:cut]
	return out
}

// AdvanceCursor moves the cursor forward after a refill that returned records.
func (b *Buffer) AdvanceCursor(delta, pageSize int) {
	b.cursor.Advance(delta, pageSize)
}

// Records returns a copy of the buffered records.
func (b *Buffer) Records() []book.Record {
	out := make([]book.Record, len(b.records))
	copy(out, b.records)
	return out
}
