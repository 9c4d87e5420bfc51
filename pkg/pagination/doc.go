// Package pagination provides offset cursors and bounded parallel fan-out for
// offset-paginated catalog endpoints.
//
// The catalog API pages with startIndex/maxResults, so a category's position
// is a plain offset. A Cursor only moves forward, and only when a page
// actually returned records, so an exhausted window is re-requested instead
// of skipped.
//
// Example usage:
//
//	fetcher := pagination.NewBatchFetcher(pagination.DefaultConfig())
//	outcomes := fetcher.FetchAll(ctx, []string{"fantasy", "horror"}, func(ctx context.Context, key string) (int, error) {
//		return refill(ctx, key)
//	})
//
// The batch fetcher:
//   - Runs one task per key, at most MaxConcurrency at a time
//   - Gives every task its own timeout
//   - Never cancels siblings when a task fails
//   - Returns one Outcome per key, in input order
package pagination
