// Package prefetch implements a genre-bucketed prefetch cache over an
// offset-paginated catalog.
//
// Each known category owns a Buffer of normalized records and a cursor into
// the provider's result set. Refills fetch the window at the cursor and, when
// the provider returns at least one record, commit the records and advance
// the cursor by the requested page size in a single step. An empty page holds
// the cursor so the same window is requested again later.
//
// Basic usage:
//
//	svc, err := prefetch.NewService(source, prefetch.DefaultConfig())
//	if err != nil {
//	    return err
//	}
//
//	result, err := svc.Warm(ctx, 9)
//	if err != nil {
//	    return err // invalid page size
//	}
//	for category, reason := range result.FailureReasons() {
//	    log.Warn().Str("category", category).Msg(reason)
//	}
//
//	books, err := svc.Consume("fantasy", 3)
//	if errors.Is(err, prefetch.ErrCategoryNotCached) {
//	    _, err = svc.Extend(ctx, "fantasy", 9)
//	}
//
// Consumption takes from the tail of a buffer and removes the category once
// the buffer is drained. It never triggers a fetch.
//
// Concurrency: categories are locked independently. Refills of the same
// category are serialized end to end; consumers only wait for the in-memory
// commit, never for the network.
package prefetch
