// Package cache provides a Redis-backed HTTP response cache for the catalog
// client, with ETag and Last-Modified revalidation.
//
// It caches upstream responses only. Prefetched records live in memory in
// package prefetch and are never written here.
//
// Features:
//
// - Freshness from Cache-Control max-age or Expires, DefaultTTL otherwise
// - Stale entries with a validator kept for revalidation (If-None-Match)
// - Deterministic keys that leave out the API key
// - Prometheus metrics for observability
//
// # Basic Usage
//
//	redisClient := redis.NewClient(&redis.Options{
//		Addr: "localhost:6379",
//	})
//
//	manager, err := cache.NewManager(redisClient)
//	if err != nil {
//		return err
//	}
//
//	key := cache.KeyForRequest(req)
//	entry, err := manager.Get(ctx, key)
//	switch {
//	case errors.Is(err, cache.ErrCacheMiss):
//		// fetch from the catalog
//	case entry.IsExpired() && cache.ShouldMakeConditionalRequest(entry):
//		cache.AddConditionalHeaders(req, entry)
//	default:
//		resp := cache.EntryToResponse(entry)
//	}
//
// # HTTP Response Caching
//
//	entry, err := cache.ResponseToEntry(resp)
//	if err != nil {
//		return err
//	}
//	if err := manager.Set(ctx, key, entry); err != nil {
//		return err
//	}
//
// # Metrics
//
//   - books_cache_hits_total{layer="redis"} - Cache hits
//   - books_cache_misses_total - Cache misses
//   - books_cache_size_bytes{layer="redis"} - Bytes written
//   - books_304_responses_total - Conditional request successes
//   - books_conditional_requests_total - Conditional requests sent
//   - books_cache_errors_total{operation} - Cache operation errors
package cache
