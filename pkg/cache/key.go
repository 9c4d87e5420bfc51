package cache

import (
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strings"
)

// KeyPrefix namespaces every cache key in Redis.
const KeyPrefix = "books"

// secretParams are query parameters that never become part of a key.
var secretParams = map[string]bool{
	"key": true,
}

// Key identifies a cached catalog response.
type Key struct {
	// Path is the request path (e.g., "/books/v1/volumes")
	Path string

	// Query holds the query parameters (e.g., q=subject:fantasy, startIndex=0)
	Query url.Values
}

// KeyForRequest builds the key of an outbound request.
func KeyForRequest(req *http.Request) Key {
	return Key{
		Path:  req.URL.Path,
		Query: req.URL.Query(),
	}
}

// String generates a deterministic cache key string. Query parameters are
// sorted and the API key is left out, so rotating credentials keeps the cache.
//
// Example:
//
//	books:books/v1/volumes:maxResults=9:q=subject:fantasy:startIndex=18
func (k Key) String() string {
	parts := []string{KeyPrefix}

	if path := strings.Trim(k.Path, "/"); path != "" {
		parts = append(parts, path)
	}

	names := make([]string, 0, len(k.Query))
	for name := range k.Query {
		if !secretParams[name] {
			names = append(names, name)
		}
	}
	sort.Strings(names)

	for _, name := range names {
		values := append([]string(nil), k.Query[name]...)
		sort.Strings(values)
		parts = append(parts, fmt.Sprintf("%s=%s", name, strings.Join(values, ",")))
	}

	return strings.Join(parts, ":")
}
