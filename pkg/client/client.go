// Package client provides the Google Books HTTP client with retry, error
// classification and an optional Redis response cache.
package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/Sternrassler/bookshelf-prefetch/pkg/book"
	"github.com/Sternrassler/bookshelf-prefetch/pkg/cache"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// DefaultBaseURL is the public Google Books API root.
const DefaultBaseURL = "https://www.googleapis.com/books/v1"

// maxErrorBody bounds how much of an error response is read for its message.
const maxErrorBody = 4 << 10

// Prometheus metrics for catalog requests.
var (
	booksRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "books_api_requests_total",
		Help: "Total Books API requests by status",
	}, []string{"status"})

	booksRequestDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "books_api_request_duration_seconds",
		Help:    "Books API request duration in seconds",
		Buckets: []float64{0.1, 0.25, 0.5, 1, 2, 5, 10},
	})

	booksErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "books_api_errors_total",
		Help: "Total Books API errors by class",
	}, []string{"class"})
)

// Client talks to the Google Books volumes API.
type Client struct {
	httpClient *http.Client
	baseURL    *url.URL
	cache      *cache.Manager
	retry      RetryPolicy
	config     Config
	logger     zerolog.Logger
}

// Config holds the client configuration.
type Config struct {
	// BaseURL is the API root (default: DefaultBaseURL)
	BaseURL string

	// APIKey is sent as the "key" query parameter when set
	APIKey string

	// User-Agent header (REQUIRED)
	// Format: "AppName/Version (contact@example.com)"
	UserAgent string

	// Timeout bounds a single HTTP attempt
	Timeout time.Duration

	// Retry
	MaxRetries     int           // Retries after the first attempt
	InitialBackoff time.Duration // Overrides the per-class initial backoff when > 0

	// Cache is the optional Redis response cache (nil disables it)
	Cache *cache.Manager

	// HTTPClient overrides the default client (for tests)
	HTTPClient *http.Client
}

// DefaultConfig returns a safe default configuration.
func DefaultConfig(userAgent string) Config {
	return Config{
		BaseURL:    DefaultBaseURL,
		UserAgent:  userAgent,
		Timeout:    10 * time.Second,
		MaxRetries: 2,
	}
}

// New creates a new Books API client.
func New(cfg Config) (*Client, error) {
	if cfg.UserAgent == "" {
		return nil, fmt.Errorf("user-agent is required")
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	base, err := url.Parse(strings.TrimRight(cfg.BaseURL, "/"))
	if err != nil || base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("invalid base url %q", cfg.BaseURL)
	}
	if cfg.MaxRetries < 0 {
		return nil, fmt.Errorf("max_retries must be >= 0 (got %d)", cfg.MaxRetries)
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Timeout}
	}

	c := &Client{
		httpClient: httpClient,
		baseURL:    base,
		cache:      cfg.Cache,
		config:     cfg,
		logger:     log.With().Str("component", "books-client").Logger(),
	}
	c.retry = c.retryPolicy
	return c, nil
}

// retryPolicy applies the configured attempt count and initial backoff on
// top of the per-class defaults.
func (c *Client) retryPolicy(class ErrorClass) RetryConfig {
	rc := RetryConfigForErrorClass(class)
	rc.MaxAttempts = c.config.MaxRetries + 1
	if c.config.InitialBackoff > 0 {
		rc.InitialBackoff = c.config.InitialBackoff
		if rc.MaxBackoff < rc.InitialBackoff {
			rc.MaxBackoff = rc.InitialBackoff
		}
	}
	return rc
}

// Fetch returns one page of volumes for a subject. It implements
// prefetch.Source. A response without items is an empty page.
func (c *Client) Fetch(ctx context.Context, category string, offset, pageSize int) ([]book.RawRecord, error) {
	query := url.Values{}
	query.Set("q", "subject:"+category)
	query.Set("startIndex", strconv.Itoa(offset))
	query.Set("maxResults", strconv.Itoa(pageSize))

	resp, err := c.Get(ctx, "/volumes", query)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		booksErrorsTotal.WithLabelValues(string(ErrorClassClient)).Inc()
		return nil, &ProviderError{
			StatusCode: resp.StatusCode,
			ErrorClass: ErrorClassClient,
			Message:    "unexpected status " + resp.Status,
		}
	}

	var page book.VolumesResponse
	if err := json.NewDecoder(resp.Body).Decode(&page); err != nil {
		booksErrorsTotal.WithLabelValues(string(ErrorClassDecode)).Inc()
		return nil, &ProviderError{
			StatusCode: resp.StatusCode,
			ErrorClass: ErrorClassDecode,
			Message:    "decode volumes",
			Err:        err,
		}
	}

	c.logger.Debug().
		Str("category", category).
		Int("offset", offset).
		Int("page_size", pageSize).
		Int("records", len(page.Items)).
		Int("total_items", page.TotalItems).
		Msg("Fetched volumes")

	if page.Items == nil {
		return []book.RawRecord{}, nil
	}
	return page.Items, nil
}

// Get performs a GET request against a path below the base URL.
func (c *Client) Get(ctx context.Context, path string, query url.Values) (*http.Response, error) {
	u := *c.baseURL
	u.Path = strings.TrimRight(u.Path, "/") + "/" + strings.TrimLeft(path, "/")

	q := url.Values{}
	for k, v := range query {
		q[k] = append([]string(nil), v...)
	}
	if c.config.APIKey != "" {
		q.Set("key", c.config.APIKey)
	}
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	return c.Do(req)
}

// Do performs an HTTP request with caching, retry and error classification.
// Any non-2xx outcome that is not a 304 is returned as a *ProviderError.
func (c *Client) Do(req *http.Request) (*http.Response, error) {
	ctx := req.Context()
	path := req.URL.Path

	startTime := time.Now()
	defer func() {
		booksRequestDuration.Observe(time.Since(startTime).Seconds())
	}()

	// Step 1: Check Cache
	var (
		cacheKey    cache.Key
		cachedEntry *cache.Entry
	)
	if c.cache != nil {
		cacheKey = cache.KeyForRequest(req)
		entry, err := c.cache.Get(ctx, cacheKey)
		if err != nil && !errors.Is(err, cache.ErrCacheMiss) {
			c.logger.Warn().Err(err).Str("path", path).Msg("Cache get error")
		}
		cachedEntry = entry
	}

	if cachedEntry != nil && !cachedEntry.IsExpired() {
		c.logger.Debug().
			Str("path", path).
			Dur("ttl", cachedEntry.TTL()).
			Bool("cache_hit", true).
			Msg("Serving fresh cache entry")
		booksRequestsTotal.WithLabelValues("cached").Inc()
		return cache.EntryToResponse(cachedEntry), nil
	}

	// Step 2: Make Conditional Request for a stale entry
	if cache.ShouldMakeConditionalRequest(cachedEntry) {
		cache.AddConditionalHeaders(req, cachedEntry)
		cache.ConditionalRequestsSent.Inc()
		c.logger.Debug().
			Str("path", path).
			Str("etag", cachedEntry.ETag).
			Msg("Making conditional request")
	}

	// Step 3: Set headers
	req.Header.Set("User-Agent", c.config.UserAgent)
	req.Header.Set("Accept", "application/json")

	// Step 4: Execute with retry
	var resp *http.Response
	retryErr := retryWithBackoff(ctx, c.retry, func() error {
		var reqErr error
		resp, reqErr = c.httpClient.Do(req)
		if reqErr != nil {
			booksErrorsTotal.WithLabelValues(string(ErrorClassNetwork)).Inc()
			booksRequestsTotal.WithLabelValues("network_error").Inc()
			c.logger.Warn().Err(reqErr).Str("path", path).Msg("HTTP request failed")
			resp = nil
			return &ProviderError{
				ErrorClass: ErrorClassNetwork,
				Message:    "request failed",
				Err:        reqErr,
			}
		}

		booksRequestsTotal.WithLabelValues(strconv.Itoa(resp.StatusCode)).Inc()

		if resp.StatusCode == http.StatusNotModified || resp.StatusCode < 400 {
			return nil
		}

		errClass := classifyStatus(resp.StatusCode)
		booksErrorsTotal.WithLabelValues(string(errClass)).Inc()
		providerErr := &ProviderError{
			StatusCode: resp.StatusCode,
			ErrorClass: errClass,
			Message:    errorMessage(resp),
		}
		resp.Body.Close()
		resp = nil

		c.logger.Warn().
			Str("path", path).
			Int("status", providerErr.StatusCode).
			Str("error_class", string(errClass)).
			Msg("Books API request error")
		return providerErr
	})

	if retryErr != nil {
		if resp != nil && resp.Body != nil {
			resp.Body.Close()
		}
		return nil, retryErr
	}

	// Step 5: Handle 304 Not Modified
	if resp.StatusCode == http.StatusNotModified {
		resp.Body.Close()
		if cachedEntry == nil {
			return nil, &ProviderError{
				StatusCode: resp.StatusCode,
				ErrorClass: ErrorClassClient,
				Message:    "304 without a cached entry",
			}
		}

		cache.NotModifiedResponses.Inc()
		c.logger.Debug().Str("path", path).Msg("304 Not Modified - using cache")

		if err := c.cache.UpdateTTL(ctx, cacheKey, cache.ExpiresFrom(resp.Header)); err != nil {
			c.logger.Warn().Err(err).Msg("Failed to update cache TTL")
		}
		return cache.EntryToResponse(cachedEntry), nil
	}

	// Step 6: Update cache on success
	if c.cache != nil && resp.StatusCode == http.StatusOK {
		entry, err := cache.ResponseToEntry(resp)
		if err != nil {
			c.logger.Warn().Err(err).Msg("Failed to create cache entry")
		} else if err := c.cache.Set(ctx, cacheKey, entry); err != nil {
			c.logger.Warn().Err(err).Msg("Failed to cache response")
		} else {
			c.logger.Debug().
				Str("path", path).
				Dur("ttl", entry.TTL()).
				Msg("Cached response")
		}
	}

	return resp, nil
}

// errorMessage extracts the provider's error message from a failed response,
// falling back to the status line.
func errorMessage(resp *http.Response) string {
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	if err != nil || len(body) == 0 {
		return resp.Status
	}

	var payload struct {
		Error struct {
			Message string `json:"message"`
		} `json:"error"`
	}
	if json.Unmarshal(body, &payload) == nil && payload.Error.Message != "" {
		return payload.Error.Message
	}
	return resp.Status
}

// Close releases idle connections.
func (c *Client) Close() error {
	c.httpClient.CloseIdleConnections()
	return nil
}

// SetHTTPClient sets a custom HTTP client (for testing).
func (c *Client) SetHTTPClient(client *http.Client) {
	c.httpClient = client
}

// GetCache returns the cache manager (nil when caching is off).
func (c *Client) GetCache() *cache.Manager {
	return c.cache
}
