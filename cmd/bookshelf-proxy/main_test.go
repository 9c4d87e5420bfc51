package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/Sternrassler/bookshelf-prefetch/internal/config"
	"github.com/Sternrassler/bookshelf-prefetch/internal/testutil"
	"github.com/Sternrassler/bookshelf-prefetch/pkg/book"
	"github.com/Sternrassler/bookshelf-prefetch/pkg/prefetch"
)

func newTestServer(t *testing.T, categories ...string) (*testutil.MockCatalog, *httptest.Server) {
	t.Helper()

	mock := testutil.NewMockCatalog()
	t.Cleanup(mock.Close)

	cfg := config.Load()
	cfg.BaseURL = mock.URL()
	cfg.Categories = categories
	cfg.FetchTimeout = 2 * time.Second
	cfg.MaxRetries = 0

	svc, err := newService(cfg, nil)
	if err != nil {
		t.Fatalf("newService() error = %v", err)
	}

	server := httptest.NewServer(newRouter(svc, nil))
	t.Cleanup(server.Close)
	return mock, server
}

func get(t *testing.T, url string) (int, []byte) {
	t.Helper()
	resp, err := http.Get(url)
	if err != nil {
		t.Fatalf("GET %s failed: %v", url, err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatal(err)
	}
	return resp.StatusCode, body
}

func TestHealthEndpoint(t *testing.T) {
	req := httptest.NewRequest("GET", "/health", nil)
	w := httptest.NewRecorder()

	healthHandler(w, req)

	resp := w.Result()
	body, _ := io.ReadAll(resp.Body)

	if resp.StatusCode != http.StatusOK {
		t.Errorf("Expected status 200, got %d", resp.StatusCode)
	}

	if string(body) != "OK" {
		t.Errorf("Expected body 'OK', got %s", string(body))
	}
}

func TestReadyWithoutRedis(t *testing.T) {
	req := httptest.NewRequest("GET", "/ready", nil)
	w := httptest.NewRecorder()

	readyHandler(nil)(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("Expected status 200, got %d", w.Code)
	}
}

func TestWriteErrorStatusMapping(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
	}{
		{name: "invalid page size", err: fmt.Errorf("%w: 0", prefetch.ErrInvalidPageSize), status: http.StatusBadRequest},
		{name: "not cached", err: prefetch.ErrCategoryNotCached, status: http.StatusNotFound},
		{name: "not found", err: prefetch.ErrCategoryNotFound, status: http.StatusNotFound},
		{name: "provider failure", err: &prefetch.RefillError{Category: "horror", Err: errors.New("boom")}, status: http.StatusBadGateway},
		{name: "unexpected", err: errors.New("boom"), status: http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			writeError(w, tt.err)

			if w.Code != tt.status {
				t.Errorf("status = %d, want %d", w.Code, tt.status)
			}
			var resp errorResponse
			if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil || resp.Error != tt.err.Error() {
				t.Errorf("body = %s, want error %q", w.Body.String(), tt.err.Error())
			}
		})
	}
}

func TestWarmDeadline(t *testing.T) {
	tests := []struct {
		name        string
		categories  int
		concurrency int
		want        time.Duration
	}{
		{name: "single wave", categories: 8, concurrency: 8, want: 11 * time.Second},
		{name: "queued categories get their own wave", categories: 9, concurrency: 8, want: 21 * time.Second},
		{name: "serial", categories: 3, concurrency: 1, want: 31 * time.Second},
		{name: "no categories", categories: 0, concurrency: 4, want: 11 * time.Second},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &config.Config{}
			cfg.Categories = make([]string, tt.categories)
			cfg.MaxConcurrency = tt.concurrency
			cfg.FetchTimeout = 10 * time.Second
			if got := warmDeadline(cfg); got != tt.want {
				t.Errorf("warmDeadline() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestConsumeBeforeWarm(t *testing.T) {
	_, server := newTestServer(t, "fantasy")

	status, body := get(t, server.URL+"/api/books/cache/fantasy")
	if status != http.StatusNotFound {
		t.Errorf("status = %d, want 404", status)
	}
	var resp errorResponse
	if err := json.Unmarshal(body, &resp); err != nil || resp.Error == "" {
		t.Errorf("expected JSON error body, got %s", body)
	}
}

func TestWarmConsumeFlow(t *testing.T) {
	mock, server := newTestServer(t, "fantasy", "horror")

	status, body := get(t, server.URL+"/api/books/cache?limit=7")
	if status != http.StatusOK {
		t.Fatalf("warm status = %d, body %s", status, body)
	}
	var warm warmResponse
	if err := json.Unmarshal(body, &warm); err != nil {
		t.Fatal(err)
	}
	if len(warm.Succeeded) != 2 || len(warm.Failed) != 0 {
		t.Errorf("warm = %+v, want both succeeded", warm)
	}

	for _, r := range mock.Requests() {
		if r.MaxResults != 7 || r.StartIndex != 0 {
			t.Errorf("request = %+v, want startIndex 0 maxResults 7", r)
		}
	}

	status, body = get(t, server.URL+"/api/books/cache/Fantasy?limit=3")
	if status != http.StatusOK {
		t.Fatalf("consume status = %d, body %s", status, body)
	}
	var consumed consumeResponse
	if err := json.Unmarshal(body, &consumed); err != nil {
		t.Fatal(err)
	}
	if len(consumed.CachedBooks) != 3 {
		t.Errorf("cachedBooks = %d, want 3", len(consumed.CachedBooks))
	}

	status, body = get(t, server.URL+"/api/books/cache/fantasy/viewing")
	if status != http.StatusOK {
		t.Fatalf("view status = %d", status)
	}
	var viewing []book.Record
	if err := json.Unmarshal(body, &viewing); err != nil {
		t.Fatal(err)
	}
	if len(viewing) != 4 {
		t.Errorf("viewing = %d records, want 4", len(viewing))
	}

	status, body = get(t, server.URL+"/api/books/cache/full")
	if status != http.StatusOK {
		t.Fatalf("full status = %d", status)
	}
	var full map[string][]book.Record
	if err := json.Unmarshal(body, &full); err != nil {
		t.Fatal(err)
	}
	if len(full["fantasy"]) != 4 || len(full["horror"]) != 7 {
		t.Errorf("full = fantasy %d horror %d, want 4 and 7", len(full["fantasy"]), len(full["horror"]))
	}
}

func TestPartialWarmReturnsMultiStatus(t *testing.T) {
	mock, server := newTestServer(t, "thriller", "mystery")
	mock.Fail("thriller", testutil.MockFailure{StatusCode: http.StatusInternalServerError})

	status, body := get(t, server.URL+"/api/books/cache?limit=2")
	if status != http.StatusMultiStatus {
		t.Fatalf("status = %d, want 207", status)
	}
	var warm warmResponse
	if err := json.Unmarshal(body, &warm); err != nil {
		t.Fatal(err)
	}
	if _, ok := warm.Failed["thriller"]; !ok {
		t.Errorf("failed = %v, want thriller", warm.Failed)
	}
	if len(warm.Succeeded) != 1 || warm.Succeeded[0] != "mystery" {
		t.Errorf("succeeded = %v, want [mystery]", warm.Succeeded)
	}
}

func TestExtendEndpoint(t *testing.T) {
	mock, server := newTestServer(t, "history")
	mock.SetTotal("history", 5)

	status, body := get(t, server.URL+"/api/books/cache/history/update?limit=3")
	if status != http.StatusOK {
		t.Fatalf("status = %d, body %s", status, body)
	}
	var ext extendResponse
	if err := json.Unmarshal(body, &ext); err != nil {
		t.Fatal(err)
	}
	if ext.Appended != 3 {
		t.Errorf("appended = %d, want 3", ext.Appended)
	}

	_, body = get(t, server.URL+"/api/books/cache/history/update?limit=3")
	if err := json.Unmarshal(body, &ext); err != nil {
		t.Fatal(err)
	}
	if ext.Appended != 2 {
		t.Errorf("second appended = %d, want 2", ext.Appended)
	}

	_, body = get(t, server.URL+"/api/books/cache/history/update?limit=3")
	if err := json.Unmarshal(body, &ext); err != nil {
		t.Fatal(err)
	}
	if ext.Appended != 0 || !strings.Contains(ext.Message, "No more books") {
		t.Errorf("exhausted extend = %+v", ext)
	}
}

func TestExtendErrors(t *testing.T) {
	mock, server := newTestServer(t, "action")
	mock.Fail("action", testutil.MockFailure{StatusCode: http.StatusServiceUnavailable})

	tests := []struct {
		name   string
		path   string
		status int
	}{
		{name: "unknown genre", path: "/api/books/cache/poetry/update", status: http.StatusNotFound},
		{name: "provider failure", path: "/api/books/cache/action/update", status: http.StatusBadGateway},
		{name: "zero limit", path: "/api/books/cache/action/update?limit=0", status: http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if status, body := get(t, server.URL+tt.path); status != tt.status {
				t.Errorf("status = %d, want %d (body %s)", status, tt.status, body)
			}
		})
	}
}

func TestLimitValidation(t *testing.T) {
	_, server := newTestServer(t, "romance")

	for _, limit := range []string{"abc", "-1", "0", "2.5"} {
		t.Run(limit, func(t *testing.T) {
			status, _ := get(t, server.URL+"/api/books/cache?limit="+limit)
			if status != http.StatusBadRequest {
				t.Errorf("limit=%s status = %d, want 400", limit, status)
			}
		})
	}
}

func TestViewUncachedGenre(t *testing.T) {
	_, server := newTestServer(t, "romance")

	if status, _ := get(t, server.URL+"/api/books/cache/romance/viewing"); status != http.StatusNotFound {
		t.Errorf("status = %d, want 404", status)
	}
}

func TestAddCategoryEndpoint(t *testing.T) {
	_, server := newTestServer(t, "romance")

	post := func(body string) int {
		resp, err := http.Post(server.URL+"/api/books/categories", "application/json", strings.NewReader(body))
		if err != nil {
			t.Fatal(err)
		}
		resp.Body.Close()
		return resp.StatusCode
	}

	if got := post(`{"category":" Poetry "}`); got != http.StatusCreated {
		t.Errorf("add status = %d, want 201", got)
	}
	if got := post(`{"category":"poetry"}`); got != http.StatusConflict {
		t.Errorf("duplicate status = %d, want 409", got)
	}
	if got := post(`{"category":"Full"}`); got != http.StatusBadRequest {
		t.Errorf("reserved name status = %d, want 400", got)
	}
	if got := post(`{"category":""}`); got != http.StatusBadRequest {
		t.Errorf("empty status = %d, want 400", got)
	}
	if got := post(`not json`); got != http.StatusBadRequest {
		t.Errorf("bad body status = %d, want 400", got)
	}

	status, body := get(t, server.URL+"/api/books/stats")
	if status != http.StatusOK {
		t.Fatalf("stats status = %d", status)
	}
	var stats []prefetch.CategoryStats
	if err := json.Unmarshal(body, &stats); err != nil {
		t.Fatal(err)
	}
	if len(stats) != 2 {
		t.Errorf("stats = %+v, want romance and poetry", stats)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	_, server := newTestServer(t, "romance")

	status, body := get(t, server.URL+"/metrics")
	if status != http.StatusOK {
		t.Fatalf("status = %d", status)
	}
	if !strings.Contains(string(body), "bookshelf_consume_misses_total") {
		t.Error("metrics output missing bookshelf_consume_misses_total")
	}
}
