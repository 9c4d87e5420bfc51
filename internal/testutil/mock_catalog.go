// Package testutil provides test doubles for the Books API.
package testutil

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/Sternrassler/bookshelf-prefetch/pkg/book"
)

// DefaultTotal is the catalog size of a subject without SetTotal.
const DefaultTotal = 50

// VolumesRequest is one observed call to /volumes.
type VolumesRequest struct {
	Subject     string
	StartIndex  int
	MaxResults  int
	Conditional bool
	APIKey      string
}

// MockFailure makes a subject answer with an error status.
type MockFailure struct {
	StatusCode int
	Body       string
	// Times limits the failure to the first n requests (0 = always).
	Times int
}

// MockCatalog is a configurable mock of the Google Books volumes endpoint.
// Volume ids are "<subject>-<index>" so tests can check which window was served.
type MockCatalog struct {
	server *httptest.Server

	mu       sync.Mutex
	totals   map[string]int
	failures map[string]*MockFailure
	delays   map[string]time.Duration
	requests []VolumesRequest
	etags    bool
}

// NewMockCatalog starts a mock catalog server.
func NewMockCatalog() *MockCatalog {
	m := &MockCatalog{
		totals:   make(map[string]int),
		failures: make(map[string]*MockFailure),
		delays:   make(map[string]time.Duration),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /volumes", m.handleVolumes)
	mux.HandleFunc("GET /books/v1/volumes", m.handleVolumes)
	m.server = httptest.NewServer(mux)
	return m
}

// URL returns the base URL to configure the client with.
func (m *MockCatalog) URL() string {
	return m.server.URL
}

// Close shuts down the mock server.
func (m *MockCatalog) Close() {
	m.server.Close()
}

// SetTotal sets how many volumes exist for subject.
func (m *MockCatalog) SetTotal(subject string, total int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.totals[subject] = total
}

// Fail makes subject answer with failure until cleared with Recover.
func (m *MockCatalog) Fail(subject string, failure MockFailure) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failures[subject] = &failure
}

// Recover clears a failure set with Fail.
func (m *MockCatalog) Recover(subject string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.failures, subject)
}

// SetDelay delays every response for subject.
func (m *MockCatalog) SetDelay(subject string, d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.delays[subject] = d
}

// EnableETags makes responses carry an ETag and honour If-None-Match.
func (m *MockCatalog) EnableETags() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.etags = true
}

// Requests returns the observed requests in arrival order.
func (m *MockCatalog) Requests() []VolumesRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]VolumesRequest, len(m.requests))
	copy(out, m.requests)
	return out
}

// RequestsFor returns the observed requests for one subject.
func (m *MockCatalog) RequestsFor(subject string) []VolumesRequest {
	var out []VolumesRequest
	for _, r := range m.Requests() {
		if r.Subject == subject {
			out = append(out, r)
		}
	}
	return out
}

// RequestCount returns the number of requests served.
func (m *MockCatalog) RequestCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.requests)
}

// ConditionalCount returns the number of conditional requests.
func (m *MockCatalog) ConditionalCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, r := range m.requests {
		if r.Conditional {
			n++
		}
	}
	return n
}

// Reset clears recorded requests.
func (m *MockCatalog) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.requests = nil
}

func (m *MockCatalog) handleVolumes(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	subject := strings.TrimPrefix(q.Get("q"), "subject:")
	start, _ := strconv.Atoi(q.Get("startIndex"))
	size, err := strconv.Atoi(q.Get("maxResults"))
	if err != nil {
		size = 10
	}
	conditional := r.Header.Get("If-None-Match") != ""

	m.mu.Lock()
	m.requests = append(m.requests, VolumesRequest{
		Subject:     subject,
		StartIndex:  start,
		MaxResults:  size,
		Conditional: conditional,
		APIKey:      q.Get("key"),
	})
	delay := m.delays[subject]
	total, ok := m.totals[subject]
	if !ok {
		total = DefaultTotal
	}
	var failure *MockFailure
	if f := m.failures[subject]; f != nil {
		failure = f
		if f.Times > 0 {
			f.Times--
			if f.Times == 0 {
				delete(m.failures, subject)
			}
		}
	}
	etags := m.etags
	m.mu.Unlock()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-r.Context().Done():
			return
		}
	}

	w.Header().Set("Content-Type", "application/json; charset=UTF-8")

	if failure != nil {
		status := failure.StatusCode
		if status == 0 {
			status = http.StatusServiceUnavailable
		}
		body := failure.Body
		if body == "" {
			body = fmt.Sprintf(`{"error":{"code":%d,"message":"%s"}}`, status, http.StatusText(status))
		}
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
		return
	}

	etag := fmt.Sprintf(`"%s-%d-%d-%d"`, subject, start, size, total)
	if etags {
		if r.Header.Get("If-None-Match") == etag {
			w.Header().Set("Cache-Control", "max-age=60")
			w.WriteHeader(http.StatusNotModified)
			return
		}
		w.Header().Set("ETag", etag)
		// Stale at once so every repeat is revalidated.
		w.Header().Set("Cache-Control", "private, max-age=0")
		w.Header().Set("Expires", time.Now().Add(-time.Second).UTC().Format(http.TimeFormat))
	}

	_ = json.NewEncoder(w).Encode(Volumes(subject, start, size, total))
}

// Volumes builds the page the mock serves for a window. Past the end of the
// catalog the items field is omitted, as the real API does.
func Volumes(subject string, start, size, total int) map[string]any {
	resp := map[string]any{"kind": "books#volumes", "totalItems": total}

	var items []book.RawRecord
	for i := start; i < start+size && i < total; i++ {
		items = append(items, Volume(subject, i))
	}
	if len(items) > 0 {
		resp["items"] = items
	}
	return resp
}

// Volume builds the raw record served at index i of subject.
func Volume(subject string, i int) book.RawRecord {
	return book.RawRecord{
		ID: fmt.Sprintf("%s-%d", subject, i),
		VolumeInfo: &book.VolumeInfo{
			Title:         fmt.Sprintf("%s volume %d", subject, i),
			Authors:       []string{"Author " + strconv.Itoa(i)},
			PublishedDate: "2023/05/10",
			PageCount:     100 + i,
			Categories:    []string{subject},
			Language:      "en",
		},
	}
}
