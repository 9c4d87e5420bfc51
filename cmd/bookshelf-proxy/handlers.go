package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/Sternrassler/bookshelf-prefetch/internal/config"
	"github.com/Sternrassler/bookshelf-prefetch/pkg/book"
	"github.com/Sternrassler/bookshelf-prefetch/pkg/logging"
	"github.com/Sternrassler/bookshelf-prefetch/pkg/metrics"
	"github.com/Sternrassler/bookshelf-prefetch/pkg/prefetch"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

func handlerLog() zerolog.Logger {
	return logging.NewLogger("http")
}

type warmResponse struct {
	Message   string            `json:"message"`
	Succeeded []string          `json:"succeeded"`
	Empty     []string          `json:"empty"`
	Failed    map[string]string `json:"failed"`
}

type consumeResponse struct {
	CachedBooks []book.Record `json:"cachedBooks"`
}

type extendResponse struct {
	Message  string `json:"message"`
	Appended int    `json:"appended"`
}

type categoryRequest struct {
	Category string `json:"category"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// newRouter builds the HTTP routes. redisClient may be nil.
func newRouter(svc *prefetch.Service, redisClient *redis.Client) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", healthHandler)
	mux.HandleFunc("GET /ready", readyHandler(redisClient))
	mux.Handle("GET /metrics", metrics.Handler())

	mux.HandleFunc("GET /api/books/cache", warmHandler(svc))
	mux.HandleFunc("GET /api/books/cache/full", snapshotHandler(svc))
	mux.HandleFunc("GET /api/books/cache/{genre}", consumeHandler(svc))
	mux.HandleFunc("GET /api/books/cache/{genre}/update", extendHandler(svc))
	mux.HandleFunc("GET /api/books/cache/{genre}/viewing", viewHandler(svc))
	mux.HandleFunc("GET /api/books/stats", statsHandler(svc))
	mux.HandleFunc("POST /api/books/categories", addCategoryHandler(svc))
	return mux
}

func healthHandler(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	fmt.Fprintf(w, "OK")
}

func readyHandler(redisClient *redis.Client) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if redisClient != nil {
			if err := redisClient.Ping(r.Context()).Err(); err != nil {
				http.Error(w, "Redis not ready", http.StatusServiceUnavailable)
				return
			}
		}
		w.WriteHeader(http.StatusOK)
		fmt.Fprintf(w, "READY")
	}
}

func warmHandler(svc *prefetch.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit, ok := parseLimit(w, r, svc.DefaultPageSize())
		if !ok {
			return
		}

		result, err := svc.Warm(r.Context(), limit)
		if err != nil {
			writeError(w, err)
			return
		}

		resp := warmResponse{
			Message:   "Cache refreshed",
			Succeeded: nonNil(result.Succeeded),
			Empty:     nonNil(result.Empty),
			Failed:    result.FailureReasons(),
		}
		status := http.StatusOK
		if result.Partial() {
			resp.Message = "Cache partially refreshed"
			status = http.StatusMultiStatus
		}
		writeJSON(w, status, resp)
	}
}

func snapshotHandler(svc *prefetch.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, svc.Snapshot())
	}
}

func consumeHandler(svc *prefetch.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit, ok := parseLimit(w, r, svc.DefaultPageSize())
		if !ok {
			return
		}

		records, err := svc.Consume(r.PathValue("genre"), limit)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, consumeResponse{CachedBooks: records})
	}
}

func extendHandler(svc *prefetch.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit, ok := parseLimit(w, r, svc.DefaultPageSize())
		if !ok {
			return
		}

		genre := prefetch.NormalizeCategory(r.PathValue("genre"))
		appended, err := svc.Extend(r.Context(), genre, limit)
		if err != nil {
			writeError(w, err)
			return
		}

		msg := fmt.Sprintf("Cache for %s extended", genre)
		if appended == 0 {
			msg = fmt.Sprintf("No more books for %s", genre)
		}
		writeJSON(w, http.StatusOK, extendResponse{Message: msg, Appended: appended})
	}
}

func viewHandler(svc *prefetch.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		records, err := svc.View(r.PathValue("genre"))
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, nonNil(records))
	}
}

func statsHandler(svc *prefetch.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, svc.Stats())
	}
}

func addCategoryHandler(svc *prefetch.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req categoryRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body"})
			return
		}
		category := prefetch.NormalizeCategory(req.Category)
		if category == "" {
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: "category is required"})
			return
		}
		if config.ReservedCategory(category) {
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: fmt.Sprintf("category name %q is reserved", category)})
			return
		}
		if !svc.AddCategory(category) {
			writeJSON(w, http.StatusConflict, errorResponse{Error: fmt.Sprintf("category %s already registered", category)})
			return
		}
		writeJSON(w, http.StatusCreated, categoryRequest{Category: category})
	}
}

// parseLimit reads ?limit=, writing a 400 and returning false when invalid.
func parseLimit(w http.ResponseWriter, r *http.Request, fallback int) (int, bool) {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return fallback, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: fmt.Sprintf("limit must be a positive integer, got %q", raw)})
		return 0, false
	}
	return n, true
}

func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, prefetch.ErrInvalidPageSize):
		status = http.StatusBadRequest
	case errors.Is(err, prefetch.ErrCategoryNotCached), errors.Is(err, prefetch.ErrCategoryNotFound):
		status = http.StatusNotFound
	case errors.Is(err, prefetch.ErrProviderUnavailable):
		status = http.StatusBadGateway
	}
	if status >= http.StatusInternalServerError {
		logger := handlerLog()
		logger.Warn().Err(err).Int("status", status).Msg("Request failed")
	}
	writeJSON(w, status, errorResponse{Error: err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger := handlerLog()
		logger.Error().Err(err).Msg("Failed to write response")
	}
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
