// Package api exposes the HTTP interface for the fetch engine: manual
// triggers plus per-feed diagnostics. Feed CRUD belongs to the reader's
// main application, not here.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/JakeFAU/reader-engine/internal/reader"
	"github.com/JakeFAU/reader-engine/internal/scheduler"
)

// Server wires HTTP handlers to the feed store and scheduler.
type Server struct {
	router    chi.Router
	store     reader.FeedStore
	scheduler *scheduler.Scheduler
	idGen     reader.IDGenerator
	logger    *zap.Logger
}

// NewServer constructs a Server with middleware and routes.
func NewServer(
	store reader.FeedStore,
	sched *scheduler.Scheduler,
	idGen reader.IDGenerator,
	logger *zap.Logger,
) *Server {
	s := &Server{
		store:     store,
		scheduler: sched,
		idGen:     idGen,
		logger:    logger,
	}
	r := chi.NewRouter()
	r.Use(requestIDMiddleware(idGen))
	r.Use(loggingMiddleware(logger))
	r.Use(recoverMiddleware(logger))
	r.Use(timeoutMiddleware(60 * time.Second))

	r.Get("/healthz", s.healthz)
	r.Get("/readyz", s.readyz)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Route("/v1/feeds/{feed_id}", func(r chi.Router) {
		r.Post("/refresh", s.triggerFetch)
		r.Post("/created", s.triggerFetch)
		r.Get("/health", s.feedHealth)
		r.Get("/log", s.fetchLog)
	})

	s.router = r
	return s
}

// Handler returns the router for use with http.Server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) readyz(w http.ResponseWriter, r *http.Request) {
	// The store is the only hard dependency; probe it with a cheap read.
	if _, err := s.store.ListDueFeeds(r.Context(), time.Unix(0, 0), 1); err != nil {
		writeError(w, http.StatusServiceUnavailable, "store unavailable")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

// triggerFetch enqueues one immediate fetch for a feed. Both the
// feed-created and manual-refresh paths land here; the fetch pipeline
// does not care which.
func (s *Server) triggerFetch(w http.ResponseWriter, r *http.Request) {
	feedID := chi.URLParam(r, "feed_id")
	if _, err := s.store.GetFeed(r.Context(), feedID); err != nil {
		if errors.Is(err, reader.ErrFeedNotFound) {
			writeError(w, http.StatusNotFound, "feed not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "load feed failed")
		return
	}
	if err := s.scheduler.TriggerNow(r.Context(), feedID); err != nil {
		s.logger.Error("manual trigger failed",
			zap.String("feed_id", feedID), zap.Error(err))
		writeError(w, http.StatusServiceUnavailable, "enqueue failed")
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"feed_id": feedID, "status": "queued"})
}

func (s *Server) feedHealth(w http.ResponseWriter, r *http.Request) {
	feedID := chi.URLParam(r, "feed_id")
	feed, err := s.store.GetFeed(r.Context(), feedID)
	if err != nil {
		if errors.Is(err, reader.ErrFeedNotFound) {
			writeError(w, http.StatusNotFound, "feed not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "load feed failed")
		return
	}
	resp := map[string]any{
		"feed_id":              feed.ID,
		"url":                  feed.URL,
		"last_status":          feed.LastStatus,
		"last_error":           feed.LastError,
		"consecutive_failures": feed.ConsecutiveFailures,
		"next_run_at":          feed.NextRunAt.Format(time.RFC3339),
	}
	if feed.LastFetchAt != nil {
		resp["last_fetch_at"] = feed.LastFetchAt.Format(time.RFC3339)
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) fetchLog(w http.ResponseWriter, r *http.Request) {
	feedID := chi.URLParam(r, "feed_id")
	if _, err := s.store.GetFeed(r.Context(), feedID); err != nil {
		if errors.Is(err, reader.ErrFeedNotFound) {
			writeError(w, http.StatusNotFound, "feed not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "load feed failed")
		return
	}
	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > 500 {
			writeError(w, http.StatusBadRequest, "limit must be 1-500")
			return
		}
		limit = n
	}
	entries, err := s.store.ListFetchLog(r.Context(), feedID, limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "list fetch log failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"feed_id": feedID, "entries": logEntries(entries)})
}

type logEntryResponse struct {
	ID         string `json:"id"`
	FetchedAt  string `json:"fetched_at"`
	Outcome    string `json:"outcome"`
	StatusCode int    `json:"status_code"`
	DurationMs int64  `json:"duration_ms"`
	Bytes      int    `json:"bytes"`
	ItemCount  int    `json:"item_count"`
	Error      string `json:"error,omitempty"`
}

func logEntries(entries []reader.FetchLogEntry) []logEntryResponse {
	out := make([]logEntryResponse, 0, len(entries))
	for _, e := range entries {
		out = append(out, logEntryResponse{
			ID:         e.ID,
			FetchedAt:  e.FetchedAt.Format(time.RFC3339),
			Outcome:    string(e.Outcome),
			StatusCode: e.StatusCode,
			DurationMs: e.DurationMs,
			Bytes:      e.Bytes,
			ItemCount:  e.ItemCount,
			Error:      e.Error,
		})
	}
	return out
}

func requestIDMiddleware(idGen reader.IDGenerator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			reqID, err := idGen.NewID()
			if err == nil {
				ctx := context.WithValue(r.Context(), requestIDKey{}, reqID)
				w.Header().Set("X-Request-ID", reqID)
				r = r.WithContext(ctx)
			}
			next.ServeHTTP(w, r)
		})
	}
}

func loggingMiddleware(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := &responseWriter{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(ww, r)
			logger.Info("request completed",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.status),
				zap.Int64("duration_ms", time.Since(start).Milliseconds()),
			)
		})
	}
}

func recoverMiddleware(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rec := recover(); rec != nil {
					logger.Error("panic recovered", zap.Any("error", rec))
					writeError(w, http.StatusInternalServerError, "internal server error")
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}

func timeoutMiddleware(d time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.TimeoutHandler(next, d, "request timed out")
	}
}

type responseWriter struct {
	http.ResponseWriter
	status int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
}

type requestIDKey struct{}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
