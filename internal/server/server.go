// Package server exposes the ledger, rules, reports and uploads over HTTP.
package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/pfinance-dev/pfinance/internal/classify"
	"github.com/pfinance-dev/pfinance/internal/ingest"
	"github.com/pfinance-dev/pfinance/internal/ingestlog"
	"github.com/pfinance-dev/pfinance/internal/ledger"
	"github.com/pfinance-dev/pfinance/internal/logger"
	"github.com/pfinance-dev/pfinance/internal/metrics"
	"github.com/pfinance-dev/pfinance/internal/rules"
	"github.com/pfinance-dev/pfinance/internal/store"
)

// maxUploadMemory is the multipart size kept in memory before spilling to
// temp files.
const maxUploadMemory = 32 << 20

// Server is the pfinance HTTP API server.
type Server struct {
	// mu serializes handlers that read or write tables.
	mu sync.Mutex

	ledger   *ledger.Service
	rules    *rules.Service
	ingest   *ingest.Service
	log      *ingestlog.Log
	classify classify.Config
	metrics  *metrics.Metrics
}

// New creates a Server. log may be nil, which disables /api/ingest-log;
// m may be nil, which disables /metrics.
func New(led *ledger.Service, rs *rules.Service, ing *ingest.Service, log *ingestlog.Log, cfg classify.Config, m *metrics.Metrics) *Server {
	return &Server{ledger: led, rules: rs, ingest: ing, log: log, classify: cfg, metrics: m}
}

// Handler returns the chi router with all routes mounted.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(2 * time.Minute))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/api", func(r chi.Router) {
		r.Post("/uploads", s.serialized(s.handleUpload))
		r.Get("/ingest-log", s.serialized(s.handleIngestLog))

		r.Get("/transactions", s.serialized(s.handleListTransactions))
		r.Post("/transactions", s.serialized(s.handleAddTransaction))
		r.Put("/transactions", s.serialized(s.handleSaveEdits))
		r.Get("/transactions/{id}", s.serialized(s.handleGetTransaction))
		r.Delete("/transactions/{id}", s.serialized(s.handleDeleteTransaction))

		r.Get("/report", s.serialized(s.handleReport))

		r.Get("/rules/{kind}", s.serialized(s.handleListRules))
		r.Post("/rules/{kind}", s.serialized(s.handleAddRule))
	})

	if s.metrics != nil && s.metrics.Registry != nil {
		r.Handle("/metrics", promhttp.HandlerFor(s.metrics.Registry, promhttp.HandlerOpts{}))
	}

	return r
}

func (s *Server) serialized(h http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		defer s.mu.Unlock()
		h(w, r)
	}
}

// requestLogger logs one line per request through the context logger.
func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		log := logger.FromContext(r.Context())
		log.Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Int("bytes", ww.BytesWritten()).
			Dur("duration", time.Since(start)).
			Str("request_id", middleware.GetReqID(r.Context())).
			Msg("request")
	})
}

// writeJSON writes a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]any{
		"error": map[string]any{
			"message": msg,
			"type":    "error",
		},
	})
}

// writeStoreError maps storage failures to a status code.
func writeStoreError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, store.ErrConflict):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, ledger.ErrInvalid), errors.Is(err, rules.ErrInvalid):
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}
