// Package server provides the HTTP ingestion endpoint and the corpus views.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"html/template"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/santhosh-tekuri/jsonschema/v6"

	"github.com/panbanda/clonestream/internal/monitor"
	"github.com/panbanda/clonestream/internal/store"
	"github.com/panbanda/clonestream/internal/timing"
	"github.com/panbanda/clonestream/pkg/pipeline"
)

// Defaults.
const (
	DefaultAddr           = ":8080"
	DefaultMaxUploadBytes = 10 << 20
	DefaultStatsEvery     = 100
)

// Server represents the HTTP server.
type Server struct {
	pipeline *pipeline.Pipeline
	files    store.FileStore
	clones   store.CloneStore
	history  *timing.History
	monitor  *monitor.Monitor
	logger   zerolog.Logger

	addr       string
	maxUpload  int64
	statsEvery int64
	publicURL  string

	schema *jsonschema.Schema
	pages  *template.Template

	processed atomic.Int64
	lastMu    sync.RWMutex
	last      *pipeline.Outcome

	httpServer *http.Server
}

// Option configures a Server.
type Option func(*Server)

// WithAddr sets the listen address.
func WithAddr(addr string) Option {
	return func(s *Server) {
		s.addr = addr
	}
}

// WithLogger sets the logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(s *Server) {
		s.logger = logger
	}
}

// WithHistory sets the timing history. A default-sized one is used otherwise.
func WithHistory(h *timing.History) Option {
	return func(s *Server) {
		s.history = h
	}
}

// WithMonitor serves samples and summaries from m.
func WithMonitor(m *monitor.Monitor) Option {
	return func(s *Server) {
		s.monitor = m
	}
}

// WithMaxUploadBytes bounds request bodies.
func WithMaxUploadBytes(n int64) Option {
	return func(s *Server) {
		if n > 0 {
			s.maxUpload = n
		}
	}
}

// WithStatsEvery logs corpus statistics every n accepted files. Zero
// disables the log line.
func WithStatsEvery(n int) Option {
	return func(s *Server) {
		s.statsEvery = int64(n)
	}
}

// New creates a server. Files are ingested through p; views read from
// files and clones.
func New(p *pipeline.Pipeline, files store.FileStore, clones store.CloneStore, opts ...Option) (*Server, error) {
	s := &Server{
		pipeline:   p,
		files:      files,
		clones:     clones,
		logger:     zerolog.Nop(),
		addr:       DefaultAddr,
		maxUpload:  DefaultMaxUploadBytes,
		statsEvery: DefaultStatsEvery,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.history == nil {
		s.history = timing.NewHistory(timing.DefaultHistorySize)
	}

	schema, err := compileIngestSchema()
	if err != nil {
		return nil, fmt.Errorf("compile ingest schema: %w", err)
	}
	s.schema = schema

	pages, err := parsePages()
	if err != nil {
		return nil, fmt.Errorf("parse templates: %w", err)
	}
	s.pages = pages

	s.publicURL = "http://localhost" + s.addr
	s.httpServer = &http.Server{
		Addr:         s.addr,
		Handler:      s.Handler(),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 300 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	return s, nil
}

// Handler returns the routed handler with middleware applied.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /{$}", s.handleUpload)
	mux.HandleFunc("POST /api/files", s.handleIngestJSON)

	mux.HandleFunc("GET /{$}", s.handleIndex)
	mux.HandleFunc("GET /timers", s.handleTimers)
	mux.HandleFunc("GET /timers.json", s.handleTimersJSON)

	mux.HandleFunc("GET /api/clones", s.handleClones)
	mux.HandleFunc("GET /api/stats", s.handleStats)
	mux.HandleFunc("GET /api/samples", s.handleSamples)
	mux.HandleFunc("GET /api/summary", s.handleSummary)
	mux.HandleFunc("GET /health", s.handleHealth)

	return s.withRequestID(s.withLogging(mux))
}

// Run serves until ctx is done, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info().Str("addr", s.addr).Msg("listening for files")
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	s.logger.Info().Msg("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}
	return nil
}

type ctxKey string

const requestIDKey ctxKey = "request_id"

// withRequestID tags each request with an X-Request-ID.
func (s *Server) withRequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Request-ID")
		if _, err := uuid.Parse(id); err != nil {
			id = uuid.New().String()
		}
		w.Header().Set("X-Request-ID", id)
		ctx := context.WithValue(r.Context(), requestIDKey, id)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// withLogging adds request logging.
func (s *Server) withLogging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		id, _ := r.Context().Value(requestIDKey).(string)
		s.logger.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Str("request_id", id).
			Dur("elapsed", time.Since(start)).
			Msg("request")
	})
}

// handleHealth returns server health status.
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	s.jsonResponse(w, http.StatusOK, map[string]string{"status": "ok"})
}

// jsonResponse writes a JSON response.
func (s *Server) jsonResponse(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.logger.Error().Err(err).Msg("encoding JSON response")
	}
}

// errorResponse writes an error JSON response.
func (s *Server) errorResponse(w http.ResponseWriter, status int, message string) {
	s.jsonResponse(w, status, map[string]string{"error": message})
}
