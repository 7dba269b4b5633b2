// Package webui exposes the importer over HTTP.
//
// Routes:
//
//	GET  /             → upload form
//	GET  /healthz      → liveness
//	POST /api/preview  → ParseWhole over the request body, limited; one JSON result
//	POST /api/import   → ParseBatched over the request body into the configured
//	                     table, or streamed back as NDJSON batches
//
// The request body is the raw file. Query parameters select the dialect:
// format (csv|ndjson), options (a JSON object of parser options as in a job
// file), name (file name, drives compression detection), compression,
// charset, limit (preview only) and table (import only).
package webui

import (
	"context"
	_ "embed"
	"html/template"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"ingest/internal/batch"
	"ingest/internal/config"
)

// DefaultPreviewLimit caps preview rows when the request sets no limit.
const DefaultPreviewLimit = 100

// Config controls the server.
type Config struct {
	Addr string

	// PreviewLimit caps the rows returned by /api/preview.
	PreviewLimit int

	// MaxBodyBytes rejects larger uploads; 0 means unlimited.
	MaxBodyBytes int64

	// Batch configures /api/import batching.
	Batch batch.Options

	// Storage selects the import sink. An empty or "stdout" kind streams
	// batches back to the client as NDJSON.
	Storage config.Storage

	// Job labels metrics.
	Job string
}

// Server is the HTTP front end.
type Server struct {
	cfg    Config
	router *chi.Mux
	server *http.Server
	tmpl   *template.Template
}

// NewServer builds the router.
func NewServer(cfg Config) *Server {
	if cfg.PreviewLimit <= 0 {
		cfg.PreviewLimit = DefaultPreviewLimit
	}
	if cfg.Job == "" {
		cfg.Job = "ingest-web"
	}
	s := &Server{
		cfg:    cfg,
		router: chi.NewRouter(),
		tmpl:   template.Must(template.New("index").Parse(indexHTML)),
	}
	s.setupMiddleware()
	s.setupRoutes()
	s.server = &http.Server{
		Addr:              cfg.Addr,
		Handler:           s.router,
		ReadHeaderTimeout: 15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	return s
}

func (s *Server) setupMiddleware() {
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(requestLogger)
	s.router.Use(middleware.Recoverer)
}

func (s *Server) setupRoutes() {
	s.router.Get("/", s.handleIndex)
	s.router.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		_, _ = w.Write([]byte("ok"))
	})
	s.router.Route("/api", func(r chi.Router) {
		r.Post("/preview", s.handlePreview)
		r.Post("/import", s.handleImport)
	})
}

// Handler returns the router, for tests and embedding.
func (s *Server) Handler() http.Handler { return s.router }

// ListenAndServe starts the HTTP server. Imports stream for as long as the
// upload lasts, so there is no write timeout.
func (s *Server) ListenAndServe() error {
	slog.Info("webui: listening", "addr", s.cfg.Addr)
	return s.server.ListenAndServe()
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := s.tmpl.Execute(w, s.cfg); err != nil {
		slog.Error("webui: template", "err", err)
	}
}

// requestLogger logs one line per request with the chi request ID.
func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		slog.Info("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"bytes", ww.BytesWritten(),
			"elapsed", time.Since(start).Truncate(time.Microsecond),
			"request_id", middleware.GetReqID(r.Context()),
		)
	})
}

//go:embed index.tmpl.html
var indexHTML string
