// Package api exposes the compression service over HTTP.
//
// Routes:
//
//	POST /compress        multipart "image" (+ "quality" or "lmb", "preview") or a raw image body
//	POST /decompress      multipart "bits_file" or a raw container body
//	GET  /download/{name} "<digest>.bits" or "<digest>.png" from recent results
//	GET  /healthz         codec session state and counters
//
// Responses are JSON unless the request accepts application/cbor.
package api

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"time"
)

// DefaultMaxBodyBytes is the request body limit when none is configured.
const DefaultMaxBodyBytes = 16 << 20

// Config holds the HTTP server settings.
type Config struct {
	Addr         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
	MaxBodyBytes int64
	StoreEntries int
	Version      string
}

// DefaultConfig returns the default server settings.
func DefaultConfig() Config {
	return Config{
		Addr:         ":8080",
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 120 * time.Second,
		IdleTimeout:  60 * time.Second,
		MaxBodyBytes: DefaultMaxBodyBytes,
		StoreEntries: DefaultStoreEntries,
	}
}

// Server represents the HTTP server for the compression API.
type Server struct {
	store      *ArtifactStore
	handlers   *Handlers
	handler    http.Handler
	httpServer *http.Server
	logger     *slog.Logger
}

// NewServer creates a new Server instance.
func NewServer(cfg Config, svc Service, health HealthSource, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = DefaultMaxBodyBytes
	}

	store := NewArtifactStore(cfg.StoreEntries)
	handlers := NewHandlers(svc, health, store, cfg.MaxBodyBytes, cfg.Version, logger)

	mux := http.NewServeMux()
	mux.HandleFunc("POST /compress", handlers.HandleCompress)
	mux.HandleFunc("POST /decompress", handlers.HandleDecompress)
	mux.HandleFunc("GET /download/{name}", handlers.HandleDownload)
	mux.HandleFunc("GET /healthz", handlers.HandleHealth)

	handler := logRequests(logger, mux)

	return &Server{
		store:    store,
		handlers: handlers,
		handler:  handler,
		logger:   logger,
		httpServer: &http.Server{
			Addr:         cfg.Addr,
			Handler:      handler,
			ReadTimeout:  cfg.ReadTimeout,
			WriteTimeout: cfg.WriteTimeout,
			IdleTimeout:  cfg.IdleTimeout,
		},
	}
}

// Start starts the HTTP server.
// Blocks until the server is stopped or an error occurs; returns nil after Shutdown.
func (s *Server) Start() error {
	s.logger.Info("listening", "addr", s.httpServer.Addr)
	return ignoreClosed(s.httpServer.ListenAndServe())
}

// Serve serves on an existing listener. Like Start, it returns nil after Shutdown.
func (s *Server) Serve(ln net.Listener) error {
	s.logger.Info("listening", "addr", ln.Addr().String())
	return ignoreClosed(s.httpServer.Serve(ln))
}

// Shutdown gracefully shuts down the server, waiting for in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// Handler returns the root handler, including request logging.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Store returns the ArtifactStore for testing purposes.
func (s *Server) Store() *ArtifactStore {
	return s.store
}

// Handlers returns the Handlers for testing purposes.
func (s *Server) Handlers() *Handlers {
	return s.handlers
}

func ignoreClosed(err error) error {
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}

	return err
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func logRequests(logger *slog.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		logger.Info("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", rec.status,
			"elapsed", time.Since(start),
		)
	})
}
