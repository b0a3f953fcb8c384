package api

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/marcus/carelog/internal/serverdb"
)

const maxBodyBytes = 10 << 20

// Server is the HTTP front end of the authority store.
type Server struct {
	config      Config
	http        *http.Server
	store       *serverdb.ServerDB
	metrics     *Metrics
	rateLimiter *RateLimiter
	cancel      context.CancelFunc
	addr        net.Addr
}

// NewServer creates a new Server with the given config and store.
func NewServer(cfg Config, store *serverdb.ServerDB) (*Server, error) {
	if store == nil {
		return nil, fmt.Errorf("nil store")
	}
	if cfg.MaxBatch <= 0 {
		cfg.MaxBatch = 500
	}
	s := &Server{
		config:      cfg,
		store:       store,
		metrics:     NewMetrics(),
		rateLimiter: NewRateLimiter(),
	}

	s.http = &http.Server{
		Addr:         cfg.ListenAddr,
		Handler:      s.routes(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	return s, nil
}

// Start begins listening for HTTP requests (non-blocking).
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.config.ListenAddr)
	if err != nil {
		return fmt.Errorf("listen: %w", err)
	}
	s.addr = ln.Addr()

	go func() {
		if err := s.http.Serve(ln); err != nil && err != http.ErrServerClosed {
			slog.Error("http server", "err", err)
		}
	}()

	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	go s.rateLimiter.Run(ctx)

	return nil
}

// Addr returns the bound listen address once Start has succeeded.
func (s *Server) Addr() net.Addr {
	return s.addr
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.cancel != nil {
		s.cancel()
	}
	return s.http.Shutdown(ctx)
}

// Handler exposes the routed handler, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.http.Handler
}

// routes builds the HTTP handler with all routes and middleware.
func (s *Server) routes() http.Handler {
	mux := http.NewServeMux()

	// Health & metrics
	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("GET /metricz", s.handleMetrics)

	// Sync
	mux.HandleFunc("POST /v1/sync/apply", s.withRateLimit(s.handleApply, "apply", s.config.RateLimitApply))
	mux.HandleFunc("GET /v1/sync/state", s.withRateLimit(s.handleState, "state", s.config.RateLimitState))
	mux.HandleFunc("GET /v1/sync/conflicts", s.withRateLimit(s.handleConflicts, "other", s.config.RateLimitOther))

	// Admin
	mux.HandleFunc("GET /v1/admin/devices", s.requireAdmin(s.withRateLimit(s.handleDevices, "other", s.config.RateLimitOther)))
	mux.HandleFunc("POST /v1/admin/reset", s.requireAdmin(s.withRateLimit(s.handleReset, "other", s.config.RateLimitOther)))

	return chain(mux,
		recoveryMiddleware,
		requestIDMiddleware,
		loggerMiddleware,
		metricsMiddleware(s.metrics),
		loggingMiddleware,
		corsMiddleware(s.config.CORSAllowedOrigins),
		maxBytesMiddleware(maxBodyBytes),
	)
}

// handleHealth returns a health check response, pinging the store.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if err := s.store.Ping(); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "error", "detail": "db unreachable"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleMetrics returns a snapshot of server metrics.
func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.metrics.Snapshot())
}
