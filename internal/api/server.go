// Package api exposes the question-answering pipeline over HTTP.
//
// Endpoints:
//   - POST /api/v1/ask    - answer a question within a session
//   - GET  /api/v1/search - raw similarity search over the catalog
//   - GET  /health        - liveness probe
//   - GET  /ready         - readiness probe (pings the database)
//
// Health probes sit outside the middleware stack so orchestrators can
// reach them without credentials and without consuming rate tokens.
package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/cardsage/cardsage/internal/log"
)

const (
	// DefaultAddr is the default address for the HTTP server.
	DefaultAddr = "127.0.0.1:8080"

	// ShutdownTimeout is the maximum time to wait for graceful shutdown.
	ShutdownTimeout = 10 * time.Second

	// ReadHeaderTimeout prevents Slowloris attacks (CWE-400).
	ReadHeaderTimeout = 10 * time.Second

	// ReadTimeout is the maximum duration for reading the entire request.
	ReadTimeout = 30 * time.Second

	// WriteTimeout is the maximum duration for writing the response.
	// Generation calls can take a while, so this is generous.
	WriteTimeout = 120 * time.Second

	// IdleTimeout is the keep-alive limit between requests.
	IdleTimeout = 120 * time.Second
)

// ServerConfig contains configuration for creating the API server.
type ServerConfig struct {
	Logger     log.Logger
	Pipeline   Asker         // Required
	Catalog    Searcher      // Required
	Pool       *pgxpool.Pool // Optional: nil reports not-ready on /ready
	TrustProxy bool          // Trust X-Real-IP/X-Forwarded-For headers
	RateBurst  int           // Rate limiter burst size per IP (0 = default 60)
}

// Server is the JSON API HTTP server.
type Server struct {
	mux *http.ServeMux
}

// NewServer creates a new API server with all routes configured.
func NewServer(cfg ServerConfig) (*Server, error) {
	if cfg.Pipeline == nil {
		return nil, errors.New("pipeline is required")
	}
	if cfg.Catalog == nil {
		return nil, errors.New("catalog is required")
	}

	logger := cfg.Logger
	if logger == nil {
		logger = log.NewNop()
	}

	ah := &askHandler{pipeline: cfg.Pipeline, logger: logger}
	sh := &searchHandler{catalog: cfg.Catalog, logger: logger}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/v1/ask", ah.ask)
	mux.HandleFunc("GET /api/v1/search", sh.search)

	// Rate limiter: per-IP token bucket (1 token/sec refill)
	burst := cfg.RateBurst
	if burst <= 0 {
		burst = 60
	}
	rl := newRateLimiter(1.0, burst)

	// Build middleware stack (outermost first):
	//   Recovery → RequestID → Logging → RateLimit → Auth → Session → Routes
	// Auth runs after rate limiting so unauthenticated floods still
	// burn tokens, and before session resolution so rejected requests
	// never allocate a session.
	var handler http.Handler = mux
	handler = sessionMiddleware()(handler)
	handler = authMiddleware(logger)(handler)
	handler = rateLimitMiddleware(rl, cfg.TrustProxy, logger)(handler)
	handler = loggingMiddleware(logger)(handler)
	handler = requestIDMiddleware()(handler)
	handler = recoveryMiddleware(logger)(handler)

	// Top-level mux separates health probes from the middleware stack.
	topMux := http.NewServeMux()
	topMux.HandleFunc("GET /health", health)
	topMux.Handle("GET /ready", readiness(cfg.Pool, logger))
	topMux.Handle("/", handler)

	return &Server{mux: topMux}, nil
}

// Handler returns the server as an http.Handler.
func (s *Server) Handler() http.Handler {
	return s.mux
}

// Run starts the HTTP server and blocks until the context is cancelled,
// then shuts down gracefully.
func (s *Server) Run(ctx context.Context, addr string, logger log.Logger) error {
	if addr == "" {
		addr = DefaultAddr
	}
	if logger == nil {
		logger = log.NewNop()
	}

	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: ReadHeaderTimeout,
		ReadTimeout:       ReadTimeout,
		WriteTimeout:      WriteTimeout,
		IdleTimeout:       IdleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("starting HTTP server", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutting down HTTP server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), ShutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
