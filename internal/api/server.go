// Package api exposes the embedding store over a JSON HTTP API.
package api

import (
	"errors"
	"net/http"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ragstore/ragstore/internal/log"
)

// ServerConfig contains configuration for creating the API server.
type ServerConfig struct {
	Logger   log.Logger
	Store    EmbeddingStore // Required
	Embedder Embedder       // Optional: nil disables server-side embedding
	Pool     *pgxpool.Pool  // Optional: nil makes /ready always fail

	// Bearer tokens. An empty WriteToken runs every request with full
	// capabilities; see tokenAuth.
	WriteToken string
	AdminToken string

	// Search defaults applied when a request leaves them unset.
	DefaultThreshold float64
	DefaultLimit     int
	MaxLimit         int

	TrustProxy bool   // Trust X-Real-IP/X-Forwarded-For headers (behind reverse proxy)
	RateBurst  int    // Rate limiter burst size per IP (0 = default 60)
	Version    string // Reported by GET /
}

// Server is the JSON API HTTP server.
type Server struct {
	mux *http.ServeMux
}

// NewServer creates a new API server with all routes configured.
func NewServer(cfg ServerConfig) (*Server, error) {
	if cfg.Store == nil {
		return nil, errors.New("embedding store is required")
	}

	logger := cfg.Logger
	if logger == nil {
		logger = log.NewNop()
	}

	auth := tokenAuth{writeToken: cfg.WriteToken, adminToken: cfg.AdminToken}
	if auth.permissive() {
		logger.Warn("no write token configured, running in permissive mode: every caller has full access")
	}

	eh := &embeddingHandler{
		store:            cfg.Store,
		embedder:         cfg.Embedder,
		defaultThreshold: cfg.DefaultThreshold,
		defaultLimit:     cfg.DefaultLimit,
		maxLimit:         cfg.MaxLimit,
		logger:           logger,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/v1/embeddings", eh.insert)
	mux.HandleFunc("DELETE /api/v1/embeddings/{id}", eh.deleteOne)
	mux.HandleFunc("POST /api/v1/embeddings/purge", eh.purge)
	mux.HandleFunc("POST /api/v1/search", eh.search)
	mux.HandleFunc("GET /api/v1/stats", eh.stats)

	// Rate limiter: per-IP token bucket (1 token/sec refill)
	burst := cfg.RateBurst
	if burst <= 0 {
		burst = 60
	}
	rl := newRateLimiter(1.0, burst)

	// Build middleware stack (outermost first):
	//   Recovery → RequestID → Logging → RateLimit → Auth → Routes
	// RequestID must be before Logging so request_id is available in log
	// attributes.
	var handler http.Handler = mux
	handler = authMiddleware(auth, logger)(handler)
	handler = rateLimitMiddleware(rl, cfg.TrustProxy, logger)(handler)
	handler = loggingMiddleware(logger)(handler)
	handler = requestIDMiddleware()(handler)
	handler = recoveryMiddleware(logger)(handler)

	// Health probes sit outside the middleware stack so rate limiting and
	// auth never interfere with orchestrator probes.
	hh := &healthHandler{pool: cfg.Pool, logger: logger}
	topMux := http.NewServeMux()
	topMux.HandleFunc("GET /{$}", hh.info(cfg.Version))
	topMux.HandleFunc("GET /health", hh.liveness)
	topMux.HandleFunc("GET /ready", hh.readiness)
	topMux.Handle("/", handler)

	return &Server{mux: topMux}, nil
}

// Handler returns the server as an http.Handler.
func (s *Server) Handler() http.Handler {
	return s.mux
}
