// Package server exposes the marketplace over HTTP and WebSocket. It is
// the stand-in for the browser surface: every operation a client performs
// goes through these routes.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/carmarket/carmarket/internal/domain"
	"github.com/carmarket/carmarket/internal/server/handler"
	"github.com/carmarket/carmarket/internal/server/middleware"
	"github.com/carmarket/carmarket/internal/server/ws"
)

// Config holds the HTTP server configuration.
type Config struct {
	Port        int
	CORSOrigins []string
	APIKey      string // if empty, authentication is disabled
	RateLimit   int    // requests per minute per client; 0 disables
}

// Handlers aggregates all HTTP handlers that the server needs to register.
// Activity may be nil when the activity log is disabled.
type Handlers struct {
	Health   *handler.HealthHandler
	Items    *handler.ItemsHandler
	Session  *handler.SessionHandler
	Activity *handler.ActivityHandler
}

// Server is the HTTP + WebSocket API server for the marketplace.
type Server struct {
	httpServer *http.Server
	mux        *http.ServeMux
	logger     *slog.Logger
}

// NewServer creates a new Server with all routes registered on the
// ServeMux and the middleware chain (rate limiting, auth, logging, CORS)
// wired up. The rate limiter may be nil.
func NewServer(cfg Config, handlers Handlers, wsHub *ws.Hub, limiter domain.RateLimiter, logger *slog.Logger) *Server {
	mux := http.NewServeMux()

	// Health check (no auth required).
	mux.HandleFunc("GET /api/health", handlers.Health.HealthCheck)

	// Listing endpoints.
	mux.HandleFunc("GET /api/items", handlers.Items.ListItems)
	mux.HandleFunc("GET /api/items/{id}", handlers.Items.GetItem)
	mux.HandleFunc("GET /api/items/totals", handlers.Items.GetTotals)
	mux.HandleFunc("POST /api/items", handlers.Items.CreateItem)
	mux.HandleFunc("POST /api/items/refresh", handlers.Items.RefreshItems)
	mux.HandleFunc("POST /api/items/{id}/purchase", handlers.Items.PurchaseItem)

	// Wallet session endpoints.
	mux.HandleFunc("POST /api/session", handlers.Session.Connect)
	mux.HandleFunc("GET /api/session", handlers.Session.GetSession)
	mux.HandleFunc("DELETE /api/session", handlers.Session.Disconnect)
	mux.HandleFunc("POST /api/session/account", handlers.Session.SelectAccount)
	mux.HandleFunc("GET /api/session/stats", handlers.Session.GetStats)

	// Activity log.
	if handlers.Activity != nil {
		mux.HandleFunc("GET /api/activity", handlers.Activity.ListRecent)
	}

	// WebSocket endpoint.
	if wsHub != nil {
		mux.HandleFunc("GET /ws", wsHub.HandleWS)
	}

	// Build the middleware chain, innermost first.
	var h http.Handler = mux
	h = middleware.Auth(cfg.APIKey)(h)
	if limiter != nil && cfg.RateLimit > 0 {
		h = middleware.RateLimit(limiter, cfg.RateLimit, time.Minute)(h)
	}
	h = middleware.Logging(logger)(h)
	h = middleware.CORS(cfg.CORSOrigins)(h)

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      h,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 120 * time.Second, // writes block on chain inclusion
		IdleTimeout:  60 * time.Second,
	}

	return &Server{
		httpServer: srv,
		mux:        mux,
		logger:     logger,
	}
}

// Start begins listening for HTTP requests. It blocks until the server
// encounters an error or is shut down.
func (s *Server) Start() error {
	s.logger.Info("server: starting",
		slog.String("addr", s.httpServer.Addr),
	)
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server: listen: %w", err)
	}
	return nil
}

// Shutdown gracefully shuts down the server, waiting for in-flight
// requests to complete within the given context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("server: shutting down")
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("server: shutdown: %w", err)
	}
	return nil
}
