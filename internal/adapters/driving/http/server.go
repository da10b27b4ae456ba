package http

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"time"

	"github.com/jdrouet/tekitoi/internal/core/ports/driving"
)

// Pinger is a simple health check interface
type Pinger interface {
	Ping(ctx context.Context) error
}

// Server represents the HTTP server
type Server struct {
	httpServer *http.Server
	router     *http.ServeMux
	handler    http.Handler
	version    string

	authorization driving.AuthorizationService

	// Backends checked by /api/status, by name
	pingers map[string]Pinger
}

// Config holds server configuration
type Config struct {
	Host        string
	Port        int
	Version     string
	CORSOrigins []string

	// Logger receives request logs (default: slog.Default())
	Logger *slog.Logger
}

// DefaultConfig returns sensible defaults
func DefaultConfig() Config {
	return Config{
		Host:    "0.0.0.0",
		Port:    8080,
		Version: "dev",
	}
}

// NewServer creates a new HTTP server
func NewServer(
	cfg Config,
	authorization driving.AuthorizationService,
	pingers map[string]Pinger, // can be nil
) *Server {
	s := &Server{
		router:        http.NewServeMux(),
		version:       cfg.Version,
		authorization: authorization,
		pingers:       pingers,
	}

	s.setupRoutes()

	var handler http.Handler = s.router
	if len(cfg.CORSOrigins) > 0 {
		handler = NewCORSMiddleware(cfg.CORSOrigins).Handler(handler)
	}
	handler = NewLoggingMiddleware(cfg.Logger).Handler(handler)
	handler = NewRequestIDMiddleware().Handler(handler)
	s.handler = NewRecoveryMiddleware(cfg.Logger).Handler(handler)

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Handler:      s.handler,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	return s
}

// setupRoutes configures all HTTP routes
func (s *Server) setupRoutes() {
	// Health endpoints
	s.router.HandleFunc("GET /health", s.handleHealth)
	s.router.HandleFunc("GET /version", s.handleVersion)
	s.router.HandleFunc("GET /api/status", s.handleStatus)

	// Browser facing flow
	s.router.HandleFunc("GET /authorize", s.handleAuthorize)
	s.router.HandleFunc("GET /authorize/{kind}/login", s.handleLocalLogin)
	s.router.HandleFunc("POST /authorize/{kind}/login", s.handleLocalLogin)
	s.router.HandleFunc("GET /api/authorize/{requestId}/{providerId}", s.handleProviderRedirect)

	// Callback is public - receives redirects from upstream providers
	s.router.HandleFunc("GET /api/redirect", s.handleProviderCallback)

	// Relying application back channel
	s.router.HandleFunc("POST /api/access-token", s.handleAccessToken)
	s.router.HandleFunc("GET /api/user-info", s.handleUserInfo)
	s.router.HandleFunc("GET /api/user", s.handleUserInfo)
}

// Handler returns the router wrapped with the middleware chain
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Run serves until ctx is cancelled, then shuts down gracefully
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		log.Printf("Starting server on %s", s.httpServer.Addr)
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err, ok := <-errCh:
		if ok {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	log.Println("Shutting down server...")

	// Create shutdown context with timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	log.Println("Server stopped")
	return nil
}

// Stop stops the server
func (s *Server) Stop(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}
