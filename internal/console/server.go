// Package console serves the admin console's API. Every feature route runs
// with the server-side session attached to the inbound request.
package console

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/florianilch/marketdesk/internal/marketplace"
	"github.com/florianilch/marketdesk/internal/observability/middleware"
	"github.com/florianilch/marketdesk/internal/session"
)

// Server is the console HTTP server.
type Server struct {
	handler  http.Handler
	server   *http.Server
	services *marketplace.Services
	auth     *marketplace.Auth
	sessions *session.Manager
	logger   *slog.Logger
}

// Compile-time check that Server implements http.Handler
var _ http.Handler = (*Server)(nil)

// New creates a console server for the given feature services and session manager.
func New(services *marketplace.Services, auth *marketplace.Auth, sessions *session.Manager) (*Server, error) {
	if services == nil || auth == nil || sessions == nil {
		return nil, errors.New("console requires services, auth and a session manager")
	}

	s := &Server{
		services: services,
		auth:     auth,
		sessions: sessions,
		logger:   slog.Default(),
	}

	mux := http.NewServeMux()
	s.routes(mux)

	s.handler = middleware.Chain(mux,
		middleware.Logging(s.logger),
		middleware.Recovery,
		sessions.Middleware,
	)

	return s, nil
}

// ServeHTTP implements http.Handler interface
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.handler.ServeHTTP(w, r)
}

// Start starts the HTTP server in the background and returns immediately.
// Returns a channel for runtime errors and a startup error if any.
//
// Startup errors (port in use, permission denied) are returned immediately.
// Runtime errors (network failures during operation) are sent to the error channel.
//
// The caller is responsible for calling Shutdown() to stop the server.
func (s *Server) Start(ctx context.Context, address string) (<-chan error, error) {
	listener, err := net.Listen("tcp", address)
	if err != nil {
		return nil, fmt.Errorf("failed to listen on %s: %w", address, err)
	}

	s.server = &http.Server{
		Handler:      s,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 2 * time.Minute, // covers one API call, a refresh and the retry
		IdleTimeout:  90 * time.Second,
		BaseContext: func(net.Listener) context.Context {
			return ctx
		},
	}

	errCh := make(chan error, 1)

	go func() {
		err := s.server.Serve(listener)
		// Only report error if not from graceful shutdown
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	return errCh, nil
}

// Shutdown performs graceful shutdown of the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}

	if err := s.server.Shutdown(ctx); err != nil {
		_ = s.server.Close()
		return fmt.Errorf("graceful shutdown failed: %w", err)
	}

	return nil
}
