// Package server wires the api runtime and HTTP lifecycle.
package server

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"

	"github.com/earnpro/referralpro/internal/platform/timeouts"
	"github.com/earnpro/referralpro/internal/services/api/rest"
	"github.com/earnpro/referralpro/internal/services/referral/domain"
	referralsqlite "github.com/earnpro/referralpro/internal/services/referral/storage/sqlite"
)

// Server hosts the read-only referral HTTP API and storage lifecycle.
type Server struct {
	listener   net.Listener
	httpServer *http.Server
	store      *referralsqlite.Store
}

// New creates a configured api server for the provided address.
func New(addr string, dbPath string, allowedOrigins []string) (*Server, error) {
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("listen on %s: %w", addr, err)
	}
	store, err := referralsqlite.Open(dbPath)
	if err != nil {
		_ = listener.Close()
		return nil, fmt.Errorf("open referral store: %w", err)
	}

	// The api surface never claims rewards, so no invite link creator.
	engine := domain.NewEngine(store, nil)
	httpServer := &http.Server{
		Handler:           rest.NewHandler(engine, allowedOrigins),
		ReadHeaderTimeout: timeouts.ReadHeader,
	}
	return &Server{
		listener:   listener,
		httpServer: httpServer,
		store:      store,
	}, nil
}

// Addr returns the listener address for the server.
func (s *Server) Addr() string {
	if s == nil || s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Run creates and serves an api server until context cancellation.
func Run(ctx context.Context, addr string, dbPath string, allowedOrigins []string) error {
	server, err := New(addr, dbPath, allowedOrigins)
	if err != nil {
		return err
	}
	return server.Serve(ctx)
}

// Serve starts the HTTP server until context cancellation.
func (s *Server) Serve(ctx context.Context) error {
	if s == nil {
		return errors.New("server is nil")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	defer s.Close()

	log.Printf("api server listening at %v", s.listener.Addr())
	serveErr := make(chan error, 1)
	go func() {
		serveErr <- s.httpServer.Serve(s.listener)
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), timeouts.Shutdown)
		defer cancel()
		if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown http server: %w", err)
		}
		err := <-serveErr
		if err == nil || errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("serve http: %w", err)
	case err := <-serveErr:
		if err == nil || errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("serve http: %w", err)
	}
}

// Close releases api server resources.
func (s *Server) Close() {
	if s == nil {
		return
	}
	if s.httpServer != nil {
		_ = s.httpServer.Close()
	}
	if s.store != nil {
		_ = s.store.Close()
	}
	if s.listener != nil {
		_ = s.listener.Close()
	}
}
