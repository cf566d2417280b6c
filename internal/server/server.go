package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"
	"golang.org/x/sync/errgroup"

	"example.com/assethttp/internal/config"
	"example.com/assethttp/internal/logger"
	"example.com/assethttp/internal/util"
)

// Server manages the HTTP server lifecycle: listening socket, request
// serving and graceful shutdown.
type Server struct {
	cfg        *config.Config
	log        *logger.Logger
	httpServer *http.Server

	mu       sync.Mutex
	listener net.Listener
	ready    chan struct{}
}

// NewServer creates a new Server instance. handler is wrapped with the access
// log and CORS middleware, and with h2c when enabled.
func NewServer(cfg *config.Config, lg *logger.Logger, handler http.Handler) (*Server, error) {
	if cfg == nil || cfg.Server == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}
	if lg == nil {
		return nil, fmt.Errorf("logger cannot be nil")
	}
	if handler == nil {
		return nil, fmt.Errorf("handler cannot be nil")
	}

	h := WithAccessLog(lg, WithCORS(handler))
	if cfg.Server.H2C() {
		h = h2c.NewHandler(h, &http2.Server{})
	}

	return &Server{
		cfg: cfg,
		log: lg,
		httpServer: &http.Server{
			Handler:           h,
			ReadHeaderTimeout: cfg.Server.HeaderTimeout(),
		},
		ready: make(chan struct{}),
	}, nil
}

// Ready is closed once the listener is bound.
func (s *Server) Ready() <-chan struct{} {
	return s.ready
}

// Addr returns the bound listener address, or nil before Start has bound it.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// Start binds the listener and serves until ctx is cancelled or the process
// receives SIGINT/SIGTERM, then shuts down gracefully. It returns nil after a
// clean shutdown.
func (s *Server) Start(ctx context.Context) error {
	ln, err := util.Listen(*s.cfg.Server.Address)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.listener = ln
	s.mu.Unlock()
	close(s.ready)

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := s.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("serve on %s: %w", ln.Addr(), err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		s.log.Info("Shutting down server", logger.LogFields{"timeout": s.cfg.Server.ShutdownTimeout().String()})
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.Server.ShutdownTimeout())
		defer cancel()
		if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("graceful shutdown: %w", err)
		}
		return nil
	})
	return g.Wait()
}
