// Package server provides HTTP server lifecycle management and the route tree.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os/signal"
	"strconv"
	"sync"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"
)

// ShutdownFunc stops a component, giving up when ctx expires.
type ShutdownFunc func(ctx context.Context) error

// Options configures the HTTP server.
type Options struct {
	Port            int
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
}

type component struct {
	name string
	run  func(ctx context.Context) error
	stop ShutdownFunc
}

// Server runs the HTTP listener next to background components and stops them
// in reverse registration order once the listener has drained.
type Server struct {
	http            *http.Server
	shutdownTimeout time.Duration
	logger          *slog.Logger

	mu         sync.Mutex
	components []component
}

// New creates a Server for handler.
func New(handler http.Handler, opts Options, logger *slog.Logger) *Server {
	return &Server{
		http: &http.Server{
			Addr:              net.JoinHostPort("", strconv.Itoa(opts.Port)),
			Handler:           handler,
			ReadTimeout:       opts.ReadTimeout,
			ReadHeaderTimeout: opts.ReadTimeout,
			WriteTimeout:      opts.WriteTimeout,
			IdleTimeout:       2 * opts.ReadTimeout,
		},
		shutdownTimeout: opts.ShutdownTimeout,
		logger:          logger,
	}
}

// OnShutdown registers fn to run after the HTTP server stops. Components
// registered first are stopped last.
func (s *Server) OnShutdown(name string, fn ShutdownFunc) {
	s.register(component{name: name, stop: fn})
}

// Go registers a background component. run starts when the server starts
// serving and receives a context cancelled at shutdown. If run fails the
// server shuts down and Serve reports the error. stop may be nil.
func (s *Server) Go(name string, run func(ctx context.Context) error, stop ShutdownFunc) {
	s.register(component{name: name, run: run, stop: stop})
}

func (s *Server) register(c component) {
	s.mu.Lock()
	s.components = append(s.components, c)
	s.mu.Unlock()
}

// Run listens on the configured port and serves until SIGINT, SIGTERM or
// ctx is done.
func (s *Server) Run(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	ln, err := net.Listen("tcp", s.http.Addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", s.http.Addr, err)
	}
	return s.Serve(ctx, ln)
}

// Serve accepts connections on ln until ctx is done or a component fails,
// then shuts everything down within the shutdown timeout.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	s.mu.Lock()
	components := append([]component(nil), s.components...)
	s.mu.Unlock()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		s.logger.Info("server starting", "addr", ln.Addr().String())
		if err := s.http.Serve(ln); !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	for _, c := range components {
		if c.run == nil {
			continue
		}
		g.Go(func() error {
			if err := c.run(gctx); err != nil && !errors.Is(err, context.Canceled) {
				return fmt.Errorf("%s: %w", c.name, err)
			}
			return nil
		})
	}

	<-gctx.Done()
	if ctx.Err() != nil {
		s.logger.Info("shutdown signal received", "cause", context.Cause(ctx))
	}

	shutdownErr := s.shutdown(components)
	return errors.Join(g.Wait(), shutdownErr)
}

func (s *Server) shutdown(components []component) error {
	ctx, cancel := context.WithTimeout(context.Background(), s.shutdownTimeout)
	defer cancel()

	s.logger.Info("stopping HTTP server", "timeout", s.shutdownTimeout)
	s.http.SetKeepAlivesEnabled(false)

	var errs []error
	if err := s.http.Shutdown(ctx); err != nil {
		s.logger.Error("HTTP server shutdown failed", "error", err)
		errs = append(errs, fmt.Errorf("http server: %w", err))
	}

	for i := len(components) - 1; i >= 0; i-- {
		c := components[i]
		if c.stop == nil {
			continue
		}
		start := time.Now()
		if err := c.stop(ctx); err != nil {
			s.logger.Error("component shutdown failed", "name", c.name, "error", err)
			errs = append(errs, fmt.Errorf("%s: %w", c.name, err))
			continue
		}
		s.logger.Info("component stopped", "name", c.name, "duration", time.Since(start))
	}

	if err := errors.Join(errs...); err != nil {
		return err
	}
	s.logger.Info("server stopped gracefully")
	return nil
}

// Addr returns the configured listen address.
func (s *Server) Addr() string {
	return s.http.Addr
}
