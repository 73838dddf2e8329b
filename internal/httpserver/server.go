// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Plant Logger Contributors

// Package httpserver runs an http.Handler on a TCP listener with a
// start/stop lifecycle shared by the public and the observability endpoints.
package httpserver

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/samber/oops"
)

// Option configures a Server.
type Option func(*Server)

// WithTimeouts sets the read, write, and idle timeouts. Zero leaves the
// corresponding limit unset.
func WithTimeouts(read, write, idle time.Duration) Option {
	return func(s *Server) {
		s.readTimeout, s.writeTimeout, s.idleTimeout = read, write, idle
	}
}

// WithLogger sets the lifecycle logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) { s.logger = logger }
}

// Server is a restartable HTTP listener. The zero value is not usable.
type Server struct {
	name    string
	addr    string
	handler http.Handler
	logger  *slog.Logger

	readTimeout  time.Duration
	writeTimeout time.Duration
	idleTimeout  time.Duration

	mu       sync.Mutex
	listener net.Listener
	srv      *http.Server
}

// New returns a Server named name (used in logs and error context).
func New(name, addr string, handler http.Handler, opts ...Option) *Server {
	s := &Server{
		name:    name,
		addr:    addr,
		handler: handler,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start binds the address and serves in the background. The returned
// channel yields at most one serve failure and is closed once serving ends.
func (s *Server) Start() (<-chan error, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.srv != nil {
		return nil, oops.Code("HTTP_SERVER_RUNNING").With("server", s.name).Errorf("%s server already running", s.name)
	}

	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return nil, oops.Code("HTTP_LISTEN_FAILED").With("server", s.name).With("addr", s.addr).Wrap(err)
	}

	srv := &http.Server{
		Handler:           s.handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       s.readTimeout,
		WriteTimeout:      s.writeTimeout,
		IdleTimeout:       s.idleTimeout,
	}
	s.listener, s.srv = ln, srv

	failures := make(chan error, 1)
	go s.serve(srv, ln, failures)

	s.logger.Info("server listening", "server", s.name, "addr", ln.Addr().String())
	return failures, nil
}

func (s *Server) serve(srv *http.Server, ln net.Listener, failures chan<- error) {
	defer close(failures)
	err := srv.Serve(ln)
	if err == nil || errors.Is(err, http.ErrServerClosed) {
		return
	}
	s.logger.Error("server failed", "server", s.name, "error", err)
	failures <- err
}

// Stop drains in-flight requests until ctx ends. Stopping a server that
// is not running is a no-op.
func (s *Server) Stop(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.srv == nil {
		return nil
	}
	if err := s.srv.Shutdown(ctx); err != nil {
		return oops.Code("HTTP_SHUTDOWN_FAILED").With("server", s.name).Wrap(err)
	}
	s.srv = nil
	s.logger.Info("server stopped", "server", s.name)
	return nil
}

// Addr returns the bound address, or "" before the first Start.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}
