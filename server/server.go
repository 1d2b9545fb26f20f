// Package server runs a single root handler behind a TCP listener.
package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/jackdes93/webrunner/webapp"
)

var ErrNotStarted = errors.New("server not started")

const (
	defaultShutdownTimeout   = 5 * time.Second
	defaultReadHeaderTimeout = 10 * time.Second
)

// Handler is the root handler. It is started before the listener is bound
// and stopped after the listener is closed.
type Handler interface {
	http.Handler
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
	Dump(w io.Writer, indent string)
}

type Option func(*Server)

func WithHost(host string) Option {
	return func(s *Server) { s.host = host }
}

func WithLogger(l webapp.Logger) Option {
	return func(s *Server) { s.logger = l }
}

func WithShutdownTimeout(d time.Duration) Option {
	return func(s *Server) { s.shutdownTimeout = d }
}

type Server struct {
	host            string
	port            int
	shutdownTimeout time.Duration
	logger          webapp.Logger

	mu        sync.Mutex
	state     State
	handler   Handler
	listener  net.Listener
	srv       *http.Server
	startedAt time.Time
	done      chan struct{}
	stopped   chan struct{}
	serveErr  error
}

func New(port int, opts ...Option) *Server {
	s := &Server{port: port, shutdownTimeout: defaultShutdownTimeout}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = webapp.NopLogger()
	}
	return s
}

func (s *Server) SetHandler(h Handler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handler = h
}

func (s *Server) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Addr is the bound address, nil until Start succeeds.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// Start starts the handler, binds the port and serves in the background.
func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.state != StateCreated {
		st := s.state
		s.mu.Unlock()
		return fmt.Errorf("cannot start server in state %s", st)
	}
	if s.handler == nil {
		s.state = StateFailed
		s.mu.Unlock()
		return errors.New("no handler set")
	}
	s.state = StateStarting
	h := s.handler
	s.mu.Unlock()

	if err := h.Start(ctx); err != nil {
		s.fail()
		return err
	}

	addr := net.JoinHostPort(s.host, strconv.Itoa(s.port))
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		s.fail()
		if stopErr := h.Stop(ctx); stopErr != nil {
			return errors.Join(fmt.Errorf("listen %s: %w", addr, err), stopErr)
		}
		return fmt.Errorf("listen %s: %w", addr, err)
	}

	srv := &http.Server{Handler: h, ReadHeaderTimeout: defaultReadHeaderTimeout}
	done := make(chan struct{})

	s.mu.Lock()
	s.listener, s.srv, s.done = ln, srv, done
	s.stopped = make(chan struct{})
	s.startedAt = time.Now()
	s.state = StateRunning
	s.mu.Unlock()

	go func() {
		defer close(done)
		s.logger.Info("Started server on %s", ln.Addr())
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("server error: %v", err)
			s.mu.Lock()
			s.serveErr = err
			s.mu.Unlock()
		}
	}()
	return nil
}

func (s *Server) fail() {
	s.mu.Lock()
	s.state = StateFailed
	s.mu.Unlock()
}

// Join blocks until the server has stopped serving and the handler has been
// stopped. A serve failure stops the server before Join returns it.
func (s *Server) Join() error {
	s.mu.Lock()
	done, stopped := s.done, s.stopped
	s.mu.Unlock()
	if done == nil {
		return ErrNotStarted
	}
	<-done

	s.mu.Lock()
	serveErr := s.serveErr
	s.mu.Unlock()
	if serveErr != nil {
		if err := s.Stop(context.Background()); err != nil {
			return errors.Join(serveErr, err)
		}
		return serveErr
	}
	<-stopped
	return nil
}

// Stop closes the listener, waits for in-flight requests up to the shutdown
// timeout and stops the handler. Concurrent callers wait for the first one.
func (s *Server) Stop(ctx context.Context) error {
	s.mu.Lock()
	switch s.state {
	case StateRunning:
	case StateStopping:
		stopped := s.stopped
		s.mu.Unlock()
		<-stopped
		return nil
	case StateCreated:
		s.state = StateStopped
		s.mu.Unlock()
		return nil
	default:
		s.mu.Unlock()
		return nil
	}
	s.state = StateStopping
	srv, h, stopped := s.srv, s.handler, s.stopped
	s.mu.Unlock()
	defer close(stopped)

	s.logger.Info("Stopping server...")
	shutdownCtx, cancel := context.WithTimeout(ctx, s.shutdownTimeout)
	defer cancel()

	var errs []error
	if err := srv.Shutdown(shutdownCtx); err != nil {
		s.logger.Error("shutdown error: %v", err)
		errs = append(errs, err)
		_ = srv.Close()
	}
	if err := h.Stop(ctx); err != nil {
		errs = append(errs, err)
	}

	s.mu.Lock()
	s.state = StateStopped
	s.mu.Unlock()
	s.logger.Info("Server stopped")
	return errors.Join(errs...)
}

// Dump writes the server state followed by the handler's.
func (s *Server) Dump(w io.Writer) {
	s.mu.Lock()
	state, h, startedAt := s.state, s.handler, s.startedAt
	var addr string
	if s.listener != nil {
		addr = s.listener.Addr().String()
	} else {
		addr = net.JoinHostPort(s.host, strconv.Itoa(s.port))
	}
	s.mu.Unlock()

	fmt.Fprintf(w, "Server@%p state=%s\n", s, state)
	fmt.Fprintf(w, "+= connector http/1.1 %s\n", addr)
	if !startedAt.IsZero() {
		fmt.Fprintf(w, "+= started %s (uptime %s)\n", startedAt.Format(time.RFC3339), time.Since(startedAt).Round(time.Millisecond))
	}
	if h != nil {
		h.Dump(w, "")
	}
}
