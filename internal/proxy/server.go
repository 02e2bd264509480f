package proxy

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"
)

// ErrServerClosed is returned by Serve after Shutdown or Close.
var ErrServerClosed = errors.New("proxy: server closed")

// Server accepts connections and relays each to the configured upstream.
//
// Shutdown stops accepting and lets active connections drain until its
// context expires, then force-closes whatever is left.
type Server struct {
	acceptor *Acceptor
	log      *zap.Logger

	// ctx is the parent of every pair; canceling it force-closes them.
	ctx    context.Context
	cancel context.CancelFunc

	active atomic.Int64
	wg     sync.WaitGroup

	mu        sync.Mutex
	listeners map[net.Listener]struct{}
	closed    bool
}

func NewServer(cfg Config) *Server {
	ctx, cancel := context.WithCancel(context.Background())
	s := &Server{
		acceptor:  NewAcceptor(cfg),
		log:       cfg.Logger,
		ctx:       ctx,
		cancel:    cancel,
		listeners: make(map[net.Listener]struct{}),
	}
	if s.log == nil {
		s.log = zap.NewNop()
	}
	return s
}

// Serve accepts connections on ln until it is closed. It returns nil when
// the listener was closed by Shutdown or Close.
func (s *Server) Serve(ln net.Listener) error {
	if !s.trackListener(ln) {
		return ErrServerClosed
	}
	defer s.untrackListener(ln)

	for {
		c, err := ln.Accept()
		if err != nil {
			if s.isClosed() || errors.Is(err, net.ErrClosed) {
				return nil
			}
			return fmt.Errorf("accept: %w", err)
		}

		if !s.startPair(c) {
			_ = c.Close()
			return nil
		}
	}
}

// Active returns the number of connections being relayed.
func (s *Server) Active() int64 {
	return s.active.Load()
}

// Shutdown closes all listeners and waits for active connections to finish.
// If ctx expires first, the remaining connections are closed and ctx's error
// is returned.
func (s *Server) Shutdown(ctx context.Context) error {
	s.closeListeners()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.cancel()
		return nil
	case <-ctx.Done():
		s.log.Warn("shutdown timed out, closing active connections", zap.Int64("active", s.Active()))
		s.cancel()
		<-done
		return ctx.Err()
	}
}

// Close closes all listeners and active connections immediately.
func (s *Server) Close() error {
	s.closeListeners()
	s.cancel()
	s.wg.Wait()
	return nil
}

func (s *Server) startPair(c net.Conn) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return false
	}

	s.active.Add(1)
	s.wg.Go(func() {
		defer s.active.Add(-1)
		_ = s.acceptor.Handle(s.ctx, c)
	})
	return true
}

func (s *Server) trackListener(ln net.Listener) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return false
	}
	s.listeners[ln] = struct{}{}
	return true
}

func (s *Server) untrackListener(ln net.Listener) {
	s.mu.Lock()
	delete(s.listeners, ln)
	s.mu.Unlock()
}

func (s *Server) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

func (s *Server) closeListeners() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.closed = true
	for ln := range s.listeners {
		_ = ln.Close()
	}
}
