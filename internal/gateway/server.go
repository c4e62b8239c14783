// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package gateway

import (
	"context"
	"log"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/groupsio/harnessd/internal/ptysession"
	"github.com/groupsio/harnessd/internal/store"
	"github.com/groupsio/harnessd/internal/subscribe"
)

// Options configures a Server.
type Options struct {
	AuthToken      string
	ShutdownGrace  time.Duration
	Store          *store.Store
	Sessions       *ptysession.Manager
	Mux            *subscribe.Multiplexer
}

// Server accepts control-plane connections and runs the per-connection
// state machine described in spec §4.6: awaiting-auth -> ready -> done.
// Grounded on TerminalHandler's accept-and-serve shape, generalized from
// one WebSocket endpoint to a raw net.Listener carrying NDJSON envelopes
// (spec §6 "TCP or Unix socket").
type Server struct {
	authToken     string
	shutdownGrace time.Duration

	dispatcher *Dispatcher
	sessions   *ptysession.Manager
	mux        *subscribe.Multiplexer

	mu          sync.Mutex
	conns       map[*conn]struct{}
	listener    net.Listener
	shuttingDown atomic.Bool

	wg sync.WaitGroup
}

// NewServer returns a ready-to-use Server.
func NewServer(opts Options) *Server {
	if opts.ShutdownGrace <= 0 {
		opts.ShutdownGrace = 10 * time.Second
	}
	return &Server{
		authToken:     opts.AuthToken,
		shutdownGrace: opts.ShutdownGrace,
		dispatcher:    &Dispatcher{Store: opts.Store, Sessions: opts.Sessions, Mux: opts.Mux},
		sessions:      opts.Sessions,
		mux:           opts.Mux,
		conns:         make(map[*conn]struct{}),
	}
}

// Serve accepts connections on l until ctx is cancelled or Shutdown is
// called. It blocks until the listener closes.
func (s *Server) Serve(ctx context.Context, l net.Listener) error {
	s.mu.Lock()
	s.listener = l
	s.mu.Unlock()

	go func() {
		<-ctx.Done()
		l.Close()
	}()

	for {
		nc, err := l.Accept()
		if err != nil {
			if s.shuttingDown.Load() {
				return nil
			}
			select {
			case <-ctx.Done():
				return nil
			default:
			}
			return err
		}
		c := newConn(s, nc)
		s.mu.Lock()
		s.conns[c] = struct{}{}
		s.mu.Unlock()

		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			c.serve()
			s.mu.Lock()
			delete(s.conns, c)
			s.mu.Unlock()
		}()
	}
}

// Shutdown drains every subscription, terminates PTY children, waits up
// to the configured grace window, then kills stragglers (spec §5 "global
// shutdown"). New commands on still-open connections are refused with
// shutting-down once this begins.
func (s *Server) Shutdown(ctx context.Context) {
	s.shuttingDown.Store(true)

	s.mu.Lock()
	l := s.listener
	conns := make([]*conn, 0, len(s.conns))
	for c := range s.conns {
		conns = append(conns, c)
	}
	s.mu.Unlock()

	if l != nil {
		l.Close()
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		s.sessions.Shutdown(gctx, s.shutdownGrace)
		return nil
	})
	for _, c := range conns {
		c := c
		g.Go(func() error {
			c.close()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		log.Printf("gateway: shutdown: %v", err)
	}

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(s.shutdownGrace):
	}
}

// IsShuttingDown reports whether Shutdown has begun.
func (s *Server) IsShuttingDown() bool { return s.shuttingDown.Load() }
