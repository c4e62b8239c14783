// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package adminhttp implements the additive, read-only admin HTTP surface
// described in SPEC_FULL.md's DOMAIN STACK expansion: a health probe, a
// pprof mount for live diagnostics, and a websocket tail of recent log
// lines. It never accepts control-plane commands; that stays on the raw
// NDJSON listener in internal/gateway. Grounded on router.go's gorilla/mux
// setup and terminal.go's single-writer websocket pattern.
package adminhttp

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/pprof"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"

	"github.com/groupsio/harnessd/internal/ptysession"
	"github.com/groupsio/harnessd/internal/store"
)

// Options configures a Server.
type Options struct {
	Store    *store.Store
	Sessions *ptysession.Manager
	Version  string
	TailLog  *TailBuffer
}

// Server is the admin HTTP surface's http.Handler.
type Server struct {
	router   *mux.Router
	store    *store.Store
	sessions *ptysession.Manager
	version  string
	tail     *TailBuffer
	upgrader websocket.Upgrader
}

// NewServer builds the admin router.
func NewServer(opts Options) *Server {
	s := &Server{
		router:   mux.NewRouter(),
		store:    opts.Store,
		sessions: opts.Sessions,
		version:  opts.Version,
		tail:     opts.TailLog,
		upgrader: websocket.Upgrader{ReadBufferSize: 1024, WriteBufferSize: 1024},
	}
	s.routes()
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) { s.router.ServeHTTP(w, r) }

func (s *Server) routes() {
	s.router.HandleFunc("/healthz", s.handleHealthz).Methods(http.MethodGet)
	s.router.HandleFunc("/admin/sessions", s.handleSessions).Methods(http.MethodGet)
	s.router.HandleFunc("/admin/tail", s.handleTail)

	debug := s.router.PathPrefix("/debug/pprof").Subrouter()
	debug.HandleFunc("/", pprof.Index)
	debug.HandleFunc("/cmdline", pprof.Cmdline)
	debug.HandleFunc("/profile", pprof.Profile)
	debug.HandleFunc("/symbol", pprof.Symbol)
	debug.HandleFunc("/trace", pprof.Trace)
	debug.PathPrefix("/").Handler(http.DefaultServeMux)
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]interface{}{
		"ok":      true,
		"version": s.version,
	})
}

func (s *Server) handleSessions(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]interface{}{
		"sessions": s.sessions.List(false),
	})
}

// handleTail upgrades to a websocket and streams recently appended log
// lines, then closes once the buffer is drained — it is a point-in-time
// snapshot tail, not a live follow (DESIGN.md "admin tail scope").
func (s *Server) handleTail(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	var writeMu sync.Mutex
	if s.tail != nil {
		for _, line := range s.tail.Lines() {
			writeMu.Lock()
			err := conn.WriteMessage(websocket.TextMessage, []byte(line))
			writeMu.Unlock()
			if err != nil {
				return
			}
		}
	}
	_ = conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
}

// Shutdown is a no-op placeholder satisfying the same shape as the rest
// of the daemon's shutdown fan-out; the admin surface has no long-lived
// state of its own beyond the http.Server wrapping this handler.
func (s *Server) Shutdown(ctx context.Context) error { return nil }
