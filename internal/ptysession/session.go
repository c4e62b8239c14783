// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package ptysession

import (
	"io"
	"log"
	"os"
	"os/exec"
	"sync"
	"syscall"
	"time"

	"github.com/creack/pty"

	"github.com/groupsio/harnessd/internal/protocol"
)

// Session is a live PTY-backed process plus its output ring and control
// state (GLOSSARY "Session"). Each Session owns its own lock, following
// claude.Session's per-session mutex (SPEC_FULL.md §4.4 expansion).
type Session struct {
	mu sync.Mutex

	id        string
	cmd       *exec.Cmd
	ptmx      *os.File
	ring      *Ring
	startedAt time.Time

	state SessionState
	live  bool

	subscribers      map[chan OutputEvent]struct{}
	eventSubscribers map[chan SessionEvent]struct{}

	controller *Controller

	lastExit *protocol.ExitInfo
	exited   chan struct{}

	closed bool
}

func newSession(id string, ringCap int) *Session {
	return &Session{
		id:               id,
		ring:             NewRing(ringCap),
		state:            StateSpawning,
		subscribers:      make(map[chan OutputEvent]struct{}),
		eventSubscribers: make(map[chan SessionEvent]struct{}),
		exited:           make(chan struct{}),
		startedAt:        time.Now(),
	}
}

// start spawns cmd under a PTY sized cols×rows and begins the reader
// loop. Grounded on handlers/terminal.go's handleRemoteTerminal, which
// spawns directly with pty.Start rather than through tmux.
func (s *Session) start(cmd *exec.Cmd, cols, rows int, onExit func(*Session), onOutput func(OutputEvent)) error {
	ptmx, err := pty.Start(cmd)
	if err != nil {
		return err
	}
	if cols > 0 && rows > 0 {
		pty.Setsize(ptmx, &pty.Winsize{Rows: uint16(rows), Cols: uint16(cols)})
	}

	s.mu.Lock()
	s.cmd = cmd
	s.ptmx = ptmx
	s.state = StateRunning
	s.live = true
	s.mu.Unlock()

	go s.readLoop(onOutput)
	go s.waitLoop(onExit)
	return nil
}

func (s *Session) readLoop(onOutput func(OutputEvent)) {
	buf := make([]byte, 32*1024)
	for {
		n, err := s.ptmx.Read(buf)
		if n > 0 {
			chunk := append([]byte(nil), buf[:n]...)
			cursor := s.ring.Append(chunk)
			ev := OutputEvent{SessionID: s.id, Cursor: cursor, Data: chunk}
			s.broadcastOutput(ev)
			if onOutput != nil {
				onOutput(ev)
			}
		}
		if err != nil {
			if err != io.EOF {
				log.Printf("ptysession[%s]: read error: %v", s.id, err)
			}
			return
		}
	}
}

func (s *Session) waitLoop(onExit func(*Session)) {
	err := s.cmd.Wait()
	s.mu.Lock()
	s.live = false
	s.state = StateExited
	s.lastExit = exitInfoFromError(s.cmd, err)
	close(s.exited)
	s.mu.Unlock()
	if onExit != nil {
		onExit(s)
	}
}

// exitInfoFromError reports exactly one of code/signal, per spec §6.
func exitInfoFromError(cmd *exec.Cmd, err error) *protocol.ExitInfo {
	if cmd.ProcessState == nil {
		msg := "SIGKILL"
		if err != nil {
			msg = err.Error()
		}
		return &protocol.ExitInfo{Signal: &msg}
	}
	if ws, ok := cmd.ProcessState.Sys().(syscall.WaitStatus); ok && ws.Signaled() {
		name := signalName(ws.Signal())
		return &protocol.ExitInfo{Signal: &name}
	}
	code := cmd.ProcessState.ExitCode()
	return &protocol.ExitInfo{Code: &code}
}

func (s *Session) broadcastOutput(ev OutputEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for ch := range s.subscribers {
		select {
		case ch <- ev:
		default:
		}
	}
}

func (s *Session) broadcastEvent(ev SessionEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for ch := range s.eventSubscribers {
		select {
		case ch <- ev:
		default:
		}
	}
}

func (s *Session) subscribeOutput() chan OutputEvent {
	ch := make(chan OutputEvent, 256)
	s.mu.Lock()
	s.subscribers[ch] = struct{}{}
	s.mu.Unlock()
	return ch
}

func (s *Session) unsubscribeOutput(ch chan OutputEvent) {
	s.mu.Lock()
	delete(s.subscribers, ch)
	s.mu.Unlock()
}

func (s *Session) subscribeEvents() chan SessionEvent {
	ch := make(chan SessionEvent, 64)
	s.mu.Lock()
	s.eventSubscribers[ch] = struct{}{}
	s.mu.Unlock()
	return ch
}

func (s *Session) unsubscribeEvents(ch chan SessionEvent) {
	s.mu.Lock()
	delete(s.eventSubscribers, ch)
	s.mu.Unlock()
}

func (s *Session) isLive() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.live
}

func (s *Session) summary() SessionSummary {
	s.mu.Lock()
	defer s.mu.Unlock()
	return SessionSummary{
		SessionID:    s.id,
		State:        s.state,
		Live:         s.live,
		Controller:   s.controller,
		LatestCursor: s.ring.End(),
		LastExit:     s.lastExit,
		StartedAt:    s.startedAt,
	}
}

// claim acquires or takes over the controller claim, holding the session
// lock throughout (spec §9 "Controller claims. Hold inside the session
// lock").
func (s *Session) claim(id, typ, label, reason string, takeover bool) (action string, previous *Controller, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.controller != nil && s.controller.ControllerID != id {
		if !takeover {
			return "", nil, newError(KindConflict, "session %q already claimed by %q", s.id, s.controller.ControllerID)
		}
		prev := *s.controller
		s.controller = &Controller{ControllerID: id, ControllerType: typ, ControllerLabel: label, ClaimedAt: time.Now()}
		return "taken-over", &prev, nil
	}
	s.controller = &Controller{ControllerID: id, ControllerType: typ, ControllerLabel: label, ClaimedAt: time.Now()}
	return "claimed", nil, nil
}

func (s *Session) release() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.controller = nil
}

func (s *Session) input(data []byte) error {
	s.mu.Lock()
	live := s.live
	ptmx := s.ptmx
	s.mu.Unlock()
	if !live || ptmx == nil {
		return newError(KindSessionNotLive, "session %q is not live", s.id)
	}
	_, err := ptmx.Write(data)
	return err
}

func (s *Session) resize(cols, rows int) error {
	s.mu.Lock()
	live := s.live
	ptmx := s.ptmx
	s.mu.Unlock()
	if !live || ptmx == nil {
		return newError(KindSessionNotLive, "session %q is not live", s.id)
	}
	return pty.Setsize(ptmx, &pty.Winsize{Rows: uint16(rows), Cols: uint16(cols)})
}

func (s *Session) signal(sig protocol.PTYSignal) error {
	s.mu.Lock()
	live := s.live
	cmd := s.cmd
	ptmx := s.ptmx
	s.mu.Unlock()
	if !live || cmd == nil || cmd.Process == nil {
		return newError(KindSessionNotLive, "session %q is not live", s.id)
	}
	if sig == protocol.SignalEOF {
		return ptmx.Close()
	}
	unixSig, ok := resolveSignal(sig)
	if !ok {
		return newError(KindInvalid, "unsupported signal %q", sig)
	}
	return cmd.Process.Signal(unixSig)
}

// terminate sends SIGTERM; it does not wait for exit (the caller's
// grace-window/kill escalation lives in Manager.Close and Manager.Shutdown).
func (s *Session) terminate() {
	s.mu.Lock()
	cmd := s.cmd
	s.mu.Unlock()
	if cmd != nil && cmd.Process != nil {
		cmd.Process.Signal(syscall.SIGTERM)
	}
}

// kill sends SIGKILL unconditionally.
func (s *Session) kill() {
	s.mu.Lock()
	cmd := s.cmd
	ptmx := s.ptmx
	s.mu.Unlock()
	if cmd != nil && cmd.Process != nil {
		cmd.Process.Signal(syscall.SIGKILL)
	}
	if ptmx != nil {
		ptmx.Close()
	}
}
