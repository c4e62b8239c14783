// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package ptysession

import (
	"context"
	"encoding/base64"
	"log"
	"os/exec"
	"sync"
	"time"

	"github.com/groupsio/harnessd/internal/protocol"
	"github.com/groupsio/harnessd/internal/store"
)

// Manager owns every live session: a lock-guarded map of *Session plus the
// collaborators that derive spawn specs and publish observed events
// (spec §4.4). It mirrors claude.Manager's shape (SPEC_FULL.md §4.4
// expansion): a sync.Mutex-guarded session table and a Shutdown that
// terminates every running process.
type Manager struct {
	mu       sync.Mutex
	sessions map[string]*Session

	ringCap   int
	graceTTL  time.Duration
	builder   ProcessBuilder
	publisher Publisher
	reducer   StatusReducer
	now       func() time.Time
}

// Options configures a Manager.
type Options struct {
	RingBytes     int
	ExitGraceTTL  time.Duration
	Builder       ProcessBuilder
	Publisher     Publisher
	// Reducer is the Status Reducer collaborator (spec §4.4, §9). If
	// nil, ReportTelemetry/ReportTelemetryJSON are no-ops.
	Reducer StatusReducer
}

// NewManager returns a ready-to-use Manager.
func NewManager(opts Options) *Manager {
	if opts.RingBytes <= 0 {
		opts.RingBytes = 1 << 20
	}
	if opts.ExitGraceTTL <= 0 {
		opts.ExitGraceTTL = 10 * time.Minute
	}
	return &Manager{
		sessions:  make(map[string]*Session),
		ringCap:   opts.RingBytes,
		graceTTL:  opts.ExitGraceTTL,
		builder:   opts.Builder,
		publisher: opts.Publisher,
		reducer:   opts.Reducer,
		now:       time.Now,
	}
}

// StartParams are the arguments to pty.start.
type StartParams struct {
	SessionID    string
	AgentType    string
	AdapterState map[string]interface{}
	Cols, Rows   int
}

// StartResult is the response to pty.start.
type StartResult struct {
	SessionID           string
	RecoveredDuplicateStart bool
}

// Start spawns a session, or returns the existing one unchanged if it is
// already alive (spec §4.4 "Spawn or attach-to-existing").
func (m *Manager) Start(ctx context.Context, p StartParams) (StartResult, error) {
	m.mu.Lock()
	if existing, ok := m.sessions[p.SessionID]; ok && existing.isLive() {
		m.mu.Unlock()
		return StartResult{SessionID: p.SessionID, RecoveredDuplicateStart: true}, nil
	}
	m.mu.Unlock()

	spec, err := m.builder.Build(p.AgentType, p.AdapterState, p.Cols, p.Rows)
	if err != nil {
		return StartResult{}, newError(KindInvalid, "build spawn spec: %v", err)
	}

	cmd := exec.CommandContext(context.Background(), spec.Command, spec.Args...)
	cmd.Dir = spec.Cwd
	cmd.Env = spec.Env

	sess := newSession(p.SessionID, m.ringCap)

	m.mu.Lock()
	m.sessions[p.SessionID] = sess
	m.mu.Unlock()

	if err := sess.start(cmd, p.Cols, p.Rows, m.onExit, m.onOutput); err != nil {
		m.mu.Lock()
		delete(m.sessions, p.SessionID)
		m.mu.Unlock()
		return StartResult{}, newError(KindInvalid, "spawn failed: %v", err)
	}

	log.Printf("ptysession[%s]: started %s", p.SessionID, spec.Command)
	return StartResult{SessionID: p.SessionID}, nil
}

func (m *Manager) get(sessionID string) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[sessionID]
	if !ok {
		return nil, newError(KindNotFound, "session %q not found", sessionID)
	}
	return s, nil
}

// AttachResult is the response to pty.attach.
type AttachResult struct {
	LatestCursor int64
	Truncated    bool
	Backlog      []byte
	Output       chan OutputEvent
}

// Attach subscribes the caller to a session's output, returning any
// retained backlog since sinceCursor (spec §4.4 pty.attach, §8 scenario e).
func (m *Manager) Attach(sessionID string, sinceCursor int64) (AttachResult, error) {
	s, err := m.get(sessionID)
	if err != nil {
		return AttachResult{}, err
	}
	data, truncated := s.ring.ReadSince(sinceCursor)
	ch := s.subscribeOutput()
	return AttachResult{
		LatestCursor: s.ring.End(),
		Truncated:    truncated,
		Backlog:      data,
		Output:       ch,
	}, nil
}

// Detach removes a connection's output subscription.
func (m *Manager) Detach(sessionID string, ch chan OutputEvent) {
	if s, err := m.get(sessionID); err == nil {
		s.unsubscribeOutput(ch)
	}
}

// SubscribeEvents subscribes to a session's lifecycle events.
func (m *Manager) SubscribeEvents(sessionID string) (chan SessionEvent, error) {
	s, err := m.get(sessionID)
	if err != nil {
		return nil, err
	}
	return s.subscribeEvents(), nil
}

// UnsubscribeEvents removes a lifecycle-event subscription.
func (m *Manager) UnsubscribeEvents(sessionID string, ch chan SessionEvent) {
	if s, err := m.get(sessionID); err == nil {
		s.unsubscribeEvents(ch)
	}
}

// Close terminates a session's process, waiting up to 5s for it to exit
// before killing it. The session stays in the registry until the exit
// grace window after its exit has passed. It implements
// store.SessionCloser.
func (m *Manager) Close(sessionID string) error {
	s, err := m.get(sessionID)
	if err != nil {
		return err
	}
	s.terminate()
	select {
	case <-s.exited:
	case <-time.After(5 * time.Second):
		s.kill()
	}
	return nil
}

// CloseSession adapts Close to store.SessionCloser, swallowing errors
// since a conversation delete must proceed even if no session exists.
func (m *Manager) CloseSession(sessionID string) {
	_ = m.Close(sessionID)
}

// Input forwards bytes to a session's stdin in arrival order.
func (m *Manager) Input(sessionID string, data []byte) error {
	s, err := m.get(sessionID)
	if err != nil {
		return err
	}
	return s.input(data)
}

// InputBase64 decodes a pty.input envelope's dataBase64 and forwards it.
// Malformed base64 is dropped, matching the envelope's own silent-drop
// policy for raw envelopes without a commandId (spec §4.4).
func (m *Manager) InputBase64(sessionID, dataBase64 string) {
	data, err := base64.StdEncoding.DecodeString(dataBase64)
	if err != nil {
		return
	}
	if err := m.Input(sessionID, data); err != nil {
		log.Printf("ptysession[%s]: input dropped: %v", sessionID, err)
	}
}

// Resize forwards a resize request; last-resize wins.
func (m *Manager) Resize(sessionID string, cols, rows int) error {
	s, err := m.get(sessionID)
	if err != nil {
		return err
	}
	return s.resize(cols, rows)
}

// Signal forwards a signal request.
func (m *Manager) Signal(sessionID string, sig protocol.PTYSignal) error {
	s, err := m.get(sessionID)
	if err != nil {
		return err
	}
	return s.signal(sig)
}

// Respond writes text as if typed, returning the number of bytes sent.
func (m *Manager) Respond(sessionID, text string) (int, error) {
	if err := m.Input(sessionID, []byte(text)); err != nil {
		return 0, err
	}
	return len(text), nil
}

// ClaimParams are the arguments to session.claim.
type ClaimParams struct {
	SessionID      string
	ControllerID   string
	ControllerType string
	ControllerLabel string
	Reason         string
	Takeover       bool
}

// ClaimResult is the response to session.claim.
type ClaimResult struct {
	Action     string
	Controller Controller
}

// Claim acquires or takes over a session's controller claim, emitting
// session-control on takeover (spec §4.4, §8 scenario d).
func (m *Manager) Claim(p ClaimParams) (ClaimResult, error) {
	s, err := m.get(p.SessionID)
	if err != nil {
		return ClaimResult{}, err
	}
	action, previous, err := s.claim(p.ControllerID, p.ControllerType, p.ControllerLabel, p.Reason, p.Takeover)
	if err != nil {
		return ClaimResult{}, err
	}
	current := *s.controller

	if action == "taken-over" && m.publisher != nil {
		m.publisher.Publish(store.ObservedEvent{
			Type:          protocol.EventSessionControl,
			TS:            m.now(),
			SessionID:     p.SessionID,
			ConversationID: p.SessionID,
			ControlAction: action,
			PreviousController: &store.TaskClaim{ControllerID: previous.ControllerID, ControllerType: previous.ControllerType},
			Controller:    &store.TaskClaim{ControllerID: current.ControllerID, ControllerType: current.ControllerType},
		})
	}
	return ClaimResult{Action: action, Controller: current}, nil
}

// Release clears a session's controller claim, emitting session-control.
func (m *Manager) Release(sessionID string) error {
	s, err := m.get(sessionID)
	if err != nil {
		return err
	}
	s.release()
	if m.publisher != nil {
		m.publisher.Publish(store.ObservedEvent{
			Type:          protocol.EventSessionControl,
			TS:            m.now(),
			SessionID:     sessionID,
			ConversationID: sessionID,
			ControlAction: "released",
		})
	}
	return nil
}

// List returns summaries of every known session, optionally restricted to
// sessions with a live process (spec §4.4 "live filter").
func (m *Manager) List(liveOnly bool) []SessionSummary {
	m.mu.Lock()
	ids := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		ids = append(ids, s)
	}
	m.mu.Unlock()

	out := make([]SessionSummary, 0, len(ids))
	for _, s := range ids {
		sum := s.summary()
		if liveOnly && !sum.Live {
			continue
		}
		out = append(out, sum)
	}
	return out
}

// Status returns one session's summary.
func (m *Manager) Status(sessionID string) (SessionSummary, error) {
	s, err := m.get(sessionID)
	if err != nil {
		return SessionSummary{}, err
	}
	return s.summary(), nil
}

// onExit runs when a session's process terminates: it publishes
// session-exit and pty.exit, and schedules eventual removal from the
// registry after the grace retention window (spec §4.4 "Failure
// semantics").
func (m *Manager) onExit(s *Session) {
	s.mu.Lock()
	exit := s.lastExit
	s.mu.Unlock()

	s.broadcastEvent(SessionEvent{SessionID: s.id, Type: protocol.SessionEventSessionExit, Exit: exit, TS: m.now()})

	if m.publisher != nil {
		m.publisher.Publish(store.ObservedEvent{
			Type:           protocol.EventSessionExit,
			TS:             m.now(),
			SessionID:      s.id,
			ConversationID: s.id,
			Exit:           exit,
		})
	}

	log.Printf("ptysession[%s]: exited", s.id)

	go func() {
		time.Sleep(m.graceTTL)
		m.mu.Lock()
		if cur, ok := m.sessions[s.id]; ok && cur == s && !cur.isLive() {
			delete(m.sessions, s.id)
		}
		m.mu.Unlock()
	}()
}

// onOutput publishes a session-output observed event for every appended
// chunk, so subscriptions with includeOutput=true see it alongside the
// direct pty.output delivery to attached connections (spec §4.5).
func (m *Manager) onOutput(ev OutputEvent) {
	if m.publisher == nil {
		return
	}
	m.publisher.Publish(store.ObservedEvent{
		Type:           protocol.EventSessionOutput,
		TS:             m.now(),
		SessionID:      ev.SessionID,
		ConversationID: ev.SessionID,
	})
}

// Shutdown terminates every running process, waiting up to grace for each
// to exit before escalating to SIGKILL (spec §5 "global shutdown").
func (m *Manager) Shutdown(ctx context.Context, grace time.Duration) {
	m.mu.Lock()
	sessions := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		sessions = append(sessions, s)
	}
	m.mu.Unlock()

	var wg sync.WaitGroup
	for _, s := range sessions {
		if !s.isLive() {
			continue
		}
		wg.Add(1)
		go func(s *Session) {
			defer wg.Done()
			s.terminate()
			select {
			case <-s.exited:
			case <-time.After(grace):
				s.kill()
			}
		}(s)
	}
	wg.Wait()
}
