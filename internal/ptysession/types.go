// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package ptysession implements the Session Registry & PTY Supervisor
// (spec §4.4): it owns live PTY processes, their output rings, controller
// claims, and input/resize/signal forwarding. It knows nothing about
// agent-specific command-line flags; a ProcessBuilder collaborator
// derives the spawn spec from a conversation's agentType and adapter
// state (spec §4.4 "the supervisor knows nothing about agent flags").
package ptysession

import (
	"errors"
	"fmt"
	"time"

	"github.com/groupsio/harnessd/internal/protocol"
	"github.com/groupsio/harnessd/internal/store"
)

// ErrorKind is the closed taxonomy of registry failures (spec §4.4, §7).
type ErrorKind string

const (
	KindNotFound       ErrorKind = "not-found"
	KindSessionNotLive ErrorKind = "session-not-live"
	KindConflict       ErrorKind = "conflict"
	KindInvalid        ErrorKind = "invalid-argument"
	KindCancelled      ErrorKind = "cancelled"
)

// Error is a registry failure tagged with a stable ErrorKind.
type Error struct {
	Kind    ErrorKind
	Message string
}

func (e *Error) Error() string { return fmt.Sprintf("%s: %s", e.Kind, e.Message) }

func newError(kind ErrorKind, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// KindOf extracts the ErrorKind from err if it is (or wraps) a *Error.
func KindOf(err error) (ErrorKind, bool) {
	var se *Error
	if !errors.As(err, &se) {
		return "", false
	}
	return se.Kind, true
}

// SpawnSpec is everything the supervisor needs to launch a child process
// under a PTY (spec §4.4 "Process").
type SpawnSpec struct {
	Command      string
	Args         []string
	Env          []string
	Cwd          string
	InitialCols  int
	InitialRows  int
	TerminalFg   string
	TerminalBg   string
}

// ProcessBuilder derives a SpawnSpec from a conversation's agentType and
// adapter state. The supervisor treats it as an opaque collaborator.
type ProcessBuilder interface {
	Build(agentType string, adapterState map[string]interface{}, cols, rows int) (SpawnSpec, error)
}

// Controller is the entity currently authorized to send input/signals to
// a session (spec §3, §4.4).
type Controller struct {
	ControllerID    string    `json:"controllerId"`
	ControllerType  string    `json:"controllerType"`
	ControllerLabel string    `json:"controllerLabel,omitempty"`
	ClaimedAt       time.Time `json:"claimedAt"`
}

// OutputEvent is one appended chunk, with the absolute cursor of its last
// byte (spec §4.4, §9).
type OutputEvent struct {
	SessionID string
	Cursor    int64
	Data      []byte
}

// SessionEvent is the payload carried inside pty.event envelopes; its
// Type is a protocol.SessionEventType.
type SessionEvent struct {
	SessionID string                  `json:"sessionId"`
	Type      protocol.SessionEventType `json:"type"`
	Exit      *protocol.ExitInfo      `json:"exit,omitempty"`
	Reason    string                  `json:"reason,omitempty"`
	TS        time.Time               `json:"ts"`
}

// SessionState is the coarse lifecycle state of a session (spec §4.4).
type SessionState string

const (
	StateSpawning SessionState = "spawning"
	StateRunning  SessionState = "running"
	StateExited   SessionState = "exited"
)

// SessionSummary is a read-only view of a session for session.list/status.
type SessionSummary struct {
	SessionID  string      `json:"sessionId"`
	State      SessionState `json:"state"`
	Live       bool        `json:"live"`
	Controller *Controller `json:"controller,omitempty"`
	LatestCursor int64     `json:"latestCursor"`
	LastExit   *protocol.ExitInfo `json:"lastExit,omitempty"`
	StartedAt  time.Time   `json:"startedAt"`
}

// Publisher is how the registry emits observed events that are not entity
// mutations (session-status, session-control, session-output,
// session-exit) to the Subscription Multiplexer, without the registry
// importing it directly (spec §3 "Ownership", §9).
type Publisher interface {
	Publish(ev store.ObservedEvent)
}
