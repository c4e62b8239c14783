// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package reducer implements the client-side projection described in
// spec §4.2 and §8 property 4: a pure function from (State, Delivery) to
// a new State, guarded by a per-subscription monotonic cursor so that a
// duplicate or regressed delivery leaves the state byte-for-byte
// unchanged rather than merely "effectively" unchanged. It is deliberately
// independent of pkg/client and internal/gateway: it operates on decoded
// stream.event payloads, so the same reducer drives a CLI client, a test
// harness, or a future UI.
package reducer

import (
	"encoding/json"
	"sync"

	"github.com/groupsio/harnessd/internal/cursorstream"
	"github.com/groupsio/harnessd/internal/protocol"
)

// Delivery is one stream.event payload as decoded off the wire: the
// subscription's assigned cursor plus the observed-event envelope.
type Delivery struct {
	SubscriptionID string
	Cursor         int64
	Event          EventPayload
}

// EventPayload mirrors store.ObservedEvent's wire shape without
// importing internal/store, so a reducer consumer depends only on
// exported packages (spec §4.2 "the reducer is part of the public
// client surface").
type EventPayload struct {
	Type           protocol.ObservedEventType `json:"type"`
	DirectoryID    string                     `json:"directoryId,omitempty"`
	RepositoryID   string                     `json:"repositoryId,omitempty"`
	ConversationID string                     `json:"conversationId,omitempty"`
	TaskID         string                     `json:"taskId,omitempty"`
	SessionID      string                     `json:"sessionId,omitempty"`

	Directory    json.RawMessage   `json:"directory,omitempty"`
	Repository   json.RawMessage   `json:"repository,omitempty"`
	Conversation json.RawMessage   `json:"conversation,omitempty"`
	Task         json.RawMessage   `json:"task,omitempty"`
	Tasks        []json.RawMessage `json:"tasks,omitempty"`
	StatusModel  json.RawMessage   `json:"statusModel,omitempty"`
	ControlAction string           `json:"controlAction,omitempty"`
}

// State is the reduced projection a client maintains locally: one entry
// per entity kind, keyed by id. It is intentionally shallow — entities
// are stored as raw JSON, not re-typed, so the reducer never needs to
// track the domain model's full schema (spec §4.2 "the client need not
// understand every entity field to stay in sync").
type State struct {
	Directories   map[string]json.RawMessage
	Repositories  map[string]json.RawMessage
	Conversations map[string]json.RawMessage
	Tasks         map[string]json.RawMessage
}

// NewState returns an empty State.
func NewState() *State {
	return &State{
		Directories:   make(map[string]json.RawMessage),
		Repositories:  make(map[string]json.RawMessage),
		Conversations: make(map[string]json.RawMessage),
		Tasks:         make(map[string]json.RawMessage),
	}
}

// clone returns a shallow copy of s whose top-level maps are distinct,
// so Apply never mutates a State a caller may still be holding a
// reference to (spec §8 property 4 "the exact same state object" refers
// to reference equality on rejection, not on every successful Apply).
func (s *State) clone() *State {
	cp := &State{
		Directories:   make(map[string]json.RawMessage, len(s.Directories)),
		Repositories:  make(map[string]json.RawMessage, len(s.Repositories)),
		Conversations: make(map[string]json.RawMessage, len(s.Conversations)),
		Tasks:         make(map[string]json.RawMessage, len(s.Tasks)),
	}
	for k, v := range s.Directories {
		cp.Directories[k] = v
	}
	for k, v := range s.Repositories {
		cp.Repositories[k] = v
	}
	for k, v := range s.Conversations {
		cp.Conversations[k] = v
	}
	for k, v := range s.Tasks {
		cp.Tasks[k] = v
	}
	return cp
}

// apply folds one EventPayload into a cloned copy of s and returns it.
// Unrecognized event types leave the clone unchanged, matching the
// protocol codec's "unknown variants are ignored, not fatal" stance.
func (s *State) apply(ev EventPayload) *State {
	next := s.clone()
	switch ev.Type {
	case protocol.EventDirectoryUpserted:
		if ev.Directory != nil {
			next.Directories[ev.DirectoryID] = ev.Directory
		}
	case protocol.EventDirectoryArchived:
		delete(next.Directories, ev.DirectoryID)
	case protocol.EventRepositoryUpserted, protocol.EventRepositoryUpdated:
		if ev.Repository != nil {
			next.Repositories[ev.RepositoryID] = ev.Repository
		}
	case protocol.EventRepositoryArchived:
		delete(next.Repositories, ev.RepositoryID)
	case protocol.EventConversationCreated, protocol.EventConversationUpdated:
		if ev.Conversation != nil {
			id := ev.ConversationID
			if id == "" {
				var inner struct {
					ConversationID string `json:"conversationId"`
				}
				_ = json.Unmarshal(ev.Conversation, &inner)
				id = inner.ConversationID
			}
			next.Conversations[id] = ev.Conversation
		}
	case protocol.EventConversationArchived, protocol.EventConversationDeleted:
		delete(next.Conversations, ev.ConversationID)
	case protocol.EventTaskCreated, protocol.EventTaskUpdated:
		if ev.Task != nil {
			id := ev.TaskID
			if id == "" {
				var inner struct {
					TaskID string `json:"taskId"`
				}
				_ = json.Unmarshal(ev.Task, &inner)
				id = inner.TaskID
			}
			next.Tasks[id] = ev.Task
		}
	case protocol.EventTaskReordered:
		for _, raw := range ev.Tasks {
			var id struct {
				TaskID string `json:"taskId"`
			}
			if json.Unmarshal(raw, &id) == nil && id.TaskID != "" {
				next.Tasks[id.TaskID] = raw
			}
		}
	case protocol.EventSessionStatus, protocol.EventSessionControl, protocol.EventSessionOutput, protocol.EventSessionExit:
		// Session lifecycle events do not mutate the entity projection;
		// a caller that needs them reads Delivery.Event directly.
	}
	return next
}

// Reducer applies Deliveries to a State under a cursorstream.Guard keyed
// by subscriptionId, so replays and redeliveries after a reconnect are
// idempotent no-ops (spec §4.2 "the reducer discards any delivery whose
// cursor it has already observed for that subscription").
type Reducer struct {
	mu    sync.Mutex
	state *State
	guard *cursorstream.Guard
}

// New returns a Reducer seeded with an empty State.
func New() *Reducer {
	return &Reducer{state: NewState(), guard: cursorstream.NewGuard()}
}

// State returns the current projection. The returned value must be
// treated as read-only; Apply never mutates a State it has already
// returned.
func (r *Reducer) State() *State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// Apply folds d into the reducer's state if d.Cursor is new for
// d.SubscriptionID, and reports whether it changed the state. On a
// duplicate or regressed cursor it returns (the same *State pointer,
// false) — the "exact same state object" idempotency guarantee.
func (r *Reducer) Apply(d Delivery) (*State, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	accepted, _ := r.guard.Observe(d.SubscriptionID, d.Cursor)
	if !accepted {
		return r.state, false
	}
	r.state = r.state.apply(d.Event)
	return r.state, true
}

// Reset discards all tracked cursors and projected state, e.g. when a
// client abandons a subscription and starts a fresh one under the same
// Reducer.
func (r *Reducer) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.state = NewState()
	r.guard.Reset()
}
