// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package store

import (
	"sort"

	"github.com/groupsio/harnessd/internal/protocol"
)

// SessionCloser is a collaborator the store calls to close any live
// session tied to a conversation being deleted. The registry
// (internal/ptysession) implements this; the store never imports it
// directly to keep ownership boundaries clean (spec §3 "Ownership").
type SessionCloser interface {
	CloseSession(sessionID string)
}

// CreateConversationParams are the arguments to conversation.create.
type CreateConversationParams struct {
	ConversationID string
	Scope          Scope
	DirectoryID    string
	Title          string
	AgentType      string
	AdapterState   map[string]interface{}
	// HasLiveSession reports whether a PTY session already exists for
	// this conversation id, which seeds the initial runtimeStatus.
	HasLiveSession bool
}

// CreateConversation creates a conversation thread under an existing
// directory.
func (s *Store) CreateConversation(p CreateConversationParams) (*Conversation, []ObservedEvent, error) {
	if p.Title == "" {
		return nil, nil, newError(KindInvalidArgument, "title is required")
	}
	if p.AgentType == "" {
		return nil, nil, newError(KindInvalidArgument, "agentType is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.directories[p.DirectoryID]; !ok {
		return nil, nil, newError(KindNotFound, "directory %q not found", p.DirectoryID)
	}

	id := p.ConversationID
	if id == "" {
		id = newID()
	} else if _, exists := s.conversations[id]; exists {
		return nil, nil, newError(KindAlreadyExists, "conversation %q already exists", id)
	}

	runtimeStatus := RuntimeCompleted
	if p.HasLiveSession {
		runtimeStatus = RuntimeRunning
	}

	c := &Conversation{
		Scope:         p.Scope,
		ConversationID: id,
		DirectoryID:   p.DirectoryID,
		Title:         p.Title,
		AgentType:     p.AgentType,
		AdapterState:  p.AdapterState,
		RuntimeStatus: runtimeStatus,
		RuntimeLive:   p.HasLiveSession,
		CreatedAt:     s.clock(),
	}
	s.conversations[id] = c

	event := ObservedEvent{
		Type:         protocol.EventConversationCreated,
		TS:           s.clock(),
		Scope:        c.Scope,
		Conversation: cloneConversation(c),
	}
	return cloneConversation(c), []ObservedEvent{event}, nil
}

// UpdateConversationTitle implements conversation.update.
func (s *Store) UpdateConversationTitle(conversationID, title string) (*Conversation, []ObservedEvent, error) {
	if title == "" {
		return nil, nil, newError(KindInvalidArgument, "title is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.conversations[conversationID]
	if !ok {
		return nil, nil, newError(KindNotFound, "conversation %q not found", conversationID)
	}
	c.Title = title

	event := ObservedEvent{
		Type:         protocol.EventConversationUpdated,
		TS:           s.clock(),
		Scope:        c.Scope,
		Conversation: cloneConversation(c),
	}
	return cloneConversation(c), []ObservedEvent{event}, nil
}

// ArchiveConversation soft-deletes a conversation.
func (s *Store) ArchiveConversation(conversationID string) ([]ObservedEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.conversations[conversationID]
	if !ok {
		return nil, newError(KindNotFound, "conversation %q not found", conversationID)
	}
	ts := s.clock()
	c.ArchivedAt = &ts

	return []ObservedEvent{{
		Type:           protocol.EventConversationArchived,
		TS:             ts,
		Scope:          c.Scope,
		ConversationID: conversationID,
	}}, nil
}

// DeleteConversation removes the conversation row and closes any
// associated live session via closer (may be nil in tests that don't
// exercise live sessions).
func (s *Store) DeleteConversation(conversationID string, closer SessionCloser) ([]ObservedEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.conversations[conversationID]
	if !ok {
		return nil, newError(KindNotFound, "conversation %q not found", conversationID)
	}
	delete(s.conversations, conversationID)

	if closer != nil {
		closer.CloseSession(conversationID)
	}

	return []ObservedEvent{{
		Type:           protocol.EventConversationDeleted,
		TS:             s.clock(),
		Scope:          c.Scope,
		ConversationID: conversationID,
	}}, nil
}

// ListConversationsParams are the arguments to conversation listing.
type ListConversationsParams struct {
	Scope           Scope
	DirectoryID     string
	IncludeArchived bool
	Limit           int
}

// ListConversations orders by lastEventAt desc (nulls last), then
// createdAt desc, then id lex (spec §4.3).
func (s *Store) ListConversations(p ListConversationsParams) []*Conversation {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []*Conversation
	for _, c := range s.conversations {
		if c.Scope != p.Scope {
			continue
		}
		if p.DirectoryID != "" && c.DirectoryID != p.DirectoryID {
			continue
		}
		if !p.IncludeArchived && c.ArchivedAt != nil {
			continue
		}
		out = append(out, cloneConversation(c))
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		switch {
		case a.LastEventAt == nil && b.LastEventAt != nil:
			return false
		case a.LastEventAt != nil && b.LastEventAt == nil:
			return true
		case a.LastEventAt != nil && b.LastEventAt != nil && !a.LastEventAt.Equal(*b.LastEventAt):
			return a.LastEventAt.After(*b.LastEventAt)
		case !a.CreatedAt.Equal(b.CreatedAt):
			return a.CreatedAt.After(b.CreatedAt)
		default:
			return a.ConversationID < b.ConversationID
		}
	})
	if p.Limit > 0 && len(out) > p.Limit {
		out = out[:p.Limit]
	}
	return out
}

// UpdateSessionStatus applies a non-null Status Reducer result to a
// conversation's runtime fields and emits session-status (spec §4.4).
func (s *Store) UpdateSessionStatus(conversationID string, model StreamSessionStatusModel) ([]ObservedEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.conversations[conversationID]
	if !ok {
		return nil, newError(KindNotFound, "conversation %q not found", conversationID)
	}
	cp := model
	c.RuntimeStatusModel = &cp
	ts := s.clock()
	c.LastEventAt = &ts

	return []ObservedEvent{{
		Type:           protocol.EventSessionStatus,
		TS:             ts,
		Scope:          c.Scope,
		SessionID:      conversationID,
		ConversationID: conversationID,
		StatusModel:    &cp,
	}}, nil
}

// MarkSessionLive flips runtimeLive/runtimeStatus for a started or
// exited session, without involving the Status Reducer.
func (s *Store) MarkSessionLive(conversationID string, live bool, lastExit *protocol.ExitInfo) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.conversations[conversationID]
	if !ok {
		return newError(KindNotFound, "conversation %q not found", conversationID)
	}
	c.RuntimeLive = live
	if live {
		c.RuntimeStatus = RuntimeRunning
	} else {
		c.RuntimeStatus = RuntimeCompleted
		c.RuntimeLastExit = lastExit
	}
	ts := s.clock()
	c.LastEventAt = &ts
	return nil
}
