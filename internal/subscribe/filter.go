// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package subscribe implements the Subscription Multiplexer (spec §4.5):
// it fans observed events out of the Domain Store and the Session
// Registry into per-subscription ordered queues, assigning each
// subscription its own monotonic cursor.
package subscribe

import "github.com/groupsio/harnessd/internal/store"

// Filter narrows a subscription to a scope and an optional set of
// entity narrowers (spec §4.5 "Filter fields"). The zero value matches
// every event in scope.
type Filter struct {
	TenantID    string `json:"tenantId,omitempty"`
	UserID      string `json:"userId,omitempty"`
	WorkspaceID string `json:"workspaceId,omitempty"`

	RepositoryID   string `json:"repositoryId,omitempty"`
	TaskID         string `json:"taskId,omitempty"`
	DirectoryID    string `json:"directoryId,omitempty"`
	ConversationID string `json:"conversationId,omitempty"`

	IncludeOutput bool `json:"includeOutput"`
}

// scopeMatches reports whether ev's scope satisfies every scope field the
// filter actually set (spec §4.5 "scope: event's derived scope equals any
// provided scope field").
func (f Filter) scopeMatches(scope store.Scope) bool {
	if f.TenantID != "" && f.TenantID != scope.TenantID {
		return false
	}
	if f.UserID != "" && f.UserID != scope.UserID {
		return false
	}
	if f.WorkspaceID != "" && f.WorkspaceID != scope.WorkspaceID {
		return false
	}
	return true
}

// Matches applies the full filter to ev: scope, then narrowers, then the
// includeOutput gate on session-output events (spec §4.5 "Match rules").
func (f Filter) Matches(ev store.ObservedEvent) bool {
	if !f.scopeMatches(ev.Scope) {
		return false
	}
	if ev.IsOutputEvent() && !f.IncludeOutput {
		return false
	}
	return ev.Touches(f.RepositoryID, f.TaskID, f.DirectoryID, f.ConversationID)
}
