// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package store

import (
	"time"

	"github.com/groupsio/harnessd/internal/protocol"
)

// ObservedEvent is the sum type emitted by every store mutation (spec
// §3/§4.3/§9). Which of the typed payload fields are populated depends
// on Type. This mirrors the "one sum type for observed events,
// per-variant structs carrying only the fields that variant uses"
// design note.
type ObservedEvent struct {
	Type protocol.ObservedEventType `json:"type"`
	TS   time.Time                  `json:"ts"`
	Scope

	Directory    *Directory            `json:"directory,omitempty"`
	DirectoryID  string                `json:"directoryId,omitempty"`
	GitSnapshot  *DirectoryGitSnapshot `json:"gitSnapshot,omitempty"`
	Repository   *Repository           `json:"repository,omitempty"`
	RepositoryID string                `json:"repositoryId,omitempty"`
	Conversation *Conversation         `json:"conversation,omitempty"`
	ConversationID string              `json:"conversationId,omitempty"`
	Task         *Task                 `json:"task,omitempty"`
	Tasks        []*Task               `json:"tasks,omitempty"`
	TaskID       string                `json:"taskId,omitempty"`

	SessionID      string                     `json:"sessionId,omitempty"`
	StatusModel    *StreamSessionStatusModel  `json:"statusModel,omitempty"`
	ControlAction  string                     `json:"controlAction,omitempty"`
	PreviousController *TaskClaim            `json:"previousController,omitempty"`
	Controller     *TaskClaim                 `json:"controller,omitempty"`
	Exit           *protocol.ExitInfo         `json:"exit,omitempty"`
}

// touchesRepository reports whether the event concerns repositoryId, per
// the Subscription Multiplexer's filter rules (spec §4.5).
func (e ObservedEvent) touchesRepository(repositoryID string) bool {
	if repositoryID == "" {
		return false
	}
	switch e.Type {
	case protocol.EventDirectoryGitUpdated:
		return e.GitSnapshot != nil && e.GitSnapshot.RepositoryID == repositoryID
	case protocol.EventRepositoryUpserted, protocol.EventRepositoryUpdated:
		return e.Repository != nil && e.Repository.RepositoryID == repositoryID
	case protocol.EventRepositoryArchived:
		return e.RepositoryID == repositoryID
	case protocol.EventTaskCreated, protocol.EventTaskUpdated:
		return e.Task != nil && e.Task.RepositoryID == repositoryID
	case protocol.EventTaskReordered:
		for _, t := range e.Tasks {
			if t.RepositoryID == repositoryID {
				return true
			}
		}
	}
	return false
}

// touchesTask reports whether the event concerns taskId.
func (e ObservedEvent) touchesTask(taskID string) bool {
	if taskID == "" {
		return false
	}
	switch e.Type {
	case protocol.EventTaskCreated, protocol.EventTaskUpdated:
		return e.Task != nil && e.Task.TaskID == taskID
	case protocol.EventTaskReordered:
		for _, t := range e.Tasks {
			if t.TaskID == taskID {
				return true
			}
		}
	}
	return false
}

// touchesDirectory reports whether the event's scope includes directoryId.
func (e ObservedEvent) touchesDirectory(directoryID string) bool {
	if directoryID == "" {
		return false
	}
	switch e.Type {
	case protocol.EventDirectoryUpserted, protocol.EventDirectoryArchived:
		return e.DirectoryID == directoryID || (e.Directory != nil && e.Directory.DirectoryID == directoryID)
	case protocol.EventDirectoryGitUpdated:
		return e.DirectoryID == directoryID
	case protocol.EventConversationCreated, protocol.EventConversationUpdated, protocol.EventConversationArchived, protocol.EventConversationDeleted:
		return e.Conversation != nil && e.Conversation.DirectoryID == directoryID
	}
	return false
}

// touchesConversation reports whether the event's scope includes
// conversationId.
func (e ObservedEvent) touchesConversation(conversationID string) bool {
	if conversationID == "" {
		return false
	}
	switch e.Type {
	case protocol.EventConversationCreated, protocol.EventConversationUpdated:
		return e.Conversation != nil && e.Conversation.ConversationID == conversationID
	case protocol.EventConversationArchived, protocol.EventConversationDeleted:
		return e.ConversationID == conversationID
	case protocol.EventSessionStatus, protocol.EventSessionControl, protocol.EventSessionOutput, protocol.EventSessionExit:
		return e.SessionID == conversationID
	}
	return false
}

// Touches is the generalized "event touches X" predicate used by the
// Subscription Multiplexer's filter matcher (internal/subscribe).
func (e ObservedEvent) Touches(repositoryID, taskID, directoryID, conversationID string) bool {
	if repositoryID != "" && e.touchesRepository(repositoryID) {
		return true
	}
	if taskID != "" && e.touchesTask(taskID) {
		return true
	}
	if directoryID != "" && e.touchesDirectory(directoryID) {
		return true
	}
	if conversationID != "" && e.touchesConversation(conversationID) {
		return true
	}
	return repositoryID == "" && taskID == "" && directoryID == "" && conversationID == ""
}

// IsOutputEvent reports whether this event is a session-output event,
// which the multiplexer drops unless a subscription's includeOutput is
// true (spec §4.5).
func (e ObservedEvent) IsOutputEvent() bool {
	return e.Type == protocol.EventSessionOutput
}
