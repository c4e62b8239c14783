// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package protocol

// ObservedEventType discriminates the observed-event sum type carried
// inside stream.event envelopes (§3, §4.3, §4.4, §4.5).
type ObservedEventType string

const (
	EventDirectoryUpserted    ObservedEventType = "directory-upserted"
	EventDirectoryArchived    ObservedEventType = "directory-archived"
	EventDirectoryGitUpdated  ObservedEventType = "directory-git-updated"
	EventRepositoryUpserted   ObservedEventType = "repository-upserted"
	EventRepositoryUpdated    ObservedEventType = "repository-updated"
	EventRepositoryArchived   ObservedEventType = "repository-archived"
	EventConversationCreated  ObservedEventType = "conversation-created"
	EventConversationUpdated  ObservedEventType = "conversation-updated"
	EventConversationArchived ObservedEventType = "conversation-archived"
	EventConversationDeleted  ObservedEventType = "conversation-deleted"
	EventTaskCreated          ObservedEventType = "task-created"
	EventTaskUpdated          ObservedEventType = "task-updated"
	EventTaskReordered        ObservedEventType = "task-reordered"
	EventSessionStatus        ObservedEventType = "session-status"
	EventSessionControl       ObservedEventType = "session-control"
	EventSessionOutput        ObservedEventType = "session-output"
	EventSessionExit          ObservedEventType = "session-exit"
)

// SessionEventType discriminates the pty.event lifecycle sum type (§4.4).
type SessionEventType string

const (
	SessionEventNotify            SessionEventType = "notify"
	SessionEventTurnCompleted     SessionEventType = "turn-completed"
	SessionEventAttentionRequired SessionEventType = "attention-required"
	SessionEventSessionExit       SessionEventType = "session-exit"
)

// ControllerType is the closed enumeration of controller kinds (§3).
type ControllerType string

const (
	ControllerHuman      ControllerType = "human"
	ControllerAgent      ControllerType = "agent"
	ControllerAutomation ControllerType = "automation"
)

func ValidControllerType(s string) bool {
	switch ControllerType(s) {
	case ControllerHuman, ControllerAgent, ControllerAutomation:
		return true
	}
	return false
}

// TaskScopeKind is the closed enumeration of task scopes (§3).
type TaskScopeKind string

const (
	TaskScopeGlobal     TaskScopeKind = "global"
	TaskScopeRepository TaskScopeKind = "repository"
	TaskScopeProject    TaskScopeKind = "project"
)

func ValidTaskScopeKind(s string) bool {
	switch TaskScopeKind(s) {
	case TaskScopeGlobal, TaskScopeRepository, TaskScopeProject:
		return true
	}
	return false
}

// TaskStatus is the closed enumeration of task lifecycle states (§3).
type TaskStatus string

const (
	TaskDraft      TaskStatus = "draft"
	TaskReady      TaskStatus = "ready"
	TaskInProgress TaskStatus = "in-progress"
	TaskCompleted  TaskStatus = "completed"
)

func ValidTaskStatus(s string) bool {
	switch TaskStatus(s) {
	case TaskDraft, TaskReady, TaskInProgress, TaskCompleted:
		return true
	}
	return false
}
