// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package store implements the in-memory Domain Store (spec §4.3): the
// authoritative mapping of directories, repositories, conversations, and
// tasks, plus per-session runtime status fields on conversations. A
// mutation builds its ObservedEvents (none, one, or several, depending on
// the mutation) under the same critical section that performed it; reads
// never emit.
package store

import (
	"time"

	"github.com/groupsio/harnessd/internal/protocol"
)

// Scope identifies the tenant/user/workspace triple every entity belongs
// to. It is implicit: created on first reference, never stored as its own
// row (spec §3).
type Scope struct {
	TenantID    string `json:"tenantId"`
	UserID      string `json:"userId"`
	WorkspaceID string `json:"workspaceId"`
}

// Directory is a project directory tracked by the harness.
type Directory struct {
	Scope
	DirectoryID  string     `json:"directoryId"`
	Path         string     `json:"path"`
	RepositoryID string     `json:"repositoryId,omitempty"`
	CreatedAt    time.Time  `json:"createdAt"`
	ArchivedAt   *time.Time `json:"archivedAt,omitempty"`
}

// DirectoryGitSnapshot is the latest known git status for a directory,
// overwritten wholesale by directory-git-updated events. Grounded on
// trellis's worktree.WorktreeInfo shape.
type DirectoryGitSnapshot struct {
	DirectoryID  string              `json:"directoryId"`
	RepositoryID string              `json:"repositoryId,omitempty"`
	Branch       string              `json:"branch"`
	Additions    int                 `json:"additions"`
	Deletions    int                 `json:"deletions"`
	ChangedFiles int                 `json:"changedFiles"`
	Ahead        int                 `json:"ahead"`
	Behind       int                 `json:"behind"`
	Dirty        bool                `json:"dirty"`
	Repository   *RepositorySnapshot `json:"repository,omitempty"`
	ObservedAt   time.Time           `json:"observedAt"`
}

// RepositorySnapshot is an embedded summary of a repository's remote and
// recent commits, carried inside a DirectoryGitSnapshot.
type RepositorySnapshot struct {
	RemoteURL string   `json:"remoteUrl,omitempty"`
	Commits   []string `json:"commits,omitempty"`
}

// Repository is a git remote tracked across directories and tasks.
type Repository struct {
	Scope
	RepositoryID  string                 `json:"repositoryId"`
	Name          string                 `json:"name"`
	RemoteURL     string                 `json:"remoteUrl,omitempty"`
	DefaultBranch string                 `json:"defaultBranch,omitempty"`
	Metadata      map[string]interface{} `json:"metadata,omitempty"`
	CreatedAt     time.Time              `json:"createdAt"`
	ArchivedAt    *time.Time             `json:"archivedAt,omitempty"`
}

// RuntimeStatus is the coarse lifecycle state of a conversation's live
// session, as last reported by the Status Reducer (spec §4.4, §9).
type RuntimeStatus string

const (
	RuntimeRunning   RuntimeStatus = "running"
	RuntimeCompleted RuntimeStatus = "completed"
)

// StreamSessionStatusModel is the structured status a Status Reducer
// collaborator produces from raw agent telemetry (spec §4.4/§9).
type StreamSessionStatusModel struct {
	RuntimeStatus   string     `json:"runtimeStatus"`
	Phase           string     `json:"phase,omitempty"`
	Glyph           string     `json:"glyph,omitempty"`
	Badge           string     `json:"badge,omitempty"`
	DetailText      string     `json:"detailText,omitempty"`
	AttentionReason string     `json:"attentionReason,omitempty"`
	LastKnownWork   string     `json:"lastKnownWork,omitempty"`
	LastKnownWorkAt *time.Time `json:"lastKnownWorkAt,omitempty"`
	PhaseHint       string     `json:"phaseHint,omitempty"`
	ObservedAt      time.Time  `json:"observedAt"`
}

// Conversation is a thread of interaction with an agent, belonging to one
// directory.
type Conversation struct {
	Scope
	ConversationID    string                     `json:"conversationId"`
	DirectoryID       string                     `json:"directoryId"`
	Title             string                     `json:"title"`
	AgentType         string                     `json:"agentType"`
	AdapterState      map[string]interface{}     `json:"adapterState,omitempty"`
	RuntimeStatus     RuntimeStatus              `json:"runtimeStatus"`
	RuntimeStatusModel *StreamSessionStatusModel `json:"runtimeStatusModel,omitempty"`
	RuntimeLive       bool                       `json:"runtimeLive"`
	RuntimeLastExit   *protocol.ExitInfo         `json:"runtimeLastExit,omitempty"`
	LastEventAt       *time.Time                 `json:"lastEventAt,omitempty"`
	CreatedAt         time.Time                  `json:"createdAt"`
	ArchivedAt        *time.Time                 `json:"archivedAt,omitempty"`
}

// TaskClaim records which controller currently owns a task, and the
// project/branch context the claim was made with.
type TaskClaim struct {
	ControllerID   string `json:"controllerId"`
	ControllerType string `json:"controllerType"`
	ProjectID      string `json:"projectId,omitempty"`
	BranchName     string `json:"branchName,omitempty"`
	BaseBranch     string `json:"baseBranch,omitempty"`
}

// Task is a unit of work scoped globally, to a repository, or to a
// project.
type Task struct {
	Scope
	TaskID       string                    `json:"taskId"`
	ScopeKind    protocol.TaskScopeKind    `json:"scopeKind"`
	ScopeID      string                    `json:"scopeId,omitempty"`
	RepositoryID string                    `json:"repositoryId,omitempty"`
	Title        string                    `json:"title"`
	Description  string                    `json:"description,omitempty"`
	Status       protocol.TaskStatus       `json:"status"`
	OrderIndex   int                       `json:"orderIndex"`
	ClaimedBy    *TaskClaim                `json:"claimedBy,omitempty"`
	LinearID     string                    `json:"linearId,omitempty"`
	CreatedAt    time.Time                 `json:"createdAt"`
	UpdatedAt    time.Time                 `json:"updatedAt"`
}

// scopeKey groups tasks that share an orderIndex sequence: one per
// (scopeKind, scopeId).
func (t *Task) scopeKey() string {
	return string(t.ScopeKind) + "|" + t.ScopeID
}
