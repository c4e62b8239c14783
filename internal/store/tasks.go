// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package store

import (
	"sort"

	"github.com/groupsio/harnessd/internal/protocol"
)

// CreateTaskParams are the arguments to task.create.
type CreateTaskParams struct {
	Scope        Scope
	ScopeKind    protocol.TaskScopeKind
	ScopeID      string
	RepositoryID string
	Title        string
	Description  string
}

// tasksInScope returns every task sharing (scopeKind, scopeId), unsorted.
func (s *Store) tasksInScope(kind protocol.TaskScopeKind, scopeID string) []*Task {
	var out []*Task
	for _, t := range s.tasks {
		if t.ScopeKind == kind && t.ScopeID == scopeID {
			out = append(out, t)
		}
	}
	return out
}

// CreateTask starts a task in status draft with the next orderIndex
// within its scope.
func (s *Store) CreateTask(p CreateTaskParams) (*Task, []ObservedEvent, error) {
	if !protocol.ValidTaskScopeKind(string(p.ScopeKind)) {
		return nil, nil, newError(KindInvalidArgument, "invalid scopeKind %q", p.ScopeKind)
	}
	if p.Title == "" {
		return nil, nil, newError(KindInvalidArgument, "title is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	existing := s.tasksInScope(p.ScopeKind, p.ScopeID)
	ts := s.clock()
	t := &Task{
		Scope:        p.Scope,
		TaskID:       newID(),
		ScopeKind:    p.ScopeKind,
		ScopeID:      p.ScopeID,
		RepositoryID: p.RepositoryID,
		Title:        p.Title,
		Description:  p.Description,
		Status:       protocol.TaskDraft,
		OrderIndex:   len(existing),
		CreatedAt:    ts,
		UpdatedAt:    ts,
	}
	s.tasks[t.TaskID] = t

	return cloneTask(t), []ObservedEvent{{
		Type:  protocol.EventTaskCreated,
		TS:    ts,
		Scope: t.Scope,
		Task:  cloneTask(t),
	}}, nil
}

// transition moves a task between statuses; reverse transitions (toward
// draft/ready) reset the claim (spec §4.3).
func (s *Store) transition(taskID string, to protocol.TaskStatus, forward bool) (*Task, []ObservedEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.tasks[taskID]
	if !ok {
		return nil, nil, newError(KindNotFound, "task %q not found", taskID)
	}
	t.Status = to
	if !forward {
		t.ClaimedBy = nil
	}
	t.UpdatedAt = s.clock()

	return cloneTask(t), []ObservedEvent{{
		Type:  protocol.EventTaskUpdated,
		TS:    t.UpdatedAt,
		Scope: t.Scope,
		Task:  cloneTask(t),
	}}, nil
}

// SetTaskReady implements task.ready (draft→ready or in-progress→ready).
func (s *Store) SetTaskReady(taskID string) (*Task, []ObservedEvent, error) {
	return s.transition(taskID, protocol.TaskReady, false)
}

// SetTaskDraft implements task.draft.
func (s *Store) SetTaskDraft(taskID string) (*Task, []ObservedEvent, error) {
	return s.transition(taskID, protocol.TaskDraft, false)
}

// CompleteTask implements task.complete (in-progress→completed).
func (s *Store) CompleteTask(taskID string) (*Task, []ObservedEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.tasks[taskID]
	if !ok {
		return nil, nil, newError(KindNotFound, "task %q not found", taskID)
	}
	if t.Status != protocol.TaskInProgress {
		return nil, nil, newError(KindPreconditionFailed, "task %q is not in-progress", taskID)
	}
	t.Status = protocol.TaskCompleted
	t.UpdatedAt = s.clock()

	return cloneTask(t), []ObservedEvent{{
		Type:  protocol.EventTaskUpdated,
		TS:    t.UpdatedAt,
		Scope: t.Scope,
		Task:  cloneTask(t),
	}}, nil
}

// ReorderTasksParams are the arguments to task.reorder.
type ReorderTasksParams struct {
	ScopeKind      protocol.TaskScopeKind
	ScopeID        string
	OrderedTaskIDs []string
}

// ReorderTasks validates that orderedTaskIds is exactly the current task
// set in scope, then reassigns orderIndex by position (spec §4.3, §8
// property 6).
func (s *Store) ReorderTasks(p ReorderTasksParams) ([]*Task, []ObservedEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	current := s.tasksInScope(p.ScopeKind, p.ScopeID)
	if len(current) != len(p.OrderedTaskIDs) {
		return nil, nil, newError(KindPreconditionFailed, "reorder set size mismatch")
	}
	byID := make(map[string]*Task, len(current))
	for _, t := range current {
		byID[t.TaskID] = t
	}
	seen := make(map[string]bool, len(p.OrderedTaskIDs))
	for _, id := range p.OrderedTaskIDs {
		if seen[id] {
			return nil, nil, newError(KindPreconditionFailed, "duplicate task id %q in reorder", id)
		}
		seen[id] = true
		if _, ok := byID[id]; !ok {
			return nil, nil, newError(KindPreconditionFailed, "task %q not in scope", id)
		}
	}

	ts := s.clock()
	ordered := make([]*Task, len(p.OrderedTaskIDs))
	for i, id := range p.OrderedTaskIDs {
		t := byID[id]
		t.OrderIndex = i
		t.UpdatedAt = ts
		ordered[i] = cloneTask(t)
	}

	var scopeVal Scope
	if len(ordered) > 0 {
		scopeVal = ordered[0].Scope
	}
	return ordered, []ObservedEvent{{
		Type:  protocol.EventTaskReordered,
		TS:    ts,
		Scope: scopeVal,
		Tasks: ordered,
	}}, nil
}

// ClaimTaskParams are the arguments to task.claim.
type ClaimTaskParams struct {
	TaskID         string
	ControllerID   string
	ControllerType string
	ProjectID      string
	BranchName     string
	BaseBranch     string
}

// ClaimTask fails with conflict if a different controller already holds
// the task; on success moves it to in-progress.
func (s *Store) ClaimTask(p ClaimTaskParams) (*Task, []ObservedEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.tasks[p.TaskID]
	if !ok {
		return nil, nil, newError(KindNotFound, "task %q not found", p.TaskID)
	}
	if t.Status == protocol.TaskInProgress && t.ClaimedBy != nil && t.ClaimedBy.ControllerID != p.ControllerID {
		return nil, nil, newError(KindConflict, "task %q already claimed by %q", p.TaskID, t.ClaimedBy.ControllerID)
	}
	t.ClaimedBy = &TaskClaim{
		ControllerID:   p.ControllerID,
		ControllerType: p.ControllerType,
		ProjectID:      p.ProjectID,
		BranchName:     p.BranchName,
		BaseBranch:     p.BaseBranch,
	}
	t.Status = protocol.TaskInProgress
	t.UpdatedAt = s.clock()

	return cloneTask(t), []ObservedEvent{{
		Type:  protocol.EventTaskUpdated,
		TS:    t.UpdatedAt,
		Scope: t.Scope,
		Task:  cloneTask(t),
	}}, nil
}

// PullTaskParams are the arguments to task.pull.
type PullTaskParams struct {
	ScopeKind      protocol.TaskScopeKind
	ScopeID        string
	ControllerID   string
	ControllerType string
	ProjectID      string
	RepositoryID   string
	BranchName     string
	BaseBranch     string
}

// PullResult is the response to task.pull.
type PullResult struct {
	Task         *Task
	DirectoryID  string
	Availability string // "claimed" | "none" | "blocked"
	Reason       string
	RepositoryID string
	Settings     map[string]interface{}
}

// directoryForRepository returns the id of a directory in scope that
// tracks repositoryID, or "" if none is registered yet (a task can be
// pulled before any directory has been checked out for its repository).
func (s *Store) directoryForRepository(scope Scope, repositoryID string) string {
	if repositoryID == "" {
		return ""
	}
	for _, d := range s.directories {
		if d.RepositoryID == repositoryID && d.Scope == scope && d.ArchivedAt == nil {
			return d.DirectoryID
		}
	}
	return ""
}

// PullTask selects the lowest-orderIndex ready task matching scope that
// is not claimed, and atomically claims it on success.
func (s *Store) PullTask(p PullTaskParams) (PullResult, []ObservedEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	candidates := s.tasksInScope(p.ScopeKind, p.ScopeID)
	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].OrderIndex != candidates[j].OrderIndex {
			return candidates[i].OrderIndex < candidates[j].OrderIndex
		}
		return candidates[i].TaskID < candidates[j].TaskID
	})

	var blocked bool
	for _, t := range candidates {
		if p.RepositoryID != "" && t.RepositoryID != "" && t.RepositoryID != p.RepositoryID {
			continue
		}
		if t.Status == protocol.TaskInProgress && t.ClaimedBy != nil {
			blocked = true
			continue
		}
		if t.Status != protocol.TaskReady {
			continue
		}
		if t.ClaimedBy != nil {
			blocked = true
			continue
		}
		t.ClaimedBy = &TaskClaim{
			ControllerID:   p.ControllerID,
			ControllerType: p.ControllerType,
			ProjectID:      p.ProjectID,
			BranchName:     p.BranchName,
			BaseBranch:     p.BaseBranch,
		}
		t.Status = protocol.TaskInProgress
		t.UpdatedAt = s.clock()

		return PullResult{
				Task:         cloneTask(t),
				Availability: "claimed",
				DirectoryID:  s.directoryForRepository(t.Scope, t.RepositoryID),
				RepositoryID: t.RepositoryID,
				Settings:     map[string]interface{}{},
			}, []ObservedEvent{{
				Type:  protocol.EventTaskUpdated,
				TS:    t.UpdatedAt,
				Scope: t.Scope,
				Task:  cloneTask(t),
			}}, nil
	}

	if blocked {
		return PullResult{Availability: "blocked", Reason: "all ready tasks in scope are already claimed"}, nil, nil
	}
	return PullResult{Availability: "none"}, nil, nil
}

// GetTask returns a task by id.
func (s *Store) GetTask(taskID string) (*Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tasks[taskID]
	if !ok {
		return nil, newError(KindNotFound, "task %q not found", taskID)
	}
	return cloneTask(t), nil
}

// ListTasksParams are the arguments to task listing.
type ListTasksParams struct {
	ScopeKind protocol.TaskScopeKind
	ScopeID   string
}

// ListTasks orders by orderIndex ascending, then id lex (spec §4.3).
func (s *Store) ListTasks(p ListTasksParams) []*Task {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]*Task, 0)
	for _, t := range s.tasksInScope(p.ScopeKind, p.ScopeID) {
		out = append(out, cloneTask(t))
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].OrderIndex != out[j].OrderIndex {
			return out[i].OrderIndex < out[j].OrderIndex
		}
		return out[i].TaskID < out[j].TaskID
	})
	return out
}
