// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package gateway

import (
	"context"
	"encoding/json"

	"github.com/groupsio/harnessd/internal/store"
)

// --- directory.* ---

type directoryUpsertParams struct {
	store.Scope
	DirectoryID  string `json:"directoryId"`
	Path         string `json:"path"`
	RepositoryID string `json:"repositoryId"`
}

func cmdDirectoryUpsert(_ context.Context, d *Dispatcher, raw json.RawMessage) (interface{}, error) {
	var p directoryUpsertParams
	if err := decodeParams(raw, &p); err != nil {
		return nil, err
	}
	dir, events, err := d.Store.UpsertDirectory(store.UpsertDirectoryParams{
		DirectoryID:  p.DirectoryID,
		Scope:        p.Scope,
		Path:         p.Path,
		RepositoryID: p.RepositoryID,
	})
	if err != nil {
		return nil, err
	}
	d.Mux.PublishAll(events)
	return map[string]interface{}{"directory": dir}, nil
}

type directoryListParams struct {
	store.Scope
	IncludeArchived bool `json:"includeArchived"`
	Limit           int  `json:"limit"`
}

func cmdDirectoryList(_ context.Context, d *Dispatcher, raw json.RawMessage) (interface{}, error) {
	var p directoryListParams
	if err := decodeParams(raw, &p); err != nil {
		return nil, err
	}
	dirs := d.Store.ListDirectories(store.ListDirectoriesParams{
		Scope: p.Scope, IncludeArchived: p.IncludeArchived, Limit: p.Limit,
	})
	return map[string]interface{}{"directories": dirs}, nil
}

type directoryArchiveParams struct {
	DirectoryID string `json:"directoryId"`
}

func cmdDirectoryArchive(_ context.Context, d *Dispatcher, raw json.RawMessage) (interface{}, error) {
	var p directoryArchiveParams
	if err := decodeParams(raw, &p); err != nil {
		return nil, err
	}
	events, err := d.Store.ArchiveDirectory(p.DirectoryID)
	if err != nil {
		return nil, err
	}
	d.Mux.PublishAll(events)
	return map[string]interface{}{"archived": true}, nil
}

type directoryGitStatusParams struct {
	store.Scope
	DirectoryID string `json:"directoryId"`
}

func cmdDirectoryGitStatus(_ context.Context, d *Dispatcher, raw json.RawMessage) (interface{}, error) {
	var p directoryGitStatusParams
	if err := decodeParams(raw, &p); err != nil {
		return nil, err
	}
	snaps := d.Store.GitStatus(p.Scope, p.DirectoryID)
	return map[string]interface{}{"snapshots": snaps}, nil
}

// --- repository.* ---

type repositoryUpsertParams struct {
	store.Scope
	RepositoryID  string                 `json:"repositoryId"`
	Name          string                 `json:"name"`
	RemoteURL     string                 `json:"remoteUrl"`
	DefaultBranch string                 `json:"defaultBranch"`
	Metadata      map[string]interface{} `json:"metadata"`
}

func cmdRepositoryUpsert(_ context.Context, d *Dispatcher, raw json.RawMessage) (interface{}, error) {
	var p repositoryUpsertParams
	if err := decodeParams(raw, &p); err != nil {
		return nil, err
	}
	r, events, err := d.Store.UpsertRepository(store.UpsertRepositoryParams{
		RepositoryID: p.RepositoryID, Scope: p.Scope, Name: p.Name,
		RemoteURL: p.RemoteURL, DefaultBranch: p.DefaultBranch, Metadata: p.Metadata,
	})
	if err != nil {
		return nil, err
	}
	d.Mux.PublishAll(events)
	return map[string]interface{}{"repository": r}, nil
}

// repository.update shares repository.upsert's contract but requires an
// existing RepositoryID (spec §4.3 "symmetric with directory").
func cmdRepositoryUpdate(ctx context.Context, d *Dispatcher, raw json.RawMessage) (interface{}, error) {
	var p repositoryUpsertParams
	if err := decodeParams(raw, &p); err != nil {
		return nil, err
	}
	if p.RepositoryID == "" {
		return nil, invalidArgument("repositoryId is required")
	}
	return cmdRepositoryUpsert(ctx, d, raw)
}

type repositoryGetParams struct {
	RepositoryID string `json:"repositoryId"`
}

func cmdRepositoryGet(_ context.Context, d *Dispatcher, raw json.RawMessage) (interface{}, error) {
	var p repositoryGetParams
	if err := decodeParams(raw, &p); err != nil {
		return nil, err
	}
	r, err := d.Store.GetRepository(p.RepositoryID)
	if err != nil {
		return nil, err
	}
	return map[string]interface{}{"repository": r}, nil
}

type repositoryListParams struct {
	store.Scope
	IncludeArchived bool `json:"includeArchived"`
	Limit           int  `json:"limit"`
}

func cmdRepositoryList(_ context.Context, d *Dispatcher, raw json.RawMessage) (interface{}, error) {
	var p repositoryListParams
	if err := decodeParams(raw, &p); err != nil {
		return nil, err
	}
	repos := d.Store.ListRepositories(store.ListRepositoriesParams{
		Scope: p.Scope, IncludeArchived: p.IncludeArchived, Limit: p.Limit,
	})
	return map[string]interface{}{"repositories": repos}, nil
}

type repositoryArchiveParams struct {
	RepositoryID string `json:"repositoryId"`
}

func cmdRepositoryArchive(_ context.Context, d *Dispatcher, raw json.RawMessage) (interface{}, error) {
	var p repositoryArchiveParams
	if err := decodeParams(raw, &p); err != nil {
		return nil, err
	}
	events, err := d.Store.ArchiveRepository(p.RepositoryID)
	if err != nil {
		return nil, err
	}
	d.Mux.PublishAll(events)
	return map[string]interface{}{"archived": true}, nil
}

// --- conversation.* ---

type conversationCreateParams struct {
	store.Scope
	ConversationID string                 `json:"conversationId"`
	DirectoryID    string                 `json:"directoryId"`
	Title          string                 `json:"title"`
	AgentType      string                 `json:"agentType"`
	AdapterState   map[string]interface{} `json:"adapterState"`
}

func cmdConversationCreate(_ context.Context, d *Dispatcher, raw json.RawMessage) (interface{}, error) {
	var p conversationCreateParams
	if err := decodeParams(raw, &p); err != nil {
		return nil, err
	}
	hasLive := false
	if d.Sessions != nil && p.ConversationID != "" {
		if _, err := d.Sessions.Status(p.ConversationID); err == nil {
			hasLive = true
		}
	}
	c, events, err := d.Store.CreateConversation(store.CreateConversationParams{
		ConversationID: p.ConversationID, Scope: p.Scope, DirectoryID: p.DirectoryID,
		Title: p.Title, AgentType: p.AgentType, AdapterState: p.AdapterState, HasLiveSession: hasLive,
	})
	if err != nil {
		return nil, err
	}
	d.Mux.PublishAll(events)
	return map[string]interface{}{"conversation": c}, nil
}

type conversationUpdateParams struct {
	ConversationID string `json:"conversationId"`
	Title          string `json:"title"`
}

func cmdConversationUpdate(_ context.Context, d *Dispatcher, raw json.RawMessage) (interface{}, error) {
	var p conversationUpdateParams
	if err := decodeParams(raw, &p); err != nil {
		return nil, err
	}
	c, events, err := d.Store.UpdateConversationTitle(p.ConversationID, p.Title)
	if err != nil {
		return nil, err
	}
	d.Mux.PublishAll(events)
	return map[string]interface{}{"conversation": c}, nil
}

type conversationArchiveParams struct {
	ConversationID string `json:"conversationId"`
}

func cmdConversationArchive(_ context.Context, d *Dispatcher, raw json.RawMessage) (interface{}, error) {
	var p conversationArchiveParams
	if err := decodeParams(raw, &p); err != nil {
		return nil, err
	}
	events, err := d.Store.ArchiveConversation(p.ConversationID)
	if err != nil {
		return nil, err
	}
	d.Mux.PublishAll(events)
	return map[string]interface{}{"archived": true}, nil
}

type conversationDeleteParams struct {
	ConversationID string `json:"conversationId"`
}

func cmdConversationDelete(_ context.Context, d *Dispatcher, raw json.RawMessage) (interface{}, error) {
	var p conversationDeleteParams
	if err := decodeParams(raw, &p); err != nil {
		return nil, err
	}
	var closer store.SessionCloser
	if d.Sessions != nil {
		closer = d.Sessions
	}
	events, err := d.Store.DeleteConversation(p.ConversationID, closer)
	if err != nil {
		return nil, err
	}
	d.Mux.PublishAll(events)
	return map[string]interface{}{"deleted": true}, nil
}

type conversationListParams struct {
	store.Scope
	DirectoryID     string `json:"directoryId"`
	IncludeArchived bool   `json:"includeArchived"`
	Limit           int    `json:"limit"`
}

func cmdConversationList(_ context.Context, d *Dispatcher, raw json.RawMessage) (interface{}, error) {
	var p conversationListParams
	if err := decodeParams(raw, &p); err != nil {
		return nil, err
	}
	convs := d.Store.ListConversations(store.ListConversationsParams{
		Scope: p.Scope, DirectoryID: p.DirectoryID, IncludeArchived: p.IncludeArchived, Limit: p.Limit,
	})
	return map[string]interface{}{"conversations": convs}, nil
}

// --- task.* ---

type taskCreateParams struct {
	store.Scope
	ScopeKind    string `json:"scopeKind"`
	ScopeID      string `json:"scopeId"`
	RepositoryID string `json:"repositoryId"`
	Title        string `json:"title"`
	Description  string `json:"description"`
}

func cmdTaskCreate(_ context.Context, d *Dispatcher, raw json.RawMessage) (interface{}, error) {
	var p taskCreateParams
	if err := decodeParams(raw, &p); err != nil {
		return nil, err
	}
	t, events, err := d.Store.CreateTask(store.CreateTaskParams{
		Scope: p.Scope, ScopeKind: taskScopeKind(p.ScopeKind), ScopeID: p.ScopeID,
		RepositoryID: p.RepositoryID, Title: p.Title, Description: p.Description,
	})
	if err != nil {
		return nil, err
	}
	d.Mux.PublishAll(events)
	return map[string]interface{}{"task": t}, nil
}

type taskIDParams struct {
	TaskID string `json:"taskId"`
}

func cmdTaskReady(_ context.Context, d *Dispatcher, raw json.RawMessage) (interface{}, error) {
	var p taskIDParams
	if err := decodeParams(raw, &p); err != nil {
		return nil, err
	}
	t, events, err := d.Store.SetTaskReady(p.TaskID)
	if err != nil {
		return nil, err
	}
	d.Mux.PublishAll(events)
	return map[string]interface{}{"task": t}, nil
}

func cmdTaskDraft(_ context.Context, d *Dispatcher, raw json.RawMessage) (interface{}, error) {
	var p taskIDParams
	if err := decodeParams(raw, &p); err != nil {
		return nil, err
	}
	t, events, err := d.Store.SetTaskDraft(p.TaskID)
	if err != nil {
		return nil, err
	}
	d.Mux.PublishAll(events)
	return map[string]interface{}{"task": t}, nil
}

func cmdTaskComplete(_ context.Context, d *Dispatcher, raw json.RawMessage) (interface{}, error) {
	var p taskIDParams
	if err := decodeParams(raw, &p); err != nil {
		return nil, err
	}
	t, events, err := d.Store.CompleteTask(p.TaskID)
	if err != nil {
		return nil, err
	}
	d.Mux.PublishAll(events)
	return map[string]interface{}{"task": t}, nil
}

type taskReorderParams struct {
	ScopeKind      string   `json:"scopeKind"`
	ScopeID        string   `json:"scopeId"`
	OrderedTaskIDs []string `json:"orderedTaskIds"`
}

func cmdTaskReorder(_ context.Context, d *Dispatcher, raw json.RawMessage) (interface{}, error) {
	var p taskReorderParams
	if err := decodeParams(raw, &p); err != nil {
		return nil, err
	}
	tasks, events, err := d.Store.ReorderTasks(store.ReorderTasksParams{
		ScopeKind: taskScopeKind(p.ScopeKind), ScopeID: p.ScopeID, OrderedTaskIDs: p.OrderedTaskIDs,
	})
	if err != nil {
		return nil, err
	}
	d.Mux.PublishAll(events)
	return map[string]interface{}{"tasks": tasks}, nil
}

type taskClaimParams struct {
	TaskID         string `json:"taskId"`
	ControllerID   string `json:"controllerId"`
	ControllerType string `json:"controllerType"`
	ProjectID      string `json:"projectId"`
	BranchName     string `json:"branchName"`
	BaseBranch     string `json:"baseBranch"`
}

func cmdTaskClaim(_ context.Context, d *Dispatcher, raw json.RawMessage) (interface{}, error) {
	var p taskClaimParams
	if err := decodeParams(raw, &p); err != nil {
		return nil, err
	}
	t, events, err := d.Store.ClaimTask(store.ClaimTaskParams{
		TaskID: p.TaskID, ControllerID: p.ControllerID, ControllerType: p.ControllerType,
		ProjectID: p.ProjectID, BranchName: p.BranchName, BaseBranch: p.BaseBranch,
	})
	if err != nil {
		return nil, err
	}
	d.Mux.PublishAll(events)
	return map[string]interface{}{"task": t}, nil
}

type taskPullParams struct {
	ScopeKind      string `json:"scopeKind"`
	ScopeID        string `json:"scopeId"`
	ControllerID   string `json:"controllerId"`
	ControllerType string `json:"controllerType"`
	ProjectID      string `json:"projectId"`
	RepositoryID   string `json:"repositoryId"`
	BranchName     string `json:"branchName"`
	BaseBranch     string `json:"baseBranch"`
}

func cmdTaskPull(_ context.Context, d *Dispatcher, raw json.RawMessage) (interface{}, error) {
	var p taskPullParams
	if err := decodeParams(raw, &p); err != nil {
		return nil, err
	}
	result, events, err := d.Store.PullTask(store.PullTaskParams{
		ScopeKind: taskScopeKind(p.ScopeKind), ScopeID: p.ScopeID, ControllerID: p.ControllerID,
		ControllerType: p.ControllerType, ProjectID: p.ProjectID, RepositoryID: p.RepositoryID,
		BranchName: p.BranchName, BaseBranch: p.BaseBranch,
	})
	if err != nil {
		return nil, err
	}
	d.Mux.PublishAll(events)
	var directoryID string
	if result.Task != nil {
		directoryID = result.DirectoryID
	}
	return map[string]interface{}{
		"task": result.Task, "directoryId": directoryID, "availability": result.Availability,
		"reason": result.Reason, "repositoryId": result.RepositoryID, "settings": result.Settings,
	}, nil
}

type taskListParams struct {
	ScopeKind string `json:"scopeKind"`
	ScopeID   string `json:"scopeId"`
}

func cmdTaskList(_ context.Context, d *Dispatcher, raw json.RawMessage) (interface{}, error) {
	var p taskListParams
	if err := decodeParams(raw, &p); err != nil {
		return nil, err
	}
	tasks := d.Store.ListTasks(store.ListTasksParams{ScopeKind: taskScopeKind(p.ScopeKind), ScopeID: p.ScopeID})
	return map[string]interface{}{"tasks": tasks}, nil
}
