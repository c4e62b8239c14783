// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package seed loads an optional YAML manifest of directories,
// repositories, and tasks into the Domain Store once at daemon startup
// (SPEC_FULL.md DOMAIN STACK, "optional YAML seed-data manifest"),
// grounded on relay.SeedAnchors's read-YAML-then-upsert-each shape
// (internal/relay/seed_social.go).
package seed

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/groupsio/harnessd/internal/protocol"
	"github.com/groupsio/harnessd/internal/store"
)

type directoryDef struct {
	Scope        scopeDef `yaml:"scope"`
	Path         string   `yaml:"path"`
	RepositoryID string   `yaml:"repositoryId"`
}

type repositoryDef struct {
	Scope         scopeDef               `yaml:"scope"`
	Name          string                 `yaml:"name"`
	RemoteURL     string                 `yaml:"remoteUrl"`
	DefaultBranch string                 `yaml:"defaultBranch"`
	Metadata      map[string]interface{} `yaml:"metadata"`
}

type taskDef struct {
	Scope        scopeDef `yaml:"scope"`
	ScopeKind    string   `yaml:"scopeKind"`
	ScopeID      string   `yaml:"scopeId"`
	RepositoryID string   `yaml:"repositoryId"`
	Title        string   `yaml:"title"`
	Description  string   `yaml:"description"`
}

type scopeDef struct {
	TenantID    string `yaml:"tenantId"`
	UserID      string `yaml:"userId"`
	WorkspaceID string `yaml:"workspaceId"`
}

func (s scopeDef) toScope() store.Scope {
	return store.Scope{TenantID: s.TenantID, UserID: s.UserID, WorkspaceID: s.WorkspaceID}
}

type manifest struct {
	Directories  []directoryDef  `yaml:"directories"`
	Repositories []repositoryDef `yaml:"repositories"`
	Tasks        []taskDef       `yaml:"tasks"`
}

// Result reports how many rows of each kind were seeded.
type Result struct {
	Directories  int
	Repositories int
	Tasks        int
}

// Apply reads path as a YAML manifest and upserts every entry into s.
// A missing path is not an error: callers only invoke Apply when
// Config.SeedFile is set, but a path that has since been removed should
// not block startup.
func Apply(s *store.Store, path string) (Result, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return Result{}, nil
	}
	if err != nil {
		return Result{}, fmt.Errorf("read seed file: %w", err)
	}

	var m manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return Result{}, fmt.Errorf("parse seed yaml: %w", err)
	}

	var res Result
	for _, d := range m.Directories {
		if _, _, err := s.UpsertDirectory(store.UpsertDirectoryParams{
			Scope: d.Scope.toScope(), Path: d.Path, RepositoryID: d.RepositoryID,
		}); err != nil {
			return res, fmt.Errorf("seed directory %q: %w", d.Path, err)
		}
		res.Directories++
	}
	for _, r := range m.Repositories {
		if _, _, err := s.UpsertRepository(store.UpsertRepositoryParams{
			Scope: r.Scope.toScope(), Name: r.Name, RemoteURL: r.RemoteURL,
			DefaultBranch: r.DefaultBranch, Metadata: r.Metadata,
		}); err != nil {
			return res, fmt.Errorf("seed repository %q: %w", r.Name, err)
		}
		res.Repositories++
	}
	for _, t := range m.Tasks {
		kind := protocol.TaskScopeKind(t.ScopeKind)
		if !protocol.ValidTaskScopeKind(string(kind)) {
			return res, fmt.Errorf("seed task %q: invalid scopeKind %q", t.Title, t.ScopeKind)
		}
		if _, _, err := s.CreateTask(store.CreateTaskParams{
			Scope: t.Scope.toScope(), ScopeKind: kind, ScopeID: t.ScopeID,
			RepositoryID: t.RepositoryID, Title: t.Title, Description: t.Description,
		}); err != nil {
			return res, fmt.Errorf("seed task %q: %w", t.Title, err)
		}
		res.Tasks++
	}
	return res, nil
}
