// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package store

import (
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/groupsio/harnessd/internal/protocol"
)

// Store is the single in-memory authority over directories, repositories,
// conversations, and tasks (spec §4.3). One write lock guards every
// mutation; each mutation is a short critical section that returns the
// mutated snapshot plus the ObservedEvents it produced, so the caller can
// fan them out to the Subscription Multiplexer outside the lock (spec §9
// "Store mutation + event emission must be atomic").
type Store struct {
	mu sync.Mutex

	directories   map[string]*Directory
	gitSnapshots  map[string]*DirectoryGitSnapshot
	repositories  map[string]*Repository
	conversations map[string]*Conversation
	tasks         map[string]*Task

	now func() time.Time
}

// New returns an empty Store.
func New() *Store {
	return &Store{
		directories:   make(map[string]*Directory),
		gitSnapshots:  make(map[string]*DirectoryGitSnapshot),
		repositories:  make(map[string]*Repository),
		conversations: make(map[string]*Conversation),
		tasks:         make(map[string]*Task),
		now:           time.Now,
	}
}

func (s *Store) clock() time.Time {
	if s.now != nil {
		return s.now()
	}
	return time.Now()
}

func newID() string {
	return uuid.New().String()
}

func cloneDirectory(d *Directory) *Directory {
	cp := *d
	return &cp
}

func cloneRepository(r *Repository) *Repository {
	cp := *r
	return &cp
}

func cloneConversation(c *Conversation) *Conversation {
	cp := *c
	return &cp
}

func cloneTask(t *Task) *Task {
	cp := *t
	return &cp
}

// --- directories ---

// UpsertDirectoryParams are the arguments to directory.upsert.
type UpsertDirectoryParams struct {
	DirectoryID  string
	Scope        Scope
	Path         string
	RepositoryID string
}

// UpsertDirectory creates or updates a directory record, emitting
// directory-upserted.
func (s *Store) UpsertDirectory(p UpsertDirectoryParams) (*Directory, []ObservedEvent, error) {
	if p.Path == "" {
		return nil, nil, newError(KindInvalidArgument, "path is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var d *Directory
	if p.DirectoryID != "" {
		existing, ok := s.directories[p.DirectoryID]
		if !ok {
			return nil, nil, newError(KindNotFound, "directory %q not found", p.DirectoryID)
		}
		d = cloneDirectory(existing)
		d.Path = p.Path
		if p.RepositoryID != "" {
			d.RepositoryID = p.RepositoryID
		}
	} else {
		d = &Directory{
			Scope:        p.Scope,
			DirectoryID:  newID(),
			Path:         p.Path,
			RepositoryID: p.RepositoryID,
			CreatedAt:    s.clock(),
		}
	}
	s.directories[d.DirectoryID] = d

	event := ObservedEvent{
		Type:        protocol.EventDirectoryUpserted,
		TS:          s.clock(),
		Scope:       d.Scope,
		Directory:   cloneDirectory(d),
		DirectoryID: d.DirectoryID,
	}
	return cloneDirectory(d), []ObservedEvent{event}, nil
}

// ListDirectoriesParams are the arguments to directory.list.
type ListDirectoriesParams struct {
	Scope           Scope
	IncludeArchived bool
	Limit           int
}

// ListDirectories returns directories newest-first, then id lexicographic.
func (s *Store) ListDirectories(p ListDirectoriesParams) []*Directory {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []*Directory
	for _, d := range s.directories {
		if d.Scope != p.Scope {
			continue
		}
		if !p.IncludeArchived && d.ArchivedAt != nil {
			continue
		}
		out = append(out, cloneDirectory(d))
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].DirectoryID < out[j].DirectoryID
	})
	if p.Limit > 0 && len(out) > p.Limit {
		out = out[:p.Limit]
	}
	return out
}

// ArchiveDirectory soft-deletes a directory and cascades archive to its
// conversations (spec §4.3).
func (s *Store) ArchiveDirectory(directoryID string) ([]ObservedEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	d, ok := s.directories[directoryID]
	if !ok {
		return nil, newError(KindNotFound, "directory %q not found", directoryID)
	}
	ts := s.clock()
	d.ArchivedAt = &ts

	events := []ObservedEvent{{
		Type:        protocol.EventDirectoryArchived,
		TS:          ts,
		Scope:       d.Scope,
		DirectoryID: directoryID,
	}}

	for _, c := range s.conversations {
		if c.DirectoryID != directoryID || c.ArchivedAt != nil {
			continue
		}
		c.ArchivedAt = &ts
		events = append(events, ObservedEvent{
			Type:           protocol.EventConversationArchived,
			TS:             ts,
			Scope:          c.Scope,
			ConversationID: c.ConversationID,
		})
	}
	return events, nil
}

// RecordGitSnapshot overwrites a directory's git snapshot wholesale and
// emits directory-git-updated.
func (s *Store) RecordGitSnapshot(snap DirectoryGitSnapshot) ([]ObservedEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	d, ok := s.directories[snap.DirectoryID]
	if !ok {
		return nil, newError(KindNotFound, "directory %q not found", snap.DirectoryID)
	}
	snap.ObservedAt = s.clock()
	cp := snap
	s.gitSnapshots[snap.DirectoryID] = &cp

	return []ObservedEvent{{
		Type:        protocol.EventDirectoryGitUpdated,
		TS:          cp.ObservedAt,
		Scope:       d.Scope,
		DirectoryID: snap.DirectoryID,
		GitSnapshot: &cp,
	}}, nil
}

// GitStatus returns git snapshots matching scope, optionally narrowed to
// one directory.
func (s *Store) GitStatus(scope Scope, directoryID string) []*DirectoryGitSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []*DirectoryGitSnapshot
	for id, snap := range s.gitSnapshots {
		if directoryID != "" && id != directoryID {
			continue
		}
		d, ok := s.directories[id]
		if !ok || d.Scope != scope {
			continue
		}
		cp := *snap
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].DirectoryID < out[j].DirectoryID })
	return out
}

// --- repositories ---

// UpsertRepositoryParams are the arguments to repository.upsert.
type UpsertRepositoryParams struct {
	RepositoryID  string
	Scope         Scope
	Name          string
	RemoteURL     string
	DefaultBranch string
	Metadata      map[string]interface{}
}

// UpsertRepository creates or updates a repository record.
func (s *Store) UpsertRepository(p UpsertRepositoryParams) (*Repository, []ObservedEvent, error) {
	if p.Name == "" {
		return nil, nil, newError(KindInvalidArgument, "name is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	eventType := protocol.EventRepositoryUpserted
	var r *Repository
	if p.RepositoryID != "" {
		existing, ok := s.repositories[p.RepositoryID]
		if !ok {
			return nil, nil, newError(KindNotFound, "repository %q not found", p.RepositoryID)
		}
		r = cloneRepository(existing)
		r.Name = p.Name
		r.RemoteURL = p.RemoteURL
		r.DefaultBranch = p.DefaultBranch
		r.Metadata = p.Metadata
		eventType = protocol.EventRepositoryUpdated
	} else {
		r = &Repository{
			Scope:         p.Scope,
			RepositoryID:  newID(),
			Name:          p.Name,
			RemoteURL:     p.RemoteURL,
			DefaultBranch: p.DefaultBranch,
			Metadata:      p.Metadata,
			CreatedAt:     s.clock(),
		}
	}
	s.repositories[r.RepositoryID] = r

	event := ObservedEvent{
		Type:         eventType,
		TS:           s.clock(),
		Scope:        r.Scope,
		Repository:   cloneRepository(r),
		RepositoryID: r.RepositoryID,
	}
	return cloneRepository(r), []ObservedEvent{event}, nil
}

// GetRepository returns a repository by id.
func (s *Store) GetRepository(repositoryID string) (*Repository, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.repositories[repositoryID]
	if !ok {
		return nil, newError(KindNotFound, "repository %q not found", repositoryID)
	}
	return cloneRepository(r), nil
}

// ListRepositoriesParams are the arguments to repository.list.
type ListRepositoriesParams struct {
	Scope           Scope
	IncludeArchived bool
	Limit           int
}

// ListRepositories mirrors ListDirectories' ordering rule.
func (s *Store) ListRepositories(p ListRepositoriesParams) []*Repository {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []*Repository
	for _, r := range s.repositories {
		if r.Scope != p.Scope {
			continue
		}
		if !p.IncludeArchived && r.ArchivedAt != nil {
			continue
		}
		out = append(out, cloneRepository(r))
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].RepositoryID < out[j].RepositoryID
	})
	if p.Limit > 0 && len(out) > p.Limit {
		out = out[:p.Limit]
	}
	return out
}

// ArchiveRepository soft-deletes a repository. Repository deletion is not
// supported (spec §4.3).
func (s *Store) ArchiveRepository(repositoryID string) ([]ObservedEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.repositories[repositoryID]
	if !ok {
		return nil, newError(KindNotFound, "repository %q not found", repositoryID)
	}
	ts := s.clock()
	r.ArchivedAt = &ts

	return []ObservedEvent{{
		Type:         protocol.EventRepositoryArchived,
		TS:           ts,
		Scope:        r.Scope,
		RepositoryID: repositoryID,
	}}, nil
}
