// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package gateway implements the Control-Plane Server (spec §4.6): the
// per-connection auth/ready/done state machine, the command dispatcher
// that routes commands to the Domain Store, Session Registry, and
// Subscription Multiplexer, and the on-disk gateway record file.
package gateway

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/groupsio/harnessd/internal/ptysession"
	"github.com/groupsio/harnessd/internal/store"
	"github.com/groupsio/harnessd/internal/subscribe"
)

// Dispatcher routes decoded commands to their collaborator and renders
// the JSON result carried inside command.completed (spec §4.6 "dispatch,
// then write command.completed or command.failed"). It holds no
// connection state; each call is independently dispatchable so commands
// from one connection may run concurrently (spec §4.6).
type Dispatcher struct {
	Store    *store.Store
	Sessions *ptysession.Manager
	Mux      *subscribe.Multiplexer
}

// Dispatch decodes cmd.Params against the handler registered for
// cmd.Type and returns the JSON result object, or an error. The caller
// (conn.handleCommand) is responsible for rendering the error through
// wireError and for checking ctx before writing the response, so a
// command whose connection already closed never has its result
// observed (spec §5 "the client does not receive their
// command.completed").
func (d *Dispatcher) Dispatch(ctx context.Context, cmdType string, params json.RawMessage) (interface{}, error) {
	handler, ok := commandTable[cmdType]
	if !ok {
		return nil, invalidArgument(fmt.Sprintf("unknown command type %q", cmdType))
	}
	return handler(ctx, d, params)
}

type commandHandler func(ctx context.Context, d *Dispatcher, params json.RawMessage) (interface{}, error)

var commandTable = map[string]commandHandler{
	"directory.upsert":     cmdDirectoryUpsert,
	"directory.list":       cmdDirectoryList,
	"directory.archive":    cmdDirectoryArchive,
	"directory.git-status": cmdDirectoryGitStatus,

	"repository.upsert":  cmdRepositoryUpsert,
	"repository.get":     cmdRepositoryGet,
	"repository.list":    cmdRepositoryList,
	"repository.update":  cmdRepositoryUpdate,
	"repository.archive": cmdRepositoryArchive,

	"conversation.create":  cmdConversationCreate,
	"conversation.update":  cmdConversationUpdate,
	"conversation.archive": cmdConversationArchive,
	"conversation.delete":  cmdConversationDelete,
	"conversation.list":    cmdConversationList,

	"task.create":  cmdTaskCreate,
	"task.ready":   cmdTaskReady,
	"task.draft":   cmdTaskDraft,
	"task.queue":   cmdTaskReady,
	"task.complete": cmdTaskComplete,
	"task.reorder":  cmdTaskReorder,
	"task.claim":    cmdTaskClaim,
	"task.pull":     cmdTaskPull,
	"task.list":     cmdTaskList,

	"session.claim":   cmdSessionClaim,
	"session.release":  cmdSessionRelease,
	"session.respond":  cmdSessionRespond,
	"session.interrupt": cmdSessionInterrupt,
	"session.remove":   cmdSessionRemove,
	"session.list":     cmdSessionList,
	"session.status":   cmdSessionStatus,
}

func decodeParams(raw json.RawMessage, target interface{}) error {
	if len(raw) == 0 {
		return fmt.Errorf("invalid: missing command params")
	}
	if err := json.Unmarshal(raw, target); err != nil {
		return fmt.Errorf("invalid: %v", err)
	}
	return nil
}
