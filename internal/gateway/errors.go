// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package gateway

import (
	"errors"
	"fmt"

	"github.com/groupsio/harnessd/internal/ptysession"
	"github.com/groupsio/harnessd/internal/store"
)

// wireError renders err with the stable kind prefix the wire protocol
// requires (spec §7 "Error taxonomy"). Errors that are neither a
// *store.Error nor a *ptysession.Error are reported as internal.
func wireError(err error) string {
	if err == nil {
		return ""
	}
	if kind, ok := store.KindOf(err); ok {
		return storeWirePrefix(kind) + err.Error()
	}
	if kind, ok := ptysession.KindOf(err); ok {
		return sessionWirePrefix(kind) + err.Error()
	}
	var shuttingDown *ErrShuttingDown
	if errors.As(err, &shuttingDown) {
		return "shutting-down:" + err.Error()
	}
	return fmt.Sprintf("internal: %v", err)
}

func storeWirePrefix(kind store.ErrorKind) string {
	switch kind {
	case store.KindNotFound:
		return "not-found: "
	case store.KindConflict:
		return "conflict: "
	case store.KindPreconditionFailed:
		return "precondition: "
	case store.KindInvalidArgument:
		return "invalid: "
	default:
		return "internal: "
	}
}

func sessionWirePrefix(kind ptysession.ErrorKind) string {
	switch kind {
	case ptysession.KindNotFound:
		return "not-found: "
	case ptysession.KindConflict:
		return "conflict: "
	case ptysession.KindInvalid:
		return "invalid: "
	case ptysession.KindSessionNotLive:
		return "session is not live: "
	case ptysession.KindCancelled:
		return "cancelled: "
	default:
		return "internal: "
	}
}

// ErrShuttingDown is returned by command dispatch once the server has
// begun draining (spec §5 "refuses new commands with shutting-down").
type ErrShuttingDown struct{}

func (*ErrShuttingDown) Error() string { return "server is shutting down" }
