// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package gateway

import (
	"github.com/groupsio/harnessd/internal/protocol"
	"github.com/groupsio/harnessd/internal/store"
)

func taskScopeKind(s string) protocol.TaskScopeKind {
	return protocol.TaskScopeKind(s)
}

func invalidArgument(format string) error {
	return &store.Error{Kind: store.KindInvalidArgument, Message: format}
}
