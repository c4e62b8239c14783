// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package gateway

import (
	"log"

	"github.com/groupsio/harnessd/internal/protocol"
	"github.com/groupsio/harnessd/internal/store"
	"github.com/groupsio/harnessd/internal/subscribe"
)

// StoreSyncPublisher wraps a Multiplexer so that session-exit observed
// events also flip the owning conversation's runtimeLive/runtimeStatus
// before fan-out, keeping conversation.list/get consistent with the
// Session Registry without the registry importing the Store directly
// (spec §3 "Ownership").
type StoreSyncPublisher struct {
	store *store.Store
	mux   *subscribe.Multiplexer
}

// NewStoreSyncPublisher returns a ptysession.Publisher that updates s
// before forwarding to mux.
func NewStoreSyncPublisher(s *store.Store, mux *subscribe.Multiplexer) *StoreSyncPublisher {
	return &StoreSyncPublisher{store: s, mux: mux}
}

func (p *StoreSyncPublisher) Publish(ev store.ObservedEvent) {
	switch ev.Type {
	case protocol.EventSessionExit:
		if err := p.store.MarkSessionLive(ev.ConversationID, false, ev.Exit); err != nil {
			log.Printf("gateway: mark session not-live: %v", err)
		}
	case protocol.EventSessionStatus:
		if ev.StatusModel == nil {
			return
		}
		events, err := p.store.UpdateSessionStatus(ev.ConversationID, *ev.StatusModel)
		if err != nil {
			log.Printf("gateway: update session status: %v", err)
			return
		}
		for _, e := range events {
			p.mux.Publish(e)
		}
		return
	}
	p.mux.Publish(ev)
}
