// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package subscribe

import (
	"sync"

	"github.com/google/uuid"

	"github.com/groupsio/harnessd/internal/store"
)

// Options configures a Multiplexer.
type Options struct {
	// RetentionPerSubscription bounds how many past deliveries each
	// subscription keeps for afterCursor replay.
	RetentionPerSubscription int
	// QueueDepth bounds each subscription's live delivery channel.
	QueueDepth int
}

// Multiplexer owns every live subscription and fans observed events out
// to the ones whose filter matches (spec §4.5). Publish must be called
// from inside (or immediately after) the Domain Store's write-lock
// region so that fan-out preserves commit order across subscriptions
// (spec §5 "the observed events produced by M1 have smaller cursors than
// those by M2 on every subscription that matches both").
type Multiplexer struct {
	mu            sync.Mutex
	subs          map[string]*Subscription
	retentionCap  int
	queueDepth    int
}

// NewMultiplexer returns a ready-to-use Multiplexer.
func NewMultiplexer(opts Options) *Multiplexer {
	return &Multiplexer{
		subs:         make(map[string]*Subscription),
		retentionCap: opts.RetentionPerSubscription,
		queueDepth:   opts.QueueDepth,
	}
}

// SubscribeOptions are the arguments to Subscribe.
type SubscribeOptions struct {
	// ResumeID, if non-empty, reuses (or creates) a subscription under
	// this id rather than minting a fresh uuid — the mechanism by which
	// a reconnecting client resumes a detached subscription's backlog
	// (DESIGN.md "stream.subscribe resume").
	ResumeID    string
	Filter      Filter
	AfterCursor *int64
}

// Subscribe registers filter and returns the subscription plus any
// retained replay for afterCursor (spec §4.5 "stream.subscribe returns
// {subscriptionId, cursor}").
func (m *Multiplexer) Subscribe(opts SubscribeOptions) (sub *Subscription, replay []Delivery, truncated bool) {
	m.mu.Lock()
	id := opts.ResumeID
	existing, ok := m.subs[id]
	if id == "" || !ok {
		if id == "" {
			id = uuid.New().String()
		}
		sub = newSubscription(id, opts.Filter, m.retentionCap, m.queueDepth)
		m.subs[id] = sub
	} else {
		sub = existing
		sub.mu.Lock()
		sub.filter = opts.Filter
		sub.mu.Unlock()
	}
	m.mu.Unlock()

	if opts.AfterCursor != nil {
		replay, truncated = sub.replaySince(*opts.AfterCursor)
	}
	return sub, replay, truncated
}

// Unsubscribe removes a subscription, reporting whether it existed
// (spec §4.5 "unknown ids return false without error").
func (m *Multiplexer) Unsubscribe(id string) bool {
	m.mu.Lock()
	sub, ok := m.subs[id]
	if ok {
		delete(m.subs, id)
	}
	m.mu.Unlock()
	if ok {
		sub.close()
	}
	return ok
}

// Publish fans ev out to every matching subscription, assigning each one
// its own next cursor (spec §4.5 "Global monotonic counter per
// subscription, not shared across subscriptions").
func (m *Multiplexer) Publish(ev store.ObservedEvent) {
	m.mu.Lock()
	targets := make([]*Subscription, 0, len(m.subs))
	for _, sub := range m.subs {
		if sub.Filter().Matches(ev) {
			targets = append(targets, sub)
		}
	}
	m.mu.Unlock()

	for _, sub := range targets {
		sub.deliver(ev)
	}
}

// PublishAll fans out every event from one store mutation's result in
// order, preserving their relative cursor ordering within each matching
// subscription (spec §9 "Store mutation + event emission must be
// atomic").
func (m *Multiplexer) PublishAll(events []store.ObservedEvent) {
	for _, ev := range events {
		m.Publish(ev)
	}
}
