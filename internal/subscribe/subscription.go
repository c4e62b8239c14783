// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package subscribe

import (
	"sync"

	"github.com/groupsio/harnessd/internal/store"
)

// Delivery is one observed event assigned a subscription-local cursor
// (spec §4.5 "the server assigns the next integer cursor when dequeuing").
type Delivery struct {
	SubscriptionID string
	Cursor         int64
	Event          store.ObservedEvent
}

// Subscription is one ordered queue of deliveries, plus the backlog
// needed to satisfy a later `afterCursor` replay (spec §4.5, §8 scenario
// b). Events() delivers in assignment order; a full channel drops the
// subscription rather than blocking the publish path, reported to the
// caller via Dropped().
type Subscription struct {
	mu sync.Mutex

	id     string
	filter Filter
	cursor int64

	backlog      []Delivery
	retentionCap int

	events  chan Delivery
	dropped chan struct{}
	closed  bool
	isDropped bool
}

func newSubscription(id string, filter Filter, retentionCap, queueDepth int) *Subscription {
	if queueDepth <= 0 {
		queueDepth = 256
	}
	return &Subscription{
		id:           id,
		filter:       filter,
		retentionCap: retentionCap,
		events:       make(chan Delivery, queueDepth),
		dropped:      make(chan struct{}),
	}
}

// ID returns the subscription's identifier.
func (s *Subscription) ID() string { return s.id }

// Filter returns the subscription's current filter.
func (s *Subscription) Filter() Filter {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.filter
}

// Cursor returns the subscription's current highwater cursor.
func (s *Subscription) Cursor() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cursor
}

// Events is the channel of deliveries in cursor order.
func (s *Subscription) Events() <-chan Delivery { return s.events }

// Dropped is closed if the subscription was dropped due to backpressure
// (spec §4.5 "the multiplexer may drop the subscription").
func (s *Subscription) Dropped() <-chan struct{} { return s.dropped }

// deliver assigns the next cursor to ev and enqueues it, retaining it in
// the replay backlog. It returns false if the subscription's queue was
// full and the subscription has been dropped.
func (s *Subscription) deliver(ev store.ObservedEvent) bool {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return true
	}
	s.cursor++
	d := Delivery{SubscriptionID: s.id, Cursor: s.cursor, Event: ev}
	s.backlog = append(s.backlog, d)
	if s.retentionCap > 0 && len(s.backlog) > s.retentionCap {
		s.backlog = s.backlog[len(s.backlog)-s.retentionCap:]
	}
	s.mu.Unlock()

	select {
	case s.events <- d:
		return true
	default:
		s.markDropped()
		return false
	}
}

func (s *Subscription) markDropped() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.isDropped {
		return
	}
	s.isDropped = true
	close(s.dropped)
}

// replaySince returns retained deliveries with cursor strictly greater
// than afterCursor, and whether afterCursor fell outside the retained
// window (spec §4.5 "if afterCursor is older than the retained window
// the result indicates truncation").
func (s *Subscription) replaySince(afterCursor int64) (replay []Delivery, truncated bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.backlog) > 0 && afterCursor < s.backlog[0].Cursor-1 {
		truncated = true
	}
	for _, d := range s.backlog {
		if d.Cursor > afterCursor {
			replay = append(replay, d)
		}
	}
	return replay, truncated
}

func (s *Subscription) close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	close(s.events)
}
