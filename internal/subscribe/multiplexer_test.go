// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package subscribe

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/groupsio/harnessd/internal/protocol"
	"github.com/groupsio/harnessd/internal/store"
)

func recvDelivery(t *testing.T, sub *Subscription) Delivery {
	t.Helper()
	select {
	case d := <-sub.Events():
		return d
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for delivery")
		return Delivery{}
	}
}

func TestMultiplexer_FanOutAssignsPerSubscriptionCursors(t *testing.T) {
	mux := NewMultiplexer(Options{QueueDepth: 8})

	subA, _, _ := mux.Subscribe(SubscribeOptions{Filter: Filter{RepositoryID: "r1"}})
	subB, _, _ := mux.Subscribe(SubscribeOptions{Filter: Filter{RepositoryID: "r2"}})

	mux.Publish(store.ObservedEvent{Type: protocol.EventTaskCreated, Task: &store.Task{RepositoryID: "r1"}})
	mux.Publish(store.ObservedEvent{Type: protocol.EventTaskCreated, Task: &store.Task{RepositoryID: "r2"}})
	mux.Publish(store.ObservedEvent{Type: protocol.EventTaskCreated, Task: &store.Task{RepositoryID: "r1"}})

	d1 := recvDelivery(t, subA)
	assert.Equal(t, int64(1), d1.Cursor)
	d2 := recvDelivery(t, subA)
	assert.Equal(t, int64(2), d2.Cursor)

	dB := recvDelivery(t, subB)
	assert.Equal(t, int64(1), dB.Cursor)
}

func TestMultiplexer_IncludeOutputFiltersSessionOutput(t *testing.T) {
	mux := NewMultiplexer(Options{QueueDepth: 8})

	noOutput, _, _ := mux.Subscribe(SubscribeOptions{Filter: Filter{ConversationID: "c1", IncludeOutput: false}})
	withOutput, _, _ := mux.Subscribe(SubscribeOptions{Filter: Filter{ConversationID: "c1", IncludeOutput: true}})

	mux.Publish(store.ObservedEvent{Type: protocol.EventSessionOutput, SessionID: "c1"})
	mux.Publish(store.ObservedEvent{Type: protocol.EventSessionExit, SessionID: "c1"})

	d := recvDelivery(t, withOutput)
	assert.Equal(t, protocol.EventSessionOutput, d.Event.Type)
	d = recvDelivery(t, withOutput)
	assert.Equal(t, protocol.EventSessionExit, d.Event.Type)

	d = recvDelivery(t, noOutput)
	assert.Equal(t, protocol.EventSessionExit, d.Event.Type)

	select {
	case extra := <-noOutput.Events():
		t.Fatalf("unexpected extra delivery: %+v", extra)
	default:
	}
}

func TestMultiplexer_AfterCursorReplayAndTruncation(t *testing.T) {
	mux := NewMultiplexer(Options{QueueDepth: 8, RetentionPerSubscription: 2})

	sub, _, _ := mux.Subscribe(SubscribeOptions{Filter: Filter{ConversationID: "c1", IncludeOutput: true}})
	for i := 0; i < 3; i++ {
		mux.Publish(store.ObservedEvent{Type: protocol.EventSessionOutput, SessionID: "c1"})
		<-sub.Events()
	}

	after := int64(0)
	resumed, replayed, wasTruncated := mux.Subscribe(SubscribeOptions{ResumeID: sub.ID(), Filter: sub.Filter(), AfterCursor: &after})
	require.Equal(t, sub.ID(), resumed.ID())
	assert.True(t, wasTruncated)
	require.Len(t, replayed, 2)
	assert.Equal(t, int64(2), replayed[0].Cursor)
	assert.Equal(t, int64(3), replayed[1].Cursor)
}

func TestMultiplexer_UnsubscribeUnknownReturnsFalse(t *testing.T) {
	mux := NewMultiplexer(Options{})
	assert.False(t, mux.Unsubscribe("nope"))
}

func TestMultiplexer_UnsubscribeClosesChannel(t *testing.T) {
	mux := NewMultiplexer(Options{QueueDepth: 4})
	sub, _, _ := mux.Subscribe(SubscribeOptions{Filter: Filter{}})

	require.True(t, mux.Unsubscribe(sub.ID()))

	_, ok := <-sub.Events()
	assert.False(t, ok)
}
