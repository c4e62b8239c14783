// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package reducer

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/groupsio/harnessd/internal/protocol"
)

func taskPayload(id, title string) json.RawMessage {
	b, _ := json.Marshal(map[string]string{"taskId": id, "title": title})
	return b
}

func TestReducer_AppliesTaskCreated(t *testing.T) {
	r := New()
	state, changed := r.Apply(Delivery{
		SubscriptionID: "sub1",
		Cursor:         1,
		Event: EventPayload{
			Type:   protocol.EventTaskCreated,
			TaskID: "t1",
			Task:   taskPayload("t1", "first"),
		},
	})
	require.True(t, changed)
	assert.Contains(t, state.Tasks, "t1")
}

func TestReducer_DuplicateCursorIsNoop(t *testing.T) {
	r := New()
	first, _ := r.Apply(Delivery{
		SubscriptionID: "sub1",
		Cursor:         1,
		Event:          EventPayload{Type: protocol.EventTaskCreated, TaskID: "t1", Task: taskPayload("t1", "first")},
	})

	second, changed := r.Apply(Delivery{
		SubscriptionID: "sub1",
		Cursor:         1,
		Event:          EventPayload{Type: protocol.EventTaskCreated, TaskID: "t1", Task: taskPayload("t1", "replayed-duplicate")},
	})

	assert.False(t, changed)
	assert.Same(t, first, second)
}

func TestReducer_RegressedCursorIsNoop(t *testing.T) {
	r := New()
	r.Apply(Delivery{SubscriptionID: "sub1", Cursor: 5, Event: EventPayload{Type: protocol.EventTaskCreated, TaskID: "t1", Task: taskPayload("t1", "v5")}})
	before := r.State()

	after, changed := r.Apply(Delivery{SubscriptionID: "sub1", Cursor: 3, Event: EventPayload{Type: protocol.EventTaskCreated, TaskID: "t1", Task: taskPayload("t1", "v3-stale")}})

	assert.False(t, changed)
	assert.Same(t, before, after)
}

func TestReducer_IndependentSubscriptionCursors(t *testing.T) {
	r := New()
	_, changed1 := r.Apply(Delivery{SubscriptionID: "sub1", Cursor: 1, Event: EventPayload{Type: protocol.EventTaskCreated, TaskID: "t1", Task: taskPayload("t1", "a")}})
	_, changed2 := r.Apply(Delivery{SubscriptionID: "sub2", Cursor: 1, Event: EventPayload{Type: protocol.EventTaskCreated, TaskID: "t2", Task: taskPayload("t2", "b")}})

	assert.True(t, changed1)
	assert.True(t, changed2)
}

func TestReducer_ArchiveRemovesEntity(t *testing.T) {
	r := New()
	r.Apply(Delivery{SubscriptionID: "sub1", Cursor: 1, Event: EventPayload{Type: protocol.EventDirectoryUpserted, DirectoryID: "d1", Directory: json.RawMessage(`{"directoryId":"d1"}`)}})
	state, changed := r.Apply(Delivery{SubscriptionID: "sub1", Cursor: 2, Event: EventPayload{Type: protocol.EventDirectoryArchived, DirectoryID: "d1"}})

	assert.True(t, changed)
	assert.NotContains(t, state.Directories, "d1")
}

func TestReducer_TaskReorderedUpdatesMultiple(t *testing.T) {
	r := New()
	state, changed := r.Apply(Delivery{
		SubscriptionID: "sub1",
		Cursor:         1,
		Event: EventPayload{
			Type:  protocol.EventTaskReordered,
			Tasks: []json.RawMessage{taskPayload("t1", "first"), taskPayload("t2", "second")},
		},
	})
	require.True(t, changed)
	assert.Len(t, state.Tasks, 2)
}

func TestReducer_SessionEventsDoNotMutateProjection(t *testing.T) {
	r := New()
	before := r.State()
	after, changed := r.Apply(Delivery{SubscriptionID: "sub1", Cursor: 1, Event: EventPayload{Type: protocol.EventSessionOutput, SessionID: "s1"}})

	assert.True(t, changed, "cursor advances even though the projection is untouched")
	assert.Equal(t, before.Tasks, after.Tasks)
	assert.Equal(t, before.Conversations, after.Conversations)
}

func TestReducer_Reset(t *testing.T) {
	r := New()
	r.Apply(Delivery{SubscriptionID: "sub1", Cursor: 1, Event: EventPayload{Type: protocol.EventTaskCreated, TaskID: "t1", Task: taskPayload("t1", "a")}})
	r.Reset()

	state, changed := r.Apply(Delivery{SubscriptionID: "sub1", Cursor: 1, Event: EventPayload{Type: protocol.EventTaskCreated, TaskID: "t1", Task: taskPayload("t1", "a")}})
	assert.True(t, changed, "cursor tracking must reset alongside state")
	assert.Contains(t, state.Tasks, "t1")
}
