// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package ptysession

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/groupsio/harnessd/internal/protocol"
	"github.com/groupsio/harnessd/internal/store"
)

// shellBuilder spawns /bin/sh -c <script> regardless of agentType, which is
// enough to exercise the supervisor without any agent-specific knowledge.
type shellBuilder struct {
	script string
}

func (b shellBuilder) Build(agentType string, adapterState map[string]interface{}, cols, rows int) (SpawnSpec, error) {
	script := b.script
	if script == "" {
		script = "cat"
	}
	return SpawnSpec{Command: "/bin/sh", Args: []string{"-c", script}, InitialCols: cols, InitialRows: rows}, nil
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []store.ObservedEvent
}

func (p *recordingPublisher) Publish(ev store.ObservedEvent) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, ev)
}

func (p *recordingPublisher) snapshot() []store.ObservedEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]store.ObservedEvent, len(p.events))
	copy(out, p.events)
	return out
}

func waitForOutput(t *testing.T, ch chan OutputEvent, contains string) OutputEvent {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case ev := <-ch:
			if contains == "" || stringContains(string(ev.Data), contains) {
				return ev
			}
		case <-deadline:
			t.Fatalf("timed out waiting for output containing %q", contains)
		}
	}
}

func stringContains(haystack, needle string) bool {
	return len(needle) == 0 || (len(haystack) >= len(needle) && indexOf(haystack, needle) >= 0)
}

func indexOf(haystack, needle string) int {
	for i := 0; i+len(needle) <= len(haystack); i++ {
		if haystack[i:i+len(needle)] == needle {
			return i
		}
	}
	return -1
}

func TestManager_StartAttachInput(t *testing.T) {
	pub := &recordingPublisher{}
	mgr := NewManager(Options{Builder: shellBuilder{script: "cat"}, Publisher: pub})

	res, err := mgr.Start(context.Background(), StartParams{SessionID: "s1", Cols: 80, Rows: 24})
	require.NoError(t, err)
	assert.False(t, res.RecoveredDuplicateStart)

	att, err := mgr.Attach("s1", 0)
	require.NoError(t, err)
	assert.Equal(t, int64(0), att.LatestCursor)
	assert.False(t, att.Truncated)

	require.NoError(t, mgr.Input("s1", []byte("ping\n")))

	waitForOutput(t, att.Output, "ping")
	mgr.Detach("s1", att.Output)
}

func TestManager_StartIsIdempotentWhileLive(t *testing.T) {
	mgr := NewManager(Options{Builder: shellBuilder{script: "cat"}})

	_, err := mgr.Start(context.Background(), StartParams{SessionID: "s1"})
	require.NoError(t, err)

	res, err := mgr.Start(context.Background(), StartParams{SessionID: "s1"})
	require.NoError(t, err)
	assert.True(t, res.RecoveredDuplicateStart)
}

func TestManager_ClaimTakeoverPublishesSessionControl(t *testing.T) {
	pub := &recordingPublisher{}
	mgr := NewManager(Options{Builder: shellBuilder{script: "cat"}, Publisher: pub})

	_, err := mgr.Start(context.Background(), StartParams{SessionID: "s1"})
	require.NoError(t, err)

	res, err := mgr.Claim(ClaimParams{SessionID: "s1", ControllerID: "userA", ControllerType: "human"})
	require.NoError(t, err)
	assert.Equal(t, "claimed", res.Action)

	_, err = mgr.Claim(ClaimParams{SessionID: "s1", ControllerID: "userB", ControllerType: "human"})
	assert.Error(t, err)

	res, err = mgr.Claim(ClaimParams{SessionID: "s1", ControllerID: "userB", ControllerType: "human", Takeover: true})
	require.NoError(t, err)
	assert.Equal(t, "taken-over", res.Action)

	var sawControl bool
	for _, ev := range pub.snapshot() {
		if ev.Type == protocol.EventSessionControl && ev.ControlAction == "taken-over" {
			sawControl = true
		}
	}
	assert.True(t, sawControl)

	require.NoError(t, mgr.Release("s1"))
	status, err := mgr.Status("s1")
	require.NoError(t, err)
	assert.Nil(t, status.Controller)
}

func TestManager_CloseWaitsThenRemovesFromList(t *testing.T) {
	mgr := NewManager(Options{Builder: shellBuilder{script: "cat"}, ExitGraceTTL: 10 * time.Millisecond})

	_, err := mgr.Start(context.Background(), StartParams{SessionID: "s1"})
	require.NoError(t, err)

	require.NoError(t, mgr.Close("s1"))

	status, err := mgr.Status("s1")
	require.NoError(t, err)
	assert.False(t, status.Live)

	require.Eventually(t, func() bool { return len(mgr.List(false)) == 0 }, 2*time.Second, 10*time.Millisecond)
}

func TestManager_CloseSessionIsSafeForUnknownSession(t *testing.T) {
	mgr := NewManager(Options{Builder: shellBuilder{}})
	mgr.CloseSession("does-not-exist")
}

func TestManager_ListFiltersLive(t *testing.T) {
	mgr := NewManager(Options{Builder: shellBuilder{script: "exit 0"}})

	_, err := mgr.Start(context.Background(), StartParams{SessionID: "s1"})
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		st, err := mgr.Status("s1")
		return err == nil && !st.Live
	}, 2*time.Second, 10*time.Millisecond)

	all := mgr.List(false)
	assert.Len(t, all, 1)

	live := mgr.List(true)
	assert.Empty(t, live)
}

func TestManager_ShutdownTerminatesRunningSessions(t *testing.T) {
	mgr := NewManager(Options{Builder: shellBuilder{script: "cat"}})

	_, err := mgr.Start(context.Background(), StartParams{SessionID: "s1"})
	require.NoError(t, err)

	mgr.Shutdown(context.Background(), 500*time.Millisecond)

	status, err := mgr.Status("s1")
	require.NoError(t, err)
	assert.False(t, status.Live)
}
