// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package ptysession

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/groupsio/harnessd/internal/protocol"
	"github.com/groupsio/harnessd/internal/store"
)

func TestPhaseStatusReducer_EmptySummaryYieldsNil(t *testing.T) {
	r := NewPhaseStatusReducer()
	model := r.Project(TelemetrySummary{})
	assert.Nil(t, model)
}

func TestPhaseStatusReducer_NeedsInput(t *testing.T) {
	r := &PhaseStatusReducer{Now: func() time.Time { return time.Unix(100, 0) }}
	model := r.Project(TelemetrySummary{Phase: "awaiting-input", NeedsInput: true, Message: "waiting on you"})
	require.NotNil(t, model)
	assert.Equal(t, "needs-input", model.Badge)
	assert.Equal(t, "waiting on you", model.AttentionReason)
}

func TestPhaseStatusReducer_Error(t *testing.T) {
	r := NewPhaseStatusReducer()
	model := r.Project(TelemetrySummary{Phase: "tool-call", IsError: true, Message: "boom"})
	require.NotNil(t, model)
	assert.Equal(t, "attention", model.Badge)
}

func TestPhaseStatusReducer_Working(t *testing.T) {
	r := NewPhaseStatusReducer()
	model := r.Project(TelemetrySummary{Phase: "tool-call", WorkSummary: "running tests"})
	require.NotNil(t, model)
	assert.Equal(t, "working", model.Badge)
	assert.Equal(t, "running tests", model.LastKnownWork)
}

type capturingPublisher struct {
	events []store.ObservedEvent
}

func (p *capturingPublisher) Publish(ev store.ObservedEvent) {
	p.events = append(p.events, ev)
}

func TestManager_ReportTelemetry_PublishesSessionStatus(t *testing.T) {
	pub := &capturingPublisher{}
	m := NewManager(Options{Builder: shellBuilder{}, Publisher: pub, Reducer: NewPhaseStatusReducer()})

	m.ReportTelemetry("conv-1", TelemetrySummary{Phase: "tool-call", Message: "doing a thing"})

	require.Len(t, pub.events, 1)
	assert.Equal(t, protocol.EventSessionStatus, pub.events[0].Type)
	assert.Equal(t, "conv-1", pub.events[0].ConversationID)
	require.NotNil(t, pub.events[0].StatusModel)
}

func TestManager_ReportTelemetry_NilReducerIsNoop(t *testing.T) {
	pub := &capturingPublisher{}
	m := NewManager(Options{Builder: shellBuilder{}, Publisher: pub})
	m.ReportTelemetry("conv-1", TelemetrySummary{Phase: "tool-call"})
	assert.Empty(t, pub.events)
}

func TestManager_ReportTelemetryJSON_MalformedDropped(t *testing.T) {
	pub := &capturingPublisher{}
	m := NewManager(Options{Builder: shellBuilder{}, Publisher: pub, Reducer: NewPhaseStatusReducer()})
	m.ReportTelemetryJSON("conv-1", []byte("{not json"))
	assert.Empty(t, pub.events)
}
