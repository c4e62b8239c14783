// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package ptysession

import (
	"encoding/json"
	"time"

	"github.com/groupsio/harnessd/internal/protocol"
	"github.com/groupsio/harnessd/internal/store"
)

// TelemetrySummary is the agent-type-specific input a StatusReducer
// consumes. The supervisor never parses OTLP itself (spec §4.4, §9
// "the core never parses OTLP"); a collaborator upstream of this package
// reduces raw OTLP logs/metrics/traces down to this shape before handing
// it to Project.
type TelemetrySummary struct {
	AgentType    string
	Phase        string // agent-reported phase, e.g. "tool-call", "awaiting-input", "done"
	Message      string
	IsError      bool
	NeedsInput   bool
	WorkSummary  string
	ObservedAt   time.Time
}

// StatusReducer projects a TelemetrySummary into a
// store.StreamSessionStatusModel, or returns nil when the summary carries
// nothing new to report (spec §9 "project(input) -> StreamSessionStatusModel
// | null"). The Manager calls it once per ReportTelemetry and only
// publishes session-status when the result is non-nil.
type StatusReducer interface {
	Project(summary TelemetrySummary) *store.StreamSessionStatusModel
}

// PhaseStatusReducer is a small heuristic StatusReducer that maps a
// telemetry summary's Phase/NeedsInput/IsError fields onto the attention,
// needs-input and working badges with a flat mapping rather than a parser
// of its own. It never reports an idle state.
type PhaseStatusReducer struct {
	// Now is overridable for tests; defaults to time.Now.
	Now func() time.Time
}

// NewPhaseStatusReducer returns a ready-to-use PhaseStatusReducer.
func NewPhaseStatusReducer() *PhaseStatusReducer {
	return &PhaseStatusReducer{Now: time.Now}
}

func (r *PhaseStatusReducer) clock() time.Time {
	if r.Now != nil {
		return r.Now()
	}
	return time.Now()
}

// Project implements StatusReducer.
func (r *PhaseStatusReducer) Project(summary TelemetrySummary) *store.StreamSessionStatusModel {
	if summary.Phase == "" && summary.Message == "" {
		return nil
	}

	observedAt := summary.ObservedAt
	if observedAt.IsZero() {
		observedAt = r.clock()
	}

	model := &store.StreamSessionStatusModel{
		RuntimeStatus: "running",
		Phase:         summary.Phase,
		DetailText:    summary.Message,
		PhaseHint:     summary.Phase,
		ObservedAt:    observedAt,
	}

	switch {
	case summary.IsError:
		model.Glyph = "!"
		model.Badge = "attention"
		model.AttentionReason = summary.Message
	case summary.NeedsInput:
		model.Glyph = "?"
		model.Badge = "needs-input"
		model.AttentionReason = summary.Message
	default:
		model.Glyph = "*"
		model.Badge = "working"
	}

	if summary.WorkSummary != "" {
		model.LastKnownWork = summary.WorkSummary
		model.LastKnownWorkAt = &observedAt
	}
	return model
}

// ReportTelemetry runs summary through the Manager's StatusReducer and, if
// it yields a non-null model, mutates the owning conversation's runtime
// fields and emits session-status (spec §4.4 "the supervisor mutates
// runtime fields on the conversation whenever the reducer returns a
// non-null update"). conversationID is the session id, since a session is
// 1:1 with its conversation while live (spec §3).
func (m *Manager) ReportTelemetry(conversationID string, summary TelemetrySummary) {
	if m.reducer == nil {
		return
	}
	model := m.reducer.Project(summary)
	if model == nil {
		return
	}
	if m.publisher == nil {
		return
	}
	m.publisher.Publish(store.ObservedEvent{
		Type:           protocol.EventSessionStatus,
		TS:             m.now(),
		SessionID:      conversationID,
		ConversationID: conversationID,
		StatusModel:    model,
	})
}

// ReportTelemetryJSON decodes a raw agent telemetry payload into a
// TelemetrySummary before reducing it. Unparseable payloads are dropped,
// matching the envelope codec's "malformed peer can't break the stream"
// posture (spec §4.1) applied to the telemetry side-channel.
func (m *Manager) ReportTelemetryJSON(conversationID string, payload []byte) {
	var summary TelemetrySummary
	if err := json.Unmarshal(payload, &summary); err != nil {
		return
	}
	m.ReportTelemetry(conversationID, summary)
}
