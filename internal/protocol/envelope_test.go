// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package protocol

import (
	"encoding/json"
	"testing"

	"github.com/pmezard/go-difflib/difflib"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// assertNoDiff fails with a unified diff when want != got, which is far
// more useful than testify's default output for multi-line JSON payloads.
func assertNoDiff(t *testing.T, want, got string) {
	t.Helper()
	if want == got {
		return
	}
	diff, err := difflib.GetUnifiedDiffString(difflib.UnifiedDiff{
		A:        difflib.SplitLines(want),
		B:        difflib.SplitLines(got),
		FromFile: "want",
		ToFile:   "got",
		Context:  2,
	})
	require.NoError(t, err)
	t.Fatalf("mismatch:\n%s", diff)
}

func TestConsumeJSONLines_MalformedIgnored(t *testing.T) {
	buf := []byte("{\"kind\":\"auth\",\"token\":\"T\"}\n{oops\n{\"kind\":\"pty.exit\",\"sessionId\":\"s1\",\"exit\":{\"code\":0,\"signal\":null}}\npartial")
	envs, remainder := ConsumeJSONLines(buf)
	assertNoDiff(t, "partial", string(remainder))
	require.Len(t, envs, 2)

	auth, ok := envs[0].(AuthEnvelope)
	require.True(t, ok)
	assert.Equal(t, "T", auth.Token)

	exit, ok := envs[1].(PTYExitEnvelope)
	require.True(t, ok)
	assert.Equal(t, "s1", exit.SessionID)
	require.NotNil(t, exit.Exit.Code)
	assert.Equal(t, 0, *exit.Exit.Code)
	assert.Nil(t, exit.Exit.Signal)
}

func TestConsumeJSONLines_SkipsEmptyLines(t *testing.T) {
	buf := []byte("\n\n{\"kind\":\"auth\",\"token\":\"T\"}\n\n")
	envs, remainder := ConsumeJSONLines(buf)
	require.Len(t, envs, 1)
	assert.Empty(t, remainder)
}

func TestParseClientEnvelope_Auth(t *testing.T) {
	env := ParseClientEnvelope([]byte(`{"kind":"auth","token":"secret"}`))
	require.NotNil(t, env)
	assert.Equal(t, AuthEnvelope{Token: "secret"}, env)
}

func TestParseClientEnvelope_Command(t *testing.T) {
	line := []byte(`{"kind":"command","commandId":"c1","command":{"type":"session.list"}}`)
	env := ParseClientEnvelope(line)
	require.NotNil(t, env)
	cmd, ok := env.(CommandEnvelope)
	require.True(t, ok)
	assert.Equal(t, "c1", cmd.CommandID)
	assert.Equal(t, "session.list", cmd.Type)
}

func TestParseClientEnvelope_PTYResize(t *testing.T) {
	env := ParseClientEnvelope([]byte(`{"kind":"pty.resize","sessionId":"s1","cols":80,"rows":24}`))
	require.NotNil(t, env)
	assert.Equal(t, PTYResizeEnvelope{SessionID: "s1", Cols: 80, Rows: 24}, env)
}

func TestParseClientEnvelope_PTYSignalValid(t *testing.T) {
	env := ParseClientEnvelope([]byte(`{"kind":"pty.signal","sessionId":"s1","signal":"interrupt"}`))
	require.NotNil(t, env)
	assert.Equal(t, PTYSignalEnvelope{SessionID: "s1", Signal: "interrupt"}, env)
}

func TestParseClientEnvelope_RejectsServerDirectionKind(t *testing.T) {
	// Syntactically valid server envelope, but not client-sendable; the
	// connection-layer parser must reject it even though the generic
	// codec parses it fine.
	env := ParseClientEnvelope([]byte(`{"kind":"auth.ok"}`))
	assert.Nil(t, env)
}

func TestParseClientEnvelope_RejectsInvalidShapes(t *testing.T) {
	cases := []struct {
		name string
		line string
	}{
		{"not an object", `["auth"]`},
		{"missing kind", `{"token":"T"}`},
		{"unknown kind", `{"kind":"bogus"}`},
		{"auth missing token", `{"kind":"auth"}`},
		{"auth wrong type token", `{"kind":"auth","token":123}`},
		{"command missing commandId", `{"kind":"command","command":{"type":"x"}}`},
		{"command missing inner command", `{"kind":"command","commandId":"c1"}`},
		{"command inner not object", `{"kind":"command","commandId":"c1","command":"x"}`},
		{"command inner missing type", `{"kind":"command","commandId":"c1","command":{}}`},
		{"pty.input missing sessionId", `{"kind":"pty.input","dataBase64":"AA=="}`},
		{"pty.input wrong type data", `{"kind":"pty.input","sessionId":"s1","dataBase64":5}`},
		{"pty.resize missing cols", `{"kind":"pty.resize","sessionId":"s1","rows":24}`},
		{"pty.resize fractional cols", `{"kind":"pty.resize","sessionId":"s1","cols":80.5,"rows":24}`},
		{"pty.resize wrong type rows", `{"kind":"pty.resize","sessionId":"s1","cols":80,"rows":"24"}`},
		{"pty.signal bad enum", `{"kind":"pty.signal","sessionId":"s1","signal":"kaboom"}`},
		{"pty.signal missing signal", `{"kind":"pty.signal","sessionId":"s1"}`},
		{"trailing garbage", `{"kind":"auth","token":"T"}x`},
		{"not json at all", `not json`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			env := ParseClientEnvelope([]byte(tc.line))
			assert.Nil(t, env, "expected rejection")
		})
	}
}

func TestParseEnvelope_RejectsInvalidServerShapes(t *testing.T) {
	cases := []struct {
		name string
		line string
	}{
		{"auth.error missing error", `{"kind":"auth.error"}`},
		{"command.completed missing result", `{"kind":"command.completed","commandId":"c1"}`},
		{"command.completed result not object", `{"kind":"command.completed","commandId":"c1","result":"x"}`},
		{"pty.output missing cursor", `{"kind":"pty.output","sessionId":"s1","chunkBase64":"AA=="}`},
		{"pty.output fractional cursor", `{"kind":"pty.output","sessionId":"s1","cursor":1.5,"chunkBase64":"AA=="}`},
		{"pty.exit both null", `{"kind":"pty.exit","sessionId":"s1","exit":{"code":null,"signal":null}}`},
		{"pty.exit bad signal name", `{"kind":"pty.exit","sessionId":"s1","exit":{"code":null,"signal":"interrupt"}}`},
		{"pty.event missing event", `{"kind":"pty.event","sessionId":"s1"}`},
		{"stream.event missing cursor", `{"kind":"stream.event","subscriptionId":"sub1","event":{}}`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			env := ParseEnvelope([]byte(tc.line))
			assert.Nil(t, env, "expected rejection")
		})
	}
}

func TestParseEnvelope_AcceptsValidServerShapes(t *testing.T) {
	env := ParseEnvelope([]byte(`{"kind":"pty.exit","sessionId":"s1","exit":{"code":null,"signal":"SIGTERM"}}`))
	require.NotNil(t, env)
	exit, ok := env.(PTYExitEnvelope)
	require.True(t, ok)
	assert.Nil(t, exit.Exit.Code)
	require.NotNil(t, exit.Exit.Signal)
	assert.Equal(t, "SIGTERM", *exit.Exit.Signal)
}

func TestExitInfo_BothNullRejected(t *testing.T) {
	err := ExitInfo{}.validate()
	require.Error(t, err)

	code := 0
	err = ExitInfo{Code: &code}.validate()
	require.NoError(t, err)

	sig := "SIGTERM"
	err = ExitInfo{Signal: &sig}.validate()
	require.NoError(t, err)
}

func TestValidSignalName(t *testing.T) {
	assert.True(t, ValidSignalName("SIGINT"))
	assert.True(t, ValidSignalName("SIGRTMIN_1"))
	assert.False(t, ValidSignalName("sigint"))
	assert.False(t, ValidSignalName("INT"))
	assert.False(t, ValidSignalName(""))
}

func TestIsClientKindIsServerKind(t *testing.T) {
	assert.True(t, IsClientKind(KindAuth))
	assert.False(t, IsServerKind(KindAuth))
	assert.True(t, IsServerKind(KindAuthOK))
	assert.False(t, IsClientKind(KindAuthOK))
}

func TestEncode_ServerEnvelopes_RoundTrip(t *testing.T) {
	tests := []struct {
		name string
		env  ServerEnvelope
		want map[string]interface{}
	}{
		{
			name: "auth.ok",
			env:  AuthOKEnvelope{},
			want: map[string]interface{}{"kind": "auth.ok"},
		},
		{
			name: "auth.error",
			env:  AuthErrorEnvelope{Error: "auth:bad token"},
			want: map[string]interface{}{"kind": "auth.error", "error": "auth:bad token"},
		},
		{
			name: "command.accepted",
			env:  CommandAcceptedEnvelope{CommandID: "c1"},
			want: map[string]interface{}{"kind": "command.accepted", "commandId": "c1"},
		},
		{
			name: "command.completed",
			env:  CommandCompletedEnvelope{CommandID: "c1", Result: json.RawMessage(`{"sessions":[]}`)},
			want: map[string]interface{}{"kind": "command.completed", "commandId": "c1", "result": map[string]interface{}{"sessions": []interface{}{}}},
		},
		{
			name: "pty.output",
			env:  PTYOutputEnvelope{SessionID: "s1", Cursor: 100, ChunkBase64: "AA=="},
			want: map[string]interface{}{"kind": "pty.output", "sessionId": "s1", "cursor": float64(100), "chunkBase64": "AA=="},
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			data, err := tc.env.Encode()
			require.NoError(t, err)
			require.True(t, len(data) > 0 && data[len(data)-1] == '\n', "must end in newline")
			var got map[string]interface{}
			require.NoError(t, json.Unmarshal(data[:len(data)-1], &got))
			assertNoDiff(t, toJSON(t, tc.want), toJSON(t, got))
		})
	}
}

func TestEncodeParseRoundTrip(t *testing.T) {
	// Property 1: parse(encode(v)) == v, for every server envelope kind.
	exitCode := 0
	envelopes := []ServerEnvelope{
		AuthOKEnvelope{},
		AuthErrorEnvelope{Error: "auth:bad token"},
		CommandAcceptedEnvelope{CommandID: "c1"},
		CommandCompletedEnvelope{CommandID: "c1", Result: json.RawMessage(`{}`)},
		CommandFailedEnvelope{CommandID: "c1", Error: "invalid:bad params"},
		PTYOutputEnvelope{SessionID: "s1", Cursor: 42, ChunkBase64: "AA=="},
		PTYExitEnvelope{SessionID: "s1", Exit: ExitInfo{Code: &exitCode}},
		PTYEventEnvelope{SessionID: "s1", Event: json.RawMessage(`{"type":"notify"}`)},
		StreamEventEnvelope{SubscriptionID: "sub1", Cursor: 7, Event: json.RawMessage(`{"type":"task-created"}`)},
	}
	for _, e := range envelopes {
		data, err := e.Encode()
		require.NoError(t, err)
		parsed := ParseEnvelope(data[:len(data)-1])
		require.NotNil(t, parsed, "round trip of %T failed", e)
		assert.Equal(t, e.Kind(), parsed.Kind())
		assert.Equal(t, e, parsed)
	}
}

func toJSON(t *testing.T, v interface{}) string {
	t.Helper()
	data, err := json.MarshalIndent(v, "", "  ")
	require.NoError(t, err)
	return string(data)
}

func TestHappyPathSessionListScenario(t *testing.T) {
	// End-to-end scenario (a) from the testable-properties section: auth
	// then an empty session.list round trip.
	authLine := ParseClientEnvelope([]byte(`{"kind":"auth","token":"T"}`))
	require.Equal(t, AuthEnvelope{Token: "T"}, authLine)

	okData, err := (AuthOKEnvelope{}).Encode()
	require.NoError(t, err)
	assertNoDiff(t, `{"kind":"auth.ok"}`+"\n", string(okData))

	cmdLine := ParseClientEnvelope([]byte(`{"kind":"command","commandId":"c1","command":{"type":"session.list"}}`))
	cmd, ok := cmdLine.(CommandEnvelope)
	require.True(t, ok)
	assert.Equal(t, "c1", cmd.CommandID)

	acceptedData, err := (CommandAcceptedEnvelope{CommandID: "c1"}).Encode()
	require.NoError(t, err)
	assertNoDiff(t, `{"commandId":"c1","kind":"command.accepted"}`+"\n", string(acceptedData))

	completedData, err := (CommandCompletedEnvelope{CommandID: "c1", Result: json.RawMessage(`{"sessions":[]}`)}).Encode()
	require.NoError(t, err)
	var got map[string]interface{}
	require.NoError(t, json.Unmarshal(completedData[:len(completedData)-1], &got))
	assert.Equal(t, "c1", got["commandId"])
	assert.Equal(t, "command.completed", got["kind"])
}
