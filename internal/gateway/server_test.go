// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package gateway

import (
	"bufio"
	"encoding/json"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/groupsio/harnessd/internal/protocol"
	"github.com/groupsio/harnessd/internal/ptysession"
	"github.com/groupsio/harnessd/internal/store"
	"github.com/groupsio/harnessd/internal/subscribe"
)

func newTestServer() *Server {
	return NewServer(Options{
		AuthToken:     "secret-token",
		ShutdownGrace: time.Second,
		Store:         store.New(),
		Sessions:      ptysession.NewManager(ptysession.Options{}),
		Mux:           subscribe.NewMultiplexer(subscribe.Options{}),
	})
}

// startPipeConn wires a *conn directly to a net.Pipe end, bypassing Serve's
// accept loop so tests can drive the state machine without a real
// listener.
func startPipeConn(t *testing.T, srv *Server) (client net.Conn, reader *bufio.Reader) {
	t.Helper()
	serverSide, clientSide := net.Pipe()
	c := newConn(srv, serverSide)
	go c.serve()
	t.Cleanup(func() { clientSide.Close() })
	return clientSide, bufio.NewReader(clientSide)
}

func writeLine(t *testing.T, conn net.Conn, v interface{}) {
	t.Helper()
	body, err := json.Marshal(v)
	require.NoError(t, err)
	body = append(body, '\n')
	_, err = conn.Write(body)
	require.NoError(t, err)
}

func readEnvelope(t *testing.T, reader *bufio.Reader) protocol.Envelope {
	t.Helper()
	line, err := reader.ReadBytes('\n')
	require.NoError(t, err)
	env := protocol.ParseEnvelope(line)
	require.NotNil(t, env, "expected a parseable envelope, got %q", line)
	return env
}

func TestConn_AuthSuccess(t *testing.T) {
	srv := newTestServer()
	conn, reader := startPipeConn(t, srv)

	writeLine(t, conn, map[string]string{"kind": "auth", "token": "secret-token"})
	env := readEnvelope(t, reader)
	assert.Equal(t, protocol.KindAuthOK, env.Kind())
}

func TestConn_AuthFailureClosesConnection(t *testing.T) {
	srv := newTestServer()
	conn, reader := startPipeConn(t, srv)

	writeLine(t, conn, map[string]string{"kind": "auth", "token": "wrong"})
	env := readEnvelope(t, reader)
	require.Equal(t, protocol.KindAuthError, env.Kind())

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	buf := make([]byte, 16)
	_, err := conn.Read(buf)
	assert.Error(t, err, "connection should be closed after a failed auth")
}

func TestConn_NonAuthEnvelopeBeforeAuthClosesConnection(t *testing.T) {
	srv := newTestServer()
	conn, reader := startPipeConn(t, srv)

	writeLine(t, conn, map[string]interface{}{
		"kind":      "command",
		"commandId": "cmd-0",
		"command":   map[string]interface{}{"type": "directory.list"},
	})
	env := readEnvelope(t, reader)
	require.Equal(t, protocol.KindAuthError, env.Kind())

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	buf := make([]byte, 16)
	_, err := conn.Read(buf)
	assert.Error(t, err, "connection should be closed after a pre-auth non-auth envelope")
}

func TestConn_CommandRoundTrip(t *testing.T) {
	srv := newTestServer()
	conn, reader := startPipeConn(t, srv)

	writeLine(t, conn, map[string]string{"kind": "auth", "token": "secret-token"})
	require.Equal(t, protocol.KindAuthOK, readEnvelope(t, reader).Kind())

	writeLine(t, conn, map[string]interface{}{
		"kind":      "command",
		"commandId": "cmd-1",
		"command": map[string]interface{}{
			"type": "directory.upsert",
			"path": "/tmp/a",
		},
	})

	accepted := readEnvelope(t, reader)
	require.Equal(t, protocol.KindCommandAccepted, accepted.Kind())
	assert.Equal(t, "cmd-1", accepted.(protocol.CommandAcceptedEnvelope).CommandID)

	completed := readEnvelope(t, reader)
	require.Equal(t, protocol.KindCommandCompleted, completed.Kind())
	ce := completed.(protocol.CommandCompletedEnvelope)
	assert.Equal(t, "cmd-1", ce.CommandID)
	assert.Contains(t, string(ce.Result), "/tmp/a")
}

func TestConn_UnknownCommandFails(t *testing.T) {
	srv := newTestServer()
	conn, reader := startPipeConn(t, srv)

	writeLine(t, conn, map[string]string{"kind": "auth", "token": "secret-token"})
	require.Equal(t, protocol.KindAuthOK, readEnvelope(t, reader).Kind())

	writeLine(t, conn, map[string]interface{}{
		"kind":      "command",
		"commandId": "cmd-2",
		"command":   map[string]interface{}{"type": "no.such.command"},
	})

	require.Equal(t, protocol.KindCommandAccepted, readEnvelope(t, reader).Kind())
	failed := readEnvelope(t, reader)
	require.Equal(t, protocol.KindCommandFailed, failed.Kind())
	assert.Contains(t, failed.(protocol.CommandFailedEnvelope).Error, "invalid:")
}

func TestConn_StreamSubscribeDeliversCommandResult(t *testing.T) {
	srv := newTestServer()
	conn, reader := startPipeConn(t, srv)

	writeLine(t, conn, map[string]string{"kind": "auth", "token": "secret-token"})
	require.Equal(t, protocol.KindAuthOK, readEnvelope(t, reader).Kind())

	writeLine(t, conn, map[string]interface{}{
		"kind":      "command",
		"commandId": "sub-1",
		"command":   map[string]interface{}{"type": "stream.subscribe"},
	})
	require.Equal(t, protocol.KindCommandAccepted, readEnvelope(t, reader).Kind())
	completed := readEnvelope(t, reader).(protocol.CommandCompletedEnvelope)

	var result struct {
		SubscriptionID string `json:"subscriptionId"`
	}
	require.NoError(t, json.Unmarshal(completed.Result, &result))
	require.NotEmpty(t, result.SubscriptionID)

	writeLine(t, conn, map[string]interface{}{
		"kind":      "command",
		"commandId": "dir-1",
		"command":   map[string]interface{}{"type": "directory.upsert", "path": "/tmp/watched"},
	})
	require.Equal(t, protocol.KindCommandAccepted, readEnvelope(t, reader).Kind())
	require.Equal(t, protocol.KindCommandCompleted, readEnvelope(t, reader).Kind())

	streamEnv := readEnvelope(t, reader)
	require.Equal(t, protocol.KindStreamEvent, streamEnv.Kind())
	se := streamEnv.(protocol.StreamEventEnvelope)
	assert.Equal(t, result.SubscriptionID, se.SubscriptionID)
	assert.Contains(t, string(se.Event), "/tmp/watched")
}
