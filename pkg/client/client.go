// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package client is a thin NDJSON control-plane client for automation
// agents that drive harnessd directly instead of going through a human
// terminal (spec §4.6, §6). It owns one connection, serializes writes,
// and correlates command.completed/command.failed replies back to their
// caller by commandId. Other server envelopes are pushed onto Events for
// the caller to consume asynchronously; command.accepted is not
// forwarded, and an envelope is dropped when Events is full.
package client

import (
	"bufio"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"sync"

	"github.com/google/uuid"

	"github.com/groupsio/harnessd/internal/protocol"
)

// ErrClosed is returned by Command, Input, Resize and Signal once the
// client has been closed.
var ErrClosed = errors.New("client: connection closed")

// Client is a single NDJSON control-plane connection.
type Client struct {
	nc      net.Conn
	writeMu sync.Mutex

	mu      sync.Mutex
	pending map[string]chan commandReply
	closed  bool

	// Events receives every server envelope that is not a reply to a
	// pending command: pty.output, pty.exit, pty.event, stream.event.
	Events chan protocol.ServerEnvelope

	done chan struct{}
}

type commandReply struct {
	result json.RawMessage
	err    error
}

// DialOptions configures Dial.
type DialOptions struct {
	Network    string // "tcp" or "unix"; defaults to "tcp"
	Address    string
	AuthToken  string
	EventDepth int // buffer size for Events; defaults to 256
}

// Dial connects, performs the auth handshake, and starts the read loop.
// It blocks until auth.ok or auth.error is received.
func Dial(ctx context.Context, opts DialOptions) (*Client, error) {
	network := opts.Network
	if network == "" {
		network = "tcp"
	}
	var d net.Dialer
	nc, err := d.DialContext(ctx, network, opts.Address)
	if err != nil {
		return nil, fmt.Errorf("client: dial %s %s: %w", network, opts.Address, err)
	}

	depth := opts.EventDepth
	if depth <= 0 {
		depth = 256
	}
	c := &Client{
		nc:      nc,
		pending: make(map[string]chan commandReply),
		Events:  make(chan protocol.ServerEnvelope, depth),
		done:    make(chan struct{}),
	}

	authLine, err := marshalWithKind(protocol.KindAuth, protocol.AuthEnvelope{Token: opts.AuthToken})
	if err != nil {
		nc.Close()
		return nil, err
	}
	if _, err := nc.Write(authLine); err != nil {
		nc.Close()
		return nil, fmt.Errorf("client: send auth: %w", err)
	}

	reader := bufio.NewReader(nc)
	line, err := reader.ReadBytes('\n')
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("client: read auth reply: %w", err)
	}
	env := protocol.ParseEnvelope(line)
	switch e := env.(type) {
	case protocol.AuthOKEnvelope:
		// authenticated
	case protocol.AuthErrorEnvelope:
		nc.Close()
		return nil, fmt.Errorf("client: auth failed: %s", e.Error)
	default:
		nc.Close()
		return nil, fmt.Errorf("client: unexpected reply to auth")
	}

	go c.readLoop(reader)
	return c, nil
}

func (c *Client) readLoop(reader *bufio.Reader) {
	defer c.teardown()
	buf := make([]byte, 0, 4096)
	chunk := make([]byte, 4096)
	for {
		n, err := reader.Read(chunk)
		if n > 0 {
			buf = append(buf, chunk[:n]...)
			var envs []protocol.Envelope
			envs, buf = protocol.ConsumeJSONLines(buf)
			for _, env := range envs {
				c.dispatch(env)
			}
		}
		if err != nil {
			return
		}
	}
}

func (c *Client) dispatch(env protocol.Envelope) {
	switch e := env.(type) {
	case protocol.CommandCompletedEnvelope:
		c.resolve(e.CommandID, commandReply{result: e.Result})
	case protocol.CommandFailedEnvelope:
		c.resolve(e.CommandID, commandReply{err: fmt.Errorf("%s", e.Error)})
	case protocol.CommandAcceptedEnvelope:
		// no-op: Command() does not block on acceptance separately
	default:
		if se, ok := env.(protocol.ServerEnvelope); ok {
			select {
			case c.Events <- se:
			default:
			}
		}
	}
}

func (c *Client) resolve(commandID string, reply commandReply) {
	c.mu.Lock()
	ch, ok := c.pending[commandID]
	if ok {
		delete(c.pending, commandID)
	}
	c.mu.Unlock()
	if ok {
		ch <- reply
	}
}

func (c *Client) teardown() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	pending := c.pending
	c.pending = nil
	c.mu.Unlock()

	for _, ch := range pending {
		ch <- commandReply{err: ErrClosed}
	}
	close(c.done)
	close(c.Events)
}

// Command sends a command envelope and waits for its command.completed
// or command.failed reply, decoding the result into out if non-nil.
func (c *Client) Command(ctx context.Context, cmdType string, params interface{}, out interface{}) error {
	body, err := json.Marshal(params)
	if err != nil {
		return fmt.Errorf("client: marshal params: %w", err)
	}
	commandID := uuid.New().String()
	ch := make(chan commandReply, 1)

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	c.pending[commandID] = ch
	c.mu.Unlock()

	line, err := json.Marshal(commandEnvelopeWire{
		Kind:      protocol.KindCommand,
		CommandID: commandID,
		Command:   wrapCommand(cmdType, body),
	})
	if err != nil {
		return fmt.Errorf("client: marshal command: %w", err)
	}
	line = append(line, '\n')

	c.writeMu.Lock()
	_, err = c.nc.Write(line)
	c.writeMu.Unlock()
	if err != nil {
		return fmt.Errorf("client: write command: %w", err)
	}

	select {
	case reply := <-ch:
		if reply.err != nil {
			return reply.err
		}
		if out != nil && len(reply.result) > 0 {
			return json.Unmarshal(reply.result, out)
		}
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-c.done:
		return ErrClosed
	}
}

type commandEnvelopeWire struct {
	Kind      protocol.Kind   `json:"kind"`
	CommandID string          `json:"commandId"`
	Command   json.RawMessage `json:"command"`
}

// wrapCommand merges {"type": cmdType} into params so the wire envelope
// carries both under "command", matching CommandEnvelope's decode
// contract (the whole object's "type" field selects the handler).
func wrapCommand(cmdType string, params json.RawMessage) json.RawMessage {
	var fields map[string]json.RawMessage
	if len(params) > 0 {
		_ = json.Unmarshal(params, &fields)
	}
	if fields == nil {
		fields = make(map[string]json.RawMessage)
	}
	typeJSON, _ := json.Marshal(cmdType)
	fields["type"] = typeJSON
	out, _ := json.Marshal(fields)
	return out
}

// Input forwards raw bytes to a session's stdin without waiting for a
// reply, matching pty.input's fire-and-forget wire contract.
func (c *Client) Input(sessionID string, data []byte) error {
	return c.sendRaw(rawInputEnvelope{SessionID: sessionID, DataBase64: base64.StdEncoding.EncodeToString(data)})
}

type rawInputEnvelope struct {
	SessionID  string `json:"sessionId"`
	DataBase64 string `json:"dataBase64"`
}

func (rawInputEnvelope) Kind() protocol.Kind { return protocol.KindPTYInput }
func (e rawInputEnvelope) Encode() ([]byte, error) {
	return marshalWithKind(protocol.KindPTYInput, e)
}

// Resize sends a pty.resize request without waiting for a reply.
func (c *Client) Resize(sessionID string, cols, rows int) error {
	return c.sendRaw(rawResizeEnvelope{SessionID: sessionID, Cols: cols, Rows: rows})
}

type rawResizeEnvelope struct {
	SessionID string `json:"sessionId"`
	Cols      int    `json:"cols"`
	Rows      int    `json:"rows"`
}

func (rawResizeEnvelope) Kind() protocol.Kind { return protocol.KindPTYResize }
func (e rawResizeEnvelope) Encode() ([]byte, error) {
	return marshalWithKind(protocol.KindPTYResize, e)
}

// Signal sends a pty.signal request without waiting for a reply.
func (c *Client) Signal(sessionID string, sig protocol.PTYSignal) error {
	return c.sendRaw(rawSignalEnvelope{SessionID: sessionID, Signal: string(sig)})
}

type rawSignalEnvelope struct {
	SessionID string `json:"sessionId"`
	Signal    string `json:"signal"`
}

func (rawSignalEnvelope) Kind() protocol.Kind { return protocol.KindPTYSignal }
func (e rawSignalEnvelope) Encode() ([]byte, error) {
	return marshalWithKind(protocol.KindPTYSignal, e)
}

type rawEnvelope interface {
	Encode() ([]byte, error)
}

func (c *Client) sendRaw(e rawEnvelope) error {
	body, err := e.Encode()
	if err != nil {
		return err
	}
	c.mu.Lock()
	closed := c.closed
	c.mu.Unlock()
	if closed {
		return ErrClosed
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_, err = c.nc.Write(body)
	return err
}

func marshalWithKind(kind protocol.Kind, payload interface{}) ([]byte, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	var m map[string]json.RawMessage
	if err := json.Unmarshal(body, &m); err != nil {
		return nil, err
	}
	kindJSON, _ := json.Marshal(kind)
	m["kind"] = kindJSON
	out, err := json.Marshal(m)
	if err != nil {
		return nil, err
	}
	return append(out, '\n'), nil
}

// Close closes the underlying connection; the read loop then tears down
// pending commands and closes Events.
func (c *Client) Close() error {
	return c.nc.Close()
}
