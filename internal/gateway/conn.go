// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package gateway

import (
	"context"
	"crypto/subtle"
	"encoding/base64"
	"encoding/json"
	"io"
	"log"
	"net"
	"sync"

	"github.com/google/uuid"

	"github.com/groupsio/harnessd/internal/cursorstream"
	"github.com/groupsio/harnessd/internal/protocol"
	"github.com/groupsio/harnessd/internal/ptysession"
	"github.com/groupsio/harnessd/internal/subscribe"
)

const maxLineBacklog = 1 << 20

// connState is where a connection sits in the auth state machine (spec
// §4.6 "awaiting-auth -> ready -> done").
type connState int

const (
	stateAwaitingAuth connState = iota
	stateReady
	stateDone
)

// conn is one control-plane connection: the read loop, the serialized
// writer, and every per-connection attachment (PTY output/event streams,
// stream subscriptions) that must be torn down together on close.
// Grounded on TerminalHandler's writeMu-guarded websocket loop, widened
// from one PTY per connection to many (spec §4.6).
type conn struct {
	srv *Server
	nc  net.Conn

	writeMu sync.Mutex

	mu          sync.Mutex
	state       connState
	outputs     map[string]chan ptysession.OutputEvent
	outputGuard map[string]*cursorstream.Guard
	events      map[string]chan ptysession.SessionEvent
	subs        map[string]*subscribe.Subscription

	ctx    context.Context
	cancel context.CancelFunc
}

func newConn(srv *Server, nc net.Conn) *conn {
	ctx, cancel := context.WithCancel(context.Background())
	return &conn{
		srv:         srv,
		nc:          nc,
		outputs:     make(map[string]chan ptysession.OutputEvent),
		outputGuard: make(map[string]*cursorstream.Guard),
		events:      make(map[string]chan ptysession.SessionEvent),
		subs:        make(map[string]*subscribe.Subscription),
		ctx:         ctx,
		cancel:      cancel,
	}
}

// serve runs the connection until it closes or fails auth.
func (c *conn) serve() {
	defer c.close()

	buf := make([]byte, 0, 4096)
	read := make([]byte, 4096)
	for {
		n, err := c.nc.Read(read)
		if n > 0 {
			buf = append(buf, read[:n]...)
			if len(buf) > maxLineBacklog {
				return
			}
			var envs []protocol.Envelope
			envs, buf = protocol.ConsumeJSONLines(buf)
			for _, env := range envs {
				if !c.handleEnvelope(env) {
					return
				}
			}
		}
		if err != nil {
			if err != io.EOF {
				log.Printf("gateway: conn read: %v", err)
			}
			return
		}
	}
}

// handleEnvelope dispatches one parsed client envelope and reports
// whether the connection should stay open.
func (c *conn) handleEnvelope(env protocol.Envelope) bool {
	client, ok := env.(protocol.ClientEnvelope)
	if !ok {
		return true
	}

	c.mu.Lock()
	state := c.state
	c.mu.Unlock()

	if state == stateAwaitingAuth {
		auth, ok := client.(protocol.AuthEnvelope)
		if !ok {
			c.writeEnvelope(protocol.AuthErrorEnvelope{Error: "auth envelope required"})
			return false
		}
		return c.handleAuth(auth)
	}

	switch e := client.(type) {
	case protocol.AuthEnvelope:
		return true
	case protocol.CommandEnvelope:
		go c.handleCommand(e)
	case protocol.PTYInputEnvelope:
		c.srv.dispatcher.Sessions.InputBase64(e.SessionID, e.DataBase64)
	case protocol.PTYResizeEnvelope:
		if err := c.srv.dispatcher.Sessions.Resize(e.SessionID, e.Cols, e.Rows); err != nil {
			log.Printf("gateway: pty.resize dropped: %v", err)
		}
	case protocol.PTYSignalEnvelope:
		if err := c.srv.dispatcher.Sessions.Signal(e.SessionID, protocol.PTYSignal(e.Signal)); err != nil {
			log.Printf("gateway: pty.signal dropped: %v", err)
		}
	}
	return true
}

func (c *conn) handleAuth(auth protocol.AuthEnvelope) bool {
	if !tokensEqual(auth.Token, c.srv.authToken) {
		c.writeEnvelope(protocol.AuthErrorEnvelope{Error: "invalid token"})
		return false
	}
	c.mu.Lock()
	c.state = stateReady
	c.mu.Unlock()
	c.writeEnvelope(protocol.AuthOKEnvelope{})
	return true
}

func tokensEqual(a, b string) bool {
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

// handleCommand writes command.accepted immediately, dispatches, then
// writes command.completed or command.failed (spec §4.6). Each command
// runs on its own goroutine so a slow command cannot block the
// connection's raw-envelope forwarding.
func (c *conn) handleCommand(cmd protocol.CommandEnvelope) {
	c.writeEnvelope(protocol.CommandAcceptedEnvelope{CommandID: cmd.CommandID})

	if c.srv.IsShuttingDown() {
		c.writeEnvelope(protocol.CommandFailedEnvelope{CommandID: cmd.CommandID, Error: wireError(&ErrShuttingDown{})})
		return
	}

	result, err := c.dispatchLocal(cmd.Type, cmd.Params)
	select {
	case <-c.ctx.Done():
		return
	default:
	}
	if err != nil {
		c.writeEnvelope(protocol.CommandFailedEnvelope{CommandID: cmd.CommandID, Error: wireError(err)})
		return
	}
	body, err := json.Marshal(result)
	if err != nil {
		c.writeEnvelope(protocol.CommandFailedEnvelope{CommandID: cmd.CommandID, Error: wireError(err)})
		return
	}
	c.writeEnvelope(protocol.CommandCompletedEnvelope{CommandID: cmd.CommandID, Result: body})
}

// dispatchLocal handles the connection-stateful commands directly, and
// falls back to the stateless Dispatcher for everything else.
func (c *conn) dispatchLocal(cmdType string, params json.RawMessage) (interface{}, error) {
	switch cmdType {
	case "pty.start":
		return c.cmdPTYStart(params)
	case "pty.attach":
		return c.cmdPTYAttach(params)
	case "pty.detach":
		return c.cmdPTYDetach(params)
	case "pty.close":
		return c.cmdPTYClose(params)
	case "pty.subscribe-events":
		return c.cmdPTYSubscribeEvents(params)
	case "pty.unsubscribe-events":
		return c.cmdPTYUnsubscribeEvents(params)
	case "stream.subscribe":
		return c.cmdStreamSubscribe(params)
	case "stream.unsubscribe":
		return c.cmdStreamUnsubscribe(params)
	default:
		return c.srv.dispatcher.Dispatch(c.ctx, cmdType, params)
	}
}

type ptyStartParams struct {
	SessionID    string                 `json:"sessionId"`
	AgentType    string                 `json:"agentType"`
	AdapterState map[string]interface{} `json:"adapterState"`
	Cols         int                    `json:"cols"`
	Rows         int                    `json:"rows"`
}

func (c *conn) cmdPTYStart(raw json.RawMessage) (interface{}, error) {
	var p ptyStartParams
	if err := decodeParams(raw, &p); err != nil {
		return nil, err
	}
	if p.SessionID == "" {
		p.SessionID = uuid.New().String()
	}
	result, err := c.srv.dispatcher.Sessions.Start(c.ctx, ptysession.StartParams{
		SessionID: p.SessionID, AgentType: p.AgentType, AdapterState: p.AdapterState, Cols: p.Cols, Rows: p.Rows,
	})
	if err != nil {
		return nil, err
	}
	if !result.RecoveredDuplicateStart {
		if err := c.srv.dispatcher.Store.MarkSessionLive(p.SessionID, true, nil); err != nil {
			log.Printf("gateway: mark session live: %v", err)
		}
	}
	return map[string]interface{}{
		"sessionId":               result.SessionID,
		"recoveredDuplicateStart": result.RecoveredDuplicateStart,
	}, nil
}

type ptyAttachParams struct {
	SessionID   string `json:"sessionId"`
	SinceCursor int64  `json:"sinceCursor"`
}

func (c *conn) cmdPTYAttach(raw json.RawMessage) (interface{}, error) {
	var p ptyAttachParams
	if err := decodeParams(raw, &p); err != nil {
		return nil, err
	}
	result, err := c.srv.dispatcher.Sessions.Attach(p.SessionID, p.SinceCursor)
	if err != nil {
		return nil, err
	}

	guard := cursorstream.NewGuard()
	c.mu.Lock()
	c.outputs[p.SessionID] = result.Output
	c.outputGuard[p.SessionID] = guard
	c.mu.Unlock()

	if len(result.Backlog) > 0 {
		guard.Observe(p.SessionID, result.LatestCursor)
		c.writeEnvelope(protocol.PTYOutputEnvelope{
			SessionID:   p.SessionID,
			Cursor:      result.LatestCursor,
			ChunkBase64: base64.StdEncoding.EncodeToString(result.Backlog),
		})
	}

	go c.forwardOutput(p.SessionID, result.Output, guard)

	return map[string]interface{}{
		"latestCursor": result.LatestCursor,
		"truncated":    result.Truncated,
	}, nil
}

func (c *conn) forwardOutput(sessionID string, ch chan ptysession.OutputEvent, guard *cursorstream.Guard) {
	for {
		select {
		case ev, ok := <-ch:
			if !ok {
				return
			}
			if accepted, _ := guard.Observe(sessionID, ev.Cursor); !accepted {
				continue
			}
			c.writeEnvelope(protocol.PTYOutputEnvelope{
				SessionID:   sessionID,
				Cursor:      ev.Cursor,
				ChunkBase64: base64.StdEncoding.EncodeToString(ev.Data),
			})
		case <-c.ctx.Done():
			return
		}
	}
}

func (c *conn) cmdPTYDetach(raw json.RawMessage) (interface{}, error) {
	var p sessionIDParams
	if err := decodeParams(raw, &p); err != nil {
		return nil, err
	}
	c.mu.Lock()
	ch, ok := c.outputs[p.SessionID]
	delete(c.outputs, p.SessionID)
	delete(c.outputGuard, p.SessionID)
	c.mu.Unlock()
	if ok {
		c.srv.dispatcher.Sessions.Detach(p.SessionID, ch)
	}
	return map[string]interface{}{"detached": true}, nil
}

func (c *conn) cmdPTYClose(raw json.RawMessage) (interface{}, error) {
	var p sessionIDParams
	if err := decodeParams(raw, &p); err != nil {
		return nil, err
	}
	if err := c.srv.dispatcher.Sessions.Close(p.SessionID); err != nil {
		return nil, err
	}
	return map[string]interface{}{"closed": true}, nil
}

func (c *conn) cmdPTYSubscribeEvents(raw json.RawMessage) (interface{}, error) {
	var p sessionIDParams
	if err := decodeParams(raw, &p); err != nil {
		return nil, err
	}
	ch, err := c.srv.dispatcher.Sessions.SubscribeEvents(p.SessionID)
	if err != nil {
		return nil, err
	}
	c.mu.Lock()
	c.events[p.SessionID] = ch
	c.mu.Unlock()
	go c.forwardEvents(p.SessionID, ch)
	return map[string]interface{}{"subscribed": true}, nil
}

func (c *conn) forwardEvents(sessionID string, ch chan ptysession.SessionEvent) {
	for {
		select {
		case ev, ok := <-ch:
			if !ok {
				return
			}
			body, err := json.Marshal(ev)
			if err != nil {
				continue
			}
			c.writeEnvelope(protocol.PTYEventEnvelope{SessionID: sessionID, Event: body})
		case <-c.ctx.Done():
			return
		}
	}
}

func (c *conn) cmdPTYUnsubscribeEvents(raw json.RawMessage) (interface{}, error) {
	var p sessionIDParams
	if err := decodeParams(raw, &p); err != nil {
		return nil, err
	}
	c.mu.Lock()
	ch, ok := c.events[p.SessionID]
	delete(c.events, p.SessionID)
	c.mu.Unlock()
	if ok {
		c.srv.dispatcher.Sessions.UnsubscribeEvents(p.SessionID, ch)
	}
	return map[string]interface{}{"unsubscribed": true}, nil
}

type streamSubscribeParams struct {
	ResumeID       string `json:"resumeId"`
	TenantID       string `json:"tenantId"`
	UserID         string `json:"userId"`
	WorkspaceID    string `json:"workspaceId"`
	RepositoryID   string `json:"repositoryId"`
	TaskID         string `json:"taskId"`
	DirectoryID    string `json:"directoryId"`
	ConversationID string `json:"conversationId"`
	IncludeOutput  bool   `json:"includeOutput"`
	AfterCursor    *int64 `json:"afterCursor"`
}

func (c *conn) cmdStreamSubscribe(raw json.RawMessage) (interface{}, error) {
	var p streamSubscribeParams
	if err := decodeParams(raw, &p); err != nil {
		return nil, err
	}
	sub, replay, truncated := c.srv.dispatcher.Mux.Subscribe(subscribe.SubscribeOptions{
		ResumeID: p.ResumeID,
		Filter: subscribe.Filter{
			TenantID: p.TenantID, UserID: p.UserID, WorkspaceID: p.WorkspaceID,
			RepositoryID: p.RepositoryID, TaskID: p.TaskID, DirectoryID: p.DirectoryID,
			ConversationID: p.ConversationID, IncludeOutput: p.IncludeOutput,
		},
		AfterCursor: p.AfterCursor,
	})

	c.mu.Lock()
	c.subs[sub.ID()] = sub
	c.mu.Unlock()

	for _, d := range replay {
		c.writeDelivery(d)
	}
	go c.forwardSubscription(sub)

	return map[string]interface{}{
		"subscriptionId": sub.ID(),
		"cursor":         sub.Cursor(),
		"truncated":      truncated,
	}, nil
}

func (c *conn) forwardSubscription(sub *subscribe.Subscription) {
	for {
		select {
		case d, ok := <-sub.Events():
			if !ok {
				return
			}
			c.writeDelivery(d)
		case <-sub.Dropped():
			return
		case <-c.ctx.Done():
			return
		}
	}
}

func (c *conn) writeDelivery(d subscribe.Delivery) {
	body, err := json.Marshal(d.Event)
	if err != nil {
		return
	}
	c.writeEnvelope(protocol.StreamEventEnvelope{SubscriptionID: d.SubscriptionID, Cursor: d.Cursor, Event: body})
}

func (c *conn) cmdStreamUnsubscribe(raw json.RawMessage) (interface{}, error) {
	var p struct {
		SubscriptionID string `json:"subscriptionId"`
	}
	if err := decodeParams(raw, &p); err != nil {
		return nil, err
	}
	c.mu.Lock()
	delete(c.subs, p.SubscriptionID)
	c.mu.Unlock()
	ok := c.srv.dispatcher.Mux.Unsubscribe(p.SubscriptionID)
	return map[string]interface{}{"unsubscribed": ok}, nil
}

// writeEnvelope serializes and writes one server envelope, synchronized
// so concurrent command/output/event forwarders never interleave bytes
// (spec §4.6, grounded on terminal.go's writeMu pattern).
func (c *conn) writeEnvelope(e protocol.ServerEnvelope) {
	body, err := e.Encode()
	if err != nil {
		log.Printf("gateway: encode %s: %v", e.Kind(), err)
		return
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if _, err := c.nc.Write(body); err != nil {
		log.Printf("gateway: write %s: %v", e.Kind(), err)
	}
}

// close tears down every attachment this connection owns and closes the
// socket. It is safe to call more than once.
func (c *conn) close() {
	c.mu.Lock()
	if c.state == stateDone {
		c.mu.Unlock()
		return
	}
	c.state = stateDone
	outputs := c.outputs
	c.outputs = make(map[string]chan ptysession.OutputEvent)
	events := c.events
	c.events = make(map[string]chan ptysession.SessionEvent)
	subs := c.subs
	c.subs = make(map[string]*subscribe.Subscription)
	c.mu.Unlock()

	c.cancel()
	c.nc.Close()

	for sessionID, ch := range outputs {
		c.srv.dispatcher.Sessions.Detach(sessionID, ch)
	}
	for sessionID, ch := range events {
		c.srv.dispatcher.Sessions.UnsubscribeEvents(sessionID, ch)
	}
	for id := range subs {
		c.srv.dispatcher.Mux.Unsubscribe(id)
	}
}
