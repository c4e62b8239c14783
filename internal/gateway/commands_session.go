// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package gateway

import (
	"context"
	"encoding/json"

	"github.com/groupsio/harnessd/internal/ptysession"
)

type sessionClaimParams struct {
	SessionID       string `json:"sessionId"`
	ControllerID    string `json:"controllerId"`
	ControllerType  string `json:"controllerType"`
	ControllerLabel string `json:"controllerLabel"`
	Reason          string `json:"reason"`
	Takeover        bool   `json:"takeover"`
}

func cmdSessionClaim(_ context.Context, d *Dispatcher, raw json.RawMessage) (interface{}, error) {
	var p sessionClaimParams
	if err := decodeParams(raw, &p); err != nil {
		return nil, err
	}
	result, err := d.Sessions.Claim(ptysession.ClaimParams{
		SessionID: p.SessionID, ControllerID: p.ControllerID, ControllerType: p.ControllerType,
		ControllerLabel: p.ControllerLabel, Reason: p.Reason, Takeover: p.Takeover,
	})
	if err != nil {
		return nil, err
	}
	return map[string]interface{}{"sessionId": p.SessionID, "action": result.Action, "controller": result.Controller}, nil
}

type sessionIDParams struct {
	SessionID string `json:"sessionId"`
}

func cmdSessionRelease(_ context.Context, d *Dispatcher, raw json.RawMessage) (interface{}, error) {
	var p sessionIDParams
	if err := decodeParams(raw, &p); err != nil {
		return nil, err
	}
	if err := d.Sessions.Release(p.SessionID); err != nil {
		return nil, err
	}
	return map[string]interface{}{"released": true}, nil
}

type sessionRespondParams struct {
	SessionID string `json:"sessionId"`
	Text      string `json:"text"`
}

func cmdSessionRespond(_ context.Context, d *Dispatcher, raw json.RawMessage) (interface{}, error) {
	var p sessionRespondParams
	if err := decodeParams(raw, &p); err != nil {
		return nil, err
	}
	n, err := d.Sessions.Respond(p.SessionID, p.Text)
	if err != nil {
		return nil, err
	}
	return map[string]interface{}{"responded": true, "sentBytes": n}, nil
}

func cmdSessionInterrupt(_ context.Context, d *Dispatcher, raw json.RawMessage) (interface{}, error) {
	var p sessionIDParams
	if err := decodeParams(raw, &p); err != nil {
		return nil, err
	}
	if err := d.Sessions.Signal(p.SessionID, "interrupt"); err != nil {
		return nil, err
	}
	return map[string]interface{}{"interrupted": true}, nil
}

func cmdSessionRemove(_ context.Context, d *Dispatcher, raw json.RawMessage) (interface{}, error) {
	var p sessionIDParams
	if err := decodeParams(raw, &p); err != nil {
		return nil, err
	}
	_ = d.Sessions.Close(p.SessionID)
	if d.Store != nil {
		if events, err := d.Store.DeleteConversation(p.SessionID, d.Sessions); err == nil {
			d.Mux.PublishAll(events)
		}
	}
	return map[string]interface{}{"removed": true}, nil
}

type sessionListParams struct {
	Live bool `json:"live"`
}

func cmdSessionList(_ context.Context, d *Dispatcher, raw json.RawMessage) (interface{}, error) {
	var p sessionListParams
	if len(raw) > 0 {
		if err := decodeParams(raw, &p); err != nil {
			return nil, err
		}
	}
	return map[string]interface{}{"sessions": d.Sessions.List(p.Live)}, nil
}

func cmdSessionStatus(_ context.Context, d *Dispatcher, raw json.RawMessage) (interface{}, error) {
	var p sessionIDParams
	if err := decodeParams(raw, &p); err != nil {
		return nil, err
	}
	summary, err := d.Sessions.Status(p.SessionID)
	if err != nil {
		return nil, err
	}
	return map[string]interface{}{"session": summary}, nil
}
