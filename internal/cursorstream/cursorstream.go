// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package cursorstream implements the monotonic cursor guard used by the
// gateway connection for PTY output cursors and by the client-side
// reducer: a
// cursor is accepted only if it strictly exceeds the last accepted cursor
// for its key, and a duplicate or regressed cursor is a silent no-op.
package cursorstream

import "sync"

// Guard tracks the last accepted cursor per key. The zero value is ready
// to use. A Guard is safe for concurrent use.
type Guard struct {
	mu   sync.Mutex
	last map[string]int64
}

// NewGuard returns a ready-to-use Guard.
func NewGuard() *Guard {
	return &Guard{last: make(map[string]int64)}
}

// Observe reports whether cursor is accepted for key: accepted iff no
// cursor has been observed for key yet, or cursor is strictly greater than
// the last accepted one. On acceptance the guard's state advances to
// cursor. On rejection the guard is unchanged and previousCursor reports
// the last accepted cursor for key.
func (g *Guard) Observe(key string, cursor int64) (accepted bool, previousCursor *int64) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.last == nil {
		g.last = make(map[string]int64)
	}
	prev, seen := g.last[key]
	if !seen || cursor > prev {
		g.last[key] = cursor
		return true, nil
	}
	return false, &prev
}

// Last returns the last accepted cursor for key, if any.
func (g *Guard) Last(key string) (cursor int64, ok bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	cursor, ok = g.last[key]
	return cursor, ok
}

// Forget removes key's tracked cursor, e.g. when a subscription is torn
// down or a session is closed.
func (g *Guard) Forget(key string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.last, key)
}

// Reset clears all tracked cursors.
func (g *Guard) Reset() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.last = make(map[string]int64)
}
