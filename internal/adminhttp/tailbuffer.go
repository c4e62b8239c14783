// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package adminhttp

import "sync"

// TailBuffer retains the last N log lines written through it, so the
// admin tail websocket has something to replay to a freshly connecting
// client without holding the whole process's log history in memory.
type TailBuffer struct {
	mu    sync.Mutex
	lines []string
	cap   int
}

// NewTailBuffer returns a TailBuffer retaining at most capacity lines.
func NewTailBuffer(capacity int) *TailBuffer {
	if capacity <= 0 {
		capacity = 500
	}
	return &TailBuffer{cap: capacity}
}

// Write implements io.Writer so *TailBuffer can be wired as an
// additional log.Logger output alongside stderr.
func (b *TailBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	b.lines = append(b.lines, string(p))
	if len(b.lines) > b.cap {
		b.lines = b.lines[len(b.lines)-b.cap:]
	}
	b.mu.Unlock()
	return len(p), nil
}

// Lines returns a snapshot of the retained lines, oldest first.
func (b *TailBuffer) Lines() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]string, len(b.lines))
	copy(out, b.lines)
	return out
}
