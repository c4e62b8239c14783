// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package ptysession

import "sync"

// Ring is a bounded byte deque keyed by absolute cursor (spec §4.4, §9).
// Every byte ever appended has a position; once the buffer exceeds cap the
// oldest bytes are dropped, but the cursor space itself never renumbers.
// A Ring is safe for concurrent use.
type Ring struct {
	mu          sync.Mutex
	cap         int
	firstCursor int64 // cursor of the byte just before buf[0]
	buf         []byte
}

// NewRing returns a Ring that retains at most capBytes of the most
// recently appended output.
func NewRing(capBytes int) *Ring {
	if capBytes <= 0 {
		capBytes = 1 << 20
	}
	return &Ring{cap: capBytes}
}

// Append adds data to the ring and returns the new absolute end cursor
// (the cursor of the last byte in data).
func (r *Ring) Append(data []byte) int64 {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.buf = append(r.buf, data...)
	if len(r.buf) > r.cap {
		drop := len(r.buf) - r.cap
		r.buf = r.buf[drop:]
		r.firstCursor += int64(drop)
	}
	return r.firstCursor + int64(len(r.buf))
}

// End returns the current absolute end cursor.
func (r *Ring) End() int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.firstCursor + int64(len(r.buf))
}

// ReadSince returns every retained byte with cursor strictly greater than
// since, plus whether since fell below the oldest retained cursor
// (truncated: replay starts at the oldest retained cursor instead, per
// spec §4.4 pty.attach).
func (r *Ring) ReadSince(since int64) (data []byte, truncated bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	end := r.firstCursor + int64(len(r.buf))
	if since < r.firstCursor {
		truncated = true
		since = r.firstCursor
	}
	if since >= end {
		return nil, truncated
	}
	offset := since - r.firstCursor
	data = make([]byte, end-since)
	copy(data, r.buf[offset:])
	return data, truncated
}
