// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package ptysession

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRing_AppendAndReadSince(t *testing.T) {
	r := NewRing(1024)

	c1 := r.Append([]byte("hello "))
	assert.Equal(t, int64(6), c1)

	c2 := r.Append([]byte("world"))
	assert.Equal(t, int64(11), c2)

	data, truncated := r.ReadSince(0)
	require.False(t, truncated)
	assert.Equal(t, "hello world", string(data))

	data, truncated = r.ReadSince(6)
	require.False(t, truncated)
	assert.Equal(t, "world", string(data))

	data, truncated = r.ReadSince(11)
	assert.False(t, truncated)
	assert.Empty(t, data)
}

func TestRing_TruncatesWhenOverCapacity(t *testing.T) {
	r := NewRing(4)

	r.Append([]byte("ab"))
	r.Append([]byte("cd"))
	end := r.Append([]byte("ef")) // forces "ab" out
	assert.Equal(t, int64(6), end)

	data, truncated := r.ReadSince(0)
	assert.True(t, truncated)
	assert.Equal(t, "cdef", string(data))

	data, truncated = r.ReadSince(4)
	assert.False(t, truncated)
	assert.Equal(t, "ef", string(data))
}

func TestRing_EndTracksAppends(t *testing.T) {
	r := NewRing(16)
	assert.Equal(t, int64(0), r.End())
	r.Append([]byte("abc"))
	assert.Equal(t, int64(3), r.End())
}
