// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package cursorstream

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGuard_FirstObservationAlwaysAccepted(t *testing.T) {
	g := NewGuard()
	accepted, prev := g.Observe("sub1", 5)
	assert.True(t, accepted)
	assert.Nil(t, prev)

	last, ok := g.Last("sub1")
	require.True(t, ok)
	assert.Equal(t, int64(5), last)
}

func TestGuard_StrictlyIncreasingAccepted(t *testing.T) {
	g := NewGuard()
	_, _ = g.Observe("sub1", 5)
	accepted, prev := g.Observe("sub1", 6)
	assert.True(t, accepted)
	assert.Nil(t, prev)
}

func TestGuard_DuplicateRejected(t *testing.T) {
	g := NewGuard()
	_, _ = g.Observe("sub1", 5)
	accepted, prev := g.Observe("sub1", 5)
	assert.False(t, accepted)
	require.NotNil(t, prev)
	assert.Equal(t, int64(5), *prev)

	last, ok := g.Last("sub1")
	require.True(t, ok)
	assert.Equal(t, int64(5), last, "state must be unchanged on rejection")
}

func TestGuard_RegressedRejected(t *testing.T) {
	g := NewGuard()
	_, _ = g.Observe("sub1", 10)
	accepted, prev := g.Observe("sub1", 3)
	assert.False(t, accepted)
	require.NotNil(t, prev)
	assert.Equal(t, int64(10), *prev)
}

func TestGuard_KeysAreIndependent(t *testing.T) {
	g := NewGuard()
	accepted1, _ := g.Observe("sub1", 5)
	accepted2, _ := g.Observe("sub2", 1)
	assert.True(t, accepted1)
	assert.True(t, accepted2)
}

func TestGuard_ForgetResetsKey(t *testing.T) {
	g := NewGuard()
	_, _ = g.Observe("sub1", 5)
	g.Forget("sub1")
	_, ok := g.Last("sub1")
	assert.False(t, ok)

	accepted, prev := g.Observe("sub1", 1)
	assert.True(t, accepted, "forgotten key re-accepts any cursor")
	assert.Nil(t, prev)
}

func TestGuard_Reset(t *testing.T) {
	g := NewGuard()
	_, _ = g.Observe("sub1", 5)
	_, _ = g.Observe("sub2", 9)
	g.Reset()
	_, ok1 := g.Last("sub1")
	_, ok2 := g.Last("sub2")
	assert.False(t, ok1)
	assert.False(t, ok2)
}

func TestGuard_ZeroValueUsable(t *testing.T) {
	var g Guard
	accepted, _ := g.Observe("sub1", 1)
	assert.True(t, accepted)
}
