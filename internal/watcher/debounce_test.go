// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package watcher

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestDebouncer_Basic(t *testing.T) {
	var reloads atomic.Int32

	d := NewDebouncer(50 * time.Millisecond)

	d.Debounce(ConfigKey, func() {
		reloads.Add(1)
	})

	// Wait for debounce to fire.
	time.Sleep(100 * time.Millisecond)

	assert.Equal(t, int32(1), reloads.Load())
}

func TestDebouncer_BurstOfFsnotifyEventsCollapsesToOneReload(t *testing.T) {
	var reloads atomic.Int32

	d := NewDebouncer(50 * time.Millisecond)

	// A write-tmp-then-rename save can fire several fsnotify events for
	// one logical save; they should collapse into a single reload.
	for i := 0; i < 10; i++ {
		d.Debounce(ConfigKey, func() {
			reloads.Add(1)
		})
		time.Sleep(10 * time.Millisecond)
	}

	time.Sleep(100 * time.Millisecond)

	assert.Equal(t, int32(1), reloads.Load())
}

func TestDebouncer_DifferentKeysFireIndependently(t *testing.T) {
	var configReloads, seedReloads atomic.Int32

	d := NewDebouncer(50 * time.Millisecond)

	d.Debounce(ConfigKey, func() {
		configReloads.Add(1)
	})

	d.Debounce("seed-file", func() {
		seedReloads.Add(1)
	})

	time.Sleep(100 * time.Millisecond)

	assert.Equal(t, int32(1), configReloads.Load())
	assert.Equal(t, int32(1), seedReloads.Load())
}

func TestDebouncer_ResetOnCall(t *testing.T) {
	var reloads atomic.Int32

	d := NewDebouncer(50 * time.Millisecond)

	d.Debounce(ConfigKey, func() {
		reloads.Add(1)
	})

	// Wait 30ms, then call again (resets timer).
	time.Sleep(30 * time.Millisecond)
	d.Debounce(ConfigKey, func() {
		reloads.Add(1)
	})

	// Only 30ms since the last call: shouldn't fire yet.
	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, int32(0), reloads.Load())

	// Another 50ms: should fire now.
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, int32(1), reloads.Load())
}

func TestDebouncer_Cancel(t *testing.T) {
	var reloads atomic.Int32

	d := NewDebouncer(50 * time.Millisecond)

	d.Debounce(ConfigKey, func() {
		reloads.Add(1)
	})

	// e.g. the watch loop is tearing down before the debounce fired.
	d.Cancel(ConfigKey)

	time.Sleep(100 * time.Millisecond)

	assert.Equal(t, int32(0), reloads.Load())
}

func TestDebouncer_CancelNonexistent(t *testing.T) {
	d := NewDebouncer(50 * time.Millisecond)

	// Should not panic.
	d.Cancel("nonexistent")
}

func TestDebouncer_Stop(t *testing.T) {
	var reloads atomic.Int32

	d := NewDebouncer(50 * time.Millisecond)

	d.Debounce(ConfigKey, func() {
		reloads.Add(1)
	})
	d.Debounce("seed-file", func() {
		reloads.Add(1)
	})

	// gatewayd calls Stop on shutdown.
	d.Stop()

	time.Sleep(100 * time.Millisecond)

	assert.Equal(t, int32(0), reloads.Load())
}

func TestDebouncer_SetDuration(t *testing.T) {
	var reloads atomic.Int32

	d := NewDebouncer(100 * time.Millisecond)

	d.Debounce(ConfigKey, func() {
		reloads.Add(1)
	})

	// Change duration to shorter; existing timer keeps its deadline.
	d.SetDuration(20 * time.Millisecond)

	d.Debounce("seed-file", func() {
		reloads.Add(1)
	})

	time.Sleep(50 * time.Millisecond)

	// seed-file fires at 20ms, config still pending at 100ms.
	assert.Equal(t, int32(1), reloads.Load())

	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, int32(2), reloads.Load())
}

func TestDebouncer_Concurrency(t *testing.T) {
	var reloads atomic.Int32

	d := NewDebouncer(20 * time.Millisecond)
	done := make(chan bool, 100)

	// Concurrent fsnotify deliveries for the same file.
	for i := 0; i < 100; i++ {
		go func() {
			d.Debounce(ConfigKey, func() {
				reloads.Add(1)
			})
			done <- true
		}()
	}

	for i := 0; i < 100; i++ {
		<-done
	}

	time.Sleep(50 * time.Millisecond)

	assert.Equal(t, int32(1), reloads.Load())
}

func TestDebouncer_LatestCallbackWins(t *testing.T) {
	var lastLoadedVersion atomic.Int32

	d := NewDebouncer(50 * time.Millisecond)

	// Each reload captures a different config version; only the last one
	// scheduled before the quiet period should actually apply.
	for i := 1; i <= 5; i++ {
		version := int32(i)
		d.Debounce(ConfigKey, func() {
			lastLoadedVersion.Store(version)
		})
		time.Sleep(10 * time.Millisecond)
	}

	time.Sleep(100 * time.Millisecond)

	assert.Equal(t, int32(5), lastLoadedVersion.Load())
}

func TestDebouncer_ZeroDurationUsesDefault(t *testing.T) {
	var reloads atomic.Int32

	d := NewDebouncer(0)

	d.Debounce(ConfigKey, func() {
		reloads.Add(1)
	})

	time.Sleep(10 * time.Millisecond)
	assert.Equal(t, int32(0), reloads.Load())

	time.Sleep(200 * time.Millisecond)
	assert.Equal(t, int32(1), reloads.Load())
}

func TestDebouncer_NegativeDurationUsesDefault(t *testing.T) {
	var reloads atomic.Int32

	d := NewDebouncer(-100 * time.Millisecond)

	d.Debounce(ConfigKey, func() {
		reloads.Add(1)
	})

	time.Sleep(200 * time.Millisecond)
	assert.Equal(t, int32(1), reloads.Load())
}
