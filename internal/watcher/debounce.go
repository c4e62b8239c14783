// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package watcher coalesces the config-file change notifications
// gatewayd's fsnotify watcher produces into a single reload
// (SPEC_FULL.md AMBIENT STACK, "Config hot-reload"). Editors and atomic
// writers (write-tmp-then-rename) routinely emit several fsnotify events
// for one logical save; without debouncing, gatewayd would re-parse and
// re-apply the config file several times per save.
package watcher

import (
	"sync"
	"time"
)

const defaultReloadDebounce = 100 * time.Millisecond

// ConfigKey is the debounce key gatewayd uses for its single watched
// config file. A Debouncer supports more than one key so a future watch
// target (e.g. a seed-data file) can debounce independently.
const ConfigKey = "config"

// Debouncer coalesces repeated Debounce calls for the same key into one
// call to fn, fired duration after the last call for that key.
type Debouncer struct {
	mu       sync.Mutex
	duration time.Duration
	timers   map[string]*time.Timer
}

// NewDebouncer returns a Debouncer that waits duration of silence on a
// key before firing. duration <= 0 falls back to defaultReloadDebounce.
func NewDebouncer(duration time.Duration) *Debouncer {
	if duration <= 0 {
		duration = defaultReloadDebounce
	}
	return &Debouncer{
		duration: duration,
		timers:   make(map[string]*time.Timer),
	}
}

// Debounce (re)schedules fn for key, resetting any pending timer already
// running for that key so a burst of fsnotify events collapses into one
// call.
func (d *Debouncer) Debounce(key string, fn func()) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if pending, exists := d.timers[key]; exists {
		pending.Stop()
	}
	d.timers[key] = time.AfterFunc(d.duration, func() {
		d.mu.Lock()
		delete(d.timers, key)
		d.mu.Unlock()
		fn()
	})
}

// Cancel drops a pending debounced call for key without firing it.
func (d *Debouncer) Cancel(key string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.cancelLocked(key)
}

// Stop cancels every pending call; gatewayd runs it when the config watch
// is stopped so no orphaned timer outlives the watch loop.
func (d *Debouncer) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	for key := range d.timers {
		d.cancelLocked(key)
	}
}

func (d *Debouncer) cancelLocked(key string) {
	if timer, exists := d.timers[key]; exists {
		timer.Stop()
		delete(d.timers, key)
	}
}

// SetDuration changes the debounce duration for calls made after this
// point; timers already pending keep their original deadline.
func (d *Debouncer) SetDuration(duration time.Duration) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if duration <= 0 {
		duration = defaultReloadDebounce
	}
	d.duration = duration
}
