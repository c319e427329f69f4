package main

import (
	"fmt"
	"math/rand"
	"sync"
	"time"
)

// ===========================
// Activity Registry
// ===========================

// Activity is a short-lived stateful interaction tracked by the registry:
// a giveaway, a poll, a pending reminder, a verification timer. Activities
// live in memory only and do not survive a restart.
type Activity interface {
	ActivityID() string
	ActivityKind() string
}

type activityEntry struct {
	mu       sync.Mutex
	act      Activity
	timer    *time.Timer
	onExpire func(Activity)
	terminal bool
}

// ActivityRegistry owns every live activity and its expiry timer. An
// activity reaches its terminal state exactly once, whether through the
// timer, an explicit Finish, or Cancel; late calls are no-ops.
type ActivityRegistry struct {
	mu      sync.RWMutex
	entries map[string]*activityEntry
	now     func() time.Time
	closed  bool
}

var Activities = NewActivityRegistry()

func NewActivityRegistry() *ActivityRegistry {
	return &ActivityRegistry{
		entries: make(map[string]*activityEntry),
		now:     time.Now,
	}
}

// NewActivityID builds a collision-resistant activity ID. The kind prefix
// lets component handlers route on it without a registry lookup.
func NewActivityID(kind string) string {
	return fmt.Sprintf("%s_%d_%04x", kind, time.Now().UnixMilli(), rand.Intn(0x10000))
}

// Add registers an activity and arms its expiry timer. A zero deadline
// means the activity never expires on its own (it ends via Finish or
// Cancel only).
func (r *ActivityRegistry) Add(act Activity, deadline time.Time, onExpire func(Activity)) error {
	id := act.ActivityID()

	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return fmt.Errorf("registry is shut down")
	}
	if _, exists := r.entries[id]; exists {
		r.mu.Unlock()
		return fmt.Errorf("duplicate activity ID: %s", id)
	}

	entry := &activityEntry{act: act, onExpire: onExpire}
	r.entries[id] = entry

	if !deadline.IsZero() {
		d := deadline.Sub(r.now())
		if d < 0 {
			d = 0
		}
		entry.timer = time.AfterFunc(d, func() { r.expire(id) })
	}
	r.mu.Unlock()

	return nil
}

// Get returns the live activity for id. Terminal activities are gone.
func (r *ActivityRegistry) Get(id string) (Activity, bool) {
	r.mu.RLock()
	entry, ok := r.entries[id]
	r.mu.RUnlock()
	if !ok {
		return nil, false
	}

	entry.mu.Lock()
	defer entry.mu.Unlock()
	if entry.terminal {
		return nil, false
	}
	return entry.act, true
}

// Mutate runs fn against the activity under its lock. Returns false if
// the activity is gone or already terminal; fn is not called in that
// case. Mutations racing with expiry either land fully before it or are
// rejected.
func (r *ActivityRegistry) Mutate(id string, fn func(Activity)) bool {
	r.mu.RLock()
	entry, ok := r.entries[id]
	r.mu.RUnlock()
	if !ok {
		return false
	}

	entry.mu.Lock()
	defer entry.mu.Unlock()
	if entry.terminal {
		return false
	}
	fn(entry.act)
	return true
}

// Finish marks the activity terminal and removes it. Exactly one caller
// wins: the returned bool reports whether this call performed the
// transition. The expiry timer is stopped either way.
func (r *ActivityRegistry) Finish(id string) (Activity, bool) {
	r.mu.Lock()
	entry, ok := r.entries[id]
	if ok {
		delete(r.entries, id)
	}
	r.mu.Unlock()
	if !ok {
		return nil, false
	}

	entry.mu.Lock()
	defer entry.mu.Unlock()
	if entry.terminal {
		return nil, false
	}
	entry.terminal = true
	if entry.timer != nil {
		entry.timer.Stop()
	}
	return entry.act, true
}

// Cancel tears an activity down without firing its expiry callback.
// Safe to call repeatedly or on unknown IDs.
func (r *ActivityRegistry) Cancel(id string) {
	_, _ = r.Finish(id)
}

// expire is the timer path: first terminal transition wins, then the
// expiry callback runs outside all locks.
func (r *ActivityRegistry) expire(id string) {
	r.mu.Lock()
	entry, ok := r.entries[id]
	if ok {
		delete(r.entries, id)
	}
	r.mu.Unlock()
	if !ok {
		return
	}

	entry.mu.Lock()
	if entry.terminal {
		entry.mu.Unlock()
		return
	}
	entry.terminal = true
	onExpire := entry.onExpire
	act := entry.act
	entry.mu.Unlock()

	if onExpire != nil {
		onExpire(act)
	}
}

// Count reports live activities, optionally filtered by kind ("" for all).
func (r *ActivityRegistry) Count(kind string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if kind == "" {
		return len(r.entries)
	}
	n := 0
	for _, entry := range r.entries {
		if entry.act.ActivityKind() == kind {
			n++
		}
	}
	return n
}

// ForEach visits every live activity of the given kind ("" for all).
// The visitor must not call back into the registry.
func (r *ActivityRegistry) ForEach(kind string, fn func(Activity)) {
	r.mu.RLock()
	var acts []Activity
	for _, entry := range r.entries {
		if kind == "" || entry.act.ActivityKind() == kind {
			acts = append(acts, entry.act)
		}
	}
	r.mu.RUnlock()

	for _, act := range acts {
		fn(act)
	}
}

// Shutdown cancels every pending activity. Expiry callbacks that have
// not fired yet never will.
func (r *ActivityRegistry) Shutdown() {
	r.mu.Lock()
	r.closed = true
	entries := r.entries
	r.entries = make(map[string]*activityEntry)
	r.mu.Unlock()

	for _, entry := range entries {
		entry.mu.Lock()
		entry.terminal = true
		if entry.timer != nil {
			entry.timer.Stop()
		}
		entry.mu.Unlock()
	}
}
