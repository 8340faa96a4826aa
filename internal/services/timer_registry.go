package services

import (
	"sync"
	"time"

	"sosalert/pkg/metrics"
)

type TimerKind string

const (
	TimerCountdown  TimerKind = "countdown"
	TimerEscalation TimerKind = "escalation"
	TimerFollowUp   TimerKind = "follow_up"
	TimerRetry      TimerKind = "retry"
)

type timerKey struct {
	id   string
	kind TimerKind
}

type timerEntry struct {
	timer *time.Timer
	seq   uint64
}

// TimerRegistry owns every scheduled callback, keyed by (id, kind). Arming a
// key replaces its previous timer atomically, and a callback whose entry was
// replaced or cancelled before it ran does nothing.
type TimerRegistry struct {
	mu      sync.Mutex
	entries map[timerKey]*timerEntry
	seq     uint64
	stopped bool
	metrics *metrics.Metrics
}

func NewTimerRegistry(m *metrics.Metrics) *TimerRegistry {
	return &TimerRegistry{
		entries: make(map[timerKey]*timerEntry),
		metrics: m,
	}
}

// Schedule arms fn to run after delay under (id, kind), replacing any timer
// already armed for that key. It returns false once the registry is stopped.
func (r *TimerRegistry) Schedule(id string, kind TimerKind, delay time.Duration, fn func()) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.stopped {
		return false
	}

	key := timerKey{id: id, kind: kind}
	if old, ok := r.entries[key]; ok {
		old.timer.Stop()
	}

	r.seq++
	seq := r.seq
	entry := &timerEntry{seq: seq}
	entry.timer = time.AfterFunc(delay, func() {
		if r.claim(key, seq) {
			fn()
		}
	})
	r.entries[key] = entry
	r.report(kind)
	return true
}

// claim removes the entry if it still belongs to the firing timer.
func (r *TimerRegistry) claim(key timerKey, seq uint64) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	entry, ok := r.entries[key]
	if !ok || entry.seq != seq {
		return false
	}
	delete(r.entries, key)
	r.report(key.kind)
	return true
}

// Cancel disarms (id, kind). It reports whether a pending timer was removed;
// cancelling a fired or unknown timer is a no-op.
func (r *TimerRegistry) Cancel(id string, kind TimerKind) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := timerKey{id: id, kind: kind}
	entry, ok := r.entries[key]
	if !ok {
		return false
	}
	entry.timer.Stop()
	delete(r.entries, key)
	r.report(kind)
	return true
}

// CancelAll disarms every kind of timer for id.
func (r *TimerRegistry) CancelAll(id string) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	n := 0
	for key, entry := range r.entries {
		if key.id != id {
			continue
		}
		entry.timer.Stop()
		delete(r.entries, key)
		r.report(key.kind)
		n++
	}
	return n
}

func (r *TimerRegistry) Active(id string, kind TimerKind) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	_, ok := r.entries[timerKey{id: id, kind: kind}]
	return ok
}

func (r *TimerRegistry) Count(kind TimerKind) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.count(kind)
}

// Stop disarms everything and rejects further scheduling.
func (r *TimerRegistry) Stop() {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.stopped = true
	for key, entry := range r.entries {
		entry.timer.Stop()
		delete(r.entries, key)
	}
	for _, kind := range []TimerKind{TimerCountdown, TimerEscalation, TimerFollowUp, TimerRetry} {
		r.report(kind)
	}
}

func (r *TimerRegistry) count(kind TimerKind) int {
	n := 0
	for key := range r.entries {
		if key.kind == kind {
			n++
		}
	}
	return n
}

// report must be called with mu held.
func (r *TimerRegistry) report(kind TimerKind) {
	if r.metrics == nil {
		return
	}
	r.metrics.SetActiveTimers(string(kind), r.count(kind))
}
