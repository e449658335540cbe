// Package health tracks the daemon's background-loop liveness, surfaced by
// the supplemented GET /providers operator route. The Lifecycle
// Supervisor's /health endpoint does not read it.
package health

import (
	"sync"
	"time"
)

// Tracker records the last time the Reconciler and Balance Sweeper
// completed a tick. A nil *Tracker is valid — every method is a no-op and
// Snapshot returns zero times — so components can be wired without one
// during tests that don't care about liveness reporting.
type Tracker struct {
	mu        sync.Mutex
	lastTick  time.Time
	lastSweep time.Time
}

func NewTracker() *Tracker {
	return &Tracker{}
}

func (t *Tracker) MarkReconcilerTick(ts time.Time) {
	if t == nil {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.lastTick = ts
}

func (t *Tracker) MarkSweep(ts time.Time) {
	if t == nil {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.lastSweep = ts
}

// Snapshot returns the last reconciler tick and last sweep timestamps,
// zero-valued if the corresponding loop has not completed a cycle yet.
func (t *Tracker) Snapshot() (lastTick, lastSweep time.Time) {
	if t == nil {
		return time.Time{}, time.Time{}
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.lastTick, t.lastSweep
}
