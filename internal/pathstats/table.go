// Package pathstats holds the process-wide throughput table: one smoothed
// throughput estimate per logical client↔origin path.
//
// The table is the only state shared across session workers. Distinct client
// connections to the same origin share (and contend on) one estimate — that
// is intentional: it approximates "what throughput has this path historically
// sustained". All reads and the read-modify-write EWMA update run under the
// table lock so concurrent workers sharing a key never lose updates.
//
// Entries are never removed by the relay itself; a TTL sweep bounds memory in
// long-running deployments.
package pathstats

import (
	"sync"
	"time"

	"github.com/randomizedcoder/go-abr-proxy/internal/abr"
)

// Clock interface for testing with deterministic time.
type Clock interface {
	Now() time.Time
}

// realClock uses time.Now() for production.
type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

// Key identifies one logical client↔origin path. Immutable once created.
type Key struct {
	Origin string
	Client string
}

// entry is one smoothed-throughput record, owned by the table.
type entry struct {
	avgBps    float64
	lastTouch time.Time
}

// Table maps a path key to its current smoothed throughput (bits/sec).
// Safe for concurrent use; construct with NewTable and inject into every
// session worker.
type Table struct {
	mu    sync.Mutex
	m     map[Key]*entry
	clock Clock
}

// NewTable creates an empty table with the real clock.
func NewTable() *Table {
	return NewTableWithClock(realClock{})
}

// NewTableWithClock creates a table with a custom clock for testing.
func NewTableWithClock(clock Clock) *Table {
	return &Table{
		m:     make(map[Key]*entry),
		clock: clock,
	}
}

// Get returns the current smoothed throughput for key, or 0 when the path is
// unknown.
func (t *Table) Get(key Key) float64 {
	t.mu.Lock()
	defer t.mu.Unlock()

	e, ok := t.m[key]
	if !ok {
		return 0
	}
	e.lastTouch = t.clock.Now()
	return e.avgBps
}

// InitIfUnset seeds the entry for key with bps — the catalog's smallest
// bitrate at manifest bootstrap. A no-op when the path already has history,
// so a second session on the same path inherits the existing estimate.
func (t *Table) InitIfUnset(key Key, bps float64) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if _, ok := t.m[key]; ok {
		return
	}
	t.m[key] = &entry{avgBps: bps, lastTouch: t.clock.Now()}
}

// Update folds an instantaneous throughput sample into the entry for key via
// EWMA and returns the new average. The read-compute-write runs under the
// table lock. A missing entry starts from 0, and a 0-bps sample (response
// without Content-Length) still moves the average.
func (t *Table) Update(key Key, sampleBps, alpha float64) float64 {
	t.mu.Lock()
	defer t.mu.Unlock()

	e, ok := t.m[key]
	if !ok {
		e = &entry{}
		t.m[key] = e
	}
	e.avgBps = abr.Smooth(e.avgBps, sampleBps, alpha)
	e.lastTouch = t.clock.Now()
	return e.avgBps
}

// Len returns the number of tracked paths.
func (t *Table) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.m)
}

// Snapshot returns a copy of all current estimates, for metrics and the
// dashboard.
func (t *Table) Snapshot() map[Key]float64 {
	t.mu.Lock()
	defer t.mu.Unlock()

	out := make(map[Key]float64, len(t.m))
	for k, e := range t.m {
		out[k] = e.avgBps
	}
	return out
}

// Sweep removes entries untouched for longer than maxAge and returns how many
// were evicted.
func (t *Table) Sweep(maxAge time.Duration) int {
	now := t.clock.Now()

	t.mu.Lock()
	defer t.mu.Unlock()

	evicted := 0
	for k, e := range t.m {
		if now.Sub(e.lastTouch) > maxAge {
			delete(t.m, k)
			evicted++
		}
	}
	return evicted
}

// RunSweeper evicts stale entries every interval until the stop channel
// closes. Run in a goroutine.
func (t *Table) RunSweeper(stop <-chan struct{}, interval, maxAge time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			t.Sweep(maxAge)
		}
	}
}
