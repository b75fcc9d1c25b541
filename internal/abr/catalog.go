// Package abr implements the adaptive-bitrate decision pieces of the proxy:
// the per-session bitrate catalog discovered from a manifest, the throughput
// estimator (instantaneous + EWMA smoothing), and the bitrate selection
// policy applied to rewritten segment requests.
package abr

import (
	"errors"
	"sort"
)

// ErrEmptyCatalog is returned when a bitrate decision is requested before any
// manifest has populated the catalog.
var ErrEmptyCatalog = errors.New("bitrate catalog is empty")

// Catalog holds the ascending, deduplicated set of bitrates (bits/sec)
// advertised by a manifest for one streaming session.
//
// A Catalog is owned by a single session worker and needs no locking. It is
// populated once, from the first manifest fetch; later Add calls merge rather
// than corrupt (idempotent).
type Catalog struct {
	bitrates []int // ascending, no duplicates
}

// NewCatalog returns an empty catalog.
func NewCatalog() *Catalog {
	return &Catalog{}
}

// Add merges the discovered bitrate values into the catalog, deduplicating
// and keeping the sequence sorted ascending. Adding the same multiset twice
// yields the same catalog as adding it once.
func (c *Catalog) Add(values []int) {
	if len(values) == 0 {
		return
	}

	seen := make(map[int]bool, len(c.bitrates)+len(values))
	for _, b := range c.bitrates {
		seen[b] = true
	}

	for _, v := range values {
		if v <= 0 || seen[v] {
			continue
		}
		seen[v] = true
		c.bitrates = append(c.bitrates, v)
	}

	sort.Ints(c.bitrates)
}

// Smallest returns the minimum known bitrate, used as the bootstrap default
// before any selection has been made. Returns ErrEmptyCatalog before the
// first manifest has been seen.
func (c *Catalog) Smallest() (int, error) {
	if len(c.bitrates) == 0 {
		return 0, ErrEmptyCatalog
	}
	return c.bitrates[0], nil
}

// Largest returns the maximum known bitrate.
func (c *Catalog) Largest() (int, error) {
	if len(c.bitrates) == 0 {
		return 0, ErrEmptyCatalog
	}
	return c.bitrates[len(c.bitrates)-1], nil
}

// Bitrates returns a copy of the ascending bitrate sequence.
func (c *Catalog) Bitrates() []int {
	out := make([]int, len(c.bitrates))
	copy(out, c.bitrates)
	return out
}

// Len returns the number of distinct bitrates known.
func (c *Catalog) Len() int {
	return len(c.bitrates)
}

// Empty reports whether no bitrates are known yet.
func (c *Catalog) Empty() bool {
	return len(c.bitrates) == 0
}
