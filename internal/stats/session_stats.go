// Package stats provides per-session and aggregated transfer statistics for
// the proxy: request counts by type, relayed bytes, chosen bitrates, and
// chunk transfer percentiles (T-Digest).
package stats

import (
	"sync/atomic"
	"time"
)

// SessionStats holds one session worker's counters. All methods are safe to
// call from the worker's relay goroutines; reads come from the aggregator.
type SessionStats struct {
	// ID is the session's UUID, Client/Origin its two socket addresses.
	ID     string
	Client string
	Origin string

	started time.Time

	manifestReqs    atomic.Int64
	segmentReqs     atomic.Int64
	passthroughMsgs atomic.Int64
	rewrites        atomic.Int64
	bytesToClient   atomic.Int64
	bytesToOrigin   atomic.Int64
	chunks          atomic.Int64

	currentBitrate atomic.Int64
}

// NewSessionStats creates counters for one session.
func NewSessionStats(id, client, origin string) *SessionStats {
	return &SessionStats{
		ID:      id,
		Client:  client,
		Origin:  origin,
		started: time.Now(),
	}
}

// CountManifestRequest records a manifest request seen from the client.
func (s *SessionStats) CountManifestRequest() { s.manifestReqs.Add(1) }

// CountSegmentRequest records a bitrate-token request, rewritten or not.
func (s *SessionStats) CountSegmentRequest() { s.segmentReqs.Add(1) }

// CountPassthrough records a message relayed without modification.
func (s *SessionStats) CountPassthrough() { s.passthroughMsgs.Add(1) }

// CountRewrite records one bitrate rewrite.
func (s *SessionStats) CountRewrite() { s.rewrites.Add(1) }

// AddBytesToClient adds to the downstream byte counter.
func (s *SessionStats) AddBytesToClient(n int64) {
	if n > 0 {
		s.bytesToClient.Add(n)
	}
}

// AddBytesToOrigin adds to the upstream byte counter.
func (s *SessionStats) AddBytesToOrigin(n int64) {
	if n > 0 {
		s.bytesToOrigin.Add(n)
	}
}

// CountChunk records one completed segment transfer.
func (s *SessionStats) CountChunk() { s.chunks.Add(1) }

// SetBitrate records the most recently chosen bitrate (bits/sec).
func (s *SessionStats) SetBitrate(bps int) { s.currentBitrate.Store(int64(bps)) }

// Bitrate returns the most recently chosen bitrate (bits/sec), 0 before any
// decision.
func (s *SessionStats) Bitrate() int { return int(s.currentBitrate.Load()) }

// Snapshot is a point-in-time copy of one session's counters.
type Snapshot struct {
	ID     string
	Client string
	Origin string
	Uptime time.Duration

	ManifestReqs    int64
	SegmentReqs     int64
	PassthroughMsgs int64
	Rewrites        int64
	BytesToClient   int64
	BytesToOrigin   int64
	Chunks          int64
	Bitrate         int
}

// Snapshot returns a consistent-enough copy for display; individual counters
// are read atomically.
func (s *SessionStats) Snapshot() Snapshot {
	return Snapshot{
		ID:              s.ID,
		Client:          s.Client,
		Origin:          s.Origin,
		Uptime:          time.Since(s.started),
		ManifestReqs:    s.manifestReqs.Load(),
		SegmentReqs:     s.segmentReqs.Load(),
		PassthroughMsgs: s.passthroughMsgs.Load(),
		Rewrites:        s.rewrites.Load(),
		BytesToClient:   s.bytesToClient.Load(),
		BytesToOrigin:   s.bytesToOrigin.Load(),
		Chunks:          s.chunks.Load(),
		Bitrate:         int(s.currentBitrate.Load()),
	}
}
