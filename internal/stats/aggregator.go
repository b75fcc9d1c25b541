package stats

import (
	"log/slog"
	"sync"
	"time"

	"github.com/influxdata/tdigest"
)

// AggregatedStats holds metrics across all sessions, snapshotted at the time
// of the Aggregate call.
type AggregatedStats struct {
	Timestamp time.Time

	ActiveSessions int
	TotalSessions  int64

	ManifestReqs    int64
	SegmentReqs     int64
	PassthroughMsgs int64
	Rewrites        int64
	BytesToClient   int64
	BytesToOrigin   int64
	Chunks          int64

	// Chunk transfer duration percentiles.
	ChunkDurationP50 time.Duration
	ChunkDurationP95 time.Duration
	ChunkDurationP99 time.Duration

	// Instantaneous chunk throughput percentiles, bits/sec.
	ThroughputP50 float64
	ThroughputP95 float64

	// Per-session snapshots for the dashboard.
	Sessions []Snapshot
}

// Aggregator tracks live sessions and process-wide chunk percentiles.
type Aggregator struct {
	mu       sync.Mutex
	sessions map[string]*SessionStats

	// Totals folded in from sessions that have closed.
	closed        Snapshot
	totalSessions int64

	// T-Digest is not thread-safe; guarded by digestMu.
	digestMu       sync.Mutex
	durationDigest *tdigest.TDigest // nanoseconds
	tputDigest     *tdigest.TDigest // bits/sec
}

// NewAggregator creates an empty aggregator.
func NewAggregator() *Aggregator {
	return &Aggregator{
		sessions:       make(map[string]*SessionStats),
		durationDigest: tdigest.NewWithCompression(100),
		tputDigest:     tdigest.NewWithCompression(100),
	}
}

// Register adds a session's counters to the live set.
func (a *Aggregator) Register(s *SessionStats) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.sessions[s.ID] = s
	a.totalSessions++
}

// Unregister removes a closed session, folding its totals into the
// process-lifetime counters.
func (a *Aggregator) Unregister(s *SessionStats) {
	a.mu.Lock()
	defer a.mu.Unlock()

	delete(a.sessions, s.ID)

	snap := s.Snapshot()
	a.closed.ManifestReqs += snap.ManifestReqs
	a.closed.SegmentReqs += snap.SegmentReqs
	a.closed.PassthroughMsgs += snap.PassthroughMsgs
	a.closed.Rewrites += snap.Rewrites
	a.closed.BytesToClient += snap.BytesToClient
	a.closed.BytesToOrigin += snap.BytesToOrigin
	a.closed.Chunks += snap.Chunks
}

// RecordChunk feeds one completed segment transfer into the percentile
// digests.
func (a *Aggregator) RecordChunk(duration time.Duration, bps float64) {
	a.digestMu.Lock()
	defer a.digestMu.Unlock()
	a.durationDigest.Add(float64(duration.Nanoseconds()), 1)
	a.tputDigest.Add(bps, 1)
}

// Aggregate computes a snapshot across live and closed sessions.
func (a *Aggregator) Aggregate() AggregatedStats {
	a.mu.Lock()

	out := AggregatedStats{
		Timestamp:       time.Now(),
		ActiveSessions:  len(a.sessions),
		TotalSessions:   a.totalSessions,
		ManifestReqs:    a.closed.ManifestReqs,
		SegmentReqs:     a.closed.SegmentReqs,
		PassthroughMsgs: a.closed.PassthroughMsgs,
		Rewrites:        a.closed.Rewrites,
		BytesToClient:   a.closed.BytesToClient,
		BytesToOrigin:   a.closed.BytesToOrigin,
		Chunks:          a.closed.Chunks,
		Sessions:        make([]Snapshot, 0, len(a.sessions)),
	}

	for _, s := range a.sessions {
		snap := s.Snapshot()
		out.Sessions = append(out.Sessions, snap)
		out.ManifestReqs += snap.ManifestReqs
		out.SegmentReqs += snap.SegmentReqs
		out.PassthroughMsgs += snap.PassthroughMsgs
		out.Rewrites += snap.Rewrites
		out.BytesToClient += snap.BytesToClient
		out.BytesToOrigin += snap.BytesToOrigin
		out.Chunks += snap.Chunks
	}
	a.mu.Unlock()

	a.digestMu.Lock()
	if out.Chunks > 0 {
		out.ChunkDurationP50 = time.Duration(a.durationDigest.Quantile(0.50))
		out.ChunkDurationP95 = time.Duration(a.durationDigest.Quantile(0.95))
		out.ChunkDurationP99 = time.Duration(a.durationDigest.Quantile(0.99))
		out.ThroughputP50 = a.tputDigest.Quantile(0.50)
		out.ThroughputP95 = a.tputDigest.Quantile(0.95)
	}
	a.digestMu.Unlock()

	return out
}

// RunReporter logs a stats_summary line every interval until stop closes.
// Run in a goroutine.
func (a *Aggregator) RunReporter(stop <-chan struct{}, interval time.Duration, logger *slog.Logger) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			a.LogSummary(logger)
		}
	}
}

// LogSummary emits one stats_summary record.
func (a *Aggregator) LogSummary(logger *slog.Logger) {
	agg := a.Aggregate()
	logger.Info("stats_summary",
		"active_sessions", agg.ActiveSessions,
		"total_sessions", agg.TotalSessions,
		"manifest_reqs", agg.ManifestReqs,
		"segment_reqs", agg.SegmentReqs,
		"rewrites", agg.Rewrites,
		"chunks", agg.Chunks,
		"bytes_to_client", agg.BytesToClient,
		"bytes_to_origin", agg.BytesToOrigin,
		"chunk_p50_ms", agg.ChunkDurationP50.Milliseconds(),
		"chunk_p95_ms", agg.ChunkDurationP95.Milliseconds(),
		"tput_p50_kbps", agg.ThroughputP50/1000,
	)
}
