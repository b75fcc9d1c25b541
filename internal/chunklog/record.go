// Package chunklog writes the per-chunk transfer log: one plain-text line per
// completed segment transfer, appended to a line-oriented sink.
//
// This is deliberately separate from structured logging — the chunk log is a
// stable, whitespace-delimited format consumed by downstream analysis
// tooling, not an operator log.
package chunklog

import (
	"fmt"
	"time"
)

// Record describes one completed segment transfer.
type Record struct {
	Timestamp time.Time
	Duration  time.Duration
	// Instantaneous and smoothed throughput, bits/sec.
	ThroughputBps    float64
	AvgThroughputBps float64
	// Chosen bitrate, bits/sec. Records with Bitrate 0 (manifest-only
	// exchanges) are never emitted.
	Bitrate int
	Origin  string
	Chunk   string
}

// Line renders the record as one log line (no trailing newline):
//
//	<unixTimestamp> <durationSeconds> <throughputKbps> <avgThroughputKbps> <bitrateKbps> <originAddress> <chunkPath>
func (r Record) Line() string {
	return fmt.Sprintf("%d %.3f %.0f %.0f %d %s %s",
		r.Timestamp.Unix(),
		r.Duration.Seconds(),
		r.ThroughputBps/1000,
		r.AvgThroughputBps/1000,
		r.Bitrate/1000,
		r.Origin,
		r.Chunk,
	)
}
