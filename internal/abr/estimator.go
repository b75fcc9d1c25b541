package abr

import "time"

// minDuration clamps zero or negative transfer durations (clock granularity,
// malformed timing) so throughput computation never divides by zero.
const minDuration = time.Millisecond

// InstantaneousThroughput computes the delivered throughput in bits/sec for a
// transfer of contentLength bytes over the given duration.
//
// Durations <= 0 are clamped to minDuration rather than rejected: the
// resulting (large) sample is still data and is fed into smoothing like any
// other. The result is always finite and non-negative.
func InstantaneousThroughput(contentLength int64, duration time.Duration) float64 {
	if contentLength < 0 {
		contentLength = 0
	}
	if duration < minDuration {
		duration = minDuration
	}
	return float64(contentLength) * 8 / duration.Seconds()
}

// Smooth folds a new throughput sample into the running average using an
// exponentially-weighted moving average:
//
//	alpha*sample + (1-alpha)*prev
//
// alpha is a fixed per-process smoothing factor in (0, 1]: higher alpha
// reacts faster to change, lower alpha is more stable against transient
// noise. The caller owns the running value; Smooth keeps no state.
func Smooth(prev, sample, alpha float64) float64 {
	return alpha*sample + (1-alpha)*prev
}
