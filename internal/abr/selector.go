package abr

// sustainFactor is the safety margin against throughput variance: a session
// may sustainably request bitrate b only if avg >= sustainFactor*b.
const sustainFactor = 1.5

// SelectFunc maps a smoothed throughput estimate (bits/sec) and an ascending
// bitrate catalog to the bitrate the session should request next.
//
// The policy is a plain function so deployments can swap it without touching
// the relay engine. bitrates must be non-empty and sorted ascending.
type SelectFunc func(avgBps float64, bitrates []int) int

// SelectHighestSustainable is the default policy: pick the highest catalog
// entry b satisfying avg >= 1.5*b.
//
// When the average is too low to sustain even the smallest entry, it falls
// back to the HIGHEST entry. That fallback is counter-intuitive but matches
// the deployed behavior this proxy is compatible with; swap the policy if you
// want a floor instead. See the selector tests, which pin both the monotonic
// region and the fallback boundary.
func SelectHighestSustainable(avgBps float64, bitrates []int) int {
	if len(bitrates) == 0 {
		return 0
	}

	chosen := bitrates[len(bitrates)-1]
	for _, b := range bitrates {
		if avgBps >= sustainFactor*float64(b) {
			chosen = b
		}
	}
	return chosen
}

// SelectLowestOnUnderrun behaves like SelectHighestSustainable in the
// sustainable region but falls back to the LOWEST entry when nothing is
// sustainable. Offered as the sane alternative policy.
func SelectLowestOnUnderrun(avgBps float64, bitrates []int) int {
	if len(bitrates) == 0 {
		return 0
	}

	chosen := bitrates[0]
	for _, b := range bitrates {
		if avgBps >= sustainFactor*float64(b) {
			chosen = b
		}
	}
	return chosen
}
