// Package metrics provides Prometheus metrics for go-abr-proxy.
//
// All metrics are aggregate: per-path labels would be unbounded cardinality
// on a busy proxy, so per-path detail stays in the stats package and the
// chunk log.
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// --- Panel 1: Proxy Overview ---
var (
	proxyInfo = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "abr_proxy_info",
			Help: "Information about the proxy (value always 1)",
		},
		[]string{"version", "origin", "listen"},
	)

	proxySessionsActive = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "abr_proxy_sessions_active",
			Help: "Currently open client sessions",
		},
	)

	proxySessionsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "abr_proxy_sessions_total",
			Help: "Total client sessions accepted",
		},
	)

	proxySessionErrorsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "abr_proxy_session_errors_total",
			Help: "Sessions terminated by an I/O error rather than clean EOF",
		},
	)
)

// --- Panel 2: Traffic ---
var (
	proxyManifestRequestsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "abr_proxy_manifest_requests_total",
			Help: "Manifest requests intercepted",
		},
	)

	proxySegmentRequestsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "abr_proxy_segment_requests_total",
			Help: "Segment requests carrying a bitrate token",
		},
	)

	proxyPassthroughTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "abr_proxy_passthrough_messages_total",
			Help: "Messages relayed without modification",
		},
	)

	proxyBytesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "abr_proxy_bytes_total",
			Help: "Bytes relayed by direction",
		},
		[]string{"direction"}, // "to_client" | "to_origin"
	)
)

// --- Panel 3: Adaptation ---
var (
	proxyRewritesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "abr_proxy_rewrites_total",
			Help: "Segment requests rewritten, by chosen bitrate (bits/sec)",
		},
		[]string{"bitrate"},
	)

	proxyChunkDurationSeconds = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "abr_proxy_chunk_duration_seconds",
			Help:    "Completed segment transfer duration",
			Buckets: []float64{.01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		},
	)

	proxyChunkThroughputBps = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "abr_proxy_chunk_throughput_bps",
			Help:    "Instantaneous per-chunk throughput (bits/sec)",
			Buckets: prometheus.ExponentialBuckets(100_000, 2, 12),
		},
	)

	proxyTrackedPaths = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "abr_proxy_tracked_paths",
			Help: "Entries in the shared throughput table",
		},
	)
)

// Collector manages all Prometheus metrics for the proxy.
type Collector struct {
	startTime time.Time
}

// CollectorConfig holds startup labels for the info metric.
type CollectorConfig struct {
	Version    string
	OriginAddr string
	ListenAddr string
}

// NewCollector creates a collector registered on the default registry.
func NewCollector(cfg CollectorConfig) *Collector {
	return NewCollectorWithRegistry(cfg, prometheus.DefaultRegisterer)
}

// NewCollectorWithRegistry creates a collector with a custom registry.
// Useful for testing.
func NewCollectorWithRegistry(cfg CollectorConfig, registry prometheus.Registerer) *Collector {
	c := &Collector{startTime: time.Now()}

	registry.MustRegister(
		proxyInfo,
		proxySessionsActive,
		proxySessionsTotal,
		proxySessionErrorsTotal,
		proxyManifestRequestsTotal,
		proxySegmentRequestsTotal,
		proxyPassthroughTotal,
		proxyBytesTotal,
		proxyRewritesTotal,
		proxyChunkDurationSeconds,
		proxyChunkThroughputBps,
		proxyTrackedPaths,
	)

	proxyInfo.WithLabelValues(cfg.Version, cfg.OriginAddr, cfg.ListenAddr).Set(1)
	return c
}

// SessionOpened records an accepted client connection.
func (c *Collector) SessionOpened() {
	proxySessionsTotal.Inc()
	proxySessionsActive.Inc()
}

// SessionClosed records a finished session; failed marks an error exit.
func (c *Collector) SessionClosed(failed bool) {
	proxySessionsActive.Dec()
	if failed {
		proxySessionErrorsTotal.Inc()
	}
}

// ManifestRequest counts one intercepted manifest request.
func (c *Collector) ManifestRequest() { proxyManifestRequestsTotal.Inc() }

// SegmentRequest counts one bitrate-token request.
func (c *Collector) SegmentRequest() { proxySegmentRequestsTotal.Inc() }

// Passthrough counts one unmodified relayed message.
func (c *Collector) Passthrough() { proxyPassthroughTotal.Inc() }

// AddBytesToClient adds to the downstream byte counter.
func (c *Collector) AddBytesToClient(n int64) {
	if n > 0 {
		proxyBytesTotal.WithLabelValues("to_client").Add(float64(n))
	}
}

// AddBytesToOrigin adds to the upstream byte counter.
func (c *Collector) AddBytesToOrigin(n int64) {
	if n > 0 {
		proxyBytesTotal.WithLabelValues("to_origin").Add(float64(n))
	}
}

// Rewrite counts a bitrate rewrite to bps.
func (c *Collector) Rewrite(bps int) {
	proxyRewritesTotal.WithLabelValues(strconv.Itoa(bps)).Inc()
}

// ChunkCompleted observes one finished segment transfer.
func (c *Collector) ChunkCompleted(duration time.Duration, bps float64) {
	proxyChunkDurationSeconds.Observe(duration.Seconds())
	proxyChunkThroughputBps.Observe(bps)
}

// SetTrackedPaths updates the throughput-table size gauge.
func (c *Collector) SetTrackedPaths(n int) {
	proxyTrackedPaths.Set(float64(n))
}

// Uptime returns time since collector creation.
func (c *Collector) Uptime() time.Duration {
	return time.Since(c.startTime)
}
