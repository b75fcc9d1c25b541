// Package config provides configuration management for go-abr-proxy.
package config

import (
	"net"
	"strconv"
	"time"
)

// Config holds all configuration options for the proxy.
type Config struct {
	// Proxy
	ListenAddr string `json:"listen_addr"`
	// BindAddr is used as the local source address when dialing the origin,
	// so one host can operate multiple proxy identities. Empty lets the
	// kernel choose.
	BindAddr   string `json:"bind_addr"`
	OriginHost string `json:"origin_host"`
	OriginPort int    `json:"origin_port"`

	// Adaptation
	Alpha float64 `json:"alpha"` // EWMA smoothing factor (0, 1]

	// Manifest recognition
	ManifestExt  string `json:"manifest_ext"`
	NoListSuffix string `json:"nolist_suffix"`

	// Timeouts
	DialTimeout time.Duration `json:"dial_timeout"`
	IdleTimeout time.Duration `json:"idle_timeout"` // re-armed before every socket read; bounds idle time, not transfer time

	// Throughput table eviction
	PathTTL       time.Duration `json:"path_ttl"`
	SweepInterval time.Duration `json:"sweep_interval"`

	// Chunk transfer log
	ChunkLogPath string `json:"chunk_log"` // empty = disabled

	// Observability
	MetricsAddr   string        `json:"metrics_addr"`
	Verbose       bool          `json:"verbose"`
	LogFormat     string        `json:"log_format"` // json, text
	StatsInterval time.Duration `json:"stats_interval"`

	// Dashboard
	TUIEnabled bool `json:"tui"`

	// Diagnostic modes
	Check       bool `json:"check"`
	PrintConfig bool `json:"print_config"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		// Proxy
		ListenAddr: "0.0.0.0:8888",
		OriginPort: 8080,

		// Adaptation
		Alpha: 0.3,

		// Manifest recognition
		ManifestExt:  ".f4m",
		NoListSuffix: "_nolist",

		// Timeouts
		DialTimeout: 5 * time.Second,
		IdleTimeout: 60 * time.Second,

		// Throughput table eviction
		PathTTL:       time.Hour,
		SweepInterval: 5 * time.Minute,

		// Observability
		MetricsAddr:   "0.0.0.0:17092",
		Verbose:       false,
		LogFormat:     "json",
		StatsInterval: 10 * time.Second,

		// Dashboard
		TUIEnabled: false,
	}
}

// OriginAddr returns the host:port the proxy dials for each session.
func (c *Config) OriginAddr() string {
	return net.JoinHostPort(c.OriginHost, strconv.Itoa(c.OriginPort))
}
