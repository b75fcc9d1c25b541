package config

import (
	"flag"
	"fmt"
	"os"
	"strings"
)

// ParseFlags parses command-line flags (and an optional YAML config file)
// and returns a Config. Precedence: flags > config file > defaults.
func ParseFlags() (*Config, error) {
	return ParseArgs(os.Args[1:])
}

// ParseArgs is ParseFlags over an explicit argument slice, for tests.
func ParseArgs(args []string) (*Config, error) {
	cfg := DefaultConfig()

	// The config file has to be applied before flag registration so flags
	// given on the command line still win over file values.
	if path := configFileArg(args); path != "" {
		if err := LoadFile(path, cfg); err != nil {
			return nil, err
		}
	}

	fs := flag.NewFlagSet("go-abr-proxy", flag.ContinueOnError)
	fs.Usage = func() { printUsage(fs) }

	var configPath string
	fs.StringVar(&configPath, "config", "", "YAML config file (flags override file values)")

	// Proxy
	fs.StringVar(&cfg.ListenAddr, "listen", cfg.ListenAddr, "Address to accept client connections on")
	fs.StringVar(&cfg.BindAddr, "bind", cfg.BindAddr, "Local source address for origin connections")
	fs.StringVar(&cfg.OriginHost, "origin", cfg.OriginHost, "Origin media server host")
	fs.IntVar(&cfg.OriginPort, "origin-port", cfg.OriginPort, "Origin media server port")

	// Adaptation
	fs.Float64Var(&cfg.Alpha, "alpha", cfg.Alpha, "EWMA smoothing factor in (0, 1]")
	fs.StringVar(&cfg.ManifestExt, "manifest-ext", cfg.ManifestExt, "Manifest filename extension")
	fs.StringVar(&cfg.NoListSuffix, "nolist-suffix", cfg.NoListSuffix, "Suffix of the no-listing manifest variant")

	// Timeouts / eviction
	fs.DurationVar(&cfg.DialTimeout, "dial-timeout", cfg.DialTimeout, "Origin connect timeout")
	fs.DurationVar(&cfg.IdleTimeout, "idle-timeout", cfg.IdleTimeout, "Maximum time between bytes on either session socket")
	fs.DurationVar(&cfg.PathTTL, "path-ttl", cfg.PathTTL, "Evict throughput entries untouched this long")
	fs.DurationVar(&cfg.SweepInterval, "sweep-interval", cfg.SweepInterval, "How often to sweep stale throughput entries")

	// Chunk log
	fs.StringVar(&cfg.ChunkLogPath, "chunk-log", cfg.ChunkLogPath, "Append per-chunk transfer lines to this file")

	// Observability
	fs.StringVar(&cfg.MetricsAddr, "metrics", cfg.MetricsAddr, "Prometheus metrics address")
	fs.BoolVar(&cfg.Verbose, "v", cfg.Verbose, "Verbose logging")
	fs.StringVar(&cfg.LogFormat, "log-format", cfg.LogFormat, `Log format: "json" or "text"`)
	fs.DurationVar(&cfg.StatsInterval, "stats-interval", cfg.StatsInterval, "Interval between stats summary log lines")

	// Dashboard
	fs.BoolVar(&cfg.TUIEnabled, "tui", cfg.TUIEnabled, "Enable live terminal dashboard")

	// Diagnostic modes
	fs.BoolVar(&cfg.Check, "check", cfg.Check, "Validate config, probe listen and origin endpoints, exit")
	fs.BoolVar(&cfg.PrintConfig, "print-config", cfg.PrintConfig, "Print effective config as YAML and exit")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	// Positional argument: origin host, matching the historical CLI shape.
	if rest := fs.Args(); len(rest) >= 1 && cfg.OriginHost == "" {
		cfg.OriginHost = rest[0]
	}

	return cfg, nil
}

// configFileArg extracts the -config value without a full flag parse.
func configFileArg(args []string) string {
	for i, a := range args {
		name, value, hasValue := strings.Cut(a, "=")
		if name != "-config" && name != "--config" {
			continue
		}
		if hasValue {
			return value
		}
		if i+1 < len(args) {
			return args[i+1]
		}
	}
	return ""
}

// printUsage prints categorized flag help.
func printUsage(fs *flag.FlagSet) {
	fmt.Fprintf(os.Stderr, `go-abr-proxy - transparent adaptive-bitrate streaming proxy

Usage:
  go-abr-proxy [flags] <origin-host>

Proxy Flags:
`)
	printFlagCategory(fs, []string{"listen", "bind", "origin", "origin-port"})

	fmt.Fprintf(os.Stderr, "\nAdaptation:\n")
	printFlagCategory(fs, []string{"alpha", "manifest-ext", "nolist-suffix"})

	fmt.Fprintf(os.Stderr, "\nTimeouts & Eviction:\n")
	printFlagCategory(fs, []string{"dial-timeout", "idle-timeout", "path-ttl", "sweep-interval"})

	fmt.Fprintf(os.Stderr, "\nObservability:\n")
	printFlagCategory(fs, []string{"chunk-log", "metrics", "v", "log-format", "stats-interval"})

	fmt.Fprintf(os.Stderr, "\nDashboard & Diagnostics:\n")
	printFlagCategory(fs, []string{"tui", "check", "print-config", "config"})

	fmt.Fprintf(os.Stderr, `
Examples:
  # Proxy clients on :8888 toward an origin on 10.0.0.1:8080
  go-abr-proxy -listen 0.0.0.0:8888 -chunk-log proxy.log 10.0.0.1

  # Faster adaptation, second proxy identity on the same host
  go-abr-proxy -alpha 0.7 -bind 10.0.0.20 -origin 10.0.0.1

`)
}

// printFlagCategory prints flags matching the given names (helper for usage).
func printFlagCategory(fs *flag.FlagSet, names []string) {
	fs.VisitAll(func(f *flag.Flag) {
		for _, name := range names {
			if f.Name == name {
				fmt.Fprintf(os.Stderr, "  -%s\n    \t%s", f.Name, f.Usage)
				if f.DefValue != "" && f.DefValue != "false" && f.DefValue != "0" && f.DefValue != "0s" {
					fmt.Fprintf(os.Stderr, " (default %s)", f.DefValue)
				}
				fmt.Fprintln(os.Stderr)
				return
			}
		}
	})
}
