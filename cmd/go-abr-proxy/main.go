// Package main provides the go-abr-proxy CLI entry point.
//
// go-abr-proxy is a transparent adaptive-bitrate streaming proxy. It sits
// between a media client and an origin server, measures per-path delivered
// throughput, and rewrites segment requests to the bitrate the connection
// can sustain.
package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/randomizedcoder/go-abr-proxy/internal/chunklog"
	"github.com/randomizedcoder/go-abr-proxy/internal/config"
	"github.com/randomizedcoder/go-abr-proxy/internal/logging"
	"github.com/randomizedcoder/go-abr-proxy/internal/metrics"
	"github.com/randomizedcoder/go-abr-proxy/internal/pathstats"
	"github.com/randomizedcoder/go-abr-proxy/internal/preflight"
	"github.com/randomizedcoder/go-abr-proxy/internal/proxy"
	"github.com/randomizedcoder/go-abr-proxy/internal/stats"
	"github.com/randomizedcoder/go-abr-proxy/internal/tui"
)

// version is set at build time via ldflags:
//
//	go build -ldflags "-X main.version=1.0.0" ./cmd/go-abr-proxy
var version = "dev"

func main() {
	os.Exit(run())
}

func run() int {
	// Handle version flag early (before flag parsing)
	if len(os.Args) > 1 {
		arg := os.Args[1]
		if arg == "-version" || arg == "--version" || arg == "version" {
			fmt.Printf("go-abr-proxy %s\n", version)
			return 0
		}
	}

	cfg, err := config.ParseFlags()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error parsing flags: %v\n", err)
		return 1
	}

	// When the TUI is enabled, suppress logs to avoid interfering with its
	// rendering.
	var logger *slog.Logger
	if cfg.TUIEnabled {
		logger = logging.NewLoggerWithWriter(io.Discard, "json", "info")
	} else {
		logger = logging.NewLogger(cfg.LogFormat, "info", cfg.Verbose)
	}
	logging.SetDefault(logger)

	if err := config.Validate(cfg); err != nil {
		fmt.Fprintf(os.Stderr, "Configuration error: %v\n", err)
		return 1
	}

	if cfg.PrintConfig {
		out, err := config.DumpYAML(cfg)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error rendering config: %v\n", err)
			return 1
		}
		fmt.Print(out)
		return 0
	}

	if cfg.Check {
		return runCheck(cfg)
	}

	logger.Info("starting",
		"version", version,
		"listen", cfg.ListenAddr,
		"origin", cfg.OriginAddr(),
		"alpha", cfg.Alpha,
		"metrics_addr", cfg.MetricsAddr,
	)

	if !cfg.TUIEnabled {
		printBanner(cfg)
	}

	return runProxy(cfg, logger)
}

// runProxy wires the components and blocks until a signal or fatal error.
func runProxy(cfg *config.Config, logger *slog.Logger) int {
	table := pathstats.NewTable()
	agg := stats.NewAggregator()

	collector := metrics.NewCollector(metrics.CollectorConfig{
		Version:    version,
		OriginAddr: cfg.OriginAddr(),
		ListenAddr: cfg.ListenAddr,
	})

	var sink chunklog.Sink = chunklog.Discard{}
	if cfg.ChunkLogPath != "" {
		fs, err := chunklog.NewFileSink(cfg.ChunkLogPath)
		if err != nil {
			logger.Error("chunk_log_open_failed", "path", cfg.ChunkLogPath, "error", err)
			return 1
		}
		defer fs.Close()
		sink = fs
	}

	metricsServer := metrics.NewServer(cfg.MetricsAddr, agg, logger)
	if err := metricsServer.Start(); err != nil {
		logger.Error("metrics_server_start_failed", "error", err)
		return 1
	}

	ctx, cancel := signal.NotifyContext(context.Background(),
		syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	stop := make(chan struct{})
	defer close(stop)

	go table.RunSweeper(stop, cfg.SweepInterval, cfg.PathTTL)
	if cfg.StatsInterval > 0 && !cfg.TUIEnabled {
		go agg.RunReporter(stop, cfg.StatsInterval, logger)
	}

	// Keep the tracked-paths gauge current without a per-update callback.
	go func() {
		ticker := time.NewTicker(5 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				collector.SetTrackedPaths(table.Len())
			}
		}
	}()

	listener := proxy.NewListener(cfg, table, agg, collector, sink, logger)

	errc := make(chan error, 1)
	go func() { errc <- listener.Run(ctx) }()

	if cfg.TUIEnabled {
		tuiErr := tui.Run(tui.Config{
			OriginAddr:  cfg.OriginAddr(),
			ListenAddr:  cfg.ListenAddr,
			MetricsAddr: cfg.MetricsAddr,
			Source:      agg,
			Paths:       table,
		})
		// Leaving the dashboard stops the proxy.
		cancel()
		if tuiErr != nil {
			fmt.Fprintf(os.Stderr, "TUI error: %v\n", tuiErr)
		}
	}

	var exitCode int
	select {
	case err := <-errc:
		if err != nil {
			logger.Error("listener_failed", "error", err)
			exitCode = 1
		}
	case <-ctx.Done():
		logger.Info("shutting_down")
		select {
		case err := <-errc:
			if err != nil {
				logger.Error("listener_failed", "error", err)
				exitCode = 1
			}
		case <-time.After(10 * time.Second):
			logger.Warn("shutdown_timeout")
			exitCode = 1
		}
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := metricsServer.Shutdown(shutdownCtx); err != nil {
		logger.Warn("metrics_server_shutdown_error", "error", err)
	}

	agg.LogSummary(logger)
	return exitCode
}

// runCheck validates the deployment without serving: descriptor headroom,
// the listen socket, and origin reachability.
func runCheck(cfg *config.Config) int {
	result := preflight.RunAll(cfg.ListenAddr, cfg.OriginAddr(), cfg.DialTimeout)
	preflight.PrintResults(result)
	if !result.Passed {
		return 1
	}
	return 0
}

// printBanner prints the startup banner.
func printBanner(cfg *config.Config) {
	fmt.Println()
	fmt.Println("╔═══════════════════════════════════════════════════════════════════╗")
	fmt.Println("║                          go-abr-proxy                             ║")
	fmt.Println("║          Transparent Adaptive-Bitrate Streaming Proxy             ║")
	fmt.Println("╚═══════════════════════════════════════════════════════════════════╝")
	fmt.Println()
	fmt.Printf("  Listen:      %s\n", cfg.ListenAddr)
	fmt.Printf("  Origin:      %s\n", cfg.OriginAddr())
	fmt.Printf("  Alpha:       %.2f\n", cfg.Alpha)
	fmt.Printf("  Metrics:     http://%s/metrics\n", cfg.MetricsAddr)
	if cfg.BindAddr != "" {
		fmt.Printf("  Bind:        %s\n", cfg.BindAddr)
	}
	if cfg.ChunkLogPath != "" {
		fmt.Printf("  Chunk log:   %s\n", cfg.ChunkLogPath)
	}
	fmt.Println()
	fmt.Println("Press Ctrl+C to stop.")
	fmt.Println()
}
