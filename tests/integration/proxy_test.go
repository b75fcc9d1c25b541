//go:build integration

// Package integration contains end-to-end proxy tests over loopback sockets.
// Run with: go test -tags=integration ./tests/integration/...
package integration

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/randomizedcoder/go-abr-proxy/internal/chunklog"
	"github.com/randomizedcoder/go-abr-proxy/internal/config"
	"github.com/randomizedcoder/go-abr-proxy/internal/httpmsg"
	"github.com/randomizedcoder/go-abr-proxy/internal/metrics"
	"github.com/randomizedcoder/go-abr-proxy/internal/pathstats"
	"github.com/randomizedcoder/go-abr-proxy/internal/proxy"
	"github.com/randomizedcoder/go-abr-proxy/internal/stats"
)

const manifestBody = `<manifest>
  <media bandwidth="300000" url="bunny_300000bps/"/>
  <media bandwidth="500000" url="bunny_500000bps/"/>
  <media bandwidth="900000" url="bunny_900000bps/"/>
</manifest>
`

// segmentSize is large enough that one loopback transfer pushes the smoothed
// throughput far above the highest catalog entry's sustain threshold, so the
// selector's steady-state choice is the top bitrate regardless of scheduling
// jitter.
const segmentSize = 1 << 20

// startOrigin runs a scripted origin on loopback. It records requested paths
// and serves manifests and fixed-size segments.
func startOrigin(t *testing.T) (addr string, paths func() []string) {
	t.Helper()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("origin listen: %v", err)
	}
	t.Cleanup(func() { ln.Close() })

	var mu sync.Mutex
	var requested []string

	segment := strings.Repeat("v", segmentSize)

	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			go func(conn net.Conn) {
				defer conn.Close()
				r := bufio.NewReader(conn)
				for {
					header, err := httpmsg.ReadHeader(r)
					if err != nil {
						return
					}
					path, err := httpmsg.ChunkName(header)
					if err != nil {
						return
					}

					mu.Lock()
					requested = append(requested, path)
					mu.Unlock()

					var body string
					switch {
					case strings.HasSuffix(path, "_nolist.f4m"):
						body = "<manifest><media url=\"seg\"/></manifest>\n"
					case strings.HasSuffix(path, ".f4m"):
						body = manifestBody
					default:
						body = segment
					}
					fmt.Fprintf(conn, "HTTP/1.1 200 OK\r\nContent-Length: %d\r\n\r\n%s",
						len(body), body)
				}
			}(conn)
		}
	}()

	return ln.Addr().String(), func() []string {
		mu.Lock()
		defer mu.Unlock()
		return append([]string(nil), requested...)
	}
}

// proxyStack is the full wired proxy under test.
type proxyStack struct {
	addr  string
	agg   *stats.Aggregator
	table *pathstats.Table
	log   string
}

func startStack(t *testing.T, originAddr string) *proxyStack {
	t.Helper()

	host, portStr, err := net.SplitHostPort(originAddr)
	if err != nil {
		t.Fatal(err)
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		t.Fatal(err)
	}

	cfg := config.DefaultConfig()
	cfg.ListenAddr = "127.0.0.1:0"
	cfg.OriginHost = host
	cfg.OriginPort = port
	cfg.DialTimeout = 2 * time.Second
	cfg.IdleTimeout = 10 * time.Second

	logPath := filepath.Join(t.TempDir(), "chunks.log")
	sink, err := chunklog.NewFileSink(logPath)
	if err != nil {
		t.Fatalf("chunk log: %v", err)
	}
	t.Cleanup(func() { sink.Close() })

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	table := pathstats.NewTable()
	agg := stats.NewAggregator()
	collector := metrics.NewCollectorWithRegistry(metrics.CollectorConfig{
		Version:    "integration",
		OriginAddr: originAddr,
		ListenAddr: cfg.ListenAddr,
	}, prometheus.NewRegistry())

	l := proxy.NewListener(cfg, table, agg, collector, sink, logger)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go l.Run(ctx)

	deadline := time.Now().Add(2 * time.Second)
	for l.Addr() == nil {
		if time.Now().After(deadline) {
			t.Fatal("listener did not bind")
		}
		time.Sleep(5 * time.Millisecond)
	}

	return &proxyStack{
		addr:  l.Addr().String(),
		agg:   agg,
		table: table,
		log:   logPath,
	}
}

// playSession drives one client through a manifest bootstrap and n segment
// fetches, returning an error instead of failing the test so it can run from
// any goroutine.
func playSession(proxyAddr string, segments int) error {
	conn, err := net.Dial("tcp", proxyAddr)
	if err != nil {
		return err
	}
	defer conn.Close()
	r := bufio.NewReader(conn)

	fetch := func(path string) error {
		if _, err := fmt.Fprintf(conn, "GET %s HTTP/1.1\r\nHost: origin\r\n\r\n", path); err != nil {
			return fmt.Errorf("send %s: %w", path, err)
		}
		header, err := httpmsg.ReadHeader(r)
		if err != nil {
			return fmt.Errorf("response header for %s: %w", path, err)
		}
		body := make([]byte, httpmsg.ContentLength(header))
		if _, err := io.ReadFull(r, body); err != nil {
			return fmt.Errorf("response body for %s: %w", path, err)
		}
		return nil
	}

	if err := fetch("/vod/bunny.f4m"); err != nil {
		return err
	}
	for i := 0; i < segments; i++ {
		if err := fetch(fmt.Sprintf("/vod/bunny_300000bps/seg%d.m4s", i)); err != nil {
			return err
		}
	}
	return nil
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestIntegration_EndToEnd(t *testing.T) {
	originAddr, paths := startOrigin(t)
	stack := startStack(t, originAddr)

	const segments = 3
	if err := playSession(stack.addr, segments); err != nil {
		t.Fatal(err)
	}

	// Bootstrap double round-trip: the catalog fetch and the no-listing
	// variant both reached the origin.
	got := paths()
	if len(got) != 2+segments {
		t.Fatalf("origin saw %d requests, want %d: %v", len(got), 2+segments, got)
	}
	if got[0] != "/vod/bunny.f4m" || got[1] != "/vod/bunny_nolist.f4m" {
		t.Errorf("bootstrap paths = %v", got[:2])
	}

	// Fast 1 MiB transfers drive the smoothed throughput far above every
	// sustain threshold after the first fold, so segments after the first
	// are rewritten to the top catalog entry. The first segment sees the
	// seeded average and falls back to the maximum, which is the same
	// entry.
	for _, p := range got[2:] {
		if !strings.Contains(p, "_900000bps/") {
			t.Errorf("segment path %q not rewritten to 900000", p)
		}
	}

	// One chunk log line per completed segment, each with the 7 fields.
	waitFor(t, "chunk log lines", func() bool {
		b, err := os.ReadFile(stack.log)
		return err == nil && len(strings.Split(strings.TrimSpace(string(b)), "\n")) >= segments
	})
	b, err := os.ReadFile(stack.log)
	if err != nil {
		t.Fatal(err)
	}
	lines := strings.Split(strings.TrimSpace(string(b)), "\n")
	if len(lines) != segments {
		t.Errorf("chunk log has %d lines, want %d", len(lines), segments)
	}
	for _, line := range lines {
		if fields := strings.Fields(line); len(fields) != 7 {
			t.Errorf("chunk log line %q has %d fields, want 7", line, len(fields))
		}
	}

	// The shared table tracks exactly this client/origin path.
	if n := stack.table.Len(); n != 1 {
		t.Errorf("throughput table has %d entries, want 1", n)
	}
}

func TestIntegration_ConcurrentSessions(t *testing.T) {
	originAddr, _ := startOrigin(t)
	stack := startStack(t, originAddr)

	const clients = 8
	const segments = 2

	var wg sync.WaitGroup
	errs := make(chan error, clients)
	for i := 0; i < clients; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := playSession(stack.addr, segments); err != nil {
				errs <- err
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Errorf("client error: %v", err)
	}

	// Closed sessions fold their counters into the lifetime totals.
	waitFor(t, "sessions to close", func() bool {
		return stack.agg.Aggregate().ActiveSessions == 0
	})

	agg := stack.agg.Aggregate()
	if agg.TotalSessions != clients {
		t.Errorf("TotalSessions = %d, want %d", agg.TotalSessions, clients)
	}
	if agg.SegmentReqs != clients*segments {
		t.Errorf("SegmentReqs = %d, want %d", agg.SegmentReqs, clients*segments)
	}
	if agg.ManifestReqs != clients {
		t.Errorf("ManifestReqs = %d, want %d", agg.ManifestReqs, clients)
	}
}

func TestIntegration_SessionFailureIsolation(t *testing.T) {
	originAddr, _ := startOrigin(t)
	stack := startStack(t, originAddr)

	// One client drops mid-bootstrap.
	bad, err := net.Dial("tcp", stack.addr)
	if err != nil {
		t.Fatal(err)
	}
	fmt.Fprintf(bad, "GET /vod/bunny.f4m HTTP/1.1\r\nHost: origin\r\n\r\n")
	bad.Close()

	// A full session still works.
	if err := playSession(stack.addr, 2); err != nil {
		t.Errorf("session after sibling failure: %v", err)
	}
}
