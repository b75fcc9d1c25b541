package metrics

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	dto "github.com/prometheus/client_model/go"
	"github.com/prometheus/common/expfmt"

	"github.com/randomizedcoder/go-abr-proxy/internal/stats"
)

func newTestServer(t *testing.T, agg *stats.Aggregator) *httptest.Server {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	s := NewServer("127.0.0.1:0", agg, logger)
	ts := httptest.NewServer(s.server.Handler)
	t.Cleanup(ts.Close)
	return ts
}

func TestServer_Health(t *testing.T) {
	ts := newTestServer(t, nil)

	for _, path := range []string{"/health", "/healthz", "/ready", "/readyz"} {
		resp, err := http.Get(ts.URL + path)
		if err != nil {
			t.Fatalf("GET %s: %v", path, err)
		}
		resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			t.Errorf("GET %s status = %d, want 200", path, resp.StatusCode)
		}
	}
}

func TestServer_MetricsScrape(t *testing.T) {
	ts := newTestServer(t, nil)

	resp, err := http.Get(ts.URL + "/metrics")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("GET /metrics status = %d", resp.StatusCode)
	}

	// Parse Prometheus text format
	decoder := expfmt.NewDecoder(resp.Body, expfmt.FmtText)
	families := make(map[string]*dto.MetricFamily)
	for {
		mf := &dto.MetricFamily{}
		if err := decoder.Decode(mf); err != nil {
			if err == io.EOF {
				break
			}
			t.Fatalf("decode: %v", err)
		}
		families[mf.GetName()] = mf
	}

	// The default registry always carries the Go runtime collector.
	if _, ok := families["go_goroutines"]; !ok {
		t.Error("go_goroutines not found in scrape")
	}
}

func TestServer_Stats(t *testing.T) {
	agg := stats.NewAggregator()
	ss := stats.NewSessionStats("s1", "10.0.0.2:4000", "10.0.0.1:8080")
	agg.Register(ss)
	ss.CountSegmentRequest()
	agg.RecordChunk(100*time.Millisecond, 4_000_000)

	ts := newTestServer(t, agg)

	resp, err := http.Get(ts.URL + "/stats")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if got := resp.Header.Get("Content-Type"); got != "application/json" {
		t.Errorf("Content-Type = %q", got)
	}

	var out stats.AggregatedStats
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("decode stats: %v", err)
	}
	if len(out.Sessions) != 1 {
		t.Errorf("Sessions = %d, want 1", len(out.Sessions))
	}
	if out.SegmentReqs != 1 {
		t.Errorf("SegmentReqs = %d, want 1", out.SegmentReqs)
	}
}

func TestServer_StatsNotMountedWithoutAggregator(t *testing.T) {
	ts := newTestServer(t, nil)

	resp, err := http.Get(ts.URL + "/stats")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("GET /stats status = %d, want 404", resp.StatusCode)
	}
}
