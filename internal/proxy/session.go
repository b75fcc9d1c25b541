package proxy

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/randomizedcoder/go-abr-proxy/internal/abr"
	"github.com/randomizedcoder/go-abr-proxy/internal/chunklog"
	"github.com/randomizedcoder/go-abr-proxy/internal/config"
	"github.com/randomizedcoder/go-abr-proxy/internal/httpmsg"
	"github.com/randomizedcoder/go-abr-proxy/internal/metrics"
	"github.com/randomizedcoder/go-abr-proxy/internal/pathstats"
	"github.com/randomizedcoder/go-abr-proxy/internal/stats"
)

// sessionState tracks where a session is in its lifecycle.
type sessionState int32

const (
	// stateBootstrapping means no manifest has been intercepted yet; the
	// bitrate catalog is empty.
	stateBootstrapping sessionState = iota
	// stateSteady means the catalog is populated; manifest requests are
	// rewritten to the no-listing variant and segment requests are
	// bitrate-rewritten.
	stateSteady
	// stateClosed is terminal.
	stateClosed
)

func (s sessionState) String() string {
	switch s {
	case stateBootstrapping:
		return "bootstrapping"
	case stateSteady:
		return "steady"
	case stateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// errBootstrapTimeout aborts a session whose origin never answered the
// catalog fetch.
var errBootstrapTimeout = errors.New("timed out waiting for manifest response")

// idleReader arms a fresh read deadline before every socket read, so the
// idle timeout bounds time between bytes rather than the length of a whole
// message. A segment that streams steadily for longer than the timeout must
// not be killed mid-body.
//
// Only the relay goroutine that owns the direction reads from it or mutates
// timeout, so no locking is needed.
type idleReader struct {
	conn    net.Conn
	timeout time.Duration
}

func (r *idleReader) Read(p []byte) (int, error) {
	if r.timeout > 0 {
		r.conn.SetReadDeadline(time.Now().Add(r.timeout))
	}
	return r.conn.Read(p)
}

// disable turns the deadline off for the rest of the connection's lifetime.
func (r *idleReader) disable() {
	r.timeout = 0
	r.conn.SetReadDeadline(time.Time{})
}

// Session owns one client/origin socket pair and relays between them,
// intercepting manifest and segment requests.
//
// Two goroutines run per session: one relaying client to origin, one origin
// to client. They share the request/response pairing state under mu
// (single-request-in-flight per session, so the most recent request
// timestamp always pairs with the next response).
type Session struct {
	id     string
	cfg    *config.Config
	logger *slog.Logger

	client     net.Conn
	origin     net.Conn
	clientIdle *idleReader
	originIdle *idleReader
	clientR    *bufio.Reader
	originR    *bufio.Reader

	key           pathstats.Key
	table         *pathstats.Table
	catalog       *abr.Catalog
	selectBitrate abr.SelectFunc

	sess      *stats.SessionStats
	agg       *stats.Aggregator
	collector *metrics.Collector
	sink      chunklog.Sink

	mu               sync.Mutex
	state            sessionState
	lastRequestAt    time.Time
	lastChunk        string
	chosenBitrate    int
	awaitingManifest bool

	// Signals the upstream goroutine that the downstream goroutine has
	// consumed a catalog response. Buffered so downstream never blocks.
	bootstrapped chan struct{}
	done         chan struct{}

	closeOnce sync.Once
}

// newSession dials the origin and builds the worker for one accepted client
// connection. A dial failure is fatal to this session only.
func newSession(
	cfg *config.Config,
	client net.Conn,
	table *pathstats.Table,
	agg *stats.Aggregator,
	collector *metrics.Collector,
	sink chunklog.Sink,
	logger *slog.Logger,
) (*Session, error) {

	d := net.Dialer{Timeout: cfg.DialTimeout}
	if cfg.BindAddr != "" {
		ip := net.ParseIP(cfg.BindAddr)
		if ip == nil {
			return nil, fmt.Errorf("invalid bind address %q", cfg.BindAddr)
		}
		d.LocalAddr = &net.TCPAddr{IP: ip}
	}

	originAddr := cfg.OriginAddr()
	origin, err := d.Dial("tcp", originAddr)
	if err != nil {
		return nil, fmt.Errorf("dial origin %s: %w", originAddr, err)
	}

	id := uuid.NewString()
	clientAddr := client.RemoteAddr().String()

	clientIdle := &idleReader{conn: client, timeout: cfg.IdleTimeout}
	originIdle := &idleReader{conn: origin, timeout: cfg.IdleTimeout}

	return &Session{
		id:         id,
		cfg:        cfg,
		logger:     logger.With("session", id),
		client:     client,
		origin:     origin,
		clientIdle: clientIdle,
		originIdle: originIdle,
		clientR:    bufio.NewReader(clientIdle),
		originR:    bufio.NewReader(originIdle),

		key:           pathstats.Key{Origin: originAddr, Client: clientAddr},
		table:         table,
		catalog:       abr.NewCatalog(),
		selectBitrate: abr.SelectHighestSustainable,

		sess:      stats.NewSessionStats(id, clientAddr, originAddr),
		agg:       agg,
		collector: collector,
		sink:      sink,

		state:        stateBootstrapping,
		bootstrapped: make(chan struct{}, 1),
		done:         make(chan struct{}),
	}, nil
}

// run relays until either side closes or errors, then tears both sockets
// down. Blocks for the session lifetime.
func (s *Session) run(ctx context.Context) {
	s.collector.SessionOpened()
	s.agg.Register(s.sess)

	s.logger.Debug("session_opened",
		"client", s.key.Client,
		"origin", s.key.Origin,
	)

	stop := context.AfterFunc(ctx, s.closeConns)
	defer stop()

	errc := make(chan error, 2)
	go func() { errc <- s.relayUpstream() }()
	go func() { errc <- s.relayDownstream() }()

	// First exit wins; closing both sockets unblocks the other direction.
	err := <-errc
	close(s.done)
	s.closeConns()
	<-errc

	s.mu.Lock()
	s.state = stateClosed
	s.mu.Unlock()

	failed := isFailure(err)
	s.collector.SessionClosed(failed)
	s.agg.Unregister(s.sess)

	if failed {
		s.logger.Warn("session_failed", "error", err)
	} else {
		s.logger.Debug("session_closed")
	}
}

// closeConns closes both sockets. Safe to call from any goroutine, any
// number of times.
func (s *Session) closeConns() {
	s.closeOnce.Do(func() {
		s.client.Close()
		s.origin.Close()
	})
}

// isFailure distinguishes an error exit from a clean end-of-stream or a
// deliberate teardown.
func isFailure(err error) bool {
	if err == nil {
		return false
	}
	return !errors.Is(err, io.EOF) &&
		!errors.Is(err, io.ErrUnexpectedEOF) &&
		!errors.Is(err, net.ErrClosed)
}

// relayUpstream reads client requests and forwards them to the origin,
// rewriting manifest and bitrate-token paths.
func (s *Session) relayUpstream() error {
	for {
		header, err := httpmsg.ReadHeader(s.clientR)
		if err != nil {
			if errors.Is(err, httpmsg.ErrHeaderTooLarge) {
				return s.demote(header, s.clientIdle, s.clientR, s.origin, "upstream")
			}
			if len(header) > 0 {
				s.origin.Write(header)
			}
			return err
		}

		if err := s.handleRequest(header); err != nil {
			return err
		}
	}
}

// handleRequest classifies one client request and forwards it.
func (s *Session) handleRequest(header []byte) error {
	now := time.Now()

	s.mu.Lock()
	s.lastRequestAt = now
	if name, err := httpmsg.ChunkName(header); err == nil {
		s.lastChunk = name
	}
	state := s.state
	s.mu.Unlock()

	bodyLen := httpmsg.ContentLength(header)

	switch {
	case httpmsg.IsManifestRequest(header, s.cfg.ManifestExt, s.cfg.NoListSuffix):
		s.sess.CountManifestRequest()
		s.collector.ManifestRequest()

		if state == stateBootstrapping {
			return s.bootstrap(header, bodyLen)
		}
		out := httpmsg.RewriteManifestNoList(header, s.cfg.ManifestExt, s.cfg.NoListSuffix)
		return s.forwardToOrigin(out, bodyLen)

	case hasBitrateToken(header):
		s.sess.CountSegmentRequest()
		s.collector.SegmentRequest()

		out := header
		avg := s.table.Get(s.key)
		if bps := s.selectBitrate(avg, s.catalog.Bitrates()); bps > 0 {
			out = httpmsg.RewriteBitrate(header, bps)

			s.mu.Lock()
			s.chosenBitrate = bps
			s.mu.Unlock()

			s.sess.SetBitrate(bps)
			s.sess.CountRewrite()
			s.collector.Rewrite(bps)
		}
		return s.forwardToOrigin(out, bodyLen)

	default:
		s.sess.CountPassthrough()
		s.collector.Passthrough()
		return s.forwardToOrigin(header, bodyLen)
	}
}

func hasBitrateToken(header []byte) bool {
	_, ok := httpmsg.BitrateToken(header)
	return ok
}

// bootstrap runs the two-step manifest handshake: forward the original
// request, wait for the downstream goroutine to consume the catalog
// response, then issue the no-listing variant whose response goes to the
// client.
func (s *Session) bootstrap(header []byte, bodyLen int64) error {
	s.mu.Lock()
	s.awaitingManifest = true
	s.mu.Unlock()

	if err := s.forwardToOrigin(header, bodyLen); err != nil {
		return err
	}

	var timeout <-chan time.Time
	if s.cfg.IdleTimeout > 0 {
		t := time.NewTimer(s.cfg.IdleTimeout)
		defer t.Stop()
		timeout = t.C
	}

	select {
	case <-s.bootstrapped:
	case <-s.done:
		return net.ErrClosed
	case <-timeout:
		return errBootstrapTimeout
	}

	// Refresh the pairing timestamp so the client-visible response is
	// measured against the second round-trip, not the catalog fetch.
	s.mu.Lock()
	s.lastRequestAt = time.Now()
	s.mu.Unlock()

	out := httpmsg.RewriteManifestNoList(header, s.cfg.ManifestExt, s.cfg.NoListSuffix)
	return s.forwardToOrigin(out, 0)
}

// forwardToOrigin writes one request header block plus bodyLen body bytes
// from the client reader.
func (s *Session) forwardToOrigin(header []byte, bodyLen int64) error {
	if _, err := s.origin.Write(header); err != nil {
		return err
	}
	copied, err := httpmsg.CopyBody(s.origin, s.clientR, bodyLen)

	total := int64(len(header)) + copied
	s.sess.AddBytesToOrigin(total)
	s.collector.AddBytesToOrigin(total)
	return err
}

// relayDownstream reads origin responses and forwards them to the client,
// measuring throughput per completed transfer.
func (s *Session) relayDownstream() error {
	for {
		header, err := httpmsg.ReadHeader(s.originR)
		if err != nil {
			if errors.Is(err, httpmsg.ErrHeaderTooLarge) {
				return s.demote(header, s.originIdle, s.originR, s.client, "downstream")
			}
			if len(header) > 0 {
				s.client.Write(header)
			}
			return err
		}

		if err := s.handleResponse(header); err != nil {
			return err
		}
	}
}

// handleResponse pairs one origin response with the most recent request,
// relays it, and folds the measured throughput into the shared table.
func (s *Session) handleResponse(header []byte) error {
	s.mu.Lock()
	requestedAt := s.lastRequestAt
	awaiting := s.awaitingManifest
	chunk := s.lastChunk
	bitrate := s.chosenBitrate
	s.mu.Unlock()

	bodyLen := httpmsg.ContentLength(header)

	if awaiting {
		return s.consumeManifest(bodyLen)
	}

	if _, err := s.client.Write(header); err != nil {
		return err
	}
	copied, err := httpmsg.CopyBody(s.client, s.originR, bodyLen)

	total := int64(len(header)) + copied
	s.sess.AddBytesToClient(total)
	s.collector.AddBytesToClient(total)
	if err != nil {
		return err
	}

	// Duration covers request departure through full relay of the body, so
	// a slow transfer measures as slow even when the header arrives fast.
	done := time.Now()
	duration := done.Sub(requestedAt)
	sample := abr.InstantaneousThroughput(bodyLen, duration)
	avg := s.table.Update(s.key, sample, s.cfg.Alpha)

	// Manifest-only exchanges (no bitrate chosen yet) are never logged.
	if bitrate > 0 {
		rec := chunklog.Record{
			Timestamp:        done,
			Duration:         duration,
			ThroughputBps:    sample,
			AvgThroughputBps: avg,
			Bitrate:          bitrate,
			Origin:           s.key.Origin,
			Chunk:            chunk,
		}
		if err := s.sink.Append(rec.Line()); err != nil {
			s.logger.Warn("chunk_log_append_failed", "error", err)
		}
		s.sess.CountChunk()
		s.agg.RecordChunk(duration, sample)
		s.collector.ChunkCompleted(duration, sample)
	}
	return nil
}

// consumeManifest reads the catalog response body without forwarding it,
// populates the catalog, seeds the throughput table, and releases the
// upstream goroutine to issue the no-listing round-trip.
func (s *Session) consumeManifest(bodyLen int64) error {
	var body []byte
	if bodyLen > 0 {
		body = make([]byte, bodyLen)
		if _, err := io.ReadFull(s.originR, body); err != nil {
			return err
		}
	}

	s.catalog.Add(httpmsg.ManifestBitrates(body))
	if smallest, err := s.catalog.Smallest(); err == nil {
		s.table.InitIfUnset(s.key, float64(smallest))
	} else {
		s.logger.Warn("manifest_advertised_no_bitrates")
	}

	s.mu.Lock()
	s.awaitingManifest = false
	s.state = stateSteady
	s.mu.Unlock()

	s.logger.Debug("catalog_populated", "bitrates", s.catalog.Bitrates())

	s.bootstrapped <- struct{}{}
	return nil
}

// demote falls back to byte-transparent relay for the rest of this
// direction's lifetime; prefix holds the already-consumed bytes.
func (s *Session) demote(prefix []byte, idle *idleReader, srcR *bufio.Reader, dst net.Conn, dir string) error {
	s.logger.Debug("session_demoted_to_raw_relay", "direction", dir)
	s.sess.CountPassthrough()
	s.collector.Passthrough()

	if len(prefix) > 0 {
		if _, err := dst.Write(prefix); err != nil {
			return err
		}
	}

	// Raw relay runs until either side closes; the idle deadline no longer
	// applies.
	idle.disable()

	n, err := io.Copy(dst, srcR)

	total := int64(len(prefix)) + n
	if dst == s.origin {
		s.sess.AddBytesToOrigin(total)
		s.collector.AddBytesToOrigin(total)
	} else {
		s.sess.AddBytesToClient(total)
		s.collector.AddBytesToClient(total)
	}

	if err == nil {
		err = io.EOF
	}
	return err
}
