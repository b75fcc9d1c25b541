// Package proxy implements the relay engine: a Listener accepting client
// connections and one Session worker per connection. Each worker relays one
// client/origin socket pair, intercepting manifest requests to learn the
// bitrate catalog and rewriting segment requests to the bitrate the measured
// throughput can sustain.
package proxy

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"sync"

	"github.com/randomizedcoder/go-abr-proxy/internal/chunklog"
	"github.com/randomizedcoder/go-abr-proxy/internal/config"
	"github.com/randomizedcoder/go-abr-proxy/internal/metrics"
	"github.com/randomizedcoder/go-abr-proxy/internal/pathstats"
	"github.com/randomizedcoder/go-abr-proxy/internal/stats"
)

// Listener accepts client connections and launches one concurrent Session
// worker per connection. A worker failure closes only that worker's pair of
// sockets; the accept loop keeps running.
type Listener struct {
	cfg       *config.Config
	table     *pathstats.Table
	agg       *stats.Aggregator
	collector *metrics.Collector
	sink      chunklog.Sink
	logger    *slog.Logger

	mu       sync.Mutex
	ln       net.Listener
	sessions map[*Session]struct{}

	wg sync.WaitGroup
}

// NewListener wires the relay engine. All dependencies are required; pass
// chunklog.Discard{} to disable the chunk log.
func NewListener(
	cfg *config.Config,
	table *pathstats.Table,
	agg *stats.Aggregator,
	collector *metrics.Collector,
	sink chunklog.Sink,
	logger *slog.Logger,
) *Listener {
	return &Listener{
		cfg:       cfg,
		table:     table,
		agg:       agg,
		collector: collector,
		sink:      sink,
		logger:    logger,
		sessions:  make(map[*Session]struct{}),
	}
}

// Run binds the listen address and accepts until ctx is canceled or the
// listener fails. On cancellation every live session's sockets are closed
// and Run waits for the workers to drain before returning nil.
func (l *Listener) Run(ctx context.Context) error {
	lc := net.ListenConfig{}
	ln, err := lc.Listen(ctx, "tcp", l.cfg.ListenAddr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", l.cfg.ListenAddr, err)
	}

	l.mu.Lock()
	l.ln = ln
	l.mu.Unlock()

	stop := context.AfterFunc(ctx, func() { ln.Close() })
	defer stop()

	l.logger.Info("proxy_listening",
		"addr", ln.Addr().String(),
		"origin", l.cfg.OriginAddr(),
	)

	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				l.drain()
				return nil
			}
			if ne, ok := err.(net.Error); ok && ne.Timeout() {
				continue
			}
			l.drain()
			return fmt.Errorf("accept: %w", err)
		}
		l.handle(ctx, conn)
	}
}

// Addr returns the bound listen address, or nil before Run has bound it.
func (l *Listener) Addr() net.Addr {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.ln == nil {
		return nil
	}
	return l.ln.Addr()
}

// handle launches one worker for an accepted connection and returns without
// waiting on it. Session setup dials the origin, so it runs on the worker
// goroutine; a stalled origin must never hold up Accept. Setup failures
// close the client socket and are not fatal to the accept loop.
func (l *Listener) handle(ctx context.Context, conn net.Conn) {
	l.wg.Add(1)
	go func() {
		defer l.wg.Done()

		sess, err := newSession(l.cfg, conn, l.table, l.agg, l.collector, l.sink, l.logger)
		if err != nil {
			l.logger.Warn("session_setup_failed",
				"client", conn.RemoteAddr().String(),
				"error", err,
			)
			conn.Close()
			return
		}

		l.mu.Lock()
		l.sessions[sess] = struct{}{}
		l.mu.Unlock()

		sess.run(ctx)

		l.mu.Lock()
		delete(l.sessions, sess)
		l.mu.Unlock()
	}()
}

// drain closes every live session's sockets and waits for their workers.
// A worker still dialing the origin is not registered yet; the wait covers
// it, bounded by the dial timeout.
func (l *Listener) drain() {
	l.mu.Lock()
	for sess := range l.sessions {
		sess.closeConns()
	}
	l.mu.Unlock()
	l.wg.Wait()
}
