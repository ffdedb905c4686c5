// Package gc reclaims expired context records and stale sessions without
// blocking foreground operations. Sweeps are single-flight: a trigger while
// one is running is a no-op.
package gc

import (
	"context"
	"log"
	"sync/atomic"
	"time"

	"claude-director/core/internal/clock"
	"claude-director/core/internal/contextstore"
)

// sweepTimeout is the max time allowed for a single sweep's session pass.
const sweepTimeout = 30 * time.Second

// SessionSweeper ends idle sessions. Satisfied by *service.Manager.
type SessionSweeper interface {
	EndIdleSessions(ctx context.Context, idleThreshold time.Duration) (int, error)
}

// Collector runs periodic and opportunistic sweeps over the context store
// and session manager.
type Collector struct {
	store         *contextstore.Store
	sessions      SessionSweeper
	interval      time.Duration
	idleThreshold time.Duration
	clk           clock.Clock

	// running guards single-flight; lastSweep is unix nanos of the last
	// completed sweep, read by the opportunistic trigger.
	running   atomic.Bool
	lastSweep atomic.Int64

	stop chan struct{}
	done chan struct{}
}

// Option configures a Collector.
type Option func(*Collector)

// WithClock sets the time source. Defaults to the real clock.
func WithClock(c clock.Clock) Option {
	return func(g *Collector) { g.clk = c }
}

// New returns a Collector sweeping store and sessions. interval is both the
// ticker period and the opportunistic-trigger threshold; idleThreshold is the
// backup age beyond which an active session is ended. The collector registers
// itself as the store's sweep trigger.
func New(store *contextstore.Store, sessions SessionSweeper, interval, idleThreshold time.Duration, opts ...Option) *Collector {
	g := &Collector{
		store:         store,
		sessions:      sessions,
		interval:      interval,
		idleThreshold: idleThreshold,
		clk:           clock.Real{},
		stop:          make(chan struct{}),
		done:          make(chan struct{}),
	}
	for _, opt := range opts {
		opt(g)
	}
	g.lastSweep.Store(g.clk.Now().UnixNano())
	store.SetSweepTrigger(g.MaybeSweep)
	return g
}

// Start launches the interval sweep loop. Call Stop to end it.
func (g *Collector) Start() {
	go func() {
		defer close(g.done)
		ticker := time.NewTicker(g.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				g.RunSweep(context.Background())
			case <-g.stop:
				return
			}
		}
	}()
}

// Stop ends the sweep loop and waits for it to exit. A sweep in progress
// finishes first.
func (g *Collector) Stop() {
	close(g.stop)
	<-g.done
}

// RunSweep evicts expired context records and ends idle sessions. Returns
// false without doing anything when another sweep is already in progress.
// Individual failures are logged, never raised.
func (g *Collector) RunSweep(ctx context.Context) bool {
	if !g.running.CompareAndSwap(false, true) {
		return false
	}
	defer g.running.Store(false)

	expired := g.store.SweepExpired(ctx)

	ended := 0
	if g.sessions != nil {
		sweepCtx, cancel := context.WithTimeout(ctx, sweepTimeout)
		var err error
		ended, err = g.sessions.EndIdleSessions(sweepCtx, g.idleThreshold)
		cancel()
		if err != nil {
			log.Printf("gc: end idle sessions: %v", err)
		}
	}

	g.lastSweep.Store(g.clk.Now().UnixNano())
	log.Printf("gc: sweep done: %d contexts expired, %d sessions ended", expired, ended)
	return true
}

// MaybeSweep triggers an asynchronous sweep when the last one is older than
// the interval. Non-blocking; used as the store's per-Get amortized trigger.
func (g *Collector) MaybeSweep() {
	last := time.Unix(0, g.lastSweep.Load())
	if g.clk.Now().Sub(last) < g.interval {
		return
	}
	go g.RunSweep(context.Background())
}
