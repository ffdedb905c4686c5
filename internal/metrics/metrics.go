// Package metrics defines the counters and timings the core emits.
// The default sink discards everything; the otel subpackage exports to
// an OpenTelemetry meter provider.
package metrics

import (
	"context"
	"time"
)

// Sink receives metrics from the core. All methods are fire-and-forget:
// implementations must never block the caller.
type Sink interface {
	// ContextCreated records one context record created in the store.
	ContextCreated(ctx context.Context)
	// ContextsExpired records n context records evicted as expired.
	ContextsExpired(ctx context.Context, n int64)
	// SessionStarted records one session created.
	SessionStarted(ctx context.Context)
	// SessionEnded records one session ended (explicitly or by idle sweep).
	SessionEnded(ctx context.Context)
	// SwitchTime records the wall-clock duration of one context switch.
	SwitchTime(ctx context.Context, d time.Duration)
}

// Noop is a Sink that discards all metrics. Used when no sink is configured.
type Noop struct{}

func (Noop) ContextCreated(context.Context)            {}
func (Noop) ContextsExpired(context.Context, int64)    {}
func (Noop) SessionStarted(context.Context)            {}
func (Noop) SessionEnded(context.Context)              {}
func (Noop) SwitchTime(context.Context, time.Duration) {}
