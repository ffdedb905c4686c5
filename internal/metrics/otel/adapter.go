package otel

import (
	"context"
	"log"
	"time"

	otelmetric "go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"

	"claude-director/core/internal/metrics"
)

// NewSink returns a metrics.Sink that records to instruments from the given
// MeterProvider. If provider is nil, returns a no-op sink.
func NewSink(provider *sdkmetric.MeterProvider) metrics.Sink {
	if provider == nil {
		return metrics.Noop{}
	}
	meter := provider.Meter("claudedirector.core")
	s := &otelSink{}
	var err error
	if s.contextsCreated, err = meter.Int64Counter("contexts_created"); err != nil {
		log.Printf("metrics: contexts_created: %v", err)
	}
	if s.contextsExpired, err = meter.Int64Counter("contexts_expired"); err != nil {
		log.Printf("metrics: contexts_expired: %v", err)
	}
	if s.sessionsStarted, err = meter.Int64Counter("sessions_started"); err != nil {
		log.Printf("metrics: sessions_started: %v", err)
	}
	if s.sessionsEnded, err = meter.Int64Counter("sessions_ended"); err != nil {
		log.Printf("metrics: sessions_ended: %v", err)
	}
	if s.switchTime, err = meter.Float64Histogram("switch_time_ms"); err != nil {
		log.Printf("metrics: switch_time_ms: %v", err)
	}
	return s
}

type otelSink struct {
	contextsCreated otelmetric.Int64Counter
	contextsExpired otelmetric.Int64Counter
	sessionsStarted otelmetric.Int64Counter
	sessionsEnded   otelmetric.Int64Counter
	switchTime      otelmetric.Float64Histogram
}

func (s *otelSink) ContextCreated(ctx context.Context) {
	if s.contextsCreated != nil {
		s.contextsCreated.Add(ctx, 1)
	}
}

func (s *otelSink) ContextsExpired(ctx context.Context, n int64) {
	if s.contextsExpired != nil && n > 0 {
		s.contextsExpired.Add(ctx, n)
	}
}

func (s *otelSink) SessionStarted(ctx context.Context) {
	if s.sessionsStarted != nil {
		s.sessionsStarted.Add(ctx, 1)
	}
}

func (s *otelSink) SessionEnded(ctx context.Context) {
	if s.sessionsEnded != nil {
		s.sessionsEnded.Add(ctx, 1)
	}
}

func (s *otelSink) SwitchTime(ctx context.Context, d time.Duration) {
	if s.switchTime != nil {
		s.switchTime.Record(ctx, float64(d.Microseconds())/1000.0)
	}
}
