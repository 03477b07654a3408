package core

import (
	"context"
	"time"
)

// Operation names reported to MetricsRecorder and Tracer.
const (
	OpChildren      = "children"
	OpDimensions    = "dimensions"
	OpAllowedValues = "allowed_values"
	OpRows          = "rows"
)

// MetricsRecorder receives source call outcomes and cache lookups.
type MetricsRecorder interface {
	Observe(ctx context.Context, operation string, success bool, duration time.Duration)
	CacheLookup(operation string, hit bool)
}

// TraceSpan is an in-flight source call.
type TraceSpan interface {
	End(err error)
}

// Tracer opens a span around every source call.
type Tracer interface {
	Start(ctx context.Context, operation string) (context.Context, TraceSpan)
}

type noopMetrics struct{}

func (noopMetrics) Observe(context.Context, string, bool, time.Duration) {}
func (noopMetrics) CacheLookup(string, bool)                             {}

type noopTracer struct{}

func (noopTracer) Start(ctx context.Context, _ string) (context.Context, TraceSpan) {
	return ctx, noopSpan{}
}

type noopSpan struct{}

func (noopSpan) End(error) {}

// observe runs fn as one source call of the given operation.
func (c *Cursor) observe(ctx context.Context, operation string, fn func() error) error {
	_, span := c.tracer.Start(ctx, operation)
	start := time.Now()
	err := fn()
	c.metrics.Observe(ctx, operation, err == nil, time.Since(start))
	span.End(err)
	return err
}
