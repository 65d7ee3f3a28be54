// Package telemetry wraps opencensus tracing and stats for hops services.
package telemetry

import (
	"context"

	"go.opencensus.io/stats"
	"go.opencensus.io/tag"
	"go.opencensus.io/trace"
)

const (
	TraceIDHeader = "X-Trace-ID"
	SpanIDHeader  = "X-Span-ID"
	SampledHeader = "X-Sampled"
)

const (
	TagJobID      = "job_id"
	TagJobType    = "job_type"
	TagTargetType = "target_type"
)

// Span starts a new span. The returned func must be called to end it.
func Span(ctx context.Context, name string, attrs ...trace.Attribute) (context.Context, func()) {
	ctx, span := trace.StartSpan(ctx, name)
	if len(attrs) > 0 {
		span.AddAttributes(attrs...)
	}
	return ctx, span.End
}

// Current returns the current span of the context.
func Current(ctx context.Context, attrs ...trace.Attribute) *trace.Span {
	s := trace.FromContext(ctx)
	if s != nil && len(attrs) > 0 {
		s.AddAttributes(attrs...)
	}
	return s
}

// Tag returns a string attribute.
func Tag(key, value string) trace.Attribute {
	return trace.StringAttribute(key, value)
}

// Record records measurements with optional tag mutators, errors are ignored.
func Record(ctx context.Context, m stats.Measurement, mutators ...tag.Mutator) {
	if len(mutators) > 0 {
		var err error
		ctx, err = tag.New(ctx, mutators...)
		if err != nil {
			return
		}
	}
	stats.Record(ctx, m)
}

// MustNewKey returns a tag key, panics on invalid name.
func MustNewKey(name string) tag.Key {
	k, err := tag.NewKey(name)
	if err != nil {
		panic(err)
	}
	return k
}
