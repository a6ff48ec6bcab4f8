package store

import (
	"context"
	"log"
	"time"

	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"starchart/internal/telemetry"
)

var tracer = telemetry.Tracer("starchart/internal/store")

func startSpan(ctx context.Context, name string) (context.Context, trace.Span) {
	return tracer.Start(ctx, name)
}

// fail marks the span failed and passes err through
func fail(span trace.Span, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	return err
}

// ignoreMissing logs a write against an id the store does not hold
func ignoreMissing(store, op, id string) error {
	log.Printf("%s: %s ignored, unknown id %s", store, op, id)
	return nil
}

func clock(now func() time.Time) func() time.Time {
	if now == nil {
		return time.Now
	}
	return now
}
