package middleware

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/flaneurtv/redisjq/job"
)

// Tracing runs each handler inside a consumer span named
// "redisjq.job.handle" on the global TracerProvider.
func Tracing() Middleware {
	return TracingWithTracer(otel.Tracer(scopeName))
}

// TracingWithTracer is Tracing on a given tracer.
func TracingWithTracer(tracer trace.Tracer) Middleware {
	return func(ctx context.Context, j *job.Job, next Handler) error {
		ctx, span := tracer.Start(ctx, "redisjq.job.handle",
			trace.WithSpanKind(trace.SpanKindConsumer),
			trace.WithAttributes(spanAttrs(j)...),
		)
		defer span.End()

		if err := next(ctx); err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return err
		}
		span.SetStatus(codes.Ok, "")
		return nil
	}
}

func spanAttrs(j *job.Job) []attribute.KeyValue {
	attrs := []attribute.KeyValue{
		attribute.String("redisjq.job.id", j.ID),
		attribute.String("redisjq.queue", j.Queue),
		attribute.Float64("redisjq.priority", j.Priority),
		attribute.Int("redisjq.attempt", j.Attempts),
	}
	if j.LeaseExpiry != nil {
		attrs = append(attrs, attribute.String("redisjq.lease.expiry", j.LeaseExpiry.Format(time.RFC3339Nano)))
	}
	return attrs
}
