package middleware_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.opentelemetry.io/otel/trace"

	"github.com/flaneurtv/redisjq/job"
	"github.com/flaneurtv/redisjq/middleware"
)

// traceRun runs the tracing middleware once and returns the single span.
func traceRun(t *testing.T, j *job.Job, h middleware.Handler) (sdktrace.ReadOnlySpan, error) {
	t.Helper()
	sr := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(sr))
	err := middleware.TracingWithTracer(tp.Tracer("test"))(context.Background(), j, h)

	spans := sr.Ended()
	if len(spans) != 1 {
		t.Fatalf("got %d spans, want 1", len(spans))
	}
	return spans[0], err
}

func TestTracing_Span(t *testing.T) {
	exp := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	j := newTestJob()
	j.LeaseExpiry = &exp

	span, err := traceRun(t, j, ok)
	if err != nil {
		t.Fatal(err)
	}
	if span.Name() != "redisjq.job.handle" {
		t.Errorf("name = %q", span.Name())
	}
	if span.SpanKind() != trace.SpanKindConsumer {
		t.Errorf("kind = %v, want consumer", span.SpanKind())
	}
	if span.Status().Code != codes.Ok {
		t.Errorf("status = %v, want Ok", span.Status().Code)
	}

	want := []attribute.KeyValue{
		attribute.String("redisjq.job.id", j.ID),
		attribute.String("redisjq.queue", "default"),
		attribute.Float64("redisjq.priority", 1.5),
		attribute.Int("redisjq.attempt", 2),
		attribute.String("redisjq.lease.expiry", "2026-03-01T12:00:00Z"),
	}
	got := attribute.NewSet(span.Attributes()...)
	for _, kv := range want {
		v, found := got.Value(kv.Key)
		if !found {
			t.Errorf("missing attribute %s", kv.Key)
			continue
		}
		if v != kv.Value {
			t.Errorf("%s = %v, want %v", kv.Key, v.Emit(), kv.Value.Emit())
		}
	}
}

func TestTracing_NoLeaseAttributeWithoutLease(t *testing.T) {
	span, _ := traceRun(t, newTestJob(), ok)
	for _, kv := range span.Attributes() {
		if kv.Key == "redisjq.lease.expiry" {
			t.Errorf("unexpected %s", kv.Key)
		}
	}
}

func TestTracing_Error(t *testing.T) {
	want := errors.New("handler failed")
	span, err := traceRun(t, newTestJob(), func(context.Context) error { return want })
	if err != want {
		t.Fatalf("err = %v, want %v", err, want)
	}

	st := span.Status()
	if st.Code != codes.Error || st.Description != "handler failed" {
		t.Errorf("status = %+v", st)
	}
	recorded := false
	for _, ev := range span.Events() {
		recorded = recorded || ev.Name == "exception"
	}
	if !recorded {
		t.Error("error not recorded as an exception event")
	}
}

func TestTracing_HandlerSeesSpan(t *testing.T) {
	var inner trace.SpanContext
	span, _ := traceRun(t, newTestJob(), func(ctx context.Context) error {
		inner = trace.SpanContextFromContext(ctx)
		return nil
	})
	if !inner.Equal(span.SpanContext()) {
		t.Errorf("handler span %v, want %v", inner, span.SpanContext())
	}
}

func TestTracing_GlobalProvider(t *testing.T) {
	called := false
	err := middleware.Tracing()(context.Background(), newTestJob(), func(context.Context) error {
		called = true
		return nil
	})
	if err != nil || !called {
		t.Fatalf("err = %v, called = %v", err, called)
	}
}
