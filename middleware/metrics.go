package middleware

import (
	"context"
	"errors"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/flaneurtv/redisjq/job"
)

// scopeName is the instrumentation scope of handler telemetry.
const scopeName = "github.com/flaneurtv/redisjq"

// Outcome values of the status attribute.
const (
	StatusOK      = "ok"
	StatusError   = "error"
	StatusTimeout = "timeout"
)

type handlerInstruments struct {
	duration metric.Float64Histogram
	runs     metric.Int64Counter
	active   metric.Int64UpDownCounter
}

// Instrument constructors fall back to noop instruments on error.
func newHandlerInstruments(meter metric.Meter) handlerInstruments {
	var ins handlerInstruments
	ins.duration, _ = meter.Float64Histogram("redisjq.handler.duration",
		metric.WithDescription("Handler run time"),
		metric.WithUnit("s"),
	)
	ins.runs, _ = meter.Int64Counter("redisjq.handler.executions",
		metric.WithDescription("Handler runs by outcome"),
		metric.WithUnit("{execution}"),
	)
	ins.active, _ = meter.Int64UpDownCounter("redisjq.handler.active",
		metric.WithDescription("Handlers currently running"),
		metric.WithUnit("{execution}"),
	)
	return ins
}

// Metrics records handler telemetry on the global MeterProvider.
//
//   - redisjq.handler.duration: seconds per run, by queue and status
//   - redisjq.handler.executions: runs, by queue and status
//   - redisjq.handler.active: runs in progress, by queue
func Metrics() Middleware {
	return MetricsWithMeter(otel.Meter(scopeName))
}

// MetricsWithMeter is Metrics on a given meter.
func MetricsWithMeter(meter metric.Meter) Middleware {
	ins := newHandlerInstruments(meter)
	return func(ctx context.Context, j *job.Job, next Handler) error {
		queue := attribute.String("queue", j.Queue)
		ins.active.Add(ctx, 1, metric.WithAttributes(queue))
		defer ins.active.Add(ctx, -1, metric.WithAttributes(queue))

		start := time.Now()
		err := next(ctx)

		attrs := metric.WithAttributes(queue, attribute.String("status", status(err)))
		ins.duration.Record(ctx, time.Since(start).Seconds(), attrs)
		ins.runs.Add(ctx, 1, attrs)
		return err
	}
}

func status(err error) string {
	switch {
	case err == nil:
		return StatusOK
	case errors.Is(err, context.DeadlineExceeded):
		return StatusTimeout
	default:
		return StatusError
	}
}
