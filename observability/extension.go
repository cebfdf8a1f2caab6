package observability

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/flaneurtv/redisjq/ext"
	"github.com/flaneurtv/redisjq/job"
)

// Compile-time interface checks.
var (
	_ ext.Extension   = (*MetricsExtension)(nil)
	_ ext.JobEnqueued = (*MetricsExtension)(nil)
	_ ext.JobLeased   = (*MetricsExtension)(nil)
	_ ext.JobAcked    = (*MetricsExtension)(nil)
	_ ext.JobNacked   = (*MetricsExtension)(nil)
	_ ext.JobRequeued = (*MetricsExtension)(nil)
	_ ext.JobDead     = (*MetricsExtension)(nil)
)

const scopeName = "github.com/flaneurtv/redisjq/observability"

// MetricsExtension records queue-wide lifecycle counters with OpenTelemetry.
// Register it with the engine to track admission, dispatch, completion,
// release, lease expiry and dead-lettering per queue.
type MetricsExtension struct {
	JobEnqueued metric.Int64Counter
	JobLeased   metric.Int64Counter
	JobAcked    metric.Int64Counter
	JobNacked   metric.Int64Counter
	JobRequeued metric.Int64Counter
	JobDead     metric.Int64Counter
	AckLatency  metric.Float64Histogram
}

// NewMetricsExtension creates a MetricsExtension on the global MeterProvider.
func NewMetricsExtension() *MetricsExtension {
	return NewMetricsExtensionWithMeter(otel.Meter(scopeName))
}

// NewMetricsExtensionWithMeter creates a MetricsExtension with the given meter.
func NewMetricsExtensionWithMeter(meter metric.Meter) *MetricsExtension {
	counter := func(name, desc string) metric.Int64Counter {
		c, _ := meter.Int64Counter(name, metric.WithDescription(desc), metric.WithUnit("{job}"))
		return c
	}
	latency, _ := meter.Float64Histogram("redisjq.job.ack_latency",
		metric.WithDescription("Time from dispatch to acknowledgement in seconds"),
		metric.WithUnit("s"),
	)
	return &MetricsExtension{
		JobEnqueued: counter("redisjq.job.enqueued", "Jobs admitted to a queue"),
		JobLeased:   counter("redisjq.job.leased", "Jobs dispatched to a consumer"),
		JobAcked:    counter("redisjq.job.acked", "Jobs acknowledged"),
		JobNacked:   counter("redisjq.job.nacked", "Jobs released by a consumer"),
		JobRequeued: counter("redisjq.job.requeued", "Expired leases returned to pending"),
		JobDead:     counter("redisjq.job.dead", "Expired leases with no attempts left"),
		AckLatency:  latency,
	}
}

// Name implements ext.Extension.
func (m *MetricsExtension) Name() string { return "observability-metrics" }

func queueAttr(queue string) metric.MeasurementOption {
	return metric.WithAttributes(attribute.String("queue", queue))
}

// OnJobEnqueued implements ext.JobEnqueued.
func (m *MetricsExtension) OnJobEnqueued(ctx context.Context, j *job.Job) error {
	m.JobEnqueued.Add(ctx, 1, queueAttr(j.Queue))
	return nil
}

// OnJobLeased implements ext.JobLeased.
func (m *MetricsExtension) OnJobLeased(ctx context.Context, j *job.Job) error {
	m.JobLeased.Add(ctx, 1, queueAttr(j.Queue))
	return nil
}

// OnJobAcked implements ext.JobAcked.
func (m *MetricsExtension) OnJobAcked(ctx context.Context, j *job.Job, elapsed time.Duration) error {
	m.JobAcked.Add(ctx, 1, queueAttr(j.Queue))
	if elapsed > 0 {
		m.AckLatency.Record(ctx, elapsed.Seconds(), queueAttr(j.Queue))
	}
	return nil
}

// OnJobNacked implements ext.JobNacked.
func (m *MetricsExtension) OnJobNacked(ctx context.Context, j *job.Job, state job.State, _ string) error {
	m.JobNacked.Add(ctx, 1, metric.WithAttributes(
		attribute.String("queue", j.Queue),
		attribute.String("state", string(state)),
	))
	return nil
}

// OnJobRequeued implements ext.JobRequeued.
func (m *MetricsExtension) OnJobRequeued(ctx context.Context, queue, _ string) error {
	m.JobRequeued.Add(ctx, 1, queueAttr(queue))
	return nil
}

// OnJobDead implements ext.JobDead.
func (m *MetricsExtension) OnJobDead(ctx context.Context, queue, _ string) error {
	m.JobDead.Add(ctx, 1, queueAttr(queue))
	return nil
}
