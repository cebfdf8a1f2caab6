package audit

import (
	"context"
	"log/slog"
	"time"

	"github.com/flaneurtv/redisjq/ext"
	"github.com/flaneurtv/redisjq/job"
)

var (
	_ ext.Extension   = (*Extension)(nil)
	_ ext.JobEnqueued = (*Extension)(nil)
	_ ext.JobLeased   = (*Extension)(nil)
	_ ext.JobAcked    = (*Extension)(nil)
	_ ext.JobNacked   = (*Extension)(nil)
	_ ext.JobRequeued = (*Extension)(nil)
	_ ext.JobDead     = (*Extension)(nil)
)

// Actions, one per lifecycle hook. A nack is reported under the action of
// the state the job moved to.
const (
	ActionJobEnqueued = "job.enqueued"
	ActionJobLeased   = "job.leased"
	ActionJobAcked    = "job.acked"
	ActionJobRetried  = "job.retried"
	ActionJobFailed   = "job.failed"
	ActionJobRequeued = "job.requeued"
	ActionJobDead     = "job.dead"
)

// Severities.
const (
	SeverityInfo     = "info"
	SeverityWarning  = "warning"
	SeverityCritical = "critical"
)

// Outcomes.
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
)

// Record is one audit entry.
type Record struct {
	Action   string         `json:"action"`
	JobID    string         `json:"job_id"`
	Queue    string         `json:"queue"`
	Outcome  string         `json:"outcome"`
	Severity string         `json:"severity"`
	Reason   string         `json:"reason,omitempty"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// Recorder persists audit records.
type Recorder interface {
	Record(ctx context.Context, r *Record) error
}

// RecorderFunc adapts a function to Recorder.
type RecorderFunc func(ctx context.Context, r *Record) error

// Record implements Recorder.
func (f RecorderFunc) Record(ctx context.Context, r *Record) error { return f(ctx, r) }

// SlogRecorder returns a Recorder that logs each record at a level
// matching its severity.
func SlogRecorder(l *slog.Logger) Recorder {
	return RecorderFunc(func(ctx context.Context, r *Record) error {
		level := slog.LevelInfo
		switch r.Severity {
		case SeverityWarning:
			level = slog.LevelWarn
		case SeverityCritical:
			level = slog.LevelError
		}
		attrs := []slog.Attr{
			slog.String("action", r.Action),
			slog.String("job_id", r.JobID),
			slog.String("queue", r.Queue),
			slog.String("outcome", r.Outcome),
		}
		if r.Reason != "" {
			attrs = append(attrs, slog.String("reason", r.Reason))
		}
		for k, v := range r.Metadata {
			attrs = append(attrs, slog.Any(k, v))
		}
		l.LogAttrs(ctx, level, "audit", attrs...)
		return nil
	})
}

// Extension records job lifecycle events through a Recorder. Recorder
// failures are logged and never reach the job pipeline.
type Extension struct {
	recorder Recorder
	enabled  map[string]bool // nil = all enabled
	logger   *slog.Logger
}

// New creates an Extension writing to r.
func New(r Recorder, opts ...Option) *Extension {
	e := &Extension{
		recorder: r,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Name implements ext.Extension.
func (e *Extension) Name() string { return "audit" }

// OnJobEnqueued implements ext.JobEnqueued.
func (e *Extension) OnJobEnqueued(ctx context.Context, j *job.Job) error {
	e.record(ctx, &Record{
		Action: ActionJobEnqueued, JobID: j.ID, Queue: j.Queue,
		Outcome: OutcomeSuccess, Severity: SeverityInfo,
		Metadata: map[string]any{"priority": j.Priority, "max_attempts": j.MaxAttempts},
	})
	return nil
}

// OnJobLeased implements ext.JobLeased.
func (e *Extension) OnJobLeased(ctx context.Context, j *job.Job) error {
	meta := map[string]any{"attempt": j.Attempts}
	if j.LeaseExpiry != nil {
		meta["lease_expiry"] = j.LeaseExpiry.Format(time.RFC3339Nano)
	}
	e.record(ctx, &Record{
		Action: ActionJobLeased, JobID: j.ID, Queue: j.Queue,
		Outcome: OutcomeSuccess, Severity: SeverityInfo, Metadata: meta,
	})
	return nil
}

// OnJobAcked implements ext.JobAcked.
func (e *Extension) OnJobAcked(ctx context.Context, j *job.Job, elapsed time.Duration) error {
	var meta map[string]any
	if elapsed > 0 {
		meta = map[string]any{"elapsed_ms": elapsed.Milliseconds()}
	}
	e.record(ctx, &Record{
		Action: ActionJobAcked, JobID: j.ID, Queue: j.Queue,
		Outcome: OutcomeSuccess, Severity: SeverityInfo, Metadata: meta,
	})
	return nil
}

// OnJobNacked implements ext.JobNacked.
func (e *Extension) OnJobNacked(ctx context.Context, j *job.Job, state job.State, reason string) error {
	r := &Record{
		JobID: j.ID, Queue: j.Queue, Outcome: OutcomeFailure, Reason: reason,
		Metadata: map[string]any{"state": string(state)},
	}
	switch state {
	case job.StatePending:
		r.Action, r.Severity = ActionJobRetried, SeverityWarning
	case job.StateFailed:
		r.Action, r.Severity = ActionJobFailed, SeverityCritical
	default:
		r.Action, r.Severity = ActionJobDead, SeverityCritical
	}
	e.record(ctx, r)
	return nil
}

// OnJobRequeued implements ext.JobRequeued.
func (e *Extension) OnJobRequeued(ctx context.Context, queue, jobID string) error {
	e.record(ctx, &Record{
		Action: ActionJobRequeued, JobID: jobID, Queue: queue,
		Outcome: OutcomeFailure, Severity: SeverityWarning, Reason: "lease expired",
	})
	return nil
}

// OnJobDead implements ext.JobDead.
func (e *Extension) OnJobDead(ctx context.Context, queue, jobID string) error {
	e.record(ctx, &Record{
		Action: ActionJobDead, JobID: jobID, Queue: queue,
		Outcome: OutcomeFailure, Severity: SeverityCritical, Reason: "lease expired",
	})
	return nil
}

func (e *Extension) record(ctx context.Context, r *Record) {
	if e.enabled != nil && !e.enabled[r.Action] {
		return
	}
	if err := e.recorder.Record(ctx, r); err != nil {
		e.logger.Warn("audit: failed to record event",
			slog.String("action", r.Action),
			slog.String("job_id", r.JobID),
			slog.String("error", err.Error()),
		)
	}
}
