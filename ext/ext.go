// Package ext defines the extension system. Extensions are notified of job
// lifecycle events (admitted, leased, acked, nacked, requeued, dead) and
// can react to them with metrics, audit logs or webhooks.
//
// Each lifecycle hook is a separate interface so extensions opt in only
// to the events they care about.
package ext

import (
	"context"
	"time"

	"github.com/flaneurtv/redisjq/job"
)

// Extension is the base interface all extensions must implement.
type Extension interface {
	// Name returns a unique human-readable name for the extension.
	Name() string
}

// JobEnqueued is called after a job is admitted.
type JobEnqueued interface {
	OnJobEnqueued(ctx context.Context, j *job.Job) error
}

// JobLeased is called after a job is dispatched to a consumer.
type JobLeased interface {
	OnJobLeased(ctx context.Context, j *job.Job) error
}

// JobAcked is called after a leased job is acknowledged. Elapsed is the
// time between dispatch and acknowledgement when the engine knows it.
type JobAcked interface {
	OnJobAcked(ctx context.Context, j *job.Job, elapsed time.Duration) error
}

// JobNacked is called after a consumer releases a job. State is where the
// job went: pending, failed or dead.
type JobNacked interface {
	OnJobNacked(ctx context.Context, j *job.Job, state job.State, reason string) error
}

// JobRequeued is called when an expired lease is returned to pending.
type JobRequeued interface {
	OnJobRequeued(ctx context.Context, queue, jobID string) error
}

// JobDead is called when a job whose lease expired has no attempts left.
type JobDead interface {
	OnJobDead(ctx context.Context, queue, jobID string) error
}

// Shutdown is called during graceful shutdown.
type Shutdown interface {
	OnShutdown(ctx context.Context) error
}
