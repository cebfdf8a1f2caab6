package job

import (
	"context"
	"time"
)

// PushOpts controls batch admission.
type PushOpts struct {
	// MaxPending rejects the batch when any target queue would hold more
	// pending jobs than this. Zero means unlimited.
	MaxPending int
}

// LeaseOpts controls a single dispatch.
type LeaseOpts struct {
	// Token identifies the lease. The adapter stores it on the job.
	Token string

	// Reclaim, when positive, requeues up to this many expired leases of
	// the queue in the same atomic step, before selecting a job.
	Reclaim int
}

// AckOpts controls acknowledgement.
type AckOpts struct {
	// Retain keeps the done record for this long. Zero deletes it.
	Retain time.Duration
}

// NackOpts controls negative acknowledgement.
type NackOpts struct {
	// Requeue returns the job to pending when attempts remain. When false
	// the job moves to failed.
	Requeue bool

	// Delay keeps a requeued job invisible to dispatch for this long.
	Delay time.Duration

	// Error is recorded as the job's last error.
	Error string
}

// ListOpts controls pagination for job list queries.
type ListOpts struct {
	// Limit is the maximum number of jobs to return. Zero means no limit.
	Limit int
	// Offset is the number of jobs to skip.
	Offset int
}

// Counts is the number of jobs of a queue per state.
type Counts struct {
	Pending int64 `json:"pending"`
	Delayed int64 `json:"delayed"`
	Leased  int64 `json:"leased"`
	Dead    int64 `json:"dead"`
}

// SweepResult lists the expired leases moved by RequeueExpired or by a
// reclaiming LeaseJob.
type SweepResult struct {
	Requeued []string
	Dead     []string
}

// Empty reports whether nothing was moved.
func (r SweepResult) Empty() bool { return len(r.Requeued)+len(r.Dead) == 0 }

// Receipt describes the job an ack or nack settled.
type Receipt struct {
	Queue string
	State State
}

// Store is the narrow contract the engine needs from the shared key-value
// store. Every mutating method is one atomic operation at the store level:
// two concurrent callers can never observe or produce an interleaving that
// delivers one job twice or loses one.
type Store interface {
	// PushJobs admits every job of the batch as pending or none of them.
	// Jobs must carry ids. An id already stored, or repeated within the
	// batch, fails the batch with a *redisjq.DuplicateIDError; a full queue
	// with a *redisjq.CapacityError.
	PushJobs(ctx context.Context, jobs []*Job, opts PushOpts) error

	// LeaseJob claims the pending job with the smallest priority (earliest
	// admission on ties), marks it leased until now+lease, increments its
	// attempts and returns a copy, or nil when nothing is pending. The
	// SweepResult lists the expired leases reclaimed when opts.Reclaim is set.
	LeaseJob(ctx context.Context, queue string, lease time.Duration, opts LeaseOpts) (*Job, SweepResult, error)

	// AckJob completes a leased job. An empty token skips the ownership
	// check. Anything but a live lease fails with *redisjq.NotLeasedError.
	AckJob(ctx context.Context, jobID, token string, opts AckOpts) (Receipt, error)

	// NackJob releases a leased job. The receipt carries the state it
	// moved to.
	NackJob(ctx context.Context, jobID, token string, opts NackOpts) (Receipt, error)

	// ExtendLease renews a live lease to now+d and returns the new expiry.
	// A non-negative progress is recorded on the job.
	ExtendLease(ctx context.Context, jobID, token string, d time.Duration, progress int) (time.Time, error)

	// ScanExpiredLeases returns up to limit leased jobs of queue whose lease
	// has expired. It does not modify them.
	ScanExpiredLeases(ctx context.Context, queue string, limit int) ([]*Job, error)

	// RequeueExpired moves up to limit expired leases of queue back to
	// pending, or to dead once their attempts are used up.
	RequeueExpired(ctx context.Context, queue string, limit int) (SweepResult, error)

	// GetJob retrieves a job by id.
	GetJob(ctx context.Context, jobID string) (*Job, error)

	// ListJobs returns jobs of queue in the given state, in dispatch order
	// for pending jobs and expiry order for leased ones. StateFailed and
	// StateDead both list the dead-letter set.
	ListJobs(ctx context.Context, queue string, state State, opts ListOpts) ([]*Job, error)

	// CountJobs returns the per-state counts of queue.
	CountJobs(ctx context.Context, queue string) (Counts, error)

	// Queues returns every queue that has ever received a job.
	Queues(ctx context.Context) ([]string, error)

	// WaitForJob blocks until a job is pushed to queue, timeout elapses
	// or ctx is done. A nil return does not guarantee a job is available.
	WaitForJob(ctx context.Context, queue string, timeout time.Duration) error
}
