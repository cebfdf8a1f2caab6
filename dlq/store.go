package dlq

import (
	"context"
	"time"

	"github.com/flaneurtv/redisjq/job"
)

// ListOpts controls pagination for DLQ list queries.
type ListOpts struct {
	// Limit is the maximum number of entries to return. Zero means no limit.
	Limit int
	// Offset is the number of entries to skip.
	Offset int
}

// Store defines the persistence contract for the dead letter set. Failed
// and dead jobs stay in their job records; the store only indexes them
// per queue by the time they died.
type Store interface {
	// ListDead returns dead-lettered jobs of queue, oldest first.
	ListDead(ctx context.Context, queue string, opts ListOpts) ([]*job.Job, error)

	// ReplayDead moves a failed or dead job back to pending with its
	// attempt count reset. It keeps the job's id and admission order.
	ReplayDead(ctx context.Context, jobID string) error

	// PurgeDead deletes up to limit dead-lettered jobs of queue that died
	// before the given time. Zero limit means no limit.
	PurgeDead(ctx context.Context, queue string, before time.Time, limit int) (int64, error)

	// CountDead returns the number of dead-lettered jobs of queue.
	CountDead(ctx context.Context, queue string) (int64, error)
}
