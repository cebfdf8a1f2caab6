package cluster

import (
	"context"
	"time"
)

// Store defines the persistence contract for the idle-worker registry.
type Store interface {
	// MarkIdle records that workerID is waiting for work on queue, at the
	// store's current time.
	MarkIdle(ctx context.Context, queue, workerID string) error

	// ClearIdle removes workerID from the idle registry of queue.
	ClearIdle(ctx context.Context, queue, workerID string) error

	// ListIdle returns the workers of queue that reported idle at or after
	// since, most recent first.
	ListIdle(ctx context.Context, queue string, since time.Time) ([]*Worker, error)

	// PurgeIdle drops registrations of queue older than before and returns
	// how many were removed.
	PurgeIdle(ctx context.Context, queue string, before time.Time) (int64, error)
}
