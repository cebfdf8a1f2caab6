package cluster

import (
	"context"
	"log/slog"
	"time"
)

// DefaultIdleExpiry is how long an idle report stays valid.
const DefaultIdleExpiry = 9 * time.Second

// Registry tracks which workers are idle on which queue. Workers report
// idle before blocking for work and busy once they hold a lease.
type Registry struct {
	store  Store
	expiry time.Duration
	logger *slog.Logger
	now    func() time.Time
}

// NewRegistry creates a Registry. A non-positive expiry uses
// DefaultIdleExpiry.
func NewRegistry(store Store, expiry time.Duration, logger *slog.Logger) *Registry {
	if expiry <= 0 {
		expiry = DefaultIdleExpiry
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{store: store, expiry: expiry, logger: logger, now: time.Now}
}

// Idle marks workerID as waiting on queue.
func (r *Registry) Idle(ctx context.Context, queue, workerID string) error {
	return r.store.MarkIdle(ctx, queue, workerID)
}

// Busy removes workerID from the idle set of queue.
func (r *Registry) Busy(ctx context.Context, queue, workerID string) error {
	return r.store.ClearIdle(ctx, queue, workerID)
}

// Active returns the workers whose idle report on queue has not expired.
func (r *Registry) Active(ctx context.Context, queue string) ([]*Worker, error) {
	return r.store.ListIdle(ctx, queue, r.now().Add(-r.expiry))
}

// Purge drops expired idle reports of queue.
func (r *Registry) Purge(ctx context.Context, queue string) (int64, error) {
	n, err := r.store.PurgeIdle(ctx, queue, r.now().Add(-r.expiry))
	if err != nil {
		return 0, err
	}
	if n > 0 {
		r.logger.Debug("purged idle workers",
			slog.String("queue", queue),
			slog.Int64("count", n),
		)
	}
	return n, nil
}
