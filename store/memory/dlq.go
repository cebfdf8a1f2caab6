package memory

import (
	"context"
	"time"

	"github.com/flaneurtv/redisjq"
	"github.com/flaneurtv/redisjq/dlq"
	"github.com/flaneurtv/redisjq/job"
)

// ListDead returns dead-lettered jobs of queue, oldest first.
func (m *Store) ListDead(ctx context.Context, queue string, opts dlq.ListOpts) ([]*job.Job, error) {
	return m.ListJobs(ctx, queue, job.StateDead, job.ListOpts{Limit: opts.Limit, Offset: opts.Offset})
}

// ReplayDead moves a failed or dead job back to pending with zero attempts.
func (m *Store) ReplayDead(_ context.Context, jobID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := millis(m.now())
	r, ok := m.lookup(jobID, now)
	if !ok {
		return redisjq.ErrJobNotFound
	}
	if !r.job.State.Terminal() {
		return redisjq.ErrNotDeadLettered
	}
	delete(m.queue(r.job.Queue).dead, jobID)
	r.job.DeadAt = nil
	r.job.Attempts = 0
	m.makePending(r, now)
	return nil
}

// PurgeDead deletes dead-lettered jobs of queue that died at or before the
// cutoff, oldest first.
func (m *Store) PurgeDead(_ context.Context, queue string, before time.Time, limit int) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	q, ok := m.queues[queue]
	if !ok {
		return 0, nil
	}
	rs := m.records(q.dead)
	sortByDeath(rs)

	var n int64
	for _, r := range rs {
		if limit > 0 && n >= int64(limit) {
			break
		}
		if r.job.DeadAt != nil && r.job.DeadAt.After(before) {
			break
		}
		delete(q.dead, r.job.ID)
		delete(m.jobs, r.job.ID)
		n++
	}
	return n, nil
}

// CountDead returns the size of the dead letter set of queue.
func (m *Store) CountDead(_ context.Context, queue string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if q, ok := m.queues[queue]; ok {
		return int64(len(q.dead)), nil
	}
	return 0, nil
}
