package redis

import (
	"context"
	"time"

	"github.com/flaneurtv/redisjq"
	"github.com/flaneurtv/redisjq/dlq"
	"github.com/flaneurtv/redisjq/job"
)

// ListDead returns dead-lettered jobs of queue, oldest first.
func (s *Store) ListDead(ctx context.Context, queue string, opts dlq.ListOpts) ([]*job.Job, error) {
	return s.ListJobs(ctx, queue, job.StateDead, job.ListOpts{Limit: opts.Limit, Offset: opts.Offset})
}

// ReplayDead moves a failed or dead job back to pending.
func (s *Store) ReplayDead(ctx context.Context, jobID string) error {
	res, err := replayScript.Run(ctx, s.client, []string{s.keys.job(jobID)},
		s.keys.prefix, jobID, millis(s.now()),
	).StringSlice()
	if err != nil {
		return wrapErr("replay dead", err)
	}
	switch res[0] {
	case "missing":
		return redisjq.ErrJobNotFound
	case "state":
		return redisjq.ErrNotDeadLettered
	}
	return nil
}

// PurgeDead deletes dead-lettered jobs of queue that died before the cutoff.
func (s *Store) PurgeDead(ctx context.Context, queue string, before time.Time, limit int) (int64, error) {
	n, err := purgeScript.Run(ctx, s.client, []string{s.keys.dead(queue)},
		s.keys.prefix, queue, millis(before), limitOrAll(limit),
	).Int64()
	if err != nil {
		return 0, wrapErr("purge dead", err)
	}
	return n, nil
}

// CountDead returns the size of the dead letter set of queue.
func (s *Store) CountDead(ctx context.Context, queue string) (int64, error) {
	n, err := s.client.ZCard(ctx, s.keys.dead(queue)).Result()
	if err != nil {
		return 0, wrapErr("count dead", err)
	}
	return n, nil
}

