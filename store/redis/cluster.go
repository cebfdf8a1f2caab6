package redis

import (
	"context"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/flaneurtv/redisjq/cluster"
)

// MarkIdle records workerID as idle on queue at the store clock.
func (s *Store) MarkIdle(ctx context.Context, queue, workerID string) error {
	err := s.client.ZAdd(ctx, s.keys.idle(queue), goredis.Z{
		Score:  float64(s.now().UnixMilli()),
		Member: workerID,
	}).Err()
	if err != nil {
		return wrapErr("mark idle", err)
	}
	return nil
}

// ClearIdle removes workerID from the idle set of queue.
func (s *Store) ClearIdle(ctx context.Context, queue, workerID string) error {
	if err := s.client.ZRem(ctx, s.keys.idle(queue), workerID).Err(); err != nil {
		return wrapErr("clear idle", err)
	}
	return nil
}

// ListIdle returns idle workers of queue seen at or after since.
func (s *Store) ListIdle(ctx context.Context, queue string, since time.Time) ([]*cluster.Worker, error) {
	zs, err := s.client.ZRevRangeByScoreWithScores(ctx, s.keys.idle(queue), &goredis.ZRangeBy{
		Min: millis(since),
		Max: "+inf",
	}).Result()
	if err != nil {
		return nil, wrapErr("list idle", err)
	}
	workers := make([]*cluster.Worker, 0, len(zs))
	for _, z := range zs {
		member, _ := z.Member.(string)
		workers = append(workers, &cluster.Worker{
			ID:       member,
			Queue:    queue,
			LastSeen: time.UnixMilli(int64(z.Score)).UTC(),
		})
	}
	return workers, nil
}

// PurgeIdle drops idle reports of queue older than before.
func (s *Store) PurgeIdle(ctx context.Context, queue string, before time.Time) (int64, error) {
	n, err := s.client.ZRemRangeByScore(ctx, s.keys.idle(queue), "-inf", "("+millis(before)).Result()
	if err != nil {
		return 0, wrapErr("purge idle", err)
	}
	return n, nil
}
