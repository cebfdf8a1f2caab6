package memory

import (
	"context"
	"sort"
	"time"

	"github.com/flaneurtv/redisjq/cluster"
)

// MarkIdle records workerID as idle on queue.
func (m *Store) MarkIdle(_ context.Context, queue, workerID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.queue(queue).idle[workerID] = millis(m.now())
	return nil
}

// ClearIdle removes workerID from the idle set of queue.
func (m *Store) ClearIdle(_ context.Context, queue, workerID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if q, ok := m.queues[queue]; ok {
		delete(q.idle, workerID)
	}
	return nil
}

// ListIdle returns idle workers of queue seen at or after since, most
// recent first.
func (m *Store) ListIdle(_ context.Context, queue string, since time.Time) ([]*cluster.Worker, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	q, ok := m.queues[queue]
	if !ok {
		return nil, nil
	}
	since = millis(since)
	workers := make([]*cluster.Worker, 0, len(q.idle))
	for id, seen := range q.idle {
		if seen.Before(since) {
			continue
		}
		workers = append(workers, &cluster.Worker{ID: id, Queue: queue, LastSeen: seen})
	}
	sort.Slice(workers, func(i, k int) bool {
		if !workers[i].LastSeen.Equal(workers[k].LastSeen) {
			return workers[i].LastSeen.After(workers[k].LastSeen)
		}
		return workers[i].ID > workers[k].ID
	})
	return workers, nil
}

// PurgeIdle drops idle reports of queue older than before.
func (m *Store) PurgeIdle(_ context.Context, queue string, before time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	q, ok := m.queues[queue]
	if !ok {
		return 0, nil
	}
	before = millis(before)
	var n int64
	for id, seen := range q.idle {
		if seen.Before(before) {
			delete(q.idle, id)
			n++
		}
	}
	return n, nil
}
