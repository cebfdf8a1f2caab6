package dlq

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/flaneurtv/redisjq"
	"github.com/flaneurtv/redisjq/job"
)

// replayBatch is how many entries ReplayAll reads per round.
const replayBatch = 100

// Service provides high-level DLQ operations over a Store.
type Service struct {
	store    Store
	jobStore job.Store
	logger   *slog.Logger
	now      func() time.Time
}

// NewService creates a DLQ service.
func NewService(store Store, jobStore job.Store, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{store: store, jobStore: jobStore, logger: logger, now: time.Now}
}

// List returns the entries of a queue, oldest failure first.
func (s *Service) List(ctx context.Context, queue string, opts ListOpts) ([]*Entry, error) {
	jobs, err := s.store.ListDead(ctx, queue, opts)
	if err != nil {
		return nil, err
	}
	entries := make([]*Entry, len(jobs))
	for i, j := range jobs {
		entries[i] = EntryFromJob(j)
	}
	return entries, nil
}

// Get returns the entry of one job. A job that exists but is not
// dead-lettered yields redisjq.ErrNotDeadLettered.
func (s *Service) Get(ctx context.Context, jobID string) (*Entry, error) {
	j, err := s.jobStore.GetJob(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if !j.State.Terminal() {
		return nil, fmt.Errorf("%w: %s is %s", redisjq.ErrNotDeadLettered, jobID, j.State)
	}
	return EntryFromJob(j), nil
}

// Replay returns one job to its queue with a fresh attempt budget.
func (s *Service) Replay(ctx context.Context, jobID string) error {
	if err := s.store.ReplayDead(ctx, jobID); err != nil {
		return err
	}
	s.logger.Info("dlq job replayed", slog.String("job_id", jobID))
	return nil
}

// ReplayAll replays every entry of a queue and returns how many moved.
// Entries that vanish or change state concurrently are skipped.
func (s *Service) ReplayAll(ctx context.Context, queue string) (int, error) {
	replayed := 0
	for {
		jobs, err := s.store.ListDead(ctx, queue, ListOpts{Limit: replayBatch})
		if err != nil {
			return replayed, err
		}
		if len(jobs) == 0 {
			return replayed, nil
		}
		moved := 0
		for _, j := range jobs {
			if err := s.store.ReplayDead(ctx, j.ID); err != nil {
				s.logger.Warn("dlq replay skipped",
					slog.String("job_id", j.ID),
					slog.String("error", err.Error()),
				)
				continue
			}
			moved++
		}
		replayed += moved
		if moved == 0 {
			return replayed, nil
		}
	}
}

// Purge deletes entries of a queue that failed more than olderThan ago.
// Zero olderThan purges everything.
func (s *Service) Purge(ctx context.Context, queue string, olderThan time.Duration) (int64, error) {
	n, err := s.store.PurgeDead(ctx, queue, s.now().Add(-olderThan), 0)
	if err != nil {
		return 0, err
	}
	if n > 0 {
		s.logger.Info("dlq purged",
			slog.String("queue", queue),
			slog.Int64("removed", n),
		)
	}
	return n, nil
}

// Count returns the number of entries of a queue.
func (s *Service) Count(ctx context.Context, queue string) (int64, error) {
	return s.store.CountDead(ctx, queue)
}

// DLQStore returns the underlying DLQ store.
func (s *Service) DLQStore() Store {
	return s.store
}
