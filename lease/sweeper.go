package lease

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/flaneurtv/redisjq/job"
)

// Store is the part of job.Store the sweeper needs.
type Store interface {
	Queues(ctx context.Context) ([]string, error)
	RequeueExpired(ctx context.Context, queue string, limit int) (job.SweepResult, error)
}

// IdlePurger drops expired idle-worker reports of a queue.
type IdlePurger interface {
	Purge(ctx context.Context, queue string) (int64, error)
}

// Observer is told about every batch of jobs a sweep moved.
type Observer func(ctx context.Context, queue string, res job.SweepResult)

// Result counts the jobs moved by one sweep across all queues.
type Result struct {
	Requeued int `json:"requeued"`
	Dead     int `json:"dead"`
}

// Sweeper periodically returns expired leases to their queues, or to the
// dead letter set once their attempts are used up.
type Sweeper struct {
	store    Store
	interval time.Duration
	batch    int
	parallel int
	purger   IdlePurger
	observe  Observer
	logger   *slog.Logger

	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	done    chan struct{}
}

// Option configures a Sweeper.
type Option func(*Sweeper)

// WithInterval sets the time between sweeps.
func WithInterval(d time.Duration) Option {
	return func(s *Sweeper) { s.interval = d }
}

// WithBatch caps how many leases RequeueExpired moves per call.
func WithBatch(n int) Option {
	return func(s *Sweeper) { s.batch = n }
}

// WithParallelism caps how many queues are swept at once.
func WithParallelism(n int) Option {
	return func(s *Sweeper) { s.parallel = n }
}

// WithIdlePurger also purges stale idle-worker reports on every sweep.
func WithIdlePurger(p IdlePurger) Option {
	return func(s *Sweeper) { s.purger = p }
}

// WithObserver registers a callback for moved jobs.
func WithObserver(fn Observer) Option {
	return func(s *Sweeper) { s.observe = fn }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Sweeper) { s.logger = l }
}

// NewSweeper creates a Sweeper. Defaults: every 3s, 100 leases per call,
// 4 queues at once.
func NewSweeper(store Store, opts ...Option) *Sweeper {
	s := &Sweeper{
		store:    store,
		interval: 3 * time.Second,
		batch:    100,
		parallel: 4,
		logger:   slog.Default(),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// SweepOnce sweeps every known queue once. Each queue is drained in
// batches until a call moves fewer jobs than the batch size.
func (s *Sweeper) SweepOnce(ctx context.Context) (Result, error) {
	queues, err := s.store.Queues(ctx)
	if err != nil {
		return Result{}, err
	}

	var (
		mu    sync.Mutex
		total Result
	)
	g, gctx := errgroup.WithContext(ctx)
	if s.parallel > 0 {
		g.SetLimit(s.parallel)
	}
	for _, q := range queues {
		g.Go(func() error {
			res, err := s.sweepQueue(gctx, q)
			mu.Lock()
			total.Requeued += res.Requeued
			total.Dead += res.Dead
			mu.Unlock()
			return err
		})
	}
	err = g.Wait()
	return total, err
}

func (s *Sweeper) sweepQueue(ctx context.Context, queue string) (Result, error) {
	var res Result
	for {
		moved, err := s.store.RequeueExpired(ctx, queue, s.batch)
		if err != nil {
			return res, err
		}
		n := len(moved.Requeued) + len(moved.Dead)
		if n == 0 {
			break
		}
		res.Requeued += len(moved.Requeued)
		res.Dead += len(moved.Dead)
		for _, id := range moved.Requeued {
			s.logger.Info("lease expired, job requeued",
				slog.String("job_id", id),
				slog.String("queue", queue),
			)
		}
		for _, id := range moved.Dead {
			s.logger.Warn("lease expired, job dead",
				slog.String("job_id", id),
				slog.String("queue", queue),
			)
		}
		if s.observe != nil {
			s.observe(ctx, queue, moved)
		}
		if s.batch <= 0 || n < s.batch {
			break
		}
	}

	if s.purger != nil {
		if _, err := s.purger.Purge(ctx, queue); err != nil {
			return res, err
		}
	}
	return res, nil
}

// Start launches the sweep loop. A non-positive interval makes it a no-op.
func (s *Sweeper) Start(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running || s.interval <= 0 {
		return nil
	}
	s.running = true
	s.stopCh = make(chan struct{})
	s.done = make(chan struct{})

	s.logger.Info("lease sweeper starting", slog.Duration("interval", s.interval))
	go s.loop()
	return nil
}

// Stop ends the sweep loop and waits for an in-flight sweep, or for ctx.
func (s *Sweeper) Stop(ctx context.Context) error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = false
	close(s.stopCh)
	done := s.done
	s.mu.Unlock()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Sweeper) loop() {
	defer close(s.done)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		select {
		case <-s.stopCh:
			cancel()
		case <-ctx.Done():
		}
	}()

	for {
		select {
		case <-s.stopCh:
			return
		case <-ticker.C:
			if _, err := s.SweepOnce(ctx); err != nil && ctx.Err() == nil {
				s.logger.Error("lease sweep failed", slog.String("error", err.Error()))
			}
		}
	}
}
