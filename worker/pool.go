package worker

import (
	"context"
	"errors"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/flaneurtv/redisjq"
	"github.com/flaneurtv/redisjq/id"
	"github.com/flaneurtv/redisjq/job"
)

// QueueManager gates dispatch per queue. The pool calls Acquire before
// polling a queue and Release once the job is settled or nothing came.
type QueueManager interface {
	Acquire(queue string) bool
	Release(queue string)
}

// IdleTracker records which workers are waiting on which queue.
type IdleTracker interface {
	Idle(ctx context.Context, queue, workerID string) error
	Busy(ctx context.Context, queue, workerID string) error
}

// Pool runs a fixed number of worker goroutines. Each one polls the
// pool's queues in turn, leases a job and runs it through the Executor.
type Pool struct {
	leaser       Leaser
	executor     *Executor
	concurrency  int
	queues       []string
	pollInterval time.Duration
	lease        time.Duration
	workerID     string
	logger       *slog.Logger

	// heartbeatInterval of zero disables lease renewal.
	heartbeatInterval time.Duration

	queueManager QueueManager
	idle         IdleTracker

	stopCh   chan struct{}
	pollCtx  context.Context
	stopPoll context.CancelFunc
	wg       sync.WaitGroup
	mu       sync.Mutex
	running  bool

	activeMu sync.Mutex
	active   map[string]*activeJob
}

type activeJob struct {
	job    *job.Job
	cancel context.CancelFunc
}

// PoolOption configures a Pool.
type PoolOption func(*Pool)

// WithPoolConcurrency sets the number of worker goroutines.
func WithPoolConcurrency(n int) PoolOption {
	return func(p *Pool) { p.concurrency = n }
}

// WithPoolQueues sets the queues the pool polls, in priority order.
func WithPoolQueues(queues []string) PoolOption {
	return func(p *Pool) { p.queues = queues }
}

// WithPollInterval sets how long a worker waits when no queue had work.
func WithPollInterval(d time.Duration) PoolOption {
	return func(p *Pool) { p.pollInterval = d }
}

// WithLease sets the lease requested for each dispatched job.
func WithLease(d time.Duration) PoolOption {
	return func(p *Pool) { p.lease = d }
}

// WithHeartbeatInterval sets how often leases of running jobs are renewed.
func WithHeartbeatInterval(d time.Duration) PoolOption {
	return func(p *Pool) { p.heartbeatInterval = d }
}

// WithQueueManager sets local per-queue limits.
func WithQueueManager(m QueueManager) PoolOption {
	return func(p *Pool) { p.queueManager = m }
}

// WithIdleTracker reports idle and busy workers, typically to a
// cluster.Registry.
func WithIdleTracker(t IdleTracker) PoolOption {
	return func(p *Pool) { p.idle = t }
}

// NewPool creates a worker pool.
func NewPool(leaser Leaser, executor *Executor, logger *slog.Logger, opts ...PoolOption) *Pool {
	if logger == nil {
		logger = slog.Default()
	}
	p := &Pool{
		leaser:       leaser,
		executor:     executor,
		concurrency:  4,
		queues:       []string{"default"},
		pollInterval: time.Second,
		lease:        30 * time.Second,
		workerID:     id.Worker.Next(),
		logger:       logger,
		active:       make(map[string]*activeJob),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// WorkerID returns the pool's identifier.
func (p *Pool) WorkerID() string { return p.workerID }

// ActiveCount returns the number of jobs currently running.
func (p *Pool) ActiveCount() int {
	p.activeMu.Lock()
	defer p.activeMu.Unlock()
	return len(p.active)
}

// Start launches the worker goroutines and returns immediately.
func (p *Pool) Start(_ context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.running {
		return nil
	}
	p.running = true
	p.stopCh = make(chan struct{})
	p.pollCtx, p.stopPoll = context.WithCancel(context.Background())

	p.logger.Info("worker pool starting",
		slog.String("worker_id", p.workerID),
		slog.Int("concurrency", p.concurrency),
		slog.Any("queues", p.queues),
	)

	for n := range p.concurrency {
		p.wg.Add(1)
		go p.loop(n)
	}
	if p.heartbeatInterval > 0 {
		p.wg.Add(1)
		go p.heartbeatLoop()
	}
	return nil
}

// Stop stops polling and waits for running jobs to finish. When ctx ends
// first, running jobs are cancelled; they are still settled.
func (p *Pool) Stop(ctx context.Context) error {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return nil
	}
	p.running = false
	p.mu.Unlock()

	p.logger.Info("worker pool stopping", slog.String("worker_id", p.workerID))
	close(p.stopCh)
	p.stopPoll()

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		p.logger.Info("worker pool stopped gracefully")
	case <-ctx.Done():
		p.logger.Warn("worker pool shutdown timed out, cancelling active jobs")
		p.cancelActive()
		<-done
	}
	return nil
}

// loop is run by each worker goroutine. Worker n starts its queue scan
// at offset n so equal-priority queues are shared fairly.
func (p *Pool) loop(n int) {
	defer p.wg.Done()

	slot := p.workerID + "/" + strconv.Itoa(n)
	for {
		select {
		case <-p.stopCh:
			return
		default:
		}

		if p.pollOnce(n, slot) {
			continue
		}
		p.wait(slot)
	}
}

// pollOnce tries every queue once without blocking and runs the first job
// found. It reports whether a job ran.
func (p *Pool) pollOnce(n int, slot string) bool {
	for i := range p.queues {
		q := p.queues[(n+i)%len(p.queues)]
		if p.queueManager != nil && !p.queueManager.Acquire(q) {
			continue
		}
		j, err := p.leaser.DispatchJobWait(p.pollCtx, q, p.lease, 0)
		if err != nil || j == nil {
			if p.queueManager != nil {
				p.queueManager.Release(q)
			}
			if err != nil && !errors.Is(err, context.Canceled) {
				p.logger.Error("dispatch error",
					slog.String("queue", q),
					slog.String("error", err.Error()),
				)
			}
			continue
		}

		p.run(slot, j)
		if p.queueManager != nil {
			p.queueManager.Release(q)
		}
		return true
	}
	return false
}

// wait marks the worker idle and blocks until work may be available. With
// a single queue it waits on that queue's push notifications; otherwise it
// sleeps for the poll interval.
func (p *Pool) wait(slot string) {
	if p.idle != nil {
		for _, q := range p.queues {
			if err := p.idle.Idle(p.pollCtx, q, slot); err != nil && !errors.Is(err, context.Canceled) {
				p.logger.Debug("idle report failed", slog.String("error", err.Error()))
			}
		}
	}

	if len(p.queues) == 1 && p.queueManager == nil {
		j, err := p.leaser.DispatchJobWait(p.pollCtx, p.queues[0], p.lease, p.pollInterval)
		switch {
		case err != nil && errors.Is(err, context.Canceled):
		case err != nil:
			p.logger.Error("dispatch error", slog.String("error", err.Error()))
			p.sleep()
		case j != nil:
			p.run(slot, j)
		}
		return
	}
	p.sleep()
}

func (p *Pool) run(slot string, j *job.Job) {
	if p.idle != nil {
		for _, q := range p.queues {
			if err := p.idle.Busy(context.Background(), q, slot); err != nil {
				p.logger.Debug("busy report failed", slog.String("error", err.Error()))
			}
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	p.track(j, cancel)
	defer func() {
		p.untrack(j.ID)
		cancel()
	}()

	if err := p.executor.Execute(ctx, j); err != nil {
		p.logger.Debug("job execution failed",
			slog.String("job_id", j.ID),
			slog.String("queue", j.Queue),
			slog.String("error", err.Error()),
		)
	}
}

// heartbeatLoop renews the leases of running jobs. A job whose lease is
// lost has its context cancelled.
func (p *Pool) heartbeatLoop() {
	defer p.wg.Done()

	ticker := time.NewTicker(p.heartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-p.stopCh:
			return
		case <-ticker.C:
			p.renewAll()
		}
	}
}

func (p *Pool) renewAll() {
	p.activeMu.Lock()
	jobs := make([]*activeJob, 0, len(p.active))
	for _, a := range p.active {
		jobs = append(jobs, a)
	}
	p.activeMu.Unlock()

	for _, a := range jobs {
		if _, err := p.leaser.Renew(context.Background(), a.job, p.lease); err != nil {
			p.logger.Warn("heartbeat failed",
				slog.String("job_id", a.job.ID),
				slog.String("error", err.Error()),
			)
			if errors.Is(err, redisjq.ErrNotLeased) {
				a.cancel()
			}
		}
	}
}

func (p *Pool) sleep() {
	select {
	case <-time.After(p.pollInterval):
	case <-p.stopCh:
	}
}

func (p *Pool) track(j *job.Job, cancel context.CancelFunc) {
	p.activeMu.Lock()
	p.active[j.ID] = &activeJob{job: j, cancel: cancel}
	p.activeMu.Unlock()
}

func (p *Pool) untrack(jobID string) {
	p.activeMu.Lock()
	delete(p.active, jobID)
	p.activeMu.Unlock()
}

func (p *Pool) cancelActive() {
	p.activeMu.Lock()
	defer p.activeMu.Unlock()
	for jobID, a := range p.active {
		p.logger.Warn("cancelling active job", slog.String("job_id", jobID))
		a.cancel()
	}
}
