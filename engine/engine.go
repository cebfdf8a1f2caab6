// Package engine wires the redisjq subsystems together and exposes the
// queue operations: admission, dispatch, acknowledgement, lease renewal
// and recovery.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/flaneurtv/redisjq"
	"github.com/flaneurtv/redisjq/backoff"
	"github.com/flaneurtv/redisjq/cluster"
	"github.com/flaneurtv/redisjq/dlq"
	"github.com/flaneurtv/redisjq/ext"
	"github.com/flaneurtv/redisjq/id"
	"github.com/flaneurtv/redisjq/job"
	"github.com/flaneurtv/redisjq/lease"
	mw "github.com/flaneurtv/redisjq/middleware"
	"github.com/flaneurtv/redisjq/observability"
	"github.com/flaneurtv/redisjq/queue"
	"github.com/flaneurtv/redisjq/store"
	"github.com/flaneurtv/redisjq/worker"
)

const instrumentationName = "github.com/flaneurtv/redisjq"

var _ worker.Leaser = (*Engine)(nil)

// Engine is the entry point of the job queue. It is safe for concurrent
// use; any number of engines, in any number of processes, may share one
// store.
type Engine struct {
	cfg        redisjq.Config
	store      store.Store
	logger     *slog.Logger
	extensions *ext.Registry
	registry   *job.Registry
	dlqService *dlq.Service
	workers    *cluster.Registry
	sweeper    *lease.Sweeper
	pool       *worker.Pool
	bo         backoff.Strategy
	mws        []mw.Middleware

	queueConfigs []queue.Config
	queueManager *queue.Manager

	// OpenTelemetry providers (optional; nil means use global).
	tracerProvider trace.TracerProvider
	meterProvider  metric.MeterProvider

	now func() time.Time

	mu      sync.Mutex
	started bool
}

// Option configures an Engine.
type Option func(*Engine)

// WithConfig replaces the default configuration.
func WithConfig(cfg redisjq.Config) Option {
	return func(e *Engine) { e.cfg = cfg }
}

// WithLogger sets the logger used by the engine and its subsystems.
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

// WithExtension registers a lifecycle extension.
func WithExtension(x ext.Extension) Option {
	return func(e *Engine) { e.extensions.Register(x) }
}

// WithMiddleware appends handler middleware after the default stack.
func WithMiddleware(m mw.Middleware) Option {
	return func(e *Engine) { e.mws = append(e.mws, m) }
}

// WithBackoff delays requeued jobs after a nack. Without it a released
// job is dispatchable again immediately.
func WithBackoff(b backoff.Strategy) Option {
	return func(e *Engine) { e.bo = b }
}

// WithQueueConfig sets local per-queue limits for the worker pool.
func WithQueueConfig(configs ...queue.Config) Option {
	return func(e *Engine) { e.queueConfigs = append(e.queueConfigs, configs...) }
}

// WithTracerProvider sets the OTel TracerProvider for handler spans.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(e *Engine) { e.tracerProvider = tp }
}

// WithMeterProvider sets the OTel MeterProvider for handler metrics and
// lifecycle counters.
func WithMeterProvider(mp metric.MeterProvider) Option {
	return func(e *Engine) { e.meterProvider = mp }
}

// New builds an Engine over s.
func New(s store.Store, opts ...Option) (*Engine, error) {
	if s == nil {
		return nil, redisjq.ErrNoStore
	}

	e := &Engine{
		cfg:        redisjq.DefaultConfig(),
		store:      s,
		logger:     slog.Default(),
		extensions: ext.NewRegistry(nil),
		registry:   job.NewRegistry(),
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.cfg.DefaultLease <= 0 {
		return nil, fmt.Errorf("%w: default lease must be positive", redisjq.ErrValidation)
	}

	logger := e.logger
	e.dlqService = dlq.NewService(s, s, logger)
	e.workers = cluster.NewRegistry(s, e.cfg.IdleExpiry, logger)
	e.sweeper = lease.NewSweeper(s,
		lease.WithInterval(e.cfg.SweepInterval),
		lease.WithBatch(e.cfg.SweepBatch),
		lease.WithIdlePurger(e.workers),
		lease.WithObserver(e.observeSweep),
		lease.WithLogger(logger),
	)

	var obsExt *observability.MetricsExtension
	if e.meterProvider != nil {
		obsExt = observability.NewMetricsExtensionWithMeter(e.meterProvider.Meter(instrumentationName + "/observability"))
	} else {
		obsExt = observability.NewMetricsExtension()
	}
	e.extensions.Register(obsExt)

	tracingMw := mw.Tracing()
	if e.tracerProvider != nil {
		tracingMw = mw.TracingWithTracer(e.tracerProvider.Tracer(instrumentationName))
	}
	metricsMw := mw.Metrics()
	if e.meterProvider != nil {
		metricsMw = mw.MetricsWithMeter(e.meterProvider.Meter(instrumentationName))
	}

	// recover → tracing → metrics → logging → [timeout] → [lease deadline] → user middleware
	chain := make([]mw.Middleware, 0, 6+len(e.mws))
	chain = append(chain,
		mw.Recover(logger),
		tracingMw,
		metricsMw,
		mw.Logging(logger),
	)
	if e.cfg.HandlerTimeout > 0 {
		chain = append(chain, mw.Timeout(e.cfg.HandlerTimeout, logger))
	}
	if e.cfg.HeartbeatInterval <= 0 {
		chain = append(chain, mw.LeaseDeadline(logger))
	}
	chain = append(chain, e.mws...)

	executor := worker.NewExecutor(e.registry, e, logger, chain...)
	poolOpts := []worker.PoolOption{
		worker.WithPoolConcurrency(e.cfg.Concurrency),
		worker.WithPoolQueues(e.cfg.Queues),
		worker.WithPollInterval(e.cfg.PollInterval),
		worker.WithLease(e.cfg.DefaultLease),
		worker.WithHeartbeatInterval(e.cfg.HeartbeatInterval),
		worker.WithIdleTracker(e.workers),
	}
	if len(e.queueConfigs) > 0 {
		e.queueManager = queue.NewManager(e.queueConfigs...)
		poolOpts = append(poolOpts, worker.WithQueueManager(e.queueManager))
	}
	e.pool = worker.NewPool(e, executor, logger, poolOpts...)

	return e, nil
}

// ──────────────────────────────────────────────────
// Handlers
// ──────────────────────────────────────────────────

// Handle registers the handler run by the worker pool for queue.
func (e *Engine) Handle(queue string, h job.HandlerFunc) { e.registry.Handle(queue, h) }

// HandleDefault registers the handler for polled queues without their own.
func (e *Engine) HandleDefault(h job.HandlerFunc) { e.registry.HandleDefault(h) }

// ──────────────────────────────────────────────────
// Enqueue path
// ──────────────────────────────────────────────────

// AddJob admits a JSON batch of the form {"jobs": [...]}. It returns true
// only when every job was admitted; otherwise nothing was written and the
// error says why.
func (e *Engine) AddJob(ctx context.Context, payload []byte) (bool, error) {
	return e.AddJobWithCodec(ctx, payload, job.JSONCodec{})
}

// AddJobWithCodec is AddJob for a payload in the given codec.
func (e *Engine) AddJobWithCodec(ctx context.Context, payload []byte, c job.Codec) (bool, error) {
	jobs, err := job.ParseBatch(payload, c)
	if err != nil {
		return false, err
	}
	if err := e.Enqueue(ctx, jobs...); err != nil {
		return false, err
	}
	return true, nil
}

// Enqueue admits already built jobs as one all-or-nothing batch. Jobs are
// checked like decoded descriptors; a failure is a *job.BatchValidationError
// and nothing is written. Jobs without an id get a generated one; jobs with
// UseDefaultAttempts get the configured budget. Admission timestamps are
// written back to the jobs.
func (e *Engine) Enqueue(ctx context.Context, jobs ...*job.Job) error {
	if len(jobs) == 0 {
		return redisjq.ErrEmptyBatch
	}
	if err := job.CheckBatch(jobs); err != nil {
		return err
	}
	for _, j := range jobs {
		if j.ID == "" {
			j.ID = id.Job.Next()
		}
		if j.MaxAttempts == job.UseDefaultAttempts {
			j.MaxAttempts = e.cfg.MaxAttempts
		}
	}

	if err := e.store.PushJobs(ctx, jobs, job.PushOpts{MaxPending: e.cfg.MaxPending}); err != nil {
		return err
	}

	for _, j := range jobs {
		e.extensions.EmitJobEnqueued(ctx, j)
	}
	e.logger.Info("jobs admitted", slog.Int("count", len(jobs)))
	return nil
}

// ──────────────────────────────────────────────────
// Dispatch path
// ──────────────────────────────────────────────────

// DispatchJob leases the next pending job of queue for lease, or the
// configured default when lease is not positive. It returns nil, nil when
// the queue has nothing pending.
func (e *Engine) DispatchJob(ctx context.Context, queue string, lease time.Duration) (*job.Job, error) {
	return e.DispatchJobWait(ctx, queue, lease, 0)
}

// DispatchJobWait is DispatchJob that waits up to timeout for a job to be
// pushed when the queue is empty. Cancelling ctx while waiting has no
// effect on the queue.
func (e *Engine) DispatchJobWait(ctx context.Context, queue string, lease, timeout time.Duration) (*job.Job, error) {
	if lease <= 0 {
		lease = e.cfg.DefaultLease
	}
	opts := job.LeaseOpts{}
	if e.cfg.LazyReclaim {
		opts.Reclaim = e.cfg.SweepBatch
	}

	deadline := e.now().Add(timeout)
	for {
		opts.Token = uuid.NewString()
		j, reclaimed, err := e.store.LeaseJob(ctx, queue, lease, opts)
		if err != nil {
			return nil, err
		}
		if !reclaimed.Empty() {
			e.logger.Info("dispatch reclaimed expired leases",
				slog.String("queue", queue),
				slog.Int("requeued", len(reclaimed.Requeued)),
				slog.Int("dead", len(reclaimed.Dead)),
			)
			e.observeSweep(ctx, queue, reclaimed)
		}
		if j != nil {
			e.afterDispatch(ctx, j)
			return j, nil
		}

		remaining := deadline.Sub(e.now())
		if remaining <= 0 {
			return nil, nil
		}
		if err := e.store.WaitForJob(ctx, queue, remaining); err != nil {
			return nil, err
		}
	}
}

func (e *Engine) afterDispatch(ctx context.Context, j *job.Job) {
	e.extensions.EmitJobLeased(ctx, j)
	e.logger.Debug("job dispatched",
		slog.String("job_id", j.ID),
		slog.String("queue", j.Queue),
		slog.Int("attempt", j.Attempts),
	)
	if _, err := e.workers.Purge(ctx, j.Queue); err != nil {
		e.logger.Warn("idle worker purge failed",
			slog.String("queue", j.Queue),
			slog.String("error", err.Error()),
		)
	}
}

// ──────────────────────────────────────────────────
// Completion path
// ──────────────────────────────────────────────────

// AckJob completes a leased job regardless of which consumer holds the
// lease. Anything but a live lease fails with *redisjq.NotLeasedError.
func (e *Engine) AckJob(ctx context.Context, jobID string) (bool, error) {
	if err := e.AckLease(ctx, jobID, ""); err != nil {
		return false, err
	}
	return true, nil
}

// AckLease completes a leased job only if token is the current lease.
func (e *Engine) AckLease(ctx context.Context, jobID, token string) error {
	rc, err := e.ack(ctx, jobID, token)
	if err != nil {
		return err
	}
	e.extensions.EmitJobAcked(ctx, &job.Job{ID: jobID, Queue: rc.Queue, State: rc.State}, 0)
	return nil
}

// Complete acknowledges j under the lease it was dispatched with.
func (e *Engine) Complete(ctx context.Context, j *job.Job) error {
	if _, err := e.ack(ctx, j.ID, j.LeaseToken); err != nil {
		return err
	}
	e.extensions.EmitJobAcked(ctx, j, e.now().Sub(j.UpdatedAt))
	return nil
}

func (e *Engine) ack(ctx context.Context, jobID, token string) (job.Receipt, error) {
	rc, err := e.store.AckJob(ctx, jobID, token, job.AckOpts{Retain: e.cfg.CompletedRetention})
	if err != nil {
		return job.Receipt{}, err
	}
	e.logger.Debug("job acked", slog.String("job_id", jobID), slog.String("queue", rc.Queue))
	return rc, nil
}

// NackJob releases a leased job regardless of which consumer holds the
// lease. With requeue the job returns to pending while attempts remain
// and is dead otherwise; without it the job fails.
func (e *Engine) NackJob(ctx context.Context, jobID string, requeue bool) (bool, error) {
	if _, err := e.NackLease(ctx, jobID, "", requeue, ""); err != nil {
		return false, err
	}
	return true, nil
}

// NackLease releases a leased job only if token is the current lease, or
// any lease when token is empty. It returns the state the job moved to.
func (e *Engine) NackLease(ctx context.Context, jobID, token string, requeue bool, reason string) (job.State, error) {
	attempts := 0
	if requeue && e.bo != nil {
		// Attempts only feed the backoff; the nack itself rechecks the lease.
		j, err := e.store.GetJob(ctx, jobID)
		if err != nil && !errors.Is(err, redisjq.ErrJobNotFound) {
			return "", err
		}
		if j != nil {
			attempts = j.Attempts
		}
	}
	return e.nack(ctx, &job.Job{ID: jobID, LeaseToken: token, Attempts: attempts}, requeue, reason)
}

// Release gives j back under the lease it was dispatched with.
func (e *Engine) Release(ctx context.Context, j *job.Job, requeue bool, reason string) (job.State, error) {
	return e.nack(ctx, j, requeue, reason)
}

func (e *Engine) nack(ctx context.Context, j *job.Job, requeue bool, reason string) (job.State, error) {
	opts := job.NackOpts{Requeue: requeue, Error: reason}
	if requeue && e.bo != nil {
		opts.Delay = e.bo.Delay(j.Attempts)
	}
	rc, err := e.store.NackJob(ctx, j.ID, j.LeaseToken, opts)
	if err != nil {
		return "", err
	}
	if j.Queue == "" {
		j.Queue = rc.Queue
	}
	e.extensions.EmitJobNacked(ctx, j, rc.State, reason)
	e.logger.Debug("job nacked",
		slog.String("job_id", j.ID),
		slog.String("queue", rc.Queue),
		slog.String("state", string(rc.State)),
		slog.Duration("delay", opts.Delay),
	)
	return rc.State, nil
}

// ExtendLease renews a live lease to now+d, or the default lease when d is
// not positive, and returns the new expiry.
func (e *Engine) ExtendLease(ctx context.Context, jobID, token string, d time.Duration) (time.Time, error) {
	if d <= 0 {
		d = e.cfg.DefaultLease
	}
	return e.store.ExtendLease(ctx, jobID, token, d, -1)
}

// Renew extends the lease j was dispatched with.
func (e *Engine) Renew(ctx context.Context, j *job.Job, d time.Duration) (time.Time, error) {
	return e.ExtendLease(ctx, j.ID, j.LeaseToken, d)
}

// ReportProgress records progress on a leased job and renews its lease for
// the default lease duration.
func (e *Engine) ReportProgress(ctx context.Context, jobID, token string, progress int) (time.Time, error) {
	if progress < 0 {
		return time.Time{}, fmt.Errorf("%w: progress must not be negative", redisjq.ErrValidation)
	}
	return e.store.ExtendLease(ctx, jobID, token, e.cfg.DefaultLease, progress)
}

// ──────────────────────────────────────────────────
// Recovery
// ──────────────────────────────────────────────────

// Sweep reclaims expired leases of every queue once.
func (e *Engine) Sweep(ctx context.Context) (lease.Result, error) {
	return e.sweeper.SweepOnce(ctx)
}

func (e *Engine) observeSweep(ctx context.Context, queue string, res job.SweepResult) {
	for _, jobID := range res.Requeued {
		e.extensions.EmitJobRequeued(ctx, queue, jobID)
	}
	for _, jobID := range res.Dead {
		e.extensions.EmitJobDead(ctx, queue, jobID)
	}
}

// ──────────────────────────────────────────────────
// Inspection
// ──────────────────────────────────────────────────

// GetJob returns a job by id.
func (e *Engine) GetJob(ctx context.Context, jobID string) (*job.Job, error) {
	return e.store.GetJob(ctx, jobID)
}

// ListJobs returns jobs of queue in state.
func (e *Engine) ListJobs(ctx context.Context, queue string, state job.State, opts job.ListOpts) ([]*job.Job, error) {
	return e.store.ListJobs(ctx, queue, state, opts)
}

// Stats returns the per-state counts of queue.
func (e *Engine) Stats(ctx context.Context, queue string) (job.Counts, error) {
	return e.store.CountJobs(ctx, queue)
}

// Queues returns every queue that has received a job.
func (e *Engine) Queues(ctx context.Context) ([]string, error) {
	return e.store.Queues(ctx)
}

// ──────────────────────────────────────────────────
// Lifecycle
// ──────────────────────────────────────────────────

// Start launches the lease sweeper and, when handlers are registered, the
// worker pool.
func (e *Engine) Start(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.started {
		return nil
	}

	if err := e.store.Ping(ctx); err != nil {
		return err
	}
	if err := e.sweeper.Start(ctx); err != nil {
		return fmt.Errorf("start lease sweeper: %w", err)
	}
	if !e.registry.Empty() {
		if err := e.pool.Start(ctx); err != nil {
			return fmt.Errorf("start worker pool: %w", err)
		}
	}
	e.started = true
	return nil
}

// Stop drains the worker pool, stops the sweeper and notifies extensions.
func (e *Engine) Stop(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.started {
		return nil
	}
	e.started = false

	if err := e.pool.Stop(ctx); err != nil {
		e.logger.Error("worker pool stop error", slog.String("error", err.Error()))
	}
	if err := e.sweeper.Stop(ctx); err != nil {
		e.logger.Error("lease sweeper stop error", slog.String("error", err.Error()))
	}
	e.extensions.EmitShutdown(ctx)
	return nil
}

// ──────────────────────────────────────────────────
// Accessors
// ──────────────────────────────────────────────────

// Config returns the engine configuration.
func (e *Engine) Config() redisjq.Config { return e.cfg }

// Store returns the underlying store.
func (e *Engine) Store() store.Store { return e.store }

// Extensions returns the extension registry.
func (e *Engine) Extensions() *ext.Registry { return e.extensions }

// Registry returns the handler registry.
func (e *Engine) Registry() *job.Registry { return e.registry }

// DLQ returns the dead letter service.
func (e *Engine) DLQ() *dlq.Service { return e.dlqService }

// Workers returns the idle-worker registry.
func (e *Engine) Workers() *cluster.Registry { return e.workers }

// Pool returns the worker pool.
func (e *Engine) Pool() *worker.Pool { return e.pool }

// QueueManager returns the local queue limits, or nil when none were set.
func (e *Engine) QueueManager() *queue.Manager { return e.queueManager }
