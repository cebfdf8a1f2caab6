// Package worker consumes jobs: an Executor runs one leased job through
// middleware and its handler and settles the lease, and a Pool runs
// executors on concurrent goroutines polling the shared store.
package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/flaneurtv/redisjq/job"
	"github.com/flaneurtv/redisjq/middleware"
)

// Leaser settles leases of dispatched jobs. The engine implements it.
type Leaser interface {
	// DispatchJobWait leases the next job of queue, waiting up to timeout
	// for one to arrive. It returns nil, nil when none did.
	DispatchJobWait(ctx context.Context, queue string, lease, timeout time.Duration) (*job.Job, error)

	// Complete acknowledges a job under the lease it was dispatched with.
	Complete(ctx context.Context, j *job.Job) error

	// Release gives a job back and returns the state it moved to.
	Release(ctx context.Context, j *job.Job, requeue bool, reason string) (job.State, error)

	// Renew extends the lease of a job by d.
	Renew(ctx context.Context, j *job.Job, d time.Duration) (time.Time, error)
}

type permanentError struct{ err error }

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// Permanent marks a handler error as not worth retrying. The job is
// released without requeue and lands in the dead letter set as failed.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// IsPermanent reports whether err was marked with Permanent.
func IsPermanent(err error) bool {
	var p *permanentError
	return errors.As(err, &p)
}

// Executor runs a single leased job and settles its lease: ack on
// success, nack otherwise.
type Executor struct {
	registry *job.Registry
	leaser   Leaser
	mw       middleware.Middleware
	logger   *slog.Logger
}

// NewExecutor creates an Executor. Middleware run outermost first.
func NewExecutor(registry *job.Registry, leaser Leaser, logger *slog.Logger, mws ...middleware.Middleware) *Executor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Executor{
		registry: registry,
		leaser:   leaser,
		mw:       middleware.Chain(mws...),
		logger:   logger,
	}
}

// Execute runs j and returns the handler's error. Settlement failures
// are logged, not returned: a lease that could not be settled expires
// and the sweeper takes over.
func (e *Executor) Execute(ctx context.Context, j *job.Job) error {
	handler, ok := e.registry.Get(j.Queue)
	if !ok {
		err := Permanent(fmt.Errorf("no handler for queue %q", j.Queue))
		e.release(j, false, err)
		return err
	}

	err := e.mw(ctx, j, func(ctx context.Context) error {
		return handler(ctx, j)
	})

	// Settle on a fresh context so a cancelled handler still releases.
	if err == nil {
		if ackErr := e.leaser.Complete(context.WithoutCancel(ctx), j); ackErr != nil {
			e.logger.Warn("ack failed",
				slog.String("job_id", j.ID),
				slog.String("queue", j.Queue),
				slog.String("error", ackErr.Error()),
			)
		}
		return nil
	}

	e.release(j, !IsPermanent(err), err)
	return err
}

func (e *Executor) release(j *job.Job, requeue bool, cause error) {
	state, err := e.leaser.Release(context.Background(), j, requeue, cause.Error())
	if err != nil {
		e.logger.Warn("nack failed",
			slog.String("job_id", j.ID),
			slog.String("queue", j.Queue),
			slog.String("error", err.Error()),
		)
		return
	}
	e.logger.Debug("job released",
		slog.String("job_id", j.ID),
		slog.String("state", string(state)),
		slog.String("error", cause.Error()),
	)
}
