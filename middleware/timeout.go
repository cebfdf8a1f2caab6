package middleware

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/flaneurtv/redisjq/job"
)

// Timeout cancels the handler context d after the run starts. A
// non-positive d disables it.
func Timeout(d time.Duration, logger *slog.Logger) Middleware {
	return func(ctx context.Context, j *job.Job, next Handler) error {
		if d <= 0 {
			return next(ctx)
		}
		return runUntil(ctx, time.Now().Add(d), j, next, logger)
	}
}

// LeaseDeadline cancels the handler context when the lease the job was
// dispatched with expires. After that point the job may already be leased
// to another consumer. Jobs without a lease run unbounded.
func LeaseDeadline(logger *slog.Logger) Middleware {
	return func(ctx context.Context, j *job.Job, next Handler) error {
		if j.LeaseExpiry == nil {
			return next(ctx)
		}
		return runUntil(ctx, *j.LeaseExpiry, j, next, logger)
	}
}

func runUntil(ctx context.Context, deadline time.Time, j *job.Job, next Handler, logger *slog.Logger) error {
	ctx, cancel := context.WithDeadline(ctx, deadline)
	defer cancel()

	err := next(ctx)
	if !errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return err
	}
	logger.LogAttrs(ctx, slog.LevelWarn, "job handler deadline exceeded",
		jobAttrs(j, slog.Time("deadline", deadline))...)
	if err == nil {
		err = ctx.Err()
	}
	return err
}
