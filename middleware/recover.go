package middleware

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"

	"github.com/flaneurtv/redisjq/job"
)

// PanicError replaces a panic raised inside the chain.
type PanicError struct {
	JobID string
	Value any
	Stack []byte
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("panic in job %s: %v", e.JobID, e.Value)
}

// Recover turns a panic into a *PanicError, so the job is released like
// any other failure instead of taking the worker down.
func Recover(logger *slog.Logger) Middleware {
	return func(ctx context.Context, j *job.Job, next Handler) (err error) {
		defer func() {
			v := recover()
			if v == nil {
				return
			}
			pe := &PanicError{JobID: j.ID, Value: v, Stack: debug.Stack()}
			logger.LogAttrs(ctx, slog.LevelError, "job handler panicked",
				jobAttrs(j,
					slog.Any("panic", v),
					slog.String("stack", string(pe.Stack)),
				)...,
			)
			err = pe
		}()
		return next(ctx)
	}
}
