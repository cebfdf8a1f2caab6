package middleware

import (
	"context"

	"github.com/flaneurtv/redisjq/job"
)

// Handler continues the chain; the innermost one calls the job handler.
type Handler func(ctx context.Context) error

// Middleware runs around next for job j. Returning without calling next
// skips the rest of the chain and the handler.
type Middleware func(ctx context.Context, j *job.Job, next Handler) error

// Chain composes mws into one Middleware, mws[0] outermost.
func Chain(mws ...Middleware) Middleware {
	switch len(mws) {
	case 0:
		return passThrough
	case 1:
		return mws[0]
	}
	return func(ctx context.Context, j *job.Job, next Handler) error {
		return runChain(ctx, j, mws, next)
	}
}

func runChain(ctx context.Context, j *job.Job, mws []Middleware, last Handler) error {
	if len(mws) == 0 {
		return last(ctx)
	}
	return mws[0](ctx, j, func(ctx context.Context) error {
		return runChain(ctx, j, mws[1:], last)
	})
}

func passThrough(ctx context.Context, _ *job.Job, next Handler) error { return next(ctx) }
