package ext

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/flaneurtv/redisjq/job"
)

type hooked[H any] struct {
	ext  string
	hook H
}

// Registry fans lifecycle events out to extensions. Hook lists are built
// at registration time, in registration order.
type Registry struct {
	logger *slog.Logger
	all    []Extension

	enqueued []hooked[JobEnqueued]
	leased   []hooked[JobLeased]
	acked    []hooked[JobAcked]
	nacked   []hooked[JobNacked]
	requeued []hooked[JobRequeued]
	dead     []hooked[JobDead]
	shutdown []hooked[Shutdown]
}

// NewRegistry returns an empty registry. A nil logger means slog.Default.
func NewRegistry(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{logger: logger}
}

// Register adds e to the hook lists it implements.
func (r *Registry) Register(e Extension) {
	r.all = append(r.all, e)
	name := e.Name()
	r.enqueued = addHook(r.enqueued, name, e)
	r.leased = addHook(r.leased, name, e)
	r.acked = addHook(r.acked, name, e)
	r.nacked = addHook(r.nacked, name, e)
	r.requeued = addHook(r.requeued, name, e)
	r.dead = addHook(r.dead, name, e)
	r.shutdown = addHook(r.shutdown, name, e)
}

func addHook[H any](list []hooked[H], name string, e Extension) []hooked[H] {
	if h, ok := e.(H); ok {
		list = append(list, hooked[H]{ext: name, hook: h})
	}
	return list
}

// Extensions returns the registered extensions in registration order.
func (r *Registry) Extensions() []Extension { return r.all }

// EmitJobEnqueued calls OnJobEnqueued on every extension implementing it.
func (r *Registry) EmitJobEnqueued(ctx context.Context, j *job.Job) {
	fire(ctx, r.logger, "OnJobEnqueued", r.enqueued, func(h JobEnqueued) error {
		return h.OnJobEnqueued(ctx, j)
	})
}

// EmitJobLeased calls OnJobLeased on every extension implementing it.
func (r *Registry) EmitJobLeased(ctx context.Context, j *job.Job) {
	fire(ctx, r.logger, "OnJobLeased", r.leased, func(h JobLeased) error {
		return h.OnJobLeased(ctx, j)
	})
}

// EmitJobAcked calls OnJobAcked on every extension implementing it.
func (r *Registry) EmitJobAcked(ctx context.Context, j *job.Job, elapsed time.Duration) {
	fire(ctx, r.logger, "OnJobAcked", r.acked, func(h JobAcked) error {
		return h.OnJobAcked(ctx, j, elapsed)
	})
}

// EmitJobNacked calls OnJobNacked on every extension implementing it.
func (r *Registry) EmitJobNacked(ctx context.Context, j *job.Job, state job.State, reason string) {
	fire(ctx, r.logger, "OnJobNacked", r.nacked, func(h JobNacked) error {
		return h.OnJobNacked(ctx, j, state, reason)
	})
}

// EmitJobRequeued calls OnJobRequeued on every extension implementing it.
func (r *Registry) EmitJobRequeued(ctx context.Context, queue, jobID string) {
	fire(ctx, r.logger, "OnJobRequeued", r.requeued, func(h JobRequeued) error {
		return h.OnJobRequeued(ctx, queue, jobID)
	})
}

// EmitJobDead calls OnJobDead on every extension implementing it.
func (r *Registry) EmitJobDead(ctx context.Context, queue, jobID string) {
	fire(ctx, r.logger, "OnJobDead", r.dead, func(h JobDead) error {
		return h.OnJobDead(ctx, queue, jobID)
	})
}

// EmitShutdown calls OnShutdown on every extension implementing it.
func (r *Registry) EmitShutdown(ctx context.Context) {
	fire(ctx, r.logger, "OnShutdown", r.shutdown, func(h Shutdown) error {
		return h.OnShutdown(ctx)
	})
}

// fire runs call for each hook. Errors and panics are logged and never
// reach the job pipeline.
func fire[H any](ctx context.Context, logger *slog.Logger, hook string, list []hooked[H], call func(H) error) {
	for _, h := range list {
		if err := safeCall(h.hook, call); err != nil {
			logger.LogAttrs(ctx, slog.LevelWarn, "extension hook error",
				slog.String("hook", hook),
				slog.String("extension", h.ext),
				slog.String("error", err.Error()),
			)
		}
	}
}

func safeCall[H any](h H, call func(H) error) (err error) {
	defer func() {
		if v := recover(); v != nil {
			err = fmt.Errorf("panic: %v", v)
		}
	}()
	return call(h)
}
