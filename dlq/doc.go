// Package dlq provides the dead letter set for jobs that a consumer
// rejected without requeue (failed) or that used up their attempts (dead).
// It supports inspection, replay and purging.
//
// Dead-lettered jobs keep their record, id and last error. The store
// indexes them per queue by the time they died, so [Service.List] returns
// the oldest failures first.
//
// # Service
//
//	svc := dlq.NewService(store, store, logger)
//
//	entries, _ := svc.List(ctx, "default", dlq.ListOpts{Limit: 50})
//	_ = svc.Replay(ctx, entries[0].JobID)
//	_, _ = svc.Purge(ctx, "default", 7*24*time.Hour)
//
// # Replay
//
// Replaying moves the job back to pending with a zero attempt count. The
// job keeps its id, priority and original admission order.
package dlq
