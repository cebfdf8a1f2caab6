// Package queue applies local, per-process limits to the queues a worker
// pool polls.
//
// Dispatch order and exclusivity live in the shared store. What a single
// process may still want is to take fewer jobs of a queue than it could:
// a cap on concurrently running jobs, or a steady dispatch rate.
//
//	queue.Config{
//	    Name:           "render",
//	    MaxConcurrency: 2,  // at most 2 render jobs in this pool
//	    RateLimit:      5,  // at most 5 dispatches/s
//	    RateBurst:      10,
//	}
//
// [Manager] is consulted by the worker pool before every dispatch. It uses
// a token-bucket limiter (golang.org/x/time/rate) and an active-count gate:
//
//	if m.Acquire(name) {
//	    defer m.Release(name)
//	    // dispatch and run one job
//	}
//
// Queues without a [Config] are never refused.
package queue
