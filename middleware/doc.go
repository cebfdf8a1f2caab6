// Package middleware wraps the handler a worker runs for a leased job.
//
// A [Middleware] sees the job and a [Handler] continuing the chain. [Chain]
// composes several; the first one listed runs outermost. The engine
// installs, from the outside in:
//
//	Recover → Tracing → Metrics → Logging → [Timeout] → [LeaseDeadline] → user middleware → handler
//
// Timeout is installed when a handler timeout is configured. LeaseDeadline
// is only installed when heartbeats are disabled, since a renewed lease
// outlives the expiry the job was dispatched with.
package middleware
