// Package cluster keeps the idle-worker registry shared by every consumer
// of a queue.
//
// A worker calls [Registry.Idle] before it blocks waiting for a job and
// [Registry.Busy] once it holds a lease. Reports expire after the idle
// expiry (9s by default), so a crashed worker drops out of
// [Registry.Active] on its own; [Registry.Purge] removes the stale entries
// from the store and runs on every sweep.
//
// The registry is advisory. Dispatch never depends on it; operators use it
// to see how many consumers are waiting on each queue.
package cluster
