// Package memory implements store.Store in process memory. One mutex
// serializes every operation, which gives the same atomicity the Redis
// backend gets from Lua scripts. Dispatch order, lease checks, retention
// and dead-lettering match store/redis exactly; both run the storetest
// conformance suite.
//
// The memory store is meant for tests, the CLI's --memory mode and
// single-process deployments. Nothing is persisted.
package memory
