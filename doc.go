// Package redisjq provides a priority-ordered, persistent job queue backed
// by Redis. Producers admit batches of jobs, each carrying an opaque command
// string; consumers claim jobs under a time-bounded lease and acknowledge
// them when done.
//
// redisjq is designed as a library. Every state transition is a single
// server-side Lua script, so any number of producer and consumer processes
// may share one Redis instance without client-side locking.
//
// # Quick Start
//
//	client := goredis.NewClient(&goredis.Options{Addr: "localhost:6379"})
//	eng, err := engine.New(redisstore.New(client))
//
//	ok, err := eng.AddJob(ctx, []byte(`{"jobs":[{"id":"a1","queue_name":"test1","priority":"1","command":"ls -l"}]}`))
//	j, err := eng.DispatchJob(ctx, "test1", 30*time.Second)
//	ok, err = eng.AckJob(ctx, j.ID)
//
// # Ordering
//
// Numerically smaller priorities are dispatched first. Jobs of equal
// priority leave in admission order.
//
// # Recovery
//
// A leased job whose lease expires without an ack returns to pending, or is
// dead-lettered once it has used up its attempts. The lease sweeper and, by
// default, every dispatch perform that reclaim.
//
// The root package holds the shared Config and the error taxonomy. The
// engine package wires the subsystems together.
package redisjq
