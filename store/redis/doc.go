// Package redis implements store.Store on Redis. Every job is a Hash;
// queues are Sorted Sets and each state transition is a single Lua script,
// so any number of engines may share one database.
//
// Keys, under the configurable prefix (default "redisjq:"):
//
//	job:{id}        Hash of the job record
//	queue:{q}       pending jobs, score = priority, member = seq:id
//	leased:{q}      leased job ids, score = lease expiry (ms)
//	delayed:{q}     requeued jobs waiting out a backoff, score = ready time
//	dead:{q}        failed and dead job ids, score = time of death
//	notify:{q}      wake-up list for blocked dispatchers
//	idle:{q}        idle worker ids, score = last report
//	queues          every queue name
//	seq             admission counter
//
// The caller owns the client lifecycle:
//
//	client := goredis.NewClient(&goredis.Options{Addr: "localhost:6379"})
//	s := redis.New(client, redis.WithKeyPrefix("jobs:"))
//	if err := s.Ping(ctx); err != nil { ... }
//
// WaitForJob blocks in BLPOP slices of at most one second and checks the
// context between them, so a cancelled wait returns within a slice. A
// client built with ContextTimeoutEnabled also aborts the slice in flight.
package redis
