// Package store defines the aggregate persistence interface.
//
// Each subsystem (job, dlq, cluster) defines its own store interface. The
// composite [Store] composes them all, so a backend need only implement
// Store to satisfy every subsystem's persistence contract.
//
// # Available Backends
//
//   - store/redis: the production backend, one Lua script per transition
//   - store/memory: in-process backend for development and tests
//
// # Usage
//
//	client := goredis.NewClient(&goredis.Options{Addr: "localhost:6379"})
//	s := redis.New(client)
//	if err := s.Ping(ctx); err != nil {
//	    log.Fatal(err)
//	}
//
//	eng, err := engine.New(s)
package store
