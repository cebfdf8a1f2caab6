// Package engine wires the redisjq subsystems together and provides the
// application-level API of the queue.
//
// The root redisjq package holds only configuration and errors so that
// every subsystem can import it. Engine sits above the subsystems (job,
// store, lease, dlq, cluster, worker) and below the application.
//
// # Building an Engine
//
//	client := goredis.NewClient(&goredis.Options{Addr: cfg.RedisAddr})
//	eng, err := engine.New(redisstore.New(client, redisstore.WithKeyPrefix(cfg.KeyPrefix)),
//	    engine.WithConfig(cfg),
//	    engine.WithLogger(logger),
//	    engine.WithBackoff(backoff.NewExponentialWithJitter(time.Second, time.Minute)),
//	)
//
// # Producing
//
//	ok, err := eng.AddJob(ctx, []byte(`{"jobs":[{"id":"a1","queue_name":"test1","priority":"1","command":"ls -l"}]}`))
//
// Admission is all-or-nothing: a batch with one invalid descriptor, a
// duplicate id or a full queue writes nothing.
//
// # Consuming by hand
//
//	j, err := eng.DispatchJob(ctx, "test1", 30*time.Second)
//	// run j.Command somewhere
//	err = eng.AckLease(ctx, j.ID, j.LeaseToken)
//
// # Consuming with the worker pool
//
//	eng.Handle("test1", func(ctx context.Context, j *job.Job) error {
//	    return run(ctx, j.Command)
//	})
//	_ = eng.Start(ctx)
//	defer eng.Stop(ctx)
//
// # Options
//
//   - [WithConfig]: queues, leases, sweep and retention settings
//   - [WithLogger]: structured logger for all subsystems
//   - [WithExtension]: register a lifecycle extension
//   - [WithMiddleware]: add a middleware to the handler chain
//   - [WithBackoff]: delay requeued jobs after a nack
//   - [WithQueueConfig]: local per-queue rate limits and concurrency
//   - [WithTracerProvider], [WithMeterProvider]: OpenTelemetry providers
package engine
