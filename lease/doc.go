// Package lease recovers jobs whose consumer went away.
//
// A dispatched job carries a lease expiry. When the consumer neither
// acknowledges nor renews it in time, the [Sweeper] moves the job back to
// pending, or to the dead letter set once its attempt budget is spent.
// Dispatch may also reclaim expired leases of its own queue lazily, so the
// sweeper is what bounds recovery latency for queues nobody is polling.
//
//	s := lease.NewSweeper(store,
//	    lease.WithInterval(3*time.Second),
//	    lease.WithObserver(func(ctx context.Context, q string, r job.SweepResult) {
//	        // emit events
//	    }),
//	)
//	_ = s.Start(ctx)
//	defer s.Stop(ctx)
package lease
