package main

import (
	"context"
	"encoding/json"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/flaneurtv/redisjq/job"
)

// workCmd runs a worker pool whose handler prints each leased job as a
// JSON line and acknowledges it. Commands are never executed here.
func (a *app) workCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "work",
		Short: "Run a worker pool that prints leased jobs to stdout",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			var mu sync.Mutex
			enc := json.NewEncoder(cmd.OutOrStdout())
			a.eng.HandleDefault(func(_ context.Context, j *job.Job) error {
				mu.Lock()
				defer mu.Unlock()
				return enc.Encode(j)
			})

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			if err := a.eng.Start(ctx); err != nil {
				return err
			}
			<-ctx.Done()

			shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.ShutdownTimeout)
			defer cancel()
			return a.eng.Stop(shutdownCtx)
		},
	}
	flags := cmd.Flags()
	flags.StringSliceVar(&a.cfg.Queues, "queues", a.cfg.Queues, "queues to poll")
	flags.IntVar(&a.cfg.Concurrency, "concurrency", a.cfg.Concurrency, "worker goroutines")
	flags.DurationVar(&a.cfg.HeartbeatInterval, "heartbeat", a.cfg.HeartbeatInterval, "lease renewal interval, 0 to disable")
	flags.DurationVar(&a.cfg.HandlerTimeout, "handler-timeout", a.cfg.HandlerTimeout, "bound on a single handler run, 0 for none")
	flags.DurationVar(&a.cfg.SweepInterval, "sweep-interval", a.cfg.SweepInterval, "expired lease sweep interval, 0 to disable")
	return cmd
}
