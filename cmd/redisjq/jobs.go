package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/flaneurtv/redisjq/job"
)

func (a *app) addCmd() *cobra.Command {
	var codec string
	cmd := &cobra.Command{
		Use:   "add [payload|-]",
		Short: `Admit a batch of the form {"jobs": [...]}, all or nothing`,
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			payload, err := readPayload(cmd, args)
			if err != nil {
				return fmt.Errorf("read payload: %w", err)
			}
			ok, err := a.eng.AddJobWithCodec(cmd.Context(), payload, job.CodecByName(codec))
			fmt.Fprintln(cmd.OutOrStdout(), ok)
			return err
		},
	}
	cmd.Flags().StringVar(&codec, "codec", job.CodecNameJSON, "payload encoding: json or msgpack")
	return cmd
}

func (a *app) dispatchCmd() *cobra.Command {
	var lease, wait time.Duration
	cmd := &cobra.Command{
		Use:   "dispatch <queue>",
		Short: "Lease the next job of a queue and print it, or null",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			j, err := a.eng.DispatchJobWait(cmd.Context(), args[0], lease, wait)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), j)
		},
	}
	cmd.Flags().DurationVar(&lease, "lease", 0, "lease duration (default: --default-lease)")
	cmd.Flags().DurationVar(&wait, "wait", 0, "wait this long for a job when the queue is empty")
	return cmd
}

func (a *app) ackCmd() *cobra.Command {
	var token string
	cmd := &cobra.Command{
		Use:   "ack <job-id>",
		Short: "Acknowledge a leased job",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var err error
			if token == "" {
				_, err = a.eng.AckJob(cmd.Context(), args[0])
			} else {
				err = a.eng.AckLease(cmd.Context(), args[0], token)
			}
			fmt.Fprintln(cmd.OutOrStdout(), err == nil)
			return err
		},
	}
	cmd.Flags().StringVar(&token, "token", "", "lease token; when set, only its holder may ack")
	return cmd
}

func (a *app) nackCmd() *cobra.Command {
	var (
		token   string
		reason  string
		requeue bool
	)
	cmd := &cobra.Command{
		Use:   "nack <job-id>",
		Short: "Release a leased job and print the state it moved to",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			state, err := a.eng.NackLease(cmd.Context(), args[0], token, requeue, reason)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), state)
			return nil
		},
	}
	cmd.Flags().StringVar(&token, "token", "", "lease token; when set, only its holder may nack")
	cmd.Flags().StringVar(&reason, "error", "", "error recorded on the job")
	cmd.Flags().BoolVar(&requeue, "requeue", false, "return the job to pending while attempts remain")
	return cmd
}

func (a *app) extendCmd() *cobra.Command {
	var (
		token    string
		lease    time.Duration
		progress int
	)
	cmd := &cobra.Command{
		Use:   "extend <job-id>",
		Short: "Renew a lease, optionally reporting progress",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			var (
				expiry time.Time
				err    error
			)
			if cmd.Flags().Changed("progress") {
				expiry, err = a.eng.ReportProgress(ctx, args[0], token, progress)
			} else {
				expiry, err = a.eng.ExtendLease(ctx, args[0], token, lease)
			}
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), expiry.Format(time.RFC3339Nano))
			return nil
		},
	}
	cmd.Flags().StringVar(&token, "token", "", "lease token")
	cmd.Flags().DurationVar(&lease, "lease", 0, "new lease from now (default: --default-lease)")
	cmd.Flags().IntVar(&progress, "progress", 0, "progress to record; renews for the default lease")
	return cmd
}

func (a *app) getCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "get <job-id>",
		Short: "Print a job record",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			j, err := a.eng.GetJob(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), j)
		},
	}
}

func (a *app) listCmd() *cobra.Command {
	var (
		state  string
		limit  int
		offset int
	)
	cmd := &cobra.Command{
		Use:   "list <queue>",
		Short: "List jobs of a queue in one state, one JSON record per line",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			st := job.State(state)
			if !st.Valid() {
				return fmt.Errorf("invalid --state %q", state)
			}
			jobs, err := a.eng.ListJobs(cmd.Context(), args[0], st, job.ListOpts{Limit: limit, Offset: offset})
			if err != nil {
				return err
			}
			for _, j := range jobs {
				if err := printJSON(cmd.OutOrStdout(), j); err != nil {
					return err
				}
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&state, "state", string(job.StatePending), "pending, leased, failed or dead")
	cmd.Flags().IntVar(&limit, "limit", 100, "maximum jobs to print, 0 for all")
	cmd.Flags().IntVar(&offset, "offset", 0, "jobs to skip")
	return cmd
}

func (a *app) statsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stats [queue]",
		Short: "Print per-state counts of a queue, or of every queue",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			queues := args
			if len(queues) == 0 {
				var err error
				if queues, err = a.eng.Queues(ctx); err != nil {
					return err
				}
			}
			out := make(map[string]job.Counts, len(queues))
			for _, q := range queues {
				c, err := a.eng.Stats(ctx, q)
				if err != nil {
					return err
				}
				out[q] = c
			}
			return printJSON(cmd.OutOrStdout(), out)
		},
	}
}

func (a *app) sweepCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sweep",
		Short: "Reclaim expired leases of every queue once",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			res, err := a.eng.Sweep(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "requeued %d, dead %d\n", res.Requeued, res.Dead)
			return nil
		},
	}
}

func (a *app) workersCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "workers <queue>",
		Short: "List workers currently idle on a queue",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ws, err := a.eng.Workers().Active(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			for _, w := range ws {
				fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\n", w.ID, w.LastSeen.Format(time.RFC3339))
			}
			return nil
		},
	}
}
