package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/flaneurtv/redisjq/dlq"
)

func (a *app) dlqCmd() *cobra.Command {
	dlqCmd := &cobra.Command{
		Use:   "dlq",
		Short: "Inspect and recover failed and dead jobs",
	}

	var limit, offset int
	listCmd := &cobra.Command{
		Use:   "list <queue>",
		Short: "List dead-lettered jobs of a queue, oldest first",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			entries, err := a.eng.DLQ().List(cmd.Context(), args[0], dlq.ListOpts{Limit: limit, Offset: offset})
			if err != nil {
				return err
			}
			for _, e := range entries {
				if err := printJSON(cmd.OutOrStdout(), e); err != nil {
					return err
				}
			}
			return nil
		},
	}
	listCmd.Flags().IntVar(&limit, "limit", 100, "maximum entries to print, 0 for all")
	listCmd.Flags().IntVar(&offset, "offset", 0, "entries to skip")

	var all bool
	replayCmd := &cobra.Command{
		Use:   "replay <job-id> | --all <queue>",
		Short: "Move dead-lettered jobs back to pending with attempts reset",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if all {
				n, err := a.eng.DLQ().ReplayAll(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "replayed %d\n", n)
				return nil
			}
			if err := a.eng.DLQ().Replay(cmd.Context(), args[0]); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "replayed 1")
			return nil
		},
	}
	replayCmd.Flags().BoolVar(&all, "all", false, "replay every dead-lettered job of the queue")

	var olderThan time.Duration
	purgeCmd := &cobra.Command{
		Use:   "purge <queue>",
		Short: "Delete dead-lettered jobs of a queue",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			n, err := a.eng.DLQ().Purge(cmd.Context(), args[0], olderThan)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "purged %d\n", n)
			return nil
		},
	}
	purgeCmd.Flags().DurationVar(&olderThan, "older-than", 0, "only purge jobs dead for at least this long")

	dlqCmd.AddCommand(listCmd, replayCmd, purgeCmd)
	return dlqCmd
}
