package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"papercast/internal/api"
)

func newJobsCommand(ctx *commandContext) *cobra.Command {
	jobsCmd := &cobra.Command{
		Use:   "jobs",
		Short: "Inspect and manage episode jobs",
	}

	jobsCmd.AddCommand(newJobsListCommand(ctx))
	jobsCmd.AddCommand(newJobsRetryCommand(ctx))
	jobsCmd.AddCommand(newJobsRemoveCommand(ctx))
	jobsCmd.AddCommand(newJobsClearCommand(ctx))

	return jobsCmd
}

func newJobsListCommand(ctx *commandContext) *cobra.Command {
	var statuses []string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List jobs",
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := ctx.client()
			if err != nil {
				return err
			}
			list, err := client.List(statuses)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if len(list.Jobs) == 0 {
				fmt.Fprintln(out, "No jobs")
				return nil
			}
			rows := make([][]string, 0, len(list.Jobs))
			for _, view := range list.Jobs {
				rows = append(rows, []string{
					strconv.FormatInt(view.ID, 10),
					view.Token,
					view.Title,
					view.Style,
					view.Status,
					describeProgress(view),
				})
			}
			fmt.Fprintln(out, renderTable(
				[]tableColumn{
					{Title: "ID", Numeric: true},
					{Title: "Token"},
					{Title: "Title"},
					{Title: "Style"},
					{Title: "Status"},
					{Title: "Progress"},
				},
				rows,
			))
			return nil
		},
	}

	cmd.Flags().StringSliceVar(&statuses, "status", nil, "Filter by status (repeatable)")
	return cmd
}

func newJobsRetryCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "retry [token]",
		Short: "Retry a failed job, or every failed job when no token is given",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := ctx.client()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if len(args) == 1 {
				view, err := client.Retry(args[0])
				if err != nil {
					return err
				}
				fmt.Fprintf(out, "Job %s requeued (%s)\n", view.Token, view.Status)
				return nil
			}
			count, err := client.RetryAll()
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "Requeued %d failed job(s)\n", count)
			return nil
		},
	}
}

func newJobsRemoveCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "remove <token>",
		Short: "Remove a job",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := ctx.client()
			if err != nil {
				return err
			}
			if err := client.Remove(args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Job %s removed\n", args[0])
			return nil
		},
	}
}

func newJobsClearCommand(ctx *commandContext) *cobra.Command {
	var failed bool
	var all bool

	cmd := &cobra.Command{
		Use:   "clear",
		Short: "Clear completed jobs (or failed/all with flags)",
		RunE: func(cmd *cobra.Command, args []string) error {
			mode := api.ClearCompletedMode
			switch {
			case all:
				mode = api.ClearAllMode
			case failed:
				mode = api.ClearFailedMode
			}
			client, err := ctx.client()
			if err != nil {
				return err
			}
			count, err := client.Clear(string(mode))
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Cleared %d job(s)\n", count)
			return nil
		},
	}

	cmd.Flags().BoolVar(&failed, "failed", false, "Clear failed jobs instead of completed ones")
	cmd.Flags().BoolVar(&all, "all", false, "Clear every job regardless of status")
	return cmd
}
