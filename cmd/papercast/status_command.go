package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"papercast/internal/api"
	"papercast/internal/jobs"
)

func newStatusCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show daemon and pipeline status",
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := ctx.client()
			if err != nil {
				return err
			}
			status, err := client.Status()
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			colorize := shouldColorize(out)

			for _, line := range renderSectionHeader("Daemon", colorize) {
				fmt.Fprintln(out, line)
			}
			runningKind := statusError
			if status.Running {
				runningKind = statusOK
			}
			fmt.Fprintln(out, renderStatusLine("Running", runningKind, fmt.Sprintf("pid %d", status.PID), colorize))
			fmt.Fprintln(out, renderStatusLine("Job database", statusInfo, status.JobDBPath, colorize))
			fmt.Fprintln(out, renderStatusLine("Lock file", statusInfo, status.LockFilePath, colorize))
			if status.Workflow.LastError != "" {
				fmt.Fprintln(out, renderStatusLine("Last error", statusError, status.Workflow.LastError, colorize))
			}

			fmt.Fprintln(out)
			for _, line := range renderSectionHeader("Stages", colorize) {
				fmt.Fprintln(out, line)
			}
			for _, health := range status.Workflow.StageHealth {
				kind := statusOK
				message := "ready"
				if !health.Ready {
					kind = statusError
					message = health.Detail
				}
				fmt.Fprintln(out, renderStatusLine(health.Name, kind, message, colorize))
			}

			if len(status.Preflight) > 0 {
				fmt.Fprintln(out)
				for _, line := range renderSectionHeader("Preflight", colorize) {
					fmt.Fprintln(out, line)
				}
				for _, check := range status.Preflight {
					kind := statusOK
					if !check.Passed {
						kind = statusError
					}
					fmt.Fprintln(out, renderStatusLine(check.Name, kind, check.Detail, colorize))
				}
			}

			fmt.Fprintln(out)
			for _, line := range renderSectionHeader("Jobs", colorize) {
				fmt.Fprintln(out, line)
			}
			rows := buildJobStatsRows(status.Workflow.JobStats)
			if len(rows) == 0 {
				fmt.Fprintln(out, statusIndent+"No jobs yet")
				return nil
			}
			fmt.Fprintln(out, renderTable([]tableColumn{{Title: "Status"}, {Title: "Count", Numeric: true}}, rows))
			return nil
		},
	}
}

// buildJobStatsRows orders stats by lifecycle position, skipping zero rows.
func buildJobStatsRows(stats map[string]int) [][]string {
	var rows [][]string
	for _, status := range jobs.AllStatuses() {
		count := stats[string(status)]
		if count == 0 {
			continue
		}
		rows = append(rows, []string{string(status), strconv.Itoa(count)})
	}
	return rows
}

func describeProgress(view api.JobView) string {
	parts := []string{view.Progress.Stage}
	if view.Progress.Percent > 0 {
		parts = append(parts, fmt.Sprintf("%.0f%%", view.Progress.Percent))
	}
	if view.Progress.Message != "" {
		parts = append(parts, view.Progress.Message)
	}
	return strings.Join(parts, " ")
}
