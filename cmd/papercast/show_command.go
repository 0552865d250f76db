package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
)

func newShowCommand(ctx *commandContext) *cobra.Command {
	var transcript bool

	cmd := &cobra.Command{
		Use:   "show <token>",
		Short: "Display one job with its per-segment verification state",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := ctx.client()
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if transcript {
				text, err := client.Transcript(args[0])
				if err != nil {
					return err
				}
				fmt.Fprint(out, text)
				return nil
			}

			view, err := client.Describe(args[0])
			if err != nil {
				return err
			}

			colorize := shouldColorize(out)
			for _, line := range renderSectionHeader(view.Title, colorize) {
				fmt.Fprintln(out, line)
			}
			fmt.Fprintln(out, renderStatusLine("Status", jobStatusKind(view.Status), view.Status, colorize))
			fmt.Fprintln(out, renderStatusLine("Style", statusInfo, view.Style, colorize))
			if progress := describeProgress(view); progress != "" {
				fmt.Fprintln(out, renderStatusLine("Progress", statusInfo, progress, colorize))
			}
			if view.ErrorMessage != "" {
				fmt.Fprintln(out, renderStatusLine("Error", statusError, view.ErrorMessage, colorize))
			}
			if view.EpisodePath != "" {
				fmt.Fprintln(out, renderStatusLine("Episode", statusOK, view.EpisodePath, colorize))
			}
			if view.TranscriptPath != "" {
				fmt.Fprintln(out, renderStatusLine("Transcript", statusOK, view.TranscriptPath, colorize))
			}
			if view.Report != nil {
				summary := fmt.Sprintf("%d/%d lines verified, %d rewrites, %s audio",
					view.Report.VerifiedLines, view.Report.ContentLines,
					view.Report.RewritesUsed, formatSeconds(view.Report.EpisodeSeconds))
				kind := statusOK
				if view.Report.UnsupportedLines > 0 {
					kind = statusWarn
				}
				fmt.Fprintln(out, renderStatusLine("Verification", kind, summary, colorize))
			}

			if len(view.Segments) > 0 {
				fmt.Fprintln(out)
				rows := make([][]string, 0, len(view.Segments))
				for _, segment := range view.Segments {
					rows = append(rows, []string{
						strconv.Itoa(segment.Index),
						segment.Status,
						strconv.Itoa(segment.Lines),
						strconv.Itoa(segment.Rewrites),
						formatFraction(segment.VerifiedFraction),
					})
				}
				fmt.Fprintln(out, renderTable(
					[]tableColumn{
						{Title: "Segment", Numeric: true},
						{Title: "Status"},
						{Title: "Lines", Numeric: true},
						{Title: "Rewrites", Numeric: true},
						{Title: "Verified", Numeric: true},
					},
					rows,
				))
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&transcript, "transcript", false, "Print the episode transcript instead of job details")
	return cmd
}
