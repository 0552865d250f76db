package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

func newReportCommand(ctx *commandContext) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "report <token>",
		Short: "Show the verification report for a job",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := ctx.client()
			if err != nil {
				return err
			}
			report, err := client.Report(args[0])
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if asJSON {
				encoder := json.NewEncoder(out)
				encoder.SetIndent("", "  ")
				return encoder.Encode(report)
			}

			rows := [][]string{
				{"Content lines", fmt.Sprintf("%d", report.ContentLines)},
				{"Verified lines", fmt.Sprintf("%d", report.VerifiedLines)},
				{"Unsupported lines", fmt.Sprintf("%d", report.UnsupportedLines)},
				{"Verified fraction", formatFraction(report.VerifiedFraction)},
				{"Rewrites used", fmt.Sprintf("%d", report.RewritesUsed)},
				{"Episode length", formatSeconds(report.EpisodeSeconds)},
			}
			fmt.Fprintln(out, renderTable([]tableColumn{{Title: "Metric"}, {Title: "Value", Numeric: true}}, rows))
			return nil
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "Emit the raw report as JSON")
	return cmd
}
