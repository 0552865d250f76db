package main

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"papercast/internal/api"
	"papercast/internal/jobs"
)

func newSubmitCommand(ctx *commandContext) *cobra.Command {
	var title string
	var style string
	var speakers []string
	var wait bool
	var waitTimeout time.Duration

	cmd := &cobra.Command{
		Use:   "submit <file>",
		Short: "Submit a source document for episode generation",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := filepath.Abs(args[0])
			if err != nil {
				return fmt.Errorf("resolve source path: %w", err)
			}

			client, err := ctx.client()
			if err != nil {
				return err
			}
			view, err := client.Submit(api.SubmitRequest{
				Path:     path,
				Title:    title,
				Style:    style,
				Speakers: speakers,
			})
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Submitted %q as job %s (style %s)\n", view.Title, view.Token, view.Style)

			if !wait {
				fmt.Fprintf(out, "Track progress with `papercast show %s`\n", view.Token)
				return nil
			}

			done, err := client.WaitForStatus(view.Token, string(jobs.StatusCompleted), waitTimeout)
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "Episode ready: %s\n", done.EpisodePath)
			if done.Report != nil {
				fmt.Fprintf(out, "Verified %d of %d content lines with %d rewrites\n",
					done.Report.VerifiedLines, done.Report.ContentLines, done.Report.RewritesUsed)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&title, "title", "t", "", "Episode title (defaults to the document title)")
	cmd.Flags().StringVarP(&style, "style", "s", "", "Episode style (defaults to the configured style)")
	cmd.Flags().StringSliceVar(&speakers, "speaker", nil, "Speaker roster (repeatable; defaults to the configured roster)")
	cmd.Flags().BoolVarP(&wait, "wait", "w", false, "Block until the episode completes")
	cmd.Flags().DurationVar(&waitTimeout, "wait-timeout", 10*time.Minute, "How long --wait polls before giving up")
	return cmd
}
