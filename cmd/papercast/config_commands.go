package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"papercast/internal/config"
)

func newConfigCommand() *cobra.Command {
	configCmd := &cobra.Command{
		Use:   "config",
		Short: "Configuration utilities",
	}

	configCmd.AddCommand(newConfigInitCommand())
	configCmd.AddCommand(newConfigShowCommand())
	configCmd.AddCommand(newConfigValidateCommand())

	return configCmd
}

func newConfigInitCommand() *cobra.Command {
	var targetPath string
	var overwrite bool

	cmd := &cobra.Command{
		Use:         "init",
		Short:       "Create a sample configuration file",
		Annotations: map[string]string{"skipConfigLoad": "true"},
		RunE: func(cmd *cobra.Command, args []string) error {
			target := strings.TrimSpace(targetPath)
			if target == "" {
				defaultPath, err := config.DefaultConfigPath()
				if err != nil {
					return fmt.Errorf("determine default config path: %w", err)
				}
				target = defaultPath
			} else {
				expanded, err := config.ExpandPath(target)
				if err != nil {
					return fmt.Errorf("resolve config path: %w", err)
				}
				target = expanded
			}

			dir := filepath.Dir(target)
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return fmt.Errorf("create config directory %q: %w", dir, err)
			}

			if !overwrite {
				if _, err := os.Stat(target); err == nil {
					return fmt.Errorf("config file already exists at %s (use --overwrite to replace it)", target)
				} else if !os.IsNotExist(err) {
					return fmt.Errorf("check config path: %w", err)
				}
			}

			if err := config.CreateSample(target); err != nil {
				return fmt.Errorf("create sample config: %w", err)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Wrote sample configuration to %s\n", target)
			fmt.Fprintln(out, "Set capability provider and API keys before running the daemon with a hosted backend.")
			return nil
		},
	}

	cmd.Flags().StringVarP(&targetPath, "path", "p", "", "Destination for the configuration file")
	cmd.Flags().BoolVar(&overwrite, "overwrite", false, "Overwrite existing configuration if present")
	return cmd
}

func newConfigShowCommand() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:         "show",
		Short:       "Print the resolved configuration",
		Annotations: map[string]string{"skipConfigLoad": "true"},
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, resolvedPath, exists, err := config.Load(configPath)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			source := "built-in defaults"
			if exists {
				source = resolvedPath
			}
			fmt.Fprintf(out, "Configuration source: %s\n\n", source)

			rows := [][]string{
				{"staging_dir", cfg.Paths.StagingDir},
				{"episode_dir", cfg.Paths.EpisodeDir},
				{"log_dir", cfg.Paths.LogDir},
				{"api_bind", cfg.Paths.APIBind},
				{"provider", cfg.Capabilities.Provider},
				{"style", cfg.Episode.Style},
				{"speakers", strings.Join(cfg.Episode.Speakers, ", ")},
				{"job_time_budget", fmt.Sprintf("%ds", cfg.Workflow.JobTimeBudget)},
				{"rewrite_budget", fmt.Sprintf("%d", cfg.Workflow.RewriteBudget)},
				{"rewrite_cap", fmt.Sprintf("%d", cfg.Scriptgen.RewriteCap)},
				{"min_verified_fraction", fmt.Sprintf("%.2f", cfg.Scriptgen.MinVerifiedFraction)},
				{"support_threshold", fmt.Sprintf("%.2f", cfg.Scriptgen.SupportThreshold)},
				{"log_level", cfg.Logging.Level},
				{"log_format", cfg.Logging.Format},
			}
			fmt.Fprintln(out, renderTable([]tableColumn{{Title: "Setting"}, {Title: "Value"}}, rows))
			return nil
		},
	}

	cmd.Flags().StringVarP(&configPath, "path", "p", "", "Configuration file to inspect")
	return cmd
}

func newConfigValidateCommand() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:         "validate",
		Short:       "Validate a configuration file",
		Annotations: map[string]string{"skipConfigLoad": "true"},
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, resolvedPath, exists, err := config.Load(configPath)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if !exists {
				fmt.Fprintln(out, "No configuration file found; defaults are in effect and valid.")
				return nil
			}
			if err := cfg.Validate(); err != nil {
				return fmt.Errorf("configuration at %s is invalid: %w", resolvedPath, err)
			}
			fmt.Fprintf(out, "Configuration at %s is valid (provider %s)\n", resolvedPath, cfg.Capabilities.Provider)
			return nil
		},
	}

	cmd.Flags().StringVarP(&configPath, "path", "p", "", "Configuration file to validate")
	return cmd
}
