package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"

	"github.com/spf13/cobra"

	"papercast/internal/assembler"
	"papercast/internal/capability"
	"papercast/internal/capability/provider"
	"papercast/internal/config"
	"papercast/internal/daemon"
	"papercast/internal/indexer"
	"papercast/internal/jobs"
	"papercast/internal/logging"
	"papercast/internal/planner"
	"papercast/internal/scriptgen"
	"papercast/internal/workflow"
)

func newDaemonCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "daemon",
		Short: "Run the papercast daemon in the foreground",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDaemonProcess(cmd.Context(), ctx)
		},
	}
}

func runDaemonProcess(cmdCtx context.Context, ctx *commandContext) error {
	signalCtx, cancel := signal.NotifyContext(cmdCtx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	cfg, err := ctx.ensureConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if err := cfg.EnsureDirectories(); err != nil {
		return fmt.Errorf("ensure directories: %w", err)
	}

	logger, err := logging.NewFromSettings(cfg.Logging.Level, cfg.Logging.Format, cfg.Paths.LogDir, "papercast.log")
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}

	pidPath := filepath.Join(cfg.Paths.LogDir, "papercast.pid")
	if err := writePIDFile(pidPath); err != nil {
		return fmt.Errorf("write pid file: %w", err)
	}
	defer os.Remove(pidPath)

	store, err := jobs.Open(cfg)
	if err != nil {
		logger.Error("open job store", logging.Error(err))
		return err
	}
	defer store.Close()

	caps, err := provider.New(cfg)
	if err != nil {
		return fmt.Errorf("build capability set: %w", err)
	}

	manager := workflow.NewManager(cfg, store, logger)
	registerStages(manager, cfg, store, caps, logger)

	d, err := daemon.New(cfg, store, logger, manager, caps)
	if err != nil {
		return fmt.Errorf("create daemon: %w", err)
	}
	defer d.Close()

	if err := d.Start(signalCtx); err != nil {
		return err
	}

	<-signalCtx.Done()
	logger.Info("papercast daemon shutting down")
	return nil
}

func registerStages(mgr *workflow.Manager, cfg *config.Config, store *jobs.Store, caps capability.Set, logger *slog.Logger) {
	mgr.ConfigureStages(workflow.StageSet{
		Indexer:   indexer.NewStage(cfg, store, caps.Embedder, logger),
		Planner:   planner.NewStage(cfg, store, caps, logger),
		Scriptgen: scriptgen.NewStage(cfg, store, caps, logger),
		Assembler: assembler.NewStage(cfg, store, caps.Synthesizer, logger),
	})
}

func writePIDFile(path string) error {
	if path == "" {
		return nil
	}
	value := strconv.Itoa(os.Getpid()) + "\n"
	return os.WriteFile(path, []byte(value), 0o644)
}
