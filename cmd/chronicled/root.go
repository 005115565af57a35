package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"chronicle/internal/analysis"
	"chronicle/internal/config"
	"chronicle/internal/daemon"
	"chronicle/internal/logging"
	"chronicle/internal/notify"
	"chronicle/internal/pipeline"
	"chronicle/internal/recording"
	"chronicle/internal/store"
	"chronicle/internal/transcribe"
)

func newRootCommand() *cobra.Command {
	var configFlag string

	cmd := &cobra.Command{
		Use:           "chronicled",
		Short:         "Chronicle session processing daemon",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), configFlag)
		},
	}
	cmd.Flags().StringVarP(&configFlag, "config", "c", "", "Configuration file path")
	return cmd
}

func run(parent context.Context, configPath string) error {
	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, path, exists, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if err := cfg.EnsureDirectories(); err != nil {
		return fmt.Errorf("ensure directories: %w", err)
	}

	logger, err := logging.NewFromConfig(cfg)
	if err != nil {
		return fmt.Errorf("init logging: %w", err)
	}
	logger.Info("configuration loaded",
		logging.String("path", path),
		logging.Bool("from_file", exists),
	)

	st, err := store.Open(cfg)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer st.Close()

	source, err := recording.NewExecSource(cfg.Recording.CaptureCommand)
	if err != nil {
		return fmt.Errorf("init capture source: %w", err)
	}
	recorder := recording.NewManager(cfg, st, source, logger)

	transcriber := transcribe.NewClient(cfg.Transcription, logger)
	analyzer := analysis.NewClient(cfg.Analysis, logger)
	notifier := notify.NewService(cfg, logger)

	processor := pipeline.NewProcessor(cfg, st, transcriber, analyzer, notifier, logger)
	dispatcher := pipeline.NewDispatcher(processor, cfg.Workflow.WorkerCount, logger)

	d, err := daemon.New(cfg, st, recorder, dispatcher, logger)
	if err != nil {
		return err
	}
	d.RegisterHealthCheck("transcription", transcriber)
	d.RegisterHealthCheck("analysis", analyzer)
	if err := d.Start(ctx); err != nil {
		return err
	}

	<-ctx.Done()
	logger.Info("shutdown signal received")
	d.Stop()
	return nil
}
