package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/docetl-project/docetl/internal/logging"
)

func scheduleCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "schedule <pipeline-config.json>",
		Short: "Register a pipeline's cron schedule and block running it until interrupted.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := loadConfigAndLogger(cmd)
			if err != nil {
				return err
			}

			eng, err := buildEngine(cfg, logger)
			if err != nil {
				return err
			}
			defer eng.Close()

			pipelineCfg, err := loadPipelineConfig(args[0])
			if err != nil {
				return err
			}
			if pipelineCfg.Schedule == "" {
				return fmt.Errorf("pipeline %s has no schedule configured", pipelineCfg.Name)
			}
			if err := eng.manager.Create(pipelineCfg); err != nil {
				return fmt.Errorf("registering pipeline: %w", err)
			}
			if _, err := eng.sched.Add(pipelineCfg.ID, pipelineCfg.Schedule); err != nil {
				return fmt.Errorf("registering schedule: %w", err)
			}

			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			ctx = logging.WithLogger(ctx, logger)

			eng.monitor.Start(ctx)
			eng.sched.Start()
			logging.Info(ctx, "scheduler started", "pipeline_id", pipelineCfg.ID, "schedule", pipelineCfg.Schedule)

			<-ctx.Done()
			<-eng.sched.Stop().Done()
			return nil
		},
	}
}
