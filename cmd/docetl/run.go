package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/goccy/go-yaml"
	"github.com/spf13/cobra"

	"github.com/docetl-project/docetl/internal/batch"
	"github.com/docetl-project/docetl/internal/domain"
	"github.com/docetl-project/docetl/internal/logging"
)

func runCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run <pipeline-config.json>",
		Short: "Execute a pipeline against its discovered input documents.",
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
			if err := eng.manager.Create(pipelineCfg); err != nil {
				return fmt.Errorf("registering pipeline: %w", err)
			}

			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			ctx = logging.WithLogger(ctx, logger)

			documentPaths, err := batch.Discover(".", cfg.InputFiles)
			if err != nil {
				return err
			}

			run, err := eng.manager.Execute(ctx, pipelineCfg.ID, documentPaths, nil)
			if err != nil {
				return err
			}

			logging.Info(ctx, "pipeline run finished",
				"pipeline_id", pipelineCfg.ID, "run_id", run.ID, "status", string(run.Status),
				"processed", run.Counters.Processed, "errors", run.Counters.Error)

			if run.Status == domain.RunFailed {
				return fmt.Errorf("pipeline run %s failed: %d errors", run.ID, run.Counters.Error)
			}
			return nil
		},
	}

	return cmd
}

// loadPipelineConfig reads a PipelineConfig from path, authored as
// either JSON (the canonical wire format) or YAML (an authoring
// convenience, mirroring dagu's own DAGs being hand-authored in YAML),
// selected by file extension.
func loadPipelineConfig(path string) (*domain.PipelineConfig, error) {
	body, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading pipeline config %s: %w", path, err)
	}

	var cfg domain.PipelineConfig
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(body, &cfg); err != nil {
			return nil, fmt.Errorf("decoding pipeline config %s: %w", path, err)
		}
	default:
		if err := json.Unmarshal(body, &cfg); err != nil {
			return nil, fmt.Errorf("decoding pipeline config %s: %w", path, err)
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid pipeline config %s: %w", path, err)
	}
	return &cfg, nil
}
