package main

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/docetl-project/docetl/internal/batch"
	"github.com/docetl-project/docetl/internal/config"
	"github.com/docetl-project/docetl/internal/dispatcher"
	"github.com/docetl-project/docetl/internal/domain"
	"github.com/docetl-project/docetl/internal/errs"
	"github.com/docetl-project/docetl/internal/executor"
	"github.com/docetl-project/docetl/internal/exporters"
	"github.com/docetl-project/docetl/internal/loaders"
	"github.com/docetl-project/docetl/internal/logging"
	"github.com/docetl-project/docetl/internal/monitor"
	"github.com/docetl-project/docetl/internal/pipeline"
	"github.com/docetl-project/docetl/internal/recovery"
	"github.com/docetl-project/docetl/internal/scheduler"
	"github.com/docetl-project/docetl/internal/store"
)

// engine bundles every long-lived collaborator cmd/docetl's
// subcommands share once they've loaded Config.
type engine struct {
	cfg     *config.Config
	logger  logging.Logger
	store   *store.Store
	manager *pipeline.Manager
	monitor *monitor.Monitor
	sched   *scheduler.Scheduler
}

// schedulerRunner adapts pipeline.Manager to scheduler.Runner. A
// scheduled pipeline names where to rediscover its input documents
// each firing via SourceConfig["input_path"]/["input_patterns"] (there
// being no per-firing document list to pass, unlike the interactive
// run command's --input-files).
type schedulerRunner struct{ manager *pipeline.Manager }

func (r schedulerRunner) Run(ctx context.Context, pipelineID string) error {
	cfg, err := r.manager.Get(pipelineID)
	if err != nil {
		return err
	}

	sourcePath, _ := cfg.SourceConfig["input_path"].(string)
	if sourcePath == "" {
		return fmt.Errorf("scheduled pipeline %s has no source_config.input_path to rediscover documents from", cfg.ID)
	}
	var patterns []string
	if raw, ok := cfg.SourceConfig["input_patterns"].([]string); ok {
		patterns = raw
	}

	documentPaths, err := batch.Discover(sourcePath, patterns)
	if err != nil {
		return fmt.Errorf("discovering documents for scheduled pipeline %s: %w", cfg.ID, err)
	}

	run, err := r.manager.Execute(ctx, pipelineID, documentPaths, nil)
	if err != nil {
		return err
	}
	if run.Status == domain.RunFailed {
		return fmt.Errorf("scheduled run of %s failed", cfg.ID)
	}
	return nil
}

// buildEngine opens the metadata store and wires the manager,
// dispatcher, executor, recovery handler, monitor, and scheduler
// together the way newClient/newDataStores wire up a request.
func buildEngine(cfg *config.Config, logger logging.Logger) (*engine, error) {
	st, err := store.Open(cfg.DBPath, cfg.MasterKey)
	if err != nil {
		return nil, fmt.Errorf("opening metadata store: %w", err)
	}

	// A fresh registry per engine, not prometheus.DefaultRegisterer:
	// each CLI invocation is its own process in production, but
	// buildEngine also runs repeatedly within one test binary, and
	// MustRegister panics on a second registration of the same gauge
	// names against a shared registerer.
	mon := monitor.New(prometheus.NewRegistry())
	mon.DiskPath = cfg.DiskPath

	exec := executor.New(loaders.DefaultFactory())
	exec.Scripts = st
	exec.Exporters = exporters.Factory{}
	exec.Recovery = defaultRecoveryHandler(logger)
	exec.Logger = logger

	disp := dispatcher.New(exec)
	disp.Monitor = mon

	mgr := pipeline.New()
	mgr.Dispatcher = disp
	mgr.Recorder = st
	mgr.Logger = logger

	sched := scheduler.New(schedulerRunner{manager: mgr})
	sched.Events = st

	return &engine{cfg: cfg, logger: logger, store: st, manager: mgr, monitor: mon, sched: sched}, nil
}

func (e *engine) Close() error {
	e.monitor.Stop()
	return e.store.Close()
}

// defaultRecoveryHandler wires a Handler with the strategies available
// without a document-specific fallback collaborator: skip and
// rollback mark the attempt successful and let the run continue as
// PARTIAL_SUCCESS; retry has no standalone signature for re-invoking a
// whole pipeline (Action only carries documentPath, not the
// PipelineConfig it came from), so it reports the document as still
// failing and lets the priority list fall through to skip. Format-
// aware fallback (OCR, format conversion) has no collaborator wired in
// this module; Fallback is left nil so Handler.Recover falls through
// past it too.
func defaultRecoveryHandler(logger logging.Logger) *recovery.Handler {
	return &recovery.Handler{
		Retry: func(ctx context.Context, documentPath string, cause error) error {
			return errs.New(errs.KindUnknown, "retry strategy not wired for "+documentPath, cause)
		},
		Skip:     func(ctx context.Context, documentPath string, cause error) error { return nil },
		Rollback: func(ctx context.Context, documentPath string, cause error) error { return nil },
		Logger:   logger,
	}
}
