// Package pipeline owns the lifecycle of a PipelineConfig: creation,
// partial update, soft-delete, validation, and the execute/cancel
// surface that fans a config out over a set of documents.
package pipeline

import (
	"context"
	"os"
	"sync"
	"time"

	"dario.cat/mergo"
	"github.com/google/uuid"

	"github.com/docetl-project/docetl/internal/dispatcher"
	"github.com/docetl-project/docetl/internal/domain"
	"github.com/docetl-project/docetl/internal/errs"
	"github.com/docetl-project/docetl/internal/logging"
)

// DocumentRunner executes one pipeline run for one document. Used for
// the synchronous, single-worker execution path.
// *executor.DocumentExecutor satisfies this directly.
type DocumentRunner interface {
	Execute(ctx context.Context, pipeline *domain.PipelineConfig, documentPath string) *domain.PipelineRun
}

// RunRecorder persists a finished PipelineRun. internal/store's
// metadata store satisfies this; a nil Recorder just skips persistence.
type RunRecorder interface {
	RecordRun(ctx context.Context, run *domain.PipelineRun) error
}

// Manager owns the in-memory set of PipelineConfigs and tracks which
// ones currently have an active run, rejecting update/delete/execute
// against a pipeline that is mid-run.
type Manager struct {
	mu          sync.Mutex
	configs     map[string]*domain.PipelineConfig
	activeRuns  map[string]*domain.PipelineRun
	cancelFuncs map[string]context.CancelFunc

	// Runner drives single-document, sequential execution. Dispatcher,
	// when set, fans multi-document runs out over the bounded pool
	// instead. Exactly one should normally be configured.
	Runner     DocumentRunner
	Dispatcher *dispatcher.Dispatcher
	Recorder   RunRecorder
	Logger     logging.Logger
}

func (m *Manager) logger(ctx context.Context) logging.Logger {
	if m.Logger != nil {
		return m.Logger
	}
	return logging.FromContext(ctx)
}

// New builds an empty Manager.
func New() *Manager {
	return &Manager{
		configs:     make(map[string]*domain.PipelineConfig),
		activeRuns:  make(map[string]*domain.PipelineRun),
		cancelFuncs: make(map[string]context.CancelFunc),
	}
}

// Create assigns an id if absent, sets Version to 1 and Active to true,
// validates cfg (shape, then graph/semantics), and registers it.
func (m *Manager) Create(cfg *domain.PipelineConfig) error {
	if cfg.ID == "" {
		cfg.ID = uuid.NewString()
	}
	cfg.Version = 1
	cfg.Active = true
	now := time.Now()
	cfg.CreatedAt = now
	cfg.UpdatedAt = now

	if err := validateConfig(cfg); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.configs[cfg.ID]; exists {
		return errs.New(errs.KindConfigInvalid, "pipeline id already exists: "+cfg.ID, nil)
	}
	m.configs[cfg.ID] = cfg
	return nil
}

// Get returns the stored config for id.
func (m *Manager) Get(id string) (*domain.PipelineConfig, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cfg, ok := m.configs[id]
	if !ok {
		return nil, errs.New(errs.KindConfigInvalid, "pipeline not found: "+id, nil)
	}
	return cfg, nil
}

// List returns every stored config, including soft-deleted ones.
func (m *Manager) List() []*domain.PipelineConfig {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*domain.PipelineConfig, 0, len(m.configs))
	for _, cfg := range m.configs {
		out = append(out, cfg)
	}
	return out
}

// Update merges patch onto the existing config with mergo (mirroring
// how the teacher merges DAG overrides), bumps the version, and
// re-validates the merged result. Rejected while pipelineID has an
// active run.
func (m *Manager) Update(pipelineID string, patch domain.PipelineConfig) (*domain.PipelineConfig, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, active := m.activeRuns[pipelineID]; active {
		return nil, errs.New(errs.KindConfigInvalid, "pipeline has an active run: "+pipelineID, nil)
	}
	existing, ok := m.configs[pipelineID]
	if !ok {
		return nil, errs.New(errs.KindConfigInvalid, "pipeline not found: "+pipelineID, nil)
	}

	merged := *existing
	if err := mergo.Merge(&merged, patch, mergo.WithOverride); err != nil {
		return nil, errs.New(errs.KindConfigInvalid, "merging pipeline update", err)
	}
	merged.ID = existing.ID
	merged.Version = existing.Version + 1
	merged.UpdatedAt = time.Now()

	if err := validateConfig(&merged); err != nil {
		return nil, err
	}

	m.configs[pipelineID] = &merged
	return &merged, nil
}

// SoftDelete flips Active off without removing the config. Rejected
// while pipelineID has an active run.
func (m *Manager) SoftDelete(pipelineID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, active := m.activeRuns[pipelineID]; active {
		return errs.New(errs.KindConfigInvalid, "pipeline has an active run: "+pipelineID, nil)
	}
	cfg, ok := m.configs[pipelineID]
	if !ok {
		return errs.New(errs.KindConfigInvalid, "pipeline not found: "+pipelineID, nil)
	}
	cfg.Active = false
	cfg.UpdatedAt = time.Now()
	return nil
}

// validateConfig runs the shape schema and then the domain-level
// graph/semantic validator, in that order.
func validateConfig(cfg *domain.PipelineConfig) error {
	if err := validateShape(cfg); err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return errs.New(errs.KindConfigInvalid, err.Error(), err)
	}
	return nil
}

// Execute registers pipelineID as active, runs every document path
// (via Dispatcher if configured, else sequentially through Runner),
// merges the per-document outcomes into one PipelineRun, finalizes its
// status, and records it. Rejected if the pipeline is inactive, not
// found, already has an active run, or references a document path that
// does not exist.
func (m *Manager) Execute(ctx context.Context, pipelineID string, documentPaths []string, runMetadata map[string]any) (*domain.PipelineRun, error) {
	m.mu.Lock()
	cfg, ok := m.configs[pipelineID]
	if !ok {
		m.mu.Unlock()
		return nil, errs.New(errs.KindConfigInvalid, "pipeline not found: "+pipelineID, nil)
	}
	if !cfg.Active {
		m.mu.Unlock()
		return nil, errs.New(errs.KindConfigInvalid, "pipeline is soft-deleted: "+pipelineID, nil)
	}
	if _, active := m.activeRuns[pipelineID]; active {
		m.mu.Unlock()
		return nil, errs.New(errs.KindConfigInvalid, "pipeline already has an active run: "+pipelineID, nil)
	}
	for _, p := range documentPaths {
		if _, statErr := os.Stat(p); statErr != nil {
			m.mu.Unlock()
			return nil, errs.New(errs.KindIOFailure, "document path does not exist: "+p, statErr)
		}
	}

	run := &domain.PipelineRun{
		ID:            uuid.NewString(),
		PipelineID:    pipelineID,
		StartTime:     time.Now(),
		Status:        domain.RunRunning,
		DocumentPaths: documentPaths,
		Metadata:      runMetadata,
	}
	execCtx, cancel := context.WithCancel(ctx)
	m.activeRuns[pipelineID] = run
	m.cancelFuncs[pipelineID] = cancel
	m.mu.Unlock()

	perDoc := m.runDocuments(execCtx, cfg, documentPaths)

	m.mu.Lock()
	defer m.mu.Unlock()
	cancel()
	delete(m.cancelFuncs, pipelineID)

	if _, stillActive := m.activeRuns[pipelineID]; !stillActive {
		// Cancel already finalized and removed this run while it was
		// in flight; leave its terminal status alone.
		return run, nil
	}
	delete(m.activeRuns, pipelineID)

	mergeDocumentRuns(run, perDoc)
	m.logFailedDocuments(ctx, run, perDoc)
	status := domain.RunCompleted
	switch {
	case run.Counters.Error > 0 && run.Counters.Success > 0:
		status = domain.RunPartialSuccess
	case run.Counters.Error > 0:
		status = domain.RunFailed
	}
	run.Finish(status)
	if m.Recorder != nil {
		_ = m.Recorder.RecordRun(ctx, run)
	}
	return run, nil
}

// logFailedDocuments emits the user-visible ERROR line for every
// per-document sub-run that did not complete cleanly, using the merged
// run's id (what is actually recorded and returned) rather than the
// sub-run's own discarded id.
func (m *Manager) logFailedDocuments(ctx context.Context, run *domain.PipelineRun, perDoc []*domain.PipelineRun) {
	for _, r := range perDoc {
		if r.Status == domain.RunCompleted {
			continue
		}
		documentPath := ""
		if len(r.DocumentPaths) > 0 {
			documentPath = r.DocumentPaths[0]
		}
		kind := errs.KindUnknown
		if len(r.Errors) > 0 {
			kind = r.Errors[len(r.Errors)-1].Kind
		}
		m.logger(ctx).Error("document run did not complete",
			"pipeline_id", run.PipelineID, "run_id", run.ID, "document_path", documentPath, "kind", kind)
	}
}

// runDocuments fans cfg out over documentPaths via Dispatcher if
// configured, else runs them one at a time through Runner.
func (m *Manager) runDocuments(ctx context.Context, cfg *domain.PipelineConfig, documentPaths []string) []*domain.PipelineRun {
	if m.Dispatcher != nil {
		results, _ := m.Dispatcher.Dispatch(ctx, cfg, documentPaths)
		runs := make([]*domain.PipelineRun, 0, len(results))
		for _, r := range results {
			if r.Run != nil {
				runs = append(runs, r.Run)
			}
		}
		return runs
	}
	if m.Runner == nil {
		return nil
	}
	runs := make([]*domain.PipelineRun, 0, len(documentPaths))
	for _, path := range documentPaths {
		runs = append(runs, m.Runner.Execute(ctx, cfg, path))
	}
	return runs
}

// mergeDocumentRuns sums per-document counters and errors onto run.
func mergeDocumentRuns(run *domain.PipelineRun, perDoc []*domain.PipelineRun) {
	for _, r := range perDoc {
		run.Counters.Processed += r.Counters.Processed
		run.Counters.Success += r.Counters.Success
		run.Counters.Error += r.Counters.Error
		run.Errors = append(run.Errors, r.Errors...)
	}
}

// Cancel requests cancellation of pipelineID's active run (propagated
// via the run's context, so in-flight work exits at its next
// boundary), then immediately marks the run CANCELLED and removes it
// from the active set.
func (m *Manager) Cancel(pipelineID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	run, ok := m.activeRuns[pipelineID]
	if !ok {
		return errs.New(errs.KindConfigInvalid, "no active run for pipeline: "+pipelineID, nil)
	}
	if cancel, ok := m.cancelFuncs[pipelineID]; ok {
		cancel()
	}
	run.Finish(domain.RunCancelled)
	delete(m.activeRuns, pipelineID)
	delete(m.cancelFuncs, pipelineID)
	return nil
}
