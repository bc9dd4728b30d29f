package pipeline

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/docetl-project/docetl/internal/domain"
	errspkg "github.com/docetl-project/docetl/internal/errs"
	"github.com/docetl-project/docetl/internal/logging"
)

func validConfig(name string) *domain.PipelineConfig {
	return &domain.PipelineConfig{
		Name: name,
		Steps: []domain.StepConfig{
			{ID: "load", Kind: domain.StepDocumentLoader, Params: map[string]any{"source_path": "placeholder.txt"}},
		},
	}
}

func writeTempDoc(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "doc.txt")
	require.NoError(t, os.WriteFile(path, []byte("hello\n"), 0o644))
	return path
}

// fakeRunner completes instantly, reporting success unless path is in fail.
type fakeRunner struct {
	fail map[string]bool
}

func (r *fakeRunner) Execute(ctx context.Context, pipeline *domain.PipelineConfig, documentPath string) *domain.PipelineRun {
	now := time.Now()
	status := domain.RunCompleted
	errCount, successCount := 0, 1
	var errs []domain.RunError
	if r.fail[documentPath] {
		status = domain.RunFailed
		errCount, successCount = 1, 0
		errs = []domain.RunError{{Kind: errspkg.KindIOFailure, Message: "read failed"}}
	}
	return &domain.PipelineRun{
		ID: documentPath, Status: status, StartTime: now, EndTime: &now,
		DocumentPaths: []string{documentPath},
		Counters:      domain.Counters{Processed: 1, Success: successCount, Error: errCount},
		Errors:        errs,
	}
}

// blockingRunner blocks until release is closed, letting a test observe
// a pipeline mid-run.
type blockingRunner struct {
	started chan struct{}
	release chan struct{}
}

func (r *blockingRunner) Execute(ctx context.Context, pipeline *domain.PipelineConfig, documentPath string) *domain.PipelineRun {
	close(r.started)
	<-r.release
	now := time.Now()
	return &domain.PipelineRun{Status: domain.RunCompleted, StartTime: now, EndTime: &now, Counters: domain.Counters{Processed: 1, Success: 1}}
}

type recordingRecorder struct {
	recorded []*domain.PipelineRun
}

func (r *recordingRecorder) RecordRun(ctx context.Context, run *domain.PipelineRun) error {
	r.recorded = append(r.recorded, run)
	return nil
}

func TestCreate_AssignsIDAndValidatesShapeAndGraph(t *testing.T) {
	m := New()
	cfg := validConfig("basic")

	require.NoError(t, m.Create(cfg))
	assert.NotEmpty(t, cfg.ID)
	assert.Equal(t, 1, cfg.Version)
	assert.True(t, cfg.Active)

	stored, err := m.Get(cfg.ID)
	require.NoError(t, err)
	assert.Equal(t, cfg.Name, stored.Name)
}

func TestCreate_RejectsEmptySteps(t *testing.T) {
	m := New()
	err := m.Create(&domain.PipelineConfig{Name: "no-steps"})
	assert.Error(t, err)
}

func TestCreate_RejectsUnknownStepKindViaShapeSchema(t *testing.T) {
	m := New()
	cfg := &domain.PipelineConfig{
		Name: "bogus-kind",
		Steps: []domain.StepConfig{
			{ID: "s1", Kind: domain.StepKind("NOT_A_REAL_KIND")},
		},
	}
	err := m.Create(cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "shape validation")
}

func TestUpdate_MergesOverridesAndBumpsVersion(t *testing.T) {
	m := New()
	cfg := validConfig("to-update")
	require.NoError(t, m.Create(cfg))

	patch := domain.PipelineConfig{Description: "new description"}
	updated, err := m.Update(cfg.ID, patch)
	require.NoError(t, err)
	assert.Equal(t, "new description", updated.Description)
	assert.Equal(t, "to-update", updated.Name)
	assert.Equal(t, 2, updated.Version)
}

func TestUpdate_RejectsWhilePipelineHasActiveRun(t *testing.T) {
	m := New()
	cfg := validConfig("active-update")
	require.NoError(t, m.Create(cfg))

	runner := &blockingRunner{started: make(chan struct{}), release: make(chan struct{})}
	m.Runner = runner

	path := writeTempDoc(t)
	go func() { _, _ = m.Execute(context.Background(), cfg.ID, []string{path}, nil) }()
	<-runner.started

	_, err := m.Update(cfg.ID, domain.PipelineConfig{Description: "blocked"})
	assert.Error(t, err)

	close(runner.release)
}

func TestSoftDelete_FlipsActiveFalse(t *testing.T) {
	m := New()
	cfg := validConfig("to-delete")
	require.NoError(t, m.Create(cfg))

	require.NoError(t, m.SoftDelete(cfg.ID))
	stored, err := m.Get(cfg.ID)
	require.NoError(t, err)
	assert.False(t, stored.Active)
}

func TestExecute_RejectsMissingDocumentPath(t *testing.T) {
	m := New()
	cfg := validConfig("missing-doc")
	require.NoError(t, m.Create(cfg))
	m.Runner = &fakeRunner{}

	_, err := m.Execute(context.Background(), cfg.ID, []string{"/no/such/file.txt"}, nil)
	assert.Error(t, err)
}

func TestExecute_AggregatesAcrossDocumentsAndRecordsRun(t *testing.T) {
	m := New()
	cfg := validConfig("multi-doc")
	require.NoError(t, m.Create(cfg))

	good := writeTempDoc(t)
	bad := writeTempDoc(t)
	m.Runner = &fakeRunner{fail: map[string]bool{bad: true}}
	recorder := &recordingRecorder{}
	m.Recorder = recorder

	run, err := m.Execute(context.Background(), cfg.ID, []string{good, bad}, map[string]any{"triggered_by": "test"})
	require.NoError(t, err)
	assert.Equal(t, domain.RunPartialSuccess, run.Status)
	assert.Equal(t, 2, run.Counters.Processed)
	assert.Equal(t, 1, run.Counters.Success)
	assert.Equal(t, 1, run.Counters.Error)
	require.Len(t, recorder.recorded, 1)
	assert.Equal(t, run.ID, recorder.recorded[0].ID)

	_, stillActive := m.activeRuns[cfg.ID]
	assert.False(t, stillActive)
}

func TestExecute_FailedDocumentLogsErrorWithRequiredFields(t *testing.T) {
	var buf bytes.Buffer
	m := New()
	cfg := validConfig("multi-doc-logged")
	require.NoError(t, m.Create(cfg))

	good := writeTempDoc(t)
	bad := writeTempDoc(t)
	m.Runner = &fakeRunner{fail: map[string]bool{bad: true}}
	m.Logger = logging.NewLogger(logging.WithWriter(&buf), logging.WithQuiet())

	run, err := m.Execute(context.Background(), cfg.ID, []string{good, bad}, nil)
	require.NoError(t, err)

	out := buf.String()
	assert.Contains(t, out, "pipeline_id="+cfg.ID)
	assert.Contains(t, out, "run_id="+run.ID)
	assert.Contains(t, out, "document_path="+bad)
	assert.Contains(t, out, "kind=IOFailure")
	assert.NotContains(t, out, "document_path="+good)
}

func TestExecute_RejectsConcurrentRunOnSamePipeline(t *testing.T) {
	m := New()
	cfg := validConfig("concurrent")
	require.NoError(t, m.Create(cfg))

	runner := &blockingRunner{started: make(chan struct{}), release: make(chan struct{})}
	m.Runner = runner

	path := writeTempDoc(t)
	go func() { _, _ = m.Execute(context.Background(), cfg.ID, []string{path}, nil) }()
	<-runner.started

	_, err := m.Execute(context.Background(), cfg.ID, []string{path}, nil)
	assert.Error(t, err)

	close(runner.release)
}

func TestCancel_MarksActiveRunCancelled(t *testing.T) {
	m := New()
	cfg := validConfig("to-cancel")
	require.NoError(t, m.Create(cfg))

	runner := &blockingRunner{started: make(chan struct{}), release: make(chan struct{})}
	m.Runner = runner

	path := writeTempDoc(t)
	done := make(chan *domain.PipelineRun, 1)
	go func() {
		run, _ := m.Execute(context.Background(), cfg.ID, []string{path}, nil)
		done <- run
	}()
	<-runner.started

	require.NoError(t, m.Cancel(cfg.ID))
	close(runner.release)

	run := <-done
	assert.Equal(t, domain.RunCancelled, run.Status)
	assert.NotNil(t, run.EndTime)
}

func TestCancel_RejectsWhenNoActiveRun(t *testing.T) {
	m := New()
	err := m.Cancel("nonexistent")
	assert.Error(t, err)
}
