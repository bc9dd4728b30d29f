package recovery

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/docetl-project/docetl/internal/backoff"
	"github.com/docetl-project/docetl/internal/domain"
	"github.com/docetl-project/docetl/internal/logging"
)

func TestClassify_KeywordsMapToExpectedStrategy(t *testing.T) {
	cases := []struct {
		message string
		want    Strategy
	}{
		{"out of memory", StrategyFallback},
		{"OOM killed the worker", StrategyFallback},
		{"operation timeout exceeded", StrategyRetry},
		{"permission denied reading file", StrategySkip},
		{"access denied", StrategySkip},
		{"file not found", StrategySkip},
		{"ioerror while reading", StrategySkip},
		{"connection reset by peer", StrategyRetry},
		{"network unreachable", StrategyRetry},
		{"ssl handshake failed", StrategyRetry},
		{"cert verification failed", StrategyRetry},
		{"database constraint violation", StrategyRollback},
		{"sql syntax error", StrategyRollback},
		{"query failed", StrategyRollback},
		{"something entirely unrelated", StrategyRetry},
	}
	for _, c := range cases {
		assert.Equal(t, c.want, Classify(errors.New(c.message)), c.message)
	}
}

func TestPriorityListFor_StartsWithClassifiedStrategy(t *testing.T) {
	list := priorityListFor(errors.New("out of memory"))
	require.NotEmpty(t, list)
	assert.Equal(t, StrategyFallback, list[0])
	assert.ElementsMatch(t, []Strategy{StrategyRetry, StrategyFallback, StrategySkip, StrategyRollback}, list)
}

type fakeFallback struct {
	ocrErr, conversionErr, sequentialErr error
	ocrCalls, conversionCalls, sequentialCalls int
}

func (f *fakeFallback) OCR(ctx context.Context, documentPath string) error {
	f.ocrCalls++
	return f.ocrErr
}
func (f *fakeFallback) FormatConversion(ctx context.Context, documentPath string) error {
	f.conversionCalls++
	return f.conversionErr
}
func (f *fakeFallback) Sequential(ctx context.Context, documentPath string) error {
	f.sequentialCalls++
	return f.sequentialErr
}

func newRun(documentPath string) *domain.PipelineRun {
	return &domain.PipelineRun{ID: "r1", Status: domain.RunRunning, DocumentPaths: []string{documentPath}}
}

func TestRecover_SucceedsOnClassifiedStrategyMarksPartialSuccess(t *testing.T) {
	h := &Handler{Retry: func(ctx context.Context, documentPath string, cause error) error { return nil }}
	run := newRun("a.txt")

	err := h.Recover(context.Background(), run, errors.New("connection reset"))
	require.NoError(t, err)
	assert.Equal(t, domain.RunPartialSuccess, run.Status)
	assert.NotNil(t, run.EndTime)
}

func TestRecover_FallsThroughToNextStrategyOnFailure(t *testing.T) {
	calls := 0
	h := &Handler{
		Retry: func(ctx context.Context, documentPath string, cause error) error {
			calls++
			return errors.New("retry failed")
		},
		Fallback: &fakeFallback{sequentialErr: errors.New("fallback failed")},
		Skip:     func(ctx context.Context, documentPath string, cause error) error { calls++; return nil },
		Rollback: func(ctx context.Context, documentPath string, cause error) error { return nil },
	}
	run := newRun("a.txt")

	err := h.Recover(context.Background(), run, errors.New("unrelated failure"))
	require.NoError(t, err)
	assert.Equal(t, domain.RunPartialSuccess, run.Status)
	assert.Equal(t, 2, calls, "retry then skip should both have been attempted")
}

func TestRecover_RetrySchedulePermitsMultipleAttemptsBeforeFallingThrough(t *testing.T) {
	var retryCalls, skipCalls int
	h := &Handler{
		RetrySchedule: backoff.Schedule{InitialInterval: time.Millisecond, MaxInterval: time.Millisecond, MaxAttempts: 3},
		Retry: func(ctx context.Context, documentPath string, cause error) error {
			retryCalls++
			if retryCalls < 3 {
				return errors.New("not yet")
			}
			return nil
		},
		Skip: func(ctx context.Context, documentPath string, cause error) error { skipCalls++; return nil },
	}
	run := newRun("a.txt")

	err := h.Recover(context.Background(), run, errors.New("connection reset"))
	require.NoError(t, err)
	assert.Equal(t, domain.RunPartialSuccess, run.Status)
	assert.Equal(t, 3, retryCalls, "retry should have been attempted up to MaxAttempts before succeeding")
	assert.Zero(t, skipCalls, "skip should never run once retry itself succeeds")
}

func TestRecover_RetryScheduleExhaustedFallsThroughToNextStrategy(t *testing.T) {
	var retryCalls int
	h := &Handler{
		RetrySchedule: backoff.Schedule{InitialInterval: time.Millisecond, MaxInterval: time.Millisecond, MaxAttempts: 2},
		Retry: func(ctx context.Context, documentPath string, cause error) error {
			retryCalls++
			return errors.New("still failing")
		},
		Skip: func(ctx context.Context, documentPath string, cause error) error { return nil },
	}
	run := newRun("a.txt")

	err := h.Recover(context.Background(), run, errors.New("connection reset"))
	require.NoError(t, err)
	assert.Equal(t, domain.RunPartialSuccess, run.Status)
	assert.Equal(t, 2, retryCalls, "retry should have been attempted exactly MaxAttempts times")
}

func TestRecover_AllStrategiesFailReturnsErrorAndLeavesRunNonTerminal(t *testing.T) {
	fail := func(ctx context.Context, documentPath string, cause error) error { return errors.New("nope") }
	h := &Handler{
		Retry:    fail,
		Skip:     fail,
		Rollback: fail,
		Fallback: &fakeFallback{ocrErr: errors.New("nope"), conversionErr: errors.New("nope"), sequentialErr: errors.New("nope")},
	}
	run := newRun("a.pdf")

	err := h.Recover(context.Background(), run, errors.New("out of memory"))
	assert.Error(t, err)
	assert.False(t, run.Status.IsTerminal())
}

func TestRecover_ExhaustedRecoveryLogsErrorWithRequiredFields(t *testing.T) {
	var buf bytes.Buffer
	fail := func(ctx context.Context, documentPath string, cause error) error { return errors.New("nope") }
	h := &Handler{
		Retry:    fail,
		Skip:     fail,
		Rollback: fail,
		Fallback: &fakeFallback{ocrErr: errors.New("nope"), conversionErr: errors.New("nope"), sequentialErr: errors.New("nope")},
		Logger:   logging.NewLogger(logging.WithWriter(&buf), logging.WithQuiet()),
	}
	run := &domain.PipelineRun{ID: "run-1", PipelineID: "pipeline-1", Status: domain.RunRunning, DocumentPaths: []string{"scan.pdf"}}

	err := h.Recover(context.Background(), run, errors.New("out of memory"))
	require.Error(t, err)

	out := buf.String()
	assert.Contains(t, out, "pipeline_id=pipeline-1")
	assert.Contains(t, out, "run_id=run-1")
	assert.Contains(t, out, "document_path=scan.pdf")
	assert.Contains(t, out, "kind=Unknown")
}

func TestRecover_FallbackIsFormatAwareByExtension(t *testing.T) {
	fallback := &fakeFallback{}
	h := &Handler{Fallback: fallback}

	_ = h.fallback(context.Background(), "scan.pdf")
	_ = h.fallback(context.Background(), "report.docx")
	_ = h.fallback(context.Background(), "notes.txt")

	assert.Equal(t, 1, fallback.ocrCalls)
	assert.Equal(t, 1, fallback.conversionCalls)
	assert.Equal(t, 1, fallback.sequentialCalls)
}

func TestFileCheckpointStore_SaveThenCleanupRemovesMatchingFiles(t *testing.T) {
	dir := t.TempDir()
	store := &FileCheckpointStore{Dir: dir}

	require.NoError(t, store.Save(context.Background(), "run-1", []byte(`{"ok":true}`)))
	require.NoError(t, store.Save(context.Background(), "run-2", []byte(`{"ok":true}`)))

	matches, err := filepath.Glob(filepath.Join(dir, "run-1*"))
	require.NoError(t, err)
	require.Len(t, matches, 1)

	require.NoError(t, store.Cleanup(context.Background(), "run-1"))

	matches, err = filepath.Glob(filepath.Join(dir, "run-1*"))
	require.NoError(t, err)
	assert.Empty(t, matches)

	_, err = os.Stat(dir)
	require.NoError(t, err)
	remaining, err := filepath.Glob(filepath.Join(dir, "run-2*"))
	require.NoError(t, err)
	assert.Len(t, remaining, 1)
}
