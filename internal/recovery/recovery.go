// Package recovery classifies a document failure into a strategy,
// tries a priority-ordered list of recovery actions until one
// succeeds, and persists/cleans up checkpoint state for it.
package recovery

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/docetl-project/docetl/internal/backoff"
	"github.com/docetl-project/docetl/internal/domain"
	"github.com/docetl-project/docetl/internal/errs"
	"github.com/docetl-project/docetl/internal/logging"
)

// Strategy is one of the recovery actions a failure can be classified
// into.
type Strategy string

const (
	StrategyFallback Strategy = "fallback"
	StrategyRetry    Strategy = "retry"
	StrategySkip     Strategy = "skip"
	StrategyRollback Strategy = "rollback"
)

// Classify maps a failure's message onto its primary strategy via
// keyword matching: memory/oom -> fallback, timeout -> retry,
// permission/access-denied/file-not-found/ioerror -> skip,
// connection/network/ssl/cert -> retry, database/sql/query ->
// rollback, else -> retry.
func Classify(cause error) Strategy {
	if cause == nil {
		return StrategyRetry
	}
	msg := strings.ToLower(cause.Error())
	switch {
	case containsAny(msg, "memory", "oom"):
		return StrategyFallback
	case containsAny(msg, "timeout"):
		return StrategyRetry
	case containsAny(msg, "permission", "access denied", "file not found", "ioerror"):
		return StrategySkip
	case containsAny(msg, "connection", "network", "ssl", "cert"):
		return StrategyRetry
	case containsAny(msg, "database", "sql", "query"):
		return StrategyRollback
	default:
		return StrategyRetry
	}
}

func containsAny(msg string, keywords ...string) bool {
	for _, k := range keywords {
		if strings.Contains(msg, k) {
			return true
		}
	}
	return false
}

// priorityListFor orders every strategy starting with cause's
// classification, so the classified strategy is always tried first and
// the rest act as fallbacks if it fails.
func priorityListFor(cause error) []Strategy {
	primary := Classify(cause)
	all := []Strategy{StrategyRetry, StrategyFallback, StrategySkip, StrategyRollback}
	order := make([]Strategy, 0, len(all))
	order = append(order, primary)
	for _, s := range all {
		if s != primary {
			order = append(order, s)
		}
	}
	return order
}

// Attempt is one logged recovery try.
type Attempt struct {
	Timestamp time.Time `json:"timestamp"`
	Strategy  Strategy  `json:"strategy"`
	Success   bool      `json:"success"`
	Error     string    `json:"error,omitempty"`
}

// Action performs one non-format-aware recovery strategy (retry,
// skip, rollback) against a failed document.
type Action func(ctx context.Context, documentPath string, cause error) error

// FallbackAction performs the format-aware fallback strategy: OCR for
// PDFs, format conversion for DOCX, sequential single-worker retry for
// everything else.
type FallbackAction interface {
	OCR(ctx context.Context, documentPath string) error
	FormatConversion(ctx context.Context, documentPath string) error
	Sequential(ctx context.Context, documentPath string) error
}

// Checkpointer persists and cleans up recovery checkpoint state, keyed
// by an identifier (typically the pipeline run id).
type Checkpointer interface {
	Save(ctx context.Context, identifier string, checkpoint []byte) error
	Cleanup(ctx context.Context, identifier string) error
}

// Handler implements executor.RecoveryHandler: classify the failure,
// try the resulting strategy priority list in order, first success
// wins.
type Handler struct {
	Retry    Action
	Fallback FallbackAction
	Skip     Action
	Rollback Action

	// RetrySchedule governs how many times, and with what backoff, the
	// Retry action is tried before the retry strategy is considered
	// failed and the priority list falls through to the next strategy.
	// The zero value tries once, with no backoff.
	RetrySchedule backoff.Schedule

	Checkpoints Checkpointer
	Logger      logging.Logger
}

func (h *Handler) logger(ctx context.Context) logging.Logger {
	if h.Logger != nil {
		return h.Logger
	}
	return logging.FromContext(ctx)
}

// Recover tries run's (single) document path through the strategy
// priority list derived from cause, logging every attempt. On the
// first successful attempt it marks run PARTIAL_SUCCESS and returns
// nil, leaving the run terminal so the caller does not also mark it
// FAILED. If every strategy fails, it logs the user-visible failure at
// ERROR with pipeline_id/run_id/document_path/kind, returns a combined
// error, and leaves the run non-terminal for the caller to finalize.
func (h *Handler) Recover(ctx context.Context, run *domain.PipelineRun, cause error) error {
	documentPath := ""
	if len(run.DocumentPaths) > 0 {
		documentPath = run.DocumentPaths[0]
	}

	var attempts []Attempt
	var lastErr error
	for _, strategy := range priorityListFor(cause) {
		attemptErr := h.attempt(ctx, strategy, documentPath, cause)
		attempts = append(attempts, Attempt{Timestamp: time.Now(), Strategy: strategy, Success: attemptErr == nil, Error: errString(attemptErr)})
		h.logAttempt(ctx, run, documentPath, strategy, attemptErr)

		if attemptErr == nil {
			h.saveCheckpoint(ctx, run.ID, documentPath, attempts)
			run.Finish(domain.RunPartialSuccess)
			return nil
		}
		lastErr = attemptErr
	}

	h.saveCheckpoint(ctx, run.ID, documentPath, attempts)
	h.logger(ctx).Error("document recovery exhausted every strategy",
		"pipeline_id", run.PipelineID, "run_id", run.ID, "document_path", documentPath,
		"kind", errs.KindOf(cause), "error", lastErr)
	return lastErr
}

func (h *Handler) attempt(ctx context.Context, strategy Strategy, documentPath string, cause error) error {
	switch strategy {
	case StrategyRetry:
		if h.Retry == nil {
			return unconfigured(strategy)
		}
		return h.RetrySchedule.Retry(ctx, func(ctx context.Context) error {
			return h.Retry(ctx, documentPath, cause)
		})
	case StrategySkip:
		if h.Skip == nil {
			return unconfigured(strategy)
		}
		return h.Skip(ctx, documentPath, cause)
	case StrategyRollback:
		if h.Rollback == nil {
			return unconfigured(strategy)
		}
		return h.Rollback(ctx, documentPath, cause)
	case StrategyFallback:
		if h.Fallback == nil {
			return unconfigured(strategy)
		}
		return h.fallback(ctx, documentPath)
	default:
		return unconfigured(strategy)
	}
}

// fallback picks the format-aware fallback action by documentPath's
// extension: PDF gets OCR, DOCX gets format conversion, everything
// else falls back to a sequential single-worker retry.
func (h *Handler) fallback(ctx context.Context, documentPath string) error {
	switch strings.ToLower(filepath.Ext(documentPath)) {
	case ".pdf":
		return h.Fallback.OCR(ctx, documentPath)
	case ".docx":
		return h.Fallback.FormatConversion(ctx, documentPath)
	default:
		return h.Fallback.Sequential(ctx, documentPath)
	}
}

func (h *Handler) logAttempt(ctx context.Context, run *domain.PipelineRun, documentPath string, strategy Strategy, err error) {
	if err != nil {
		h.logger(ctx).Warn("recovery attempt failed",
			"pipeline_id", run.PipelineID, "run_id", run.ID, "document_path", documentPath, "strategy", strategy, "error", err)
		return
	}
	h.logger(ctx).Info("recovery attempt succeeded",
		"pipeline_id", run.PipelineID, "run_id", run.ID, "document_path", documentPath, "strategy", strategy)
}

func (h *Handler) saveCheckpoint(ctx context.Context, runID, documentPath string, attempts []Attempt) {
	if h.Checkpoints == nil {
		return
	}
	blob, err := json.Marshal(struct {
		RunID        string    `json:"run_id"`
		DocumentPath string    `json:"document_path"`
		Attempts     []Attempt `json:"attempts"`
		SavedAt      time.Time `json:"saved_at"`
	}{RunID: runID, DocumentPath: documentPath, Attempts: attempts, SavedAt: time.Now()})
	if err != nil {
		h.logger(ctx).Warn("encoding recovery checkpoint", "run_id", runID, "error", err)
		return
	}
	if err := h.Checkpoints.Save(ctx, runID, blob); err != nil {
		h.logger(ctx).Warn("persisting recovery checkpoint", "run_id", runID, "error", err)
	}
}

func unconfigured(strategy Strategy) error {
	return &strategyUnconfiguredError{strategy: strategy}
}

type strategyUnconfiguredError struct{ strategy Strategy }

func (e *strategyUnconfiguredError) Error() string {
	return "recovery: no action configured for strategy " + string(e.strategy)
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}

// FileCheckpointStore persists checkpoints as JSON blobs under Dir,
// one file per Save call, named by identifier and timestamp so
// multiple checkpoints for the same identifier can coexist. Cleanup
// deletes every file whose name matches the identifier.
type FileCheckpointStore struct {
	Dir string
}

// Save writes checkpoint to "<Dir>/<identifier>-<timestamp>.json", the
// timestamp formatted as "20060102T150405.000000000".
func (s *FileCheckpointStore) Save(ctx context.Context, identifier string, checkpoint []byte) error {
	if err := os.MkdirAll(s.Dir, 0o755); err != nil {
		return err
	}
	path := filepath.Join(s.Dir, identifier+"-"+time.Now().Format("20060102T150405.000000000")+".json")
	return os.WriteFile(path, checkpoint, 0o644)
}

// Cleanup deletes every file under Dir matching "<identifier>*".
func (s *FileCheckpointStore) Cleanup(ctx context.Context, identifier string) error {
	matches, err := filepath.Glob(filepath.Join(s.Dir, identifier+"*"))
	if err != nil {
		return err
	}
	for _, m := range matches {
		if err := os.Remove(m); err != nil {
			return err
		}
	}
	return nil
}
