package domain

import (
	"time"

	"github.com/docetl-project/docetl/internal/errs"
)

// RunStatus is the lifecycle state of a PipelineRun.
type RunStatus string

const (
	RunPending         RunStatus = "PENDING"
	RunRunning         RunStatus = "RUNNING"
	RunCompleted       RunStatus = "COMPLETED"
	RunFailed          RunStatus = "FAILED"
	RunPartialSuccess  RunStatus = "PARTIAL_SUCCESS"
	RunPaused          RunStatus = "PAUSED"
	RunCancelled       RunStatus = "CANCELLED"
)

var terminalStatuses = map[RunStatus]bool{
	RunCompleted: true, RunFailed: true, RunPartialSuccess: true, RunCancelled: true,
}

// IsTerminal reports whether s is one of the statuses that end a run.
func (s RunStatus) IsTerminal() bool { return terminalStatuses[s] }

// RunError is one structured entry in a PipelineRun's error log.
type RunError struct {
	Timestamp time.Time
	StepID    string
	Stage     string
	Kind      errs.Kind
	Message   string
}

// Counters tracks per-run document processing totals.
type Counters struct {
	Processed int
	Success   int
	Error     int
}

// PipelineRun is one execution of a PipelineConfig.
type PipelineRun struct {
	ID            string
	PipelineID    string
	StartTime     time.Time
	EndTime       *time.Time
	Status        RunStatus
	DocumentPaths []string
	Counters      Counters
	Errors        []RunError
	Metadata      map[string]any
}

// Validate enforces: status is terminal iff EndTime is set, and
// success + error <= processed.
func (r *PipelineRun) Validate() error {
	if r.Status.IsTerminal() != (r.EndTime != nil) {
		return errs.New(errs.KindConfigInvalid, "run status terminality does not match end_time presence", nil)
	}
	if r.Counters.Success+r.Counters.Error > r.Counters.Processed {
		return errs.New(errs.KindConfigInvalid, "success + error exceeds processed", nil)
	}
	return nil
}

// AppendError records a structured error entry on the run.
func (r *PipelineRun) AppendError(stepID, stage string, kind errs.Kind, message string) {
	r.Errors = append(r.Errors, RunError{
		Timestamp: time.Now(), StepID: stepID, Stage: stage, Kind: kind, Message: message,
	})
}

// Finish marks the run terminal, setting EndTime and Status.
func (r *PipelineRun) Finish(status RunStatus) {
	now := time.Now()
	r.EndTime = &now
	r.Status = status
}

// ToMap renders the run into its dictionary wire form. "error_count" is
// written exactly once from Counters.Error; the count of logged error
// entries (which may differ, e.g. multiple log entries for one failed
// document) is exposed separately as "logged_error_count".
func (r *PipelineRun) ToMap() map[string]any {
	errEntries := make([]map[string]any, 0, len(r.Errors))
	for _, e := range r.Errors {
		errEntries = append(errEntries, map[string]any{
			"timestamp": e.Timestamp,
			"step_id":   e.StepID,
			"stage":     e.Stage,
			"kind":      string(e.Kind),
			"message":   e.Message,
		})
	}
	m := map[string]any{
		"id":                 r.ID,
		"pipeline_id":        r.PipelineID,
		"start_time":         r.StartTime,
		"status":             string(r.Status),
		"document_paths":     r.DocumentPaths,
		"processed_count":    r.Counters.Processed,
		"success_count":      r.Counters.Success,
		"error_count":        r.Counters.Error,
		"logged_error_count": len(r.Errors),
		"errors":             errEntries,
		"metadata":           r.Metadata,
	}
	if r.EndTime != nil {
		m["end_time"] = *r.EndTime
	}
	return m
}
