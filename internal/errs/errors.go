// Package errs defines the error taxonomy shared across the pipeline
// engine. Every component-level error is surfaced as a *PipelineError so
// call sites can branch on Kind without string-matching messages.
package errs

import (
	"errors"
	"fmt"
	"time"
)

// Kind is the closed set of error categories from which a recovery
// strategy is selected (see the recovery package) and under which a
// failure is reported to the user.
type Kind string

const (
	KindConfigInvalid       Kind = "ConfigInvalid"
	KindUnsupportedFormat   Kind = "UnsupportedFormat"
	KindResourceExhaustion  Kind = "ResourceExhaustion"
	KindIOFailure           Kind = "IOFailure"
	KindIntegrityError      Kind = "IntegrityError"
	KindSecurityViolation   Kind = "SecurityViolation"
	KindScriptTimeout       Kind = "ScriptTimeout"
	KindScriptExecutionErr  Kind = "ScriptExecutionError"
	KindDatabaseError       Kind = "DatabaseError"
	KindCancellationRequest Kind = "CancellationRequested"
	KindUnknown             Kind = "Unknown"
)

// PipelineError is the uniform error record propagated from a step,
// loader, exporter, or background service up to the document executor
// and, from there, into a PipelineRun's error log.
type PipelineError struct {
	Kind      Kind
	Message   string
	Details   map[string]any
	Timestamp time.Time
	StepID    string
	Stage     string
	Cause     error
}

func (e *PipelineError) Error() string {
	if e.StepID != "" {
		return fmt.Sprintf("%s: %s (step=%s stage=%s)", e.Kind, e.Message, e.StepID, e.Stage)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *PipelineError) Unwrap() error { return e.Cause }

// New builds a PipelineError with the current time stamped in.
func New(kind Kind, message string, cause error) *PipelineError {
	return &PipelineError{Kind: kind, Message: message, Timestamp: time.Now(), Cause: cause}
}

// WithStep returns a copy of the error annotated with step id and stage.
func (e *PipelineError) WithStep(stepID, stage string) *PipelineError {
	clone := *e
	clone.StepID = stepID
	clone.Stage = stage
	return &clone
}

// Is reports whether target is a *PipelineError of the same Kind, so
// errors.Is(err, ErrCancellationRequested) matches any cancellation
// error; most call sites instead use KindOf or errors.As to recover the
// Kind.
func (e *PipelineError) Is(target error) bool {
	var other *PipelineError
	if errors.As(target, &other) {
		return e.Kind == other.Kind
	}
	return false
}

// KindOf extracts the Kind of err if it is (or wraps) a *PipelineError,
// defaulting to KindUnknown otherwise.
func KindOf(err error) Kind {
	var pe *PipelineError
	if errors.As(err, &pe) {
		return pe.Kind
	}
	return KindUnknown
}

// ErrCancellationRequested is a sentinel indicating cooperative
// cancellation: it is explicitly not a failure to be recovered or
// reported as an error.
var ErrCancellationRequested = New(KindCancellationRequest, "cancellation requested", nil)
