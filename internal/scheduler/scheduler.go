// Package scheduler keeps one active cron schedule per pipeline id on
// top of robfig/cron/v3, gating every expression through
// internal/domain's validator before the library ever sees it.
package scheduler

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/robfig/cron/v3"

	"github.com/docetl-project/docetl/internal/domain"
	"github.com/docetl-project/docetl/internal/errs"
)

// EventKind is one of the three outcomes a scheduled firing logs.
type EventKind string

const (
	EventExecuted EventKind = "EXECUTED"
	EventError    EventKind = "ERROR"
	EventMissed   EventKind = "MISSED"
)

// EventLogger records a scheduled firing's outcome. internal/store
// satisfies this.
type EventLogger interface {
	LogScheduleEvent(ctx context.Context, pipelineID string, kind EventKind, detail string) error
}

// Runner executes pipelineID when its schedule fires.
type Runner interface {
	Run(ctx context.Context, pipelineID string) error
}

// registration tracks one pipeline's live cron entry. running guards
// against two firings of the same pipeline overlapping: a firing that
// arrives while the previous one is still in flight is logged MISSED
// rather than run, since the dispatcher already bounds per-document
// concurrency and a pipeline-level overlap is a scheduling anomaly,
// not additional work to queue.
type registration struct {
	entryID cron.EntryID
	expr    string
	running atomic.Bool
}

// Scheduler registers one active cron schedule per pipeline id.
type Scheduler struct {
	mu   sync.Mutex
	cron *cron.Cron
	jobs map[string]*registration

	Runner Runner
	Events EventLogger
}

// New builds a Scheduler driving runner.
func New(runner Runner) *Scheduler {
	return &Scheduler{cron: cron.New(), jobs: make(map[string]*registration), Runner: runner}
}

// Start begins dispatching scheduled firings.
func (s *Scheduler) Start() { s.cron.Start() }

// Stop pauses every scheduled firing until Start is called again.
// Pause/resume is global, matching robfig/cron's own Start/Stop pair —
// there is no per-entry pause primitive to build on.
func (s *Scheduler) Stop() context.Context { return s.cron.Stop() }

// Add validates expr and registers a job for pipelineID, which must
// not already have an active schedule.
func (s *Scheduler) Add(pipelineID, expr string) (cron.EntryID, error) {
	if err := domain.ValidateCron(expr); err != nil {
		return 0, errs.New(errs.KindConfigInvalid, "invalid cron expression: "+err.Error(), err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.jobs[pipelineID]; exists {
		return 0, errs.New(errs.KindConfigInvalid, "pipeline already has an active schedule: "+pipelineID, nil)
	}

	reg := &registration{expr: expr}
	entryID, err := s.cron.AddFunc(expr, s.fire(pipelineID, reg))
	if err != nil {
		return 0, errs.New(errs.KindConfigInvalid, "registering cron job", err)
	}
	reg.entryID = entryID
	s.jobs[pipelineID] = reg
	return entryID, nil
}

// Reschedule replaces pipelineID's trigger expression only; the
// pipeline id remains the job's key from the caller's perspective. On
// failure to register the new expression, the old trigger is restored
// so the pipeline is never left unscheduled.
func (s *Scheduler) Reschedule(pipelineID, expr string) error {
	if err := domain.ValidateCron(expr); err != nil {
		return errs.New(errs.KindConfigInvalid, "invalid cron expression: "+err.Error(), err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	old, ok := s.jobs[pipelineID]
	if !ok {
		return errs.New(errs.KindConfigInvalid, "no active schedule for pipeline: "+pipelineID, nil)
	}
	s.cron.Remove(old.entryID)

	reg := &registration{expr: expr}
	entryID, err := s.cron.AddFunc(expr, s.fire(pipelineID, reg))
	if err != nil {
		if restoredID, restoreErr := s.cron.AddFunc(old.expr, s.fire(pipelineID, old)); restoreErr == nil {
			old.entryID = restoredID
			s.jobs[pipelineID] = old
		}
		return errs.New(errs.KindConfigInvalid, "registering rescheduled cron job", err)
	}
	reg.entryID = entryID
	s.jobs[pipelineID] = reg
	return nil
}

// Cancel removes pipelineID's schedule entirely.
func (s *Scheduler) Cancel(pipelineID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	reg, ok := s.jobs[pipelineID]
	if !ok {
		return errs.New(errs.KindConfigInvalid, "no active schedule for pipeline: "+pipelineID, nil)
	}
	s.cron.Remove(reg.entryID)
	delete(s.jobs, pipelineID)
	return nil
}

// fire builds the func robfig/cron invokes at each firing.
func (s *Scheduler) fire(pipelineID string, reg *registration) func() {
	return func() {
		ctx := context.Background()
		if !reg.running.CompareAndSwap(false, true) {
			s.logEvent(ctx, pipelineID, EventMissed, "previous run still in flight")
			return
		}
		defer reg.running.Store(false)

		if err := s.Runner.Run(ctx, pipelineID); err != nil {
			s.logEvent(ctx, pipelineID, EventError, err.Error())
			return
		}
		s.logEvent(ctx, pipelineID, EventExecuted, "")
	}
}

func (s *Scheduler) logEvent(ctx context.Context, pipelineID string, kind EventKind, detail string) {
	if s.Events == nil {
		return
	}
	_ = s.Events.LogScheduleEvent(ctx, pipelineID, kind, detail)
}
