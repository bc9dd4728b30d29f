package scheduler

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordedEvent struct {
	pipelineID string
	kind       EventKind
	detail     string
}

type fakeEventLogger struct {
	mu     sync.Mutex
	events []recordedEvent
}

func (f *fakeEventLogger) LogScheduleEvent(ctx context.Context, pipelineID string, kind EventKind, detail string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, recordedEvent{pipelineID, kind, detail})
	return nil
}

type fakeRunner struct {
	mu    sync.Mutex
	calls int
	err   error
}

func (f *fakeRunner) Run(ctx context.Context, pipelineID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return f.err
}

func TestAdd_RejectsInvalidCronExpression(t *testing.T) {
	s := New(&fakeRunner{})
	_, err := s.Add("p1", "not a cron expr")
	assert.Error(t, err)
}

func TestAdd_RejectsDuplicateScheduleForSamePipeline(t *testing.T) {
	s := New(&fakeRunner{})
	_, err := s.Add("p1", "* * * * *")
	require.NoError(t, err)

	_, err = s.Add("p1", "0 * * * *")
	assert.Error(t, err)
}

func TestAdd_RegistersOneCronEntry(t *testing.T) {
	s := New(&fakeRunner{})
	_, err := s.Add("p1", "* * * * *")
	require.NoError(t, err)
	assert.Len(t, s.cron.Entries(), 1)
}

func TestReschedule_ReplacesTriggerKeepingPipelineKey(t *testing.T) {
	s := New(&fakeRunner{})
	_, err := s.Add("p1", "* * * * *")
	require.NoError(t, err)

	require.NoError(t, s.Reschedule("p1", "0 0 * * *"))
	assert.Len(t, s.cron.Entries(), 1)
	assert.Equal(t, "0 0 * * *", s.jobs["p1"].expr)
}

func TestReschedule_RejectsWhenNoActiveSchedule(t *testing.T) {
	s := New(&fakeRunner{})
	err := s.Reschedule("nonexistent", "* * * * *")
	assert.Error(t, err)
}

func TestCancel_RemovesJob(t *testing.T) {
	s := New(&fakeRunner{})
	_, err := s.Add("p1", "* * * * *")
	require.NoError(t, err)

	require.NoError(t, s.Cancel("p1"))
	assert.Len(t, s.cron.Entries(), 0)
	_, exists := s.jobs["p1"]
	assert.False(t, exists)
}

func TestCancel_RejectsWhenNoActiveSchedule(t *testing.T) {
	s := New(&fakeRunner{})
	err := s.Cancel("nonexistent")
	assert.Error(t, err)
}

func TestFire_LogsExecutedOnSuccess(t *testing.T) {
	runner := &fakeRunner{}
	events := &fakeEventLogger{}
	s := New(runner)
	s.Events = events
	_, err := s.Add("p1", "* * * * *")
	require.NoError(t, err)

	s.fire("p1", s.jobs["p1"])()

	require.Len(t, events.events, 1)
	assert.Equal(t, EventExecuted, events.events[0].kind)
}

func TestFire_LogsErrorOnRunnerFailure(t *testing.T) {
	runner := &fakeRunner{err: errors.New("boom")}
	events := &fakeEventLogger{}
	s := New(runner)
	s.Events = events
	_, err := s.Add("p1", "* * * * *")
	require.NoError(t, err)

	s.fire("p1", s.jobs["p1"])()

	require.Len(t, events.events, 1)
	assert.Equal(t, EventError, events.events[0].kind)
	assert.Equal(t, "boom", events.events[0].detail)
}

func TestFire_LogsMissedWhenPreviousRunStillInFlight(t *testing.T) {
	runner := &fakeRunner{}
	events := &fakeEventLogger{}
	s := New(runner)
	s.Events = events
	_, err := s.Add("p1", "* * * * *")
	require.NoError(t, err)

	reg := s.jobs["p1"]
	reg.running.Store(true)
	s.fire("p1", reg)()

	require.Len(t, events.events, 1)
	assert.Equal(t, EventMissed, events.events[0].kind)
	assert.Equal(t, 0, runner.calls)
}
