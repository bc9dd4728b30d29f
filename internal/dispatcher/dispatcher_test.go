package dispatcher

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/docetl-project/docetl/internal/domain"
)

// fakeRunner completes every document instantly, recording the
// highest number of concurrently in-flight calls it observed.
type fakeRunner struct {
	inFlight  int32
	maxInFlight int32
	sleep     time.Duration
	fail      map[string]bool
}

func (f *fakeRunner) Execute(ctx context.Context, pipeline *domain.PipelineConfig, documentPath string) *domain.PipelineRun {
	cur := atomic.AddInt32(&f.inFlight, 1)
	for {
		max := atomic.LoadInt32(&f.maxInFlight)
		if cur <= max || atomic.CompareAndSwapInt32(&f.maxInFlight, max, cur) {
			break
		}
	}
	if f.sleep > 0 {
		time.Sleep(f.sleep)
	}
	atomic.AddInt32(&f.inFlight, -1)

	status := domain.RunCompleted
	if f.fail[documentPath] {
		status = domain.RunFailed
	}
	now := time.Now()
	return &domain.PipelineRun{
		ID: documentPath, Status: status, StartTime: now, EndTime: &now,
		Counters: domain.Counters{Processed: 1, Success: boolToInt(status == domain.RunCompleted), Error: boolToInt(status != domain.RunCompleted)},
	}
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

type staticMonitor struct {
	cpu, mem float64
}

func (m *staticMonitor) Sample(ctx context.Context) (float64, float64, error) {
	return m.cpu, m.mem, nil
}

func TestDispatch_RunsAllDocumentsWithinPoolCap(t *testing.T) {
	runner := &fakeRunner{sleep: 10 * time.Millisecond}
	d := &Dispatcher{Runner: runner, PoolSize: 2}

	paths := []string{"a.txt", "b.txt", "c.txt", "d.txt"}
	results, agg := d.Dispatch(context.Background(), &domain.PipelineConfig{ID: "p"}, paths)

	require.Len(t, results, 4)
	assert.Equal(t, 4, agg.Processed)
	assert.Equal(t, 4, agg.Success)
	assert.LessOrEqual(t, atomic.LoadInt32(&runner.maxInFlight), int32(2))
}

func TestDispatch_AggregatesFailures(t *testing.T) {
	runner := &fakeRunner{fail: map[string]bool{"bad.txt": true}}
	d := &Dispatcher{Runner: runner, PoolSize: 4}

	_, agg := d.Dispatch(context.Background(), &domain.PipelineConfig{ID: "p"}, []string{"good.txt", "bad.txt"})

	assert.Equal(t, 1, agg.Success)
	assert.Equal(t, 1, agg.Error)
	assert.Equal(t, 1, agg.ByStatus[string(domain.RunCompleted)])
	assert.Equal(t, 1, agg.ByStatus[string(domain.RunFailed)])
}

func TestDispatch_AdmissionRefusesUntilMonitorClears(t *testing.T) {
	runner := &fakeRunner{}
	monitor := &staticMonitor{cpu: 95, mem: 50}
	d := &Dispatcher{Runner: runner, Monitor: monitor, PoolSize: 1}

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	results, _ := d.Dispatch(ctx, &domain.PipelineConfig{ID: "p"}, []string{"a.txt"})
	require.Len(t, results, 1)
	assert.Error(t, results[0].Err)
	assert.Nil(t, results[0].Run)
}

func TestDispatchAdaptive_AdjustsWorkersDownOnHighLoad(t *testing.T) {
	runner := &fakeRunner{}
	monitor := &staticMonitor{cpu: 85, mem: 75}
	d := &Dispatcher{Runner: runner, Monitor: monitor, PoolSize: 4}

	paths := []string{"1", "2", "3", "4", "5", "6", "7", "8"}
	results, agg, events := d.DispatchAdaptive(context.Background(), &domain.PipelineConfig{ID: "p"}, paths)

	require.Len(t, results, 8)
	assert.Equal(t, 8, agg.Processed)
	require.NotEmpty(t, events)
	assert.Less(t, events[0].To, events[0].From)
}

func TestDispatchPriority_DrainsPriorityLaneFirst(t *testing.T) {
	runner := &fakeRunner{}
	d := &Dispatcher{Runner: runner, PoolSize: 4}

	results, agg := d.DispatchPriority(context.Background(), &domain.PipelineConfig{ID: "p"}, []string{"p1", "p2"}, []string{"n1", "n2"})

	require.Len(t, results, 4)
	assert.Equal(t, 4, agg.Processed)
	assert.Equal(t, 4, agg.Success)
	for _, p := range results[:2] {
		for _, n := range results[2:] {
			assert.False(t, p.Run.EndTime.After(n.Run.StartTime), "priority document finished after a normal document started")
		}
	}
}

func TestSplitIntoBatches_DistributesRemainderToEarlyBatches(t *testing.T) {
	batches := splitIntoBatches([]string{"a", "b", "c", "d", "e"}, 4)
	require.Len(t, batches, 4)
	assert.Equal(t, []string{"a", "b"}, batches[0])
	assert.Equal(t, []string{"c"}, batches[1])
	assert.Equal(t, []string{"d"}, batches[2])
	assert.Equal(t, []string{"e"}, batches[3])
}
