// Package dispatcher fans a pipeline out over many documents on a
// bounded worker pool, sampling a resource monitor for admission and
// aggregating per-document outcomes.
package dispatcher

import (
	"context"
	"runtime"
	"sync"
	"time"

	"github.com/samber/lo"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/docetl-project/docetl/internal/backoff"
	"github.com/docetl-project/docetl/internal/domain"
)

// DocumentRunner executes one pipeline run for one document.
// *executor.DocumentExecutor satisfies this directly.
type DocumentRunner interface {
	Execute(ctx context.Context, pipeline *domain.PipelineConfig, documentPath string) *domain.PipelineRun
}

// ResourceMonitor samples current system load for admission control.
// internal/monitor's sampler satisfies this.
type ResourceMonitor interface {
	Sample(ctx context.Context) (cpuPercent, memPercent float64, err error)
}

const (
	maxPoolSize           = 8
	defaultDocumentTimeout = 5 * time.Minute
	admissionWaitInterval = 100 * time.Millisecond
	admissionMemRefuse     = 80.0
	admissionCPURefuse     = 90.0
	priorityLaneCap        = 4
	adaptiveBatchCount     = 4
	adaptiveMemDown        = 70.0
	adaptiveCPUDown        = 80.0
	adaptiveMemUp          = 50.0
	adaptiveCPUUp          = 60.0
)

// JobResult is one document's outcome.
type JobResult struct {
	DocumentPath string
	Run          *domain.PipelineRun
	Elapsed      time.Duration
	Err          error // set only when the document could not even be submitted (e.g. context canceled during admission)
}

// Aggregate summarizes a dispatch across all documents.
type Aggregate struct {
	Processed    int
	Success      int
	Error        int
	LoggedErrors int
	Timings      map[string]time.Duration
	ByStatus     map[string]int
	Errors       []error
}

// AdjustmentEvent records one adaptive-mode worker count change.
type AdjustmentEvent struct {
	AfterBatch int
	From       int
	To         int
	CPUPercent float64
	MemPercent float64
}

// Dispatcher runs a pipeline across many documents on a bounded pool.
type Dispatcher struct {
	Runner          DocumentRunner
	Monitor         ResourceMonitor
	PoolSize        int
	DocumentTimeout time.Duration
}

// New builds a Dispatcher with the default pool size (min(CPU, 8)) and
// document timeout (5 minutes).
func New(runner DocumentRunner) *Dispatcher {
	return &Dispatcher{Runner: runner, PoolSize: defaultPoolSize(), DocumentTimeout: defaultDocumentTimeout}
}

func defaultPoolSize() int {
	n := runtime.NumCPU()
	if n > maxPoolSize {
		return maxPoolSize
	}
	if n < 1 {
		return 1
	}
	return n
}

func (d *Dispatcher) poolSize() int {
	if d.PoolSize > 0 {
		return d.PoolSize
	}
	return defaultPoolSize()
}

func (d *Dispatcher) documentTimeout() time.Duration {
	if d.DocumentTimeout > 0 {
		return d.DocumentTimeout
	}
	return defaultDocumentTimeout
}

// admit blocks until the resource monitor reports capacity, the
// context is canceled, or no monitor is configured (in which case
// every submission is admitted immediately).
func (d *Dispatcher) admit(ctx context.Context) error {
	if d.Monitor == nil {
		return nil
	}
	return backoff.PollUntil(ctx, admissionWaitInterval, func(ctx context.Context) (bool, error) {
		cpu, mem, err := d.Monitor.Sample(ctx)
		if err != nil {
			return false, err
		}
		return cpu <= admissionCPURefuse && mem <= admissionMemRefuse, nil
	})
}

// runOne admits, executes with a per-document timeout, and times one
// document.
func (d *Dispatcher) runOne(ctx context.Context, pipeline *domain.PipelineConfig, documentPath string) JobResult {
	if err := d.admit(ctx); err != nil {
		return JobResult{DocumentPath: documentPath, Err: err}
	}
	docCtx, cancel := context.WithTimeout(ctx, d.documentTimeout())
	defer cancel()

	started := time.Now()
	run := d.Runner.Execute(docCtx, pipeline, documentPath)
	return JobResult{DocumentPath: documentPath, Run: run, Elapsed: time.Since(started)}
}

// Dispatch runs pipeline against every document path on the bounded
// pool, capped to len(documentPaths), and returns every result plus
// the aggregate.
func (d *Dispatcher) Dispatch(ctx context.Context, pipeline *domain.PipelineConfig, documentPaths []string) ([]JobResult, Aggregate) {
	limit := d.poolSize()
	if limit > len(documentPaths) {
		limit = len(documentPaths)
	}
	if limit < 1 {
		limit = 1
	}

	results := make([]JobResult, len(documentPaths))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(limit)

	for i, path := range documentPaths {
		i, path := i, path
		g.Go(func() error {
			results[i] = d.runOne(gctx, pipeline, path)
			return nil
		})
	}
	_ = g.Wait()

	return results, aggregate(results)
}

// DispatchAdaptive processes documents in adaptiveBatchCount equal
// batches, inspecting resource usage between batches and adjusting the
// live pool size by ±1 worker when the stated thresholds are crossed.
func (d *Dispatcher) DispatchAdaptive(ctx context.Context, pipeline *domain.PipelineConfig, documentPaths []string) ([]JobResult, Aggregate, []AdjustmentEvent) {
	batches := splitIntoBatches(documentPaths, adaptiveBatchCount)
	results := make([]JobResult, 0, len(documentPaths))
	var events []AdjustmentEvent

	workers := d.poolSize()
	poolCap := d.poolSize()

	for batchIdx, batch := range batches {
		if len(batch) == 0 {
			continue
		}
		limit := workers
		if limit > len(batch) {
			limit = len(batch)
		}
		if limit < 1 {
			limit = 1
		}

		batchResults := make([]JobResult, len(batch))
		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(limit)
		for i, path := range batch {
			i, path := i, path
			g.Go(func() error {
				batchResults[i] = d.runOne(gctx, pipeline, path)
				return nil
			})
		}
		_ = g.Wait()
		results = append(results, batchResults...)

		if d.Monitor == nil || batchIdx == len(batches)-1 {
			continue
		}
		cpu, mem, err := d.Monitor.Sample(ctx)
		if err != nil {
			continue
		}
		before := workers
		switch {
		case (mem > adaptiveMemDown || cpu > adaptiveCPUDown) && workers > 1:
			workers--
		case mem < adaptiveMemUp && cpu < adaptiveCPUUp && workers < poolCap:
			workers++
		}
		if workers != before {
			events = append(events, AdjustmentEvent{AfterBatch: batchIdx, From: before, To: workers, CPUPercent: cpu, MemPercent: mem})
		}
	}

	return results, aggregate(results), events
}

// DispatchPriority drains priorityPaths on a lane capped at
// priorityLaneCap workers, then dispatches normalPaths on the full
// pool.
func (d *Dispatcher) DispatchPriority(ctx context.Context, pipeline *domain.PipelineConfig, priorityPaths, normalPaths []string) ([]JobResult, Aggregate) {
	sem := semaphore.NewWeighted(priorityLaneCap)
	priorityResults := make([]JobResult, len(priorityPaths))
	var wg sync.WaitGroup
	for i, path := range priorityPaths {
		i, path := i, path
		if err := sem.Acquire(ctx, 1); err != nil {
			priorityResults[i] = JobResult{DocumentPath: path, Err: err}
			continue
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			defer sem.Release(1)
			priorityResults[i] = d.runOne(ctx, pipeline, path)
		}()
	}
	wg.Wait()

	normalResults, _ := d.Dispatch(ctx, pipeline, normalPaths)

	all := append(priorityResults, normalResults...)
	return all, aggregate(all)
}

// splitIntoBatches divides paths into n roughly-equal, order-preserving
// batches.
func splitIntoBatches(paths []string, n int) [][]string {
	batches := make([][]string, n)
	if len(paths) == 0 {
		return batches
	}
	base := len(paths) / n
	rem := len(paths) % n
	idx := 0
	for i := 0; i < n; i++ {
		size := base
		if i < rem {
			size++
		}
		batches[i] = paths[idx : idx+size]
		idx += size
	}
	return batches
}

// aggregate reduces a slice of JobResults into the uniform summary
// shape, grouping by terminal status with samber/lo the way the rest of
// the engine's cross-document reductions do.
func aggregate(results []JobResult) Aggregate {
	succeeded := lo.Filter(results, func(r JobResult, _ int) bool {
		return r.Run != nil && r.Run.Status == domain.RunCompleted
	})
	failed := lo.Filter(results, func(r JobResult, _ int) bool {
		return r.Err != nil || (r.Run != nil && r.Run.Status != domain.RunCompleted)
	})
	grouped := lo.GroupBy(results, func(r JobResult) string {
		if r.Run == nil {
			return "unsubmitted"
		}
		return string(r.Run.Status)
	})
	byStatus := make(map[string]int, len(grouped))
	for status, group := range grouped {
		byStatus[status] = len(group)
	}

	timings := make(map[string]time.Duration, len(results))
	for _, r := range results {
		timings[r.DocumentPath] = r.Elapsed
	}

	loggedErrors := lo.SumBy(results, func(r JobResult) int {
		if r.Run == nil {
			return 0
		}
		return len(r.Run.Errors)
	})

	var errs []error
	for _, r := range failed {
		if r.Err != nil {
			errs = append(errs, r.Err)
		}
	}

	return Aggregate{
		Processed:    len(results),
		Success:      len(succeeded),
		Error:        len(failed),
		LoggedErrors: loggedErrors,
		Timings:      timings,
		ByStatus:     byStatus,
		Errors:       errs,
	}
}
