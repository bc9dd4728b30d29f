// Package monitor samples system resource usage at roughly 1 Hz and
// exposes current/average/peak/trend views plus threshold-based
// alerts, satisfying internal/dispatcher's ResourceMonitor seam.
package monitor

import (
	"context"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/shirou/gopsutil/v4/cpu"
	"github.com/shirou/gopsutil/v4/disk"
	"github.com/shirou/gopsutil/v4/mem"
)

const (
	defaultInterval   = time.Second
	defaultMaxSamples = 300 // ~5 minutes at 1 Hz
	trendWindow       = 5
	trendThreshold    = 0.10
)

// Sample is one resource usage reading.
type Sample struct {
	Timestamp   time.Time
	CPUPercent  float64
	MemPercent  float64
	DiskPercent float64
}

// Trend classifies how a metric moved between the first and last
// trendWindow samples in the retained history.
type Trend string

const (
	TrendIncreasing Trend = "increasing"
	TrendDecreasing Trend = "decreasing"
	TrendStable     Trend = "stable"
)

// Trends bundles the per-resource trend classification.
type Trends struct {
	CPU    Trend
	Memory Trend
	Disk   Trend
}

// Severity is an alert's tier.
type Severity string

const (
	SeverityWarning  Severity = "WARNING"
	SeverityCritical Severity = "CRITICAL"
)

// Alert is one threshold crossing with a short actionable hint.
type Alert struct {
	Resource       string
	Severity       Severity
	Value          float64
	Recommendation string
}

type thresholdPair struct{ warning, critical float64 }

// thresholds pairs each resource's WARNING level (the values the spec
// calls out: CPU 90, memory 85, disk 95) with a CRITICAL level 5
// points higher, capped at 100.
var thresholds = map[string]thresholdPair{
	"cpu":    {warning: 90, critical: 95},
	"memory": {warning: 85, critical: 90},
	"disk":   {warning: 95, critical: 100},
}

var recommendations = map[string]string{
	"cpu":    "reduce worker pool size",
	"memory": "reduce batch size or free memory before continuing",
	"disk":   "clear temporary files or expand storage",
}

// osProbe is the OS-level resource probe seam; gopsutilProbe is the
// production implementation, and tests substitute a fake so
// assertions don't depend on the state of the machine running them.
type osProbe interface {
	CPUPercent(ctx context.Context) (float64, error)
	MemPercent(ctx context.Context) (float64, error)
	DiskPercent(ctx context.Context, path string) (float64, error)
}

type gopsutilProbe struct{}

func (gopsutilProbe) CPUPercent(ctx context.Context) (float64, error) {
	percents, err := cpu.PercentWithContext(ctx, 0, false)
	if err != nil {
		return 0, err
	}
	if len(percents) == 0 {
		return 0, nil
	}
	return percents[0], nil
}

func (gopsutilProbe) MemPercent(ctx context.Context) (float64, error) {
	vm, err := mem.VirtualMemoryWithContext(ctx)
	if err != nil {
		return 0, err
	}
	return vm.UsedPercent, nil
}

func (gopsutilProbe) DiskPercent(ctx context.Context, path string) (float64, error) {
	usage, err := disk.UsageWithContext(ctx, path)
	if err != nil {
		return 0, err
	}
	return usage.UsedPercent, nil
}

// Monitor samples resource usage and retains a bounded ring of recent
// samples for the current/average/peak/trend views.
type Monitor struct {
	// DiskPath is the filesystem checked for disk usage; defaults to "/".
	DiskPath string
	// MaxSamples bounds the retained history; defaults to 300.
	MaxSamples int

	probe osProbe

	mu      sync.Mutex
	samples []Sample
	done    chan struct{}

	cpuGauge  prometheus.Gauge
	memGauge  prometheus.Gauge
	diskGauge prometheus.Gauge
}

// New builds a Monitor and registers its gauges
// (docetl_cpu_percent, docetl_mem_percent, docetl_disk_percent) with
// registerer. Pass a fresh *prometheus.Registry per Monitor in tests
// to avoid collisions with the global default registerer.
func New(registerer prometheus.Registerer) *Monitor {
	m := &Monitor{probe: gopsutilProbe{}}
	m.cpuGauge = prometheus.NewGauge(prometheus.GaugeOpts{Name: "docetl_cpu_percent", Help: "Current CPU utilization percentage."})
	m.memGauge = prometheus.NewGauge(prometheus.GaugeOpts{Name: "docetl_mem_percent", Help: "Current memory utilization percentage."})
	m.diskGauge = prometheus.NewGauge(prometheus.GaugeOpts{Name: "docetl_disk_percent", Help: "Current disk utilization percentage."})
	if registerer != nil {
		registerer.MustRegister(m.cpuGauge, m.memGauge, m.diskGauge)
	}
	return m
}

func (m *Monitor) diskPath() string {
	if m.DiskPath != "" {
		return m.DiskPath
	}
	return "/"
}

func (m *Monitor) maxSamples() int {
	if m.MaxSamples > 0 {
		return m.MaxSamples
	}
	return defaultMaxSamples
}

// Record takes one reading, appends it to the retained history, and
// updates the Prometheus gauges.
func (m *Monitor) Record(ctx context.Context) (Sample, error) {
	cpuPct, err := m.probe.CPUPercent(ctx)
	if err != nil {
		return Sample{}, err
	}
	memPct, err := m.probe.MemPercent(ctx)
	if err != nil {
		return Sample{}, err
	}
	diskPct, err := m.probe.DiskPercent(ctx, m.diskPath())
	if err != nil {
		return Sample{}, err
	}

	snap := Sample{Timestamp: time.Now(), CPUPercent: cpuPct, MemPercent: memPct, DiskPercent: diskPct}

	m.mu.Lock()
	m.samples = append(m.samples, snap)
	if over := len(m.samples) - m.maxSamples(); over > 0 {
		m.samples = m.samples[over:]
	}
	m.mu.Unlock()

	m.cpuGauge.Set(snap.CPUPercent)
	m.memGauge.Set(snap.MemPercent)
	m.diskGauge.Set(snap.DiskPercent)
	return snap, nil
}

// Sample satisfies dispatcher.ResourceMonitor, recording a full
// reading and returning its CPU/memory components.
func (m *Monitor) Sample(ctx context.Context) (cpuPercent, memPercent float64, err error) {
	snap, err := m.Record(ctx)
	if err != nil {
		return 0, 0, err
	}
	return snap.CPUPercent, snap.MemPercent, nil
}

// Start records at ~1 Hz until ctx is done or Stop is called. A
// Monitor already started is a no-op.
func (m *Monitor) Start(ctx context.Context) {
	m.mu.Lock()
	if m.done != nil {
		m.mu.Unlock()
		return
	}
	done := make(chan struct{})
	m.done = done
	m.mu.Unlock()

	go func() {
		ticker := time.NewTicker(defaultInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-done:
				return
			case <-ticker.C:
				_, _ = m.Record(ctx)
			}
		}
	}()
}

// Stop halts a Monitor started with Start.
func (m *Monitor) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.done != nil {
		close(m.done)
		m.done = nil
	}
}

// Current returns the most recent sample, if any.
func (m *Monitor) Current() (Sample, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.samples) == 0 {
		return Sample{}, false
	}
	return m.samples[len(m.samples)-1], true
}

// Average returns the mean of every retained sample.
func (m *Monitor) Average() (Sample, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.samples) == 0 {
		return Sample{}, false
	}
	var cpuSum, memSum, diskSum float64
	for _, s := range m.samples {
		cpuSum += s.CPUPercent
		memSum += s.MemPercent
		diskSum += s.DiskPercent
	}
	n := float64(len(m.samples))
	return Sample{CPUPercent: cpuSum / n, MemPercent: memSum / n, DiskPercent: diskSum / n}, true
}

// Peak returns the per-resource maximum across every retained sample.
func (m *Monitor) Peak() (Sample, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.samples) == 0 {
		return Sample{}, false
	}
	peak := m.samples[0]
	for _, s := range m.samples[1:] {
		if s.CPUPercent > peak.CPUPercent {
			peak.CPUPercent = s.CPUPercent
		}
		if s.MemPercent > peak.MemPercent {
			peak.MemPercent = s.MemPercent
		}
		if s.DiskPercent > peak.DiskPercent {
			peak.DiskPercent = s.DiskPercent
		}
	}
	return peak, true
}

// Trend compares the average of the first trendWindow samples against
// the last trendWindow samples for each resource, classifying a move
// beyond ±10% as increasing/decreasing and anything else stable.
// Fewer than 2*trendWindow samples always reports stable.
func (m *Monitor) Trend() Trends {
	m.mu.Lock()
	samples := append([]Sample(nil), m.samples...)
	m.mu.Unlock()

	return Trends{
		CPU:    trendFor(samples, func(s Sample) float64 { return s.CPUPercent }),
		Memory: trendFor(samples, func(s Sample) float64 { return s.MemPercent }),
		Disk:   trendFor(samples, func(s Sample) float64 { return s.DiskPercent }),
	}
}

func trendFor(samples []Sample, pick func(Sample) float64) Trend {
	if len(samples) < 2*trendWindow {
		return TrendStable
	}
	first := avgOf(samples[:trendWindow], pick)
	last := avgOf(samples[len(samples)-trendWindow:], pick)
	if first == 0 {
		return TrendStable
	}
	delta := (last - first) / first
	switch {
	case delta > trendThreshold:
		return TrendIncreasing
	case delta < -trendThreshold:
		return TrendDecreasing
	default:
		return TrendStable
	}
}

func avgOf(samples []Sample, pick func(Sample) float64) float64 {
	var sum float64
	for _, s := range samples {
		sum += pick(s)
	}
	return sum / float64(len(samples))
}

// Alerts evaluates the current sample against the threshold pairs,
// returning one Alert per resource that has crossed WARNING or
// CRITICAL.
func (m *Monitor) Alerts() []Alert {
	snap, ok := m.Current()
	if !ok {
		return nil
	}

	var alerts []Alert
	check := func(resource string, value float64) {
		t := thresholds[resource]
		switch {
		case value >= t.critical:
			alerts = append(alerts, Alert{Resource: resource, Severity: SeverityCritical, Value: value, Recommendation: recommendations[resource]})
		case value >= t.warning:
			alerts = append(alerts, Alert{Resource: resource, Severity: SeverityWarning, Value: value, Recommendation: recommendations[resource]})
		}
	}
	check("cpu", snap.CPUPercent)
	check("memory", snap.MemPercent)
	check("disk", snap.DiskPercent)
	return alerts
}
