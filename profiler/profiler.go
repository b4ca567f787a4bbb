// Package profiler - collects rolling timing and value statistics of the
// detection pipeline.
package profiler

import (
	"runtime"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"
)

// DefaultMaxSamples bounds the samples kept per series.
const DefaultMaxSamples = 600

// OperationStats summarizes the retained durations of one operation.
type OperationStats struct {
	Count int           `json:"count" yaml:"count"`
	Total time.Duration `json:"total" yaml:"total"`
	Mean  time.Duration `json:"mean" yaml:"mean"`
	Min   time.Duration `json:"min" yaml:"min"`
	Max   time.Duration `json:"max" yaml:"max"`
}

// MetricStats summarizes the retained values of one metric.
type MetricStats struct {
	Count int     `json:"count" yaml:"count"`
	Mean  float64 `json:"mean" yaml:"mean"`
	Min   float64 `json:"min" yaml:"min"`
	Max   float64 `json:"max" yaml:"max"`
}

// Snapshot is a point-in-time copy of the profiler state.
type Snapshot struct {
	Uptime     time.Duration             `json:"uptime" yaml:"uptime"`
	Goroutines int                       `json:"goroutines" yaml:"goroutines"`
	HeapAlloc  uint64                    `json:"heapAlloc" yaml:"heapAlloc"`
	Operations map[string]OperationStats `json:"operations" yaml:"operations"`
	Metrics    map[string]MetricStats    `json:"metrics" yaml:"metrics"`
}

type timeTracker struct {
	durations []time.Duration
	total     time.Duration
}

type metricTracker struct {
	values []float64
	sum    float64
}

// Profiler records operation durations and metric values, keeping the last
// MaxSamples of each series. It is safe for concurrent use.
type Profiler struct {
	mu         sync.Mutex
	maxSamples int
	startTime  time.Time
	operations map[string]*timeTracker
	metrics    map[string]*metricTracker
}

// New returns a profiler keeping at most maxSamples per series
// (DefaultMaxSamples when maxSamples <= 0).
func New(maxSamples int) *Profiler {
	if maxSamples <= 0 {
		maxSamples = DefaultMaxSamples
	}
	return &Profiler{
		maxSamples: maxSamples,
		startTime:  time.Now(),
		operations: make(map[string]*timeTracker),
		metrics:    make(map[string]*metricTracker),
	}
}

// StartOperation begins timing an operation.
//
// Arguments:
// - name: The name of the operation to track
//
// Returns:
// - A function to call when the operation completes
func (p *Profiler) StartOperation(name string) func() {
	start := time.Now()
	return func() {
		p.RecordDuration(name, time.Since(start))
	}
}

// RecordDuration records one completed operation.
func (p *Profiler) RecordDuration(name string, d time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()

	t, ok := p.operations[name]
	if !ok {
		t = &timeTracker{}
		p.operations[name] = t
	}

	t.durations = append(t.durations, d)
	t.total += d
	if len(t.durations) > p.maxSamples {
		// Drop the oldest sample.
		t.total -= t.durations[0]
		t.durations = t.durations[1:]
	}
}

// RecordMetric records one metric value.
func (p *Profiler) RecordMetric(name string, value float64) {
	p.mu.Lock()
	defer p.mu.Unlock()

	m, ok := p.metrics[name]
	if !ok {
		m = &metricTracker{}
		p.metrics[name] = m
	}

	m.values = append(m.values, value)
	m.sum += value
	if len(m.values) > p.maxSamples {
		m.sum -= m.values[0]
		m.values = m.values[1:]
	}
}

// Snapshot summarizes the retained samples.
func (p *Profiler) Snapshot() Snapshot {
	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)

	p.mu.Lock()
	defer p.mu.Unlock()

	s := Snapshot{
		Uptime:     time.Since(p.startTime),
		Goroutines: runtime.NumGoroutine(),
		HeapAlloc:  mem.HeapAlloc,
		Operations: make(map[string]OperationStats, len(p.operations)),
		Metrics:    make(map[string]MetricStats, len(p.metrics)),
	}

	for name, t := range p.operations {
		st := OperationStats{Count: len(t.durations), Total: t.total}
		for i, d := range t.durations {
			if i == 0 || d < st.Min {
				st.Min = d
			}
			if d > st.Max {
				st.Max = d
			}
		}
		if st.Count > 0 {
			st.Mean = t.total / time.Duration(st.Count)
		}
		s.Operations[name] = st
	}

	for name, m := range p.metrics {
		st := MetricStats{Count: len(m.values)}
		for i, v := range m.values {
			if i == 0 || v < st.Min {
				st.Min = v
			}
			if i == 0 || v > st.Max {
				st.Max = v
			}
		}
		if st.Count > 0 {
			st.Mean = m.sum / float64(st.Count)
		}
		s.Metrics[name] = st
	}

	return s
}

// LogReport writes the snapshot at info level, one line per series in name
// order.
func (p *Profiler) LogReport(logger *zap.Logger) {
	s := p.Snapshot()

	logger.Info("profiler report",
		zap.Duration("uptime", s.Uptime.Truncate(time.Millisecond)),
		zap.Int("goroutines", s.Goroutines),
		zap.Uint64("heapAlloc", s.HeapAlloc),
	)

	for _, name := range sortedKeys(s.Operations) {
		st := s.Operations[name]
		logger.Info("operation timing",
			zap.String("operation", name),
			zap.Int("count", st.Count),
			zap.Duration("mean", st.Mean.Truncate(time.Microsecond)),
			zap.Duration("min", st.Min.Truncate(time.Microsecond)),
			zap.Duration("max", st.Max.Truncate(time.Microsecond)),
		)
	}
	for _, name := range sortedKeys(s.Metrics) {
		st := s.Metrics[name]
		logger.Info("metric",
			zap.String("metric", name),
			zap.Int("count", st.Count),
			zap.Float64("mean", st.Mean),
			zap.Float64("min", st.Min),
			zap.Float64("max", st.Max),
		)
	}
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
