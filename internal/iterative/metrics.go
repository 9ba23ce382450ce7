package iterative

import (
	"sort"
	"sync"
	"time"
)

// MetricsCollector provides instrumentation for the correction loop.
// Callers can pass nil to Converge() to disable metrics collection.
type MetricsCollector interface {
	// RecordIterationStart is called at the beginning of each pass
	RecordIterationStart(iteration int)

	// RecordIterationEnd is called when a pass completes successfully
	RecordIterationEnd(iteration int, metrics *IterationMetrics)

	// RecordLoopComplete is called once when the loop stops for any reason
	// other than an error
	RecordLoopComplete(result *Result, metrics *LoopMetrics)
}

// IterationMetrics captures one correct/merge/relabel pass.
type IterationMetrics struct {
	Iteration     int
	TotalRecords  int
	FailedRecords int
	Corrected     int
	FailureRate   float64
	Duration      time.Duration
}

// LoopMetrics captures a whole loop.
type LoopMetrics struct {
	TotalIterations    int
	Reason             StopReason
	InitialFailureRate float64
	FinalFailureRate   float64
	TotalDuration      time.Duration

	// Iterations contains the per-pass metrics
	Iterations []*IterationMetrics
}

// Improvement is the drop in failure rate over the loop.
func (m *LoopMetrics) Improvement() float64 {
	return m.InitialFailureRate - m.FinalFailureRate
}

// AggregateMetrics rolls up statistics across loops.
type AggregateMetrics struct {
	TotalLoops      int
	ConvergedLoops  int
	TotalIterations int
	TotalCorrected  int
	MeanIterations  float64
	P50Iterations   int
	P95Iterations   int
	MeanImprovement float64
	TotalDuration   time.Duration
	ByReason        map[StopReason]int
}

// InMemoryMetricsCollector stores every loop's metrics in memory.
type InMemoryMetricsCollector struct {
	mu                sync.Mutex
	loops             []*LoopMetrics
	currentIterations []*IterationMetrics
}

// NewInMemoryMetricsCollector creates a new in-memory metrics collector
func NewInMemoryMetricsCollector() *InMemoryMetricsCollector {
	return &InMemoryMetricsCollector{}
}

// RecordIterationStart implements MetricsCollector
func (m *InMemoryMetricsCollector) RecordIterationStart(int) {}

// RecordIterationEnd implements MetricsCollector
func (m *InMemoryMetricsCollector) RecordIterationEnd(_ int, metrics *IterationMetrics) {
	if metrics == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.currentIterations = append(m.currentIterations, metrics)
}

// RecordLoopComplete implements MetricsCollector
func (m *InMemoryMetricsCollector) RecordLoopComplete(_ *Result, metrics *LoopMetrics) {
	if metrics == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	metrics.Iterations = m.currentIterations
	m.loops = append(m.loops, metrics)
	m.currentIterations = nil
}

// Loops returns all collected loop metrics.
func (m *InMemoryMetricsCollector) Loops() []*LoopMetrics {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*LoopMetrics(nil), m.loops...)
}

// Aggregate rolls up everything collected so far.
func (m *InMemoryMetricsCollector) Aggregate() *AggregateMetrics {
	m.mu.Lock()
	defer m.mu.Unlock()

	agg := &AggregateMetrics{ByReason: make(map[StopReason]int)}
	if len(m.loops) == 0 {
		return agg
	}

	counts := make([]int, 0, len(m.loops))
	var improvement float64
	for _, l := range m.loops {
		agg.TotalLoops++
		agg.TotalIterations += l.TotalIterations
		agg.TotalDuration += l.TotalDuration
		agg.ByReason[l.Reason]++
		if l.Reason == ReasonTargetMet || l.Reason == ReasonNoFailures {
			agg.ConvergedLoops++
		}
		for _, it := range l.Iterations {
			agg.TotalCorrected += it.Corrected
		}
		improvement += l.Improvement()
		counts = append(counts, l.TotalIterations)
	}

	agg.MeanIterations = float64(agg.TotalIterations) / float64(agg.TotalLoops)
	agg.MeanImprovement = improvement / float64(agg.TotalLoops)
	sort.Ints(counts)
	agg.P50Iterations = percentile(counts, 50)
	agg.P95Iterations = percentile(counts, 95)
	return agg
}

// percentile calculates the Nth percentile from a sorted slice
func percentile(sorted []int, p int) int {
	if len(sorted) == 0 {
		return 0
	}
	index := (len(sorted) * p) / 100
	if index >= len(sorted) {
		index = len(sorted) - 1
	}
	return sorted[index]
}

// MultiCollector fans out to several collectors.
type MultiCollector []MetricsCollector

// RecordIterationStart implements MetricsCollector
func (mc MultiCollector) RecordIterationStart(iteration int) {
	for _, c := range mc {
		c.RecordIterationStart(iteration)
	}
}

// RecordIterationEnd implements MetricsCollector
func (mc MultiCollector) RecordIterationEnd(iteration int, metrics *IterationMetrics) {
	for _, c := range mc {
		c.RecordIterationEnd(iteration, metrics)
	}
}

// RecordLoopComplete implements MetricsCollector
func (mc MultiCollector) RecordLoopComplete(result *Result, metrics *LoopMetrics) {
	for _, c := range mc {
		c.RecordLoopComplete(result, metrics)
	}
}
