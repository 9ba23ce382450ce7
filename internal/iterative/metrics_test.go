package iterative

import (
	"testing"
	"time"
)

func TestInMemoryMetricsCollector_BasicCollection(t *testing.T) {
	collector := NewInMemoryMetricsCollector()

	collector.RecordIterationStart(1)
	collector.RecordIterationEnd(1, &IterationMetrics{Iteration: 1, TotalRecords: 10, FailedRecords: 3, Corrected: 2, FailureRate: 0.3})
	collector.RecordIterationStart(2)
	collector.RecordIterationEnd(2, &IterationMetrics{Iteration: 2, TotalRecords: 10, FailedRecords: 0, Corrected: 3, FailureRate: 0})
	collector.RecordIterationEnd(3, nil)

	collector.RecordLoopComplete(&Result{Iterations: 2, Reason: ReasonNoFailures}, &LoopMetrics{
		TotalIterations:    2,
		Reason:             ReasonNoFailures,
		InitialFailureRate: 0.5,
		FinalFailureRate:   0,
		TotalDuration:      200 * time.Millisecond,
	})

	loops := collector.Loops()
	if len(loops) != 1 {
		t.Fatalf("Expected 1 loop, got %d", len(loops))
	}
	if len(loops[0].Iterations) != 2 {
		t.Errorf("Expected 2 iterations attached, got %d", len(loops[0].Iterations))
	}
	if loops[0].Improvement() != 0.5 {
		t.Errorf("Expected improvement 0.5, got %v", loops[0].Improvement())
	}
}

func TestInMemoryMetricsCollector_Aggregate(t *testing.T) {
	collector := NewInMemoryMetricsCollector()

	record := func(iterations int, reason StopReason, initial, final float64) {
		for i := 1; i <= iterations; i++ {
			collector.RecordIterationEnd(i, &IterationMetrics{Iteration: i, Corrected: 1})
		}
		collector.RecordLoopComplete(nil, &LoopMetrics{
			TotalIterations:    iterations,
			Reason:             reason,
			InitialFailureRate: initial,
			FinalFailureRate:   final,
			TotalDuration:      time.Second,
		})
	}
	record(1, ReasonTargetMet, 0.2, 0.05)
	record(3, ReasonMaxIterations, 0.4, 0.2)
	record(2, ReasonNoFailures, 0.1, 0)

	agg := collector.Aggregate()
	if agg.TotalLoops != 3 || agg.ConvergedLoops != 2 {
		t.Errorf("Expected 3 loops / 2 converged, got %d / %d", agg.TotalLoops, agg.ConvergedLoops)
	}
	if agg.TotalIterations != 6 || agg.TotalCorrected != 6 {
		t.Errorf("Expected 6 iterations and 6 corrected, got %d / %d", agg.TotalIterations, agg.TotalCorrected)
	}
	if agg.MeanIterations != 2 {
		t.Errorf("Expected mean 2, got %v", agg.MeanIterations)
	}
	if agg.P50Iterations != 2 || agg.P95Iterations != 3 {
		t.Errorf("Expected p50=2 p95=3, got %d / %d", agg.P50Iterations, agg.P95Iterations)
	}
	if agg.ByReason[ReasonMaxIterations] != 1 {
		t.Errorf("Expected one max-iterations loop, got %d", agg.ByReason[ReasonMaxIterations])
	}
	if agg.TotalDuration != 3*time.Second {
		t.Errorf("Expected 3s total, got %v", agg.TotalDuration)
	}
}

func TestInMemoryMetricsCollector_Empty(t *testing.T) {
	agg := NewInMemoryMetricsCollector().Aggregate()
	if agg.TotalLoops != 0 || agg.ByReason == nil {
		t.Errorf("Unexpected empty aggregate: %+v", agg)
	}
}

func TestPercentile(t *testing.T) {
	tests := []struct {
		values []int
		p      int
		want   int
	}{
		{nil, 50, 0},
		{[]int{4}, 95, 4},
		{[]int{1, 2, 3, 4}, 50, 3},
		{[]int{1, 2, 3, 4}, 100, 4},
	}
	for _, tt := range tests {
		if got := percentile(tt.values, tt.p); got != tt.want {
			t.Errorf("percentile(%v, %d) = %d, want %d", tt.values, tt.p, got, tt.want)
		}
	}
}

type countingCollector struct{ starts, ends, completes int }

func (c *countingCollector) RecordIterationStart(int) { c.starts++ }
func (c *countingCollector) RecordIterationEnd(int, *IterationMetrics) { c.ends++ }
func (c *countingCollector) RecordLoopComplete(*Result, *LoopMetrics) { c.completes++ }

func TestMultiCollector(t *testing.T) {
	a, b := &countingCollector{}, &countingCollector{}
	mc := MultiCollector{a, b}

	mc.RecordIterationStart(1)
	mc.RecordIterationEnd(1, &IterationMetrics{})
	mc.RecordLoopComplete(&Result{}, &LoopMetrics{})

	for _, c := range []*countingCollector{a, b} {
		if c.starts != 1 || c.ends != 1 || c.completes != 1 {
			t.Errorf("Expected one call each, got %+v", *c)
		}
	}
}
