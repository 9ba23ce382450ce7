package iterative

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Converge runs the correction loop from initial. The target is checked
// before every pass, so a dataset that already meets it costs nothing.
//
// Safeguards:
// - MaxIterations prevents runaway iteration
// - Budget stops the loop before a pass that could not be paid for
// - Timeout (if configured) limits total duration and keeps the last completed pass
// - Errors from the refiner are propagated immediately
//
// Pass a nil collector to disable metrics collection.
func Converge(ctx context.Context, initial *Dataset, refiner Refiner, cfg Config, collector MetricsCollector) (*Result, error) {
	start := time.Now()

	if cfg.MaxIterations < 0 {
		return nil, fmt.Errorf("MaxIterations cannot be negative: %d", cfg.MaxIterations)
	}
	if cfg.TargetFailureRate < 0 || cfg.TargetFailureRate > 1 {
		return nil, fmt.Errorf("TargetFailureRate must be within [0,1]: %v", cfg.TargetFailureRate)
	}
	if initial == nil {
		return nil, errors.New("initial dataset is required")
	}

	if cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cfg.Timeout)
		defer cancel()
	}

	current := initial
	result := &Result{FailureRates: []float64{initial.FailureRate()}}

	finish := func(reason StopReason) (*Result, error) {
		result.Final = current
		result.Reason = reason
		result.ElapsedTime = time.Since(start)
		if collector != nil {
			collector.RecordLoopComplete(result, &LoopMetrics{
				TotalIterations:    result.Iterations,
				Reason:             reason,
				InitialFailureRate: result.FailureRates[0],
				FinalFailureRate:   current.FailureRate(),
				TotalDuration:      result.ElapsedTime,
			})
		}
		return result, nil
	}

	for i := 1; ; i++ {
		if current.Failed() == 0 {
			return finish(ReasonNoFailures)
		}
		if current.FailureRate() < cfg.TargetFailureRate {
			return finish(ReasonTargetMet)
		}
		if i > cfg.MaxIterations {
			return finish(ReasonMaxIterations)
		}
		if cfg.Budget != nil {
			if ok, _ := cfg.Budget(); !ok {
				return finish(ReasonBudgetExhausted)
			}
		}
		if err := ctx.Err(); err != nil {
			if errors.Is(err, context.DeadlineExceeded) {
				return finish(ReasonTimeout)
			}
			return nil, fmt.Errorf("correction loop canceled after %d iterations: %w", i-1, err)
		}

		if collector != nil {
			collector.RecordIterationStart(i)
		}
		iterStart := time.Now()

		next, replaced, err := refiner.Refine(ctx, current)
		if err != nil {
			// a pass cut short by the deadline is discarded
			if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
				return finish(ReasonTimeout)
			}
			return nil, fmt.Errorf("correction loop failed at iteration %d: %w", i, err)
		}

		current = next
		result.Iterations = i
		result.FailureRates = append(result.FailureRates, current.FailureRate())

		if collector != nil {
			collector.RecordIterationEnd(i, &IterationMetrics{
				Iteration:     i,
				TotalRecords:  len(current.Judged),
				FailedRecords: current.Failed(),
				Corrected:     replaced,
				FailureRate:   current.FailureRate(),
				Duration:      time.Since(iterStart),
			})
		}
	}
}
