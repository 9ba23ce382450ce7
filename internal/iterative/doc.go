// Package iterative drives the correction loop over a labeled dataset.
//
// # Overview
//
// A labeled dataset that misses its failure-rate target is improved by
// repeating one pass: rewrite every record the judge failed, merge the valid
// rewrites back by trace id, and judge the merged dataset again. Passing
// records are never touched, so each pass can only replace failures.
//
// # Architecture
//
// The package separates loop mechanics from the work of a pass:
//   - Converge handles the loop (target check, iteration count, budget, timeout)
//   - Refiner performs one pass; PipelineRefiner wires a corrector and a judge
//   - MetricsCollector observes passes; pass nil to disable it
//
// # Stopping
//
// The target is checked before every pass, including the first. The loop
// stops with one of:
//
//   - ReasonNoFailures: no row has overall_failure = 1
//   - ReasonTargetMet: failure rate strictly below TargetFailureRate
//   - ReasonMaxIterations: MaxIterations passes completed
//   - ReasonBudgetExhausted: Config.Budget refused another pass
//   - ReasonTimeout: Config.Timeout elapsed; the last completed pass is kept
//
// A refiner error or caller cancellation ends the loop with an error.
//
// # Usage Example
//
//	refiner := iterative.NewPipelineRefiner(corrector, judge, logger)
//	cfg := iterative.Config{
//	    MaxIterations:     3,
//	    TargetFailureRate: 0.0632,
//	    Timeout:           30 * time.Minute,
//	    Budget:            func() (bool, string) { return tracker.CanProceed(ai.OpCorrection) },
//	}
//	collector := iterative.NewInMemoryMetricsCollector()
//	result, err := iterative.Converge(ctx, &iterative.Dataset{Records: valid, Judged: judged}, refiner, cfg, collector)
//	if err != nil {
//	    return err
//	}
//	fmt.Printf("stopped after %d passes: %s\n", result.Iterations, result.Reason)
package iterative
