package iterative

import (
	"context"
	"time"

	"github.com/steveyegge/diyqa/internal/types"
)

// Dataset is the loop state: the valid records and their latest judge rows.
type Dataset struct {
	Records []types.TracedRecord
	Judged  []types.JudgeRecord
}

// Failed counts rows with overall_failure = 1.
func (d *Dataset) Failed() int {
	n := 0
	for _, r := range d.Judged {
		n += r.OverallFailure
	}
	return n
}

// FailureRate is failed rows over judged rows. An empty dataset has rate 0.
func (d *Dataset) FailureRate() float64 {
	if len(d.Judged) == 0 {
		return 0
	}
	return float64(d.Failed()) / float64(len(d.Judged))
}

// BudgetCheck reports whether another iteration may spend tokens.
type BudgetCheck func() (ok bool, reason string)

// Config controls the loop.
type Config struct {
	// MaxIterations bounds the number of correct/merge/relabel passes.
	MaxIterations int

	// TargetFailureRate must be strictly beaten for the loop to stop early.
	TargetFailureRate float64

	// Timeout limits the whole loop. Zero means no timeout.
	Timeout time.Duration

	// Budget is consulted before each pass. Nil means unlimited.
	Budget BudgetCheck
}

// Refiner performs one pass over the dataset.
type Refiner interface {
	// Refine returns the next dataset and how many records it replaced.
	Refine(ctx context.Context, ds *Dataset) (*Dataset, int, error)
}

// StopReason explains why the loop ended.
type StopReason string

const (
	ReasonTargetMet       StopReason = "target met"
	ReasonNoFailures      StopReason = "no failures"
	ReasonMaxIterations   StopReason = "max iterations"
	ReasonBudgetExhausted StopReason = "budget exhausted"
	ReasonTimeout         StopReason = "timeout"
)

// Result captures the outcome of a loop.
type Result struct {
	Final        *Dataset
	Iterations   int
	Reason       StopReason
	FailureRates []float64 // initial rate followed by one per pass
	ElapsedTime  time.Duration
}

// Converged reports whether the loop ended with the target met.
func (r *Result) Converged() bool {
	return r.Reason == ReasonTargetMet || r.Reason == ReasonNoFailures
}
