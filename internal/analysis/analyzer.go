// Package analysis aggregates judge output into failure rates, correlations,
// co-occurrence patterns and recommendations. Everything here is a pure
// function of the labeled rows.
package analysis

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/steveyegge/diyqa/internal/types"
)

// DefaultTarget is the failure rate a dataset must stay strictly below.
const DefaultTarget = 0.0632

// NoFailuresPattern names the all-zero flag tuple.
const NoFailuresPattern = "No Failures"

// ErrNoRecords is returned when there is nothing to analyze.
var ErrNoRecords = errors.New("no labeled records to analyze")

// Analyzer computes statistics over one labeling pass.
type Analyzer struct {
	records []types.JudgeRecord
	target  float64
}

// New creates an analyzer. target <= 0 selects DefaultTarget.
func New(records []types.JudgeRecord, target float64) (*Analyzer, error) {
	if len(records) == 0 {
		return nil, ErrNoRecords
	}
	if target <= 0 {
		target = DefaultTarget
	}
	return &Analyzer{records: records, target: target}, nil
}

// Summary is the headline statistics block.
type Summary struct {
	TotalSamples        int                           `json:"total_samples"`
	OverallFailureRate  float64                       `json:"overall_failure_rate"`
	OverallSuccessRate  float64                       `json:"overall_success_rate"`
	TargetFailureRate   float64                       `json:"target_failure_rate"`
	TargetMet           bool                          `json:"target_met"`
	FailureModeRates    map[types.FailureMode]float64 `json:"failure_mode_rates"`
	FailureModeCounts   map[types.FailureMode]int     `json:"failure_mode_counts"`
	MostCommonFailures  []types.FailureMode           `json:"most_common_failures"`
	LeastCommonFailures []types.FailureMode           `json:"least_common_failures"`
}

// Rate returns the failure rate of m.
func (s Summary) Rate(m types.FailureMode) float64 {
	return s.FailureModeRates[m]
}

// MaxFailures is how many failed records the target tolerates at this size.
func (s Summary) MaxFailures() int {
	return int(float64(s.TotalSamples) * s.TargetFailureRate)
}

// Summary computes rates. target_met uses a strict comparison.
func (a *Analyzer) Summary() Summary {
	n := float64(len(a.records))
	s := Summary{
		TotalSamples:      len(a.records),
		TargetFailureRate: a.target,
		FailureModeRates:  make(map[types.FailureMode]float64, types.NumModes),
		FailureModeCounts: make(map[types.FailureMode]int, types.NumModes),
	}

	var failed int
	var counts [types.NumModes]int
	for _, r := range a.records {
		failed += r.OverallFailure
		for i := range types.FailureModes {
			counts[i] += r.Scores[i]
		}
	}

	s.OverallFailureRate = float64(failed) / n
	s.OverallSuccessRate = 1 - s.OverallFailureRate
	s.TargetMet = s.OverallFailureRate < a.target

	var rates [types.NumModes]float64
	for i, m := range types.FailureModes {
		rates[i] = float64(counts[i]) / n
		s.FailureModeRates[m] = rates[i]
		s.FailureModeCounts[m] = counts[i]
	}

	s.MostCommonFailures = rankModes(rates, true)[:3]
	s.LeastCommonFailures = rankModes(rates, false)[:3]
	return s
}

// rankModes sorts modes by rate; ties keep declaration order in both directions.
func rankModes(rates [types.NumModes]float64, descending bool) []types.FailureMode {
	idx := []int{0, 1, 2, 3, 4, 5}
	sort.SliceStable(idx, func(i, j int) bool {
		if descending {
			return rates[idx[i]] > rates[idx[j]]
		}
		return rates[idx[i]] < rates[idx[j]]
	})
	out := make([]types.FailureMode, len(idx))
	for i, k := range idx {
		out[i] = types.FailureModes[k]
	}
	return out
}

// Correlations computes the pairwise Pearson matrix of the six mode columns.
// A pair involving a constant column is undefined and left nil.
func (a *Analyzer) Correlations() Correlations {
	var cols [types.NumModes][]float64
	for i := range cols {
		cols[i] = make([]float64, len(a.records))
		for k, r := range a.records {
			cols[i][k] = float64(r.Scores[i])
		}
	}

	var c Correlations
	for i := range cols {
		for j := range cols {
			c[i][j] = pearson(cols[i], cols[j])
		}
	}
	return c
}

func pearson(x, y []float64) *float64 {
	n := float64(len(x))
	var mx, my float64
	for i := range x {
		mx += x[i]
		my += y[i]
	}
	mx /= n
	my /= n

	var cov, vx, vy float64
	for i := range x {
		dx, dy := x[i]-mx, y[i]-my
		cov += dx * dy
		vx += dx * dx
		vy += dy * dy
	}
	if vx == 0 || vy == 0 {
		return nil
	}
	r := cov / math.Sqrt(vx*vy)
	return &r
}

// Pattern is a group of records sharing one exact six-flag tuple.
type Pattern struct {
	Name    string
	Flags   [types.NumModes]int
	Indices []int
}

// Patterns groups records by flag tuple, largest group first; equal sizes
// keep first-appearance order.
func (a *Analyzer) Patterns() []Pattern {
	var out []Pattern
	pos := make(map[[types.NumModes]int]int)
	for i, r := range a.records {
		k, ok := pos[r.Scores]
		if !ok {
			k = len(out)
			pos[r.Scores] = k
			out = append(out, Pattern{Name: PatternName(r.Scores), Flags: r.Scores})
		}
		out[k].Indices = append(out[k].Indices, i)
	}
	sort.SliceStable(out, func(i, j int) bool {
		return len(out[i].Indices) > len(out[j].Indices)
	})
	return out
}

// PatternName renders a flag tuple, e.g. "Safety Violations + Poor Quality Tips".
func PatternName(flags [types.NumModes]int) string {
	var names []string
	for i, f := range flags {
		if f == 1 {
			names = append(names, types.FailureModes[i].Title())
		}
	}
	if len(names) == 0 {
		return NoFailuresPattern
	}
	return strings.Join(names, " + ")
}

// Recommendations applies the fixed recommendation rules to this dataset.
func (a *Analyzer) Recommendations() []string {
	return Recommend(a.Summary(), a.Patterns())
}

// Recommend is the rule set:
//   - the most common mode and its rate, always
//   - the share of records with no failures, when there are any
//   - a prompt engineering note above a 50% failure rate
//   - the required threshold when the target is missed
func Recommend(s Summary, patterns []Pattern) []string {
	var recs []string

	if len(s.MostCommonFailures) > 0 {
		top := s.MostCommonFailures[0]
		recs = append(recs, fmt.Sprintf("Focus on improving '%s' - it's the most common failure mode (%.1f%% failure rate)",
			top.Label(), s.Rate(top)*100))
	}

	for _, p := range patterns {
		if p.Name == NoFailuresPattern && len(p.Indices) > 0 && s.TotalSamples > 0 {
			share := float64(len(p.Indices)) / float64(s.TotalSamples)
			recs = append(recs, fmt.Sprintf("Good news: %.1f%% of samples have no failures - analyze these for best practices", share*100))
			break
		}
	}

	if s.OverallFailureRate > 0.5 {
		recs = append(recs, "High overall failure rate suggests need for better prompt engineering or model fine-tuning")
	}

	if !s.TargetMet {
		recs = append(recs, fmt.Sprintf("Final failure rate must be < %.2f%% to meet project success criterion. Run correction phase and re-label, or improve prompts.",
			s.TargetFailureRate*100))
	}
	return recs
}
