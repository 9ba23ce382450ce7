package main

import (
	"fmt"
	"io"
	"time"

	"github.com/fatih/color"
	"github.com/steveyegge/diyqa/internal/analysis"
	"github.com/steveyegge/diyqa/internal/correction"
	"github.com/steveyegge/diyqa/internal/iterative"
	"github.com/steveyegge/diyqa/internal/types"
)

func header(w io.Writer, title string) {
	cyan := color.New(color.FgCyan, color.Bold).SprintFunc()
	fmt.Fprintf(w, "\n%s\n\n", cyan("=== "+title+" ==="))
}

func printGeneration(w io.Writer, results []types.GenerationResult) {
	valid := 0
	for _, r := range results {
		if r.IsValid {
			valid++
		}
	}
	green := color.New(color.FgGreen).SprintFunc()
	fmt.Fprintf(w, "%s Generated %d samples (%d parsed cleanly)\n", green("✓"), len(results), valid)
}

func printValidation(w io.Writer, s types.ValidationSummary) {
	header(w, "Structural Validation")
	yellow := color.New(color.FgYellow).SprintFunc()
	fmt.Fprintf(w, "  Total generated:  %d\n", s.TotalGenerated)
	fmt.Fprintf(w, "  Valid samples:    %d\n", s.ValidSamples)
	fmt.Fprintf(w, "  Invalid samples:  %d\n", s.InvalidSamples)
	fmt.Fprintf(w, "  Validation rate:  %.1f%%\n", s.ValidationRate*100)
	if len(s.CommonErrors) > 0 {
		fmt.Fprintf(w, "\n%s\n", yellow("Most common errors:"))
		for i, e := range s.CommonErrors {
			fmt.Fprintf(w, "  %d. %s\n", i+1, e)
		}
	}
	fmt.Fprintln(w)
}

func printLabeling(w io.Writer, rows []types.JudgeRecord) {
	header(w, "Failure Labeling")
	rate := failureRate(rows)
	fmt.Fprintf(w, "  Labeled samples:  %d\n", len(rows))
	fmt.Fprintf(w, "  Failure rate:     %s\n", colorRate(rate, 0.5))
	fmt.Fprintf(w, "  Success rate:     %.1f%%\n\n", (1-rate)*100)
}

func printAnalysis(w io.Writer, a *analysis.Analyzer, r analysis.Report) {
	header(w, "Failure Analysis")
	s := r.Summary
	yellow := color.New(color.FgYellow).SprintFunc()

	fmt.Fprintf(w, "  Total samples:    %d\n", s.TotalSamples)
	fmt.Fprintf(w, "  Failure rate:     %s (target < %.2f%%)\n", colorRate(s.OverallFailureRate, s.TargetFailureRate), s.TargetFailureRate*100)
	if s.TargetMet {
		fmt.Fprintf(w, "  Target:           %s\n", color.GreenString("met"))
	} else {
		fmt.Fprintf(w, "  Target:           %s (at most %d failed of %d)\n", color.RedString("not met"), s.MaxFailures(), s.TotalSamples)
	}

	fmt.Fprintf(w, "\n%s\n", yellow("Failure mode rates:"))
	for _, m := range types.FailureModes {
		fmt.Fprintf(w, "  %-26s %5.1f%%  (%d)\n", m.Title(), s.Rate(m)*100, s.FailureModeCounts[m])
	}

	fmt.Fprintf(w, "\n%s\n", yellow("Top failure patterns:"))
	for i, p := range a.Patterns() {
		if i == 5 {
			break
		}
		fmt.Fprintf(w, "  %3d  %s\n", len(p.Indices), p.Name)
	}

	fmt.Fprintf(w, "\n%s\n", yellow("Recommendations:"))
	for i, rec := range r.Recommendations {
		fmt.Fprintf(w, "  %d. %s\n", i+1, rec)
	}
	fmt.Fprintln(w)
}

func printCorrections(w io.Writer, results []types.CorrectionResult) {
	valid := 0
	for _, r := range results {
		if r.IsValid {
			valid++
		}
	}
	green := color.New(color.FgGreen).SprintFunc()
	fmt.Fprintf(w, "%s Corrected Q&A pairs: %d (valid: %d)\n", green("✓"), len(results), valid)
}

func printMerge(w io.Writer, stats correction.MergeStats) {
	green := color.New(color.FgGreen).SprintFunc()
	fmt.Fprintf(w, "%s Merged %d Q&A pairs (%d replaced with corrected versions)\n", green("✓"), stats.Total, stats.Replaced)
}

func printLoop(w io.Writer, r *iterative.Result, loops *iterative.InMemoryMetricsCollector) {
	header(w, "Correction Loop")
	for i, rate := range r.FailureRates {
		label := "initial"
		if i > 0 {
			label = fmt.Sprintf("pass %d", i)
		}
		fmt.Fprintf(w, "  %-8s %s\n", label, colorRate(rate, 0.5))
	}
	reason := color.YellowString(string(r.Reason))
	if r.Converged() {
		reason = color.GreenString(string(r.Reason))
	}
	fmt.Fprintf(w, "\n  Stopped after %d passes: %s (%v)\n", r.Iterations, reason, r.ElapsedTime.Round(time.Millisecond))

	if loops == nil {
		fmt.Fprintln(w)
		return
	}
	if all := loops.Loops(); len(all) > 0 {
		last := all[len(all)-1]
		fmt.Fprintf(w, "  Improvement: %.1f points\n", last.Improvement()*100)
	}
	agg := loops.Aggregate()
	fmt.Fprintf(w, "  Records corrected: %d over %d passes\n", agg.TotalCorrected, agg.TotalIterations)
	if agg.TotalLoops > 1 {
		fmt.Fprintf(w, "  Loops: %d, %d converged; passes mean %.1f p50 %d p95 %d; mean improvement %.1f points\n",
			agg.TotalLoops, agg.ConvergedLoops, agg.MeanIterations, agg.P50Iterations, agg.P95Iterations, agg.MeanImprovement*100)
	}
	fmt.Fprintln(w)
}

// colorRate renders a rate as a percentage, red when it is at or above limit.
func colorRate(rate, limit float64) string {
	s := fmt.Sprintf("%.1f%%", rate*100)
	if rate >= limit {
		return color.RedString(s)
	}
	return color.GreenString(s)
}
