package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"github.com/steveyegge/diyqa/internal/storage/sqlite"
	"github.com/steveyegge/diyqa/internal/types"
)

var historyCmd = &cobra.Command{
	Use:   "history [run-id]",
	Short: "Show recorded pipeline runs",
	Long: `List recent runs from the run ledger. With a run ID, show that run's
per-mode failure counts and correction loop passes.`,
	Args: cobra.MaximumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		limit, _ := cmd.Flags().GetInt("limit")
		ctx, cancel := signalContext()
		defer cancel()

		ledger, err := sqlite.Open(ctx, cfg.Ledger())
		exitOnError(err)
		defer func() { _ = ledger.Close() }()

		if len(args) == 1 {
			err = showRun(ctx, os.Stdout, ledger, args[0])
		} else {
			err = listRuns(ctx, os.Stdout, ledger, limit)
		}
		if err != nil {
			_ = ledger.Close()
			exitOnError(err)
		}
	},
}

func listRuns(ctx context.Context, w io.Writer, l *sqlite.Ledger, limit int) error {
	runs, err := l.ListRuns(ctx, limit)
	if err != nil {
		return err
	}
	if len(runs) == 0 {
		fmt.Fprintln(w, "No runs recorded yet")
		return nil
	}

	header(w, "Run History")
	for _, r := range runs {
		fmt.Fprintf(w, "  %s  %-8s %-9s %s  records=%d  failure=%s\n",
			r.ID, r.Command, runStatus(r.Status), r.StartedAt.Local().Format(time.DateTime), r.Records, rateOrDash(r.FailureRate))
	}
	fmt.Fprintln(w)
	return nil
}

func showRun(ctx context.Context, w io.Writer, l *sqlite.Ledger, id string) error {
	r, err := l.GetRun(ctx, id)
	if err != nil {
		return err
	}
	counts, err := l.ModeFailureCounts(ctx, id)
	if err != nil {
		return err
	}
	iterations, err := l.Iterations(ctx, id)
	if err != nil {
		return err
	}

	header(w, "Run "+r.ID)
	fmt.Fprintf(w, "  Command:   %s\n", r.Command)
	fmt.Fprintf(w, "  Model:     %s/%s\n", r.Provider, r.Model)
	fmt.Fprintf(w, "  Status:    %s\n", runStatus(r.Status))
	fmt.Fprintf(w, "  Started:   %s\n", r.StartedAt.Local().Format(time.DateTime))
	if r.FinishedAt != nil {
		fmt.Fprintf(w, "  Duration:  %v\n", r.FinishedAt.Sub(r.StartedAt).Round(time.Millisecond))
	}
	fmt.Fprintf(w, "  Records:   %d\n", r.Records)
	fmt.Fprintf(w, "  Failure:   %s\n", rateOrDash(r.FailureRate))
	if r.Error != "" {
		fmt.Fprintf(w, "  Error:     %s\n", color.RedString(r.Error))
	}

	yellow := color.New(color.FgYellow).SprintFunc()
	if len(counts) > 0 {
		fmt.Fprintf(w, "\n%s\n", yellow("Failures by mode:"))
		for _, m := range types.FailureModes {
			fmt.Fprintf(w, "  %-26s %d\n", m.Title(), counts[m])
		}
	}
	if len(iterations) > 0 {
		fmt.Fprintf(w, "\n%s\n", yellow("Correction loop:"))
		for _, it := range iterations {
			fmt.Fprintf(w, "  pass %d  failed=%d/%d  corrected=%d  rate=%s\n",
				it.Iteration, it.FailedRecords, it.TotalRecords, it.Corrected, colorRate(it.FailureRate, 0.5))
		}
	}
	fmt.Fprintln(w)
	return nil
}

func runStatus(s string) string {
	switch s {
	case sqlite.StatusSucceeded:
		return color.GreenString(s)
	case sqlite.StatusFailed:
		return color.RedString(s)
	default:
		return color.YellowString(s)
	}
}

func rateOrDash(rate *float64) string {
	if rate == nil {
		return "-"
	}
	return fmt.Sprintf("%.1f%%", *rate*100)
}

func init() {
	historyCmd.Flags().Int("limit", 20, "number of runs to list (0 = all)")
	rootCmd.AddCommand(historyCmd)
}
