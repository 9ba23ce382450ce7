package main

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"github.com/steveyegge/diyqa/internal/storage"
	"github.com/steveyegge/diyqa/internal/types"
	"github.com/steveyegge/diyqa/internal/validation"
)

// datasetStats summarizes whatever stage outputs exist.
type datasetStats struct {
	Generated   int
	ParsedValid int
	Validation  *types.ValidationSummary
	Labeled     int
	Failed      int
	Corrected   int
	CorrectedOK int
	Merged      int
	HumanLabels int
}

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show quick statistics from existing stage outputs",
	Run: func(cmd *cobra.Command, args []string) {
		s, err := collectStats(cfg.Path)
		exitOnError(err)
		printStats(os.Stdout, s)
	},
}

// collectStats reads each stage file that exists. Nothing at all is an error.
func collectStats(path func(string) string) (*datasetStats, error) {
	s := &datasetStats{}
	found := false

	read := func(name string, v any) (bool, error) {
		err := storage.ReadJSON(path(name), v)
		if errors.Is(err, storage.ErrMissingUpstream) {
			return false, nil
		}
		if err != nil {
			return false, err
		}
		found = true
		return true, nil
	}

	var results []types.GenerationResult
	ok, err := read(storage.GenerationResultsFile, &results)
	if err != nil {
		return nil, err
	}
	if ok {
		s.Generated = len(results)
		for _, r := range results {
			if r.IsValid {
				s.ParsedValid++
			}
		}
	}

	var summary types.ValidationSummary
	if ok, err := read(storage.ValidationSummaryFile, &summary); err != nil {
		return nil, err
	} else if ok {
		s.Validation = &summary
	} else if s.Generated > 0 {
		_, computed := validation.ValidateBatch(results)
		s.Validation = &computed
	}

	var rows []types.JudgeRecord
	if ok, err := read(storage.LabeledDataFile, &rows); err != nil {
		return nil, err
	} else if ok {
		s.Labeled = len(rows)
		s.Failed = int(failureRate(rows)*float64(len(rows)) + 0.5)
	}

	var corrections []types.CorrectionResult
	if ok, err := read(storage.CorrectedPairsFile, &corrections); err != nil {
		return nil, err
	} else if ok {
		s.Corrected = len(corrections)
		for _, c := range corrections {
			if c.IsValid {
				s.CorrectedOK++
			}
		}
	}

	var merged []types.TracedRecord
	if ok, err := read(storage.MergedPairsFile, &merged); err != nil {
		return nil, err
	} else if ok {
		s.Merged = len(merged)
	}

	var labels []map[string]any
	if ok, err := read(storage.HumanLabelsFile, &labels); err != nil {
		return nil, err
	} else if ok {
		s.HumanLabels = len(labels)
	}

	if !found {
		return nil, fmt.Errorf("%w: no stage outputs in %s", storage.ErrMissingUpstream, path(""))
	}
	return s, nil
}

func printStats(w io.Writer, s *datasetStats) {
	header(w, "Dataset Statistics")
	yellow := color.New(color.FgYellow).SprintFunc()
	gray := color.New(color.FgHiBlack).SprintFunc()

	fmt.Fprintf(w, "%s\n", yellow("Generation:"))
	if s.Generated == 0 {
		fmt.Fprintf(w, "  %s\n", gray("no generation results"))
	} else {
		fmt.Fprintf(w, "  Generated:        %d\n", s.Generated)
		fmt.Fprintf(w, "  Parsed cleanly:   %d (%.1f%%)\n", s.ParsedValid, pct(s.ParsedValid, s.Generated))
	}
	if v := s.Validation; v != nil {
		fmt.Fprintf(w, "  Structurally OK:  %d (%.1f%%)\n", v.ValidSamples, v.ValidationRate*100)
	}

	fmt.Fprintf(w, "\n%s\n", yellow("Labeling:"))
	if s.Labeled == 0 {
		fmt.Fprintf(w, "  %s\n", gray("no labeled data"))
	} else {
		fmt.Fprintf(w, "  Labeled:          %d\n", s.Labeled)
		fmt.Fprintf(w, "  Failed:           %d (%.1f%%)\n", s.Failed, pct(s.Failed, s.Labeled))
	}

	fmt.Fprintf(w, "\n%s\n", yellow("Correction:"))
	fmt.Fprintf(w, "  Corrections:      %d (valid: %d)\n", s.Corrected, s.CorrectedOK)
	fmt.Fprintf(w, "  Merged records:   %d\n", s.Merged)
	fmt.Fprintf(w, "  Human labels:     %d\n\n", s.HumanLabels)
}

func pct(n, total int) float64 {
	if total == 0 {
		return 0
	}
	return float64(n) / float64(total) * 100
}

func init() {
	rootCmd.AddCommand(statsCmd)
}
