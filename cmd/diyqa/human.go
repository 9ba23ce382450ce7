package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"github.com/steveyegge/diyqa/internal/humaneval"
	"github.com/steveyegge/diyqa/internal/storage"
	"github.com/steveyegge/diyqa/internal/types"
)

var labelHumanCmd = &cobra.Command{
	Use:   "label-human",
	Short: "Label samples by hand for comparison with the judge",
	Long: `Show one sample at a time and collect failure-mode codes plus an optional comment.
Samples come from failure_labeled_data.json when present, otherwise from
structurally_valid_qa_pairs.json. Labels are saved to human_labels.json after every sample.`,
	Run: func(cmd *cobra.Command, args []string) {
		ctx, cancel := signalContext()
		defer cancel()

		err := withOutputLock(cfg.OutputDir, "label-human", func() error {
			return labelByHand(ctx, cfg.Path)
		})
		if errors.Is(err, context.Canceled) {
			return
		}
		exitOnError(err)
	},
}

// labelByHand runs an interactive session, saving after every sample.
func labelByHand(ctx context.Context, path func(string) string) error {
	samples, err := loadHumanSamples(path)
	if err != nil {
		return err
	}
	existing, err := loadHumanLabels(path(storage.HumanLabelsFile))
	if err != nil {
		return err
	}

	rl, err := humaneval.NewReadline()
	if err != nil {
		return err
	}
	defer rl.Close()

	labelsPath := path(storage.HumanLabelsFile)
	session := humaneval.NewSession(rl, os.Stdout, func(labels []humaneval.HumanLabel) error {
		return storage.WriteJSON(labelsPath, labels)
	})
	_, err = session.Run(ctx, samples, existing)
	return err
}

// loadHumanSamples prefers judged rows so the verdict can be shown.
func loadHumanSamples(path func(string) string) ([]humaneval.Sample, error) {
	var rows []types.JudgeRecord
	err := storage.ReadJSON(path(storage.LabeledDataFile), &rows)
	if err == nil {
		return humaneval.SamplesFromJudged(rows), nil
	}
	if !errors.Is(err, storage.ErrMissingUpstream) {
		return nil, err
	}

	var records []types.TracedRecord
	if err := storage.ReadJSON(path(storage.ValidPairsFile), &records); err != nil {
		return nil, err
	}
	return humaneval.SamplesFromRecords(records), nil
}

// loadHumanLabels treats a missing file as no labels yet.
func loadHumanLabels(path string) ([]humaneval.HumanLabel, error) {
	var labels []humaneval.HumanLabel
	err := storage.ReadJSON(path, &labels)
	if errors.Is(err, storage.ErrMissingUpstream) {
		return nil, nil
	}
	return labels, err
}

var compareCmd = &cobra.Command{
	Use:   "compare",
	Short: "Compare human labels with the judge, per failure mode",
	Run: func(cmd *cobra.Command, args []string) {
		var c *humaneval.Comparison
		err := withOutputLock(cfg.OutputDir, "compare", func() (err error) {
			c, err = compareLabels(cfg.Path)
			return err
		})
		exitOnError(err)
		printComparison(os.Stdout, c, cfg.Path(storage.HumanComparisonFile))
	},
}

// compareLabels joins labeled data with human labels and writes the comparison file.
func compareLabels(path func(string) string) (*humaneval.Comparison, error) {
	var rows []types.JudgeRecord
	if err := storage.ReadJSON(path(storage.LabeledDataFile), &rows); err != nil {
		return nil, err
	}
	var labels []humaneval.HumanLabel
	if err := storage.ReadJSON(path(storage.HumanLabelsFile), &labels); err != nil {
		return nil, err
	}

	c, err := humaneval.Compare(rows, labels)
	if err != nil {
		return nil, fmt.Errorf("%w; label more samples with 'diyqa label-human'", err)
	}
	if err := storage.WriteJSON(path(storage.HumanComparisonFile), c); err != nil {
		return nil, err
	}
	return c, nil
}

func printComparison(w io.Writer, c *humaneval.Comparison, savedTo string) {
	header(w, "Human vs LLM Judge")
	fmt.Fprintf(w, "Compared %d samples. Results saved to %s\n\n", c.Samples, savedTo)
	for _, m := range types.FailureModes {
		a := c.Get(m)
		acc := fmt.Sprintf("%6.2f%%", a.Accuracy*100)
		if a.Accuracy < 0.8 {
			acc = color.YellowString(acc)
		}
		fmt.Fprintf(w, "  %-26s accuracy=%s  TP=%d TN=%d FP=%d FN=%d  F1=%.4f\n",
			m, acc, a.TruePositives, a.TrueNegatives, a.FalsePositives, a.FalseNegatives, a.F1)
	}
	fmt.Fprintln(w)
}

func init() {
	rootCmd.AddCommand(labelHumanCmd, compareCmd)
}
