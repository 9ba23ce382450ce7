package main

import (
	"context"
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"github.com/steveyegge/diyqa/internal/storage"
	"github.com/steveyegge/diyqa/internal/types"
)

// withPipeline runs fn with an output lock and an open pipeline, exiting 1 on error.
func withPipeline(command string, fn func(ctx context.Context, p *pipeline) error) {
	ctx, cancel := signalContext()
	defer cancel()

	err := withOutputLock(cfg.OutputDir, command, func() error {
		p, err := newPipeline(ctx, os.Stdout)
		if err != nil {
			return err
		}
		defer p.close()
		return fn(ctx, p)
	})
	exitOnError(err)
}

// withOutputLock holds the output directory lock for the duration of fn.
// Every command that writes into dir goes through here.
func withOutputLock(dir, command string, fn func() error) error {
	lockPath, err := storage.AcquireOutputLock(dir, command, version)
	if err != nil {
		return err
	}
	defer func() {
		if err := storage.ReleaseOutputLock(lockPath); err != nil {
			fmt.Fprintf(os.Stderr, "warning: failed to release output lock: %v\n", err)
		}
	}()
	return fn()
}

var generateCmd = &cobra.Command{
	Use:   "generate",
	Short: "Generate Q&A pairs",
	Long:  `Generate Q&A pairs from the five repair-domain templates and write generation_results.json.`,
	Run: func(cmd *cobra.Command, args []string) {
		samples, _ := cmd.Flags().GetInt("samples")
		seed, _ := cmd.Flags().GetInt64("seed")
		if !cmd.Flags().Changed("samples") {
			samples = cfg.Samples
		}
		if !cmd.Flags().Changed("seed") {
			seed = cfg.Seed
		}

		withPipeline("generate", func(ctx context.Context, p *pipeline) error {
			return p.track(ctx, "generate", func() (int, *float64, error) {
				results, err := p.generate(ctx, samples, seed)
				printGeneration(p.out, results)
				return len(results), nil, err
			})
		})
	},
}

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Structurally validate generation results",
	Run: func(cmd *cobra.Command, args []string) {
		withPipeline("validate", func(ctx context.Context, p *pipeline) error {
			return p.track(ctx, "validate", func() (int, *float64, error) {
				results, err := p.loadGenerationResults()
				if err != nil {
					return 0, nil, err
				}
				valid, summary, err := p.validate(results)
				if err != nil {
					return 0, nil, err
				}
				printValidation(p.out, summary)
				return len(valid), nil, nil
			})
		})
	},
}

var labelCmd = &cobra.Command{
	Use:   "label",
	Short: "Label valid Q&A pairs with the LLM judge",
	Long: `Evaluate every structurally valid record against the six failure modes and
write failure_labeled_data.json and failure_labeled_data.csv.

Use --input-qa to re-label another record file, e.g. qa_after_correction.json.`,
	Run: func(cmd *cobra.Command, args []string) {
		input, _ := cmd.Flags().GetString("input-qa")

		withPipeline("label", func(ctx context.Context, p *pipeline) error {
			return p.track(ctx, "label", func() (int, *float64, error) {
				records, err := p.loadRecords(input)
				if err != nil {
					return 0, nil, err
				}
				rows, err := p.label(ctx, records)
				if len(rows) > 0 {
					printLabeling(p.out, rows)
				}
				rate := failureRate(rows)
				return len(rows), &rate, err
			})
		})
	},
}

var analyzeCmd = &cobra.Command{
	Use:   "analyze",
	Short: "Analyze labeled data and write the failure report",
	Run: func(cmd *cobra.Command, args []string) {
		withPipeline("analyze", func(ctx context.Context, p *pipeline) error {
			return p.track(ctx, "analyze", func() (int, *float64, error) {
				a, report, err := p.analyze()
				if err != nil {
					return 0, nil, err
				}
				printAnalysis(p.out, a, report)
				rate := report.Summary.OverallFailureRate
				return report.Summary.TotalSamples, &rate, nil
			})
		})
	},
}

var correctCmd = &cobra.Command{
	Use:   "correct",
	Short: "Rewrite failed Q&A pairs",
	Long:  `Ask the model to rewrite every labeled record with overall_failure = 1 and write corrected_qa_pairs.json.`,
	Run: func(cmd *cobra.Command, args []string) {
		withPipeline("correct", func(ctx context.Context, p *pipeline) error {
			return p.track(ctx, "correct", func() (int, *float64, error) {
				results, err := p.correct(ctx)
				if results != nil {
					printCorrections(p.out, results)
				}
				return len(results), nil, err
			})
		})
	},
}

var mergeCmd = &cobra.Command{
	Use:   "merge",
	Short: "Merge valid corrections back into the dataset",
	Long: `Replace failed records with their valid corrections by trace_id and write
qa_after_correction.json. Re-label it with:

  diyqa label --input-qa <output-dir>/qa_after_correction.json`,
	Run: func(cmd *cobra.Command, args []string) {
		withPipeline("merge", func(ctx context.Context, p *pipeline) error {
			return p.track(ctx, "merge", func() (int, *float64, error) {
				merged, stats, err := p.merge()
				if err != nil {
					return 0, nil, err
				}
				printMerge(p.out, stats)
				return len(merged), nil, nil
			})
		})
	},
}

var loopCmd = &cobra.Command{
	Use:   "loop",
	Short: "Correct, merge and re-label until the failure-rate target is met",
	Run: func(cmd *cobra.Command, args []string) {
		maxIter, _ := cmd.Flags().GetInt("max-iterations")
		if !cmd.Flags().Changed("max-iterations") {
			maxIter = cfg.MaxIterations
		}

		withPipeline("loop", func(ctx context.Context, p *pipeline) error {
			return p.track(ctx, "loop", func() (int, *float64, error) {
				result, err := p.loop(ctx, maxIter)
				if err != nil {
					return 0, nil, err
				}
				printLoop(p.out, result, p.loops)
				rate := result.Final.FailureRate()
				return len(result.Final.Judged), &rate, nil
			})
		})
	},
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run every stage: generate, validate, label, analyze, correct, merge",
	Long: `Run the whole pipeline in one go. With --loop the correction loop continues
until the failure-rate target is met or max_iterations passes have run.`,
	Run: func(cmd *cobra.Command, args []string) {
		samples, _ := cmd.Flags().GetInt("samples")
		seed, _ := cmd.Flags().GetInt64("seed")
		loop, _ := cmd.Flags().GetBool("loop")
		if !cmd.Flags().Changed("samples") {
			samples = cfg.Samples
		}
		if !cmd.Flags().Changed("seed") {
			seed = cfg.Seed
		}

		withPipeline("run", func(ctx context.Context, p *pipeline) error {
			return p.track(ctx, "run", func() (int, *float64, error) {
				return runAll(ctx, p, samples, seed, loop)
			})
		})
	},
}

// runAll chains the stages. Without loop it stops after one correct + merge.
func runAll(ctx context.Context, p *pipeline, samples int, seed int64, loop bool) (int, *float64, error) {
	results, err := p.generate(ctx, samples, seed)
	if err != nil {
		return len(results), nil, fmt.Errorf("generation: %w", err)
	}
	printGeneration(p.out, results)

	valid, summary, err := p.validate(results)
	if err != nil {
		return 0, nil, fmt.Errorf("validation: %w", err)
	}
	printValidation(p.out, summary)

	rows, err := p.label(ctx, valid)
	if err != nil {
		return len(rows), nil, fmt.Errorf("labeling: %w", err)
	}
	printLabeling(p.out, rows)

	a, report, err := p.analyze()
	if err != nil {
		return len(rows), nil, fmt.Errorf("analysis: %w", err)
	}
	printAnalysis(p.out, a, report)
	rate := report.Summary.OverallFailureRate

	if !hasFailures(rows) {
		return len(rows), &rate, nil
	}

	if loop {
		result, err := p.loop(ctx, p.cfg.MaxIterations)
		if err != nil {
			return len(rows), &rate, fmt.Errorf("correction loop: %w", err)
		}
		printLoop(p.out, result, p.loops)
		final := result.Final.FailureRate()
		return len(result.Final.Judged), &final, nil
	}

	corrections, err := p.correct(ctx)
	if err != nil {
		return len(rows), &rate, fmt.Errorf("correction: %w", err)
	}
	printCorrections(p.out, corrections)

	_, stats, err := p.merge()
	if err != nil {
		return len(rows), &rate, fmt.Errorf("merge: %w", err)
	}
	printMerge(p.out, stats)

	green := color.New(color.FgGreen).SprintFunc()
	fmt.Fprintf(p.out, "\n%s All stages completed. Re-label with: diyqa label --input-qa %s\n",
		green("✓"), p.path(storage.MergedPairsFile))
	return len(rows), &rate, nil
}

func hasFailures(rows []types.JudgeRecord) bool {
	for _, r := range rows {
		if r.Failed() {
			return true
		}
	}
	return false
}

func init() {
	generateCmd.Flags().Int("samples", 20, "number of Q&A pairs to generate")
	generateCmd.Flags().Int64("seed", 0, "template sequence seed (0 = random)")

	labelCmd.Flags().String("input-qa", "", "record file to label (default <output-dir>/structurally_valid_qa_pairs.json)")

	loopCmd.Flags().Int("max-iterations", 3, "maximum correct/merge/relabel passes")

	runCmd.Flags().Int("samples", 20, "number of Q&A pairs to generate")
	runCmd.Flags().Int64("seed", 0, "template sequence seed (0 = random)")
	runCmd.Flags().Bool("loop", false, "continue with the correction loop after the first labeling pass")

	rootCmd.AddCommand(generateCmd, validateCmd, labelCmd, analyzeCmd, correctCmd, mergeCmd, loopCmd, runCmd)
}
