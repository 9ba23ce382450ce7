package main

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/steveyegge/diyqa/internal/ai"
	"github.com/steveyegge/diyqa/internal/analysis"
	"github.com/steveyegge/diyqa/internal/config"
	"github.com/steveyegge/diyqa/internal/correction"
	"github.com/steveyegge/diyqa/internal/cost"
	"github.com/steveyegge/diyqa/internal/generation"
	"github.com/steveyegge/diyqa/internal/iterative"
	"github.com/steveyegge/diyqa/internal/judge"
	"github.com/steveyegge/diyqa/internal/metrics"
	"github.com/steveyegge/diyqa/internal/storage"
	"github.com/steveyegge/diyqa/internal/storage/sqlite"
	"github.com/steveyegge/diyqa/internal/types"
	"github.com/steveyegge/diyqa/internal/validation"
	"go.uber.org/zap"
)

// pipeline runs stages against one output directory. Every stage reads its
// input from the previous stage's file and writes its own.
type pipeline struct {
	cfg     *config.Config
	gw      ai.Gateway
	logger  *zap.Logger
	metrics *metrics.Metrics
	tracker *cost.Tracker  // optional
	ledger  *sqlite.Ledger // optional
	runID   string         // current ledger run, if any
	out     io.Writer

	loops *iterative.InMemoryMetricsCollector // every loop run by this pipeline
}

// newPipeline wires the process-wide gateway and opens the ledger. A ledger
// that cannot be opened is logged and skipped.
func newPipeline(ctx context.Context, out io.Writer) (*pipeline, error) {
	gw, err := ai.Default()
	if err != nil {
		return nil, fmt.Errorf("failed to create AI gateway: %w", err)
	}
	p := &pipeline{cfg: cfg, gw: gw, logger: logger, metrics: mets, tracker: tracker, out: out}

	ledger, err := sqlite.Open(ctx, cfg.Ledger())
	if err != nil {
		logger.Warn("run ledger unavailable", zap.String("path", cfg.Ledger()), zap.Error(err))
	} else {
		p.ledger = ledger
	}
	return p, nil
}

func (p *pipeline) close() {
	if p.ledger != nil {
		if err := p.ledger.Close(); err != nil {
			p.logger.Warn("failed to close ledger", zap.Error(err))
		}
	}
}

func (p *pipeline) path(name string) string {
	return p.cfg.Path(name)
}

// track records one command invocation in the ledger around fn.
func (p *pipeline) track(ctx context.Context, command string, fn func() (records int, failureRate *float64, err error)) error {
	if p.ledger != nil {
		id, err := p.ledger.StartRun(ctx, command, p.cfg.Provider, p.cfg.ModelName())
		if err != nil {
			p.logger.Warn("failed to record run start", zap.Error(err))
		} else {
			p.runID = id
			defer func() { p.runID = "" }()
		}
	}

	records, rate, runErr := fn()

	if p.ledger != nil && p.runID != "" {
		// the run context may already be canceled
		if err := p.ledger.FinishRun(context.WithoutCancel(ctx), p.runID, records, rate, runErr); err != nil {
			p.logger.Warn("failed to record run finish", zap.Error(err))
		}
	}
	return runErr
}

// newGenerator seeds the template draw only for a non-zero seed; 0 keeps the
// generator's time-seeded default.
func (p *pipeline) newGenerator(seed int64) *generation.Generator {
	opts := []generation.Option{
		generation.WithPacer(ai.NewPacer(p.cfg.PacingInterval)),
		generation.WithParseOptions(p.parseOptions()),
		generation.WithLogger(p.logger),
		generation.WithMetrics(p.metrics),
	}
	if seed != 0 {
		opts = append(opts, generation.WithSeed(seed))
	}
	return generation.New(p.gw, opts...)
}

func (p *pipeline) parseOptions() ai.ParseOptions {
	return ai.ParseOptions{StripCodeFences: p.cfg.StripCodeFences}
}

func (p *pipeline) newJudge() *judge.Judge {
	return judge.New(p.gw,
		judge.WithPacer(ai.NewPacer(p.cfg.PacingInterval)),
		judge.WithConcurrency(p.cfg.JudgeConcurrency),
		judge.WithParallelModes(p.cfg.ParallelModes),
		judge.WithLogger(p.logger),
		judge.WithMetrics(p.metrics))
}

func (p *pipeline) newCorrector() *correction.Corrector {
	return correction.New(p.gw,
		correction.WithPacer(ai.NewPacer(p.cfg.PacingInterval)),
		correction.WithParseOptions(p.parseOptions()),
		correction.WithLogger(p.logger),
		correction.WithMetrics(p.metrics))
}

// generate produces n results and writes generation_results.json. Results
// gathered before a cancellation are still written.
func (p *pipeline) generate(ctx context.Context, n int, seed int64) ([]types.GenerationResult, error) {
	results, genErr := p.newGenerator(seed).GenerateBatch(ctx, n)
	if len(results) > 0 || genErr == nil {
		if err := storage.WriteJSON(p.path(storage.GenerationResultsFile), results); err != nil {
			return results, err
		}
	}
	return results, genErr
}

// validate re-checks generation results and writes the valid pairs and the summary.
func (p *pipeline) validate(results []types.GenerationResult) ([]types.TracedRecord, types.ValidationSummary, error) {
	checked, summary := validation.ValidateBatch(results)
	valid := validation.ValidRecords(checked)

	if err := storage.WriteJSON(p.path(storage.ValidPairsFile), valid); err != nil {
		return nil, summary, err
	}
	if err := storage.WriteJSON(p.path(storage.ValidationSummaryFile), summary); err != nil {
		return nil, summary, err
	}
	return valid, summary, nil
}

func (p *pipeline) loadGenerationResults() ([]types.GenerationResult, error) {
	var results []types.GenerationResult
	err := storage.ReadJSON(p.path(storage.GenerationResultsFile), &results)
	return results, err
}

// loadRecords reads a record list; an empty inputPath means the valid pairs file.
func (p *pipeline) loadRecords(inputPath string) ([]types.TracedRecord, error) {
	if inputPath == "" {
		inputPath = p.path(storage.ValidPairsFile)
	}
	var records []types.TracedRecord
	if err := storage.ReadJSON(inputPath, &records); err != nil {
		return nil, err
	}
	return records, nil
}

func (p *pipeline) loadLabeled() ([]types.JudgeRecord, error) {
	var rows []types.JudgeRecord
	err := storage.ReadJSON(p.path(storage.LabeledDataFile), &rows)
	return rows, err
}

var errNoRecords = errors.New("no structurally valid records to label")

// label judges records and writes the labeled JSON and CSV. An interrupted
// pass never replaces earlier labeled data: its rows go to the partial file.
func (p *pipeline) label(ctx context.Context, records []types.TracedRecord) ([]types.JudgeRecord, error) {
	if len(records) == 0 {
		return nil, errNoRecords
	}
	rows, labelErr := p.newJudge().LabelBatch(ctx, records)
	if labelErr != nil && len(rows) == 0 {
		return nil, labelErr
	}
	if labelErr != nil && storage.Exists(p.path(storage.LabeledDataFile)) {
		partial := p.path(storage.PartialLabeledFile)
		p.logger.Warn("labeling interrupted; previous labeled data kept",
			zap.Int("labeled", len(rows)), zap.Int("records", len(records)), zap.String("partial", partial))
		if err := storage.WriteJSON(partial, rows); err != nil {
			return rows, err
		}
		return rows, labelErr
	}
	if err := p.saveLabeled(ctx, rows); err != nil {
		return rows, err
	}
	return rows, labelErr
}

func (p *pipeline) saveLabeled(ctx context.Context, rows []types.JudgeRecord) error {
	if err := storage.WriteJSON(p.path(storage.LabeledDataFile), rows); err != nil {
		return err
	}
	if err := storage.WriteJudgeCSV(p.path(storage.LabeledDataCSVFile), rows); err != nil {
		return err
	}
	if len(rows) > 0 {
		p.metrics.SetFailureRate(failureRate(rows))
	}
	if p.ledger != nil && p.runID != "" {
		if err := p.ledger.RecordJudgeRows(context.WithoutCancel(ctx), p.runID, rows); err != nil {
			p.logger.Warn("failed to record judge rows", zap.Error(err))
		}
	}
	return nil
}

// analyze reads the labeled data and writes the analysis report.
func (p *pipeline) analyze() (*analysis.Analyzer, analysis.Report, error) {
	rows, err := p.loadLabeled()
	if err != nil {
		return nil, analysis.Report{}, err
	}
	a, err := analysis.New(rows, p.cfg.TargetFailureRate)
	if err != nil {
		return nil, analysis.Report{}, err
	}
	report := a.Report()
	if err := storage.WriteJSON(p.path(storage.AnalysisReportFile), report); err != nil {
		return a, report, err
	}
	return a, report, nil
}

// correct rewrites every failed labeled row and writes corrected_qa_pairs.json.
func (p *pipeline) correct(ctx context.Context) ([]types.CorrectionResult, error) {
	rows, err := p.loadLabeled()
	if err != nil {
		return nil, err
	}
	results, corrErr := p.newCorrector().CorrectBatch(ctx, rows)
	if err := storage.WriteJSON(p.path(storage.CorrectedPairsFile), results); err != nil {
		return results, err
	}
	return results, corrErr
}

// merge folds corrected_qa_pairs.json into the valid pairs and writes qa_after_correction.json.
func (p *pipeline) merge() ([]types.TracedRecord, correction.MergeStats, error) {
	valid, err := p.loadRecords("")
	if err != nil {
		return nil, correction.MergeStats{}, err
	}
	rows, err := p.loadLabeled()
	if err != nil {
		return nil, correction.MergeStats{}, err
	}
	var corrections []types.CorrectionResult
	if err := storage.ReadJSON(p.path(storage.CorrectedPairsFile), &corrections); err != nil {
		return nil, correction.MergeStats{}, err
	}

	merged, stats := correction.Merge(valid, rows, corrections)
	if err := storage.WriteJSON(p.path(storage.MergedPairsFile), merged); err != nil {
		return nil, stats, err
	}
	return merged, stats, nil
}

// loop runs the correction loop from the current labeled data. Every pass
// rewrites the corrected, merged and labeled files so an interrupted loop
// leaves consistent outputs behind.
func (p *pipeline) loop(ctx context.Context, maxIterations int) (*iterative.Result, error) {
	rows, err := p.loadLabeled()
	if err != nil {
		return nil, err
	}
	initial := &iterative.Dataset{Judged: rows}
	for _, r := range rows {
		initial.Records = append(initial.Records, r.Traced())
	}

	refiner := iterative.NewPipelineRefiner(p.newCorrector(), p.newJudge(), p.logger)
	refiner.OnPass = func(corrections []types.CorrectionResult, merged []types.TracedRecord) {
		if err := storage.WriteJSON(p.path(storage.CorrectedPairsFile), corrections); err != nil {
			p.logger.Warn("failed to write corrections", zap.Error(err))
		}
		if err := storage.WriteJSON(p.path(storage.MergedPairsFile), merged); err != nil {
			p.logger.Warn("failed to write merged records", zap.Error(err))
		}
	}

	loopCfg := iterative.Config{
		MaxIterations:     maxIterations,
		TargetFailureRate: p.cfg.TargetFailureRate,
		Timeout:           p.cfg.LoopTimeout,
	}
	if p.tracker != nil {
		loopCfg.Budget = func() (bool, string) { return p.tracker.CanProceed(ai.OpCorrection) }
	}

	if p.loops == nil {
		p.loops = iterative.NewInMemoryMetricsCollector()
	}
	collector := iterative.MultiCollector{&ledgerCollector{ctx: ctx, p: p}, p.loops}
	result, err := iterative.Converge(ctx, initial, refiner, loopCfg, collector)
	if err != nil {
		return nil, err
	}
	if result.Iterations > 0 {
		if err := p.saveLabeled(ctx, result.Final.Judged); err != nil {
			return result, err
		}
	}
	return result, nil
}

// ledgerCollector reports loop passes to the ledger, metrics and log.
type ledgerCollector struct {
	ctx context.Context
	p   *pipeline
}

func (c *ledgerCollector) RecordIterationStart(iteration int) {
	c.p.logger.Info("correction pass starting", zap.Int("iteration", iteration))
}

func (c *ledgerCollector) RecordIterationEnd(iteration int, m *iterative.IterationMetrics) {
	c.p.metrics.ObserveLoopIteration(m.FailureRate)
	c.p.logger.Info("correction pass finished",
		zap.Int("iteration", iteration),
		zap.Int("corrected", m.Corrected),
		zap.Int("failed", m.FailedRecords),
		zap.Float64("failure_rate", m.FailureRate),
		zap.Duration("duration", m.Duration))

	if c.p.ledger == nil || c.p.runID == "" {
		return
	}
	err := c.p.ledger.RecordIteration(context.WithoutCancel(c.ctx), c.p.runID, sqlite.Iteration{
		Iteration:     iteration,
		TotalRecords:  m.TotalRecords,
		FailedRecords: m.FailedRecords,
		Corrected:     m.Corrected,
		FailureRate:   m.FailureRate,
	})
	if err != nil {
		c.p.logger.Warn("failed to record loop iteration", zap.Error(err))
	}
}

func (c *ledgerCollector) RecordLoopComplete(result *iterative.Result, m *iterative.LoopMetrics) {
	c.p.logger.Info("correction loop stopped",
		zap.String("reason", string(m.Reason)),
		zap.Int("iterations", m.TotalIterations),
		zap.Float64("initial_failure_rate", m.InitialFailureRate),
		zap.Float64("final_failure_rate", m.FinalFailureRate))
}

func failureRate(rows []types.JudgeRecord) float64 {
	if len(rows) == 0 {
		return 0
	}
	n := 0
	for _, r := range rows {
		n += r.OverallFailure
	}
	return float64(n) / float64(len(rows))
}
