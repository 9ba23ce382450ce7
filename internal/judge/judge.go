// Package judge labels QA records against the six failure modes, one
// independent gateway call per mode.
package judge

import (
	"context"
	"strconv"
	"strings"

	"github.com/steveyegge/diyqa/internal/ai"
	"github.com/steveyegge/diyqa/internal/metrics"
	"github.com/steveyegge/diyqa/internal/types"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
)

// SystemPrompt restricts judge output to a bare digit.
const SystemPrompt = "You are an expert DIY repair evaluator. Respond with only 0 or 1."

// Sampling parameters for judge calls.
const (
	Temperature = 0.1
	MaxTokens   = 10
)

// Judge evaluates records through a gateway.
type Judge struct {
	gateway       ai.Gateway
	pacer         *rate.Limiter
	concurrency   int
	parallelModes bool
	logger        *zap.Logger
	metrics       *metrics.Metrics
}

// Option configures a Judge.
type Option func(*Judge)

// WithPacer spaces record evaluations through l. The six calls of one record
// are not paced against each other.
func WithPacer(l *rate.Limiter) Option {
	return func(j *Judge) { j.pacer = l }
}

// WithConcurrency labels up to n records at once. Values below 1 mean 1.
func WithConcurrency(n int) Option {
	return func(j *Judge) {
		if n < 1 {
			n = 1
		}
		j.concurrency = n
	}
}

// WithParallelModes evaluates the six modes of a record concurrently.
func WithParallelModes(on bool) Option {
	return func(j *Judge) { j.parallelModes = on }
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(j *Judge) { j.logger = l }
}

// WithMetrics records every score.
func WithMetrics(m *metrics.Metrics) Option {
	return func(j *Judge) { j.metrics = m }
}

// New creates a sequential, paced Judge.
func New(gw ai.Gateway, opts ...Option) *Judge {
	j := &Judge{
		gateway:     gw,
		pacer:       ai.NewPacer(ai.DefaultPacing),
		concurrency: 1,
		logger:      zap.NewNop(),
	}
	for _, opt := range opts {
		opt(j)
	}
	return j
}

// ParseScore reads a judge response. Anything other than exactly 0 or 1
// scores 1: an ambiguous verdict is never a pass.
func ParseScore(raw string) int {
	n, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil || n != 0 {
		return 1
	}
	return 0
}

// EvaluateMode asks the model about one mode. It always returns a score in
// {0,1}; a gateway failure scores 1 with the error as the raw text.
func (j *Judge) EvaluateMode(ctx context.Context, qa types.QARecord, mode types.FailureMode, traceID string) (int, string) {
	desc, ok := Lookup(mode)
	if !ok {
		return 1, "Error: unknown failure mode " + string(mode)
	}
	prompt, err := desc.Prompt(qa)
	if err != nil {
		return 1, "Error: " + err.Error()
	}

	resp, err := j.gateway.Complete(ctx, ai.Request{
		System:      SystemPrompt,
		User:        prompt,
		Temperature: Temperature,
		MaxTokens:   MaxTokens,
		Operation:   ai.OpJudge,
		TraceID:     traceID,
	})
	if err != nil {
		j.logger.Warn("judge call failed",
			zap.String("trace_id", traceID), zap.String("mode", string(mode)), zap.Error(err))
		return 1, "Error: " + err.Error()
	}

	raw := strings.TrimSpace(resp.Text)
	return ParseScore(raw), raw
}

// EvaluateRecord runs all six modes and builds the row. Scores are stored by
// mode index, so evaluation order has no effect on the result.
func (j *Judge) EvaluateRecord(ctx context.Context, qa types.QARecord, traceID string) types.JudgeRecord {
	var scores [types.NumModes]int
	var responses [types.NumModes]string

	if j.parallelModes {
		var g errgroup.Group
		for i, m := range types.FailureModes {
			g.Go(func() error {
				scores[i], responses[i] = j.EvaluateMode(ctx, qa, m, traceID)
				return nil
			})
		}
		_ = g.Wait()
	} else {
		for i, m := range types.FailureModes {
			scores[i], responses[i] = j.EvaluateMode(ctx, qa, m, traceID)
		}
	}

	for i, m := range types.FailureModes {
		j.metrics.ObserveScore(string(m), scores[i])
	}
	return types.NewJudgeRecord(traceID, qa, scores, responses)
}

// LabelBatch labels records, pacing between records. Output order matches
// input order regardless of concurrency. On cancellation it returns the rows
// finished before the cancel, still in input order, and the context error.
func (j *Judge) LabelBatch(ctx context.Context, records []types.TracedRecord) ([]types.JudgeRecord, error) {
	out := make([]types.JudgeRecord, len(records))
	done := make([]bool, len(records))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(j.concurrency)

	var dispatchErr error
	for i, rec := range records {
		if err := ai.Pace(gctx, j.pacer); err != nil {
			dispatchErr = err
			break
		}
		j.logger.Info("evaluating sample",
			zap.Int("sample", i+1), zap.Int("total", len(records)), zap.String("trace_id", rec.TraceID))

		g.Go(func() error {
			row := j.EvaluateRecord(gctx, rec.QARecord, rec.TraceID)
			// Verdicts produced while shutting down are gateway errors, not judgments.
			if gctx.Err() != nil {
				return nil
			}
			out[i], done[i] = row, true
			return nil
		})
	}
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		return compact(out, done), err
	}
	if dispatchErr != nil {
		return compact(out, done), dispatchErr
	}
	return out, nil
}

func compact(rows []types.JudgeRecord, done []bool) []types.JudgeRecord {
	var out []types.JudgeRecord
	for i, r := range rows {
		if done[i] {
			out = append(out, r)
		}
	}
	return out
}
