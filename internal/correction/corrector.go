// Package correction rewrites records the judge failed and merges valid
// rewrites back into the dataset by trace id.
package correction

import (
	"context"
	"strings"
	"time"

	"github.com/steveyegge/diyqa/internal/ai"
	"github.com/steveyegge/diyqa/internal/metrics"
	"github.com/steveyegge/diyqa/internal/types"
	"github.com/steveyegge/diyqa/internal/validation"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// Sampling parameters for correction calls.
const (
	Temperature = 0.5
	MaxTokens   = 1500
)

// Corrector issues one gateway call per failed record.
type Corrector struct {
	gateway ai.Gateway
	pacer   *rate.Limiter
	logger  *zap.Logger
	metrics *metrics.Metrics
	now     func() time.Time
	parse   ai.ParseOptions
}

// Option configures a Corrector.
type Option func(*Corrector)

// WithPacer spaces calls through l.
func WithPacer(l *rate.Limiter) Option {
	return func(c *Corrector) { c.pacer = l }
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(c *Corrector) { c.logger = l }
}

// WithParseOptions relaxes how model output is decoded. Strict by default.
func WithParseOptions(o ai.ParseOptions) Option {
	return func(c *Corrector) { c.parse = o }
}

// WithMetrics records per-result validity.
func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Corrector) { c.metrics = m }
}

// New creates a Corrector paced at ai.DefaultPacing.
func New(gw ai.Gateway, opts ...Option) *Corrector {
	c := &Corrector{
		gateway: gw,
		pacer:   ai.NewPacer(ai.DefaultPacing),
		logger:  zap.NewNop(),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// CorrectOne asks for a full replacement of r. The replacement goes through
// the same structural validation as generated records.
func (c *Corrector) CorrectOne(ctx context.Context, r types.JudgeRecord) types.CorrectionResult {
	result := types.CorrectionResult{
		TraceID:   r.TraceID,
		Timestamp: types.Timestamp(c.now()),
	}

	resp, err := c.gateway.Complete(ctx, ai.Request{
		System:      SystemPrompt,
		User:        Prompt(r),
		Temperature: Temperature,
		MaxTokens:   MaxTokens,
		Operation:   ai.OpCorrection,
		TraceID:     r.TraceID,
	})
	if err != nil {
		c.logger.Warn("correction call failed", zap.String("trace_id", r.TraceID), zap.Error(err))
		result.ValidationErrors = []string{"Correction error: " + err.Error()}
		c.metrics.ObserveRecord(ai.OpCorrection, false)
		return result
	}

	result.RawResponse = strings.TrimSpace(resp.Text)
	result.QAPair, result.IsValid, result.ValidationErrors = validation.ParseWith(result.RawResponse, c.parse)
	if result.ValidationErrors == nil {
		result.ValidationErrors = []string{}
	}
	c.metrics.ObserveRecord(ai.OpCorrection, result.IsValid)
	return result
}

// CorrectBatch corrects every row with overall_failure = 1, sequentially and
// paced. Passing rows are skipped. Cancellation returns the results so far.
func (c *Corrector) CorrectBatch(ctx context.Context, judged []types.JudgeRecord) ([]types.CorrectionResult, error) {
	failed := Failed(judged)
	results := make([]types.CorrectionResult, 0, len(failed))

	for i, r := range failed {
		if err := ai.Pace(ctx, c.pacer); err != nil {
			return results, err
		}
		c.logger.Info("correcting sample",
			zap.Int("sample", i+1), zap.Int("total", len(failed)), zap.String("trace_id", r.TraceID),
			zap.Int("failure_count", r.FailureCount))
		results = append(results, c.CorrectOne(ctx, r))
	}
	return results, nil
}

// Failed returns the rows marked overall_failure = 1, in order.
func Failed(judged []types.JudgeRecord) []types.JudgeRecord {
	var out []types.JudgeRecord
	for _, r := range judged {
		if r.Failed() {
			out = append(out, r)
		}
	}
	return out
}
