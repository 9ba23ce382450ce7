// Package generation produces candidate QA records from rotating domain
// prompt templates.
package generation

import (
	"context"
	"math/rand"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/steveyegge/diyqa/internal/ai"
	"github.com/steveyegge/diyqa/internal/metrics"
	"github.com/steveyegge/diyqa/internal/types"
	"github.com/steveyegge/diyqa/internal/validation"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// Sampling parameters for generation calls.
const (
	Temperature = 0.7
	MaxTokens   = 1500
)

// Generator issues one gateway call per sample.
type Generator struct {
	gateway   ai.Gateway
	templates []Template
	rng       *rand.Rand
	pacer     *rate.Limiter
	logger    *zap.Logger
	metrics   *metrics.Metrics
	now       func() time.Time
	newID     func() string
	parse     ai.ParseOptions
}

// Option configures a Generator.
type Option func(*Generator)

// WithSeed fixes the template sequence. Model output stays nondeterministic.
func WithSeed(seed int64) Option {
	return func(g *Generator) { g.rng = rand.New(rand.NewSource(seed)) }
}

// WithPacer spaces calls through l.
func WithPacer(l *rate.Limiter) Option {
	return func(g *Generator) { g.pacer = l }
}

// WithParseOptions relaxes how model output is decoded. Strict by default.
func WithParseOptions(o ai.ParseOptions) Option {
	return func(g *Generator) { g.parse = o }
}

// WithTemplates replaces the built-in domains.
func WithTemplates(t []Template) Option {
	return func(g *Generator) { g.templates = t }
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(g *Generator) { g.logger = l }
}

// WithMetrics records per-result validity.
func WithMetrics(m *metrics.Metrics) Option {
	return func(g *Generator) { g.metrics = m }
}

// New creates a Generator. Pacing defaults to ai.DefaultPacing.
func New(gw ai.Gateway, opts ...Option) *Generator {
	g := &Generator{
		gateway:   gw,
		templates: Templates,
		rng:       rand.New(rand.NewSource(time.Now().UnixNano())),
		pacer:     ai.NewPacer(ai.DefaultPacing),
		logger:    zap.NewNop(),
		now:       time.Now,
		newID:     uuid.NewString,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// GenerateOne runs one template. The trace id and timestamp are assigned
// before the call, so a gateway failure still yields a traceable invalid result.
func (g *Generator) GenerateOne(ctx context.Context, tmpl Template) types.GenerationResult {
	result := types.GenerationResult{
		TraceID:             g.newID(),
		GenerationTimestamp: types.Timestamp(g.now()),
	}

	resp, err := g.gateway.Complete(ctx, ai.Request{
		System:      tmpl.System,
		User:        tmpl.UserPrompt(),
		Temperature: Temperature,
		MaxTokens:   MaxTokens,
		Operation:   ai.OpGeneration,
		TraceID:     result.TraceID,
	})
	if err != nil {
		g.logger.Warn("generation call failed",
			zap.String("trace_id", result.TraceID), zap.String("template", tmpl.Name), zap.Error(err))
		result.ValidationErrors = []string{"Generation error: " + err.Error()}
		g.metrics.ObserveRecord(ai.OpGeneration, false)
		return result
	}

	result.RawResponse = strings.TrimSpace(resp.Text)
	result.QAPair, result.IsValid, result.ValidationErrors = validation.ParseWith(result.RawResponse, g.parse)
	if result.ValidationErrors == nil {
		result.ValidationErrors = []string{}
	}
	g.metrics.ObserveRecord(ai.OpGeneration, result.IsValid)
	return result
}

// GenerateBatch generates n samples, drawing a template uniformly at random
// for each. Cancellation stops the batch and returns what was produced with
// the context error.
func (g *Generator) GenerateBatch(ctx context.Context, n int) ([]types.GenerationResult, error) {
	results := make([]types.GenerationResult, 0, n)
	for i := 0; i < n; i++ {
		tmpl := g.templates[g.rng.Intn(len(g.templates))]

		if err := ai.Pace(ctx, g.pacer); err != nil {
			return results, err
		}
		g.logger.Info("generating sample",
			zap.Int("sample", i+1), zap.Int("total", n), zap.String("template", tmpl.Name))

		results = append(results, g.GenerateOne(ctx, tmpl))
	}
	return results, nil
}
