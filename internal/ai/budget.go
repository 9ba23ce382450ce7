package ai

import (
	"context"
	"fmt"

	"go.uber.org/zap"
)

// CostTracker is the budget interface the gateway needs. It is satisfied by
// *cost.Tracker and kept here so the cost package does not import ai.
type CostTracker interface {
	// CanProceed reports whether another call for key fits the budget
	CanProceed(key string) (bool, string)
	// RecordUsage records tokens spent under key
	RecordUsage(ctx context.Context, key string, inputTokens, outputTokens int64) error
}

// TokenEstimator counts tokens for providers that report no usage.
type TokenEstimator func(model, text string) int

// BudgetGateway refuses calls once the budget is spent and records usage after each call.
type BudgetGateway struct {
	next     Gateway
	tracker  CostTracker
	estimate TokenEstimator
	model    string
	logger   *zap.Logger
}

// NewBudgetGateway wraps next. estimate may be nil.
func NewBudgetGateway(next Gateway, tracker CostTracker, estimate TokenEstimator, model string, logger *zap.Logger) *BudgetGateway {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &BudgetGateway{next: next, tracker: tracker, estimate: estimate, model: model, logger: logger}
}

// Complete implements Gateway
func (g *BudgetGateway) Complete(ctx context.Context, req Request) (*Response, error) {
	key := req.Operation
	if ok, reason := g.tracker.CanProceed(key); !ok {
		return nil, wrapErr("budget", req, fmt.Errorf("%w: %s", ErrBudgetExceeded, reason))
	}

	resp, err := g.next.Complete(ctx, req)
	if err != nil {
		return nil, err
	}

	in, out := resp.InputTokens, resp.OutputTokens
	if in == 0 && out == 0 && g.estimate != nil {
		in = int64(g.estimate(g.model, req.System) + g.estimate(g.model, req.User))
		out = int64(g.estimate(g.model, resp.Text))
	}

	if err := g.tracker.RecordUsage(ctx, key, in, out); err != nil {
		g.logger.Warn("failed to record token usage", zap.String("operation", key), zap.Error(err))
	}
	return resp, nil
}
