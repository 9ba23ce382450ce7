package ai

import (
	"context"
	"time"

	"golang.org/x/time/rate"
)

// Operation names used by the pipeline stages.
const (
	OpGeneration = "generation"
	OpJudge      = "judge"
	OpCorrection = "correction"
)

// DefaultPacing is the spacing between paced calls to the completion service.
const DefaultPacing = 500 * time.Millisecond

// NewPacer returns a limiter admitting one call per interval. The first call
// is never delayed. interval <= 0 disables pacing.
func NewPacer(interval time.Duration) *rate.Limiter {
	if interval <= 0 {
		return rate.NewLimiter(rate.Inf, 1)
	}
	return rate.NewLimiter(rate.Every(interval), 1)
}

// Pace blocks until the limiter admits a call. A nil limiter never blocks.
func Pace(ctx context.Context, l *rate.Limiter) error {
	if l == nil {
		return ctx.Err()
	}
	return l.Wait(ctx)
}
