package ai

import (
	"context"
	"time"

	"github.com/steveyegge/diyqa/internal/metrics"
	"go.uber.org/zap"
)

// InstrumentedGateway records Prometheus metrics and a debug log line per call.
type InstrumentedGateway struct {
	next    Gateway
	metrics *metrics.Metrics
	logger  *zap.Logger
}

// NewInstrumentedGateway wraps next. Both m and logger may be nil.
func NewInstrumentedGateway(next Gateway, m *metrics.Metrics, logger *zap.Logger) *InstrumentedGateway {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &InstrumentedGateway{next: next, metrics: m, logger: logger}
}

// Complete implements Gateway
func (g *InstrumentedGateway) Complete(ctx context.Context, req Request) (*Response, error) {
	start := time.Now()
	resp, err := g.next.Complete(ctx, req)
	elapsed := time.Since(start)

	status := "success"
	if err != nil {
		status = "error"
	}

	if g.metrics != nil {
		g.metrics.GatewayRequests.WithLabelValues(req.Operation, status).Inc()
		g.metrics.GatewayDuration.WithLabelValues(req.Operation).Observe(elapsed.Seconds())
		if resp != nil {
			g.metrics.GatewayTokens.WithLabelValues(req.Operation, "input").Add(float64(resp.InputTokens))
			g.metrics.GatewayTokens.WithLabelValues(req.Operation, "output").Add(float64(resp.OutputTokens))
		}
	}

	fields := []zap.Field{
		zap.String("operation", req.Operation),
		zap.String("trace_id", req.TraceID),
		zap.String("status", status),
		zap.Duration("elapsed", elapsed),
	}
	if err != nil {
		g.logger.Warn("gateway call failed", append(fields, zap.Error(err))...)
	} else {
		g.logger.Debug("gateway call", append(fields,
			zap.Int64("input_tokens", resp.InputTokens),
			zap.Int64("output_tokens", resp.OutputTokens))...)
	}
	return resp, err
}
