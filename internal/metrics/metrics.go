// Package metrics holds the Prometheus collectors for a pipeline run. Every
// stage is a short-lived batch job, so metrics are pushed to a Pushgateway at
// the end of a command instead of being scraped.
package metrics

import (
	"context"
	"fmt"
	"os"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/push"
)

const jobName = "diyqa"

// Metrics is a private registry and the collectors registered on it.
type Metrics struct {
	Registry *prometheus.Registry

	GatewayRequests *prometheus.CounterVec
	GatewayDuration *prometheus.HistogramVec
	GatewayTokens   *prometheus.CounterVec
	JudgeScores     *prometheus.CounterVec
	RecordsTotal    *prometheus.CounterVec
	FailureRate     prometheus.Gauge
	LoopIterations  prometheus.Counter
}

// New registers a fresh set of collectors. Each call gets its own registry so
// tests can create as many as they like.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	f := promauto.With(reg)

	return &Metrics{
		Registry: reg,
		GatewayRequests: f.NewCounterVec(prometheus.CounterOpts{
			Name: "diyqa_gateway_requests_total",
			Help: "Completion calls by operation and outcome.",
		}, []string{"operation", "status"}),
		GatewayDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "diyqa_gateway_request_duration_seconds",
			Help:    "Completion call latency.",
			Buckets: prometheus.DefBuckets,
		}, []string{"operation"}),
		GatewayTokens: f.NewCounterVec(prometheus.CounterOpts{
			Name: "diyqa_gateway_tokens_total",
			Help: "Tokens reported by the provider, by operation and direction.",
		}, []string{"operation", "direction"}),
		JudgeScores: f.NewCounterVec(prometheus.CounterOpts{
			Name: "diyqa_judge_scores_total",
			Help: "Judge verdicts by failure mode and score.",
		}, []string{"mode", "score"}),
		RecordsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "diyqa_records_total",
			Help: "Records produced per stage and validity.",
		}, []string{"stage", "valid"}),
		FailureRate: f.NewGauge(prometheus.GaugeOpts{
			Name: "diyqa_overall_failure_rate",
			Help: "Overall failure rate of the latest labeling pass.",
		}),
		LoopIterations: f.NewCounter(prometheus.CounterOpts{
			Name: "diyqa_correction_loop_iterations_total",
			Help: "Completed correct/merge/relabel iterations.",
		}),
	}
}

// Push sends everything in the registry to the Pushgateway at url.
// An empty url is a no-op.
func (m *Metrics) Push(ctx context.Context, url, stage string) error {
	if m == nil || url == "" {
		return nil
	}
	hostname, err := os.Hostname()
	if err != nil {
		hostname = "unknown"
	}
	instance := fmt.Sprintf("%s-%d", hostname, os.Getpid())

	pusher := push.New(url, jobName).
		Gatherer(m.Registry).
		Grouping("instance", instance).
		Grouping("stage", stage)
	if err := pusher.PushContext(ctx); err != nil {
		return fmt.Errorf("push metrics to %s: %w", url, err)
	}
	return nil
}

// ObserveRecord counts one produced record.
func (m *Metrics) ObserveRecord(stage string, valid bool) {
	if m == nil {
		return
	}
	v := "false"
	if valid {
		v = "true"
	}
	m.RecordsTotal.WithLabelValues(stage, v).Inc()
}

// ObserveScore counts one judge verdict.
func (m *Metrics) ObserveScore(mode string, score int) {
	if m == nil {
		return
	}
	m.JudgeScores.WithLabelValues(mode, fmt.Sprint(score)).Inc()
}

// SetFailureRate records the failure rate of the latest labeling pass.
func (m *Metrics) SetFailureRate(rate float64) {
	if m == nil {
		return
	}
	m.FailureRate.Set(rate)
}

// ObserveLoopIteration counts one correction pass and its resulting rate.
func (m *Metrics) ObserveLoopIteration(rate float64) {
	if m == nil {
		return
	}
	m.LoopIterations.Inc()
	m.FailureRate.Set(rate)
}
