package cost

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestTracker(t *testing.T, mutate func(*Config)) *Tracker {
	t.Helper()
	cfg := DefaultConfig()
	if mutate != nil {
		mutate(cfg)
	}
	tr, err := NewTracker(cfg, nil)
	require.NoError(t, err)
	return tr
}

func TestBudgetStatusTransitions(t *testing.T) {
	tr := newTestTracker(t, func(c *Config) {
		c.MaxTokensPerHour = 1000
		c.MaxCostPerHour = 0
	})
	ctx := context.Background()

	assert.Equal(t, BudgetHealthy, tr.CheckBudget())

	require.NoError(t, tr.RecordUsage(ctx, "judge", 500, 300))
	assert.Equal(t, BudgetWarning, tr.CheckBudget())
	ok, _ := tr.CanProceed("judge")
	assert.True(t, ok)

	require.NoError(t, tr.RecordUsage(ctx, "judge", 150, 50))
	assert.Equal(t, BudgetExceeded, tr.CheckBudget())
	ok, reason := tr.CanProceed("generation")
	assert.False(t, ok)
	assert.Contains(t, reason, "token budget exceeded")
}

func TestCostLimit(t *testing.T) {
	tr := newTestTracker(t, func(c *Config) {
		c.MaxTokensPerHour = 0
		c.MaxCostPerHour = 0.01
	})

	// 10k input at $0.50/M + 5k output at $1.50/M = $0.0125
	require.NoError(t, tr.RecordUsage(context.Background(), "correction", 10_000, 5_000))

	ok, reason := tr.CanProceed("correction")
	assert.False(t, ok)
	assert.Contains(t, reason, "cost budget exceeded")
	assert.InDelta(t, 0.0125, tr.GetStats().TotalCostUsed, 1e-9)
}

func TestStageLimit(t *testing.T) {
	tr := newTestTracker(t, func(c *Config) { c.MaxTokensPerStage = 100 })
	require.NoError(t, tr.RecordUsage(context.Background(), "judge", 80, 20))

	ok, reason := tr.CanProceed("judge")
	assert.False(t, ok)
	assert.Contains(t, reason, "judge stage budget exceeded")

	ok, _ = tr.CanProceed("generation")
	assert.True(t, ok)
}

func TestDisabledTrackerIgnoresUsage(t *testing.T) {
	tr := newTestTracker(t, func(c *Config) {
		c.Enabled = false
		c.MaxTokensPerHour = 1
	})
	require.NoError(t, tr.RecordUsage(context.Background(), "judge", 1000, 1000))

	ok, _ := tr.CanProceed("judge")
	assert.True(t, ok)
	assert.Equal(t, BudgetHealthy, tr.CheckBudget())
	assert.Zero(t, tr.GetStats().TotalTokensUsed)
}

func TestWindowReset(t *testing.T) {
	tr := newTestTracker(t, func(c *Config) { c.MaxTokensPerHour = 100 })
	now := time.Now()
	tr.now = func() time.Time { return now }
	tr.state.WindowStartTime = now

	require.NoError(t, tr.RecordUsage(context.Background(), "judge", 100, 0))
	assert.Equal(t, BudgetExceeded, tr.CheckBudget())

	now = now.Add(61 * time.Minute)
	assert.Equal(t, BudgetHealthy, tr.CheckBudget())

	stats := tr.GetStats()
	assert.Zero(t, stats.WindowTokensUsed)
	assert.Empty(t, stats.StageTokensUsed)
	assert.Equal(t, int64(100), stats.TotalTokensUsed, "lifetime totals survive the window reset")
}

func TestStatePersistence(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state", "cost_state.json")

	tr := newTestTracker(t, func(c *Config) { c.PersistStatePath = path })
	require.NoError(t, tr.RecordUsage(context.Background(), "generation", 120, 80))
	require.NoError(t, tr.RecordUsage(context.Background(), "judge", 10, 1))

	reloaded := newTestTracker(t, func(c *Config) { c.PersistStatePath = path })
	stats := reloaded.GetStats()
	assert.Equal(t, int64(211), stats.TotalTokensUsed)
	assert.Equal(t, int64(2), stats.TotalCalls)
	assert.Equal(t, int64(200), stats.StageTokensUsed["generation"])
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"negative tokens", func(c *Config) { c.MaxTokensPerHour = -1 }},
		{"negative stage", func(c *Config) { c.MaxTokensPerStage = -1 }},
		{"negative cost", func(c *Config) { c.MaxCostPerHour = -0.5 }},
		{"zero threshold", func(c *Config) { c.AlertThreshold = 0 }},
		{"threshold above one", func(c *Config) { c.AlertThreshold = 1.5 }},
		{"zero interval", func(c *Config) { c.BudgetResetInterval = 0 }},
		{"negative price", func(c *Config) { c.OutputTokenCost = -1 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("DIYQA_COST_MAX_TOKENS_PER_HOUR", "42")
	t.Setenv("DIYQA_COST_BUDGET_RESET_INTERVAL", "10m")

	cfg, err := LoadFromEnv()
	require.NoError(t, err)
	assert.Equal(t, int64(42), cfg.MaxTokensPerHour)
	assert.Equal(t, 10*time.Minute, cfg.BudgetResetInterval)
	assert.True(t, cfg.Enabled)
}

func TestApproxTokens(t *testing.T) {
	assert.Equal(t, 0, ApproxTokens(""))
	assert.Equal(t, 1, ApproxTokens("abc"))
	assert.Equal(t, 2, ApproxTokens("abcdefgh"))
	assert.Equal(t, 0, EstimateTokens("gpt-3.5-turbo", ""))
}
