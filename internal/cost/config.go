package cost

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// EnvPrefix is the environment prefix for budget settings, e.g. DIYQA_COST_ENABLED.
const EnvPrefix = "DIYQA_COST"

// Config holds cost budgeting configuration
type Config struct {
	// Enabled controls whether budgets are enforced at all
	Enabled bool `json:"enabled" envconfig:"ENABLED"`

	// MaxTokensPerHour caps input+output tokens per window, 0 = unlimited
	MaxTokensPerHour int64 `json:"max_tokens_per_hour" envconfig:"MAX_TOKENS_PER_HOUR"`

	// MaxTokensPerStage caps tokens spent by one operation ("judge",
	// "correction", ...) within a window, 0 = unlimited
	MaxTokensPerStage int64 `json:"max_tokens_per_stage" envconfig:"MAX_TOKENS_PER_STAGE"`

	// MaxCostPerHour caps USD per window, 0 = unlimited
	MaxCostPerHour float64 `json:"max_cost_per_hour" envconfig:"MAX_COST_PER_HOUR"`

	// AlertThreshold is the fraction of a limit that logs a warning
	AlertThreshold float64 `json:"alert_threshold" envconfig:"ALERT_THRESHOLD"`

	// BudgetResetInterval is the window length
	BudgetResetInterval time.Duration `json:"budget_reset_interval" envconfig:"BUDGET_RESET_INTERVAL"`

	// PersistStatePath keeps usage across process restarts, empty = in memory
	PersistStatePath string `json:"persist_state_path" envconfig:"PERSIST_STATE_PATH"`

	// InputTokenCost and OutputTokenCost are USD per 1M tokens
	InputTokenCost  float64 `json:"input_token_cost" envconfig:"INPUT_TOKEN_COST"`
	OutputTokenCost float64 `json:"output_token_cost" envconfig:"OUTPUT_TOKEN_COST"`
}

// DefaultConfig returns default cost budgeting configuration. Prices are
// gpt-3.5-turbo list prices.
func DefaultConfig() *Config {
	return &Config{
		Enabled:             true,
		MaxTokensPerHour:    2_000_000,
		MaxTokensPerStage:   0,
		MaxCostPerHour:      5.00,
		AlertThreshold:      0.80,
		BudgetResetInterval: time.Hour,
		PersistStatePath:    "",
		InputTokenCost:      0.50,
		OutputTokenCost:     1.50,
	}
}

// LoadFromEnv applies DIYQA_COST_* overrides to the defaults.
func LoadFromEnv() (*Config, error) {
	cfg := DefaultConfig()
	if err := envconfig.Process(EnvPrefix, cfg); err != nil {
		return nil, fmt.Errorf("failed to read cost config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid cost config: %w", err)
	}
	return cfg, nil
}

// Validate checks that the configuration has safe and reasonable values
func (c *Config) Validate() error {
	if c.MaxTokensPerHour < 0 {
		return fmt.Errorf("max_tokens_per_hour must be non-negative, got %d", c.MaxTokensPerHour)
	}
	if c.MaxTokensPerStage < 0 {
		return fmt.Errorf("max_tokens_per_stage must be non-negative, got %d", c.MaxTokensPerStage)
	}
	if c.MaxCostPerHour < 0 {
		return fmt.Errorf("max_cost_per_hour must be non-negative, got %.2f", c.MaxCostPerHour)
	}
	if c.AlertThreshold <= 0 || c.AlertThreshold > 1.0 {
		return fmt.Errorf("alert_threshold must be between 0 and 1, got %.2f", c.AlertThreshold)
	}
	if c.BudgetResetInterval <= 0 {
		return fmt.Errorf("budget_reset_interval must be positive, got %v", c.BudgetResetInterval)
	}
	if c.InputTokenCost < 0 || c.OutputTokenCost < 0 {
		return fmt.Errorf("token costs must be non-negative")
	}
	return nil
}
