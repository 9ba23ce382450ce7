package cost

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"go.uber.org/zap"
)

// BudgetStatus represents the current budget state
type BudgetStatus int

const (
	// BudgetHealthy indicates normal operation - under budget limits
	BudgetHealthy BudgetStatus = iota
	// BudgetWarning indicates approaching budget limits
	BudgetWarning
	// BudgetExceeded indicates budget limits have been exceeded
	BudgetExceeded
)

func (s BudgetStatus) String() string {
	switch s {
	case BudgetHealthy:
		return "HEALTHY"
	case BudgetWarning:
		return "WARNING"
	case BudgetExceeded:
		return "EXCEEDED"
	default:
		return fmt.Sprintf("UNKNOWN(%d)", s)
	}
}

// BudgetState is the persisted usage.
type BudgetState struct {
	WindowTokensUsed int64            `json:"window_tokens_used"`
	WindowCostUsed   float64          `json:"window_cost_used"`
	WindowStartTime  time.Time        `json:"window_start_time"`
	StageTokensUsed  map[string]int64 `json:"stage_tokens_used"`
	TotalTokensUsed  int64            `json:"total_tokens_used"`
	TotalCostUsed    float64          `json:"total_cost_used"`
	TotalCalls       int64            `json:"total_calls"`
	LastUpdated      time.Time        `json:"last_updated"`
}

// Tracker tracks token spend and enforces the configured limits.
type Tracker struct {
	config *Config
	logger *zap.Logger
	now    func() time.Time

	mu            sync.RWMutex
	state         *BudgetState
	warningLogged bool
}

// NewTracker creates a tracker, restoring persisted state when configured.
func NewTracker(cfg *Config, logger *zap.Logger) (*Tracker, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	t := &Tracker{config: cfg, logger: logger, now: time.Now}
	t.state = t.freshState()

	if err := t.loadState(); err != nil {
		logger.Warn("failed to load cost state, starting fresh",
			zap.String("path", cfg.PersistStatePath), zap.Error(err))
	}
	t.checkAndResetWindow()
	return t, nil
}

func (t *Tracker) freshState() *BudgetState {
	now := t.now()
	return &BudgetState{WindowStartTime: now, LastUpdated: now, StageTokensUsed: make(map[string]int64)}
}

// RecordUsage records token usage under stage.
func (t *Tracker) RecordUsage(ctx context.Context, stage string, inputTokens, outputTokens int64) error {
	if !t.config.Enabled {
		return nil
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	t.checkAndResetWindow()

	total := inputTokens + outputTokens
	cost := t.calculateCost(inputTokens, outputTokens)

	t.state.WindowTokensUsed += total
	t.state.WindowCostUsed += cost
	t.state.TotalTokensUsed += total
	t.state.TotalCostUsed += cost
	t.state.TotalCalls++
	t.state.LastUpdated = t.now()
	if stage != "" {
		t.state.StageTokensUsed[stage] += total
	}

	t.emitAlertsIfNeeded(t.statusLocked())

	if err := t.persistState(); err != nil {
		return fmt.Errorf("failed to persist cost state: %w", err)
	}
	return nil
}

// CheckBudget returns the current status without recording usage
func (t *Tracker) CheckBudget() BudgetStatus {
	if !t.config.Enabled {
		return BudgetHealthy
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.checkAndResetWindow()
	return t.statusLocked()
}

// CanProceed returns true if another call under stage fits the budget.
func (t *Tracker) CanProceed(stage string) (bool, string) {
	if !t.config.Enabled {
		return true, ""
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	t.checkAndResetWindow()

	if t.tokenLimitExceeded() {
		return false, fmt.Sprintf("token budget exceeded (%d/%d tokens this window)",
			t.state.WindowTokensUsed, t.config.MaxTokensPerHour)
	}
	if t.costLimitExceeded() {
		return false, fmt.Sprintf("cost budget exceeded ($%.2f/$%.2f this window)",
			t.state.WindowCostUsed, t.config.MaxCostPerHour)
	}
	if stage != "" && t.config.MaxTokensPerStage > 0 && t.state.StageTokensUsed[stage] >= t.config.MaxTokensPerStage {
		return false, fmt.Sprintf("%s stage budget exceeded (%d/%d tokens)",
			stage, t.state.StageTokensUsed[stage], t.config.MaxTokensPerStage)
	}
	return true, ""
}

// BudgetStats is a snapshot for reporting.
type BudgetStats struct {
	Status           BudgetStatus     `json:"status"`
	WindowTokensUsed int64            `json:"window_tokens_used"`
	WindowCostUsed   float64          `json:"window_cost_used"`
	WindowStartTime  time.Time        `json:"window_start_time"`
	StageTokensUsed  map[string]int64 `json:"stage_tokens_used"`
	TotalTokensUsed  int64            `json:"total_tokens_used"`
	TotalCostUsed    float64          `json:"total_cost_used"`
	TotalCalls       int64            `json:"total_calls"`
	LastUpdated      time.Time        `json:"last_updated"`
	Config           Config           `json:"config"`
}

// GetStats returns current budget statistics
func (t *Tracker) GetStats() BudgetStats {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.checkAndResetWindow()

	stages := make(map[string]int64, len(t.state.StageTokensUsed))
	for k, v := range t.state.StageTokensUsed {
		stages[k] = v
	}
	return BudgetStats{
		Status:           t.statusLocked(),
		WindowTokensUsed: t.state.WindowTokensUsed,
		WindowCostUsed:   t.state.WindowCostUsed,
		WindowStartTime:  t.state.WindowStartTime,
		StageTokensUsed:  stages,
		TotalTokensUsed:  t.state.TotalTokensUsed,
		TotalCostUsed:    t.state.TotalCostUsed,
		TotalCalls:       t.state.TotalCalls,
		LastUpdated:      t.state.LastUpdated,
		Config:           *t.config,
	}
}

// must be called with lock held
func (t *Tracker) statusLocked() BudgetStatus {
	if !t.config.Enabled {
		return BudgetHealthy
	}
	if t.tokenLimitExceeded() || t.costLimitExceeded() {
		return BudgetExceeded
	}
	if t.config.MaxTokensPerHour > 0 &&
		float64(t.state.WindowTokensUsed)/float64(t.config.MaxTokensPerHour) >= t.config.AlertThreshold {
		return BudgetWarning
	}
	if t.config.MaxCostPerHour > 0 &&
		t.state.WindowCostUsed/t.config.MaxCostPerHour >= t.config.AlertThreshold {
		return BudgetWarning
	}
	return BudgetHealthy
}

func (t *Tracker) tokenLimitExceeded() bool {
	return t.config.MaxTokensPerHour > 0 && t.state.WindowTokensUsed >= t.config.MaxTokensPerHour
}

func (t *Tracker) costLimitExceeded() bool {
	return t.config.MaxCostPerHour > 0 && t.state.WindowCostUsed >= t.config.MaxCostPerHour
}

func (t *Tracker) calculateCost(inputTokens, outputTokens int64) float64 {
	return float64(inputTokens)*t.config.InputTokenCost/1_000_000 +
		float64(outputTokens)*t.config.OutputTokenCost/1_000_000
}

// must be called with lock held
func (t *Tracker) checkAndResetWindow() {
	now := t.now()
	if now.Sub(t.state.WindowStartTime) >= t.config.BudgetResetInterval {
		t.state.WindowTokensUsed = 0
		t.state.WindowCostUsed = 0
		t.state.StageTokensUsed = make(map[string]int64)
		t.state.WindowStartTime = now
		t.warningLogged = false
	}
}

func (t *Tracker) emitAlertsIfNeeded(status BudgetStatus) {
	switch status {
	case BudgetWarning:
		if !t.warningLogged {
			t.logger.Warn("cost budget warning",
				zap.Int64("window_tokens", t.state.WindowTokensUsed),
				zap.Float64("window_cost_usd", t.state.WindowCostUsed))
			t.warningLogged = true
		}
	case BudgetExceeded:
		t.logger.Error("cost budget exceeded, refusing new calls until the window resets",
			zap.Int64("window_tokens", t.state.WindowTokensUsed),
			zap.Int64("max_tokens", t.config.MaxTokensPerHour),
			zap.Float64("window_cost_usd", t.state.WindowCostUsed),
			zap.Time("resets_at", t.state.WindowStartTime.Add(t.config.BudgetResetInterval)))
	}
}

func (t *Tracker) persistState() error {
	path := t.config.PersistStatePath
	if path == "" {
		return nil
	}
	data, err := json.MarshalIndent(t.state, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal state: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("failed to write state file: %w", err)
	}
	return os.Rename(tmp, path)
}

func (t *Tracker) loadState() error {
	path := t.config.PersistStatePath
	if path == "" {
		return nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to read state file: %w", err)
	}

	var state BudgetState
	if err := json.Unmarshal(data, &state); err != nil {
		return fmt.Errorf("failed to unmarshal state: %w", err)
	}
	if state.StageTokensUsed == nil {
		state.StageTokensUsed = make(map[string]int64)
	}
	t.state = &state
	return nil
}
