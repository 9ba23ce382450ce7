package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"github.com/steveyegge/diyqa/internal/ai"
	"github.com/steveyegge/diyqa/internal/logging"
	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes every environment override, e.g. DIYQA_MODEL.
// The API keys are also read unprefixed (OPENAI_API_KEY, ANTHROPIC_API_KEY).
const EnvPrefix = "DIYQA"

// DefaultFile is loaded when no explicit config path is given and it exists.
const DefaultFile = "diyqa.yaml"

// Config holds pipeline configuration
type Config struct {
	// Provider selects the completion backend: "openai" or "anthropic"
	Provider string `yaml:"provider" envconfig:"PROVIDER"`
	// Model overrides the provider default
	Model string `yaml:"model" envconfig:"MODEL"`
	// BaseURL points the openai provider at a compatible endpoint
	BaseURL string `yaml:"base_url" envconfig:"BASE_URL"`

	OpenAIAPIKey    string `yaml:"-" envconfig:"OPENAI_API_KEY"`
	AnthropicAPIKey string `yaml:"-" envconfig:"ANTHROPIC_API_KEY"`

	// RequestTimeout bounds each completion call, 0 = none
	RequestTimeout time.Duration `yaml:"request_timeout" envconfig:"REQUEST_TIMEOUT"`

	OutputDir string `yaml:"output_dir" envconfig:"OUTPUT_DIR"`

	// Samples is the generation batch size
	Samples int `yaml:"samples" envconfig:"SAMPLES"`
	// Seed fixes the template sequence; 0 leaves it random
	Seed int64 `yaml:"seed" envconfig:"SEED"`

	// PacingInterval is the minimum spacing between paced calls
	PacingInterval time.Duration `yaml:"pacing_interval" envconfig:"PACING_INTERVAL"`
	// JudgeConcurrency is the number of records labeled at once
	JudgeConcurrency int `yaml:"judge_concurrency" envconfig:"JUDGE_CONCURRENCY"`
	// ParallelModes evaluates the six modes of a record concurrently
	ParallelModes bool `yaml:"parallel_modes" envconfig:"PARALLEL_MODES"`
	// StripCodeFences accepts generated or corrected JSON wrapped in one ``` fence
	StripCodeFences bool `yaml:"strip_code_fences" envconfig:"STRIP_CODE_FENCES"`

	TargetFailureRate float64       `yaml:"target_failure_rate" envconfig:"TARGET_FAILURE_RATE"`
	MaxIterations     int           `yaml:"max_iterations" envconfig:"MAX_ITERATIONS"`
	LoopTimeout       time.Duration `yaml:"loop_timeout" envconfig:"LOOP_TIMEOUT"`

	Retry ai.RetryConfig `yaml:"retry" envconfig:"RETRY"`
	Log   logging.Config `yaml:"log" envconfig:"LOG"`

	// PushgatewayURL enables pushing metrics after each command
	PushgatewayURL string `yaml:"pushgateway_url" envconfig:"PUSHGATEWAY_URL"`
	// LedgerPath is the SQLite run ledger; empty means <output_dir>/ledger.db
	LedgerPath string `yaml:"ledger_path" envconfig:"LEDGER_PATH"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Provider:          "openai",
		RequestTimeout:    60 * time.Second,
		OutputDir:         "output",
		Samples:           20,
		PacingInterval:    500 * time.Millisecond,
		JudgeConcurrency:  1,
		TargetFailureRate: 0.0632,
		MaxIterations:     3,
		Retry:             ai.DefaultRetryConfig(),
		Log:               logging.Config{Level: "info", Encoding: "console"},
	}
}

// Load layers defaults, the YAML file at path (or DefaultFile if present),
// a .env file, and finally the environment.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	cfg := Default()

	explicit := path != ""
	if !explicit {
		path = DefaultFile
	}
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse %s: %w", path, err)
		}
	case explicit || !errors.Is(err, os.ErrNotExist):
		return nil, fmt.Errorf("failed to read config %s: %w", path, err)
	}

	if err := envconfig.Process(EnvPrefix, cfg); err != nil {
		return nil, fmt.Errorf("failed to read environment: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// Validate checks ranges.
func (c *Config) Validate() error {
	switch c.Provider {
	case "openai", "anthropic":
	default:
		return fmt.Errorf("provider must be openai or anthropic, got %q", c.Provider)
	}
	if c.OutputDir == "" {
		return fmt.Errorf("output_dir is required")
	}
	if c.Samples < 0 {
		return fmt.Errorf("samples must be non-negative, got %d", c.Samples)
	}
	if c.PacingInterval < 0 {
		return fmt.Errorf("pacing_interval must be non-negative, got %v", c.PacingInterval)
	}
	if c.RequestTimeout < 0 {
		return fmt.Errorf("request_timeout must be non-negative, got %v", c.RequestTimeout)
	}
	if c.JudgeConcurrency < 1 {
		return fmt.Errorf("judge_concurrency must be at least 1, got %d", c.JudgeConcurrency)
	}
	if c.TargetFailureRate <= 0 || c.TargetFailureRate > 1 {
		return fmt.Errorf("target_failure_rate must be in (0, 1], got %g", c.TargetFailureRate)
	}
	if c.MaxIterations < 1 {
		return fmt.Errorf("max_iterations must be at least 1, got %d", c.MaxIterations)
	}
	if c.Retry.MaxRetries < 0 {
		return fmt.Errorf("retry.max_retries must be non-negative, got %d", c.Retry.MaxRetries)
	}
	if c.Retry.MaxRetries > 0 && (c.Retry.InitialBackoff <= 0 || c.Retry.BackoffMultiplier < 1) {
		return fmt.Errorf("retry backoff must be positive with multiplier >= 1")
	}
	return nil
}

// Path joins name onto the output directory.
func (c *Config) Path(name string) string {
	return filepath.Join(c.OutputDir, name)
}

// Ledger returns the ledger database path.
func (c *Config) Ledger() string {
	if c.LedgerPath != "" {
		return c.LedgerPath
	}
	return c.Path("ledger.db")
}

// ModelName returns the configured model or the provider default.
func (c *Config) ModelName() string {
	if c.Model != "" {
		return c.Model
	}
	if c.Provider == "anthropic" {
		return ai.DefaultAnthropicModel
	}
	return ai.DefaultOpenAIModel
}
