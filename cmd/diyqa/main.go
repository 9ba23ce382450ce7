package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"github.com/steveyegge/diyqa/internal/ai"
	"github.com/steveyegge/diyqa/internal/config"
	"github.com/steveyegge/diyqa/internal/cost"
	"github.com/steveyegge/diyqa/internal/logging"
	"github.com/steveyegge/diyqa/internal/metrics"
	"github.com/steveyegge/diyqa/internal/storage"
	"go.uber.org/zap"
)

// version is stamped into the output lock; overridden with -ldflags.
var version = "0.1.0"

var (
	cfgPath   string
	outputDir string
	modelFlag string
	provider  string

	cfg     *config.Config
	logger  *zap.Logger
	mets    *metrics.Metrics
	tracker *cost.Tracker
)

var rootCmd = &cobra.Command{
	Use:   "diyqa",
	Short: "Synthetic home DIY repair Q&A pipeline",
	Long: `Generate home DIY repair Q&A pairs with an LLM, validate their structure,
label them against six failure modes with an LLM judge, analyze the failures,
and correct failed records until the dataset meets its failure-rate target.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.Load(cfgPath)
		if err != nil {
			return err
		}
		if outputDir != "" {
			cfg.OutputDir = outputDir
		}
		if modelFlag != "" {
			cfg.Model = modelFlag
		}
		if provider != "" {
			cfg.Provider = provider
		}
		if err := cfg.Validate(); err != nil {
			return fmt.Errorf("invalid config: %w", err)
		}

		logger, err = logging.New(cfg.Log)
		if err != nil {
			return err
		}
		mets = metrics.New()

		costCfg, err := cost.LoadFromEnv()
		if err != nil {
			return err
		}
		if costCfg.PersistStatePath == "" {
			costCfg.PersistStatePath = cfg.Path(storage.CostStateFile)
		}
		tracker, err = cost.NewTracker(costCfg, logger)
		if err != nil {
			return fmt.Errorf("failed to initialize cost tracker: %w", err)
		}

		ai.SetDefaultFactory(func() (ai.Gateway, error) {
			return buildGateway(cfg, tracker, mets, logger)
		})
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := mets.Push(ctx, cfg.PushgatewayURL, cmd.Name()); err != nil {
			logger.Warn("failed to push metrics", zap.Error(err))
		}
		_ = logger.Sync()
	},
}

// buildGateway stacks provider, instrumentation, budget and retries.
func buildGateway(c *config.Config, t *cost.Tracker, m *metrics.Metrics, l *zap.Logger) (ai.Gateway, error) {
	var base ai.Gateway
	switch c.Provider {
	case "anthropic":
		gw, err := ai.NewAnthropicGateway(ai.AnthropicConfig{
			APIKey:  c.AnthropicAPIKey,
			Model:   c.Model,
			Timeout: c.RequestTimeout,
		})
		if err != nil {
			return nil, err
		}
		base = gw
	default:
		gw, err := ai.NewOpenAIGateway(ai.OpenAIConfig{
			APIKey:  c.OpenAIAPIKey,
			BaseURL: c.BaseURL,
			Model:   c.Model,
			Timeout: c.RequestTimeout,
		})
		if err != nil {
			return nil, err
		}
		base = gw
	}

	var gw ai.Gateway = ai.NewInstrumentedGateway(base, m, l)
	if t != nil {
		gw = ai.NewBudgetGateway(gw, t, cost.EstimateTokens, c.ModelName(), l)
	}
	return ai.NewRetryingGateway(gw, c.Retry, l), nil
}

// signalContext is canceled on Ctrl+C or SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

// exitOnError prints err and exits 1. A missing stage input gets a hint.
func exitOnError(err error) {
	if err == nil {
		return
	}
	red := color.New(color.FgRed).SprintFunc()
	fmt.Fprintf(os.Stderr, "%s %v\n", red("Error:"), err)
	if errors.Is(err, storage.ErrMissingUpstream) {
		fmt.Fprintln(os.Stderr, "Run the previous pipeline stage first or point --output-dir at its results.")
	}
	if logger != nil {
		_ = logger.Sync()
	}
	os.Exit(1)
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgPath, "config", "", "config file (default ./"+config.DefaultFile+" if present)")
	rootCmd.PersistentFlags().StringVar(&outputDir, "output-dir", "", "directory for stage outputs (default output)")
	rootCmd.PersistentFlags().StringVar(&modelFlag, "model", "", "model name (default depends on provider)")
	rootCmd.PersistentFlags().StringVar(&provider, "provider", "", "completion provider: openai or anthropic")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
