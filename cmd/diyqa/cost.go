package main

import (
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"github.com/steveyegge/diyqa/internal/cost"
)

var costCmd = &cobra.Command{
	Use:   "cost",
	Short: "Show AI cost budget and usage statistics",
	Long:  `Display current AI cost budget status, usage per stage, and all-time spending.`,
	Run: func(cmd *cobra.Command, args []string) {
		printCost(os.Stdout, tracker.GetStats())
	},
}

func printCost(w io.Writer, stats cost.BudgetStats) {
	cfg := stats.Config
	if !cfg.Enabled {
		fmt.Fprintln(w, "Cost budgeting is disabled")
		fmt.Fprintf(w, "Set %s_ENABLED=true to enable cost tracking\n", cost.EnvPrefix)
		return
	}

	header(w, "AI Cost Budget Status")

	statusColor := color.New(color.FgGreen)
	statusIcon := "✓"
	if stats.Status == cost.BudgetWarning {
		statusColor = color.New(color.FgYellow)
		statusIcon = "⚠️"
	} else if stats.Status == cost.BudgetExceeded {
		statusColor = color.New(color.FgRed, color.Bold)
		statusIcon = "🚨"
	}
	fmt.Fprintf(w, "%s Budget Status: %s\n\n", statusIcon, statusColor.Sprint(stats.Status.String()))

	yellow := color.New(color.FgYellow).SprintFunc()
	fmt.Fprintf(w, "%s\n", yellow("Window Budget:"))

	if cfg.MaxTokensPerHour > 0 {
		tokenPercent := float64(stats.WindowTokensUsed) / float64(cfg.MaxTokensPerHour) * 100
		fmt.Fprintf(w, "  Tokens:  %s / %d (%.1f%%)\n", formatTokens(stats.WindowTokensUsed), cfg.MaxTokensPerHour, tokenPercent)
		fmt.Fprintf(w, "           %s\n", renderProgressBar(tokenPercent, 40))
	} else {
		fmt.Fprintf(w, "  Tokens:  %s (unlimited)\n", formatTokens(stats.WindowTokensUsed))
	}

	if cfg.MaxCostPerHour > 0 {
		costPercent := stats.WindowCostUsed / cfg.MaxCostPerHour * 100
		fmt.Fprintf(w, "  Cost:    $%.4f / $%.2f (%.1f%%)\n", stats.WindowCostUsed, cfg.MaxCostPerHour, costPercent)
		fmt.Fprintf(w, "           %s\n", renderProgressBar(costPercent, 40))
	} else {
		fmt.Fprintf(w, "  Cost:    $%.4f (unlimited)\n", stats.WindowCostUsed)
	}

	fmt.Fprintf(w, "  Window:  %s → %s\n\n",
		stats.WindowStartTime.Format("15:04:05"),
		stats.WindowStartTime.Add(cfg.BudgetResetInterval).Format("15:04:05"))

	if len(stats.StageTokensUsed) > 0 {
		fmt.Fprintf(w, "%s\n", yellow("Per Stage:"))
		stages := make([]string, 0, len(stats.StageTokensUsed))
		for s := range stats.StageTokensUsed {
			stages = append(stages, s)
		}
		sort.Strings(stages)
		for _, s := range stages {
			used := stats.StageTokensUsed[s]
			if cfg.MaxTokensPerStage > 0 {
				fmt.Fprintf(w, "  %-12s %s / %d\n", s+":", formatTokens(used), cfg.MaxTokensPerStage)
			} else {
				fmt.Fprintf(w, "  %-12s %s\n", s+":", formatTokens(used))
			}
		}
		fmt.Fprintln(w)
	}

	fmt.Fprintf(w, "%s\n", yellow("All-Time Usage:"))
	fmt.Fprintf(w, "  Calls:   %d\n", stats.TotalCalls)
	fmt.Fprintf(w, "  Tokens:  %s\n", formatTokens(stats.TotalTokensUsed))
	fmt.Fprintf(w, "  Cost:    $%.2f\n", stats.TotalCostUsed)
	if stats.TotalTokensUsed > 0 {
		avgCostPerToken := stats.TotalCostUsed / float64(stats.TotalTokensUsed) * 1_000_000
		fmt.Fprintf(w, "  Avg:     $%.2f per 1M tokens\n", avgCostPerToken)
	}
	fmt.Fprintln(w)

	fmt.Fprintf(w, "%s\n", yellow("Configuration:"))
	fmt.Fprintf(w, "  Alert Threshold:    %.0f%%\n", cfg.AlertThreshold*100)
	fmt.Fprintf(w, "  Budget Reset:       %v\n", cfg.BudgetResetInterval)
	fmt.Fprintf(w, "  State Persistence:  %s\n\n", cfg.PersistStatePath)

	fmt.Fprintf(w, "%s\n", yellow("Pricing (per 1M tokens):"))
	fmt.Fprintf(w, "  Input:   $%.2f\n", cfg.InputTokenCost)
	fmt.Fprintf(w, "  Output:  $%.2f\n\n", cfg.OutputTokenCost)
}

func init() {
	rootCmd.AddCommand(costCmd)
}

// formatTokens abbreviates a token count: 950, 12.5K, 1.25M.
func formatTokens(tokens int64) string {
	switch {
	case tokens < 1000:
		return fmt.Sprintf("%d", tokens)
	case tokens < 1_000_000:
		return fmt.Sprintf("%.1fK", float64(tokens)/1000)
	default:
		return fmt.Sprintf("%.2fM", float64(tokens)/1_000_000)
	}
}

// renderProgressBar renders a text-based progress bar
func renderProgressBar(percent float64, width int) string {
	if percent < 0 {
		percent = 0
	}
	if percent > 100 {
		percent = 100
	}

	filled := int(percent / 100.0 * float64(width))

	var barColor *color.Color
	switch {
	case percent >= 100:
		barColor = color.New(color.FgRed, color.Bold)
	case percent >= 80:
		barColor = color.New(color.FgYellow)
	default:
		barColor = color.New(color.FgGreen)
	}

	var b strings.Builder
	b.WriteString("[")
	b.WriteString(barColor.Sprint(strings.Repeat("█", filled)))
	b.WriteString(color.New(color.FgHiBlack).Sprint(strings.Repeat("░", width-filled)))
	b.WriteString("]")
	return b.String()
}
