package main

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/MacRimi/proxmon/internal/health"
	"github.com/MacRimi/proxmon/internal/types"
)

var (
	statusDetailed bool
	statusJSON     bool
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show overall host health",
	Long: `Evaluate all health categories and print the overall verdict.

With --detailed, print the per-category breakdown including metrics.
Results are memoized: repeated invocations within the cache TTL reuse
the previous evaluation.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		if statusDetailed {
			detailed, err := monitor.GetDetailedStatus(ctx)
			if err != nil {
				return fmt.Errorf("failed to evaluate health: %w", err)
			}
			if statusJSON {
				return printJSON(detailed)
			}
			printDetailed(detailed)
			return nil
		}

		overall, err := monitor.GetOverallStatus(ctx)
		if err != nil {
			return fmt.Errorf("failed to evaluate health: %w", err)
		}
		if statusJSON {
			return printJSON(overall)
		}
		printOverall(overall)
		return nil
	},
}

func printOverall(overall *types.OverallStatus) {
	cyan := color.New(color.FgCyan, color.Bold).SprintFunc()
	fmt.Printf("\n%s\n\n", cyan("=== Host Health ==="))

	fmt.Printf("  %s %s\n", statusIcon(overall.Status), statusColor(overall.Status)(string(overall.Status)))
	fmt.Printf("  %s\n\n", overall.Summary)
	fmt.Printf("  Categories: %d critical, %d warning, %d ok\n",
		overall.CriticalCount, overall.WarningCount, overall.OKCount)
	fmt.Printf("  Evaluated:  %s\n\n", overall.Timestamp.Format("2006-01-02 15:04:05"))
}

func printDetailed(detailed *types.DetailedStatus) {
	cyan := color.New(color.FgCyan, color.Bold).SprintFunc()
	gray := color.New(color.FgHiBlack).SprintFunc()

	fmt.Printf("\n%s\n\n", cyan("=== Host Health ==="))
	fmt.Printf("  %s %s - %s\n\n", statusIcon(detailed.Overall),
		statusColor(detailed.Overall)(string(detailed.Overall)), detailed.Summary)

	for _, category := range health.Categories {
		result := detailed.Details[category]
		fmt.Printf("  %s %-10s %s", statusIcon(result.Status), category,
			statusColor(result.Status)(string(result.Status)))
		if result.Reason != "" {
			fmt.Printf("  %s", gray(result.Reason))
		}
		fmt.Println()

		if len(result.Metrics) > 0 {
			keys := make([]string, 0, len(result.Metrics))
			for k := range result.Metrics {
				keys = append(keys, k)
			}
			sort.Strings(keys)
			for _, k := range keys {
				fmt.Printf("      %s: %v\n", gray(k), result.Metrics[k])
			}
		}
	}
	fmt.Printf("\n  Evaluated: %s\n\n", detailed.Timestamp.Format("2006-01-02 15:04:05"))
}

func statusIcon(s types.Status) string {
	switch s {
	case types.StatusCritical:
		return color.RedString("✗")
	case types.StatusWarning:
		return color.YellowString("⚠")
	case types.StatusUnknown:
		return color.HiBlackString("?")
	case types.StatusInfo:
		return color.CyanString("i")
	default:
		return color.GreenString("✓")
	}
}

func statusColor(s types.Status) func(a ...interface{}) string {
	switch s {
	case types.StatusCritical:
		return color.New(color.FgRed, color.Bold).SprintFunc()
	case types.StatusWarning:
		return color.New(color.FgYellow).SprintFunc()
	case types.StatusUnknown:
		return color.New(color.FgHiBlack).SprintFunc()
	case types.StatusInfo:
		return color.New(color.FgCyan).SprintFunc()
	default:
		return color.New(color.FgGreen).SprintFunc()
	}
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func init() {
	statusCmd.Flags().BoolVar(&statusDetailed, "detailed", false, "Show the per-category breakdown")
	statusCmd.Flags().BoolVar(&statusJSON, "json", false, "Output as JSON")
	rootCmd.AddCommand(statusCmd)
}
