package main

import (
	"errors"
	"fmt"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/MacRimi/proxmon/internal/storage"
	"github.com/MacRimi/proxmon/internal/types"
)

var (
	errorsCategory string
	errorsJSON     bool
)

var errorsCmd = &cobra.Command{
	Use:   "errors",
	Short: "List active (unresolved) errors",
	Long: `List the unresolved error records in the tracking database, ordered
by severity and recency. Use --category to filter (services, storage,
disks, vms, network, cpu, memory, logs, updates, security).`,
	RunE: func(cmd *cobra.Command, args []string) error {
		active, err := monitor.GetActiveErrors(cmd.Context(), errorsCategory)
		if err != nil {
			return fmt.Errorf("failed to list errors: %w", err)
		}
		if errorsJSON {
			return printJSON(active)
		}

		cyan := color.New(color.FgCyan, color.Bold).SprintFunc()
		gray := color.New(color.FgHiBlack).SprintFunc()
		fmt.Printf("\n%s\n\n", cyan("=== Active Errors ==="))

		if len(active) == 0 {
			fmt.Printf("  %s\n\n", gray("No active errors"))
			return nil
		}

		for _, record := range active {
			fmt.Printf("  %s %s\n", severityBadge(record.Severity), record.ErrorKey)
			fmt.Printf("    %s\n", record.Reason)
			fmt.Printf("    Category:   %s\n", record.Category)
			fmt.Printf("    First seen: %s (%s ago)\n",
				record.FirstSeen.Format("2006-01-02 15:04:05"),
				time.Since(record.FirstSeen).Round(time.Minute))
			fmt.Printf("    Last seen:  %s\n", record.LastSeen.Format("2006-01-02 15:04:05"))
			if record.NotificationSent {
				fmt.Printf("    %s\n", gray("notified"))
			}
			fmt.Println()
		}
		fmt.Printf("  Total: %d\n\n", len(active))
		return nil
	},
}

var ackCmd = &cobra.Command{
	Use:   "ack <error-key>",
	Short: "Acknowledge an error",
	Long: `Acknowledge an error record. The record is resolved and the key
becomes immune to re-detection for the acknowledgement immunity window,
silencing a known issue without fixing it immediately.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		key := args[0]
		if err := monitor.AcknowledgeError(cmd.Context(), key); err != nil {
			return fmt.Errorf("failed to acknowledge %s: %w", key, err)
		}
		fmt.Printf("%s Acknowledged %s\n", color.GreenString("✓"), key)
		return nil
	},
}

var resolveCmd = &cobra.Command{
	Use:   "resolve <error-key>",
	Short: "Manually resolve an error",
	Long: `Mark an error record resolved. Unlike ack, the key is immediately
eligible for re-detection: use resolve after actually fixing the issue.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if store == nil {
			return fmt.Errorf("error store unavailable")
		}
		key := args[0]
		if _, err := store.GetError(cmd.Context(), key); err != nil {
			if errors.Is(err, storage.ErrNotFound) {
				return fmt.Errorf("no such error: %s", key)
			}
			return fmt.Errorf("failed to look up %s: %w", key, err)
		}
		if err := store.ResolveError(cmd.Context(), key, "manually resolved"); err != nil {
			return fmt.Errorf("failed to resolve %s: %w", key, err)
		}
		fmt.Printf("%s Resolved %s\n", color.GreenString("✓"), key)
		return nil
	},
}

func severityBadge(s types.Severity) string {
	if s == types.SeverityCritical {
		return color.New(color.FgRed, color.Bold).Sprint("CRIT")
	}
	return color.New(color.FgYellow).Sprint("WARN")
}

func init() {
	errorsCmd.Flags().StringVar(&errorsCategory, "category", "", "Filter by category")
	errorsCmd.Flags().BoolVar(&errorsJSON, "json", false, "Output as JSON")
	rootCmd.AddCommand(errorsCmd)
	rootCmd.AddCommand(ackCmd)
	rootCmd.AddCommand(resolveCmd)
}
