package main

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var cleanupCmd = &cobra.Command{
	Use:   "cleanup",
	Short: "Run a retention pass over the error database",
	Long: `Enforce retention on the error database: delete resolved records past
the resolved retention window, auto-resolve stale transient errors per
category policy, and purge old audit events.

The monitor also runs this opportunistically; the command exists for
cron jobs and for forcing a pass after changing retention settings.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		stats, err := monitor.Cleanup(cmd.Context())
		if err != nil {
			return fmt.Errorf("cleanup failed: %w", err)
		}

		green := color.New(color.FgGreen).SprintFunc()
		fmt.Printf("\n%s Cleanup complete\n\n", green("✓"))
		fmt.Printf("  Resolved records deleted: %d\n", stats.ResolvedDeleted)
		fmt.Printf("  Stale errors auto-resolved: %d\n", stats.AutoResolved)
		fmt.Printf("  Events deleted: %d\n\n", stats.EventsDeleted)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(cleanupCmd)
}
