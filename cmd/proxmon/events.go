package main

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/MacRimi/proxmon/internal/types"
)

var (
	eventsLimit int
	eventsJSON  bool
)

var eventsCmd = &cobra.Command{
	Use:   "events",
	Short: "Show the error lifecycle audit trail",
	Long: `Show the newest error lifecycle events (new, updated, escalated,
resolved, acknowledged), newest first.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		events, err := monitor.GetRecentEvents(cmd.Context(), eventsLimit)
		if err != nil {
			return fmt.Errorf("failed to list events: %w", err)
		}
		if eventsJSON {
			return printJSON(events)
		}

		cyan := color.New(color.FgCyan, color.Bold).SprintFunc()
		gray := color.New(color.FgHiBlack).SprintFunc()
		fmt.Printf("\n%s\n\n", cyan("=== Recent Events ==="))

		if len(events) == 0 {
			fmt.Printf("  %s\n\n", gray("No events recorded"))
			return nil
		}
		for _, event := range events {
			fmt.Printf("  %s  %-12s %s\n",
				gray(event.Timestamp.Format("2006-01-02 15:04:05")),
				eventBadge(event.Type), event.ErrorKey)
		}
		fmt.Println()
		return nil
	},
}

func eventBadge(t types.EventType) string {
	switch t {
	case types.EventNew:
		return color.RedString("new")
	case types.EventEscalated:
		return color.New(color.FgRed, color.Bold).Sprint("escalated")
	case types.EventResolved:
		return color.GreenString("resolved")
	case types.EventAcknowledged:
		return color.CyanString("acknowledged")
	default:
		return color.YellowString(string(t))
	}
}

func init() {
	eventsCmd.Flags().IntVar(&eventsLimit, "limit", 50, "Maximum number of events to show")
	eventsCmd.Flags().BoolVar(&eventsJSON, "json", false, "Output as JSON")
	rootCmd.AddCommand(eventsCmd)
}
