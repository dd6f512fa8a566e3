package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var (
	eventsEntity string
	eventsLimit  int
)

var eventsCmd = &cobra.Command{
	Use:     "events",
	Short:   "List recent change events across the ledger",
	GroupID: "ledger",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		list, err := ledgerClient.RecentEvents(context.Background(), eventsEntity, eventsLimit)
		if err != nil {
			return fmt.Errorf("listing events: %w", err)
		}

		if jsonOutput {
			printJSON(list)
			return nil
		}
		if list.Total == 0 {
			fmt.Println("No events")
			return nil
		}
		printEventTable(list.Events)
		return nil
	},
}

func init() {
	eventsCmd.Flags().StringVar(&eventsEntity, "entity", "", "filter by entity type")
	eventsCmd.Flags().IntVar(&eventsLimit, "limit", 0, "maximum events to return")
}
