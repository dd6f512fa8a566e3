package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var statsCmd = &cobra.Command{
	Use:     "stats",
	Short:   "Show ledger activity statistics",
	GroupID: "system",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		stats, err := ledgerClient.Stats(context.Background())
		if err != nil {
			return fmt.Errorf("fetching stats: %w", err)
		}

		if jsonOutput {
			printJSON(stats)
		} else {
			printStats(stats)
		}
		return nil
	},
}
