package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var rehydrateAt string

var rehydrateCmd = &cobra.Command{
	Use:     "rehydrate <entity> <id>",
	Short:   "Reconstruct a record's state at a point in time",
	GroupID: "ledger",
	Args:    cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		entity, id, err := parseRecordArgs(args)
		if err != nil {
			return err
		}
		at, err := parseTimeFlag(rehydrateAt)
		if err != nil {
			return err
		}

		rec, err := ledgerClient.Rehydrate(context.Background(), entity, id, at)
		if err != nil {
			return fmt.Errorf("rehydrating %s/%d: %w", entity, id, err)
		}

		if jsonOutput {
			printJSON(rec)
			return nil
		}
		fmt.Printf("%s/%d at %s\n\n", rec.EntityType, rec.RecordID, rec.At.Format(timeFormat))
		printState(rec.State)
		return nil
	},
}

func init() {
	rehydrateCmd.Flags().StringVar(&rehydrateAt, "time", "", "point in time (RFC 3339, default now)")
}
