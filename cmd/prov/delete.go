package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/alfredjeanlab/provenance/internal/ledger"
	"github.com/alfredjeanlab/provenance/internal/model"
)

var deleteCmd = &cobra.Command{
	Use:     "delete <entity> <id>",
	Short:   "Record the deletion of a business record",
	GroupID: "ledger",
	Args:    cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		entity, id, err := parseRecordArgs(args)
		if err != nil {
			return err
		}
		ctx := context.Background()

		// A DELETE event carries the state immediately before the
		// deletion, so capture it first.
		current, err := ledgerClient.Rehydrate(ctx, entity, id, time.Time{})
		if err != nil {
			return fmt.Errorf("loading current state: %w", err)
		}

		receipt, err := ledgerClient.RecordChange(ctx, &ledger.Change{
			EntityType: entity,
			RecordID:   id,
			Operation:  model.OpDelete,
			Actor:      actor,
			State:      current.State,
		})
		if err != nil {
			return fmt.Errorf("recording delete: %w", err)
		}

		if jsonOutput {
			printJSON(receipt)
		} else {
			printReceipt(receipt)
		}
		return nil
	},
}
