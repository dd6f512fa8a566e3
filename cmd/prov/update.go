package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/alfredjeanlab/provenance/internal/ledger"
	"github.com/alfredjeanlab/provenance/internal/model"
)

var updateSets []string

var updateCmd = &cobra.Command{
	Use:     "update <entity> <id>",
	Short:   "Record field changes to a business record",
	GroupID: "ledger",
	Args:    cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		entity, id, err := parseRecordArgs(args)
		if err != nil {
			return err
		}
		if len(updateSets) == 0 {
			return fmt.Errorf("update requires at least one --set")
		}
		ctx := context.Background()

		// The ledger needs the full post-change state and the per-field
		// befores, so start from the current reconstructed state.
		current, err := ledgerClient.Rehydrate(ctx, entity, id, time.Time{})
		if err != nil {
			return fmt.Errorf("loading current state: %w", err)
		}

		state := current.State.Clone()
		var fields []ledger.FieldChange
		for _, arg := range updateSets {
			field, after, err := parseSetFlag(arg)
			if err != nil {
				return err
			}
			fc := ledger.FieldChange{Field: field, After: &after}
			if before, ok := state[field]; ok {
				b := before
				fc.Before = &b
			}
			fields = append(fields, fc)
			if after.IsNull() {
				delete(state, field)
			} else {
				state[field] = after
			}
		}

		receipt, err := ledgerClient.RecordChange(ctx, &ledger.Change{
			EntityType: entity,
			RecordID:   id,
			Operation:  model.OpUpdate,
			Actor:      actor,
			Fields:     fields,
			State:      state,
		})
		if err != nil {
			return fmt.Errorf("recording update: %w", err)
		}

		if jsonOutput {
			printJSON(receipt)
		} else {
			printReceipt(receipt)
		}
		return nil
	},
}

func init() {
	updateCmd.Flags().StringArrayVar(&updateSets, "set", nil, "field value (field=value or field=type:value), repeatable")
}
