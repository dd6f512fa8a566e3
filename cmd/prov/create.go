package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/alfredjeanlab/provenance/internal/ledger"
	"github.com/alfredjeanlab/provenance/internal/model"
)

var createSets []string

var createCmd = &cobra.Command{
	Use:     "create <entity> <id>",
	Short:   "Record the creation of a business record",
	GroupID: "ledger",
	Args:    cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		entity, id, err := parseRecordArgs(args)
		if err != nil {
			return err
		}
		state, err := parseState(createSets)
		if err != nil {
			return err
		}

		receipt, err := ledgerClient.RecordChange(context.Background(), &ledger.Change{
			EntityType: entity,
			RecordID:   id,
			Operation:  model.OpCreate,
			Actor:      actor,
			State:      state,
		})
		if err != nil {
			return fmt.Errorf("recording create: %w", err)
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
	createCmd.Flags().StringArrayVar(&createSets, "set", nil, "field value (field=value or field=type:value), repeatable")
}
