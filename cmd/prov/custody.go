package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var (
	custodyFrom string
	custodyTo   string
)

var custodyCmd = &cobra.Command{
	Use:     "custody <entity> <id>",
	Short:   "Show the chain-of-custody timeline of a record",
	GroupID: "forensics",
	Args:    cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		entity, id, err := parseRecordArgs(args)
		if err != nil {
			return err
		}
		from, err := parseTimeFlag(custodyFrom)
		if err != nil {
			return err
		}
		to, err := parseTimeFlag(custodyTo)
		if err != nil {
			return err
		}

		report, err := ledgerClient.Custody(context.Background(), entity, id, from, to)
		if err != nil {
			return fmt.Errorf("building custody report: %w", err)
		}

		if jsonOutput {
			printJSON(report)
		} else {
			printCustodyReport(report)
		}
		return nil
	},
}

func init() {
	custodyCmd.Flags().StringVar(&custodyFrom, "from", "", "window start (RFC 3339)")
	custodyCmd.Flags().StringVar(&custodyTo, "to", "", "window end (RFC 3339)")
}
