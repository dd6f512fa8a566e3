package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var (
	historyFrom string
	historyTo   string
)

var historyCmd = &cobra.Command{
	Use:     "history <entity> <id>",
	Short:   "List the change events of a record",
	GroupID: "ledger",
	Args:    cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		entity, id, err := parseRecordArgs(args)
		if err != nil {
			return err
		}
		from, err := parseTimeFlag(historyFrom)
		if err != nil {
			return err
		}
		to, err := parseTimeFlag(historyTo)
		if err != nil {
			return err
		}

		list, err := ledgerClient.ListEvents(context.Background(), entity, id, from, to)
		if err != nil {
			return fmt.Errorf("listing events: %w", err)
		}

		if jsonOutput {
			printJSON(list)
			return nil
		}
		if list.Total == 0 {
			fmt.Printf("No events for %s/%d\n", entity, id)
			return nil
		}
		printEventTable(list.Events)
		fmt.Printf("\n%d events\n", list.Total)
		return nil
	},
}

func init() {
	historyCmd.Flags().StringVar(&historyFrom, "from", "", "window start (RFC 3339)")
	historyCmd.Flags().StringVar(&historyTo, "to", "", "window end (RFC 3339)")
}
