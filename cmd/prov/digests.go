package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
)

var digestsCmd = &cobra.Command{
	Use:     "digests <entity> <id>",
	Short:   "List the integrity digest history of a record",
	GroupID: "forensics",
	Args:    cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		entity, id, err := parseRecordArgs(args)
		if err != nil {
			return err
		}

		list, err := ledgerClient.ListDigests(context.Background(), entity, id, time.Time{}, time.Time{})
		if err != nil {
			return fmt.Errorf("listing digests: %w", err)
		}

		if jsonOutput {
			printJSON(list)
			return nil
		}
		if list.Total == 0 {
			fmt.Printf("No digests for %s/%d\n", entity, id)
			return nil
		}
		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tCOMPUTED\tDIGEST\tFIELDS")
		for _, d := range list.Digests {
			fmt.Fprintf(w, "%d\t%s\t%s\t%s\n",
				d.DigestID,
				d.ComputedAt.Format(timeFormat),
				d.DigestValue,
				strings.Join(d.FieldsIncluded, ","),
			)
		}
		w.Flush()
		return nil
	},
}
