package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var sweepCmd = &cobra.Command{
	Use:     "sweep",
	Short:   "Run an integrity sweep over every tracked record",
	GroupID: "forensics",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		result, err := ledgerClient.Sweep(context.Background())
		if err != nil {
			return fmt.Errorf("running sweep: %w", err)
		}

		if jsonOutput {
			printJSON(result)
		} else {
			printSweepResult(result)
		}
		if result.Violations > 0 {
			os.Exit(1)
		}
		return nil
	},
}
