package main

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"text/tabwriter"
	"time"

	"github.com/alfredjeanlab/provenance/internal/ledger"
	"github.com/alfredjeanlab/provenance/internal/model"
	"github.com/alfredjeanlab/provenance/internal/ui"
)

const timeFormat = "2006-01-02 15:04:05"

func printJSON(v any) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error marshaling JSON: %v\n", err)
		return
	}
	fmt.Println(string(data))
}

func renderValue(v *model.Value) string {
	if v == nil {
		return "-"
	}
	if v.IsNull() {
		return "null"
	}
	return v.Raw
}

func printReceipt(receipt *ledger.Receipt) {
	fmt.Printf("Recorded %d event(s) at %s\n", len(receipt.EventIDs), receipt.OccurredAt.Format(timeFormat))
	fmt.Printf("Digest:   %s\n", receipt.Digest.DigestValue)
	if receipt.Snapshot != nil {
		fmt.Printf("Snapshot: #%d taken\n", receipt.Snapshot.SnapshotID)
	}
}

func printEventTable(events []*model.ChangeEvent) {
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tTIME\tOP\tENTITY\tRECORD\tFIELD\tBEFORE\tAFTER\tACTOR")
	for _, e := range events {
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%d\t%s\t%s\t%s\t%s\n",
			e.EventID,
			e.OccurredAt.Format(timeFormat),
			e.Operation,
			e.EntityType,
			e.RecordID,
			orDash(e.Field),
			truncate(renderValue(e.ValueBefore), 30),
			truncate(renderValue(e.ValueAfter), 30),
			e.Actor,
		)
	}
	w.Flush()
}

func printState(state model.State) {
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	for _, field := range state.Fields() {
		v := state[field]
		fmt.Fprintf(w, "%s\t%s\t%s\n", field, ui.RenderMuted(string(v.Type)), renderValue(&v))
	}
	w.Flush()
}

func printTamperReport(report *model.TamperReport) {
	if report.Intact {
		fmt.Printf("%s  %s/%d\n", ui.RenderIntact("INTACT"), report.EntityType, report.RecordID)
		return
	}
	fmt.Printf("%s  %s/%d  (%d discrepanc%s)\n",
		ui.RenderViolation("TAMPERED"), report.EntityType, report.RecordID,
		len(report.Discrepancies), pluralY(len(report.Discrepancies)))
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "KIND\tFIELD\tLEDGER\tLIVE")
	for _, d := range report.Discrepancies {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", d.Kind, orDash(d.Field), d.Expected, d.Actual)
	}
	w.Flush()
}

func printCustodyReport(report *model.CustodyReport) {
	fmt.Printf("Chain of custody for %s/%d (%d events)\n",
		report.EntityType, report.RecordID, report.TotalEvents)
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "TIME\tOP\tFIELD\tACTOR\tDIGEST")
	for _, entry := range report.Entries {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
			entry.Event.OccurredAt.Format(timeFormat),
			entry.Event.Operation,
			orDash(entry.Event.Field),
			entry.Actor,
			truncate(entry.Digest, 16),
		)
	}
	w.Flush()
}

func printSweepResult(result *model.SweepResult) {
	verdict := ui.RenderIntact("CLEAN")
	if result.Violations > 0 {
		verdict = ui.RenderViolation("VIOLATIONS")
	}
	fmt.Printf("%s  checked=%d intact=%d violations=%d no_data=%d (%s)\n",
		verdict, result.Checked, result.Intact, result.Violations, result.NoData,
		result.FinishedAt.Sub(result.StartedAt).Round(time.Millisecond))
	for _, ref := range result.Flagged {
		fmt.Printf("  flagged: %s\n", ref)
	}
}

func printStats(stats *model.Stats) {
	fmt.Printf("Total events: %d\n", stats.TotalEvents)
	printCountMap("By entity", stats.ByEntity)
	printCountMap("By operation", stats.ByOperation)
	printCountMap("By actor", stats.ByActor)
}

func printCountMap(title string, counts map[string]int) {
	if len(counts) == 0 {
		return
	}
	fmt.Printf("\n%s:\n", title)
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	for _, k := range sortedKeys(counts) {
		fmt.Fprintf(w, "  %s\t%d\n", k, counts[k])
	}
	w.Flush()
}

func sortedKeys(m map[string]int) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max-3] + "..."
}

func pluralY(n int) string {
	if n == 1 {
		return "y"
	}
	return "ies"
}
