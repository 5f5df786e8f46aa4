package commands

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/noah-art3mis/judex-mini/lib/export"
	"github.com/noah-art3mis/judex-mini/lib/groundtruth"
	"github.com/noah-art3mis/judex-mini/lib/scrapers/stf"
)

var (
	gtRecords *string
	gtDir     *string
	gtVerbose *bool
)

func init() {
	flags := gtCmd.Flags()
	gtRecords = flags.String("records", "", "Path to a json or jsonl records file produced by scrape.")
	gtDir = flags.String("ground-truth", "ground_truth", "Directory holding reference fixtures.")
	gtVerbose = flags.Bool("diffs", false, "Print the per-field diff for every failed case.")
	gtCmd.MarkFlagRequired("records")
	rootCmd.AddCommand(gtCmd)
}

var gtCmd = &cobra.Command{
	Use:   "gt --records <path/to/records.json>",
	Short: "Compares scraped records against hand-verified reference fixtures.",
	Run: func(cmd *cobra.Command, args []string) {
		records, err := export.ReadRecords(*gtRecords)
		if err != nil {
			fatal("failed to read records", err)
		}

		t := table.NewWriter()
		t.SetOutputMirror(os.Stdout)
		t.AppendHeader(table.Row{"Case", "Status", "Fields"})

		failed := 0
		for _, rec := range records {
			if rec.Classe == nil || rec.ProcessoID == nil {
				fatal("record is missing its identifier", errors.New("classe or processo_id is null"))
			}
			id := stf.CaseIdentifier{Class: *rec.Classe, Number: *rec.ProcessoID}

			res, err := groundtruth.Test(*gtDir, id, rec)
			if err != nil {
				fatal("comparison failed", err)
			}

			var fields []string
			fields = append(fields, res.Mismatched...)
			for _, f := range res.OnlyGenerated {
				fields = append(fields, f+" (generated only)")
			}
			for _, f := range res.OnlyReference {
				fields = append(fields, f+" (reference only)")
			}
			t.AppendRow(table.Row{id.String(), string(res.Status), strings.Join(fields, ", ")})

			if res.Status == groundtruth.StatusFailed {
				failed++
				if *gtVerbose {
					for field, diff := range res.Diffs {
						fmt.Fprintf(os.Stderr, "%s %s:\n%s\n", id, field, diff)
					}
				}
			}
		}

		t.SetStyle(table.StyleRounded)
		t.Render()

		if failed > 0 {
			os.Exit(2)
		}
	},
}
