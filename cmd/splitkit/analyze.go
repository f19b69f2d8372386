package main

import (
	"encoding/json"
	"fmt"

	"github.com/harunnryd/splitkit/internal/report"

	"github.com/spf13/cobra"
)

var analyzeCmd = &cobra.Command{
	Use:   "analyze <events-file>",
	Short: "Summarize experiment results from exported events",
	Long:  `Reads a session export, a scheduled export or a JSONL event log and reports users, conversions, rates and lift per variant. Significance testing is not performed.`,
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		events, err := report.LoadFile(args[0])
		if err != nil {
			return err
		}

		results := report.Analyze(events)
		if only, _ := cmd.Flags().GetString("experiment"); only != "" {
			results = filterResults(results, only)
		}

		format, _ := cmd.Flags().GetString("format")
		switch format {
		case "json":
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(results)
		case "table", "":
			fmt.Fprintln(cmd.OutOrStdout(), report.Format(results))
			return nil
		default:
			return fmt.Errorf("unknown format %q (table, json)", format)
		}
	},
}

func filterResults(results []report.ExperimentResult, id string) []report.ExperimentResult {
	out := make([]report.ExperimentResult, 0, 1)
	for _, r := range results {
		if r.ID == id {
			out = append(out, r)
		}
	}
	return out
}

func init() {
	rootCmd.AddCommand(analyzeCmd)
	analyzeCmd.Flags().String("experiment", "", "only report this experiment")
	analyzeCmd.Flags().String("format", "table", "output format (table, json)")
}
