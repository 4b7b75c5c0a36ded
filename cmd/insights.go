package main

import (
	"encoding/json"
	"os"

	"github.com/spf13/cobra"

	"github.com/sells-group/oppscan/internal/codec"
	"github.com/sells-group/oppscan/internal/insights"
)

var insightsJSON bool

var insightsCmd = &cobra.Command{
	Use:   "insights <analyzed.xlsx>",
	Short: "Compute aggregate statistics over a previously analyzed spreadsheet",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		records, err := codec.ReadAnalyzed(args[0])
		if err != nil {
			return err
		}

		report := insights.Aggregate(records)
		if insightsJSON {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(report)
		}
		printReport(report)
		return nil
	},
}

func init() {
	insightsCmd.Flags().BoolVar(&insightsJSON, "json", false, "emit the full report as JSON")
	rootCmd.AddCommand(insightsCmd)
}
