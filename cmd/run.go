package main

import (
	"fmt"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/oppscan/internal/codec"
	"github.com/sells-group/oppscan/internal/insights"
	"github.com/sells-group/oppscan/internal/pipeline"
)

var runOutput string

var runCmd = &cobra.Command{
	Use:   "run <file.xlsx>",
	Short: "Analyze a spreadsheet sequentially, one classification at a time",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		classifier, err := initClassifier()
		if err != nil {
			return err
		}

		instructions, err := loadInstructions(ctx, st)
		if err != nil {
			return err
		}

		data, err := os.ReadFile(args[0])
		if err != nil {
			return eris.Wrapf(err, "read %s", args[0])
		}

		p := pipeline.New(classifier, cfg.Filter.Keywords)
		result, err := p.Run(ctx, data, instructions, progressSink)
		if err != nil {
			return err
		}

		if err := codec.WriteResultsFile(runOutput, result.Analyzed); err != nil {
			return err
		}
		zap.L().Info("run: output written",
			zap.String("file", runOutput),
			zap.Int("records", len(result.Analyzed)),
		)

		printReport(insights.Aggregate(result.Analyzed))
		return nil
	},
}

// printReport renders the aggregate view after a run.
func printReport(report insights.Report) {
	if report.Total == 0 {
		return
	}

	fmt.Printf("\nConfidence: %d high / %d medium / %d low\n",
		report.Confidence.High, report.Confidence.Medium, report.Confidence.Low)

	if len(report.TagGroups) > 0 {
		fmt.Println("Tag groups:")
		for _, g := range report.TagGroups {
			fmt.Printf("  %-24s %3d  (%.1f%%)\n", g.Key, g.Count, g.Percent)
		}
	}
	if len(report.Accounts) > 0 {
		fmt.Println("Top accounts:")
		for i, a := range report.Accounts {
			if i == 5 {
				break
			}
			fmt.Printf("  %-24s %3d deals, mean confidence %.1f\n", a.Account, a.Count, a.MeanConfidence)
		}
	}
}

func init() {
	runCmd.Flags().StringVarP(&runOutput, "output", "o", "analyzed.xlsx", "output spreadsheet path")
	rootCmd.AddCommand(runCmd)
}
