package main

import (
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/oppscan/internal/batch"
	"github.com/sells-group/oppscan/internal/codec"
	"github.com/sells-group/oppscan/internal/insights"
	"github.com/sells-group/oppscan/internal/pipeline"
)

var (
	batchOutput string
	batchFresh  bool
)

var batchCmd = &cobra.Command{
	Use:   "batch <file.xlsx>",
	Short: "Analyze a spreadsheet in parallel batches with caching and resume",
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
		opps, dropped, err := p.Decode(ctx, data)
		if err != nil {
			return err
		}
		zap.L().Info("batch: input decoded",
			zap.Int("opportunities", len(opps)),
			zap.Int("filtered_out", dropped),
		)

		engine := batch.NewEngine(classifier, st, cfg.Batch)
		if batchFresh {
			if err := engine.ClearState(ctx); err != nil {
				return err
			}
		}

		records, err := engine.Run(ctx, opps, instructions, progressSink)
		if err != nil {
			return err
		}

		if err := codec.WriteResultsFile(batchOutput, records); err != nil {
			return err
		}
		zap.L().Info("batch: output written",
			zap.String("file", batchOutput),
			zap.Int("records", len(records)),
		)

		printReport(insights.Aggregate(records))
		return nil
	},
}

func init() {
	batchCmd.Flags().StringVarP(&batchOutput, "output", "o", "analyzed.xlsx", "output spreadsheet path")
	batchCmd.Flags().BoolVar(&batchFresh, "fresh", false, "discard any interrupted run instead of resuming it")
	rootCmd.AddCommand(batchCmd)
}
