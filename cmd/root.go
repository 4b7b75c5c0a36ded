package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/oppscan/internal/config"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "oppscan",
	Short: "Opportunity analysis pipeline",
	Long:  "Reads business opportunity spreadsheets, filters by industry, classifies each deal into AI / Gen AI / Analytics / Data via Claude, and writes annotated output and aggregate insights.",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		c, err := config.Load()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		cfg = c

		if err := config.InitLogger(cfg.Log); err != nil {
			return fmt.Errorf("init logger: %w", err)
		}

		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = zap.L().Sync()
	},
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
