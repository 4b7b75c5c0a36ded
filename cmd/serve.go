package main

import (
	"github.com/spf13/cobra"

	"github.com/sells-group/oppscan/internal/batch"
	"github.com/sells-group/oppscan/internal/pipeline"
	"github.com/sells-group/oppscan/internal/rules"
	"github.com/sells-group/oppscan/internal/server"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the analysis pipeline over HTTP with SSE progress streaming",
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

		if servePort > 0 {
			cfg.Server.Port = servePort
		}

		srv := server.New(
			pipeline.New(classifier, cfg.Filter.Keywords),
			batch.NewEngine(classifier, st, cfg.Batch),
			rules.NewManager(st),
			cfg.Server,
		)
		return srv.Serve(ctx)
	},
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "listen port (overrides config)")
	rootCmd.AddCommand(serveCmd)
}
