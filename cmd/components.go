package main

import (
	"context"
	"fmt"
	"os"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/oppscan/internal/classify"
	"github.com/sells-group/oppscan/internal/model"
	"github.com/sells-group/oppscan/internal/rules"
	"github.com/sells-group/oppscan/internal/store"
	"github.com/sells-group/oppscan/pkg/anthropic"
)

// initStore opens the configured key-value store.
func initStore(ctx context.Context) (store.Store, error) {
	st, err := store.Open(ctx, cfg.Store)
	if err != nil {
		return nil, eris.Wrap(err, "open store")
	}
	return st, nil
}

// initClassifier builds the Anthropic-backed classifier.
func initClassifier() (*classify.Client, error) {
	if cfg.Anthropic.Key == "" {
		return nil, eris.New("anthropic key not configured (set OPPSCAN_ANTHROPIC_KEY)")
	}
	return classify.New(anthropic.NewClient(cfg.Anthropic.Key), cfg.Anthropic), nil
}

// loadInstructions merges persisted rules with an optional YAML seed file.
// Persisted rules come first so seeded defaults never override user edits.
func loadInstructions(ctx context.Context, st store.Store) ([]model.CustomInstruction, error) {
	manager := rules.NewManager(st)
	persisted, err := manager.Load(ctx)
	if err != nil {
		return nil, err
	}

	if cfg.Rules.File == "" {
		return persisted, nil
	}
	seeded, err := rules.LoadFile(cfg.Rules.File)
	if err != nil {
		if os.IsNotExist(eris.Cause(err)) {
			zap.L().Debug("rules file not found, skipping", zap.String("file", cfg.Rules.File))
			return persisted, nil
		}
		return nil, err
	}
	return append(persisted, seeded...), nil
}

// progressSink prints a terminal-friendly rendition of pipeline events.
func progressSink(ev model.Event) {
	switch ev.Type {
	case model.EventAgentStatus:
		fmt.Printf("[%s] %s\n", ev.Agent, ev.Action)
	case model.EventProgress:
		fmt.Printf("  (%d/%d) %s\n", ev.Current, ev.Total, ev.CurrentName)
	case model.EventResult:
		if ev.Record != nil {
			tags := ev.Record.JoinedTags()
			if tags == "" {
				tags = "none"
			}
			fmt.Printf("    %s [%s] %d%%\n", ev.Record.Name, tags, ev.Record.Confidence)
		}
	case model.EventComplete:
		fmt.Printf("Done: %d opportunities analyzed\n", ev.Count)
	case model.EventError:
		fmt.Fprintf(os.Stderr, "Error: %s\n", ev.Message)
	}
}
