// Package batch runs classification over many opportunities in parallel
// batches with caching and crash-safe resume.
//
// The engine processes its input in fixed-size batches. Items within a
// batch are classified concurrently; batches are separated by a fixed
// delay so a large run stays inside API rate limits. After every batch
// the engine persists an AnalysisState snapshot, so an interrupted run
// resumes from the last batch boundary instead of the beginning.
package batch

import (
	"context"
	"encoding/json"
	"sync/atomic"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/oppscan/internal/classify"
	"github.com/sells-group/oppscan/internal/config"
	"github.com/sells-group/oppscan/internal/model"
	"github.com/sells-group/oppscan/internal/store"
)

// ErrAborted is returned when a run stops at a batch boundary because
// Abort was called. The persisted state survives, so the run can resume.
var ErrAborted = eris.New("batch: run aborted")

// Engine is the parallel batch analyzer.
type Engine struct {
	classifier classify.Classifier
	store      store.Store
	cfg        config.BatchConfig
	abort      atomic.Bool
}

// NewEngine creates a batch engine backed by the given classifier and store.
func NewEngine(classifier classify.Classifier, st store.Store, cfg config.BatchConfig) *Engine {
	if cfg.Size <= 0 {
		cfg.Size = 3
	}
	return &Engine{
		classifier: classifier,
		store:      st,
		cfg:        cfg,
	}
}

// Abort requests a cooperative stop. The current batch runs to completion;
// the engine then persists state and returns ErrAborted. Safe to call from
// any goroutine, including an event sink.
func (e *Engine) Abort() {
	e.abort.Store(true)
}

// State returns the persisted resume state, if any.
func (e *Engine) State(ctx context.Context) (*model.AnalysisState, error) {
	raw, ok, err := e.store.Get(ctx, store.StateKey)
	if err != nil {
		return nil, eris.Wrap(err, "batch: load state")
	}
	if !ok {
		return nil, nil
	}
	var state model.AnalysisState
	if err := json.Unmarshal(raw, &state); err != nil {
		return nil, eris.Wrap(err, "batch: decode state")
	}
	return &state, nil
}

// ClearState discards any persisted resume state.
func (e *Engine) ClearState(ctx context.Context) error {
	if err := e.store.Delete(ctx, store.StateKey); err != nil {
		return eris.Wrap(err, "batch: clear state")
	}
	return nil
}

// Run classifies the given opportunities in batches and returns one record
// per input, in input order. If a persisted state with pending work exists,
// the run resumes from it and the opps argument is ignored: the interrupted
// input set wins over whatever the caller passed this time.
//
// Individual classification failures never fail the run; they surface as
// fallback records with OK=false. Run returns an error only for context
// cancellation or abort. An unreadable persisted state degrades to a fresh
// run, the same policy as every other persistence failure.
func (e *Engine) Run(ctx context.Context, opps []model.Opportunity, instructions []model.CustomInstruction, sink model.EventSink) ([]model.AnalyzedOpportunity, error) {
	if sink == nil {
		sink = model.NopSink
	}
	e.abort.Store(false)

	state, err := e.State(ctx)
	if err != nil {
		zap.L().Warn("batch: unreadable persisted state, starting fresh", zap.Error(err))
		state = nil
	}
	if state != nil && len(state.Pending) > 0 {
		zap.L().Info("batch: resuming interrupted run",
			zap.Int("completed", len(state.Completed)),
			zap.Int("pending", len(state.Pending)),
			zap.Time("interrupted_at", state.Timestamp),
		)
	} else {
		state = &model.AnalysisState{Pending: opps}
	}

	total := len(state.Completed) + len(state.Pending)
	if total == 0 {
		sink(model.Event{Type: model.EventComplete, Count: 0})
		return nil, nil
	}

	for len(state.Pending) > 0 {
		if e.abort.Load() {
			if err := e.persistState(ctx, state); err != nil {
				zap.L().Warn("batch: persist state on abort failed", zap.Error(err))
			}
			return nil, ErrAborted
		}
		if err := ctx.Err(); err != nil {
			e.persistBackground(state)
			return nil, eris.Wrap(err, "batch: run canceled")
		}

		n := e.cfg.Size
		if n > len(state.Pending) {
			n = len(state.Pending)
		}
		chunk := state.Pending[:n]
		state.InProgress = n

		records, err := e.runBatch(ctx, chunk, instructions)
		if err != nil {
			e.persistBackground(state)
			return nil, err
		}

		state.Completed = append(state.Completed, records...)
		state.Pending = state.Pending[n:]
		state.InProgress = 0
		if err := e.persistState(ctx, state); err != nil {
			zap.L().Warn("batch: persist state failed, resume unavailable for this batch", zap.Error(err))
		}

		done := len(state.Completed) - len(records)
		for j, rec := range records {
			rec := rec
			sink(model.Event{
				Type:        model.EventProgress,
				Current:     done + j + 1,
				Total:       total,
				CurrentName: rec.Name,
			})
			sink(model.Event{Type: model.EventResult, Record: &rec})
		}

		if len(state.Pending) > 0 {
			if err := e.waitBatchDelay(ctx); err != nil {
				e.persistBackground(state)
				return nil, eris.Wrap(err, "batch: run canceled")
			}
		}
	}

	if err := e.ClearState(ctx); err != nil {
		zap.L().Warn("batch: clear state after completion failed", zap.Error(err))
	}
	sink(model.Event{Type: model.EventComplete, Count: len(state.Completed)})
	return state.Completed, nil
}

// runBatch classifies one chunk concurrently, consulting the cache first.
// The returned slice matches the chunk's order.
func (e *Engine) runBatch(ctx context.Context, chunk []model.Opportunity, instructions []model.CustomInstruction) ([]model.AnalyzedOpportunity, error) {
	records := make([]model.AnalyzedOpportunity, len(chunk))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(len(chunk))
	for i, opp := range chunk {
		i, opp := i, opp
		g.Go(func() error {
			if cached, ok := e.cacheGet(gctx, opp.ID); ok {
				zap.L().Debug("batch: cache hit", zap.String("opportunity_id", opp.ID))
				records[i] = *cached
				return nil
			}
			rec := model.AnalyzedOpportunity{
				Opportunity:    opp,
				Classification: e.classifier.Classify(gctx, opp, instructions),
			}
			records[i] = rec
			e.cacheSet(gctx, rec)
			return gctx.Err()
		})
	}
	if err := g.Wait(); err != nil {
		return nil, eris.Wrap(err, "batch: batch canceled")
	}
	return records, nil
}

// waitBatchDelay pauses for the full configured delay after a batch
// settles, no matter how long the batch itself took.
func (e *Engine) waitBatchDelay(ctx context.Context) error {
	if e.cfg.Delay() <= 0 {
		return nil
	}
	timer := time.NewTimer(e.cfg.Delay())
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func (e *Engine) persistState(ctx context.Context, state *model.AnalysisState) error {
	state.Timestamp = time.Now().UTC()
	raw, err := json.Marshal(state)
	if err != nil {
		return eris.Wrap(err, "batch: encode state")
	}
	if err := e.store.Set(ctx, store.StateKey, raw, e.cfg.StateTTL()); err != nil {
		return eris.Wrap(err, "batch: persist state")
	}
	return nil
}

// persistBackground saves state with a fresh context so an interrupted run
// still leaves a resume point behind.
func (e *Engine) persistBackground(state *model.AnalysisState) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := e.persistState(ctx, state); err != nil {
		zap.L().Warn("batch: persist state on cancel failed", zap.Error(err))
	}
}
