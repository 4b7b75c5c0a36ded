package batch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/oppscan/internal/config"
	"github.com/sells-group/oppscan/internal/model"
	"github.com/sells-group/oppscan/internal/store"
)

// countingClassifier records which opportunities it was asked to classify.
type countingClassifier struct {
	mu    sync.Mutex
	calls []string
}

func (c *countingClassifier) Classify(_ context.Context, opp model.Opportunity, _ []model.CustomInstruction) model.Classification {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls = append(c.calls, opp.ID)
	return model.Classification{
		Tags:       []model.Tag{model.TagAI},
		Rationale:  "Matched",
		Confidence: 80,
		OK:         true,
	}
}

func (c *countingClassifier) callCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.calls)
}

func testBatchConfig() config.BatchConfig {
	return config.BatchConfig{Size: 3, DelayMillis: 0, CacheTTLMins: 60, StateTTLHours: 24}
}

func makeOpps(n int) []model.Opportunity {
	opps := make([]model.Opportunity, n)
	for i := range opps {
		opps[i] = model.Opportunity{
			ID:       fmt.Sprintf("opp-%02d", i),
			Account:  "Acme Media",
			Name:     fmt.Sprintf("Deal %d", i),
			Industry: "Media",
		}
	}
	return opps
}

func TestRunClassifiesAllInOrder(t *testing.T) {
	cls := &countingClassifier{}
	engine := NewEngine(cls, store.NewMemory(), testBatchConfig())

	opps := makeOpps(7)
	records, err := engine.Run(context.Background(), opps, nil, nil)
	require.NoError(t, err)
	require.Len(t, records, 7)

	for i, rec := range records {
		assert.Equal(t, opps[i].ID, rec.ID, "output order must match input order")
		assert.True(t, rec.OK)
	}
	assert.Equal(t, 7, cls.callCount())
}

func TestRunEmitsMonotonicProgress(t *testing.T) {
	engine := NewEngine(&countingClassifier{}, store.NewMemory(), testBatchConfig())

	var progress []int
	var complete int
	sink := func(ev model.Event) {
		switch ev.Type {
		case model.EventProgress:
			progress = append(progress, ev.Current)
			assert.Equal(t, 5, ev.Total)
		case model.EventComplete:
			complete = ev.Count
		}
	}

	_, err := engine.Run(context.Background(), makeOpps(5), nil, sink)
	require.NoError(t, err)

	assert.Equal(t, []int{1, 2, 3, 4, 5}, progress)
	assert.Equal(t, 5, complete)
}

func TestRunResumesFromPersistedState(t *testing.T) {
	st := store.NewMemory()
	opps := makeOpps(10)

	// Simulate a run interrupted after the first batch of three.
	interrupted := model.AnalysisState{
		Pending:   opps[3:],
		Timestamp: time.Now().UTC(),
	}
	for _, opp := range opps[:3] {
		interrupted.Completed = append(interrupted.Completed, model.AnalyzedOpportunity{
			Opportunity:    opp,
			Classification: model.Classification{Tags: []model.Tag{model.TagData}, Rationale: "From before", Confidence: 70, OK: true},
		})
	}
	raw, err := json.Marshal(interrupted)
	require.NoError(t, err)
	require.NoError(t, st.Set(context.Background(), store.StateKey, raw, 0))

	cls := &countingClassifier{}
	engine := NewEngine(cls, st, testBatchConfig())

	// The input is ignored in favor of the interrupted set.
	records, err := engine.Run(context.Background(), nil, nil, nil)
	require.NoError(t, err)
	require.Len(t, records, 10)

	// Only the seven pending items hit the classifier.
	assert.Equal(t, 7, cls.callCount())

	seen := make(map[string]bool)
	for _, rec := range records {
		assert.False(t, seen[rec.ID], "duplicate record %s", rec.ID)
		seen[rec.ID] = true
	}
	assert.Len(t, seen, 10)

	// The pre-interruption classifications survive untouched.
	assert.Equal(t, "From before", records[0].Rationale)

	// State is cleaned up after a completed run.
	_, ok, err := st.Get(context.Background(), store.StateKey)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRunUsesCacheWithinTTL(t *testing.T) {
	st := store.NewMemory()
	now := time.Now()
	st.SetClock(func() time.Time { return now })

	cls := &countingClassifier{}
	engine := NewEngine(cls, st, testBatchConfig())

	opps := makeOpps(2)
	_, err := engine.Run(context.Background(), opps, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, 2, cls.callCount())

	// Second run within the TTL is served entirely from cache.
	records, err := engine.Run(context.Background(), opps, nil, nil)
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, 2, cls.callCount(), "cached items must not be re-classified")

	// After the TTL lapses the cache entries expire and the classifier
	// is consulted again.
	now = now.Add(61 * time.Minute)
	_, err = engine.Run(context.Background(), opps, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, 4, cls.callCount())
}

func TestAbortStopsAtBatchBoundary(t *testing.T) {
	st := store.NewMemory()
	cls := &countingClassifier{}
	engine := NewEngine(cls, st, testBatchConfig())

	// Abort as soon as the first batch's results stream out.
	sink := func(ev model.Event) {
		if ev.Type == model.EventResult {
			engine.Abort()
		}
	}

	_, err := engine.Run(context.Background(), makeOpps(9), nil, sink)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrAborted)
	assert.Equal(t, 3, cls.callCount(), "abort must wait for the batch boundary")

	// The resume state survives the abort.
	state, err := engine.State(context.Background())
	require.NoError(t, err)
	require.NotNil(t, state)
	assert.Len(t, state.Completed, 3)
	assert.Len(t, state.Pending, 6)
}

func TestAbortedRunResumes(t *testing.T) {
	st := store.NewMemory()
	cls := &countingClassifier{}
	engine := NewEngine(cls, st, testBatchConfig())

	sink := func(ev model.Event) {
		if ev.Type == model.EventResult {
			engine.Abort()
		}
	}
	_, err := engine.Run(context.Background(), makeOpps(9), nil, sink)
	require.ErrorIs(t, err, ErrAborted)

	records, err := engine.Run(context.Background(), nil, nil, nil)
	require.NoError(t, err)
	assert.Len(t, records, 9)
}

func TestClearStateDiscardsResume(t *testing.T) {
	st := store.NewMemory()
	engine := NewEngine(&countingClassifier{}, st, testBatchConfig())

	sink := func(ev model.Event) {
		if ev.Type == model.EventResult {
			engine.Abort()
		}
	}
	_, err := engine.Run(context.Background(), makeOpps(6), nil, sink)
	require.ErrorIs(t, err, ErrAborted)

	require.NoError(t, engine.ClearState(context.Background()))

	state, err := engine.State(context.Background())
	require.NoError(t, err)
	assert.Nil(t, state)
}

func TestRunCanceledPersistsState(t *testing.T) {
	st := store.NewMemory()
	cls := &countingClassifier{}
	engine := NewEngine(cls, st, testBatchConfig())

	ctx, cancel := context.WithCancel(context.Background())
	sink := func(ev model.Event) {
		if ev.Type == model.EventResult {
			cancel()
		}
	}

	_, err := engine.Run(ctx, makeOpps(9), nil, sink)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)

	state, err := engine.State(context.Background())
	require.NoError(t, err)
	require.NotNil(t, state)
	assert.NotEmpty(t, state.Pending)
}

func TestRunEmptyInput(t *testing.T) {
	engine := NewEngine(&countingClassifier{}, store.NewMemory(), testBatchConfig())

	var complete bool
	records, err := engine.Run(context.Background(), nil, nil, func(ev model.Event) {
		if ev.Type == model.EventComplete {
			complete = true
			assert.Equal(t, 0, ev.Count)
		}
	})
	require.NoError(t, err)
	assert.Empty(t, records)
	assert.True(t, complete)
}

func TestFallbackRecordsDoNotFailRun(t *testing.T) {
	engine := NewEngine(fallbackClassifier{}, store.NewMemory(), testBatchConfig())

	records, err := engine.Run(context.Background(), makeOpps(4), nil, nil)
	require.NoError(t, err)
	require.Len(t, records, 4)
	for _, rec := range records {
		assert.False(t, rec.OK)
		assert.Empty(t, rec.Tags)
	}
}

type fallbackClassifier struct{}

func (fallbackClassifier) Classify(context.Context, model.Opportunity, []model.CustomInstruction) model.Classification {
	return model.Classification{Rationale: "Classification failed: boom", OK: false}
}

// faultyStateStore fails reads of the resume-state key while passing
// everything else through.
type faultyStateStore struct {
	*store.MemoryStore
}

func (s *faultyStateStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	if key == store.StateKey {
		return nil, false, errors.New("store unavailable")
	}
	return s.MemoryStore.Get(ctx, key)
}

func TestRunDegradesWhenStateUnreadable(t *testing.T) {
	st := &faultyStateStore{MemoryStore: store.NewMemory()}
	cls := &countingClassifier{}
	engine := NewEngine(cls, st, testBatchConfig())

	records, err := engine.Run(context.Background(), makeOpps(4), nil, nil)
	require.NoError(t, err, "a failing state read must not fail the run")
	assert.Len(t, records, 4)
	assert.Equal(t, 4, cls.callCount())
}

func TestRunDegradesWhenStateCorrupt(t *testing.T) {
	st := store.NewMemory()
	require.NoError(t, st.Set(context.Background(), store.StateKey, []byte("{not json"), 0))

	cls := &countingClassifier{}
	engine := NewEngine(cls, st, testBatchConfig())

	records, err := engine.Run(context.Background(), makeOpps(2), nil, nil)
	require.NoError(t, err, "a corrupt state blob must not fail the run")
	assert.Len(t, records, 2)
	assert.Equal(t, 2, cls.callCount())

	// The completed run replaces the corrupt blob with nothing.
	_, ok, err := st.Get(context.Background(), store.StateKey)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRunWaitsFullDelayBetweenBatches(t *testing.T) {
	cfg := testBatchConfig()
	cfg.DelayMillis = 50
	engine := NewEngine(&countingClassifier{}, store.NewMemory(), cfg)

	// 6 opportunities in batches of 3: exactly one inter-batch pause.
	start := time.Now()
	_, err := engine.Run(context.Background(), makeOpps(6), nil, nil)
	require.NoError(t, err)

	assert.GreaterOrEqual(t, time.Since(start), 50*time.Millisecond,
		"the pause starts after the batch settles, never shortened by batch duration")
}
