package batch

import (
	"context"
	"encoding/json"
	"time"

	"go.uber.org/zap"

	"github.com/sells-group/oppscan/internal/model"
	"github.com/sells-group/oppscan/internal/store"
)

// cacheEntry is the stored form of a classification result.
type cacheEntry struct {
	Record   model.AnalyzedOpportunity `json:"record"`
	StoredAt time.Time                 `json:"stored_at"`
}

// cacheGet returns a live cached record for the opportunity id. Store
// failures degrade to a miss.
func (e *Engine) cacheGet(ctx context.Context, oppID string) (*model.AnalyzedOpportunity, bool) {
	raw, ok, err := e.store.Get(ctx, store.CacheKey(oppID))
	if err != nil {
		zap.L().Warn("batch: cache read failed, treating as miss",
			zap.String("opportunity_id", oppID),
			zap.Error(err),
		)
		return nil, false
	}
	if !ok {
		return nil, false
	}

	var entry cacheEntry
	if err := json.Unmarshal(raw, &entry); err != nil {
		zap.L().Warn("batch: corrupt cache entry, treating as miss",
			zap.String("opportunity_id", oppID),
			zap.Error(err),
		)
		return nil, false
	}
	return &entry.Record, true
}

// cacheSet stores a classification result with a fresh timestamp. Store
// failures are logged and swallowed: the system degrades to "no caching"
// rather than failing the run.
func (e *Engine) cacheSet(ctx context.Context, record model.AnalyzedOpportunity) {
	entry := cacheEntry{Record: record, StoredAt: time.Now().UTC()}
	raw, err := json.Marshal(entry)
	if err != nil {
		zap.L().Warn("batch: marshal cache entry failed", zap.Error(err))
		return
	}
	if err := e.store.Set(ctx, store.CacheKey(record.ID), raw, e.cfg.CacheTTL()); err != nil {
		zap.L().Warn("batch: cache write failed",
			zap.String("opportunity_id", record.ID),
			zap.Error(err),
		)
	}
}
