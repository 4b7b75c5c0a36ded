package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync"

	"go.uber.org/zap"

	"github.com/sells-group/oppscan/internal/model"
)

// eventStream writes pipeline events to an SSE response. Events may arrive
// from multiple goroutines during a batch run, so writes are serialized.
type eventStream struct {
	mu      sync.Mutex
	w       http.ResponseWriter
	flusher http.Flusher
}

// newEventStream upgrades the response to text/event-stream. Returns false
// (with a 500 already written) when the writer cannot flush.
func newEventStream(w http.ResponseWriter) (*eventStream, bool) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "streaming unsupported"})
		return nil, false
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	return &eventStream{w: w, flusher: flusher}, true
}

// sink is the model.EventSink feeding this stream.
func (s *eventStream) sink(ev model.Event) {
	payload, err := json.Marshal(ev)
	if err != nil {
		zap.L().Warn("server: marshal event failed", zap.Error(err))
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	fmt.Fprintf(s.w, "event: %s\ndata: %s\n\n", ev.Type, payload)
	s.flusher.Flush()
}
