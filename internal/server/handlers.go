package server

import (
	"encoding/json"
	"io"
	"net/http"

	"go.uber.org/zap"

	"github.com/sells-group/oppscan/internal/insights"
	"github.com/sells-group/oppscan/internal/model"
)

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleAnalyze runs the sequential pipeline over an uploaded spreadsheet,
// streaming events as SSE.
func (s *Server) handleAnalyze(w http.ResponseWriter, r *http.Request) {
	data, ok := readUpload(w, r)
	if !ok {
		return
	}

	stream, ok := newEventStream(w)
	if !ok {
		return
	}

	result, err := s.pipeline.Run(r.Context(), data, s.loadRules(r.Context()), stream.sink)
	if err != nil {
		// The pipeline already emitted the error event.
		zap.L().Warn("server: analyze run failed", zap.Error(err))
		return
	}
	s.setLast(result.Analyzed)
}

// handleBatch runs the parallel batch engine over an uploaded spreadsheet,
// resuming a previous interrupted run when one exists.
func (s *Server) handleBatch(w http.ResponseWriter, r *http.Request) {
	data, ok := readUpload(w, r)
	if !ok {
		return
	}

	opps, _, err := s.pipeline.Decode(r.Context(), data)
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, err)
		return
	}

	stream, ok := newEventStream(w)
	if !ok {
		return
	}

	records, err := s.engine.Run(r.Context(), opps, s.loadRules(r.Context()), stream.sink)
	if err != nil {
		zap.L().Warn("server: batch run stopped", zap.Error(err))
		stream.sink(model.Event{Type: model.EventError, Message: err.Error()})
		return
	}
	s.setLast(records)
}

func (s *Server) handleBatchAbort(w http.ResponseWriter, _ *http.Request) {
	s.engine.Abort()
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "aborting"})
}

func (s *Server) handleBatchState(w http.ResponseWriter, r *http.Request) {
	state, err := s.engine.State(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	if state == nil {
		writeJSON(w, http.StatusOK, map[string]any{"resumable": false})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"resumable": len(state.Pending) > 0,
		"completed": len(state.Completed),
		"pending":   len(state.Pending),
		"timestamp": state.Timestamp,
	})
}

func (s *Server) handleInsights(w http.ResponseWriter, _ *http.Request) {
	records := s.lastResults()
	if records == nil {
		writeError(w, http.StatusNotFound, errNoResults)
		return
	}
	writeJSON(w, http.StatusOK, insights.Aggregate(records))
}

func (s *Server) handleGetRules(w http.ResponseWriter, r *http.Request) {
	instructions, err := s.rules.Load(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	if instructions == nil {
		instructions = []model.CustomInstruction{}
	}
	writeJSON(w, http.StatusOK, instructions)
}

func (s *Server) handlePutRules(w http.ResponseWriter, r *http.Request) {
	var instructions []model.CustomInstruction
	if err := json.NewDecoder(r.Body).Decode(&instructions); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	for i := range instructions {
		tag, ok := model.ParseTag(string(instructions[i].Tag))
		if !ok {
			writeJSON(w, http.StatusBadRequest, map[string]string{
				"error": "unknown tag: " + string(instructions[i].Tag),
			})
			return
		}
		instructions[i].Tag = tag
	}
	if err := s.rules.Save(r.Context(), instructions); err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, instructions)
}

// readUpload extracts the spreadsheet bytes from a multipart "file" field,
// falling back to the raw request body.
func readUpload(w http.ResponseWriter, r *http.Request) ([]byte, bool) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadSize)

	if err := r.ParseMultipartForm(maxUploadSize); err == nil {
		file, _, err := r.FormFile("file")
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "missing file field"})
			return nil, false
		}
		defer file.Close()
		data, err := io.ReadAll(file)
		if err != nil {
			writeError(w, http.StatusBadRequest, err)
			return nil, false
		}
		return data, true
	}

	data, err := io.ReadAll(r.Body)
	if err != nil || len(data) == 0 {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "empty upload"})
		return nil, false
	}
	return data, true
}

var errNoResults = &noResultsError{}

type noResultsError struct{}

func (*noResultsError) Error() string { return "no completed analysis in this session" }

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		zap.L().Warn("server: write response failed", zap.Error(err))
	}
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}
