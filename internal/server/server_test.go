package server

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tealeg/xlsx/v2"

	"github.com/sells-group/oppscan/internal/batch"
	"github.com/sells-group/oppscan/internal/config"
	"github.com/sells-group/oppscan/internal/model"
	"github.com/sells-group/oppscan/internal/pipeline"
	"github.com/sells-group/oppscan/internal/rules"
	"github.com/sells-group/oppscan/internal/store"
)

type stubClassifier struct{}

func (stubClassifier) Classify(_ context.Context, opp model.Opportunity, _ []model.CustomInstruction) model.Classification {
	return model.Classification{
		Tags:       []model.Tag{model.TagAI},
		Rationale:  "Mentions machine learning",
		Confidence: 85,
		OK:         true,
	}
}

var testHeader = []string{"Opportunity ID", "Account Name", "Opportunity Name", "Description", "Group", "Deal Size", "Total Value"}

func makeWorkbook(t *testing.T, rows [][]string) []byte {
	t.Helper()
	f := xlsx.NewFile()
	sheet, err := f.AddSheet("Opportunities")
	require.NoError(t, err)

	hr := sheet.AddRow()
	for _, h := range testHeader {
		hr.AddCell().SetString(h)
	}
	for _, row := range rows {
		r := sheet.AddRow()
		for _, cell := range row {
			r.AddCell().SetString(cell)
		}
	}

	var buf bytes.Buffer
	require.NoError(t, f.Write(&buf))
	return buf.Bytes()
}

func newTestServer(t *testing.T) (*Server, http.Handler) {
	t.Helper()
	st := store.NewMemory()
	p := pipeline.New(stubClassifier{}, nil)
	engine := batch.NewEngine(stubClassifier{}, st, config.BatchConfig{Size: 3, CacheTTLMins: 60, StateTTLHours: 24})
	srv := New(p, engine, rules.NewManager(st), config.ServerConfig{Port: 0, AllowedOrigins: []string{"*"}})
	return srv, srv.Router()
}

func uploadRequest(t *testing.T, target string, data []byte) *http.Request {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	fw, err := mw.CreateFormFile("file", "opps.xlsx")
	require.NoError(t, err)
	_, err = fw.Write(data)
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, target, &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

// parseSSE extracts the JSON payloads from an SSE body.
func parseSSE(t *testing.T, body string) []model.Event {
	t.Helper()
	var events []model.Event
	for _, line := range strings.Split(body, "\n") {
		if !strings.HasPrefix(line, "data: ") {
			continue
		}
		var ev model.Event
		require.NoError(t, json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &ev))
		events = append(events, ev)
	}
	return events
}

func TestHealth(t *testing.T) {
	_, router := newTestServer(t)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"ok"`)
}

func TestAnalyzeStreamsEvents(t *testing.T) {
	_, router := newTestServer(t)

	data := makeWorkbook(t, [][]string{
		{"1", "Acme", "AI Assist", "LLM rollout", "US-Comms & Media", "L", "100"},
		{"2", "Beta", "Store Refit", "shelving", "Retail", "M", "50"},
	})

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, uploadRequest(t, "/analyze", data))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/event-stream", rec.Header().Get("Content-Type"))

	events := parseSSE(t, rec.Body.String())
	require.NotEmpty(t, events)

	var results, completes int
	for _, ev := range events {
		switch ev.Type {
		case model.EventResult:
			results++
			require.NotNil(t, ev.Record)
			assert.True(t, ev.Record.OK)
		case model.EventComplete:
			completes++
			assert.Equal(t, 1, ev.Count) // Retail row filtered out
		}
	}
	assert.Equal(t, 1, results)
	assert.Equal(t, 1, completes)
}

func TestAnalyzeEmptySheetEmitsError(t *testing.T) {
	_, router := newTestServer(t)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, uploadRequest(t, "/analyze", makeWorkbook(t, nil)))

	events := parseSSE(t, rec.Body.String())
	require.NotEmpty(t, events)
	assert.Equal(t, model.EventError, events[len(events)-1].Type)
}

func TestBatchStreamsAndInsights(t *testing.T) {
	_, router := newTestServer(t)

	data := makeWorkbook(t, [][]string{
		{"1", "Acme", "AI Assist", "LLM rollout", "US-Comms & Media", "L", "100"},
		{"2", "Gamma", "Streaming BI", "dashboards", "Media Solutions", "S", "25"},
	})

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, uploadRequest(t, "/batch", data))

	assert.Equal(t, http.StatusOK, rec.Code)
	events := parseSSE(t, rec.Body.String())

	var complete *model.Event
	for i, ev := range events {
		if ev.Type == model.EventComplete {
			complete = &events[i]
		}
	}
	require.NotNil(t, complete)
	assert.Equal(t, 2, complete.Count)

	// The completed set feeds the insights endpoint.
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/insights", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	var report struct {
		Total int `json:"total"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &report))
	assert.Equal(t, 2, report.Total)
}

func TestBatchRejectsUnreadableUpload(t *testing.T) {
	_, router := newTestServer(t)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, uploadRequest(t, "/batch", []byte("not a spreadsheet")))

	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}

func TestInsightsBeforeAnyRun(t *testing.T) {
	_, router := newTestServer(t)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/insights", nil))

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestBatchStateEmpty(t *testing.T) {
	_, router := newTestServer(t)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/batch/state", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"resumable":false`)
}

func TestBatchAbort(t *testing.T) {
	_, router := newTestServer(t)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/batch/abort", nil))

	assert.Equal(t, http.StatusAccepted, rec.Code)
}

func TestRulesRoundTrip(t *testing.T) {
	_, router := newTestServer(t)

	// Empty to start.
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/rules", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "[]\n", rec.Body.String())

	// Save two rules.
	payload := `[{"tag":"AI","text":"ML deals count"},{"tag":"genai","text":"copilots"}]`
	rec = httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPut, "/rules", strings.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	// Read them back, aliases normalized.
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/rules", nil))

	var rulesOut []model.CustomInstruction
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &rulesOut))
	require.Len(t, rulesOut, 2)
	assert.Equal(t, model.TagGenAI, rulesOut[1].Tag)
}

func TestRulesRejectUnknownTag(t *testing.T) {
	_, router := newTestServer(t)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPut, "/rules", strings.NewReader(`[{"tag":"Quantum","text":"x"}]`))
	req.Header.Set("Content-Type", "application/json")
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "Quantum")
}
