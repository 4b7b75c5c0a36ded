// Package server exposes the analysis pipeline over HTTP. Long-running
// operations stream their progress as server-sent events so a dashboard
// can render per-row results as they arrive.
package server

import (
	"context"
	"net/http"
	"sync"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/sells-group/oppscan/internal/batch"
	"github.com/sells-group/oppscan/internal/config"
	"github.com/sells-group/oppscan/internal/model"
	"github.com/sells-group/oppscan/internal/pipeline"
	"github.com/sells-group/oppscan/internal/rules"
)

// maxUploadSize bounds spreadsheet uploads.
const maxUploadSize = 25 << 20 // 25MB

// Server wires the pipeline, batch engine, and rules manager into a router.
type Server struct {
	pipeline *pipeline.Pipeline
	engine   *batch.Engine
	rules    *rules.Manager
	cfg      config.ServerConfig

	mu   sync.RWMutex
	last []model.AnalyzedOpportunity // most recent completed result set
}

// New creates a Server.
func New(p *pipeline.Pipeline, engine *batch.Engine, rm *rules.Manager, cfg config.ServerConfig) *Server {
	return &Server{pipeline: p, engine: engine, rules: rm, cfg: cfg}
}

// Router builds the HTTP routing table.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: s.cfg.AllowedOrigins,
		AllowedMethods: []string{"GET", "POST", "PUT", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
	}))

	r.Get("/health", s.handleHealth)
	r.Post("/analyze", s.handleAnalyze)
	r.Post("/batch", s.handleBatch)
	r.Post("/batch/abort", s.handleBatchAbort)
	r.Get("/batch/state", s.handleBatchState)
	r.Get("/insights", s.handleInsights)
	r.Get("/rules", s.handleGetRules)
	r.Put("/rules", s.handlePutRules)

	return r
}

// setLast records the most recent completed result set for /insights.
func (s *Server) setLast(records []model.AnalyzedOpportunity) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.last = records
}

func (s *Server) lastResults() []model.AnalyzedOpportunity {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.last
}

// loadRules fetches the persisted rule set, degrading to none on error.
func (s *Server) loadRules(ctx context.Context) []model.CustomInstruction {
	instructions, err := s.rules.Load(ctx)
	if err != nil {
		return nil
	}
	return instructions
}
