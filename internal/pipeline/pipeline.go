// Package pipeline drives the strictly sequential analysis flow:
// read → filter → analyze → complete, with a terminal error state reachable
// from any stage. One classifier call fully resolves before the next begins,
// so consumers see a deterministic, monotonic progress stream.
package pipeline

import (
	"context"
	"fmt"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/oppscan/internal/classify"
	"github.com/sells-group/oppscan/internal/codec"
	"github.com/sells-group/oppscan/internal/model"
)

// ErrNoData is the terminal error for an input with zero usable rows.
var ErrNoData = eris.New("pipeline: no data rows in input")

// ErrNoMatches is the terminal error for a filter that removed every row.
var ErrNoMatches = eris.New("pipeline: no opportunities matched the industry filter")

// Result is the outcome of a sequential run. Errors holds the accumulated
// error descriptions when the run ended in the terminal error state.
type Result struct {
	Analyzed []model.AnalyzedOpportunity
	Filtered int // rows dropped by the industry filter
	Errors   []string
}

// Pipeline is the sequential driver.
type Pipeline struct {
	classifier classify.Classifier
	keywords   []string
}

// New creates a sequential pipeline.
func New(classifier classify.Classifier, keywords []string) *Pipeline {
	return &Pipeline{classifier: classifier, keywords: keywords}
}

// Run analyzes a raw spreadsheet. Events are emitted to sink throughout;
// sink must be non-nil (use model.NopSink to discard).
func (p *Pipeline) Run(ctx context.Context, data []byte, instructions []model.CustomInstruction, sink model.EventSink) (*Result, error) {
	result := &Result{}

	fail := func(stage string, err error) (*Result, error) {
		result.Errors = append(result.Errors, err.Error())
		sink(model.Event{Type: model.EventError, Message: err.Error()})
		zap.L().Error("pipeline: stage failed", zap.String("stage", stage), zap.Error(err))
		return result, err
	}

	// --- read ---
	sink(model.Event{Type: model.EventAgentStatus, Agent: "reader", Action: "Reading spreadsheet", State: model.AgentActive})
	header, rows, err := codec.ReadRowsBytes(data)
	if err != nil {
		return fail("read", err)
	}
	if len(rows) == 0 {
		return fail("read", ErrNoData)
	}

	columns := p.identifyColumns(ctx, header)
	opps := codec.DecodeOpportunities(rows, columns)
	if len(opps) == 0 {
		return fail("read", ErrNoData)
	}
	sink(model.Event{Type: model.EventAgentStatus, Agent: "reader", Action: fmt.Sprintf("Read %d opportunities", len(opps)), State: model.AgentComplete})

	// --- filter ---
	sink(model.Event{Type: model.EventAgentStatus, Agent: "filter", Action: "Filtering by industry", State: model.AgentActive})
	filtered := FilterByIndustry(opps, p.keywords)
	result.Filtered = len(opps) - len(filtered)
	if len(filtered) == 0 {
		return fail("filter", ErrNoMatches)
	}
	sink(model.Event{Type: model.EventAgentStatus, Agent: "filter", Action: fmt.Sprintf("%d opportunities matched", len(filtered)), State: model.AgentComplete})

	// --- analyze ---
	sink(model.Event{Type: model.EventAgentStatus, Agent: "analyzer", Action: "Classifying opportunities", State: model.AgentActive})
	analyzed, err := p.Analyze(ctx, filtered, instructions, sink)
	if err != nil {
		return fail("analyze", err)
	}
	result.Analyzed = analyzed
	sink(model.Event{Type: model.EventAgentStatus, Agent: "analyzer", Action: "Classification complete", State: model.AgentComplete})

	sink(model.Event{Type: model.EventComplete, Count: len(analyzed)})
	zap.L().Info("pipeline: complete",
		zap.Int("analyzed", len(analyzed)),
		zap.Int("filtered_out", result.Filtered),
	)
	return result, nil
}

// Decode reads a raw spreadsheet and returns the filtered opportunity set
// plus the number of rows the industry filter dropped. Used by callers that
// feed the batch engine instead of the sequential driver.
func (p *Pipeline) Decode(ctx context.Context, data []byte) ([]model.Opportunity, int, error) {
	header, rows, err := codec.ReadRowsBytes(data)
	if err != nil {
		return nil, 0, err
	}
	if len(rows) == 0 {
		return nil, 0, ErrNoData
	}

	opps := codec.DecodeOpportunities(rows, p.identifyColumns(ctx, header))
	if len(opps) == 0 {
		return nil, 0, ErrNoData
	}

	filtered := FilterByIndustry(opps, p.keywords)
	if len(filtered) == 0 {
		return nil, len(opps), ErrNoMatches
	}
	return filtered, len(opps) - len(filtered), nil
}

// Analyze classifies opportunities one at a time, in order. A Progress then
// a Result event follow each call; call i+1 never starts before both are
// emitted for call i. Errors can only come from context cancellation; the
// classifier itself never fails.
func (p *Pipeline) Analyze(ctx context.Context, opps []model.Opportunity, instructions []model.CustomInstruction, sink model.EventSink) ([]model.AnalyzedOpportunity, error) {
	analyzed := make([]model.AnalyzedOpportunity, 0, len(opps))
	for i, opp := range opps {
		if err := ctx.Err(); err != nil {
			return nil, eris.Wrap(err, "pipeline: analyze cancelled")
		}

		cls := p.classifier.Classify(ctx, opp, instructions)
		record := model.AnalyzedOpportunity{Opportunity: opp, Classification: cls}
		analyzed = append(analyzed, record)

		sink(model.Event{
			Type:        model.EventProgress,
			Current:     i + 1,
			Total:       len(opps),
			CurrentName: opp.Name,
		})
		sink(model.Event{Type: model.EventResult, Record: &record})
	}
	return analyzed, nil
}

// identifyColumns uses the classifier's column mapping when available,
// falling back to name heuristics otherwise.
func (p *Pipeline) identifyColumns(ctx context.Context, header []string) classify.ColumnMap {
	if ic, ok := p.classifier.(interface {
		IdentifyColumns(context.Context, []string) classify.ColumnMap
	}); ok {
		return ic.IdentifyColumns(ctx, header)
	}
	return classify.HeuristicColumns(header)
}

// Describe renders the accumulated error list as a single message.
func (r *Result) Describe() string {
	return strings.Join(r.Errors, "; ")
}
