// Package classify implements the opportunity classification client.
//
// The client's contract is deliberately one-sided: Classify never returns an
// error. A failed remote call or an unparsable response degrades to a
// fallback record (no tags, confidence 0, explanatory rationale, OK=false)
// so that one bad row can never abort a run of hundreds. Callers that care
// about the difference between "irrelevant" and "failed" inspect OK.
package classify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/sells-group/oppscan/internal/config"
	"github.com/sells-group/oppscan/internal/model"
	"github.com/sells-group/oppscan/internal/resilience"
	"github.com/sells-group/oppscan/pkg/anthropic"
)

// Classifier assigns tags to a single opportunity.
type Classifier interface {
	Classify(ctx context.Context, opp model.Opportunity, instructions []model.CustomInstruction) model.Classification
}

// Client is the Anthropic-backed Classifier.
type Client struct {
	ai      anthropic.Client
	cfg     config.AnthropicConfig
	limiter *rate.Limiter
}

// New creates a classification client. When cfg.RequestsPerMin is set, all
// outbound calls share a token bucket, so concurrent batch workers stay
// inside the account's rate limit.
func New(ai anthropic.Client, cfg config.AnthropicConfig) *Client {
	c := &Client{ai: ai, cfg: cfg}
	if cfg.RequestsPerMin > 0 {
		c.limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerMin)/60, cfg.RequestsPerMin)
	}
	return c
}

// pace blocks until the shared limiter allows another outbound call.
func (c *Client) pace(ctx context.Context) error {
	if c.limiter == nil {
		return nil
	}
	return c.limiter.Wait(ctx)
}

// Classify sends one opportunity to the model and parses the structured
// response. Retries and the per-call timeout are internal; callers always
// get a fully populated Classification.
func (c *Client) Classify(ctx context.Context, opp model.Opportunity, instructions []model.CustomInstruction) model.Classification {
	req := anthropic.MessageRequest{
		Model:     c.cfg.Model,
		MaxTokens: c.cfg.MaxTokens,
		System:    anthropic.BuildCachedSystemBlocks(systemPrompt),
		Messages: []anthropic.Message{
			{Role: "user", Content: BuildUserPrompt(opp, instructions)},
		},
	}

	retryCfg := resilience.RetryConfig{
		MaxAttempts: c.cfg.MaxRetries + 1,
		OnRetry:     resilience.RetryLogger("anthropic", "classify"),
	}

	resp, err := resilience.DoVal(ctx, retryCfg, func(ctx context.Context) (*anthropic.MessageResponse, error) {
		if err := c.pace(ctx); err != nil {
			return nil, err
		}
		callCtx := ctx
		if c.cfg.CallTimeoutSec > 0 {
			var cancel context.CancelFunc
			callCtx, cancel = context.WithTimeout(ctx, time.Duration(c.cfg.CallTimeoutSec)*time.Second)
			defer cancel()
		}
		return c.ai.CreateMessage(callCtx, req)
	})
	if err != nil {
		zap.L().Warn("classify: remote call failed",
			zap.String("opportunity_id", opp.ID),
			zap.String("opportunity", opp.Name),
			zap.Error(err),
		)
		return Fallback(fmt.Sprintf("Classification failed: %v", err))
	}

	resp.Usage.LogCost(c.cfg.Model, "classify")

	cls, ok := parseClassification(anthropic.ExtractText(resp))
	if !ok {
		zap.L().Warn("classify: unparsable response",
			zap.String("opportunity_id", opp.ID),
			zap.String("opportunity", opp.Name),
		)
		return Fallback("Classification failed: model returned an unparsable response")
	}
	return cls
}

// Fallback builds the degraded record substituted for a failed call.
func Fallback(rationale string) model.Classification {
	return model.Classification{
		Tags:       nil,
		Rationale:  rationale,
		Confidence: 0,
		OK:         false,
	}
}

// parseClassification decodes the model's JSON reply. Unknown tags are
// dropped and confidence is clamped to [0,100].
func parseClassification(text string) (model.Classification, bool) {
	text = anthropic.CleanJSON(text)

	var result struct {
		Tags       []string `json:"tags"`
		Rationale  string   `json:"rationale"`
		Confidence int      `json:"confidence"`
	}
	if err := json.Unmarshal([]byte(text), &result); err != nil {
		return model.Classification{}, false
	}

	var tags []model.Tag
	for _, raw := range result.Tags {
		if tag, ok := model.ParseTag(raw); ok {
			tags = append(tags, tag)
		}
	}

	confidence := result.Confidence
	if confidence < 0 {
		confidence = 0
	}
	if confidence > 100 {
		confidence = 100
	}

	rationale := result.Rationale
	if rationale == "" {
		rationale = "No rationale provided"
	}

	return model.Classification{
		Tags:       tags,
		Rationale:  rationale,
		Confidence: confidence,
		OK:         true,
	}, true
}
