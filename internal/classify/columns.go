package classify

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/sells-group/oppscan/pkg/anthropic"
)

// ColumnMap holds the index of each recognized input column within a header
// row. -1 means the column is absent.
type ColumnMap struct {
	ID          int `json:"id"`
	Account     int `json:"account"`
	Name        int `json:"name"`
	Description int `json:"description"`
	Industry    int `json:"industry"`
	DealSize    int `json:"deal_size"`
	Total       int `json:"total"`
}

const columnSystemPrompt = `You map spreadsheet column headers onto a fixed
set of fields for business opportunity data. Given a numbered list of
headers, respond with a single valid JSON object and nothing else:
{"id": <index>, "account": <index>, "name": <index>, "description": <index>, "industry": <index>, "deal_size": <index>, "total": <index>}
Indexes are zero-based positions in the list. Use -1 for any field with no
matching header. "name" is the opportunity name, "account" the customer or
account name, "industry" the industry/group/vertical column, "total" a
numeric amount column.`

// IdentifyColumns maps header cells to opportunity fields with a single
// model call, the same best-effort contract as per-row classification. A
// failed or unparsable call falls back to name-based heuristics.
func (c *Client) IdentifyColumns(ctx context.Context, headers []string) ColumnMap {
	var list strings.Builder
	for i, h := range headers {
		fmt.Fprintf(&list, "%d: %s\n", i, h)
	}

	if err := c.pace(ctx); err != nil {
		zap.L().Warn("classify: column identification canceled, using heuristics", zap.Error(err))
		return HeuristicColumns(headers)
	}

	resp, err := c.ai.CreateMessage(ctx, anthropic.MessageRequest{
		Model:     c.cfg.Model,
		MaxTokens: 256,
		System:    []anthropic.SystemBlock{{Text: columnSystemPrompt}},
		Messages: []anthropic.Message{
			{Role: "user", Content: "Column headers:\n" + list.String()},
		},
	})
	if err != nil {
		zap.L().Warn("classify: column identification call failed, using heuristics", zap.Error(err))
		return HeuristicColumns(headers)
	}

	var cm ColumnMap
	text := anthropic.CleanJSON(anthropic.ExtractText(resp))
	if err := json.Unmarshal([]byte(text), &cm); err != nil {
		zap.L().Warn("classify: unparsable column mapping, using heuristics", zap.Error(err))
		return HeuristicColumns(headers)
	}

	// Reject out-of-range indexes rather than trusting the model blindly.
	n := len(headers)
	for _, idx := range []*int{&cm.ID, &cm.Account, &cm.Name, &cm.Description, &cm.Industry, &cm.DealSize, &cm.Total} {
		if *idx < -1 || *idx >= n {
			*idx = -1
		}
	}

	// A mapping without an opportunity name column is useless.
	if cm.Name < 0 {
		return HeuristicColumns(headers)
	}
	return cm
}

// isIDHeader matches id columns on word boundaries. A bare substring test
// would claim headers like "Paid" or "Provider".
func isIDHeader(h string) bool {
	return h == "id" ||
		strings.Contains(h, "opportunity id") ||
		strings.Contains(h, "opp id") ||
		strings.HasSuffix(h, " id") ||
		strings.HasSuffix(h, "_id")
}

// HeuristicColumns maps headers by substring matching on common names.
func HeuristicColumns(headers []string) ColumnMap {
	cm := ColumnMap{ID: -1, Account: -1, Name: -1, Description: -1, Industry: -1, DealSize: -1, Total: -1}

	match := func(h string, keys ...string) bool {
		for _, k := range keys {
			if strings.Contains(h, k) {
				return true
			}
		}
		return false
	}

	for i, raw := range headers {
		h := strings.ToLower(strings.TrimSpace(raw))
		switch {
		case cm.ID < 0 && isIDHeader(h):
			cm.ID = i
		case cm.Account < 0 && match(h, "account", "customer", "client"):
			cm.Account = i
		case cm.Name < 0 && match(h, "opportunity name", "opportunity", "name", "title"):
			cm.Name = i
		case cm.Description < 0 && match(h, "description", "summary", "details", "scope"):
			cm.Description = i
		case cm.Industry < 0 && match(h, "industry", "group", "vertical", "sector"):
			cm.Industry = i
		case cm.DealSize < 0 && match(h, "deal size", "size", "tier"):
			cm.DealSize = i
		case cm.Total < 0 && match(h, "total", "amount", "value", "revenue"):
			cm.Total = i
		}
	}
	return cm
}
