package model

import (
	"sort"
	"strings"
	"time"
)

// Tag is one label from the fixed classification taxonomy.
type Tag string

const (
	TagAI        Tag = "AI"
	TagGenAI     Tag = "Gen AI"
	TagAnalytics Tag = "Analytics"
	TagData      Tag = "Data"
)

// AllTags returns the full tag vocabulary in canonical order.
func AllTags() []Tag {
	return []Tag{TagAI, TagGenAI, TagAnalytics, TagData}
}

// ParseTag maps a free-form string onto the vocabulary. Returns ("", false)
// for anything outside it.
func ParseTag(s string) (Tag, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "ai":
		return TagAI, true
	case "gen ai", "genai", "generative ai":
		return TagGenAI, true
	case "analytics":
		return TagAnalytics, true
	case "data":
		return TagData, true
	}
	return "", false
}

// Opportunity is one row of input business-deal data.
type Opportunity struct {
	ID          string   `json:"id"`
	Account     string   `json:"account"`
	Name        string   `json:"name"`
	Description string   `json:"description,omitempty"`
	Industry    string   `json:"industry,omitempty"`
	DealSize    string   `json:"deal_size,omitempty"`
	Total       float64  `json:"total"`
	Source      []string `json:"source,omitempty"` // original row cells, for round-tripping
}

// Classification is the outcome of one classifier call. Rationale and
// Confidence are always populated, even for failures. OK is false when the
// record is a fallback substituted for a failed remote call, which otherwise
// looks identical to "classified as irrelevant".
type Classification struct {
	Tags       []Tag  `json:"tags"`
	Rationale  string `json:"rationale"`
	Confidence int    `json:"confidence"`
	OK         bool   `json:"ok"`
}

// AnalyzedOpportunity is an Opportunity plus its classification.
type AnalyzedOpportunity struct {
	Opportunity
	Classification
}

// HasTag reports whether the record carries the given tag.
func (a AnalyzedOpportunity) HasTag(t Tag) bool {
	for _, tag := range a.Tags {
		if tag == t {
			return true
		}
	}
	return false
}

// TagKey returns the record's sorted, deduplicated tag set joined with " + ",
// or "None" for untagged records. Used to group co-occurring tag sets.
func (a AnalyzedOpportunity) TagKey() string {
	if len(a.Tags) == 0 {
		return "None"
	}
	seen := make(map[Tag]bool, len(a.Tags))
	var uniq []string
	for _, t := range a.Tags {
		if !seen[t] {
			seen[t] = true
			uniq = append(uniq, string(t))
		}
	}
	sort.Strings(uniq)
	return strings.Join(uniq, " + ")
}

// JoinedTags returns the comma-joined tag string used in spreadsheet output.
func (a AnalyzedOpportunity) JoinedTags() string {
	parts := make([]string, len(a.Tags))
	for i, t := range a.Tags {
		parts[i] = string(t)
	}
	return strings.Join(parts, ", ")
}

// AnalysisState is the resumable progress record for a batch run. Completed
// and Pending together always cover the original input set with no
// duplicates or loss until the run finishes or is abandoned.
type AnalysisState struct {
	Completed  []AnalyzedOpportunity `json:"completed"`
	Pending    []Opportunity         `json:"pending"`
	InProgress int                   `json:"in_progress"`
	Timestamp  time.Time             `json:"timestamp"`
}
