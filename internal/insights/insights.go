// Package insights computes descriptive statistics over a completed set
// of analyzed opportunities. Everything here is a pure function over its
// input: no I/O, no clock, no randomness.
package insights

import (
	"sort"
	"strings"

	"github.com/sells-group/oppscan/internal/model"
)

// AccountRollup summarizes the records belonging to one account.
type AccountRollup struct {
	Account        string            `json:"account"`
	Count          int               `json:"count"`
	TagCounts      map[model.Tag]int `json:"tag_counts"`
	MeanConfidence float64           `json:"mean_confidence"`
}

// ConfidenceHistogram buckets records into three fixed confidence bands.
type ConfidenceHistogram struct {
	High   int `json:"high"`   // >= 80
	Medium int `json:"medium"` // 50..79
	Low    int `json:"low"`    // < 50
}

// TagGroup is one co-occurring tag set with its share of the collection.
type TagGroup struct {
	Key     string  `json:"key"` // sorted dedup tags joined " + ", or "None"
	Count   int     `json:"count"`
	Percent float64 `json:"percent"` // rounded to one decimal
}

// KeywordCount is one token from opportunity names with its frequency.
type KeywordCount struct {
	Keyword string `json:"keyword"`
	Count   int    `json:"count"`
}

// TagConfidence is a tag's mean confidence across all records carrying it.
type TagConfidence struct {
	Tag            model.Tag `json:"tag"`
	MeanConfidence float64   `json:"mean_confidence"`
}

// Report is the full aggregate view of an analyzed collection.
type Report struct {
	Total      int                 `json:"total"`
	Accounts   []AccountRollup     `json:"accounts"`
	Confidence ConfidenceHistogram `json:"confidence"`
	TagGroups  []TagGroup          `json:"tag_groups"`
	Keywords   []KeywordCount      `json:"keywords"`
	TagMeans   []TagConfidence     `json:"tag_means"`
}

var stopWords = map[string]bool{
	"with": true, "from": true, "this": true, "that": true,
	"into": true, "over": true, "your": true, "their": true,
	"2024": true, "2025": true, "2026": true,
}

// Aggregate computes a Report over the given records. An empty input
// yields a zero-valued Report.
func Aggregate(records []model.AnalyzedOpportunity) Report {
	report := Report{Total: len(records)}
	if len(records) == 0 {
		return report
	}

	report.Accounts = accountRollups(records)
	report.Confidence = confidenceHistogram(records)
	report.TagGroups = tagGroups(records)
	report.Keywords = topKeywords(records, 10)
	report.TagMeans = tagMeans(records)
	return report
}

func accountRollups(records []model.AnalyzedOpportunity) []AccountRollup {
	byAccount := make(map[string]*AccountRollup)
	sums := make(map[string]int)
	for _, rec := range records {
		r, ok := byAccount[rec.Account]
		if !ok {
			r = &AccountRollup{Account: rec.Account, TagCounts: make(map[model.Tag]int)}
			byAccount[rec.Account] = r
		}
		r.Count++
		sums[rec.Account] += rec.Confidence
		for _, t := range rec.Tags {
			r.TagCounts[t]++
		}
	}

	out := make([]AccountRollup, 0, len(byAccount))
	for account, r := range byAccount {
		r.MeanConfidence = round1(float64(sums[account]) / float64(r.Count))
		out = append(out, *r)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Account < out[j].Account
	})
	return out
}

func confidenceHistogram(records []model.AnalyzedOpportunity) ConfidenceHistogram {
	var h ConfidenceHistogram
	for _, rec := range records {
		switch {
		case rec.Confidence >= 80:
			h.High++
		case rec.Confidence >= 50:
			h.Medium++
		default:
			h.Low++
		}
	}
	return h
}

func tagGroups(records []model.AnalyzedOpportunity) []TagGroup {
	counts := make(map[string]int)
	for _, rec := range records {
		counts[rec.TagKey()]++
	}

	out := make([]TagGroup, 0, len(counts))
	for key, count := range counts {
		out = append(out, TagGroup{
			Key:     key,
			Count:   count,
			Percent: round1(float64(count) / float64(len(records)) * 100),
		})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Key < out[j].Key
	})
	return out
}

func topKeywords(records []model.AnalyzedOpportunity, limit int) []KeywordCount {
	counts := make(map[string]int)
	for _, rec := range records {
		for _, token := range tokenize(rec.Name) {
			counts[token]++
		}
	}

	out := make([]KeywordCount, 0, len(counts))
	for word, count := range counts {
		out = append(out, KeywordCount{Keyword: word, Count: count})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Keyword < out[j].Keyword
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out
}

// tokenize lower-cases a name, strips non-alphanumerics, splits on
// whitespace, and drops stop words and short tokens.
func tokenize(name string) []string {
	cleaned := strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == ' ':
			return r
		case r >= 'A' && r <= 'Z':
			return r + ('a' - 'A')
		default:
			return ' '
		}
	}, name)

	var tokens []string
	for _, token := range strings.Fields(cleaned) {
		if len(token) <= 3 || stopWords[token] {
			continue
		}
		tokens = append(tokens, token)
	}
	return tokens
}

func tagMeans(records []model.AnalyzedOpportunity) []TagConfidence {
	sums := make(map[model.Tag]int)
	counts := make(map[model.Tag]int)
	for _, rec := range records {
		for _, t := range rec.Tags {
			sums[t] += rec.Confidence
			counts[t]++
		}
	}

	out := make([]TagConfidence, 0, len(sums))
	for _, t := range model.AllTags() {
		if counts[t] == 0 {
			continue
		}
		out = append(out, TagConfidence{
			Tag:            t,
			MeanConfidence: round1(float64(sums[t]) / float64(counts[t])),
		})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].MeanConfidence != out[j].MeanConfidence {
			return out[i].MeanConfidence > out[j].MeanConfidence
		}
		return out[i].Tag < out[j].Tag
	})
	return out
}

func round1(v float64) float64 {
	return float64(int(v*10+0.5)) / 10
}
