package pipeline

import (
	"strings"

	"github.com/sells-group/oppscan/internal/model"
)

// defaultKeywords is the industry filter used when config supplies none.
var defaultKeywords = []string{"comms", "media"}

// FilterByIndustry retains opportunities whose industry field contains any
// of the keywords, case-insensitively.
func FilterByIndustry(opps []model.Opportunity, keywords []string) []model.Opportunity {
	if len(keywords) == 0 {
		keywords = defaultKeywords
	}

	var kept []model.Opportunity
	for _, opp := range opps {
		industry := strings.ToLower(opp.Industry)
		for _, kw := range keywords {
			if strings.Contains(industry, strings.ToLower(kw)) {
				kept = append(kept, opp)
				break
			}
		}
	}
	return kept
}
