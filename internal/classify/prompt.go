package classify

import (
	"fmt"
	"strings"

	"github.com/sells-group/oppscan/internal/model"
)

const systemPrompt = `You classify business sales opportunities into zero or more of exactly four categories:

- "AI": traditional artificial intelligence and machine learning — predictive models, computer vision, NLP, recommendation systems, ML platforms and MLOps. Does NOT include generative AI.
- "Gen AI": generative AI — large language models, chatbots and copilots, content/code/image generation, RAG, prompt engineering, foundation-model work.
- "Analytics": business intelligence, reporting, dashboards, forecasting, statistical analysis, data visualization.
- "Data": data engineering and infrastructure — data platforms, warehouses, lakes, pipelines, ETL/ELT, data migration, data governance, master data management.

An opportunity may match several categories, one, or none. Tag only on concrete evidence in the opportunity's name or description, never on the account name alone.

Confidence calibration (integer 0-100):
- 90-100: the opportunity explicitly and clearly states the work
- 70-89: strong indicators, minor ambiguity
- 50-69: ambiguous, plausible interpretation
- 30-49: weak signal, mostly a guess
- 0-29: highly uncertain

Respond with a single valid JSON object and nothing else:
{"tags": ["<category>", ...], "rationale": "<one or two sentences>", "confidence": <0-100>}`

// noDescriptionMarker is embedded in the user prompt when the opportunity
// carries no description, together with guidance to hold confidence down.
const noDescriptionMarker = "no description available"

// BuildUserPrompt renders the per-opportunity prompt, folding in any custom
// instructions grouped by their tag category. Instructions only influence
// the prompt text, never control flow.
func BuildUserPrompt(opp model.Opportunity, instructions []model.CustomInstruction) string {
	var b strings.Builder

	b.WriteString("Opportunity to classify:\n")
	fmt.Fprintf(&b, "Name: %s\n", opp.Name)
	if opp.Account != "" {
		fmt.Fprintf(&b, "Account: %s\n", opp.Account)
	}
	if opp.Industry != "" {
		fmt.Fprintf(&b, "Industry: %s\n", opp.Industry)
	}
	if opp.DealSize != "" {
		fmt.Fprintf(&b, "Deal size: %s\n", opp.DealSize)
	}
	if strings.TrimSpace(opp.Description) != "" {
		fmt.Fprintf(&b, "Description: %s\n", opp.Description)
	} else {
		fmt.Fprintf(&b, "Description: (%s)\n", noDescriptionMarker)
		b.WriteString("Because there is no description, keep confidence below 70 unless the name alone is unambiguous.\n")
	}

	if grouped := groupInstructions(instructions); grouped != "" {
		b.WriteString("\nAdditional classification rules from the user:\n")
		b.WriteString(grouped)
	}

	return b.String()
}

// groupInstructions renders custom instructions grouped by tag, preserving
// the user's ordering within each group.
func groupInstructions(instructions []model.CustomInstruction) string {
	if len(instructions) == 0 {
		return ""
	}

	byTag := make(map[model.Tag][]string)
	for _, ins := range instructions {
		text := strings.TrimSpace(ins.Text)
		if text == "" {
			continue
		}
		byTag[ins.Tag] = append(byTag[ins.Tag], text)
	}

	var b strings.Builder
	for _, tag := range model.AllTags() {
		rules, ok := byTag[tag]
		if !ok {
			continue
		}
		fmt.Fprintf(&b, "For %q:\n", string(tag))
		for _, r := range rules {
			fmt.Fprintf(&b, "- %s\n", r)
		}
	}
	return b.String()
}
