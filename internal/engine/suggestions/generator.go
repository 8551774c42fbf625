// internal/engine/suggestions/generator.go
package suggestions

import (
	"fmt"
	"strings"

	"crm-assistant/internal/engine/intentparser"
	"crm-assistant/internal/models"
)

const DefaultMaxSuggestions = 5

// Generator proposes follow-up questions for a resolved intent. It is pure
// and safe for concurrent use.
type Generator struct {
	max int
}

func New(max int) *Generator {
	if max <= 0 {
		max = DefaultMaxSuggestions
	}
	return &Generator{max: max}
}

var defaultGenerator = New(DefaultMaxSuggestions)

// Generate runs the default generator.
func Generate(p *models.ParsedIntent) []string {
	return defaultGenerator.Generate(p)
}

// Generate never fails. Unknown or unrecognised intents get no suggestions.
func (g *Generator) Generate(p *models.ParsedIntent) []string {
	out := newList(g.max)
	if p == nil || !p.Intent.IsKnown() {
		return out.items
	}
	accounts, _ := p.Entities.Get(models.EntityAccounts)
	stages, _ := p.Entities.Get(models.EntityStages)
	period := p.Entities.First(models.EntityDateRange)

	switch p.Intent {
	case models.IntentAccountOwnership:
		for _, a := range accounts {
			out.add(fmt.Sprintf("What's the pipeline for %s?", a))
			out.add(fmt.Sprintf("Show me opportunities for %s", a))
			out.add(fmt.Sprintf("Show me late stage deals for %s", a))
		}
		if len(accounts) == 0 {
			out.addAll(genericPipeline(period)...)
		}

	case models.IntentAccountOpportunities:
		for _, a := range accounts {
			out.add(fmt.Sprintf("Show me late stage deals for %s", a))
			out.add(fmt.Sprintf("Who owns %s?", a))
			out.add(fmt.Sprintf("What's the pipeline for %s?", a))
		}
		out.addAll(stageDrillDowns(stages, period)...)

	case models.IntentPipelineSummary, models.IntentLateStagePipeline:
		drill := stages
		if len(drill) == 0 && p.Intent == models.IntentLateStagePipeline {
			drill = intentparser.LateStages
		}
		out.addAll(stageDrillDowns(drill, period)...)
		for _, a := range accounts {
			out.add(fmt.Sprintf("Show me opportunities for %s", a))
			out.add(fmt.Sprintf("Who owns %s?", a))
		}
		if len(drill) == 0 && len(accounts) == 0 {
			out.addAll(genericPipeline(period)...)
		}

	case models.IntentMoveToNurture, models.IntentCloseLost:
		for _, a := range accounts {
			out.add(fmt.Sprintf("Show me opportunities for %s", a))
			out.add(fmt.Sprintf("What's the pipeline for %s?", a))
		}
		out.add("Show me late stage pipeline")
	}

	return out.items
}

func stageDrillDowns(stages []string, period string) []string {
	var out []string
	for _, s := range stages {
		if period != "" {
			out = append(out, fmt.Sprintf("Show me deals in %s for %s", s, period))
			continue
		}
		out = append(out, fmt.Sprintf("Show me deals in %s", s))
	}
	return out
}

func genericPipeline(period string) []string {
	if period == "" {
		period = "this quarter"
	}
	return []string{
		"Show me late stage pipeline",
		fmt.Sprintf("What's the pipeline for %s?", period),
		"Show me deals in " + intentparser.StageNegotiation,
	}
}

// list keeps insertion order, drops case-insensitive duplicates and stops
// at the cap.
type list struct {
	items []string
	seen  map[string]bool
	max   int
}

func newList(max int) *list {
	return &list{items: []string{}, seen: map[string]bool{}, max: max}
}

func (l *list) add(s string) {
	s = strings.TrimSpace(s)
	key := strings.ToLower(s)
	if s == "" || l.seen[key] || len(l.items) >= l.max {
		return
	}
	l.seen[key] = true
	l.items = append(l.items, s)
}

func (l *list) addAll(items ...string) {
	for _, s := range items {
		l.add(s)
	}
}
