// internal/engine/executor/summary.go
package executor

import (
	"fmt"
	"sort"
	"strings"

	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"crm-assistant/internal/models"
)

var printer = message.NewPrinter(language.English)

func formatAmount(v float64) string {
	return printer.Sprintf("$%.0f", v)
}

func joinNames(names []string) string {
	switch len(names) {
	case 0:
		return ""
	case 1:
		return names[0]
	case 2:
		return names[0] + " and " + names[1]
	}
	return strings.Join(names[:len(names)-1], ", ") + " and " + names[len(names)-1]
}

func plural(n int, one, many string) string {
	if n == 1 {
		return fmt.Sprintf("%d %s", n, one)
	}
	return printer.Sprintf("%d %s", n, many)
}

func summarizeOwnership(records []models.Record, asked []string) string {
	if len(records) == 0 {
		return fmt.Sprintf("I couldn't find an account named %s.", joinNames(asked))
	}
	parts := make([]string, 0, len(records))
	for _, r := range records {
		owner := r.Owner
		if owner == "" {
			owner = "nobody"
		}
		parts = append(parts, fmt.Sprintf("%s is owned by %s", r.Name, owner))
	}
	return strings.Join(parts, "; ") + "."
}

func summarizeDeals(records []models.Record, scope string) string {
	if len(records) == 0 {
		return fmt.Sprintf("No deals found%s.", scope)
	}
	var total float64
	byStage := map[string]int{}
	for _, r := range records {
		total += r.Amount
		if r.Stage != "" {
			byStage[r.Stage]++
		}
	}
	stages := make([]string, 0, len(byStage))
	for s := range byStage {
		stages = append(stages, s)
	}
	sort.Strings(stages)
	breakdown := make([]string, 0, len(stages))
	for _, s := range stages {
		breakdown = append(breakdown, fmt.Sprintf("%d in %s", byStage[s], s))
	}

	out := fmt.Sprintf("%s worth %s%s", plural(len(records), "deal", "deals"), formatAmount(total), scope)
	if len(breakdown) > 0 {
		out += " (" + strings.Join(breakdown, ", ") + ")"
	}
	return out + "."
}

// describeScope renders the filters of an intent as a trailing phrase.
func describeScope(e models.Entities) string {
	var b strings.Builder
	if stages, ok := e.Get(models.EntityStages); ok {
		b.WriteString(" in " + joinNames(stages))
	}
	if accounts, ok := e.Get(models.EntityAccounts); ok {
		b.WriteString(" for " + joinNames(accounts))
	}
	if period := e.First(models.EntityDateRange); period != "" {
		b.WriteString(" closing " + period)
	}
	return b.String()
}
