// internal/engine/contextmanager/resolve.go
package contextmanager

import (
	"strconv"

	"crm-assistant/internal/models"
)

// turnScoped kinds describe a single request and never carry into later turns.
var turnScoped = map[models.EntityKind]bool{
	models.EntityLossReason: true,
	models.EntityOrdinal:    true,
}

// Resolve fills the gaps in a fresh parse from the stored conversation.
// Kinds present in the parse win; kinds it lacks carry forward from
// lastEntities. A follow-up takes the previous intent, and an ordinal
// ("the second one") picks from the previous result's records.
// Resolve is pure; stored may be nil.
func Resolve(parsed models.ParsedIntent, stored *models.ConversationContext) models.ParsedIntent {
	p := parsed.Normalized()
	entities := p.Entities

	if stored == nil {
		delete(entities, models.EntityOrdinal)
		if p.Intent == models.IntentFollowUp {
			return models.UnknownIntent()
		}
		return models.NewParsedIntent(p.Intent, entities)
	}

	if ordinal := entities.First(models.EntityOrdinal); ordinal != "" {
		if !entities.Has(models.EntityAccounts) {
			if ref := pickRef(stored.LastResultRefs, ordinal); ref != "" {
				entities.Set(models.EntityAccounts, ref)
			}
		}
		delete(entities, models.EntityOrdinal)
	}

	for _, kind := range stored.LastEntities.Kinds() {
		if entities.Has(kind) || turnScoped[kind] {
			continue
		}
		values, _ := stored.LastEntities.Get(kind)
		entities.Set(kind, values...)
	}

	intent := p.Intent
	if intent == models.IntentFollowUp {
		intent = models.IntentUnknown
		if stored.LastIntent != nil && stored.LastIntent.Intent != models.IntentFollowUp {
			intent = stored.LastIntent.Intent
		}
	}
	if intent == models.IntentUnknown {
		return models.UnknownIntent()
	}
	return models.NewParsedIntent(intent, entities)
}

func pickRef(refs []string, ordinal string) string {
	if len(refs) == 0 {
		return ""
	}
	if ordinal == "last" {
		return refs[len(refs)-1]
	}
	n, err := strconv.Atoi(ordinal)
	if err != nil || n < 1 || n > len(refs) {
		return ""
	}
	return refs[n-1]
}
