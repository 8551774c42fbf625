// internal/models/intent.go
package models

import (
	"sort"
	"strings"
)

// IntentTag names what the user wants. The set is closed but may grow.
type IntentTag string

const (
	IntentAccountOwnership     IntentTag = "account_ownership"
	IntentPipelineSummary      IntentTag = "pipeline_summary"
	IntentLateStagePipeline    IntentTag = "late_stage_pipeline"
	IntentAccountOpportunities IntentTag = "account_opportunities"
	IntentMoveToNurture        IntentTag = "move_to_nurture"
	IntentCloseLost            IntentTag = "close_lost"
	IntentFollowUp             IntentTag = "follow_up"
	IntentUnknown              IntentTag = "unknown"
)

var knownIntents = map[IntentTag]bool{
	IntentAccountOwnership:     true,
	IntentPipelineSummary:      true,
	IntentLateStagePipeline:    true,
	IntentAccountOpportunities: true,
	IntentMoveToNurture:        true,
	IntentCloseLost:            true,
	IntentFollowUp:             true,
	IntentUnknown:              true,
}

// IsKnown reports whether the tag belongs to the enumeration.
func (t IntentTag) IsKnown() bool {
	return knownIntents[t]
}

// IsWrite reports whether executing the intent mutates records.
func (t IntentTag) IsWrite() bool {
	return t == IntentMoveToNurture || t == IntentCloseLost
}

// EntityKind identifies a class of extracted values.
type EntityKind string

const (
	EntityAccounts   EntityKind = "accounts"
	EntityStages     EntityKind = "stages"
	EntityDateRange  EntityKind = "date_range"
	EntityLossReason EntityKind = "loss_reason"
	EntityOrdinal    EntityKind = "ordinal"
)

// Entities maps a kind to its ordered values. A kind with no values is
// never stored, so presence is a plain key lookup.
type Entities map[EntityKind][]string

// Get returns the values for kind and whether the kind is present.
func (e Entities) Get(kind EntityKind) ([]string, bool) {
	if e == nil {
		return nil, false
	}
	values, ok := e[kind]
	if !ok || len(values) == 0 {
		return nil, false
	}
	return values, true
}

// Has reports whether kind is present.
func (e Entities) Has(kind EntityKind) bool {
	_, ok := e.Get(kind)
	return ok
}

// First returns the first value of kind, or "" when absent.
func (e Entities) First(kind EntityKind) string {
	if values, ok := e.Get(kind); ok {
		return values[0]
	}
	return ""
}

// Set stores the non-blank values for kind. Setting nothing removes the key.
func (e Entities) Set(kind EntityKind, values ...string) {
	cleaned := make([]string, 0, len(values))
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			cleaned = append(cleaned, v)
		}
	}
	if len(cleaned) == 0 {
		delete(e, kind)
		return
	}
	e[kind] = cleaned
}

// Clone returns a deep copy that is never nil.
func (e Entities) Clone() Entities {
	out := make(Entities, len(e))
	for k, v := range e {
		if len(v) == 0 {
			continue
		}
		out[k] = append([]string(nil), v...)
	}
	return out
}

// Kinds returns the present kinds in sorted order.
func (e Entities) Kinds() []EntityKind {
	kinds := make([]EntityKind, 0, len(e))
	for k, v := range e {
		if len(v) > 0 {
			kinds = append(kinds, k)
		}
	}
	sort.Slice(kinds, func(i, j int) bool { return kinds[i] < kinds[j] })
	return kinds
}

// ParsedIntent is the structured reading of one utterance.
type ParsedIntent struct {
	Intent   IntentTag `json:"intent"`
	Entities Entities  `json:"entities"`
}

// NewParsedIntent builds a ParsedIntent that satisfies the invariants:
// the tag is never empty and the entity map is never nil.
func NewParsedIntent(tag IntentTag, entities Entities) ParsedIntent {
	if tag == "" {
		tag = IntentUnknown
	}
	if entities == nil {
		entities = Entities{}
	}
	return ParsedIntent{Intent: tag, Entities: entities}
}

// UnknownIntent is the parse result for input that matches no rule.
func UnknownIntent() ParsedIntent {
	return NewParsedIntent(IntentUnknown, nil)
}

// Normalized repairs a value decoded from storage or built by hand.
func (p ParsedIntent) Normalized() ParsedIntent {
	return NewParsedIntent(p.Intent, p.Entities.Clone())
}

// IsUnknown reports whether no rule matched.
func (p ParsedIntent) IsUnknown() bool {
	return p.Intent == "" || p.Intent == IntentUnknown
}
