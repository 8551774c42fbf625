// internal/engine/intentparser/parser.go
package intentparser

import (
	"strings"
	"unicode/utf8"

	"crm-assistant/internal/models"
)

// MaxInputLength bounds the text the rules run over.
const MaxInputLength = 2048

// Parser maps one line of free text to a ParsedIntent. It holds no state
// beyond its rule list and is safe for concurrent use.
type Parser struct {
	rules []rule
}

// New returns a Parser with the default rule order.
func New() *Parser {
	return &Parser{rules: defaultRules()}
}

var defaultParser = New()

// Parse runs the default parser.
func Parse(text string) models.ParsedIntent {
	return defaultParser.Parse(text)
}

// ParseValue runs the default parser over an arbitrary decoded value.
func ParseValue(v interface{}) models.ParsedIntent {
	return defaultParser.ParseValue(v)
}

// Parse never fails: empty or unmatched text yields the unknown intent.
func (p *Parser) Parse(text string) models.ParsedIntent {
	u, ok := newUtterance(text)
	if !ok {
		return models.UnknownIntent()
	}
	for _, r := range p.rules {
		if r.match(u) {
			return models.NewParsedIntent(r.intent, r.extract(u))
		}
	}
	return models.UnknownIntent()
}

// ParseValue accepts values decoded from job variables or JSON. Anything
// that is not text parses as unknown.
func (p *Parser) ParseValue(v interface{}) models.ParsedIntent {
	text, ok := Text(v)
	if !ok {
		return models.UnknownIntent()
	}
	return p.Parse(text)
}

// RuleOrder lists the intents in the order their rules are evaluated.
func (p *Parser) RuleOrder() []models.IntentTag {
	order := make([]models.IntentTag, 0, len(p.rules))
	for _, r := range p.rules {
		order = append(order, r.intent)
	}
	return order
}

// Text extracts message text from a loosely typed value.
func Text(v interface{}) (string, bool) {
	switch t := v.(type) {
	case string:
		return t, true
	case []byte:
		if utf8.Valid(t) {
			return string(t), true
		}
	case *string:
		if t != nil {
			return *t, true
		}
	}
	return "", false
}

type utterance struct {
	text string
}

// newUtterance trims, collapses whitespace and drops trailing punctuation.
// Case is kept so captured names retain their spelling.
func newUtterance(raw string) (utterance, bool) {
	if len(raw) > MaxInputLength {
		raw = strings.ToValidUTF8(raw[:MaxInputLength], "")
	}
	text := strings.Join(strings.Fields(raw), " ")
	text = strings.TrimRight(text, "?!. ")
	if text == "" {
		return utterance{}, false
	}
	return utterance{text: text}, true
}
