// internal/engine/feedback/classifier.go
package feedback

import (
	"regexp"
	"strings"

	"crm-assistant/internal/engine/intentparser"
	"crm-assistant/internal/models"
)

// maxSentimentWords bounds how long a message can be and still count as a
// sentiment reaction rather than a new question.
const maxSentimentWords = 6

// maxCorrectionWords bounds the replacement value in a correction.
const maxCorrectionWords = 6

// Result is the outcome of classifying one message as feedback.
type Result struct {
	Classification models.Classification
	// Corrected holds the replacement entities, for corrections only.
	Corrected models.Entities
}

const kindWords = `account|accounts|company|customer|client|stage|stages|period|quarter|timeframe|date\s+range|reason`

var correctionPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)^(?:no[,.!]?\s+)?actually[,]?\s+(?:it(?:'s|’s|\s+is|\s+was)|that(?:'s|’s|\s+is)|the\s+(?P<kind>` + kindWords + `)\s+is)\s+(?P<value>.+)$`),
	regexp.MustCompile(`(?i)^(?:no[,.!]?\s+)?(?:it|that|this|the\s+(?P<kind>` + kindWords + `))\s+should\s+(?:be|have\s+been)\s+(?P<value>.+)$`),
	regexp.MustCompile(`(?i)^(?:no[,.!]?\s+)?should\s+(?:be|have\s+been)\s+(?P<value>.+)$`),
	regexp.MustCompile(`(?i)^(?:no[,.!]?\s+)?the\s+(?:correct|right)\s+(?:answer|one|(?P<kind>` + kindWords + `))\s+is\s+(?P<value>.+)$`),
	regexp.MustCompile(`(?i)^not\s+that[,]?\s+but\s+(?P<value>.+)$`),
	regexp.MustCompile(`(?i)^not\s+.+?[,]?\s+but\s+(?P<value>.+)$`),
	regexp.MustCompile(`(?i)^(?:please\s+)?(?:fix|change|correct|update)\s+(?:it|that|this)\s+to\s+(?P<value>.+)$`),
	regexp.MustCompile(`(?i)^(?:no[,.!]?\s+)?i\s+meant\s+(?P<value>.+)$`),
	regexp.MustCompile(`(?i)^wrong\s+(?P<kind>` + kindWords + `)[,.;!]?\s+(?:it(?:'s|’s|\s+is|\s+should\s+be)\s+)?(?P<value>.+)$`),
}

var (
	negativePhrases = map[string]bool{
		"no": true, "nope": true, "nah": true, "wrong": true, "incorrect": true,
		"not right": true, "not correct": true, "that's not it": true,
		"that is not it": true, "bad answer": true, "useless": true,
	}
	negativeKeywords = regexp.MustCompile(`(?i)\b(?:wrong|incorrect|mistaken|mistake|broken|useless|unhelpful|not\s+helpful|not\s+right|not\s+correct|not\s+what\s+i\s+(?:asked|wanted|meant)|doesn'?t\s+work|does\s+not\s+work|didn'?t\s+work|did\s+not\s+work)\b`)

	positivePhrases = map[string]bool{
		"thanks": true, "thank you": true, "thx": true, "ty": true, "cheers": true,
		"correct": true, "perfect": true, "helpful": true, "great": true,
		"awesome": true, "exactly": true, "that's right": true, "that is right": true,
		"yes": true, "yep": true, "right": true, "got it": true, "nice": true,
		"cool": true, "spot on": true, "that helps": true, "👍": true,
	}
	positiveKeywords = regexp.MustCompile(`(?i)\b(?:thanks|thank\s+you|thx|perfect|helpful|great|awesome|exactly|correct|spot\s+on|appreciate\s+it|nice|brilliant|excellent)\b`)

	// Openings that make a message a question or command, never a reaction.
	queryOpening = regexp.MustCompile(`(?i)^(?:who|whom|whose|what|which|where|when|why|how|show|list|give|get|find|tell|move|close|mark|put|set|can|could|would|will|does|do|did|is|are|was|were|pipeline|deals|opportunities)\b`)
)

// IsFeedbackMessage reports whether msg reads as feedback on the previous
// answer. Non-text and empty input is never feedback.
func IsFeedbackMessage(msg interface{}) bool {
	_, ok := Classify(msg)
	return ok
}

// Classify checks correction templates first, then negative and positive
// vocabulary.
func Classify(msg interface{}) (Result, bool) {
	raw, ok := intentparser.Text(msg)
	if !ok {
		return Result{}, false
	}
	text := normalize(raw)
	if text == "" {
		return Result{}, false
	}

	if corrected, ok := matchCorrection(text); ok {
		return Result{Classification: models.FeedbackCorrection, Corrected: corrected}, true
	}

	lower := strings.ToLower(text)
	exact := negativePhrases[lower] || positivePhrases[lower]
	if !exact && (queryOpening.MatchString(lower) || asksQuestion(text)) {
		return Result{}, false
	}
	short := len(strings.Fields(lower)) <= maxSentimentWords

	if negativePhrases[lower] || (short && negativeKeywords.MatchString(lower)) {
		return Result{Classification: models.FeedbackNegative}, true
	}
	if positivePhrases[lower] || (short && positiveKeywords.MatchString(lower)) {
		return Result{Classification: models.FeedbackPositive}, true
	}
	return Result{}, false
}

// asksQuestion reports whether text carries a query of its own, as in
// "thanks, who owns Intel" or "I meant who owns Intel".
func asksQuestion(text string) bool {
	p := intentparser.Parse(text)
	return !p.IsUnknown() && p.Intent != models.IntentFollowUp
}

func normalize(raw string) string {
	text := strings.Join(strings.Fields(raw), " ")
	return strings.Trim(text, "\"'`.!?,;: ")
}

func matchCorrection(text string) (models.Entities, bool) {
	for _, p := range correctionPatterns {
		m := p.FindStringSubmatch(text)
		if m == nil {
			continue
		}
		kind := ""
		if i := p.SubexpIndex("kind"); i >= 0 {
			kind = strings.ToLower(m[i])
		}
		value := strings.Trim(m[p.SubexpIndex("value")], "\"'`.!?,;: ")
		if value == "" || len(strings.Fields(value)) > maxCorrectionWords {
			continue
		}
		if asksQuestion(value) {
			continue
		}
		if corrected := correctedEntities(kind, value); len(corrected) > 0 {
			return corrected, true
		}
	}
	return nil, false
}

// correctedEntities decides which entity a correction replaces: an explicit
// kind word wins, then the stage and date vocabularies, then accounts.
func correctedEntities(kind, value string) models.Entities {
	e := models.Entities{}
	kind = strings.Join(strings.Fields(kind), " ")

	switch kind {
	case "stage", "stages":
		stages := intentparser.ExtractStages(value)
		if len(stages) == 0 {
			stages = []string{strings.ToLower(value)}
		}
		e.Set(models.EntityStages, stages...)
		return e
	case "period", "quarter", "timeframe", "date range":
		if period := intentparser.ExtractDateRange(value); period != "" {
			e.Set(models.EntityDateRange, period)
		} else {
			e.Set(models.EntityDateRange, strings.ToLower(value))
		}
		return e
	case "reason":
		e.Set(models.EntityLossReason, value)
		return e
	case "account", "accounts", "company", "customer", "client":
		e.Set(models.EntityAccounts, intentparser.AccountsFrom(value)...)
		return e
	}

	if intentparser.IsStageLabel(value) {
		e.Set(models.EntityStages, intentparser.ExtractStages(value)...)
		return e
	}
	if period := intentparser.ExtractDateRange(value); period != "" && strings.EqualFold(period, strings.Join(strings.Fields(value), " ")) {
		e.Set(models.EntityDateRange, period)
		return e
	}
	e.Set(models.EntityAccounts, intentparser.AccountsFrom(value)...)
	return e
}
