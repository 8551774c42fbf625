// internal/engine/intentparser/entities.go
package intentparser

import (
	"regexp"
	"sort"
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// Canonical stage labels, in funnel order.
const (
	StageProspecting   = "prospecting"
	StageQualification = "qualification"
	StageDiscovery     = "discovery"
	StageDemo          = "demo"
	StageProposal      = "proposal"
	StageNegotiation   = "negotiation"
	StageContracting   = "contracting"
	StageClosedWon     = "closed won"
	StageClosedLost    = "closed lost"
	StageNurture       = "nurture"
)

// LateStages are the stages a "late stage pipeline" question covers.
var LateStages = []string{StageProposal, StageNegotiation, StageContracting}

type stageTerm struct {
	label   string
	pattern *regexp.Regexp
}

// closed-won/lost come first so "closed lost" is not read as a bare stage word.
var stageVocabulary = []stageTerm{
	{StageClosedWon, regexp.MustCompile(`(?i)\bclosed[\s-]*won\b`)},
	{StageClosedLost, regexp.MustCompile(`(?i)\bclosed[\s-]*lost\b`)},
	{StageProspecting, regexp.MustCompile(`(?i)\bprospect(?:ing|s)?\b`)},
	{StageQualification, regexp.MustCompile(`(?i)\bqualif(?:ication|ied|ying)\b`)},
	{StageDiscovery, regexp.MustCompile(`(?i)\bdiscovery\b`)},
	{StageDemo, regexp.MustCompile(`(?i)\bdemos?\b`)},
	{StageProposal, regexp.MustCompile(`(?i)\bproposals?\b`)},
	{StageNegotiation, regexp.MustCompile(`(?i)\bnegotiat(?:ion|ions|ing)\b`)},
	{StageContracting, regexp.MustCompile(`(?i)\bcontract(?:ing|s)?\b`)},
	{StageNurture, regexp.MustCompile(`(?i)\bnurtur(?:e|ing)\b`)},
}

var (
	dateRangePatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?i)\b(?:this|last|next|current|previous)\s+(?:fiscal\s+year|quarter|month|year|week)\b`),
		regexp.MustCompile(`(?i)\bq[1-4](?:\s+(?:fy)?\d{2,4})?\b`),
		regexp.MustCompile(`(?i)\bfy\s?\d{2,4}\b`),
		regexp.MustCompile(`(?i)\b(?:ytd|qtd|mtd|year[\s-]to[\s-]date|quarter[\s-]to[\s-]date)\b`),
	}

	lossReasonPattern = regexp.MustCompile(`(?i)\b(?:because(?:\s+of)?|due\s+to|since|reason(?:\s+is)?:?)\s+(.+)$`)

	ordinalPattern = regexp.MustCompile(`(?i)\b(?:the\s+)?(first|second|third|fourth|fifth|last|1st|2nd|3rd|4th|5th)\s+(?:one|deal|account|opportunity|opp|result|record)\b`)
	hashOrdinal    = regexp.MustCompile(`#\s?([1-9][0-9]?)\b`)

	// Trailing clauses that qualify a capture rather than name an account.
	captureCutter = regexp.MustCompile(`(?i)\s+(?:in|during|from|since|by|over|before|after|this|last|next|because|due|that|which|where|with\s+stage)\b.*$`)
	partSplitter  = regexp.MustCompile(`(?i)\s*(?:,|;|\band\b|\bor\b|\bvs\.?\b)\s*`)
	leadingNoise  = regexp.MustCompile(`(?i)^(?:the|a|an|our|my|account|customer|client|company|(?:deal|deals|opportunity|opp)\s+(?:with|for|at|on))\s+`)
	trailingNoise = regexp.MustCompile(`(?i)(?:'s|’s)?\s+(?:account|accounts|deal|deals|opportunity|opportunities|opps|opp|pipeline|team|business|stuff|please)$`)
	stageFiller   = regexp.MustCompile(`(?i)\b(?:the|stage|stages|phase|deals|in)\b`)
	possessive    = regexp.MustCompile(`(?i)(?:'s|’s|')$`)
)

var ordinalWords = map[string]string{
	"first": "1", "1st": "1",
	"second": "2", "2nd": "2",
	"third": "3", "3rd": "3",
	"fourth": "4", "4th": "4",
	"fifth": "5", "5th": "5",
	"last": "last",
}

// Words that refer back to an earlier turn instead of naming an account.
var referenceWords = map[string]bool{
	"their": true, "them": true, "they": true, "it": true, "its": true,
	"that": true, "this": true, "those": true, "these": true, "he": true,
	"his": true, "her": true, "him": true, "she": true, "same": true,
	"that account": true, "this account": true, "the account": true,
	"that one": true, "this one": true, "that company": true, "same account": true,
	"the same": true, "the deal": true, "that deal": true, "this deal": true,
	"it's": true,
}

// Words that can land in a capture but never name an account.
var fillerWords = map[string]bool{
	"me": true, "us": true, "everyone": true, "all": true, "everything": true,
	"anything": true, "someone": true, "anyone": true, "you": true,
}

// Capitalised words that open sentences or name the domain, not accounts.
var properNounStopwords = map[string]bool{
	"who": true, "what": true, "which": true, "where": true, "when": true, "why": true,
	"how": true, "show": true, "list": true, "give": true, "get": true, "find": true,
	"tell": true, "move": true, "put": true, "close": true, "mark": true, "set": true,
	"is": true, "are": true, "was": true, "can": true, "could": true, "would": true,
	"please": true, "i": true, "the": true, "a": true, "an": true, "and": true,
	"late": true, "stage": true, "pipeline": true, "deals": true, "deal": true,
	"opportunities": true, "opps": true, "owner": true, "owns": true, "ae": true,
	"q1": true, "q2": true, "q3": true, "q4": true, "ytd": true, "fy": true,
	"hey": true, "hi": true, "ok": true, "okay": true, "also": true, "now": true,
	"lost": true, "won": true, "closed": true, "nurture": true,
}

// ExtractStages returns the canonical stage labels in the order they appear.
func ExtractStages(text string) []string {
	type hit struct {
		label string
		pos   int
	}
	var hits []hit
	masked := text
	for _, term := range stageVocabulary {
		loc := term.pattern.FindStringIndex(masked)
		if loc == nil {
			continue
		}
		hits = append(hits, hit{label: term.label, pos: loc[0]})
		masked = term.pattern.ReplaceAllStringFunc(masked, func(m string) string {
			return strings.Repeat(" ", len(m))
		})
	}
	sort.SliceStable(hits, func(i, j int) bool { return hits[i].pos < hits[j].pos })
	out := make([]string, 0, len(hits))
	for _, h := range hits {
		out = append(out, h.label)
	}
	return out
}

// IsStageLabel reports whether v is nothing but a stage name, give or take
// filler such as "the" or "stage".
func IsStageLabel(v string) bool {
	rest, found := v, false
	for _, term := range stageVocabulary {
		if term.pattern.MatchString(rest) {
			found = true
			rest = term.pattern.ReplaceAllString(rest, " ")
		}
	}
	rest = stageFiller.ReplaceAllString(rest, " ")
	return found && strings.TrimSpace(rest) == ""
}

// CanonicalStage maps free text to its stage label, or "" when unknown.
func CanonicalStage(v string) string {
	if stages := ExtractStages(v); len(stages) > 0 {
		return stages[0]
	}
	return ""
}

// ExtractDateRange returns the first date-range phrase, lower-cased.
func ExtractDateRange(text string) string {
	best, bestPos := "", -1
	for _, p := range dateRangePatterns {
		loc := p.FindStringIndex(text)
		if loc == nil {
			continue
		}
		if bestPos == -1 || loc[0] < bestPos {
			best, bestPos = text[loc[0]:loc[1]], loc[0]
		}
	}
	return strings.ToLower(strings.Join(strings.Fields(best), " "))
}

// ExtractLossReason returns the clause after "because"/"due to", if any.
func ExtractLossReason(text string) string {
	m := lossReasonPattern.FindStringSubmatch(text)
	if m == nil {
		return ""
	}
	return strings.TrimSpace(strings.Trim(m[1], `"'.,;:!? `))
}

// ExtractOrdinal returns "1".."5", a "#n" index, or "last".
func ExtractOrdinal(text string) string {
	if m := ordinalPattern.FindStringSubmatch(text); m != nil {
		return ordinalWords[strings.ToLower(m[1])]
	}
	if m := hashOrdinal.FindStringSubmatch(text); m != nil {
		return m[1]
	}
	return ""
}

func removeDateRanges(s string) string {
	for _, p := range dateRangePatterns {
		s = p.ReplaceAllString(s, " ")
	}
	return strings.Join(strings.Fields(s), " ")
}

// splitAccounts turns a captured phrase into account names. Reference words,
// ordinals and stage labels are dropped; ordinals are reported separately.
func splitAccounts(capture string) (accounts []string, ordinal string) {
	capture = strings.TrimSpace(capture)
	if capture == "" {
		return nil, ""
	}
	if o := ExtractOrdinal(capture); o != "" {
		return nil, o
	}
	capture = removeDateRanges(capture)
	capture = captureCutter.ReplaceAllString(capture, "")

	for _, part := range partSplitter.Split(capture, -1) {
		name := cleanAccountName(part)
		if name == "" {
			continue
		}
		accounts = appendUnique(accounts, name)
	}
	return accounts, ""
}

// AccountsFrom reads a short phrase such as "Boeing and Airbus" as account
// names. Reference words and stage names yield nothing.
func AccountsFrom(phrase string) []string {
	accounts, _ := splitAccounts(phrase)
	return accounts
}

func cleanAccountName(part string) string {
	name := strings.Trim(strings.TrimSpace(part), "\"'`.,;:!?()[]")
	for {
		trimmed := leadingNoise.ReplaceAllString(name, "")
		trimmed = trailingNoise.ReplaceAllString(trimmed, "")
		trimmed = possessive.ReplaceAllString(trimmed, "")
		trimmed = strings.TrimSpace(trimmed)
		if trimmed == name {
			break
		}
		name = trimmed
	}
	if name == "" {
		return ""
	}
	lower := strings.ToLower(name)
	if referenceWords[lower] || properNounStopwords[lower] || fillerWords[lower] {
		return ""
	}
	if IsStageLabel(name) {
		return ""
	}
	if len(strings.Fields(name)) > 6 {
		return ""
	}
	if !strings.ContainsFunc(name, unicode.IsLetter) && !strings.ContainsFunc(name, unicode.IsDigit) {
		return ""
	}
	if name == lower {
		name = cases.Title(language.English).String(name)
	}
	return name
}

// scanProperNouns finds runs of capitalised words, allowing "of" and "&"
// inside a run ("Bank of America").
func scanProperNouns(text string) []string {
	tokens := strings.Fields(text)
	var names []string
	var current []string

	flush := func() {
		for len(current) > 0 {
			last := strings.ToLower(current[len(current)-1])
			if last == "of" || last == "&" {
				current = current[:len(current)-1]
				continue
			}
			break
		}
		if len(current) > 0 {
			if name := cleanAccountName(strings.Join(current, " ")); name != "" {
				names = appendUnique(names, name)
			}
		}
		current = nil
	}

	for i, raw := range tokens {
		tok := strings.Trim(raw, "\"'`.,;:!?()[]")
		trailingComma := strings.HasSuffix(raw, ",")
		bare := possessive.ReplaceAllString(tok, "")
		lower := strings.ToLower(bare)

		switch {
		case bare == "":
			flush()
		case (lower == "of" || lower == "&") && len(current) > 0:
			current = append(current, bare)
		case isCapitalised(bare) && !properNounStopwords[lower] && !referenceWords[lower] && !(i == 0 && isSentenceStarter(lower)) && !IsStageLabel(bare):
			current = append(current, bare)
			if bare != tok {
				flush()
			}
		default:
			flush()
		}
		if trailingComma {
			flush()
		}
	}
	flush()
	return names
}

func isCapitalised(tok string) bool {
	for _, r := range tok {
		return unicode.IsUpper(r) || unicode.IsDigit(r)
	}
	return false
}

func isSentenceStarter(lower string) bool {
	return properNounStopwords[lower] || referenceWords[lower]
}

// mentionsReference reports whether a capture points back at an earlier turn.
func mentionsReference(capture string) bool {
	lower := strings.ToLower(strings.TrimSpace(capture))
	if referenceWords[lower] {
		return true
	}
	for _, w := range strings.Fields(lower) {
		if referenceWords[strings.Trim(w, "\"'`.,;:!?")] {
			return true
		}
	}
	return false
}

func appendUnique(list []string, v string) []string {
	for _, existing := range list {
		if strings.EqualFold(existing, v) {
			return list
		}
	}
	return append(list, v)
}
