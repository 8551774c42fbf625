// internal/engine/intentparser/rules.go
package intentparser

import (
	"regexp"

	"crm-assistant/internal/models"
)

// rule is one intent-detection rule: a predicate over the normalized text
// and the extractor that runs when the predicate holds.
type rule struct {
	intent  models.IntentTag
	match   func(u utterance) bool
	extract func(u utterance) models.Entities
}

var (
	closeLostPatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?i)\b(?:close|mark)\s+(?:out\s+)?(.+?)\s+(?:as\s+)?(?:closed[\s-]+)?lost\b`),
		regexp.MustCompile(`(?i)\bclose[\s-]+lost\s+(.+)$`),
		regexp.MustCompile(`(?i)^(.+?)\s+(?:is|was|got|has\s+been)\s+(?:closed[\s-]+)?lost\b`),
	}

	nurturePatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?i)\b(?:move|put|send|shift|push|set)\s+(.+?)\s+(?:back\s+)?(?:to|in|into|as)\s+(?:the\s+)?nurtur(?:e|ing)\b`),
		regexp.MustCompile(`(?i)^nurture\s+(.+)$`),
	}

	lateStagePredicate = regexp.MustCompile(`(?i)\blate[\s-]?stages?\b`)
	lateStageAccounts  = []*regexp.Regexp{
		regexp.MustCompile(`(?i)\blate[\s-]?stages?\b.*?\b(?:for|at|with|on|of)\s+(.+)$`),
		regexp.MustCompile(`(?i)^(?:(?:show|list|get|give)\s+(?:me\s+)?)?(.+?)(?:'s|’s)\s+late[\s-]?stage`),
	}

	opportunityPatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?i)\b(?:opportunities|opportunity|opps|opp|deals|deal)\s+(?:for|at|with|on)\s+(.+)$`),
		regexp.MustCompile(`(?i)\bwhat\s+(?:deals|opportunities|opps)\s+(?:does|do|did|has|have)\s+(.+?)(?:\s+(?:have|got|open|own))?$`),
		regexp.MustCompile(`(?i)^(?:(?:show|list|get|give)\s+(?:me\s+)?)?(.+?)(?:'s|’s)\s+(?:open\s+)?(?:opportunities|opps|deals)$`),
	}

	pipelinePredicates = []*regexp.Regexp{
		regexp.MustCompile(`(?i)\b(?:pipeline|forecast|funnel)\b`),
		regexp.MustCompile(`(?i)\bhow\s+many\s+(?:deals|opportunities|opps)\b`),
	}
	dealNoun         = regexp.MustCompile(`(?i)\b(?:deals|opportunities|opps)\b`)
	pipelineAccounts = []*regexp.Regexp{
		regexp.MustCompile(`(?i)\b(?:pipeline|forecast|funnel)\s+(?:for|of|at|with)\s+(.+)$`),
		regexp.MustCompile(`(?i)^(?:(?:show|give|get)\s+(?:me\s+)?|what(?:'s|’s|\s+is)\s+)?(?:the\s+)?(.+?)(?:'s|’s)\s+(?:pipeline|forecast|funnel)`),
	}

	ownershipPatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?i)\bwho\s+(?:owns|manages|covers|runs|handles)\s+(.+)$`),
		regexp.MustCompile(`(?i)\bwho(?:'s|’s|\s+is)\s+(.+?)(?:'s|’s)\s+(?:owner|ae|rep|account\s+owner|account\s+executive|account\s+manager)\b`),
		regexp.MustCompile(`(?i)\b(?:owner|owners|account\s+owner|ae|rep|account\s+executive|account\s+manager)\s+(?:of|for|on)\s+(.+)$`),
		regexp.MustCompile(`(?i)\bwho\s+(?:is\s+)?(?:responsible\s+for|in\s+charge\s+of)\s+(.+)$`),
	}

	followUpPatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?i)^(?:and\s+)?(?:what|how)\s+about\s+(.+)$`),
		regexp.MustCompile(`(?i)^(?:same\s+(?:for|with)|now\s+(?:do|for))\s+(.+)$`),
		regexp.MustCompile(`(?i)^and\s+(?:for\s+)?(.+)$`),
	}
)

// defaultRules returns the rules in priority order. Specific write intents
// come before the broad read intents that would otherwise swallow them, and
// write intents only match when something names the record to change.
func defaultRules() []rule {
	return []rule{
		{
			intent: models.IntentCloseLost,
			match: func(u utterance) bool {
				return namesAccount(u, closeLostPatterns...)
			},
			extract: func(u utterance) models.Entities {
				e := models.Entities{}
				captureAccounts(e, u, closeLostPatterns...)
				e.Set(models.EntityLossReason, ExtractLossReason(u.text))
				return e
			},
		},
		{
			intent: models.IntentMoveToNurture,
			match: func(u utterance) bool {
				return namesAccount(u, nurturePatterns...)
			},
			extract: func(u utterance) models.Entities {
				e := models.Entities{}
				captureAccounts(e, u, nurturePatterns...)
				return e
			},
		},
		{
			intent: models.IntentLateStagePipeline,
			match:  matchesAny(lateStagePredicate),
			extract: func(u utterance) models.Entities {
				e := models.Entities{}
				captureAccounts(e, u, lateStageAccounts...)
				e.Set(models.EntityStages, ExtractStages(u.text)...)
				e.Set(models.EntityDateRange, ExtractDateRange(u.text))
				return e
			},
		},
		{
			intent: models.IntentAccountOpportunities,
			match: func(u utterance) bool {
				return namesAccount(u, opportunityPatterns...)
			},
			extract: func(u utterance) models.Entities {
				e := models.Entities{}
				captureAccounts(e, u, opportunityPatterns...)
				e.Set(models.EntityStages, ExtractStages(u.text)...)
				e.Set(models.EntityDateRange, ExtractDateRange(u.text))
				return e
			},
		},
		{
			intent: models.IntentPipelineSummary,
			match: func(u utterance) bool {
				if matchesAny(pipelinePredicates...)(u) {
					return true
				}
				return dealNoun.MatchString(u.text) && len(ExtractStages(u.text)) > 0
			},
			extract: func(u utterance) models.Entities {
				e := models.Entities{}
				captureAccounts(e, u, pipelineAccounts...)
				e.Set(models.EntityStages, ExtractStages(u.text)...)
				e.Set(models.EntityDateRange, ExtractDateRange(u.text))
				return e
			},
		},
		{
			intent: models.IntentAccountOwnership,
			match:  matchesAny(ownershipPatterns...),
			extract: func(u utterance) models.Entities {
				e := models.Entities{}
				captureAccounts(e, u, ownershipPatterns...)
				return e
			},
		},
		{
			intent: models.IntentFollowUp,
			match:  matchesAny(followUpPatterns...),
			extract: func(u utterance) models.Entities {
				e := models.Entities{}
				captureAccounts(e, u, followUpPatterns...)
				e.Set(models.EntityStages, ExtractStages(u.text)...)
				e.Set(models.EntityDateRange, ExtractDateRange(u.text))
				return e
			},
		},
	}
}

func matchesAny(patterns ...*regexp.Regexp) func(u utterance) bool {
	return func(u utterance) bool {
		for _, p := range patterns {
			if p.MatchString(u.text) {
				return true
			}
		}
		return false
	}
}

// namesAccount holds when a pattern matches and its capture names an
// account, an ordinal, or points back at an earlier turn.
func namesAccount(u utterance, patterns ...*regexp.Regexp) bool {
	for _, p := range patterns {
		m := p.FindStringSubmatch(u.text)
		if m == nil {
			continue
		}
		accounts, ordinal := splitAccounts(m[1])
		if len(accounts) > 0 || ordinal != "" || mentionsReference(m[1]) {
			return true
		}
	}
	return false
}

// captureAccounts fills accounts (or ordinal) from the first pattern whose
// capture yields something, falling back to a proper-noun scan.
func captureAccounts(e models.Entities, u utterance, patterns ...*regexp.Regexp) {
	for _, p := range patterns {
		m := p.FindStringSubmatch(u.text)
		if m == nil {
			continue
		}
		accounts, ordinal := splitAccounts(m[1])
		if ordinal != "" {
			e.Set(models.EntityOrdinal, ordinal)
			return
		}
		if len(accounts) > 0 {
			e.Set(models.EntityAccounts, accounts...)
			return
		}
		if mentionsReference(m[1]) {
			return
		}
	}
	e.Set(models.EntityAccounts, scanProperNouns(u.text)...)
}
