// internal/models/feedback.go
package models

import "time"

// Classification is the kind of feedback a message carries.
type Classification string

const (
	FeedbackPositive   Classification = "positive"
	FeedbackNegative   Classification = "negative"
	FeedbackCorrection Classification = "correction"
)

// FeedbackEvent records one classified feedback message for offline analysis.
type FeedbackEvent struct {
	ID                string         `json:"id"`
	UserID            string         `json:"userId"`
	ConversationID    string         `json:"conversationId"`
	RawMessage        string         `json:"rawMessage"`
	Classification    Classification `json:"classification"`
	CorrectedEntities Entities       `json:"correctedEntities,omitempty"`
	RelatedIntent     *ParsedIntent  `json:"relatedIntent,omitempty"`
	Attributed        bool           `json:"attributed"`
	Disputed          bool           `json:"disputed"`
	Timestamp         time.Time      `json:"timestamp"`
}

// NeedsAttention reports whether the event signals a bad answer.
func (e *FeedbackEvent) NeedsAttention() bool {
	return e.Classification == FeedbackNegative || e.Classification == FeedbackCorrection
}
