// internal/models/context.go
package models

import "time"

// ConversationContext is the per (user, conversation) memory used to
// interpret follow-up questions.
type ConversationContext struct {
	UserID         string         `json:"userId"`
	ConversationID string         `json:"conversationId"`
	LastIntent     *ParsedIntent  `json:"lastIntent,omitempty"`
	LastEntities   Entities       `json:"lastEntities"`
	History        []ParsedIntent `json:"history"`
	LastResultRefs []string       `json:"lastResultRefs,omitempty"`
	Disputed       bool           `json:"disputed,omitempty"`
	CreatedAt      time.Time      `json:"createdAt"`
	UpdatedAt      time.Time      `json:"updatedAt"`
}

// NewConversationContext returns an empty record for the pair.
func NewConversationContext(userID, conversationID string, now time.Time) *ConversationContext {
	return &ConversationContext{
		UserID:         userID,
		ConversationID: conversationID,
		LastEntities:   Entities{},
		History:        []ParsedIntent{},
		CreatedAt:      now,
		UpdatedAt:      now,
	}
}

// HasLastIntent reports whether there is a prior answer to refer to.
func (c *ConversationContext) HasLastIntent() bool {
	return c != nil && c.LastIntent != nil
}

// IsExpired reports whether the record has outlived the retention window.
func (c *ConversationContext) IsExpired(now time.Time, retention time.Duration) bool {
	if retention <= 0 {
		return false
	}
	return now.Sub(c.UpdatedAt) > retention
}

// AppendHistory adds p as the most recent entry, keeping at most limit.
func (c *ConversationContext) AppendHistory(p ParsedIntent, limit int) {
	c.History = append(c.History, p.Normalized())
	if limit > 0 && len(c.History) > limit {
		c.History = append([]ParsedIntent(nil), c.History[len(c.History)-limit:]...)
	}
}

// Clone returns a deep copy.
func (c *ConversationContext) Clone() *ConversationContext {
	if c == nil {
		return nil
	}
	out := *c
	if c.LastIntent != nil {
		li := c.LastIntent.Normalized()
		out.LastIntent = &li
	}
	out.LastEntities = c.LastEntities.Clone()
	out.History = make([]ParsedIntent, len(c.History))
	for i, h := range c.History {
		out.History[i] = h.Normalized()
	}
	out.LastResultRefs = append([]string(nil), c.LastResultRefs...)
	return &out
}
