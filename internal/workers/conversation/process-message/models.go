// internal/workers/conversation/process-message/models.go
package processmessage

import "crm-assistant/internal/models"

type Input struct {
	UserID         string `json:"userId"`
	ConversationID string `json:"conversationId"`
	Message        string `json:"message"`
}

// Output is flattened so BPMN gateways can branch on kind, intent and
// degraded without digging into nested objects.
type Output struct {
	Kind        string                `json:"kind"`
	Reply       string                `json:"reply"`
	Intent      string                `json:"intent"`
	Entities    models.Entities       `json:"entities"`
	Suggestions []string              `json:"suggestions"`
	Result      *models.QueryResult   `json:"result,omitempty"`
	Feedback    *models.FeedbackEvent `json:"feedback,omitempty"`
	Degraded    bool                  `json:"degraded"`
	Error       string                `json:"error,omitempty"`
}
