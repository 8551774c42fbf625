// internal/workers/conversation/reset-context/models.go
package resetcontext

type Input struct {
	UserID         string `json:"userId"`
	ConversationID string `json:"conversationId"`
}

type Output struct {
	Reset bool `json:"contextReset"`
}
