package models

// MessageRole identifies the author of a chat message.
type MessageRole string

const (
	RoleUser      MessageRole = "user"
	RoleAssistant MessageRole = "assistant"
	RoleSystem    MessageRole = "system"
)

// TokenUsage records token accounting for an assistant turn.
type TokenUsage struct {
	Prompt     int `json:"prompt"`
	Completion int `json:"completion"`
	Total      int `json:"total"`
}

// ChatMessage is one turn of a task's chat history.
type ChatMessage struct {
	ID           string      `json:"id" validate:"required"`
	Role         MessageRole `json:"role" validate:"required,oneof=user assistant system"`
	Content      string      `json:"content"`
	Timestamp    int64       `json:"timestamp"`
	TokenUsage   *TokenUsage `json:"tokenUsage,omitempty"`
	ResponseTime *float64    `json:"responseTime,omitempty"`
}

// Clone returns a deep copy of the message.
func (m *ChatMessage) Clone() ChatMessage {
	c := *m
	if m.TokenUsage != nil {
		u := *m.TokenUsage
		c.TokenUsage = &u
	}
	if m.ResponseTime != nil {
		rt := *m.ResponseTime
		c.ResponseTime = &rt
	}
	return c
}

// PromptVersion is a point-in-time snapshot of a task's prompt text.
type PromptVersion struct {
	ID        string `json:"id" validate:"required"`
	Content   string `json:"content"`
	CreatedAt int64  `json:"createdAt"`
}
