package model

import (
	"time"
)

// Conversation is a named or unnamed thread with a fixed participant set and
// an append-only message log. The participant set is immutable after
// creation.
type Conversation struct {
	ID           string    `json:"id"`
	Name         string    `json:"name,omitempty"`
	Participants []string  `json:"participants"`
	Messages     []Message `json:"messages"`
	CreatedAt    time.Time `json:"created_at"`
}

// IsParticipant reports whether handle belongs to the conversation.
func (c *Conversation) IsParticipant(handle string) bool {
	for _, p := range c.Participants {
		if p == handle {
			return true
		}
	}
	return false
}

// CreateConversationRequest is the request to create a new conversation.
// The caller is added to the participant set if absent.
type CreateConversationRequest struct {
	Participants []string `json:"participants"`
	Name         string   `json:"name,omitempty"`
}
