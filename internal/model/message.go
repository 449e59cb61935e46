package model

import (
	"time"
)

// Message is one entry in a conversation's append-only log. The identifier
// and timestamp are assigned by the server at persistence time; the timestamp
// is monotonically non-decreasing within a conversation.
type Message struct {
	ID        string         `json:"id"`
	Sender    string         `json:"sender"`
	Content   string         `json:"content"`
	Media     string         `json:"media,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
	Reactions map[string]int `json:"reactions"`
}

// SendMessageRequest is the REST request to append a message.
type SendMessageRequest struct {
	Content string `json:"content"`
	Media   string `json:"media,omitempty"`
}

// AddReactionRequest is the REST request to increment a reaction counter.
type AddReactionRequest struct {
	Reaction string `json:"reaction"`
}
