package model

import (
	"time"
)

// EventType discriminates events on the live channel.
type EventType string

const (
	EventTypeMessage EventType = "message"
	EventTypeTyping  EventType = "typing"
)

// ClientEvent is an inbound frame decoded from a live connection.
type ClientEvent struct {
	Type    EventType `json:"type"`
	Content string    `json:"content,omitempty"`
	Media   string    `json:"media,omitempty"`
}

// ServerEvent is an outbound frame delivered to every subscriber of a
// conversation. Message events carry the finalized persisted message;
// typing events carry only the originating user.
type ServerEvent struct {
	Type EventType `json:"type"`

	// Message fields
	ID        string         `json:"id,omitempty"`
	Sender    string         `json:"sender,omitempty"`
	Content   *string        `json:"content,omitempty"`
	Media     string         `json:"media,omitempty"`
	Timestamp *time.Time     `json:"timestamp,omitempty"`
	Reactions map[string]int `json:"reactions,omitempty"`

	// Typing fields
	User string `json:"user,omitempty"`
}

// NewMessageEvent builds the outbound event for a finalized message.
func NewMessageEvent(msg *Message) *ServerEvent {
	content := msg.Content
	ts := msg.Timestamp
	reactions := msg.Reactions
	if reactions == nil {
		reactions = map[string]int{}
	}
	return &ServerEvent{
		Type:      EventTypeMessage,
		ID:        msg.ID,
		Sender:    msg.Sender,
		Content:   &content,
		Media:     msg.Media,
		Timestamp: &ts,
		Reactions: reactions,
	}
}

// NewTypingEvent builds the ephemeral typing indicator event.
func NewTypingEvent(user string) *ServerEvent {
	return &ServerEvent{
		Type: EventTypeTyping,
		User: user,
	}
}
