package middleware

import (
	"errors"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"
)

// ValidateHandle validates a user handle. Handles appear in URL paths and
// store key namespaces, so separator characters are reserved.
func ValidateHandle(handle string) error {
	if len(handle) == 0 {
		return errors.New("name cannot be empty")
	}
	if len(handle) > 64 {
		return errors.New("name exceeds maximum length")
	}
	if !utf8.ValidString(handle) {
		return errors.New("name must be valid UTF-8")
	}
	if strings.ContainsAny(handle, "|:/\\") {
		return errors.New("name contains reserved characters")
	}
	return nil
}

// ValidatePassword validates a signup password.
func ValidatePassword(password string) error {
	if len(password) < 8 {
		return errors.New("password must be at least 8 characters")
	}
	if len(password) > 128 {
		return errors.New("password exceeds maximum length")
	}
	return nil
}

// ValidateMessageContent validates message content. Empty content is
// allowed: media-only messages carry no text.
func ValidateMessageContent(content string) error {
	if len(content) > 100000 {
		return errors.New("content exceeds maximum length")
	}
	if !utf8.ValidString(content) {
		return errors.New("content must be valid UTF-8")
	}
	return nil
}

// ValidateConversationID validates a conversation ID.
func ValidateConversationID(id string) error {
	if _, err := uuid.Parse(id); err != nil {
		return errors.New("invalid conversation ID format")
	}
	return nil
}

// ValidateMessageID validates a message ID.
func ValidateMessageID(id string) error {
	if _, err := uuid.Parse(id); err != nil {
		return errors.New("invalid message ID format")
	}
	return nil
}

// ValidateReaction validates a reaction symbol.
func ValidateReaction(symbol string) error {
	if len(symbol) == 0 {
		return errors.New("reaction cannot be empty")
	}
	if len(symbol) > 32 {
		return errors.New("reaction exceeds maximum length")
	}
	if !utf8.ValidString(symbol) {
		return errors.New("reaction must be valid UTF-8")
	}
	return nil
}

// ValidateConversationName validates an optional conversation name.
func ValidateConversationName(name string) error {
	if len(name) > 256 {
		return errors.New("name exceeds maximum length")
	}
	if !utf8.ValidString(name) {
		return errors.New("name must be valid UTF-8")
	}
	return nil
}
