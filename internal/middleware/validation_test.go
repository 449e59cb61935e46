package middleware

import (
	"strings"
	"testing"
)

func TestValidateHandle(t *testing.T) {
	if err := ValidateHandle("alice"); err != nil {
		t.Errorf("ValidateHandle(alice) = %v", err)
	}
	if err := ValidateHandle(""); err == nil {
		t.Error("empty handle accepted")
	}
	if err := ValidateHandle(strings.Repeat("a", 65)); err == nil {
		t.Error("oversized handle accepted")
	}
	if err := ValidateHandle("\xff\xfe"); err == nil {
		t.Error("invalid UTF-8 handle accepted")
	}
	// Separator characters would collide in URL paths and store keys.
	for _, handle := range []string{"a|b", "a:b", "a/b", `a\b`} {
		if err := ValidateHandle(handle); err == nil {
			t.Errorf("handle %q with reserved character accepted", handle)
		}
	}
}

func TestValidatePassword(t *testing.T) {
	if err := ValidatePassword("longenough"); err != nil {
		t.Errorf("ValidatePassword = %v", err)
	}
	if err := ValidatePassword("short"); err == nil {
		t.Error("short password accepted")
	}
	if err := ValidatePassword(strings.Repeat("a", 129)); err == nil {
		t.Error("oversized password accepted")
	}
}

func TestValidateMessageContent(t *testing.T) {
	// Media-only messages have no text.
	if err := ValidateMessageContent(""); err != nil {
		t.Errorf("empty content rejected: %v", err)
	}
	if err := ValidateMessageContent(strings.Repeat("a", 100001)); err == nil {
		t.Error("oversized content accepted")
	}
	if err := ValidateMessageContent("\xff"); err == nil {
		t.Error("invalid UTF-8 content accepted")
	}
}

func TestValidateIdentifiers(t *testing.T) {
	if err := ValidateConversationID("0195c000-0000-7000-8000-000000000000"); err != nil {
		t.Errorf("valid conversation ID rejected: %v", err)
	}
	if err := ValidateConversationID("nope"); err == nil {
		t.Error("malformed conversation ID accepted")
	}
	if err := ValidateMessageID("nope"); err == nil {
		t.Error("malformed message ID accepted")
	}
}

func TestValidateReaction(t *testing.T) {
	if err := ValidateReaction("thumbs_up"); err != nil {
		t.Errorf("ValidateReaction = %v", err)
	}
	if err := ValidateReaction(""); err == nil {
		t.Error("empty reaction accepted")
	}
	if err := ValidateReaction(strings.Repeat("x", 33)); err == nil {
		t.Error("oversized reaction accepted")
	}
}
