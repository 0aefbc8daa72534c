package middleware

import (
	"errors"
	"strings"
	"unicode/utf8"

	"github.com/capitalize-ai/operator-console/internal/model"
)

// MaxMessageLength bounds text message content in bytes.
const MaxMessageLength = 10000

// ValidateMessageContent validates message content.
func ValidateMessageContent(content string) error {
	if strings.TrimSpace(content) == "" {
		return errors.New("content cannot be empty")
	}
	if len(content) > MaxMessageLength {
		return errors.New("content exceeds maximum length")
	}
	if !utf8.ValidString(content) {
		return errors.New("content must be valid UTF-8")
	}
	return nil
}

// ValidateMessageType validates a message type.
func ValidateMessageType(t model.MessageType) error {
	if !t.Valid() {
		return errors.New("type must be text or image")
	}
	return nil
}

// ValidateConversationID validates a conversation id.
func ValidateConversationID(id string) error {
	return validateID("conversation", id)
}

// ValidateTaskID validates a bulk task id.
func ValidateTaskID(id string) error {
	return validateID("task", id)
}

func validateID(kind, id string) error {
	if id == "" {
		return errors.New(kind + " ID cannot be empty")
	}
	if len(id) > 64 {
		return errors.New(kind + " ID exceeds maximum length")
	}
	if strings.ContainsAny(id, " /\\?#\t\n") {
		return errors.New("invalid " + kind + " ID format")
	}
	return nil
}
