package middleware

import (
	"errors"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"
)

// MaxContentBytes bounds a message body before it reaches the services,
// which cut the text to its rune limit.
const MaxContentBytes = 64 * 1024

// ValidateMessageContent validates message content. Empty content is left
// to the caller.
func ValidateMessageContent(content string) error {
	if len(content) > MaxContentBytes {
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

// ValidatePlayerID validates a player ID. IDs end up in hub topics and NATS
// subjects, so separators and wildcards are rejected.
func ValidatePlayerID(id string) error {
	return validateExternalID("player", id)
}

// ValidateListingID validates a marketplace listing ID.
func ValidateListingID(id string) error {
	return validateExternalID("listing", id)
}

func validateExternalID(kind, id string) error {
	if len(id) == 0 {
		return errors.New(kind + " ID cannot be empty")
	}
	if len(id) > 64 {
		return errors.New(kind + " ID exceeds maximum length")
	}
	if strings.ContainsAny(id, "./*> \t\r\n") {
		return errors.New(kind + " ID contains invalid characters")
	}
	return nil
}
