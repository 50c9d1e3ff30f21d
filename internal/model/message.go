package model

import (
	"time"
)

// SystemMessageType tags a message generated by an external event.
type SystemMessageType string

const (
	SystemListingReserved           SystemMessageType = "listing_reserved"
	SystemListingReservationRemoved SystemMessageType = "listing_reservation_removed"
	SystemListingSold               SystemMessageType = "listing_sold"
)

// Valid reports whether t is a known system message type.
func (t SystemMessageType) Valid() bool {
	switch t {
	case SystemListingReserved, SystemListingReservationRemoved, SystemListingSold:
		return true
	}
	return false
}

// MaxMessageLength is the number of runes kept from a message body.
const MaxMessageLength = 2000

// Message represents a conversation message. An empty SenderID marks a
// system message.
type Message struct {
	// Identity
	ID             string `json:"id"`
	ConversationID string `json:"conversation_id"`
	SenderID       string `json:"sender_id,omitempty"`

	// Content. System messages keep Content empty and are rendered per viewer
	// from SystemType and SystemTargetID.
	Content        string            `json:"content,omitempty"`
	SystemType     SystemMessageType `json:"system_type,omitempty"`
	SystemTargetID string            `json:"system_target_id,omitempty"`

	// Timestamps
	SentAt time.Time  `json:"sent_at"`
	ReadAt *time.Time `json:"read_at,omitempty"`

	// Store-assigned insertion order, breaks sent_at ties.
	Sequence uint64 `json:"sequence,omitempty"`
}

// IsSystem reports whether the message has no human sender.
func (m Message) IsSystem() bool {
	return m.SenderID == ""
}

// IsUnreadFor is the unread predicate shared by the live badge and the
// digest: the conversation is accepted, the player takes part in it, did not
// send the message, and has not read it.
func IsUnreadFor(conv Conversation, msg Message, playerID string) bool {
	return conv.Status == StatusAccepted &&
		conv.HasParticipant(playerID) &&
		msg.SenderID != playerID &&
		msg.ReadAt == nil
}

// Before orders messages by sent_at, then sequence.
func (m Message) Before(other Message) bool {
	if !m.SentAt.Equal(other.SentAt) {
		return m.SentAt.Before(other.SentAt)
	}
	return m.Sequence < other.Sequence
}

// UnreadMessage pairs an unread message with its conversation.
type UnreadMessage struct {
	Message      Message
	Conversation Conversation
}

// SendMessageRequest is the request to send a new message.
type SendMessageRequest struct {
	Content string `json:"content"`
}

// MessageView is a message as rendered for one viewer.
type MessageView struct {
	ID             string            `json:"id"`
	ConversationID string            `json:"conversation_id"`
	SenderID       string            `json:"sender_id,omitempty"`
	Content        string            `json:"content"`
	IsSystem       bool              `json:"is_system"`
	IsOwn          bool              `json:"is_own"`
	SystemType     SystemMessageType `json:"system_type,omitempty"`
	SentAt         time.Time         `json:"sent_at"`
	ReadAt         *time.Time        `json:"read_at,omitempty"`
}

// ListMessagesResponse is the response for listing messages.
type ListMessagesResponse struct {
	Messages []MessageView `json:"messages"`
	Offset   int           `json:"offset"`
	Limit    int           `json:"limit"`
	HasMore  bool          `json:"has_more"`
}

// MarkReadResponse reports how many messages the read sweep touched.
type MarkReadResponse struct {
	Marked int `json:"marked"`
}
