// Package model defines data structures for the messaging core.
package model

import (
	"time"

	apperrors "github.com/capitalize-ai/player-messaging/pkg/errors"
)

// ConversationStatus is the lifecycle state of a conversation.
type ConversationStatus string

const (
	StatusPending  ConversationStatus = "pending"
	StatusAccepted ConversationStatus = "accepted"
	// StatusIgnored is reached by both "deny" and "ignore".
	StatusIgnored ConversationStatus = "ignored"
)

// ParseConversationStatus parses a persisted status value.
func ParseConversationStatus(value string) (ConversationStatus, error) {
	status := ConversationStatus(value)
	if !status.Valid() {
		return "", apperrors.InvalidArg("unknown conversation status " + value)
	}
	return status, nil
}

// Valid reports whether s is a known status.
func (s ConversationStatus) Valid() bool {
	switch s {
	case StatusPending, StatusAccepted, StatusIgnored:
		return true
	}
	return false
}

// Accept returns the status reached by accepting a request.
func (s ConversationStatus) Accept() (ConversationStatus, error) {
	if s != StatusPending {
		return s, apperrors.ErrInvalidStatusTransition
	}
	return StatusAccepted, nil
}

// Ignore returns the status reached by denying or ignoring a request.
func (s ConversationStatus) Ignore() (ConversationStatus, error) {
	if s != StatusPending {
		return s, apperrors.ErrInvalidStatusTransition
	}
	return StatusIgnored, nil
}

// Active reports whether the status blocks a new request for the same scope.
func (s ConversationStatus) Active() bool {
	return s == StatusPending || s == StatusAccepted
}

// Conversation is the persistent thread between two players, optionally
// scoped to a marketplace listing.
type Conversation struct {
	ID          string             `json:"id"`
	InitiatorID string             `json:"initiator_id"`
	RecipientID string             `json:"recipient_id"`
	Status      ConversationStatus `json:"status"`

	// Marketplace and display context.
	ListingID   string `json:"listing_id,omitempty"`
	ListingName string `json:"listing_name,omitempty"`
	PuzzleID    string `json:"puzzle_id,omitempty"`
	PuzzleName  string `json:"puzzle_name,omitempty"`

	CreatedAt     time.Time  `json:"created_at"`
	RespondedAt   *time.Time `json:"responded_at,omitempty"`
	LastMessageAt *time.Time `json:"last_message_at,omitempty"`
}

// HasParticipant reports whether playerID is the initiator or the recipient.
func (c Conversation) HasParticipant(playerID string) bool {
	return playerID != "" && (c.InitiatorID == playerID || c.RecipientID == playerID)
}

// Counterpart returns the other participant, or "" when playerID is not a
// participant.
func (c Conversation) Counterpart(playerID string) string {
	switch playerID {
	case c.InitiatorID:
		return c.RecipientID
	case c.RecipientID:
		return c.InitiatorID
	}
	return ""
}

// Between reports whether the conversation connects a and b in either
// direction.
func (c Conversation) Between(a, b string) bool {
	return (c.InitiatorID == a && c.RecipientID == b) || (c.InitiatorID == b && c.RecipientID == a)
}

// ConversationFilter selects one of the independently fetchable lists.
type ConversationFilter string

const (
	// FilterInbox is accepted threads plus the viewer's own outgoing requests.
	FilterInbox    ConversationFilter = "inbox"
	FilterAccepted ConversationFilter = "accepted"
	// FilterPending is incoming requests awaiting the viewer's decision.
	FilterPending ConversationFilter = "pending"
	// FilterIgnored is incoming requests the viewer denied or ignored.
	FilterIgnored ConversationFilter = "ignored"
)

// ParseConversationFilter parses a filter query value; empty means inbox.
func ParseConversationFilter(value string) (ConversationFilter, error) {
	switch f := ConversationFilter(value); f {
	case "":
		return FilterInbox, nil
	case FilterInbox, FilterAccepted, FilterPending, FilterIgnored:
		return f, nil
	}
	return "", apperrors.InvalidArg("unknown conversation filter " + value)
}

// Matches reports whether conv belongs to the list for viewer.
func (f ConversationFilter) Matches(conv Conversation, viewerID string) bool {
	switch f {
	case FilterAccepted:
		return conv.Status == StatusAccepted
	case FilterPending:
		return conv.Status == StatusPending && conv.RecipientID == viewerID
	case FilterIgnored:
		return conv.Status == StatusIgnored && conv.RecipientID == viewerID
	default:
		return conv.Status == StatusAccepted || conv.InitiatorID == viewerID
	}
}

// StartConversationRequest is the request to open a conversation.
type StartConversationRequest struct {
	RecipientID string `json:"recipient_id"`
	Content     string `json:"content"`
	ListingID   string `json:"listing_id,omitempty"`
	ListingName string `json:"listing_name,omitempty"`
	PuzzleID    string `json:"puzzle_id,omitempty"`
	PuzzleName  string `json:"puzzle_name,omitempty"`
}

// StartConversationResponse reports where the initial message landed.
type StartConversationResponse struct {
	Conversation Conversation `json:"conversation"`
	Message      Message      `json:"message"`
	// Reused is true when the message was appended to an existing thread.
	Reused bool `json:"reused"`
}

// ConversationOverview is one row of a conversation list as seen by a viewer.
type ConversationOverview struct {
	Conversation
	Counterpart        Player  `json:"counterpart"`
	LastMessagePreview string  `json:"last_message_preview,omitempty"`
	LastMessageSender  *string `json:"last_message_sender_id,omitempty"`
	UnreadCount        int     `json:"unread_count"`
}

// ListConversationsResponse is the response for listing conversations.
type ListConversationsResponse struct {
	Filter        ConversationFilter     `json:"filter"`
	Conversations []ConversationOverview `json:"conversations"`
	Total         int                    `json:"total"`
}

// UnreadCountResponse carries the badge counters for a player.
type UnreadCountResponse struct {
	Unread          int `json:"unread"`
	PendingRequests int `json:"pending_requests"`
}

// ReportConversationRequest is the body of a conversation report.
type ReportConversationRequest struct {
	Reason string `json:"reason"`
}

// ConversationReport is forwarded to the moderation collaborator.
type ConversationReport struct {
	ID             string    `json:"id"`
	ConversationID string    `json:"conversation_id"`
	ReporterID     string    `json:"reporter_id"`
	Reason         string    `json:"reason"`
	CreatedAt      time.Time `json:"created_at"`
}
