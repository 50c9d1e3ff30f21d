package model

import (
	"strconv"
	"time"
)

// NotificationLogEntry is the per-player digest watermark. Messages at or
// before the boundary have already been reported.
type NotificationLogEntry struct {
	PlayerID          string    `json:"player_id"`
	NotifiedAt        time.Time `json:"notified_at"`
	BoundarySentAt    time.Time `json:"boundary_sent_at"`
	BoundarySequence  uint64    `json:"boundary_sequence"`
	BoundaryMessageID string    `json:"boundary_message_id"`
	MessagesIncluded  int       `json:"messages_included"`
}

// Covers reports whether msg is at or before the boundary.
func (e NotificationLogEntry) Covers(msg Message) bool {
	if msg.SentAt.Before(e.BoundarySentAt) {
		return true
	}
	return msg.SentAt.Equal(e.BoundarySentAt) && msg.Sequence <= e.BoundarySequence
}

// DigestSenderSummary groups a player's unread messages from one sender in
// one listing or puzzle context.
type DigestSenderSummary struct {
	SenderID       string    `json:"sender_id,omitempty"`
	SenderName     string    `json:"sender_name"`
	SenderAvatar   string    `json:"sender_avatar,omitempty"`
	ConversationID string    `json:"conversation_id"`
	ListingID      string    `json:"listing_id,omitempty"`
	ListingName    string    `json:"listing_name,omitempty"`
	PuzzleID       string    `json:"puzzle_id,omitempty"`
	PuzzleName     string    `json:"puzzle_name,omitempty"`
	UnreadCount    int       `json:"unread_count"`
	OldestUnreadAt time.Time `json:"oldest_unread_at"`
}

// DigestEmail is the outbound "send digest email" command.
type DigestEmail struct {
	PlayerID                string                `json:"player_id"`
	Email                   string                `json:"email"`
	Locale                  string                `json:"locale"`
	Subject                 string                `json:"subject"`
	DisplayName             string                `json:"display_name"`
	Summaries               []DigestSenderSummary `json:"summaries"`
	TotalUnread             int                   `json:"total_unread"`
	PendingRequestCount     int                   `json:"pending_request_count"`
	UnreadNotificationCount int                   `json:"unread_notification_count"`
	BoundarySentAt          time.Time             `json:"boundary_sent_at"`
	BoundarySequence        uint64                `json:"boundary_sequence"`
	GeneratedAt             time.Time             `json:"generated_at"`
}

// DedupKey identifies this digest for broker-side duplicate suppression.
func (d DigestEmail) DedupKey() string {
	return d.PlayerID + ":" + strconv.FormatUint(d.BoundarySequence, 10)
}
