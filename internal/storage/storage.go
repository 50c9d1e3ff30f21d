// Package storage defines the persistence contracts of the messaging core.
package storage

import (
	"context"
	"errors"
	"time"

	"github.com/capitalize-ai/player-messaging/internal/model"
)

var (
	// ErrNotFound indicates a missing record.
	ErrNotFound = errors.New("record not found")
	// ErrConflict indicates a conditional write lost against concurrent state.
	ErrConflict = errors.New("conflicting record state")
)

// PlayerStore is the identity read model.
type PlayerStore interface {
	GetPlayer(ctx context.Context, playerID string) (model.Player, error)
	// PutPlayer upserts the identity and moderation fields of a player.
	PutPlayer(ctx context.Context, player model.Player) error
}

// BlockStore persists directed block edges. Both writes are idempotent.
type BlockStore interface {
	PutBlock(ctx context.Context, block model.Block) error
	DeleteBlock(ctx context.Context, blockerID, blockedID string) error
	IsBlocked(ctx context.Context, blockerID, blockedID string) (bool, error)
	ListBlocked(ctx context.Context, blockerID string) ([]model.Block, error)
}

// ConversationScope identifies the pair and optional listing a request is
// made for. Pairs are unordered.
type ConversationScope struct {
	PlayerA   string
	PlayerB   string
	ListingID string
}

// Matches reports whether conv falls in the scope.
func (s ConversationScope) Matches(conv model.Conversation) bool {
	return conv.Between(s.PlayerA, s.PlayerB) && conv.ListingID == s.ListingID
}

// ConversationStore owns conversation records and their transitions.
type ConversationStore interface {
	// CreateConversation inserts conv together with its first message. It
	// returns ErrConflict when an active conversation already exists for the
	// scope of conv, checked atomically with the insert.
	CreateConversation(ctx context.Context, conv model.Conversation, first model.Message) (model.Message, error)
	GetConversation(ctx context.Context, conversationID string) (model.Conversation, error)
	// FindConversations returns conversations between the pair ordered by
	// most recent activity. An empty status list matches every status.
	FindConversations(ctx context.Context, playerA, playerB string, statuses ...model.ConversationStatus) ([]model.Conversation, error)
	// TransitionConversation moves a conversation from one status to another.
	// It returns ErrConflict when the stored status is no longer from.
	TransitionConversation(ctx context.Context, conversationID string, from, to model.ConversationStatus, at time.Time) error
	// ListConversationsByPlayer returns every conversation the player takes
	// part in, most recent activity first.
	ListConversationsByPlayer(ctx context.Context, playerID string) ([]model.Conversation, error)
	ListConversationsByListing(ctx context.Context, listingID string) ([]model.Conversation, error)
	CountPendingRequests(ctx context.Context, recipientID string) (int, error)
}

// MessageStore owns ordered messages and their read state.
type MessageStore interface {
	// AppendMessage stores msg, assigns its sequence and moves the
	// conversation's last-message-at to msg.SentAt.
	AppendMessage(ctx context.Context, msg model.Message) (model.Message, error)
	ListMessages(ctx context.Context, conversationID string, offset, limit int) ([]model.Message, error)
	LastMessage(ctx context.Context, conversationID string) (model.Message, error)
	// MarkRead sets read_at on every unread message in the conversation not
	// sent by viewerID and returns how many rows changed.
	MarkRead(ctx context.Context, conversationID, viewerID string, at time.Time) (int, error)
	CountUnread(ctx context.Context, playerID string) (int, error)
	CountUnreadInConversation(ctx context.Context, conversationID, playerID string) (int, error)
	// ListUnread returns the messages counted by CountUnread, oldest first.
	ListUnread(ctx context.Context, playerID string) ([]model.UnreadMessage, error)
}

// NotificationLogStore keeps the digest watermark per player.
type NotificationLogStore interface {
	GetNotificationLog(ctx context.Context, playerID string) (model.NotificationLogEntry, error)
	PutNotificationLog(ctx context.Context, entry model.NotificationLogEntry) error
	// ListDigestCandidates returns, sorted, the players with at least one
	// unread message sent before cutoff and after their watermark.
	ListDigestCandidates(ctx context.Context, cutoff time.Time) ([]string, error)
}

// Store is the full persistence surface.
type Store interface {
	PlayerStore
	BlockStore
	ConversationStore
	MessageStore
	NotificationLogStore
	Ping(ctx context.Context) error
	Close() error
}
