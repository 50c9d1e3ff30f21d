package service

import (
	"context"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/capitalize-ai/player-messaging/internal/model"
	"github.com/capitalize-ai/player-messaging/internal/storage"
	"github.com/capitalize-ai/player-messaging/pkg/logger"
	"github.com/capitalize-ai/player-messaging/pkg/metrics"
)

// Conversation list change kinds.
const (
	ListNewRequest  = "new_request"
	ListAccepted    = "accepted"
	ListIgnored     = "ignored"
	ListChanged     = "list_changed"
	topicTyping     = "typing"
	topicRead       = "read"
	topicMessage    = "message"
	topicListPrefix = "conversations/"
	topicUnread     = "unread-count/"
)

// TypingTopic carries typing indicators for one conversation.
func TypingTopic(conversationID string) string {
	return "conversation/" + conversationID + "/" + topicTyping
}

// ReadTopic carries receipts for the messages playerID sent in one
// conversation.
func ReadTopic(conversationID, playerID string) string {
	return "conversation/" + conversationID + "/" + topicRead + "/" + playerID
}

// MessageTopic carries new messages of one conversation.
func MessageTopic(conversationID string) string {
	return "conversation/" + conversationID + "/" + topicMessage
}

// ConversationsTopic carries list changes for one player.
func ConversationsTopic(playerID string) string {
	return topicListPrefix + playerID
}

// UnreadCountTopic carries badge counters for one player.
func UnreadCountTopic(playerID string) string {
	return topicUnread + playerID
}

// TypingEvent is published on TypingTopic.
type TypingEvent struct {
	ConversationID string    `json:"conversation_id"`
	PlayerID       string    `json:"player_id"`
	At             time.Time `json:"at"`
}

// ReadEvent is published on ReadTopic.
type ReadEvent struct {
	ConversationID string    `json:"conversation_id"`
	PlayerID       string    `json:"player_id"`
	Marked         int       `json:"marked"`
	ReadAt         time.Time `json:"read_at"`
}

// MessageEvent is published on MessageTopic. System messages carry no
// rendered text: subscribers render per viewer.
type MessageEvent struct {
	Message model.Message `json:"message"`
}

// ConversationListEvent is published on ConversationsTopic.
type ConversationListEvent struct {
	Type           string                   `json:"type"`
	ConversationID string                   `json:"conversation_id"`
	Status         model.ConversationStatus `json:"status"`
}

// UnreadCountEvent is published on UnreadCountTopic.
type UnreadCountEvent struct {
	PlayerID string `json:"player_id"`
	model.UnreadCountResponse
}

// hub wraps a Notifier: publish failures are logged and counted, never
// returned to callers.
type hub struct {
	notifier      Notifier
	conversations storage.ConversationStore
	messages      storage.MessageStore
	logger        *logger.Logger
}

func newHub(notifier Notifier, conversations storage.ConversationStore, messages storage.MessageStore, log *logger.Logger) *hub {
	if notifier == nil {
		notifier = nopNotifier{}
	}
	if log == nil {
		log = logger.Nop()
	}
	return &hub{notifier: notifier, conversations: conversations, messages: messages, logger: log}
}

func (h *hub) publish(ctx context.Context, topic string, payload any) {
	if err := h.notifier.Publish(ctx, topic, payload); err != nil {
		metrics.HubPublishFailuresTotal.WithLabelValues(topicLabel(topic)).Inc()
		h.logger.Warn("hub publish failed",
			zap.String("topic", topic),
			zap.Error(err),
		)
	}
}

func (h *hub) listChanged(ctx context.Context, playerID, kind string, conv model.Conversation) {
	h.publish(ctx, ConversationsTopic(playerID), ConversationListEvent{
		Type:           kind,
		ConversationID: conv.ID,
		Status:         conv.Status,
	})
}

// unreadCounts publishes fresh badge counters for each player.
func (h *hub) unreadCounts(ctx context.Context, playerIDs ...string) {
	for _, playerID := range playerIDs {
		counts, err := unreadCounts(ctx, h.conversations, h.messages, playerID)
		if err != nil {
			h.logger.Warn("count unread for hub failed",
				zap.String("player_id", playerID),
				zap.Error(err),
			)
			continue
		}
		h.publish(ctx, UnreadCountTopic(playerID), UnreadCountEvent{
			PlayerID:            playerID,
			UnreadCountResponse: counts,
		})
	}
}

func unreadCounts(ctx context.Context, conversations storage.ConversationStore, messages storage.MessageStore, playerID string) (model.UnreadCountResponse, error) {
	unread, err := messages.CountUnread(ctx, playerID)
	if err != nil {
		return model.UnreadCountResponse{}, internal("count unread", err)
	}
	pending, err := conversations.CountPendingRequests(ctx, playerID)
	if err != nil {
		return model.UnreadCountResponse{}, internal("count pending requests", err)
	}
	return model.UnreadCountResponse{Unread: unread, PendingRequests: pending}, nil
}

// topicLabel keeps metric cardinality bounded by dropping ids.
func topicLabel(topic string) string {
	switch {
	case strings.HasPrefix(topic, topicListPrefix):
		return "conversations"
	case strings.HasPrefix(topic, topicUnread):
		return "unread-count"
	case strings.HasSuffix(topic, "/"+topicTyping):
		return topicTyping
	case strings.HasSuffix(topic, "/"+topicMessage):
		return topicMessage
	}
	return topicRead
}
