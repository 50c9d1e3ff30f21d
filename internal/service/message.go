package service

import (
	"context"
	"errors"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/capitalize-ai/player-messaging/internal/model"
	"github.com/capitalize-ai/player-messaging/internal/render"
	"github.com/capitalize-ai/player-messaging/internal/storage"
	apperrors "github.com/capitalize-ai/player-messaging/pkg/errors"
	"github.com/capitalize-ai/player-messaging/pkg/logger"
	"github.com/capitalize-ai/player-messaging/pkg/metrics"
)

// MessageService handles message operations.
type MessageService struct {
	store      storage.Store
	moderation Moderation
	hub        *hub
	logger     *logger.Logger
	opts       options
}

// NewMessageService creates a new message service.
func NewMessageService(deps Dependencies, log *logger.Logger, opts ...Option) *MessageService {
	deps = deps.withDefaults()
	if log == nil {
		log = logger.Nop()
	}
	log = log.Named("messages")
	return &MessageService{
		store:      deps.Store,
		moderation: deps.Moderation,
		hub:        newHub(deps.Notifier, deps.Store, deps.Store, log),
		logger:     log,
		opts:       newOptions(opts),
	}
}

// Send appends a player message to an accepted conversation.
func (s *MessageService) Send(ctx context.Context, conversationID, senderID string, req *model.SendMessageRequest) (msg *model.Message, err error) {
	ctx, span := tracer.Start(ctx, "MessageService.Send")
	defer func() { finishSpan(span, err) }()
	span.SetAttributes(attribute.String("conversation.id", conversationID))

	conv, err := loadForParticipant(ctx, s.store, conversationID, senderID)
	if err != nil {
		return nil, err
	}
	if err := ensureMayMessage(ctx, s.moderation, senderID, s.opts.clock()); err != nil {
		return nil, err
	}
	if err := ensureNotBlocked(ctx, s.store, senderID, conv.Counterpart(senderID)); err != nil {
		return nil, err
	}
	if conv.Status != model.StatusAccepted {
		return nil, apperrors.ErrConversationNotAccepted
	}
	content, err := normalizeContent(req.Content, s.opts.maxLength)
	if err != nil {
		return nil, err
	}

	stored, err := appendPlayerMessage(ctx, s.store, s.hub, s.opts, conv, senderID, content)
	if err != nil {
		return nil, err
	}
	s.logger.Debug("message sent",
		zap.String("conversation_id", conversationID),
		zap.String("message_id", stored.ID),
		zap.String("sender_id", senderID),
	)
	return &stored, nil
}

// appendPlayerMessage stores a human message and fans out the hub updates.
func appendPlayerMessage(ctx context.Context, messages storage.MessageStore, h *hub, opts options, conv model.Conversation, senderID, content string) (model.Message, error) {
	stored, err := messages.AppendMessage(ctx, model.Message{
		ID:             opts.newID(),
		ConversationID: conv.ID,
		SenderID:       senderID,
		Content:        content,
		SentAt:         opts.clock(),
	})
	if errors.Is(err, storage.ErrNotFound) {
		return model.Message{}, apperrors.ErrConversationNotFound
	}
	if err != nil {
		return model.Message{}, internal("append message", err)
	}
	metrics.MessagesTotal.WithLabelValues("player").Inc()

	recipientID := conv.Counterpart(senderID)
	h.publish(ctx, MessageTopic(conv.ID), MessageEvent{Message: stored})
	h.listChanged(ctx, recipientID, ListChanged, conv)
	h.listChanged(ctx, senderID, ListChanged, conv)
	h.unreadCounts(ctx, recipientID)
	return stored, nil
}

// MarkAsRead marks every message the viewer received in the conversation
// as read. Only accepted conversations have read state.
func (s *MessageService) MarkAsRead(ctx context.Context, conversationID, playerID string) (resp *model.MarkReadResponse, err error) {
	ctx, span := tracer.Start(ctx, "MessageService.MarkAsRead")
	defer func() { finishSpan(span, err) }()
	span.SetAttributes(attribute.String("conversation.id", conversationID))

	conv, err := loadForParticipant(ctx, s.store, conversationID, playerID)
	if err != nil {
		return nil, err
	}
	if conv.Status != model.StatusAccepted {
		return &model.MarkReadResponse{}, nil
	}

	now := s.opts.clock()
	marked, err := s.store.MarkRead(ctx, conversationID, playerID, now)
	if err != nil {
		return nil, internal("mark read", err)
	}
	span.SetAttributes(attribute.Int("messages.marked", marked))
	if marked > 0 {
		metrics.MessagesReadTotal.Add(float64(marked))
		// Receipts go to the topic of the player whose messages were read.
		s.hub.publish(ctx, ReadTopic(conversationID, conv.Counterpart(playerID)), ReadEvent{
			ConversationID: conversationID,
			PlayerID:       playerID,
			Marked:         marked,
			ReadAt:         now,
		})
		s.hub.unreadCounts(ctx, playerID)
	}
	return &model.MarkReadResponse{Marked: marked}, nil
}

// List returns a page of the conversation in chronological order, with
// system messages rendered for the viewer.
func (s *MessageService) List(ctx context.Context, conversationID, viewerID string, offset, limit int) (*model.ListMessagesResponse, error) {
	conv, err := loadForParticipant(ctx, s.store, conversationID, viewerID)
	if err != nil {
		return nil, err
	}
	offset, limit = clampPage(offset, limit)

	msgs, err := s.store.ListMessages(ctx, conversationID, offset, limit+1)
	if err != nil {
		return nil, internal("list messages", err)
	}
	hasMore := len(msgs) > limit
	if hasMore {
		msgs = msgs[:limit]
	}

	loc, err := localizerFor(ctx, s.store, viewerID, s.opts.defaultLocale)
	if err != nil {
		return nil, err
	}
	views := make([]model.MessageView, 0, len(msgs))
	for _, msg := range msgs {
		views = append(views, messageView(loc, msg, conv, viewerID))
	}

	return &model.ListMessagesResponse{
		Messages: views,
		Offset:   offset,
		Limit:    limit,
		HasMore:  hasMore,
	}, nil
}

func messageView(loc render.Localizer, msg model.Message, conv model.Conversation, viewerID string) model.MessageView {
	return model.MessageView{
		ID:             msg.ID,
		ConversationID: msg.ConversationID,
		SenderID:       msg.SenderID,
		Content:        render.Message(loc, msg, conv, viewerID),
		IsSystem:       msg.IsSystem(),
		IsOwn:          !msg.IsSystem() && msg.SenderID == viewerID,
		SystemType:     msg.SystemType,
		SentAt:         msg.SentAt,
		ReadAt:         msg.ReadAt,
	}
}

// NotifyTyping tells the other participant the player is typing. Nothing
// is stored.
func (s *MessageService) NotifyTyping(ctx context.Context, conversationID, playerID string) error {
	conv, err := loadForParticipant(ctx, s.store, conversationID, playerID)
	if err != nil {
		return err
	}
	if conv.Status != model.StatusAccepted {
		return apperrors.ErrConversationNotAccepted
	}
	s.hub.publish(ctx, TypingTopic(conversationID), TypingEvent{
		ConversationID: conversationID,
		PlayerID:       playerID,
		At:             s.opts.clock(),
	})
	return nil
}

// CountUnread returns the unread message badge of a player.
func (s *MessageService) CountUnread(ctx context.Context, playerID string) (int, error) {
	count, err := s.store.CountUnread(ctx, playerID)
	if err != nil {
		return 0, internal("count unread", err)
	}
	return count, nil
}
