package service

import (
	"context"
	"errors"
	"strings"
	"unicode/utf8"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/capitalize-ai/player-messaging/internal/model"
	"github.com/capitalize-ai/player-messaging/internal/render"
	"github.com/capitalize-ai/player-messaging/internal/storage"
	apperrors "github.com/capitalize-ai/player-messaging/pkg/errors"
	"github.com/capitalize-ai/player-messaging/pkg/logger"
	"github.com/capitalize-ai/player-messaging/pkg/metrics"
)

// MaxReportReasonLength is the number of runes accepted in a report reason.
const MaxReportReasonLength = 1000

// Dependencies are the collaborators shared by the orchestrator services.
type Dependencies struct {
	Store      storage.Store
	Notifier   Notifier
	Moderation Moderation
	Reports    ReportSink
}

func (d Dependencies) withDefaults() Dependencies {
	if d.Moderation == nil {
		d.Moderation = NewPlayerModeration(d.Store)
	}
	if d.Reports == nil {
		d.Reports = nopReportSink{}
	}
	return d
}

// ConversationService handles the conversation lifecycle.
type ConversationService struct {
	store      storage.Store
	moderation Moderation
	reports    ReportSink
	hub        *hub
	logger     *logger.Logger
	opts       options
}

// NewConversationService creates a new conversation service.
func NewConversationService(deps Dependencies, log *logger.Logger, opts ...Option) *ConversationService {
	deps = deps.withDefaults()
	if log == nil {
		log = logger.Nop()
	}
	log = log.Named("conversations")
	return &ConversationService{
		store:      deps.Store,
		moderation: deps.Moderation,
		reports:    deps.Reports,
		hub:        newHub(deps.Notifier, deps.Store, deps.Store, log),
		logger:     log,
		opts:       newOptions(opts),
	}
}

// Start opens a conversation request, or appends the message to the thread
// the pair already talks in.
func (s *ConversationService) Start(ctx context.Context, initiatorID string, req *model.StartConversationRequest) (resp *model.StartConversationResponse, err error) {
	ctx, span := tracer.Start(ctx, "ConversationService.Start")
	defer func() { finishSpan(span, err) }()

	recipientID := strings.TrimSpace(req.RecipientID)
	listingID := strings.TrimSpace(req.ListingID)
	span.SetAttributes(
		attribute.String("player.initiator", initiatorID),
		attribute.String("player.recipient", recipientID),
		attribute.String("listing.id", listingID),
	)

	if recipientID == "" {
		return nil, apperrors.InvalidArg("recipient_id is required")
	}
	if recipientID == initiatorID {
		return nil, apperrors.ErrSelfConversation
	}
	content, err := normalizeContent(req.Content, s.opts.maxLength)
	if err != nil {
		return nil, err
	}
	if err := ensureMayMessage(ctx, s.moderation, initiatorID, s.opts.clock()); err != nil {
		return nil, err
	}
	if err := ensureNotBlocked(ctx, s.store, initiatorID, recipientID); err != nil {
		return nil, err
	}
	recipient, err := loadPlayer(ctx, s.store, recipientID)
	if err != nil {
		return nil, err
	}

	accepted, err := s.store.FindConversations(ctx, initiatorID, recipientID, model.StatusAccepted)
	if err != nil {
		return nil, internal("find accepted conversations", err)
	}
	if thread, ok := reusableThread(accepted, listingID); ok {
		return s.appendToThread(ctx, thread, initiatorID, content)
	}

	status := model.StatusPending
	switch {
	case len(accepted) > 0:
		// The pair already talks; a new listing enquiry skips the request step.
		status = model.StatusAccepted
	case listingID == "" && !recipient.AllowDirectMessages:
		return nil, apperrors.ErrDirectMessagesDisabled
	}

	if status == model.StatusPending {
		pending, err := s.store.FindConversations(ctx, initiatorID, recipientID, model.StatusPending)
		if err != nil {
			return nil, internal("find pending conversations", err)
		}
		for _, conv := range pending {
			if conv.ListingID == listingID {
				return nil, apperrors.ErrConversationRequestAlreadyPending
			}
		}
	}

	now := s.opts.clock()
	conv := model.Conversation{
		ID:          s.opts.newID(),
		InitiatorID: initiatorID,
		RecipientID: recipientID,
		Status:      status,
		ListingID:   listingID,
		ListingName: strings.TrimSpace(req.ListingName),
		PuzzleID:    strings.TrimSpace(req.PuzzleID),
		PuzzleName:  strings.TrimSpace(req.PuzzleName),
		CreatedAt:   now,
	}
	if status == model.StatusAccepted {
		conv.RespondedAt = &now
	}
	first := model.Message{
		ID:       s.opts.newID(),
		SenderID: initiatorID,
		Content:  content,
		SentAt:   now,
	}

	stored, err := s.store.CreateConversation(ctx, conv, first)
	if errors.Is(err, storage.ErrConflict) {
		return nil, apperrors.ErrConversationRequestAlreadyPending
	}
	if err != nil {
		return nil, internal("create conversation", err)
	}
	conv.LastMessageAt = &stored.SentAt

	metrics.RecordConversation(string(status), listingID != "")
	metrics.MessagesTotal.WithLabelValues("player").Inc()
	s.logger.Info("conversation started",
		zap.String("conversation_id", conv.ID),
		zap.String("initiator_id", initiatorID),
		zap.String("recipient_id", recipientID),
		zap.String("status", string(status)),
		zap.String("listing_id", listingID),
	)

	if status == model.StatusPending {
		s.hub.listChanged(ctx, recipientID, ListNewRequest, conv)
	} else {
		s.hub.publish(ctx, MessageTopic(conv.ID), MessageEvent{Message: stored})
		s.hub.listChanged(ctx, recipientID, ListChanged, conv)
	}
	s.hub.listChanged(ctx, initiatorID, ListChanged, conv)
	s.hub.unreadCounts(ctx, recipientID)

	return &model.StartConversationResponse{Conversation: conv, Message: stored}, nil
}

// reusableThread picks the accepted thread a start request lands in:
// the most recent one without a listing, or the one for the same listing.
func reusableThread(accepted []model.Conversation, listingID string) (model.Conversation, bool) {
	if listingID == "" {
		if len(accepted) > 0 {
			return accepted[0], true
		}
		return model.Conversation{}, false
	}
	for _, conv := range accepted {
		if conv.ListingID == listingID {
			return conv, true
		}
	}
	return model.Conversation{}, false
}

func (s *ConversationService) appendToThread(ctx context.Context, conv model.Conversation, senderID, content string) (*model.StartConversationResponse, error) {
	msg, err := appendPlayerMessage(ctx, s.store, s.hub, s.opts, conv, senderID, content)
	if err != nil {
		return nil, err
	}
	conv.LastMessageAt = &msg.SentAt
	s.logger.Debug("start reused accepted conversation",
		zap.String("conversation_id", conv.ID),
		zap.String("sender_id", senderID),
	)
	return &model.StartConversationResponse{Conversation: conv, Message: msg, Reused: true}, nil
}

// Accept accepts a pending request. Only the recipient may respond.
func (s *ConversationService) Accept(ctx context.Context, conversationID, playerID string) (*model.Conversation, error) {
	return s.respond(ctx, "ConversationService.Accept", conversationID, playerID, model.ConversationStatus.Accept)
}

// Deny turns a pending request down. It reaches the same state as Ignore.
func (s *ConversationService) Deny(ctx context.Context, conversationID, playerID string) (*model.Conversation, error) {
	return s.respond(ctx, "ConversationService.Deny", conversationID, playerID, model.ConversationStatus.Ignore)
}

// Ignore moves a pending request out of the pending list without telling
// the initiator.
func (s *ConversationService) Ignore(ctx context.Context, conversationID, playerID string) (*model.Conversation, error) {
	return s.respond(ctx, "ConversationService.Ignore", conversationID, playerID, model.ConversationStatus.Ignore)
}

func (s *ConversationService) respond(ctx context.Context, op, conversationID, playerID string, transition func(model.ConversationStatus) (model.ConversationStatus, error)) (conv *model.Conversation, err error) {
	ctx, span := tracer.Start(ctx, op)
	defer func() { finishSpan(span, err) }()
	span.SetAttributes(attribute.String("conversation.id", conversationID))

	current, err := loadForParticipant(ctx, s.store, conversationID, playerID)
	if err != nil {
		return nil, err
	}
	if current.RecipientID != playerID {
		return nil, apperrors.ErrNotRecipient
	}
	next, err := transition(current.Status)
	if err != nil {
		return nil, err
	}

	now := s.opts.clock()
	err = s.store.TransitionConversation(ctx, conversationID, current.Status, next, now)
	switch {
	case errors.Is(err, storage.ErrConflict):
		return nil, apperrors.ErrInvalidStatusTransition
	case errors.Is(err, storage.ErrNotFound):
		return nil, apperrors.ErrConversationNotFound
	case err != nil:
		return nil, internal("transition conversation", err)
	}
	current.Status = next
	current.RespondedAt = &now

	metrics.ConversationTransitionsTotal.WithLabelValues(string(next)).Inc()
	s.logger.Info("conversation request answered",
		zap.String("conversation_id", conversationID),
		zap.String("player_id", playerID),
		zap.String("status", string(next)),
	)

	if next == model.StatusAccepted {
		s.hub.listChanged(ctx, current.InitiatorID, ListAccepted, current)
		s.hub.listChanged(ctx, current.RecipientID, ListChanged, current)
		s.hub.unreadCounts(ctx, current.RecipientID, current.InitiatorID)
	} else {
		s.hub.listChanged(ctx, current.RecipientID, ListIgnored, current)
		s.hub.unreadCounts(ctx, current.RecipientID)
	}
	return &current, nil
}

// Get returns one conversation as seen by a participant.
func (s *ConversationService) Get(ctx context.Context, conversationID, viewerID string) (*model.ConversationOverview, error) {
	conv, err := loadForParticipant(ctx, s.store, conversationID, viewerID)
	if err != nil {
		return nil, err
	}
	loc, err := s.localizerFor(ctx, viewerID)
	if err != nil {
		return nil, err
	}
	overview, err := s.overview(ctx, loc, conv, viewerID)
	if err != nil {
		return nil, err
	}
	return &overview, nil
}

// List returns the viewer's conversations for one filter, most recent
// activity first. Threads with players the viewer blocked are hidden from
// the inbox and accepted lists.
func (s *ConversationService) List(ctx context.Context, viewerID string, filter model.ConversationFilter) (resp *model.ListConversationsResponse, err error) {
	ctx, span := tracer.Start(ctx, "ConversationService.List")
	defer func() { finishSpan(span, err) }()
	span.SetAttributes(attribute.String("filter", string(filter)))

	convs, err := s.store.ListConversationsByPlayer(ctx, viewerID)
	if err != nil {
		return nil, internal("list conversations", err)
	}

	hidden := map[string]bool{}
	if filter == model.FilterInbox || filter == model.FilterAccepted {
		blocks, err := s.store.ListBlocked(ctx, viewerID)
		if err != nil {
			return nil, internal("list blocks", err)
		}
		for _, block := range blocks {
			hidden[block.BlockedID] = true
		}
	}

	loc, err := s.localizerFor(ctx, viewerID)
	if err != nil {
		return nil, err
	}

	overviews := make([]model.ConversationOverview, 0, len(convs))
	for _, conv := range convs {
		if !filter.Matches(conv, viewerID) || hidden[conv.Counterpart(viewerID)] {
			continue
		}
		overview, err := s.overview(ctx, loc, conv, viewerID)
		if err != nil {
			return nil, err
		}
		overviews = append(overviews, overview)
	}

	return &model.ListConversationsResponse{
		Filter:        filter,
		Conversations: overviews,
		Total:         len(overviews),
	}, nil
}

func (s *ConversationService) overview(ctx context.Context, loc render.Localizer, conv model.Conversation, viewerID string) (model.ConversationOverview, error) {
	counterpart, err := playerOrPlaceholder(ctx, s.store, conv.Counterpart(viewerID))
	if err != nil {
		return model.ConversationOverview{}, err
	}
	overview := model.ConversationOverview{
		Conversation: conv,
		Counterpart:  counterpart.Public(),
	}

	last, err := s.store.LastMessage(ctx, conv.ID)
	switch {
	case errors.Is(err, storage.ErrNotFound):
	case err != nil:
		return model.ConversationOverview{}, internal("load last message", err)
	default:
		overview.LastMessagePreview = render.Message(loc, last, conv, viewerID)
		if !last.IsSystem() {
			sender := last.SenderID
			overview.LastMessageSender = &sender
		}
	}

	unread, err := s.store.CountUnreadInConversation(ctx, conv.ID, viewerID)
	if err != nil {
		return model.ConversationOverview{}, internal("count unread", err)
	}
	overview.UnreadCount = unread
	return overview, nil
}

func (s *ConversationService) localizerFor(ctx context.Context, playerID string) (render.Localizer, error) {
	return localizerFor(ctx, s.store, playerID, s.opts.defaultLocale)
}

// UnreadCounts returns the badge counters of a player.
func (s *ConversationService) UnreadCounts(ctx context.Context, playerID string) (*model.UnreadCountResponse, error) {
	counts, err := unreadCounts(ctx, s.store, s.store, playerID)
	if err != nil {
		return nil, err
	}
	return &counts, nil
}

// CountPendingRequests returns how many requests await the player's answer.
func (s *ConversationService) CountPendingRequests(ctx context.Context, playerID string) (int, error) {
	count, err := s.store.CountPendingRequests(ctx, playerID)
	if err != nil {
		return 0, internal("count pending requests", err)
	}
	return count, nil
}

// Report forwards a participant's complaint about a conversation to
// moderation.
func (s *ConversationService) Report(ctx context.Context, conversationID, reporterID string, req *model.ReportConversationRequest) (report *model.ConversationReport, err error) {
	ctx, span := tracer.Start(ctx, "ConversationService.Report")
	defer func() { finishSpan(span, err) }()
	span.SetAttributes(attribute.String("conversation.id", conversationID))

	reason := strings.TrimSpace(req.Reason)
	if reason == "" {
		return nil, apperrors.InvalidArg("reason is required")
	}
	if utf8.RuneCountInString(reason) > MaxReportReasonLength {
		return nil, apperrors.InvalidArg("reason is too long")
	}
	if _, err := loadForParticipant(ctx, s.store, conversationID, reporterID); err != nil {
		return nil, err
	}

	report = &model.ConversationReport{
		ID:             s.opts.newID(),
		ConversationID: conversationID,
		ReporterID:     reporterID,
		Reason:         reason,
		CreatedAt:      s.opts.clock(),
	}
	if err := s.reports.SubmitReport(ctx, *report); err != nil {
		return nil, internal("submit report", err)
	}

	s.logger.Info("conversation reported",
		zap.String("conversation_id", conversationID),
		zap.String("reporter_id", reporterID),
		zap.String("report_id", report.ID),
	)
	return report, nil
}
