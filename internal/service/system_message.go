package service

import (
	"context"
	"strings"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/capitalize-ai/player-messaging/internal/model"
	"github.com/capitalize-ai/player-messaging/internal/storage"
	apperrors "github.com/capitalize-ai/player-messaging/pkg/errors"
	"github.com/capitalize-ai/player-messaging/pkg/logger"
	"github.com/capitalize-ai/player-messaging/pkg/metrics"
)

// SystemMessageService posts marketplace events into every conversation
// about a listing.
type SystemMessageService struct {
	store  storage.Store
	hub    *hub
	logger *logger.Logger
	opts   options
}

// NewSystemMessageService creates a new system message service.
func NewSystemMessageService(deps Dependencies, log *logger.Logger, opts ...Option) *SystemMessageService {
	if log == nil {
		log = logger.Nop()
	}
	log = log.Named("system_messages")
	return &SystemMessageService{
		store:  deps.Store,
		hub:    newHub(deps.Notifier, deps.Store, deps.Store, log),
		logger: log,
		opts:   newOptions(opts),
	}
}

// ListingReserved announces that a listing was reserved, optionally for a
// specific player.
func (s *SystemMessageService) ListingReserved(ctx context.Context, listingID, targetPlayerID string) (int, error) {
	return s.Post(ctx, listingID, model.SystemListingReserved, targetPlayerID)
}

// ListingReservationRemoved announces that a reservation was lifted.
func (s *SystemMessageService) ListingReservationRemoved(ctx context.Context, listingID string) (int, error) {
	return s.Post(ctx, listingID, model.SystemListingReservationRemoved, "")
}

// ListingSold announces a sale, optionally naming the buyer.
func (s *SystemMessageService) ListingSold(ctx context.Context, listingID, buyerID string) (int, error) {
	return s.Post(ctx, listingID, model.SystemListingSold, buyerID)
}

// Post appends one system message of typ to each conversation linked to
// listingID and returns how many were written. Every conversation of the
// listing gets the message regardless of its status.
func (s *SystemMessageService) Post(ctx context.Context, listingID string, typ model.SystemMessageType, targetPlayerID string) (posted int, err error) {
	ctx, span := tracer.Start(ctx, "SystemMessageService.Post")
	defer func() { finishSpan(span, err) }()

	listingID = strings.TrimSpace(listingID)
	targetPlayerID = strings.TrimSpace(targetPlayerID)
	span.SetAttributes(
		attribute.String("listing.id", listingID),
		attribute.String("system.type", string(typ)),
	)
	if listingID == "" {
		return 0, apperrors.InvalidArg("listing_id is required")
	}
	if !typ.Valid() {
		return 0, apperrors.InvalidArg("unknown system message type " + string(typ))
	}

	convs, err := s.store.ListConversationsByListing(ctx, listingID)
	if err != nil {
		return 0, internal("list listing conversations", err)
	}

	now := s.opts.clock()
	affected := make([]string, 0, 2*len(convs))
	seen := map[string]bool{}
	for _, conv := range convs {
		stored, err := s.store.AppendMessage(ctx, model.Message{
			ID:             s.opts.newID(),
			ConversationID: conv.ID,
			SystemType:     typ,
			SystemTargetID: targetPlayerID,
			SentAt:         now,
		})
		if err != nil {
			return posted, internal("append system message", err)
		}
		posted++
		metrics.MessagesTotal.WithLabelValues("system").Inc()
		s.hub.publish(ctx, MessageTopic(conv.ID), MessageEvent{Message: stored})

		for _, playerID := range []string{conv.InitiatorID, conv.RecipientID} {
			if !seen[playerID] {
				seen[playerID] = true
				affected = append(affected, playerID)
			}
		}
	}

	for _, playerID := range affected {
		s.hub.publish(ctx, ConversationsTopic(playerID), ConversationListEvent{Type: ListChanged})
	}
	s.hub.unreadCounts(ctx, affected...)

	s.logger.Info("system message posted",
		zap.String("listing_id", listingID),
		zap.String("type", string(typ)),
		zap.Int("conversations", posted),
	)
	return posted, nil
}
