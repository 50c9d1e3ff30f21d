package nats

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/capitalize-ai/player-messaging/pkg/logger"
)

// ListingEvent is the payload of every marketplace listing subject.
type ListingEvent struct {
	ListingID string `json:"listing_id"`
	PlayerID  string `json:"player_id,omitempty"`
}

// ListingHandler applies listing events to conversations.
type ListingHandler interface {
	ListingReserved(ctx context.Context, listingID, targetPlayerID string) (int, error)
	ListingReservationRemoved(ctx context.Context, listingID string) (int, error)
	ListingSold(ctx context.Context, listingID, buyerID string) (int, error)
}

// queueSubscriber is satisfied by *nats.Conn.
type queueSubscriber interface {
	QueueSubscribe(subject, queue string, cb nats.MsgHandler) (*nats.Subscription, error)
}

// ListingSubscriber consumes marketplace listing events.
type ListingSubscriber struct {
	conn    queueSubscriber
	handler ListingHandler
	timeout time.Duration
	logger  *logger.Logger
	subs    []*nats.Subscription
}

// NewListingSubscriber creates a subscriber that applies events through
// handler, giving each event at most timeout.
func NewListingSubscriber(conn queueSubscriber, handler ListingHandler, timeout time.Duration, log *logger.Logger) *ListingSubscriber {
	if log == nil {
		log = logger.Nop()
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &ListingSubscriber{
		conn:    conn,
		handler: handler,
		timeout: timeout,
		logger:  log.Named("listing_events"),
	}
}

// Subscribe starts consuming the listing subjects in the shared queue group.
func (s *ListingSubscriber) Subscribe() error {
	for _, subject := range []string{SubjectListingReserved, SubjectListingReservationRemoved, SubjectListingSold} {
		sub, err := s.conn.QueueSubscribe(subject, QueueGroup, func(msg *nats.Msg) {
			ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
			defer cancel()
			if err := s.Handle(ctx, msg.Subject, msg.Data); err != nil {
				s.logger.Error("listing event failed",
					zap.String("subject", msg.Subject),
					zap.Error(err),
				)
			}
		})
		if err != nil {
			s.Unsubscribe()
			return fmt.Errorf("failed to subscribe to %s: %w", subject, err)
		}
		s.subs = append(s.subs, sub)
	}
	return nil
}

// Unsubscribe stops every subscription started by Subscribe.
func (s *ListingSubscriber) Unsubscribe() {
	for _, sub := range s.subs {
		if err := sub.Unsubscribe(); err != nil {
			s.logger.Warn("unsubscribe failed", zap.String("subject", sub.Subject), zap.Error(err))
		}
	}
	s.subs = nil
}

// Handle decodes one event and applies it.
func (s *ListingSubscriber) Handle(ctx context.Context, subject string, data []byte) error {
	var event ListingEvent
	if err := json.Unmarshal(data, &event); err != nil {
		return fmt.Errorf("decode listing event: %w", err)
	}
	event.ListingID = strings.TrimSpace(event.ListingID)
	if event.ListingID == "" {
		return fmt.Errorf("listing event on %s has no listing_id", subject)
	}

	var (
		posted int
		err    error
	)
	switch subject {
	case SubjectListingReserved:
		posted, err = s.handler.ListingReserved(ctx, event.ListingID, event.PlayerID)
	case SubjectListingReservationRemoved:
		posted, err = s.handler.ListingReservationRemoved(ctx, event.ListingID)
	case SubjectListingSold:
		posted, err = s.handler.ListingSold(ctx, event.ListingID, event.PlayerID)
	default:
		return fmt.Errorf("unexpected listing subject %s", subject)
	}
	if err != nil {
		return err
	}

	s.logger.Debug("listing event applied",
		zap.String("subject", subject),
		zap.String("listing_id", event.ListingID),
		zap.Int("conversations", posted),
	)
	return nil
}
