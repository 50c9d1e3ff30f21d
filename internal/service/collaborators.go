package service

import (
	"context"
	"errors"
	"time"

	"github.com/capitalize-ai/player-messaging/internal/model"
	"github.com/capitalize-ai/player-messaging/internal/storage"
)

// Notifier publishes real-time signals to the external hub. Delivery is
// best effort.
type Notifier interface {
	Publish(ctx context.Context, topic string, payload any) error
}

// Moderation answers whether a player may send messages right now.
type Moderation interface {
	MessagingRestricted(ctx context.Context, playerID string, now time.Time) (bool, error)
}

// ReportSink forwards conversation reports to moderation.
type ReportSink interface {
	SubmitReport(ctx context.Context, report model.ConversationReport) error
}

// PlayerModeration reads ban and mute state from the player read model.
type PlayerModeration struct {
	players storage.PlayerStore
}

// NewPlayerModeration creates a Moderation backed by players.
func NewPlayerModeration(players storage.PlayerStore) *PlayerModeration {
	return &PlayerModeration{players: players}
}

// MessagingRestricted implements Moderation. Players missing from the read
// model are not restricted.
func (m *PlayerModeration) MessagingRestricted(ctx context.Context, playerID string, now time.Time) (bool, error) {
	player, err := m.players.GetPlayer(ctx, playerID)
	if errors.Is(err, storage.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return player.Restricted(now), nil
}

type nopNotifier struct{}

func (nopNotifier) Publish(context.Context, string, any) error { return nil }

type nopReportSink struct{}

func (nopReportSink) SubmitReport(context.Context, model.ConversationReport) error { return nil }
