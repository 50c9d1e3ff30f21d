// Package service implements the messaging orchestrator: conversation
// lifecycle, message delivery, blocking and listing-driven system messages.
package service

import (
	"context"
	"errors"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/capitalize-ai/player-messaging/internal/model"
	"github.com/capitalize-ai/player-messaging/internal/render"
	"github.com/capitalize-ai/player-messaging/internal/storage"
	apperrors "github.com/capitalize-ai/player-messaging/pkg/errors"
	"github.com/capitalize-ai/player-messaging/pkg/metrics"
	"github.com/capitalize-ai/player-messaging/pkg/tracing"
)

var tracer = tracing.Tracer("github.com/capitalize-ai/player-messaging/internal/service")

const (
	defaultPageSize = 50
	maxPageSize     = 100
)

type options struct {
	clock         func() time.Time
	newID         func() string
	maxLength     int
	defaultLocale string
}

// Option customizes a service.
type Option func(*options)

// WithClock replaces the time source.
func WithClock(clock func() time.Time) Option {
	return func(o *options) {
		if clock != nil {
			o.clock = clock
		}
	}
}

// WithIDGenerator replaces the id generator.
func WithIDGenerator(newID func() string) Option {
	return func(o *options) {
		if newID != nil {
			o.newID = newID
		}
	}
}

// WithMaxMessageLength sets how many runes of a message body are kept.
func WithMaxMessageLength(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.maxLength = n
		}
	}
}

// WithDefaultLocale sets the locale used for players without one.
func WithDefaultLocale(locale string) Option {
	return func(o *options) {
		if locale = strings.TrimSpace(locale); locale != "" {
			o.defaultLocale = locale
		}
	}
}

func newOptions(opts []Option) options {
	o := options{
		clock:         func() time.Time { return time.Now().UTC() },
		newID:         func() string { return uuid.Must(uuid.NewV7()).String() },
		maxLength:     model.MaxMessageLength,
		defaultLocale: "en",
	}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// finishSpan ends span, recording err. Domain rejections are counted by
// code and do not mark the span as failed.
func finishSpan(span trace.Span, err error) {
	defer span.End()
	if err == nil {
		return
	}
	code := apperrors.CodeOf(err)
	span.SetAttributes(attribute.String("error.code", string(code)))
	if code.Kind() == apperrors.KindInternal {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return
	}
	metrics.DomainRejectionsTotal.WithLabelValues(string(code)).Inc()
}

// normalizeContent trims content and cuts it to maxLength runes.
func normalizeContent(content string, maxLength int) (string, error) {
	content = strings.TrimSpace(strings.ToValidUTF8(content, ""))
	if content == "" {
		return "", apperrors.ErrEmptyMessage
	}
	if utf8.RuneCountInString(content) > maxLength {
		content = strings.TrimSpace(string([]rune(content)[:maxLength]))
	}
	return content, nil
}

func loadConversation(ctx context.Context, store storage.ConversationStore, conversationID string) (model.Conversation, error) {
	conv, err := store.GetConversation(ctx, conversationID)
	if errors.Is(err, storage.ErrNotFound) {
		return model.Conversation{}, apperrors.ErrConversationNotFound
	}
	if err != nil {
		return model.Conversation{}, apperrors.Wrap(apperrors.CodeInternal, "load conversation", err)
	}
	return conv, nil
}

// loadForParticipant loads a conversation and checks playerID takes part.
func loadForParticipant(ctx context.Context, store storage.ConversationStore, conversationID, playerID string) (model.Conversation, error) {
	conv, err := loadConversation(ctx, store, conversationID)
	if err != nil {
		return model.Conversation{}, err
	}
	if !conv.HasParticipant(playerID) {
		return model.Conversation{}, apperrors.ErrNotParticipant
	}
	return conv, nil
}

func loadPlayer(ctx context.Context, store storage.PlayerStore, playerID string) (model.Player, error) {
	player, err := store.GetPlayer(ctx, playerID)
	if errors.Is(err, storage.ErrNotFound) {
		return model.Player{}, apperrors.ErrPlayerNotFound
	}
	if err != nil {
		return model.Player{}, apperrors.Wrap(apperrors.CodeInternal, "load player", err)
	}
	return player, nil
}

// playerOrPlaceholder returns the stored player or a bare record carrying
// only the id, for rendering rows whose counterpart left the read model.
func playerOrPlaceholder(ctx context.Context, store storage.PlayerStore, playerID string) (model.Player, error) {
	player, err := store.GetPlayer(ctx, playerID)
	if errors.Is(err, storage.ErrNotFound) {
		return model.Player{ID: playerID}, nil
	}
	if err != nil {
		return model.Player{}, apperrors.Wrap(apperrors.CodeInternal, "load player", err)
	}
	return player, nil
}

func internal(message string, err error) error {
	return apperrors.Wrap(apperrors.CodeInternal, message, err)
}

func clampPage(offset, limit int) (int, int) {
	if offset < 0 {
		offset = 0
	}
	if limit <= 0 {
		limit = defaultPageSize
	}
	if limit > maxPageSize {
		limit = maxPageSize
	}
	return offset, limit
}

// ensureMayMessage applies the moderation gate to a sender.
func ensureMayMessage(ctx context.Context, moderation Moderation, playerID string, now time.Time) error {
	restricted, err := moderation.MessagingRestricted(ctx, playerID, now)
	if err != nil {
		return internal("check moderation", err)
	}
	if restricted {
		return apperrors.ErrMessagingMuted
	}
	return nil
}

func localizerFor(ctx context.Context, players storage.PlayerStore, playerID, defaultLocale string) (render.Localizer, error) {
	player, err := playerOrPlaceholder(ctx, players, playerID)
	if err != nil {
		return nil, err
	}
	locale := player.Locale
	if locale == "" {
		locale = defaultLocale
	}
	return render.NewLocalizer(locale), nil
}
