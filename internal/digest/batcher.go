// Package digest builds the batched unread-message emails. Each player has a
// watermark so a message is reported at most once.
package digest

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/capitalize-ai/player-messaging/internal/model"
	"github.com/capitalize-ai/player-messaging/internal/render"
	"github.com/capitalize-ai/player-messaging/internal/storage"
	"github.com/capitalize-ai/player-messaging/pkg/logger"
	"github.com/capitalize-ai/player-messaging/pkg/metrics"
)

// Dispatcher hands a digest to the mailer.
type Dispatcher interface {
	Dispatch(ctx context.Context, email model.DigestEmail) error
}

// NotificationCounter reports unread notifications that are not messages.
type NotificationCounter interface {
	CountUnreadNotifications(ctx context.Context, playerID string) (int, error)
}

// Per-player outcomes, also used as metric labels.
const (
	OutcomeSent      = "sent"
	OutcomeNothing   = "nothing_new"
	OutcomeNoEmail   = "no_email"
	OutcomeDuplicate = "duplicate_email"
	OutcomeLocked    = "locked"
	OutcomeFailed    = "failed"
	OutcomeDeferred  = "deferred"
)

// Config tunes a Batcher.
type Config struct {
	// Threshold is how old an unread message must be before it is reported.
	Threshold time.Duration
	// LockTTL bounds how long one player's lock survives a crashed worker.
	LockTTL time.Duration
	// MaxEmailsPerRun caps dispatches per run. Zero means no cap.
	MaxEmailsPerRun int
	DefaultLocale   string
}

// Report summarizes one batch run.
type Report struct {
	StartedAt  time.Time     `json:"started_at"`
	Duration   time.Duration `json:"duration"`
	Candidates int           `json:"candidates"`
	Sent       int           `json:"sent"`
	Skipped    int           `json:"skipped"`
	Excluded   int           `json:"excluded"`
	Failed     int           `json:"failed"`
	Deferred   int           `json:"deferred"`
}

// Option customizes a Batcher.
type Option func(*Batcher)

// WithLocker replaces the in-process locker.
func WithLocker(locker Locker) Option {
	return func(b *Batcher) { b.locker = locker }
}

// WithNotificationCounter sets the source of non-message notification counts.
func WithNotificationCounter(counter NotificationCounter) Option {
	return func(b *Batcher) { b.counter = counter }
}

// WithClock replaces the time source.
func WithClock(clock func() time.Time) Option {
	return func(b *Batcher) { b.clock = clock }
}

// Batcher selects players with old unread messages and dispatches one digest
// per player.
type Batcher struct {
	store      storage.Store
	dispatcher Dispatcher
	counter    NotificationCounter
	locker     Locker
	cfg        Config
	clock      func() time.Time
	logger     *logger.Logger
}

// NewBatcher creates a new batcher.
func NewBatcher(store storage.Store, dispatcher Dispatcher, cfg Config, log *logger.Logger, opts ...Option) *Batcher {
	if cfg.Threshold <= 0 {
		cfg.Threshold = 12 * time.Hour
	}
	if cfg.LockTTL <= 0 {
		cfg.LockTTL = 5 * time.Minute
	}
	if cfg.DefaultLocale == "" {
		cfg.DefaultLocale = "en"
	}
	if log == nil {
		log = logger.Nop()
	}
	b := &Batcher{
		store:      store,
		dispatcher: dispatcher,
		locker:     NewMemoryLocker(),
		cfg:        cfg,
		clock:      func() time.Time { return time.Now().UTC() },
		logger:     log.Named("digest"),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Start runs the batch immediately and then on every tick until ctx ends.
func (b *Batcher) Start(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		if _, err := b.Run(ctx); err != nil && ctx.Err() == nil {
			b.logger.Error("digest run failed", zap.Error(err))
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// Run performs one batch. A failure for one player never stops the others;
// only a failed candidate query or a cancelled context ends the run early.
func (b *Batcher) Run(ctx context.Context) (Report, error) {
	started := time.Now()
	now := b.clock()
	report := Report{StartedAt: now}
	defer func() {
		report.Duration = time.Since(started)
		metrics.DigestRunDuration.Observe(report.Duration.Seconds())
	}()

	cutoff := now.Add(-b.cfg.Threshold)
	candidates, err := b.store.ListDigestCandidates(ctx, cutoff)
	if err != nil {
		return report, fmt.Errorf("list digest candidates: %w", err)
	}
	report.Candidates = len(candidates)

	seenEmails := make(map[string]bool)
	for i, playerID := range candidates {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		if b.cfg.MaxEmailsPerRun > 0 && report.Sent >= b.cfg.MaxEmailsPerRun {
			report.Deferred = len(candidates) - i
			for range candidates[i:] {
				metrics.RecordDigestOutcome(OutcomeDeferred)
			}
			break
		}

		outcome, err := b.processPlayer(ctx, playerID, now, cutoff, seenEmails)
		metrics.RecordDigestOutcome(outcome)
		switch outcome {
		case OutcomeSent:
			report.Sent++
		case OutcomeNoEmail, OutcomeDuplicate:
			report.Excluded++
		case OutcomeFailed:
			report.Failed++
			b.logger.Error("digest for player failed",
				zap.String("player_id", playerID),
				zap.Error(err),
			)
		default:
			report.Skipped++
		}
	}

	b.logger.Info("digest run finished",
		zap.Int("candidates", report.Candidates),
		zap.Int("sent", report.Sent),
		zap.Int("skipped", report.Skipped),
		zap.Int("excluded", report.Excluded),
		zap.Int("failed", report.Failed),
		zap.Int("deferred", report.Deferred),
	)
	return report, nil
}

func (b *Batcher) processPlayer(ctx context.Context, playerID string, now, cutoff time.Time, seenEmails map[string]bool) (string, error) {
	log := b.logger.WithPlayer(playerID)

	release, err := b.locker.TryLock(ctx, "digest:"+playerID, b.cfg.LockTTL)
	if errors.Is(err, ErrLocked) {
		return OutcomeLocked, nil
	}
	if err != nil {
		return OutcomeFailed, err
	}
	defer func() {
		if err := release(context.WithoutCancel(ctx)); err != nil {
			log.Warn("release digest lock failed", zap.Error(err))
		}
	}()

	entry, hasEntry, err := b.notificationLog(ctx, playerID)
	if err != nil {
		return OutcomeFailed, err
	}
	unread, err := b.store.ListUnread(ctx, playerID)
	if err != nil {
		return OutcomeFailed, fmt.Errorf("list unread: %w", err)
	}
	qualifying := Qualifying(unread, cutoff, entry, hasEntry)
	if len(qualifying) == 0 {
		return OutcomeNothing, nil
	}

	player, err := b.store.GetPlayer(ctx, playerID)
	if errors.Is(err, storage.ErrNotFound) {
		log.Info("digest skipped, player unknown")
		return OutcomeNoEmail, nil
	}
	if err != nil {
		return OutcomeFailed, fmt.Errorf("load player: %w", err)
	}
	address, ok := player.UsableEmail()
	if !ok {
		log.Info("digest skipped, no usable email")
		return OutcomeNoEmail, nil
	}
	emailKey := strings.ToLower(address)
	if seenEmails[emailKey] {
		log.Info("digest skipped, email already used this run")
		return OutcomeDuplicate, nil
	}

	summaries, err := b.summarize(ctx, qualifying)
	if err != nil {
		return OutcomeFailed, err
	}
	pending, err := b.store.CountPendingRequests(ctx, playerID)
	if err != nil {
		return OutcomeFailed, fmt.Errorf("count pending requests: %w", err)
	}

	boundary := qualifying[len(qualifying)-1].Message
	locale := player.Locale
	if locale == "" {
		locale = b.cfg.DefaultLocale
	}
	email := model.DigestEmail{
		PlayerID:                playerID,
		Email:                   address,
		Locale:                  locale,
		Subject:                 render.DigestSubject(render.NewLocalizer(locale), len(qualifying), pending),
		DisplayName:             player.DisplayName,
		Summaries:               summaries,
		TotalUnread:             len(qualifying),
		PendingRequestCount:     pending,
		UnreadNotificationCount: b.countNotifications(ctx, playerID),
		BoundarySentAt:          boundary.SentAt,
		BoundarySequence:        boundary.Sequence,
		GeneratedAt:             now,
	}
	if err := b.dispatcher.Dispatch(ctx, email); err != nil {
		return OutcomeFailed, fmt.Errorf("dispatch digest: %w", err)
	}
	seenEmails[emailKey] = true

	err = b.store.PutNotificationLog(ctx, model.NotificationLogEntry{
		PlayerID:          playerID,
		NotifiedAt:        now,
		BoundarySentAt:    boundary.SentAt,
		BoundarySequence:  boundary.Sequence,
		BoundaryMessageID: boundary.ID,
		MessagesIncluded:  len(qualifying),
	})
	if err != nil {
		return OutcomeFailed, fmt.Errorf("advance notification log: %w", err)
	}

	log.Debug("digest dispatched",
		zap.Int("messages", len(qualifying)),
		zap.Int("groups", len(summaries)),
	)
	return OutcomeSent, nil
}

func (b *Batcher) notificationLog(ctx context.Context, playerID string) (model.NotificationLogEntry, bool, error) {
	entry, err := b.store.GetNotificationLog(ctx, playerID)
	if errors.Is(err, storage.ErrNotFound) {
		return model.NotificationLogEntry{}, false, nil
	}
	if err != nil {
		return model.NotificationLogEntry{}, false, fmt.Errorf("load notification log: %w", err)
	}
	return entry, true, nil
}

func (b *Batcher) countNotifications(ctx context.Context, playerID string) int {
	if b.counter == nil {
		return 0
	}
	count, err := b.counter.CountUnreadNotifications(ctx, playerID)
	if err != nil {
		b.logger.Warn("count unread notifications failed",
			zap.String("player_id", playerID),
			zap.Error(err),
		)
		return 0
	}
	return count
}

// Qualifying filters unread messages down to those old enough to report and
// not yet covered by the watermark, oldest first.
func Qualifying(unread []model.UnreadMessage, cutoff time.Time, entry model.NotificationLogEntry, hasEntry bool) []model.UnreadMessage {
	out := make([]model.UnreadMessage, 0, len(unread))
	for _, u := range unread {
		if !u.Message.SentAt.Before(cutoff) {
			continue
		}
		if hasEntry && entry.Covers(u.Message) {
			continue
		}
		out = append(out, u)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Message.Before(out[j].Message) })
	return out
}

type groupKey struct {
	senderID  string
	listingID string
	puzzleID  string
}

// summarize groups messages by sender and marketplace context.
func (b *Batcher) summarize(ctx context.Context, messages []model.UnreadMessage) ([]model.DigestSenderSummary, error) {
	groups := make(map[groupKey]*model.DigestSenderSummary)
	order := make([]groupKey, 0)
	senders := make(map[string]model.Player)

	for _, u := range messages {
		key := groupKey{
			senderID:  u.Message.SenderID,
			listingID: u.Conversation.ListingID,
			puzzleID:  u.Conversation.PuzzleID,
		}
		summary, ok := groups[key]
		if !ok {
			sender, err := b.sender(ctx, senders, u.Message.SenderID)
			if err != nil {
				return nil, err
			}
			summary = &model.DigestSenderSummary{
				SenderID:       u.Message.SenderID,
				SenderName:     sender.DisplayName,
				SenderAvatar:   sender.AvatarURL,
				ConversationID: u.Conversation.ID,
				ListingID:      u.Conversation.ListingID,
				ListingName:    u.Conversation.ListingName,
				PuzzleID:       u.Conversation.PuzzleID,
				PuzzleName:     u.Conversation.PuzzleName,
				OldestUnreadAt: u.Message.SentAt,
			}
			groups[key] = summary
			order = append(order, key)
		}
		summary.UnreadCount++
		if u.Message.SentAt.Before(summary.OldestUnreadAt) {
			summary.OldestUnreadAt = u.Message.SentAt
		}
	}

	summaries := make([]model.DigestSenderSummary, 0, len(order))
	for _, key := range order {
		summaries = append(summaries, *groups[key])
	}
	sort.SliceStable(summaries, func(i, j int) bool {
		return summaries[i].OldestUnreadAt.Before(summaries[j].OldestUnreadAt)
	})
	return summaries, nil
}

func (b *Batcher) sender(ctx context.Context, cache map[string]model.Player, senderID string) (model.Player, error) {
	if senderID == "" {
		return model.Player{}, nil
	}
	if player, ok := cache[senderID]; ok {
		return player, nil
	}
	player, err := b.store.GetPlayer(ctx, senderID)
	if errors.Is(err, storage.ErrNotFound) {
		player = model.Player{ID: senderID}
	} else if err != nil {
		return model.Player{}, fmt.Errorf("load sender: %w", err)
	}
	cache[senderID] = player
	return player, nil
}
