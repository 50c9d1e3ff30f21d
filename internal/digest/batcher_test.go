package digest

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/capitalize-ai/player-messaging/internal/model"
	"github.com/capitalize-ai/player-messaging/internal/storage/memory"
	"github.com/capitalize-ai/player-messaging/pkg/logger"
)

var now = time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

type fakeDispatcher struct {
	mu     sync.Mutex
	emails []model.DigestEmail
	fail   map[string]error
}

func (d *fakeDispatcher) Dispatch(_ context.Context, email model.DigestEmail) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.fail[email.PlayerID]; err != nil {
		return err
	}
	d.emails = append(d.emails, email)
	return nil
}

func (d *fakeDispatcher) sentTo() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	ids := make([]string, 0, len(d.emails))
	for _, e := range d.emails {
		ids = append(ids, e.PlayerID)
	}
	return ids
}

type fakeCounter struct {
	count int
	err   error
}

func (c fakeCounter) CountUnreadNotifications(context.Context, string) (int, error) {
	return c.count, c.err
}

type harness struct {
	ctx        context.Context
	store      *memory.Store
	dispatcher *fakeDispatcher
	ids        int
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		ctx:        context.Background(),
		store:      memory.New(),
		dispatcher: &fakeDispatcher{fail: map[string]error{}},
	}
	for _, p := range []model.Player{
		{ID: "p", DisplayName: "Petra", Email: "petra@example.com", Locale: "cs"},
		{ID: "q", DisplayName: "Quinn", Email: "quinn@example.com"},
		{ID: "x", DisplayName: "Xavier", AvatarURL: "https://img/x.png", Email: "x@example.com"},
		{ID: "y", DisplayName: "Yara", Email: "y@example.com"},
	} {
		require.NoError(t, h.store.PutPlayer(h.ctx, p))
	}
	return h
}

func (h *harness) batcher(cfg Config, opts ...Option) *Batcher {
	cfg.Threshold = 12 * time.Hour
	opts = append([]Option{WithClock(func() time.Time { return now })}, opts...)
	return NewBatcher(h.store, h.dispatcher, cfg, logger.Nop(), opts...)
}

func (h *harness) nextID(prefix string) string {
	h.ids++
	return prefix + "-" + strconv.Itoa(h.ids)
}

// thread creates an accepted conversation whose first message is sent by
// from at the given time.
func (h *harness) thread(t *testing.T, from, to, listingID string, at time.Time) model.Conversation {
	t.Helper()
	conv := model.Conversation{
		ID:          h.nextID("conv"),
		InitiatorID: from,
		RecipientID: to,
		Status:      model.StatusAccepted,
		ListingID:   listingID,
		ListingName: listingID,
		CreatedAt:   at,
	}
	_, err := h.store.CreateConversation(h.ctx, conv, model.Message{
		ID:       h.nextID("msg"),
		SenderID: from,
		Content:  "hello",
		SentAt:   at,
	})
	require.NoError(t, err)
	return conv
}

func (h *harness) send(t *testing.T, conv model.Conversation, from string, at time.Time) model.Message {
	t.Helper()
	msg, err := h.store.AppendMessage(h.ctx, model.Message{
		ID:             h.nextID("msg"),
		ConversationID: conv.ID,
		SenderID:       from,
		Content:        "ping",
		SentAt:         at,
	})
	require.NoError(t, err)
	return msg
}

func TestOldUnreadMessageIsDigestedOnce(t *testing.T) {
	h := newHarness(t)
	h.thread(t, "x", "p", "", now.Add(-20*time.Hour))
	b := h.batcher(Config{})

	report, err := b.Run(h.ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Candidates)
	assert.Equal(t, 1, report.Sent)
	require.Len(t, h.dispatcher.emails, 1)

	email := h.dispatcher.emails[0]
	assert.Equal(t, "p", email.PlayerID)
	assert.Equal(t, "petra@example.com", email.Email)
	assert.Equal(t, "cs", email.Locale)
	assert.NotEmpty(t, email.Subject)
	assert.Equal(t, 1, email.TotalUnread)
	require.Len(t, email.Summaries, 1)
	assert.Equal(t, "x", email.Summaries[0].SenderID)
	assert.Equal(t, "Xavier", email.Summaries[0].SenderName)
	assert.Equal(t, 1, email.Summaries[0].UnreadCount)
	assert.Equal(t, now.Add(-20*time.Hour), email.Summaries[0].OldestUnreadAt)

	entry, err := h.store.GetNotificationLog(h.ctx, "p")
	require.NoError(t, err)
	assert.Equal(t, email.BoundarySentAt, entry.BoundarySentAt)
	assert.Equal(t, email.BoundarySequence, entry.BoundarySequence)
	assert.Equal(t, 1, entry.MessagesIncluded)

	report, err = b.Run(h.ctx)
	require.NoError(t, err)
	assert.Zero(t, report.Candidates)
	assert.Len(t, h.dispatcher.emails, 1)
}

func TestLaterMessagesStartANewDigest(t *testing.T) {
	h := newHarness(t)
	conv := h.thread(t, "x", "p", "", now.Add(-20*time.Hour))
	b := h.batcher(Config{})

	_, err := b.Run(h.ctx)
	require.NoError(t, err)

	h.send(t, conv, "x", now.Add(-14*time.Hour))
	h.send(t, conv, "x", now.Add(-time.Hour))
	report, err := b.Run(h.ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Sent)
	require.Len(t, h.dispatcher.emails, 2)
	assert.Equal(t, 1, h.dispatcher.emails[1].TotalUnread)
	assert.NotEqual(t, h.dispatcher.emails[0].DedupKey(), h.dispatcher.emails[1].DedupKey())
}

func TestRecentAndReadMessagesAreNotSelected(t *testing.T) {
	h := newHarness(t)
	h.thread(t, "x", "p", "", now.Add(-time.Hour))
	old := h.thread(t, "y", "p", "", now.Add(-30*time.Hour))
	_, err := h.store.MarkRead(h.ctx, old.ID, "p", now.Add(-29*time.Hour))
	require.NoError(t, err)

	report, err := h.batcher(Config{}).Run(h.ctx)
	require.NoError(t, err)
	assert.Zero(t, report.Candidates)
	assert.Empty(t, h.dispatcher.emails)
}

func TestPendingRequestsDoNotTriggerButAreCounted(t *testing.T) {
	h := newHarness(t)
	_, err := h.store.CreateConversation(h.ctx, model.Conversation{
		ID: "pending", InitiatorID: "y", RecipientID: "p", Status: model.StatusPending, CreatedAt: now.Add(-48 * time.Hour),
	}, model.Message{ID: "pending-first", SenderID: "y", Content: "hi", SentAt: now.Add(-48 * time.Hour)})
	require.NoError(t, err)

	report, err := h.batcher(Config{}).Run(h.ctx)
	require.NoError(t, err)
	assert.Zero(t, report.Candidates)

	h.thread(t, "x", "p", "", now.Add(-20*time.Hour))
	_, err = h.batcher(Config{}, WithNotificationCounter(fakeCounter{count: 3})).Run(h.ctx)
	require.NoError(t, err)
	require.Len(t, h.dispatcher.emails, 1)
	assert.Equal(t, 1, h.dispatcher.emails[0].PendingRequestCount)
	assert.Equal(t, 3, h.dispatcher.emails[0].UnreadNotificationCount)
	assert.Equal(t, 1, h.dispatcher.emails[0].TotalUnread)
}

func TestDispatchFailureIsIsolatedAndRetried(t *testing.T) {
	h := newHarness(t)
	h.thread(t, "x", "p", "", now.Add(-20*time.Hour))
	h.thread(t, "x", "q", "", now.Add(-20*time.Hour))
	h.dispatcher.fail["p"] = errors.New("mailer down")
	b := h.batcher(Config{})

	report, err := b.Run(h.ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Failed)
	assert.Equal(t, 1, report.Sent)
	assert.Equal(t, []string{"q"}, h.dispatcher.sentTo())
	_, err = h.store.GetNotificationLog(h.ctx, "p")
	require.Error(t, err)

	delete(h.dispatcher.fail, "p")
	report, err = b.Run(h.ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Candidates)
	assert.Equal(t, []string{"q", "p"}, h.dispatcher.sentTo())
}

func TestPlayersWithoutEmailAreExcluded(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.store.PutPlayer(h.ctx, model.Player{ID: "p", DisplayName: "Petra", Email: "  "}))
	h.thread(t, "x", "p", "", now.Add(-20*time.Hour))

	report, err := h.batcher(Config{}).Run(h.ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Excluded)
	assert.Empty(t, h.dispatcher.emails)
	_, err = h.store.GetNotificationLog(h.ctx, "p")
	require.Error(t, err)
}

func TestSkippedPlayerIsLoggedWithPlayerID(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.store.PutPlayer(h.ctx, model.Player{ID: "p", DisplayName: "Petra"}))
	h.thread(t, "x", "p", "", now.Add(-20*time.Hour))

	core, logs := observer.New(zapcore.InfoLevel)
	b := NewBatcher(h.store, h.dispatcher, Config{}, &logger.Logger{Logger: zap.New(core)},
		WithClock(func() time.Time { return now }))
	_, err := b.Run(h.ctx)
	require.NoError(t, err)

	entries := logs.FilterMessage("digest skipped, no usable email").All()
	require.Len(t, entries, 1)
	assert.Equal(t, "p", entries[0].ContextMap()["player_id"])
}

func TestSharedEmailIsDigestedOncePerRun(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.store.PutPlayer(h.ctx, model.Player{ID: "q", DisplayName: "Quinn", Email: "PETRA@example.com"}))
	h.thread(t, "x", "p", "", now.Add(-20*time.Hour))
	h.thread(t, "x", "q", "", now.Add(-20*time.Hour))

	report, err := h.batcher(Config{}).Run(h.ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Sent)
	assert.Equal(t, 1, report.Excluded)
	assert.Equal(t, []string{"p"}, h.dispatcher.sentTo())
}

func TestMaxEmailsPerRunDefersTheRest(t *testing.T) {
	h := newHarness(t)
	h.thread(t, "x", "p", "", now.Add(-20*time.Hour))
	h.thread(t, "x", "q", "", now.Add(-20*time.Hour))
	b := h.batcher(Config{MaxEmailsPerRun: 1})

	report, err := b.Run(h.ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Sent)
	assert.Equal(t, 1, report.Deferred)

	report, err = b.Run(h.ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Sent)
	assert.Zero(t, report.Deferred)
	assert.Equal(t, []string{"p", "q"}, h.dispatcher.sentTo())
}

func TestLockedPlayerIsSkipped(t *testing.T) {
	h := newHarness(t)
	h.thread(t, "x", "p", "", now.Add(-20*time.Hour))
	locker := NewMemoryLocker()
	release, err := locker.TryLock(h.ctx, "digest:p", time.Minute)
	require.NoError(t, err)
	b := h.batcher(Config{}, WithLocker(locker))

	report, err := b.Run(h.ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Skipped)
	assert.Empty(t, h.dispatcher.emails)

	require.NoError(t, release(h.ctx))
	report, err = b.Run(h.ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Sent)
}

func TestConcurrentRunsDoNotDoubleSend(t *testing.T) {
	h := newHarness(t)
	h.thread(t, "x", "p", "", now.Add(-20*time.Hour))
	b := h.batcher(Config{})

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := b.Run(h.ctx)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()
	assert.Equal(t, []string{"p"}, h.dispatcher.sentTo())
}

func TestSummariesGroupBySenderAndListing(t *testing.T) {
	h := newHarness(t)
	direct := h.thread(t, "x", "p", "", now.Add(-30*time.Hour))
	h.send(t, direct, "x", now.Add(-29*time.Hour))
	h.thread(t, "x", "p", "listing-1", now.Add(-25*time.Hour))
	h.thread(t, "y", "p", "", now.Add(-40*time.Hour))

	_, err := h.batcher(Config{}).Run(h.ctx)
	require.NoError(t, err)
	require.Len(t, h.dispatcher.emails, 1)
	email := h.dispatcher.emails[0]
	assert.Equal(t, 4, email.TotalUnread)
	require.Len(t, email.Summaries, 3)

	assert.Equal(t, "y", email.Summaries[0].SenderID)
	assert.Equal(t, 1, email.Summaries[0].UnreadCount)
	assert.Equal(t, "x", email.Summaries[1].SenderID)
	assert.Empty(t, email.Summaries[1].ListingID)
	assert.Equal(t, 2, email.Summaries[1].UnreadCount)
	assert.Equal(t, now.Add(-30*time.Hour), email.Summaries[1].OldestUnreadAt)
	assert.Equal(t, "listing-1", email.Summaries[2].ListingID)
	assert.Equal(t, "listing-1", email.Summaries[2].ListingName)
	assert.Equal(t, now.Add(-25*time.Hour), email.BoundarySentAt)
}

func TestNotificationCounterFailureCountsZero(t *testing.T) {
	h := newHarness(t)
	h.thread(t, "x", "p", "", now.Add(-20*time.Hour))

	_, err := h.batcher(Config{}, WithNotificationCounter(fakeCounter{err: errors.New("timeout")})).Run(h.ctx)
	require.NoError(t, err)
	require.Len(t, h.dispatcher.emails, 1)
	assert.Zero(t, h.dispatcher.emails[0].UnreadNotificationCount)
}

func TestQualifyingUsesSequenceOnEqualTimestamps(t *testing.T) {
	at := now.Add(-20 * time.Hour)
	unread := []model.UnreadMessage{
		{Message: model.Message{ID: "b", SentAt: at, Sequence: 7}},
		{Message: model.Message{ID: "a", SentAt: at, Sequence: 6}},
		{Message: model.Message{ID: "c", SentAt: now.Add(-time.Hour), Sequence: 8}},
	}
	entry := model.NotificationLogEntry{BoundarySentAt: at, BoundarySequence: 6}

	got := Qualifying(unread, now.Add(-12*time.Hour), entry, true)
	require.Len(t, got, 1)
	assert.Equal(t, "b", got[0].Message.ID)

	got = Qualifying(unread, now.Add(-12*time.Hour), model.NotificationLogEntry{}, false)
	require.Len(t, got, 2)
	assert.Equal(t, "a", got[0].Message.ID)
}

func TestStartStopsWithContext(t *testing.T) {
	h := newHarness(t)
	h.thread(t, "x", "p", "", now.Add(-20*time.Hour))
	ctx, cancel := context.WithCancel(h.ctx)

	done := make(chan struct{})
	go func() {
		h.batcher(Config{}).Start(ctx, time.Hour)
		close(done)
	}()
	require.Eventually(t, func() bool { return len(h.dispatcher.sentTo()) == 1 }, time.Second, 10*time.Millisecond)
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Start did not return after cancel")
	}
}
