// Package storagetest holds the behaviour suite every storage.Store
// implementation must pass.
package storagetest

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/capitalize-ai/player-messaging/internal/model"
	"github.com/capitalize-ai/player-messaging/internal/storage"
)

// Opener returns a fresh, empty store for one subtest.
type Opener func(t *testing.T) storage.Store

var base = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

// Run executes the suite against stores produced by open.
func Run(t *testing.T, open Opener) {
	t.Run("players", func(t *testing.T) { testPlayers(t, open(t)) })
	t.Run("blocks", func(t *testing.T) { testBlocks(t, open(t)) })
	t.Run("create conversation scope", func(t *testing.T) { testCreateConversationScope(t, open(t)) })
	t.Run("transition", func(t *testing.T) { testTransition(t, open(t)) })
	t.Run("message order and pagination", func(t *testing.T) { testMessageOrder(t, open(t)) })
	t.Run("concurrent appends", func(t *testing.T) { testConcurrentAppends(t, open(t)) })
	t.Run("mark read", func(t *testing.T) { testMarkRead(t, open(t)) })
	t.Run("unread count matches unread list", func(t *testing.T) { testUnreadConsistency(t, open(t)) })
	t.Run("digest candidates", func(t *testing.T) { testDigestCandidates(t, open(t)) })
	t.Run("listing and pending queries", func(t *testing.T) { testListingQueries(t, open(t)) })
}

func conversation(id, initiator, recipient string, status model.ConversationStatus, listingID string, at time.Time) model.Conversation {
	return model.Conversation{
		ID:          id,
		InitiatorID: initiator,
		RecipientID: recipient,
		Status:      status,
		ListingID:   listingID,
		CreatedAt:   at,
	}
}

func message(id, senderID, content string, at time.Time) model.Message {
	return model.Message{ID: id, SenderID: senderID, Content: content, SentAt: at}
}

func mustCreate(t *testing.T, store storage.Store, conv model.Conversation) {
	t.Helper()
	_, err := store.CreateConversation(context.Background(), conv, message(conv.ID+"-first", conv.InitiatorID, "hi", conv.CreatedAt))
	require.NoError(t, err)
}

func mustAppend(t *testing.T, store storage.Store, msg model.Message) model.Message {
	t.Helper()
	stored, err := store.AppendMessage(context.Background(), msg)
	require.NoError(t, err)
	return stored
}

func testPlayers(t *testing.T, store storage.Store) {
	ctx := context.Background()

	_, err := store.GetPlayer(ctx, "p1")
	require.ErrorIs(t, err, storage.ErrNotFound)

	muted := base.Add(time.Hour)
	require.NoError(t, store.PutPlayer(ctx, model.Player{
		ID: "p1", DisplayName: "Ada", Email: "ada@example.com", Locale: "cs",
		AllowDirectMessages: true, MessagingMutedUntil: &muted,
	}))
	require.NoError(t, store.PutPlayer(ctx, model.Player{ID: "p1", DisplayName: "Ada L.", Email: "ada@example.com", Banned: true}))

	got, err := store.GetPlayer(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, "Ada L.", got.DisplayName)
	assert.True(t, got.Banned)
	assert.False(t, got.AllowDirectMessages)
	assert.Nil(t, got.MessagingMutedUntil)
}

func testBlocks(t *testing.T, store storage.Store) {
	ctx := context.Background()

	block := model.Block{BlockerID: "a", BlockedID: "b", CreatedAt: base}
	require.NoError(t, store.PutBlock(ctx, block))
	require.NoError(t, store.PutBlock(ctx, model.Block{BlockerID: "a", BlockedID: "b", CreatedAt: base.Add(time.Hour)}))

	blocked, err := store.IsBlocked(ctx, "a", "b")
	require.NoError(t, err)
	assert.True(t, blocked)

	reverse, err := store.IsBlocked(ctx, "b", "a")
	require.NoError(t, err)
	assert.False(t, reverse, "edges are directed")

	list, err := store.ListBlocked(ctx, "a")
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.True(t, list[0].CreatedAt.Equal(base))

	require.NoError(t, store.DeleteBlock(ctx, "a", "b"))
	require.NoError(t, store.DeleteBlock(ctx, "a", "b"))
	blocked, err = store.IsBlocked(ctx, "a", "b")
	require.NoError(t, err)
	assert.False(t, blocked)
}

func testCreateConversationScope(t *testing.T, store storage.Store) {
	ctx := context.Background()

	mustCreate(t, store, conversation("c1", "a", "b", model.StatusPending, "", base))

	_, err := store.CreateConversation(ctx, conversation("c2", "a", "b", model.StatusPending, "", base), message("m2", "a", "again", base))
	require.ErrorIs(t, err, storage.ErrConflict)

	_, err = store.CreateConversation(ctx, conversation("c3", "b", "a", model.StatusPending, "", base), message("m3", "b", "reverse", base))
	require.ErrorIs(t, err, storage.ErrConflict, "scope is unordered")

	mustCreate(t, store, conversation("c4", "a", "b", model.StatusPending, "listing-1", base))

	require.NoError(t, store.TransitionConversation(ctx, "c1", model.StatusPending, model.StatusIgnored, base))
	mustCreate(t, store, conversation("c5", "b", "a", model.StatusPending, "", base.Add(time.Minute)))

	got, err := store.GetConversation(ctx, "c5")
	require.NoError(t, err)
	require.NotNil(t, got.LastMessageAt)
	assert.True(t, got.LastMessageAt.Equal(base.Add(time.Minute)))

	found, err := store.FindConversations(ctx, "b", "a", model.StatusPending)
	require.NoError(t, err)
	require.Len(t, found, 2)
	assert.Equal(t, "c5", found[0].ID, "most recent activity first")

	all, err := store.FindConversations(ctx, "a", "b")
	require.NoError(t, err)
	assert.Len(t, all, 3)
}

func testTransition(t *testing.T, store storage.Store) {
	ctx := context.Background()

	mustCreate(t, store, conversation("c1", "a", "b", model.StatusPending, "", base))

	require.NoError(t, store.TransitionConversation(ctx, "c1", model.StatusPending, model.StatusAccepted, base.Add(time.Hour)))
	err := store.TransitionConversation(ctx, "c1", model.StatusPending, model.StatusIgnored, base.Add(time.Hour))
	require.ErrorIs(t, err, storage.ErrConflict)

	err = store.TransitionConversation(ctx, "missing", model.StatusPending, model.StatusAccepted, base)
	require.ErrorIs(t, err, storage.ErrNotFound)

	got, err := store.GetConversation(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, model.StatusAccepted, got.Status)
	require.NotNil(t, got.RespondedAt)
	assert.True(t, got.RespondedAt.Equal(base.Add(time.Hour)))
}

func testMessageOrder(t *testing.T, store storage.Store) {
	ctx := context.Background()

	mustCreate(t, store, conversation("c1", "a", "b", model.StatusAccepted, "", base))
	tie := base.Add(time.Minute)
	mustAppend(t, store, model.Message{ID: "m-late", ConversationID: "c1", SenderID: "b", Content: "late", SentAt: base.Add(time.Hour)})
	first := mustAppend(t, store, model.Message{ID: "m-tie-1", ConversationID: "c1", SenderID: "a", Content: "tie 1", SentAt: tie})
	second := mustAppend(t, store, model.Message{ID: "m-tie-2", ConversationID: "c1", SenderID: "b", Content: "tie 2", SentAt: tie})
	assert.Greater(t, second.Sequence, first.Sequence)

	all, err := store.ListMessages(ctx, "c1", 0, 0)
	require.NoError(t, err)
	ids := make([]string, len(all))
	for i, msg := range all {
		ids[i] = msg.ID
	}
	assert.Equal(t, []string{"c1-first", "m-tie-1", "m-tie-2", "m-late"}, ids)

	page, err := store.ListMessages(ctx, "c1", 1, 2)
	require.NoError(t, err)
	require.Len(t, page, 2)
	assert.Equal(t, "m-tie-1", page[0].ID)
	assert.Equal(t, "m-tie-2", page[1].ID)

	empty, err := store.ListMessages(ctx, "c1", 10, 5)
	require.NoError(t, err)
	assert.Empty(t, empty)

	last, err := store.LastMessage(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, "m-late", last.ID)

	_, err = store.AppendMessage(ctx, model.Message{ID: "orphan", ConversationID: "missing", SenderID: "a", SentAt: base})
	require.ErrorIs(t, err, storage.ErrNotFound)
}

func testConcurrentAppends(t *testing.T, store storage.Store) {
	ctx := context.Background()
	mustCreate(t, store, conversation("c1", "a", "b", model.StatusAccepted, "", base))

	const writers = 50
	var wg sync.WaitGroup
	errs := make(chan error, writers)
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			sender := "a"
			if i%2 == 1 {
				sender = "b"
			}
			_, err := store.AppendMessage(ctx, model.Message{
				ID:             fmt.Sprintf("m-%02d", i),
				ConversationID: "c1",
				SenderID:       sender,
				Content:        "hello",
				SentAt:         base.Add(time.Duration(i) * time.Second),
			})
			errs <- err
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	all, err := store.ListMessages(ctx, "c1", 0, 0)
	require.NoError(t, err)
	require.Len(t, all, writers+1)

	sequences := make(map[uint64]bool, len(all))
	for _, msg := range all {
		assert.False(t, sequences[msg.Sequence], "duplicate sequence %d", msg.Sequence)
		sequences[msg.Sequence] = true
	}
}

func testMarkRead(t *testing.T, store storage.Store) {
	ctx := context.Background()

	mustCreate(t, store, conversation("c1", "a", "b", model.StatusAccepted, "", base))
	mustAppend(t, store, model.Message{ID: "m-b", ConversationID: "c1", SenderID: "b", Content: "from b", SentAt: base.Add(time.Minute)})
	mustAppend(t, store, model.Message{ID: "m-sys", ConversationID: "c1", SystemType: model.SystemListingSold, SentAt: base.Add(2 * time.Minute)})

	marked, err := store.MarkRead(ctx, "c1", "b", base.Add(time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 2, marked, "message from a and the system message")

	marked, err = store.MarkRead(ctx, "c1", "b", base.Add(2*time.Hour))
	require.NoError(t, err)
	assert.Zero(t, marked)

	messages, err := store.ListMessages(ctx, "c1", 0, 0)
	require.NoError(t, err)
	for _, msg := range messages {
		if msg.SenderID == "b" {
			assert.Nil(t, msg.ReadAt, "own messages stay unread")
			continue
		}
		require.NotNil(t, msg.ReadAt, msg.ID)
		assert.True(t, msg.ReadAt.Equal(base.Add(time.Hour)), "read_at is set once")
	}
}

func testUnreadConsistency(t *testing.T, store storage.Store) {
	ctx := context.Background()

	mustCreate(t, store, conversation("accepted", "a", "b", model.StatusAccepted, "", base))
	mustCreate(t, store, conversation("pending", "c", "b", model.StatusPending, "", base))
	mustAppend(t, store, model.Message{ID: "m1", ConversationID: "accepted", SenderID: "a", Content: "one", SentAt: base.Add(time.Minute)})
	mustAppend(t, store, model.Message{ID: "m2", ConversationID: "accepted", SenderID: "b", Content: "own", SentAt: base.Add(2 * time.Minute)})
	mustAppend(t, store, model.Message{ID: "m3", ConversationID: "accepted", SystemType: model.SystemListingReserved, SystemTargetID: "b", SentAt: base.Add(3 * time.Minute)})

	count, err := store.CountUnread(ctx, "b")
	require.NoError(t, err)
	unread, err := store.ListUnread(ctx, "b")
	require.NoError(t, err)
	assert.Equal(t, 3, count, "first message, m1 and the system message")
	assert.Len(t, unread, count)
	for _, u := range unread {
		assert.True(t, model.IsUnreadFor(u.Conversation, u.Message, "b"), u.Message.ID)
		assert.Equal(t, "accepted", u.Conversation.ID)
	}

	inConversation, err := store.CountUnreadInConversation(ctx, "accepted", "b")
	require.NoError(t, err)
	assert.Equal(t, count, inConversation)

	countA, err := store.CountUnread(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, 2, countA, "b's message and the system message")
}

func testDigestCandidates(t *testing.T, store storage.Store) {
	ctx := context.Background()
	cutoff := base.Add(12 * time.Hour)

	mustCreate(t, store, conversation("c1", "x", "p", model.StatusAccepted, "", base))
	mustCreate(t, store, conversation("c2", "x", "q", model.StatusPending, "", base))
	fresh := mustAppend(t, store, model.Message{ID: "fresh", ConversationID: "c1", SenderID: "x", Content: "new", SentAt: cutoff.Add(time.Minute)})

	candidates, err := store.ListDigestCandidates(ctx, cutoff)
	require.NoError(t, err)
	assert.Equal(t, []string{"p"}, candidates, "pending conversations never qualify")

	unread, err := store.ListUnread(ctx, "p")
	require.NoError(t, err)
	require.NotEmpty(t, unread)
	oldest := unread[0].Message
	require.NoError(t, store.PutNotificationLog(ctx, model.NotificationLogEntry{
		PlayerID:          "p",
		NotifiedAt:        cutoff,
		BoundarySentAt:    oldest.SentAt,
		BoundarySequence:  oldest.Sequence,
		BoundaryMessageID: oldest.ID,
		MessagesIncluded:  1,
	}))

	candidates, err = store.ListDigestCandidates(ctx, cutoff)
	require.NoError(t, err)
	assert.Empty(t, candidates, "watermark covers the backlog and the fresh message is not stale yet")

	candidates, err = store.ListDigestCandidates(ctx, fresh.SentAt.Add(time.Second))
	require.NoError(t, err)
	assert.Equal(t, []string{"p"}, candidates)

	entry, err := store.GetNotificationLog(ctx, "p")
	require.NoError(t, err)
	assert.Equal(t, oldest.Sequence, entry.BoundarySequence)
	assert.Equal(t, 1, entry.MessagesIncluded)

	_, err = store.GetNotificationLog(ctx, "nobody")
	require.ErrorIs(t, err, storage.ErrNotFound)
}

func testListingQueries(t *testing.T, store storage.Store) {
	ctx := context.Background()

	for i, buyer := range []string{"b1", "b2", "b3"} {
		mustCreate(t, store, conversation(fmt.Sprintf("c%d", i), buyer, "seller", model.StatusPending, "listing-1", base.Add(time.Duration(i)*time.Minute)))
	}
	mustCreate(t, store, conversation("other", "b1", "seller", model.StatusPending, "listing-2", base))

	linked, err := store.ListConversationsByListing(ctx, "listing-1")
	require.NoError(t, err)
	assert.Len(t, linked, 3)

	none, err := store.ListConversationsByListing(ctx, "")
	require.NoError(t, err)
	assert.Empty(t, none)

	pending, err := store.CountPendingRequests(ctx, "seller")
	require.NoError(t, err)
	assert.Equal(t, 4, pending)

	mine, err := store.ListConversationsByPlayer(ctx, "b1")
	require.NoError(t, err)
	assert.Len(t, mine, 2)

	sellers, err := store.ListConversationsByPlayer(ctx, "seller")
	require.NoError(t, err)
	require.Len(t, sellers, 4)
	assert.Equal(t, "c2", sellers[0].ID, "most recent activity first")
}
