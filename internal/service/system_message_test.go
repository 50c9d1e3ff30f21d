package service

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/capitalize-ai/player-messaging/internal/model"
	apperrors "github.com/capitalize-ai/player-messaging/pkg/errors"
)

func lastText(t *testing.T, f *fixture, conversationID, viewerID string) model.MessageView {
	t.Helper()
	page, err := f.messages.List(f.ctx, conversationID, viewerID, 0, maxPageSize)
	require.NoError(t, err)
	require.NotEmpty(t, page.Messages)
	return page.Messages[len(page.Messages)-1]
}

func TestListingReservedRendersPerViewer(t *testing.T) {
	f := newFixture(t)
	withBob := f.startListing(t, "bob", "alice", "listing-1").Conversation
	withCarol := f.startListing(t, "carol", "alice", "listing-1").Conversation
	unrelated := f.startListing(t, "dave", "alice", "listing-2").Conversation

	posted, err := f.system.ListingReserved(f.ctx, "listing-1", "bob")
	require.NoError(t, err)
	assert.Equal(t, 2, posted)

	forBob := lastText(t, f, withBob.ID, "bob")
	assert.True(t, forBob.IsSystem)
	assert.False(t, forBob.IsOwn)
	assert.Equal(t, model.SystemListingReserved, forBob.SystemType)
	assert.Equal(t, "This listing has been reserved for you.", forBob.Content)
	assert.Equal(t, forBob.Content, lastText(t, f, withBob.ID, "bob").Content)

	assert.Equal(t, "This listing has been reserved for this puzzler.", lastText(t, f, withBob.ID, "alice").Content)
	assert.Equal(t, "This listing has been reserved for someone else.", lastText(t, f, withCarol.ID, "carol").Content)
	assert.Equal(t, "This listing has been reserved for someone else.", lastText(t, f, withCarol.ID, "alice").Content)
	assert.Equal(t, "is it still available?", lastText(t, f, unrelated.ID, "dave").Content)
}

func TestListingEventsWithoutTarget(t *testing.T) {
	f := newFixture(t)
	conv := f.startListing(t, "bob", "alice", "listing-1").Conversation

	_, err := f.system.ListingReservationRemoved(f.ctx, "listing-1")
	require.NoError(t, err)
	assert.Equal(t, "The reservation of this listing has been removed.", lastText(t, f, conv.ID, "bob").Content)

	_, err = f.system.ListingSold(f.ctx, "listing-1", "")
	require.NoError(t, err)
	assert.Equal(t, "This listing has been sold.", lastText(t, f, conv.ID, "alice").Content)
}

func TestSystemMessagesCountAsUnreadInAcceptedThreads(t *testing.T) {
	f := newFixture(t)
	conv := f.startListing(t, "bob", "alice", "listing-1").Conversation
	_, err := f.conversations.Accept(f.ctx, conv.ID, "alice")
	require.NoError(t, err)
	_, err = f.messages.MarkAsRead(f.ctx, conv.ID, "alice")
	require.NoError(t, err)

	f.notifier.reset()
	_, err = f.system.ListingSold(f.ctx, "listing-1", "bob")
	require.NoError(t, err)

	assert.Equal(t, 1, f.unread(t, "alice").Unread)
	assert.Equal(t, 1, f.unread(t, "bob").Unread)
	assert.Contains(t, f.notifier.topics(), MessageTopic(conv.ID))
	assert.Contains(t, f.notifier.topics(), UnreadCountTopic("alice"))
	assert.Contains(t, f.notifier.topics(), ConversationsTopic("bob"))

	overview, err := f.conversations.Get(f.ctx, conv.ID, "bob")
	require.NoError(t, err)
	assert.Equal(t, "This listing has been sold to you.", overview.LastMessagePreview)
	assert.Nil(t, overview.LastMessageSender)
}

func TestPostValidation(t *testing.T) {
	f := newFixture(t)

	_, err := f.system.ListingSold(f.ctx, " ", "bob")
	assert.Equal(t, apperrors.CodeInvalidArgument, apperrors.CodeOf(err))
	_, err = f.system.Post(f.ctx, "listing-1", model.SystemMessageType("listing_exploded"), "")
	assert.Equal(t, apperrors.CodeInvalidArgument, apperrors.CodeOf(err))

	posted, err := f.system.ListingSold(f.ctx, "listing-without-threads", "bob")
	require.NoError(t, err)
	assert.Zero(t, posted)
}
