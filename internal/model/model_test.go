package model

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/capitalize-ai/player-messaging/pkg/errors"
)

func TestConversationStatusTransitions(t *testing.T) {
	t.Parallel()

	next, err := StatusPending.Accept()
	require.NoError(t, err)
	assert.Equal(t, StatusAccepted, next)

	next, err = StatusPending.Ignore()
	require.NoError(t, err)
	assert.Equal(t, StatusIgnored, next)

	for _, from := range []ConversationStatus{StatusAccepted, StatusIgnored} {
		_, err := from.Accept()
		assert.ErrorIs(t, err, apperrors.ErrInvalidStatusTransition, from)
		_, err = from.Ignore()
		assert.ErrorIs(t, err, apperrors.ErrInvalidStatusTransition, from)
	}
}

func TestParseConversationStatus(t *testing.T) {
	t.Parallel()

	status, err := ParseConversationStatus("accepted")
	require.NoError(t, err)
	assert.Equal(t, StatusAccepted, status)

	_, err = ParseConversationStatus("denied")
	assert.Error(t, err)
}

func TestConversationFilterMatches(t *testing.T) {
	t.Parallel()

	outgoing := Conversation{InitiatorID: "a", RecipientID: "b", Status: StatusPending}
	ignored := Conversation{InitiatorID: "a", RecipientID: "b", Status: StatusIgnored}
	accepted := Conversation{InitiatorID: "a", RecipientID: "b", Status: StatusAccepted}

	assert.True(t, FilterInbox.Matches(outgoing, "a"))
	assert.False(t, FilterInbox.Matches(outgoing, "b"))
	assert.True(t, FilterPending.Matches(outgoing, "b"))
	assert.False(t, FilterPending.Matches(outgoing, "a"))
	assert.True(t, FilterIgnored.Matches(ignored, "b"))
	assert.True(t, FilterInbox.Matches(ignored, "a"))
	assert.True(t, FilterAccepted.Matches(accepted, "a"))
	assert.True(t, FilterAccepted.Matches(accepted, "b"))

	f, err := ParseConversationFilter("")
	require.NoError(t, err)
	assert.Equal(t, FilterInbox, f)
	_, err = ParseConversationFilter("archived")
	assert.Error(t, err)
}

func TestIsUnreadFor(t *testing.T) {
	t.Parallel()

	conv := Conversation{InitiatorID: "a", RecipientID: "b", Status: StatusAccepted}
	fromA := Message{SenderID: "a"}
	system := Message{}
	now := time.Now()
	read := Message{SenderID: "a", ReadAt: &now}

	assert.True(t, IsUnreadFor(conv, fromA, "b"))
	assert.False(t, IsUnreadFor(conv, fromA, "a"))
	assert.True(t, IsUnreadFor(conv, system, "a"))
	assert.True(t, IsUnreadFor(conv, system, "b"))
	assert.False(t, IsUnreadFor(conv, read, "b"))
	assert.False(t, IsUnreadFor(conv, fromA, "c"))

	conv.Status = StatusPending
	assert.False(t, IsUnreadFor(conv, fromA, "b"))
}

func TestNotificationLogEntryCovers(t *testing.T) {
	t.Parallel()

	at := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	entry := NotificationLogEntry{BoundarySentAt: at, BoundarySequence: 5}

	assert.True(t, entry.Covers(Message{SentAt: at.Add(-time.Second), Sequence: 9}))
	assert.True(t, entry.Covers(Message{SentAt: at, Sequence: 5}))
	assert.False(t, entry.Covers(Message{SentAt: at, Sequence: 6}))
	assert.False(t, entry.Covers(Message{SentAt: at.Add(time.Second), Sequence: 1}))
}

func TestPlayerUsableEmailAndRestriction(t *testing.T) {
	t.Parallel()

	email, ok := Player{Email: "  p@example.com "}.UsableEmail()
	assert.True(t, ok)
	assert.Equal(t, "p@example.com", email)

	for _, bad := range []string{"", "   ", "nobody", "@example.com", "p@"} {
		_, ok := Player{Email: bad}.UsableEmail()
		assert.False(t, ok, bad)
	}

	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	until := now.Add(time.Hour)
	assert.True(t, Player{Banned: true}.Restricted(now))
	assert.True(t, Player{MessagingMutedUntil: &until}.Restricted(now))
	assert.False(t, Player{MessagingMutedUntil: &until}.Restricted(until.Add(time.Second)))
	assert.False(t, Player{}.Restricted(now))
}

func TestDigestDedupKey(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "p1:42", DigestEmail{PlayerID: "p1", BoundarySequence: 42}.DedupKey())
}
