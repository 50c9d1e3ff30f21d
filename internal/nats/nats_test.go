package nats

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/capitalize-ai/player-messaging/internal/model"
	"github.com/capitalize-ai/player-messaging/pkg/logger"
)

type fakePublisher struct {
	subjects []string
	data     [][]byte
	err      error
}

func (p *fakePublisher) Publish(subject string, data []byte) error {
	p.subjects = append(p.subjects, subject)
	p.data = append(p.data, data)
	return p.err
}

func TestTopicSubject(t *testing.T) {
	tests := map[string]string{
		"conversation/c1/typing":    "conversation.c1.typing",
		"conversation/c1/read/p1":   "conversation.c1.read.p1",
		"conversations/p1":          "conversations.p1",
		"unread-count/p1":           "unread-count.p1",
		"/conversation/c1/message/": "conversation.c1.message",
	}
	for topic, want := range tests {
		assert.Equal(t, want, TopicSubject(topic), topic)
	}
	assert.Equal(t, "digest.email.p1", DigestSubject("p1"))
}

func TestHubPublisher(t *testing.T) {
	conn := &fakePublisher{}
	hub := NewHubPublisher(conn)

	err := hub.Publish(context.Background(), "conversation/c1/typing", map[string]string{"player_id": "p1"})
	require.NoError(t, err)
	require.Equal(t, []string{"conversation.c1.typing"}, conn.subjects)
	assert.JSONEq(t, `{"player_id":"p1"}`, string(conn.data[0]))

	conn.err = errors.New("connection closed")
	assert.Error(t, hub.Publish(context.Background(), "conversations/p1", nil))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, hub.Publish(ctx, "conversations/p1", nil), context.Canceled)
}

type fakeJetStream struct {
	jetstream.JetStream
	subject string
	data    []byte
	opts    int
	err     error
}

func (f *fakeJetStream) Publish(_ context.Context, subject string, data []byte, opts ...jetstream.PublishOpt) (*jetstream.PubAck, error) {
	f.subject = subject
	f.data = data
	f.opts = len(opts)
	if f.err != nil {
		return nil, f.err
	}
	return &jetstream.PubAck{Stream: DigestStreamName, Sequence: 1}, nil
}

func TestDispatchPublishesDigestWithMessageID(t *testing.T) {
	js := &fakeJetStream{}
	email := model.DigestEmail{
		PlayerID:         "p1",
		Email:            "p1@example.com",
		TotalUnread:      2,
		BoundarySequence: 42,
		BoundarySentAt:   time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC),
	}

	require.NoError(t, NewStreamManager(js).Dispatch(context.Background(), email))
	assert.Equal(t, "digest.email.p1", js.subject)
	assert.Equal(t, 1, js.opts)

	var decoded model.DigestEmail
	require.NoError(t, json.Unmarshal(js.data, &decoded))
	assert.Equal(t, email.DedupKey(), decoded.DedupKey())

	js.err = errors.New("no responders")
	assert.Error(t, NewStreamManager(js).Dispatch(context.Background(), email))
}

type call struct {
	op, listingID, playerID string
}

type fakeListingHandler struct {
	calls []call
	err   error
}

func (h *fakeListingHandler) ListingReserved(_ context.Context, listingID, targetPlayerID string) (int, error) {
	h.calls = append(h.calls, call{"reserved", listingID, targetPlayerID})
	return 1, h.err
}

func (h *fakeListingHandler) ListingReservationRemoved(_ context.Context, listingID string) (int, error) {
	h.calls = append(h.calls, call{"removed", listingID, ""})
	return 1, h.err
}

func (h *fakeListingHandler) ListingSold(_ context.Context, listingID, buyerID string) (int, error) {
	h.calls = append(h.calls, call{"sold", listingID, buyerID})
	return 1, h.err
}

func TestListingSubscriberHandle(t *testing.T) {
	handler := &fakeListingHandler{}
	sub := NewListingSubscriber(nil, handler, time.Second, logger.Nop())
	ctx := context.Background()

	require.NoError(t, sub.Handle(ctx, SubjectListingReserved, []byte(`{"listing_id":"l1","player_id":"p2"}`)))
	require.NoError(t, sub.Handle(ctx, SubjectListingReservationRemoved, []byte(`{"listing_id":"l1"}`)))
	require.NoError(t, sub.Handle(ctx, SubjectListingSold, []byte(`{"listing_id":" l1 "}`)))
	assert.Equal(t, []call{
		{"reserved", "l1", "p2"},
		{"removed", "l1", ""},
		{"sold", "l1", ""},
	}, handler.calls)

	assert.Error(t, sub.Handle(ctx, SubjectListingSold, []byte(`not json`)))
	assert.Error(t, sub.Handle(ctx, SubjectListingSold, []byte(`{"player_id":"p2"}`)))
	assert.Error(t, sub.Handle(ctx, "marketplace.listing.burned", []byte(`{"listing_id":"l1"}`)))

	handler.err = errors.New("store unavailable")
	assert.Error(t, sub.Handle(ctx, SubjectListingSold, []byte(`{"listing_id":"l1"}`)))
}

type fakeRequester struct {
	subject string
	reply   string
	err     error
}

func (r *fakeRequester) RequestWithContext(_ context.Context, subject string, _ []byte) (*nats.Msg, error) {
	r.subject = subject
	if r.err != nil {
		return nil, r.err
	}
	return &nats.Msg{Subject: subject, Data: []byte(r.reply)}, nil
}

func TestNotificationCounter(t *testing.T) {
	ctx := context.Background()

	conn := &fakeRequester{reply: `{"count":4}`}
	count, err := NewNotificationCounter(conn, time.Second).CountUnreadNotifications(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, 4, count)
	assert.Equal(t, SubjectUnreadNotifications, conn.subject)

	conn.reply = `{"error":"unknown player"}`
	_, err = NewNotificationCounter(conn, time.Second).CountUnreadNotifications(ctx, "p1")
	assert.Error(t, err)

	conn.err = nats.ErrTimeout
	_, err = NewNotificationCounter(conn, time.Second).CountUnreadNotifications(ctx, "p1")
	assert.ErrorIs(t, err, nats.ErrTimeout)
}

func TestReportPublisher(t *testing.T) {
	conn := &fakePublisher{}
	report := model.ConversationReport{ID: "r1", ConversationID: "c1", ReporterID: "p1", Reason: "spam"}

	require.NoError(t, NewReportPublisher(conn).SubmitReport(context.Background(), report))
	require.Equal(t, []string{SubjectConversationReport}, conn.subjects)

	var decoded model.ConversationReport
	require.NoError(t, json.Unmarshal(conn.data[0], &decoded))
	assert.Equal(t, report.ID, decoded.ID)
	assert.Equal(t, report.Reason, decoded.Reason)
}
