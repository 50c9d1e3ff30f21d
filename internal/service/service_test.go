package service

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/capitalize-ai/player-messaging/internal/model"
	"github.com/capitalize-ai/player-messaging/internal/storage/memory"
	"github.com/capitalize-ai/player-messaging/pkg/logger"
)

type published struct {
	topic   string
	payload any
}

type recordingNotifier struct {
	mu     sync.Mutex
	events []published
	err    error
}

func (n *recordingNotifier) Publish(_ context.Context, topic string, payload any) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, published{topic: topic, payload: payload})
	return n.err
}

func (n *recordingNotifier) topics() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	topics := make([]string, 0, len(n.events))
	for _, e := range n.events {
		topics = append(topics, e.topic)
	}
	return topics
}

func (n *recordingNotifier) last(topic string) (any, bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	for i := len(n.events) - 1; i >= 0; i-- {
		if n.events[i].topic == topic {
			return n.events[i].payload, true
		}
	}
	return nil, false
}

func (n *recordingNotifier) reset() {
	n.mu.Lock()
	n.events = nil
	n.mu.Unlock()
}

type recordingReports struct {
	reports []model.ConversationReport
}

func (r *recordingReports) SubmitReport(_ context.Context, report model.ConversationReport) error {
	r.reports = append(r.reports, report)
	return nil
}

type fixture struct {
	ctx           context.Context
	store         *memory.Store
	notifier      *recordingNotifier
	reports       *recordingReports
	conversations *ConversationService
	messages      *MessageService
	system        *SystemMessageService
	blocks        *BlockService
	now           time.Time
}

// stepClock returns a clock that advances one second per call.
func stepClock(start time.Time) func() time.Time {
	var mu sync.Mutex
	current := start
	return func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		current = current.Add(time.Second)
		return current
	}
}

func sequentialIDs() func() string {
	var mu sync.Mutex
	n := 0
	return func() string {
		mu.Lock()
		defer mu.Unlock()
		n++
		return fmt.Sprintf("id-%04d", n)
	}
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		ctx:      context.Background(),
		store:    memory.New(),
		notifier: &recordingNotifier{},
		reports:  &recordingReports{},
		now:      time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC),
	}
	deps := Dependencies{Store: f.store, Notifier: f.notifier, Reports: f.reports}
	opts := []Option{WithClock(stepClock(f.now)), WithIDGenerator(sequentialIDs())}
	f.conversations = NewConversationService(deps, logger.Nop(), opts...)
	f.messages = NewMessageService(deps, logger.Nop(), opts...)
	f.system = NewSystemMessageService(deps, logger.Nop(), opts...)
	f.blocks = NewBlockService(f.store, logger.Nop(), opts...)

	for _, id := range []string{"alice", "bob", "carol", "dave"} {
		f.putPlayer(t, model.Player{ID: id, DisplayName: id, Email: id + "@example.com", AllowDirectMessages: true})
	}
	return f
}

func (f *fixture) putPlayer(t *testing.T, player model.Player) {
	t.Helper()
	require.NoError(t, f.store.PutPlayer(f.ctx, player))
}

func (f *fixture) start(t *testing.T, from, to, content string) *model.StartConversationResponse {
	t.Helper()
	resp, err := f.conversations.Start(f.ctx, from, &model.StartConversationRequest{RecipientID: to, Content: content})
	require.NoError(t, err)
	return resp
}

func (f *fixture) startListing(t *testing.T, from, to, listingID string) *model.StartConversationResponse {
	t.Helper()
	resp, err := f.conversations.Start(f.ctx, from, &model.StartConversationRequest{
		RecipientID: to,
		Content:     "is it still available?",
		ListingID:   listingID,
		ListingName: "Ravensburger 1000",
	})
	require.NoError(t, err)
	return resp
}

func (f *fixture) accepted(t *testing.T, from, to string) model.Conversation {
	t.Helper()
	resp := f.start(t, from, to, "Hi")
	conv, err := f.conversations.Accept(f.ctx, resp.Conversation.ID, to)
	require.NoError(t, err)
	return *conv
}

func (f *fixture) unread(t *testing.T, playerID string) model.UnreadCountResponse {
	t.Helper()
	counts, err := f.conversations.UnreadCounts(f.ctx, playerID)
	require.NoError(t, err)
	return *counts
}
