// Package memory provides an in-process implementation of storage.Store.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/capitalize-ai/player-messaging/internal/model"
	"github.com/capitalize-ai/player-messaging/internal/storage"
)

type blockKey struct {
	blocker string
	blocked string
}

// Store keeps all messaging state in maps guarded by one RWMutex.
type Store struct {
	mu sync.RWMutex

	players       map[string]model.Player
	blocks        map[blockKey]model.Block
	conversations map[string]*model.Conversation
	playerIndex   map[string][]string // playerID -> []conversationID
	messages      map[string][]*model.Message
	logs          map[string]model.NotificationLogEntry
	sequence      uint64
}

var _ storage.Store = (*Store)(nil)

// New creates an empty store.
func New() *Store {
	return &Store{
		players:       make(map[string]model.Player),
		blocks:        make(map[blockKey]model.Block),
		conversations: make(map[string]*model.Conversation),
		playerIndex:   make(map[string][]string),
		messages:      make(map[string][]*model.Message),
		logs:          make(map[string]model.NotificationLogEntry),
	}
}

// Close is a no-op.
func (s *Store) Close() error { return nil }

// Ping reports whether the store can serve requests.
func (s *Store) Ping(ctx context.Context) error { return ctx.Err() }

// GetPlayer returns a player by id.
func (s *Store) GetPlayer(ctx context.Context, playerID string) (model.Player, error) {
	if err := ctx.Err(); err != nil {
		return model.Player{}, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	player, ok := s.players[playerID]
	if !ok {
		return model.Player{}, storage.ErrNotFound
	}
	return player, nil
}

// PutPlayer upserts a player.
func (s *Store) PutPlayer(ctx context.Context, player model.Player) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	s.players[player.ID] = player
	return nil
}

// PutBlock records a block edge; repeating it keeps the original timestamp.
func (s *Store) PutBlock(ctx context.Context, block model.Block) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	key := blockKey{block.BlockerID, block.BlockedID}
	if _, exists := s.blocks[key]; !exists {
		s.blocks[key] = block
	}
	return nil
}

// DeleteBlock removes a block edge if present.
func (s *Store) DeleteBlock(ctx context.Context, blockerID, blockedID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.blocks, blockKey{blockerID, blockedID})
	return nil
}

// IsBlocked reports whether blocker has blocked blocked.
func (s *Store) IsBlocked(ctx context.Context, blockerID, blockedID string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	_, exists := s.blocks[blockKey{blockerID, blockedID}]
	return exists, nil
}

// ListBlocked returns the edges created by blocker, oldest first.
func (s *Store) ListBlocked(ctx context.Context, blockerID string) ([]model.Block, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	var blocks []model.Block
	for key, block := range s.blocks {
		if key.blocker == blockerID {
			blocks = append(blocks, block)
		}
	}
	sort.Slice(blocks, func(i, j int) bool {
		if !blocks[i].CreatedAt.Equal(blocks[j].CreatedAt) {
			return blocks[i].CreatedAt.Before(blocks[j].CreatedAt)
		}
		return blocks[i].BlockedID < blocks[j].BlockedID
	})
	return blocks, nil
}

// CreateConversation inserts a conversation and its first message.
func (s *Store) CreateConversation(ctx context.Context, conv model.Conversation, first model.Message) (model.Message, error) {
	if err := ctx.Err(); err != nil {
		return model.Message{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	scope := storage.ConversationScope{PlayerA: conv.InitiatorID, PlayerB: conv.RecipientID, ListingID: conv.ListingID}
	for _, id := range s.playerIndex[conv.InitiatorID] {
		existing := s.conversations[id]
		if scope.Matches(*existing) && existing.Status.Active() {
			return model.Message{}, storage.ErrConflict
		}
	}
	if _, exists := s.conversations[conv.ID]; exists {
		return model.Message{}, storage.ErrConflict
	}

	stored := conv
	s.conversations[conv.ID] = &stored
	s.playerIndex[conv.InitiatorID] = append(s.playerIndex[conv.InitiatorID], conv.ID)
	s.playerIndex[conv.RecipientID] = append(s.playerIndex[conv.RecipientID], conv.ID)

	first.ConversationID = conv.ID
	return s.appendLocked(first), nil
}

// GetConversation returns a conversation by id.
func (s *Store) GetConversation(ctx context.Context, conversationID string) (model.Conversation, error) {
	if err := ctx.Err(); err != nil {
		return model.Conversation{}, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	conv, ok := s.conversations[conversationID]
	if !ok {
		return model.Conversation{}, storage.ErrNotFound
	}
	return *conv, nil
}

// FindConversations returns conversations between two players.
func (s *Store) FindConversations(ctx context.Context, playerA, playerB string, statuses ...model.ConversationStatus) ([]model.Conversation, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []model.Conversation
	for _, id := range s.playerIndex[playerA] {
		conv := s.conversations[id]
		if !conv.Between(playerA, playerB) || !statusIn(conv.Status, statuses) {
			continue
		}
		result = append(result, *conv)
	}
	sortByActivity(result)
	return result, nil
}

// TransitionConversation performs a compare-and-set on the status.
func (s *Store) TransitionConversation(ctx context.Context, conversationID string, from, to model.ConversationStatus, at time.Time) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	conv, ok := s.conversations[conversationID]
	if !ok {
		return storage.ErrNotFound
	}
	if conv.Status != from {
		return storage.ErrConflict
	}
	conv.Status = to
	respondedAt := at
	conv.RespondedAt = &respondedAt
	return nil
}

// ListConversationsByPlayer returns the player's conversations.
func (s *Store) ListConversationsByPlayer(ctx context.Context, playerID string) ([]model.Conversation, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]model.Conversation, 0, len(s.playerIndex[playerID]))
	for _, id := range s.playerIndex[playerID] {
		result = append(result, *s.conversations[id])
	}
	sortByActivity(result)
	return result, nil
}

// ListConversationsByListing returns conversations linked to a listing.
func (s *Store) ListConversationsByListing(ctx context.Context, listingID string) ([]model.Conversation, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []model.Conversation
	for _, conv := range s.conversations {
		if listingID != "" && conv.ListingID == listingID {
			result = append(result, *conv)
		}
	}
	sortByActivity(result)
	return result, nil
}

// CountPendingRequests counts pending conversations addressed to recipient.
func (s *Store) CountPendingRequests(ctx context.Context, recipientID string) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	count := 0
	for _, id := range s.playerIndex[recipientID] {
		conv := s.conversations[id]
		if conv.Status == model.StatusPending && conv.RecipientID == recipientID {
			count++
		}
	}
	return count, nil
}

// AppendMessage appends a message and touches the conversation.
func (s *Store) AppendMessage(ctx context.Context, msg model.Message) (model.Message, error) {
	if err := ctx.Err(); err != nil {
		return model.Message{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.conversations[msg.ConversationID]; !ok {
		return model.Message{}, storage.ErrNotFound
	}
	return s.appendLocked(msg), nil
}

func (s *Store) appendLocked(msg model.Message) model.Message {
	s.sequence++
	msg.Sequence = s.sequence
	stored := msg
	s.messages[msg.ConversationID] = append(s.messages[msg.ConversationID], &stored)

	conv := s.conversations[msg.ConversationID]
	sentAt := msg.SentAt
	conv.LastMessageAt = &sentAt
	return msg
}

// ListMessages returns a page of a conversation in display order.
func (s *Store) ListMessages(ctx context.Context, conversationID string, offset, limit int) ([]model.Message, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	ordered := s.orderedLocked(conversationID)
	if offset < 0 {
		offset = 0
	}
	if offset >= len(ordered) {
		return []model.Message{}, nil
	}
	end := len(ordered)
	if limit > 0 && offset+limit < end {
		end = offset + limit
	}
	return ordered[offset:end], nil
}

// LastMessage returns the newest message in a conversation.
func (s *Store) LastMessage(ctx context.Context, conversationID string) (model.Message, error) {
	if err := ctx.Err(); err != nil {
		return model.Message{}, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	ordered := s.orderedLocked(conversationID)
	if len(ordered) == 0 {
		return model.Message{}, storage.ErrNotFound
	}
	return ordered[len(ordered)-1], nil
}

func (s *Store) orderedLocked(conversationID string) []model.Message {
	stored := s.messages[conversationID]
	ordered := make([]model.Message, 0, len(stored))
	for _, msg := range stored {
		ordered = append(ordered, *msg)
	}
	sort.SliceStable(ordered, func(i, j int) bool { return ordered[i].Before(ordered[j]) })
	return ordered
}

// MarkRead sets read_at on the viewer's unread incoming messages.
func (s *Store) MarkRead(ctx context.Context, conversationID, viewerID string, at time.Time) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	marked := 0
	for _, msg := range s.messages[conversationID] {
		if msg.ReadAt != nil || msg.SenderID == viewerID {
			continue
		}
		readAt := at
		msg.ReadAt = &readAt
		marked++
	}
	return marked, nil
}

// CountUnread counts the player's unread messages.
func (s *Store) CountUnread(ctx context.Context, playerID string) (int, error) {
	unread, err := s.ListUnread(ctx, playerID)
	if err != nil {
		return 0, err
	}
	return len(unread), nil
}

// CountUnreadInConversation counts unread messages for the player in one
// conversation.
func (s *Store) CountUnreadInConversation(ctx context.Context, conversationID, playerID string) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	conv, ok := s.conversations[conversationID]
	if !ok {
		return 0, storage.ErrNotFound
	}
	count := 0
	for _, msg := range s.messages[conversationID] {
		if model.IsUnreadFor(*conv, *msg, playerID) {
			count++
		}
	}
	return count, nil
}

// ListUnread returns the player's unread messages, oldest first.
func (s *Store) ListUnread(ctx context.Context, playerID string) ([]model.UnreadMessage, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.unreadLocked(playerID), nil
}

func (s *Store) unreadLocked(playerID string) []model.UnreadMessage {
	var unread []model.UnreadMessage
	for _, id := range s.playerIndex[playerID] {
		conv := s.conversations[id]
		for _, msg := range s.messages[id] {
			if model.IsUnreadFor(*conv, *msg, playerID) {
				unread = append(unread, model.UnreadMessage{Message: *msg, Conversation: *conv})
			}
		}
	}
	sort.SliceStable(unread, func(i, j int) bool { return unread[i].Message.Before(unread[j].Message) })
	return unread
}

// GetNotificationLog returns the player's digest watermark.
func (s *Store) GetNotificationLog(ctx context.Context, playerID string) (model.NotificationLogEntry, error) {
	if err := ctx.Err(); err != nil {
		return model.NotificationLogEntry{}, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	entry, ok := s.logs[playerID]
	if !ok {
		return model.NotificationLogEntry{}, storage.ErrNotFound
	}
	return entry, nil
}

// PutNotificationLog upserts the player's digest watermark.
func (s *Store) PutNotificationLog(ctx context.Context, entry model.NotificationLogEntry) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	s.logs[entry.PlayerID] = entry
	return nil
}

// ListDigestCandidates returns players with unread messages past cutoff that
// their watermark does not cover.
func (s *Store) ListDigestCandidates(ctx context.Context, cutoff time.Time) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	var candidates []string
	for playerID := range s.playerIndex {
		entry, hasLog := s.logs[playerID]
		for _, unread := range s.unreadLocked(playerID) {
			if !unread.Message.SentAt.Before(cutoff) {
				continue
			}
			if hasLog && entry.Covers(unread.Message) {
				continue
			}
			candidates = append(candidates, playerID)
			break
		}
	}
	sort.Strings(candidates)
	return candidates, nil
}

func statusIn(status model.ConversationStatus, statuses []model.ConversationStatus) bool {
	if len(statuses) == 0 {
		return true
	}
	for _, s := range statuses {
		if s == status {
			return true
		}
	}
	return false
}

func activityAt(conv model.Conversation) time.Time {
	if conv.LastMessageAt != nil {
		return *conv.LastMessageAt
	}
	return conv.CreatedAt
}

func sortByActivity(convs []model.Conversation) {
	sort.SliceStable(convs, func(i, j int) bool {
		ai, aj := activityAt(convs[i]), activityAt(convs[j])
		if !ai.Equal(aj) {
			return ai.After(aj)
		}
		return convs[i].ID > convs[j].ID
	})
}
