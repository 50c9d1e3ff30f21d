package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/capitalize-ai/player-messaging/internal/model"
	"github.com/capitalize-ai/player-messaging/internal/storage"
)

const conversationColumns = `c.id, c.initiator_id, c.recipient_id, c.status, c.listing_id, c.listing_name,
    c.puzzle_id, c.puzzle_name, c.created_at, c.responded_at, c.last_message_at`

const activityOrder = `ORDER BY COALESCE(c.last_message_at, c.created_at) DESC, c.id DESC`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanConversation(row rowScanner) (model.Conversation, error) {
	var (
		conv          model.Conversation
		status        string
		createdAt     int64
		respondedAt   sql.NullInt64
		lastMessageAt sql.NullInt64
	)
	if err := row.Scan(
		&conv.ID, &conv.InitiatorID, &conv.RecipientID, &status, &conv.ListingID, &conv.ListingName,
		&conv.PuzzleID, &conv.PuzzleName, &createdAt, &respondedAt, &lastMessageAt,
	); err != nil {
		return model.Conversation{}, err
	}
	parsed, err := model.ParseConversationStatus(status)
	if err != nil {
		return model.Conversation{}, err
	}
	conv.Status = parsed
	conv.CreatedAt = fromMillis(createdAt)
	conv.RespondedAt = timePtr(respondedAt)
	conv.LastMessageAt = timePtr(lastMessageAt)
	return conv, nil
}

func queryConversations(ctx context.Context, q queryer, query string, args ...any) ([]model.Conversation, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var convs []model.Conversation
	for rows.Next() {
		conv, err := scanConversation(rows)
		if err != nil {
			return nil, fmt.Errorf("scan conversation: %w", err)
		}
		convs = append(convs, conv)
	}
	return convs, rows.Err()
}

// CreateConversation inserts a conversation and its first message in one
// transaction after checking the scope has no active conversation.
func (s *Store) CreateConversation(ctx context.Context, conv model.Conversation, first model.Message) (model.Message, error) {
	if err := ctx.Err(); err != nil {
		return model.Message{}, err
	}

	tx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return model.Message{}, fmt.Errorf("begin create conversation: %w", err)
	}
	rollbackWith := func(cause error) (model.Message, error) {
		if rollbackErr := tx.Rollback(); rollbackErr != nil {
			return model.Message{}, fmt.Errorf("%w: rollback create conversation: %v", cause, rollbackErr)
		}
		return model.Message{}, cause
	}

	var found int
	err = tx.QueryRowContext(ctx, `
SELECT 1 FROM conversations
WHERE ((initiator_id = ? AND recipient_id = ?) OR (initiator_id = ? AND recipient_id = ?))
  AND listing_id = ?
  AND status IN ('pending', 'accepted')
LIMIT 1`,
		conv.InitiatorID, conv.RecipientID, conv.RecipientID, conv.InitiatorID, conv.ListingID,
	).Scan(&found)
	switch {
	case err == nil:
		return rollbackWith(storage.ErrConflict)
	case !errors.Is(err, sql.ErrNoRows):
		return rollbackWith(fmt.Errorf("check conversation scope: %w", err))
	}

	_, err = tx.ExecContext(ctx, `
INSERT INTO conversations (
    id, initiator_id, recipient_id, status, listing_id, listing_name, puzzle_id, puzzle_name,
    created_at, responded_at, last_message_at
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		conv.ID, conv.InitiatorID, conv.RecipientID, string(conv.Status), conv.ListingID, conv.ListingName,
		conv.PuzzleID, conv.PuzzleName, toMillis(conv.CreatedAt), nullMillis(conv.RespondedAt), nullMillis(conv.LastMessageAt),
	)
	if isUniqueViolation(err) {
		return rollbackWith(storage.ErrConflict)
	}
	if err != nil {
		return rollbackWith(fmt.Errorf("insert conversation: %w", err))
	}

	first.ConversationID = conv.ID
	stored, err := appendMessage(ctx, tx, first)
	if err != nil {
		return rollbackWith(err)
	}
	if err := tx.Commit(); err != nil {
		return model.Message{}, fmt.Errorf("commit create conversation: %w", err)
	}
	return stored, nil
}

// GetConversation returns a conversation by id.
func (s *Store) GetConversation(ctx context.Context, conversationID string) (model.Conversation, error) {
	if err := ctx.Err(); err != nil {
		return model.Conversation{}, err
	}
	row := s.sqlDB.QueryRowContext(ctx, `SELECT `+conversationColumns+` FROM conversations c WHERE c.id = ?`, conversationID)
	conv, err := scanConversation(row)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Conversation{}, storage.ErrNotFound
	}
	if err != nil {
		return model.Conversation{}, fmt.Errorf("get conversation: %w", err)
	}
	return conv, nil
}

// FindConversations returns conversations between two players.
func (s *Store) FindConversations(ctx context.Context, playerA, playerB string, statuses ...model.ConversationStatus) ([]model.Conversation, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	query := `SELECT ` + conversationColumns + ` FROM conversations c
WHERE ((c.initiator_id = ? AND c.recipient_id = ?) OR (c.initiator_id = ? AND c.recipient_id = ?))`
	args := []any{playerA, playerB, playerB, playerA}
	if len(statuses) > 0 {
		placeholders := make([]string, len(statuses))
		for i, status := range statuses {
			placeholders[i] = "?"
			args = append(args, string(status))
		}
		query += ` AND c.status IN (` + strings.Join(placeholders, ", ") + `)`
	}
	convs, err := queryConversations(ctx, s.sqlDB, query+" "+activityOrder, args...)
	if err != nil {
		return nil, fmt.Errorf("find conversations: %w", err)
	}
	return convs, nil
}

// TransitionConversation performs a compare-and-set on the status.
func (s *Store) TransitionConversation(ctx context.Context, conversationID string, from, to model.ConversationStatus, at time.Time) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	result, err := s.sqlDB.ExecContext(ctx,
		`UPDATE conversations SET status = ?, responded_at = ? WHERE id = ? AND status = ?`,
		string(to), toMillis(at), conversationID, string(from),
	)
	if err != nil {
		return fmt.Errorf("transition conversation: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("transition conversation rows: %w", err)
	}
	if affected == 1 {
		return nil
	}
	if _, err := s.GetConversation(ctx, conversationID); err != nil {
		return err
	}
	return storage.ErrConflict
}

// ListConversationsByPlayer returns the player's conversations.
func (s *Store) ListConversationsByPlayer(ctx context.Context, playerID string) ([]model.Conversation, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	convs, err := queryConversations(ctx, s.sqlDB, `SELECT `+conversationColumns+` FROM conversations c
WHERE c.initiator_id = ? OR c.recipient_id = ? `+activityOrder, playerID, playerID)
	if err != nil {
		return nil, fmt.Errorf("list player conversations: %w", err)
	}
	return convs, nil
}

// ListConversationsByListing returns conversations linked to a listing.
func (s *Store) ListConversationsByListing(ctx context.Context, listingID string) ([]model.Conversation, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if listingID == "" {
		return nil, nil
	}
	convs, err := queryConversations(ctx, s.sqlDB, `SELECT `+conversationColumns+` FROM conversations c
WHERE c.listing_id = ? `+activityOrder, listingID)
	if err != nil {
		return nil, fmt.Errorf("list listing conversations: %w", err)
	}
	return convs, nil
}

// CountPendingRequests counts pending conversations addressed to recipient.
func (s *Store) CountPendingRequests(ctx context.Context, recipientID string) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	var count int
	if err := s.sqlDB.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM conversations WHERE recipient_id = ? AND status = 'pending'`, recipientID,
	).Scan(&count); err != nil {
		return 0, fmt.Errorf("count pending requests: %w", err)
	}
	return count, nil
}
