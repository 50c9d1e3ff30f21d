package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/capitalize-ai/player-messaging/internal/model"
	"github.com/capitalize-ai/player-messaging/internal/storage"
)

const messageColumns = `m.seq, m.id, m.conversation_id, m.sender_id, m.content, m.system_type, m.system_target_id, m.sent_at, m.read_at`

// unreadForPlayerSQL is the unread predicate shared by the badge count, the
// digest listing and model.IsUnreadFor. Bind the player id three times.
const unreadForPlayerSQL = `
FROM messages m
JOIN conversations c ON c.id = m.conversation_id
WHERE c.status = 'accepted'
  AND (c.initiator_id = ? OR c.recipient_id = ?)
  AND (m.sender_id IS NULL OR m.sender_id <> ?)
  AND m.read_at IS NULL`

func scanMessage(row rowScanner, extra ...any) (model.Message, error) {
	var (
		msg          model.Message
		seq          int64
		senderID     sql.NullString
		systemType   sql.NullString
		systemTarget sql.NullString
		sentAt       int64
		readAt       sql.NullInt64
	)
	dest := append([]any{
		&seq, &msg.ID, &msg.ConversationID, &senderID, &msg.Content, &systemType, &systemTarget, &sentAt, &readAt,
	}, extra...)
	if err := row.Scan(dest...); err != nil {
		return model.Message{}, err
	}
	msg.Sequence = uint64(seq)
	msg.SenderID = senderID.String
	msg.SystemType = model.SystemMessageType(systemType.String)
	msg.SystemTargetID = systemTarget.String
	msg.SentAt = fromMillis(sentAt)
	msg.ReadAt = timePtr(readAt)
	return msg, nil
}

func appendMessage(ctx context.Context, q queryer, msg model.Message) (model.Message, error) {
	result, err := q.ExecContext(ctx,
		`UPDATE conversations SET last_message_at = ? WHERE id = ?`,
		toMillis(msg.SentAt), msg.ConversationID,
	)
	if err != nil {
		return model.Message{}, fmt.Errorf("touch conversation: %w", err)
	}
	if affected, err := result.RowsAffected(); err != nil {
		return model.Message{}, fmt.Errorf("touch conversation rows: %w", err)
	} else if affected == 0 {
		return model.Message{}, storage.ErrNotFound
	}

	result, err = q.ExecContext(ctx, `
INSERT INTO messages (id, conversation_id, sender_id, content, system_type, system_target_id, sent_at)
VALUES (?, ?, ?, ?, ?, ?, ?)`,
		msg.ID, msg.ConversationID, nullString(msg.SenderID), msg.Content,
		nullString(string(msg.SystemType)), nullString(msg.SystemTargetID), toMillis(msg.SentAt),
	)
	if err != nil {
		return model.Message{}, fmt.Errorf("insert message: %w", err)
	}
	seq, err := result.LastInsertId()
	if err != nil {
		return model.Message{}, fmt.Errorf("message sequence: %w", err)
	}
	msg.Sequence = uint64(seq)
	msg.SentAt = fromMillis(toMillis(msg.SentAt))
	return msg, nil
}

// AppendMessage appends a message and touches the conversation.
func (s *Store) AppendMessage(ctx context.Context, msg model.Message) (model.Message, error) {
	if err := ctx.Err(); err != nil {
		return model.Message{}, err
	}
	tx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return model.Message{}, fmt.Errorf("begin append message: %w", err)
	}
	stored, err := appendMessage(ctx, tx, msg)
	if err != nil {
		if rollbackErr := tx.Rollback(); rollbackErr != nil {
			return model.Message{}, fmt.Errorf("%w: rollback append message: %v", err, rollbackErr)
		}
		return model.Message{}, err
	}
	if err := tx.Commit(); err != nil {
		return model.Message{}, fmt.Errorf("commit append message: %w", err)
	}
	return stored, nil
}

// ListMessages returns a page of a conversation in display order.
func (s *Store) ListMessages(ctx context.Context, conversationID string, offset, limit int) ([]model.Message, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if offset < 0 {
		offset = 0
	}
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.sqlDB.QueryContext(ctx, `SELECT `+messageColumns+` FROM messages m
WHERE m.conversation_id = ?
ORDER BY m.sent_at, m.seq
LIMIT ? OFFSET ?`, conversationID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	defer rows.Close()

	messages := []model.Message{}
	for rows.Next() {
		msg, err := scanMessage(rows)
		if err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		messages = append(messages, msg)
	}
	return messages, rows.Err()
}

// LastMessage returns the newest message in a conversation.
func (s *Store) LastMessage(ctx context.Context, conversationID string) (model.Message, error) {
	if err := ctx.Err(); err != nil {
		return model.Message{}, err
	}
	row := s.sqlDB.QueryRowContext(ctx, `SELECT `+messageColumns+` FROM messages m
WHERE m.conversation_id = ?
ORDER BY m.sent_at DESC, m.seq DESC
LIMIT 1`, conversationID)
	msg, err := scanMessage(row)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Message{}, storage.ErrNotFound
	}
	if err != nil {
		return model.Message{}, fmt.Errorf("last message: %w", err)
	}
	return msg, nil
}

// MarkRead sets read_at on the viewer's unread incoming messages in one
// conditional update.
func (s *Store) MarkRead(ctx context.Context, conversationID, viewerID string, at time.Time) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	result, err := s.sqlDB.ExecContext(ctx, `
UPDATE messages SET read_at = ?
WHERE conversation_id = ?
  AND read_at IS NULL
  AND (sender_id IS NULL OR sender_id <> ?)`,
		toMillis(at), conversationID, viewerID,
	)
	if err != nil {
		return 0, fmt.Errorf("mark messages read: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("mark messages read rows: %w", err)
	}
	return int(affected), nil
}

// CountUnread counts the player's unread messages.
func (s *Store) CountUnread(ctx context.Context, playerID string) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	var count int
	if err := s.sqlDB.QueryRowContext(ctx, `SELECT COUNT(*) `+unreadForPlayerSQL,
		playerID, playerID, playerID,
	).Scan(&count); err != nil {
		return 0, fmt.Errorf("count unread: %w", err)
	}
	return count, nil
}

// CountUnreadInConversation counts unread messages for the player in one
// conversation.
func (s *Store) CountUnreadInConversation(ctx context.Context, conversationID, playerID string) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	var count int
	if err := s.sqlDB.QueryRowContext(ctx, `SELECT COUNT(*) `+unreadForPlayerSQL+` AND c.id = ?`,
		playerID, playerID, playerID, conversationID,
	).Scan(&count); err != nil {
		return 0, fmt.Errorf("count conversation unread: %w", err)
	}
	return count, nil
}

// ListUnread returns the player's unread messages, oldest first.
func (s *Store) ListUnread(ctx context.Context, playerID string) ([]model.UnreadMessage, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	rows, err := s.sqlDB.QueryContext(ctx, `SELECT `+messageColumns+`,
    c.initiator_id, c.recipient_id, c.status, c.listing_id, c.listing_name, c.puzzle_id, c.puzzle_name,
    c.created_at, c.responded_at, c.last_message_at `+unreadForPlayerSQL+`
ORDER BY m.sent_at, m.seq`, playerID, playerID, playerID)
	if err != nil {
		return nil, fmt.Errorf("list unread: %w", err)
	}
	defer rows.Close()

	var unread []model.UnreadMessage
	for rows.Next() {
		var (
			conv          model.Conversation
			status        string
			createdAt     int64
			respondedAt   sql.NullInt64
			lastMessageAt sql.NullInt64
		)
		msg, err := scanMessage(rows,
			&conv.InitiatorID, &conv.RecipientID, &status, &conv.ListingID, &conv.ListingName,
			&conv.PuzzleID, &conv.PuzzleName, &createdAt, &respondedAt, &lastMessageAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan unread: %w", err)
		}
		conv.ID = msg.ConversationID
		conv.Status = model.ConversationStatus(status)
		conv.CreatedAt = fromMillis(createdAt)
		conv.RespondedAt = timePtr(respondedAt)
		conv.LastMessageAt = timePtr(lastMessageAt)
		unread = append(unread, model.UnreadMessage{Message: msg, Conversation: conv})
	}
	return unread, rows.Err()
}
