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

// GetNotificationLog returns the player's digest watermark.
func (s *Store) GetNotificationLog(ctx context.Context, playerID string) (model.NotificationLogEntry, error) {
	if err := ctx.Err(); err != nil {
		return model.NotificationLogEntry{}, err
	}
	var (
		entry          model.NotificationLogEntry
		notifiedAt     int64
		boundarySentAt int64
		boundarySeq    int64
	)
	err := s.sqlDB.QueryRowContext(ctx, `
SELECT player_id, notified_at, boundary_sent_at, boundary_seq, boundary_message_id, messages_included
FROM notification_log WHERE player_id = ?`, playerID).Scan(
		&entry.PlayerID, &notifiedAt, &boundarySentAt, &boundarySeq, &entry.BoundaryMessageID, &entry.MessagesIncluded,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return model.NotificationLogEntry{}, storage.ErrNotFound
	}
	if err != nil {
		return model.NotificationLogEntry{}, fmt.Errorf("get notification log: %w", err)
	}
	entry.NotifiedAt = fromMillis(notifiedAt)
	entry.BoundarySentAt = fromMillis(boundarySentAt)
	entry.BoundarySequence = uint64(boundarySeq)
	return entry, nil
}

// PutNotificationLog upserts the player's digest watermark.
func (s *Store) PutNotificationLog(ctx context.Context, entry model.NotificationLogEntry) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	_, err := s.sqlDB.ExecContext(ctx, `
INSERT INTO notification_log (player_id, notified_at, boundary_sent_at, boundary_seq, boundary_message_id, messages_included)
VALUES (?, ?, ?, ?, ?, ?)
ON CONFLICT (player_id) DO UPDATE SET
    notified_at = excluded.notified_at,
    boundary_sent_at = excluded.boundary_sent_at,
    boundary_seq = excluded.boundary_seq,
    boundary_message_id = excluded.boundary_message_id,
    messages_included = excluded.messages_included`,
		entry.PlayerID, toMillis(entry.NotifiedAt), toMillis(entry.BoundarySentAt),
		int64(entry.BoundarySequence), entry.BoundaryMessageID, entry.MessagesIncluded,
	)
	if err != nil {
		return fmt.Errorf("put notification log: %w", err)
	}
	return nil
}

// ListDigestCandidates returns players with unread messages past cutoff that
// their watermark does not cover. Each participant branch applies the same
// predicate as unreadForPlayerSQL.
func (s *Store) ListDigestCandidates(ctx context.Context, cutoff time.Time) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	rows, err := s.sqlDB.QueryContext(ctx, `
SELECT DISTINCT u.player_id FROM (
    SELECT c.initiator_id AS player_id, m.sent_at AS sent_at, m.seq AS seq
    FROM messages m
    JOIN conversations c ON c.id = m.conversation_id
    WHERE c.status = 'accepted'
      AND m.read_at IS NULL
      AND (m.sender_id IS NULL OR m.sender_id <> c.initiator_id)
    UNION ALL
    SELECT c.recipient_id AS player_id, m.sent_at AS sent_at, m.seq AS seq
    FROM messages m
    JOIN conversations c ON c.id = m.conversation_id
    WHERE c.status = 'accepted'
      AND m.read_at IS NULL
      AND (m.sender_id IS NULL OR m.sender_id <> c.recipient_id)
) u
LEFT JOIN notification_log l ON l.player_id = u.player_id
WHERE u.sent_at < ?
  AND (
    l.player_id IS NULL
    OR u.sent_at > l.boundary_sent_at
    OR (u.sent_at = l.boundary_sent_at AND u.seq > l.boundary_seq)
  )
ORDER BY u.player_id`, toMillis(cutoff))
	if err != nil {
		return nil, fmt.Errorf("list digest candidates: %w", err)
	}
	defer rows.Close()

	var players []string
	for rows.Next() {
		var playerID string
		if err := rows.Scan(&playerID); err != nil {
			return nil, fmt.Errorf("scan digest candidate: %w", err)
		}
		players = append(players, playerID)
	}
	return players, rows.Err()
}
