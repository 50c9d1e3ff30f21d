// Package sqlite provides SQLite-backed persistence for the messaging core.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/capitalize-ai/player-messaging/internal/model"
	"github.com/capitalize-ai/player-messaging/internal/storage"
	"github.com/capitalize-ai/player-messaging/internal/storage/sqlite/migrations"
)

// Store implements storage.Store on top of database/sql.
type Store struct {
	sqlDB *sql.DB
}

var _ storage.Store = (*Store)(nil)

func toMillis(value time.Time) int64 {
	return value.UTC().UnixMilli()
}

func fromMillis(value int64) time.Time {
	return time.UnixMilli(value).UTC()
}

func nullMillis(value *time.Time) sql.NullInt64 {
	if value == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: toMillis(*value), Valid: true}
}

func timePtr(value sql.NullInt64) *time.Time {
	if !value.Valid {
		return nil
	}
	t := fromMillis(value.Int64)
	return &t
}

func nullString(value string) sql.NullString {
	return sql.NullString{String: value, Valid: value != ""}
}

func boolInt(value bool) int {
	if value {
		return 1
	}
	return 0
}

// Open opens the store at path and applies pending migrations.
func Open(path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}

	// Transactions begin IMMEDIATE: writers queue on busy_timeout rather
	// than failing when a read lock is upgraded.
	dsn := filepath.Clean(path) + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)&_pragma=foreign_keys(ON)&_txlock=immediate"
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	if err := sqlDB.Ping(); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if err := ensureForeignKeysEnabled(sqlDB); err != nil {
		_ = sqlDB.Close()
		return nil, err
	}
	if err := applyMigrations(context.Background(), sqlDB, migrations.FS); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	return &Store{sqlDB: sqlDB}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	if s == nil || s.sqlDB == nil {
		return nil
	}
	return s.sqlDB.Close()
}

// Ping checks that the database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	return s.sqlDB.PingContext(ctx)
}

func ensureForeignKeysEnabled(db *sql.DB) error {
	var enabled int
	if err := db.QueryRow("PRAGMA foreign_keys").Scan(&enabled); err != nil {
		return fmt.Errorf("check sqlite foreign key pragma: %w", err)
	}
	if enabled != 1 {
		return fmt.Errorf("sqlite foreign keys are disabled")
	}
	return nil
}

func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}

type queryer interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// Players

// GetPlayer returns a player by id.
func (s *Store) GetPlayer(ctx context.Context, playerID string) (model.Player, error) {
	if err := ctx.Err(); err != nil {
		return model.Player{}, err
	}
	var (
		player     model.Player
		allowDMs   int
		banned     int
		mutedUntil sql.NullInt64
	)
	err := s.sqlDB.QueryRowContext(ctx, `
SELECT id, display_name, email, locale, avatar_url, allow_direct_messages, banned, messaging_muted_until
FROM players WHERE id = ?`, playerID).Scan(
		&player.ID, &player.DisplayName, &player.Email, &player.Locale, &player.AvatarURL,
		&allowDMs, &banned, &mutedUntil,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Player{}, storage.ErrNotFound
	}
	if err != nil {
		return model.Player{}, fmt.Errorf("get player: %w", err)
	}
	player.AllowDirectMessages = allowDMs == 1
	player.Banned = banned == 1
	player.MessagingMutedUntil = timePtr(mutedUntil)
	return player, nil
}

// PutPlayer upserts a player.
func (s *Store) PutPlayer(ctx context.Context, player model.Player) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if strings.TrimSpace(player.ID) == "" {
		return fmt.Errorf("player id is required")
	}
	_, err := s.sqlDB.ExecContext(ctx, `
INSERT INTO players (id, display_name, email, locale, avatar_url, allow_direct_messages, banned, messaging_muted_until)
VALUES (?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT (id) DO UPDATE SET
    display_name = excluded.display_name,
    email = excluded.email,
    locale = excluded.locale,
    avatar_url = excluded.avatar_url,
    allow_direct_messages = excluded.allow_direct_messages,
    banned = excluded.banned,
    messaging_muted_until = excluded.messaging_muted_until`,
		player.ID, player.DisplayName, player.Email, player.Locale, player.AvatarURL,
		boolInt(player.AllowDirectMessages), boolInt(player.Banned), nullMillis(player.MessagingMutedUntil),
	)
	if err != nil {
		return fmt.Errorf("put player: %w", err)
	}
	return nil
}

// Blocks

// PutBlock records a block edge; repeating it keeps the original row.
func (s *Store) PutBlock(ctx context.Context, block model.Block) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	_, err := s.sqlDB.ExecContext(ctx,
		`INSERT INTO blocks (blocker_id, blocked_id, created_at) VALUES (?, ?, ?) ON CONFLICT DO NOTHING`,
		block.BlockerID, block.BlockedID, toMillis(block.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("put block: %w", err)
	}
	return nil
}

// DeleteBlock removes a block edge if present.
func (s *Store) DeleteBlock(ctx context.Context, blockerID, blockedID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if _, err := s.sqlDB.ExecContext(ctx,
		`DELETE FROM blocks WHERE blocker_id = ? AND blocked_id = ?`, blockerID, blockedID,
	); err != nil {
		return fmt.Errorf("delete block: %w", err)
	}
	return nil
}

// IsBlocked reports whether blocker has blocked blocked.
func (s *Store) IsBlocked(ctx context.Context, blockerID, blockedID string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	var found int
	err := s.sqlDB.QueryRowContext(ctx,
		`SELECT 1 FROM blocks WHERE blocker_id = ? AND blocked_id = ?`, blockerID, blockedID,
	).Scan(&found)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("check block: %w", err)
	}
	return true, nil
}

// ListBlocked returns the edges created by blocker, oldest first.
func (s *Store) ListBlocked(ctx context.Context, blockerID string) ([]model.Block, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	rows, err := s.sqlDB.QueryContext(ctx, `
SELECT blocker_id, blocked_id, created_at FROM blocks
WHERE blocker_id = ? ORDER BY created_at, blocked_id`, blockerID)
	if err != nil {
		return nil, fmt.Errorf("list blocks: %w", err)
	}
	defer rows.Close()

	var blocks []model.Block
	for rows.Next() {
		var (
			block     model.Block
			createdAt int64
		)
		if err := rows.Scan(&block.BlockerID, &block.BlockedID, &createdAt); err != nil {
			return nil, fmt.Errorf("scan block: %w", err)
		}
		block.CreatedAt = fromMillis(createdAt)
		blocks = append(blocks, block)
	}
	return blocks, rows.Err()
}
