package nats

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/nats-io/nats.go/jetstream"

	"github.com/capitalize-ai/player-messaging/internal/model"
)

const (
	// DigestStreamName is the stream carrying digest email commands.
	DigestStreamName = "DIGEST_EMAILS"

	// DigestSubjectPrefix is the prefix of digest command subjects.
	DigestSubjectPrefix = "digest.email"

	// digestDuplicateWindow must outlast the gap between two digest runs so a
	// retried dispatch of the same boundary is dropped by the server.
	digestDuplicateWindow = 2 * time.Hour
)

// DigestSubject returns the subject a player's digest command is published on.
func DigestSubject(playerID string) string {
	return DigestSubjectPrefix + "." + playerID
}

// StreamManager owns the digest command stream.
type StreamManager struct {
	js jetstream.JetStream
}

// NewStreamManager creates a new stream manager.
func NewStreamManager(js jetstream.JetStream) *StreamManager {
	return &StreamManager{js: js}
}

// EnsureStream ensures the digest stream exists with proper configuration.
func (m *StreamManager) EnsureStream(ctx context.Context) error {
	_, err := m.js.Stream(ctx, DigestStreamName)
	if err == nil {
		return nil
	}
	if !errors.Is(err, jetstream.ErrStreamNotFound) {
		return fmt.Errorf("failed to look up stream: %w", err)
	}

	_, err = m.js.CreateStream(ctx, jetstream.StreamConfig{
		Name:        DigestStreamName,
		Subjects:    []string{DigestSubjectPrefix + ".>"},
		Retention:   jetstream.WorkQueuePolicy,
		MaxAge:      7 * 24 * time.Hour,
		Storage:     jetstream.FileStorage,
		Replicas:    1,
		Duplicates:  digestDuplicateWindow,
		Description: "Unread message digest emails awaiting delivery",
	})
	if err != nil {
		return fmt.Errorf("failed to create stream: %w", err)
	}
	return nil
}

// Dispatch publishes a digest command. The message id lets JetStream drop a
// second publish for the same player and boundary.
func (m *StreamManager) Dispatch(ctx context.Context, email model.DigestEmail) error {
	data, err := json.Marshal(email)
	if err != nil {
		return fmt.Errorf("failed to marshal digest: %w", err)
	}

	_, err = m.js.Publish(ctx, DigestSubject(email.PlayerID), data, jetstream.WithMsgID(email.DedupKey()))
	if err != nil {
		return fmt.Errorf("failed to publish digest: %w", err)
	}
	return nil
}
