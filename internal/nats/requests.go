package nats

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/capitalize-ai/player-messaging/internal/model"
)

// requester is satisfied by *nats.Conn.
type requester interface {
	RequestWithContext(ctx context.Context, subject string, data []byte) (*nats.Msg, error)
}

type unreadNotificationsRequest struct {
	PlayerID string `json:"player_id"`
}

type unreadNotificationsReply struct {
	Count int    `json:"count"`
	Error string `json:"error,omitempty"`
}

// NotificationCounter asks the notification service for a player's unread
// non-message notifications.
type NotificationCounter struct {
	conn    requester
	timeout time.Duration
}

// NewNotificationCounter creates a counter bounded by timeout per request.
func NewNotificationCounter(conn requester, timeout time.Duration) *NotificationCounter {
	return &NotificationCounter{conn: conn, timeout: timeout}
}

// CountUnreadNotifications implements digest.NotificationCounter.
func (c *NotificationCounter) CountUnreadNotifications(ctx context.Context, playerID string) (int, error) {
	data, err := json.Marshal(unreadNotificationsRequest{PlayerID: playerID})
	if err != nil {
		return 0, err
	}
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	msg, err := c.conn.RequestWithContext(ctx, SubjectUnreadNotifications, data)
	if err != nil {
		return 0, fmt.Errorf("request unread notifications: %w", err)
	}
	var reply unreadNotificationsReply
	if err := json.Unmarshal(msg.Data, &reply); err != nil {
		return 0, fmt.Errorf("decode unread notifications: %w", err)
	}
	if reply.Error != "" {
		return 0, fmt.Errorf("notification service: %s", reply.Error)
	}
	return reply.Count, nil
}

// ReportPublisher forwards conversation reports to moderation.
type ReportPublisher struct {
	conn publisher
}

// NewReportPublisher creates a report publisher over conn.
func NewReportPublisher(conn publisher) *ReportPublisher {
	return &ReportPublisher{conn: conn}
}

// SubmitReport implements service.ReportSink.
func (p *ReportPublisher) SubmitReport(ctx context.Context, report model.ConversationReport) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := json.Marshal(report)
	if err != nil {
		return fmt.Errorf("failed to marshal report: %w", err)
	}
	if err := p.conn.Publish(SubjectConversationReport, data); err != nil {
		return fmt.Errorf("failed to publish report: %w", err)
	}
	return nil
}
