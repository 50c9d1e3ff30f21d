package nats

import "strings"

// Listing events raised by the marketplace.
const (
	SubjectListingReserved           = "marketplace.listing.reserved"
	SubjectListingReservationRemoved = "marketplace.listing.reservation_removed"
	SubjectListingSold               = "marketplace.listing.sold"

	// SubjectConversationReport carries reports to moderation.
	SubjectConversationReport = "moderation.conversation.report"

	// SubjectUnreadNotifications is answered by the notification service.
	SubjectUnreadNotifications = "notifications.unread_count"

	// QueueGroup shares inbound events between service replicas.
	QueueGroup = "player-messaging"
)

// TopicSubject maps a hub topic such as conversation/{id}/typing onto a
// NATS subject.
func TopicSubject(topic string) string {
	return strings.ReplaceAll(strings.Trim(topic, "/"), "/", ".")
}
