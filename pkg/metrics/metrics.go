// Package metrics provides Prometheus metrics instrumentation.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RequestDuration tracks HTTP request duration.
	RequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "api_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"method", "path", "status"},
	)

	// RequestsTotal tracks total HTTP requests.
	RequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "api_requests_total",
			Help: "Total HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	// ConversationsTotal tracks conversations created, by initial status and
	// whether a listing scopes them.
	ConversationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "conversations_total",
			Help: "Total conversations created",
		},
		[]string{"status", "context"},
	)

	// ConversationTransitionsTotal tracks status changes.
	ConversationTransitionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "conversation_transitions_total",
			Help: "Total conversation status transitions",
		},
		[]string{"to"},
	)

	// MessagesTotal tracks messages appended, by kind (player or system).
	MessagesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "messages_total",
			Help: "Total messages sent",
		},
		[]string{"kind"},
	)

	// MessagesReadTotal tracks messages swept to read.
	MessagesReadTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "messages_read_total",
			Help: "Total messages marked as read",
		},
	)

	// DomainRejectionsTotal tracks requests refused by a domain rule.
	DomainRejectionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "messaging_domain_rejections_total",
			Help: "Requests rejected by messaging rules",
		},
		[]string{"code"},
	)

	// HubPublishFailuresTotal tracks best-effort hub publishes that failed.
	HubPublishFailuresTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hub_publish_failures_total",
			Help: "Real-time hub publishes that failed",
		},
		[]string{"topic"},
	)

	// DigestRunDuration tracks digest batch duration.
	DigestRunDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "digest_run_duration_seconds",
			Help:    "Unread digest batch duration",
			Buckets: []float64{.01, .05, .1, .5, 1, 5, 10, 30, 60, 120},
		},
	)

	// DigestPlayersTotal tracks per-player digest outcomes.
	DigestPlayersTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "digest_players_total",
			Help: "Players processed by the unread digest, by outcome",
		},
		[]string{"outcome"},
	)
)

// RecordRequest records metrics for an HTTP request.
func RecordRequest(method, path, status string, duration float64) {
	RequestDuration.WithLabelValues(method, path, status).Observe(duration)
	RequestsTotal.WithLabelValues(method, path, status).Inc()
}

// RecordConversation records a created conversation.
func RecordConversation(status string, listing bool) {
	context := "direct"
	if listing {
		context = "listing"
	}
	ConversationsTotal.WithLabelValues(status, context).Inc()
}

// RecordDigestOutcome records the outcome for one digest candidate.
func RecordDigestOutcome(outcome string) {
	DigestPlayersTotal.WithLabelValues(outcome).Inc()
}
