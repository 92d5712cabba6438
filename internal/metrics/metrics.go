// Package metrics defines the Prometheus metrics exposed on /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// WebhookRequests counts inbound aggregator webhook calls by outcome.
	WebhookRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "smsbridge_webhook_requests_total",
		Help: "Total inbound SMS webhook requests by outcome.",
	}, []string{"outcome"})

	// Registrations counts registration submissions by outcome.
	Registrations = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "smsbridge_registrations_total",
		Help: "Total registration submissions by outcome.",
	}, []string{"outcome"})

	// SMSSent counts outbound SMS sends by provider.
	SMSSent = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "smsbridge_sms_sent_total",
		Help: "Total outbound SMS messages sent by provider.",
	}, []string{"provider"})

	// ConversationsSwept counts conversations evicted by the expiry sweep.
	ConversationsSwept = promauto.NewCounter(prometheus.CounterOpts{
		Name: "smsbridge_conversations_swept_total",
		Help: "Total conversations evicted by the expiry sweep.",
	})
)

// Registration outcome label values.
const (
	OutcomeOK        = "ok"
	OutcomeDuplicate = "duplicate"
	OutcomeError     = "error"
)
