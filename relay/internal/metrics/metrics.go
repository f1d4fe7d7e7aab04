package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Webhook intake
	WebhooksTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "relay_webhooks_total",
			Help: "Total number of webhook notifications by outcome",
		},
		[]string{"outcome"},
	)

	DecryptDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "relay_decrypt_duration_seconds",
			Help:    "Duration of payload decryption in seconds",
			Buckets: []float64{.00005, .0001, .00025, .0005, .001, .0025, .005, .01},
		},
	)

	// Classification and broadcast
	EventsPublishedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "relay_events_published_total",
			Help: "Total number of normalized events published, by kind",
		},
		[]string{"kind"},
	)

	PublishErrorsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "relay_publish_errors_total",
			Help: "Total number of publish calls that reported an error",
		},
	)

	// Real-time transport
	Subscribers = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "relay_subscribers",
			Help: "Number of currently connected real-time subscribers",
		},
	)

	MessagesDroppedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "relay_messages_dropped_total",
			Help: "Messages dropped because a subscriber buffer was full",
		},
	)

	// Rate limiting
	RateLimitHits = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "relay_rate_limit_hits_total",
			Help: "Total number of webhook requests rejected by the rate limiter",
		},
	)
)

// Webhook outcome label values.
const (
	OutcomeProcessed   = "processed"
	OutcomeRejected    = "rejected"
	OutcomeRateLimited = "rate_limited"
	OutcomeError       = "error"
)
