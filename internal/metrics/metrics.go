package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	NotificationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "notifygw_notifications_total",
			Help: "Notification lifecycle counter by stage",
		},
		[]string{"stage"}, // queued|sent|failed|exhausted|skipped
	)

	WebhookDeliveriesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "notifygw_webhook_deliveries_total",
			Help: "Webhook delivery attempts by outcome",
		},
		[]string{"outcome"}, // success|failure
	)

	ProviderSendsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "notifygw_provider_sends_total",
			Help: "Email submissions per provider by outcome",
		},
		[]string{"provider", "outcome"}, // ok|error
	)

	AttachmentFailuresTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "notifygw_attachment_failures_total",
			Help: "Attachments dropped because they could not be fetched",
		},
	)

	TickDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "notifygw_tick_duration_seconds",
			Help:    "Duration of one dispatcher tick",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 12),
		},
		[]string{"dispatcher"}, // email|webhook
	)
)

var registerOnce sync.Once

// MustRegister registers the collectors once; serve and workers may both call it.
func MustRegister(r prometheus.Registerer) {
	registerOnce.Do(func() {
		r.MustRegister(
			NotificationsTotal,
			WebhookDeliveriesTotal,
			ProviderSendsTotal,
			AttachmentFailuresTotal,
			TickDuration,
		)
	})
}
