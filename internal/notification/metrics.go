package notification

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	deliveriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "notify_deliveries_total",
		Help: "Deliveries attempted, by channel and outcome.",
	}, []string{"channel", "outcome"})

	notificationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "notify_notifications_total",
		Help: "Notifications processed, by resulting status.",
	}, []string{"status"})

	acknowledgementsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "notify_acknowledgements_total",
		Help: "Acknowledgement responses recorded, by option.",
	}, []string{"option"})

	historyFilterDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "notify_history_filter_duration_seconds",
		Help:    "Time spent loading and filtering notification history.",
		Buckets: prometheus.DefBuckets,
	})
)

func recordDelivery(c Channel, err error) {
	outcome := "success"
	if err != nil {
		outcome = "error"
	}
	deliveriesTotal.WithLabelValues(string(c), outcome).Inc()
}
