package main

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/sapliy/staff-notify/internal/notification"
)

var alertsRaised = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "notify_alerts_raised_total",
	Help: "Total number of failed-delivery alerts raised, by channel.",
}, []string{"channel"})

// Alert reports a channel whose notifications keep failing.
type Alert struct {
	Channel        notification.Channel `json:"channel"`
	Failures       int                  `json:"failures"`
	Window         string               `json:"window"`
	NotificationID string               `json:"last_notification_id"`
	Title          string               `json:"last_title"`
	RaisedAt       time.Time            `json:"raised_at"`
}

// FailureTracker counts failed notifications per channel in a sliding window.
type FailureTracker struct {
	mu        sync.Mutex
	window    time.Duration
	threshold int
	failures  map[notification.Channel][]time.Time
	now       func() time.Time
}

func NewFailureTracker(window time.Duration, threshold int) *FailureTracker {
	if window <= 0 {
		window = 10 * time.Minute
	}
	if threshold <= 0 {
		threshold = 3
	}
	return &FailureTracker{
		window:    window,
		threshold: threshold,
		failures:  make(map[notification.Channel][]time.Time),
		now:       time.Now,
	}
}

// Observe decodes one event and returns the alerts it triggers. Only
// notification.failed events are counted. A channel's window is cleared once
// it alerts so that a burst raises one alert.
func (t *FailureTracker) Observe(value []byte) ([]Alert, error) {
	var evt notification.Event
	if err := json.Unmarshal(value, &evt); err != nil {
		return nil, fmt.Errorf("decoding event: %w", err)
	}
	if evt.Type != notification.EventNotificationFailed {
		return nil, nil
	}

	var data notification.DispatchEventData
	if err := json.Unmarshal(evt.Data, &data); err != nil {
		return nil, fmt.Errorf("decoding %s data: %w", evt.Type, err)
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.now()
	var alerts []Alert
	for _, c := range data.Channels {
		fresh := t.failures[c][:0]
		for _, at := range t.failures[c] {
			if now.Sub(at) < t.window {
				fresh = append(fresh, at)
			}
		}
		fresh = append(fresh, now)

		if len(fresh) >= t.threshold {
			alerts = append(alerts, Alert{
				Channel:        c,
				Failures:       len(fresh),
				Window:         t.window.String(),
				NotificationID: data.NotificationID,
				Title:          data.Title,
				RaisedAt:       now.UTC(),
			})
			alertsRaised.WithLabelValues(string(c)).Inc()
			fresh = nil
		}
		t.failures[c] = fresh
	}
	return alerts, nil
}
