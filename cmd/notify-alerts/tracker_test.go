package main

import (
	"testing"
	"time"

	"github.com/sapliy/staff-notify/internal/notification"
)

func failedEvent(t *testing.T, id string, channels ...notification.Channel) []byte {
	t.Helper()
	evt, err := notification.NewEvent(notification.EventNotificationFailed, notification.DispatchEventData{
		NotificationID: id,
		Title:          "Title " + id,
		Channels:       channels,
		Status:         notification.StatusFailed,
	})
	if err != nil {
		t.Fatal(err)
	}
	body, err := evt.Marshal()
	if err != nil {
		t.Fatal(err)
	}
	return body
}

func TestFailureTracker(t *testing.T) {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	tracker := NewFailureTracker(10*time.Minute, 3)
	tracker.now = func() time.Time { return now }

	for i, id := range []string{"n1", "n2"} {
		alerts, err := tracker.Observe(failedEvent(t, id, notification.SMS))
		if err != nil {
			t.Fatalf("Unexpected error: %v", err)
		}
		if len(alerts) != 0 {
			t.Fatalf("Expected no alert after %d failures, got %d", i+1, len(alerts))
		}
		now = now.Add(time.Minute)
	}

	alerts, err := tracker.Observe(failedEvent(t, "n3", notification.SMS, notification.Email))
	if err != nil {
		t.Fatal(err)
	}
	if len(alerts) != 1 {
		t.Fatalf("Expected 1 alert, got %d", len(alerts))
	}
	if alerts[0].Channel != notification.SMS || alerts[0].Failures != 3 || alerts[0].NotificationID != "n3" {
		t.Errorf("Unexpected alert: %+v", alerts[0])
	}

	// The window restarts after an alert.
	alerts, _ = tracker.Observe(failedEvent(t, "n4", notification.SMS))
	if len(alerts) != 0 {
		t.Errorf("Expected window reset after alert, got %d alerts", len(alerts))
	}
}

func TestFailureTrackerWindowExpiry(t *testing.T) {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	tracker := NewFailureTracker(5*time.Minute, 2)
	tracker.now = func() time.Time { return now }

	if alerts, _ := tracker.Observe(failedEvent(t, "n1", notification.Email)); len(alerts) != 0 {
		t.Fatal("Expected no alert on first failure")
	}
	now = now.Add(6 * time.Minute)
	if alerts, _ := tracker.Observe(failedEvent(t, "n2", notification.Email)); len(alerts) != 0 {
		t.Error("Expected the expired failure not to count")
	}
}

func TestFailureTrackerIgnoresOtherEvents(t *testing.T) {
	tracker := NewFailureTracker(time.Minute, 1)

	evt, _ := notification.NewEvent(notification.EventNotificationSent, notification.DispatchEventData{
		Channels: []notification.Channel{notification.Email},
	})
	body, _ := evt.Marshal()
	alerts, err := tracker.Observe(body)
	if err != nil || len(alerts) != 0 {
		t.Errorf("Expected sent events to be ignored, got %v %v", alerts, err)
	}

	if _, err := tracker.Observe([]byte("not json")); err == nil {
		t.Error("Expected decode error for malformed event")
	}
}
