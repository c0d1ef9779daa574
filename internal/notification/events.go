package notification

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// EventType names a notification lifecycle event.
type EventType string

const (
	EventNotificationSent      EventType = "notification.sent"
	EventNotificationFailed    EventType = "notification.failed"
	EventNotificationScheduled EventType = "notification.scheduled"
	EventAcknowledgement       EventType = "acknowledgement.recorded"
)

// Event is the envelope published to the events topic.
type Event struct {
	ID        string          `json:"id"`
	Type      EventType       `json:"type"`
	Timestamp time.Time       `json:"timestamp"`
	Data      json.RawMessage `json:"data"`
}

// DispatchEventData describes the outcome of sending a notification.
type DispatchEventData struct {
	NotificationID string    `json:"notification_id"`
	Title          string    `json:"title"`
	Channels       []Channel `json:"channels"`
	Recipients     int       `json:"recipients"`
	Delivered      int       `json:"delivered"`
	Status         Status    `json:"status"`
}

// AcknowledgementEventData describes a recorded acknowledgement.
type AcknowledgementEventData struct {
	NotificationID string    `json:"notification_id"`
	Recipient      string    `json:"recipient"`
	Option         string    `json:"option"`
	RespondedAt    time.Time `json:"responded_at"`
}

// EventPublisher is satisfied by messaging.KafkaProducer.
type EventPublisher interface {
	Publish(ctx context.Context, key string, value []byte) error
}

// NewEvent creates a new event with the given type and data.
func NewEvent(eventType EventType, data any) (*Event, error) {
	dataBytes, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}

	return &Event{
		ID:        "evt_" + uuid.New().String(),
		Type:      eventType,
		Timestamp: time.Now().UTC(),
		Data:      dataBytes,
	}, nil
}

// Marshal encodes the event envelope.
func (e *Event) Marshal() ([]byte, error) {
	return json.Marshal(e)
}
