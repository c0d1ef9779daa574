package notification

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/sapliy/staff-notify/internal/directory"
	"go.uber.org/zap"
)

func TestQueueFor(t *testing.T) {
	tests := map[Channel]string{
		Email:  "email.notifications",
		SMS:    "sms.notifications",
		Portal: "portal.notifications",
	}
	for c, want := range tests {
		if got := QueueFor(c); got != want {
			t.Errorf("QueueFor(%s): expected %s, got %s", c, want, got)
		}
	}
}

func TestBuildDeliveries(t *testing.T) {
	deadline := time.Date(2026, 3, 12, 17, 0, 0, 0, time.UTC)
	n := &Notification{
		ID:       "n1",
		Title:    "Fire drill",
		Message:  "Assemble outside",
		Channels: []Channel{Email, SMS},
		Content: map[Channel]ChannelContent{
			Email: {Subject: "Drill on Thursday", Body: "Full details inside"},
			SMS:   {Body: "Drill Thu 10:00"},
		},
		Recipients:              []string{"Alice", "Bob"},
		RequiresAcknowledgement: true,
		AcknowledgementSettings: &AcknowledgementSettings{Deadline: &deadline},
	}
	employees := []directory.Employee{
		{Name: "Alice", Email: "alice@example.com", Mobile: "+15550001"},
		{Name: "Bob", Email: "bob@example.com"},
	}

	deliveries, skipped, err := BuildDeliveries(n, employees, "https://portal/notifications/n1")
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if len(deliveries) != 3 {
		t.Fatalf("Expected 3 deliveries, got %d", len(deliveries))
	}
	if len(skipped) != 1 || skipped[0] != "Bob (sms)" {
		t.Errorf("Expected Bob skipped for sms, got %v", skipped)
	}

	email := deliveries[0]
	if email.Subject != "Drill on Thursday" || !strings.Contains(email.Body, "Full details inside") {
		t.Errorf("Unexpected email delivery: %+v", email)
	}
	sms := deliveries[2]
	if sms.Address != "+15550001" {
		t.Errorf("Expected mobile address, got %s", sms.Address)
	}
	want := "Fire drill: Drill Thu 10:00 Please acknowledge in the staff portal by 12 Mar 17:00."
	if sms.Body != want {
		t.Errorf("Expected sms body %q, got %q", want, sms.Body)
	}
}

func TestRouter_Dispatch(t *testing.T) {
	pub := &mockPublisher{}
	r := NewRouter(pub, zap.NewNop())

	deliveries := []Delivery{
		{NotificationID: "n1", Channel: Email, Recipient: "Alice", Address: "alice@example.com"},
		{NotificationID: "n1", Channel: Portal, Recipient: "Alice", Address: "Alice"},
	}
	accepted, err := r.Dispatch(context.Background(), deliveries)
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if accepted != 2 {
		t.Errorf("Expected 2 accepted, got %d", accepted)
	}
	if pub.queues[0] != "email.notifications" || pub.queues[1] != "portal.notifications" {
		t.Errorf("Unexpected queues: %v", pub.queues)
	}

	var task NotificationTask
	if err := json.Unmarshal(pub.bodies[0], &task); err != nil {
		t.Fatal(err)
	}
	if task.ID != "task_n1_email_alice@example.com" || task.MaxRetries != 3 {
		t.Errorf("Unexpected task: %+v", task)
	}
}

func TestRouter_DispatchPublishFailure(t *testing.T) {
	r := NewRouter(&mockPublisher{err: errors.New("circuit breaker is open")}, zap.NewNop())

	accepted, err := r.Dispatch(context.Background(), []Delivery{{NotificationID: "n1", Channel: SMS}})
	if accepted != 0 {
		t.Errorf("Expected 0 accepted, got %d", accepted)
	}
	if err == nil {
		t.Error("Expected publish error")
	}
}

func TestInlineDispatcher(t *testing.T) {
	registry := NewDriverRegistry()
	registry.Register(&mockDriver{channel: Email})
	registry.Register(&mockDriver{channel: SMS, err: errors.New("no credit")})
	d := NewInlineDispatcher(registry, zap.NewNop())

	accepted, err := d.Dispatch(context.Background(), []Delivery{
		{Channel: Email, Recipient: "Alice"},
		{Channel: SMS, Recipient: "Alice"},
		{Channel: Portal, Recipient: "Alice"},
	})
	if accepted != 1 {
		t.Errorf("Expected 1 accepted, got %d", accepted)
	}
	if err == nil {
		t.Error("Expected joined errors for sms and unregistered portal")
	}
}
