package notification

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/sapliy/staff-notify/internal/directory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

var fixedNow = time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

type fakeDispatcher struct {
	mu         sync.Mutex
	deliveries []Delivery
	accept     func(d Delivery) error
}

func (f *fakeDispatcher) Dispatch(ctx context.Context, deliveries []Delivery) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	accepted := 0
	var errs []error
	for _, d := range deliveries {
		f.deliveries = append(f.deliveries, d)
		if f.accept != nil {
			if err := f.accept(d); err != nil {
				errs = append(errs, err)
				continue
			}
		}
		accepted++
	}
	return accepted, errors.Join(errs...)
}

type fakeDirectory []directory.Employee

func (f fakeDirectory) List(ctx context.Context) []directory.Employee { return f }

type fakeEvents struct {
	mu     sync.Mutex
	events []Event
}

func (f *fakeEvents) Publish(ctx context.Context, key string, value []byte) error {
	var evt Event
	if err := json.Unmarshal(value, &evt); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, evt)
	return nil
}

func (f *fakeEvents) types() []EventType {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]EventType, 0, len(f.events))
	for _, e := range f.events {
		out = append(out, e.Type)
	}
	return out
}

var staffDirectory = fakeDirectory{
	{ID: "1", Name: "Alice", Email: "alice@example.com", Mobile: "+15550001"},
	{ID: "2", Name: "Bob", Email: "bob@example.com"},
}

func newTestService(store Store, dispatcher Dispatcher, events *fakeEvents) *Service {
	cfg := ServiceConfig{
		Store:      store,
		Directory:  staffDirectory,
		Dispatcher: dispatcher,
		Logger:     zap.NewNop(),
		PortalURL:  "https://portal.example.com/",
	}
	if events != nil {
		cfg.Events = events
	}
	svc := NewService(cfg)
	svc.now = func() time.Time { return fixedNow }
	return svc
}

func TestServiceSend(t *testing.T) {
	store := NewMemoryStore()
	dispatcher := &fakeDispatcher{}
	events := &fakeEvents{}
	svc := newTestService(store, dispatcher, events)

	n, err := svc.Send(context.Background(), &Notification{
		Title:                   "Fire drill",
		Message:                 "Assemble outside at 10:00",
		Channels:                []Channel{Email, SMS, Portal},
		Recipients:              []string{"Alice", "Bob", "Zed"},
		RequiresAcknowledgement: true,
	})
	require.NoError(t, err)
	require.NotEmpty(t, n.ID)
	assert.Equal(t, StatusSent, n.Status)
	assert.Equal(t, fixedNow, n.SentAt)

	// Email: Alice, Bob. SMS: Alice only. Portal: all three, Zed is not in
	// the directory but portal delivery only needs the name.
	require.Len(t, dispatcher.deliveries, 6)
	byChannel := map[Channel][]string{}
	for _, d := range dispatcher.deliveries {
		byChannel[d.Channel] = append(byChannel[d.Channel], d.Recipient)
	}
	assert.Equal(t, []string{"Alice", "Bob"}, byChannel[Email])
	assert.Equal(t, []string{"Alice"}, byChannel[SMS])
	assert.ElementsMatch(t, []string{"Alice", "Bob", "Zed"}, byChannel[Portal])

	email := dispatcher.deliveries[0]
	assert.Equal(t, "alice@example.com", email.Address)
	assert.Equal(t, "Fire drill", email.Subject)
	assert.Contains(t, email.Body, "https://portal.example.com/notifications/"+n.ID)

	stored, err := store.GetByID(context.Background(), n.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusSent, stored.Status)
	assert.Equal(t, []EventType{EventNotificationSent}, events.types())
}

func TestServiceSendAllDeliveriesRejected(t *testing.T) {
	store := NewMemoryStore()
	dispatcher := &fakeDispatcher{accept: func(d Delivery) error { return errors.New("broker down") }}
	events := &fakeEvents{}
	svc := newTestService(store, dispatcher, events)

	n, err := svc.Send(context.Background(), &Notification{
		Title: "Outage", Message: "Systems down", Channels: []Channel{Portal}, Recipients: []string{"Alice"},
	})
	require.NoError(t, err)
	assert.Equal(t, StatusFailed, n.Status)

	stored, err := store.GetByID(context.Background(), n.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusFailed, stored.Status)
	assert.Equal(t, []EventType{EventNotificationFailed}, events.types())
}

func TestServiceSendPartialSuccessIsSent(t *testing.T) {
	dispatcher := &fakeDispatcher{accept: func(d Delivery) error {
		if d.Channel == Email {
			return errors.New("resend rejected")
		}
		return nil
	}}
	svc := newTestService(NewMemoryStore(), dispatcher, nil)

	n, err := svc.Send(context.Background(), &Notification{
		Title: "Update", Message: "New rota", Channels: []Channel{Email, Portal}, Recipients: []string{"Alice"},
	})
	require.NoError(t, err)
	assert.Equal(t, StatusSent, n.Status)
}

func TestServiceSendScheduled(t *testing.T) {
	store := NewMemoryStore()
	dispatcher := &fakeDispatcher{}
	events := &fakeEvents{}
	svc := newTestService(store, dispatcher, events)

	later := fixedNow.Add(2 * time.Hour)
	n, err := svc.Send(context.Background(), &Notification{
		Title: "Town hall", Message: "Tomorrow", Channels: []Channel{Email}, Recipients: []string{"Alice"},
		ScheduledFor: &later,
	})
	require.NoError(t, err)
	assert.Equal(t, StatusPending, n.Status)
	assert.True(t, n.SentAt.IsZero())
	assert.Empty(t, dispatcher.deliveries)
	assert.Equal(t, []EventType{EventNotificationScheduled}, events.types())

	// Nothing due yet.
	count, err := svc.DeliverDue(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, count)

	svc.now = func() time.Time { return later.Add(time.Minute) }
	count, err = svc.DeliverDue(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, count)
	assert.Len(t, dispatcher.deliveries, 1)

	stored, err := store.GetByID(context.Background(), n.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusSent, stored.Status)
	assert.Equal(t, later.Add(time.Minute), stored.SentAt)
}

func TestServiceDeliverDueConcurrentDeliversOnce(t *testing.T) {
	due := fixedNow.Add(-time.Minute)
	store := NewMemoryStore(Notification{
		ID: "n1", Title: "Fire drill", Message: "10:00", Channels: []Channel{Email},
		Recipients: []string{"Alice"}, Status: StatusPending, ScheduledFor: &due,
	})
	dispatcher := &fakeDispatcher{}
	replicas := []*Service{
		newTestService(store, dispatcher, nil),
		newTestService(store, dispatcher, nil),
	}

	var (
		wg    sync.WaitGroup
		start = make(chan struct{})
		mu    sync.Mutex
		total int
	)
	for _, svc := range replicas {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			count, err := svc.DeliverDue(context.Background())
			assert.NoError(t, err)
			mu.Lock()
			total += count
			mu.Unlock()
		}()
	}
	close(start)
	wg.Wait()

	assert.Equal(t, 1, total)
	assert.Len(t, dispatcher.deliveries, 1)
}

func TestServiceDeliverDueSkipsLeasedUntilExpiry(t *testing.T) {
	due := fixedNow.Add(-time.Minute)
	store := NewMemoryStore(Notification{
		ID: "n1", Title: "Fire drill", Channels: []Channel{Email},
		Recipients: []string{"Alice"}, Status: StatusPending, ScheduledFor: &due,
	})

	// A claim from a process that died before updating the status.
	claimed, err := store.ClaimDue(context.Background(), fixedNow, fixedNow.Add(claimLease))
	require.NoError(t, err)
	require.Len(t, claimed, 1)

	dispatcher := &fakeDispatcher{}
	svc := newTestService(store, dispatcher, nil)
	count, err := svc.DeliverDue(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, count)

	svc.now = func() time.Time { return fixedNow.Add(claimLease + time.Second) }
	count, err = svc.DeliverDue(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, count)
	assert.Len(t, dispatcher.deliveries, 1)
}

func TestServiceSendPastScheduleDeliversOnce(t *testing.T) {
	store := NewMemoryStore()
	dispatcher := &fakeDispatcher{}
	svc := newTestService(store, dispatcher, nil)

	past := fixedNow.Add(-time.Hour)
	n, err := svc.Send(context.Background(), &Notification{
		Title: "Late", Message: "Sent now", Channels: []Channel{Email}, Recipients: []string{"Alice"},
		ScheduledFor: &past,
	})
	require.NoError(t, err)
	assert.Equal(t, StatusSent, n.Status)
	assert.Nil(t, n.ScheduledFor)

	count, err := svc.DeliverDue(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, count)
	assert.Len(t, dispatcher.deliveries, 1)
}

func ackNotification() Notification {
	return Notification{
		ID:                      "n1",
		Title:                   "Policy",
		Message:                 "Please confirm",
		Channels:                []Channel{Email},
		Recipients:              []string{"Alice", "Bob"},
		RequiresAcknowledgement: true,
		AcknowledgementSettings: &AcknowledgementSettings{Options: []string{"Yes", "No"}},
		Status:                  StatusSent,
		SentAt:                  fixedNow.Add(-time.Hour),
	}
}

func TestServiceAcknowledge(t *testing.T) {
	withComments := ackNotification()
	withComments.ID = "n2"
	withComments.AcknowledgementSettings = &AcknowledgementSettings{AllowComments: true}

	noAck := ackNotification()
	noAck.ID = "n3"
	noAck.RequiresAcknowledgement = false

	tests := []struct {
		name    string
		id      string
		resp    AcknowledgementResponse
		wantErr error
	}{
		{"valid option", "n1", AcknowledgementResponse{Recipient: "Alice", Option: "Yes"}, nil},
		{"unknown notification", "missing", AcknowledgementResponse{Recipient: "Alice", Option: "Yes"}, ErrNotFound},
		{"not required", "n3", AcknowledgementResponse{Recipient: "Alice", Option: "Yes"}, ErrAcknowledgementNotRequired},
		{"recipient off roster", "n1", AcknowledgementResponse{Recipient: "Mallory", Option: "Yes"}, ErrUnknownRecipient},
		{"option not offered", "n1", AcknowledgementResponse{Recipient: "Alice", Option: "Maybe"}, ErrInvalidOption},
		{"comment not allowed", "n1", AcknowledgementResponse{Recipient: "Alice", Option: "No", Comment: "why?"}, ErrCommentsDisabled},
		{"free option with comment", "n2", AcknowledgementResponse{Recipient: "Bob", Option: "Anything", Comment: "ok"}, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := NewMemoryStore(ackNotification(), withComments, noAck)
			svc := newTestService(store, &fakeDispatcher{}, nil)

			n, err := svc.Acknowledge(context.Background(), tt.id, tt.resp)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			require.Len(t, n.Responses, 1)
			assert.Equal(t, fixedNow, n.Responses[0].RespondedAt)
		})
	}
}

func TestServiceAcknowledgeReplacesEarlierResponse(t *testing.T) {
	store := NewMemoryStore(ackNotification())
	events := &fakeEvents{}
	svc := newTestService(store, &fakeDispatcher{}, events)
	ctx := context.Background()

	_, err := svc.Acknowledge(ctx, "n1", AcknowledgementResponse{Recipient: "Alice", Option: "Yes"})
	require.NoError(t, err)
	_, err = svc.Acknowledge(ctx, "n1", AcknowledgementResponse{Recipient: "Alice", Option: "No"})
	require.NoError(t, err)

	stored, err := store.GetByID(ctx, "n1")
	require.NoError(t, err)
	require.Len(t, stored.Responses, 1)
	assert.Equal(t, "No", stored.Responses[0].Option)
	assert.Equal(t, 1, stored.AcknowledgedCount())
	assert.Equal(t, []EventType{EventAcknowledgement, EventAcknowledgement}, events.types())
}

func TestServiceHistory(t *testing.T) {
	store := NewMemoryStore(DemoNotifications(fixedNow)...)
	svc := newTestService(store, &fakeDispatcher{}, nil)

	all, err := svc.History(context.Background(), Criteria{})
	require.NoError(t, err)
	require.Len(t, all, 4)

	overdue, err := svc.History(context.Background(), Criteria{Ack: AckOverdue})
	require.NoError(t, err)
	require.Len(t, overdue, 1)
	assert.Equal(t, "demo-1", overdue[0].ID)

	sms, err := svc.History(context.Background(), Criteria{Query: "MAINTENANCE", Channels: []Channel{SMS}})
	require.NoError(t, err)
	require.Len(t, sms, 1)
	assert.True(t, strings.HasPrefix(sms[0].Title, "Server maintenance"))
}
