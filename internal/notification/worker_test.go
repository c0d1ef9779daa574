package notification

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

type mockDriver struct {
	channel Channel
	err     error
	sent    []Delivery
}

func (m *mockDriver) Channel() Channel { return m.channel }

func (m *mockDriver) Send(ctx context.Context, d Delivery) error {
	m.sent = append(m.sent, d)
	return m.err
}

type mockIdempotency struct {
	mu   sync.Mutex
	keys map[string]time.Duration
	err  error
}

func (m *mockIdempotency) Exists(ctx context.Context, keys ...string) *redis.IntCmd {
	if m.err != nil {
		return redis.NewIntResult(0, m.err)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for _, k := range keys {
		if _, ok := m.keys[k]; ok {
			n++
		}
	}
	return redis.NewIntResult(n, nil)
}

func (m *mockIdempotency) Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.keys == nil {
		m.keys = make(map[string]time.Duration)
	}
	m.keys[key] = expiration
	return redis.NewStatusResult("OK", nil)
}

type mockPublisher struct {
	queues []string
	bodies [][]byte
	err    error
}

func (m *mockPublisher) Publish(ctx context.Context, queue string, body []byte) error {
	if m.err != nil {
		return m.err
	}
	m.queues = append(m.queues, queue)
	m.bodies = append(m.bodies, body)
	return nil
}

func taskBody(t *testing.T, task NotificationTask) []byte {
	t.Helper()
	body, err := json.Marshal(task)
	if err != nil {
		t.Fatalf("marshal task: %v", err)
	}
	return body
}

func emailTask(retries int) NotificationTask {
	return NotificationTask{
		ID: "task_n1_email_alice@example.com",
		Delivery: Delivery{
			NotificationID: "n1", Channel: Email, Recipient: "Alice",
			Address: "alice@example.com", Subject: "Drill", Body: "<p>Drill</p>",
		},
		RetryCount: retries,
		MaxRetries: 3,
	}
}

func TestWorker_ProcessTask(t *testing.T) {
	driver := &mockDriver{channel: Email}
	idem := &mockIdempotency{}
	w := NewWorker(driver, idem, nil, zap.NewNop())

	if err := w.ProcessTask(context.Background(), taskBody(t, emailTask(0))); err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if len(driver.sent) != 1 {
		t.Fatalf("Expected 1 send, got %d", len(driver.sent))
	}
	if ttl := idem.keys["notif:sent:task_n1_email_alice@example.com"]; ttl != 24*time.Hour {
		t.Errorf("Expected idempotency key with 24h TTL, got %v", ttl)
	}

	// Redelivery of the same task is skipped.
	if err := w.ProcessTask(context.Background(), taskBody(t, emailTask(0))); err != nil {
		t.Fatalf("Expected no error on redelivery, got %v", err)
	}
	if len(driver.sent) != 1 {
		t.Errorf("Expected idempotent skip, got %d sends", len(driver.sent))
	}
}

func TestWorker_ProcessTaskRedisUnavailable(t *testing.T) {
	driver := &mockDriver{channel: Email}
	w := NewWorker(driver, &mockIdempotency{err: errors.New("connection refused")}, nil, zap.NewNop())

	if err := w.ProcessTask(context.Background(), taskBody(t, emailTask(0))); err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if len(driver.sent) != 1 {
		t.Errorf("Expected send despite redis error, got %d", len(driver.sent))
	}
}

func TestWorker_Retry(t *testing.T) {
	tests := []struct {
		name        string
		retryCount  int
		publisher   *mockPublisher
		wantErr     bool
		wantRequeue bool
	}{
		{"first failure requeues", 0, &mockPublisher{}, false, true},
		{"last attempt dead-letters", 2, &mockPublisher{}, true, false},
		{"no publisher dead-letters", 0, nil, true, false},
		{"requeue failure surfaces", 0, &mockPublisher{err: errors.New("closed")}, true, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			driver := &mockDriver{channel: Email, err: errors.New("provider down")}
			var pub RabbitPublisher
			if tt.publisher != nil {
				pub = tt.publisher
			}
			w := NewWorker(driver, nil, pub, zap.NewNop())

			err := w.ProcessTask(context.Background(), taskBody(t, emailTask(tt.retryCount)))
			if (err != nil) != tt.wantErr {
				t.Fatalf("Expected error %v, got %v", tt.wantErr, err)
			}

			requeued := tt.publisher != nil && len(tt.publisher.bodies) > 0
			if requeued != tt.wantRequeue {
				t.Fatalf("Expected requeue %v, got %v", tt.wantRequeue, requeued)
			}
			if !requeued {
				return
			}
			if tt.publisher.queues[0] != "email.notifications" {
				t.Errorf("Expected email.notifications, got %s", tt.publisher.queues[0])
			}
			var task NotificationTask
			if err := json.Unmarshal(tt.publisher.bodies[0], &task); err != nil {
				t.Fatal(err)
			}
			if task.RetryCount != tt.retryCount+1 {
				t.Errorf("Expected retry count %d, got %d", tt.retryCount+1, task.RetryCount)
			}
		})
	}
}

func TestWorker_RejectsOtherChannel(t *testing.T) {
	w := NewWorker(&mockDriver{channel: SMS}, nil, nil, zap.NewNop())
	if err := w.ProcessTask(context.Background(), taskBody(t, emailTask(0))); err == nil {
		t.Error("Expected error for task on another channel")
	}
}

func TestWorker_InvalidBody(t *testing.T) {
	w := NewWorker(&mockDriver{channel: Email}, nil, nil, zap.NewNop())
	if err := w.ProcessTask(context.Background(), []byte("{not json")); err == nil {
		t.Error("Expected unmarshal error")
	}
}
