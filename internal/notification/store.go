package notification

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Store persists notifications and their acknowledgement responses.
type Store interface {
	Create(ctx context.Context, n *Notification) error
	UpdateStatus(ctx context.Context, id string, status Status, sentAt time.Time) error
	GetByID(ctx context.Context, id string) (*Notification, error)
	List(ctx context.Context) ([]Notification, error)
	// ClaimDue returns pending notifications scheduled at or before now that
	// no other caller holds, and leases them until the given time. A claimed
	// notification is not returned again until its lease expires.
	ClaimDue(ctx context.Context, now, until time.Time) ([]Notification, error)
	SaveResponse(ctx context.Context, id string, resp AcknowledgementResponse) error
}

// MemoryStore is a process-local Store used when no database is configured
// and in tests.
type MemoryStore struct {
	mu     sync.RWMutex
	items  map[string]*Notification
	leases map[string]time.Time
}

func NewMemoryStore(seed ...Notification) *MemoryStore {
	s := &MemoryStore{
		items:  make(map[string]*Notification, len(seed)),
		leases: make(map[string]time.Time),
	}
	for i := range seed {
		n := clone(&seed[i])
		s.items[n.ID] = n
	}
	return s
}

func (s *MemoryStore) Create(ctx context.Context, n *Notification) error {
	if n.ID == "" {
		n.ID = uuid.New().String()
	}
	if n.CreatedAt.IsZero() {
		n.CreatedAt = time.Now().UTC()
	}
	if n.Status == "" {
		n.Status = StatusPending
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.items[n.ID] = clone(n)
	return nil
}

func (s *MemoryStore) UpdateStatus(ctx context.Context, id string, status Status, sentAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	n, ok := s.items[id]
	if !ok {
		return ErrNotFound
	}
	n.Status = status
	if !sentAt.IsZero() {
		n.SentAt = sentAt
	}
	return nil
}

func (s *MemoryStore) GetByID(ctx context.Context, id string) (*Notification, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	n, ok := s.items[id]
	if !ok {
		return nil, ErrNotFound
	}
	return clone(n), nil
}

// List returns every notification, most recently sent first.
func (s *MemoryStore) List(ctx context.Context) ([]Notification, error) {
	s.mu.RLock()
	out := make([]Notification, 0, len(s.items))
	for _, n := range s.items {
		out = append(out, *clone(n))
	}
	s.mu.RUnlock()

	sort.SliceStable(out, func(i, j int) bool {
		return sortKey(&out[i]).After(sortKey(&out[j]))
	})
	return out, nil
}

// ClaimDue leases due pending notifications under the write lock.
func (s *MemoryStore) ClaimDue(ctx context.Context, now, until time.Time) ([]Notification, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []Notification
	for id, n := range s.items {
		if n.Status != StatusPending || n.ScheduledFor == nil || n.ScheduledFor.After(now) {
			continue
		}
		if lease, ok := s.leases[id]; ok && lease.After(now) {
			continue
		}
		s.leases[id] = until
		out = append(out, *clone(n))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ScheduledFor.Before(*out[j].ScheduledFor) })
	return out, nil
}

// SaveResponse stores resp, replacing an earlier response from the same recipient.
func (s *MemoryStore) SaveResponse(ctx context.Context, id string, resp AcknowledgementResponse) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	n, ok := s.items[id]
	if !ok {
		return ErrNotFound
	}
	for i := range n.Responses {
		if n.Responses[i].Recipient == resp.Recipient {
			n.Responses[i] = resp
			return nil
		}
	}
	n.Responses = append(n.Responses, resp)
	return nil
}

func sortKey(n *Notification) time.Time {
	if !n.SentAt.IsZero() {
		return n.SentAt
	}
	return n.CreatedAt
}

func clone(n *Notification) *Notification {
	c := *n
	c.Channels = append([]Channel(nil), n.Channels...)
	c.Recipients = append([]string(nil), n.Recipients...)
	c.Responses = append([]AcknowledgementResponse(nil), n.Responses...)
	c.AcknowledgedBy = append([]string(nil), n.AcknowledgedBy...)
	if n.Content != nil {
		c.Content = make(map[Channel]ChannelContent, len(n.Content))
		for k, v := range n.Content {
			c.Content[k] = v
		}
	}
	if n.AcknowledgementSettings != nil {
		s := *n.AcknowledgementSettings
		s.Options = append([]string(nil), n.AcknowledgementSettings.Options...)
		c.AcknowledgementSettings = &s
	}
	return &c
}
