package notification

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStoreListOrder(t *testing.T) {
	base := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	store := NewMemoryStore(
		Notification{ID: "old", SentAt: base},
		Notification{ID: "new", SentAt: base.Add(48 * time.Hour)},
		Notification{ID: "draft", CreatedAt: base.Add(24 * time.Hour)},
	)

	items, err := store.List(context.Background())
	require.NoError(t, err)
	require.Len(t, items, 3)
	assert.Equal(t, []string{"new", "draft", "old"}, []string{items[0].ID, items[1].ID, items[2].ID})
}

func TestMemoryStoreIsolation(t *testing.T) {
	store := NewMemoryStore(Notification{ID: "n1", Recipients: []string{"Alice"}})

	got, err := store.GetByID(context.Background(), "n1")
	require.NoError(t, err)
	got.Recipients[0] = "Mallory"

	again, err := store.GetByID(context.Background(), "n1")
	require.NoError(t, err)
	assert.Equal(t, "Alice", again.Recipients[0])
}

func TestMemoryStoreSaveResponse(t *testing.T) {
	store := NewMemoryStore(Notification{ID: "n1", Recipients: []string{"Alice"}})
	ctx := context.Background()

	require.NoError(t, store.SaveResponse(ctx, "n1", AcknowledgementResponse{Recipient: "Alice", Option: "Yes"}))
	require.NoError(t, store.SaveResponse(ctx, "n1", AcknowledgementResponse{Recipient: "Alice", Option: "No"}))
	assert.ErrorIs(t, store.SaveResponse(ctx, "missing", AcknowledgementResponse{}), ErrNotFound)

	n, err := store.GetByID(ctx, "n1")
	require.NoError(t, err)
	require.Len(t, n.Responses, 1)
	assert.Equal(t, "No", n.Responses[0].Option)
}

func TestMemoryStoreClaimDue(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	past, future := now.Add(-time.Minute), now.Add(time.Minute)
	store := NewMemoryStore(
		Notification{ID: "due", Status: StatusPending, ScheduledFor: &past},
		Notification{ID: "later", Status: StatusPending, ScheduledFor: &future},
		Notification{ID: "done", Status: StatusSent, ScheduledFor: &past},
		Notification{ID: "immediate", Status: StatusPending},
	)

	due, err := store.ClaimDue(context.Background(), now, now.Add(time.Minute))
	require.NoError(t, err)
	require.Len(t, due, 1)
	assert.Equal(t, "due", due[0].ID)

	again, err := store.ClaimDue(context.Background(), now, now.Add(time.Minute))
	require.NoError(t, err)
	assert.Empty(t, again, "a leased notification is not claimed twice")

	expired, err := store.ClaimDue(context.Background(), now.Add(time.Minute), now.Add(2*time.Minute))
	require.NoError(t, err)
	require.Len(t, expired, 2)
	assert.Equal(t, "due", expired[0].ID)
	assert.Equal(t, "later", expired[1].ID)
}
