package draft

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sapliy/staff-notify/internal/compose"
	"go.uber.org/zap"
)

const (
	// KeyPrefix is followed by the owner's identity.
	KeyPrefix = "notification_drafts:"
	// MaxDrafts is the number of drafts kept per user.
	MaxDrafts = 10
)

// Draft is a saved, possibly incomplete compose form.
type Draft struct {
	ID      string    `json:"id"`
	SavedAt time.Time `json:"saved_at"`
	compose.Form
}

// Store keeps each user's drafts as a JSON list, most recent first.
type Store struct {
	kv     KV
	logger *zap.Logger
	now    func() time.Time
}

func NewStore(kv KV, logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{kv: kv, logger: logger.Named("drafts"), now: time.Now}
}

func key(user string) string {
	return KeyPrefix + user
}

// Load returns the user's drafts. Missing or unreadable data yields an empty
// list.
func (s *Store) Load(ctx context.Context, user string) []Draft {
	raw, err := s.kv.Get(ctx, key(user))
	if err != nil {
		if !errors.Is(err, ErrMissing) {
			s.logger.Error("failed to read drafts", zap.String("user", user), zap.Error(err))
		}
		return []Draft{}
	}
	return s.decode(user, raw)
}

// decode parses a stored list. Corrupt data is logged and discarded.
func (s *Store) decode(user string, raw []byte) []Draft {
	if raw == nil {
		return []Draft{}
	}
	var drafts []Draft
	if err := json.Unmarshal(raw, &drafts); err != nil {
		s.logger.Warn("discarding corrupt drafts", zap.String("user", user), zap.Error(err))
		return []Draft{}
	}
	if drafts == nil {
		drafts = []Draft{}
	}
	return drafts
}

// update rewrites the user's list atomically. A failed read aborts without
// writing, so stored drafts are only replaced when they were read or are
// corrupt.
func (s *Store) update(ctx context.Context, user string, fn func([]Draft) []Draft) ([]Draft, error) {
	var result []Draft
	err := s.kv.Update(ctx, key(user), func(current []byte) ([]byte, error) {
		result = fn(s.decode(user, current))
		raw, err := json.Marshal(result)
		if err != nil {
			return nil, fmt.Errorf("encoding drafts: %w", err)
		}
		return raw, nil
	})
	if err != nil {
		return nil, fmt.Errorf("updating drafts: %w", err)
	}
	return result, nil
}

// Save stores d at the front of the user's list, replacing a draft with the
// same ID and dropping the oldest beyond MaxDrafts. A missing ID is generated.
func (s *Store) Save(ctx context.Context, user string, d Draft) (Draft, []Draft, error) {
	if d.ID == "" {
		d.ID = uuid.New().String()
	}
	d.SavedAt = s.now().UTC()

	drafts, err := s.update(ctx, user, func(existing []Draft) []Draft {
		drafts := make([]Draft, 0, len(existing)+1)
		drafts = append(drafts, d)
		for _, e := range existing {
			if e.ID != d.ID {
				drafts = append(drafts, e)
			}
		}
		if len(drafts) > MaxDrafts {
			drafts = drafts[:MaxDrafts]
		}
		return drafts
	})
	if err != nil {
		return Draft{}, nil, err
	}
	return d, drafts, nil
}

// Delete removes the draft with id. Deleting an unknown ID is not an error.
func (s *Store) Delete(ctx context.Context, user, id string) ([]Draft, error) {
	return s.update(ctx, user, func(existing []Draft) []Draft {
		drafts := make([]Draft, 0, len(existing))
		for _, e := range existing {
			if e.ID != id {
				drafts = append(drafts, e)
			}
		}
		return drafts
	})
}
