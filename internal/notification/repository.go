package notification

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
)

// Row is the subset of *sql.Row used by the repository.
type Row interface {
	Scan(dest ...any) error
}

// Rows is the subset of *sql.Rows used by the repository.
type Rows interface {
	Next() bool
	Scan(dest ...any) error
	Close() error
	Err() error
}

// DB abstracts *sql.DB so the repository can be exercised with MockDB.
type DB interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) Row
}

type sqlDB struct {
	db *sql.DB
}

func (s *sqlDB) ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error) {
	return s.db.ExecContext(ctx, query, args...)
}

func (s *sqlDB) QueryContext(ctx context.Context, query string, args ...any) (Rows, error) {
	return s.db.QueryContext(ctx, query, args...)
}

func (s *sqlDB) QueryRowContext(ctx context.Context, query string, args ...any) Row {
	return s.db.QueryRowContext(ctx, query, args...)
}

// Repository handles PostgreSQL operations for notifications.
type Repository struct {
	db DB
}

func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: &sqlDB{db: db}}
}

// NewTestRepository wraps an arbitrary DB, typically a MockDB.
func NewTestRepository(db DB) *Repository {
	return &Repository{db: db}
}

const notificationColumns = `
	id, title, message, channels, content, recipients, requires_acknowledgement,
	acknowledgement_settings, status, sent_at, scheduled_for, acknowledged_by,
	created_by, created_at`

// Create inserts a new notification. ID, CreatedAt and Status are filled in
// when empty.
func (r *Repository) Create(ctx context.Context, n *Notification) error {
	if n.ID == "" {
		n.ID = uuid.New().String()
	}
	if n.CreatedAt.IsZero() {
		n.CreatedAt = time.Now().UTC()
	}
	if n.Status == "" {
		n.Status = StatusPending
	}

	content, err := json.Marshal(n.Content)
	if err != nil {
		return fmt.Errorf("encoding content: %w", err)
	}
	var settings []byte
	if n.AcknowledgementSettings != nil {
		if settings, err = json.Marshal(n.AcknowledgementSettings); err != nil {
			return fmt.Errorf("encoding acknowledgement settings: %w", err)
		}
	}

	query := `
		INSERT INTO notifications (` + notificationColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
	`
	_, err = r.db.ExecContext(ctx, query,
		n.ID, n.Title, n.Message, pq.Array(channelStrings(n.Channels)), content,
		pq.Array(n.Recipients), n.RequiresAcknowledgement, settings, n.Status,
		nullTime(n.SentAt), n.ScheduledFor, pq.Array(n.AcknowledgedBy),
		n.CreatedBy, n.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("inserting notification %s: %w", n.ID, err)
	}
	return nil
}

// UpdateStatus sets the delivery status; a non-zero sentAt is recorded too.
func (r *Repository) UpdateStatus(ctx context.Context, id string, status Status, sentAt time.Time) error {
	query := `UPDATE notifications SET status = $1, sent_at = COALESCE($2, sent_at) WHERE id = $3`
	res, err := r.db.ExecContext(ctx, query, status, nullTime(sentAt), id)
	if err != nil {
		return fmt.Errorf("updating status of %s: %w", id, err)
	}
	if res != nil {
		if n, err := res.RowsAffected(); err == nil && n == 0 {
			return ErrNotFound
		}
	}
	return nil
}

// GetByID retrieves a notification and its responses.
func (r *Repository) GetByID(ctx context.Context, id string) (*Notification, error) {
	query := `SELECT ` + notificationColumns + ` FROM notifications WHERE id = $1`

	n, err := scanNotification(r.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("getting notification %s: %w", id, err)
	}

	responses, err := r.responses(ctx, `WHERE notification_id = $1`, id)
	if err != nil {
		return nil, err
	}
	n.Responses = responses[n.ID]
	return n, nil
}

// List retrieves every notification, most recently sent first.
func (r *Repository) List(ctx context.Context) ([]Notification, error) {
	query := `SELECT ` + notificationColumns + `
		FROM notifications ORDER BY COALESCE(sent_at, created_at) DESC`
	return r.list(ctx, query)
}

// ClaimDue leases due pending notifications by setting claimed_until. Rows
// locked by a concurrent claim are skipped, so each row goes to one caller.
func (r *Repository) ClaimDue(ctx context.Context, now, until time.Time) ([]Notification, error) {
	query := `UPDATE notifications SET claimed_until = $2
		WHERE id IN (
			SELECT id FROM notifications
			WHERE status = 'pending' AND scheduled_for IS NOT NULL AND scheduled_for <= $1
				AND (claimed_until IS NULL OR claimed_until <= $1)
			ORDER BY scheduled_for
			FOR UPDATE SKIP LOCKED
		)
		RETURNING ` + notificationColumns
	due, err := r.list(ctx, query, now, until)
	if err != nil {
		return nil, fmt.Errorf("claiming due notifications: %w", err)
	}
	sort.Slice(due, func(i, j int) bool { return due[i].ScheduledFor.Before(*due[j].ScheduledFor) })
	return due, nil
}

// SaveResponse upserts the recipient's acknowledgement response.
func (r *Repository) SaveResponse(ctx context.Context, id string, resp AcknowledgementResponse) error {
	query := `
		INSERT INTO acknowledgement_responses (notification_id, recipient, option, comment, responded_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (notification_id, recipient)
		DO UPDATE SET option = EXCLUDED.option, comment = EXCLUDED.comment, responded_at = EXCLUDED.responded_at
	`
	_, err := r.db.ExecContext(ctx, query, id, resp.Recipient, resp.Option, resp.Comment, resp.RespondedAt)
	if err != nil {
		return fmt.Errorf("saving response for %s: %w", id, err)
	}
	return nil
}

func (r *Repository) list(ctx context.Context, query string, args ...any) ([]Notification, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing notifications: %w", err)
	}
	defer rows.Close()

	var out []Notification
	for rows.Next() {
		n, err := scanNotification(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning notification: %w", err)
		}
		out = append(out, *n)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating notifications: %w", err)
	}
	if len(out) == 0 {
		return out, nil
	}

	ids := make([]string, len(out))
	for i := range out {
		ids[i] = out[i].ID
	}
	responses, err := r.responses(ctx, `WHERE notification_id = ANY($1)`, pq.Array(ids))
	if err != nil {
		return nil, err
	}
	for i := range out {
		out[i].Responses = responses[out[i].ID]
	}
	return out, nil
}

func (r *Repository) responses(ctx context.Context, where string, args ...any) (map[string][]AcknowledgementResponse, error) {
	query := `SELECT notification_id, recipient, option, comment, responded_at
		FROM acknowledgement_responses ` + where + ` ORDER BY responded_at`

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing responses: %w", err)
	}
	defer rows.Close()

	out := make(map[string][]AcknowledgementResponse)
	for rows.Next() {
		var id string
		var resp AcknowledgementResponse
		if err := rows.Scan(&id, &resp.Recipient, &resp.Option, &resp.Comment, &resp.RespondedAt); err != nil {
			return nil, fmt.Errorf("scanning response: %w", err)
		}
		out[id] = append(out[id], resp)
	}
	return out, rows.Err()
}

func scanNotification(row Row) (*Notification, error) {
	var (
		n                             Notification
		channels, recipients, ackedBy pq.StringArray
		content, settings             []byte
		sentAt                        sql.NullTime
	)

	err := row.Scan(
		&n.ID, &n.Title, &n.Message, &channels, &content, &recipients,
		&n.RequiresAcknowledgement, &settings, &n.Status, &sentAt, &n.ScheduledFor,
		&ackedBy, &n.CreatedBy, &n.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	for _, c := range channels {
		n.Channels = append(n.Channels, Channel(c))
	}
	n.Recipients = recipients
	n.AcknowledgedBy = ackedBy
	if sentAt.Valid {
		n.SentAt = sentAt.Time
	}
	if len(content) > 0 && string(content) != "null" {
		if err := json.Unmarshal(content, &n.Content); err != nil {
			return nil, fmt.Errorf("decoding content: %w", err)
		}
	}
	if len(settings) > 0 {
		n.AcknowledgementSettings = &AcknowledgementSettings{}
		if err := json.Unmarshal(settings, n.AcknowledgementSettings); err != nil {
			return nil, fmt.Errorf("decoding acknowledgement settings: %w", err)
		}
	}
	return &n, nil
}

func channelStrings(channels []Channel) []string {
	out := make([]string, len(channels))
	for i, c := range channels {
		out[i] = string(c)
	}
	return out
}

func nullTime(t time.Time) sql.NullTime {
	return sql.NullTime{Time: t, Valid: !t.IsZero()}
}
