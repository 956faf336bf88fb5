package notify

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/courtbook/courtbook/internal/db"
)

type Status string

const (
	StatusPending  Status = "PENDING"
	StatusSent     Status = "SENT"
	StatusFailed   Status = "FAILED"
	StatusRetrying Status = "RETRYING"
)

// defaultMaxRetries bounds how often the sweep re-sends a failed
// notification when no limit is configured.
const defaultMaxRetries = 3

type Notification struct {
	ID            int64
	UserID        int64
	ReservationID int64
	Channel       string
	Recipient     string
	Subject       string
	Body          string
	Status        Status
	RetryCount    int
	ErrorMessage  string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// Store persists notification rows in the reservation database.
type Store struct {
	db         *db.DB
	maxRetries int
}

func NewStore(database *db.DB) *Store {
	return &Store{db: database, maxRetries: defaultMaxRetries}
}

// WithMaxRetries caps re-sends per notification. Non-positive keeps the
// default.
func (s *Store) WithMaxRetries(n int) *Store {
	if n > 0 {
		s.maxRetries = n
	}
	return s
}

func (s *Store) Insert(ctx context.Context, n *Notification) error {
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO notifications (
			user_id, reservation_id, channel, recipient,
			subject, body, status, retry_count, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, 0, ?, ?)`,
		n.UserID, n.ReservationID, n.Channel, n.Recipient,
		n.Subject, n.Body, n.Status, n.CreatedAt, n.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("error inserting notification: %w", err)
	}
	n.ID, err = res.LastInsertId()
	if err != nil {
		return fmt.Errorf("error reading notification id: %w", err)
	}
	return nil
}

func (s *Store) markSent(ctx context.Context, id int64, now time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE notifications
		SET status = 'SENT', error_message = NULL, updated_at = ?
		WHERE id = ?`, now, id)
	if err != nil {
		return fmt.Errorf("error marking notification %d sent: %w", id, err)
	}
	return nil
}

func (s *Store) markFailed(ctx context.Context, id int64, cause error, now time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE notifications
		SET status = 'FAILED', retry_count = retry_count + 1, error_message = ?, updated_at = ?
		WHERE id = ?`, cause.Error(), now, id)
	if err != nil {
		return fmt.Errorf("error marking notification %d failed: %w", id, err)
	}
	return nil
}

// dueRetries lists failed notifications that still have retries left.
func (s *Store) dueRetries(ctx context.Context, limit int) ([]Notification, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, user_id, reservation_id, channel, recipient,
		       subject, body, status, retry_count, COALESCE(error_message, ''),
		       created_at, updated_at
		FROM notifications
		WHERE status = 'FAILED' AND retry_count < ?
		ORDER BY updated_at ASC
		LIMIT ?`, s.maxRetries, limit)
	if err != nil {
		return nil, fmt.Errorf("error querying notifications: %w", err)
	}
	defer rows.Close()

	out := []Notification{}
	for rows.Next() {
		var n Notification
		if err := rows.Scan(&n.ID, &n.UserID, &n.ReservationID, &n.Channel, &n.Recipient,
			&n.Subject, &n.Body, &n.Status, &n.RetryCount, &n.ErrorMessage,
			&n.CreatedAt, &n.UpdatedAt); err != nil {
			return nil, fmt.Errorf("error scanning notification: %w", err)
		}
		out = append(out, n)
	}
	return out, rows.Err()
}

// GetByID loads one notification. Test helper for delivery assertions.
func (s *Store) GetByID(ctx context.Context, id int64) (*Notification, error) {
	var n Notification
	err := s.db.QueryRowContext(ctx, `
		SELECT id, user_id, reservation_id, channel, recipient,
		       subject, body, status, retry_count, COALESCE(error_message, ''),
		       created_at, updated_at
		FROM notifications WHERE id = ?`, id).
		Scan(&n.ID, &n.UserID, &n.ReservationID, &n.Channel, &n.Recipient,
			&n.Subject, &n.Body, &n.Status, &n.RetryCount, &n.ErrorMessage,
			&n.CreatedAt, &n.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("notification %d not found", id)
	}
	if err != nil {
		return nil, fmt.Errorf("error loading notification %d: %w", id, err)
	}
	return &n, nil
}
