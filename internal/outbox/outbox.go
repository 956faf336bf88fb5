// Package outbox parks reconciliation pushes that could not be delivered to
// the reservation service and re-delivers them with backoff. Every row
// carries the event id of the original attempt, so the receiving side can
// deduplicate re-deliveries.
package outbox

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/courtbook/courtbook/internal/db"
)

type Kind string

const (
	KindApplyPayment  Kind = "apply_payment"
	KindPaymentStatus Kind = "payment_status"
)

type RowStatus string

const (
	RowPending   RowStatus = "PENDING"
	RowDelivered RowStatus = "DELIVERED"
	RowAbandoned RowStatus = "ABANDONED"
)

const (
	baseBackoff = time.Minute
	maxBackoff  = time.Hour
)

// Clock interface for testing time-dependent behavior.
type Clock interface {
	Now() time.Time
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

// Row is one undelivered reconciliation push.
type Row struct {
	ID            int64
	EventID       string
	ReservationID int64
	Kind          Kind
	Payload       json.RawMessage
	Attempts      int
	NextAttemptAt time.Time
	Status        RowStatus
	LastError     string
}

type Store struct {
	db    *db.DB
	clock Clock
}

func NewStore(database *db.DB) *Store {
	return &Store{db: database, clock: realClock{}}
}

// WithClock replaces the clock. Test hook.
func (s *Store) WithClock(c Clock) *Store {
	s.clock = c
	return s
}

// Enqueue records a failed push for later re-delivery. The first retry is
// due one backoff interval from now.
func (s *Store) Enqueue(ctx context.Context, eventID string, reservationID int64, kind Kind, payload any, cause error) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("error encoding outbox payload: %w", err)
	}
	now := s.clock.Now().UTC()
	lastError := ""
	if cause != nil {
		lastError = cause.Error()
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO reconciliation_outbox (
			event_id, reservation_id, kind, payload,
			attempts, next_attempt_at, status, last_error, created_at, updated_at
		) VALUES (?, ?, ?, ?, 1, ?, 'PENDING', ?, ?, ?)`,
		eventID, reservationID, kind, string(body),
		now.Add(baseBackoff), lastError, now, now,
	)
	if err != nil {
		return fmt.Errorf("error enqueueing outbox row: %w", err)
	}
	return nil
}

// Due returns pending rows whose next attempt has come, oldest first.
func (s *Store) Due(ctx context.Context, limit int) ([]Row, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, event_id, reservation_id, kind, payload,
		       attempts, next_attempt_at, status, COALESCE(last_error, '')
		FROM reconciliation_outbox
		WHERE status = 'PENDING' AND next_attempt_at <= ?
		ORDER BY next_attempt_at ASC
		LIMIT ?`,
		s.clock.Now().UTC(), limit,
	)
	if err != nil {
		return nil, fmt.Errorf("error querying outbox: %w", err)
	}
	defer rows.Close()

	out := []Row{}
	for rows.Next() {
		var (
			r       Row
			payload string
		)
		if err := rows.Scan(&r.ID, &r.EventID, &r.ReservationID, &r.Kind, &payload,
			&r.Attempts, &r.NextAttemptAt, &r.Status, &r.LastError); err != nil {
			return nil, fmt.Errorf("error scanning outbox row: %w", err)
		}
		r.Payload = json.RawMessage(payload)
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *Store) markDelivered(ctx context.Context, id int64) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE reconciliation_outbox
		SET status = 'DELIVERED', updated_at = ?
		WHERE id = ?`,
		s.clock.Now().UTC(), id)
	return err
}

// markFailed bumps the attempt counter with exponential backoff, abandoning
// the row once maxAttempts is exhausted.
func (s *Store) markFailed(ctx context.Context, row Row, cause error, maxAttempts int) error {
	attempts := row.Attempts + 1
	status := RowPending
	if attempts >= maxAttempts {
		status = RowAbandoned
	}
	now := s.clock.Now().UTC()
	_, err := s.db.ExecContext(ctx, `
		UPDATE reconciliation_outbox
		SET attempts = ?, next_attempt_at = ?, status = ?, last_error = ?, updated_at = ?
		WHERE id = ?`,
		attempts, now.Add(backoff(attempts)), status, cause.Error(), now, row.ID)
	return err
}

// backoff doubles per attempt starting from baseBackoff, capped at maxBackoff.
func backoff(attempts int) time.Duration {
	d := baseBackoff
	for i := 1; i < attempts && d < maxBackoff; i++ {
		d *= 2
	}
	if d > maxBackoff {
		return maxBackoff
	}
	return d
}

// PendingCount reports how many rows still await delivery.
func (s *Store) PendingCount(ctx context.Context) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM reconciliation_outbox WHERE status = 'PENDING'`).Scan(&count)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return 0, fmt.Errorf("error counting outbox rows: %w", err)
	}
	return count, nil
}
