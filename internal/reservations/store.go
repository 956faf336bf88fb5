package reservations

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/courtbook/courtbook/internal/apperr"
	"github.com/courtbook/courtbook/internal/db"
)

//go:embed migrations/*.sql
var migrationFS embed.FS

// MigrationFS exposes the embedded migration set so the server entrypoint and
// test helpers can open the database with the schema applied.
func MigrationFS() embed.FS { return migrationFS }

// MigrationDir is the directory inside MigrationFS holding the SQL files.
const MigrationDir = "migrations"

// Store is the reservation service's persistence layer.
type Store struct {
	db *db.DB
}

func NewStore(database *db.DB) *Store {
	return &Store{db: database}
}

const reservationColumns = `id, user_id, user_email, court_id, club_id,
	start_time, end_time, status, payment_status,
	total_amount, paid_amount, created_at, updated_at`

func scanReservation(row interface{ Scan(...any) error }) (*Reservation, error) {
	var (
		r           Reservation
		totalAmount sql.NullString
		paidAmount  string
	)
	err := row.Scan(
		&r.ID, &r.UserID, &r.UserEmail, &r.CourtID, &r.ClubID,
		&r.StartTime, &r.EndTime, &r.Status, &r.PaymentStatus,
		&totalAmount, &paidAmount, &r.CreatedAt, &r.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if totalAmount.Valid {
		d, err := decimal.NewFromString(totalAmount.String)
		if err != nil {
			return nil, fmt.Errorf("corrupt total_amount for reservation %d: %w", r.ID, err)
		}
		r.TotalAmount = decimal.NewNullDecimal(d)
	}
	r.PaidAmount, err = decimal.NewFromString(paidAmount)
	if err != nil {
		return nil, fmt.Errorf("corrupt paid_amount for reservation %d: %w", r.ID, err)
	}
	return &r, nil
}

func nullAmount(d decimal.NullDecimal) any {
	if !d.Valid {
		return nil
	}
	return d.Decimal.String()
}

// Insert persists a new reservation and fills in its generated ID.
func (s *Store) Insert(ctx context.Context, tx *sql.Tx, r *Reservation) error {
	res, err := tx.ExecContext(ctx, `
		INSERT INTO reservations (
			user_id, user_email, court_id, club_id,
			start_time, end_time, status, payment_status,
			total_amount, paid_amount, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.UserID, r.UserEmail, r.CourtID, r.ClubID,
		r.StartTime, r.EndTime, r.Status, r.PaymentStatus,
		nullAmount(r.TotalAmount), r.PaidAmount.String(), r.CreatedAt, r.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("error inserting reservation: %w", err)
	}
	r.ID, err = res.LastInsertId()
	if err != nil {
		return fmt.Errorf("error reading reservation id: %w", err)
	}
	return nil
}

func (s *Store) GetByID(ctx context.Context, id int64) (*Reservation, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+reservationColumns+` FROM reservations WHERE id = ?`, id)
	r, err := scanReservation(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.NotFound("reservation %d not found", id)
	}
	if err != nil {
		return nil, fmt.Errorf("error loading reservation %d: %w", id, err)
	}
	return r, nil
}

func (s *Store) Exists(ctx context.Context, id int64) (bool, error) {
	var one int
	err := s.db.QueryRowContext(ctx,
		`SELECT 1 FROM reservations WHERE id = ?`, id).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("error checking reservation %d: %w", id, err)
	}
	return true, nil
}

func (s *Store) List(ctx context.Context) ([]Reservation, error) {
	return s.queryMany(ctx,
		`SELECT `+reservationColumns+` FROM reservations ORDER BY start_time DESC`)
}

func (s *Store) ListByUserEmail(ctx context.Context, email string) ([]Reservation, error) {
	return s.queryMany(ctx,
		`SELECT `+reservationColumns+` FROM reservations
		 WHERE user_email = ? COLLATE NOCASE ORDER BY start_time DESC`, email)
}

func (s *Store) queryMany(ctx context.Context, query string, args ...any) ([]Reservation, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("error querying reservations: %w", err)
	}
	defer rows.Close()

	out := []Reservation{}
	for rows.Next() {
		r, err := scanReservation(rows)
		if err != nil {
			return nil, fmt.Errorf("error scanning reservation: %w", err)
		}
		out = append(out, *r)
	}
	return out, rows.Err()
}

// CourtAvailable reports whether a court has no live booking overlapping the
// half-open window [start, end). Cancelled and rejected rows never block a
// slot. excludeID skips the reservation being rescheduled; pass 0 on create.
func (s *Store) CourtAvailable(ctx context.Context, tx *sql.Tx, courtID int64, start, end time.Time, excludeID int64) (bool, error) {
	var count int
	err := tx.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM reservations
		WHERE court_id = ?
		  AND id != ?
		  AND status NOT IN ('CANCELLED', 'REJECTED')
		  AND start_time < ? AND end_time > ?`,
		courtID, excludeID, end, start,
	).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("error checking court availability: %w", err)
	}
	return count == 0, nil
}

// FindConflicting returns confirmed and pending bookings that overlap the
// window, earliest first. This is the report view: unlike CourtAvailable it
// ignores rejected rows only implicitly, by listing the two statuses that
// represent a live claim on the slot.
func (s *Store) FindConflicting(ctx context.Context, courtID int64, start, end time.Time) ([]Reservation, error) {
	return s.queryMany(ctx, `
		SELECT `+reservationColumns+` FROM reservations
		WHERE court_id = ?
		  AND status IN ('CONFIRMED', 'PENDING')
		  AND start_time < ? AND end_time > ?
		ORDER BY start_time ASC`,
		courtID, end, start)
}

// Update rewrites the mutable fields of a reservation.
func (s *Store) Update(ctx context.Context, tx *sql.Tx, r *Reservation) error {
	res, err := tx.ExecContext(ctx, `
		UPDATE reservations SET
			start_time = ?, end_time = ?, status = ?, payment_status = ?,
			total_amount = ?, paid_amount = ?, updated_at = ?
		WHERE id = ?`,
		r.StartTime, r.EndTime, r.Status, r.PaymentStatus,
		nullAmount(r.TotalAmount), r.PaidAmount.String(), r.UpdatedAt, r.ID,
	)
	if err != nil {
		return fmt.Errorf("error updating reservation %d: %w", r.ID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("error updating reservation %d: %w", r.ID, err)
	}
	if n == 0 {
		return apperr.NotFound("reservation %d not found", r.ID)
	}
	return nil
}

func (s *Store) Delete(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM reservations WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("error deleting reservation %d: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("error deleting reservation %d: %w", id, err)
	}
	if n == 0 {
		return apperr.NotFound("reservation %d not found", id)
	}
	return nil
}

// MarkEventProcessed records an idempotency key. It returns false when the
// event was already applied, so the caller can skip the write.
func (s *Store) MarkEventProcessed(ctx context.Context, tx *sql.Tx, eventID string, now time.Time) (bool, error) {
	if eventID == "" {
		return true, nil
	}
	res, err := tx.ExecContext(ctx,
		`INSERT OR IGNORE INTO processed_events (event_id, processed_at) VALUES (?, ?)`,
		eventID, now)
	if err != nil {
		return false, fmt.Errorf("error recording event %s: %w", eventID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("error recording event %s: %w", eventID, err)
	}
	return n == 1, nil
}

// RunInTx exposes the transaction helper for the service layer.
func (s *Store) RunInTx(ctx context.Context, fn func(*sql.Tx) error) error {
	return s.db.RunInTx(ctx, fn)
}
