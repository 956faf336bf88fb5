package payments

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/courtbook/courtbook/internal/apperr"
	"github.com/courtbook/courtbook/internal/db"
)

//go:embed migrations/*.sql
var migrationFS embed.FS

// MigrationFS exposes the embedded migration set, which also carries the
// reconciliation outbox table.
func MigrationFS() embed.FS { return migrationFS }

const MigrationDir = "migrations"

type Store struct {
	db *db.DB
}

func NewStore(database *db.DB) *Store {
	return &Store{db: database}
}

const paymentColumns = `id, reservation_id, amount, status, method,
	external_payment_id, created_at, updated_at`

func scanPayment(row interface{ Scan(...any) error }) (*Payment, error) {
	var (
		p        Payment
		amount   string
		external sql.NullString
	)
	err := row.Scan(
		&p.ID, &p.ReservationID, &amount, &p.Status, &p.Method,
		&external, &p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	p.Amount, err = decimal.NewFromString(amount)
	if err != nil {
		return nil, fmt.Errorf("corrupt amount for payment %d: %w", p.ID, err)
	}
	p.ExternalPaymentID = external.String
	return &p, nil
}

func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func (s *Store) Insert(ctx context.Context, p *Payment) error {
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO payments (
			reservation_id, amount, status, method,
			external_payment_id, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		p.ReservationID, p.Amount.String(), p.Status, p.Method,
		nullString(p.ExternalPaymentID), p.CreatedAt, p.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("error inserting payment: %w", err)
	}
	p.ID, err = res.LastInsertId()
	if err != nil {
		return fmt.Errorf("error reading payment id: %w", err)
	}
	return nil
}

func (s *Store) GetByID(ctx context.Context, id int64) (*Payment, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+paymentColumns+` FROM payments WHERE id = ?`, id)
	p, err := scanPayment(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.NotFound("payment %d not found", id)
	}
	if err != nil {
		return nil, fmt.Errorf("error loading payment %d: %w", id, err)
	}
	return p, nil
}

func (s *Store) Exists(ctx context.Context, id int64) (bool, error) {
	var one int
	err := s.db.QueryRowContext(ctx, `SELECT 1 FROM payments WHERE id = ?`, id).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("error checking payment %d: %w", id, err)
	}
	return true, nil
}

func (s *Store) List(ctx context.Context) ([]Payment, error) {
	return s.queryMany(ctx,
		`SELECT `+paymentColumns+` FROM payments ORDER BY created_at DESC`)
}

func (s *Store) ListByReservation(ctx context.Context, reservationID int64) ([]Payment, error) {
	return s.queryMany(ctx,
		`SELECT `+paymentColumns+` FROM payments WHERE reservation_id = ? ORDER BY created_at DESC`,
		reservationID)
}

func (s *Store) ListByStatus(ctx context.Context, status Status) ([]Payment, error) {
	return s.queryMany(ctx,
		`SELECT `+paymentColumns+` FROM payments WHERE status = ? ORDER BY created_at DESC`,
		status)
}

func (s *Store) queryMany(ctx context.Context, query string, args ...any) ([]Payment, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("error querying payments: %w", err)
	}
	defer rows.Close()

	out := []Payment{}
	for rows.Next() {
		p, err := scanPayment(rows)
		if err != nil {
			return nil, fmt.Errorf("error scanning payment: %w", err)
		}
		out = append(out, *p)
	}
	return out, rows.Err()
}

// HasActivePayment reports whether the reservation already has a payment that
// still claims money. excludeID skips the payment being updated.
func (s *Store) HasActivePayment(ctx context.Context, reservationID, excludeID int64) (bool, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM payments
		WHERE reservation_id = ?
		  AND id != ?
		  AND status NOT IN ('CANCELLED', 'FAILED', 'REFUNDED')`,
		reservationID, excludeID,
	).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("error checking active payments: %w", err)
	}
	return count > 0, nil
}

// TotalPaid sums the COMPLETED amounts for a reservation. Amounts are stored
// as decimal strings, so the sum happens here rather than in SQL.
func (s *Store) TotalPaid(ctx context.Context, reservationID int64) (decimal.Decimal, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT amount FROM payments WHERE reservation_id = ? AND status = 'COMPLETED'`,
		reservationID)
	if err != nil {
		return decimal.Zero, fmt.Errorf("error summing payments: %w", err)
	}
	defer rows.Close()

	total := decimal.Zero
	for rows.Next() {
		var amount string
		if err := rows.Scan(&amount); err != nil {
			return decimal.Zero, fmt.Errorf("error scanning amount: %w", err)
		}
		d, err := decimal.NewFromString(amount)
		if err != nil {
			return decimal.Zero, fmt.Errorf("corrupt amount for reservation %d: %w", reservationID, err)
		}
		total = total.Add(d)
	}
	return total, rows.Err()
}

func (s *Store) Update(ctx context.Context, p *Payment) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE payments SET
			amount = ?, status = ?, method = ?, external_payment_id = ?, updated_at = ?
		WHERE id = ?`,
		p.Amount.String(), p.Status, p.Method, nullString(p.ExternalPaymentID), p.UpdatedAt, p.ID,
	)
	if err != nil {
		return fmt.Errorf("error updating payment %d: %w", p.ID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("error updating payment %d: %w", p.ID, err)
	}
	if n == 0 {
		return apperr.NotFound("payment %d not found", p.ID)
	}
	return nil
}

func (s *Store) Delete(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM payments WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("error deleting payment %d: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("error deleting payment %d: %w", id, err)
	}
	if n == 0 {
		return apperr.NotFound("payment %d not found", id)
	}
	return nil
}
