// Package reservations owns the reservation ledger: booking validation, the
// availability engine, and the payment-side state the payment service pushes
// into it.
package reservations

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/courtbook/courtbook/internal/apperr"
)

type Status string

const (
	StatusPending   Status = "PENDING"
	StatusConfirmed Status = "CONFIRMED"
	StatusCancelled Status = "CANCELLED"
	StatusRejected  Status = "REJECTED"
)

func ParseStatus(value string) (Status, error) {
	switch Status(strings.ToUpper(strings.TrimSpace(value))) {
	case StatusPending:
		return StatusPending, nil
	case StatusConfirmed:
		return StatusConfirmed, nil
	case StatusCancelled:
		return StatusCancelled, nil
	case StatusRejected:
		return StatusRejected, nil
	}
	return "", apperr.Validation("invalid reservation status: %s", value)
}

type PaymentStatus string

const (
	PaymentPending   PaymentStatus = "PENDING"
	PaymentConfirmed PaymentStatus = "CONFIRMED"
	PaymentFailed    PaymentStatus = "FAILED"
	PaymentCancelled PaymentStatus = "CANCELLED"
	PaymentRefunded  PaymentStatus = "REFUNDED"
)

// ParsePaymentStatusToken maps the tokens pushed by the payment service onto
// the reservation-side enum. PAID and CONFIRMED both confirm; PROCESSING
// means the money is still in flight, so the reservation stays PENDING.
func ParsePaymentStatusToken(token string) (PaymentStatus, error) {
	switch strings.ToUpper(strings.TrimSpace(token)) {
	case "", "PENDING", "PROCESSING":
		return PaymentPending, nil
	case "PAID", "CONFIRMED":
		return PaymentConfirmed, nil
	case "FAILED":
		return PaymentFailed, nil
	case "CANCELLED":
		return PaymentCancelled, nil
	case "REFUNDED":
		return PaymentRefunded, nil
	}
	return "", apperr.Validation("invalid payment status: %s", token)
}

// ValidatePaymentTransition enforces the reservation-side payment state
// machine: CONFIRMED cannot revert to PENDING or FAILED, and CANCELLED and
// REFUNDED are terminal.
func ValidatePaymentTransition(current, next PaymentStatus) error {
	if current == PaymentConfirmed && (next == PaymentPending || next == PaymentFailed) {
		return apperr.StateTransition("cannot move a confirmed payment back to %s", next)
	}
	if current == PaymentCancelled || current == PaymentRefunded {
		return apperr.StateTransition("payment status %s is terminal", current)
	}
	return nil
}

type Reservation struct {
	ID            int64               `json:"id"`
	UserID        int64               `json:"userId"`
	UserEmail     string              `json:"userEmail"`
	CourtID       int64               `json:"courtId"`
	ClubID        int64               `json:"clubId"`
	StartTime     time.Time           `json:"startTime"`
	EndTime       time.Time           `json:"endTime"`
	Status        Status              `json:"status"`
	PaymentStatus PaymentStatus       `json:"paymentStatus"`
	TotalAmount   decimal.NullDecimal `json:"totalAmount"`
	PaidAmount    decimal.Decimal     `json:"paidAmount"`
	CreatedAt     time.Time           `json:"createdAt"`
	UpdatedAt     time.Time           `json:"updatedAt"`
}

// PendingAmount is total minus paid, floored at zero. Unknown totals owe
// nothing yet.
func (r *Reservation) PendingAmount() decimal.Decimal {
	if !r.TotalAmount.Valid {
		return decimal.Zero
	}
	pending := r.TotalAmount.Decimal.Sub(r.PaidAmount)
	if pending.IsNegative() {
		return decimal.Zero
	}
	return pending
}

// ConflictInfo describes one booking that overlaps a requested window.
type ConflictInfo struct {
	ReservationID        int64     `json:"reservationId"`
	ConflictingStartTime time.Time `json:"conflictingStartTime"`
	ConflictingEndTime   time.Time `json:"conflictingEndTime"`
	Status               Status    `json:"status"`
	UserID               int64     `json:"userId"`
}
