// Package payments owns the payment ledger: the status state machine, the
// provider-specific creation rules, and the reconciliation push that keeps
// the reservation service's payment view in sync.
package payments

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/courtbook/courtbook/internal/apperr"
)

type Status string

const (
	StatusPending    Status = "PENDING"
	StatusProcessing Status = "PROCESSING"
	StatusCompleted  Status = "COMPLETED"
	StatusFailed     Status = "FAILED"
	StatusCancelled  Status = "CANCELLED"
	StatusRefunded   Status = "REFUNDED"
)

func ParseStatus(value string) (Status, error) {
	switch Status(strings.ToUpper(strings.TrimSpace(value))) {
	case StatusPending:
		return StatusPending, nil
	case StatusProcessing:
		return StatusProcessing, nil
	case StatusCompleted:
		return StatusCompleted, nil
	case StatusFailed:
		return StatusFailed, nil
	case StatusCancelled:
		return StatusCancelled, nil
	case StatusRefunded:
		return StatusRefunded, nil
	}
	return "", apperr.Validation("invalid payment status: %s", value)
}

// allowedTransitions is the payment state machine. A status absent from the
// map, or a target absent from its set, is an illegal transition. CANCELLED
// is terminal; FAILED payments may be retried.
var allowedTransitions = map[Status]map[Status]bool{
	StatusPending:    {StatusProcessing: true, StatusCompleted: true, StatusFailed: true, StatusCancelled: true},
	StatusProcessing: {StatusCompleted: true, StatusFailed: true, StatusCancelled: true},
	StatusCompleted:  {StatusRefunded: true},
	StatusFailed:     {StatusPending: true, StatusProcessing: true},
	StatusCancelled:  {},
	StatusRefunded:   {},
}

// ValidateTransition checks a status change against the state machine.
// Same-status writes are allowed so non-status updates pass through.
func ValidateTransition(current, next Status) error {
	if current == next {
		return nil
	}
	if !allowedTransitions[current][next] {
		return apperr.StateTransition("cannot move payment from %s to %s", current, next)
	}
	return nil
}

type Method string

const (
	MethodCash        Method = "CASH"
	MethodCard        Method = "CARD"
	MethodTransfer    Method = "TRANSFER"
	MethodMercadoPago Method = "MERCADOPAGO"
	MethodStripe      Method = "STRIPE"
	MethodPayPal      Method = "PAYPAL"
)

func ParseMethod(value string) (Method, error) {
	switch Method(strings.ToUpper(strings.TrimSpace(value))) {
	case MethodCash:
		return MethodCash, nil
	case MethodCard:
		return MethodCard, nil
	case MethodTransfer:
		return MethodTransfer, nil
	case MethodMercadoPago:
		return MethodMercadoPago, nil
	case MethodStripe:
		return MethodStripe, nil
	case MethodPayPal:
		return MethodPayPal, nil
	}
	return "", apperr.Validation("invalid payment method: %s", value)
}

// IsExternal reports whether the method settles through a payment provider
// rather than at the front desk.
func (m Method) IsExternal() bool {
	switch m {
	case MethodMercadoPago, MethodStripe, MethodPayPal:
		return true
	}
	return false
}

// reservationStatusToken maps a payment status onto the token the
// reservation service understands. COMPLETED travels as PAID.
func reservationStatusToken(s Status) string {
	if s == StatusCompleted {
		return "PAID"
	}
	return string(s)
}

type Payment struct {
	ID                int64           `json:"id"`
	ReservationID     int64           `json:"reservationId"`
	Amount            decimal.Decimal `json:"amount"`
	Status            Status          `json:"status"`
	Method            Method          `json:"method"`
	ExternalPaymentID string          `json:"externalPaymentId,omitempty"`
	CreatedAt         time.Time       `json:"createdAt"`
	UpdatedAt         time.Time       `json:"updatedAt"`
}

// Active reports whether the payment still claims money against its
// reservation. Cancelled, failed, and refunded payments do not.
func (p *Payment) Active() bool {
	switch p.Status {
	case StatusCancelled, StatusFailed, StatusRefunded:
		return false
	}
	return true
}
