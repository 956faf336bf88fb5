package clients

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/shopspring/decimal"
)

// ApplyPaymentRequest mirrors the reservation service's apply-payment body.
type ApplyPaymentRequest struct {
	Amount        decimal.Decimal `json:"amount"`
	PaymentMethod string          `json:"paymentMethod"`
	TransactionID string          `json:"transactionId"`
	Notes         string          `json:"notes,omitempty"`
}

// UpdatePaymentStatusRequest mirrors the payment-status push body.
type UpdatePaymentStatusRequest struct {
	PaymentStatus    string `json:"paymentStatus"`
	PaymentReference string `json:"paymentReference,omitempty"`
	Notes            string `json:"notes,omitempty"`
}

// ReservationAPI is the payment service's view of the reservation service.
type ReservationAPI interface {
	ExistsByID(ctx context.Context, id int64) (bool, error)
	ApplyPayment(ctx context.Context, id int64, eventID string, req ApplyPaymentRequest) error
	UpdatePaymentStatus(ctx context.Context, id int64, eventID string, req UpdatePaymentStatusRequest) error
	PendingAmount(ctx context.Context, id int64) (decimal.Decimal, error)
}

type ReservationClient struct {
	httpClient
}

func NewReservationClient(baseURL string, timeout time.Duration) *ReservationClient {
	return &ReservationClient{newHTTPClient(baseURL, timeout)}
}

func (c *ReservationClient) ExistsByID(ctx context.Context, id int64) (bool, error) {
	var exists bool
	if err := c.get(ctx, fmt.Sprintf("/api/reservations/%d/exists", id), &exists); err != nil {
		return false, err
	}
	return exists, nil
}

// ApplyPayment pushes a payment amount into the reservation ledger. The
// event id rides the X-Event-ID header so re-deliveries from the outbox are
// applied once.
func (c *ReservationClient) ApplyPayment(ctx context.Context, id int64, eventID string, req ApplyPaymentRequest) error {
	return c.do(ctx, http.MethodPost, fmt.Sprintf("/api/reservations/%d/apply-payment", id), req, nil, eventHeader(eventID))
}

func (c *ReservationClient) UpdatePaymentStatus(ctx context.Context, id int64, eventID string, req UpdatePaymentStatusRequest) error {
	return c.do(ctx, http.MethodPatch, fmt.Sprintf("/api/reservations/%d/payment-status", id), req, nil, eventHeader(eventID))
}

func (c *ReservationClient) PendingAmount(ctx context.Context, id int64) (decimal.Decimal, error) {
	var resp struct {
		Amount decimal.Decimal `json:"amount"`
	}
	if err := c.get(ctx, fmt.Sprintf("/api/reservations/%d/pending-amount", id), &resp); err != nil {
		return decimal.Zero, err
	}
	return resp.Amount, nil
}

func eventHeader(eventID string) map[string]string {
	if eventID == "" {
		return nil
	}
	return map[string]string{"X-Event-ID": eventID}
}
