package payments

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/courtbook/courtbook/internal/apperr"
	"github.com/courtbook/courtbook/internal/clients"
	"github.com/courtbook/courtbook/internal/locks"
	"github.com/courtbook/courtbook/internal/outbox"
)

// DefaultMaxAmount caps a single payment when no ceiling is configured.
var DefaultMaxAmount = decimal.NewFromInt(1_000_000)

// Clock interface for testing time-dependent behavior.
type Clock interface {
	Now() time.Time
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

// Service implements the payment operations. Every write that changes what
// the reservation service should believe about a booking pushes through the
// bridge; failed pushes land in the outbox and the response reports
// reconciled=false.
type Service struct {
	store  *Store
	bridge clients.ReservationAPI
	outbox *outbox.Store

	// resLocks serializes writes per reservation, so the active-payment
	// check and the insert cannot interleave across requests.
	resLocks *locks.Keyed

	maxAmount decimal.Decimal
	clock     Clock
	newEvent  func() string
}

type ServiceOption func(*Service)

func WithClock(c Clock) ServiceOption {
	return func(s *Service) { s.clock = c }
}

func WithMaxAmount(max decimal.Decimal) ServiceOption {
	return func(s *Service) {
		if max.IsPositive() {
			s.maxAmount = max
		}
	}
}

// WithEventIDs replaces the event id generator. Test hook.
func WithEventIDs(gen func() string) ServiceOption {
	return func(s *Service) { s.newEvent = gen }
}

func NewService(store *Store, bridge clients.ReservationAPI, ob *outbox.Store, opts ...ServiceOption) *Service {
	s := &Service{
		store:     store,
		bridge:    bridge,
		outbox:    ob,
		resLocks:  locks.NewKeyed(),
		maxAmount: DefaultMaxAmount,
		clock:     realClock{},
		newEvent:  uuid.NewString,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

type CreateParams struct {
	ReservationID int64           `json:"reservationId"`
	Amount        decimal.Decimal `json:"amount"`
	Method        string          `json:"method"`
}

func (s *Service) validateAmount(amount decimal.Decimal) error {
	if !amount.IsPositive() {
		return apperr.Validation("amount must be positive")
	}
	if amount.GreaterThan(s.maxAmount) {
		return apperr.Validation("amount exceeds the maximum of %s", s.maxAmount.StringFixed(2))
	}
	return nil
}

// externalPaymentID builds the provider reference recorded for external
// methods, e.g. EXT-MER-42-1a2b3c4d.
func externalPaymentID(method Method, reservationID int64) string {
	return fmt.Sprintf("EXT-%s-%d-%s",
		strings.ToUpper(string(method))[:3], reservationID, uuid.NewString()[:8])
}

// Create validates and persists a payment, then pushes it into the
// reservation ledger. A failed push never fails the create; the row is
// parked in the outbox and the caller sees reconciled=false.
func (s *Service) Create(ctx context.Context, params CreateParams) (*Payment, bool, error) {
	if params.ReservationID <= 0 {
		return nil, false, apperr.Validation("reservationId is required")
	}
	method, err := ParseMethod(params.Method)
	if err != nil {
		return nil, false, err
	}
	if err := s.validateAmount(params.Amount); err != nil {
		return nil, false, err
	}

	exists, err := s.bridge.ExistsByID(ctx, params.ReservationID)
	if err != nil {
		return nil, false, err
	}
	if !exists {
		return nil, false, apperr.NotFound("reservation %d not found", params.ReservationID)
	}

	unlock := s.resLocks.Lock(params.ReservationID)
	defer unlock()

	active, err := s.store.HasActivePayment(ctx, params.ReservationID, 0)
	if err != nil {
		return nil, false, err
	}
	if active {
		return nil, false, apperr.Conflict("reservation %d already has an active payment", params.ReservationID)
	}

	now := s.clock.Now().UTC()
	p := &Payment{
		ReservationID: params.ReservationID,
		Amount:        params.Amount,
		Status:        StatusPending,
		Method:        method,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if method.IsExternal() {
		p.ExternalPaymentID = externalPaymentID(method, params.ReservationID)
	}
	// MercadoPago settles asynchronously and acknowledges straight away.
	if method == MethodMercadoPago {
		p.Status = StatusProcessing
	}

	if err := s.store.Insert(ctx, p); err != nil {
		return nil, false, err
	}

	reconciled := s.pushApplyPayment(ctx, p)
	return p, reconciled, nil
}

func (p *Payment) transactionID() string {
	if p.ExternalPaymentID != "" {
		return p.ExternalPaymentID
	}
	return fmt.Sprintf("PAY-%d", p.ID)
}

func (s *Service) pushApplyPayment(ctx context.Context, p *Payment) bool {
	eventID := s.newEvent()
	req := clients.ApplyPaymentRequest{
		Amount:        p.Amount,
		PaymentMethod: string(p.Method),
		TransactionID: p.transactionID(),
	}
	if err := s.bridge.ApplyPayment(ctx, p.ReservationID, eventID, req); err != nil {
		log.Ctx(ctx).Warn().Err(err).
			Int64("payment_id", p.ID).
			Int64("reservation_id", p.ReservationID).
			Msg("apply-payment push failed, enqueueing for retry")
		if obErr := s.outbox.Enqueue(ctx, eventID, p.ReservationID, outbox.KindApplyPayment, req, err); obErr != nil {
			log.Ctx(ctx).Error().Err(obErr).
				Int64("payment_id", p.ID).
				Msg("failed to enqueue outbox row")
		}
		return false
	}
	return true
}

func (s *Service) pushStatus(ctx context.Context, p *Payment, notes string) bool {
	eventID := s.newEvent()
	req := clients.UpdatePaymentStatusRequest{
		PaymentStatus:    reservationStatusToken(p.Status),
		PaymentReference: p.transactionID(),
		Notes:            notes,
	}
	if err := s.bridge.UpdatePaymentStatus(ctx, p.ReservationID, eventID, req); err != nil {
		log.Ctx(ctx).Warn().Err(err).
			Int64("payment_id", p.ID).
			Int64("reservation_id", p.ReservationID).
			Str("status", string(p.Status)).
			Msg("payment-status push failed, enqueueing for retry")
		if obErr := s.outbox.Enqueue(ctx, eventID, p.ReservationID, outbox.KindPaymentStatus, req, err); obErr != nil {
			log.Ctx(ctx).Error().Err(obErr).
				Int64("payment_id", p.ID).
				Msg("failed to enqueue outbox row")
		}
		return false
	}
	return true
}

type UpdateParams struct {
	Amount decimal.Decimal `json:"amount"`
	Status string          `json:"status"`
}

// Update edits a payment that has not settled. Settled payments (COMPLETED,
// CANCELLED, REFUNDED) are immutable and answer 409.
func (s *Service) Update(ctx context.Context, id int64, params UpdateParams) (*Payment, bool, error) {
	p, err := s.store.GetByID(ctx, id)
	if err != nil {
		return nil, false, err
	}
	switch p.Status {
	case StatusCompleted, StatusCancelled, StatusRefunded:
		return nil, false, apperr.Conflict("payment %d is %s and cannot be updated", id, p.Status)
	}

	next := p.Status
	if params.Status != "" {
		next, err = ParseStatus(params.Status)
		if err != nil {
			return nil, false, err
		}
		if err := ValidateTransition(p.Status, next); err != nil {
			return nil, false, err
		}
	}

	// Retrying a FAILED payment makes it active again, which must not join
	// another active payment on the same reservation.
	if p.Status == StatusFailed && next != p.Status {
		unlock := s.resLocks.Lock(p.ReservationID)
		defer unlock()
		active, err := s.store.HasActivePayment(ctx, p.ReservationID, p.ID)
		if err != nil {
			return nil, false, err
		}
		if active {
			return nil, false, apperr.Conflict("reservation %d already has an active payment", p.ReservationID)
		}
	}
	if !params.Amount.IsZero() {
		if err := s.validateAmount(params.Amount); err != nil {
			return nil, false, err
		}
		p.Amount = params.Amount
	}

	statusChanged := next != p.Status
	p.Status = next
	p.UpdatedAt = s.clock.Now().UTC()
	if err := s.store.Update(ctx, p); err != nil {
		return nil, false, err
	}

	reconciled := true
	if statusChanged {
		switch p.Status {
		case StatusCompleted, StatusCancelled, StatusRefunded:
			reconciled = s.pushStatus(ctx, p, "")
		}
	}
	return p, reconciled, nil
}

// Delete removes a payment that never settled.
func (s *Service) Delete(ctx context.Context, id int64) error {
	p, err := s.store.GetByID(ctx, id)
	if err != nil {
		return err
	}
	switch p.Status {
	case StatusPending, StatusFailed, StatusCancelled:
		return s.store.Delete(ctx, id)
	default:
		return apperr.Conflict("cannot delete a %s payment", p.Status)
	}
}

// DefaultCancelReason is recorded when the caller gives no reason.
const DefaultCancelReason = "Cancelled by user"

// CancelByReason cancels a payment that has not completed. Completed money
// must be refunded, not cancelled.
func (s *Service) CancelByReason(ctx context.Context, id int64, reason string) (*Payment, bool, error) {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		reason = DefaultCancelReason
	}
	p, err := s.store.GetByID(ctx, id)
	if err != nil {
		return nil, false, err
	}
	if p.Status == StatusCompleted {
		return nil, false, apperr.StateTransition("payment %d is completed; refund it instead of cancelling", id)
	}
	if p.Status == StatusCancelled {
		return p, true, nil
	}

	p.Status = StatusCancelled
	p.UpdatedAt = s.clock.Now().UTC()
	if err := s.store.Update(ctx, p); err != nil {
		return nil, false, err
	}
	log.Ctx(ctx).Info().
		Int64("payment_id", p.ID).
		Str("reason", reason).
		Msg("payment cancelled")

	reconciled := s.pushStatus(ctx, p, reason)
	return p, reconciled, nil
}

func (s *Service) Get(ctx context.Context, id int64) (*Payment, error) {
	return s.store.GetByID(ctx, id)
}

func (s *Service) List(ctx context.Context) ([]Payment, error) {
	return s.store.List(ctx)
}

func (s *Service) Exists(ctx context.Context, id int64) (bool, error) {
	return s.store.Exists(ctx, id)
}

func (s *Service) ListByReservation(ctx context.Context, reservationID int64) ([]Payment, error) {
	if reservationID <= 0 {
		return nil, apperr.Validation("invalid reservation id")
	}
	return s.store.ListByReservation(ctx, reservationID)
}

func (s *Service) ListByStatus(ctx context.Context, status string) ([]Payment, error) {
	parsed, err := ParseStatus(status)
	if err != nil {
		return nil, err
	}
	return s.store.ListByStatus(ctx, parsed)
}

// TotalPaid sums the COMPLETED amounts recorded for a reservation.
func (s *Service) TotalPaid(ctx context.Context, reservationID int64) (decimal.Decimal, error) {
	if reservationID <= 0 {
		return decimal.Zero, apperr.Validation("invalid reservation id")
	}
	return s.store.TotalPaid(ctx, reservationID)
}
