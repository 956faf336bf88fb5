package reservations

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/courtbook/courtbook/internal/apperr"
	"github.com/courtbook/courtbook/internal/cache"
	"github.com/courtbook/courtbook/internal/clients"
	"github.com/courtbook/courtbook/internal/locks"
	"github.com/courtbook/courtbook/internal/money"
)

const (
	minDuration = 60 * time.Minute
	maxDuration = 4 * time.Hour
)

// Clock interface for testing time-dependent behavior.
type Clock interface {
	Now() time.Time
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

// Notifier records a confirmation notification for later delivery. Failures
// are logged, never surfaced to the booking caller.
type Notifier interface {
	ReservationConfirmed(ctx context.Context, r *Reservation, clubName string) error
}

// Service implements the reservation operations on top of the store and the
// remote court, club, and user services.
type Service struct {
	store    *Store
	courts   clients.CourtAPI
	clubs    clients.ClubAPI
	users    clients.UserAPI

	// courtLocks serializes booking writes per court; payLocks serializes
	// payment credits per reservation.
	courtLocks *locks.Keyed
	payLocks   *locks.Keyed

	clock    Clock
	names    *cache.Cache
	notifier Notifier
}

type ServiceOption func(*Service)

func WithClock(c Clock) ServiceOption {
	return func(s *Service) { s.clock = c }
}

func WithNotifier(n Notifier) ServiceOption {
	return func(s *Service) { s.notifier = n }
}

func NewService(store *Store, courts clients.CourtAPI, clubs clients.ClubAPI, users clients.UserAPI, names *cache.Cache, opts ...ServiceOption) *Service {
	s := &Service{
		store:      store,
		courts:     courts,
		clubs:      clubs,
		users:      users,
		courtLocks: locks.NewKeyed(),
		payLocks:   locks.NewKeyed(),
		clock:      realClock{},
		names:      names,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// CreateParams carries a booking request.
type CreateParams struct {
	UserID    int64     `json:"userId"`
	UserEmail string    `json:"userEmail"`
	CourtID   int64     `json:"courtId"`
	ClubID    int64     `json:"clubId"`
	StartTime time.Time `json:"startTime"`
	EndTime   time.Time `json:"endTime"`
}

// UpdateParams carries a reschedule. Zero CourtID means the court is
// unchanged; empty Status leaves the status alone.
type UpdateParams struct {
	CourtID   int64     `json:"courtId"`
	StartTime time.Time `json:"startTime"`
	EndTime   time.Time `json:"endTime"`
	Status    string    `json:"status"`
}

func (s *Service) validateWindow(start, end time.Time, allowPast bool) error {
	if start.IsZero() || end.IsZero() {
		return apperr.Validation("startTime and endTime are required")
	}
	if !end.After(start) {
		return apperr.Validation("endTime must be after startTime")
	}
	d := end.Sub(start)
	if d < minDuration {
		return apperr.Validation("reservation must be at least %d minutes", int(minDuration.Minutes()))
	}
	if d > maxDuration {
		return apperr.Validation("reservation cannot exceed %d hours", int(maxDuration.Hours()))
	}
	if !allowPast && start.Before(s.clock.Now()) {
		return apperr.Validation("reservation cannot start in the past")
	}
	return nil
}

// fetchCourt resolves a court and checks that it is usable for the club.
// An absent court stays a 404; an inactive court or a club mismatch is a
// request error.
func (s *Service) fetchCourt(ctx context.Context, courtID, clubID int64) (*clients.Court, error) {
	court, err := s.courts.FindCourt(ctx, courtID)
	if apperr.Is(err, apperr.KindNotFound) {
		return nil, apperr.NotFound("court %d does not exist", courtID)
	}
	if err != nil {
		return nil, err
	}
	if !court.IsActive {
		return nil, apperr.Validation("court %d is not active", courtID)
	}
	if court.ClubID != clubID {
		return nil, apperr.Validation("court %d does not belong to club %d", courtID, clubID)
	}
	return court, nil
}

// Create validates a booking against the remote catalog and persists it.
// The availability check and the insert run under the court's lock inside one
// transaction, so two concurrent requests for the same slot cannot both win.
func (s *Service) Create(ctx context.Context, params CreateParams) (*Reservation, error) {
	if params.UserID <= 0 || params.CourtID <= 0 || params.ClubID <= 0 {
		return nil, apperr.Validation("userId, courtId and clubId are required")
	}
	if err := s.validateWindow(params.StartTime, params.EndTime, false); err != nil {
		return nil, err
	}

	exists, err := s.users.UserExists(ctx, params.UserID)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, apperr.NotFound("user %d does not exist", params.UserID)
	}

	exists, err = s.clubs.ClubExists(ctx, params.ClubID)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, apperr.NotFound("club %d does not exist", params.ClubID)
	}

	court, err := s.fetchCourt(ctx, params.CourtID, params.ClubID)
	if err != nil {
		return nil, err
	}

	email := params.UserEmail
	if email == "" {
		if info, err := s.users.UserBasicInfo(ctx, params.UserID); err == nil {
			email = info.Email
		}
	}

	now := s.clock.Now().UTC()
	r := &Reservation{
		UserID:        params.UserID,
		UserEmail:     email,
		CourtID:       params.CourtID,
		ClubID:        params.ClubID,
		StartTime:     params.StartTime.UTC(),
		EndTime:       params.EndTime.UTC(),
		Status:        StatusPending,
		PaymentStatus: PaymentPending,
		TotalAmount:   decimal.NewNullDecimal(money.Price(court.PricePerHour, params.StartTime, params.EndTime)),
		PaidAmount:    decimal.Zero,
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	unlock := s.courtLocks.Lock(params.CourtID)
	defer unlock()

	err = s.store.RunInTx(ctx, func(tx *sql.Tx) error {
		available, err := s.store.CourtAvailable(ctx, tx, params.CourtID, r.StartTime, r.EndTime, 0)
		if err != nil {
			return err
		}
		if !available {
			return apperr.Conflict("court %d is not available from %s to %s",
				params.CourtID, r.StartTime.Format(time.RFC3339), r.EndTime.Format(time.RFC3339))
		}
		return s.store.Insert(ctx, tx, r)
	})
	if err != nil {
		return nil, err
	}
	return r, nil
}

// Update reschedules a reservation. The owning user never changes. The
// availability re-check only runs when the court or the window moved, and it
// excludes the reservation itself.
func (s *Service) Update(ctx context.Context, id int64, params UpdateParams) (*Reservation, error) {
	if err := s.validateWindow(params.StartTime, params.EndTime, true); err != nil {
		return nil, err
	}

	r, err := s.store.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if r.Status == StatusCancelled || r.Status == StatusRejected {
		return nil, apperr.StateTransition("cannot update a %s reservation", r.Status)
	}

	courtID := r.CourtID
	if params.CourtID > 0 {
		courtID = params.CourtID
	}
	newStart := params.StartTime.UTC()
	newEnd := params.EndTime.UTC()
	moved := courtID != r.CourtID || !newStart.Equal(r.StartTime) || !newEnd.Equal(r.EndTime)

	if moved {
		court, err := s.fetchCourt(ctx, courtID, r.ClubID)
		if err != nil {
			return nil, err
		}
		// A confirmed payment already covers the old total; the price is
		// frozen once money has settled.
		if r.PaymentStatus == PaymentPending {
			r.TotalAmount = decimal.NewNullDecimal(money.Price(court.PricePerHour, newStart, newEnd))
		}
	}

	if params.Status != "" {
		status, err := ParseStatus(params.Status)
		if err != nil {
			return nil, err
		}
		r.Status = status
	}

	r.CourtID = courtID
	r.StartTime = newStart
	r.EndTime = newEnd
	r.UpdatedAt = s.clock.Now().UTC()

	if !moved {
		return r, s.store.RunInTx(ctx, func(tx *sql.Tx) error {
			return s.store.Update(ctx, tx, r)
		})
	}

	unlock := s.courtLocks.Lock(courtID)
	defer unlock()

	err = s.store.RunInTx(ctx, func(tx *sql.Tx) error {
		available, err := s.store.CourtAvailable(ctx, tx, courtID, newStart, newEnd, r.ID)
		if err != nil {
			return err
		}
		if !available {
			return apperr.Conflict("court %d is not available from %s to %s",
				courtID, newStart.Format(time.RFC3339), newEnd.Format(time.RFC3339))
		}
		return s.store.Update(ctx, tx, r)
	})
	if err != nil {
		return nil, err
	}
	return r, nil
}

// Delete removes a reservation that never reached CONFIRMED. Confirmed
// bookings must be cancelled through the payment flow first.
func (s *Service) Delete(ctx context.Context, id int64) error {
	r, err := s.store.GetByID(ctx, id)
	if err != nil {
		return err
	}
	switch r.Status {
	case StatusPending, StatusCancelled, StatusRejected:
		return s.store.Delete(ctx, id)
	default:
		return apperr.Conflict("cannot delete a %s reservation", r.Status)
	}
}

func (s *Service) Get(ctx context.Context, id int64) (*Reservation, error) {
	return s.store.GetByID(ctx, id)
}

func (s *Service) List(ctx context.Context) ([]Reservation, error) {
	return s.store.List(ctx)
}

func (s *Service) ListByUserEmail(ctx context.Context, email string) ([]Reservation, error) {
	if email == "" {
		return nil, apperr.Validation("user email is required")
	}
	return s.store.ListByUserEmail(ctx, email)
}

func (s *Service) Exists(ctx context.Context, id int64) (bool, error) {
	return s.store.Exists(ctx, id)
}

// HasConflict reports whether any live booking overlaps the half-open window
// [start, end) on the court. Touching endpoints never conflict.
func (s *Service) HasConflict(ctx context.Context, courtID int64, start, end time.Time) (bool, error) {
	if courtID <= 0 {
		return false, apperr.Validation("courtId is required")
	}
	if !end.After(start) {
		return false, apperr.Validation("endTime must be after startTime")
	}
	conflicts, err := s.store.FindConflicting(ctx, courtID, start.UTC(), end.UTC())
	if err != nil {
		return false, err
	}
	return len(conflicts) > 0, nil
}

// FindConflicts lists the overlapping bookings, earliest first.
func (s *Service) FindConflicts(ctx context.Context, courtID int64, start, end time.Time) ([]ConflictInfo, error) {
	if courtID <= 0 {
		return nil, apperr.Validation("courtId is required")
	}
	if !end.After(start) {
		return nil, apperr.Validation("endTime must be after startTime")
	}
	rows, err := s.store.FindConflicting(ctx, courtID, start.UTC(), end.UTC())
	if err != nil {
		return nil, err
	}
	out := make([]ConflictInfo, 0, len(rows))
	for _, r := range rows {
		out = append(out, ConflictInfo{
			ReservationID:        r.ID,
			ConflictingStartTime: r.StartTime,
			ConflictingEndTime:   r.EndTime,
			Status:               r.Status,
			UserID:               r.UserID,
		})
	}
	return out, nil
}

// UpdatePaymentStatus applies a status token pushed by the payment service.
// Duplicate event ids are absorbed: the first delivery wins, later ones
// return the current row unchanged.
func (s *Service) UpdatePaymentStatus(ctx context.Context, id int64, token, eventID string) (*Reservation, error) {
	next, err := ParsePaymentStatusToken(token)
	if err != nil {
		return nil, err
	}

	// The load and the write must see the same row; concurrent pushes for
	// one reservation are serialized here.
	unlock := s.payLocks.Lock(id)
	defer unlock()

	r, err := s.store.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	var confirmed bool
	err = s.store.RunInTx(ctx, func(tx *sql.Tx) error {
		fresh, err := s.store.MarkEventProcessed(ctx, tx, eventID, s.clock.Now().UTC())
		if err != nil {
			return err
		}
		if !fresh {
			return nil
		}
		if err := ValidatePaymentTransition(r.PaymentStatus, next); err != nil {
			return err
		}

		switch next {
		case PaymentConfirmed:
			if err := s.ensureTotal(ctx, r); err != nil {
				return err
			}
			r.PaidAmount = r.TotalAmount.Decimal
			r.Status = StatusConfirmed
			confirmed = r.PaymentStatus != PaymentConfirmed
		case PaymentCancelled, PaymentFailed:
			r.PaidAmount = decimal.Zero
		}
		r.PaymentStatus = next
		r.UpdatedAt = s.clock.Now().UTC()
		return s.store.Update(ctx, tx, r)
	})
	if err != nil {
		return nil, err
	}

	if confirmed {
		s.notifyConfirmed(ctx, r)
	}
	return r, nil
}

// ApplyPaymentParams carries one settled payment from the payment service.
type ApplyPaymentParams struct {
	Amount        decimal.Decimal `json:"amount"`
	PaymentMethod string          `json:"paymentMethod"`
	TransactionID string          `json:"transactionId"`
	Notes         string          `json:"notes"`
}

// ApplyPayment credits an amount against the reservation's total. Paying the
// balance in full confirms both the payment status and the reservation.
func (s *Service) ApplyPayment(ctx context.Context, id int64, params ApplyPaymentParams, eventID string) (*Reservation, error) {
	if !params.Amount.IsPositive() {
		return nil, apperr.Validation("amount must be positive")
	}

	// Two credits against the same reservation must not both read the old
	// paid amount, or the ledger would accept more than the total.
	unlock := s.payLocks.Lock(id)
	defer unlock()

	r, err := s.store.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if r.Status == StatusCancelled {
		return nil, apperr.StateTransition("cannot apply a payment to a cancelled reservation")
	}

	if err := s.ensureTotal(ctx, r); err != nil {
		return nil, err
	}

	var confirmed bool
	err = s.store.RunInTx(ctx, func(tx *sql.Tx) error {
		fresh, err := s.store.MarkEventProcessed(ctx, tx, eventID, s.clock.Now().UTC())
		if err != nil {
			return err
		}
		if !fresh {
			return nil
		}

		newPaid := r.PaidAmount.Add(params.Amount)
		if newPaid.GreaterThan(r.TotalAmount.Decimal) {
			return apperr.Validation("payment of %s exceeds the outstanding total %s",
				params.Amount.StringFixed(2), r.TotalAmount.Decimal.Sub(r.PaidAmount).StringFixed(2))
		}

		r.PaidAmount = newPaid
		if newPaid.Equal(r.TotalAmount.Decimal) {
			r.PaymentStatus = PaymentConfirmed
			r.Status = StatusConfirmed
			confirmed = true
		}
		r.UpdatedAt = s.clock.Now().UTC()
		return s.store.Update(ctx, tx, r)
	})
	if err != nil {
		return nil, err
	}

	if confirmed {
		s.notifyConfirmed(ctx, r)
	}
	return r, nil
}

func (s *Service) PendingAmount(ctx context.Context, id int64) (decimal.Decimal, error) {
	r, err := s.store.GetByID(ctx, id)
	if err != nil {
		return decimal.Zero, err
	}
	if err := s.ensureTotal(ctx, r); err != nil {
		return decimal.Zero, err
	}
	return r.PendingAmount(), nil
}

// TotalAmount returns the price of the reservation's window at the court's
// current rate.
func (s *Service) TotalAmount(ctx context.Context, id int64) (decimal.Decimal, error) {
	r, err := s.store.GetByID(ctx, id)
	if err != nil {
		return decimal.Zero, err
	}
	if r.TotalAmount.Valid {
		return r.TotalAmount.Decimal, nil
	}
	court, err := s.courts.FindCourt(ctx, r.CourtID)
	if err != nil {
		return decimal.Zero, err
	}
	return money.Price(court.PricePerHour, r.StartTime, r.EndTime), nil
}

// ensureTotal backfills TotalAmount from the court rate for rows created
// before pricing was stored at booking time.
func (s *Service) ensureTotal(ctx context.Context, r *Reservation) error {
	if r.TotalAmount.Valid {
		return nil
	}
	court, err := s.courts.FindCourt(ctx, r.CourtID)
	if err != nil {
		return err
	}
	r.TotalAmount = decimal.NewNullDecimal(money.Price(court.PricePerHour, r.StartTime, r.EndTime))
	return nil
}

func (s *Service) notifyConfirmed(ctx context.Context, r *Reservation) {
	if s.notifier == nil {
		return
	}
	if err := s.notifier.ReservationConfirmed(ctx, r, s.ClubDisplayName(ctx, r.ClubID)); err != nil {
		log.Ctx(ctx).Error().Err(err).
			Int64("reservation_id", r.ID).
			Msg("failed to record confirmation notification")
	}
}

// ClubDisplayName resolves a club name through the bounded cache. Remote
// failures degrade to an empty name.
func (s *Service) ClubDisplayName(ctx context.Context, clubID int64) string {
	key := fmt.Sprintf("club:%d", clubID)
	if name, ok := s.names.Get(key); ok {
		return name
	}
	name, err := s.clubs.ClubName(ctx, clubID)
	if err != nil {
		log.Ctx(ctx).Warn().Err(err).Int64("club_id", clubID).Msg("club name lookup failed")
		return ""
	}
	s.names.Set(key, name)
	return name
}

// UserDisplayName resolves a user name through the bounded cache.
func (s *Service) UserDisplayName(ctx context.Context, userID int64) string {
	key := fmt.Sprintf("user:%d", userID)
	if name, ok := s.names.Get(key); ok {
		return name
	}
	info, err := s.users.UserBasicInfo(ctx, userID)
	if err != nil {
		log.Ctx(ctx).Warn().Err(err).Int64("user_id", userID).Msg("user name lookup failed")
		return ""
	}
	s.names.Set(key, info.Name)
	return info.Name
}
