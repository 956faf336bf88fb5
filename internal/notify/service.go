package notify

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/courtbook/courtbook/internal/reservations"
)

const sendTimeout = 5 * time.Second

const sweepBatchSize = 25

// Clock interface for testing time-dependent behavior.
type Clock interface {
	Now() time.Time
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

// Service records notifications and delivers them. A nil sender records rows
// without sending, which keeps local development off SES.
type Service struct {
	store  *Store
	sender EmailSender
	clock  Clock
	// async sends are skipped in tests so assertions see final state
	synchronous bool
}

type Option func(*Service)

func WithClock(c Clock) Option {
	return func(s *Service) { s.clock = c }
}

// Synchronous makes sends block the caller. Test hook.
func Synchronous() Option {
	return func(s *Service) { s.synchronous = true }
}

func NewService(store *Store, sender EmailSender, opts ...Option) *Service {
	s := &Service{store: store, sender: sender, clock: realClock{}}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ReservationConfirmed records a confirmation notification and kicks off
// delivery. Implements the reservation service's notifier hook.
func (s *Service) ReservationConfirmed(ctx context.Context, r *reservations.Reservation, clubName string) error {
	if r.UserEmail == "" {
		log.Ctx(ctx).Warn().
			Int64("reservation_id", r.ID).
			Msg("no email on file, skipping confirmation notification")
		return nil
	}

	email := BuildConfirmation(ConfirmationDetails{
		ClubName:  clubName,
		StartTime: r.StartTime,
		EndTime:   r.EndTime,
	})
	now := s.clock.Now().UTC()
	n := &Notification{
		UserID:        r.UserID,
		ReservationID: r.ID,
		Channel:       "EMAIL",
		Recipient:     r.UserEmail,
		Subject:       email.Subject,
		Body:          email.Body,
		Status:        StatusPending,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := s.store.Insert(ctx, n); err != nil {
		return err
	}

	if s.sender == nil {
		return nil
	}
	if s.synchronous {
		s.deliver(ctx, n)
		return nil
	}
	go func() {
		// Detach cancellation so handler-scoped contexts don't abort sends.
		sendCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), sendTimeout)
		defer cancel()
		s.deliver(sendCtx, n)
	}()
	return nil
}

func (s *Service) deliver(ctx context.Context, n *Notification) {
	err := s.sender.Send(ctx, n.Recipient, n.Subject, n.Body)
	now := s.clock.Now().UTC()
	if err != nil {
		log.Ctx(ctx).Error().Err(err).
			Int64("notification_id", n.ID).
			Str("recipient", n.Recipient).
			Msg("failed to send notification")
		if mErr := s.store.markFailed(ctx, n.ID, err, now); mErr != nil {
			log.Ctx(ctx).Error().Err(mErr).Int64("notification_id", n.ID).Msg("failed to record send failure")
		}
		return
	}
	if mErr := s.store.markSent(ctx, n.ID, now); mErr != nil {
		log.Ctx(ctx).Error().Err(mErr).Int64("notification_id", n.ID).Msg("failed to record send success")
	}
}

// SweepRetries re-sends failed notifications that still have retries left.
// Wired as a cron job on the reservation server.
func (s *Service) SweepRetries(ctx context.Context) error {
	if s.sender == nil {
		return nil
	}
	due, err := s.store.dueRetries(ctx, sweepBatchSize)
	if err != nil {
		return err
	}
	for _, n := range due {
		sendCtx, cancel := context.WithTimeout(ctx, sendTimeout)
		s.deliver(sendCtx, &n)
		cancel()
	}
	return nil
}
