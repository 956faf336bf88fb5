package outbox

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/courtbook/courtbook/internal/clients"
)

const sweepBatchSize = 50

// Sweeper re-delivers due outbox rows to the reservation service.
type Sweeper struct {
	store       *Store
	bridge      clients.ReservationAPI
	maxAttempts int
}

func NewSweeper(store *Store, bridge clients.ReservationAPI, maxAttempts int) *Sweeper {
	if maxAttempts <= 0 {
		maxAttempts = 10
	}
	return &Sweeper{store: store, bridge: bridge, maxAttempts: maxAttempts}
}

// Sweep delivers every due row once. Per-row failures are recorded and do not
// stop the batch; only a failure to read the queue aborts the sweep.
func (s *Sweeper) Sweep(ctx context.Context) error {
	due, err := s.store.Due(ctx, sweepBatchSize)
	if err != nil {
		return err
	}
	for _, row := range due {
		if err := s.deliver(ctx, row); err != nil {
			log.Ctx(ctx).Warn().Err(err).
				Str("event_id", row.EventID).
				Int64("reservation_id", row.ReservationID).
				Int("attempts", row.Attempts+1).
				Msg("outbox delivery failed")
			if row.Attempts+1 >= s.maxAttempts {
				log.Ctx(ctx).Error().
					Str("event_id", row.EventID).
					Int64("reservation_id", row.ReservationID).
					Msg("outbox row abandoned after max attempts")
			}
			if mErr := s.store.markFailed(ctx, row, err, s.maxAttempts); mErr != nil {
				return mErr
			}
			continue
		}
		if err := s.store.markDelivered(ctx, row.ID); err != nil {
			return err
		}
		log.Ctx(ctx).Info().
			Str("event_id", row.EventID).
			Int64("reservation_id", row.ReservationID).
			Msg("outbox row delivered")
	}
	return nil
}

func (s *Sweeper) deliver(ctx context.Context, row Row) error {
	switch row.Kind {
	case KindApplyPayment:
		var req clients.ApplyPaymentRequest
		if err := json.Unmarshal(row.Payload, &req); err != nil {
			return fmt.Errorf("corrupt outbox payload: %w", err)
		}
		return s.bridge.ApplyPayment(ctx, row.ReservationID, row.EventID, req)
	case KindPaymentStatus:
		var req clients.UpdatePaymentStatusRequest
		if err := json.Unmarshal(row.Payload, &req); err != nil {
			return fmt.Errorf("corrupt outbox payload: %w", err)
		}
		return s.bridge.UpdatePaymentStatus(ctx, row.ReservationID, row.EventID, req)
	default:
		return fmt.Errorf("unknown outbox kind %q", row.Kind)
	}
}
