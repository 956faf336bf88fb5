package outbox

import (
	"context"
	"embed"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/courtbook/courtbook/internal/clients"
	"github.com/courtbook/courtbook/internal/testutil"
)

//go:embed testdata/migrations/*.sql
var testMigrations embed.FS

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type fakeBridge struct {
	fail     bool
	applied  []clients.ApplyPaymentRequest
	statuses []clients.UpdatePaymentStatusRequest
	events   []string
}

func (f *fakeBridge) ExistsByID(ctx context.Context, id int64) (bool, error) { return true, nil }

func (f *fakeBridge) ApplyPayment(ctx context.Context, id int64, eventID string, req clients.ApplyPaymentRequest) error {
	if f.fail {
		return errors.New("connection refused")
	}
	f.applied = append(f.applied, req)
	f.events = append(f.events, eventID)
	return nil
}

func (f *fakeBridge) UpdatePaymentStatus(ctx context.Context, id int64, eventID string, req clients.UpdatePaymentStatusRequest) error {
	if f.fail {
		return errors.New("connection refused")
	}
	f.statuses = append(f.statuses, req)
	f.events = append(f.events, eventID)
	return nil
}

func (f *fakeBridge) PendingAmount(ctx context.Context, id int64) (decimal.Decimal, error) {
	return decimal.Zero, nil
}

func newTestStore(t *testing.T) (*Store, *fakeClock) {
	t.Helper()
	database := testutil.NewTestDB(t, testMigrations, "testdata/migrations")
	clock := &fakeClock{now: time.Date(2026, time.March, 10, 9, 0, 0, 0, time.UTC)}
	return NewStore(database).WithClock(clock), clock
}

func TestEnqueueAndDue(t *testing.T) {
	store, clock := newTestStore(t)
	ctx := context.Background()

	req := clients.ApplyPaymentRequest{Amount: decimal.RequireFromString("10.00"), PaymentMethod: "CASH"}
	if err := store.Enqueue(ctx, "evt-1", 42, KindApplyPayment, req, errors.New("boom")); err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	// Not due until the first backoff interval passes.
	due, err := store.Due(ctx, 10)
	if err != nil {
		t.Fatalf("due: %v", err)
	}
	if len(due) != 0 {
		t.Fatalf("row should not be due yet, got %d", len(due))
	}

	clock.advance(time.Minute)
	due, err = store.Due(ctx, 10)
	if err != nil {
		t.Fatalf("due: %v", err)
	}
	if len(due) != 1 {
		t.Fatalf("expected 1 due row, got %d", len(due))
	}
	row := due[0]
	if row.EventID != "evt-1" || row.ReservationID != 42 || row.Kind != KindApplyPayment {
		t.Fatalf("unexpected row %+v", row)
	}
	if row.LastError != "boom" {
		t.Fatalf("expected the cause recorded, got %q", row.LastError)
	}
}

func TestSweeperDelivers(t *testing.T) {
	store, clock := newTestStore(t)
	ctx := context.Background()
	bridge := &fakeBridge{}
	sweeper := NewSweeper(store, bridge, 10)

	req := clients.ApplyPaymentRequest{Amount: decimal.RequireFromString("10.00"), PaymentMethod: "CARD", TransactionID: "PAY-7"}
	if err := store.Enqueue(ctx, "evt-2", 7, KindApplyPayment, req, errors.New("down")); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	clock.advance(time.Minute)

	if err := sweeper.Sweep(ctx); err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if len(bridge.applied) != 1 || bridge.applied[0].TransactionID != "PAY-7" {
		t.Fatalf("expected delivery, got %v", bridge.applied)
	}
	if bridge.events[0] != "evt-2" {
		t.Fatalf("delivery must reuse the original event id, got %q", bridge.events[0])
	}

	pending, err := store.PendingCount(ctx)
	if err != nil {
		t.Fatalf("pending count: %v", err)
	}
	if pending != 0 {
		t.Fatalf("expected no pending rows, got %d", pending)
	}

	// Delivered rows are not swept again.
	if err := sweeper.Sweep(ctx); err != nil {
		t.Fatalf("second sweep: %v", err)
	}
	if len(bridge.applied) != 1 {
		t.Fatalf("delivered row swept twice: %v", bridge.applied)
	}
}

func TestSweeperBacksOffAndAbandons(t *testing.T) {
	store, clock := newTestStore(t)
	ctx := context.Background()
	bridge := &fakeBridge{fail: true}
	sweeper := NewSweeper(store, bridge, 3)

	req := clients.UpdatePaymentStatusRequest{PaymentStatus: "PAID"}
	if err := store.Enqueue(ctx, "evt-3", 9, KindPaymentStatus, req, errors.New("down")); err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	// Attempt 2 after 1m, attempt 3 after a further 2m backoff.
	clock.advance(time.Minute)
	if err := sweeper.Sweep(ctx); err != nil {
		t.Fatalf("sweep: %v", err)
	}
	due, _ := store.Due(ctx, 10)
	if len(due) != 0 {
		t.Fatal("failed row must back off before its next attempt")
	}

	clock.advance(2 * time.Minute)
	if err := sweeper.Sweep(ctx); err != nil {
		t.Fatalf("sweep: %v", err)
	}

	// Third attempt exhausted the budget; the row is abandoned.
	clock.advance(time.Hour)
	due, err := store.Due(ctx, 10)
	if err != nil {
		t.Fatalf("due: %v", err)
	}
	if len(due) != 0 {
		t.Fatalf("abandoned row must not come due, got %d", len(due))
	}
	pending, err := store.PendingCount(ctx)
	if err != nil {
		t.Fatalf("pending count: %v", err)
	}
	if pending != 0 {
		t.Fatalf("expected no pending rows after abandonment, got %d", pending)
	}

	// Once the bridge recovers the abandoned row stays dead.
	bridge.fail = false
	if err := sweeper.Sweep(ctx); err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if len(bridge.statuses) != 0 {
		t.Fatalf("abandoned rows must not be delivered, got %v", bridge.statuses)
	}
}

func TestBackoffCurve(t *testing.T) {
	cases := []struct {
		attempts int
		want     time.Duration
	}{
		{1, time.Minute},
		{2, 2 * time.Minute},
		{3, 4 * time.Minute},
		{6, 32 * time.Minute},
		{7, time.Hour},
		{12, time.Hour},
	}
	for _, tc := range cases {
		if got := backoff(tc.attempts); got != tc.want {
			t.Errorf("backoff(%d) = %v, want %v", tc.attempts, got, tc.want)
		}
	}
}
