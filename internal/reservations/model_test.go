package reservations

import (
	"testing"

	"github.com/shopspring/decimal"

	"github.com/courtbook/courtbook/internal/apperr"
)

func TestParsePaymentStatusToken(t *testing.T) {
	cases := []struct {
		token string
		want  PaymentStatus
	}{
		{"", PaymentPending},
		{"PENDING", PaymentPending},
		{"PROCESSING", PaymentPending},
		{"PAID", PaymentConfirmed},
		{"confirmed", PaymentConfirmed},
		{" failed ", PaymentFailed},
		{"CANCELLED", PaymentCancelled},
		{"REFUNDED", PaymentRefunded},
	}
	for _, tc := range cases {
		got, err := ParsePaymentStatusToken(tc.token)
		if err != nil {
			t.Errorf("ParsePaymentStatusToken(%q): %v", tc.token, err)
			continue
		}
		if got != tc.want {
			t.Errorf("ParsePaymentStatusToken(%q) = %s, want %s", tc.token, got, tc.want)
		}
	}

	if _, err := ParsePaymentStatusToken("SETTLED"); !apperr.Is(err, apperr.KindValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestPendingAmount(t *testing.T) {
	r := &Reservation{
		TotalAmount: decimal.NewNullDecimal(decimal.RequireFromString("40.00")),
		PaidAmount:  decimal.RequireFromString("15.00"),
	}
	if got := r.PendingAmount(); !got.Equal(decimal.RequireFromString("25.00")) {
		t.Fatalf("expected 25.00, got %s", got)
	}

	// Overpaid rows owe nothing rather than a negative amount.
	r.PaidAmount = decimal.RequireFromString("50.00")
	if got := r.PendingAmount(); !got.IsZero() {
		t.Fatalf("expected zero, got %s", got)
	}

	unknown := &Reservation{PaidAmount: decimal.Zero}
	if got := unknown.PendingAmount(); !got.IsZero() {
		t.Fatalf("unknown total owes nothing, got %s", got)
	}
}
