// Package money holds the exact-decimal price computation shared by the
// reservation ledger and its HTTP surface.
package money

import (
	"time"

	"github.com/shopspring/decimal"
)

var sixty = decimal.NewFromInt(60)

// Price computes hourlyRate x duration rounded to 2 places, HALF_UP.
// The duration is converted to decimal hours (minutes/60, rounded to 2
// places) before multiplying, so 90 minutes bills as exactly 1.5 hours.
// A non-positive rate or a non-positive duration prices at zero.
func Price(hourlyRate decimal.Decimal, start, end time.Time) decimal.Decimal {
	if hourlyRate.LessThanOrEqual(decimal.Zero) {
		return decimal.Zero
	}
	minutes := end.Sub(start).Minutes()
	if minutes <= 0 {
		return decimal.Zero
	}
	hours := decimal.NewFromInt(int64(minutes)).DivRound(sixty, 2)
	return hourlyRate.Mul(hours).Round(2)
}
