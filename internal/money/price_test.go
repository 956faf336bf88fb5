package money

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func at(hour, minute int) time.Time {
	return time.Date(2030, time.June, 12, hour, minute, 0, 0, time.UTC)
}

func TestPrice(t *testing.T) {
	cases := []struct {
		name  string
		rate  string
		start time.Time
		end   time.Time
		want  string
	}{
		{"ninety minutes", "10.00", at(13, 0), at(14, 30), "15.00"},
		{"one hour", "10.00", at(13, 0), at(14, 0), "10.00"},
		{"zero duration", "10.00", at(13, 0), at(13, 0), "0.00"},
		{"inverted window", "10.00", at(14, 0), at(13, 0), "0.00"},
		{"four hours", "12.50", at(9, 0), at(13, 0), "50.00"},
		{"odd rate rounds half up", "33.33", at(10, 0), at(11, 30), "50.00"},
		{"zero rate", "0.00", at(10, 0), at(11, 0), "0.00"},
		{"negative rate", "-5.00", at(10, 0), at(11, 0), "0.00"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rate := decimal.RequireFromString(tc.rate)
			want := decimal.RequireFromString(tc.want)
			got := Price(rate, tc.start, tc.end)
			if !got.Equal(want) {
				t.Fatalf("Price(%s, %v, %v) = %s, want %s", tc.rate, tc.start, tc.end, got, want)
			}
		})
	}
}
