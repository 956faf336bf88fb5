package notify

import (
	"fmt"
	"strings"
	"time"
)

type Email struct {
	Subject string
	Body    string
}

type ConfirmationDetails struct {
	ClubName  string
	CourtName string
	StartTime time.Time
	EndTime   time.Time
}

// FormatDateTimeRange renders a booking window for email bodies.
func FormatDateTimeRange(start, end time.Time) (string, string) {
	date := start.Format("Monday, Jan 2, 2006")
	timeRange := fmt.Sprintf("%s - %s %s", start.Format("3:04 PM"), end.Format("3:04 PM"), start.Format("MST"))
	return date, timeRange
}

// BuildConfirmation renders the email sent when a reservation is confirmed.
func BuildConfirmation(details ConfirmationDetails) Email {
	clubName := strings.TrimSpace(details.ClubName)
	if clubName == "" {
		clubName = "your club"
	}
	courtName := strings.TrimSpace(details.CourtName)
	if courtName == "" {
		courtName = "TBD"
	}
	date, timeRange := FormatDateTimeRange(details.StartTime, details.EndTime)

	lines := []string{
		"Your court reservation is confirmed.",
		"",
		fmt.Sprintf("Club: %s", clubName),
		fmt.Sprintf("Court: %s", courtName),
		fmt.Sprintf("Date: %s", date),
		fmt.Sprintf("Time: %s", timeRange),
		"",
		"See you on the court!",
	}

	return Email{
		Subject: fmt.Sprintf("Reservation Confirmed - %s", clubName),
		Body:    strings.Join(lines, "\n"),
	}
}
