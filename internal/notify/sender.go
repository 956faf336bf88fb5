// Package notify records confirmation notifications and delivers them over
// email. Delivery is asynchronous and retried by a sweep job; a booking never
// waits on SES.
package notify

import "context"

// EmailSender provides a testable abstraction over SES delivery.
type EmailSender interface {
	Send(ctx context.Context, recipient, subject, body string) error
}
