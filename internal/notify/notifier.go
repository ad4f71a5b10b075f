// Package notify sends booking messages to customers and the ground
// admin.  The transport is pluggable: Twilio SMS when credentials are
// configured, otherwise messages are only logged.
package notify

import (
	"context"
	"log"

	"github.com/sixeradda/ground-booking/internal/model"
)

// Template selects the message text.
type Template string

const (
	TemplateConfirmation Template = "confirmation"
	TemplateReminder     Template = "reminder"
	TemplateAdminNotice  Template = "admin-notification"
)

// Notifier delivers one rendered message.
type Notifier interface {
	Send(ctx context.Context, recipient string, tmpl Template, b model.Booking) error
}

// LogNotifier writes messages to the standard logger.
type LogNotifier struct{}

func (LogNotifier) Send(_ context.Context, recipient string, tmpl Template, b model.Booking) error {
	body, err := Render(tmpl, b)
	if err != nil {
		return err
	}
	log.Printf("notify: [%s] to %s :: %s", tmpl, NormalizePhone(recipient), body)
	return nil
}
