package queue

import (
	"context"
	"log"

	"github.com/sixeradda/ground-booking/internal/model"
	"github.com/sixeradda/ground-booking/internal/notify"
)

// InvoiceWriter stores a rendered invoice and returns where it went.
type InvoiceWriter interface {
	Write(ctx context.Context, b model.Booking) (string, error)
}

// RegisterHandlers wires the task kinds to their side effects.  The admin
// notice is skipped when adminPhone is empty.
func RegisterHandlers(w *Worker, n notify.Notifier, adminPhone string, inv InvoiceWriter) {
	w.Handle(model.TaskConfirmation, func(ctx context.Context, t Task) error {
		return n.Send(ctx, t.Booking.MobileNumber, notify.TemplateConfirmation, t.Booking)
	})
	w.Handle(model.TaskReminder, func(ctx context.Context, t Task) error {
		return n.Send(ctx, t.Booking.MobileNumber, notify.TemplateReminder, t.Booking)
	})
	w.Handle(model.TaskAdminNotice, func(ctx context.Context, t Task) error {
		if adminPhone == "" {
			return nil
		}
		return n.Send(ctx, adminPhone, notify.TemplateAdminNotice, t.Booking)
	})
	w.Handle(model.TaskInvoice, func(ctx context.Context, t Task) error {
		path, err := inv.Write(ctx, t.Booking)
		if err != nil {
			return err
		}
		log.Printf("task-worker: invoice for %s written to %s", t.Booking.ID, path)
		return nil
	})
}
