package service

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/sixeradda/ground-booking/internal/model"
)

// ReminderStore lists a day's bookings and enqueues outbox entries,
// ignoring ids that already exist.
type ReminderStore interface {
	ListByDate(ctx context.Context, date string) ([]model.Booking, error)
	Enqueue(ctx context.Context, entries []model.OutboxEntry) (int, error)
}

var reminderNamespace = uuid.MustParse("6f0f8a3e-2b9e-4c3a-9b8c-7d4c2f61a0b5")

// ReminderID is stable per booking so a second run on the same day does
// not send a second reminder.
func ReminderID(bookingID string) string {
	return uuid.NewSHA1(reminderNamespace, []byte(model.TaskReminder+":"+bookingID)).String()
}

// EnqueueReminders queues a reminder task for every booking on date whose
// slot has not started yet.  It returns how many were newly queued.
func EnqueueReminders(ctx context.Context, store ReminderStore, date string, now time.Time, loc *time.Location) (int, error) {
	bookings, err := store.ListByDate(ctx, date)
	if err != nil {
		return 0, err
	}
	var entries []model.OutboxEntry
	for _, b := range bookings {
		if s, ok := b.Slot(); ok && IsExpired(s, b.BookingDate, now, loc) {
			continue
		}
		e, err := OutboxFor(b, []string{model.TaskReminder}, now)
		if err != nil {
			return 0, err
		}
		e[0].ID = ReminderID(b.ID)
		entries = append(entries, e[0])
	}
	if len(entries) == 0 {
		return 0, nil
	}
	return store.Enqueue(ctx, entries)
}
