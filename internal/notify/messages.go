package notify

import (
	"fmt"
	"time"

	"github.com/sixeradda/ground-booking/internal/model"
)

// SlotTime renders the booked hour as "6:00 PM - 7:00 PM".
func SlotTime(b model.Booking) string {
	s := model.Slot{StartTime: b.StartTime, EndTime: b.EndTime}
	return s.Label()
}

// DisplayDate renders a booking date as "Mon, 11 May 2030".
func DisplayDate(date string) string {
	d, err := time.Parse(model.DateLayout, date)
	if err != nil {
		return date
	}
	return d.Format("Mon, 02 Jan 2006")
}

// Render builds the message text for tmpl.
func Render(tmpl Template, b model.Booking) (string, error) {
	switch tmpl {
	case TemplateConfirmation:
		return fmt.Sprintf("Hi %s, your cricket slot at %s on %s is confirmed. Admin has been notified of your booking. See you at the pitch!",
			b.Name, SlotTime(b), DisplayDate(b.BookingDate)), nil
	case TemplateReminder:
		return fmt.Sprintf("Reminder: Your box cricket slot is today at %s. Get ready to play!", SlotTime(b)), nil
	case TemplateAdminNotice:
		return fmt.Sprintf("NEW BOOKING ALERT!\n\nName: %s\nDate: %s\nTime: %s\nPlayers: %d\nContact: %s\n\nPlease prepare the pitch accordingly.",
			b.Name, DisplayDate(b.BookingDate), SlotTime(b), b.Players, NormalizePhone(b.MobileNumber)), nil
	}
	return "", fmt.Errorf("unknown template %q", tmpl)
}
