package model

import "time"

// DateLayout is the wire and storage format of a booking date.
const DateLayout = "2006-01-02"

// Booking records one customer's reservation of one slot on one date.
// At most one booking exists per (BookingDate, SlotID); the store's
// unique index is what guarantees it.
//
// Fields:
//
//	ID             – generated UUID.
//	Name           – customer name.
//	MobileNumber   – 10-digit mobile number, digits only.
//	Players        – party size, 2 to 16.
//	BookingDate    – calendar date, "yyyy-MM-dd".
//	SlotID         – key into the slot catalog.
//	StartTime      – copied from the slot at write time.
//	EndTime        – copied from the slot at write time.
//	IsNightSession – copied from the slot at write time.
//	DiscountCode   – coupon applied, nil when none.
//	FinalPrice     – price charged after discount, in rupees.
//	CreatedAt      – insertion timestamp.
type Booking struct {
	ID             string    `json:"id"`
	Name           string    `json:"name"`
	MobileNumber   string    `json:"mobile_number"`
	Players        int       `json:"players"`
	BookingDate    string    `json:"booking_date"`
	SlotID         string    `json:"slot_id"`
	StartTime      string    `json:"start_time"`
	EndTime        string    `json:"end_time"`
	IsNightSession bool      `json:"is_night_session"`
	DiscountCode   *string   `json:"discount_code"`
	FinalPrice     int64     `json:"final_price"`
	CreatedAt      time.Time `json:"created_at"`
}

// Slot returns the catalog entry the booking refers to.
func (b Booking) Slot() (Slot, bool) { return FindSlot(b.SlotID) }

// Outbox task kinds.  Each committed booking enqueues one entry per kind
// that the booking service is configured with.
const (
	TaskConfirmation = "notify.confirmation"
	TaskAdminNotice  = "notify.admin"
	TaskReminder     = "notify.reminder"
	TaskInvoice      = "invoice.render"
)

// OutboxEntry is a side effect recorded alongside a booking and relayed
// to the task queue after commit.  Payload holds the JSON booking
// snapshot at the time the entry was created.
type OutboxEntry struct {
	ID            string
	BookingID     string
	Kind          string
	Payload       []byte
	Attempts      int
	NextAttemptAt time.Time
	PublishedAt   *time.Time
	LastError     *string
	CreatedAt     time.Time
}
