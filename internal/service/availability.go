package service

import (
	"context"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/sixeradda/ground-booking/internal/model"
)

var tracer = otel.Tracer("github.com/sixeradda/ground-booking/internal/service")

// SlotStatus is derived on every read and never stored.
type SlotStatus string

const (
	StatusAvailable SlotStatus = "available"
	StatusBooked    SlotStatus = "booked"
	StatusExpired   SlotStatus = "expired"
)

// SlotWithStatus is a catalog slot annotated for one date.
type SlotWithStatus struct {
	model.Slot
	Label  string     `json:"label"`
	Group  string     `json:"group"`
	Status SlotStatus `json:"status"`
}

// IsExpired reports whether slot can no longer be played on date.  A
// future date is never expired, a past date always is, and on the current
// date (in loc) a slot is expired once its start time has been reached.
// An unparseable date counts as expired.
func IsExpired(slot model.Slot, date string, now time.Time, loc *time.Location) bool {
	d, err := time.ParseInLocation(model.DateLayout, date, loc)
	if err != nil {
		return true
	}
	local := now.In(loc)
	today := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, loc)
	switch {
	case d.After(today):
		return false
	case d.Before(today):
		return true
	}
	return slot.StartMinutes() <= local.Hour()*60+local.Minute()
}

// ComputeStatus resolves the status of slot on date.  Expiry wins over a
// booking so that past slots never show as booked.
func ComputeStatus(slot model.Slot, date string, now time.Time, loc *time.Location, booked map[string]bool) SlotStatus {
	if IsExpired(slot, date, now, loc) {
		return StatusExpired
	}
	if booked[slot.ID] {
		return StatusBooked
	}
	return StatusAvailable
}

// BookedSource yields the slot ids booked on a date.
type BookedSource interface {
	BookedSlotIDs(ctx context.Context, date string) (map[string]bool, error)
}

// AvailabilityService answers "what can be booked on this date".
type AvailabilityService struct {
	source BookedSource
	loc    *time.Location
	now    func() time.Time
}

func NewAvailabilityService(source BookedSource, loc *time.Location) *AvailabilityService {
	return &AvailabilityService{source: source, loc: loc, now: time.Now}
}

// WithClock replaces the time source; used by tests.
func (s *AvailabilityService) WithClock(now func() time.Time) *AvailabilityService {
	s.now = now
	return s
}

// Today returns the current date in the ground's timezone.
func (s *AvailabilityService) Today() string { return s.now().In(s.loc).Format(model.DateLayout) }

// ListStatusesForDate returns every catalog slot with its status for date,
// ordered by start time.  It only reads.
func (s *AvailabilityService) ListStatusesForDate(ctx context.Context, date string) ([]SlotWithStatus, error) {
	ctx, span := tracer.Start(ctx, "availability.list")
	defer span.End()
	span.SetAttributes(attribute.String("booking.date", date))

	date = strings.TrimSpace(date)
	if _, err := time.ParseInLocation(model.DateLayout, date, s.loc); err != nil {
		return nil, &ValidationError{Fields: map[string]string{"date": "must be a date in yyyy-MM-dd format"}}
	}

	booked, err := s.source.BookedSlotIDs(ctx, date)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "booked slots")
		return nil, err
	}

	now := s.now()
	slots := model.ListSlots()
	out := make([]SlotWithStatus, 0, len(slots))
	for _, sl := range slots {
		out = append(out, SlotWithStatus{
			Slot:   sl,
			Label:  sl.Label(),
			Group:  sl.Group(),
			Status: ComputeStatus(sl, date, now, s.loc, booked),
		})
	}
	return out, nil
}

// GroupedStatuses is the time-of-day view of a date.
type GroupedStatuses struct {
	Morning   []SlotWithStatus `json:"morning"`
	Afternoon []SlotWithStatus `json:"afternoon"`
	Evening   []SlotWithStatus `json:"evening"`
}

// GroupStatuses buckets statuses by display group, keeping their order.
func GroupStatuses(list []SlotWithStatus) GroupedStatuses {
	g := GroupedStatuses{
		Morning:   []SlotWithStatus{},
		Afternoon: []SlotWithStatus{},
		Evening:   []SlotWithStatus{},
	}
	for _, s := range list {
		switch s.Group {
		case model.GroupMorning:
			g.Morning = append(g.Morning, s)
		case model.GroupAfternoon:
			g.Afternoon = append(g.Afternoon, s)
		default:
			g.Evening = append(g.Evening, s)
		}
	}
	return g
}
