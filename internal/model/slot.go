package model

import (
	"fmt"
	"strconv"
	"strings"
)

// Slot is one bookable hour of the ground's operating day.  The catalog
// is identical for every date; only availability changes per day.
//
// Fields:
//
//	ID             – stable key such as "18-19", unique within a day.
//	StartTime      – local wall-clock start, "HH:mm".
//	EndTime        – local wall-clock end, "HH:mm".
//	Price          – price in rupees.
//	IsNightSession – true for slots played under lights.
type Slot struct {
	ID             string `json:"id"`
	StartTime      string `json:"start_time"`
	EndTime        string `json:"end_time"`
	Price          int64  `json:"price"`
	IsNightSession bool   `json:"is_night_session"`
}

// Display groups used by the availability view.  They carry no business
// meaning.
const (
	GroupMorning   = "morning"
	GroupAfternoon = "afternoon"
	GroupEvening   = "evening"
)

const (
	dayRate   = 600
	nightRate = 700
)

var catalog = []Slot{
	{ID: "6-7", StartTime: "06:00", EndTime: "07:00", Price: dayRate},
	{ID: "7-8", StartTime: "07:00", EndTime: "08:00", Price: dayRate},
	{ID: "8-9", StartTime: "08:00", EndTime: "09:00", Price: dayRate},
	{ID: "9-10", StartTime: "09:00", EndTime: "10:00", Price: dayRate},
	{ID: "10-11", StartTime: "10:00", EndTime: "11:00", Price: dayRate},
	{ID: "11-12", StartTime: "11:00", EndTime: "12:00", Price: dayRate},
	{ID: "12-13", StartTime: "12:00", EndTime: "13:00", Price: dayRate},
	{ID: "13-14", StartTime: "13:00", EndTime: "14:00", Price: dayRate},
	{ID: "14-15", StartTime: "14:00", EndTime: "15:00", Price: dayRate},
	{ID: "15-16", StartTime: "15:00", EndTime: "16:00", Price: dayRate},
	{ID: "16-17", StartTime: "16:00", EndTime: "17:00", Price: dayRate},
	{ID: "17-18", StartTime: "17:00", EndTime: "18:00", Price: dayRate},
	{ID: "18-19", StartTime: "18:00", EndTime: "19:00", Price: nightRate, IsNightSession: true},
	{ID: "19-20", StartTime: "19:00", EndTime: "20:00", Price: nightRate, IsNightSession: true},
	{ID: "20-21", StartTime: "20:00", EndTime: "21:00", Price: nightRate, IsNightSession: true},
}

// ListSlots returns the day's slots ordered by start time.  The returned
// slice is a copy and may be modified by the caller.
func ListSlots() []Slot {
	out := make([]Slot, len(catalog))
	copy(out, catalog)
	return out
}

// FindSlot looks up a catalog entry by its identifier.
func FindSlot(id string) (Slot, bool) {
	for _, s := range catalog {
		if s.ID == id {
			return s, true
		}
	}
	return Slot{}, false
}

// StartMinutes returns the slot start as minutes after midnight.
func (s Slot) StartMinutes() int { return clockMinutes(s.StartTime) }

// StartHour returns the hour component of the start time.
func (s Slot) StartHour() int { return s.StartMinutes() / 60 }

// Group buckets the slot for display: night sessions are "evening",
// otherwise the start hour decides between morning and afternoon.
func (s Slot) Group() string {
	switch {
	case s.IsNightSession:
		return GroupEvening
	case s.StartHour() < 12:
		return GroupMorning
	default:
		return GroupAfternoon
	}
}

// Label renders the slot as "6:00 PM - 7:00 PM".
func (s Slot) Label() string {
	return twelveHour(s.StartTime) + " - " + twelveHour(s.EndTime)
}

func clockMinutes(hhmm string) int {
	h, m, ok := strings.Cut(hhmm, ":")
	if !ok {
		return 0
	}
	hour, _ := strconv.Atoi(h)
	mins, _ := strconv.Atoi(m)
	return hour*60 + mins
}

func twelveHour(hhmm string) string {
	total := clockMinutes(hhmm)
	hour, mins := total/60, total%60
	suffix := "AM"
	if hour >= 12 {
		suffix = "PM"
	}
	h12 := hour % 12
	if h12 == 0 {
		h12 = 12
	}
	return fmt.Sprintf("%d:%02d %s", h12, mins, suffix)
}
