// Package repository persists bookings and their outbox entries.  The
// sentinel values below are shared by every store implementation so that
// the service layer can tell a lost slot race from an infrastructure
// failure without knowing which database is in use.
package repository

import "errors"

// ErrSlotTaken is returned by Create when another booking already holds
// the same (booking_date, slot_id).  It is produced from the unique index,
// not from a prior read, so it is reliable under concurrent inserts.
var ErrSlotTaken = errors.New("slot already booked")

// ErrNotFound is returned when a booking lookup matches no row.  Handlers
// translate it into an HTTP 404 response.
var ErrNotFound = errors.New("not found")
