package service

import (
	"errors"
	"sort"
	"strings"
)

// ErrSlotAlreadyBooked means another booking holds the date and slot.
// Callers should refresh availability and let the customer pick again.
var ErrSlotAlreadyBooked = errors.New("this slot has already been booked, please choose another slot")

// ErrInvalidCoupon is returned when a known coupon is presented by a
// customer it does not apply to.
var ErrInvalidCoupon = errors.New("coupon code is not valid for this customer")

// ErrBookingNotFound is returned by lookups that match nothing.
var ErrBookingNotFound = errors.New("booking not found")

// ValidationError collects field-level problems with a request.  It is
// produced before any store access.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+": "+e.Fields[k])
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

func (e *ValidationError) add(field, msg string) {
	if e.Fields == nil {
		e.Fields = map[string]string{}
	}
	if _, ok := e.Fields[field]; !ok {
		e.Fields[field] = msg
	}
}

func (e *ValidationError) orNil() error {
	if len(e.Fields) == 0 {
		return nil
	}
	return e
}

// BookingCreateFailedError wraps a store failure during pre-check or
// insert.  The underlying message is passed through to the caller.
type BookingCreateFailedError struct {
	Err error
}

func (e *BookingCreateFailedError) Error() string {
	return "could not create booking, please try again: " + e.Err.Error()
}

func (e *BookingCreateFailedError) Unwrap() error { return e.Err }
