package service

import (
	"errors"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/sixeradda/ground-booking/internal/model"
)

const (
	MinPlayers = 2
	MaxPlayers = 16
)

// BookingRequest is the customer's submission.  The validate tags cover
// the shape of each field; catalog, expiry and coupon checks follow in
// ValidateRequest.
type BookingRequest struct {
	Name         string `json:"name" validate:"required"`
	MobileNumber string `json:"mobile_number" validate:"required,len=10,number"`
	Players      int    `json:"players" validate:"min=2,max=16"`
	BookingDate  string `json:"booking_date" validate:"required,datetime=2006-01-02"`
	SlotID       string `json:"slot_id" validate:"required"`
	CouponCode   string `json:"coupon_code,omitempty"`
}

var validate = newValidator()

// newValidator reports fields by their JSON names.
func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

func fieldMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "required"
	case "len", "number":
		return "must be exactly 10 digits"
	case "min":
		return "minimum 2 players required"
	case "max":
		return "maximum 16 players allowed"
	case "datetime":
		return "must be a date in yyyy-MM-dd format"
	}
	return "invalid"
}

// Validated is a BookingRequest that passed ValidateRequest, trimmed and
// with the slot resolved from the catalog.
type Validated struct {
	Name    string
	Mobile  string
	Date    string
	Slot    model.Slot
	Coupon  string
	Players int
}

// ValidateRequest checks every field and reports all problems at once.
// It does not touch the store; coupon eligibility is decided later.
func ValidateRequest(req BookingRequest, coupons CouponTable, now time.Time, loc *time.Location) (Validated, error) {
	var verr ValidationError
	v := Validated{
		Name:    strings.TrimSpace(req.Name),
		Mobile:  strings.TrimSpace(req.MobileNumber),
		Date:    strings.TrimSpace(req.BookingDate),
		Coupon:  strings.TrimSpace(req.CouponCode),
		Players: req.Players,
	}

	trimmed := BookingRequest{
		Name:         v.Name,
		MobileNumber: v.Mobile,
		Players:      req.Players,
		BookingDate:  v.Date,
		SlotID:       strings.TrimSpace(req.SlotID),
	}
	if err := validate.Struct(trimmed); err != nil {
		var fes validator.ValidationErrors
		if !errors.As(err, &fes) {
			return v, err
		}
		for _, fe := range fes {
			verr.add(fe.Field(), fieldMessage(fe))
		}
	}
	_, dateBad := verr.Fields["booking_date"]

	if trimmed.SlotID != "" {
		if s, ok := model.FindSlot(trimmed.SlotID); !ok {
			verr.add("slot_id", "unknown slot")
		} else {
			v.Slot = s
			if !dateBad && IsExpired(s, v.Date, now, loc) {
				verr.add("slot_id", "this slot has already started or passed")
			}
		}
	}

	if v.Coupon != "" {
		if _, ok := coupons.Lookup(v.Coupon); !ok {
			verr.add("coupon_code", "unknown coupon code")
		}
	}

	return v, verr.orNil()
}
