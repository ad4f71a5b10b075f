package handler

import (
	"errors"
	"log"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/sixeradda/ground-booking/internal/service"
)

// writeError maps service errors onto HTTP responses.  Unknown errors are
// logged and reported as 500 without details.
func writeError(c echo.Context, err error) error {
	var verr *service.ValidationError
	var cf *service.BookingCreateFailedError
	switch {
	case errors.As(err, &verr):
		return c.JSON(http.StatusUnprocessableEntity, echo.Map{"error": "validation failed", "fields": verr.Fields})
	case errors.Is(err, service.ErrInvalidCoupon):
		return c.JSON(http.StatusUnprocessableEntity, echo.Map{"error": err.Error(), "fields": echo.Map{"coupon_code": err.Error()}})
	case errors.Is(err, service.ErrSlotAlreadyBooked):
		return c.JSON(http.StatusConflict, echo.Map{"error": err.Error()})
	case errors.Is(err, service.ErrBookingNotFound):
		return c.JSON(http.StatusNotFound, echo.Map{"error": err.Error()})
	case errors.As(err, &cf):
		log.Printf("booking-handler: %v", err)
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": cf.Error()})
	}
	log.Printf("booking-handler: %v", err)
	return c.JSON(http.StatusInternalServerError, echo.Map{"error": "internal error"})
}
