// Package router registers the HTTP routes.
package router

import (
	"github.com/labstack/echo/v4"

	"github.com/sixeradda/ground-booking/internal/handler"
)

// RegisterRoutes registers the liveness and readiness endpoints.
func RegisterRoutes(e *echo.Echo, ready echo.HandlerFunc) {
	e.GET("/healthz", handler.Health)
	if ready != nil {
		e.GET("/readyz", ready)
	}
}

// RegisterSlots registers the public slot endpoints.  Only the static
// catalog goes through the response cache; availability changes with
// every booking.
func RegisterSlots(e *echo.Echo, h *handler.SlotHandler, cache echo.MiddlewareFunc) {
	e.GET("/v1/slots", h.ListSlots, cache)
	e.GET("/v1/slots/availability", h.Availability)
}

// RegisterBookings registers booking submission, the daily dashboard and
// invoice downloads.  The rate limiter applies only to submissions.
func RegisterBookings(e *echo.Echo, h *handler.BookingHandler, limiter echo.MiddlewareFunc) {
	g := e.Group("/v1/bookings")
	g.POST("", h.Create, limiter)
	g.GET("", h.List)
	g.GET("/:id", h.Get)
	g.GET("/:id/invoice", h.Invoice)
}
