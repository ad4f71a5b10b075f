package handler

import (
	"log"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/sixeradda/ground-booking/internal/invoice"
	"github.com/sixeradda/ground-booking/internal/model"
	"github.com/sixeradda/ground-booking/internal/service"
	"github.com/sixeradda/ground-booking/internal/utils"
)

// BookingHandler exposes booking submission, the daily dashboard and
// invoice downloads.
type BookingHandler struct {
	Bookings      *service.BookingService
	Invoices      invoice.Renderer
	InvoiceSecret string        // HS256 key for invoice links
	InvoiceTTL    time.Duration // lifetime of an invoice link
	BaseURL       string        // public origin used to build invoice links
}

// Create handles POST /v1/bookings.  On success it returns 201 with the
// booking and a signed invoice link.  A lost slot race is a 409 and the
// client should reload availability.
func (h *BookingHandler) Create(c echo.Context) error {
	var req service.BookingRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request body"})
	}
	b, err := h.Bookings.Create(c.Request().Context(), req)
	if err != nil {
		return writeError(c, err)
	}
	resp := echo.Map{"booking": b}
	if link, err := h.invoiceURL(b.ID); err != nil {
		// the booking stands; the customer can still be sent the invoice by the worker
		log.Printf("booking-handler: sign invoice link for %s: %v", b.ID, err)
	} else {
		resp["invoice_url"] = link
	}
	return c.JSON(http.StatusCreated, resp)
}

func (h *BookingHandler) invoiceURL(bookingID string) (string, error) {
	tok, err := utils.NewInvoiceToken(h.InvoiceSecret, bookingID, h.InvoiceTTL)
	if err != nil {
		return "", err
	}
	base := strings.TrimRight(h.BaseURL, "/")
	return base + "/v1/bookings/" + url.PathEscape(bookingID) + "/invoice?token=" + url.QueryEscape(tok.Token), nil
}

// List handles GET /v1/bookings?date=yyyy-MM-dd, the daily dashboard.
// The date defaults to today.
func (h *BookingHandler) List(c echo.Context) error {
	date := strings.TrimSpace(c.QueryParam("date"))
	if date == "" {
		date = h.Bookings.Today()
	}
	list, err := h.Bookings.ListForDate(c.Request().Context(), date)
	if err != nil {
		return writeError(c, err)
	}
	var revenue int64
	for _, b := range list {
		revenue += b.FinalPrice
	}
	return c.JSON(http.StatusOK, echo.Map{
		"date":     date,
		"bookings": list,
		"count":    len(list),
		"revenue":  revenue,
	})
}

// Get handles GET /v1/bookings/:id.
func (h *BookingHandler) Get(c echo.Context) error {
	b, err := h.Bookings.Get(c.Request().Context(), c.Param("id"))
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"booking": b})
}

// Invoice handles GET /v1/bookings/:id/invoice?token=.  The token must
// have been issued for the same booking.
func (h *BookingHandler) Invoice(c echo.Context) error {
	id := c.Param("id")
	if err := utils.VerifyInvoiceToken(h.InvoiceSecret, c.QueryParam("token"), id); err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid or expired invoice link"})
	}
	b, err := h.Bookings.Get(c.Request().Context(), id)
	if err != nil {
		return writeError(c, err)
	}
	return h.sendInvoice(c, *b)
}

func (h *BookingHandler) sendInvoice(c echo.Context, b model.Booking) error {
	data, name, err := h.Invoices.Render(b)
	if err != nil {
		log.Printf("booking-handler: render invoice %s: %v", b.ID, err)
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "could not render invoice"})
	}
	c.Response().Header().Set(echo.HeaderContentDisposition, `attachment; filename="`+name+`"`)
	return c.Blob(http.StatusOK, "application/pdf", data)
}
