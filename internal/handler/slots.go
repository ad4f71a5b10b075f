package handler

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/sixeradda/ground-booking/internal/model"
	"github.com/sixeradda/ground-booking/internal/service"
)

// SlotHandler serves the catalog and per-date availability.  Both are
// public; nothing here writes.
type SlotHandler struct {
	Avail *service.AvailabilityService
}

func NewSlotHandler(avail *service.AvailabilityService) *SlotHandler {
	return &SlotHandler{Avail: avail}
}

// catalogSlot is a slot as shown on the pricing page.
type catalogSlot struct {
	model.Slot
	Label string `json:"label"`
	Group string `json:"group"`
}

// ListSlots handles GET /v1/slots.  The catalog does not change between
// dates so the route is fronted by the response cache.
func (h *SlotHandler) ListSlots(c echo.Context) error {
	slots := model.ListSlots()
	out := make([]catalogSlot, 0, len(slots))
	for _, s := range slots {
		out = append(out, catalogSlot{Slot: s, Label: s.Label(), Group: s.Group()})
	}
	return c.JSON(http.StatusOK, echo.Map{"slots": out})
}

// Availability handles GET /v1/slots/availability?date=yyyy-MM-dd.  The
// date defaults to today in the ground's timezone.  The response carries
// the flat list and the morning/afternoon/evening grouping.
func (h *SlotHandler) Availability(c echo.Context) error {
	date := strings.TrimSpace(c.QueryParam("date"))
	if date == "" {
		date = h.Avail.Today()
	}
	list, err := h.Avail.ListStatusesForDate(c.Request().Context(), date)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{
		"date":   date,
		"slots":  list,
		"groups": service.GroupStatuses(list),
	})
}
