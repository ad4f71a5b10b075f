package cli

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/sixeradda/ground-booking/internal/config"
	"github.com/sixeradda/ground-booking/internal/model"
	"github.com/sixeradda/ground-booking/internal/repository"
	"github.com/sixeradda/ground-booking/internal/service"
)

func statusOf(t *testing.T, avail *service.AvailabilityService, date, slotID string) service.SlotStatus {
	t.Helper()
	list, err := avail.ListStatusesForDate(context.Background(), date)
	if err != nil {
		t.Fatalf("list %s: %v", date, err)
	}
	for _, s := range list {
		if s.ID == slotID {
			return s.Status
		}
	}
	t.Fatalf("slot %s not listed", slotID)
	return ""
}

func TestAvailabilityReflectsBookingImmediately(t *testing.T) {
	loc, err := time.LoadLocation("Asia/Kolkata")
	if err != nil {
		t.Fatalf("load location: %v", err)
	}
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()

	avail, bookings := newBookingServices(repository.NewMemoryRepo(), rdb,
		config.CacheConfig{BookedTTL: 30 * time.Second, Prefix: "cache"}, loc)
	date := time.Now().In(loc).AddDate(0, 0, 2).Format(model.DateLayout)

	// warm the cache with the empty set
	if st := statusOf(t, avail, date, "18-19"); st != service.StatusAvailable {
		t.Fatalf("before booking: %s", st)
	}
	_, err = bookings.Create(context.Background(), service.BookingRequest{
		Name: "Ravi Kumar", MobileNumber: "9876543210", Players: 8,
		BookingDate: date, SlotID: "18-19",
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if st := statusOf(t, avail, date, "18-19"); st != service.StatusBooked {
		t.Fatalf("right after commit: %s, want booked", st)
	}

	// the losing customer refreshes and still sees it taken
	_, err = bookings.Create(context.Background(), service.BookingRequest{
		Name: "Sita", MobileNumber: "9123456780", Players: 6,
		BookingDate: date, SlotID: "18-19",
	})
	if err != service.ErrSlotAlreadyBooked {
		t.Fatalf("second booking: %v", err)
	}
	if st := statusOf(t, avail, date, "18-19"); st != service.StatusBooked {
		t.Fatalf("after conflict: %s, want booked", st)
	}
}
