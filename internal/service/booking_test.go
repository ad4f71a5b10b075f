package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sixeradda/ground-booking/internal/model"
	"github.com/sixeradda/ground-booking/internal/repository"
)

func fixedNow(t *testing.T) (time.Time, *time.Location) {
	loc := kolkata(t)
	return time.Date(2030, 5, 10, 9, 30, 0, 0, loc), loc
}

func validRequest() BookingRequest {
	return BookingRequest{
		Name:         "Ravi Kumar",
		MobileNumber: "9876543210",
		Players:      8,
		BookingDate:  "2030-05-11",
		SlotID:       "18-19",
	}
}

func newService(t *testing.T, store BookingStore) *BookingService {
	now, loc := fixedNow(t)
	return NewBookingService(store, loc).WithClock(func() time.Time { return now })
}

func TestCreateNightSlotWithoutCoupon(t *testing.T) {
	repo := repository.NewMemoryRepo()
	svc := newService(t, repo)

	b, err := svc.Create(context.Background(), validRequest())
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if b.FinalPrice != 700 || !b.IsNightSession || b.DiscountCode != nil {
		t.Fatalf("unexpected booking %+v", b)
	}
	if b.StartTime != "18:00" || b.EndTime != "19:00" || b.ID == "" {
		t.Fatalf("slot not copied onto booking: %+v", b)
	}

	outbox := repo.Outbox()
	if len(outbox) != len(DefaultTasks) {
		t.Fatalf("expected %d outbox entries, got %d", len(DefaultTasks), len(outbox))
	}
	for i, e := range outbox {
		if e.Kind != DefaultTasks[i] || e.BookingID != b.ID {
			t.Fatalf("outbox entry %d wrong: %+v", i, e)
		}
	}
}

func TestValidationRules(t *testing.T) {
	now, loc := fixedNow(t)
	coupons := DefaultCoupons()

	tests := []struct {
		name   string
		mutate func(*BookingRequest)
		field  string
	}{
		{"short mobile", func(r *BookingRequest) { r.MobileNumber = "12345" }, "mobile_number"},
		{"letters in mobile", func(r *BookingRequest) { r.MobileNumber = "98765abcde" }, "mobile_number"},
		{"one player", func(r *BookingRequest) { r.Players = 1 }, "players"},
		{"seventeen players", func(r *BookingRequest) { r.Players = 17 }, "players"},
		{"blank name", func(r *BookingRequest) { r.Name = "   " }, "name"},
		{"no slot", func(r *BookingRequest) { r.SlotID = "" }, "slot_id"},
		{"unknown slot", func(r *BookingRequest) { r.SlotID = "21-22" }, "slot_id"},
		{"bad date", func(r *BookingRequest) { r.BookingDate = "11-05-2030" }, "booking_date"},
		{"past date", func(r *BookingRequest) { r.BookingDate = "2030-05-09" }, "slot_id"},
		{"started today", func(r *BookingRequest) { r.BookingDate = "2030-05-10"; r.SlotID = "9-10" }, "slot_id"},
		{"unknown coupon", func(r *BookingRequest) { r.CouponCode = "FREE100" }, "coupon_code"},
	}
	for _, tc := range tests {
		req := validRequest()
		tc.mutate(&req)
		_, err := ValidateRequest(req, coupons, now, loc)
		var verr *ValidationError
		if !errors.As(err, &verr) {
			t.Fatalf("%s: expected ValidationError, got %v", tc.name, err)
		}
		if _, ok := verr.Fields[tc.field]; !ok {
			t.Fatalf("%s: expected error on %s, got %v", tc.name, tc.field, verr.Fields)
		}
	}

	for _, players := range []int{2, 16} {
		req := validRequest()
		req.Players = players
		if _, err := ValidateRequest(req, coupons, now, loc); err != nil {
			t.Fatalf("players=%d should be accepted: %v", players, err)
		}
	}
}

func TestValidationCollectsAllFields(t *testing.T) {
	now, loc := fixedNow(t)
	_, err := ValidateRequest(BookingRequest{}, DefaultCoupons(), now, loc)
	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
	for _, f := range []string{"name", "mobile_number", "players", "booking_date", "slot_id"} {
		if _, ok := verr.Fields[f]; !ok {
			t.Fatalf("missing error for %s in %v", f, verr.Fields)
		}
	}
}

func TestWelcomeCouponFirstTimeOnly(t *testing.T) {
	repo := repository.NewMemoryRepo()
	svc := newService(t, repo)

	req := validRequest()
	req.SlotID = "10-11"
	req.CouponCode = "WELCOME10"
	b, err := svc.Create(context.Background(), req)
	if err != nil {
		t.Fatalf("first booking: %v", err)
	}
	if b.FinalPrice != 540 || b.DiscountCode == nil || *b.DiscountCode != "WELCOME10" {
		t.Fatalf("expected 540 with WELCOME10, got %+v", b)
	}

	req.SlotID = "11-12"
	if _, err := svc.Create(context.Background(), req); !errors.Is(err, ErrInvalidCoupon) {
		t.Fatalf("repeat customer: expected ErrInvalidCoupon, got %v", err)
	}
	if n, _ := repo.CountByMobile(context.Background(), req.MobileNumber); n != 1 {
		t.Fatalf("rejected coupon must not write, found %d bookings", n)
	}
}

func TestCouponTableIsPluggable(t *testing.T) {
	repo := repository.NewMemoryRepo()
	svc := newService(t, repo).WithCoupons(NewCouponTable(CouponRule{
		Code:     "LOYAL50",
		Eligible: func(h CustomerHistory) bool { return h.PriorBookings >= 1 },
		Apply:    func(p int64) int64 { return p - 50 },
	}))

	req := validRequest()
	req.CouponCode = "LOYAL50"
	if _, err := svc.Create(context.Background(), req); !errors.Is(err, ErrInvalidCoupon) {
		t.Fatalf("expected ErrInvalidCoupon for new customer, got %v", err)
	}
	req.CouponCode = ""
	if _, err := svc.Create(context.Background(), req); err != nil {
		t.Fatalf("plain booking: %v", err)
	}
	req.SlotID, req.CouponCode = "19-20", "LOYAL50"
	b, err := svc.Create(context.Background(), req)
	if err != nil {
		t.Fatalf("loyal booking: %v", err)
	}
	if b.FinalPrice != 650 {
		t.Fatalf("expected 650, got %d", b.FinalPrice)
	}
}

func TestPreCheckRejectsTakenSlot(t *testing.T) {
	svc := newService(t, repository.NewMemoryRepo())
	if _, err := svc.Create(context.Background(), validRequest()); err != nil {
		t.Fatalf("first: %v", err)
	}
	req := validRequest()
	req.MobileNumber = "9123456780"
	if _, err := svc.Create(context.Background(), req); !errors.Is(err, ErrSlotAlreadyBooked) {
		t.Fatalf("expected ErrSlotAlreadyBooked, got %v", err)
	}
}

// racingStore lets every pre-check pass so that the insert decides.
type racingStore struct {
	*repository.MemoryRepo
}

func (racingStore) SlotTaken(context.Context, string, string) (bool, error) { return false, nil }

func TestConcurrentCreateExactlyOneWins(t *testing.T) {
	svc := newService(t, racingStore{repository.NewMemoryRepo()})

	const n = 2
	var wg sync.WaitGroup
	errs := make([]error, n)
	start := make(chan struct{})
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			req := validRequest()
			req.MobileNumber = fmt.Sprintf("98765432%02d", i)
			<-start
			_, errs[i] = svc.Create(context.Background(), req)
		}(i)
	}
	close(start)
	wg.Wait()

	ok, conflict := 0, 0
	for _, err := range errs {
		switch {
		case err == nil:
			ok++
		case errors.Is(err, ErrSlotAlreadyBooked):
			conflict++
		default:
			t.Fatalf("unexpected error %v", err)
		}
	}
	if ok != 1 || conflict != 1 {
		t.Fatalf("expected one success and one conflict, got %d/%d", ok, conflict)
	}
}

type failingStore struct {
	*repository.MemoryRepo
	err error
}

func (f failingStore) Create(context.Context, *model.Booking, []model.OutboxEntry) error { return f.err }

func TestStoreFailureIsBookingCreateFailed(t *testing.T) {
	svc := newService(t, failingStore{repository.NewMemoryRepo(), errors.New("connection refused")})
	_, err := svc.Create(context.Background(), validRequest())
	var cf *BookingCreateFailedError
	if !errors.As(err, &cf) {
		t.Fatalf("expected BookingCreateFailedError, got %v", err)
	}
	if cf.Err.Error() != "connection refused" {
		t.Fatalf("underlying message not passed through: %v", cf.Err)
	}
}

func TestHooksRunAfterCommitAndFailuresAreAbsorbed(t *testing.T) {
	svc := newService(t, repository.NewMemoryRepo())
	var calls int32
	svc.AfterCommit("ok", func(ctx context.Context, b model.Booking) error {
		atomic.AddInt32(&calls, 1)
		return nil
	})
	svc.AfterCommit("broken", func(ctx context.Context, b model.Booking) error {
		atomic.AddInt32(&calls, 1)
		return errors.New("redis down")
	})

	b, err := svc.Create(context.Background(), validRequest())
	if err != nil || b == nil {
		t.Fatalf("hook failure must not fail booking: %v", err)
	}
	svc.Wait()
	if atomic.LoadInt32(&calls) != 2 {
		t.Fatalf("expected both hooks to run, got %d", calls)
	}

	req := validRequest()
	req.SlotID = "19-20"
	_, _ = svc.Create(context.Background(), req)
	req.MobileNumber = "9000000000"
	if _, err := svc.Create(context.Background(), req); err == nil {
		t.Fatal("conflict expected")
	}
	svc.Wait()
	if atomic.LoadInt32(&calls) != 4 {
		t.Fatalf("hooks must not run for rejected bookings, got %d calls", calls)
	}
}

func TestGetAndListForDate(t *testing.T) {
	svc := newService(t, repository.NewMemoryRepo())
	b, _ := svc.Create(context.Background(), validRequest())

	got, err := svc.Get(context.Background(), b.ID)
	if err != nil || got.ID != b.ID {
		t.Fatalf("get: %v %+v", err, got)
	}
	if _, err := svc.Get(context.Background(), "missing"); !errors.Is(err, ErrBookingNotFound) {
		t.Fatalf("expected ErrBookingNotFound, got %v", err)
	}
	list, err := svc.ListForDate(context.Background(), "2030-05-11")
	if err != nil || len(list) != 1 {
		t.Fatalf("list: %v %d", err, len(list))
	}
	if _, err := svc.ListForDate(context.Background(), "tomorrow"); err == nil {
		t.Fatal("expected validation error for bad date")
	}
}

func TestEnqueueRemindersIsIdempotent(t *testing.T) {
	repo := repository.NewMemoryRepo()
	now, loc := fixedNow(t)
	svc := newService(t, repo).WithTasks()

	// 8-9 has started by 09:30 and gets no reminder.
	early := &model.Booking{ID: "early", BookingDate: "2030-05-10", SlotID: "8-9", StartTime: "08:00", EndTime: "09:00"}
	if err := repo.Create(context.Background(), early, nil); err != nil {
		t.Fatalf("seed: %v", err)
	}
	req := validRequest()
	req.BookingDate = "2030-05-10"
	if _, err := svc.Create(context.Background(), req); err != nil {
		t.Fatalf("create: %v", err)
	}

	n, err := EnqueueReminders(context.Background(), repo, "2030-05-10", now, loc)
	if err != nil || n != 1 {
		t.Fatalf("expected 1 reminder, got %d (%v)", n, err)
	}
	n, _ = EnqueueReminders(context.Background(), repo, "2030-05-10", now, loc)
	if n != 0 {
		t.Fatalf("second run must not enqueue again, got %d", n)
	}
	outbox := repo.Outbox()
	if len(outbox) != 1 || outbox[0].Kind != model.TaskReminder {
		t.Fatalf("unexpected outbox %+v", outbox)
	}
}

func TestOnCommitHooksFinishBeforeCreateReturns(t *testing.T) {
	svc := newService(t, repository.NewMemoryRepo())
	var done atomic.Bool
	svc.OnCommit("slow", func(ctx context.Context, b model.Booking) error {
		time.Sleep(20 * time.Millisecond)
		done.Store(true)
		return nil
	})
	svc.OnCommit("broken", func(ctx context.Context, b model.Booking) error {
		return errors.New("redis down")
	})
	b, err := svc.Create(context.Background(), validRequest())
	if err != nil || b == nil {
		t.Fatalf("failing on-commit hook must not fail the booking: %v", err)
	}
	if !done.Load() {
		t.Fatal("on-commit hook still running after Create returned")
	}
}
