package service

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/sixeradda/ground-booking/internal/model"
	"github.com/sixeradda/ground-booking/internal/repository"
)

// BookingStore is the persistence the booking guard needs.  Create must
// write the booking and the outbox entries atomically and report a
// uniqueness violation on (booking_date, slot_id) as
// repository.ErrSlotTaken.
type BookingStore interface {
	SlotTaken(ctx context.Context, date, slotID string) (bool, error)
	CountByMobile(ctx context.Context, mobile string) (int, error)
	Create(ctx context.Context, b *model.Booking, outbox []model.OutboxEntry) error
	GetByID(ctx context.Context, id string) (*model.Booking, error)
	ListByDate(ctx context.Context, date string) ([]model.Booking, error)
}

// CommitHook runs after a booking is committed.  Its error is logged and
// never changes the outcome of the booking.
type CommitHook func(ctx context.Context, b model.Booking) error

type namedHook struct {
	name string
	fn   CommitHook
}

// DefaultTasks are the outbox entries written with every booking.
var DefaultTasks = []string{model.TaskConfirmation, model.TaskAdminNotice, model.TaskInvoice}

// BookingService validates submissions and commits bookings.
type BookingService struct {
	store       BookingStore
	coupons     CouponTable
	loc         *time.Location
	now         func() time.Time
	tasks       []string
	onCommit    []namedHook
	hooks       []namedHook
	hookTimeout time.Duration

	wg sync.WaitGroup
}

func NewBookingService(store BookingStore, loc *time.Location) *BookingService {
	return &BookingService{
		store:       store,
		coupons:     DefaultCoupons(),
		loc:         loc,
		now:         time.Now,
		tasks:       DefaultTasks,
		hookTimeout: 5 * time.Second,
	}
}

// WithClock replaces the time source; used by tests.
func (s *BookingService) WithClock(now func() time.Time) *BookingService {
	s.now = now
	return s
}

// WithCoupons replaces the coupon table.
func (s *BookingService) WithCoupons(t CouponTable) *BookingService {
	s.coupons = t
	return s
}

// WithTasks sets the outbox task kinds written per booking.
func (s *BookingService) WithTasks(kinds ...string) *BookingService {
	s.tasks = kinds
	return s
}

// OnCommit registers a hook that runs before Create returns, after the
// store commit.  Reads issued after Create returns observe its effects.
// A failing hook is logged and the booking still succeeds.
func (s *BookingService) OnCommit(name string, fn CommitHook) {
	s.onCommit = append(s.onCommit, namedHook{name: name, fn: fn})
}

// AfterCommit registers a hook run in its own goroutine after each commit.
func (s *BookingService) AfterCommit(name string, fn CommitHook) {
	s.hooks = append(s.hooks, namedHook{name: name, fn: fn})
}

// Wait blocks until running commit hooks have returned.
func (s *BookingService) Wait() { s.wg.Wait() }

// Today returns the current date in the ground's timezone.
func (s *BookingService) Today() string { return s.now().In(s.loc).Format(model.DateLayout) }

// Create runs a submission through validation, coupon eligibility, the
// availability pre-check and the conditional insert.  The pre-check only
// saves a write; the store's unique index decides races.
func (s *BookingService) Create(ctx context.Context, req BookingRequest) (*model.Booking, error) {
	ctx, span := tracer.Start(ctx, "booking.create")
	defer span.End()

	now := s.now()
	v, err := ValidateRequest(req, s.coupons, now, s.loc)
	if err != nil {
		span.SetStatus(codes.Error, "validation")
		return nil, err
	}
	span.SetAttributes(
		attribute.String("booking.date", v.Date),
		attribute.String("booking.slot", v.Slot.ID),
	)

	price := v.Slot.Price
	var discount *string
	if v.Coupon != "" {
		rule, _ := s.coupons.Lookup(v.Coupon)
		n, err := s.store.CountByMobile(ctx, v.Mobile)
		if err != nil {
			return nil, failed(span, err)
		}
		if !rule.Eligible(CustomerHistory{PriorBookings: n}) {
			span.SetStatus(codes.Error, "coupon")
			return nil, ErrInvalidCoupon
		}
		price = rule.Apply(price)
		code := rule.Code
		discount = &code
	}

	taken, err := s.store.SlotTaken(ctx, v.Date, v.Slot.ID)
	if err != nil {
		return nil, failed(span, err)
	}
	if taken {
		span.SetStatus(codes.Error, "slot taken")
		return nil, ErrSlotAlreadyBooked
	}

	b := &model.Booking{
		ID:             uuid.NewString(),
		Name:           v.Name,
		MobileNumber:   v.Mobile,
		Players:        v.Players,
		BookingDate:    v.Date,
		SlotID:         v.Slot.ID,
		StartTime:      v.Slot.StartTime,
		EndTime:        v.Slot.EndTime,
		IsNightSession: v.Slot.IsNightSession,
		DiscountCode:   discount,
		FinalPrice:     price,
		CreatedAt:      now.UTC().Truncate(time.Second),
	}
	outbox, err := OutboxFor(*b, s.tasks, now)
	if err != nil {
		return nil, failed(span, err)
	}

	if err := s.store.Create(ctx, b, outbox); err != nil {
		if errors.Is(err, repository.ErrSlotTaken) {
			span.SetStatus(codes.Error, "slot taken")
			return nil, ErrSlotAlreadyBooked
		}
		return nil, failed(span, err)
	}
	span.SetAttributes(attribute.String("booking.id", b.ID))

	s.runOnCommit(ctx, *b)
	s.runHooks(ctx, *b)
	return b, nil
}

func failed(span trace.Span, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, "store")
	return &BookingCreateFailedError{Err: err}
}

func (s *BookingService) runOnCommit(ctx context.Context, b model.Booking) {
	if len(s.onCommit) == 0 {
		return
	}
	hctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.hookTimeout)
	defer cancel()
	for _, h := range s.onCommit {
		if err := h.fn(hctx, b); err != nil {
			log.Printf("booking: on-commit %s for %s failed: %v", h.name, b.ID, err)
		}
	}
}

func (s *BookingService) runHooks(ctx context.Context, b model.Booking) {
	base := context.WithoutCancel(ctx)
	for _, h := range s.hooks {
		h := h
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			hctx, cancel := context.WithTimeout(base, s.hookTimeout)
			defer cancel()
			if err := h.fn(hctx, b); err != nil {
				log.Printf("booking: after-commit %s for %s failed: %v", h.name, b.ID, err)
			}
		}()
	}
}

// Get loads one booking.
func (s *BookingService) Get(ctx context.Context, id string) (*model.Booking, error) {
	b, err := s.store.GetByID(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, ErrBookingNotFound
	}
	return b, err
}

// ListForDate returns the day's bookings ordered by start time.
func (s *BookingService) ListForDate(ctx context.Context, date string) ([]model.Booking, error) {
	ctx, span := tracer.Start(ctx, "booking.list")
	defer span.End()
	if _, err := time.ParseInLocation(model.DateLayout, date, s.loc); err != nil {
		return nil, &ValidationError{Fields: map[string]string{"date": "must be a date in yyyy-MM-dd format"}}
	}
	return s.store.ListByDate(ctx, date)
}

// OutboxFor builds one outbox entry per kind carrying a JSON snapshot of b.
func OutboxFor(b model.Booking, kinds []string, now time.Time) ([]model.OutboxEntry, error) {
	payload, err := json.Marshal(b)
	if err != nil {
		return nil, err
	}
	out := make([]model.OutboxEntry, 0, len(kinds))
	for _, k := range kinds {
		out = append(out, model.OutboxEntry{
			ID:            uuid.NewString(),
			BookingID:     b.ID,
			Kind:          k,
			Payload:       payload,
			NextAttemptAt: now.UTC(),
			CreatedAt:     now.UTC(),
		})
	}
	return out, nil
}
