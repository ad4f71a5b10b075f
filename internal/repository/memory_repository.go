package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/sixeradda/ground-booking/internal/model"
)

// MemoryRepo keeps bookings and outbox entries in process memory.  It
// enforces the same (booking_date, slot_id) uniqueness as the SQL stores
// and is used for local runs (STORE_DRIVER=memory) and tests.
type MemoryRepo struct {
	mu       sync.Mutex
	bookings map[string]model.Booking
	bySlot   map[string]string // date|slot -> booking id
	outbox   map[string]*model.OutboxEntry
	order    []string // outbox ids in insertion order
}

func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{
		bookings: map[string]model.Booking{},
		bySlot:   map[string]string{},
		outbox:   map[string]*model.OutboxEntry{},
	}
}

func slotKey(date, slotID string) string { return date + "|" + slotID }

func (m *MemoryRepo) SlotTaken(ctx context.Context, date, slotID string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.bySlot[slotKey(date, slotID)]
	return ok, nil
}

func (m *MemoryRepo) BookedSlotIDs(ctx context.Context, date string) (map[string]bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	booked := map[string]bool{}
	for _, b := range m.bookings {
		if b.BookingDate == date {
			booked[b.SlotID] = true
		}
	}
	return booked, nil
}

func (m *MemoryRepo) CountByMobile(ctx context.Context, mobile string) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, b := range m.bookings {
		if b.MobileNumber == mobile {
			n++
		}
	}
	return n, nil
}

// Create stores the booking and its outbox entries atomically under the
// repository lock.
func (m *MemoryRepo) Create(ctx context.Context, b *model.Booking, outbox []model.OutboxEntry) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	key := slotKey(b.BookingDate, b.SlotID)
	if _, ok := m.bySlot[key]; ok {
		return ErrSlotTaken
	}
	if b.CreatedAt.IsZero() {
		b.CreatedAt = time.Now().UTC()
	}
	m.bookings[b.ID] = *b
	m.bySlot[key] = b.ID
	m.addOutboxLocked(outbox)
	return nil
}

func (m *MemoryRepo) GetByID(ctx context.Context, id string) (*model.Booking, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.bookings[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &b, nil
}

func (m *MemoryRepo) ListByDate(ctx context.Context, date string) ([]model.Booking, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	out := []model.Booking{}
	for _, b := range m.bookings {
		if b.BookingDate == date {
			out = append(out, b)
		}
	}
	m.mu.Unlock()
	sort.Slice(out, func(i, j int) bool { return out[i].StartTime < out[j].StartTime })
	return out, nil
}

func (m *MemoryRepo) addOutboxLocked(entries []model.OutboxEntry) int {
	n := 0
	for _, e := range entries {
		if _, ok := m.outbox[e.ID]; ok {
			continue
		}
		e := e
		if e.NextAttemptAt.IsZero() {
			e.NextAttemptAt = time.Now().UTC()
		}
		if e.CreatedAt.IsZero() {
			e.CreatedAt = time.Now().UTC()
		}
		m.outbox[e.ID] = &e
		m.order = append(m.order, e.ID)
		n++
	}
	return n
}

func (m *MemoryRepo) Enqueue(ctx context.Context, entries []model.OutboxEntry) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.addOutboxLocked(entries), nil
}

func (m *MemoryRepo) DueOutbox(ctx context.Context, now time.Time, limit int) ([]model.OutboxEntry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.OutboxEntry
	for _, id := range m.order {
		if len(out) >= limit {
			break
		}
		e := m.outbox[id]
		if e.PublishedAt == nil && !e.NextAttemptAt.After(now) {
			out = append(out, *e)
		}
	}
	return out, nil
}

func (m *MemoryRepo) MarkPublished(ctx context.Context, id string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.outbox[id]
	if !ok {
		return ErrNotFound
	}
	at = at.UTC()
	e.PublishedAt = &at
	e.Attempts++
	e.LastError = nil
	return nil
}

func (m *MemoryRepo) MarkFailed(ctx context.Context, id string, next time.Time, msg string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.outbox[id]
	if !ok {
		return ErrNotFound
	}
	e.Attempts++
	e.NextAttemptAt = next.UTC()
	e.LastError = &msg
	return nil
}

// Outbox returns a snapshot of every entry in insertion order.
func (m *MemoryRepo) Outbox() []model.OutboxEntry {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]model.OutboxEntry, 0, len(m.order))
	for _, id := range m.order {
		out = append(out, *m.outbox[id])
	}
	return out
}
