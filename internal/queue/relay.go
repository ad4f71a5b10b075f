package queue

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/sixeradda/ground-booking/internal/model"
)

// OutboxStore is the part of the booking store the relay drives.
type OutboxStore interface {
	DueOutbox(ctx context.Context, now time.Time, limit int) ([]model.OutboxEntry, error)
	MarkPublished(ctx context.Context, id string, at time.Time) error
	MarkFailed(ctx context.Context, id string, next time.Time, msg string) error
}

// TaskPublisher sends a task to the queue.
type TaskPublisher interface {
	Publish(ctx context.Context, t Task) error
}

// Relay polls the outbox and publishes due entries.  It runs on a ticker
// and can be woken early after a commit.  Delivery is at least once: an
// entry published but not yet marked is published again on the next pass.
type Relay struct {
	Store    OutboxStore
	Pub      TaskPublisher
	Interval time.Duration
	Batch    int
	Now      func() time.Time

	wakeOnce sync.Once
	wake     chan struct{}
}

func NewRelay(store OutboxStore, pub TaskPublisher, interval time.Duration, batch int) *Relay {
	if interval <= 0 {
		interval = 2 * time.Second
	}
	if batch <= 0 {
		batch = 50
	}
	return &Relay{Store: store, Pub: pub, Interval: interval, Batch: batch, Now: time.Now}
}

func (r *Relay) wakeCh() chan struct{} {
	r.wakeOnce.Do(func() { r.wake = make(chan struct{}, 1) })
	return r.wake
}

// Wake asks the relay to run a pass now.  It never blocks.
func (r *Relay) Wake() {
	select {
	case r.wakeCh() <- struct{}{}:
	default:
	}
}

// AfterCommit matches service.CommitHook.
func (r *Relay) AfterCommit(ctx context.Context, _ model.Booking) error {
	r.Wake()
	return nil
}

// Run publishes until ctx is cancelled.
func (r *Relay) Run(ctx context.Context) error {
	t := time.NewTicker(r.Interval)
	defer t.Stop()
	wake := r.wakeCh()

	// kick immediately
	r.tick(ctx)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.C:
			r.tick(ctx)
		case <-wake:
			r.tick(ctx)
		}
	}
}

func (r *Relay) tick(ctx context.Context) {
	if _, err := r.Flush(ctx); err != nil && ctx.Err() == nil {
		log.Printf("outbox-relay: %v", err)
	}
}

// Flush makes one pass over due entries and returns how many were
// published.
func (r *Relay) Flush(ctx context.Context) (int, error) {
	now := r.Now()
	entries, err := r.Store.DueOutbox(ctx, now, r.Batch)
	if err != nil {
		return 0, err
	}
	published := 0
	for _, e := range entries {
		t, err := TaskFromOutbox(e)
		if err != nil {
			// a payload that cannot be decoded will not improve; park it for a day
			log.Printf("outbox-relay: %v", err)
			_ = r.Store.MarkFailed(ctx, e.ID, now.Add(24*time.Hour), err.Error())
			continue
		}
		if err := r.Pub.Publish(ctx, t); err != nil {
			next := now.Add(RelayBackoff(e.Attempts + 1))
			log.Printf("outbox-relay: publish %s (%s) failed: %v; next attempt %s", e.ID, e.Kind, err, next.Format(time.RFC3339))
			if mErr := r.Store.MarkFailed(ctx, e.ID, next, err.Error()); mErr != nil {
				return published, mErr
			}
			continue
		}
		if err := r.Store.MarkPublished(ctx, e.ID, now); err != nil {
			return published, err
		}
		published++
	}
	return published, nil
}

// RelayBackoff doubles from one second up to five minutes.
func RelayBackoff(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	d := time.Second
	for i := 1; i < attempt && d < 5*time.Minute; i++ {
		d *= 2
	}
	if d > 5*time.Minute {
		d = 5 * time.Minute
	}
	return d
}
