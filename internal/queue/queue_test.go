package queue

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/sixeradda/ground-booking/internal/model"
	"github.com/sixeradda/ground-booking/internal/notify"
	"github.com/sixeradda/ground-booking/internal/repository"
)

type fakePublisher struct {
	mu      sync.Mutex
	fail    error
	sent    []Task
	delayed []time.Duration
}

func (f *fakePublisher) Publish(_ context.Context, t Task) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail != nil {
		return f.fail
	}
	f.sent = append(f.sent, t)
	return nil
}

func (f *fakePublisher) PublishDelayed(ctx context.Context, t Task, d time.Duration) error {
	if err := f.Publish(ctx, t); err != nil {
		return err
	}
	f.mu.Lock()
	f.delayed = append(f.delayed, d)
	f.mu.Unlock()
	return nil
}

func seededRepo(t *testing.T, now time.Time) (*repository.MemoryRepo, model.Booking) {
	t.Helper()
	b := model.Booking{ID: "b-1", Name: "Ravi", MobileNumber: "9876543210", Players: 4,
		BookingDate: "2030-05-11", SlotID: "6-7", StartTime: "06:00", EndTime: "07:00", FinalPrice: 600}
	payload, _ := json.Marshal(b)
	repo := repository.NewMemoryRepo()
	err := repo.Create(context.Background(), &b, []model.OutboxEntry{
		{ID: "o-1", BookingID: b.ID, Kind: model.TaskConfirmation, Payload: payload, NextAttemptAt: now},
		{ID: "o-2", BookingID: b.ID, Kind: model.TaskInvoice, Payload: payload, NextAttemptAt: now},
	})
	if err != nil {
		t.Fatalf("seed: %v", err)
	}
	return repo, b
}

func TestRelayFlushPublishesAndMarks(t *testing.T) {
	now := time.Date(2030, 5, 10, 9, 0, 0, 0, time.UTC)
	repo, b := seededRepo(t, now)
	pub := &fakePublisher{}
	r := NewRelay(repo, pub, time.Second, 10)
	r.Now = func() time.Time { return now }

	n, err := r.Flush(context.Background())
	if err != nil || n != 2 {
		t.Fatalf("expected 2 published, got %d (%v)", n, err)
	}
	if pub.sent[0].Booking.ID != b.ID || pub.sent[0].Attempt != 1 || pub.sent[0].ID != "o-1" {
		t.Fatalf("unexpected task %+v", pub.sent[0])
	}
	if n, _ := r.Flush(context.Background()); n != 0 {
		t.Fatalf("published entries must not be sent again, got %d", n)
	}
}

func TestRelayBacksOffOnPublishFailure(t *testing.T) {
	now := time.Date(2030, 5, 10, 9, 0, 0, 0, time.UTC)
	repo, _ := seededRepo(t, now)
	pub := &fakePublisher{fail: errors.New("connection refused")}
	r := NewRelay(repo, pub, time.Second, 10)
	r.Now = func() time.Time { return now }

	if n, err := r.Flush(context.Background()); err != nil || n != 0 {
		t.Fatalf("expected nothing published, got %d (%v)", n, err)
	}
	for _, e := range repo.Outbox() {
		if e.Attempts != 1 || e.LastError == nil || !e.NextAttemptAt.Equal(now.Add(time.Second)) {
			t.Fatalf("failure not recorded on %+v", e)
		}
	}

	pub.fail = nil
	if n, _ := r.Flush(context.Background()); n != 0 {
		t.Fatal("entries must wait for their next attempt")
	}
	r.Now = func() time.Time { return now.Add(2 * time.Second) }
	if n, _ := r.Flush(context.Background()); n != 2 {
		t.Fatalf("expected retry to publish 2, got %d", n)
	}
}

func TestRelayRunWakesAndStops(t *testing.T) {
	now := time.Now()
	repo, _ := seededRepo(t, now)
	pub := &fakePublisher{}
	r := NewRelay(repo, pub, time.Hour, 10)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- r.Run(ctx) }()

	deadline := time.After(2 * time.Second)
	for {
		pub.mu.Lock()
		n := len(pub.sent)
		pub.mu.Unlock()
		if n == 2 {
			break
		}
		select {
		case <-deadline:
			t.Fatal("relay did not publish on start")
		case <-time.After(10 * time.Millisecond):
		}
	}
	_ = r.AfterCommit(ctx, model.Booking{})
	cancel()
	if err := <-done; !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestRelayBackoff(t *testing.T) {
	tests := map[int]time.Duration{0: time.Second, 1: time.Second, 2: 2 * time.Second, 4: 8 * time.Second, 20: 5 * time.Minute}
	for attempt, want := range tests {
		if got := RelayBackoff(attempt); got != want {
			t.Fatalf("RelayBackoff(%d) = %s, want %s", attempt, got, want)
		}
	}
}

type recordingNotifier struct {
	mu    sync.Mutex
	calls []string
	err   error
}

func (n *recordingNotifier) Send(_ context.Context, to string, tmpl notify.Template, _ model.Booking) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.calls = append(n.calls, string(tmpl)+"->"+to)
	return n.err
}

type recordingInvoices struct{ ids []string }

func (r *recordingInvoices) Write(_ context.Context, b model.Booking) (string, error) {
	r.ids = append(r.ids, b.ID)
	return "/tmp/" + b.ID + ".pdf", nil
}

func taskBody(t *testing.T, kind string, attempt int) []byte {
	t.Helper()
	body, err := json.Marshal(Task{ID: "o-1", Kind: kind, Attempt: attempt,
		Booking: model.Booking{ID: "b-1", MobileNumber: "9876543210"}})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	return body
}

func TestWorkerDispatchesByKind(t *testing.T) {
	n := &recordingNotifier{}
	inv := &recordingInvoices{}
	w := NewWorker("", "booking.tasks", 1, 3, &fakePublisher{})
	RegisterHandlers(w, n, "8919878315", inv)

	for _, kind := range []string{model.TaskConfirmation, model.TaskAdminNotice, model.TaskReminder, model.TaskInvoice} {
		if d := w.Process(context.Background(), taskBody(t, kind, 1)); d != Ack {
			t.Fatalf("%s: expected Ack, got %v", kind, d)
		}
	}
	want := []string{"confirmation->9876543210", "admin-notification->8919878315", "reminder->9876543210"}
	if len(n.calls) != 3 {
		t.Fatalf("unexpected calls %v", n.calls)
	}
	for i := range want {
		if n.calls[i] != want[i] {
			t.Fatalf("call %d: got %s, want %s", i, n.calls[i], want[i])
		}
	}
	if len(inv.ids) != 1 || inv.ids[0] != "b-1" {
		t.Fatalf("invoice not written: %v", inv.ids)
	}
}

func TestWorkerRetriesThenGivesUp(t *testing.T) {
	n := &recordingNotifier{err: errors.New("twilio: 503")}
	retry := &fakePublisher{}
	w := NewWorker("", "booking.tasks", 1, 3, retry)
	RegisterHandlers(w, n, "", &recordingInvoices{})

	if d := w.Process(context.Background(), taskBody(t, model.TaskConfirmation, 1)); d != Ack {
		t.Fatalf("first failure should be handed to the retry queue, got %v", d)
	}
	if len(retry.sent) != 1 || retry.sent[0].Attempt != 2 || retry.delayed[0] != 5*time.Second {
		t.Fatalf("unexpected retry %+v %v", retry.sent, retry.delayed)
	}
	if d := w.Process(context.Background(), taskBody(t, model.TaskConfirmation, 3)); d != Reject {
		t.Fatalf("last attempt should be rejected, got %v", d)
	}

	retry.fail = errors.New("broker down")
	if d := w.Process(context.Background(), taskBody(t, model.TaskConfirmation, 1)); d != Requeue {
		t.Fatalf("failed retry scheduling should requeue, got %v", d)
	}
}

func TestWorkerRejectsGarbage(t *testing.T) {
	w := NewWorker("", "booking.tasks", 1, 3, nil)
	if d := w.Process(context.Background(), []byte("{")); d != Reject {
		t.Fatalf("expected Reject for bad json, got %v", d)
	}
	if d := w.Process(context.Background(), taskBody(t, "unknown.kind", 1)); d != Reject {
		t.Fatalf("expected Reject for unknown kind, got %v", d)
	}
}

func TestAdminNoticeSkippedWithoutPhone(t *testing.T) {
	n := &recordingNotifier{}
	w := NewWorker("", "booking.tasks", 1, 3, nil)
	RegisterHandlers(w, n, "", &recordingInvoices{})
	if d := w.Process(context.Background(), taskBody(t, model.TaskAdminNotice, 1)); d != Ack || len(n.calls) != 0 {
		t.Fatalf("expected silent ack, got %v with %v", d, n.calls)
	}
}

func TestRetryDelay(t *testing.T) {
	if RetryDelay(1) != 5*time.Second || RetryDelay(2) != 25*time.Second || RetryDelay(10) != 10*time.Minute {
		t.Fatalf("unexpected delays %s %s %s", RetryDelay(1), RetryDelay(2), RetryDelay(10))
	}
}

func TestRetryTiersCoverEveryDelay(t *testing.T) {
	for attempt := 1; attempt <= 8; attempt++ {
		d := RetryDelay(attempt)
		if tier := retryTier(d); tier != d {
			t.Fatalf("attempt %d: delay %s lands on tier %s", attempt, d, tier)
		}
	}
	if retryTier(7*time.Second) != 25*time.Second || retryTier(time.Hour) != 10*time.Minute {
		t.Fatalf("tier rounding wrong: %s %s", retryTier(7*time.Second), retryTier(time.Hour))
	}
}

func TestRetryQueuesHaveOwnTTL(t *testing.T) {
	seen := map[string]bool{}
	for _, tier := range RetryTiers {
		name := RetryQueueFor("booking.tasks", tier)
		if seen[name] {
			t.Fatalf("tier %s shares queue %s", tier, name)
		}
		seen[name] = true
		args := retryQueueArgs("booking.tasks", tier)
		if args["x-message-ttl"] != tier.Milliseconds() || args["x-dead-letter-routing-key"] != "booking.tasks" {
			t.Fatalf("queue %s args %v", name, args)
		}
	}
	if RetryQueueFor("booking.tasks", 25*time.Second) != "booking.tasks.retry.25s" {
		t.Fatalf("name %s", RetryQueueFor("booking.tasks", 25*time.Second))
	}
}
