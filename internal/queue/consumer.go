package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

// Handler performs one kind of task.
type Handler func(ctx context.Context, t Task) error

// Retrier schedules a failed task for another attempt.
type Retrier interface {
	PublishDelayed(ctx context.Context, t Task, delay time.Duration) error
}

// Disposition is what the worker does with a delivery.
type Disposition int

const (
	Ack Disposition = iota
	Reject
	Requeue
)

// Worker consumes the task queue and dispatches by Task.Kind.  A failing
// task is retried through the retry queue until MaxAttempts, then dropped
// with a log line.
type Worker struct {
	URL         string
	Queue       string
	Prefetch    int
	MaxAttempts int
	Retry       Retrier
	HandlerTTL  time.Duration

	handlers map[string]Handler
}

func NewWorker(url, queue string, prefetch, maxAttempts int, retry Retrier) *Worker {
	if prefetch <= 0 {
		prefetch = 20
	}
	if maxAttempts <= 0 {
		maxAttempts = 5
	}
	return &Worker{
		URL:         url,
		Queue:       queue,
		Prefetch:    prefetch,
		MaxAttempts: maxAttempts,
		Retry:       retry,
		HandlerTTL:  30 * time.Second,
		handlers:    map[string]Handler{},
	}
}

// Handle registers h for kind.
func (w *Worker) Handle(kind string, h Handler) { w.handlers[kind] = h }

// Run connects to the broker and consumes until ctx is cancelled,
// reconnecting with backoff when the connection drops.
func (w *Worker) Run(ctx context.Context) error {
	backoff := time.Second
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		conn, err := amqp.Dial(w.URL)
		if err != nil {
			log.Printf("task-worker: failed to dial broker: %v; retrying in %s", err, backoff)
			if !sleep(ctx, backoff) {
				return ctx.Err()
			}
			if backoff < 30*time.Second {
				backoff *= 2
			}
			continue
		}
		backoff = time.Second // reset after successful connect

		err = w.consumeLoop(ctx, conn)
		_ = conn.Close()
		if ctx.Err() != nil {
			return ctx.Err()
		}
		log.Printf("task-worker: consume loop ended: %v; reconnecting", err)
		if !sleep(ctx, 2*time.Second) {
			return ctx.Err()
		}
	}
}

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

func (w *Worker) consumeLoop(ctx context.Context, conn *amqp.Connection) error {
	ch, err := conn.Channel()
	if err != nil {
		return fmt.Errorf("channel open: %w", err)
	}
	defer func() { _ = ch.Close() }()

	if err := ch.Qos(w.Prefetch, 0, false); err != nil {
		log.Printf("task-worker: set QoS failed: %v", err)
	}
	if err := DeclareQueues(ch, w.Queue); err != nil {
		return err
	}

	msgs, err := ch.ConsumeWithContext(ctx, w.Queue, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("queue consume: %w", err)
	}
	log.Printf("task-worker: consuming %s", w.Queue)

	for d := range msgs {
		switch w.Process(ctx, d.Body) {
		case Ack:
			_ = d.Ack(false)
		case Requeue:
			_ = d.Nack(false, true)
		default:
			_ = d.Nack(false, false) // reject, do not requeue to avoid tight loops
		}
	}
	return errors.New("deliveries channel closed")
}

// Process decodes one message, runs its handler and decides the delivery's
// fate.  Handler failures are retried with a growing delay until
// MaxAttempts is reached.
func (w *Worker) Process(ctx context.Context, body []byte) Disposition {
	var t Task
	if err := json.Unmarshal(body, &t); err != nil {
		log.Printf("task-worker: unmarshal: %v", err)
		return Reject
	}
	if t.Attempt < 1 {
		t.Attempt = 1
	}
	h, ok := w.handlers[t.Kind]
	if !ok {
		log.Printf("task-worker: no handler for %q (task %s)", t.Kind, t.ID)
		return Reject
	}

	hctx, cancel := context.WithTimeout(ctx, w.HandlerTTL)
	err := h(hctx, t)
	cancel()
	if err == nil {
		return Ack
	}

	if t.Attempt >= w.MaxAttempts || w.Retry == nil {
		log.Printf("task-worker: %s for booking %s failed after %d attempts: %v", t.Kind, t.Booking.ID, t.Attempt, err)
		return Reject
	}
	delay := RetryDelay(t.Attempt)
	log.Printf("task-worker: %s for booking %s failed (attempt %d): %v; retrying in %s", t.Kind, t.Booking.ID, t.Attempt, err, delay)
	next := t
	next.Attempt++
	if err := w.Retry.PublishDelayed(ctx, next, delay); err != nil {
		log.Printf("task-worker: schedule retry for %s: %v", t.ID, err)
		return Requeue
	}
	return Ack
}

// RetryDelay is 5s, 25s, 125s, ... capped at ten minutes.
func RetryDelay(attempt int) time.Duration {
	d := 5 * time.Second
	for i := 1; i < attempt && d < 10*time.Minute; i++ {
		d *= 5
	}
	if d > 10*time.Minute {
		d = 10 * time.Minute
	}
	return d
}
