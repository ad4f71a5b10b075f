// Package queue moves booking side effects from the outbox to workers
// over RabbitMQ.  The relay publishes committed outbox entries; the worker
// consumes them, dispatches by kind and retries failures through a
// set of fixed-delay retry queues.
package queue

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/sixeradda/ground-booking/internal/model"
)

// Task is the message body on the task queue.  ID is the outbox entry id
// and stays the same across retries.
type Task struct {
	ID      string        `json:"id"`
	Kind    string        `json:"kind"`
	Booking model.Booking `json:"booking"`
	Attempt int           `json:"attempt"`
}

// TaskFromOutbox decodes the booking snapshot stored with an entry.
func TaskFromOutbox(e model.OutboxEntry) (Task, error) {
	var b model.Booking
	if err := json.Unmarshal(e.Payload, &b); err != nil {
		return Task{}, fmt.Errorf("outbox %s: decode payload: %w", e.ID, err)
	}
	return Task{ID: e.ID, Kind: e.Kind, Booking: b, Attempt: 1}, nil
}

// RetryTiers are the delays of the retry queues, one queue per tier.
// Each queue has a single queue-level TTL so a short retry never waits
// behind a long one.
var RetryTiers = []time.Duration{5 * time.Second, 25 * time.Second, 125 * time.Second, 10 * time.Minute}

// RetryQueueFor names the retry queue holding messages for tier, e.g.
// "booking.tasks.retry.25s".
func RetryQueueFor(queue string, tier time.Duration) string {
	return fmt.Sprintf("%s.retry.%ds", queue, int64(tier/time.Second))
}

// retryTier picks the shortest tier not shorter than delay, or the
// longest tier.
func retryTier(delay time.Duration) time.Duration {
	for _, t := range RetryTiers {
		if delay <= t {
			return t
		}
	}
	return RetryTiers[len(RetryTiers)-1]
}
