package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

// Publisher keeps one confirm-mode channel open to the broker and redials
// lazily after a failure.  It is safe for concurrent use.
type Publisher struct {
	url   string
	queue string

	mu   sync.Mutex
	conn *amqp.Connection
	ch   *amqp.Channel
}

func NewPublisher(url, queue string) *Publisher {
	return &Publisher{url: url, queue: queue}
}

// Publish sends t to the task queue and waits for the broker to confirm it.
func (p *Publisher) Publish(ctx context.Context, t Task) error {
	return p.publish(ctx, p.queue, t)
}

// PublishDelayed parks t on the retry queue of the tier matching delay;
// it reappears on the task queue when the queue's TTL expires.
func (p *Publisher) PublishDelayed(ctx context.Context, t Task, delay time.Duration) error {
	if delay <= 0 {
		return p.Publish(ctx, t)
	}
	return p.publish(ctx, RetryQueueFor(p.queue, retryTier(delay)), t)
}

func (p *Publisher) publish(ctx context.Context, routingKey string, t Task) error {
	body, err := json.Marshal(t)
	if err != nil {
		return fmt.Errorf("marshal task: %w", err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	ch, err := p.channelLocked()
	if err != nil {
		return err
	}

	msg := amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent, // store on disk
		MessageId:    t.ID,
		Type:         t.Kind,
		Timestamp:    time.Now().UTC(),
		Body:         body,
	}
	conf, err := ch.PublishWithDeferredConfirmWithContext(ctx, "", routingKey, false, false, msg)
	if err != nil {
		p.resetLocked()
		return fmt.Errorf("publish: %w", err)
	}
	ok, err := conf.WaitContext(ctx)
	if err != nil {
		p.resetLocked()
		return fmt.Errorf("publish confirm: %w", err)
	}
	if !ok {
		return errors.New("publish: broker nacked message")
	}
	return nil
}

func (p *Publisher) channelLocked() (*amqp.Channel, error) {
	if p.ch != nil && !p.ch.IsClosed() {
		return p.ch, nil
	}
	p.resetLocked()

	conn, err := amqp.Dial(p.url)
	if err != nil {
		log.Printf("rabbitmq: dial failed: %v", err)
		return nil, err
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		log.Printf("rabbitmq: channel open failed: %v", err)
		return nil, err
	}
	if err := ch.Confirm(false); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, fmt.Errorf("confirm mode: %w", err)
	}
	if err := DeclareQueues(ch, p.queue); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, err
	}
	p.conn, p.ch = conn, ch
	return ch, nil
}

func (p *Publisher) resetLocked() {
	if p.ch != nil {
		_ = p.ch.Close()
	}
	if p.conn != nil {
		_ = p.conn.Close()
	}
	p.ch, p.conn = nil, nil
}

// Close releases the broker connection.
func (p *Publisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.resetLocked()
	return nil
}

// DeclareQueues declares the durable task queue and one retry queue per
// tier.  A retry queue has no consumers; messages expire after the queue's
// TTL and are dead-lettered back to the task queue through the default
// exchange.
func DeclareQueues(ch *amqp.Channel, queue string) error {
	if _, err := ch.QueueDeclare(queue, true, false, false, false, nil); err != nil {
		return fmt.Errorf("queue declare: %w", err)
	}
	for _, tier := range RetryTiers {
		name := RetryQueueFor(queue, tier)
		if _, err := ch.QueueDeclare(name, true, false, false, false, retryQueueArgs(queue, tier)); err != nil {
			return fmt.Errorf("retry queue declare %s: %w", name, err)
		}
	}
	return nil
}

func retryQueueArgs(queue string, tier time.Duration) amqp.Table {
	return amqp.Table{
		"x-message-ttl":             tier.Milliseconds(),
		"x-dead-letter-exchange":    "",
		"x-dead-letter-routing-key": queue,
	}
}
