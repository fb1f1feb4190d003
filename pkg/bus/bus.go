// Package bus provides the in-process topic bus that fans events out to the
// sinks. Each subscriber owns a buffered queue drained by its own worker
// goroutine, so one slow or failing handler cannot affect the others.
package bus

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/muhammetakkurtt/alpha-stream/pkg/models"
)

// Fixed topic names.
const (
	TopicCLI       = "cli"
	TopicAlerts    = "alerts"
	TopicDashboard = "dashboard"
)

// defaultQueueSize bounds each subscriber's queue. A subscriber that falls
// further behind than this loses events (logged) rather than stalling the
// pipeline.
const defaultQueueSize = 256

// Handler processes one event for one subscriber. Errors are logged with the
// subscriber's context and never propagate to the publisher.
type Handler func(ctx context.Context, evt *models.Event) error

// subscriber is one (topic, handler) registration with its delivery queue.
type subscriber struct {
	id      string
	topic   string
	handler Handler
	queue   chan *models.Event
	done    chan struct{}
}

// Bus is the topic → subscriber registry.
type Bus struct {
	mu        sync.RWMutex
	topics    map[string][]*subscriber
	byID      map[string]*subscriber
	queueSize int
	closed    bool
	logger    *slog.Logger
}

// New creates an event bus.
func New() *Bus {
	return &Bus{
		topics:    make(map[string][]*subscriber),
		byID:      make(map[string]*subscriber),
		queueSize: defaultQueueSize,
		logger:    slog.Default().With("component", "bus"),
	}
}

// Subscribe registers a handler for a topic and returns its subscription id.
// Duplicate subscriptions are allowed; each is delivered independently, in
// FIFO order per subscriber.
func (b *Bus) Subscribe(topic string, handler Handler) string {
	sub := &subscriber{
		id:      uuid.New().String(),
		topic:   topic,
		handler: handler,
		queue:   make(chan *models.Event, b.queueSize),
		done:    make(chan struct{}),
	}

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		close(sub.done)
		return sub.id
	}
	b.topics[topic] = append(b.topics[topic], sub)
	b.byID[sub.id] = sub
	b.mu.Unlock()

	go b.drain(sub)
	return sub.id
}

// Unsubscribe removes a subscription. Events already queued for it are still
// delivered; the worker exits once the queue empties.
func (b *Bus) Unsubscribe(id string) {
	b.mu.Lock()
	sub, ok := b.byID[id]
	if ok {
		delete(b.byID, id)
		subs := b.topics[sub.topic]
		for i, s := range subs {
			if s.id == id {
				b.topics[sub.topic] = append(subs[:i], subs[i+1:]...)
				break
			}
		}
		close(sub.queue)
	}
	b.mu.Unlock()
}

// Publish delivers an event to every subscriber of a topic. The send is
// non-blocking: a full subscriber queue drops the event for that subscriber
// with a warning so the pipeline never stalls on a slow sink. Sends happen
// under the read lock — they cannot block, and holding it excludes
// Unsubscribe/Close from closing a queue mid-send.
func (b *Bus) Publish(topic string, evt *models.Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return
	}
	for _, sub := range b.topics[topic] {
		select {
		case sub.queue <- evt:
		default:
			b.logger.Warn("Subscriber queue full, dropping event",
				"topic", topic, "subscription_id", sub.id, "kind", evt.Kind)
		}
	}
}

// SubscriberCount returns the number of active subscriptions for a topic.
// Unexported callers are tests that poll instead of sleeping.
func (b *Bus) SubscriberCount(topic string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.topics[topic])
}

// Close stops accepting publications, closes all subscriber queues and waits
// up to drainTimeout for the workers to finish delivering queued events.
func (b *Bus) Close(drainTimeout time.Duration) {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.closed = true
	var subs []*subscriber
	for _, topicSubs := range b.topics {
		subs = append(subs, topicSubs...)
	}
	b.topics = make(map[string][]*subscriber)
	b.byID = make(map[string]*subscriber)
	b.mu.Unlock()

	for _, sub := range subs {
		close(sub.queue)
	}

	deadline := time.NewTimer(drainTimeout)
	defer deadline.Stop()
	for _, sub := range subs {
		select {
		case <-sub.done:
		case <-deadline.C:
			b.logger.Warn("Bus drain timeout, abandoning subscriber queues")
			return
		}
	}
}

// drain is the per-subscriber worker loop. Handler panics and errors are
// caught and logged so the worker keeps draining.
func (b *Bus) drain(sub *subscriber) {
	defer close(sub.done)
	for evt := range sub.queue {
		b.deliver(sub, evt)
	}
}

func (b *Bus) deliver(sub *subscriber, evt *models.Event) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("Subscriber handler panicked",
				"topic", sub.topic, "subscription_id", sub.id, "panic", r)
		}
	}()
	if err := sub.handler(context.Background(), evt); err != nil {
		b.logger.Error("Subscriber handler failed",
			"topic", sub.topic, "subscription_id", sub.id,
			"kind", evt.Kind, "error", err)
	}
}
