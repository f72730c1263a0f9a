package alert

import (
	"context"
	"sync"

	"netgraph-guard/internal/metrics"
	"netgraph-guard/internal/model"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// Subscriber is one receiver on the alert broadcast. Messages arrive on a
// bounded channel; when the subscriber falls behind, its oldest unread
// message is dropped so the publisher never stalls.
type Subscriber struct {
	id string
	ch chan model.Alert
}

// Alerts is the subscriber's receive channel. It is closed on unsubscribe.
func (s *Subscriber) Alerts() <-chan model.Alert {
	return s.ch
}

// ID returns the subscriber's identity, for logging.
func (s *Subscriber) ID() string {
	return s.id
}

// Broadcaster fans alerts out to all active subscribers. Publishing never
// blocks: a full subscriber buffer loses its oldest message (bounded
// staleness), and a slow subscriber can never apply backpressure to the
// analysis loop.
type Broadcaster struct {
	mu     sync.RWMutex
	subs   map[*Subscriber]struct{}
	buffer int

	metrics *metrics.Metrics
	logger  *logrus.Logger
}

// NewBroadcaster creates a broadcast hub with the given per-subscriber
// buffer size.
func NewBroadcaster(buffer int, m *metrics.Metrics, logger *logrus.Logger) *Broadcaster {
	if buffer <= 0 {
		buffer = 64
	}
	return &Broadcaster{
		subs:    make(map[*Subscriber]struct{}),
		buffer:  buffer,
		metrics: m,
		logger:  logger,
	}
}

// Subscribe registers a new receiver. The subscription ends when the
// context is cancelled or Unsubscribe is called, whichever comes first.
func (b *Broadcaster) Subscribe(ctx context.Context) *Subscriber {
	sub := &Subscriber{
		id: uuid.NewString(),
		ch: make(chan model.Alert, b.buffer),
	}

	b.mu.Lock()
	b.subs[sub] = struct{}{}
	b.mu.Unlock()

	b.logger.Debugf("Alert subscriber %s registered", sub.id)

	go func() {
		<-ctx.Done()
		b.Unsubscribe(sub)
	}()

	return sub
}

// Unsubscribe removes a receiver and closes its channel. Safe to call more
// than once.
func (b *Broadcaster) Unsubscribe(sub *Subscriber) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, ok := b.subs[sub]; !ok {
		return
	}
	delete(b.subs, sub)
	close(sub.ch)
	b.logger.Debugf("Alert subscriber %s removed", sub.id)
}

// Publish delivers an alert to every subscriber without ever blocking.
// Sends happen under the read lock so no send can race an Unsubscribe
// closing the channel.
func (b *Broadcaster) Publish(alert model.Alert) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for sub := range b.subs {
		select {
		case sub.ch <- alert:
			continue
		default:
		}

		// Buffer full: drop the oldest unread message to make room.
		select {
		case <-sub.ch:
			b.metrics.SubscriberDrops.Inc()
		default:
		}
		select {
		case sub.ch <- alert:
		default:
			b.metrics.SubscriberDrops.Inc()
		}
	}
}

// SubscriberCount reports the number of active subscribers.
func (b *Broadcaster) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}
