package graph

import (
	"sync"

	"github.com/google/uuid"

	"github.com/krakflow/krakflow_core/internal/models"
)

// DefaultSubscriberCapacity bounds each subscriber's event queue.
const DefaultSubscriberCapacity = 128

// Subscriber is one registered consumer of graph events with its own bounded
// queue. Slow consumers lose their oldest queued events rather than blocking
// publishers.
type Subscriber struct {
	ID string
	ch chan models.Event
}

// Events returns the subscriber's receive channel. It is closed on
// unsubscribe.
func (s *Subscriber) Events() <-chan models.Event {
	return s.ch
}

// Bus fans graph events out to subscribers. All operations are safe for
// concurrent use.
type Bus struct {
	mu          sync.Mutex
	subscribers map[string]*Subscriber
	capacity    int
}

// NewBus returns a Bus with the default per-subscriber queue capacity.
func NewBus() *Bus {
	return &Bus{
		subscribers: make(map[string]*Subscriber),
		capacity:    DefaultSubscriberCapacity,
	}
}

// Subscribe registers a new subscriber.
func (b *Bus) Subscribe() *Subscriber {
	sub := &Subscriber{
		ID: uuid.New().String(),
		ch: make(chan models.Event, b.capacity),
	}
	b.mu.Lock()
	b.subscribers[sub.ID] = sub
	b.mu.Unlock()
	return sub
}

// Unsubscribe removes a subscriber and closes its channel. Unknown
// subscribers are ignored.
func (b *Bus) Unsubscribe(sub *Subscriber) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.subscribers[sub.ID]; !ok {
		return
	}
	delete(b.subscribers, sub.ID)
	close(sub.ch)
}

// Publish enqueues the event for every subscriber. When a subscriber's queue
// is full, its oldest queued event is dropped so the new one fits.
func (b *Bus) Publish(event models.Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, sub := range b.subscribers {
		select {
		case sub.ch <- event:
		default:
			select {
			case <-sub.ch:
			default:
			}
			select {
			case sub.ch <- event:
			default:
			}
		}
	}
}

// SubscriberCount returns the number of registered subscribers.
func (b *Bus) SubscriberCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subscribers)
}
