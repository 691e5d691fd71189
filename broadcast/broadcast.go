// broadcast/broadcast.go
package broadcast

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/wfunc/lobbyserver/logger"
	"github.com/wfunc/lobbyserver/network"
)

// DefaultBuffer is how many undelivered events a subscriber may lag behind
// before it is dropped.
const DefaultBuffer = 64

// Metrics is what the bus reports. monitor.Monitor satisfies it.
type Metrics interface {
	SubscriberAdded()
	SubscriberRemoved()
	EventPublished()
	SubscriberDropped()
}

type noopMetrics struct{}

func (noopMetrics) SubscriberAdded()   {}
func (noopMetrics) SubscriberRemoved() {}
func (noopMetrics) EventPublished()    {}
func (noopMetrics) SubscriberDropped() {}

// Subscriber is one observer's view of the bus: an ordered, buffered stream
// of every event published after it subscribed.
type Subscriber struct {
	ID        string
	CreatedAt time.Time
	events    chan network.Event
	done      chan struct{}
	closeOnce sync.Once
}

// Events delivers published events in publish order. It is closed when the
// subscriber is removed or dropped.
func (s *Subscriber) Events() <-chan network.Event {
	return s.events
}

// Done is closed once the subscriber has been removed from the bus.
func (s *Subscriber) Done() <-chan struct{} {
	return s.done
}

func (s *Subscriber) close() {
	s.closeOnce.Do(func() {
		close(s.done)
		close(s.events)
	})
}

// Bus fans every published event out to all current subscribers.
type Bus struct {
	mu          sync.RWMutex
	subscribers map[string]*Subscriber
	buffer      int
	metrics     Metrics
}

func NewBus(buffer int, metrics Metrics) *Bus {
	if buffer <= 0 {
		buffer = DefaultBuffer
	}
	if metrics == nil {
		metrics = noopMetrics{}
	}
	return &Bus{
		subscribers: make(map[string]*Subscriber),
		buffer:      buffer,
		metrics:     metrics,
	}
}

func (b *Bus) Subscribe() *Subscriber {
	s := &Subscriber{
		ID:        uuid.NewString(),
		CreatedAt: time.Now(),
		events:    make(chan network.Event, b.buffer),
		done:      make(chan struct{}),
	}

	b.mu.Lock()
	b.subscribers[s.ID] = s
	b.mu.Unlock()

	b.metrics.SubscriberAdded()
	return s
}

// Unsubscribe removes s. Calling it twice, or after s was dropped, is a no-op.
func (b *Bus) Unsubscribe(s *Subscriber) {
	b.mu.Lock()
	_, ok := b.subscribers[s.ID]
	delete(b.subscribers, s.ID)
	b.mu.Unlock()

	if ok {
		s.close()
		b.metrics.SubscriberRemoved()
	}
}

// Len reports the number of current subscribers.
func (b *Bus) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subscribers)
}

// Publish delivers ev to every subscriber without blocking. A subscriber
// whose buffer is full is dropped so one slow observer cannot stall the rest.
func (b *Bus) Publish(ev network.Event) {
	var slow []*Subscriber

	b.mu.Lock()
	for id, s := range b.subscribers {
		select {
		case s.events <- ev:
		default:
			delete(b.subscribers, id)
			slow = append(slow, s)
		}
	}
	b.mu.Unlock()

	b.metrics.EventPublished()
	for _, s := range slow {
		logger.Log.Warnw("dropping slow subscriber", "subscriber", s.ID, "event", ev.Type)
		s.close()
		b.metrics.SubscriberDropped()
		b.metrics.SubscriberRemoved()
	}
}

// Close drops every subscriber.
func (b *Bus) Close() {
	b.mu.Lock()
	subs := b.subscribers
	b.subscribers = make(map[string]*Subscriber)
	b.mu.Unlock()

	for _, s := range subs {
		s.close()
		b.metrics.SubscriberRemoved()
	}
}

// Attach pumps events to conn until the peer goes away, ctx is cancelled,
// the subscriber is dropped or a send fails. The subscription is always
// released before Attach returns.
func (b *Bus) Attach(ctx context.Context, conn network.Connection) error {
	s := b.Subscribe()
	defer b.Unsubscribe(s)

	logger.Log.Debugw("observer attached", "subscriber", s.ID, "remote", conn.RemoteAddr())
	defer logger.Log.Debugw("observer detached", "subscriber", s.ID, "remote", conn.RemoteAddr())

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-conn.Closed():
			return nil
		case ev, ok := <-s.Events():
			if !ok {
				return nil
			}
			if err := conn.Send(ev); err != nil {
				return err
			}
		}
	}
}
