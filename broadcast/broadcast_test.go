package broadcast

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/wfunc/lobbyserver/network"
)

// MockConnection is a test double for the network.Connection interface.
type MockConnection struct {
	mu      sync.Mutex
	sent    []network.Event
	closed  chan struct{}
	sendErr error
}

func newMockConnection() *MockConnection {
	return &MockConnection{closed: make(chan struct{})}
}

func (m *MockConnection) Send(e network.Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.sendErr != nil {
		return m.sendErr
	}
	m.sent = append(m.sent, e)
	return nil
}
func (m *MockConnection) Closed() <-chan struct{} { return m.closed }
func (m *MockConnection) Close() error            { return nil }
func (m *MockConnection) RemoteAddr() string      { return "mock" }

func (m *MockConnection) Sent() []network.Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]network.Event(nil), m.sent...)
}

type countingMetrics struct {
	mu                           sync.Mutex
	added, removed, pub, dropped int
}

func (c *countingMetrics) SubscriberAdded()   { c.mu.Lock(); c.added++; c.mu.Unlock() }
func (c *countingMetrics) SubscriberRemoved() { c.mu.Lock(); c.removed++; c.mu.Unlock() }
func (c *countingMetrics) EventPublished()    { c.mu.Lock(); c.pub++; c.mu.Unlock() }
func (c *countingMetrics) SubscriberDropped() { c.mu.Lock(); c.dropped++; c.mu.Unlock() }

func tick(n int) network.Event {
	return network.NewEvent(network.TimerUpdate{SessionID: 1, SecondsRemaining: n}, time.Now())
}

func TestBus_FanOutInOrder(t *testing.T) {
	bus := NewBus(16, nil)
	a := bus.Subscribe()
	b := bus.Subscribe()

	for i := 5; i > 0; i-- {
		bus.Publish(tick(i))
	}

	for _, s := range []*Subscriber{a, b} {
		for want := 5; want > 0; want-- {
			ev := <-s.Events()
			got := ev.Payload.(network.TimerUpdate).SecondsRemaining
			if got != want {
				t.Fatalf("Expected tick %d, got %d", want, got)
			}
		}
	}
}

func TestBus_LateSubscriberSeesOnlyNewEvents(t *testing.T) {
	bus := NewBus(4, nil)
	bus.Publish(tick(9))

	s := bus.Subscribe()
	bus.Publish(tick(8))

	ev := <-s.Events()
	if got := ev.Payload.(network.TimerUpdate).SecondsRemaining; got != 8 {
		t.Errorf("Expected only the event published after subscribing, got tick %d", got)
	}
}

func TestBus_DropsSlowSubscriber(t *testing.T) {
	metrics := &countingMetrics{}
	bus := NewBus(2, metrics)
	slow := bus.Subscribe()
	fast := bus.Subscribe()

	// fast keeps up by draining after every publish; slow never reads.
	for i := 0; i < 3; i++ {
		bus.Publish(tick(i))
		select {
		case <-fast.Events():
		case <-time.After(time.Second):
			t.Fatalf("Expected fast subscriber to receive event %d", i)
		}
	}

	select {
	case <-slow.Done():
	case <-time.After(time.Second):
		t.Fatal("Expected slow subscriber to be dropped")
	}
	if bus.Len() != 1 {
		t.Errorf("Expected 1 remaining subscriber, got %d", bus.Len())
	}
	select {
	case <-fast.Done():
		t.Error("Expected fast subscriber to stay connected")
	default:
	}
	if metrics.dropped != 1 {
		t.Errorf("Expected 1 dropped subscriber, got %d", metrics.dropped)
	}

	// Buffered events are still readable before the channel reports closed.
	n := 0
	for range slow.Events() {
		n++
	}
	if n != 2 {
		t.Errorf("Expected 2 buffered events on the dropped subscriber, got %d", n)
	}
}

func TestBus_UnsubscribeTwice(t *testing.T) {
	metrics := &countingMetrics{}
	bus := NewBus(1, metrics)
	s := bus.Subscribe()

	bus.Unsubscribe(s)
	bus.Unsubscribe(s)

	if metrics.added != 1 || metrics.removed != 1 {
		t.Errorf("Expected 1 add and 1 remove, got %d and %d", metrics.added, metrics.removed)
	}
	if _, ok := <-s.Events(); ok {
		t.Error("Expected events channel to be closed")
	}
}

func TestBus_AttachDeliversUntilPeerCloses(t *testing.T) {
	bus := NewBus(8, nil)
	conn := newMockConnection()

	done := make(chan error, 1)
	go func() { done <- bus.Attach(context.Background(), conn) }()

	waitFor(t, func() bool { return bus.Len() == 1 })
	bus.Publish(tick(3))
	bus.Publish(tick(2))
	waitFor(t, func() bool { return len(conn.Sent()) == 2 })

	close(conn.closed)
	if err := <-done; err != nil {
		t.Errorf("Expected nil error when the peer leaves, got %v", err)
	}
	if bus.Len() != 0 {
		t.Errorf("Expected subscription released after Attach returned, got %d", bus.Len())
	}
}

func TestBus_AttachStopsOnContextAndSendError(t *testing.T) {
	bus := NewBus(8, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- bus.Attach(ctx, newMockConnection()) }()
	waitFor(t, func() bool { return bus.Len() == 1 })
	cancel()
	if err := <-done; !errors.Is(err, context.Canceled) {
		t.Errorf("Expected context.Canceled, got %v", err)
	}

	broken := newMockConnection()
	broken.sendErr = errors.New("broken pipe")
	go func() { done <- bus.Attach(context.Background(), broken) }()
	waitFor(t, func() bool { return bus.Len() == 1 })
	bus.Publish(tick(1))
	if err := <-done; err == nil || err.Error() != "broken pipe" {
		t.Errorf("Expected the send error, got %v", err)
	}
	if bus.Len() != 0 {
		t.Errorf("Expected no subscribers left, got %d", bus.Len())
	}
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("condition not met in time")
		}
		time.Sleep(time.Millisecond)
	}
}
