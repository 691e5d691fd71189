package timer

import (
	"sync"
	"testing"
	"time"
)

const testResolution = time.Millisecond

func TestTimerManager_OneShot(t *testing.T) {
	m := NewTimerManager(testResolution)
	defer m.Stop()

	fired := make(chan struct{}, 1)
	m.AddTimer(5*time.Millisecond, 0, func() { fired <- struct{}{} })

	select {
	case <-fired:
	case <-time.After(time.Second):
		t.Fatal("Expected one-shot timer to fire")
	}
	if n := m.Pending(); n != 0 {
		t.Errorf("Expected no pending timers after a one-shot fired, got %d", n)
	}
}

func TestTimerManager_RemoveTimer(t *testing.T) {
	m := NewTimerManager(testResolution)
	defer m.Stop()

	fired := make(chan struct{}, 1)
	id := m.AddTimer(20*time.Millisecond, 0, func() { fired <- struct{}{} })
	m.RemoveTimer(id)
	m.RemoveTimer(id)

	select {
	case <-fired:
		t.Fatal("Removed timer should not fire")
	case <-time.After(60 * time.Millisecond):
	}
}

func TestTimerManager_OrderAndRepeat(t *testing.T) {
	m := NewTimerManager(testResolution)
	defer m.Stop()

	var (
		mu    sync.Mutex
		order []string
	)
	record := func(s string) func() {
		return func() {
			mu.Lock()
			order = append(order, s)
			mu.Unlock()
		}
	}

	repeat := m.AddTimer(10*time.Millisecond, 10*time.Millisecond, record("tick"))
	m.AddTimer(35*time.Millisecond, 0, record("done"))

	time.Sleep(60 * time.Millisecond)
	m.RemoveTimer(repeat)

	mu.Lock()
	defer mu.Unlock()
	ticks := 0
	doneAt := -1
	for i, s := range order {
		switch s {
		case "tick":
			ticks++
		case "done":
			doneAt = i
		}
	}
	if ticks < 3 {
		t.Errorf("Expected at least 3 ticks, got %d (%v)", ticks, order)
	}
	if doneAt < 3 {
		t.Errorf("Expected done after the first three ticks, got %v", order)
	}
}

func TestSteps(t *testing.T) {
	tests := []struct {
		total, tick time.Duration
		want        int
	}{
		{20 * time.Second, time.Second, 20},
		{1500 * time.Millisecond, time.Second, 2},
		{time.Second, 0, 0},
	}
	for _, tt := range tests {
		if got := Steps(tt.total, tt.tick); got != tt.want {
			t.Errorf("Steps(%v, %v): expected %d, got %d", tt.total, tt.tick, tt.want, got)
		}
	}
}
