package timer

import (
	"sync"
	"time"
)

// Kind names one of the independent countdowns the scheduler owns.
type Kind int

const (
	Round Kind = iota
	Cooldown
)

func (k Kind) String() string {
	switch k {
	case Round:
		return "round"
	case Cooldown:
		return "cooldown"
	}
	return "unknown"
}

type countdown struct {
	gen      uint64
	tickID   int64
	expireID int64
}

// Scheduler drives deadline+tick countdowns on a TimerManager. Starting a
// countdown of a kind cancels the previous one of that kind, and callbacks of
// a cancelled countdown never run.
type Scheduler struct {
	manager *TimerManager
	mu      sync.Mutex
	gen     uint64
	active  map[Kind]*countdown
}

func NewScheduler(manager *TimerManager) *Scheduler {
	return &Scheduler{
		manager: manager,
		active:  make(map[Kind]*countdown),
	}
}

// Steps is the number of whole ticks in total, rounded up.
func Steps(total, tick time.Duration) int {
	if tick <= 0 {
		return 0
	}
	return int((total + tick - 1) / tick)
}

// Start begins a countdown of total length. onTick receives the number of
// ticks still remaining after each elapsed tick and is skipped once that
// reaches zero; onExpire runs exactly once at the deadline.
func (s *Scheduler) Start(kind Kind, total, tick time.Duration, onTick func(remaining int), onExpire func()) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.cancelLocked(kind)

	s.gen++
	c := &countdown{gen: s.gen}
	steps := Steps(total, tick)
	elapsed := 0

	c.tickID = s.manager.AddTimer(tick, tick, func() {
		if !s.current(kind, c.gen) {
			return
		}
		elapsed++
		if remaining := steps - elapsed; remaining > 0 && onTick != nil {
			onTick(remaining)
		}
	})
	c.expireID = s.manager.AddTimer(total, 0, func() {
		if !s.finish(kind, c.gen) {
			return
		}
		onExpire()
	})

	s.active[kind] = c
}

// Cancel stops the countdown of kind, if any.
func (s *Scheduler) Cancel(kind Kind) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cancelLocked(kind)
}

// Active reports whether a countdown of kind is running.
func (s *Scheduler) Active(kind Kind) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.active[kind]
	return ok
}

// Stop cancels everything and shuts the underlying manager down.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	for kind := range s.active {
		s.cancelLocked(kind)
	}
	s.mu.Unlock()
	s.manager.Stop()
}

func (s *Scheduler) cancelLocked(kind Kind) {
	c, ok := s.active[kind]
	if !ok {
		return
	}
	s.manager.RemoveTimer(c.tickID)
	s.manager.RemoveTimer(c.expireID)
	delete(s.active, kind)
}

func (s *Scheduler) current(kind Kind, gen uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.active[kind]
	return ok && c.gen == gen
}

// finish retires the countdown if it is still the current one.
func (s *Scheduler) finish(kind Kind, gen uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.active[kind]
	if !ok || c.gen != gen {
		return false
	}
	s.manager.RemoveTimer(c.tickID)
	delete(s.active, kind)
	return true
}
