package state

import (
	"errors"
	"sync"
)

// Phase is one state of the lobby state machine.
type Phase string

const (
	// Idle: no open session, a new one may start.
	Idle Phase = "idle"
	// Open: accepting joins and picks while the round countdown runs.
	Open Phase = "open"
	// Resolving: the round is being closed; never observable from outside.
	Resolving Phase = "resolving"
	// Cooldown: pause after a resolved round before the next may start.
	Cooldown Phase = "cooldown"
)

// Ordinal maps a phase onto a small integer for metrics.
func (p Phase) Ordinal() int {
	switch p {
	case Open:
		return 1
	case Resolving:
		return 2
	case Cooldown:
		return 3
	}
	return 0
}

// ErrTransitionNotAllowed is returned when a state transition is not allowed.
var ErrTransitionNotAllowed = errors.New("state transition not allowed")

// Machine only moves along registered transitions. Each transition may carry
// a condition that must hold at the time of the change.
type Machine struct {
	current     Phase
	transitions map[Phase]map[Phase]func() bool // fromState -> toState -> condition
	onEnter     map[Phase][]func(from Phase)
	mutex       sync.RWMutex
}

func NewMachine(initial Phase) *Machine {
	return &Machine{
		current:     initial,
		transitions: make(map[Phase]map[Phase]func() bool),
		onEnter:     make(map[Phase][]func(from Phase)),
	}
}

// NewLobbyMachine wires the round lifecycle:
// idle -> open -> resolving -> cooldown -> idle. open -> idle covers a
// session that was closed behind the orchestrator's back.
func NewLobbyMachine() *Machine {
	m := NewMachine(Idle)
	m.AddTransition(Idle, Open, nil)
	m.AddTransition(Open, Resolving, nil)
	m.AddTransition(Open, Idle, nil)
	m.AddTransition(Resolving, Cooldown, nil)
	m.AddTransition(Cooldown, Idle, nil)
	return m
}

func (m *Machine) AddTransition(from, to Phase, condition func() bool) {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	if _, exists := m.transitions[from]; !exists {
		m.transitions[from] = make(map[Phase]func() bool)
	}
	m.transitions[from][to] = condition
}

// OnEnter registers fn to run after every change into phase. Hooks run
// outside the machine's lock.
func (m *Machine) OnEnter(phase Phase, fn func(from Phase)) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.onEnter[phase] = append(m.onEnter[phase], fn)
}

func (m *Machine) ChangeState(to Phase) error {
	m.mutex.Lock()
	from := m.current
	conditions, exists := m.transitions[from]
	if !exists {
		m.mutex.Unlock()
		return ErrTransitionNotAllowed
	}
	condition, exists := conditions[to]
	if !exists || (condition != nil && !condition()) {
		m.mutex.Unlock()
		return ErrTransitionNotAllowed
	}
	m.current = to
	hooks := append([]func(Phase){}, m.onEnter[to]...)
	m.mutex.Unlock()

	for _, fn := range hooks {
		fn(from)
	}
	return nil
}

// CanChange reports whether ChangeState(to) would currently succeed.
func (m *Machine) CanChange(to Phase) bool {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	condition, exists := m.transitions[m.current][to]
	return exists && (condition == nil || condition())
}

func (m *Machine) GetCurrentState() Phase {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	return m.current
}
