package lobby

import (
	"time"

	"github.com/wfunc/lobbyserver/network"
	"github.com/wfunc/lobbyserver/timer"
)

// Broadcaster receives every committed event. broadcast.Bus satisfies it;
// Publish must not block.
type Broadcaster interface {
	Publish(ev network.Event)
}

// Scheduler drives the round and cooldown countdowns. timer.Scheduler
// satisfies it.
type Scheduler interface {
	Start(kind timer.Kind, total, tick time.Duration, onTick func(remaining int), onExpire func())
	Cancel(kind timer.Kind)
	Stop()
}

// Metrics is what the orchestrator reports. monitor.Monitor satisfies it.
type Metrics interface {
	Transition(name string)
	Rejected(reason string)
	SetPhase(ordinal int)
	ObserveLedger(d time.Duration)
}

type noopMetrics struct{}

func (noopMetrics) Transition(string)           {}
func (noopMetrics) Rejected(string)             {}
func (noopMetrics) SetPhase(int)                {}
func (noopMetrics) ObserveLedger(time.Duration) {}
