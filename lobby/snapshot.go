package lobby

import (
	"github.com/wfunc/lobbyserver/models"
	"github.com/wfunc/lobbyserver/state"
)

// Snapshot is a read-only copy of the lobby taken after a committed
// transition. It never shares memory with the orchestrator.
type Snapshot struct {
	Phase            state.Phase              `json:"phase"`
	Active           bool                     `json:"active"`
	Session          *models.Session          `json:"session,omitempty"`
	Participants     []models.ParticipantView `json:"participants"`
	SecondsRemaining int                      `json:"seconds_remaining"`
}

// Current returns a private copy of the latest snapshot without taking the
// transition lock.
func (o *Orchestrator) Current() *Snapshot {
	return o.snapshot.Load().clone()
}

func (s *Snapshot) clone() *Snapshot {
	if s == nil {
		return nil
	}
	c := *s
	c.Session = s.Session.Clone()
	c.Participants = cloneParticipants(s.Participants)
	return &c
}

func cloneParticipants(in []models.ParticipantView) []models.ParticipantView {
	out := make([]models.ParticipantView, 0, len(in))
	for _, p := range in {
		if p.PickedNumber != nil {
			p.PickedNumber = models.IntPtr(*p.PickedNumber)
		}
		out = append(out, p)
	}
	return out
}

// storeSnapshot publishes the current aggregate. Callers hold mu.
func (o *Orchestrator) storeSnapshot() {
	phase := o.machine.GetCurrentState()
	o.snapshot.Store(&Snapshot{
		Phase:            phase,
		Active:           phase == state.Open,
		Session:          o.session.Clone(),
		Participants:     cloneParticipants(o.participants),
		SecondsRemaining: o.remaining,
	})
}
