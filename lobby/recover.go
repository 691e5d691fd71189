package lobby

import (
	"context"
	"errors"

	"github.com/wfunc/lobbyserver/logger"
	"github.com/wfunc/lobbyserver/network"
	"github.com/wfunc/lobbyserver/persistence"
	"github.com/wfunc/lobbyserver/state"
	"github.com/wfunc/lobbyserver/timer"
)

// Recover adopts a session the ledger still holds open after a restart.
// Countdowns do not survive a restart: a session younger than the round
// duration resumes with what is left of it, an older one is resolved now
// with a random draw.
func (o *Orchestrator) Recover(ctx context.Context) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.machine.GetCurrentState() != state.Idle {
		return nil
	}

	session, err := o.ledger.GetOpenSession(ctx)
	if errors.Is(err, persistence.ErrRecordNotFound) {
		return nil
	}
	if err != nil {
		return ledgerError("recover", err)
	}
	active, err := o.ledger.ListParticipants(ctx, session.ID, true)
	if err != nil {
		return ledgerError("recover", err)
	}

	left := o.cfg.RoundDuration - o.now().Sub(session.StartTime)
	o.open(session, active, timer.Steps(left, o.cfg.TickInterval))

	if left <= 0 {
		logger.Log.Infow("closing session left open by a previous run", "session_id", session.ID)
		if _, err := o.resolve(ctx, session.ID, o.draw()); err != nil {
			if errors.Is(err, errStaleSession) {
				return nil
			}
			o.enter(state.Idle)
			o.clear()
			o.storeSnapshot()
			return ledgerError("recover", err)
		}
		return nil
	}

	logger.Log.Infow("resuming session left open by a previous run",
		"session_id", session.ID, "remaining", left)
	o.publish(network.SessionStarted{
		Session:      session.Clone(),
		Participants: usernames(active),
		Duration:     o.remaining,
	})
	o.startRound(session.ID, left)
	o.commit("recover")
	return nil
}
