// lobby/lobby.go
package lobby

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/wfunc/lobbyserver/config"
	"github.com/wfunc/lobbyserver/logger"
	"github.com/wfunc/lobbyserver/models"
	"github.com/wfunc/lobbyserver/network"
	"github.com/wfunc/lobbyserver/persistence"
	"github.com/wfunc/lobbyserver/state"
	"github.com/wfunc/lobbyserver/timer"
)

// Orchestrator owns the single current session. Every transition, whether
// requested by a caller or fired by a countdown, runs under mu, writes the
// ledger, and only then publishes its event.
type Orchestrator struct {
	mu        sync.Mutex
	cfg       config.GameConfig
	ledger    persistence.Ledger
	bus       Broadcaster
	scheduler Scheduler
	machine   *state.Machine
	metrics   Metrics
	draw      func() int
	now       func() time.Time

	// session is the open session, or the just-resolved one during cooldown.
	session      *models.Session
	participants []models.ParticipantView // active only
	remaining    int

	snapshot atomic.Pointer[Snapshot]
}

type Option func(*Orchestrator)

func WithMetrics(m Metrics) Option {
	return func(o *Orchestrator) { o.metrics = m }
}

// WithDraw replaces the winning number source used when a round times out.
func WithDraw(draw func() int) Option {
	return func(o *Orchestrator) { o.draw = draw }
}

func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) { o.now = now }
}

func New(cfg config.GameConfig, ledger persistence.Ledger, bus Broadcaster, scheduler Scheduler, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		cfg:       cfg,
		ledger:    ledger,
		bus:       bus,
		scheduler: scheduler,
		machine:   state.NewLobbyMachine(),
		metrics:   noopMetrics{},
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.draw == nil {
		seed, err := NewSeed()
		if err != nil {
			seed = time.Now().UnixNano()
		}
		o.draw = NewDraw(seed)
	}

	for _, phase := range []state.Phase{state.Idle, state.Open, state.Resolving, state.Cooldown} {
		phase := phase
		o.machine.OnEnter(phase, func(from state.Phase) {
			o.metrics.SetPhase(phase.Ordinal())
			logger.Log.Debugw("lobby phase changed", "from", from, "to", phase)
		})
	}
	o.metrics.SetPhase(state.Idle.Ordinal())
	o.storeSnapshot()
	return o
}

// Phase is the current state machine phase.
func (o *Orchestrator) Phase() state.Phase {
	return o.machine.GetCurrentState()
}

// Start opens a new session started by starterID.
func (o *Orchestrator) Start(ctx context.Context, starterID int64) (*models.Session, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	switch o.machine.GetCurrentState() {
	case state.Open, state.Resolving:
		return nil, o.reject("start", ErrSessionAlreadyActive)
	case state.Cooldown:
		return nil, o.reject("start", ErrCoolingDown)
	}

	var session *models.Session
	err := o.write(ctx, func(l persistence.Ledger) error {
		// Another process sharing the ledger may have opened one.
		if _, err := l.GetOpenSession(ctx); err == nil {
			return ErrSessionAlreadyActive
		} else if !errors.Is(err, persistence.ErrRecordNotFound) {
			return err
		}
		var err error
		session, err = l.CreateSession(ctx, starterID, o.now())
		return err
	})
	if err != nil {
		if errors.Is(err, ErrSessionAlreadyActive) {
			return nil, o.reject("start", err)
		}
		return nil, o.reject("start", ledgerError("start", err))
	}

	o.open(session, nil, timer.Steps(o.cfg.RoundDuration, o.cfg.TickInterval))
	o.publish(network.SessionStarted{
		Session:      session.Clone(),
		Participants: []string{},
		Duration:     o.remaining,
	})
	o.startRound(session.ID, o.cfg.RoundDuration)
	o.commit("start")

	logger.Log.Infow("session started", "session_id", session.ID, "started_by", starterID)
	return session.Clone(), nil
}

// Join adds userID to the open session.
func (o *Orchestrator) Join(ctx context.Context, userID int64) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.machine.GetCurrentState() != state.Open {
		return o.reject("join", ErrNoActiveSession)
	}
	id := o.session.ID

	var active []models.ParticipantView
	err := o.write(ctx, func(l persistence.Ledger) error {
		all, err := l.ListParticipants(ctx, id, false)
		if err != nil {
			return err
		}
		for _, p := range all {
			if p.UserID == userID {
				return ErrAlreadyJoined
			}
		}
		n, err := l.CountActiveParticipants(ctx, id)
		if err != nil {
			return err
		}
		if n >= o.cfg.ParticipantCap {
			return ErrSessionFull
		}
		if err := l.AddParticipant(ctx, id, userID, o.now()); err != nil {
			return err
		}
		active, err = l.ListParticipants(ctx, id, true)
		return err
	})
	if err != nil {
		if errors.Is(err, ErrAlreadyJoined) || errors.Is(err, ErrSessionFull) {
			return o.reject("join", err)
		}
		return o.reject("join", ledgerError("join", err))
	}

	o.participants = active
	o.publish(network.UserJoined{SessionID: id, UserID: userID, Participants: usernames(active)})
	o.commit("join")
	return nil
}

// Leave marks userID as having left the open session. A user who left cannot
// join the same session again.
func (o *Orchestrator) Leave(ctx context.Context, userID int64) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.machine.GetCurrentState() != state.Open {
		return o.reject("leave", ErrNoActiveSession)
	}
	id := o.session.ID

	var active []models.ParticipantView
	err := o.write(ctx, func(l persistence.Ledger) error {
		if err := l.MarkLeft(ctx, id, userID, o.now()); err != nil {
			return err
		}
		var err error
		active, err = l.ListParticipants(ctx, id, true)
		return err
	})
	if err != nil {
		if errors.Is(err, persistence.ErrRecordNotFound) {
			return o.reject("leave", ErrNotInSession)
		}
		return o.reject("leave", ledgerError("leave", err))
	}

	o.participants = active
	o.publish(network.UserLeft{SessionID: id, UserID: userID, Participants: usernames(active)})
	o.commit("leave")
	return nil
}

// Pick records n as userID's pick, replacing any earlier one.
func (o *Orchestrator) Pick(ctx context.Context, userID int64, n int) error {
	if !models.ValidPick(n) {
		return o.reject("pick", ErrInvalidNumber)
	}

	o.mu.Lock()
	defer o.mu.Unlock()

	if o.machine.GetCurrentState() != state.Open {
		return o.reject("pick", ErrNoActiveSession)
	}
	id := o.session.ID

	var active []models.ParticipantView
	err := o.write(ctx, func(l persistence.Ledger) error {
		if err := l.SetPick(ctx, id, userID, n); err != nil {
			return err
		}
		var err error
		active, err = l.ListParticipants(ctx, id, true)
		return err
	})
	if err != nil {
		if errors.Is(err, persistence.ErrRecordNotFound) {
			return o.reject("pick", ErrNotInSession)
		}
		return o.reject("pick", ledgerError("pick", err))
	}

	o.participants = active
	o.publish(network.NumberPicked{
		SessionID:    id,
		UserID:       userID,
		PickedNumber: n,
		Participants: pickViews(active),
	})
	o.commit("pick")
	return nil
}

// ForceEnd resolves the open session now with winningNumber.
func (o *Orchestrator) ForceEnd(ctx context.Context, winningNumber int) (*network.SessionEnded, error) {
	if !models.ValidPick(winningNumber) {
		return nil, o.reject("force_end", ErrInvalidNumber)
	}

	o.mu.Lock()
	defer o.mu.Unlock()

	if o.machine.GetCurrentState() != state.Open {
		return nil, o.reject("force_end", ErrNoActiveSession)
	}
	ended, err := o.resolve(ctx, o.session.ID, winningNumber)
	if err != nil {
		if errors.Is(err, errStaleSession) {
			return nil, o.reject("force_end", ErrNoActiveSession)
		}
		return nil, o.reject("force_end", ledgerError("force_end", err))
	}
	return ended, nil
}

// Close stops every countdown. Pending callbacks never run afterwards.
func (o *Orchestrator) Close() {
	o.scheduler.Stop()
}

// resolve closes session id with winningNumber, credits the winners and
// enters cooldown. A session that is no longer open returns errStaleSession
// and sends the machine back to idle without publishing anything.
// Callers hold mu and have checked the phase is Open.
func (o *Orchestrator) resolve(ctx context.Context, id int64, winningNumber int) (*network.SessionEnded, error) {
	endTime := o.now()
	ended := &network.SessionEnded{SessionID: id, WinningNumber: winningNumber}

	err := o.write(ctx, func(l persistence.Ledger) error {
		open, err := l.GetOpenSession(ctx)
		if errors.Is(err, persistence.ErrRecordNotFound) {
			return errStaleSession
		}
		if err != nil {
			return err
		}
		if open.ID != id {
			return errStaleSession
		}

		closed, err := l.CloseSession(ctx, id, winningNumber, endTime)
		if err != nil {
			return err
		}
		if !closed {
			return errStaleSession
		}
		if err := l.MarkWinners(ctx, id, winningNumber); err != nil {
			return err
		}

		all, err := l.ListParticipants(ctx, id, false)
		if err != nil {
			return err
		}
		ended.Winners = []string{}
		ended.Participants = make([]string, 0, len(all))
		for _, p := range all {
			ended.Participants = append(ended.Participants, p.Username)
			if p.IsWinner {
				ended.Winners = append(ended.Winners, p.Username)
				if err := l.IncrementWins(ctx, p.Username); err != nil {
					return err
				}
			}
		}
		return nil
	})

	if errors.Is(err, errStaleSession) {
		logger.Log.Warnw("session was closed elsewhere, returning to idle", "session_id", id)
		o.scheduler.Cancel(timer.Round)
		o.enter(state.Idle)
		o.clear()
		o.commit("abandon")
		return nil, err
	}
	if err != nil {
		return nil, err
	}

	o.enter(state.Resolving)
	o.scheduler.Cancel(timer.Round)
	o.session.EndTime = &endTime
	o.session.WinningNumber = models.IntPtr(winningNumber)
	o.participants = nil
	o.publish(*ended)

	o.enter(state.Cooldown)
	o.remaining = timer.Steps(o.cfg.CooldownDuration, o.cfg.TickInterval)
	o.scheduler.Start(timer.Cooldown, o.cfg.CooldownDuration, o.cfg.TickInterval,
		o.onCooldownTick(id), o.onCooldownExpire(id))
	o.commit("resolve")

	logger.Log.Infow("session resolved",
		"session_id", id, "winning_number", winningNumber, "winners", ended.Winners)
	return ended, nil
}

func (o *Orchestrator) startRound(id int64, total time.Duration) {
	o.scheduler.Start(timer.Round, total, o.cfg.TickInterval, o.onRoundTick(id), o.onRoundExpire(id))
}

func (o *Orchestrator) onRoundTick(id int64) func(int) {
	return func(remaining int) {
		o.mu.Lock()
		defer o.mu.Unlock()
		if !o.current(id, state.Open) {
			return
		}
		o.remaining = remaining
		o.publish(network.TimerUpdate{SessionID: id, SecondsRemaining: remaining})
		o.storeSnapshot()
	}
}

func (o *Orchestrator) onRoundExpire(id int64) func() {
	return func() {
		o.mu.Lock()
		defer o.mu.Unlock()
		if !o.current(id, state.Open) {
			return
		}
		if _, err := o.resolve(context.Background(), id, o.draw()); err != nil && !errors.Is(err, errStaleSession) {
			// The round stays open as it was; try again one tick later.
			logger.Log.Errorw("failed to resolve expired session, retrying",
				"session_id", id, "retry_in", o.cfg.TickInterval, "error", err)
			o.metrics.Rejected(reason(ErrLedgerUnavailable))
			o.startRound(id, o.cfg.TickInterval)
		}
	}
}

func (o *Orchestrator) onCooldownTick(id int64) func(int) {
	return func(remaining int) {
		o.mu.Lock()
		defer o.mu.Unlock()
		if !o.current(id, state.Cooldown) {
			return
		}
		o.remaining = remaining
		o.publish(network.PrepTimerUpdate{SecondsRemaining: remaining})
		o.storeSnapshot()
	}
}

func (o *Orchestrator) onCooldownExpire(id int64) func() {
	return func() {
		o.mu.Lock()
		defer o.mu.Unlock()
		if !o.current(id, state.Cooldown) {
			return
		}
		o.enter(state.Idle)
		o.clear()
		o.publish(network.PrepTimerDone{})
		o.commit("cooldown_done")
		logger.Log.Infow("ready for the next session", "previous_session_id", id)
	}
}

// current is the stale-callback guard: the countdown for session id only
// acts while that session is still the current one in the expected phase.
func (o *Orchestrator) current(id int64, phase state.Phase) bool {
	return o.session != nil && o.session.ID == id && o.machine.GetCurrentState() == phase
}

func (o *Orchestrator) open(session *models.Session, active []models.ParticipantView, remaining int) {
	o.enter(state.Open)
	o.session = session.Clone()
	o.participants = active
	o.remaining = remaining
}

// enter moves the machine to phase. Callers only take registered edges, so a
// refusal means the in-memory phase has drifted from the ledger.
func (o *Orchestrator) enter(phase state.Phase) {
	from := o.machine.GetCurrentState()
	if err := o.machine.ChangeState(phase); err != nil {
		o.metrics.Rejected("invalid_transition")
		logger.Log.DPanicw("lobby phase change refused",
			"from", from, "to", phase, "error", err)
	}
}

func (o *Orchestrator) clear() {
	o.session = nil
	o.participants = nil
	o.remaining = 0
}

// write runs fn in one ledger transaction and records its latency.
func (o *Orchestrator) write(ctx context.Context, fn func(l persistence.Ledger) error) error {
	start := time.Now()
	err := o.ledger.InTx(ctx, fn)
	o.metrics.ObserveLedger(time.Since(start))
	return err
}

func (o *Orchestrator) publish(payload any) {
	o.bus.Publish(network.NewEvent(payload, o.now()))
}

func (o *Orchestrator) commit(transition string) {
	o.metrics.Transition(transition)
	o.storeSnapshot()
}

func (o *Orchestrator) reject(op string, err error) error {
	o.metrics.Rejected(reason(err))
	if errors.Is(err, ErrLedgerUnavailable) {
		logger.Log.Errorw("lobby transition failed", "op", op, "error", err)
	} else {
		logger.Log.Debugw("lobby transition rejected", "op", op, "error", err)
	}
	return err
}

func usernames(ps []models.ParticipantView) []string {
	names := make([]string, 0, len(ps))
	for _, p := range ps {
		names = append(names, p.Username)
	}
	return names
}

func pickViews(ps []models.ParticipantView) []network.PickView {
	views := make([]network.PickView, 0, len(ps))
	for _, p := range ps {
		v := network.PickView{Username: p.Username}
		if p.PickedNumber != nil {
			v.PickedNumber = models.IntPtr(*p.PickedNumber)
		}
		views = append(views, v)
	}
	return views
}
