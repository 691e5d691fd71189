package lobby

import (
	"errors"
	"fmt"
)

// Rejections returned by the orchestrator.
var (
	ErrSessionAlreadyActive = errors.New("a session is already active")
	ErrCoolingDown          = errors.New("waiting for the next session")
	ErrNoActiveSession      = errors.New("no active session")
	ErrAlreadyJoined        = errors.New("user already in session")
	ErrSessionFull          = errors.New("session is full")
	ErrNotInSession         = errors.New("user not in session")
	ErrInvalidNumber        = errors.New("number must be between 1 and 9")
	ErrLedgerUnavailable    = errors.New("ledger unavailable")
)

// errStaleSession aborts a resolution whose session was already closed.
var errStaleSession = errors.New("session already closed")

func ledgerError(op string, err error) error {
	return fmt.Errorf("%s: %w: %w", op, ErrLedgerUnavailable, err)
}

// reason is the metrics label for a rejected transition.
func reason(err error) string {
	switch {
	case errors.Is(err, ErrSessionAlreadyActive):
		return "session_already_active"
	case errors.Is(err, ErrCoolingDown):
		return "cooling_down"
	case errors.Is(err, ErrNoActiveSession):
		return "no_active_session"
	case errors.Is(err, ErrAlreadyJoined):
		return "already_joined"
	case errors.Is(err, ErrSessionFull):
		return "session_full"
	case errors.Is(err, ErrNotInSession):
		return "not_in_session"
	case errors.Is(err, ErrInvalidNumber):
		return "invalid_number"
	case errors.Is(err, ErrLedgerUnavailable):
		return "ledger_unavailable"
	}
	return "other"
}
