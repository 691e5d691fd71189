// persistence/interface.go
package persistence

import (
	"context"
	"errors"
	"time"

	"github.com/wfunc/lobbyserver/models"
)

// Ledger is the durable store the orchestrator writes through. It does not
// enforce the one-open-session rule; the orchestrator does.
type Ledger interface {
	GetOrCreateUser(ctx context.Context, username string) (*models.User, error)
	CreateSession(ctx context.Context, starterID int64, startTime time.Time) (*models.Session, error)
	// GetOpenSession returns the most recent session with no end time, or
	// ErrRecordNotFound.
	GetOpenSession(ctx context.Context) (*models.Session, error)
	AddParticipant(ctx context.Context, sessionID, userID int64, joinedAt time.Time) error
	MarkLeft(ctx context.Context, sessionID, userID int64, leftAt time.Time) error
	SetPick(ctx context.Context, sessionID, userID int64, number int) error
	CountActiveParticipants(ctx context.Context, sessionID int64) (int, error)
	// CloseSession closes the session only if it is still open and reports
	// whether this call closed it.
	CloseSession(ctx context.Context, sessionID int64, winningNumber int, endTime time.Time) (bool, error)
	MarkWinners(ctx context.Context, sessionID int64, winningNumber int) error
	IncrementWins(ctx context.Context, username string) error
	ListParticipants(ctx context.Context, sessionID int64, activeOnly bool) ([]models.ParticipantView, error)
	// InTx runs fn against a ledger bound to one transaction. Nested calls
	// reuse the outer transaction.
	InTx(ctx context.Context, fn func(tx Ledger) error) error
}

// Reports are read-only aggregate queries with no concurrency concerns.
type Reports interface {
	GetUser(ctx context.Context, userID int64) (*models.User, error)
	UserStats(ctx context.Context, userID int64) (*models.UserStats, error)
	TopPlayers(ctx context.Context, limit int) ([]models.PlayerWins, error)
	SessionsByDay(ctx context.Context) ([]models.SessionCount, error)
	WinnersByPeriod(ctx context.Context, period models.Period) ([]models.WinnersGroup, error)
}

// Database is a Ledger with Reports that can be closed.
type Database interface {
	Ledger
	Reports
	Close() error
}

var (
	ErrRecordNotFound  = errors.New("record not found")
	ErrInvalidUsername = errors.New("invalid username")
)

// queryTimeout bounds each statement when the caller's context has no deadline.
const queryTimeout = 5 * time.Second

func withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if _, ok := ctx.Deadline(); ok {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, queryTimeout)
}

// groupWinners folds rows ordered by period desc into consecutive groups.
func groupWinners(rows []winnerRow) []models.WinnersGroup {
	var groups []models.WinnersGroup
	for _, r := range rows {
		if n := len(groups); n == 0 || groups[n-1].Period != r.Period {
			groups = append(groups, models.WinnersGroup{Period: r.Period})
		}
		last := &groups[len(groups)-1]
		last.Winners = append(last.Winners, models.PlayerWins{Username: r.Username, Wins: r.Wins})
	}
	return groups
}

type winnerRow struct {
	Period   string
	Username string
	Wins     int
}
