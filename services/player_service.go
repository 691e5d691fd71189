// services/player_service.go
package services

import (
	"context"
	"strings"

	"github.com/wfunc/lobbyserver/auth"
	"github.com/wfunc/lobbyserver/models"
	"github.com/wfunc/lobbyserver/persistence"
)

// DefaultLeaderboardSize is how many players the leaderboard lists.
const DefaultLeaderboardSize = 10

// LoginResult is what a caller gets back from a successful login.
type LoginResult struct {
	Token    string `json:"token"`
	Username string `json:"username"`
	UserID   int64  `json:"user_id"`
	Wins     int    `json:"wins"`
	Losses   int    `json:"losses"`
}

// PlayerService covers player identity and read-only reporting.
type PlayerService struct {
	db   persistence.Database
	auth *auth.Authenticator
}

func NewPlayerService(db persistence.Database, authenticator *auth.Authenticator) *PlayerService {
	return &PlayerService{db: db, auth: authenticator}
}

// Login creates the user on first sight and returns a token with their record.
func (s *PlayerService) Login(ctx context.Context, username string) (*LoginResult, error) {
	username = strings.TrimSpace(username)

	user, err := s.db.GetOrCreateUser(ctx, username)
	if err != nil {
		return nil, err
	}
	stats, err := s.db.UserStats(ctx, user.ID)
	if err != nil {
		return nil, err
	}
	token, err := s.auth.Issue(auth.Identity{UserID: user.ID, Username: user.Username})
	if err != nil {
		return nil, err
	}

	return &LoginResult{
		Token:    token,
		Username: user.Username,
		UserID:   user.ID,
		Wins:     stats.Wins,
		Losses:   stats.Losses(),
	}, nil
}

// Stats returns the caller's wins and derived losses.
func (s *PlayerService) Stats(ctx context.Context, userID int64) (*models.UserStats, error) {
	return s.db.UserStats(ctx, userID)
}

func (s *PlayerService) Leaderboard(ctx context.Context) ([]models.PlayerWins, error) {
	return s.db.TopPlayers(ctx, DefaultLeaderboardSize)
}

func (s *PlayerService) SessionsGrouped(ctx context.Context) ([]models.SessionCount, error) {
	return s.db.SessionsByDay(ctx)
}

// WinnersGrouped groups winners by period; an unknown period falls back to day.
func (s *PlayerService) WinnersGrouped(ctx context.Context, period string) ([]models.WinnersGroup, error) {
	return s.db.WinnersByPeriod(ctx, models.ParsePeriod(period))
}
