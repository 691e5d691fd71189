package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/wfunc/lobbyserver/auth"
	"github.com/wfunc/lobbyserver/persistence"
)

func newTestService(t *testing.T) (*PlayerService, *persistence.SQLLedger, *auth.Authenticator) {
	t.Helper()
	db, err := persistence.NewSQLite(":memory:")
	if err != nil {
		t.Fatalf("NewSQLite failed: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	a := auth.NewAuthenticator("secret", time.Hour)
	return NewPlayerService(db, a), db, a
}

func TestPlayerService_Login(t *testing.T) {
	svc, db, a := newTestService(t)
	ctx := context.Background()

	first, err := svc.Login(ctx, "  alice ")
	if err != nil {
		t.Fatalf("Login failed: %v", err)
	}
	if first.Username != "alice" || first.Wins != 0 || first.Losses != 0 {
		t.Errorf("Unexpected first login: %+v", first)
	}
	id, err := a.Verify(first.Token)
	if err != nil || id.UserID != first.UserID {
		t.Errorf("Expected a token for user %d, got %+v %v", first.UserID, id, err)
	}

	// Two sessions played, one won.
	for i, win := range []bool{true, false} {
		s, _ := db.CreateSession(ctx, first.UserID, time.Now())
		db.AddParticipant(ctx, s.ID, first.UserID, time.Now())
		db.CloseSession(ctx, s.ID, i+1, time.Now())
		if win {
			db.IncrementWins(ctx, "alice")
		}
	}

	again, err := svc.Login(ctx, "alice")
	if err != nil {
		t.Fatalf("Login failed: %v", err)
	}
	if again.UserID != first.UserID {
		t.Errorf("Expected the same user on second login, got %d and %d", first.UserID, again.UserID)
	}
	if again.Wins != 1 || again.Losses != 1 {
		t.Errorf("Expected 1 win and 1 loss, got %d and %d", again.Wins, again.Losses)
	}

	if _, err := svc.Login(ctx, "   "); !errors.Is(err, persistence.ErrInvalidUsername) {
		t.Errorf("Expected ErrInvalidUsername, got %v", err)
	}
}

func TestPlayerService_Reports(t *testing.T) {
	svc, db, _ := newTestService(t)
	ctx := context.Background()

	for i := 0; i < 12; i++ {
		if _, err := svc.Login(ctx, string(rune('a'+i))); err != nil {
			t.Fatalf("Login failed: %v", err)
		}
	}
	db.IncrementWins(ctx, "c")
	db.IncrementWins(ctx, "c")
	db.IncrementWins(ctx, "k")

	top, err := svc.Leaderboard(ctx)
	if err != nil {
		t.Fatalf("Leaderboard failed: %v", err)
	}
	if len(top) != DefaultLeaderboardSize {
		t.Fatalf("Expected %d players, got %d", DefaultLeaderboardSize, len(top))
	}
	if top[0].Username != "c" || top[1].Username != "k" || top[2].Username != "a" {
		t.Errorf("Expected c, k then the oldest player, got %+v", top[:3])
	}

	groups, err := svc.WinnersGrouped(ctx, "fortnight")
	if err != nil {
		t.Fatalf("WinnersGrouped failed: %v", err)
	}
	if len(groups) != 0 {
		t.Errorf("Expected no winner groups without closed sessions, got %+v", groups)
	}

	days, err := svc.SessionsGrouped(ctx)
	if err != nil || len(days) != 0 {
		t.Errorf("Expected no session days, got %+v %v", days, err)
	}
}
