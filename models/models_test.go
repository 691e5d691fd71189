package models

import (
	"testing"
	"time"
)

func TestUserStats_Losses(t *testing.T) {
	tests := []struct {
		name   string
		played int
		wins   int
		want   int
	}{
		{name: "NoGames", played: 0, wins: 0, want: 0},
		{name: "SomeLosses", played: 5, wins: 2, want: 3},
		{name: "AllWins", played: 3, wins: 3, want: 0},
		{name: "WinsExceedPlayed", played: 1, wins: 4, want: 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := UserStats{SessionsPlayed: tt.played, Wins: tt.wins}
			if got := s.Losses(); got != tt.want {
				t.Errorf("Expected %d losses, got %d", tt.want, got)
			}
		})
	}
}

func TestValidPick(t *testing.T) {
	for n := -1; n <= 11; n++ {
		want := n >= 1 && n <= 9
		if got := ValidPick(n); got != want {
			t.Errorf("ValidPick(%d): expected %v, got %v", n, want, got)
		}
	}
}

func TestSession_Clone(t *testing.T) {
	end := time.Now()
	s := &Session{ID: 1, EndTime: &end, WinningNumber: IntPtr(4)}
	c := s.Clone()

	*c.WinningNumber = 9
	if *s.WinningNumber != 4 {
		t.Error("Clone should not share the winning number pointer")
	}
	if c.EndTime == s.EndTime {
		t.Error("Clone should not share the end time pointer")
	}
	if (*Session)(nil).Clone() != nil {
		t.Error("Clone of nil should be nil")
	}
}

func TestParsePeriod(t *testing.T) {
	cases := map[string]Period{"week": PeriodWeek, "month": PeriodMonth, "day": PeriodDay, "": PeriodDay, "year": PeriodDay}
	for in, want := range cases {
		if got := ParsePeriod(in); got != want {
			t.Errorf("ParsePeriod(%q): expected %s, got %s", in, want, got)
		}
	}
}
