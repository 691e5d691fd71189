// models/models.go
package models

import (
	"time"
)

// User is a persistent player identity. Losses are never stored, see UserStats.
type User struct {
	ID        int64     `json:"id"`
	Username  string    `json:"username"`
	Wins      int       `json:"wins"`
	CreatedAt time.Time `json:"created_at"`
}

// Session is one timed round. EndTime and WinningNumber stay nil while it is open.
type Session struct {
	ID            int64      `json:"id"`
	StartedBy     int64      `json:"started_by"`
	StartTime     time.Time  `json:"start_time"`
	EndTime       *time.Time `json:"end_time"`
	WinningNumber *int       `json:"winning_number"`
}

// Open reports whether the session has not been closed yet.
func (s *Session) Open() bool {
	return s.EndTime == nil
}

// Clone returns a deep copy so snapshots never share pointers with live state.
func (s *Session) Clone() *Session {
	if s == nil {
		return nil
	}
	c := *s
	if s.EndTime != nil {
		t := *s.EndTime
		c.EndTime = &t
	}
	if s.WinningNumber != nil {
		n := *s.WinningNumber
		c.WinningNumber = &n
	}
	return &c
}

// Participant is a user's membership in a session.
type Participant struct {
	SessionID    int64      `json:"session_id"`
	UserID       int64      `json:"user_id"`
	JoinedAt     time.Time  `json:"joined_at"`
	LeftAt       *time.Time `json:"left_at"`
	PickedNumber *int       `json:"picked_number"`
	IsWinner     bool       `json:"is_winner"`
}

// ParticipantView is a participant row joined with its username.
type ParticipantView struct {
	UserID       int64  `json:"user_id"`
	Username     string `json:"username"`
	PickedNumber *int   `json:"picked_number"`
	Left         bool   `json:"left"`
	IsWinner     bool   `json:"is_winner"`
}

const (
	MinPick = 1
	MaxPick = 9
)

// ValidPick reports whether n is a number a participant may pick.
func ValidPick(n int) bool {
	return n >= MinPick && n <= MaxPick
}

// IntPtr is a small helper for optional numbers.
func IntPtr(n int) *int {
	return &n
}
