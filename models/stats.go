package models

// UserStats is a player's record.
type UserStats struct {
	UserID         int64  `json:"user_id"`
	Username       string `json:"username"`
	Wins           int    `json:"wins"`
	SessionsPlayed int    `json:"sessions_played"`
}

// Losses is derived on read from the two stored counters.
func (s UserStats) Losses() int {
	if l := s.SessionsPlayed - s.Wins; l > 0 {
		return l
	}
	return 0
}

// PlayerWins is one leaderboard row.
type PlayerWins struct {
	Username string `json:"username"`
	Wins     int    `json:"wins"`
}

// SessionCount is the number of sessions started on one calendar day.
type SessionCount struct {
	Date  string `json:"session_date"`
	Count int    `json:"session_count"`
}

// WinnersGroup collects per-player win counts for one reporting period.
type WinnersGroup struct {
	Period  string       `json:"period"`
	Winners []PlayerWins `json:"winners"`
}

// Period selects the bucket size for grouped winner reports.
type Period string

const (
	PeriodDay   Period = "day"
	PeriodWeek  Period = "week"
	PeriodMonth Period = "month"
)

// ParsePeriod maps a query value onto a Period, defaulting to day.
func ParsePeriod(s string) Period {
	switch Period(s) {
	case PeriodWeek:
		return PeriodWeek
	case PeriodMonth:
		return PeriodMonth
	default:
		return PeriodDay
	}
}
