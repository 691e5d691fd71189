// persistence/dialect.go
package persistence

import (
	"strconv"
	"strings"

	"github.com/wfunc/lobbyserver/models"
)

// dialect captures the few places where postgres and sqlite disagree.
type dialect struct {
	name       string
	driver     string
	schema     []string
	dayExpr    string
	periodExpr map[models.Period]string
	numbered   bool
}

var postgresDialect = &dialect{
	name:   "postgres",
	driver: "postgres",
	schema: []string{
		`CREATE TABLE IF NOT EXISTS users (
            id BIGSERIAL PRIMARY KEY,
            username VARCHAR(64) UNIQUE NOT NULL,
            wins INTEGER NOT NULL DEFAULT 0,
            created_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP
        )`,
		`CREATE TABLE IF NOT EXISTS sessions (
            id BIGSERIAL PRIMARY KEY,
            started_by BIGINT NOT NULL,
            start_time TIMESTAMPTZ NOT NULL,
            end_time TIMESTAMPTZ,
            winning_number INTEGER
        )`,
		`CREATE TABLE IF NOT EXISTS session_users (
            id BIGSERIAL PRIMARY KEY,
            session_id BIGINT NOT NULL REFERENCES sessions(id),
            user_id BIGINT NOT NULL REFERENCES users(id),
            joined_at TIMESTAMPTZ NOT NULL,
            left_at TIMESTAMPTZ,
            picked_number INTEGER,
            is_winner BOOLEAN NOT NULL DEFAULT FALSE
        )`,
		`CREATE INDEX IF NOT EXISTS idx_sessions_end_time ON sessions(end_time)`,
		`CREATE INDEX IF NOT EXISTS idx_session_users_session ON session_users(session_id, user_id)`,
	},
	dayExpr: "to_char(start_time, 'YYYY-MM-DD')",
	periodExpr: map[models.Period]string{
		models.PeriodDay:   "to_char(s.end_time, 'YYYY-MM-DD')",
		models.PeriodWeek:  "to_char(s.end_time, 'IYYY-IW')",
		models.PeriodMonth: "to_char(s.end_time, 'YYYY-MM')",
	},
	numbered: true,
}

var sqliteDialect = &dialect{
	name:   "sqlite",
	driver: "sqlite",
	schema: []string{
		`CREATE TABLE IF NOT EXISTS users (
            id INTEGER PRIMARY KEY AUTOINCREMENT,
            username TEXT UNIQUE NOT NULL,
            wins INTEGER NOT NULL DEFAULT 0,
            created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
        )`,
		`CREATE TABLE IF NOT EXISTS sessions (
            id INTEGER PRIMARY KEY AUTOINCREMENT,
            started_by INTEGER NOT NULL,
            start_time DATETIME NOT NULL,
            end_time DATETIME,
            winning_number INTEGER
        )`,
		`CREATE TABLE IF NOT EXISTS session_users (
            id INTEGER PRIMARY KEY AUTOINCREMENT,
            session_id INTEGER NOT NULL REFERENCES sessions(id),
            user_id INTEGER NOT NULL REFERENCES users(id),
            joined_at DATETIME NOT NULL,
            left_at DATETIME,
            picked_number INTEGER,
            is_winner BOOLEAN NOT NULL DEFAULT FALSE
        )`,
		`CREATE INDEX IF NOT EXISTS idx_sessions_end_time ON sessions(end_time)`,
		`CREATE INDEX IF NOT EXISTS idx_session_users_session ON session_users(session_id, user_id)`,
	},
	dayExpr: "date(start_time)",
	periodExpr: map[models.Period]string{
		models.PeriodDay:   "date(s.end_time)",
		models.PeriodWeek:  "strftime('%Y-%W', s.end_time)",
		models.PeriodMonth: "strftime('%Y-%m', s.end_time)",
	},
}

// rebind rewrites ? placeholders to $1..$n for drivers that need numbered
// parameters. Queries here never contain a literal question mark.
func (d *dialect) rebind(query string) string {
	if !d.numbered {
		return query
	}
	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}
