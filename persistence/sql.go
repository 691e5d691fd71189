// persistence/sql.go
package persistence

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	// postgres driver
	_ "github.com/lib/pq"
	// embedded sqlite driver
	_ "modernc.org/sqlite"

	"github.com/wfunc/lobbyserver/models"
)

// queryer is satisfied by both *sql.DB and *sql.Tx.
type queryer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// SQLLedger implements Database on database/sql for postgres (lib/pq) and
// sqlite (modernc).
type SQLLedger struct {
	db *sql.DB
	q  queryer
	d  *dialect
	tx bool
}

// NewPostgreSQL connects through lib/pq and bootstraps the schema.
func NewPostgreSQL(dsn string) (*SQLLedger, error) {
	db, err := sql.Open(postgresDialect.driver, dsn)
	if err != nil {
		return nil, err
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(25)
	db.SetConnMaxLifetime(5 * time.Minute)

	return open(db, postgresDialect)
}

// NewSQLite opens (or creates) a sqlite database file. ":memory:" gives a
// private in-memory database.
func NewSQLite(path string) (*SQLLedger, error) {
	db, err := sql.Open(sqliteDialect.driver, sqliteDSN(path))
	if err != nil {
		return nil, err
	}

	// sqlite allows one writer; a single connection also keeps ":memory:"
	// databases from splitting across connections.
	db.SetMaxOpenConns(1)

	return open(db, sqliteDialect)
}

// sqliteDSN makes the driver write times in a layout sqlite's date functions
// parse. The default is time.String(), which date() and strftime() read as NULL.
func sqliteDSN(path string) string {
	if strings.Contains(path, "_time_format=") {
		return path
	}
	sep := "?"
	if strings.Contains(path, "?") {
		sep = "&"
	}
	return path + sep + "_time_format=sqlite"
}

func open(db *sql.DB, d *dialect) (*SQLLedger, error) {
	ctx, cancel := context.WithTimeout(context.Background(), queryTimeout)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, err
	}

	for _, stmt := range d.schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			db.Close()
			return nil, fmt.Errorf("init %s schema: %w", d.name, err)
		}
	}

	return &SQLLedger{db: db, q: db, d: d}, nil
}

func (l *SQLLedger) exec(ctx context.Context, query string, args ...any) (sql.Result, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()
	return l.q.ExecContext(ctx, l.d.rebind(query), args...)
}

func (l *SQLLedger) queryRow(ctx context.Context, dest []any, query string, args ...any) error {
	ctx, cancel := withTimeout(ctx)
	defer cancel()
	err := l.q.QueryRowContext(ctx, l.d.rebind(query), args...).Scan(dest...)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrRecordNotFound
	}
	return err
}

func (l *SQLLedger) affected(res sql.Result, err error) (int64, error) {
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (l *SQLLedger) GetOrCreateUser(ctx context.Context, username string) (*models.User, error) {
	if strings.TrimSpace(username) == "" {
		return nil, ErrInvalidUsername
	}

	_, err := l.exec(ctx,
		`INSERT INTO users (username, wins, created_at) VALUES (?, 0, ?) ON CONFLICT (username) DO NOTHING`,
		username, time.Now().UTC())
	if err != nil {
		return nil, err
	}

	var u models.User
	err = l.queryRow(ctx, []any{&u.ID, &u.Username, &u.Wins, &u.CreatedAt},
		`SELECT id, username, wins, created_at FROM users WHERE username = ?`, username)
	if err != nil {
		return nil, err
	}
	return &u, nil
}

func (l *SQLLedger) CreateSession(ctx context.Context, starterID int64, startTime time.Time) (*models.Session, error) {
	s := &models.Session{StartedBy: starterID, StartTime: startTime.UTC()}
	err := l.queryRow(ctx, []any{&s.ID},
		`INSERT INTO sessions (started_by, start_time) VALUES (?, ?) RETURNING id`,
		starterID, s.StartTime)
	if err != nil {
		return nil, err
	}
	return s, nil
}

func (l *SQLLedger) GetOpenSession(ctx context.Context) (*models.Session, error) {
	var (
		s       models.Session
		end     sql.NullTime
		winning sql.NullInt64
	)
	err := l.queryRow(ctx, []any{&s.ID, &s.StartedBy, &s.StartTime, &end, &winning},
		`SELECT id, started_by, start_time, end_time, winning_number
         FROM sessions WHERE end_time IS NULL
         ORDER BY start_time DESC, id DESC LIMIT 1`)
	if err != nil {
		return nil, err
	}
	if end.Valid {
		s.EndTime = &end.Time
	}
	if winning.Valid {
		s.WinningNumber = models.IntPtr(int(winning.Int64))
	}
	return &s, nil
}

func (l *SQLLedger) AddParticipant(ctx context.Context, sessionID, userID int64, joinedAt time.Time) error {
	_, err := l.exec(ctx,
		`INSERT INTO session_users (session_id, user_id, joined_at) VALUES (?, ?, ?)`,
		sessionID, userID, joinedAt.UTC())
	return err
}

func (l *SQLLedger) MarkLeft(ctx context.Context, sessionID, userID int64, leftAt time.Time) error {
	n, err := l.affected(l.exec(ctx,
		`UPDATE session_users SET left_at = ? WHERE session_id = ? AND user_id = ? AND left_at IS NULL`,
		leftAt.UTC(), sessionID, userID))
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrRecordNotFound
	}
	return nil
}

func (l *SQLLedger) SetPick(ctx context.Context, sessionID, userID int64, number int) error {
	n, err := l.affected(l.exec(ctx,
		`UPDATE session_users SET picked_number = ? WHERE session_id = ? AND user_id = ? AND left_at IS NULL`,
		number, sessionID, userID))
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrRecordNotFound
	}
	return nil
}

func (l *SQLLedger) CountActiveParticipants(ctx context.Context, sessionID int64) (int, error) {
	var n int
	err := l.queryRow(ctx, []any{&n},
		`SELECT COUNT(*) FROM session_users WHERE session_id = ? AND left_at IS NULL`, sessionID)
	return n, err
}

func (l *SQLLedger) CloseSession(ctx context.Context, sessionID int64, winningNumber int, endTime time.Time) (bool, error) {
	n, err := l.affected(l.exec(ctx,
		`UPDATE sessions SET end_time = ?, winning_number = ? WHERE id = ? AND end_time IS NULL`,
		endTime.UTC(), winningNumber, sessionID))
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func (l *SQLLedger) MarkWinners(ctx context.Context, sessionID int64, winningNumber int) error {
	_, err := l.exec(ctx,
		`UPDATE session_users SET is_winner = TRUE WHERE session_id = ? AND picked_number = ?`,
		sessionID, winningNumber)
	return err
}

func (l *SQLLedger) IncrementWins(ctx context.Context, username string) error {
	n, err := l.affected(l.exec(ctx,
		`UPDATE users SET wins = wins + 1 WHERE username = ?`, username))
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrRecordNotFound
	}
	return nil
}

func (l *SQLLedger) ListParticipants(ctx context.Context, sessionID int64, activeOnly bool) ([]models.ParticipantView, error) {
	query := `SELECT su.user_id, u.username, su.picked_number, su.left_at IS NOT NULL, su.is_winner
        FROM session_users su JOIN users u ON u.id = su.user_id
        WHERE su.session_id = ?`
	if activeOnly {
		query += ` AND su.left_at IS NULL`
	}
	query += ` ORDER BY su.joined_at, su.id`

	ctx, cancel := withTimeout(ctx)
	defer cancel()

	rows, err := l.q.QueryContext(ctx, l.d.rebind(query), sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	participants := make([]models.ParticipantView, 0)
	for rows.Next() {
		var (
			p      models.ParticipantView
			picked sql.NullInt64
		)
		if err := rows.Scan(&p.UserID, &p.Username, &picked, &p.Left, &p.IsWinner); err != nil {
			return nil, err
		}
		if picked.Valid {
			p.PickedNumber = models.IntPtr(int(picked.Int64))
		}
		participants = append(participants, p)
	}
	return participants, rows.Err()
}

// InTx runs fn in one transaction, or inline when already inside one.
func (l *SQLLedger) InTx(ctx context.Context, fn func(tx Ledger) error) error {
	if l.tx {
		return fn(l)
	}

	tx, err := l.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	if err := fn(&SQLLedger{db: l.db, q: tx, d: l.d, tx: true}); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}

func (l *SQLLedger) GetUser(ctx context.Context, userID int64) (*models.User, error) {
	var u models.User
	err := l.queryRow(ctx, []any{&u.ID, &u.Username, &u.Wins, &u.CreatedAt},
		`SELECT id, username, wins, created_at FROM users WHERE id = ?`, userID)
	if err != nil {
		return nil, err
	}
	return &u, nil
}

func (l *SQLLedger) UserStats(ctx context.Context, userID int64) (*models.UserStats, error) {
	u, err := l.GetUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	stats := &models.UserStats{UserID: u.ID, Username: u.Username, Wins: u.Wins}
	err = l.queryRow(ctx, []any{&stats.SessionsPlayed},
		`SELECT COUNT(DISTINCT session_id) FROM session_users WHERE user_id = ?`, userID)
	if err != nil {
		return nil, err
	}
	return stats, nil
}

func (l *SQLLedger) TopPlayers(ctx context.Context, limit int) ([]models.PlayerWins, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	rows, err := l.q.QueryContext(ctx, l.d.rebind(
		`SELECT username, wins FROM users ORDER BY wins DESC, created_at ASC, id ASC LIMIT ?`), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	players := make([]models.PlayerWins, 0, limit)
	for rows.Next() {
		var p models.PlayerWins
		if err := rows.Scan(&p.Username, &p.Wins); err != nil {
			return nil, err
		}
		players = append(players, p)
	}
	return players, rows.Err()
}

func (l *SQLLedger) SessionsByDay(ctx context.Context) ([]models.SessionCount, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	rows, err := l.q.QueryContext(ctx, fmt.Sprintf(
		`SELECT %s AS session_date, COUNT(*) FROM sessions GROUP BY 1 ORDER BY 1 DESC`, l.d.dayExpr))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make([]models.SessionCount, 0)
	for rows.Next() {
		var c models.SessionCount
		if err := rows.Scan(&c.Date, &c.Count); err != nil {
			return nil, err
		}
		counts = append(counts, c)
	}
	return counts, rows.Err()
}

func (l *SQLLedger) WinnersByPeriod(ctx context.Context, period models.Period) ([]models.WinnersGroup, error) {
	expr, ok := l.d.periodExpr[period]
	if !ok {
		expr = l.d.periodExpr[models.PeriodDay]
	}

	ctx, cancel := withTimeout(ctx)
	defer cancel()

	rows, err := l.q.QueryContext(ctx, fmt.Sprintf(`
        SELECT %s AS period, u.username, COUNT(*) AS wins
        FROM sessions s
        JOIN session_users su ON su.session_id = s.id
        JOIN users u ON su.user_id = u.id
        WHERE su.is_winner = TRUE AND s.end_time IS NOT NULL
        GROUP BY 1, u.username
        ORDER BY 1 DESC, wins DESC, u.username ASC`, expr))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var raw []winnerRow
	for rows.Next() {
		var r winnerRow
		if err := rows.Scan(&r.Period, &r.Username, &r.Wins); err != nil {
			return nil, err
		}
		raw = append(raw, r)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return groupWinners(raw), nil
}

func (l *SQLLedger) Close() error {
	return l.db.Close()
}
