// persistence/gorm_postgresql.go
package persistence

import (
	"context"
	"errors"
	"strings"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"

	"github.com/wfunc/lobbyserver/logger"
	"github.com/wfunc/lobbyserver/models"
)

// GormPostgreSQL 使用GORM的PostgreSQL实现
type GormPostgreSQL struct {
	db *gorm.DB
	tx bool
}

// NewGormPostgreSQL 创建GORM PostgreSQL数据库连接
func NewGormPostgreSQL(dsn string) (*GormPostgreSQL, error) {
	// GORM日志走zap，只记录慢SQL
	gormLogger := gormlogger.New(
		zapWriter{},
		gormlogger.Config{
			SlowThreshold:             time.Second,
			LogLevel:                  gormlogger.Warn,
			IgnoreRecordNotFoundError: true,
			Colorful:                  false,
		},
	)

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: gormLogger,
	})
	if err != nil {
		return nil, err
	}

	// 获取通用数据库对象 sql.DB
	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}

	// 设置连接池
	sqlDB.SetMaxIdleConns(10)
	sqlDB.SetMaxOpenConns(100)
	sqlDB.SetConnMaxLifetime(time.Hour)

	// 自动迁移表结构
	if err := autoMigrate(db); err != nil {
		return nil, err
	}

	return &GormPostgreSQL{db: db}, nil
}

type zapWriter struct{}

func (zapWriter) Printf(format string, args ...interface{}) {
	logger.Log.Warnf(format, args...)
}

// 定义GORM模型
type UserModel struct {
	ID        int64     `gorm:"primaryKey"`
	Username  string    `gorm:"size:64;uniqueIndex;not null"`
	Wins      int       `gorm:"not null;default:0"`
	CreatedAt time.Time `gorm:"not null"`
}

func (UserModel) TableName() string { return "users" }

type SessionModel struct {
	ID            int64      `gorm:"primaryKey"`
	StartedBy     int64      `gorm:"not null"`
	StartTime     time.Time  `gorm:"not null"`
	EndTime       *time.Time `gorm:"index"`
	WinningNumber *int
}

func (SessionModel) TableName() string { return "sessions" }

type ParticipantModel struct {
	ID           int64     `gorm:"primaryKey"`
	SessionID    int64     `gorm:"index:idx_session_users_session;not null"`
	UserID       int64     `gorm:"index:idx_session_users_session;not null"`
	JoinedAt     time.Time `gorm:"not null"`
	LeftAt       *time.Time
	PickedNumber *int
	IsWinner     bool `gorm:"not null;default:false"`
}

func (ParticipantModel) TableName() string { return "session_users" }

// autoMigrate 自动迁移表结构
func autoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&UserModel{},
		&SessionModel{},
		&ParticipantModel{},
	)
}

func (p *GormPostgreSQL) ctx(ctx context.Context) (*gorm.DB, context.CancelFunc) {
	ctx, cancel := withTimeout(ctx)
	return p.db.WithContext(ctx), cancel
}

func notFound(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrRecordNotFound
	}
	return err
}

func (m *SessionModel) toSession() *models.Session {
	return &models.Session{
		ID:            m.ID,
		StartedBy:     m.StartedBy,
		StartTime:     m.StartTime,
		EndTime:       m.EndTime,
		WinningNumber: m.WinningNumber,
	}
}

func (m *UserModel) toUser() *models.User {
	return &models.User{ID: m.ID, Username: m.Username, Wins: m.Wins, CreatedAt: m.CreatedAt}
}

// GetOrCreateUser 使用UPSERT操作
func (p *GormPostgreSQL) GetOrCreateUser(ctx context.Context, username string) (*models.User, error) {
	if strings.TrimSpace(username) == "" {
		return nil, ErrInvalidUsername
	}
	db, cancel := p.ctx(ctx)
	defer cancel()

	user := UserModel{Username: username, CreatedAt: time.Now().UTC()}
	if err := db.Clauses(clause.OnConflict{DoNothing: true}).Create(&user).Error; err != nil {
		return nil, err
	}

	var stored UserModel
	if err := db.Where("username = ?", username).First(&stored).Error; err != nil {
		return nil, notFound(err)
	}
	return stored.toUser(), nil
}

func (p *GormPostgreSQL) CreateSession(ctx context.Context, starterID int64, startTime time.Time) (*models.Session, error) {
	db, cancel := p.ctx(ctx)
	defer cancel()

	s := SessionModel{StartedBy: starterID, StartTime: startTime.UTC()}
	if err := db.Create(&s).Error; err != nil {
		return nil, err
	}
	return s.toSession(), nil
}

func (p *GormPostgreSQL) GetOpenSession(ctx context.Context) (*models.Session, error) {
	db, cancel := p.ctx(ctx)
	defer cancel()

	var s SessionModel
	err := db.Where("end_time IS NULL").Order("start_time DESC").Order("id DESC").First(&s).Error
	if err != nil {
		return nil, notFound(err)
	}
	return s.toSession(), nil
}

func (p *GormPostgreSQL) AddParticipant(ctx context.Context, sessionID, userID int64, joinedAt time.Time) error {
	db, cancel := p.ctx(ctx)
	defer cancel()

	return db.Create(&ParticipantModel{SessionID: sessionID, UserID: userID, JoinedAt: joinedAt.UTC()}).Error
}

func (p *GormPostgreSQL) activeParticipant(db *gorm.DB, sessionID, userID int64) *gorm.DB {
	return db.Model(&ParticipantModel{}).
		Where("session_id = ? AND user_id = ? AND left_at IS NULL", sessionID, userID)
}

func (p *GormPostgreSQL) MarkLeft(ctx context.Context, sessionID, userID int64, leftAt time.Time) error {
	db, cancel := p.ctx(ctx)
	defer cancel()

	res := p.activeParticipant(db, sessionID, userID).Update("left_at", leftAt.UTC())
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrRecordNotFound
	}
	return nil
}

func (p *GormPostgreSQL) SetPick(ctx context.Context, sessionID, userID int64, number int) error {
	db, cancel := p.ctx(ctx)
	defer cancel()

	res := p.activeParticipant(db, sessionID, userID).Update("picked_number", number)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrRecordNotFound
	}
	return nil
}

func (p *GormPostgreSQL) CountActiveParticipants(ctx context.Context, sessionID int64) (int, error) {
	db, cancel := p.ctx(ctx)
	defer cancel()

	var n int64
	err := db.Model(&ParticipantModel{}).
		Where("session_id = ? AND left_at IS NULL", sessionID).
		Count(&n).Error
	return int(n), err
}

func (p *GormPostgreSQL) CloseSession(ctx context.Context, sessionID int64, winningNumber int, endTime time.Time) (bool, error) {
	db, cancel := p.ctx(ctx)
	defer cancel()

	res := db.Model(&SessionModel{}).
		Where("id = ? AND end_time IS NULL", sessionID).
		Updates(map[string]any{"end_time": endTime.UTC(), "winning_number": winningNumber})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (p *GormPostgreSQL) MarkWinners(ctx context.Context, sessionID int64, winningNumber int) error {
	db, cancel := p.ctx(ctx)
	defer cancel()

	return db.Model(&ParticipantModel{}).
		Where("session_id = ? AND picked_number = ?", sessionID, winningNumber).
		Update("is_winner", true).Error
}

func (p *GormPostgreSQL) IncrementWins(ctx context.Context, username string) error {
	db, cancel := p.ctx(ctx)
	defer cancel()

	res := db.Model(&UserModel{}).
		Where("username = ?", username).
		Update("wins", gorm.Expr("wins + ?", 1))
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrRecordNotFound
	}
	return nil
}

func (p *GormPostgreSQL) ListParticipants(ctx context.Context, sessionID int64, activeOnly bool) ([]models.ParticipantView, error) {
	db, cancel := p.ctx(ctx)
	defer cancel()

	type row struct {
		UserID       int64
		Username     string
		PickedNumber *int
		LeftAt       *time.Time
		IsWinner     bool
	}

	q := db.Table("session_users AS su").
		Select("su.user_id, u.username, su.picked_number, su.left_at, su.is_winner").
		Joins("JOIN users u ON u.id = su.user_id").
		Where("su.session_id = ?", sessionID)
	if activeOnly {
		q = q.Where("su.left_at IS NULL")
	}

	var rows []row
	if err := q.Order("su.joined_at, su.id").Scan(&rows).Error; err != nil {
		return nil, err
	}

	participants := make([]models.ParticipantView, 0, len(rows))
	for _, r := range rows {
		participants = append(participants, models.ParticipantView{
			UserID:       r.UserID,
			Username:     r.Username,
			PickedNumber: r.PickedNumber,
			Left:         r.LeftAt != nil,
			IsWinner:     r.IsWinner,
		})
	}
	return participants, nil
}

// InTx 添加事务支持
func (p *GormPostgreSQL) InTx(ctx context.Context, fn func(tx Ledger) error) error {
	if p.tx {
		return fn(p)
	}
	return p.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&GormPostgreSQL{db: tx, tx: true})
	})
}

func (p *GormPostgreSQL) GetUser(ctx context.Context, userID int64) (*models.User, error) {
	db, cancel := p.ctx(ctx)
	defer cancel()

	var u UserModel
	if err := db.First(&u, userID).Error; err != nil {
		return nil, notFound(err)
	}
	return u.toUser(), nil
}

// UserStats 获取玩家统计
func (p *GormPostgreSQL) UserStats(ctx context.Context, userID int64) (*models.UserStats, error) {
	u, err := p.GetUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	db, cancel := p.ctx(ctx)
	defer cancel()

	var played int64
	err = db.Model(&ParticipantModel{}).
		Where("user_id = ?", userID).
		Distinct("session_id").
		Count(&played).Error
	if err != nil {
		return nil, err
	}
	return &models.UserStats{UserID: u.ID, Username: u.Username, Wins: u.Wins, SessionsPlayed: int(played)}, nil
}

func (p *GormPostgreSQL) TopPlayers(ctx context.Context, limit int) ([]models.PlayerWins, error) {
	db, cancel := p.ctx(ctx)
	defer cancel()

	players := make([]models.PlayerWins, 0, limit)
	err := db.Model(&UserModel{}).
		Select("username, wins").
		Order("wins DESC, created_at ASC, id ASC").
		Limit(limit).
		Scan(&players).Error
	return players, err
}

func (p *GormPostgreSQL) SessionsByDay(ctx context.Context) ([]models.SessionCount, error) {
	db, cancel := p.ctx(ctx)
	defer cancel()

	type row struct {
		SessionDate  string
		SessionCount int
	}
	var rows []row
	err := db.Raw(`
        SELECT to_char(start_time, 'YYYY-MM-DD') AS session_date, COUNT(*) AS session_count
        FROM sessions
        GROUP BY 1
        ORDER BY 1 DESC`).Scan(&rows).Error
	if err != nil {
		return nil, err
	}

	counts := make([]models.SessionCount, 0, len(rows))
	for _, r := range rows {
		counts = append(counts, models.SessionCount{Date: r.SessionDate, Count: r.SessionCount})
	}
	return counts, nil
}

// WinnersByPeriod 添加高级查询方法
func (p *GormPostgreSQL) WinnersByPeriod(ctx context.Context, period models.Period) ([]models.WinnersGroup, error) {
	expr, ok := postgresDialect.periodExpr[period]
	if !ok {
		expr = postgresDialect.periodExpr[models.PeriodDay]
	}

	db, cancel := p.ctx(ctx)
	defer cancel()

	var rows []winnerRow
	err := db.Raw(`
        SELECT ` + expr + ` AS period, u.username AS username, COUNT(*) AS wins
        FROM sessions s
        JOIN session_users su ON su.session_id = s.id
        JOIN users u ON su.user_id = u.id
        WHERE su.is_winner = TRUE AND s.end_time IS NOT NULL
        GROUP BY 1, u.username
        ORDER BY 1 DESC, wins DESC, u.username ASC`).Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	return groupWinners(rows), nil
}

// Close 关闭数据库连接
func (p *GormPostgreSQL) Close() error {
	sqlDB, err := p.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
