package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	Game     GameConfig     `mapstructure:"game"`
	Auth     AuthConfig     `mapstructure:"auth"`
	Log      LogConfig      `mapstructure:"log"`
}

type ServerConfig struct {
	HTTPAddress    string `mapstructure:"http_address"`
	RPCAddress     string `mapstructure:"rpc_address"`
	MetricsAddress string `mapstructure:"metrics_address"`
}

type DatabaseConfig struct {
	// Driver is one of "gorm", "postgres" or "sqlite".
	Driver   string         `mapstructure:"driver"`
	Postgres PostgresConfig `mapstructure:"postgres"`
	SQLite   SQLiteConfig   `mapstructure:"sqlite"`
}

type PostgresConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	DBName   string `mapstructure:"dbname"`
}

// DSN renders the libpq connection string shared by the gorm and lib/pq backends.
func (p PostgresConfig) DSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=disable",
		p.Host, p.Port, p.User, p.Password, p.DBName)
}

type SQLiteConfig struct {
	Path string `mapstructure:"path"`
}

type GameConfig struct {
	RoundDuration    time.Duration `mapstructure:"round_duration"`
	CooldownDuration time.Duration `mapstructure:"cooldown_duration"`
	TickInterval     time.Duration `mapstructure:"tick_interval"`
	ParticipantCap   int           `mapstructure:"participant_cap"`
}

type AuthConfig struct {
	JWTSecret string        `mapstructure:"jwt_secret"`
	TokenTTL  time.Duration `mapstructure:"token_ttl"`
}

type LogConfig struct {
	Level       string `mapstructure:"level"`
	Development bool   `mapstructure:"development"`
}

const (
	DriverGorm     = "gorm"
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.http_address", ":4000")
	v.SetDefault("server.rpc_address", ":4001")
	v.SetDefault("server.metrics_address", ":9100")

	v.SetDefault("database.driver", DriverSQLite)
	v.SetDefault("database.postgres.host", "localhost")
	v.SetDefault("database.postgres.port", 5432)
	v.SetDefault("database.postgres.user", "postgres")
	v.SetDefault("database.postgres.password", "postgres")
	v.SetDefault("database.postgres.dbname", "game_lobby")
	v.SetDefault("database.sqlite.path", "game-lobby.db")

	v.SetDefault("game.round_duration", 20*time.Second)
	v.SetDefault("game.cooldown_duration", 20*time.Second)
	v.SetDefault("game.tick_interval", time.Second)
	v.SetDefault("game.participant_cap", 10)

	v.SetDefault("auth.jwt_secret", "change-me")
	v.SetDefault("auth.token_ttl", 2*time.Hour)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.development", false)
}

// LoadConfig reads config.yaml from path when present, then applies LOBBY_*
// environment overrides (LOBBY_GAME_PARTICIPANT_CAP and so on).
func LoadConfig(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.AddConfigPath(path)
	v.SetConfigName("config")
	v.SetConfigType("yaml")

	v.SetEnvPrefix("lobby")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	// SESSION_USER_CAP is the legacy name for the cap.
	if raw := os.Getenv("SESSION_USER_CAP"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			return nil, fmt.Errorf("SESSION_USER_CAP: %w", err)
		}
		v.Set("game.participant_cap", n)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	g := c.Game
	switch {
	case g.RoundDuration <= 0:
		return errors.New("game.round_duration must be positive")
	case g.CooldownDuration <= 0:
		return errors.New("game.cooldown_duration must be positive")
	case g.TickInterval <= 0:
		return errors.New("game.tick_interval must be positive")
	case g.TickInterval > g.RoundDuration || g.TickInterval > g.CooldownDuration:
		return errors.New("game.tick_interval must not exceed the round or cooldown duration")
	case g.ParticipantCap < 1:
		return errors.New("game.participant_cap must be at least 1")
	}

	switch c.Database.Driver {
	case DriverGorm, DriverPostgres, DriverSQLite:
	default:
		return fmt.Errorf("unknown database.driver %q", c.Database.Driver)
	}
	return nil
}
