package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadConfig_Defaults(t *testing.T) {
	cfg, err := LoadConfig(t.TempDir())
	if err != nil {
		t.Fatalf("LoadConfig returned error: %v", err)
	}

	if cfg.Game.RoundDuration != 20*time.Second {
		t.Errorf("Expected round duration 20s, got %v", cfg.Game.RoundDuration)
	}
	if cfg.Game.CooldownDuration != 20*time.Second {
		t.Errorf("Expected cooldown duration 20s, got %v", cfg.Game.CooldownDuration)
	}
	if cfg.Game.TickInterval != time.Second {
		t.Errorf("Expected tick interval 1s, got %v", cfg.Game.TickInterval)
	}
	if cfg.Game.ParticipantCap != 10 {
		t.Errorf("Expected participant cap 10, got %d", cfg.Game.ParticipantCap)
	}
	if cfg.Database.Driver != DriverSQLite {
		t.Errorf("Expected sqlite driver by default, got %s", cfg.Database.Driver)
	}
}

func TestLoadConfig_FileAndEnv(t *testing.T) {
	dir := t.TempDir()
	yaml := `
server:
  http_address: ":8080"
game:
  round_duration: 30s
  participant_cap: 4
database:
  driver: postgres
  postgres:
    host: db
    port: 5433
`
	if err := os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("LOBBY_GAME_COOLDOWN_DURATION", "5s")

	cfg, err := LoadConfig(dir)
	if err != nil {
		t.Fatalf("LoadConfig returned error: %v", err)
	}

	if cfg.Server.HTTPAddress != ":8080" {
		t.Errorf("Expected http address :8080, got %s", cfg.Server.HTTPAddress)
	}
	if cfg.Game.RoundDuration != 30*time.Second {
		t.Errorf("Expected round duration 30s, got %v", cfg.Game.RoundDuration)
	}
	if cfg.Game.CooldownDuration != 5*time.Second {
		t.Errorf("Expected env override 5s, got %v", cfg.Game.CooldownDuration)
	}
	if cfg.Game.ParticipantCap != 4 {
		t.Errorf("Expected participant cap 4, got %d", cfg.Game.ParticipantCap)
	}
	want := "host=db port=5433 user=postgres password=postgres dbname=game_lobby sslmode=disable"
	if got := cfg.Database.Postgres.DSN(); got != want {
		t.Errorf("Expected DSN %q, got %q", want, got)
	}
}

func TestLoadConfig_SessionUserCapAlias(t *testing.T) {
	t.Setenv("SESSION_USER_CAP", "3")

	cfg, err := LoadConfig(t.TempDir())
	if err != nil {
		t.Fatalf("LoadConfig returned error: %v", err)
	}
	if cfg.Game.ParticipantCap != 3 {
		t.Errorf("Expected participant cap 3, got %d", cfg.Game.ParticipantCap)
	}
}

func TestValidate(t *testing.T) {
	valid := func() Config {
		return Config{
			Database: DatabaseConfig{Driver: DriverSQLite},
			Game: GameConfig{
				RoundDuration:    20 * time.Second,
				CooldownDuration: 20 * time.Second,
				TickInterval:     time.Second,
				ParticipantCap:   10,
			},
		}
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{name: "Valid", mutate: func(*Config) {}},
		{name: "ZeroRound", mutate: func(c *Config) { c.Game.RoundDuration = 0 }, wantErr: true},
		{name: "ZeroCooldown", mutate: func(c *Config) { c.Game.CooldownDuration = 0 }, wantErr: true},
		{name: "TickTooLong", mutate: func(c *Config) { c.Game.TickInterval = time.Minute }, wantErr: true},
		{name: "ZeroCap", mutate: func(c *Config) { c.Game.ParticipantCap = 0 }, wantErr: true},
		{name: "UnknownDriver", mutate: func(c *Config) { c.Database.Driver = "mysql" }, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Expected error=%v, got %v", tt.wantErr, err)
			}
		})
	}
}
