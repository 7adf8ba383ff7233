package timekeeper

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/caarlos0/env/v11"
	"github.com/pelletier/go-toml/v2"

	"github.com/arcestia/time-keeper/timekeeper/database"
	"github.com/arcestia/time-keeper/timekeeper/worker"
)

// LoadConfig reads the TOML config file and overlays environment
// variables on top, so deployments can override single values without
// rewriting the file.
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()

	file, err := os.Open(path)
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to open config: %w", err)
		}
	} else {
		defer file.Close()
		if err := toml.NewDecoder(file).Decode(&cfg); err != nil {
			return nil, fmt.Errorf("failed to decode config: %w", err)
		}
	}

	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse environment overrides: %w", err)
	}
	return &cfg, nil
}

// DefaultConfig is the configuration used when no file or environment
// overrides are present.
func DefaultConfig() Config {
	return Config{
		Log:     LogConfig{Level: slog.LevelInfo},
		DB:      database.DBConfig{Path: "timekeeper.db"},
		Worker:  worker.DefaultConfig(),
		Session: SessionConfig{InitialSeconds: 86400},
	}
}

type Config struct {
	Log     LogConfig         `toml:"log"`
	DB      database.DBConfig `toml:"db"`
	Worker  worker.Config     `toml:"worker"`
	Session SessionConfig     `toml:"session"`
}

type LogConfig struct {
	Level slog.Level `toml:"level" env:"LOG_LEVEL"`
}

type SessionConfig struct {
	// InitialSeconds is the balance minted for newly created accounts.
	InitialSeconds int64 `toml:"initial_seconds" env:"SESSION_INITIAL_SECONDS"`
}
