// Package daemon manages the BlockRush service lifecycle and configuration.
package daemon

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

// Config holds all daemon configuration.
type Config struct {
	API       APIConfig       `toml:"api"`
	Database  DatabaseConfig  `toml:"database"`
	Scheduler SchedulerConfig `toml:"scheduler"`
	Email     EmailConfig     `toml:"email"`
	Kafka     KafkaConfig     `toml:"kafka"`
	Logging   LoggingConfig   `toml:"logging"`
	Telemetry TelemetryConfig `toml:"telemetry"`
	Gameplay  GameplayConfig  `toml:"gameplay"`
}

// APIConfig controls the HTTP API server.
type APIConfig struct {
	Host string `toml:"host"`
	Port int    `toml:"port"`
}

// DatabaseConfig locates the SQLite database.
type DatabaseConfig struct {
	Dir string `toml:"dir"`
}

// SchedulerConfig sets job intervals. An empty or "0" interval disables
// that job.
type SchedulerConfig struct {
	Enabled          bool   `toml:"enabled"`
	DailyRotation    string `toml:"daily_rotation"`
	WeeklyRotation   string `toml:"weekly_rotation"`
	SeasonTransition string `toml:"season_transition"`
	StreakNotify     string `toml:"streak_notify"`
}

// EmailConfig configures SendGrid. Without an API key mail is only logged.
type EmailConfig struct {
	SendGridAPIKey string `toml:"sendgrid_api_key"`
	BaseURL        string `toml:"base_url"`
	FromEmail      string `toml:"from_email"`
	FromName       string `toml:"from_name"`
	MaxRetries     int    `toml:"max_retries"`
	Timeout        string `toml:"timeout"`
}

// KafkaConfig configures game-ended ingestion.
type KafkaConfig struct {
	Enabled        bool     `toml:"enabled"`
	Brokers        []string `toml:"brokers"`
	Topic          string   `toml:"topic"`
	GroupID        string   `toml:"group_id"`
	HandlerTimeout string   `toml:"handler_timeout"`
}

// LoggingConfig controls logging behavior.
type LoggingConfig struct {
	Mode  string `toml:"mode"` // dev | prod
	Level string `toml:"level"`
}

// TelemetryConfig controls metrics and health checks.
type TelemetryConfig struct {
	Prometheus     bool   `toml:"prometheus"`
	HealthInterval string `toml:"health_interval"`
}

// GameplayConfig tunes XP grants.
type GameplayConfig struct {
	BaseGameXP int `toml:"base_game_xp"`
}

// DefaultConfig returns the configuration used when no file exists.
func DefaultConfig() Config {
	return Config{
		API: APIConfig{
			Host: "127.0.0.1",
			Port: 8080,
		},
		Database: DatabaseConfig{
			Dir: BlockrushHome(),
		},
		Scheduler: SchedulerConfig{
			Enabled:          true,
			DailyRotation:    "15m",
			WeeklyRotation:   "15m",
			SeasonTransition: "10m",
			StreakNotify:     "1h",
		},
		Email: EmailConfig{
			FromEmail:  "noreply@blockrush.app",
			FromName:   "BlockRush",
			MaxRetries: 4,
			Timeout:    "30s",
		},
		Kafka: KafkaConfig{
			Brokers:        []string{"localhost:9092"},
			Topic:          "game.ended",
			GroupID:        "blockrush-gamification",
			HandlerTimeout: "10s",
		},
		Logging: LoggingConfig{
			Mode:  "dev",
			Level: "info",
		},
		Telemetry: TelemetryConfig{
			Prometheus:     true,
			HealthInterval: "60s",
		},
		Gameplay: GameplayConfig{
			BaseGameXP: 10,
		},
	}
}

// ConfigPath is $BLOCKRUSH_HOME/config.toml.
func ConfigPath() string {
	return filepath.Join(BlockrushHome(), "config.toml")
}

// LoadConfig reads the default config file, falling back to defaults.
func LoadConfig() (Config, error) {
	return LoadConfigFile(ConfigPath())
}

// LoadConfigFile reads path over the defaults and applies environment
// overrides. A missing file is not an error.
func LoadConfigFile(path string) (Config, error) {
	cfg := DefaultConfig()

	if _, err := os.Stat(path); err == nil {
		if _, err := toml.DecodeFile(path, &cfg); err != nil {
			return cfg, fmt.Errorf("parse config: %w", err)
		}
	} else if !os.IsNotExist(err) {
		return cfg, fmt.Errorf("stat config: %w", err)
	}

	applyEnv(&cfg)
	return cfg, nil
}

// applyEnv lets secrets and deployment settings come from the environment.
func applyEnv(cfg *Config) {
	if v := os.Getenv("SENDGRID_API_KEY"); v != "" {
		cfg.Email.SendGridAPIKey = v
	}
	if v := os.Getenv("KAFKA_BROKERS"); v != "" {
		var brokers []string
		for _, b := range strings.Split(v, ",") {
			if b = strings.TrimSpace(b); b != "" {
				brokers = append(brokers, b)
			}
		}
		if len(brokers) > 0 {
			cfg.Kafka.Brokers = brokers
			cfg.Kafka.Enabled = true
		}
	}
	if cfg.Database.Dir == "" {
		cfg.Database.Dir = BlockrushHome()
	}
}

// SaveConfig writes the config to path, creating its directory.
func SaveConfig(path string, cfg Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return err
	}

	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	return toml.NewEncoder(f).Encode(cfg)
}

// BlockrushHome returns the data directory: $BLOCKRUSH_HOME or ~/.blockrush.
func BlockrushHome() string {
	if env := os.Getenv("BLOCKRUSH_HOME"); env != "" {
		return env
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".blockrush")
}

// parseDuration parses a duration string, returning a fallback on error.
func parseDuration(s string, fallback time.Duration) time.Duration {
	if s == "" {
		return fallback
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return fallback
	}
	return d
}
