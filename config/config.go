/*
Package config loads service configuration.

SOURCES (later wins):
  1. env-default tags below
  2. YAML file given with -config (optional)
  3. .env / .env.local in the working directory (godotenv, never overriding
     variables already set in the process)
  4. Process environment

EXAMPLE (config.yaml):
  http:
    port: 8080
  database:
    path: ./data/tiers.db
  kafka:
    enabled: true
    brokers: ["localhost:9092"]
  tiers:
    - { name: starter, label: Starter, min_lifetime_tickets: 0,  commission_per_ticket: 15000, quarterly_target: 0 }
    - { name: growth,  label: Growth,  min_lifetime_tickets: 3,  commission_per_ticket: 20000, quarterly_target: 3 }
*/
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
	"github.com/joho/godotenv"
	"github.com/skyagent/tier-engine/tier"
)

type Config struct {
	Env       string       `yaml:"env" env:"APP_ENV" env-default:"development"`
	Timezone  string       `yaml:"timezone" env:"TIER_TIMEZONE" env-default:"Asia/Ho_Chi_Minh"`
	HTTP      HTTP         `yaml:"http"`
	Database  Database     `yaml:"database"`
	Log       Log          `yaml:"log"`
	Kafka     Kafka        `yaml:"kafka"`
	Scheduler Scheduler    `yaml:"scheduler"`
	Tiers     []TierConfig `yaml:"tiers"`
}

type HTTP struct {
	Port            int           `yaml:"port" env:"HTTP_PORT" env-default:"8080"`
	AllowedOrigins  []string      `yaml:"allowed_origins" env:"HTTP_ALLOWED_ORIGINS" env-default:"http://localhost:5173,http://localhost:8080"`
	ReadTimeout     time.Duration `yaml:"read_timeout" env:"HTTP_READ_TIMEOUT" env-default:"15s"`
	WriteTimeout    time.Duration `yaml:"write_timeout" env:"HTTP_WRITE_TIMEOUT" env-default:"15s"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" env:"HTTP_SHUTDOWN_TIMEOUT" env-default:"30s"`
}

type Database struct {
	// Path of the SQLite file; ":memory:" for an ephemeral database.
	Path string `yaml:"path" env:"DATABASE_PATH" env-default:"tiers.db"`
}

type Log struct {
	Level  string `yaml:"level" env:"LOG_LEVEL" env-default:"info"`
	Format string `yaml:"format" env:"LOG_FORMAT" env-default:"json"`
}

type Kafka struct {
	Enabled bool     `yaml:"enabled" env:"KAFKA_ENABLED" env-default:"false"`
	Brokers []string `yaml:"brokers" env:"KAFKA_BROKERS" env-default:"localhost:9092"`
	Topic   string   `yaml:"topic" env:"KAFKA_TOPIC" env-default:"agent-tier-events"`
}

type Scheduler struct {
	Enabled  bool          `yaml:"enabled" env:"SCHEDULER_ENABLED" env-default:"true"`
	Interval time.Duration `yaml:"interval" env:"SCHEDULER_INTERVAL" env-default:"1h"`
}

// TierConfig is one row of a replacement tier table, lowest tier first.
type TierConfig struct {
	Name                string `yaml:"name"`
	Label               string `yaml:"label"`
	MinLifetimeTickets  int    `yaml:"min_lifetime_tickets"`
	CommissionPerTicket int64  `yaml:"commission_per_ticket"`
	QuarterlyTarget     int    `yaml:"quarterly_target"`
}

// Load reads configuration from path (optional) and the environment.
func Load(path string) (*Config, error) {
	if err := loadDotEnv(".env", ".env.local"); err != nil {
		return nil, err
	}

	var cfg Config
	if path != "" {
		if err := cleanenv.ReadConfig(path, &cfg); err != nil {
			return nil, fmt.Errorf("failed to read config %s: %w", path, err)
		}
	} else if err := cleanenv.ReadEnv(&cfg); err != nil {
		return nil, fmt.Errorf("failed to read config from environment: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func loadDotEnv(files ...string) error {
	for _, f := range files {
		if _, err := os.Stat(f); err != nil {
			continue
		}
		if err := godotenv.Load(f); err != nil {
			return fmt.Errorf("failed to load %s: %w", f, err)
		}
	}
	return nil
}

func (c *Config) validate() error {
	if c.HTTP.Port <= 0 || c.HTTP.Port > 65535 {
		return fmt.Errorf("http.port %d out of range", c.HTTP.Port)
	}
	if c.Kafka.Enabled && len(c.Kafka.Brokers) == 0 {
		return fmt.Errorf("kafka.brokers required when kafka is enabled")
	}
	if c.Scheduler.Enabled && c.Scheduler.Interval <= 0 {
		return fmt.Errorf("scheduler.interval must be positive")
	}
	if _, err := c.Location(); err != nil {
		return err
	}
	_, err := c.TierTable()
	return err
}

// Location resolves the timezone that quarter boundaries are computed in.
func (c *Config) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, fmt.Errorf("invalid timezone %q: %w", c.Timezone, err)
	}
	return loc, nil
}

// TierTable returns the configured tier table, or the default one when the
// config has no tiers section.
func (c *Config) TierTable() (*tier.Table, error) {
	if len(c.Tiers) == 0 {
		return tier.DefaultTable(), nil
	}
	defs := make([]tier.Definition, len(c.Tiers))
	for i, t := range c.Tiers {
		defs[i] = tier.Definition{
			Name:                tier.Name(t.Name),
			Label:               t.Label,
			MinLifetimeTickets:  t.MinLifetimeTickets,
			CommissionPerTicket: tier.VND(t.CommissionPerTicket),
			QuarterlyTarget:     t.QuarterlyTarget,
		}
	}
	return tier.NewTable(defs...)
}
