package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds runtime settings. Values come from an optional YAML file,
// then PKBATTLE_* environment variables (a .env file is loaded first).
type Config struct {
	HTTP     HTTPConfig     `yaml:"http"`
	Log      LogConfig      `yaml:"log"`
	Battle   BattleConfig   `yaml:"battle"`
	Postgres PostgresConfig `yaml:"postgres"`
	Sink     SinkConfig     `yaml:"sink"`
}

type HTTPConfig struct {
	Address string `yaml:"address"`
}

type LogConfig struct {
	Level      string `yaml:"level"`
	File       string `yaml:"file"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days"`
}

type BattleConfig struct {
	DefaultDuration time.Duration `yaml:"default_duration"`
	MaxDuration     time.Duration `yaml:"max_duration"`
	Retention       time.Duration `yaml:"retention"`
	SweepInterval   time.Duration `yaml:"sweep_interval"`
}

type PostgresConfig struct {
	DSN string `yaml:"dsn"`
}

type SinkConfig struct {
	QueueSize     int    `yaml:"queue_size"`
	Workers       int    `yaml:"workers"`
	WebhookURL    string `yaml:"webhook_url"`
	WebhookAPIKey string `yaml:"webhook_api_key"`
}

func Default() Config {
	return Config{
		HTTP: HTTPConfig{Address: ":8080"},
		Log: LogConfig{
			Level:      "info",
			MaxSizeMB:  100,
			MaxBackups: 3,
			MaxAgeDays: 7,
		},
		Battle: BattleConfig{
			DefaultDuration: 300 * time.Second,
			MaxDuration:     time.Hour,
			Retention:       time.Hour,
			SweepInterval:   time.Minute,
		},
		Sink: SinkConfig{QueueSize: 1024, Workers: 2},
	}
}

// Load reads the YAML file at path (skipped when empty) and applies
// environment overrides on top of the defaults.
func Load(path string) (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return Config{}, fmt.Errorf("load .env: %w", err)
	}
	cfg := Default()
	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(raw, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config: %w", err)
		}
	}
	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return Config{}, err
	}
	return cfg, cfg.Validate()
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	strs := map[string]*string{
		"PKBATTLE_HTTP_ADDR":    &c.HTTP.Address,
		"PKBATTLE_LOG_LEVEL":    &c.Log.Level,
		"PKBATTLE_LOG_FILE":     &c.Log.File,
		"PKBATTLE_POSTGRES_DSN": &c.Postgres.DSN,
		"PKBATTLE_WEBHOOK_URL":  &c.Sink.WebhookURL,
		"PKBATTLE_WEBHOOK_KEY":  &c.Sink.WebhookAPIKey,
	}
	for key, dst := range strs {
		if v, ok := lookup(key); ok {
			*dst = v
		}
	}
	durations := map[string]*time.Duration{
		"PKBATTLE_DEFAULT_DURATION": &c.Battle.DefaultDuration,
		"PKBATTLE_MAX_DURATION":     &c.Battle.MaxDuration,
		"PKBATTLE_RETENTION":        &c.Battle.Retention,
		"PKBATTLE_SWEEP_INTERVAL":   &c.Battle.SweepInterval,
	}
	for key, dst := range durations {
		if v, ok := lookup(key); ok {
			d, err := time.ParseDuration(v)
			if err != nil {
				return fmt.Errorf("%s: %w", key, err)
			}
			*dst = d
		}
	}
	ints := map[string]*int{
		"PKBATTLE_SINK_QUEUE_SIZE": &c.Sink.QueueSize,
		"PKBATTLE_SINK_WORKERS":    &c.Sink.Workers,
	}
	for key, dst := range ints {
		if v, ok := lookup(key); ok {
			n, err := strconv.Atoi(v)
			if err != nil {
				return fmt.Errorf("%s: %w", key, err)
			}
			*dst = n
		}
	}
	return nil
}

// Validate rejects settings the engine cannot run with.
func (c Config) Validate() error {
	if c.HTTP.Address == "" {
		return errors.New("http.address is required")
	}
	if c.Battle.DefaultDuration <= 0 || c.Battle.MaxDuration <= 0 {
		return errors.New("battle durations must be positive")
	}
	if c.Battle.DefaultDuration > c.Battle.MaxDuration {
		return errors.New("battle.default_duration exceeds battle.max_duration")
	}
	if c.Battle.DefaultDuration%time.Second != 0 || c.Battle.MaxDuration%time.Second != 0 {
		return errors.New("battle durations must be whole seconds")
	}
	if c.Battle.Retention < 0 {
		return errors.New("battle.retention must not be negative")
	}
	if c.Battle.Retention > 0 && c.Battle.SweepInterval <= 0 {
		return errors.New("battle.sweep_interval must be positive when retention is set")
	}
	if c.Sink.QueueSize <= 0 || c.Sink.Workers <= 0 {
		return errors.New("sink queue size and workers must be positive")
	}
	return nil
}
