// Package config loads and validates service configuration via Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Store providers.
const (
	StoreMemory   = "memory"
	StorePostgres = "postgres"
)

// Notifier providers.
const (
	NotifierLog    = "log"
	NotifierPubSub = "pubsub"
	NotifierNone   = "none"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Auth     AuthConfig     `mapstructure:"auth"`
	Ingest   IngestConfig   `mapstructure:"ingest"`
	Store    StoreConfig    `mapstructure:"store"`
	Notifier NotifierConfig `mapstructure:"notifier"`
	Logging  LoggingConfig  `mapstructure:"logging"`
}

// ServerConfig controls HTTP server behavior.
type ServerConfig struct {
	Port int `mapstructure:"port"`
}

// AuthConfig defines API authentication toggles for the admin endpoints.
type AuthConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	APIKey  string `mapstructure:"api_key"`
}

// IngestConfig governs the ingestion cycle.
type IngestConfig struct {
	StagingDir          string `mapstructure:"staging_dir"`
	Concurrency         int    `mapstructure:"concurrency"`
	ParseTimeoutSeconds int    `mapstructure:"parse_timeout_seconds"`
}

// StoreConfig selects and tunes the canonical store backend.
type StoreConfig struct {
	Provider           string `mapstructure:"provider"`
	DSN                string `mapstructure:"dsn"`
	MaxConns           int    `mapstructure:"max_conns"`
	MinConns           int    `mapstructure:"min_conns"`
	ConnLifetimeMinute int    `mapstructure:"conn_lifetime_minutes"`
}

// NotifierConfig selects the notification backend.
type NotifierConfig struct {
	Provider  string `mapstructure:"provider"`
	ProjectID string `mapstructure:"project_id"`
	TopicName string `mapstructure:"topic_name"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool `mapstructure:"development"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("LEAKLOOK")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("ingest.staging_dir", "source")
	v.SetDefault("ingest.concurrency", 4)
	v.SetDefault("ingest.parse_timeout_seconds", 30)
	v.SetDefault("store.provider", StoreMemory)
	v.SetDefault("store.max_conns", 8)
	v.SetDefault("store.min_conns", 1)
	v.SetDefault("store.conn_lifetime_minutes", 30)
	v.SetDefault("notifier.provider", NotifierLog)
	v.SetDefault("logging.development", true)
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	if c.Ingest.StagingDir == "" {
		return fmt.Errorf("ingest.staging_dir must be set")
	}
	if c.Ingest.Concurrency <= 0 {
		return fmt.Errorf("ingest.concurrency must be > 0")
	}
	if c.Ingest.ParseTimeoutSeconds <= 0 {
		return fmt.Errorf("ingest.parse_timeout_seconds must be > 0")
	}
	switch c.Store.Provider {
	case StoreMemory:
	case StorePostgres:
		if c.Store.DSN == "" {
			return fmt.Errorf("store.dsn must be set when store.provider is postgres")
		}
	default:
		return fmt.Errorf("store.provider must be %q or %q", StoreMemory, StorePostgres)
	}
	switch c.Notifier.Provider {
	case NotifierLog, NotifierNone:
	case NotifierPubSub:
		if c.Notifier.ProjectID == "" || c.Notifier.TopicName == "" {
			return fmt.Errorf("notifier.project_id and notifier.topic_name must be set when notifier.provider is pubsub")
		}
	default:
		return fmt.Errorf("notifier.provider must be %q, %q, or %q", NotifierLog, NotifierPubSub, NotifierNone)
	}
	if c.Auth.Enabled && c.Auth.APIKey == "" {
		return fmt.Errorf("auth.api_key must be set when auth is enabled")
	}
	return nil
}

// ParseTimeout converts the configured extraction budget into a duration.
func (c Config) ParseTimeout() time.Duration {
	return time.Duration(c.Ingest.ParseTimeoutSeconds) * time.Second
}

// ConnLifetime converts the configured pool connection lifetime.
func (c Config) ConnLifetime() time.Duration {
	return time.Duration(c.Store.ConnLifetimeMinute) * time.Minute
}
