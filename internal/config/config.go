// Package config loads and validates engine configuration via Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Store     StoreConfig     `mapstructure:"store"`
	DB        DBConfig        `mapstructure:"db"`
	Queue     QueueConfig     `mapstructure:"queue"`
	Redis     RedisConfig     `mapstructure:"redis"`
	Publisher PublisherConfig `mapstructure:"publisher"`
	PubSub    PubSubConfig    `mapstructure:"pubsub"`
	Archive   ArchiveConfig   `mapstructure:"archive"`
	Fetch     FetchConfig     `mapstructure:"fetch"`
	Scheduler SchedulerConfig `mapstructure:"scheduler"`
	Enrich    EnrichConfig    `mapstructure:"enrich"`
	Logging   LoggingConfig   `mapstructure:"logging"`
}

// ServerConfig controls the trigger/diagnostics HTTP server.
type ServerConfig struct {
	Port int `mapstructure:"port"`
}

// StoreConfig selects the feed store backend.
type StoreConfig struct {
	Provider string `mapstructure:"provider"`
}

// DBConfig controls access to the relational database.
type DBConfig struct {
	DSN      string `mapstructure:"dsn"`
	MaxConns int32  `mapstructure:"max_conns"`
	MinConns int32  `mapstructure:"min_conns"`
}

// QueueConfig selects the job queue backend.
type QueueConfig struct {
	Provider string `mapstructure:"provider"`
	Depth    int    `mapstructure:"depth"`
	Key      string `mapstructure:"key"`
}

// RedisConfig holds the Redis connection URL shared by queue and publisher.
type RedisConfig struct {
	URL string `mapstructure:"url"`
}

// PublisherConfig selects the event publisher backend.
type PublisherConfig struct {
	Provider string `mapstructure:"provider"`
	Channel  string `mapstructure:"channel"`
}

// PubSubConfig holds metadata for the GCP Pub/Sub publisher.
type PubSubConfig struct {
	ProjectID string `mapstructure:"project_id"`
	TopicName string `mapstructure:"topic_name"`
}

// ArchiveConfig controls raw-body snapshots of unparseable responses.
type ArchiveConfig struct {
	Provider string `mapstructure:"provider"`
	BaseDir  string `mapstructure:"base_dir"`
	Bucket   string `mapstructure:"bucket"`
	Prefix   string `mapstructure:"prefix"`
}

// FetchConfig governs the consumer pool and conditional fetcher.
type FetchConfig struct {
	IntervalDefaultSeconds int     `mapstructure:"interval_default_seconds"`
	Concurrency            int     `mapstructure:"concurrency"`
	PerHostConcurrency     int     `mapstructure:"per_host_concurrency"`
	TimeoutSeconds         int     `mapstructure:"timeout_seconds"`
	BackoffMaxSeconds      int     `mapstructure:"backoff_max_seconds"`
	PerHostRPS             float64 `mapstructure:"per_host_rps"`
	UserAgent              string  `mapstructure:"user_agent"`
}

// SchedulerConfig governs the polling cadence loop.
type SchedulerConfig struct {
	TickSeconds int `mapstructure:"tick_seconds"`
	BatchSize   int `mapstructure:"batch_size"`
}

// EnrichConfig controls best-effort full-text extraction.
type EnrichConfig struct {
	Enabled        bool `mapstructure:"enabled"`
	TimeoutSeconds int  `mapstructure:"timeout_seconds"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool `mapstructure:"development"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("READER")
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
	v.SetDefault("store.provider", "memory")
	v.SetDefault("db.max_conns", 8)
	v.SetDefault("db.min_conns", 1)
	v.SetDefault("queue.provider", "memory")
	v.SetDefault("queue.depth", 256)
	v.SetDefault("queue.key", "rss:jobs")
	v.SetDefault("redis.url", "redis://localhost:6379/0")
	v.SetDefault("publisher.provider", "noop")
	v.SetDefault("publisher.channel", "rss:events")
	v.SetDefault("archive.provider", "none")
	v.SetDefault("archive.prefix", "snapshots")
	v.SetDefault("fetch.interval_default_seconds", 900)
	v.SetDefault("fetch.concurrency", 10)
	v.SetDefault("fetch.per_host_concurrency", 2)
	v.SetDefault("fetch.timeout_seconds", 30)
	v.SetDefault("fetch.backoff_max_seconds", 21600)
	v.SetDefault("fetch.per_host_rps", 0)
	v.SetDefault("fetch.user_agent", "reader-worker/1.0 (+self-hosted RSS reader)")
	v.SetDefault("scheduler.tick_seconds", 10)
	v.SetDefault("scheduler.batch_size", 25)
	v.SetDefault("enrich.enabled", true)
	v.SetDefault("enrich.timeout_seconds", 10)
	v.SetDefault("logging.development", false)
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	if c.Fetch.Concurrency <= 0 {
		return fmt.Errorf("fetch.concurrency must be > 0")
	}
	if c.Fetch.PerHostConcurrency <= 0 {
		return fmt.Errorf("fetch.per_host_concurrency must be > 0")
	}
	if c.Fetch.TimeoutSeconds <= 0 {
		return fmt.Errorf("fetch.timeout_seconds must be > 0")
	}
	if c.Fetch.IntervalDefaultSeconds <= 0 {
		return fmt.Errorf("fetch.interval_default_seconds must be > 0")
	}
	if c.Scheduler.TickSeconds <= 0 {
		return fmt.Errorf("scheduler.tick_seconds must be > 0")
	}
	if c.Scheduler.BatchSize <= 0 {
		return fmt.Errorf("scheduler.batch_size must be > 0")
	}
	if c.Store.Provider == "postgres" && c.DB.DSN == "" {
		return fmt.Errorf("db.dsn is required when store.provider is postgres")
	}
	if c.Queue.Provider == "redis" && c.Redis.URL == "" {
		return fmt.Errorf("redis.url is required when queue.provider is redis")
	}
	if c.Publisher.Provider == "pubsub" && (c.PubSub.ProjectID == "" || c.PubSub.TopicName == "") {
		return fmt.Errorf("pubsub.project_id and pubsub.topic_name are required when publisher.provider is pubsub")
	}
	if c.Archive.Provider == "local" && c.Archive.BaseDir == "" {
		return fmt.Errorf("archive.base_dir is required when archive.provider is local")
	}
	if c.Archive.Provider == "gcs" && c.Archive.Bucket == "" {
		return fmt.Errorf("archive.bucket is required when archive.provider is gcs")
	}
	return nil
}

// FetchTimeout returns the per-fetch timeout as a duration.
func (c Config) FetchTimeout() time.Duration {
	return time.Duration(c.Fetch.TimeoutSeconds) * time.Second
}

// DefaultInterval returns the default polling interval as a duration.
func (c Config) DefaultInterval() time.Duration {
	return time.Duration(c.Fetch.IntervalDefaultSeconds) * time.Second
}

// BackoffMax returns the backoff delay cap as a duration.
func (c Config) BackoffMax() time.Duration {
	return time.Duration(c.Fetch.BackoffMaxSeconds) * time.Second
}

// SchedulerTick returns the scheduler tick as a duration.
func (c Config) SchedulerTick() time.Duration {
	return time.Duration(c.Scheduler.TickSeconds) * time.Second
}

// EnrichTimeout returns the per-item enrichment timeout as a duration.
func (c Config) EnrichTimeout() time.Duration {
	return time.Duration(c.Enrich.TimeoutSeconds) * time.Second
}
