// Package fabricconfig loads and validates the knowledge fabric's
// configuration: defaults, then an optional config file, then
// FABRIC_-prefixed environment variables, layered via spf13/viper into
// one typed Config struct. Unknown top-level keys are rejected at load
// time.
package fabricconfig

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"knowledgefabric/fabricerr"
)

// Neo4jConfig is the bolt/Cypher connection settings for one backend
// (individual or shared).
type Neo4jConfig struct {
	URI      string `mapstructure:"uri"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
	Database string `mapstructure:"database"`
}

// Empty reports whether no URI was configured for this backend.
func (n Neo4jConfig) Empty() bool { return n.URI == "" }

// PoolConfig sizes the GAL connection pool.
type PoolConfig struct {
	Size           int `mapstructure:"size"`
	WaitMS         int `mapstructure:"wait_ms"`
	MaxRetryTimeMS int `mapstructure:"max_retry_time_ms"`
}

// Wait returns WaitMS as a time.Duration.
func (p PoolConfig) Wait() time.Duration { return time.Duration(p.WaitMS) * time.Millisecond }

// MaxRetryTime returns MaxRetryTimeMS as a time.Duration.
func (p PoolConfig) MaxRetryTime() time.Duration {
	return time.Duration(p.MaxRetryTimeMS) * time.Millisecond
}

// EventsConfig sizes the event pipeline.
type EventsConfig struct {
	QueueCapacity      int `mapstructure:"queue_capacity"`
	WorkerCount        int `mapstructure:"worker_count"`
	BackpressureWaitMS int `mapstructure:"backpressure_wait_ms"`
}

// BackpressureWait returns BackpressureWaitMS as a time.Duration.
func (e EventsConfig) BackpressureWait() time.Duration {
	return time.Duration(e.BackpressureWaitMS) * time.Millisecond
}

// MemoryWeights are the context/importance/semantic scoring weights for
// associative-memory recall.
type MemoryWeights struct {
	Alpha float64 `mapstructure:"alpha"`
	Beta  float64 `mapstructure:"beta"`
	Gamma float64 `mapstructure:"gamma"`
}

// MemoryConfig controls associative-memory scoring and decay.
type MemoryConfig struct {
	Weights     MemoryWeights `mapstructure:"weights"`
	DecayLambda float64       `mapstructure:"decay_lambda"`
}

// SyncConfig sizes the Synchronizer.
type SyncConfig struct {
	DefaultPeriodMS       int `mapstructure:"default_period_ms"`
	PriorityQueueCapacity int `mapstructure:"priority_queue_capacity"`
	WorkerCount           int `mapstructure:"worker_count"`
}

// DefaultPeriod returns DefaultPeriodMS as a time.Duration.
func (s SyncConfig) DefaultPeriod() time.Duration {
	return time.Duration(s.DefaultPeriodMS) * time.Millisecond
}

// Config is the complete set of options recognized by the fabric.
type Config struct {
	Neo4j       Neo4jConfig  `mapstructure:"neo4j"`
	Neo4jShared Neo4jConfig  `mapstructure:"neo4j_shared"`
	Pool        PoolConfig   `mapstructure:"pool"`
	Events      EventsConfig `mapstructure:"events"`
	Memory      MemoryConfig `mapstructure:"memory"`
	Sync        SyncConfig   `mapstructure:"sync"`

	// EmbeddingProvider names the configured embedding provider, or
	// "none" to disable semantic similarity entirely.
	EmbeddingProvider string `mapstructure:"embedding_provider"`

	// RedisURL, when set, backs the Synchronizer's distributed
	// coalescing lock.
	RedisURL string `mapstructure:"redis_url"`

	// PostgresDSN, when set, enables durable sync-run history.
	PostgresDSN string `mapstructure:"postgres_dsn"`

	// LogLevel and LogFormat configure fabriclog.
	LogLevel  string `mapstructure:"log_level"`
	LogFormat string `mapstructure:"log_format"`

	// HTTPAddr, when non-empty, starts the Facade's health/metrics
	// HTTP surface at that address.
	HTTPAddr string `mapstructure:"http_addr"`
}

// recognizedKeys is the allow-list used to reject unknown top-level
// configuration keys at load time.
var recognizedKeys = map[string]bool{
	"neo4j": true, "neo4j_shared": true, "pool": true, "events": true,
	"memory": true, "sync": true, "embedding_provider": true,
	"redis_url": true, "postgres_dsn": true, "log_level": true,
	"log_format": true, "http_addr": true,
}

// Defaults returns a Config with every option set to its documented
// default.
func Defaults() Config {
	return Config{
		Neo4j: Neo4jConfig{URI: "bolt://localhost:7687", Username: "neo4j", Database: "neo4j"},
		Pool: PoolConfig{
			Size: 10, WaitMS: 5000, MaxRetryTimeMS: 30000,
		},
		Events: EventsConfig{
			QueueCapacity: 1024, WorkerCount: 4, BackpressureWaitMS: 200,
		},
		Memory: MemoryConfig{
			Weights:     MemoryWeights{Alpha: 0.4, Beta: 0.4, Gamma: 0.2},
			DecayLambda: 0.01,
		},
		Sync: SyncConfig{
			DefaultPeriodMS: 60000, PriorityQueueCapacity: 256, WorkerCount: 4,
		},
		EmbeddingProvider: "none",
		LogLevel:          "info",
		LogFormat:         "text",
	}
}

// Load reads configuration from an optional file and the environment
// (prefix FABRIC_, nested keys joined with "_", e.g. FABRIC_POOL_SIZE),
// layered over Defaults().
func Load(configFile string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("FABRIC")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	defaults := Defaults()
	v.SetDefault("neo4j.uri", defaults.Neo4j.URI)
	v.SetDefault("neo4j.username", defaults.Neo4j.Username)
	v.SetDefault("neo4j.database", defaults.Neo4j.Database)
	v.SetDefault("pool.size", defaults.Pool.Size)
	v.SetDefault("pool.wait_ms", defaults.Pool.WaitMS)
	v.SetDefault("pool.max_retry_time_ms", defaults.Pool.MaxRetryTimeMS)
	v.SetDefault("events.queue_capacity", defaults.Events.QueueCapacity)
	v.SetDefault("events.worker_count", defaults.Events.WorkerCount)
	v.SetDefault("events.backpressure_wait_ms", defaults.Events.BackpressureWaitMS)
	v.SetDefault("memory.weights.alpha", defaults.Memory.Weights.Alpha)
	v.SetDefault("memory.weights.beta", defaults.Memory.Weights.Beta)
	v.SetDefault("memory.weights.gamma", defaults.Memory.Weights.Gamma)
	v.SetDefault("memory.decay_lambda", defaults.Memory.DecayLambda)
	v.SetDefault("sync.default_period_ms", defaults.Sync.DefaultPeriodMS)
	v.SetDefault("sync.priority_queue_capacity", defaults.Sync.PriorityQueueCapacity)
	v.SetDefault("sync.worker_count", defaults.Sync.WorkerCount)
	v.SetDefault("embedding_provider", defaults.EmbeddingProvider)
	v.SetDefault("log_level", defaults.LogLevel)
	v.SetDefault("log_format", defaults.LogFormat)

	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fabricerr.Wrap(fabricerr.ConfigurationError, "reading config file", err)
		}
		if err := rejectUnknownKeys(v.AllSettings()); err != nil {
			return Config{}, err
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fabricerr.Wrap(fabricerr.ConfigurationError, "decoding config", err)
	}

	if err := validate(cfg); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func rejectUnknownKeys(settings map[string]any) error {
	for key := range settings {
		if !recognizedKeys[key] {
			return fabricerr.New(fabricerr.ConfigurationError, fmt.Sprintf("unrecognized configuration key %q", key))
		}
	}
	return nil
}

func validate(cfg Config) error {
	if cfg.Neo4j.Empty() {
		return fabricerr.New(fabricerr.ConfigurationError, "neo4j.uri is required")
	}
	if cfg.Pool.Size <= 0 {
		return fabricerr.New(fabricerr.ConfigurationError, "pool.size must be positive")
	}
	if cfg.Events.QueueCapacity <= 0 || cfg.Events.WorkerCount <= 0 {
		return fabricerr.New(fabricerr.ConfigurationError, "events.queue_capacity and events.worker_count must be positive")
	}
	if cfg.Sync.PriorityQueueCapacity <= 0 {
		return fabricerr.New(fabricerr.ConfigurationError, "sync.priority_queue_capacity must be positive")
	}
	return nil
}

// DualModeEnabled reports whether a shared-graph backend was
// configured; without one, only the individual graph operates.
func (c Config) DualModeEnabled() bool { return !c.Neo4jShared.Empty() }
