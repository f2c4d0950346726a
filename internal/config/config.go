package config

import (
	"time"

	"github.com/agentfabric/knowledgefabric/internal/memory"
	"github.com/agentfabric/knowledgefabric/internal/memory/embedder"
	"github.com/agentfabric/knowledgefabric/internal/memory/vector"
)

// Config is the root configuration for the knowledge fabric.
type Config struct {
	Core     CoreConfig               `mapstructure:"core" yaml:"core" validate:"required"`
	Database DBConfig                 `mapstructure:"database" yaml:"database" validate:"required"`
	Graph    GraphConfig              `mapstructure:"graph" yaml:"graph" validate:"required"`
	Security SecurityConfig           `mapstructure:"security" yaml:"security" validate:"required"`
	Memory   memory.MemoryConfig      `mapstructure:"memory" yaml:"memory"`
	Embedder embedder.EmbedderConfig  `mapstructure:"embedder" yaml:"embedder"`
	Vector   vector.VectorStoreConfig `mapstructure:"vector" yaml:"vector"`
	Events   EventsConfig             `mapstructure:"events" yaml:"events"`
	Sync     SyncConfig               `mapstructure:"sync" yaml:"sync"`
	Logging  LoggingConfig            `mapstructure:"logging" yaml:"logging"`
	Tracing  TracingConfig            `mapstructure:"tracing" yaml:"tracing"`
	Metrics  MetricsConfig            `mapstructure:"metrics" yaml:"metrics"`
}

// CoreConfig contains core application settings.
type CoreConfig struct {
	HomeDir       string        `mapstructure:"home_dir" yaml:"home_dir"`
	DataDir       string        `mapstructure:"data_dir" yaml:"data_dir"`
	CacheDir      string        `mapstructure:"cache_dir" yaml:"cache_dir"`
	ParallelLimit int           `mapstructure:"parallel_limit" yaml:"parallel_limit" validate:"min=1,max=100"`
	Timeout       time.Duration `mapstructure:"timeout" yaml:"timeout" validate:"min=1s"`
	Debug         bool          `mapstructure:"debug" yaml:"debug"`
	AgentName     string        `mapstructure:"agent_name" yaml:"agent_name" validate:"required"`
}

// DBConfig contains the local SQLite bookkeeping store's configuration
// (sync job history and event-correlation state; the knowledge graph
// itself lives in Graph below).
type DBConfig struct {
	Path           string        `mapstructure:"path" yaml:"path"`
	MaxConnections int           `mapstructure:"max_connections" yaml:"max_connections" validate:"min=1,max=100"`
	Timeout        time.Duration `mapstructure:"timeout" yaml:"timeout" validate:"min=1s"`
	WALMode        bool          `mapstructure:"wal_mode" yaml:"wal_mode"`
	AutoVacuum     bool          `mapstructure:"auto_vacuum" yaml:"auto_vacuum"`
}

// GraphConfig contains Neo4j connection settings for the Graph Access
// Layer, shared by both the private and shared knowledge layers.
type GraphConfig struct {
	URI               string        `mapstructure:"uri" yaml:"uri" validate:"required"`
	Username          string        `mapstructure:"username" yaml:"username"`
	Password          string        `mapstructure:"password" yaml:"password"`
	MaxConnections    int           `mapstructure:"max_connections" yaml:"max_connections" validate:"min=1,max=1000"`
	ConnectionTimeout time.Duration `mapstructure:"connection_timeout" yaml:"connection_timeout" validate:"min=1s"`
	PoolSize          int           `mapstructure:"pool_size" yaml:"pool_size" validate:"min=1,max=1000"`
	PoolAcquireWait   time.Duration `mapstructure:"pool_acquire_wait" yaml:"pool_acquire_wait" validate:"min=1ms"`
}

// SecurityConfig contains security-related settings.
type SecurityConfig struct {
	EncryptionAlgorithm string `mapstructure:"encryption_algorithm" yaml:"encryption_algorithm"`
	KeyDerivation       string `mapstructure:"key_derivation" yaml:"key_derivation"`
	SSLValidation       bool   `mapstructure:"ssl_validation" yaml:"ssl_validation"`
	AuditLogging        bool   `mapstructure:"audit_logging" yaml:"audit_logging"`
}

// EventsConfig contains Event Pipeline tuning.
type EventsConfig struct {
	DefaultBufferSize int `mapstructure:"default_buffer_size" yaml:"default_buffer_size" validate:"min=1"`
	WorkerCount       int `mapstructure:"worker_count" yaml:"worker_count" validate:"min=1,max=256"`
	QueueCapacity     int `mapstructure:"queue_capacity" yaml:"queue_capacity" validate:"min=1"`
}

// SyncConfig contains the Synchronizer's scheduling configuration,
// mirroring sync.Schedule for the config-file surface.
type SyncConfig struct {
	IntervalMinutes int      `mapstructure:"interval_minutes" yaml:"interval_minutes" validate:"min=0"`
	PriorityLabels  []string `mapstructure:"priority_labels" yaml:"priority_labels"`
}

// LoggingConfig contains logging configuration.
type LoggingConfig struct {
	Level  string `mapstructure:"level" yaml:"level" validate:"oneof=debug info warn error"`
	Format string `mapstructure:"format" yaml:"format" validate:"oneof=json text"`
}

// TracingConfig contains distributed tracing configuration.
type TracingConfig struct {
	Enabled  bool   `mapstructure:"enabled" yaml:"enabled"`
	Endpoint string `mapstructure:"endpoint" yaml:"endpoint"`
}

// MetricsConfig contains metrics export configuration.
type MetricsConfig struct {
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`
	Port    int  `mapstructure:"port" yaml:"port" validate:"min=1,max=65535"`
}
