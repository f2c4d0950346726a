package config

import (
	"os"
	"path/filepath"
	"time"

	"github.com/agentfabric/knowledgefabric/internal/memory"
	"github.com/agentfabric/knowledgefabric/internal/memory/embedder"
	"github.com/agentfabric/knowledgefabric/internal/memory/vector"
)

// DefaultConfig returns a Config with sensible default values.
func DefaultConfig() *Config {
	homeDir := getDefaultHomeDir()

	return &Config{
		Core: CoreConfig{
			HomeDir:       homeDir,
			DataDir:       filepath.Join(homeDir, "data"),
			CacheDir:      filepath.Join(homeDir, "cache"),
			ParallelLimit: 10,
			Timeout:       5 * time.Minute,
			Debug:         false,
			AgentName:     "default",
		},
		Database: DBConfig{
			Path:           filepath.Join(homeDir, "fabric.db"),
			MaxConnections: 10,
			Timeout:        30 * time.Second,
			WALMode:        true,
			AutoVacuum:     true,
		},
		Graph: GraphConfig{
			URI:               "bolt://localhost:7687",
			Username:          "neo4j",
			MaxConnections:    50,
			ConnectionTimeout: 30 * time.Second,
			PoolSize:          20,
			PoolAcquireWait:   5 * time.Second,
		},
		Security: SecurityConfig{
			EncryptionAlgorithm: "aes-256-gcm",
			KeyDerivation:       "scrypt",
			SSLValidation:       true,
			AuditLogging:        true,
		},
		Memory:   memory.DefaultMemoryConfig(),
		Embedder: embedder.DefaultEmbedderConfig(),
		Vector: vector.VectorStoreConfig{
			Backend:     "embedded",
			StoragePath: filepath.Join(homeDir, "vectors.db"),
			Dimensions:  384,
		},
		Events: EventsConfig{
			DefaultBufferSize: 64,
			WorkerCount:       4,
			QueueCapacity:     256,
		},
		Sync: SyncConfig{
			IntervalMinutes: 15,
			PriorityLabels:  []string{"Event"},
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Tracing: TracingConfig{
			Enabled:  false,
			Endpoint: "",
		},
		Metrics: MetricsConfig{
			Enabled: false,
			Port:    9090,
		},
	}
}

// getDefaultHomeDir returns the default fabric home directory.
// It uses ~/.fabric or falls back to a temporary directory if user home cannot be determined.
func getDefaultHomeDir() string {
	userHome, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), ".fabric")
	}
	return filepath.Join(userHome, ".fabric")
}
