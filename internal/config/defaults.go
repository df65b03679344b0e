package config

import (
	"os"
	"path/filepath"
	"time"
)

// DefaultConfig returns a Config with sensible default values. Connection
// settings fall back to the conventional NEO4J_* environment variables when
// set, so a bare invocation against a local database needs no config file.
func DefaultConfig() *Config {
	return &Config{
		Neo4j: Neo4jConfig{
			URI:                   envOr("NEO4J_URI", "bolt://localhost:7687"),
			Username:              envOr("NEO4J_USER", "neo4j"),
			Password:              envOr("NEO4J_PASSWORD", "password"),
			Database:              os.Getenv("NEO4J_DATABASE"),
			MaxConnectionPoolSize: 50,
			ConnectionTimeout:     30 * time.Second,
			MaxTransactionRetry:   30 * time.Second,
		},
		Load: LoadConfig{
			BatchSize:       1000,
			MaxAttempts:     3,
			BackoffBase:     200 * time.Millisecond,
			Workers:         1,
			ProgressRecords: 50000,
			ProgressChunks:  25,
		},
		Checkpoint: CheckpointConfig{
			Enabled: true,
			Path:    defaultCheckpointPath(),
			Timeout: 30 * time.Second,
			WALMode: true,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

func defaultCheckpointPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "graphload.db"
	}
	return filepath.Join(home, ".graphload", "graphload.db")
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
