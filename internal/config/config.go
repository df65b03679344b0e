// Package config loads and validates graphload's YAML configuration.
package config

import (
	"time"
)

// Config is the root configuration for graphload.
type Config struct {
	Neo4j      Neo4jConfig      `mapstructure:"neo4j" yaml:"neo4j" validate:"required"`
	Load       LoadConfig       `mapstructure:"load" yaml:"load" validate:"required"`
	Checkpoint CheckpointConfig `mapstructure:"checkpoint" yaml:"checkpoint,omitempty"`
	Logging    LoggingConfig    `mapstructure:"logging" yaml:"logging"`
}

// Neo4jConfig contains connection settings for the target database.
// String fields support ${VAR_NAME} environment interpolation so that
// credentials stay out of config files.
type Neo4jConfig struct {
	URI                   string        `mapstructure:"uri" yaml:"uri" validate:"required"`
	Username              string        `mapstructure:"username" yaml:"username" validate:"required"`
	Password              string        `mapstructure:"password" yaml:"password" validate:"required"`
	Database              string        `mapstructure:"database" yaml:"database"`
	MaxConnectionPoolSize int           `mapstructure:"max_connection_pool_size" yaml:"max_connection_pool_size" validate:"min=1,max=1000"`
	ConnectionTimeout     time.Duration `mapstructure:"connection_timeout" yaml:"connection_timeout" validate:"min=1s"`
	MaxTransactionRetry   time.Duration `mapstructure:"max_transaction_retry" yaml:"max_transaction_retry"`
}

// LoadConfig contains batching and retry settings for the write path.
type LoadConfig struct {
	BatchSize        int           `mapstructure:"batch_size" yaml:"batch_size" validate:"min=1"`
	MaxAttempts      int           `mapstructure:"max_attempts" yaml:"max_attempts" validate:"min=1,max=10"`
	BackoffBase      time.Duration `mapstructure:"backoff_base" yaml:"backoff_base" validate:"min=1ms"`
	StatementTimeout time.Duration `mapstructure:"statement_timeout" yaml:"statement_timeout"`
	Workers          int           `mapstructure:"workers" yaml:"workers" validate:"min=0,max=64"`
	RatePerSecond    float64       `mapstructure:"rate_per_second" yaml:"rate_per_second" validate:"min=0"`
	ProgressRecords  int64         `mapstructure:"progress_records" yaml:"progress_records" validate:"min=0"`
	ProgressChunks   int           `mapstructure:"progress_chunks" yaml:"progress_chunks" validate:"min=0"`
	SkipRowCount     bool          `mapstructure:"skip_row_count" yaml:"skip_row_count"`
}

// CheckpointConfig contains settings for the local checkpoint store.
type CheckpointConfig struct {
	Enabled bool          `mapstructure:"enabled" yaml:"enabled"`
	Path    string        `mapstructure:"path" yaml:"path"`
	Timeout time.Duration `mapstructure:"timeout" yaml:"timeout"`
	WALMode bool          `mapstructure:"wal_mode" yaml:"wal_mode"`
}

// LoggingConfig contains logging configuration.
type LoggingConfig struct {
	Level  string `mapstructure:"level" yaml:"level" validate:"oneof=debug info warn error"`
	Format string `mapstructure:"format" yaml:"format" validate:"oneof=json text"`
}
