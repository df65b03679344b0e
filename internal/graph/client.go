package graph

import (
	"context"
	"time"

	"github.com/graphmill/graphload/internal/types"
)

// Runner provides an interface for executing Cypher against a graph database.
// Implementations must be thread-safe for concurrent access; each call acquires
// its own session so workers never share one mutably.
type Runner interface {
	// Connect establishes a connection to the graph database.
	// Returns an error if connection fails.
	Connect(ctx context.Context) error

	// Close releases all resources and closes the database connection.
	// Safe to call more than once, and safe to call after a failed operation.
	Close(ctx context.Context) error

	// Health returns the current health status of the database connection.
	Health(ctx context.Context) types.HealthStatus

	// Run executes a Cypher statement with the given parameters in a read
	// transaction and returns the materialized result set.
	Run(ctx context.Context, cypher string, params map[string]any) (Result, error)

	// RunWrite executes a Cypher statement with the given parameters in a
	// managed write transaction.
	RunWrite(ctx context.Context, cypher string, params map[string]any) (Result, error)

	// InSession runs fn with a session-scoped runner so several statements can
	// share one transactional context.
	InSession(ctx context.Context, fn func(sr SessionRunner) error) error
}

// SessionRunner executes statements within one already-open write session.
type SessionRunner interface {
	Run(ctx context.Context, cypher string, params map[string]any) (Result, error)
}

// Result represents the result of a Cypher statement execution.
type Result struct {
	// Records contains the result rows as maps of column name to value.
	Records []map[string]any

	// Columns contains the names of the columns in the result set.
	Columns []string

	// Summary contains metadata about the statement execution.
	Summary Summary
}

// Summary provides write counters and timing for one statement execution.
type Summary struct {
	// ExecutionTime is the duration of statement execution.
	ExecutionTime time.Duration

	// NodesCreated is the number of nodes created by the statement.
	NodesCreated int

	// RelationshipsCreated is the number of relationships created.
	RelationshipsCreated int

	// PropertiesSet is the number of properties set.
	PropertiesSet int
}

// Config contains configuration options for graph runners.
type Config struct {
	// URI is the connection URI for the graph database.
	// For Neo4j, use:
	//   - "bolt://host:port" for unencrypted connections
	//   - "bolt+s://host:port" for TLS encrypted connections
	//   - "neo4j://" or "neo4j+s://" for routing
	URI string

	// Username for authentication.
	Username string

	// Password for authentication.
	Password string

	// Database name to connect to.
	// Empty string uses the default database.
	Database string

	// MaxConnectionPoolSize limits the number of connections in the pool.
	// Zero or negative values use the driver default.
	MaxConnectionPoolSize int

	// ConnectionTimeout is the maximum time to wait for a connection.
	ConnectionTimeout time.Duration

	// MaxTransactionRetryTime is the maximum time the driver itself retries
	// failed transactions before graphload's own retry policy takes over.
	MaxTransactionRetryTime time.Duration
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		URI:                     "bolt://localhost:7687",
		Username:                "neo4j",
		Password:                "password",
		Database:                "",
		MaxConnectionPoolSize:   50,
		ConnectionTimeout:       30 * time.Second,
		MaxTransactionRetryTime: 30 * time.Second,
	}
}

// Validate checks if the configuration is valid.
func (c Config) Validate() error {
	if c.URI == "" {
		return types.NewError(ErrCodeInvalidConfig, "URI cannot be empty")
	}
	if c.Username == "" {
		return types.NewError(ErrCodeInvalidConfig, "Username cannot be empty")
	}
	if c.Password == "" {
		return types.NewError(ErrCodeInvalidConfig, "Password cannot be empty")
	}
	if c.ConnectionTimeout <= 0 {
		return types.NewError(ErrCodeInvalidConfig, "ConnectionTimeout must be positive")
	}
	if c.MaxTransactionRetryTime <= 0 {
		return types.NewError(ErrCodeInvalidConfig, "MaxTransactionRetryTime must be positive")
	}
	return nil
}
