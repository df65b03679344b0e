package graph

import (
	"context"
	"math"
	"time"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/graphmill/graphload/internal/types"
)

// Neo4jRunner implements Runner for Neo4j graph databases.
// It provides connection pooling, session-per-call execution, and health
// monitoring. One runner owns one driver-level connection pool per run.
type Neo4jRunner struct {
	config Config
	driver neo4j.DriverWithContext
}

// NewNeo4jRunner creates a new Neo4j runner with the given configuration.
// The runner must be connected via Connect() before use.
func NewNeo4jRunner(config Config) (*Neo4jRunner, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	return &Neo4jRunner{
		config: config,
	}, nil
}

// Connect establishes a connection to the Neo4j database.
// Uses exponential backoff for connection retries.
func (r *Neo4jRunner) Connect(ctx context.Context) error {
	auth := neo4j.BasicAuth(r.config.Username, r.config.Password, "")

	driverConfig := func(config *neo4j.Config) {
		config.MaxConnectionPoolSize = r.config.MaxConnectionPoolSize
		config.ConnectionAcquisitionTimeout = r.config.ConnectionTimeout
		config.MaxTransactionRetryTime = r.config.MaxTransactionRetryTime
		// Encryption is controlled by URI scheme (bolt:// vs bolt+s://).
	}

	var driver neo4j.DriverWithContext
	var lastErr error
	maxRetries := 5
	baseDelay := 100 * time.Millisecond

	for attempt := 0; attempt < maxRetries; attempt++ {
		var err error
		driver, err = neo4j.NewDriverWithContext(r.config.URI, auth, driverConfig)
		if err == nil {
			err = driver.VerifyConnectivity(ctx)
			if err == nil {
				r.driver = driver
				return nil
			}
		}

		lastErr = err

		if ctx.Err() != nil {
			return types.WrapError(ErrCodeConnectionFailed,
				"connection attempt cancelled", ctx.Err())
		}

		// An auth rejection never resolves by reconnecting.
		if Classify(err) == ClassFatal {
			break
		}

		delay := baseDelay * time.Duration(math.Pow(2, float64(attempt)))
		if delay > r.config.ConnectionTimeout {
			delay = r.config.ConnectionTimeout
		}

		select {
		case <-time.After(delay):
			continue
		case <-ctx.Done():
			return types.WrapError(ErrCodeConnectionFailed,
				"connection attempt cancelled", ctx.Err())
		}
	}

	return types.WrapError(ErrCodeConnectionFailed,
		"failed to connect to neo4j", lastErr)
}

// Close releases all resources and closes the database connection.
// Idempotent: safe to call after a failed operation or a prior Close.
func (r *Neo4jRunner) Close(ctx context.Context) error {
	if r.driver == nil {
		return nil
	}

	if err := r.driver.Close(ctx); err != nil {
		r.driver = nil
		return types.WrapError(ErrCodeConnectionClosed,
			"failed to close driver", err)
	}

	r.driver = nil
	return nil
}

// Health returns the current health status of the Neo4j connection.
func (r *Neo4jRunner) Health(ctx context.Context) types.HealthStatus {
	if r.driver == nil {
		return types.Unhealthy("driver not initialized")
	}

	healthCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := r.driver.VerifyConnectivity(healthCtx); err != nil {
		return types.Unhealthy("connectivity check failed: " + err.Error())
	}

	return types.Healthy("connected to Neo4j")
}

// Run executes a Cypher statement in a read transaction and returns the
// materialized result set.
func (r *Neo4jRunner) Run(ctx context.Context, cypher string, params map[string]any) (Result, error) {
	if r.driver == nil {
		return Result{}, types.NewError(ErrCodeConnectionClosed, "driver not connected")
	}

	startTime := time.Now()

	session := r.driver.NewSession(ctx, neo4j.SessionConfig{
		DatabaseName: r.config.Database,
	})
	defer session.Close(ctx)

	result, err := session.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		return collectResult(ctx, tx, cypher, params)
	})
	if err != nil {
		return Result{}, err
	}

	runResult := result.(Result)
	runResult.Summary.ExecutionTime = time.Since(startTime)

	return runResult, nil
}

// RunWrite executes a Cypher statement in a managed write transaction.
// The whole statement commits or rolls back atomically, which makes one
// UNWIND batch the unit of durability.
func (r *Neo4jRunner) RunWrite(ctx context.Context, cypher string, params map[string]any) (Result, error) {
	if r.driver == nil {
		return Result{}, types.NewError(ErrCodeConnectionClosed, "driver not connected")
	}

	startTime := time.Now()

	session := r.driver.NewSession(ctx, neo4j.SessionConfig{
		DatabaseName: r.config.Database,
	})
	defer session.Close(ctx)

	result, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		return collectResult(ctx, tx, cypher, params)
	})
	if err != nil {
		return Result{}, err
	}

	runResult := result.(Result)
	runResult.Summary.ExecutionTime = time.Since(startTime)

	return runResult, nil
}

// InSession runs fn with a runner bound to a single write session so several
// statements share one transactional context. The session is closed when fn
// returns, even on error.
func (r *Neo4jRunner) InSession(ctx context.Context, fn func(sr SessionRunner) error) error {
	if r.driver == nil {
		return types.NewError(ErrCodeConnectionClosed, "driver not connected")
	}

	session := r.driver.NewSession(ctx, neo4j.SessionConfig{
		DatabaseName: r.config.Database,
	})
	defer session.Close(ctx)

	return fn(&sessionRunner{session: session})
}

// sessionRunner executes statements on one open session.
type sessionRunner struct {
	session neo4j.SessionWithContext
}

func (s *sessionRunner) Run(ctx context.Context, cypher string, params map[string]any) (Result, error) {
	startTime := time.Now()

	result, err := s.session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		return collectResult(ctx, tx, cypher, params)
	})
	if err != nil {
		return Result{}, err
	}

	runResult := result.(Result)
	runResult.Summary.ExecutionTime = time.Since(startTime)

	return runResult, nil
}

// collectResult runs one statement inside tx and converts the driver records
// and summary counters into a Result.
func collectResult(ctx context.Context, tx neo4j.ManagedTransaction, cypher string, params map[string]any) (Result, error) {
	neoResult, err := tx.Run(ctx, cypher, params)
	if err != nil {
		return Result{}, err
	}

	records, err := neoResult.Collect(ctx)
	if err != nil {
		return Result{}, err
	}

	summary, err := neoResult.Consume(ctx)
	if err != nil {
		return Result{}, err
	}

	return convertResult(records, summary), nil
}

// convertResult converts Neo4j records and summary to our Result format.
func convertResult(records []*neo4j.Record, summary neo4j.ResultSummary) Result {
	result := Result{
		Records: make([]map[string]any, 0, len(records)),
		Columns: []string{},
	}

	if len(records) > 0 {
		result.Columns = records[0].Keys
	}

	for _, record := range records {
		recordMap := make(map[string]any)
		for i, key := range record.Keys {
			recordMap[key] = record.Values[i]
		}
		result.Records = append(result.Records, recordMap)
	}

	if summary != nil && summary.Counters() != nil {
		counters := summary.Counters()
		result.Summary = Summary{
			NodesCreated:         counters.NodesCreated(),
			RelationshipsCreated: counters.RelationshipsCreated(),
			PropertiesSet:        counters.PropertiesSet(),
		}
	}

	return result
}
