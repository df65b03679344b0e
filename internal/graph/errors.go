package graph

import (
	"context"
	"errors"
	"net"
	"strings"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j/db"

	"github.com/graphmill/graphload/internal/types"
)

// Graph runner error codes
const (
	ErrCodeConnectionFailed types.ErrorCode = "GRAPH_CONNECTION_FAILED"
	ErrCodeConnectionClosed types.ErrorCode = "GRAPH_CONNECTION_CLOSED"
	ErrCodeInvalidConfig    types.ErrorCode = "GRAPH_INVALID_CONFIG"
	ErrCodeQueryFailed      types.ErrorCode = "GRAPH_QUERY_FAILED"
)

// Class is the retry classification of an execution error.
type Class int

const (
	// ClassNone means no error.
	ClassNone Class = iota

	// ClassTransient errors are expected to resolve on retry: connection
	// resets, deadlocks, lock timeouts, leader switches, statement timeouts.
	ClassTransient

	// ClassInvalid errors are structural (malformed statement or parameter
	// shape). Retrying cannot help; they surface immediately.
	ClassInvalid

	// ClassFatal errors abort the entire pipeline: authentication failures,
	// unreachable hosts at connect time.
	ClassFatal
)

// String returns the classification name for logging.
func (c Class) String() string {
	switch c {
	case ClassNone:
		return "none"
	case ClassTransient:
		return "transient"
	case ClassInvalid:
		return "invalid"
	case ClassFatal:
		return "fatal"
	default:
		return "unknown"
	}
}

// Classify maps a driver error to a retry classification. Every caller gets
// the same retry semantics by going through this single function.
//
// Connectivity failures observed mid-run classify as transient: the pool can
// re-establish a dropped connection. Failure to reach the host at all during
// the initial probe is escalated to fatal by the probe itself.
func Classify(err error) Class {
	if err == nil {
		return ClassNone
	}

	var loadErr *types.LoadError
	if errors.As(err, &loadErr) {
		if loadErr.Retryable {
			return ClassTransient
		}
		switch loadErr.Code {
		case types.NEO_AUTH_FAILED, types.NEO_UNREACHABLE, ErrCodeConnectionClosed:
			return ClassFatal
		case types.WRITE_INVALID:
			return ClassInvalid
		}
	}

	var neoErr *db.Neo4jError
	if errors.As(err, &neoErr) {
		switch {
		case strings.HasPrefix(neoErr.Code, "Neo.ClientError.Security."):
			return ClassFatal
		case strings.HasPrefix(neoErr.Code, "Neo.ClientError.Statement."),
			strings.HasPrefix(neoErr.Code, "Neo.ClientError.Procedure."),
			strings.HasPrefix(neoErr.Code, "Neo.ClientError.Schema.ConstraintValidationFailed"):
			return ClassInvalid
		case strings.HasPrefix(neoErr.Code, "Neo.TransientError."),
			strings.HasPrefix(neoErr.Code, "Neo.ClientError.Cluster.NotALeader"),
			neoErr.IsRetriable():
			return ClassTransient
		}
		return ClassInvalid
	}

	// Statement timeouts are bounded per batch and subject to the retry
	// policy, not a hard failure.
	if errors.Is(err, context.DeadlineExceeded) {
		return ClassTransient
	}

	if neo4j.IsConnectivityError(err) {
		return ClassTransient
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return ClassTransient
	}

	return ClassFatal
}
