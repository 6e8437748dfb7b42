package gal

import (
	"context"
	"errors"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j/db"

	"knowledgefabric/fabricerr"
)

// classify maps a driver-level error to a fabricerr.Kind. Neo4jError
// exposes IsRetriable(), which the driver sets for transient conditions
// (leader switchover, deadlocks, resource exhaustion); those become
// BackendUnavailable so the retry loop in Connection.runWithRetry will retry them.
// Everything else from the driver is a QueryError (bad Cypher, constraint
// violation, type mismatch): retrying would not help.
func classify(err error) error {
	if err == nil {
		return nil
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return fabricerr.Wrap(fabricerr.Timeout, "graph operation deadline exceeded", err)
	}
	if errors.Is(err, context.Canceled) {
		return fabricerr.Wrap(fabricerr.Cancelled, "graph operation canceled", err)
	}

	var neo4jErr *db.Neo4jError
	if errors.As(err, &neo4jErr) {
		if neo4jErr.IsRetriable() {
			return fabricerr.Wrap(fabricerr.BackendUnavailable, "transient backend error", err)
		}
		return fabricerr.Wrap(fabricerr.QueryError, "graph query rejected", err)
	}

	// Anything else (connection refused, DNS failure, TLS handshake)
	// is treated as connectivity loss rather than a bad query.
	return fabricerr.Wrap(fabricerr.BackendUnavailable, "graph backend unavailable", err)
}
