// Package gal implements the Graph Access Layer: connection handling,
// parameterized Cypher execution, and a bounded connection pool over a
// bolt-style Neo4j backend.
package gal

import "time"

// Config is a single backend binding: one bolt URI, credentials, and
// the pool/retry knobs.
type Config struct {
	URI      string
	Username string
	Password string
	Database string

	PoolSize     int
	PoolWait     time.Duration
	MaxRetryTime time.Duration
}
