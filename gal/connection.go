package gal

import (
	"context"
	"errors"
	"time"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"github.com/sony/gobreaker"

	"knowledgefabric/fabricerr"
	"knowledgefabric/fabriclog"
)

// AccessMode selects a read or write session, mirroring neo4j.AccessMode
// without leaking the driver package to callers.
type AccessMode int

const (
	AccessRead AccessMode = iota
	AccessWrite
)

// Row is a single Cypher result record, keyed by the statement's RETURN
// aliases. Rows is a materialized result set; the fabric's record
// volumes don't warrant streaming.
type Row map[string]any
type Rows []Row

// Connection owns one neo4j driver bound to one backend (individual or
// shared graph). It wraps every Cypher round trip in a gobreaker circuit
// breaker so a backend outage fails fast instead of queuing retries
// behind a dead socket.
type Connection struct {
	driver   neo4j.DriverWithContext
	database string

	maxRetryTime time.Duration
	breaker      *gobreaker.CircuitBreaker
	log          *fabriclog.Logger
}

// Open establishes a driver, verifies connectivity once, and returns a
// ready Connection.
func Open(ctx context.Context, cfg Config, log *fabriclog.Logger) (*Connection, error) {
	if log == nil {
		log = fabriclog.NewNop()
	}

	driver, err := neo4j.NewDriverWithContext(
		cfg.URI,
		neo4j.BasicAuth(cfg.Username, cfg.Password, ""),
		func(c *neo4j.Config) {
			if cfg.PoolSize > 0 {
				c.MaxConnectionPoolSize = cfg.PoolSize
			}
			if cfg.PoolWait > 0 {
				c.ConnectionAcquisitionTimeout = cfg.PoolWait
			}
		},
	)
	if err != nil {
		return nil, fabricerr.Wrap(fabricerr.ConfigurationError, "constructing neo4j driver", err)
	}

	if err := driver.VerifyConnectivity(ctx); err != nil {
		_ = driver.Close(ctx)
		return nil, fabricerr.Wrap(fabricerr.BackendUnavailable, "verifying graph backend connectivity", err)
	}

	breakerSettings := gobreaker.Settings{
		Name:        "gal." + cfg.Database,
		MaxRequests: 1,
		Interval:    60 * time.Second,
		Timeout:     10 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
	}

	conn := &Connection{
		driver:       driver,
		database:     cfg.Database,
		maxRetryTime: cfg.MaxRetryTime,
		breaker:      gobreaker.NewCircuitBreaker(breakerSettings),
		log:          log.WithField("component", "gal"),
	}
	return conn, nil
}

// Close releases the underlying driver and all pooled sockets.
func (c *Connection) Close(ctx context.Context) error {
	return c.driver.Close(ctx)
}

// Query runs a single autocommit statement through the circuit breaker
// with bounded retry on BackendUnavailable, and materializes the result.
// Use Session for multi-statement transactions that must commit or
// rollback together.
func (c *Connection) Query(ctx context.Context, mode AccessMode, statement string, params map[string]any) (Rows, error) {
	var rows Rows

	op := func() (any, error) {
		sess := c.newSession(ctx, mode)
		defer sess.Close(ctx)

		result, err := sess.Run(ctx, statement, params)
		if err != nil {
			return nil, classify(err)
		}
		records, err := result.Collect(ctx)
		if err != nil {
			return nil, classify(err)
		}
		rows = make(Rows, 0, len(records))
		for _, rec := range records {
			rows = append(rows, Row(rec.AsMap()))
		}
		return nil, nil
	}

	if err := c.runWithRetry(ctx, op); err != nil {
		return nil, err
	}
	return rows, nil
}

// runWithRetry retries BackendUnavailable failures with exponential
// backoff (100ms, 200ms, 400ms, ...) until maxRetryTime elapses, gating
// every attempt behind the circuit breaker so a tripped breaker fails
// immediately rather than burning the retry budget on a dead backend.
func (c *Connection) runWithRetry(ctx context.Context, op func() (any, error)) error {
	deadline := time.Now().Add(c.maxRetryTime)
	backoff := 100 * time.Millisecond

	for {
		_, err := c.breaker.Execute(op)
		if err == nil {
			return nil
		}
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			// An open breaker refuses calls until its cooldown; not retried.
			return fabricerr.Wrap(fabricerr.BackendUnavailable, "graph backend circuit open", err)
		}
		if !fabricerr.Is(err, fabricerr.BackendUnavailable) {
			return err
		}
		if time.Now().Add(backoff).After(deadline) {
			return err
		}

		c.log.WithError(err).Warn("retrying graph operation after transient failure")
		select {
		case <-ctx.Done():
			return classify(ctx.Err())
		case <-time.After(backoff):
		}
		backoff *= 2
	}
}

func (c *Connection) newSession(ctx context.Context, mode AccessMode) neo4j.SessionWithContext {
	neoMode := neo4j.AccessModeRead
	if mode == AccessWrite {
		neoMode = neo4j.AccessModeWrite
	}
	return c.driver.NewSession(ctx, neo4j.SessionConfig{
		AccessMode:   neoMode,
		DatabaseName: c.database,
	})
}
