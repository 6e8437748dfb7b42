package gal

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"knowledgefabric/fabricerr"
)

// Pool bounds the number of concurrent sessions a Connection will hand
// out, independent of the driver's own socket pool (MaxConnectionPoolSize
// in Open). The driver pool bounds sockets to the backend; Pool bounds
// application-level concurrency against it: Acquire blocks up to the
// configured wait, then fails with PoolExhausted.
type Pool struct {
	conn *Connection
	wait time.Duration
	slot chan struct{}

	inUse     prometheus.Gauge
	available prometheus.Gauge
}

// NewPool creates a Pool of the given size bound to conn. size and wait
// normally come straight from Config.PoolSize / Config.PoolWait.
func NewPool(conn *Connection, size int, wait time.Duration) *Pool {
	p := &Pool{
		conn: conn,
		wait: wait,
		slot: make(chan struct{}, size),
		inUse: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "fabric_gal_pool_sessions_in_use",
			Help: "Number of graph sessions currently checked out of the pool.",
		}),
		available: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "fabric_gal_pool_sessions_available",
			Help: "Number of graph session slots currently free.",
		}),
	}
	p.available.Set(float64(size))
	return p
}

// Collectors returns the pool's Prometheus metrics for registration by
// the Facade's HTTP surface.
func (p *Pool) Collectors() []prometheus.Collector {
	return []prometheus.Collector{p.inUse, p.available}
}

// PooledSession is a Session checked out of a Pool; Close both closes the
// underlying Session and returns its slot to the pool.
type PooledSession struct {
	*Session
	pool *Pool
}

// Acquire blocks until a slot is free, the Pool's wait bound elapses, or
// ctx is canceled, then opens a transactional Session in that slot.
func (p *Pool) Acquire(ctx context.Context, mode AccessMode) (*PooledSession, error) {
	waitCtx := ctx
	var cancel context.CancelFunc
	if p.wait > 0 {
		waitCtx, cancel = context.WithTimeout(ctx, p.wait)
		defer cancel()
	}

	select {
	case p.slot <- struct{}{}:
	case <-waitCtx.Done():
		if ctx.Err() != nil {
			return nil, classify(ctx.Err())
		}
		return nil, fabricerr.New(fabricerr.PoolExhausted, "timed out waiting for a graph session slot")
	}

	p.inUse.Inc()
	p.available.Dec()

	sess, err := p.conn.Session(ctx, mode)
	if err != nil {
		<-p.slot
		p.inUse.Dec()
		p.available.Inc()
		return nil, err
	}

	return &PooledSession{Session: sess, pool: p}, nil
}

// Close commits or rolls back the underlying Session and releases the
// slot back to the pool.
func (ps *PooledSession) Close(ctx context.Context) error {
	err := ps.Session.Close(ctx)
	ps.pool.inUse.Dec()
	ps.pool.available.Inc()
	<-ps.pool.slot
	return err
}
