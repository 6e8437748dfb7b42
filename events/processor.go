package events

import (
	"context"
	"hash/fnv"
	"sync"
	"sync/atomic"
	"time"

	"knowledgefabric/fabricerr"
	"knowledgefabric/fabriclog"
)

// Store persists an Event node into the graph before it becomes visible
// to dispatch. The Facade binds this to the event repository.
type Store interface {
	Persist(ctx context.Context, e Event) error
}

// Config sizes the pipeline, mirroring fabricconfig.EventsConfig.
// QueueCapacity is the total dispatch buffer, split evenly across the
// worker shards.
type Config struct {
	QueueCapacity    int
	WorkerCount      int
	BackpressureWait time.Duration
}

type registeredFilter struct {
	pattern string
	filter  Filter
}

type registeredHandler struct {
	pattern string
	handler Handler
}

// shard is one worker's private queue. Events are routed to a shard by
// their Source, so all events from one emitter land on the same shard
// and are dispatched in emission order; events from distinct emitters
// may interleave.
type shard struct {
	reserve chan struct{}
	queue   chan Event
}

// Processor owns the dispatch pipeline: per-worker bounded FIFO shards
// applying filters, then handlers, then correlation rules.
type Processor struct {
	cfg   Config
	store Store
	log   *fabriclog.Logger

	shards []*shard

	mu           sync.RWMutex
	filters      []registeredFilter
	handlers     []registeredHandler
	correlations []*correlationTracker

	stopped atomic.Bool
	abort   chan struct{}
	wg      sync.WaitGroup

	// closeMu lets Stop wait for every in-flight Log call to finish
	// sending to its shard before closing the queues, so Stop never
	// races a send on a closed channel.
	closeMu sync.RWMutex
}

// NewProcessor builds a Processor ready for Start. Registration methods
// may be called before or after Start; both read the registries under a
// lock on every dispatch.
func NewProcessor(cfg Config, store Store, log *fabriclog.Logger) *Processor {
	if log == nil {
		log = fabriclog.NewNop()
	}

	shardCount := cfg.WorkerCount
	if shardCount <= 0 {
		shardCount = 1
	}
	perShard := cfg.QueueCapacity / shardCount
	if perShard <= 0 {
		perShard = 1
	}
	shards := make([]*shard, shardCount)
	for i := range shards {
		shards[i] = &shard{
			reserve: make(chan struct{}, perShard),
			queue:   make(chan Event, perShard),
		}
	}

	return &Processor{
		cfg:    cfg,
		store:  store,
		log:    log.WithField("component", "events"),
		shards: shards,
		abort:  make(chan struct{}),
	}
}

// RegisterFilter adds a filter keyed by an event-type glob pattern.
func (p *Processor) RegisterFilter(pattern string, f Filter) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.filters = append(p.filters, registeredFilter{pattern, f})
}

// RegisterHandler adds a handler keyed by an event-type glob pattern.
func (p *Processor) RegisterHandler(pattern string, h Handler) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.handlers = append(p.handlers, registeredHandler{pattern, h})
}

// RegisterCorrelation adds a correlation rule.
func (p *Processor) RegisterCorrelation(rule CorrelationRule) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.correlations = append(p.correlations, newCorrelationTracker(rule))
}

// Start launches one worker per shard. Call once.
func (p *Processor) Start(ctx context.Context) {
	for i := 0; i < p.cfg.WorkerCount; i++ {
		p.wg.Add(1)
		go p.work(ctx, p.shards[i])
	}
}

func (p *Processor) shardFor(source string) *shard {
	h := fnv.New32a()
	_, _ = h.Write([]byte(source))
	return p.shards[h.Sum32()%uint32(len(p.shards))]
}

// Log persists e and enqueues it for dispatch. If the emitter's shard
// is already at capacity, Log blocks up to cfg.BackpressureWait before
// failing with BackpressureExceeded, in which case e is never persisted.
func (p *Processor) Log(ctx context.Context, e Event) error {
	p.closeMu.RLock()
	defer p.closeMu.RUnlock()

	if p.stopped.Load() {
		return fabricerr.New(fabricerr.ProcessorStopped, "event processor has been stopped")
	}

	sh := p.shardFor(e.Source)
	if err := p.acquireSlot(ctx, sh); err != nil {
		return err
	}

	if err := p.store.Persist(ctx, e); err != nil {
		<-sh.reserve
		return err
	}

	sh.queue <- e
	return nil
}

func (p *Processor) acquireSlot(ctx context.Context, sh *shard) error {
	select {
	case sh.reserve <- struct{}{}:
		return nil
	default:
	}

	timer := time.NewTimer(p.cfg.BackpressureWait)
	defer timer.Stop()

	select {
	case sh.reserve <- struct{}{}:
		return nil
	case <-timer.C:
		return fabricerr.New(fabricerr.BackpressureExceeded, "event dispatch queue is full")
	case <-ctx.Done():
		return fabricerr.New(fabricerr.Cancelled, "log canceled while waiting for queue capacity")
	}
}

func (p *Processor) work(ctx context.Context, sh *shard) {
	defer p.wg.Done()
	for {
		select {
		case <-p.abort:
			return
		case e, ok := <-sh.queue:
			if !ok {
				return
			}
			<-sh.reserve
			p.dispatch(ctx, e)
		}
	}
}

func (p *Processor) dispatch(ctx context.Context, e Event) {
	p.mu.RLock()
	filters := p.filters
	handlers := p.handlers
	correlations := p.correlations
	p.mu.RUnlock()

	for _, f := range filters {
		if matchGlob(f.pattern, e.Type) && !f.filter(e) {
			return
		}
	}

	for _, h := range handlers {
		if !matchGlob(h.pattern, e.Type) {
			continue
		}
		if err := h.handler(e); err != nil {
			p.log.WithError(err).WithField("event_type", e.Type).WithField("event_id", e.ID).
				Warn("event handler returned an error")
		}
	}

	for _, tracker := range correlations {
		if emitted, ok := tracker.observe(e); ok {
			if err := p.Log(ctx, emitted); err != nil {
				p.log.WithError(err).WithField("rule", tracker.rule.Name).
					Warn("failed to log correlated event")
			}
		}
	}
}

// Stop halts the worker pool. With drain=true, every already-queued
// event is processed before Stop returns. With drain=false, queued
// events are discarded and workers return immediately. After Stop,
// subsequent Log calls fail with ProcessorStopped.
func (p *Processor) Stop(drain bool) {
	if !p.stopped.CompareAndSwap(false, true) {
		return
	}

	p.closeMu.Lock()
	if drain {
		for _, sh := range p.shards {
			close(sh.queue)
		}
	} else {
		close(p.abort)
	}
	p.closeMu.Unlock()

	p.wg.Wait()
}
