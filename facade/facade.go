// Package facade implements the knowledge fabric's single entry point:
// it wires the Graph Access Layer, Schema Registry, Repositories, Event
// Pipeline, Associative Memory, Dual Knowledge Manager, and Synchronizer
// into one Init/Start/Stop lifecycle and exposes the event, memory, and
// knowledge surfaces.
package facade

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"knowledgefabric/dkm"
	"knowledgefabric/events"
	"knowledgefabric/fabricconfig"
	"knowledgefabric/fabriclog"
	"knowledgefabric/gal"
	"knowledgefabric/memory"
	"knowledgefabric/repository"
	"knowledgefabric/schema"
	"knowledgefabric/synchronizer"
)

// Default ManagedKG names. A deployment with more than one local agent
// graph registers additional names via RegisterManagedKG. KGLocal is
// always present; KGGlobal is registered only in dual mode (a shared
// backend is configured).
const (
	KGLocal  = "local"
	KGGlobal = "global"
)

// Facade is the knowledge fabric's single entry point.
type Facade struct {
	cfg   fabricconfig.Config
	log   *fabriclog.Logger
	clock func() time.Time

	conn       *gal.Connection
	sharedConn *gal.Connection
	pool       *gal.Pool
	sharedPool *gal.Pool

	Registry *schema.Registry

	Domains         *repository.DomainRepo
	Projects        *repository.ProjectRepo
	Components      *repository.ComponentRepo
	Requirements    *repository.RequirementRepo
	Implementations *repository.ImplementationRepo
	Patterns        *repository.PatternRepo
	Decisions       *repository.DecisionRepo
	Agents          *repository.AgentRepo
	Relationships   *repository.RelationshipRepo

	genericLocal  *repository.GenericRepo
	genericGlobal *repository.GenericRepo

	Events *events.Processor
	Memory *memory.AssociativeMemory
	DKM    *dkm.DKM
	Sync   *synchronizer.Synchronizer

	redisLock  *synchronizer.RedisLock
	pgHistory  *synchronizer.PostgresHistory
	httpServer *httpSurface

	started bool
}

// eventLoggerAdapter lets dkm.DKM emit events through the Event Pipeline
// without importing it directly, per dkm.EventLogger's narrow interface.
type eventLoggerAdapter struct {
	proc  *events.Processor
	clock func() time.Time
}

func (a eventLoggerAdapter) Log(ctx context.Context, eventType, source string, metadata map[string]any) error {
	return a.proc.Log(ctx, events.Event{
		ID: uuid.NewString(), Type: eventType, Timestamp: a.clock(), Source: source, Metadata: metadata,
	})
}

// Init constructs every component (including the GAL pools) and opens
// the graph backend(s), but does not yet create Schema Registry
// constraints or start any worker pool; call Start for that. Splitting construction from
// lifecycle this way lets a caller register ManagedKGs, sync rules,
// schema mappings, and policies between Init and Start.
func Init(ctx context.Context, cfg fabricconfig.Config) (*Facade, error) {
	log := fabriclog.New(fabriclog.Config{
		Service: "knowledge-fabric", Level: parseLevel(cfg.LogLevel), Format: fabriclog.Format(cfg.LogFormat),
	})

	conn, err := gal.Open(ctx, galConfig(cfg.Neo4j, cfg.Pool), log)
	if err != nil {
		return nil, fmt.Errorf("opening individual graph backend: %w", err)
	}

	var sharedConn *gal.Connection
	if cfg.DualModeEnabled() {
		sharedConn, err = gal.Open(ctx, galConfig(cfg.Neo4jShared, cfg.Pool), log)
		if err != nil {
			_ = conn.Close(ctx)
			return nil, fmt.Errorf("opening shared graph backend: %w", err)
		}
	}

	clock := time.Now
	registry := schema.New()

	f := &Facade{
		cfg: cfg, log: log, clock: clock,
		conn: conn, sharedConn: sharedConn,
		pool: gal.NewPool(conn, cfg.Pool.Size, cfg.Pool.Wait()),

		Registry: registry,

		Domains:         repository.NewDomainRepo(conn, registry, clock),
		Projects:        repository.NewProjectRepo(conn, registry, clock),
		Components:      repository.NewComponentRepo(conn, registry, clock),
		Requirements:    repository.NewRequirementRepo(conn, registry, clock),
		Implementations: repository.NewImplementationRepo(conn, registry, clock),
		Patterns:        repository.NewPatternRepo(conn, registry, clock),
		Decisions:       repository.NewDecisionRepo(conn, registry, clock),
		Agents:          repository.NewAgentRepo(conn, registry, clock),
		Relationships:   repository.NewRelationshipRepo(conn, registry, clock),

		genericLocal: repository.NewGenericRepo(conn, registry),
	}

	// A half-built Facade must not leave connections behind.
	built := false
	defer func() {
		if built {
			return
		}
		if f.redisLock != nil {
			_ = f.redisLock.Close()
		}
		if f.pgHistory != nil {
			_ = f.pgHistory.Close()
		}
		if sharedConn != nil {
			_ = sharedConn.Close(ctx)
		}
		_ = conn.Close(ctx)
	}()

	if sharedConn != nil {
		f.sharedPool = gal.NewPool(sharedConn, cfg.Pool.Size, cfg.Pool.Wait())
		f.genericGlobal = repository.NewGenericRepo(sharedConn, registry)
	}

	eventRepo := repository.NewEventRepo(conn)
	f.Events = events.NewProcessor(events.Config{
		QueueCapacity: cfg.Events.QueueCapacity, WorkerCount: cfg.Events.WorkerCount,
		BackpressureWait: cfg.Events.BackpressureWait(),
	}, eventRepo, log)

	embedder, err := buildEmbeddingProvider(cfg.EmbeddingProvider)
	if err != nil {
		return nil, err
	}
	memRepo := repository.NewMemoryRepo(conn)
	memOpts := []memory.Option{
		memory.WithWeights(memory.Weights{Alpha: cfg.Memory.Weights.Alpha, Beta: cfg.Memory.Weights.Beta, Gamma: cfg.Memory.Weights.Gamma}),
		memory.WithDecayLambda(cfg.Memory.DecayLambda),
	}
	if embedder != nil {
		memOpts = append(memOpts, memory.WithEmbeddingProvider(embedder))
	}
	f.Memory = memory.New(memRepo, log, memOpts...)

	// The meta-graph of registrations lives in the shared graph when
	// dual mode is on, so every agent process sees the same rule set.
	metaStore := dkm.GraphStore(f.genericLocal)
	if f.genericGlobal != nil {
		metaStore = f.genericGlobal
	}
	f.DKM = dkm.New(eventLoggerAdapter{proc: f.Events, clock: clock}, clock, log, dkm.WithMetaStore(metaStore))
	if _, err := f.DKM.CreateManagedKG(KGLocal, "local", "default private graph", f.genericLocal); err != nil {
		return nil, err
	}
	if f.genericGlobal != nil {
		if _, err := f.DKM.CreateManagedKG(KGGlobal, "global", "shared graph", f.genericGlobal); err != nil {
			return nil, err
		}
	}

	syncOpts, err := f.buildSyncOptions(ctx, cfg)
	if err != nil {
		return nil, err
	}
	syncOpts = append(syncOpts, synchronizer.WithEventLogger(eventLoggerAdapter{proc: f.Events, clock: clock}))
	f.Sync = synchronizer.New(synchronizer.Config{
		QueueCapacity: cfg.Sync.PriorityQueueCapacity, WorkerCount: cfg.Sync.WorkerCount,
	}, f.DKM, log, syncOpts...)

	if cfg.HTTPAddr != "" {
		f.httpServer = newHTTPSurface(cfg.HTTPAddr, f.pool, f.sharedPool, log)
	}

	built = true
	return f, nil
}

func (f *Facade) buildSyncOptions(ctx context.Context, cfg fabricconfig.Config) ([]synchronizer.Option, error) {
	var opts []synchronizer.Option
	if cfg.RedisURL != "" {
		lock, err := synchronizer.NewRedisLock(ctx, synchronizer.RedisLockConfig{RedisURL: cfg.RedisURL, KeyPrefix: "fabric:sync:"})
		if err != nil {
			return nil, fmt.Errorf("connecting synchronizer coalescing lock: %w", err)
		}
		f.redisLock = lock
		opts = append(opts, synchronizer.WithCoalescingLock(lock))
	}
	if cfg.PostgresDSN != "" {
		hist, err := synchronizer.NewPostgresHistory(cfg.PostgresDSN)
		if err != nil {
			return nil, fmt.Errorf("connecting synchronizer run history: %w", err)
		}
		f.pgHistory = hist
		opts = append(opts, synchronizer.WithHistory(hist))
	}
	return opts, nil
}

// RegisterManagedKG registers an additional ManagedKG (e.g. one local
// graph per agent) bound to conn, or to the individual/shared backend
// already opened by this Facade when conn is nil.
func (f *Facade) RegisterManagedKG(name, kind, description string, conn *gal.Connection) (*dkm.ManagedKG, error) {
	store := f.genericLocal
	if conn != nil {
		store = repository.NewGenericRepo(conn, f.Registry)
	} else if kind == "global" && f.genericGlobal != nil {
		store = f.genericGlobal
	}
	return f.DKM.CreateManagedKG(name, kind, description, store)
}

// RegisterSyncRule declares rule with the DKM and wires its cadence
// (scheduled cron entry, event subscription, or manual-only) with the
// Synchronizer.
func (f *Facade) RegisterSyncRule(rule dkm.SynchronizationRule) error {
	if rule.Cadence.Kind == dkm.CadenceScheduled && rule.Cadence.Period <= 0 {
		rule.Cadence.Period = f.cfg.Sync.DefaultPeriod()
	}
	if err := f.DKM.RegisterRule(rule); err != nil {
		return err
	}
	return f.Sync.RegisterForCadence(rule, f.Events)
}

// RegisterSchemaMapping declares a SchemaMapping with the DKM.
func (f *Facade) RegisterSchemaMapping(mapping dkm.SchemaMapping) error {
	return f.DKM.RegisterMapping(mapping)
}

// RegisterPolicy declares a KnowledgePolicy with the DKM.
func (f *Facade) RegisterPolicy(policy dkm.KnowledgePolicy) error {
	return f.DKM.RegisterPolicy(policy)
}

// ExtendSchemaForDomain registers additional node/relationship schemas
// under a domain namespace.
func (f *Facade) ExtendSchemaForDomain(domainName string, extension schema.DomainExtension) error {
	return f.Registry.ExtendForDomain(domainName, extension)
}

// Start brings up the fabric: GAL pools (already constructed by Init;
// nothing further to open), Schema Registry bootstrap, Event Processor
// workers, then the Synchronizer.
func (f *Facade) Start(ctx context.Context) error {
	if f.started {
		return nil
	}

	if err := f.Registry.Initialize(ctx, f.conn); err != nil {
		return fmt.Errorf("initializing schema on individual graph: %w", err)
	}
	if f.sharedConn != nil {
		if err := f.Registry.Initialize(ctx, f.sharedConn); err != nil {
			return fmt.Errorf("initializing schema on shared graph: %w", err)
		}
	}

	if err := f.DKM.PersistMeta(ctx); err != nil {
		return fmt.Errorf("persisting knowledge-management meta-graph: %w", err)
	}

	f.Events.Start(ctx)
	f.Sync.Start(ctx)

	if f.httpServer != nil {
		f.httpServer.start()
	}

	f.started = true
	f.log.Info("knowledge fabric started")
	return nil
}

// Stop drains the fabric in the reverse of Start's order: the HTTP
// surface first, then the Synchronizer, then the Event Processor
// (fully drained), then the graph connections.
func (f *Facade) Stop(ctx context.Context) error {
	if !f.started {
		return nil
	}

	if f.httpServer != nil {
		if err := f.httpServer.stop(ctx); err != nil {
			f.log.WithError(err).Warn("http surface shutdown did not complete cleanly")
		}
	}

	f.Sync.Drain()
	f.Events.Stop(true)

	if f.pgHistory != nil {
		_ = f.pgHistory.Close()
	}
	if f.redisLock != nil {
		_ = f.redisLock.Close()
	}

	var firstErr error
	if f.sharedConn != nil {
		if err := f.sharedConn.Close(ctx); err != nil {
			firstErr = err
		}
	}
	if err := f.conn.Close(ctx); err != nil && firstErr == nil {
		firstErr = err
	}

	f.started = false
	f.log.Info("knowledge fabric stopped")
	return firstErr
}

func galConfig(n fabricconfig.Neo4jConfig, p fabricconfig.PoolConfig) gal.Config {
	return gal.Config{
		URI: n.URI, Username: n.Username, Password: n.Password, Database: n.Database,
		PoolSize: p.Size, PoolWait: p.Wait(), MaxRetryTime: p.MaxRetryTime(),
	}
}

func parseLevel(level string) logrus.Level {
	l, err := logrus.ParseLevel(level)
	if err != nil {
		return logrus.InfoLevel
	}
	return l
}
