package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"knowledgefabric/fabriclog"
)

// AssociativeMemory layers scoring, decay, and association semantics
// over a Store.
type AssociativeMemory struct {
	store    Store
	embedder EmbeddingProvider // nil when unconfigured
	weights  Weights
	lambda   float64
	clock    func() time.Time
	log      *fabriclog.Logger
}

// Option configures an AssociativeMemory at construction.
type Option func(*AssociativeMemory)

// WithEmbeddingProvider installs an EmbeddingProvider; Store and
// RecallByContext use it when present.
func WithEmbeddingProvider(p EmbeddingProvider) Option {
	return func(a *AssociativeMemory) { a.embedder = p }
}

// WithWeights overrides the default α/β/γ scoring weights.
func WithWeights(w Weights) Option {
	return func(a *AssociativeMemory) { a.weights = w }
}

// WithDecayLambda overrides the default decay constant.
func WithDecayLambda(lambda float64) Option {
	return func(a *AssociativeMemory) { a.lambda = lambda }
}

// WithClock overrides time.Now, for deterministic tests.
func WithClock(clock func() time.Time) Option {
	return func(a *AssociativeMemory) { a.clock = clock }
}

// New builds an AssociativeMemory atop store with the default weights
// and decay constant, overridable via options.
func New(store Store, log *fabriclog.Logger, opts ...Option) *AssociativeMemory {
	if log == nil {
		log = fabriclog.NewNop()
	}
	a := &AssociativeMemory{
		store:   store,
		weights: DefaultWeights(),
		lambda:  DefaultDecayLambda,
		clock:   time.Now,
		log:     log.WithField("component", "memory"),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// canonicalText builds the deterministic text projection of
// (content, context) an EmbeddingProvider embeds: content followed by
// the context pairs in sorted key order.
func canonicalText(content string, ctxMap map[string]string) string {
	keys := make([]string, 0, len(ctxMap))
	for k := range ctxMap {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var b strings.Builder
	b.WriteString(content)
	for _, k := range keys {
		fmt.Fprintf(&b, " %s=%s", k, ctxMap[k])
	}
	return b.String()
}

// Store persists a new Memory and returns its id. If importance is nil
// it defaults to 1.0 (maximally important at creation).
func (a *AssociativeMemory) Store(ctx context.Context, content string, memCtx map[string]string, typ MemoryType, importance *float64) (string, error) {
	imp := 1.0
	if importance != nil {
		imp = *importance
	}

	var embedding []float32
	if a.embedder != nil {
		emb, err := a.embedder.Embed(canonicalText(content, memCtx))
		if err != nil {
			return "", fmt.Errorf("computing embedding: %w", err)
		}
		embedding = emb
	}

	now := a.clock()
	m := Memory{
		ID: uuid.NewString(), Content: content, Context: memCtx, Type: typ,
		Timestamp: now, Importance: imp, LastAccessed: now, AccessCount: 0,
		Embedding: embedding,
	}
	if err := a.store.Create(ctx, m); err != nil {
		return "", err
	}
	return m.ID, nil
}

// RecallByID returns the memory and true if it exists, updating
// last_accessed and incrementing access_count first.
func (a *AssociativeMemory) RecallByID(ctx context.Context, id string) (Memory, bool, error) {
	if _, found, err := a.store.Get(ctx, id); err != nil || !found {
		return Memory{}, found, err
	}
	m, err := a.store.TouchAccess(ctx, id, a.clock())
	if err != nil {
		return Memory{}, false, err
	}
	return m, true, nil
}

type scored struct {
	mem   Memory
	score float64
}

// RecallByContext scores every memory against query and returns up to
// limit, ordered by decreasing score. Memories with no relevance to
// the query (no query key whose value matches exactly or by
// containment, and zero semantic similarity) are excluded rather than
// ranked by importance alone; a fully empty query
// ranks everything by decayed importance.
func (a *AssociativeMemory) RecallByContext(ctx context.Context, query ContextQuery, limit int) ([]Memory, error) {
	var queryEmbedding []float32
	if a.embedder != nil && query.Text != "" {
		emb, err := a.embedder.Embed(query.Text)
		if err != nil {
			a.log.WithError(err).Warn("embedding recall query failed; semantic similarity will contribute 0")
		} else {
			queryEmbedding = emb
		}
	}

	candidates, err := a.store.ListCandidates(ctx, "")
	if err != nil {
		return nil, err
	}

	now := a.clock()
	selective := len(query.Context) > 0 || len(queryEmbedding) > 0
	results := make([]scored, 0, len(candidates))
	for _, m := range candidates {
		match := contextMatch(query.Context, m.Context)
		sim := semanticSim(queryEmbedding, m.Embedding)
		if selective && sim == 0 && !contextRelevant(query.Context, m.Context) {
			continue
		}
		score := a.weights.Alpha*match +
			a.weights.Beta*importanceNow(m, now, a.lambda) +
			a.weights.Gamma*sim
		results = append(results, scored{mem: m, score: score})
	}
	sort.SliceStable(results, func(i, j int) bool { return results[i].score > results[j].score })

	if limit > 0 && limit < len(results) {
		results = results[:limit]
	}
	out := make([]Memory, len(results))
	for i, r := range results {
		out[i] = r.mem
	}
	return out, nil
}

// RecallByType returns up to limit memories of typ, most-recent-first.
func (a *AssociativeMemory) RecallByType(ctx context.Context, typ MemoryType, limit int) ([]Memory, error) {
	candidates, err := a.store.ListCandidates(ctx, typ)
	if err != nil {
		return nil, err
	}
	sort.SliceStable(candidates, func(i, j int) bool { return candidates[i].Timestamp.After(candidates[j].Timestamp) })
	if limit > 0 && limit < len(candidates) {
		candidates = candidates[:limit]
	}
	return candidates, nil
}

// Associate creates or strengthens a RELATED_TO edge between a and b.
// Idempotence (strength rises to the max of old and new) is the Store
// implementation's responsibility.
func (a *AssociativeMemory) Associate(ctx context.Context, memoryIDA, memoryIDB, relation string, strength float64) error {
	if strength < 0 {
		strength = 0
	}
	if strength > 1 {
		strength = 1
	}
	return a.store.Associate(ctx, memoryIDA, memoryIDB, relation, strength)
}

// Decay reports importance_now for id as of now. The decayed value is
// never persisted; every read recomputes it.
func (a *AssociativeMemory) Decay(ctx context.Context, id string, now time.Time) (float64, error) {
	m, found, err := a.store.Get(ctx, id)
	if err != nil {
		return 0, err
	}
	if !found {
		return 0, nil
	}
	return importanceNow(m, now, a.lambda), nil
}
