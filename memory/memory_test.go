package memory

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type relKey struct {
	a, b, relation string
}

// fakeStore is the in-memory Store test double, mirroring the events
// package's fakeStore for pure unit testing without a live Neo4j
// backend.
type fakeStore struct {
	mu    sync.Mutex
	byID  map[string]Memory
	rels  map[relKey]float64
}

func newFakeStore() *fakeStore {
	return &fakeStore{byID: map[string]Memory{}, rels: map[relKey]float64{}}
}

func (s *fakeStore) Create(_ context.Context, m Memory) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.byID[m.ID] = m
	return nil
}

func (s *fakeStore) Get(_ context.Context, id string) (Memory, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.byID[id]
	return m, ok, nil
}

func (s *fakeStore) TouchAccess(_ context.Context, id string, now time.Time) (Memory, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m := s.byID[id]
	m.LastAccessed = now
	m.AccessCount++
	s.byID[id] = m
	return m, nil
}

func (s *fakeStore) ListCandidates(_ context.Context, typ MemoryType) ([]Memory, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Memory
	for _, m := range s.byID {
		if typ == "" || m.Type == typ {
			out = append(out, m)
		}
	}
	return out, nil
}

func (s *fakeStore) Associate(_ context.Context, a, b, relation string, strength float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := relKey{a, b, relation}
	if existing, ok := s.rels[key]; ok && existing > strength {
		strength = existing
	}
	s.rels[key] = strength
	return nil
}

type fakeEmbedder struct {
	vectors map[string][]float32
}

func (e *fakeEmbedder) Embed(text string) ([]float32, error) {
	if v, ok := e.vectors[text]; ok {
		return v, nil
	}
	return []float32{1, 0, 0}, nil
}

func TestStoreAndRecallByID(t *testing.T) {
	store := newFakeStore()
	m := New(store, nil)

	id, err := m.Store(context.Background(), "remember this", map[string]string{"topic": "pgsql"}, MemoryEpisodic, nil)
	require.NoError(t, err)
	require.NotEmpty(t, id)

	got, found, err := m.RecallByID(context.Background(), id)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "remember this", got.Content)
	assert.Equal(t, int64(1), got.AccessCount)

	got2, _, err := m.RecallByID(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, int64(2), got2.AccessCount)
}

func TestRecallByContextOrdersByScore(t *testing.T) {
	store := newFakeStore()
	now := time.Now()
	m := New(store, nil, WithClock(func() time.Time { return now }))

	lowImportance := 0.1
	highImportance := 0.9
	_, err := m.Store(context.Background(), "unrelated", map[string]string{"topic": "weather"}, MemoryEpisodic, &lowImportance)
	require.NoError(t, err)
	bestID, err := m.Store(context.Background(), "exact match", map[string]string{"topic": "pgsql"}, MemoryEpisodic, &highImportance)
	require.NoError(t, err)

	results, err := m.RecallByContext(context.Background(), ContextQuery{Context: map[string]string{"topic": "pgsql"}}, 10)
	require.NoError(t, err)
	require.NotEmpty(t, results)
	assert.Equal(t, bestID, results[0].ID)
}

func TestRecallByContextReturnsOnlyMatchingMemories(t *testing.T) {
	store := newFakeStore()
	now := time.Now()
	m := New(store, nil, WithClock(func() time.Time { return now }))
	ctx := context.Background()

	p1auth, err := m.Store(ctx, "auth design", map[string]string{"project": "P1", "topic": "auth"}, MemoryEpisodic, nil)
	require.NoError(t, err)
	p1db, err := m.Store(ctx, "db schema", map[string]string{"project": "P1", "topic": "db"}, MemoryEpisodic, nil)
	require.NoError(t, err)
	p2auth, err := m.Store(ctx, "auth rollout", map[string]string{"project": "P2", "topic": "auth"}, MemoryEpisodic, nil)
	require.NoError(t, err)

	ids := func(ms []Memory) []string {
		out := make([]string, len(ms))
		for i, mem := range ms {
			out[i] = mem.ID
		}
		return out
	}

	byProject, err := m.RecallByContext(ctx, ContextQuery{Context: map[string]string{"project": "P1"}}, 10)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{p1auth, p1db}, ids(byProject))

	byTopic, err := m.RecallByContext(ctx, ContextQuery{Context: map[string]string{"topic": "auth"}}, 10)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{p1auth, p2auth}, ids(byTopic))
}

func TestSemanticRecallPrefersCloserEmbedding(t *testing.T) {
	store := newFakeStore()
	emb := &fakeEmbedder{vectors: map[string][]float32{
		"release notes":  {1, 0, 0},
		"login flows":    {0, 1, 0},
		"authentication": {0, 1, 0},
	}}
	m := New(store, nil, WithEmbeddingProvider(emb), WithWeights(Weights{Gamma: 1}))
	ctx := context.Background()

	_, err := m.Store(ctx, "release notes", nil, MemorySemantic, nil)
	require.NoError(t, err)
	loginID, err := m.Store(ctx, "login flows", nil, MemorySemantic, nil)
	require.NoError(t, err)

	stored, found, err := m.RecallByID(ctx, loginID)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, []float32{0, 1, 0}, stored.Embedding)

	results, err := m.RecallByContext(ctx, ContextQuery{Text: "authentication"}, 10)
	require.NoError(t, err)
	require.NotEmpty(t, results)
	assert.Equal(t, loginID, results[0].ID)
}

func TestRecallByTypeMostRecentFirst(t *testing.T) {
	store := newFakeStore()
	older := time.Now().Add(-time.Hour)
	newer := time.Now()

	store.byID["old"] = Memory{ID: "old", Type: MemorySemantic, Timestamp: older}
	store.byID["new"] = Memory{ID: "new", Type: MemorySemantic, Timestamp: newer}

	m := New(store, nil)
	results, err := m.RecallByType(context.Background(), MemorySemantic, 10)
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "new", results[0].ID)
	assert.Equal(t, "old", results[1].ID)
}

func TestAssociateIsIdempotentAtMaxStrength(t *testing.T) {
	store := newFakeStore()
	m := New(store, nil)

	require.NoError(t, m.Associate(context.Background(), "a", "b", "supports", 0.3))
	require.NoError(t, m.Associate(context.Background(), "a", "b", "supports", 0.7))
	require.NoError(t, m.Associate(context.Background(), "a", "b", "supports", 0.2))

	assert.Equal(t, 0.7, store.rels[relKey{"a", "b", "supports"}])
}

func TestDecayReducesImportanceWithAgeAndIsNotPersisted(t *testing.T) {
	store := newFakeStore()
	created := time.Now().Add(-24 * time.Hour)
	store.byID["m1"] = Memory{ID: "m1", Importance: 1.0, Timestamp: created}

	mem := New(store, nil, WithDecayLambda(0.1))
	decayed, err := mem.Decay(context.Background(), "m1", created.Add(24*time.Hour))
	require.NoError(t, err)
	assert.Less(t, decayed, 1.0)

	stored, _, err := store.Get(context.Background(), "m1")
	require.NoError(t, err)
	assert.Equal(t, 1.0, stored.Importance, "Decay must not persist the recomputed value")
}

func TestContextMatchScoring(t *testing.T) {
	assert.Equal(t, 0.0, contextMatch(map[string]string{}, map[string]string{"a": "1"}))

	exact := contextMatch(map[string]string{"topic": "db"}, map[string]string{"topic": "db"})
	assert.Equal(t, 1.0, exact)

	partial := contextMatch(map[string]string{"topic": "postgres"}, map[string]string{"topic": "postgresql"})
	assert.InDelta(t, 0.75, partial, 1e-9)

	absent := contextMatch(map[string]string{"topic": "db"}, map[string]string{"other": "x"})
	assert.Equal(t, 0.0, absent)
}

func TestSemanticSimZeroWithoutEmbeddings(t *testing.T) {
	assert.Equal(t, 0.0, semanticSim(nil, []float32{1, 0}))
	assert.Equal(t, 1.0, semanticSim([]float32{1, 0}, []float32{1, 0}))
}
