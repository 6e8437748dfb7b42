package dkm

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"knowledgefabric/fabricerr"
)

// fakeStore is an in-memory GraphStore test double, so DKM's
// synchronization logic is exercised without a live Neo4j backend.
type fakeStore struct {
	mu    sync.Mutex
	nodes map[string]map[string]GenericNode // label -> id -> node
	rels  map[string][]Relationship         // "label/id" -> outgoing
}

func newFakeStore() *fakeStore {
	return &fakeStore{nodes: map[string]map[string]GenericNode{}, rels: map[string][]Relationship{}}
}

func (s *fakeStore) put(label string, n GenericNode) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.nodes[label] == nil {
		s.nodes[label] = map[string]GenericNode{}
	}
	s.nodes[label][n.ID] = n
}

func (s *fakeStore) addRelationship(label, id string, rel Relationship) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := label + "/" + id
	s.rels[key] = append(s.rels[key], rel)
}

func (s *fakeStore) ListByLabel(_ context.Context, label string) ([]GenericNode, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []GenericNode
	for _, n := range s.nodes[label] {
		out = append(out, n)
	}
	return out, nil
}

func (s *fakeStore) FindByID(_ context.Context, label, id string) (GenericNode, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n, ok := s.nodes[label][id]
	return n, ok, nil
}

func (s *fakeStore) Upsert(_ context.Context, label string, props map[string]any) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, _ := props["id"].(string)
	if s.nodes[label] == nil {
		s.nodes[label] = map[string]GenericNode{}
	}
	_, existed := s.nodes[label][id]
	s.nodes[label][id] = GenericNode{Label: label, ID: id, Props: props}
	return !existed, nil
}

func (s *fakeStore) OutgoingRelationships(_ context.Context, label, id string) ([]Relationship, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rels[label+"/"+id], nil
}

func (s *fakeStore) EnsureRelationship(_ context.Context, srcLabel, srcID, tgtLabel, tgtID, relType string, props map[string]any) error {
	s.addRelationship(srcLabel, srcID, Relationship{Type: relType, TargetLabel: tgtLabel, TargetID: tgtID, Props: props})
	return nil
}

type fakeEventLogger struct {
	mu   sync.Mutex
	logs []string
}

func (l *fakeEventLogger) Log(_ context.Context, eventType, source string, metadata map[string]any) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.logs = append(l.logs, eventType)
	return nil
}

func newTestDKM(t *testing.T) (*DKM, *fakeStore, *fakeStore, *fakeEventLogger) {
	t.Helper()
	local := newFakeStore()
	global := newFakeStore()
	logger := &fakeEventLogger{}
	d := New(logger, nil, nil)
	_, err := d.CreateManagedKG("local_agent_pm", "local", "", local)
	require.NoError(t, err)
	_, err = d.CreateManagedKG("global", "global", "", global)
	require.NoError(t, err)
	return d, local, global, logger
}

func TestLocalToGlobalPromotion(t *testing.T) {
	d, local, _, logger := newTestDKM(t)
	now := time.Now()
	local.put("Decision", GenericNode{Label: "Decision", ID: "dec-1", Props: map[string]any{
		"id": "dec-1", "title": "use postgres", "status": "approved", "updated_at": now,
	}})

	require.NoError(t, d.RegisterRule(SynchronizationRule{
		Name: "promote-decisions", Source: "local_agent_pm", Target: "global",
		Direction: LocalToGlobal, Labels: []string{"Decision"},
	}))

	result, err := d.SynchronizeRule(context.Background(), "promote-decisions")
	require.NoError(t, err)
	assert.Equal(t, 1, result.ItemsConsidered)
	assert.Equal(t, 1, result.ItemsApplied)
	assert.Equal(t, 0, result.ItemsVetoed)
	assert.Contains(t, logger.logs, "knowledge.synchronized")

	// Second run with no source changes applies zero items.
	result2, err := d.SynchronizeRule(context.Background(), "promote-decisions")
	require.NoError(t, err)
	assert.Equal(t, 1, result2.ItemsConsidered)
	assert.Equal(t, 0, result2.ItemsApplied)
}

func TestPolicyVeto(t *testing.T) {
	d, local, global, _ := newTestDKM(t)
	now := time.Now()
	local.put("Decision", GenericNode{Label: "Decision", ID: "draft-1", Props: map[string]any{
		"id": "draft-1", "status": "draft", "updated_at": now,
	}})
	local.put("Decision", GenericNode{Label: "Decision", ID: "approved-1", Props: map[string]any{
		"id": "approved-1", "status": "approved", "updated_at": now,
	}})

	require.NoError(t, d.RegisterPolicy(KnowledgePolicy{
		Name: "no-drafts-shared", Kind: PolicySharing, Scope: []string{"Decision"},
		PredicateScript: `return props.status !== "draft";`,
	}))
	require.NoError(t, d.RegisterRule(SynchronizationRule{
		Name: "promote-decisions", Source: "local_agent_pm", Target: "global",
		Direction: LocalToGlobal, Labels: []string{"Decision"},
	}))

	result, err := d.SynchronizeRule(context.Background(), "promote-decisions")
	require.NoError(t, err)
	assert.Equal(t, 2, result.ItemsConsidered)
	assert.Equal(t, 1, result.ItemsApplied)
	assert.Equal(t, 1, result.ItemsVetoed)

	_, found, err := global.FindByID(context.Background(), "Decision", "draft-1")
	require.NoError(t, err)
	assert.False(t, found)

	_, found, err = global.FindByID(context.Background(), "Decision", "approved-1")
	require.NoError(t, err)
	assert.True(t, found)
}

func TestSchemaMappingRenamesFields(t *testing.T) {
	d, local, global, _ := newTestDKM(t)
	local.put("Decision", GenericNode{Label: "Decision", ID: "dec-1", Props: map[string]any{
		"id": "dec-1", "title": "x", "updated_at": time.Now(),
	}})
	require.NoError(t, d.RegisterMapping(SchemaMapping{
		Name: "decision-to-archived", SourceLabel: "Decision", TargetLabel: "ArchivedDecision",
		FieldMap: map[string]string{"title": "archivedTitle"},
	}))
	require.NoError(t, d.RegisterRule(SynchronizationRule{
		Name: "archive", Source: "local_agent_pm", Target: "global",
		Direction: LocalToGlobal, Labels: []string{"Decision"},
	}))

	_, err := d.SynchronizeRule(context.Background(), "archive")
	require.NoError(t, err)

	n, found, err := global.FindByID(context.Background(), "ArchivedDecision", "dec-1")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "x", n.Props["archivedTitle"])
	_, hasOldKey := n.Props["title"]
	assert.False(t, hasOldKey)
}

func TestMappingBoundToKGPairWinsOverUnbound(t *testing.T) {
	d, local, global, _ := newTestDKM(t)
	local.put("Decision", GenericNode{Label: "Decision", ID: "dec-1", Props: map[string]any{
		"id": "dec-1", "title": "x", "updated_at": time.Now(),
	}})

	require.NoError(t, d.RegisterMapping(SchemaMapping{
		Name: "decision-archive", SourceLabel: "Decision", TargetLabel: "ArchivedDecision",
	}))
	require.NoError(t, d.RegisterMapping(SchemaMapping{
		Name: "decision-share", SourceLabel: "Decision", TargetLabel: "SharedDecision",
		SourceKG: "local_agent_pm", TargetKG: "global",
	}))
	require.NoError(t, d.RegisterRule(SynchronizationRule{
		Name: "promote", Source: "local_agent_pm", Target: "global",
		Direction: LocalToGlobal, Labels: []string{"Decision"},
	}))

	_, err := d.SynchronizeRule(context.Background(), "promote")
	require.NoError(t, err)

	_, found, err := global.FindByID(context.Background(), "SharedDecision", "dec-1")
	require.NoError(t, err)
	assert.True(t, found, "the mapping bound to this KG pair must win")

	_, found, err = global.FindByID(context.Background(), "ArchivedDecision", "dec-1")
	require.NoError(t, err)
	assert.False(t, found)
}

func TestAmbiguousMappingsAbortThePass(t *testing.T) {
	d, local, global, _ := newTestDKM(t)
	local.put("Decision", GenericNode{Label: "Decision", ID: "dec-1", Props: map[string]any{
		"id": "dec-1", "updated_at": time.Now(),
	}})

	// Two unbound mappings for the same source label: no deterministic
	// winner exists, so the pass must fail instead of guessing.
	require.NoError(t, d.RegisterMapping(SchemaMapping{
		Name: "decision-archive", SourceLabel: "Decision", TargetLabel: "ArchivedDecision",
	}))
	require.NoError(t, d.RegisterMapping(SchemaMapping{
		Name: "decision-share", SourceLabel: "Decision", TargetLabel: "SharedDecision",
	}))
	require.NoError(t, d.RegisterRule(SynchronizationRule{
		Name: "promote", Source: "local_agent_pm", Target: "global",
		Direction: LocalToGlobal, Labels: []string{"Decision"},
	}))

	result, err := d.SynchronizeRule(context.Background(), "promote")
	require.Error(t, err)
	assert.True(t, fabricerr.Is(err, fabricerr.ValidationError))
	assert.Equal(t, 0, result.ItemsApplied)

	for _, label := range []string{"ArchivedDecision", "SharedDecision", "Decision"} {
		_, found, err := global.FindByID(context.Background(), label, "dec-1")
		require.NoError(t, err)
		assert.False(t, found, "no target-side mutation may happen on an ambiguous mapping")
	}
}

func TestCancelledContextStopsPassAndKeepsProgress(t *testing.T) {
	d, local, _, _ := newTestDKM(t)
	now := time.Now()
	local.put("Decision", GenericNode{Label: "Decision", ID: "dec-1", Props: map[string]any{
		"id": "dec-1", "updated_at": now,
	}})

	require.NoError(t, d.RegisterRule(SynchronizationRule{
		Name: "promote", Source: "local_agent_pm", Target: "global",
		Direction: LocalToGlobal, Labels: []string{"Decision"},
	}))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	result, err := d.SynchronizeRule(ctx, "promote")
	require.Error(t, err)
	assert.True(t, fabricerr.Is(err, fabricerr.Cancelled))
	assert.Equal(t, 0, result.ItemsConsidered)
}

func TestAccessPolicyVetoesRead(t *testing.T) {
	d := New(nil, nil, nil)
	require.NoError(t, d.RegisterPolicy(KnowledgePolicy{
		Name: "pm-only-decisions", Kind: PolicyAccess, Scope: []string{"Decision"},
		PredicateScript: `return agent && agent.type === "project_manager";`,
	}))

	allowed, err := d.CheckAccess("Decision", map[string]any{"id": "dec-1"}, map[string]any{"type": "project_manager"})
	require.NoError(t, err)
	assert.True(t, allowed)

	allowed, err = d.CheckAccess("Decision", map[string]any{"id": "dec-1"}, map[string]any{"type": "worker"})
	require.NoError(t, err)
	assert.False(t, allowed)

	// Labels outside the policy's scope are unaffected.
	allowed, err = d.CheckAccess("Pattern", map[string]any{"id": "p-1"}, map[string]any{"type": "worker"})
	require.NoError(t, err)
	assert.True(t, allowed)
}

func TestPersistMetaWritesRegistrations(t *testing.T) {
	meta := newFakeStore()
	d := New(nil, nil, nil, WithMetaStore(meta))
	_, err := d.CreateManagedKG("local_agent_pm", "local", "", newFakeStore())
	require.NoError(t, err)
	_, err = d.CreateManagedKG("global", "global", "", newFakeStore())
	require.NoError(t, err)

	require.NoError(t, d.RegisterRule(SynchronizationRule{
		Name: "promote-decisions", Source: "local_agent_pm", Target: "global",
		Direction: LocalToGlobal, Labels: []string{"Decision"}, Priority: 5,
	}))
	require.NoError(t, d.RegisterMapping(SchemaMapping{
		Name: "decision-identity", SourceLabel: "Decision", TargetLabel: "Decision",
	}))
	require.NoError(t, d.RegisterPolicy(KnowledgePolicy{
		Name: "no-drafts-shared", Kind: PolicySharing, Scope: []string{"Decision"},
	}))

	require.NoError(t, d.PersistMeta(context.Background()))

	_, found, err := meta.FindByID(context.Background(), "ManagedKG", "global")
	require.NoError(t, err)
	assert.True(t, found)

	ruleNode, found, err := meta.FindByID(context.Background(), "SynchronizationRule", "promote-decisions")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "local_to_global", ruleNode.Props["direction"])

	rels, err := meta.OutgoingRelationships(context.Background(), "SynchronizationRule", "promote-decisions")
	require.NoError(t, err)
	require.Len(t, rels, 2)
	assert.Equal(t, "APPLIES_TO", rels[0].Type)

	_, found, err = meta.FindByID(context.Background(), "SchemaMapping", "decision-identity")
	require.NoError(t, err)
	assert.True(t, found)

	policyRels, err := meta.OutgoingRelationships(context.Background(), "KnowledgePolicy", "no-drafts-shared")
	require.NoError(t, err)
	assert.Len(t, policyRels, 2)

	// A second persist converges instead of duplicating nodes.
	require.NoError(t, d.PersistMeta(context.Background()))
	nodes, err := meta.ListByLabel(context.Background(), "SynchronizationRule")
	require.NoError(t, err)
	assert.Len(t, nodes, 1)
}

func TestBidirectionalRunsLocalToGlobalFirst(t *testing.T) {
	d, local, global, _ := newTestDKM(t)
	older := time.Now().Add(-time.Hour)
	newer := time.Now()
	local.put("Agent", GenericNode{Label: "Agent", ID: "a1", Props: map[string]any{
		"id": "a1", "name": "local-name", "updated_at": older,
	}})
	global.put("Agent", GenericNode{Label: "Agent", ID: "a1", Props: map[string]any{
		"id": "a1", "name": "global-name", "updated_at": newer,
	}})

	require.NoError(t, d.RegisterRule(SynchronizationRule{
		Name: "sync-agents", Source: "local_agent_pm", Target: "global",
		Direction: Bidirectional, Labels: []string{"Agent"},
	}))

	result, err := d.SynchronizeRule(context.Background(), "sync-agents")
	require.NoError(t, err)
	assert.Equal(t, 2, result.ItemsConsidered)

	n, _, _ := local.FindByID(context.Background(), "Agent", "a1")
	assert.Equal(t, "global-name", n.Props["name"])
}
