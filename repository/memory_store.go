package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"knowledgefabric/gal"
	"knowledgefabric/memory"
)

// MemoryRepo implements memory.Store by persisting Memory nodes and
// RELATED_TO edges, following the same MERGE-for-idempotence pattern
// generic.go's EnsureRelationship uses for DKM relationship carryover.
type MemoryRepo struct {
	conn *gal.Connection
}

// NewMemoryRepo wires a MemoryRepo atop a shared Connection.
func NewMemoryRepo(conn *gal.Connection) *MemoryRepo {
	return &MemoryRepo{conn: conn}
}

// The context map is JSON-encoded into a single string property, the
// same way EventRepo encodes Metadata, since Neo4j properties cannot
// hold nested maps.
func memoryToProps(m memory.Memory) (map[string]any, error) {
	embedding := make([]any, len(m.Embedding))
	for i, f := range m.Embedding {
		embedding[i] = float64(f)
	}
	ctxJSON, err := json.Marshal(m.Context)
	if err != nil {
		return nil, fmt.Errorf("encoding memory context: %w", err)
	}
	return map[string]any{
		"id": m.ID, "content": m.Content, "context": string(ctxJSON), "memory_type": string(m.Type),
		"timestamp": m.Timestamp, "importance": m.Importance,
		"last_accessed": m.LastAccessed, "access_count": m.AccessCount,
		"embedding": embedding,
	}, nil
}

func memoryFromRow(row map[string]any) memory.Memory {
	m := memory.Memory{
		ID:           stringProp(row, "id"),
		Content:      stringProp(row, "content"),
		Type:         memory.MemoryType(stringProp(row, "memory_type")),
		Timestamp:    timeProp(row, "timestamp"),
		LastAccessed: timeProp(row, "last_accessed"),
	}
	if imp, ok := row["importance"].(float64); ok {
		m.Importance = imp
	}
	switch c := row["access_count"].(type) {
	case int64:
		m.AccessCount = c
	case int:
		m.AccessCount = int64(c)
	}
	if raw, ok := row["context"].(string); ok && raw != "" {
		_ = json.Unmarshal([]byte(raw), &m.Context)
	}
	if emb, ok := row["embedding"].([]any); ok {
		m.Embedding = make([]float32, len(emb))
		for i, v := range emb {
			if f, ok := v.(float64); ok {
				m.Embedding[i] = float32(f)
			}
		}
	}
	return m
}

// Create persists a new :Memory node.
func (r *MemoryRepo) Create(ctx context.Context, m memory.Memory) error {
	props, err := memoryToProps(m)
	if err != nil {
		return err
	}
	_, err = r.conn.Query(ctx, gal.AccessWrite, "CREATE (n:Memory) SET n = $props", map[string]any{"props": props})
	return err
}

// Get returns the memory with id, if any.
func (r *MemoryRepo) Get(ctx context.Context, id string) (memory.Memory, bool, error) {
	rows, err := r.conn.Query(ctx, gal.AccessRead, "MATCH (n:Memory {id: $id}) RETURN n", map[string]any{"id": id})
	if err != nil {
		return memory.Memory{}, false, err
	}
	if len(rows) == 0 {
		return memory.Memory{}, false, nil
	}
	return memoryFromRow(nodeProps(rows[0]["n"])), true, nil
}

// TouchAccess sets last_accessed to now and increments access_count.
func (r *MemoryRepo) TouchAccess(ctx context.Context, id string, now time.Time) (memory.Memory, error) {
	stmt := "MATCH (n:Memory {id: $id}) SET n.last_accessed = $now, n.access_count = coalesce(n.access_count, 0) + 1 RETURN n"
	rows, err := r.conn.Query(ctx, gal.AccessWrite, stmt, map[string]any{"id": id, "now": now})
	if err != nil {
		return memory.Memory{}, err
	}
	if len(rows) == 0 {
		return memory.Memory{}, fmt.Errorf("memory %q not found", id)
	}
	return memoryFromRow(nodeProps(rows[0]["n"])), nil
}

// ListCandidates returns every memory of typ, or every memory when typ
// is empty, for in-process scoring by AssociativeMemory.
func (r *MemoryRepo) ListCandidates(ctx context.Context, typ memory.MemoryType) ([]memory.Memory, error) {
	stmt := "MATCH (n:Memory) RETURN n"
	params := map[string]any{}
	if typ != "" {
		stmt = "MATCH (n:Memory {memory_type: $type}) RETURN n"
		params["type"] = string(typ)
	}
	rows, err := r.conn.Query(ctx, gal.AccessRead, stmt, params)
	if err != nil {
		return nil, err
	}
	out := make([]memory.Memory, 0, len(rows))
	for _, row := range rows {
		out = append(out, memoryFromRow(nodeProps(row["n"])))
	}
	return out, nil
}

// Associate MERGEs a RELATED_TO edge between a and b with the given
// relation, raising strength to the max of the existing and proposed
// values so repeated calls stay idempotent.
func (r *MemoryRepo) Associate(ctx context.Context, a, b, relation string, strength float64) error {
	stmt := `MATCH (x:Memory {id: $a}), (y:Memory {id: $b})
	         MERGE (x)-[rel:RELATED_TO {relation: $relation}]->(y)
	         ON CREATE SET rel.strength = $strength
	         ON MATCH SET rel.strength = CASE WHEN rel.strength < $strength THEN $strength ELSE rel.strength END`
	_, err := r.conn.Query(ctx, gal.AccessWrite, stmt, map[string]any{
		"a": a, "b": b, "relation": relation, "strength": strength,
	})
	return err
}
