package repository

import (
	"context"
	"fmt"
	"time"

	"knowledgefabric/fabricerr"
	"knowledgefabric/gal"
	"knowledgefabric/schema"
)

// Relationship is a materialized edge as returned by FindRelationships.
type Relationship struct {
	SourceLabel string
	SourceID    string
	TargetLabel string
	TargetID    string
	Type        string
	Props       map[string]any
	CreatedAt   time.Time
}

// RelationshipRepo is the generic edge accessor, shared across every
// relationship type rather than one repo per type.
type RelationshipRepo struct {
	conn   *gal.Connection
	schema *schema.Registry
	clock  func() time.Time
}

// NewRelationshipRepo wires a RelationshipRepo atop a shared Connection
// and Registry.
func NewRelationshipRepo(conn *gal.Connection, reg *schema.Registry, clock func() time.Time) *RelationshipRepo {
	if clock == nil {
		clock = time.Now
	}
	return &RelationshipRepo{conn: conn, schema: reg, clock: clock}
}

// Create verifies both endpoints exist, enforces the Schema Registry's
// source/target rules, applies the DEPENDS_ON acyclicity invariant, and
// creates the edge atomically.
func (r *RelationshipRepo) Create(ctx context.Context, sourceLabel, sourceID, targetLabel, targetID, relType string, props map[string]any) error {
	if err := r.schema.ValidateRelationship(relType, sourceLabel, targetLabel); err != nil {
		return err
	}

	if relType == "DEPENDS_ON" {
		if err := r.checkDependsOnInvariant(ctx, sourceID, targetID, props); err != nil {
			return err
		}
	}

	merged := make(map[string]any, len(props)+1)
	for k, v := range props {
		merged[k] = v
	}
	merged["created_at"] = r.clock()

	stmt := fmt.Sprintf(
		`MATCH (s:%s {id: $sourceID}), (t:%s {id: $targetID})
		 CREATE (s)-[rel:%s]->(t) SET rel = $props
		 RETURN s.id AS s, t.id AS t`,
		sourceLabel, targetLabel, relType,
	)
	rows, err := r.conn.Query(ctx, gal.AccessWrite, stmt, map[string]any{
		"sourceID": sourceID, "targetID": targetID, "props": merged,
	})
	if err != nil {
		return err
	}
	if len(rows) == 0 {
		return fabricerr.New(fabricerr.EntityNotFound, fmt.Sprintf(
			"%s %q or %s %q does not exist", sourceLabel, sourceID, targetLabel, targetID))
	}
	return nil
}

// checkDependsOnInvariant rejects a self-loop or a cycle, unless the
// edge is marked dependency_type="weak".
func (r *RelationshipRepo) checkDependsOnInvariant(ctx context.Context, sourceID, targetID string, props map[string]any) error {
	if weak, _ := props["dependency_type"].(string); weak == "weak" {
		return nil
	}

	if sourceID == targetID {
		return fabricerr.New(fabricerr.ValidationError, "a Component may not DEPENDS_ON itself")
	}

	stmt := `MATCH (target:Component {id: $targetID})-[:DEPENDS_ON*]->(source:Component {id: $sourceID})
	         RETURN count(*) AS c`
	rows, err := r.conn.Query(ctx, gal.AccessRead, stmt, map[string]any{"sourceID": sourceID, "targetID": targetID})
	if err != nil {
		return err
	}
	if len(rows) > 0 {
		if c, ok := rows[0]["c"].(int64); ok && c > 0 {
			return fabricerr.New(fabricerr.ValidationError, "DEPENDS_ON would create a dependency cycle")
		}
	}
	return nil
}

// FindRelationships returns every relType edge from (label, id) in the
// given direction ("out" or "in").
func (r *RelationshipRepo) FindRelationships(ctx context.Context, label, id, relType, direction string) ([]Relationship, error) {
	var stmt string
	switch direction {
	case "in":
		stmt = fmt.Sprintf(
			`MATCH (n:%s {id: $id})<-[rel:%s]-(other) RETURN other.id AS otherID, labels(other)[0] AS otherLabel, rel, rel.created_at AS createdAt`,
			label, relType,
		)
	default:
		stmt = fmt.Sprintf(
			`MATCH (n:%s {id: $id})-[rel:%s]->(other) RETURN other.id AS otherID, labels(other)[0] AS otherLabel, rel, rel.created_at AS createdAt`,
			label, relType,
		)
	}

	rows, err := r.conn.Query(ctx, gal.AccessRead, stmt, map[string]any{"id": id})
	if err != nil {
		return nil, err
	}

	out := make([]Relationship, 0, len(rows))
	for _, row := range rows {
		other, _ := row["otherID"].(string)
		otherLabel, _ := row["otherLabel"].(string)
		created := timeProp(row, "createdAt")

		rel := Relationship{Type: relType, Props: nodeProps(row["rel"]), CreatedAt: created}
		if direction == "in" {
			rel.SourceLabel, rel.SourceID = otherLabel, other
			rel.TargetLabel, rel.TargetID = label, id
		} else {
			rel.SourceLabel, rel.SourceID = label, id
			rel.TargetLabel, rel.TargetID = otherLabel, other
		}
		out = append(out, rel)
	}
	return out, nil
}

// DeleteRelationship removes every edge of relType between the two
// endpoints.
func (r *RelationshipRepo) DeleteRelationship(ctx context.Context, sourceLabel, sourceID, targetLabel, targetID, relType string) error {
	stmt := fmt.Sprintf(
		`MATCH (s:%s {id: $sourceID})-[rel:%s]->(t:%s {id: $targetID}) DELETE rel`,
		sourceLabel, relType, targetLabel,
	)
	_, err := r.conn.Query(ctx, gal.AccessWrite, stmt, map[string]any{"sourceID": sourceID, "targetID": targetID})
	return err
}
