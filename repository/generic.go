package repository

import (
	"context"
	"fmt"

	"knowledgefabric/dkm"
	"knowledgefabric/gal"
	"knowledgefabric/schema"
)

// GenericRepo accesses nodes of any label as flat property maps rather
// than a typed Go struct, the shape the Dual Knowledge Manager needs
// since it moves nodes of whatever label a SynchronizationRule names
// (including domain extensions registered at runtime). It implements
// dkm.GraphStore directly.
type GenericRepo struct {
	conn   *gal.Connection
	schema *schema.Registry
}

// NewGenericRepo wires a GenericRepo atop a shared Connection and
// Registry.
func NewGenericRepo(conn *gal.Connection, reg *schema.Registry) *GenericRepo {
	return &GenericRepo{conn: conn, schema: reg}
}

// ListByLabel returns every node carrying label.
func (r *GenericRepo) ListByLabel(ctx context.Context, label string) ([]dkm.GenericNode, error) {
	stmt := fmt.Sprintf("MATCH (n:%s) RETURN n", label)
	rows, err := r.conn.Query(ctx, gal.AccessRead, stmt, nil)
	if err != nil {
		return nil, err
	}
	out := make([]dkm.GenericNode, 0, len(rows))
	for _, row := range rows {
		props := nodeProps(row["n"])
		out = append(out, dkm.GenericNode{Label: label, ID: stringProp(props, "id"), Props: props})
	}
	return out, nil
}

// FindByID returns the node with label and id, if any.
func (r *GenericRepo) FindByID(ctx context.Context, label, id string) (dkm.GenericNode, bool, error) {
	stmt := fmt.Sprintf("MATCH (n:%s {id: $id}) RETURN n", label)
	rows, err := r.conn.Query(ctx, gal.AccessRead, stmt, map[string]any{"id": id})
	if err != nil {
		return dkm.GenericNode{}, false, err
	}
	if len(rows) == 0 {
		return dkm.GenericNode{}, false, nil
	}
	props := nodeProps(rows[0]["n"])
	return dkm.GenericNode{Label: label, ID: id, Props: props}, true, nil
}

// Upsert MERGEs a node by its id property, creating it if absent or
// merging props into the existing node otherwise, and reports which
// happened. Properties failing schema validation for a *registered*
// label are rejected; an unregistered label (a domain extension the
// Schema Registry has not been told about) is written through
// unvalidated, since DKM must still be able to move it.
func (r *GenericRepo) Upsert(ctx context.Context, label string, props map[string]any) (bool, error) {
	if _, registered := r.schema.NodeSchema(label); registered {
		if errs := r.schema.Validate(label, props); len(errs) > 0 {
			return false, errs[0]
		}
	}

	id, _ := props["id"].(string)
	_, existed, err := r.FindByID(ctx, label, id)
	if err != nil {
		return false, err
	}

	stmt := fmt.Sprintf(
		"MERGE (n:%s {id: $id}) ON CREATE SET n = $props ON MATCH SET n += $props RETURN n",
		label,
	)
	if _, err := r.conn.Query(ctx, gal.AccessWrite, stmt, map[string]any{"id": id, "props": props}); err != nil {
		return false, err
	}
	return !existed, nil
}

// OutgoingRelationships lists every edge leaving (label, id), regardless
// of relationship type, for the Dual Knowledge Manager's relationship
// carryover step.
func (r *GenericRepo) OutgoingRelationships(ctx context.Context, label, id string) ([]dkm.Relationship, error) {
	stmt := fmt.Sprintf(
		`MATCH (n:%s {id: $id})-[rel]->(other) RETURN type(rel) AS relType, labels(other)[0] AS otherLabel, other.id AS otherID, rel`,
		label,
	)
	rows, err := r.conn.Query(ctx, gal.AccessRead, stmt, map[string]any{"id": id})
	if err != nil {
		return nil, err
	}
	out := make([]dkm.Relationship, 0, len(rows))
	for _, row := range rows {
		out = append(out, dkm.Relationship{
			Type:        stringProp(row, "relType"),
			TargetLabel: stringProp(row, "otherLabel"),
			TargetID:    stringProp(row, "otherID"),
			Props:       nodeProps(row["rel"]),
		})
	}
	return out, nil
}

// EnsureRelationship MERGEs the edge so repeated carryover of the same
// (source, target, type) collapses to one edge instead of duplicating
// it.
func (r *GenericRepo) EnsureRelationship(ctx context.Context, srcLabel, srcID, tgtLabel, tgtID, relType string, props map[string]any) error {
	stmt := fmt.Sprintf(
		`MATCH (s:%s {id: $srcID}), (t:%s {id: $tgtID})
		 MERGE (s)-[rel:%s]->(t) ON CREATE SET rel = $props`,
		srcLabel, tgtLabel, relType,
	)
	_, err := r.conn.Query(ctx, gal.AccessWrite, stmt, map[string]any{
		"srcID": srcID, "tgtID": tgtID, "props": props,
	})
	return err
}
