package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j/dbtype"

	"knowledgefabric/fabricerr"
	"knowledgefabric/gal"
	"knowledgefabric/schema"
)

// Codec converts between a typed entity and the flat property map the
// GAL speaks. Kept as explicit functions rather than reflection.
type Codec[T any] struct {
	ToProps func(T) map[string]any
	FromRow func(map[string]any) T
}

// Base implements the common repository contract (Create, FindByID,
// FindByProperty, FindAll, Count, Update, Delete) for one node label,
// generic over the entity type T (whose pointer, PT, carries identity
// and timestamp behavior via Entity[T]).
type Base[T any, PT Entity[T]] struct {
	label  string
	conn   *gal.Connection
	schema *schema.Registry
	codec  Codec[T]
	clock  func() time.Time
}

// NewBase wires a label-specific repository atop a shared Connection and
// Registry. clock defaults to time.Now; tests may override it.
func NewBase[T any, PT Entity[T]](label string, conn *gal.Connection, reg *schema.Registry, codec Codec[T], clock func() time.Time) *Base[T, PT] {
	if clock == nil {
		clock = time.Now
	}
	return &Base[T, PT]{label: label, conn: conn, schema: reg, codec: codec, clock: clock}
}

// Create validates data through the Schema Registry, fills id if absent,
// stamps created_at/updated_at, and persists the node.
func (b *Base[T, PT]) Create(ctx context.Context, data T) (T, error) {
	var zero T

	p := PT(&data)
	if p.GetID() == "" {
		p.SetID(uuid.NewString())
	}
	now := b.clock()
	p.SetTimestamps(now, now)

	props := b.codec.ToProps(data)
	if errs := b.schema.Validate(b.label, props); len(errs) > 0 {
		return zero, errs[0]
	}

	stmt := fmt.Sprintf("CREATE (n:%s) SET n = $props RETURN n", b.label)
	_, err := b.conn.Query(ctx, gal.AccessWrite, stmt, map[string]any{"props": props})
	if err != nil {
		if isConstraintViolation(err) {
			return zero, fabricerr.Wrap(fabricerr.DuplicateID, fmt.Sprintf("%s id already exists", b.label), err)
		}
		return zero, err
	}
	return data, nil
}

// FindByID returns the entity and true if it exists, or the zero value
// and false otherwise.
func (b *Base[T, PT]) FindByID(ctx context.Context, id string) (T, bool, error) {
	var zero T
	stmt := fmt.Sprintf("MATCH (n:%s {id: $id}) RETURN n", b.label)
	rows, err := b.conn.Query(ctx, gal.AccessRead, stmt, map[string]any{"id": id})
	if err != nil {
		return zero, false, err
	}
	if len(rows) == 0 {
		return zero, false, nil
	}
	return b.decode(rows[0]), true, nil
}

// FindByProperty returns every entity whose named property equals value.
func (b *Base[T, PT]) FindByProperty(ctx context.Context, name string, value any) ([]T, error) {
	stmt := fmt.Sprintf("MATCH (n:%s) WHERE n.%s = $value RETURN n", b.label, name)
	rows, err := b.conn.Query(ctx, gal.AccessRead, stmt, map[string]any{"value": value})
	if err != nil {
		return nil, err
	}
	return b.decodeAll(rows), nil
}

// FindAll returns up to limit entities after skipping offset, ordered by
// created_at for stable pagination.
func (b *Base[T, PT]) FindAll(ctx context.Context, limit, offset int) ([]T, error) {
	stmt := fmt.Sprintf("MATCH (n:%s) RETURN n ORDER BY n.created_at SKIP $offset LIMIT $limit", b.label)
	rows, err := b.conn.Query(ctx, gal.AccessRead, stmt, map[string]any{"offset": offset, "limit": limit})
	if err != nil {
		return nil, err
	}
	return b.decodeAll(rows), nil
}

// Count returns the number of nodes with this label.
func (b *Base[T, PT]) Count(ctx context.Context) (int64, error) {
	stmt := fmt.Sprintf("MATCH (n:%s) RETURN count(n) AS c", b.label)
	rows, err := b.conn.Query(ctx, gal.AccessRead, stmt, nil)
	if err != nil {
		return 0, err
	}
	if len(rows) == 0 {
		return 0, nil
	}
	switch c := rows[0]["c"].(type) {
	case int64:
		return c, nil
	case int:
		return int64(c), nil
	default:
		return 0, nil
	}
}

// Update rejects attempts to mutate id, stamps updated_at, and applies
// partial as a property merge. Returns false if no node with id exists.
func (b *Base[T, PT]) Update(ctx context.Context, id string, partial map[string]any) (T, bool, error) {
	var zero T
	if _, mutatesID := partial["id"]; mutatesID {
		return zero, false, fabricerr.New(fabricerr.ValidationError, "id is immutable")
	}

	merged := make(map[string]any, len(partial))
	for k, v := range partial {
		merged[k] = v
	}
	merged["updated_at"] = b.clock()

	stmt := fmt.Sprintf("MATCH (n:%s {id: $id}) SET n += $partial RETURN n", b.label)
	rows, err := b.conn.Query(ctx, gal.AccessWrite, stmt, map[string]any{"id": id, "partial": merged})
	if err != nil {
		return zero, false, err
	}
	if len(rows) == 0 {
		return zero, false, nil
	}
	return b.decode(rows[0]), true, nil
}

// Delete removes the node and every relationship attached to it in a
// single transaction.
func (b *Base[T, PT]) Delete(ctx context.Context, id string) error {
	stmt := fmt.Sprintf("MATCH (n:%s {id: $id}) DETACH DELETE n", b.label)
	_, err := b.conn.Query(ctx, gal.AccessWrite, stmt, map[string]any{"id": id})
	return err
}

func (b *Base[T, PT]) decode(row gal.Row) T {
	return b.codec.FromRow(nodeProps(row["n"]))
}

func (b *Base[T, PT]) decodeAll(rows gal.Rows) []T {
	out := make([]T, 0, len(rows))
	for _, row := range rows {
		out = append(out, b.decode(row))
	}
	return out
}

// nodeProps extracts the property map from a returned graph node,
// regardless of whether the driver handed back a dbtype.Node (the
// common case) or a plain map (the in-memory test double's shape).
func nodeProps(v any) map[string]any {
	switch n := v.(type) {
	case dbtype.Node:
		return n.Props
	case map[string]any:
		return n
	default:
		return map[string]any{}
	}
}

func timeProp(row map[string]any, key string) time.Time {
	switch v := row[key].(type) {
	case time.Time:
		return v
	case string:
		t, err := time.Parse(time.RFC3339, v)
		if err == nil {
			return t
		}
	}
	return time.Time{}
}

func isConstraintViolation(err error) bool {
	return fabricerr.Is(err, fabricerr.QueryError) && strings.Contains(err.Error(), "ConstraintValidationFailed")
}
