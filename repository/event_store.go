package repository

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"knowledgefabric/events"
	"knowledgefabric/gal"
)

// EventRepo implements events.Store by persisting each Event as an
// :Event node, with Metadata and Related encoded as JSON strings since
// Neo4j properties cannot hold arbitrary nested maps or structs
// directly.
type EventRepo struct {
	conn *gal.Connection
}

// NewEventRepo wires an EventRepo atop a shared Connection.
func NewEventRepo(conn *gal.Connection) *EventRepo {
	return &EventRepo{conn: conn}
}

// Persist writes e as an :Event node, assigning an id if e.ID is empty.
func (r *EventRepo) Persist(ctx context.Context, e events.Event) error {
	id := e.ID
	if id == "" {
		id = uuid.NewString()
	}

	metadataJSON, err := json.Marshal(e.Metadata)
	if err != nil {
		return fmt.Errorf("encoding event metadata: %w", err)
	}
	relatedJSON, err := json.Marshal(e.Related)
	if err != nil {
		return fmt.Errorf("encoding event related refs: %w", err)
	}

	props := map[string]any{
		"id": id, "type": e.Type, "timestamp": e.Timestamp, "source": e.Source,
		"metadata": string(metadataJSON), "related": string(relatedJSON),
	}
	_, err = r.conn.Query(ctx, gal.AccessWrite, "CREATE (n:Event) SET n = $props", map[string]any{"props": props})
	return err
}

// DecodeMetadata round-trips the JSON Persist wrote back into a map, for
// callers reading stored events (e.g. correlation backfill, auditing).
func DecodeMetadata(raw string) (map[string]any, error) {
	if raw == "" {
		return nil, nil
	}
	var out map[string]any
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		return nil, err
	}
	return out, nil
}

// DecodeRelated round-trips the JSON Persist wrote for Related back into
// a NodeRef slice.
func DecodeRelated(raw string) ([]events.NodeRef, error) {
	if raw == "" {
		return nil, nil
	}
	var out []events.NodeRef
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		return nil, err
	}
	return out, nil
}
