// Package dkm implements the Dual Knowledge Manager: the registry of
// ManagedKGs, SynchronizationRules, SchemaMappings, and
// KnowledgePolicies, and the Synchronize algorithm that moves nodes
// between a private graph and the shared graph.
package dkm

import (
	"context"
	"time"
)

// GenericNode is a label-tagged property bag: the shape DKM operates on
// since it must move nodes of any registered label, not just the core
// entity structs the repository package exposes typed accessors for.
type GenericNode struct {
	Label string
	ID    string
	Props map[string]any
}

// Relationship is an outgoing edge as reported by GraphStore.
type Relationship struct {
	Type        string
	TargetLabel string
	TargetID    string
	Props       map[string]any
}

// GraphStore is the slice of graph access DKM needs from a ManagedKG.
// repository.GenericRepo implements this against a real gal.Connection;
// tests use an in-memory fake.
type GraphStore interface {
	ListByLabel(ctx context.Context, label string) ([]GenericNode, error)
	FindByID(ctx context.Context, label, id string) (GenericNode, bool, error)
	// Upsert creates the node if absent or merges props into it if
	// present, reporting which happened.
	Upsert(ctx context.Context, label string, props map[string]any) (created bool, err error)
	OutgoingRelationships(ctx context.Context, label, id string) ([]Relationship, error)
	// EnsureRelationship MERGEs the edge so repeated carryover of the
	// same (source, target, type) collapses to one edge.
	EnsureRelationship(ctx context.Context, srcLabel, srcID, tgtLabel, tgtID, relType string, props map[string]any) error
}

// ManagedKG is a named graph slice under DKM governance, bound to a
// GraphStore. Local and global ManagedKGs may wrap the same backend
// (label-partitioned) or distinct ones; see DESIGN.md Open Question 1.
type ManagedKG struct {
	Name        string
	Kind        string // "local" or "global"
	Description string
	Store       GraphStore
}

// Direction is the declared data-movement direction of a
// SynchronizationRule, relative to its Source/Target ManagedKG names.
type Direction string

const (
	LocalToGlobal Direction = "local_to_global"
	GlobalToLocal Direction = "global_to_local"
	Bidirectional Direction = "bidirectional"
)

// CadenceKind selects when a rule is triggered.
type CadenceKind string

const (
	CadenceOnEvent   CadenceKind = "on_event"
	CadenceScheduled CadenceKind = "scheduled"
	CadenceManual    CadenceKind = "manual"
)

// Cadence describes when a SynchronizationRule runs.
type Cadence struct {
	Kind CadenceKind
	// Period is read by the Synchronizer when Kind == CadenceScheduled.
	Period time.Duration
	// EventPattern is the event-type glob the Synchronizer subscribes
	// to when Kind == CadenceOnEvent.
	EventPattern string
}

// SynchronizationRule declares when and how data moves between two
// named ManagedKGs. Source/Target are concrete ManagedKG names rather
// than the abstract "local"/"global" roles, since a running system may
// have many local KGs (one per agent); Direction governs which of the
// two unidirectional passes between them run.
type SynchronizationRule struct {
	Name   string
	Source string
	Target string

	Direction Direction
	// Labels is the set of node labels this rule's filter scans when
	// Synchronize is called without an explicit items list.
	Labels []string
	// FilterScript, when non-empty, is a goja predicate body evaluated
	// per candidate node; empty means "match everything in Labels".
	FilterScript string

	Cadence  Cadence
	Priority int
}

// SchemaMapping maps nodes of SourceLabel into TargetLabel-shaped
// records.
type SchemaMapping struct {
	Name        string
	SourceLabel string
	TargetLabel string
	// SourceKG/TargetKG, when set, bind this mapping to one managed KG
	// pair: it applies only to passes from SourceKG to TargetKG. An
	// unbound mapping applies to any pair. A bound mapping wins over
	// an unbound one; two applicable mappings of the same kind (both
	// bound or both unbound) are rejected at synchronization time
	// rather than picked from arbitrarily.
	SourceKG string
	TargetKG string
	// FieldMap renames source property names to target property names;
	// unlisted properties pass through unchanged.
	FieldMap map[string]string
	// TransformScript, when non-empty, is a goja transform body run
	// after FieldMap renames, for logic a rename table cannot express.
	TransformScript string
	// Immutable lists target-side properties Synchronize must never
	// overwrite on an existing node (e.g. a target-assigned field).
	Immutable []string
}

// PolicyKind distinguishes sharing policies (veto crossing layers) from
// access policies (veto reads).
type PolicyKind string

const (
	PolicySharing PolicyKind = "sharing"
	PolicyAccess  PolicyKind = "access"
)

// KnowledgePolicy is a declarative veto rule. Scope is a set of label
// globs; PredicateScript is a goja predicate over the
// candidate node's properties (and, for access policies, the requesting
// agent's properties) that returns true to ALLOW and false to VETO. An
// empty PredicateScript always allows.
type KnowledgePolicy struct {
	Name            string
	Kind            PolicyKind
	Scope           []string
	PredicateScript string
}

// SyncResult reports the outcome of one Synchronize pass, in the same
// units the Synchronizer's per-rule Status reports.
type SyncResult struct {
	ItemsConsidered int
	ItemsApplied    int
	ItemsVetoed     int
	ItemsDeferred   int
}

func (r *SyncResult) add(o SyncResult) {
	r.ItemsConsidered += o.ItemsConsidered
	r.ItemsApplied += o.ItemsApplied
	r.ItemsVetoed += o.ItemsVetoed
	r.ItemsDeferred += o.ItemsDeferred
}
