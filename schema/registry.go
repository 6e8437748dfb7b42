// Package schema implements the Schema Registry: declarative node and
// relationship definitions, backend constraint/index bootstrap, and
// property validation. Definitions are held as data (PropertySpec,
// NodeSchema) rather than compile-time Go types so that domain
// extensions can register additional labels at runtime.
package schema

import (
	"context"
	"fmt"
	"sync"
	"time"

	"knowledgefabric/fabricerr"
	"knowledgefabric/gal"
)

// PropertyType enumerates the value kinds the registry understands.
type PropertyType string

const (
	TypeString   PropertyType = "string"
	TypeNumber   PropertyType = "number"
	TypeBoolean  PropertyType = "boolean"
	TypeDatetime PropertyType = "datetime"
	TypeVector   PropertyType = "vector"
)

// PropertySpec declares one property of a node or relationship label.
type PropertySpec struct {
	Name     string
	Type     PropertyType
	Required bool

	// VectorDim is only meaningful when Type == TypeVector.
	VectorDim int

	// Bounded, when true, enforces Min <= value <= Max for TypeNumber
	// properties (e.g. satisfaction_level, importance, strength).
	Bounded bool
	Min     float64
	Max     float64
}

// NodeSchema is the declarative definition of one node label.
type NodeSchema struct {
	Label      string
	Properties []PropertySpec
	// IndexedProperties get a backend lookup index at Initialize time.
	IndexedProperties []string
	// VectorIndexProperty, when set, gets a vector-similarity index
	// instead of a plain lookup index (e.g. Memory.embedding).
	VectorIndexProperty string
}

// RelationshipSchema is the declarative definition of one relationship
// type: which (source label, target label) pairs it may connect, and
// what properties it carries.
type RelationshipSchema struct {
	Type           string
	AllowedSources []string
	AllowedTargets []string
	Properties     []PropertySpec
}

func (r RelationshipSchema) allowsSource(label string) bool { return contains(r.AllowedSources, label) }
func (r RelationshipSchema) allowsTarget(label string) bool { return contains(r.AllowedTargets, label) }

func contains(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}

// DomainExtension is a bundle of additional labels and relationship
// types registered under a domain namespace via ExtendForDomain.
type DomainExtension struct {
	Nodes         []NodeSchema
	Relationships []RelationshipSchema
}

// Registry holds the active schema: the built-in core labels plus any
// domain extensions registered at runtime. Safe for concurrent use;
// ExtendForDomain may race arbitrary validation calls.
type Registry struct {
	mu            sync.RWMutex
	nodes         map[string]NodeSchema
	relationships map[string]RelationshipSchema
}

// New returns a Registry preloaded with the core schema.
func New() *Registry {
	r := &Registry{
		nodes:         map[string]NodeSchema{},
		relationships: map[string]RelationshipSchema{},
	}
	for _, n := range coreNodeSchemas() {
		r.nodes[n.Label] = n
	}
	for _, rel := range coreRelationshipSchemas() {
		r.relationships[rel.Type] = rel
	}
	return r
}

// NodeSchema returns the registered schema for label, if any.
func (r *Registry) NodeSchema(label string) (NodeSchema, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.nodes[label]
	return s, ok
}

// RelationshipSchema returns the registered schema for relType, if any.
func (r *Registry) RelationshipSchema(relType string) (RelationshipSchema, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.relationships[relType]
	return s, ok
}

// Initialize issues the backend statements that create a uniqueness
// constraint on every label's id plus lookup indexes on the properties
// each NodeSchema names, and a vector index on Memory.embedding.
func (r *Registry) Initialize(ctx context.Context, conn *gal.Connection) error {
	r.mu.RLock()
	nodes := make([]NodeSchema, 0, len(r.nodes))
	for _, n := range r.nodes {
		nodes = append(nodes, n)
	}
	r.mu.RUnlock()

	for _, n := range nodes {
		stmt := fmt.Sprintf(
			"CREATE CONSTRAINT IF NOT EXISTS FOR (n:%s) REQUIRE n.id IS UNIQUE", n.Label,
		)
		if _, err := conn.Query(ctx, gal.AccessWrite, stmt, nil); err != nil {
			return err
		}

		for _, prop := range n.IndexedProperties {
			idxStmt := fmt.Sprintf(
				"CREATE INDEX IF NOT EXISTS FOR (n:%s) ON (n.%s)", n.Label, prop,
			)
			if _, err := conn.Query(ctx, gal.AccessWrite, idxStmt, nil); err != nil {
				return err
			}
		}

		if n.VectorIndexProperty != "" {
			vecStmt := fmt.Sprintf(
				"CREATE VECTOR INDEX IF NOT EXISTS FOR (n:%s) ON (n.%s)", n.Label, n.VectorIndexProperty,
			)
			// Vector index support varies by backend edition; a
			// failure here is not fatal to Initialize.
			_, _ = conn.Query(ctx, gal.AccessWrite, vecStmt, nil)
		}
	}
	return nil
}

// Validate returns every missing required property and every type or
// bound mismatch for props against label's schema. A nil (empty)
// slice means no errors.
func (r *Registry) Validate(label string, props map[string]any) []error {
	schema, ok := r.NodeSchema(label)
	if !ok {
		return []error{fabricerr.New(fabricerr.ValidationError, fmt.Sprintf("unknown label %q", label))}
	}

	var errs []error
	for _, spec := range schema.Properties {
		value, present := props[spec.Name]
		if !present || value == nil {
			if spec.Required {
				errs = append(errs, fabricerr.New(fabricerr.ValidationError,
					fmt.Sprintf("%s: missing required property %q", label, spec.Name)))
			}
			continue
		}
		if err := validateValue(label, spec, value); err != nil {
			errs = append(errs, err)
		}
	}
	return errs
}

func validateValue(label string, spec PropertySpec, value any) error {
	switch spec.Type {
	case TypeString:
		if _, ok := value.(string); !ok {
			return typeMismatch(label, spec, value)
		}
	case TypeBoolean:
		if _, ok := value.(bool); !ok {
			return typeMismatch(label, spec, value)
		}
	case TypeDatetime:
		switch value.(type) {
		case time.Time, string:
		default:
			return typeMismatch(label, spec, value)
		}
	case TypeNumber:
		num, ok := asFloat(value)
		if !ok {
			return typeMismatch(label, spec, value)
		}
		if spec.Bounded && (num < spec.Min || num > spec.Max) {
			return fabricerr.New(fabricerr.ValidationError, fmt.Sprintf(
				"%s: %s=%v out of bounds [%v, %v]", label, spec.Name, num, spec.Min, spec.Max))
		}
	case TypeVector:
		vec, ok := value.([]float64)
		if !ok {
			return typeMismatch(label, spec, value)
		}
		if spec.VectorDim > 0 && len(vec) != spec.VectorDim {
			return fabricerr.New(fabricerr.ValidationError, fmt.Sprintf(
				"%s: %s has dimension %d, want %d", label, spec.Name, len(vec), spec.VectorDim))
		}
	}
	return nil
}

func asFloat(value any) (float64, bool) {
	switch v := value.(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	default:
		return 0, false
	}
}

func typeMismatch(label string, spec PropertySpec, value any) error {
	return fabricerr.New(fabricerr.ValidationError, fmt.Sprintf(
		"%s: %s=%v is not a %s", label, spec.Name, value, spec.Type))
}

// ValidateRelationship enforces the source/target label rules for
// relType.
func (r *Registry) ValidateRelationship(relType, sourceLabel, targetLabel string) error {
	rel, ok := r.RelationshipSchema(relType)
	if !ok {
		return fabricerr.New(fabricerr.ValidationError, fmt.Sprintf("unknown relationship type %q", relType))
	}
	if !rel.allowsSource(sourceLabel) {
		return fabricerr.New(fabricerr.ValidationError, fmt.Sprintf(
			"%s may not originate from %s", relType, sourceLabel))
	}
	if !rel.allowsTarget(targetLabel) {
		return fabricerr.New(fabricerr.ValidationError, fmt.Sprintf(
			"%s may not target %s", relType, targetLabel))
	}
	return nil
}

// ExtendForDomain registers additional labels and relationship types
// under a domain namespace. Redefining an existing label or
// relationship type incompatibly fails with SchemaConflict; redefining
// it identically is accepted (idempotent registration).
func (r *Registry) ExtendForDomain(domainName string, extension DomainExtension) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, n := range extension.Nodes {
		if existing, ok := r.nodes[n.Label]; ok && !sameNodeSchema(existing, n) {
			return fabricerr.New(fabricerr.SchemaConflict, fmt.Sprintf(
				"domain %q redefines label %q incompatibly", domainName, n.Label))
		}
		r.nodes[n.Label] = n
	}
	for _, rel := range extension.Relationships {
		if existing, ok := r.relationships[rel.Type]; ok && !sameRelSchema(existing, rel) {
			return fabricerr.New(fabricerr.SchemaConflict, fmt.Sprintf(
				"domain %q redefines relationship %q incompatibly", domainName, rel.Type))
		}
		r.relationships[rel.Type] = rel
	}
	return nil
}

func sameNodeSchema(a, b NodeSchema) bool {
	if len(a.Properties) != len(b.Properties) {
		return false
	}
	for i := range a.Properties {
		if a.Properties[i] != b.Properties[i] {
			return false
		}
	}
	return true
}

func sameRelSchema(a, b RelationshipSchema) bool {
	return fmt.Sprint(a.AllowedSources) == fmt.Sprint(b.AllowedSources) &&
		fmt.Sprint(a.AllowedTargets) == fmt.Sprint(b.AllowedTargets)
}
