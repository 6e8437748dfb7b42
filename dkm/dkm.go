package dkm

import (
	"context"
	"fmt"
	"path"
	"sync"
	"time"

	"knowledgefabric/fabricerr"
	"knowledgefabric/fabriclog"
)

// EventLogger is the slice of the Event Pipeline's surface DKM needs to
// emit knowledge.synchronized / synchronization.failed events. Kept as
// a narrow interface so dkm never imports the events package's dispatch
// machinery, only its event shape indirectly through this callback
// signature.
type EventLogger interface {
	Log(ctx context.Context, eventType, source string, metadata map[string]any) error
}

type nopLogger struct{}

func (nopLogger) Log(context.Context, string, string, map[string]any) error { return nil }

// DKM is the Dual Knowledge Manager. All registrations are held under
// one lock; Synchronize itself runs unlocked once it has
// copied out the rule/mapping/policies it needs, so long-running passes
// don't block registration of unrelated rules.
type DKM struct {
	mu       sync.RWMutex
	kgs      map[string]*ManagedKG
	rules    map[string]SynchronizationRule
	mappings map[string]SchemaMapping
	policies []KnowledgePolicy

	filterPrograms    map[string]*Program
	transformPrograms map[string]*Program
	policyPrograms    map[string]*Program

	events EventLogger
	meta   GraphStore
	clock  func() time.Time
	log    *fabriclog.Logger
}

// Option configures a DKM at construction.
type Option func(*DKM)

// WithMetaStore attaches the graph slice where PersistMeta writes
// registrations as meta-nodes.
func WithMetaStore(store GraphStore) Option {
	return func(d *DKM) { d.meta = store }
}

// New builds an empty DKM. events and log may be nil; clock defaults to
// time.Now.
func New(events EventLogger, clock func() time.Time, log *fabriclog.Logger, opts ...Option) *DKM {
	if events == nil {
		events = nopLogger{}
	}
	if clock == nil {
		clock = time.Now
	}
	if log == nil {
		log = fabriclog.NewNop()
	}
	d := &DKM{
		kgs:               map[string]*ManagedKG{},
		rules:             map[string]SynchronizationRule{},
		mappings:          map[string]SchemaMapping{},
		filterPrograms:    map[string]*Program{},
		transformPrograms: map[string]*Program{},
		policyPrograms:    map[string]*Program{},
		events:            events,
		clock:             clock,
		log:               log.WithField("component", "dkm"),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// CreateManagedKG registers a ManagedKG under name, idempotently: a
// second call with the same name returns the existing registration
// rather than erroring.
func (d *DKM) CreateManagedKG(name, kind, description string, store GraphStore) (*ManagedKG, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if existing, ok := d.kgs[name]; ok {
		return existing, nil
	}
	kg := &ManagedKG{Name: name, Kind: kind, Description: description, Store: store}
	d.kgs[name] = kg
	return kg, nil
}

// ManagedKG returns the registered KG by name, if any.
func (d *DKM) ManagedKG(name string) (*ManagedKG, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	kg, ok := d.kgs[name]
	return kg, ok
}

// RegisterRule declares a SynchronizationRule. Both endpoints must
// already exist via CreateManagedKG.
func (d *DKM) RegisterRule(rule SynchronizationRule) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if _, ok := d.kgs[rule.Source]; !ok {
		return fabricerr.New(fabricerr.EntityNotFound, fmt.Sprintf("source managed KG %q not registered", rule.Source))
	}
	if _, ok := d.kgs[rule.Target]; !ok {
		return fabricerr.New(fabricerr.EntityNotFound, fmt.Sprintf("target managed KG %q not registered", rule.Target))
	}
	if rule.FilterScript != "" {
		prog, err := compile("rule:"+rule.Name, rule.FilterScript)
		if err != nil {
			return err
		}
		d.filterPrograms[rule.Name] = prog
	}
	d.rules[rule.Name] = rule
	return nil
}

// Rule returns the registered rule by name.
func (d *DKM) Rule(name string) (SynchronizationRule, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	r, ok := d.rules[name]
	return r, ok
}

// Rules returns every registered rule, for the Synchronizer to wire up
// scheduled cadences and event subscriptions at startup.
func (d *DKM) Rules() []SynchronizationRule {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make([]SynchronizationRule, 0, len(d.rules))
	for _, r := range d.rules {
		out = append(out, r)
	}
	return out
}

// RegisterMapping declares a SchemaMapping. Only one mapping may be
// registered per (sourceKG, targetKG, sourceLabel, targetLabel)
// combination; registering a second replaces the first.
func (d *DKM) RegisterMapping(mapping SchemaMapping) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if mapping.TransformScript != "" {
		prog, err := compile("mapping:"+mapping.Name, mapping.TransformScript)
		if err != nil {
			return err
		}
		d.transformPrograms[mapping.Name] = prog
	}
	d.mappings[mappingKey(mapping)] = mapping
	return nil
}

func mappingKey(m SchemaMapping) string {
	return m.SourceKG + "|" + m.TargetKG + "|" + m.SourceLabel + "->" + m.TargetLabel
}

// RegisterPolicy declares a KnowledgePolicy.
func (d *DKM) RegisterPolicy(policy KnowledgePolicy) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if policy.PredicateScript != "" {
		prog, err := compile("policy:"+policy.Name, policy.PredicateScript)
		if err != nil {
			return err
		}
		d.policyPrograms[policy.Name] = prog
	}
	d.policies = append(d.policies, policy)
	return nil
}

// SynchronizeRule runs the named rule's registered direction(s).
// Bidirectional rules run two unidirectional passes, Source→Target
// first, then Target→Source, so repeated runs converge regardless of
// which side changed.
func (d *DKM) SynchronizeRule(ctx context.Context, ruleName string) (*SyncResult, error) {
	rule, ok := d.Rule(ruleName)
	if !ok {
		return nil, fabricerr.New(fabricerr.EntityNotFound, fmt.Sprintf("synchronization rule %q not registered", ruleName))
	}

	// Progress accumulated before a failure or cancellation is kept,
	// so callers always see how far the run got.
	total := &SyncResult{}
	accumulate := func(r *SyncResult, err error) error {
		if r != nil {
			total.add(*r)
		}
		return err
	}

	switch rule.Direction {
	case GlobalToLocal:
		if err := accumulate(d.Synchronize(ctx, rule.Target, rule.Source, rule)); err != nil {
			return total, err
		}
	case Bidirectional:
		if err := accumulate(d.Synchronize(ctx, rule.Source, rule.Target, rule)); err != nil {
			return total, err
		}
		if err := accumulate(d.Synchronize(ctx, rule.Target, rule.Source, rule)); err != nil {
			return total, err
		}
	default: // LocalToGlobal
		if err := accumulate(d.Synchronize(ctx, rule.Source, rule.Target, rule)); err != nil {
			return total, err
		}
	}
	return total, nil
}

// Synchronize runs one unidirectional pass of rule from source to
// target: policy check, schema mapping, last-writer-wins upsert,
// relationship carryover, event emission. When items is nil, candidates
// are gathered from every label in rule.Labels.
func (d *DKM) Synchronize(ctx context.Context, sourceName, targetName string, rule SynchronizationRule, items ...GenericNode) (*SyncResult, error) {
	source, ok := d.ManagedKG(sourceName)
	if !ok {
		return nil, fabricerr.New(fabricerr.EntityNotFound, fmt.Sprintf("managed KG %q not registered", sourceName))
	}
	target, ok := d.ManagedKG(targetName)
	if !ok {
		return nil, fabricerr.New(fabricerr.EntityNotFound, fmt.Sprintf("managed KG %q not registered", targetName))
	}

	candidates := items
	if candidates == nil {
		gathered, err := d.gatherCandidates(ctx, source, rule)
		if err != nil {
			return nil, err
		}
		candidates = gathered
	}

	result := &SyncResult{}
	for _, candidate := range candidates {
		// The candidate boundary is the cancellation point: a
		// cancelled pass stops here and keeps the progress so far.
		if cerr := ctx.Err(); cerr != nil {
			return result, fabricerr.Wrap(fabricerr.Cancelled, "synchronization cancelled", cerr)
		}
		result.ItemsConsidered++
		if err := d.synchronizeOne(ctx, source, target, rule, candidate, result); err != nil {
			return result, err
		}
	}
	return result, nil
}

func (d *DKM) gatherCandidates(ctx context.Context, source *ManagedKG, rule SynchronizationRule) ([]GenericNode, error) {
	d.mu.RLock()
	filterProg := d.filterPrograms[rule.Name]
	d.mu.RUnlock()

	var out []GenericNode
	for _, label := range rule.Labels {
		nodes, err := source.Store.ListByLabel(ctx, label)
		if err != nil {
			return nil, err
		}
		for _, n := range nodes {
			if filterProg == nil {
				out = append(out, n)
				continue
			}
			match, err := filterProg.EvalPredicate(n.Props, nil)
			if err != nil {
				return nil, err
			}
			if match {
				out = append(out, n)
			}
		}
	}
	return out, nil
}

// synchronizeOne moves one candidate. Per-candidate store failures are
// logged and absorbed so the rest of the pass proceeds; a returned
// error is a configuration problem (ambiguous mapping) that aborts the
// whole pass.
func (d *DKM) synchronizeOne(ctx context.Context, source, target *ManagedKG, rule SynchronizationRule, candidate GenericNode, result *SyncResult) error {
	if d.vetoedBySharingPolicy(candidate) {
		result.ItemsVetoed++
		return nil
	}

	mapping, err := d.resolveMapping(source.Name, target.Name, candidate.Label)
	if err != nil {
		return err
	}
	targetLabel := mapping.TargetLabel
	targetProps, err := d.applyMapping(mapping, candidate.Props)
	if err != nil {
		d.log.WithError(err).WithField("rule", rule.Name).Warn("schema mapping transform failed")
		result.ItemsVetoed++
		return nil
	}
	targetProps["id"] = candidate.ID

	existing, found, err := target.Store.FindByID(ctx, targetLabel, candidate.ID)
	if err != nil {
		d.log.WithError(err).WithField("rule", rule.Name).Warn("failed to look up synchronization target")
		return nil
	}

	if found && !newerThan(targetProps, existing.Props) {
		// Target already reflects this version (or a newer one);
		// nothing to apply. This is what makes a repeated
		// Synchronize with no source changes a no-op.
	} else {
		for _, immutable := range mapping.Immutable {
			if found {
				delete(targetProps, immutable)
			}
		}
		if _, err := target.Store.Upsert(ctx, targetLabel, targetProps); err != nil {
			d.log.WithError(err).WithField("rule", rule.Name).Warn("failed to upsert synchronization target")
			return nil
		}
		result.ItemsApplied++
	}

	d.carryOverRelationships(ctx, source, target, candidate, targetLabel, result)

	_ = d.events.Log(ctx, "knowledge.synchronized", "dkm", map[string]any{
		"rule": rule.Name, "label": candidate.Label, "target_label": targetLabel, "id": candidate.ID,
	})
	return nil
}

// newerThan reports whether proposed's updated_at is strictly after
// existing's: last-writer-wins at whole-node granularity. The data this
// DKM moves does not carry per-field timestamps, so a single updated_at
// compare is the practical approximation.
func newerThan(proposed, existing map[string]any) bool {
	p, pok := asTime(proposed["updated_at"])
	e, eok := asTime(existing["updated_at"])
	if !pok || !eok {
		return true
	}
	return p.After(e)
}

func asTime(v any) (time.Time, bool) {
	switch t := v.(type) {
	case time.Time:
		return t, true
	case string:
		parsed, err := time.Parse(time.RFC3339, t)
		return parsed, err == nil
	default:
		return time.Time{}, false
	}
}

// PersistMeta writes every current registration into the meta store as
// graph nodes: one ManagedKG node per registered KG, one
// SynchronizationRule node per rule with APPLIES_TO edges to its source
// and target KGs, one SchemaMapping node per mapping with MAPS_BETWEEN
// edges to its bound KG pair (none when unbound), and one
// KnowledgePolicy node per policy with GOVERNS edges to every
// registered KG. Every write is an upsert, so repeated calls converge.
// A DKM without a meta store treats this as a no-op.
func (d *DKM) PersistMeta(ctx context.Context) error {
	if d.meta == nil {
		return nil
	}

	d.mu.RLock()
	kgs := make([]*ManagedKG, 0, len(d.kgs))
	for _, kg := range d.kgs {
		kgs = append(kgs, kg)
	}
	rules := make([]SynchronizationRule, 0, len(d.rules))
	for _, r := range d.rules {
		rules = append(rules, r)
	}
	mappings := make([]SchemaMapping, 0, len(d.mappings))
	for _, m := range d.mappings {
		mappings = append(mappings, m)
	}
	policies := append([]KnowledgePolicy(nil), d.policies...)
	d.mu.RUnlock()

	for _, kg := range kgs {
		if _, err := d.meta.Upsert(ctx, "ManagedKG", map[string]any{
			"id": kg.Name, "name": kg.Name, "kind": kg.Kind, "description": kg.Description,
		}); err != nil {
			return err
		}
	}
	for _, rule := range rules {
		if _, err := d.meta.Upsert(ctx, "SynchronizationRule", map[string]any{
			"id": rule.Name, "name": rule.Name, "direction": string(rule.Direction),
			"cadence": string(rule.Cadence.Kind), "priority": rule.Priority,
		}); err != nil {
			return err
		}
		for _, kgName := range []string{rule.Source, rule.Target} {
			if err := d.meta.EnsureRelationship(ctx, "SynchronizationRule", rule.Name, "ManagedKG", kgName, "APPLIES_TO", nil); err != nil {
				return err
			}
		}
	}
	for _, mapping := range mappings {
		if _, err := d.meta.Upsert(ctx, "SchemaMapping", map[string]any{
			"id": mapping.Name, "name": mapping.Name,
			"sourceLabel": mapping.SourceLabel, "targetLabel": mapping.TargetLabel,
			"source_kg": mapping.SourceKG, "target_kg": mapping.TargetKG,
			"transform": mapping.TransformScript,
		}); err != nil {
			return err
		}
		if mapping.SourceKG == "" || mapping.TargetKG == "" {
			continue
		}
		for _, kgName := range []string{mapping.SourceKG, mapping.TargetKG} {
			if err := d.meta.EnsureRelationship(ctx, "SchemaMapping", mapping.Name, "ManagedKG", kgName, "MAPS_BETWEEN", nil); err != nil {
				return err
			}
		}
	}
	for _, policy := range policies {
		if _, err := d.meta.Upsert(ctx, "KnowledgePolicy", map[string]any{
			"id": policy.Name, "name": policy.Name, "kind": string(policy.Kind),
		}); err != nil {
			return err
		}
		for _, kg := range kgs {
			if err := d.meta.EnsureRelationship(ctx, "KnowledgePolicy", policy.Name, "ManagedKG", kg.Name, "GOVERNS", nil); err != nil {
				return err
			}
		}
	}
	return nil
}

// CheckAccess evaluates every access-kind policy whose scope matches
// label against the candidate's properties and the requesting agent's
// properties, reporting false as soon as any policy vetoes the read.
func (d *DKM) CheckAccess(label string, props, agent map[string]any) (bool, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	for _, policy := range d.policies {
		if policy.Kind != PolicyAccess || !scopeMatches(policy.Scope, label) {
			continue
		}
		prog := d.policyPrograms[policy.Name]
		if prog == nil {
			continue
		}
		allowed, err := prog.EvalPredicate(props, agent)
		if err != nil {
			return false, err
		}
		if !allowed {
			return false, nil
		}
	}
	return true, nil
}

func (d *DKM) vetoedBySharingPolicy(candidate GenericNode) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()

	for _, policy := range d.policies {
		if policy.Kind != PolicySharing {
			continue
		}
		if !scopeMatches(policy.Scope, candidate.Label) {
			continue
		}
		prog := d.policyPrograms[policy.Name]
		if prog == nil {
			continue
		}
		allowed, err := prog.EvalPredicate(candidate.Props, nil)
		if err != nil {
			d.log.WithError(err).WithField("policy", policy.Name).Warn("sharing policy predicate failed; vetoing")
			return true
		}
		if !allowed {
			return true
		}
	}
	return false
}

func scopeMatches(globs []string, label string) bool {
	if len(globs) == 0 {
		return true
	}
	for _, g := range globs {
		if ok, err := path.Match(g, label); err == nil && ok {
			return true
		}
	}
	return false
}

// resolveMapping picks the mapping for a candidate of sourceLabel
// moving from sourceKG to targetKG. A mapping bound to exactly this KG
// pair wins over an unbound one; more than one applicable mapping at
// the same specificity is a configuration error, never an arbitrary
// pick. With no applicable mapping the candidate passes through
// identically to the same label.
func (d *DKM) resolveMapping(sourceKG, targetKG, sourceLabel string) (SchemaMapping, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	var bound, unbound []SchemaMapping
	for _, mapping := range d.mappings {
		if mapping.SourceLabel != sourceLabel {
			continue
		}
		if mapping.SourceKG != "" || mapping.TargetKG != "" {
			if mapping.SourceKG == sourceKG && mapping.TargetKG == targetKG {
				bound = append(bound, mapping)
			}
			continue
		}
		unbound = append(unbound, mapping)
	}

	applicable := bound
	if len(applicable) == 0 {
		applicable = unbound
	}
	switch len(applicable) {
	case 0:
		return SchemaMapping{SourceLabel: sourceLabel, TargetLabel: sourceLabel}, nil
	case 1:
		return applicable[0], nil
	default:
		return SchemaMapping{}, fabricerr.New(fabricerr.ValidationError, fmt.Sprintf(
			"%d schema mappings apply to label %q for %s->%s; bind each to a managed KG pair",
			len(applicable), sourceLabel, sourceKG, targetKG))
	}
}

func (d *DKM) applyMapping(mapping SchemaMapping, props map[string]any) (map[string]any, error) {
	renamed := applyFieldMap(props, mapping.FieldMap)

	d.mu.RLock()
	transformProg := d.transformPrograms[mapping.Name]
	d.mu.RUnlock()

	if transformProg == nil {
		return renamed, nil
	}
	return transformProg.EvalTransform(renamed)
}

func (d *DKM) carryOverRelationships(ctx context.Context, source, target *ManagedKG, candidate GenericNode, targetLabel string, result *SyncResult) {
	rels, err := source.Store.OutgoingRelationships(ctx, candidate.Label, candidate.ID)
	if err != nil {
		d.log.WithError(err).Warn("failed to list relationships for carryover")
		return
	}
	for _, rel := range rels {
		_, targetExists, err := target.Store.FindByID(ctx, rel.TargetLabel, rel.TargetID)
		if err != nil || !targetExists {
			result.ItemsDeferred++
			continue
		}
		if err := target.Store.EnsureRelationship(ctx, targetLabel, candidate.ID, rel.TargetLabel, rel.TargetID, rel.Type, rel.Props); err != nil {
			d.log.WithError(err).Warn("failed to carry over relationship")
		}
	}
}
