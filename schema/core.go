package schema

// coreNodeSchemas declares every built-in node label.
func coreNodeSchemas() []NodeSchema {
	id := PropertySpec{Name: "id", Type: TypeString, Required: true}
	createdAt := PropertySpec{Name: "created_at", Type: TypeDatetime, Required: true}
	updatedAt := PropertySpec{Name: "updated_at", Type: TypeDatetime, Required: true}

	return []NodeSchema{
		{
			Label: "Domain",
			Properties: []PropertySpec{
				id, {Name: "name", Type: TypeString, Required: true},
				{Name: "description", Type: TypeString}, createdAt, updatedAt,
			},
			IndexedProperties: []string{"name"},
		},
		{
			Label: "Project",
			Properties: []PropertySpec{
				id, {Name: "name", Type: TypeString, Required: true},
				{Name: "description", Type: TypeString},
				{Name: "status", Type: TypeString, Required: true},
				createdAt, updatedAt,
			},
			IndexedProperties: []string{"name", "status"},
		},
		{
			Label: "Component",
			Properties: []PropertySpec{
				id, {Name: "name", Type: TypeString, Required: true},
				{Name: "type", Type: TypeString, Required: true},
				{Name: "status", Type: TypeString, Required: true},
				createdAt, updatedAt,
			},
			IndexedProperties: []string{"name", "type", "status"},
		},
		{
			Label: "Requirement",
			Properties: []PropertySpec{
				id, {Name: "name", Type: TypeString, Required: true},
				{Name: "description", Type: TypeString},
				{Name: "type", Type: TypeString, Required: true},
				{Name: "priority", Type: TypeString},
				{Name: "status", Type: TypeString, Required: true},
				createdAt, updatedAt,
			},
			IndexedProperties: []string{"name", "type", "status"},
		},
		{
			Label: "Implementation",
			Properties: []PropertySpec{
				id, {Name: "name", Type: TypeString, Required: true},
				{Name: "path", Type: TypeString, Required: true},
				{Name: "language", Type: TypeString},
				{Name: "version", Type: TypeString},
				{Name: "status", Type: TypeString, Required: true},
				createdAt, updatedAt,
			},
			IndexedProperties: []string{"name", "status"},
		},
		{
			Label: "Pattern",
			Properties: []PropertySpec{
				id, {Name: "name", Type: TypeString, Required: true},
				{Name: "description", Type: TypeString}, createdAt, updatedAt,
			},
			IndexedProperties: []string{"name"},
		},
		{
			Label: "Decision",
			Properties: []PropertySpec{
				id, {Name: "title", Type: TypeString, Required: true},
				{Name: "description", Type: TypeString},
				{Name: "context", Type: TypeString},
				{Name: "status", Type: TypeString, Required: true},
				createdAt, updatedAt,
			},
			IndexedProperties: []string{"status"},
		},
		{
			Label: "Agent",
			Properties: []PropertySpec{
				id, {Name: "name", Type: TypeString, Required: true},
				{Name: "type", Type: TypeString, Required: true},
				{Name: "layer", Type: TypeString, Required: true},
				{Name: "status", Type: TypeString, Required: true},
				createdAt, updatedAt,
			},
			IndexedProperties: []string{"name", "layer", "status"},
		},
		{
			Label: "Event",
			Properties: []PropertySpec{
				id, {Name: "type", Type: TypeString, Required: true},
				{Name: "timestamp", Type: TypeDatetime, Required: true},
				{Name: "source", Type: TypeString, Required: true},
				// JSON-encoded; graph properties can't hold nested maps.
				{Name: "metadata", Type: TypeString},
				{Name: "related", Type: TypeString},
			},
			IndexedProperties: []string{"type", "source"},
		},
		{
			Label: "Memory",
			Properties: []PropertySpec{
				id, {Name: "content", Type: TypeString, Required: true},
				// JSON-encoded tag→value map.
				{Name: "context", Type: TypeString},
				{Name: "memory_type", Type: TypeString, Required: true},
				{Name: "timestamp", Type: TypeDatetime, Required: true},
				{Name: "importance", Type: TypeNumber, Required: true, Bounded: true, Min: 0, Max: 1},
				{Name: "last_accessed", Type: TypeDatetime},
				{Name: "access_count", Type: TypeNumber},
				{Name: "embedding", Type: TypeVector},
			},
			IndexedProperties:   []string{"memory_type"},
			VectorIndexProperty: "embedding",
		},
		{
			Label: "Policy",
			Properties: []PropertySpec{
				id, {Name: "name", Type: TypeString, Required: true},
				{Name: "kind", Type: TypeString, Required: true},
			},
		},
		{
			Label: "ManagedKG",
			Properties: []PropertySpec{
				{Name: "name", Type: TypeString, Required: true},
				{Name: "kind", Type: TypeString, Required: true},
				{Name: "description", Type: TypeString},
			},
			IndexedProperties: []string{"name"},
		},
		{
			Label: "SynchronizationRule",
			Properties: []PropertySpec{
				{Name: "name", Type: TypeString, Required: true},
				{Name: "direction", Type: TypeString, Required: true},
				{Name: "cadence", Type: TypeString, Required: true},
				{Name: "priority", Type: TypeNumber, Required: true},
			},
		},
		{
			Label: "SchemaMapping",
			Properties: []PropertySpec{
				{Name: "name", Type: TypeString, Required: true},
				{Name: "sourceLabel", Type: TypeString, Required: true},
				{Name: "targetLabel", Type: TypeString, Required: true},
				{Name: "transform", Type: TypeString},
			},
		},
		{
			Label: "KnowledgePolicy",
			Properties: []PropertySpec{
				{Name: "name", Type: TypeString, Required: true},
				{Name: "kind", Type: TypeString, Required: true},
			},
		},
	}
}

// coreRelationshipSchemas declares every built-in relationship type.
// Endpoint label sets are deliberately permissive for the
// general-purpose types (RELATED_TO, CONTRIBUTES_TO, GOVERNED_BY) that span
// most labels, and narrow for the structural ones the invariants govern.
func coreRelationshipSchemas() []RelationshipSchema {
	anyLabel := []string{
		"Domain", "Project", "Component", "Requirement", "Implementation",
		"Pattern", "Decision", "Agent", "Event", "Memory", "Policy",
	}

	return []RelationshipSchema{
		{Type: "BELONGS_TO", AllowedSources: []string{"Project", "Component", "Requirement", "Implementation"}, AllowedTargets: []string{"Domain", "Project", "Component"}},
		{Type: "DEPENDS_ON", AllowedSources: []string{"Component"}, AllowedTargets: []string{"Component"}, Properties: []PropertySpec{{Name: "dependency_type", Type: TypeString}}},
		{Type: "IMPLEMENTS", AllowedSources: []string{"Implementation"}, AllowedTargets: []string{"Requirement", "Pattern"}},
		{Type: "USES_PATTERN", AllowedSources: []string{"Implementation", "Component"}, AllowedTargets: []string{"Pattern"}},
		{Type: "MADE_BY", AllowedSources: []string{"Decision"}, AllowedTargets: []string{"Agent"}},
		{Type: "SATISFIES", AllowedSources: []string{"Implementation"}, AllowedTargets: []string{"Requirement"}, Properties: []PropertySpec{{Name: "satisfaction_level", Type: TypeNumber, Bounded: true, Min: 0, Max: 1}}},
		{Type: "CONTRIBUTES_TO", AllowedSources: []string{"Agent"}, AllowedTargets: anyLabel},
		{Type: "RELATED_TO", AllowedSources: anyLabel, AllowedTargets: anyLabel, Properties: []PropertySpec{{Name: "relation", Type: TypeString}, {Name: "strength", Type: TypeNumber, Bounded: true, Min: 0, Max: 1}}},
		{Type: "TRIGGERS", AllowedSources: []string{"Event"}, AllowedTargets: []string{"Event"}},
		{Type: "GOVERNED_BY", AllowedSources: anyLabel, AllowedTargets: []string{"Policy"}},
		{Type: "NEXT_STEP", AllowedSources: []string{"Event"}, AllowedTargets: []string{"Event"}},
		{Type: "SYNCS_WITH", AllowedSources: []string{"ManagedKG"}, AllowedTargets: []string{"ManagedKG"}},
		{Type: "SYNCS_TO", AllowedSources: []string{"ManagedKG"}, AllowedTargets: []string{"ManagedKG"}},
		{Type: "APPLIES_TO", AllowedSources: []string{"SynchronizationRule"}, AllowedTargets: []string{"ManagedKG"}},
		{Type: "MAPS_BETWEEN", AllowedSources: []string{"SchemaMapping"}, AllowedTargets: []string{"ManagedKG"}},
		{Type: "GOVERNS", AllowedSources: []string{"KnowledgePolicy"}, AllowedTargets: []string{"ManagedKG"}},
	}
}
