package repository

import (
	"context"
	"time"

	"knowledgefabric/gal"
	"knowledgefabric/schema"
)

// DomainRepo accesses Domain nodes, the top of the ownership tree.
type DomainRepo struct{ *Base[Domain, *Domain] }

func NewDomainRepo(conn *gal.Connection, reg *schema.Registry, clock func() time.Time) *DomainRepo {
	return &DomainRepo{NewBase[Domain, *Domain]("Domain", conn, reg, Codec[Domain]{ToProps: domainToProps, FromRow: domainFromRow}, clock)}
}

// ProjectRepo accesses Project nodes.
type ProjectRepo struct{ *Base[Project, *Project] }

func NewProjectRepo(conn *gal.Connection, reg *schema.Registry, clock func() time.Time) *ProjectRepo {
	return &ProjectRepo{NewBase[Project, *Project]("Project", conn, reg, Codec[Project]{ToProps: projectToProps, FromRow: projectFromRow}, clock)}
}

// FindByDomain returns every Project BELONGS_TO the given Domain.
func (r *ProjectRepo) FindByDomain(ctx context.Context, domainID string) ([]Project, error) {
	stmt := "MATCH (p:Project)-[:BELONGS_TO]->(d:Domain {id: $domainID}) RETURN p ORDER BY p.created_at"
	rows, err := r.conn.Query(ctx, gal.AccessRead, stmt, map[string]any{"domainID": domainID})
	if err != nil {
		return nil, err
	}
	return r.decodeAll(rows), nil
}

// ComponentRepo accesses Component nodes.
type ComponentRepo struct{ *Base[Component, *Component] }

func NewComponentRepo(conn *gal.Connection, reg *schema.Registry, clock func() time.Time) *ComponentRepo {
	return &ComponentRepo{NewBase[Component, *Component]("Component", conn, reg, Codec[Component]{ToProps: componentToProps, FromRow: componentFromRow}, clock)}
}

// FindByProject returns every Component BELONGS_TO the given Project.
func (r *ComponentRepo) FindByProject(ctx context.Context, projectID string) ([]Component, error) {
	stmt := "MATCH (c:Component)-[:BELONGS_TO]->(p:Project {id: $projectID}) RETURN c ORDER BY c.created_at"
	rows, err := r.conn.Query(ctx, gal.AccessRead, stmt, map[string]any{"projectID": projectID})
	if err != nil {
		return nil, err
	}
	return r.decodeAll(rows), nil
}

// FindDependents returns every Component that DEPENDS_ON the given one.
func (r *ComponentRepo) FindDependents(ctx context.Context, componentID string) ([]Component, error) {
	stmt := "MATCH (c:Component)-[:DEPENDS_ON]->(target:Component {id: $componentID}) RETURN c ORDER BY c.created_at"
	rows, err := r.conn.Query(ctx, gal.AccessRead, stmt, map[string]any{"componentID": componentID})
	if err != nil {
		return nil, err
	}
	return r.decodeAll(rows), nil
}

// RequirementRepo accesses Requirement nodes.
type RequirementRepo struct{ *Base[Requirement, *Requirement] }

func NewRequirementRepo(conn *gal.Connection, reg *schema.Registry, clock func() time.Time) *RequirementRepo {
	return &RequirementRepo{NewBase[Requirement, *Requirement]("Requirement", conn, reg, Codec[Requirement]{ToProps: requirementToProps, FromRow: requirementFromRow}, clock)}
}

// FindForComponent returns every Requirement satisfied by an
// Implementation that belongs to the given Component.
func (r *RequirementRepo) FindForComponent(ctx context.Context, componentID string) ([]Requirement, error) {
	stmt := `MATCH (c:Component {id: $componentID})<-[:BELONGS_TO]-(i:Implementation)-[:SATISFIES]->(req:Requirement)
	         RETURN DISTINCT req ORDER BY req.created_at`
	rows, err := r.conn.Query(ctx, gal.AccessRead, stmt, map[string]any{"componentID": componentID})
	if err != nil {
		return nil, err
	}
	return r.decodeAll(rows), nil
}

// ImplementationRepo accesses Implementation nodes.
type ImplementationRepo struct{ *Base[Implementation, *Implementation] }

func NewImplementationRepo(conn *gal.Connection, reg *schema.Registry, clock func() time.Time) *ImplementationRepo {
	return &ImplementationRepo{NewBase[Implementation, *Implementation]("Implementation", conn, reg, Codec[Implementation]{ToProps: implementationToProps, FromRow: implementationFromRow}, clock)}
}

// FindForRequirement returns every Implementation that SATISFIES the
// given Requirement.
func (r *ImplementationRepo) FindForRequirement(ctx context.Context, requirementID string) ([]Implementation, error) {
	stmt := "MATCH (i:Implementation)-[:SATISFIES]->(req:Requirement {id: $requirementID}) RETURN i ORDER BY i.created_at"
	rows, err := r.conn.Query(ctx, gal.AccessRead, stmt, map[string]any{"requirementID": requirementID})
	if err != nil {
		return nil, err
	}
	return r.decodeAll(rows), nil
}

// PatternRepo accesses Pattern nodes.
type PatternRepo struct{ *Base[Pattern, *Pattern] }

func NewPatternRepo(conn *gal.Connection, reg *schema.Registry, clock func() time.Time) *PatternRepo {
	return &PatternRepo{NewBase[Pattern, *Pattern]("Pattern", conn, reg, Codec[Pattern]{ToProps: patternToProps, FromRow: patternFromRow}, clock)}
}

// DecisionRepo accesses Decision nodes.
type DecisionRepo struct{ *Base[Decision, *Decision] }

func NewDecisionRepo(conn *gal.Connection, reg *schema.Registry, clock func() time.Time) *DecisionRepo {
	return &DecisionRepo{NewBase[Decision, *Decision]("Decision", conn, reg, Codec[Decision]{ToProps: decisionToProps, FromRow: decisionFromRow}, clock)}
}

// AgentRepo accesses Agent nodes.
type AgentRepo struct{ *Base[Agent, *Agent] }

func NewAgentRepo(conn *gal.Connection, reg *schema.Registry, clock func() time.Time) *AgentRepo {
	return &AgentRepo{NewBase[Agent, *Agent]("Agent", conn, reg, Codec[Agent]{ToProps: agentToProps, FromRow: agentFromRow}, clock)}
}

// FindByLayer returns every Agent in the given layer (e.g. "orchestration", "worker").
func (r *AgentRepo) FindByLayer(ctx context.Context, layer string) ([]Agent, error) {
	return r.FindByProperty(ctx, "layer", layer)
}
