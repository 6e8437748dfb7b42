package repository

// Domain is the top of the ownership tree.
type Domain struct {
	Stamp
	Name        string `mapstructure:"name"`
	Description string `mapstructure:"description"`
}

// Project belongs to exactly one Domain.
type Project struct {
	Stamp
	Name        string `mapstructure:"name"`
	Description string `mapstructure:"description"`
	Status      string `mapstructure:"status"`
}

// Component belongs to exactly one Project and may depend on other
// Components.
type Component struct {
	Stamp
	Name   string `mapstructure:"name"`
	Type   string `mapstructure:"type"`
	Status string `mapstructure:"status"`
}

// Requirement belongs to a Project.
type Requirement struct {
	Stamp
	Name        string `mapstructure:"name"`
	Description string `mapstructure:"description"`
	Type        string `mapstructure:"type"`
	Priority    string `mapstructure:"priority"`
	Status      string `mapstructure:"status"`
}

// Implementation belongs to a Component and may satisfy Requirements.
type Implementation struct {
	Stamp
	Name     string `mapstructure:"name"`
	Path     string `mapstructure:"path"`
	Language string `mapstructure:"language"`
	Version  string `mapstructure:"version"`
	Status   string `mapstructure:"status"`
}

// Pattern is a reusable design pattern referenced by USES_PATTERN.
type Pattern struct {
	Stamp
	Name        string `mapstructure:"name"`
	Description string `mapstructure:"description"`
}

// Decision records a choice made by an Agent.
type Decision struct {
	Stamp
	Title       string `mapstructure:"title"`
	Description string `mapstructure:"description"`
	Context     string `mapstructure:"context"`
	Status      string `mapstructure:"status"`
}

// Agent represents a collaborator in the fabric.
type Agent struct {
	Stamp
	Name   string `mapstructure:"name"`
	Type   string `mapstructure:"type"`
	Layer  string `mapstructure:"layer"`
	Status string `mapstructure:"status"`
}

func stringProp(row map[string]any, key string) string {
	if v, ok := row[key].(string); ok {
		return v
	}
	return ""
}

func domainToProps(d Domain) map[string]any {
	return map[string]any{
		"id": d.ID, "name": d.Name, "description": d.Description,
		"created_at": d.CreatedAt, "updated_at": d.UpdatedAt,
	}
}

func domainFromRow(row map[string]any) Domain {
	d := Domain{Name: stringProp(row, "name"), Description: stringProp(row, "description")}
	d.ID = stringProp(row, "id")
	d.CreatedAt, d.UpdatedAt = timeProp(row, "created_at"), timeProp(row, "updated_at")
	return d
}

func projectToProps(p Project) map[string]any {
	return map[string]any{
		"id": p.ID, "name": p.Name, "description": p.Description, "status": p.Status,
		"created_at": p.CreatedAt, "updated_at": p.UpdatedAt,
	}
}

func projectFromRow(row map[string]any) Project {
	p := Project{Name: stringProp(row, "name"), Description: stringProp(row, "description"), Status: stringProp(row, "status")}
	p.ID = stringProp(row, "id")
	p.CreatedAt, p.UpdatedAt = timeProp(row, "created_at"), timeProp(row, "updated_at")
	return p
}

func componentToProps(c Component) map[string]any {
	return map[string]any{
		"id": c.ID, "name": c.Name, "type": c.Type, "status": c.Status,
		"created_at": c.CreatedAt, "updated_at": c.UpdatedAt,
	}
}

func componentFromRow(row map[string]any) Component {
	c := Component{Name: stringProp(row, "name"), Type: stringProp(row, "type"), Status: stringProp(row, "status")}
	c.ID = stringProp(row, "id")
	c.CreatedAt, c.UpdatedAt = timeProp(row, "created_at"), timeProp(row, "updated_at")
	return c
}

func requirementToProps(r Requirement) map[string]any {
	return map[string]any{
		"id": r.ID, "name": r.Name, "description": r.Description, "type": r.Type,
		"priority": r.Priority, "status": r.Status,
		"created_at": r.CreatedAt, "updated_at": r.UpdatedAt,
	}
}

func requirementFromRow(row map[string]any) Requirement {
	r := Requirement{
		Name: stringProp(row, "name"), Description: stringProp(row, "description"),
		Type: stringProp(row, "type"), Priority: stringProp(row, "priority"), Status: stringProp(row, "status"),
	}
	r.ID = stringProp(row, "id")
	r.CreatedAt, r.UpdatedAt = timeProp(row, "created_at"), timeProp(row, "updated_at")
	return r
}

func implementationToProps(i Implementation) map[string]any {
	return map[string]any{
		"id": i.ID, "name": i.Name, "path": i.Path, "language": i.Language,
		"version": i.Version, "status": i.Status,
		"created_at": i.CreatedAt, "updated_at": i.UpdatedAt,
	}
}

func implementationFromRow(row map[string]any) Implementation {
	i := Implementation{
		Name: stringProp(row, "name"), Path: stringProp(row, "path"), Language: stringProp(row, "language"),
		Version: stringProp(row, "version"), Status: stringProp(row, "status"),
	}
	i.ID = stringProp(row, "id")
	i.CreatedAt, i.UpdatedAt = timeProp(row, "created_at"), timeProp(row, "updated_at")
	return i
}

func patternToProps(p Pattern) map[string]any {
	return map[string]any{
		"id": p.ID, "name": p.Name, "description": p.Description,
		"created_at": p.CreatedAt, "updated_at": p.UpdatedAt,
	}
}

func patternFromRow(row map[string]any) Pattern {
	p := Pattern{Name: stringProp(row, "name"), Description: stringProp(row, "description")}
	p.ID = stringProp(row, "id")
	p.CreatedAt, p.UpdatedAt = timeProp(row, "created_at"), timeProp(row, "updated_at")
	return p
}

func decisionToProps(d Decision) map[string]any {
	return map[string]any{
		"id": d.ID, "title": d.Title, "description": d.Description,
		"context": d.Context, "status": d.Status,
		"created_at": d.CreatedAt, "updated_at": d.UpdatedAt,
	}
}

func decisionFromRow(row map[string]any) Decision {
	d := Decision{
		Title: stringProp(row, "title"), Description: stringProp(row, "description"),
		Context: stringProp(row, "context"), Status: stringProp(row, "status"),
	}
	d.ID = stringProp(row, "id")
	d.CreatedAt, d.UpdatedAt = timeProp(row, "created_at"), timeProp(row, "updated_at")
	return d
}

func agentToProps(a Agent) map[string]any {
	return map[string]any{
		"id": a.ID, "name": a.Name, "type": a.Type, "layer": a.Layer, "status": a.Status,
		"created_at": a.CreatedAt, "updated_at": a.UpdatedAt,
	}
}

func agentFromRow(row map[string]any) Agent {
	a := Agent{Name: stringProp(row, "name"), Type: stringProp(row, "type"), Layer: stringProp(row, "layer"), Status: stringProp(row, "status")}
	a.ID = stringProp(row, "id")
	a.CreatedAt, a.UpdatedAt = timeProp(row, "created_at"), timeProp(row, "updated_at")
	return a
}
