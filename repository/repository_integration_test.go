//go:build integration

package repository

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"knowledgefabric/fabricerr"
	"knowledgefabric/gal"
	"knowledgefabric/schema"
)

func testConn(t *testing.T) *gal.Connection {
	uri := os.Getenv("FABRIC_TEST_NEO4J_URI")
	if uri == "" {
		t.Skip("FABRIC_TEST_NEO4J_URI not set")
	}
	ctx := context.Background()
	conn, err := gal.Open(ctx, gal.Config{
		URI: uri, Username: "neo4j", Password: os.Getenv("FABRIC_TEST_NEO4J_PASSWORD"),
		Database: "neo4j", PoolSize: 4, PoolWait: 2 * time.Second, MaxRetryTime: 5 * time.Second,
	}, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close(ctx) })
	return conn
}

func TestDomainProjectHierarchy(t *testing.T) {
	ctx := context.Background()
	conn := testConn(t)
	reg := schema.New()
	require.NoError(t, reg.Initialize(ctx, conn))

	domains := NewDomainRepo(conn, reg, nil)
	projects := NewProjectRepo(conn, reg, nil)
	rels := NewRelationshipRepo(conn, reg, nil)

	d, err := domains.Create(ctx, Domain{Name: "Development"})
	require.NoError(t, err)

	p, err := projects.Create(ctx, Project{Name: "DC", Status: "active"})
	require.NoError(t, err)

	require.NoError(t, rels.Create(ctx, "Project", p.ID, "Domain", d.ID, "BELONGS_TO", nil))

	found, err := projects.FindByDomain(ctx, d.ID)
	require.NoError(t, err)
	require.Len(t, found, 1)
	require.Equal(t, p.ID, found[0].ID)

	require.NoError(t, domains.Delete(ctx, d.ID))
	left, err := rels.FindRelationships(ctx, "Project", p.ID, "BELONGS_TO", "out")
	require.NoError(t, err)
	require.Empty(t, left)
}

func TestComponentDependencyCyclePrevention(t *testing.T) {
	ctx := context.Background()
	conn := testConn(t)
	reg := schema.New()
	require.NoError(t, reg.Initialize(ctx, conn))

	components := NewComponentRepo(conn, reg, nil)
	rels := NewRelationshipRepo(conn, reg, nil)

	a, err := components.Create(ctx, Component{Name: "A", Type: "service", Status: "active"})
	require.NoError(t, err)
	b, err := components.Create(ctx, Component{Name: "B", Type: "service", Status: "active"})
	require.NoError(t, err)

	require.NoError(t, rels.Create(ctx, "Component", a.ID, "Component", b.ID, "DEPENDS_ON", nil))

	err = rels.Create(ctx, "Component", b.ID, "Component", a.ID, "DEPENDS_ON", nil)
	require.Error(t, err)
	require.True(t, fabricerr.Is(err, fabricerr.ValidationError))
}
