package fabricconfig

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"knowledgefabric/fabricerr"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "bolt://localhost:7687", cfg.Neo4j.URI)
	assert.Equal(t, 10, cfg.Pool.Size)
	assert.False(t, cfg.DualModeEnabled())
}

func TestLoadRejectsUnknownKey(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "fabric.yaml")
	require.NoError(t, os.WriteFile(path, []byte("neo4j:\n  uri: bolt://x:7687\nbogus_key: true\n"), 0o644))

	_, err := Load(path)
	require.Error(t, err)
	assert.True(t, fabricerr.Is(err, fabricerr.ConfigurationError))
}

func TestLoadSharedEnablesDualMode(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "fabric.yaml")
	content := "neo4j:\n  uri: bolt://local:7687\nneo4j_shared:\n  uri: bolt://shared:7687\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.True(t, cfg.DualModeEnabled())
}
