package core

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := LoadConfig("")
	require.NoError(t, err)
	assert.Equal(t, "schema", cfg.SchemaDir)
	assert.Equal(t, "pb_migrations", cfg.MigrationsDir)
	assert.Equal(t, ".pbmigrate/snapshot.json", cfg.SnapshotFile)
	assert.False(t, cfg.Force)
}

func TestLoadConfigMissingFileUsesDefaults(t *testing.T) {
	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), cfg)
}

func TestLoadConfigFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pbmigrate.yaml")
	content := `schemaDir: ./defs
migrationsDir: ./out
force: true
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "./defs", cfg.SchemaDir)
	assert.Equal(t, "./out", cfg.MigrationsDir)
	// Unset keys keep their defaults.
	assert.Equal(t, ".pbmigrate/snapshot.json", cfg.SnapshotFile)
	assert.True(t, cfg.Force)
}

func TestLoadConfigInvalidYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pbmigrate.yaml")
	require.NoError(t, os.WriteFile(path, []byte("schemaDir: [unclosed"), 0o644))

	_, err := LoadConfig(path)
	assert.Error(t, err)
}

func TestLoadConfigEnvOverrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pbmigrate.yaml")
	require.NoError(t, os.WriteFile(path, []byte("schemaDir: ./defs\n"), 0o644))

	t.Setenv("PBMIGRATE_SCHEMA_DIR", "/env/schema")
	t.Setenv("PBMIGRATE_DATABASE_FILE", "  /env/data.db  ")
	t.Setenv("PBMIGRATE_FORCE", "yes")

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "/env/schema", cfg.SchemaDir)
	assert.Equal(t, "/env/data.db", cfg.DatabaseFile)
	assert.True(t, cfg.Force)
}

func TestLoadConfigEnvBlankAndUnparsable(t *testing.T) {
	t.Setenv("PBMIGRATE_SCHEMA_DIR", "   ")
	t.Setenv("PBMIGRATE_FORCE", "maybe")

	cfg, err := LoadConfig("")
	require.NoError(t, err)
	assert.Equal(t, "schema", cfg.SchemaDir)
	assert.False(t, cfg.Force)
}
