package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultEntityTypeConfigIsValid(t *testing.T) {
	cfg := DefaultEntityTypeConfig()
	require.NoError(t, ValidateEntityTypeConfig(cfg))

	table, ok := cfg.Lookup(" Table ")
	require.True(t, ok)
	assert.Equal(t, "table", table.Name)
	assert.Equal(t, "database", table.Parent)

	_, ok = cfg.Lookup("invalid")
	assert.False(t, ok)
}

func TestValidateEntityTypeConfigRejectsBadGraphs(t *testing.T) {
	tests := []struct {
		name string
		cfg  EntityTypeConfig
	}{
		{name: "empty", cfg: EntityTypeConfig{}},
		{name: "blank name", cfg: EntityTypeConfig{Types: []EntityType{{Name: " "}}}},
		{name: "duplicate", cfg: EntityTypeConfig{Types: []EntityType{{Name: "table"}, {Name: "TABLE"}}}},
		{name: "unknown parent", cfg: EntityTypeConfig{Types: []EntityType{{Name: "table", Parent: "schema"}}}},
		{name: "self parent", cfg: EntityTypeConfig{Types: []EntityType{{Name: "table", Parent: "table"}}}},
		{name: "cycle", cfg: EntityTypeConfig{Types: []EntityType{
			{Name: "a", Parent: "b"},
			{Name: "b", Parent: "a"},
		}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Error(t, ValidateEntityTypeConfig(tt.cfg))
		})
	}
}

func TestNewEntityTypeConfigHolderReadsFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "entity_types.yml")
	content := []byte(`entity:
  types:
    - name: database
    - name: schema
      parent: database
    - name: table
      parent: schema
`)
	require.NoError(t, os.WriteFile(path, content, 0o600))

	holder, err := NewEntityTypeConfigHolder(path)
	require.NoError(t, err)

	cfg := holder.Get()
	require.Len(t, cfg.Types, 3)

	table, ok := cfg.Lookup("table")
	require.True(t, ok)
	assert.Equal(t, "schema", table.Parent)
}

func TestNewEntityTypeConfigHolderRejectsInvalidFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "entity_types.yml")
	content := []byte(`entity:
  types:
    - name: table
      parent: nowhere
`)
	require.NoError(t, os.WriteFile(path, content, 0o600))

	_, err := NewEntityTypeConfigHolder(path)
	assert.Error(t, err)
}
