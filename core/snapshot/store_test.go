package snapshot

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/asaidimu/go-pbmigrate/core"
	"github.com/asaidimu/go-pbmigrate/core/schema"
)

func TestSaveLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".pbmigrate", "snapshot.json")

	def := schema.SchemaDefinition{
		"posts": {
			Name: "posts",
			ID:   "pbc_0000000001",
			Type: schema.CollectionTypeBase,
			Fields: []schema.Field{
				{Name: "title", ID: "text1", Type: schema.FieldTypeText, Required: true,
					Options: map[string]any{"max": float64(100)}},
			},
			Indexes: []string{"IDX_A"},
		},
	}
	def["posts"].SetRules(schema.RuleSet{schema.RuleList: core.StringPtr("")})

	require.NoError(t, Save(path, FromDefinition(def)))

	loaded, err := Load(path)
	require.NoError(t, err)
	require.NotNil(t, loaded)
	assert.Equal(t, schema.SnapshotVersion, loaded.Version)
	assert.NotEmpty(t, loaded.Timestamp)

	posts := loaded.Collections["posts"]
	require.NotNil(t, posts)
	assert.Equal(t, "pbc_0000000001", posts.ID)
	require.Len(t, posts.Fields, 1)
	assert.Equal(t, float64(100), posts.Fields[0].Options["max"])

	rule, defined := posts.EffectiveRules()[schema.RuleList]
	require.True(t, defined)
	require.NotNil(t, rule)
	assert.Equal(t, "", *rule)
}

func TestLoadMissingFileIsNotAnError(t *testing.T) {
	snap, err := Load(filepath.Join(t.TempDir(), "absent.json"))
	require.NoError(t, err)
	assert.Nil(t, snap)
}

func TestLoadValidation(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"missing_version", `{"timestamp": "2026-01-01T00:00:00Z", "collections": {}}`},
		{"missing_timestamp", `{"version": "1.0.0", "collections": {}}`},
		{"missing_collections", `{"version": "1.0.0", "timestamp": "2026-01-01T00:00:00Z"}`},
		{"wrong_version", `{"version": "9.9.9", "timestamp": "2026-01-01T00:00:00Z", "collections": {}}`},
		{"truncated", `{"version": "1.0.0",`},
		{"not_json", `hello`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "snapshot.json")
			require.NoError(t, os.WriteFile(path, []byte(tt.content), 0o644))

			_, err := Load(path)
			require.Error(t, err)
			assert.True(t, core.IsKind(err, core.ErrSnapshot))
		})
	}
}

func TestMerge(t *testing.T) {
	base := &schema.SchemaSnapshot{
		Version: schema.SnapshotVersion,
		Collections: map[string]*schema.CollectionSchema{
			"posts": {Name: "posts", ID: "base_posts"},
			"tags":  {Name: "tags", ID: "base_tags"},
		},
	}
	custom := &schema.SchemaSnapshot{
		Version: schema.SnapshotVersion,
		Collections: map[string]*schema.CollectionSchema{
			"posts": {Name: "posts", ID: "custom_posts"},
			"notes": {Name: "notes", ID: "custom_notes"},
		},
	}

	merged := Merge(base, custom)
	assert.Len(t, merged.Collections, 3)
	assert.Equal(t, "custom_posts", merged.Collections["posts"].ID)
	assert.Equal(t, "base_tags", merged.Collections["tags"].ID)
	assert.Equal(t, "custom_notes", merged.Collections["notes"].ID)

	// Inputs are untouched; merged collections are copies.
	merged.Collections["tags"].ID = "mutated"
	assert.Equal(t, "base_tags", base.Collections["tags"].ID)
}

func TestMergeNilSides(t *testing.T) {
	custom := &schema.SchemaSnapshot{
		Version:     schema.SnapshotVersion,
		Collections: map[string]*schema.CollectionSchema{"posts": {Name: "posts"}},
	}
	assert.Len(t, Merge(nil, custom).Collections, 1)
	assert.Empty(t, Merge(nil, nil).Collections)
}
