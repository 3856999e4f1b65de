package diff

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/asaidimu/go-pbmigrate/core/schema"
)

func strPtr(s string) *string {
	return &s
}

func intPtr(i int) *int {
	return &i
}

func textField(name string) schema.Field {
	return schema.Field{Name: name, Type: schema.FieldTypeText, Required: true}
}

func baseCollection(name string, fields ...schema.Field) *schema.CollectionSchema {
	return &schema.CollectionSchema{
		Name:   name,
		Type:   schema.CollectionTypeBase,
		Fields: fields,
	}
}

func snapshotOf(def schema.SchemaDefinition) *schema.SchemaSnapshot {
	return schema.NewSnapshot(def, time.Now())
}

func TestCompareNilSnapshotCreatesEverything(t *testing.T) {
	def := schema.SchemaDefinition{
		"posts": baseCollection("posts", textField("title")),
		"tags":  baseCollection("tags", textField("label")),
	}

	d := Compare(def, nil)
	assert.Len(t, d.CollectionsToCreate, 2)
	assert.Empty(t, d.CollectionsToDelete)
	assert.Empty(t, d.CollectionsToModify)
}

func TestCompareIdempotent(t *testing.T) {
	one := 1
	def := schema.SchemaDefinition{
		"posts": {
			Name: "posts",
			Type: schema.CollectionTypeBase,
			Fields: []schema.Field{
				textField("title"),
				{Name: "views", Type: schema.FieldTypeNumber, Options: map[string]any{"noDecimal": true}},
				{Name: "author", Type: schema.FieldTypeRelation, Required: true,
					Relation: &schema.RelationOptions{Collection: "users", MaxSelect: &one}},
			},
			Indexes: []string{"CREATE INDEX idx_posts_title ON posts (title)"},
		},
	}
	def["posts"].SetRules(schema.RuleSet{
		schema.RuleList: strPtr(""),
		schema.RuleView: nil,
	})
	schema.EnsureIDs(def)

	d := Compare(def, snapshotOf(def))
	assert.True(t, d.Empty(), "diff of a definition against its own snapshot must be empty: %s", Describe(d))
}

func TestCompareSentinelTargetDoesNotDiff(t *testing.T) {
	// The snapshot stores the sentinel id, the definition the plain name.
	one := 1
	desired := schema.SchemaDefinition{
		"posts": baseCollection("posts", schema.Field{
			Name: "owner", Type: schema.FieldTypeRelation, Required: true,
			Relation: &schema.RelationOptions{Collection: "users", MaxSelect: &one},
		}),
	}
	currentDef := schema.SchemaDefinition{
		"posts": baseCollection("posts", schema.Field{
			Name: "owner", Type: schema.FieldTypeRelation, Required: true,
			Relation: &schema.RelationOptions{Collection: schema.UsersCollectionSentinel, MaxSelect: &one},
		}),
	}

	d := Compare(desired, snapshotOf(currentDef))
	assert.True(t, d.Empty(), Describe(d))
}

func TestCompareKnownIDTargetDoesNotDiff(t *testing.T) {
	// A snapshot rebuilt from generated migration history stores relation
	// targets as collection ids; an id belonging to a known collection must
	// compare equal to that collection's name.
	one := 1
	desired := schema.SchemaDefinition{
		"authors": baseCollection("authors", textField("handle")),
		"posts": baseCollection("posts", schema.Field{
			Name: "author_id", Type: schema.FieldTypeRelation,
			Relation: &schema.RelationOptions{Collection: "authors", MaxSelect: &one},
		}),
	}
	schema.EnsureIDs(desired)

	currentDef := schema.SchemaDefinition{
		"authors": desired["authors"].Clone(),
		"posts":   desired["posts"].Clone(),
	}
	currentDef["posts"].Fields[0].Relation.Collection = currentDef["authors"].ID

	d := Compare(desired, snapshotOf(currentDef))
	assert.True(t, d.Empty(), Describe(d))
}

func TestCompareUnresolvedRelationStillDiffs(t *testing.T) {
	// An opaque external id on the snapshot side cannot be resolved to a
	// name, so the relation keeps diffing run after run. Documented
	// limitation: pinned here so a change to it is a conscious one.
	desired := schema.SchemaDefinition{
		"posts": baseCollection("posts", schema.Field{
			Name: "topic", Type: schema.FieldTypeRelation, Required: true,
			Relation: &schema.RelationOptions{Collection: "topics"},
		}),
	}
	current := schema.SchemaDefinition{
		"posts": baseCollection("posts", schema.Field{
			Name: "topic", Type: schema.FieldTypeRelation, Required: true,
			Relation: &schema.RelationOptions{Collection: "pbc_9999999999"},
		}),
	}

	d := Compare(desired, snapshotOf(current))
	require.Len(t, d.CollectionsToModify, 1)
	require.Len(t, d.CollectionsToModify[0].FieldsToModify, 1)
	changes := d.CollectionsToModify[0].FieldsToModify[0].Changes
	require.Len(t, changes, 1)
	assert.Equal(t, "relation.collection", changes[0].Property)
}

func TestCompareFieldChanges(t *testing.T) {
	desired := schema.SchemaDefinition{
		"posts": baseCollection("posts",
			schema.Field{Name: "title", Type: schema.FieldTypeText, Required: true,
				Options: map[string]any{"max": 100}},
			textField("summary"),
		),
	}
	current := schema.SchemaDefinition{
		"posts": baseCollection("posts",
			schema.Field{Name: "title", Type: schema.FieldTypeText, Required: false,
				ID: "text123", Options: map[string]any{"max": 50}},
			textField("legacy"),
		),
	}

	d := Compare(desired, snapshotOf(current))
	require.Len(t, d.CollectionsToModify, 1)
	mod := d.CollectionsToModify[0]

	require.Len(t, mod.FieldsToAdd, 1)
	assert.Equal(t, "summary", mod.FieldsToAdd[0].Name)
	require.Len(t, mod.FieldsToRemove, 1)
	assert.Equal(t, "legacy", mod.FieldsToRemove[0].Name)

	require.Len(t, mod.FieldsToModify, 1)
	fm := mod.FieldsToModify[0]
	assert.Equal(t, "title", fm.FieldName)
	// The modified field keeps the snapshot-side id.
	assert.Equal(t, "text123", fm.NewDefinition.ID)
	require.Len(t, fm.Changes, 2)

	byProp := map[string]FieldChange{}
	for _, ch := range fm.Changes {
		byProp[ch.Property] = ch
	}
	assert.Equal(t, true, byProp["required"].NewValue)
	assert.Equal(t, 100, byProp["options.max"].NewValue)
}

func TestCompareNumericOptionsAcrossDecodings(t *testing.T) {
	// Options authored as Go ints must compare equal to the same options
	// decoded from JSON as float64.
	desired := schema.SchemaDefinition{
		"posts": baseCollection("posts", schema.Field{
			Name: "title", Type: schema.FieldTypeText, Required: true,
			Options: map[string]any{"max": 100},
		}),
	}
	current := schema.SchemaDefinition{
		"posts": baseCollection("posts", schema.Field{
			Name: "title", Type: schema.FieldTypeText, Required: true,
			Options: map[string]any{"max": float64(100)},
		}),
	}

	d := Compare(desired, snapshotOf(current))
	assert.True(t, d.Empty(), Describe(d))
}

func TestCompareRuleSemantics(t *testing.T) {
	tests := []struct {
		name        string
		desired     schema.RuleSet
		current     schema.RuleSet
		wantUpdates int
	}{
		{"locked_to_public", schema.RuleSet{schema.RuleList: strPtr("")}, schema.RuleSet{schema.RuleList: nil}, 1},
		{"public_to_locked", schema.RuleSet{schema.RuleList: nil}, schema.RuleSet{schema.RuleList: strPtr("")}, 1},
		{"expression_change", schema.RuleSet{schema.RuleList: strPtr("a = 1")}, schema.RuleSet{schema.RuleList: strPtr("a = 2")}, 1},
		{"equal_expressions", schema.RuleSet{schema.RuleList: strPtr("a = 1")}, schema.RuleSet{schema.RuleList: strPtr("a = 1")}, 0},
		// A slot only one side has an opinion on never produces an update.
		{"undefined_vs_locked", nil, schema.RuleSet{schema.RuleList: nil}, 0},
		{"defined_vs_undefined", schema.RuleSet{schema.RuleList: strPtr("")}, nil, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			desired := schema.SchemaDefinition{"posts": baseCollection("posts", textField("title"))}
			if tt.desired != nil {
				desired["posts"].SetRules(tt.desired)
			}
			current := schema.SchemaDefinition{"posts": baseCollection("posts", textField("title"))}
			if tt.current != nil {
				current["posts"].SetRules(tt.current)
			}

			d := Compare(desired, snapshotOf(current))
			total := 0
			for _, mod := range d.CollectionsToModify {
				total += len(mod.RulesToUpdate)
			}
			assert.Equal(t, tt.wantUpdates, total)
		})
	}
}

func TestCompareManageRuleOnlyForAuth(t *testing.T) {
	desired := schema.SchemaDefinition{"posts": baseCollection("posts", textField("title"))}
	desired["posts"].SetRules(schema.RuleSet{schema.RuleManage: strPtr("x")})
	current := schema.SchemaDefinition{"posts": baseCollection("posts", textField("title"))}
	current["posts"].SetRules(schema.RuleSet{schema.RuleManage: strPtr("y")})

	d := Compare(desired, snapshotOf(current))
	assert.True(t, d.Empty(), Describe(d))
}

func TestCompareIndexes(t *testing.T) {
	desired := schema.SchemaDefinition{"posts": baseCollection("posts", textField("title"))}
	desired["posts"].Indexes = []string{"IDX_A", "IDX_B"}
	current := schema.SchemaDefinition{"posts": baseCollection("posts", textField("title"))}
	current["posts"].Indexes = []string{"IDX_B", "IDX_C"}

	d := Compare(desired, snapshotOf(current))
	require.Len(t, d.CollectionsToModify, 1)
	assert.Equal(t, []string{"IDX_A"}, d.CollectionsToModify[0].IndexesToAdd)
	assert.Equal(t, []string{"IDX_C"}, d.CollectionsToModify[0].IndexesToRemove)
}

func TestCompareDeletionKeepsFullDefinition(t *testing.T) {
	current := schema.SchemaDefinition{
		"old": {
			Name:   "old",
			ID:     "pbc_0000000042",
			Type:   schema.CollectionTypeBase,
			Fields: []schema.Field{textField("body")},
		},
	}

	d := Compare(schema.SchemaDefinition{}, snapshotOf(current))
	require.Len(t, d.CollectionsToDelete, 1)
	// The full definition, id included, survives so a rollback can
	// re-create the collection.
	assert.Equal(t, "pbc_0000000042", d.CollectionsToDelete[0].ID)
	assert.Len(t, d.CollectionsToDelete[0].Fields, 1)
}

func TestCompareSystemCollectionsExcluded(t *testing.T) {
	current := schema.SchemaDefinition{
		"_superusers": {Name: "_superusers", Type: schema.CollectionTypeAuth, System: true},
	}
	desired := schema.SchemaDefinition{}

	d := Compare(desired, snapshotOf(current))
	assert.True(t, d.Empty(), Describe(d))
}

func TestCompareCreateOrderFollowsRelations(t *testing.T) {
	one := 1
	def := schema.SchemaDefinition{
		// Alphabetically "articles" sorts first, but it depends on both of
		// the others.
		"articles": baseCollection("articles",
			schema.Field{Name: "writer", Type: schema.FieldTypeRelation, Required: true,
				Relation: &schema.RelationOptions{Collection: "writers", MaxSelect: &one}},
			schema.Field{Name: "topic", Type: schema.FieldTypeRelation, Required: true,
				Relation: &schema.RelationOptions{Collection: "topics", MaxSelect: &one}},
		),
		"topics":  baseCollection("topics", textField("label")),
		"writers": baseCollection("writers", textField("name")),
	}

	d := Compare(def, nil)
	require.Len(t, d.CollectionsToCreate, 3)
	names := []string{d.CollectionsToCreate[0].Name, d.CollectionsToCreate[1].Name, d.CollectionsToCreate[2].Name}
	assert.Equal(t, []string{"topics", "writers", "articles"}, names)
}

func TestCompareCreateOrderCycleFallsBack(t *testing.T) {
	one := 1
	def := schema.SchemaDefinition{
		"a": baseCollection("a", schema.Field{Name: "b_ref", Type: schema.FieldTypeRelation,
			Relation: &schema.RelationOptions{Collection: "b", MaxSelect: &one}}),
		"b": baseCollection("b", schema.Field{Name: "a_ref", Type: schema.FieldTypeRelation,
			Relation: &schema.RelationOptions{Collection: "a", MaxSelect: &one}}),
	}

	d := Compare(def, nil)
	require.Len(t, d.CollectionsToCreate, 2)
	assert.Equal(t, "a", d.CollectionsToCreate[0].Name)
	assert.Equal(t, "b", d.CollectionsToCreate[1].Name)
}

func TestCompareExistingCollectionIDs(t *testing.T) {
	current := schema.SchemaDefinition{
		"posts": {Name: "posts", ID: "pbc_snapshot", Type: schema.CollectionTypeBase},
	}
	desired := schema.SchemaDefinition{
		"posts": {Name: "posts", ID: "pbc_desired", Type: schema.CollectionTypeBase},
		"tags":  {Name: "tags", ID: "pbc_tags", Type: schema.CollectionTypeBase},
	}

	d := Compare(desired, snapshotOf(current))
	// Snapshot-side ids win for collections known on both sides.
	assert.Equal(t, "pbc_snapshot", d.ExistingCollectionIDs["posts"])
	assert.Equal(t, "pbc_tags", d.ExistingCollectionIDs["tags"])
}

func TestModificationInverse(t *testing.T) {
	mod := CollectionModification{
		Collection:     "posts",
		FieldsToAdd:    []schema.Field{textField("a")},
		FieldsToRemove: []schema.Field{textField("b")},
		FieldsToModify: []FieldModification{{
			FieldName: "c",
			Changes:   []FieldChange{{Property: "required", OldValue: false, NewValue: true}},
		}},
		IndexesToAdd:    []string{"IDX_NEW"},
		IndexesToRemove: []string{"IDX_OLD"},
		RulesToUpdate:   []RuleUpdate{{RuleType: schema.RuleList, OldValue: nil, NewValue: strPtr("")}},
	}

	inv := mod.Inverse()
	assert.Equal(t, "b", inv.FieldsToAdd[0].Name)
	assert.Equal(t, "a", inv.FieldsToRemove[0].Name)
	assert.Equal(t, true, inv.FieldsToModify[0].Changes[0].OldValue)
	assert.Equal(t, false, inv.FieldsToModify[0].Changes[0].NewValue)
	assert.Equal(t, []string{"IDX_OLD"}, inv.IndexesToAdd)
	assert.Equal(t, []string{"IDX_NEW"}, inv.IndexesToRemove)
	assert.Nil(t, inv.RulesToUpdate[0].NewValue)
	require.NotNil(t, inv.RulesToUpdate[0].OldValue)

	// Inverting twice gets back to the original shape.
	back := inv.Inverse()
	assert.Equal(t, mod.FieldsToAdd[0].Name, back.FieldsToAdd[0].Name)
	assert.Equal(t, mod.IndexesToAdd, back.IndexesToAdd)
}
