package migrate

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/asaidimu/go-pbmigrate/core/diff"
	"github.com/asaidimu/go-pbmigrate/core/parse"
	"github.com/asaidimu/go-pbmigrate/core/schema"
	"github.com/asaidimu/go-pbmigrate/core/snapshot"
)

func strPtr(s string) *string {
	return &s
}

func intPtr(i int) *int {
	return &i
}

func samplePosts() *schema.CollectionSchema {
	col := &schema.CollectionSchema{
		Name: "posts",
		ID:   schema.CollectionID("posts"),
		Type: schema.CollectionTypeBase,
		Fields: []schema.Field{
			{Name: "title", Type: schema.FieldTypeText, Required: true,
				Options: map[string]any{"max": 120}},
			{Name: "views", Type: schema.FieldTypeNumber,
				Options: map[string]any{"noDecimal": true}},
			{Name: "owner", Type: schema.FieldTypeRelation, Required: true,
				Relation: &schema.RelationOptions{Collection: "users", MaxSelect: intPtr(1)}},
		},
		Indexes: []string{"CREATE INDEX `idx_posts_title` ON `posts` (`title`)"},
	}
	col.SetRules(schema.RuleSet{
		schema.RuleList: strPtr(""),
		schema.RuleView: nil,
	})
	schema.EnsureIDs(schema.SchemaDefinition{"posts": col})
	return col
}

func TestRenderScriptShape(t *testing.T) {
	script := RenderScript("return app.save(collection);", "return app.delete(collection);")
	assert.True(t, strings.HasPrefix(script, "/// <reference path=\"../pb_data/types.d.ts\" />\n"))
	assert.Contains(t, script, "migrate((app) => {")
	assert.Contains(t, script, "}, (app) => {")
	assert.True(t, strings.HasSuffix(script, "});\n"))
}

func TestRenderCreateEndsInReturn(t *testing.T) {
	up, down := RenderCreate(samplePosts(), nil)

	upLines := strings.Split(up, "\n")
	assert.Equal(t, "return app.save(collection);", upLines[len(upLines)-1])
	downLines := strings.Split(down, "\n")
	assert.Equal(t, "return app.delete(collection);", downLines[len(downLines)-1])
}

func TestRenderCreateRoundTrip(t *testing.T) {
	col := samplePosts()
	script := RenderScript(RenderCreate(col, nil))

	parsed, err := parse.ParseScript(script)
	require.NoError(t, err)
	require.Len(t, parsed.Up.CollectionsToCreate, 1)

	// Parsing back what was rendered must reconstruct the same collection:
	// a diff between the two is empty.
	recovered := parsed.Up.CollectionsToCreate[0]
	desired := schema.SchemaDefinition{"posts": col}
	current := schema.NewSnapshot(schema.SchemaDefinition{"posts": recovered}, time.Now())
	d := diff.Compare(desired, current)
	assert.True(t, d.Empty(), diff.Describe(d))

	// The down direction deletes exactly this collection.
	require.Len(t, parsed.Down.CollectionsToDelete, 1)
	assert.Equal(t, col.ID, parsed.Down.CollectionsToDelete[0])
}

func TestRenderCreateOnlyIntRename(t *testing.T) {
	up, _ := RenderCreate(samplePosts(), nil)
	assert.Contains(t, up, `"onlyInt": true`)
	assert.NotContains(t, up, "noDecimal")
}

func TestRenderCreateSentinelTarget(t *testing.T) {
	up, _ := RenderCreate(samplePosts(), nil)
	assert.Contains(t, up, `"collectionId": "`+schema.UsersCollectionSentinel+`"`)
}

func TestRenderCreateTargetResolutionOrder(t *testing.T) {
	col := &schema.CollectionSchema{
		Name: "articles",
		Type: schema.CollectionTypeBase,
		Fields: []schema.Field{
			{Name: "topic", Type: schema.FieldTypeRelation, Required: true,
				Relation: &schema.RelationOptions{Collection: "topics"}},
			{Name: "extern", Type: schema.FieldTypeRelation, Required: true,
				Relation: &schema.RelationOptions{Collection: "elsewhere"}},
		},
	}

	up, _ := RenderCreate(col, map[string]string{"topics": "pbc_0000000777"})
	// Known id wins; unknown target falls back to an inline lookup.
	assert.Contains(t, up, `"collectionId": "pbc_0000000777"`)
	assert.Contains(t, up, `"collectionId": app.findCollectionByNameOrId("elsewhere")`)
}

func TestRenderCreateAuthSynthesis(t *testing.T) {
	col := &schema.CollectionSchema{
		Name: "members",
		Type: schema.CollectionTypeAuth,
		Fields: []schema.Field{
			{Name: "displayName", Type: schema.FieldTypeText, Required: true},
		},
	}

	up, _ := RenderCreate(col, nil)
	for _, marker := range []string{
		`"name": "id"`,
		`"name": "password"`,
		`"name": "tokenKey"`,
		`"name": "email"`,
		`"name": "emailVisibility"`,
		`"name": "verified"`,
		"idx_tokenKey_members",
		"idx_email_members",
	} {
		assert.Contains(t, up, marker)
	}

	// Stripping on the way back in leaves only the user field.
	parsed, err := parse.ParseScript(RenderScript(up, "return app.delete(collection);"))
	require.NoError(t, err)
	require.Len(t, parsed.Up.CollectionsToCreate, 1)
	fields := parsed.Up.CollectionsToCreate[0].Fields
	require.Len(t, fields, 1)
	assert.Equal(t, "displayName", fields[0].Name)
}

func TestRenderCreateBaseHasNoManageRule(t *testing.T) {
	col := samplePosts()
	col.SetRules(schema.RuleSet{schema.RuleManage: strPtr("x"), schema.RuleList: strPtr("")})
	up, _ := RenderCreate(col, nil)
	assert.NotContains(t, up, "manageRule")
}

func TestRenderDeleteIsCreateReversed(t *testing.T) {
	col := samplePosts()
	createUp, createDown := RenderCreate(col, nil)
	deleteUp, deleteDown := RenderDelete(col, nil)
	assert.Equal(t, createDown, deleteUp)
	assert.Equal(t, createUp, deleteDown)
}

func sampleModification() diff.CollectionModification {
	return diff.CollectionModification{
		Collection:     "posts",
		CollectionID:   "pbc_0000000123",
		CollectionType: schema.CollectionTypeBase,
		FieldsToAdd: []schema.Field{
			{Name: "pinned", ID: "bool0000000055", Type: schema.FieldTypeBool},
		},
		FieldsToRemove: []schema.Field{
			{Name: "obsolete", ID: "text0000000044", Type: schema.FieldTypeText},
		},
		FieldsToModify: []diff.FieldModification{{
			FieldName:     "title",
			NewDefinition: schema.Field{Name: "title", ID: "text0000000011", Type: schema.FieldTypeText},
			Changes: []diff.FieldChange{
				{Property: "required", OldValue: true, NewValue: false},
				{Property: "options.max", OldValue: 50, NewValue: 200},
			},
		}},
		IndexesToAdd:    []string{"IDX_NEW"},
		IndexesToRemove: []string{"IDX_OLD"},
		RulesToUpdate: []diff.RuleUpdate{
			{RuleType: schema.RuleList, OldValue: nil, NewValue: strPtr("")},
		},
	}
}

func TestRenderModifyUp(t *testing.T) {
	up, _ := RenderModify(sampleModification(), nil)

	assert.Contains(t, up, `const collection = app.findCollectionByNameOrId("pbc_0000000123");`)
	assert.Contains(t, up, "collection.fields.add(new Field(")
	assert.Contains(t, up, `collection.fields.removeById("text0000000044");`)
	assert.Contains(t, up, `const title = collection.fields.getById("text0000000011");`)
	assert.Contains(t, up, "title.required = false;")
	assert.Contains(t, up, "title.max = 200;")
	assert.Contains(t, up, `collection.indexes.push("IDX_NEW");`)
	assert.Contains(t, up, `collection.indexes.splice(collection.indexes.indexOf("IDX_OLD"), 1);`)
	assert.Contains(t, up, `collection.listRule = "";`)
	assert.True(t, strings.HasSuffix(up, "return app.save(collection);"))

	// Section order: adds before removals before mutations before indexes
	// before rules.
	addPos := strings.Index(up, "fields.add")
	rulePos := strings.Index(up, "listRule")
	assert.Less(t, addPos, rulePos)
}

func TestRenderModifyDownInverts(t *testing.T) {
	_, down := RenderModify(sampleModification(), nil)

	// Added fields are removed, removed fields re-added, changes reversed,
	// rules reverted, and the rule section now comes first.
	assert.Contains(t, down, `collection.fields.removeById("bool0000000055");`)
	assert.Contains(t, down, `"name": "obsolete"`)
	assert.Contains(t, down, "title.required = true;")
	assert.Contains(t, down, "title.max = 50;")
	assert.Contains(t, down, `collection.indexes.push("IDX_OLD");`)
	assert.Contains(t, down, `collection.indexes.splice(collection.indexes.indexOf("IDX_NEW"), 1);`)
	assert.Contains(t, down, "collection.listRule = null;")
	assert.Less(t, strings.Index(down, "listRule"), strings.Index(down, "fields.removeById"))
	assert.True(t, strings.HasSuffix(down, "return app.save(collection);"))
}

func TestRenderModifyOnlyIntAssignment(t *testing.T) {
	mod := diff.CollectionModification{
		Collection: "posts",
		FieldsToModify: []diff.FieldModification{{
			FieldName:     "views",
			NewDefinition: schema.Field{Name: "views", Type: schema.FieldTypeNumber},
			Changes: []diff.FieldChange{
				{Property: "options.noDecimal", OldValue: false, NewValue: true},
			},
		}},
	}
	up, _ := RenderModify(mod, nil)
	assert.Contains(t, up, "views.onlyInt = true;")
	assert.NotContains(t, up, "noDecimal")
}

func TestRenderModifyRelationTargetAssignment(t *testing.T) {
	mod := diff.CollectionModification{
		Collection: "posts",
		FieldsToModify: []diff.FieldModification{{
			FieldName:     "owner",
			NewDefinition: schema.Field{Name: "owner", Type: schema.FieldTypeRelation},
			Changes: []diff.FieldChange{
				{Property: "relation.collection", OldValue: "groups", NewValue: "users"},
				{Property: "relation.maxSelect", OldValue: 0, NewValue: 3},
			},
		}},
	}
	up, _ := RenderModify(mod, nil)
	assert.Contains(t, up, `owner.collectionId = "`+schema.UsersCollectionSentinel+`";`)
	assert.Contains(t, up, "owner.maxSelect = 3;")
}

// Applying a rendered migration forward and then its rollback must land back
// on the starting snapshot.
func TestRenderModifyUpDownReplayInverse(t *testing.T) {
	start := &schema.SchemaSnapshot{
		Version: schema.SnapshotVersion,
		Collections: map[string]*schema.CollectionSchema{
			"posts": {
				Name: "posts",
				ID:   "pbc_0000000123",
				Type: schema.CollectionTypeBase,
				Fields: []schema.Field{
					{Name: "title", ID: "text0000000011", Type: schema.FieldTypeText,
						Required: true, Options: map[string]any{"max": float64(50)}},
					{Name: "obsolete", ID: "text0000000044", Type: schema.FieldTypeText, Required: true},
				},
				Indexes: []string{"IDX_OLD"},
			},
		},
	}

	script := RenderScript(RenderModify(sampleModification(), nil))
	parsed, err := parse.ParseScript(script)
	require.NoError(t, err)

	require.NoError(t, snapshot.Apply(start, parsed.Up))
	posts := start.Collections["posts"]
	assert.NotNil(t, posts.FieldByName("pinned"))
	assert.Nil(t, posts.FieldByName("obsolete"))
	assert.False(t, posts.FieldByName("title").Required)
	assert.Equal(t, []string{"IDX_NEW"}, posts.Indexes)

	require.NoError(t, snapshot.Apply(start, parsed.Down))
	posts = start.Collections["posts"]
	assert.Nil(t, posts.FieldByName("pinned"))
	require.NotNil(t, posts.FieldByName("obsolete"))
	assert.True(t, posts.FieldByName("title").Required)
	assert.Equal(t, float64(50), posts.FieldByName("title").Options["max"])
	assert.Equal(t, []string{"IDX_OLD"}, posts.Indexes)
	locked, defined := posts.EffectiveRules()[schema.RuleList]
	assert.True(t, defined)
	assert.Nil(t, locked)
}

func TestEnsureReturnRewritesOnlyLastStatement(t *testing.T) {
	body := "app.save(first);\napp.save(second);"
	out := ensureReturn(body)
	assert.Equal(t, "app.save(first);\nreturn app.save(second);", out)
}

func TestVarNamesCollisions(t *testing.T) {
	names := newVarNames()
	assert.Equal(t, "title", names.claim("title"))
	assert.Equal(t, "title2", names.claim("Title"))
	assert.Equal(t, "collection2", names.claim("collection"))
	assert.Equal(t, "field_new", names.claim("new"))
}
