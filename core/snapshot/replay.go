package snapshot

import (
	"fmt"

	"github.com/asaidimu/go-pbmigrate/core/parse"
	"github.com/asaidimu/go-pbmigrate/core/schema"
)

// Apply mutates a snapshot by replaying one migration's forward operations.
// Replay is strict: an operation that references an unknown collection means
// the snapshot and the migration history have diverged, and continuing would
// reconstruct a wrong baseline.
func Apply(snap *schema.SchemaSnapshot, ops *parse.Operations) error {
	for _, col := range ops.CollectionsToCreate {
		snap.Collections[col.Name] = col.Clone()
	}

	for _, ref := range ops.CollectionsToDelete {
		col := snap.CollectionByRef(ref)
		if col == nil {
			return fmt.Errorf("replay deletes unknown collection %q", ref)
		}
		delete(snap.Collections, col.Name)
	}

	for _, update := range ops.CollectionsToUpdate {
		col := snap.CollectionByRef(update.Collection)
		if col == nil {
			return fmt.Errorf("replay updates unknown collection %q", update.Collection)
		}
		if err := applyUpdate(col, update); err != nil {
			return fmt.Errorf("collection %s: %w", col.Name, err)
		}
	}
	return nil
}

func applyUpdate(col *schema.CollectionSchema, update parse.CollectionUpdate) error {
	for _, field := range update.FieldsToAdd {
		col.Fields = append(col.Fields, field.Clone())
	}

	for _, ref := range update.FieldsToRemove {
		if !removeField(col, ref) {
			return fmt.Errorf("replay removes unknown field %q", refLabel(ref))
		}
	}

	for _, fu := range update.FieldUpdates {
		field := lookupField(col, fu.Field)
		if field == nil {
			return fmt.Errorf("replay updates unknown field %q", refLabel(fu.Field))
		}
		if err := applyFieldUpdate(field, fu.Set); err != nil {
			return fmt.Errorf("field %s: %w", field.Name, err)
		}
	}

	for _, idx := range update.IndexesToAdd {
		if !containsString(col.Indexes, idx) {
			col.Indexes = append(col.Indexes, idx)
		}
	}
	for _, idx := range update.IndexesToRemove {
		col.Indexes = removeString(col.Indexes, idx)
	}

	if len(update.RuleUpdates) > 0 {
		rules := col.EffectiveRules().Clone()
		if rules == nil {
			rules = schema.RuleSet{}
		}
		for rt, value := range update.RuleUpdates {
			rules[rt] = value
		}
		col.SetRules(rules)
	}
	return nil
}

// applyFieldUpdate folds wire-level property assignments back onto the
// internal field shape, mirroring the conversion done on raw field objects.
func applyFieldUpdate(field *schema.Field, set map[string]any) error {
	for key, value := range set {
		switch key {
		case "name":
			s, ok := value.(string)
			if !ok {
				return fmt.Errorf("name assignment is not a string")
			}
			field.Name = s
		case "type":
			s, ok := value.(string)
			if !ok {
				return fmt.Errorf("type assignment is not a string")
			}
			field.Type = schema.FieldType(s)
		case "required":
			b, ok := value.(bool)
			if !ok {
				return fmt.Errorf("required assignment is not a boolean")
			}
			field.Required = b
		case "unique":
			b, ok := value.(bool)
			if !ok {
				return fmt.Errorf("unique assignment is not a boolean")
			}
			field.Unique = &b
		case "id", "system", "hidden", "presentable", "primaryKey":
			// Structural wire properties the internal shape does not track.
		case "collectionId", "maxSelect", "minSelect", "cascadeDelete", "displayFields":
			if field.Type != schema.FieldTypeRelation {
				return fmt.Errorf("%s assignment on non-relation field", key)
			}
			if field.Relation == nil {
				field.Relation = &schema.RelationOptions{}
			}
			applyRelationProperty(field.Relation, key, value)
		case "onlyInt":
			setOption(field, "noDecimal", value)
		default:
			setOption(field, key, value)
		}
	}
	return nil
}

func applyRelationProperty(rel *schema.RelationOptions, key string, value any) {
	switch key {
	case "collectionId":
		if s, ok := value.(string); ok {
			rel.Collection = schema.ResolveCollectionRef(s)
		}
	case "maxSelect":
		if n, ok := asInt(value); ok {
			rel.MaxSelect = &n
		}
	case "minSelect":
		if n, ok := asInt(value); ok {
			rel.MinSelect = &n
		}
	case "cascadeDelete":
		if b, ok := value.(bool); ok {
			rel.CascadeDelete = b
		}
	case "displayFields":
		rel.DisplayFields = nil
		if items, ok := value.([]any); ok {
			for _, item := range items {
				if s, ok := item.(string); ok {
					rel.DisplayFields = append(rel.DisplayFields, s)
				}
			}
		}
	}
}

func setOption(field *schema.Field, key string, value any) {
	if field.Options == nil {
		field.Options = map[string]any{}
	}
	field.Options[key] = value
	field.Options = schema.NormalizeOptions(field.Options)
}

func lookupField(col *schema.CollectionSchema, ref parse.FieldRef) *schema.Field {
	if ref.ID != "" {
		if f := col.FieldByID(ref.ID); f != nil {
			return f
		}
	}
	if ref.Name != "" {
		return col.FieldByName(ref.Name)
	}
	return nil
}

func removeField(col *schema.CollectionSchema, ref parse.FieldRef) bool {
	for i, f := range col.Fields {
		if (ref.ID != "" && f.ID == ref.ID) || (ref.Name != "" && f.Name == ref.Name) {
			col.Fields = append(col.Fields[:i], col.Fields[i+1:]...)
			return true
		}
	}
	return false
}

func refLabel(ref parse.FieldRef) string {
	if ref.ID != "" {
		return ref.ID
	}
	return ref.Name
}

func containsString(list []string, s string) bool {
	for _, item := range list {
		if item == s {
			return true
		}
	}
	return false
}

func removeString(list []string, s string) []string {
	out := list[:0]
	for _, item := range list {
		if item != s {
			out = append(out, item)
		}
	}
	return out
}

func asInt(value any) (int, bool) {
	switch v := value.(type) {
	case int:
		return v, true
	case int64:
		return int(v), true
	case float64:
		return int(v), true
	default:
		return 0, false
	}
}
