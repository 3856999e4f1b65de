package schema

import (
	"fmt"
	"strings"

	"github.com/asaidimu/go-pbmigrate/utils"
)

// ResolveRelations fills in the relation metadata that field naming
// conventions imply. A relation field without an explicit target resolves to
// the pluralized form of its own name ("author" -> "authors",
// "category_id" -> "categories"); a singular field name implies a to-one
// relation (maxSelect 1) while a plural one leaves the upper bound open.
//
// A resolved target that names neither a collection in the definition nor the
// built-in users collection is left as-is: it may legitimately refer to a
// collection that exists externally.
func ResolveRelations(def SchemaDefinition) error {
	for collectionName, col := range def {
		for i := range col.Fields {
			field := &col.Fields[i]
			if field.Type != FieldTypeRelation {
				continue
			}
			if field.Relation == nil {
				field.Relation = &RelationOptions{}
			}

			if field.Relation.Collection == "" {
				target, toMany := inferRelationTarget(field.Name)
				if target == "" {
					return fmt.Errorf("relation field %s.%s has no target and none can be inferred from its name", collectionName, field.Name)
				}
				field.Relation.Collection = target
				if field.Relation.MaxSelect == nil && !toMany {
					one := 1
					field.Relation.MaxSelect = &one
				}
			} else {
				field.Relation.Collection = ResolveCollectionRef(field.Relation.Collection)
			}

			if field.Relation.MaxSelect == nil && !utils.IsPlural(field.Name) {
				one := 1
				field.Relation.MaxSelect = &one
			}
		}
	}
	return nil
}

// inferRelationTarget derives a target collection name from a relation
// field's own name. Returns the target and whether the name implies a
// to-many relation.
func inferRelationTarget(fieldName string) (string, bool) {
	base := fieldName
	pluralSuffix := false
	for _, suffix := range []string{"_ids", "_id", "Ids", "Id"} {
		if strings.HasSuffix(base, suffix) && len(base) > len(suffix) {
			base = base[:len(base)-len(suffix)]
			pluralSuffix = suffix == "_ids" || suffix == "Ids"
			break
		}
	}
	if base == "" {
		return "", false
	}
	toMany := pluralSuffix || utils.IsPlural(base)
	target := strings.ToLower(utils.Pluralize(utils.Singularize(base)))
	return target, toMany
}
