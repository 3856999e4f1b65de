package schema

import (
	"fmt"
	"sort"
)

// FieldDescriptor is the shape the schema-authoring layer reports for one
// declared field: a type name plus the constraints attached to it. The
// descriptor format itself is the authoring layer's contract; this package
// only maps it onto the internal Field representation.
type FieldDescriptor struct {
	Type     string
	Required *bool
	Unique   *bool
	Options  map[string]any
	Relation *RelationOptions
}

var validFieldTypes = map[FieldType]struct{}{
	FieldTypeText:     {},
	FieldTypeEmail:    {},
	FieldTypeURL:      {},
	FieldTypeNumber:   {},
	FieldTypeBool:     {},
	FieldTypeDate:     {},
	FieldTypeAutodate: {},
	FieldTypeSelect:   {},
	FieldTypeRelation: {},
	FieldTypeFile:     {},
	FieldTypeJSON:     {},
	FieldTypeEditor:   {},
	FieldTypeGeoPoint: {},
}

// ExtractField maps a field descriptor onto the internal Field model.
//
// Fields are required unless the author says otherwise, with one deliberate
// exception: number fields default to optional so that a legitimate zero
// value is never rejected by a required check.
func ExtractField(collection, name string, desc FieldDescriptor) (Field, error) {
	fieldType := FieldType(desc.Type)
	if _, ok := validFieldTypes[fieldType]; !ok {
		return Field{}, fmt.Errorf("field %s.%s has unknown type %q", collection, name, desc.Type)
	}

	field := Field{
		Name: name,
		Type: fieldType,
	}

	if desc.Required != nil {
		field.Required = *desc.Required
	} else {
		field.Required = fieldType != FieldTypeNumber
	}
	if desc.Unique != nil {
		v := *desc.Unique
		field.Unique = &v
	}

	options := make(map[string]any, len(desc.Options))
	for k, v := range desc.Options {
		options[k] = v
	}
	if v, present := options["onlyInt"]; present {
		options["noDecimal"] = v
		delete(options, "onlyInt")
	}

	if fieldType == FieldTypeRelation {
		relation := desc.Relation.Clone()
		if relation == nil {
			relation = &RelationOptions{}
		}
		if target, ok := options["collection"].(string); ok && relation.Collection == "" {
			relation.Collection = target
		}
		delete(options, "collection")
		for k := range relationOptionKeys {
			delete(options, k)
		}
		for k := range textOnlyOptionKeys {
			delete(options, k)
		}
		relation.Collection = ResolveCollectionRef(relation.Collection)
		field.Relation = relation
	} else if desc.Relation != nil {
		return Field{}, fmt.Errorf("field %s.%s is %s but carries relation metadata", collection, name, desc.Type)
	}

	field.Options = NormalizeOptions(options)
	return field, nil
}

// ExtractCollection builds a CollectionSchema from the (fieldName, descriptor)
// pairs of one authored collection. Field order follows the declaration order
// when given, otherwise field names sorted for determinism.
func ExtractCollection(name string, collectionType CollectionType, fields map[string]FieldDescriptor, order []string, rules RuleSet, indexes []string) (*CollectionSchema, error) {
	if name == "" {
		return nil, fmt.Errorf("collection has no name")
	}
	if collectionType == "" {
		collectionType = CollectionTypeBase
	}
	if collectionType != CollectionTypeBase && collectionType != CollectionTypeAuth {
		return nil, fmt.Errorf("collection %s has unknown type %q", name, collectionType)
	}

	if order == nil {
		order = make([]string, 0, len(fields))
		for fieldName := range fields {
			order = append(order, fieldName)
		}
		sort.Strings(order)
	}

	col := &CollectionSchema{
		Name:    name,
		Type:    collectionType,
		Fields:  make([]Field, 0, len(fields)),
		Indexes: append([]string(nil), indexes...),
	}
	for _, fieldName := range order {
		desc, ok := fields[fieldName]
		if !ok {
			return nil, fmt.Errorf("collection %s: field order names unknown field %q", name, fieldName)
		}
		field, err := ExtractField(name, fieldName, desc)
		if err != nil {
			return nil, err
		}
		col.Fields = append(col.Fields, field)
	}

	if collectionType != CollectionTypeAuth {
		if _, present := rules[RuleManage]; present {
			rules = rules.Clone()
			delete(rules, RuleManage)
		}
	}
	if len(rules) > 0 {
		col.SetRules(rules)
	}
	return col, nil
}

// EnsureIDs assigns stable ids to every collection and field that does not
// have one yet. Ids are derived deterministically so repeated runs over an
// unchanged definition produce identical output.
func EnsureIDs(def SchemaDefinition) {
	for name, col := range def {
		if col.ID == "" {
			col.ID = CollectionID(name)
		}
		for i := range col.Fields {
			if col.Fields[i].ID == "" {
				col.Fields[i].ID = FieldID(name, col.Fields[i])
			}
		}
	}
}
