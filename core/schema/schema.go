// Package schema defines the data model shared by every stage of the
// migration pipeline: fields, collections, desired-state definitions and
// recorded snapshots, plus the conversion from raw PocketBase collection
// objects into that model.
package schema

import (
	"fmt"
	"hash/fnv"
	"time"
)

// FieldType represents the field types supported by the target system.
type FieldType string

const (
	FieldTypeText     FieldType = "text"
	FieldTypeEmail    FieldType = "email"
	FieldTypeURL      FieldType = "url"
	FieldTypeNumber   FieldType = "number"
	FieldTypeBool     FieldType = "bool"
	FieldTypeDate     FieldType = "date"
	FieldTypeAutodate FieldType = "autodate"
	FieldTypeSelect   FieldType = "select"
	FieldTypeRelation FieldType = "relation"
	FieldTypeFile     FieldType = "file"
	FieldTypeJSON     FieldType = "json"
	FieldTypeEditor   FieldType = "editor"
	FieldTypeGeoPoint FieldType = "geoPoint"
	FieldTypePassword FieldType = "password"
)

// CollectionType distinguishes plain record collections from auth collections.
type CollectionType string

const (
	CollectionTypeBase CollectionType = "base"
	CollectionTypeAuth CollectionType = "auth"
)

// RuleType names one of the six authorization rule slots of a collection.
type RuleType string

const (
	RuleList   RuleType = "listRule"
	RuleView   RuleType = "viewRule"
	RuleCreate RuleType = "createRule"
	RuleUpdate RuleType = "updateRule"
	RuleDelete RuleType = "deleteRule"
	RuleManage RuleType = "manageRule"
)

// RuleTypes lists all rule slots in their canonical rendering order.
var RuleTypes = []RuleType{RuleList, RuleView, RuleCreate, RuleUpdate, RuleDelete, RuleManage}

// RuleSet holds the authorization rules that were actually specified for a
// collection. An absent key means "unspecified"; a nil value means locked to
// superusers; an empty string means public; anything else is a rule
// expression. The map form is what lets the diff engine tell "not specified"
// apart from "explicitly locked".
type RuleSet map[RuleType]*string

// Clone returns a shallow copy of the rule set (pointer values are shared;
// rule strings are immutable by convention).
func (r RuleSet) Clone() RuleSet {
	if r == nil {
		return nil
	}
	out := make(RuleSet, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}

// RelationOptions carries the relation-specific attributes of a field.
type RelationOptions struct {
	// Collection is the canonical target collection name. The snapshot side
	// may have stored a system id; ResolveCollectionRef normalizes it.
	Collection    string   `json:"collection"`
	MaxSelect     *int     `json:"maxSelect,omitempty"`
	MinSelect     *int     `json:"minSelect,omitempty"`
	CascadeDelete bool     `json:"cascadeDelete"`
	DisplayFields []string `json:"displayFields,omitempty"`
}

// Clone returns a deep copy of the relation options.
func (r *RelationOptions) Clone() *RelationOptions {
	if r == nil {
		return nil
	}
	out := *r
	if r.MaxSelect != nil {
		v := *r.MaxSelect
		out.MaxSelect = &v
	}
	if r.MinSelect != nil {
		v := *r.MinSelect
		out.MinSelect = &v
	}
	if r.DisplayFields != nil {
		out.DisplayFields = append([]string(nil), r.DisplayFields...)
	}
	return &out
}

// Field is one column/property of a collection.
//
// Options must never be an empty non-nil map: every code path that produces a
// Field normalizes "no options" to a nil map, because the diff engine treats
// presence and absence of the key as equivalent only when both sides are nil.
type Field struct {
	Name     string           `json:"name"`
	ID       string           `json:"id,omitempty"`
	Type     FieldType        `json:"type"`
	Required bool             `json:"required"`
	Unique   *bool            `json:"unique,omitempty"`
	Options  map[string]any   `json:"options,omitempty"`
	Relation *RelationOptions `json:"relation,omitempty"`
}

// Clone returns a deep copy of the field.
func (f Field) Clone() Field {
	out := f
	if f.Unique != nil {
		v := *f.Unique
		out.Unique = &v
	}
	if f.Options != nil {
		out.Options = make(map[string]any, len(f.Options))
		for k, v := range f.Options {
			out.Options[k] = cloneValue(v)
		}
	}
	out.Relation = f.Relation.Clone()
	return out
}

func cloneValue(v any) any {
	switch val := v.(type) {
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = cloneValue(item)
		}
		return out
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, item := range val {
			out[k] = cloneValue(item)
		}
		return out
	default:
		return v
	}
}

// CollectionSchema is one collection/table of the schema graph.
type CollectionSchema struct {
	Name    string         `json:"name"`
	ID      string         `json:"id,omitempty"`
	Type    CollectionType `json:"type"`
	System  bool           `json:"system,omitempty"`
	Fields  []Field        `json:"fields"`
	Indexes []string       `json:"indexes,omitempty"`

	// Rules and Permissions are two views of the same six rule slots, kept
	// separate for compatibility with older snapshot files. They are always
	// written together; EffectiveRules picks the authoritative one.
	Rules       RuleSet `json:"rules,omitempty"`
	Permissions RuleSet `json:"permissions,omitempty"`
}

// Clone returns a deep copy of the collection schema.
func (c *CollectionSchema) Clone() *CollectionSchema {
	if c == nil {
		return nil
	}
	out := *c
	out.Fields = make([]Field, len(c.Fields))
	for i, f := range c.Fields {
		out.Fields[i] = f.Clone()
	}
	if c.Indexes != nil {
		out.Indexes = append([]string(nil), c.Indexes...)
	}
	out.Rules = c.Rules.Clone()
	out.Permissions = c.Permissions.Clone()
	return &out
}

// EffectiveRules returns the authoritative rule set of the collection.
// Permissions take precedence when both are populated.
func (c *CollectionSchema) EffectiveRules() RuleSet {
	if len(c.Permissions) > 0 {
		return c.Permissions
	}
	return c.Rules
}

// SetRules assigns both the rules and permissions views from a single rule
// set, preserving the invariant that the two are always written together.
func (c *CollectionSchema) SetRules(rules RuleSet) {
	if len(rules) == 0 {
		c.Rules = nil
		c.Permissions = nil
		return
	}
	c.Rules = rules.Clone()
	c.Permissions = rules.Clone()
}

// FieldByName returns the field with the given name, or nil.
func (c *CollectionSchema) FieldByName(name string) *Field {
	for i := range c.Fields {
		if c.Fields[i].Name == name {
			return &c.Fields[i]
		}
	}
	return nil
}

// FieldByID returns the field with the given stable id, or nil.
func (c *CollectionSchema) FieldByID(id string) *Field {
	for i := range c.Fields {
		if c.Fields[i].ID != "" && c.Fields[i].ID == id {
			return &c.Fields[i]
		}
	}
	return nil
}

// SchemaDefinition is the desired target state: collection name to schema.
// It carries no version or timestamp metadata; it is rebuilt on every run
// from the authored schema sources.
type SchemaDefinition map[string]*CollectionSchema

// SchemaSnapshot is the recorded "last known applied" state.
type SchemaSnapshot struct {
	Version     string                       `json:"version"`
	Timestamp   string                       `json:"timestamp"`
	Collections map[string]*CollectionSchema `json:"collections"`
}

// SnapshotVersion is the current snapshot file format version.
const SnapshotVersion = "1.0.0"

// NewSnapshot captures a definition as a snapshot stamped with the given time.
func NewSnapshot(def SchemaDefinition, at time.Time) *SchemaSnapshot {
	collections := make(map[string]*CollectionSchema, len(def))
	for name, col := range def {
		collections[name] = col.Clone()
	}
	return &SchemaSnapshot{
		Version:     SnapshotVersion,
		Timestamp:   at.UTC().Format(time.RFC3339),
		Collections: collections,
	}
}

// CollectionByRef resolves a collection by name or stable id.
func (s *SchemaSnapshot) CollectionByRef(ref string) *CollectionSchema {
	if col, ok := s.Collections[ref]; ok {
		return col
	}
	for _, col := range s.Collections {
		if col.ID != "" && col.ID == ref {
			return col
		}
	}
	return nil
}

// UsersCollectionSentinel is the fixed id the target system uses for its
// built-in auth users collection.
const UsersCollectionSentinel = "_pb_users_auth_"

// UsersCollectionName is the canonical name the sentinel resolves to.
const UsersCollectionName = "users"

// CollectionID derives the stable id assigned to a newly created collection.
// Ids are a pure function of the collection name so that repeated runs over
// an unchanged schema assign identical ids.
func CollectionID(name string) string {
	if name == UsersCollectionName {
		return UsersCollectionSentinel
	}
	return fmt.Sprintf("pbc_%010d", hash32(name))
}

// FieldID derives the stable id assigned to a newly created field.
func FieldID(collection string, f Field) string {
	return fmt.Sprintf("%s%010d", f.Type, hash32(collection+"."+f.Name))
}

func hash32(s string) uint32 {
	h := fnv.New32a()
	h.Write([]byte(s))
	return h.Sum32()
}
