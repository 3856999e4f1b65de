// Package diff compares a desired schema definition against a recorded
// snapshot and produces the minimal ordered set of structural operations
// that turns the snapshot into the definition.
package diff

import (
	"github.com/asaidimu/go-pbmigrate/core/schema"
)

// SchemaDiff is the result of comparing desired state against current state.
type SchemaDiff struct {
	// CollectionsToCreate is topologically ordered by relation dependency:
	// a collection referencing another new collection comes after its target.
	CollectionsToCreate []*schema.CollectionSchema
	CollectionsToDelete []*schema.CollectionSchema
	CollectionsToModify []CollectionModification

	// ExistingCollectionIDs maps collection name to stable id for every
	// collection known to this diff (snapshot side plus new creations), so
	// the generator can reference targets by id instead of a runtime lookup.
	ExistingCollectionIDs map[string]string
}

// Empty reports whether the diff proposes no operations at all. Running the
// pipeline twice with no schema edits must yield an empty diff.
func (d *SchemaDiff) Empty() bool {
	return len(d.CollectionsToCreate) == 0 &&
		len(d.CollectionsToDelete) == 0 &&
		len(d.CollectionsToModify) == 0
}

// Operations returns the number of atomic collection operations in the diff,
// which is also the number of migration files the generator will emit.
func (d *SchemaDiff) Operations() int {
	return len(d.CollectionsToCreate) + len(d.CollectionsToDelete) + len(d.CollectionsToModify)
}

// CollectionModification bundles every detected change for one collection.
type CollectionModification struct {
	Collection     string
	CollectionID   string
	CollectionType schema.CollectionType

	FieldsToAdd    []schema.Field
	FieldsToRemove []schema.Field
	FieldsToModify []FieldModification

	IndexesToAdd    []string
	IndexesToRemove []string

	RulesToUpdate []RuleUpdate
}

// Empty reports whether the modification carries no changes; empty
// modifications never appear in a SchemaDiff.
func (m *CollectionModification) Empty() bool {
	return len(m.FieldsToAdd) == 0 &&
		len(m.FieldsToRemove) == 0 &&
		len(m.FieldsToModify) == 0 &&
		len(m.IndexesToAdd) == 0 &&
		len(m.IndexesToRemove) == 0 &&
		len(m.RulesToUpdate) == 0
}

// FieldModification bundles all differing leaves of one matched field.
type FieldModification struct {
	FieldName         string
	CurrentDefinition schema.Field
	NewDefinition     schema.Field
	Changes           []FieldChange
}

// FieldChange is one differing leaf. Property is a dotted path such as
// "required", "options.min" or "relation.collection"; the generator keys its
// mutation rendering off this path.
type FieldChange struct {
	Property string
	OldValue any
	NewValue any
}

// RuleUpdate records a rule slot changing from one defined value to another.
type RuleUpdate struct {
	RuleType schema.RuleType
	OldValue *string
	NewValue *string
}

// Inverse returns the rollback counterpart of the modification: adds and
// removes swapped, every field change reversed, rule values reverted.
func (m *CollectionModification) Inverse() CollectionModification {
	inv := CollectionModification{
		Collection:     m.Collection,
		CollectionID:   m.CollectionID,
		CollectionType: m.CollectionType,
		FieldsToAdd:    m.FieldsToRemove,
		FieldsToRemove: m.FieldsToAdd,
	}
	for _, fm := range m.FieldsToModify {
		changes := make([]FieldChange, len(fm.Changes))
		for i, ch := range fm.Changes {
			changes[i] = FieldChange{Property: ch.Property, OldValue: ch.NewValue, NewValue: ch.OldValue}
		}
		inv.FieldsToModify = append(inv.FieldsToModify, FieldModification{
			FieldName:         fm.FieldName,
			CurrentDefinition: fm.NewDefinition,
			NewDefinition:     fm.CurrentDefinition,
			Changes:           changes,
		})
	}
	inv.IndexesToAdd = m.IndexesToRemove
	inv.IndexesToRemove = m.IndexesToAdd
	for _, ru := range m.RulesToUpdate {
		inv.RulesToUpdate = append(inv.RulesToUpdate, RuleUpdate{
			RuleType: ru.RuleType,
			OldValue: ru.NewValue,
			NewValue: ru.OldValue,
		})
	}
	return inv
}
