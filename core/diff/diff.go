package diff

import (
	"fmt"
	"sort"

	"github.com/google/go-cmp/cmp"

	"github.com/asaidimu/go-pbmigrate/core/schema"
)

// Compare computes the structural delta between the desired definition and
// the current snapshot. A nil snapshot means everything in the definition is
// a creation. Collections flagged as system are never proposed for creation
// or deletion; the tool does not own them.
func Compare(desired schema.SchemaDefinition, current *schema.SchemaSnapshot) *SchemaDiff {
	d := &SchemaDiff{
		ExistingCollectionIDs: map[string]string{},
	}

	currentCollections := map[string]*schema.CollectionSchema{}
	if current != nil {
		for name, col := range current.Collections {
			currentCollections[name] = col
			if col.ID != "" {
				d.ExistingCollectionIDs[name] = col.ID
			}
		}
	}
	for name, col := range desired {
		if col.ID != "" {
			if _, known := d.ExistingCollectionIDs[name]; !known {
				d.ExistingCollectionIDs[name] = col.ID
			}
		}
	}

	// Relation targets reconstructed from generated scripts hold collection
	// ids rather than names; map every known id back so both sides compare
	// on the same form.
	idToName := map[string]string{}
	for name, id := range d.ExistingCollectionIDs {
		idToName[id] = name
	}

	names := make([]string, 0, len(desired))
	for name := range desired {
		names = append(names, name)
	}
	sort.Strings(names)

	var toCreate []*schema.CollectionSchema
	for _, name := range names {
		col := desired[name]
		if col.System {
			continue
		}
		existing, ok := currentCollections[name]
		if !ok {
			toCreate = append(toCreate, col)
			continue
		}
		if mod := compareCollections(col, existing, idToName); !mod.Empty() {
			d.CollectionsToModify = append(d.CollectionsToModify, mod)
		}
	}

	currentNames := make([]string, 0, len(currentCollections))
	for name := range currentCollections {
		currentNames = append(currentNames, name)
	}
	sort.Strings(currentNames)
	for _, name := range currentNames {
		col := currentCollections[name]
		if col.System {
			continue
		}
		if _, ok := desired[name]; !ok {
			d.CollectionsToDelete = append(d.CollectionsToDelete, col)
		}
	}

	d.CollectionsToCreate = orderByRelationDependency(toCreate, currentCollections)
	return d
}

// compareCollections builds the modification set for a collection present on
// both sides. Fields match by name; indexes compare by exact string set
// membership; rules compare slot by slot with undefined meaning "no opinion".
func compareCollections(desired, current *schema.CollectionSchema, idToName map[string]string) CollectionModification {
	mod := CollectionModification{
		Collection:     desired.Name,
		CollectionID:   current.ID,
		CollectionType: desired.Type,
	}
	if mod.CollectionID == "" {
		mod.CollectionID = desired.ID
	}

	currentFields := map[string]*schema.Field{}
	for i := range current.Fields {
		currentFields[current.Fields[i].Name] = &current.Fields[i]
	}
	desiredFields := map[string]*schema.Field{}
	for i := range desired.Fields {
		desiredFields[desired.Fields[i].Name] = &desired.Fields[i]
	}

	for i := range desired.Fields {
		field := desired.Fields[i]
		existing, ok := currentFields[field.Name]
		if !ok {
			mod.FieldsToAdd = append(mod.FieldsToAdd, field.Clone())
			continue
		}
		if changes := compareFields(*existing, field, idToName); len(changes) > 0 {
			added := field.Clone()
			if added.ID == "" {
				// Field ids are assigned once; a modified field keeps the
				// id recorded on the snapshot side.
				added.ID = existing.ID
			}
			mod.FieldsToModify = append(mod.FieldsToModify, FieldModification{
				FieldName:         field.Name,
				CurrentDefinition: existing.Clone(),
				NewDefinition:     added,
				Changes:           changes,
			})
		}
	}
	for i := range current.Fields {
		field := current.Fields[i]
		if _, ok := desiredFields[field.Name]; !ok {
			mod.FieldsToRemove = append(mod.FieldsToRemove, field.Clone())
		}
	}

	mod.IndexesToAdd = missingStrings(desired.Indexes, current.Indexes)
	mod.IndexesToRemove = missingStrings(current.Indexes, desired.Indexes)
	mod.RulesToUpdate = compareRules(desired, current)
	return mod
}

// compareFields returns one change entry per differing leaf of a matched
// field. All differing leaves of one field bundle into a single modification.
func compareFields(current, desired schema.Field, idToName map[string]string) []FieldChange {
	var changes []FieldChange

	if current.Type != desired.Type {
		changes = append(changes, FieldChange{Property: "type", OldValue: current.Type, NewValue: desired.Type})
	}
	if current.Required != desired.Required {
		changes = append(changes, FieldChange{Property: "required", OldValue: current.Required, NewValue: desired.Required})
	}
	if boolValue(current.Unique) != boolValue(desired.Unique) {
		changes = append(changes, FieldChange{Property: "unique", OldValue: boolValue(current.Unique), NewValue: boolValue(desired.Unique)})
	}

	changes = append(changes, compareOptions(current.Options, desired.Options)...)
	changes = append(changes, compareRelation(current.Relation, desired.Relation, idToName)...)
	return changes
}

// compareOptions walks the union of option keys. Values compare by deep
// equality; arrays are order-sensitive.
func compareOptions(current, desired map[string]any) []FieldChange {
	keys := map[string]struct{}{}
	for k := range current {
		keys[k] = struct{}{}
	}
	for k := range desired {
		keys[k] = struct{}{}
	}
	sorted := make([]string, 0, len(keys))
	for k := range keys {
		sorted = append(sorted, k)
	}
	sort.Strings(sorted)

	var changes []FieldChange
	for _, k := range sorted {
		oldVal, hadOld := current[k]
		newVal, hasNew := desired[k]
		if hadOld && hasNew && cmp.Equal(normalizeNumeric(oldVal), normalizeNumeric(newVal)) {
			continue
		}
		if !hadOld && !hasNew {
			continue
		}
		if cmp.Equal(normalizeNumeric(oldVal), normalizeNumeric(newVal)) {
			continue
		}
		changes = append(changes, FieldChange{
			Property: "options." + k,
			OldValue: oldVal,
			NewValue: newVal,
		})
	}
	return changes
}

func compareRelation(current, desired *schema.RelationOptions, idToName map[string]string) []FieldChange {
	if current == nil && desired == nil {
		return nil
	}
	var cur, des schema.RelationOptions
	if current != nil {
		cur = *current
	}
	if desired != nil {
		des = *desired
	}

	var changes []FieldChange
	// The snapshot side may still hold a sentinel, a lookup expression or a
	// known collection id; all resolve to the canonical name before
	// comparing, otherwise every such relation would spuriously diff each run.
	curTarget := resolveRelationTarget(cur.Collection, idToName)
	desTarget := resolveRelationTarget(des.Collection, idToName)
	if curTarget != desTarget {
		changes = append(changes, FieldChange{Property: "relation.collection", OldValue: curTarget, NewValue: desTarget})
	}
	if intValue(cur.MaxSelect) != intValue(des.MaxSelect) {
		changes = append(changes, FieldChange{Property: "relation.maxSelect", OldValue: intValue(cur.MaxSelect), NewValue: intValue(des.MaxSelect)})
	}
	if intValue(cur.MinSelect) != intValue(des.MinSelect) {
		changes = append(changes, FieldChange{Property: "relation.minSelect", OldValue: intValue(cur.MinSelect), NewValue: intValue(des.MinSelect)})
	}
	if cur.CascadeDelete != des.CascadeDelete {
		changes = append(changes, FieldChange{Property: "relation.cascadeDelete", OldValue: cur.CascadeDelete, NewValue: des.CascadeDelete})
	}
	if !cmp.Equal(cur.DisplayFields, des.DisplayFields) {
		changes = append(changes, FieldChange{Property: "relation.displayFields", OldValue: cur.DisplayFields, NewValue: des.DisplayFields})
	}
	return changes
}

// compareRules diffs the six rule slots. Whichever of rules/permissions is
// populated on each side is authoritative for that side. A slot missing on
// either side is "no opinion" and never produces an update by itself.
func compareRules(desired, current *schema.CollectionSchema) []RuleUpdate {
	desiredRules := desired.EffectiveRules()
	currentRules := current.EffectiveRules()

	var updates []RuleUpdate
	for _, rt := range schema.RuleTypes {
		if rt == schema.RuleManage && desired.Type != schema.CollectionTypeAuth {
			continue
		}
		newVal, definedNew := desiredRules[rt]
		oldVal, definedOld := currentRules[rt]
		if !definedNew || !definedOld {
			continue
		}
		if ruleEqual(oldVal, newVal) {
			continue
		}
		updates = append(updates, RuleUpdate{RuleType: rt, OldValue: oldVal, NewValue: newVal})
	}
	return updates
}

func resolveRelationTarget(ref string, idToName map[string]string) string {
	resolved := schema.ResolveCollectionRef(ref)
	if name, ok := idToName[resolved]; ok {
		return name
	}
	return resolved
}

func ruleEqual(a, b *string) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

func missingStrings(from, in []string) []string {
	present := map[string]struct{}{}
	for _, s := range in {
		present[s] = struct{}{}
	}
	var out []string
	for _, s := range from {
		if _, ok := present[s]; !ok {
			out = append(out, s)
		}
	}
	return out
}

// orderByRelationDependency sorts new collections so that every relation
// target created in the same diff precedes its referrers. Self references
// and references to pre-existing collections impose no ordering. Cycles fall
// back to name order rather than failing.
func orderByRelationDependency(toCreate []*schema.CollectionSchema, existing map[string]*schema.CollectionSchema) []*schema.CollectionSchema {
	if len(toCreate) <= 1 {
		return toCreate
	}

	creating := map[string]*schema.CollectionSchema{}
	for _, col := range toCreate {
		creating[col.Name] = col
	}

	deps := map[string]map[string]struct{}{}
	for _, col := range toCreate {
		deps[col.Name] = map[string]struct{}{}
		for _, field := range col.Fields {
			if field.Type != schema.FieldTypeRelation || field.Relation == nil {
				continue
			}
			target := schema.ResolveCollectionRef(field.Relation.Collection)
			if target == col.Name {
				continue
			}
			if _, exists := existing[target]; exists {
				continue
			}
			if _, isNew := creating[target]; isNew {
				deps[col.Name][target] = struct{}{}
			}
		}
	}

	names := make([]string, 0, len(toCreate))
	for _, col := range toCreate {
		names = append(names, col.Name)
	}
	sort.Strings(names)

	var ordered []*schema.CollectionSchema
	emitted := map[string]struct{}{}
	for len(ordered) < len(toCreate) {
		progressed := false
		for _, name := range names {
			if _, done := emitted[name]; done {
				continue
			}
			ready := true
			for dep := range deps[name] {
				if _, done := emitted[dep]; !done {
					ready = false
					break
				}
			}
			if ready {
				ordered = append(ordered, creating[name])
				emitted[name] = struct{}{}
				progressed = true
			}
		}
		if !progressed {
			// Dependency cycle; emit the remainder in name order.
			for _, name := range names {
				if _, done := emitted[name]; !done {
					ordered = append(ordered, creating[name])
					emitted[name] = struct{}{}
				}
			}
		}
	}
	return ordered
}

func boolValue(b *bool) bool {
	return b != nil && *b
}

func intValue(i *int) int {
	if i == nil {
		return 0
	}
	return *i
}

// normalizeNumeric folds integer values into float64 so that options decoded
// from JSON (always float64) compare equal to options authored as Go ints.
func normalizeNumeric(v any) any {
	switch val := v.(type) {
	case int:
		return float64(val)
	case int32:
		return float64(val)
	case int64:
		return float64(val)
	case float32:
		return float64(val)
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = normalizeNumeric(item)
		}
		return out
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, item := range val {
			out[k] = normalizeNumeric(item)
		}
		return out
	default:
		return v
	}
}

// Describe renders a one-line human summary of the diff, used for logging.
func Describe(d *SchemaDiff) string {
	return fmt.Sprintf("%d to create, %d to delete, %d to modify",
		len(d.CollectionsToCreate), len(d.CollectionsToDelete), len(d.CollectionsToModify))
}
