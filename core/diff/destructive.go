package diff

import "fmt"

// Severity classifies how much data an operation can lose.
type Severity string

const (
	SeverityHigh   Severity = "high"
	SeverityMedium Severity = "medium"
	SeverityLow    Severity = "low"
)

// ChangeKind is the closed set of operations that can discard stored data.
type ChangeKind string

const (
	KindCollectionDeletion ChangeKind = "collection_deletion"
	KindFieldDeletion      ChangeKind = "field_deletion"
	KindFieldTypeChange    ChangeKind = "field_type_change"
	KindFieldMadeRequired  ChangeKind = "field_made_required"
)

// DestructiveChange is one data-loss risk found in a diff.
type DestructiveChange struct {
	Kind       ChangeKind
	Severity   Severity
	Collection string
	Field      string
	Detail     string
}

// Detect scans a diff for operations that can lose data. Collection and
// field deletions and type changes are high severity; a previously optional
// field becoming required is medium.
func Detect(d *SchemaDiff) []DestructiveChange {
	var changes []DestructiveChange

	for _, col := range d.CollectionsToDelete {
		changes = append(changes, DestructiveChange{
			Kind:       KindCollectionDeletion,
			Severity:   SeverityHigh,
			Collection: col.Name,
			Detail:     fmt.Sprintf("collection %q and all of its records will be deleted", col.Name),
		})
	}

	for _, mod := range d.CollectionsToModify {
		for _, field := range mod.FieldsToRemove {
			changes = append(changes, DestructiveChange{
				Kind:       KindFieldDeletion,
				Severity:   SeverityHigh,
				Collection: mod.Collection,
				Field:      field.Name,
				Detail:     fmt.Sprintf("field %q of %q and its stored values will be deleted", field.Name, mod.Collection),
			})
		}
		for _, fm := range mod.FieldsToModify {
			for _, change := range fm.Changes {
				switch change.Property {
				case "type":
					changes = append(changes, DestructiveChange{
						Kind:       KindFieldTypeChange,
						Severity:   SeverityHigh,
						Collection: mod.Collection,
						Field:      fm.FieldName,
						Detail:     fmt.Sprintf("field %q changes type from %v to %v; existing values may not convert", fm.FieldName, change.OldValue, change.NewValue),
					})
				case "required":
					if newVal, ok := change.NewValue.(bool); ok && newVal {
						changes = append(changes, DestructiveChange{
							Kind:       KindFieldMadeRequired,
							Severity:   SeverityMedium,
							Collection: mod.Collection,
							Field:      fm.FieldName,
							Detail:     fmt.Sprintf("field %q becomes required; records with empty values will fail validation", fm.FieldName),
						})
					}
				}
			}
		}
	}

	return changes
}

// RequiresForce reports whether applying the changes should be gated behind
// an explicit confirmation. True when any change is high or medium severity.
func RequiresForce(changes []DestructiveChange) bool {
	for _, c := range changes {
		if c.Severity == SeverityHigh || c.Severity == SeverityMedium {
			return true
		}
	}
	return false
}
