package parse

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/asaidimu/go-pbmigrate/core/schema"
)

// ErrNoSnapshot is returned by ConvertMigration when the script contains no
// snapshot array literal. A script that parses fine but performs zero
// operations is success, not this error.
var ErrNoSnapshot = errors.New("no collection snapshot found in script")

// FieldRef identifies a field by stable id or by name, whichever the script
// used.
type FieldRef struct {
	ID   string
	Name string
}

// FieldUpdate is a set of property assignments against one looked-up field.
// Keys are the wire property names (max, required, collectionId, ...).
type FieldUpdate struct {
	Field FieldRef
	Set   map[string]any
}

// CollectionUpdate bundles the mutations a script applies to one collection.
type CollectionUpdate struct {
	// Collection is the name or id used in the lookup expression.
	Collection string

	FieldsToAdd    []schema.Field
	FieldsToRemove []FieldRef
	FieldUpdates   []FieldUpdate

	IndexesToAdd    []string
	IndexesToRemove []string

	RuleUpdates schema.RuleSet
}

// Operations is the structured form of one migration direction.
type Operations struct {
	CollectionsToCreate []*schema.CollectionSchema
	CollectionsToDelete []string
	CollectionsToUpdate []CollectionUpdate
}

// Empty reports whether the operations perform nothing.
func (o *Operations) Empty() bool {
	return len(o.CollectionsToCreate) == 0 &&
		len(o.CollectionsToDelete) == 0 &&
		len(o.CollectionsToUpdate) == 0
}

// Script is a fully parsed migration file: forward and rollback operations.
type Script struct {
	Up   *Operations
	Down *Operations
}

var (
	lookupStmtRe    = regexp.MustCompile(`^(?:const|let|var)\s+(\w+)\s*=\s*app\.findCollectionByNameOrId\(\s*["']([^"']+)["']\s*\)$`)
	deleteStmtRe    = regexp.MustCompile(`^(?:return\s+)?app\.delete\(\s*(\w+)\s*\)$`)
	deleteInlineRe  = regexp.MustCompile(`^(?:return\s+)?app\.delete\(\s*app\.findCollectionByNameOrId\(\s*["']([^"']+)["']\s*\)\s*\)$`)
	saveStmtRe      = regexp.MustCompile(`^(?:return\s+)?app\.save\(\s*(\w+)\s*\)$`)
	fieldAddRe      = regexp.MustCompile(`^(\w+)\.fields\.add\(\s*new Field\(`)
	fieldRemoveRe   = regexp.MustCompile(`^(\w+)\.fields\.remove(ById|ByName)\(\s*["']([^"']+)["']\s*\)$`)
	fieldGetRe      = regexp.MustCompile(`^(?:const|let|var)\s+(\w+)\s*=\s*(\w+)\.fields\.get(ById|ByName)\(\s*["']([^"']+)["']\s*\)$`)
	indexPushRe     = regexp.MustCompile(`^(\w+)\.indexes\.push\(`)
	indexSpliceRe   = regexp.MustCompile(`^(\w+)\.indexes\.splice\(\s*\w+\.indexes\.indexOf\(`)
	propAssignRe    = regexp.MustCompile(`^(\w+)\.(\w+)\s*=\s*(.+)$`)
	newCollectionRe = regexp.MustCompile(`new Collection\(`)
	snapshotRe      = regexp.MustCompile(`(?:const|let|var)\s+snapshot\s*=`)
)

var ruleProperties = map[string]schema.RuleType{
	"listRule":   schema.RuleList,
	"viewRule":   schema.RuleView,
	"createRule": schema.RuleCreate,
	"updateRule": schema.RuleUpdate,
	"deleteRule": schema.RuleDelete,
	"manageRule": schema.RuleManage,
}

// ParseOperations extracts the forward operations from a migration script.
// When the script has the standard two-callback entry point, only the first
// (up) callback is read; bare statement sequences are parsed whole, which
// keeps small hand-written fragments parseable.
func ParseOperations(src string) (*Operations, error) {
	up, _, found := splitCallbacks(src)
	if !found {
		up = src
	}
	return parseBody(up)
}

// ParseScript extracts both directions of a migration file.
func ParseScript(src string) (*Script, error) {
	up, down, found := splitCallbacks(src)
	if !found {
		return nil, fmt.Errorf("script has no migrate(up, down) entry point")
	}
	upOps, err := parseBody(up)
	if err != nil {
		return nil, fmt.Errorf("up callback: %w", err)
	}
	downOps, err := parseBody(down)
	if err != nil {
		return nil, fmt.Errorf("down callback: %w", err)
	}
	return &Script{Up: upOps, Down: downOps}, nil
}

// ConvertMigration reads a full-snapshot script and reconstructs the schema
// state it records. The snapshot array literal is parsed as data, never
// evaluated. Returns ErrNoSnapshot when no collection-producing array can be
// located; that failure is distinct from a valid script with no operations.
func ConvertMigration(src string) (*schema.SchemaSnapshot, error) {
	from := 0
	if loc := snapshotRe.FindStringIndex(src); loc != nil {
		from = loc[1]
	}
	literal, _ := extractBalanced(src, from, '[', ']')
	if literal == "" {
		return nil, ErrNoSnapshot
	}
	value, err := ParseValue(literal)
	if err != nil {
		return nil, fmt.Errorf("snapshot literal: %w", err)
	}
	items, ok := value.([]any)
	if !ok || len(items) == 0 {
		return nil, ErrNoSnapshot
	}

	snap := &schema.SchemaSnapshot{
		Version:     schema.SnapshotVersion,
		Collections: map[string]*schema.CollectionSchema{},
	}
	for _, item := range items {
		raw, ok := item.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("snapshot entry is not a collection object")
		}
		col, err := schema.ConvertExternalCollection(raw)
		if err != nil {
			return nil, fmt.Errorf("snapshot entry: %w", err)
		}
		snap.Collections[col.Name] = col
	}
	return snap, nil
}

// splitCallbacks isolates the up and down callback bodies of the standard
// migrate(up, down) entry point via balanced-brace scanning.
func splitCallbacks(src string) (up, down string, found bool) {
	idx := strings.Index(src, "migrate(")
	if idx < 0 {
		return "", "", false
	}
	upBody, next := extractBalanced(src, idx, '{', '}')
	if upBody == "" {
		return "", "", false
	}
	downBody, _ := extractBalanced(src, next, '{', '}')
	if downBody == "" {
		return "", "", false
	}
	return trimBraces(upBody), trimBraces(downBody), true
}

func trimBraces(block string) string {
	return strings.TrimSpace(block[1 : len(block)-1])
}

// parseBody scans a callback body statement by statement and extracts the
// operations it performs. Unrecognized statements are skipped: recovery of
// hand-written scripts is best-effort by design.
func parseBody(body string) (*Operations, error) {
	ops := &Operations{}

	// Collection variable -> the name-or-id it was looked up with.
	collectionVars := map[string]string{}
	// Field variable -> (owning collection variable, field ref).
	type fieldVar struct {
		collection string
		ref        FieldRef
	}
	fieldVars := map[string]fieldVar{}

	updates := map[string]*CollectionUpdate{}
	var updateOrder []string
	updateFor := func(collectionVar string) *CollectionUpdate {
		if u, ok := updates[collectionVar]; ok {
			return u
		}
		u := &CollectionUpdate{Collection: collectionVars[collectionVar]}
		updates[collectionVar] = u
		updateOrder = append(updateOrder, collectionVar)
		return u
	}

	for _, stmt := range scanStatements(body) {
		switch {
		case lookupStmtRe.MatchString(stmt):
			m := lookupStmtRe.FindStringSubmatch(stmt)
			collectionVars[m[1]] = m[2]

		case newCollectionRe.MatchString(stmt):
			loc := newCollectionRe.FindStringIndex(stmt)
			literal, _ := extractBalanced(stmt, loc[1], '{', '}')
			if literal == "" {
				return nil, fmt.Errorf("new Collection call has no object literal")
			}
			value, err := ParseValue(literal)
			if err != nil {
				return nil, fmt.Errorf("collection literal: %w", err)
			}
			raw, ok := value.(map[string]any)
			if !ok {
				return nil, fmt.Errorf("collection literal is not an object")
			}
			col, err := schema.ConvertExternalCollection(raw)
			if err != nil {
				return nil, err
			}
			ops.CollectionsToCreate = append(ops.CollectionsToCreate, col)

		case deleteInlineRe.MatchString(stmt):
			m := deleteInlineRe.FindStringSubmatch(stmt)
			ops.CollectionsToDelete = append(ops.CollectionsToDelete, m[1])

		case deleteStmtRe.MatchString(stmt):
			m := deleteStmtRe.FindStringSubmatch(stmt)
			if ref, ok := collectionVars[m[1]]; ok {
				ops.CollectionsToDelete = append(ops.CollectionsToDelete, ref)
			}

		case saveStmtRe.MatchString(stmt):
			// save finalizes a create or an update; both are already recorded.

		case fieldAddRe.MatchString(stmt):
			m := fieldAddRe.FindStringSubmatch(stmt)
			if _, known := collectionVars[m[1]]; !known {
				continue
			}
			loc := fieldAddRe.FindStringIndex(stmt)
			literal, _ := extractBalanced(stmt, loc[1], '{', '}')
			if literal == "" {
				return nil, fmt.Errorf("fields.add call has no object literal")
			}
			value, err := ParseValue(literal)
			if err != nil {
				return nil, fmt.Errorf("field literal: %w", err)
			}
			raw, ok := value.(map[string]any)
			if !ok {
				return nil, fmt.Errorf("field literal is not an object")
			}
			field, err := schema.ConvertExternalField(raw)
			if err != nil {
				return nil, err
			}
			update := updateFor(m[1])
			update.FieldsToAdd = append(update.FieldsToAdd, field)

		case fieldRemoveRe.MatchString(stmt):
			m := fieldRemoveRe.FindStringSubmatch(stmt)
			if _, known := collectionVars[m[1]]; !known {
				continue
			}
			ref := FieldRef{}
			if m[2] == "ById" {
				ref.ID = m[3]
			} else {
				ref.Name = m[3]
			}
			update := updateFor(m[1])
			update.FieldsToRemove = append(update.FieldsToRemove, ref)

		case fieldGetRe.MatchString(stmt):
			m := fieldGetRe.FindStringSubmatch(stmt)
			if _, known := collectionVars[m[2]]; !known {
				continue
			}
			ref := FieldRef{}
			if m[3] == "ById" {
				ref.ID = m[4]
			} else {
				ref.Name = m[4]
			}
			fieldVars[m[1]] = fieldVar{collection: m[2], ref: ref}

		case indexPushRe.MatchString(stmt):
			m := indexPushRe.FindStringSubmatch(stmt)
			if _, known := collectionVars[m[1]]; !known {
				continue
			}
			loc := indexPushRe.FindStringIndex(stmt)
			arg := strings.TrimSpace(strings.TrimSuffix(stmt[loc[1]:], ")"))
			value, err := ParseValue(arg)
			if err != nil {
				return nil, fmt.Errorf("indexes.push argument: %w", err)
			}
			idx, ok := value.(string)
			if !ok {
				return nil, fmt.Errorf("indexes.push argument is not a string")
			}
			update := updateFor(m[1])
			update.IndexesToAdd = append(update.IndexesToAdd, idx)

		case indexSpliceRe.MatchString(stmt):
			m := indexSpliceRe.FindStringSubmatch(stmt)
			if _, known := collectionVars[m[1]]; !known {
				continue
			}
			loc := indexSpliceRe.FindStringIndex(stmt)
			inner, _ := extractBalanced(stmt, loc[1]-1, '(', ')')
			if inner == "" {
				return nil, fmt.Errorf("indexes.splice call is malformed")
			}
			value, err := ParseValue(strings.TrimSpace(inner[1 : len(inner)-1]))
			if err != nil {
				return nil, fmt.Errorf("indexes.indexOf argument: %w", err)
			}
			idx, ok := value.(string)
			if !ok {
				return nil, fmt.Errorf("indexes.indexOf argument is not a string")
			}
			update := updateFor(m[1])
			update.IndexesToRemove = append(update.IndexesToRemove, idx)

		case propAssignRe.MatchString(stmt):
			m := propAssignRe.FindStringSubmatch(stmt)
			target, property, rhs := m[1], m[2], strings.TrimSpace(m[3])

			if ruleType, isRule := ruleProperties[property]; isRule {
				if _, known := collectionVars[target]; !known {
					continue
				}
				value, err := ParseValue(rhs)
				if err != nil {
					return nil, fmt.Errorf("rule assignment %s: %w", property, err)
				}
				update := updateFor(target)
				if update.RuleUpdates == nil {
					update.RuleUpdates = schema.RuleSet{}
				}
				if value == nil {
					update.RuleUpdates[ruleType] = nil
				} else if s, ok := value.(string); ok {
					update.RuleUpdates[ruleType] = &s
				} else {
					return nil, fmt.Errorf("rule assignment %s has non-string value", property)
				}
				continue
			}

			fv, isField := fieldVars[target]
			if !isField {
				continue
			}
			value, err := ParseValue(rhs)
			if err != nil {
				return nil, fmt.Errorf("field assignment %s.%s: %w", target, property, err)
			}
			// Relation targets may be assigned as an inline lookup call or
			// the users sentinel; both normalize to the bare name.
			if property == "collectionId" {
				if s, ok := value.(string); ok {
					value = schema.ResolveCollectionRef(s)
				}
			}
			update := updateFor(fv.collection)
			// Consecutive assignments to the same field variable fold into
			// one update entry.
			var entry *FieldUpdate
			for i := range update.FieldUpdates {
				if update.FieldUpdates[i].Field == fv.ref {
					entry = &update.FieldUpdates[i]
					break
				}
			}
			if entry == nil {
				update.FieldUpdates = append(update.FieldUpdates, FieldUpdate{Field: fv.ref, Set: map[string]any{}})
				entry = &update.FieldUpdates[len(update.FieldUpdates)-1]
			}
			entry.Set[property] = value
		}
	}

	for _, collectionVar := range updateOrder {
		ops.CollectionsToUpdate = append(ops.CollectionsToUpdate, *updates[collectionVar])
	}
	return ops, nil
}

// scanStatements splits a callback body into statements at semicolons and
// newlines that sit at bracket depth zero, honoring strings, so multi-line
// literals stay in one piece.
func scanStatements(body string) []string {
	var statements []string
	var sb strings.Builder
	depth := 0
	var quote byte

	flush := func() {
		stmt := strings.TrimSpace(sb.String())
		sb.Reset()
		if stmt != "" && !strings.HasPrefix(stmt, "//") {
			statements = append(statements, stmt)
		}
	}

	for i := 0; i < len(body); i++ {
		c := body[i]
		if quote != 0 {
			sb.WriteByte(c)
			if c == '\\' && i+1 < len(body) {
				i++
				sb.WriteByte(body[i])
			} else if c == quote {
				quote = 0
			}
			continue
		}
		switch c {
		case '"', '\'', '`':
			quote = c
			sb.WriteByte(c)
		case '(', '[', '{':
			depth++
			sb.WriteByte(c)
		case ')', ']', '}':
			depth--
			sb.WriteByte(c)
		case ';', '\n':
			if depth == 0 {
				flush()
			} else if c == '\n' {
				sb.WriteByte(' ')
			}
		default:
			sb.WriteByte(c)
		}
	}
	flush()
	return statements
}
