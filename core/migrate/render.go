// Package migrate renders schema diffs into migration scripts for the target
// runtime and writes one file per atomic collection operation. Rendering is
// pure; only Generate touches the filesystem.
package migrate

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/asaidimu/go-pbmigrate/core/diff"
	"github.com/asaidimu/go-pbmigrate/core/schema"
	"github.com/asaidimu/go-pbmigrate/utils"
)

// rawExpr is a value rendered verbatim instead of as a quoted literal, used
// for the inline lookup fallback when no collection id is known ahead of time.
type rawExpr string

// kv is one entry of an ordered object literal.
type kv struct {
	key   string
	value any
}

const scriptHeader = "/// <reference path=\"../pb_data/types.d.ts\" />"

// RenderScript wraps rendered up and down bodies into a complete migration
// file with the standard two-callback entry point.
func RenderScript(up, down string) string {
	var sb strings.Builder
	sb.WriteString(scriptHeader)
	sb.WriteString("\nmigrate((app) => {\n")
	sb.WriteString(indent(up, "  "))
	sb.WriteString("\n}, (app) => {\n")
	sb.WriteString(indent(down, "  "))
	sb.WriteString("\n});\n")
	return sb.String()
}

// RenderCreate renders the up and down bodies for a collection creation.
func RenderCreate(col *schema.CollectionSchema, ids map[string]string) (up, down string) {
	var sb strings.Builder
	sb.WriteString("const collection = new Collection(")
	sb.WriteString(renderValue(collectionLiteral(col, ids), ""))
	sb.WriteString(");\n\napp.save(collection);")
	up = ensureReturn(sb.String())
	down = ensureReturn(fmt.Sprintf("const collection = app.findCollectionByNameOrId(%s);\n\napp.delete(collection);",
		quote(collectionRef(col))))
	return up, down
}

// RenderDelete renders the up and down bodies for a collection deletion. The
// down body re-creates the collection from its full recorded definition,
// which is why deleted collections retain their id through the diff.
func RenderDelete(col *schema.CollectionSchema, ids map[string]string) (up, down string) {
	createUp, createDown := RenderCreate(col, ids)
	return createDown, createUp
}

// RenderModify renders the up and down bodies for one collection's bundled
// modification set. The down body applies the inverse changes in reverse
// order.
func RenderModify(mod diff.CollectionModification, ids map[string]string) (up, down string) {
	up = ensureReturn(renderModifyBody(mod, ids, false))
	down = ensureReturn(renderModifyBody(mod.Inverse(), ids, true))
	return up, down
}

func renderModifyBody(mod diff.CollectionModification, ids map[string]string, reversed bool) string {
	ref := mod.CollectionID
	if ref == "" {
		ref = mod.Collection
	}
	statements := []string{fmt.Sprintf("const collection = app.findCollectionByNameOrId(%s);", quote(ref))}

	names := newVarNames()
	sections := []func() []string{
		func() []string {
			var out []string
			for _, field := range mod.FieldsToAdd {
				out = append(out, fmt.Sprintf("collection.fields.add(new Field(%s));",
					renderValue(fieldLiteral(mod.Collection, field, ids), "")))
			}
			return out
		},
		func() []string {
			var out []string
			for _, field := range mod.FieldsToRemove {
				if field.ID != "" {
					out = append(out, fmt.Sprintf("collection.fields.removeById(%s);", quote(field.ID)))
				} else {
					out = append(out, fmt.Sprintf("collection.fields.removeByName(%s);", quote(field.Name)))
				}
			}
			return out
		},
		func() []string {
			var out []string
			for _, fm := range mod.FieldsToModify {
				out = append(out, renderFieldModification(fm, ids, names)...)
			}
			return out
		},
		func() []string {
			var out []string
			for _, idx := range mod.IndexesToAdd {
				out = append(out, fmt.Sprintf("collection.indexes.push(%s);", quote(idx)))
			}
			return out
		},
		func() []string {
			var out []string
			for _, idx := range mod.IndexesToRemove {
				out = append(out, fmt.Sprintf("collection.indexes.splice(collection.indexes.indexOf(%s), 1);", quote(idx)))
			}
			return out
		},
		func() []string {
			var out []string
			for _, ru := range mod.RulesToUpdate {
				out = append(out, fmt.Sprintf("collection.%s = %s;", ru.RuleType, renderRuleValue(ru.NewValue)))
			}
			return out
		},
	}

	if reversed {
		for i, j := 0, len(sections)-1; i < j; i, j = i+1, j-1 {
			sections[i], sections[j] = sections[j], sections[i]
		}
	}
	for _, section := range sections {
		if stmts := section(); len(stmts) > 0 {
			statements = append(statements, "")
			statements = append(statements, stmts...)
		}
	}

	statements = append(statements, "", "app.save(collection);")
	return strings.Join(statements, "\n")
}

func renderFieldModification(fm diff.FieldModification, ids map[string]string, names *varNames) []string {
	varName := names.claim(fm.FieldName)
	var out []string
	if id := fm.NewDefinition.ID; id != "" {
		out = append(out, fmt.Sprintf("const %s = collection.fields.getById(%s);", varName, quote(id)))
	} else {
		out = append(out, fmt.Sprintf("const %s = collection.fields.getByName(%s);", varName, quote(fm.FieldName)))
	}

	changes := append([]diff.FieldChange(nil), fm.Changes...)
	sort.Slice(changes, func(i, j int) bool { return changes[i].Property < changes[j].Property })
	for _, change := range changes {
		prop, value := wireAssignment(change, ids)
		out = append(out, fmt.Sprintf("%s.%s = %s;", varName, prop, renderValue(value, "")))
	}
	return out
}

// wireAssignment maps a dotted change path back onto the wire property it
// mutates, reversing the internal renames (noDecimal -> onlyInt) and
// resolving relation targets to ids.
func wireAssignment(change diff.FieldChange, ids map[string]string) (string, any) {
	switch {
	case change.Property == "relation.collection":
		target := fmt.Sprint(change.NewValue)
		return "collectionId", resolveTargetID(target, ids)
	case strings.HasPrefix(change.Property, "relation."):
		return strings.TrimPrefix(change.Property, "relation."), change.NewValue
	case strings.HasPrefix(change.Property, "options."):
		key := strings.TrimPrefix(change.Property, "options.")
		if key == "noDecimal" {
			key = "onlyInt"
		}
		return key, change.NewValue
	default:
		return change.Property, change.NewValue
	}
}

// collectionLiteral builds the ordered constructor literal for a collection:
// id, name, type, the system marker, rules, fields, indexes.
func collectionLiteral(col *schema.CollectionSchema, ids map[string]string) []kv {
	id := col.ID
	if id == "" {
		id = schema.CollectionID(col.Name)
	}
	literal := []kv{
		{"id", id},
		{"name", col.Name},
		{"type", string(col.Type)},
		{"system", false},
	}

	rules := col.EffectiveRules()
	for _, rt := range schema.RuleTypes {
		if rt == schema.RuleManage && col.Type != schema.CollectionTypeAuth {
			continue
		}
		if value, defined := rules[rt]; defined {
			literal = append(literal, kv{string(rt), ruleAny(value)})
		}
	}

	fields := []any{primaryKeyField()}
	if col.Type == schema.CollectionTypeAuth {
		for _, f := range authSystemFields() {
			fields = append(fields, f)
		}
	}
	for _, field := range col.Fields {
		fields = append(fields, fieldLiteral(col.Name, field, ids))
	}
	literal = append(literal, kv{"fields", fields})

	indexes := []any{}
	if col.Type == schema.CollectionTypeAuth {
		for _, idx := range authSystemIndexes(col.Name) {
			indexes = append(indexes, idx)
		}
	}
	for _, idx := range col.Indexes {
		indexes = append(indexes, idx)
	}
	literal = append(literal, kv{"indexes", indexes})
	return literal
}

// fieldLiteral builds the flattened wire object for one field, keys sorted,
// internal names mapped back to wire names.
func fieldLiteral(collection string, field schema.Field, ids map[string]string) []kv {
	obj := map[string]any{}
	for k, v := range field.Options {
		if k == "noDecimal" {
			obj["onlyInt"] = v
			continue
		}
		obj[k] = v
	}

	id := field.ID
	if id == "" {
		id = schema.FieldID(collection, field)
	}
	obj["id"] = id
	obj["name"] = field.Name
	obj["type"] = string(field.Type)
	obj["required"] = field.Required
	if field.Unique != nil {
		obj["unique"] = *field.Unique
	}

	if field.Relation != nil {
		obj["collectionId"] = resolveTargetID(field.Relation.Collection, ids)
		if field.Relation.MaxSelect != nil {
			obj["maxSelect"] = *field.Relation.MaxSelect
		}
		if field.Relation.MinSelect != nil {
			obj["minSelect"] = *field.Relation.MinSelect
		}
		obj["cascadeDelete"] = field.Relation.CascadeDelete
		if len(field.Relation.DisplayFields) > 0 {
			displayFields := make([]any, len(field.Relation.DisplayFields))
			for i, df := range field.Relation.DisplayFields {
				displayFields[i] = df
			}
			obj["displayFields"] = displayFields
		}
	}

	keys := make([]string, 0, len(obj))
	for k := range obj {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	literal := make([]kv, 0, len(keys))
	for _, k := range keys {
		literal = append(literal, kv{k, obj[k]})
	}
	return literal
}

// resolveTargetID resolves a relation target for output: the users sentinel,
// then a pre-computed id, then an inline runtime lookup as the last resort
// for collections that exist externally but are unknown to this run.
func resolveTargetID(target string, ids map[string]string) any {
	target = schema.ResolveCollectionRef(target)
	if target == schema.UsersCollectionName {
		return schema.UsersCollectionSentinel
	}
	if id, ok := ids[target]; ok && id != "" {
		return id
	}
	return rawExpr(fmt.Sprintf("app.findCollectionByNameOrId(%s)", quote(target)))
}

func collectionRef(col *schema.CollectionSchema) string {
	if col.ID != "" {
		return col.ID
	}
	return schema.CollectionID(col.Name)
}

// ensureReturn rewrites exactly the textually-last save/delete statement of
// a body into a returned statement; the target runtime rejects bodies whose
// final statement is bare.
func ensureReturn(body string) string {
	lines := strings.Split(body, "\n")
	for i := len(lines) - 1; i >= 0; i-- {
		trimmed := strings.TrimSpace(lines[i])
		if strings.HasPrefix(trimmed, "app.save(") || strings.HasPrefix(trimmed, "app.delete(") {
			indentation := lines[i][:len(lines[i])-len(strings.TrimLeft(lines[i], " \t"))]
			lines[i] = indentation + "return " + trimmed
			break
		}
	}
	return strings.Join(lines, "\n")
}

func renderRuleValue(value *string) string {
	if value == nil {
		return "null"
	}
	return quote(*value)
}

func ruleAny(value *string) any {
	if value == nil {
		return nil
	}
	return *value
}

// renderValue renders a data value as script source. Objects and arrays are
// multiline with two-space steps; keys are always double-quoted.
func renderValue(v any, indentation string) string {
	switch value := v.(type) {
	case nil:
		return "null"
	case rawExpr:
		return string(value)
	case string:
		return quote(value)
	case bool:
		return strconv.FormatBool(value)
	case int:
		return strconv.Itoa(value)
	case int64:
		return strconv.FormatInt(value, 10)
	case float64:
		if value == float64(int64(value)) {
			return strconv.FormatInt(int64(value), 10)
		}
		return strconv.FormatFloat(value, 'g', -1, 64)
	case []kv:
		if len(value) == 0 {
			return "{}"
		}
		inner := indentation + "  "
		var sb strings.Builder
		sb.WriteString("{\n")
		for i, entry := range value {
			sb.WriteString(inner)
			sb.WriteString(quote(entry.key))
			sb.WriteString(": ")
			sb.WriteString(renderValue(entry.value, inner))
			if i < len(value)-1 {
				sb.WriteString(",")
			}
			sb.WriteString("\n")
		}
		sb.WriteString(indentation + "}")
		return sb.String()
	case map[string]any:
		keys := make([]string, 0, len(value))
		for k := range value {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		ordered := make([]kv, 0, len(keys))
		for _, k := range keys {
			ordered = append(ordered, kv{k, value[k]})
		}
		return renderValue(ordered, indentation)
	case []any:
		if len(value) == 0 {
			return "[]"
		}
		inner := indentation + "  "
		var sb strings.Builder
		sb.WriteString("[\n")
		for i, item := range value {
			sb.WriteString(inner)
			sb.WriteString(renderValue(item, inner))
			if i < len(value)-1 {
				sb.WriteString(",")
			}
			sb.WriteString("\n")
		}
		sb.WriteString(indentation + "]")
		return sb.String()
	case []string:
		arr := make([]any, len(value))
		for i, s := range value {
			arr[i] = s
		}
		return renderValue(arr, indentation)
	default:
		return quote(fmt.Sprint(value))
	}
}

func quote(s string) string {
	var sb strings.Builder
	sb.WriteByte('"')
	for _, r := range s {
		switch r {
		case '"':
			sb.WriteString(`\"`)
		case '\\':
			sb.WriteString(`\\`)
		case '\n':
			sb.WriteString(`\n`)
		case '\t':
			sb.WriteString(`\t`)
		case '\r':
			sb.WriteString(`\r`)
		default:
			sb.WriteRune(r)
		}
	}
	sb.WriteByte('"')
	return sb.String()
}

func indent(body, prefix string) string {
	lines := strings.Split(body, "\n")
	for i, line := range lines {
		if strings.TrimSpace(line) != "" {
			lines[i] = prefix + line
		} else {
			lines[i] = ""
		}
	}
	return strings.Join(lines, "\n")
}

// varNames hands out deterministic, collision-free script variable names
// derived from field names.
type varNames struct {
	used map[string]struct{}
}

func newVarNames() *varNames {
	return &varNames{used: map[string]struct{}{"collection": {}, "app": {}}}
}

var reservedWords = map[string]struct{}{
	"const": {}, "let": {}, "var": {}, "new": {}, "return": {}, "delete": {},
}

func (n *varNames) claim(fieldName string) string {
	name := utils.SanitizeName(fieldName)
	if name == "" || (name[0] >= '0' && name[0] <= '9') {
		name = "field_" + name
	}
	if _, reserved := reservedWords[name]; reserved {
		name = "field_" + name
	}
	candidate := name
	for i := 2; ; i++ {
		if _, taken := n.used[candidate]; !taken {
			break
		}
		candidate = fmt.Sprintf("%s%d", name, i)
	}
	n.used[candidate] = struct{}{}
	return candidate
}
