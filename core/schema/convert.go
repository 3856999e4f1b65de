package schema

import (
	"fmt"
	"regexp"
	"strings"
)

// systemFieldNames are stripped from every converted collection regardless of
// its type; they are owned by the target system, not by user schemas.
var systemFieldNames = map[string]struct{}{
	"id":             {},
	"created":        {},
	"updated":        {},
	"collectionId":   {},
	"collectionName": {},
	"expand":         {},
}

// authSystemFieldNames are stripped only from auth collections. The same
// names on a base collection are legitimate user fields and must be kept.
var authSystemFieldNames = map[string]struct{}{
	"email":           {},
	"password":        {},
	"emailVisibility": {},
	"verified":        {},
	"tokenKey":        {},
}

// structuralFieldKeys are raw field-object keys that describe the field
// itself rather than a type-specific option.
var structuralFieldKeys = map[string]struct{}{
	"id":          {},
	"name":        {},
	"type":        {},
	"system":      {},
	"required":    {},
	"unique":      {},
	"hidden":      {},
	"presentable": {},
	"primaryKey":  {},
	"options":     {},
}

// relationOptionKeys are relocated out of the generic option bag into the
// dedicated relation structure and must not remain duplicated in both places.
var relationOptionKeys = map[string]struct{}{
	"collectionId":  {},
	"maxSelect":     {},
	"minSelect":     {},
	"cascadeDelete": {},
	"displayFields": {},
}

// textOnlyOptionKeys are meaningless for relation fields and are stripped
// during derivation.
var textOnlyOptionKeys = map[string]struct{}{
	"min":     {},
	"max":     {},
	"pattern": {},
}

var lookupCallRe = regexp.MustCompile(`findCollectionByNameOrId\(\s*["']([^"']+)["']\s*\)`)

// ResolveCollectionRef normalizes a stored collection reference to a
// canonical collection name. The fixed users sentinel maps to "users"; an
// embedded lookup-by-name-or-id call yields its literal argument; anything
// else is returned unchanged, which means an opaque external id stays opaque
// and will keep diffing (a documented limitation, not an error).
func ResolveCollectionRef(ref string) string {
	if ref == UsersCollectionSentinel {
		return UsersCollectionName
	}
	if m := lookupCallRe.FindStringSubmatch(ref); m != nil {
		return m[1]
	}
	return ref
}

// ConvertExternalCollection converts a raw collection object, in either of
// the export shapes the target system produces, into a CollectionSchema.
func ConvertExternalCollection(raw map[string]any) (*CollectionSchema, error) {
	name, _ := raw["name"].(string)
	if name == "" {
		return nil, fmt.Errorf("collection object has no name")
	}

	col := &CollectionSchema{
		Name: name,
		Type: CollectionTypeBase,
	}
	if id, ok := raw["id"].(string); ok {
		col.ID = id
	}
	if typ, ok := raw["type"].(string); ok && typ != "" {
		col.Type = CollectionType(typ)
	}
	if sys, ok := raw["system"].(bool); ok {
		col.System = sys
	}

	// Newer exports carry "fields"; older ones carry "schema".
	rawFields, _ := raw["fields"].([]any)
	if rawFields == nil {
		rawFields, _ = raw["schema"].([]any)
	}
	col.Fields = make([]Field, 0, len(rawFields))
	for _, item := range rawFields {
		fieldObj, ok := item.(map[string]any)
		if !ok {
			continue
		}
		field, err := ConvertExternalField(fieldObj)
		if err != nil {
			return nil, fmt.Errorf("collection %s: %w", name, err)
		}
		if _, system := systemFieldNames[field.Name]; system {
			continue
		}
		if col.Type == CollectionTypeAuth {
			if _, authSystem := authSystemFieldNames[field.Name]; authSystem {
				continue
			}
		}
		col.Fields = append(col.Fields, field)
	}

	if rawIndexes, ok := raw["indexes"].([]any); ok {
		for _, idx := range rawIndexes {
			if s, ok := idx.(string); ok {
				col.Indexes = append(col.Indexes, s)
			}
		}
	}

	// Any rule key present on the raw object, including an explicit null,
	// lands in both rule views. All six absent means no rule object at all.
	rules := RuleSet{}
	for _, rt := range RuleTypes {
		if rt == RuleManage && col.Type != CollectionTypeAuth {
			continue
		}
		if rawRule, present := raw[string(rt)]; present {
			rules[rt] = toRuleValue(rawRule)
		}
	}
	if len(rules) > 0 {
		col.SetRules(rules)
	}

	return col, nil
}

// ConvertExternalField converts a raw field object into a Field. Properties
// on the field object itself take precedence over the same-named property
// nested inside a legacy "options" sub-object.
func ConvertExternalField(raw map[string]any) (Field, error) {
	name, _ := raw["name"].(string)
	if name == "" {
		return Field{}, fmt.Errorf("field object has no name")
	}
	typ, _ := raw["type"].(string)
	if typ == "" {
		return Field{}, fmt.Errorf("field %s has no type", name)
	}

	field := Field{
		Name: name,
		Type: FieldType(typ),
	}
	if id, ok := raw["id"].(string); ok {
		field.ID = id
	}
	if req, ok := raw["required"].(bool); ok {
		field.Required = req
	}
	if uniq, ok := raw["unique"].(bool); ok {
		field.Unique = &uniq
	}

	// Nested options first, direct properties second so that direct wins.
	options := map[string]any{}
	if nested, ok := raw["options"].(map[string]any); ok {
		for k, v := range nested {
			options[k] = v
		}
	}
	for k, v := range raw {
		if _, structural := structuralFieldKeys[k]; structural {
			continue
		}
		options[k] = v
	}

	if field.Type == FieldTypeRelation {
		relation := &RelationOptions{}
		if target, ok := options["collectionId"].(string); ok {
			relation.Collection = ResolveCollectionRef(target)
		}
		if v, ok := toInt(options["maxSelect"]); ok {
			relation.MaxSelect = &v
		}
		if v, ok := toInt(options["minSelect"]); ok {
			relation.MinSelect = &v
		}
		if v, ok := options["cascadeDelete"].(bool); ok {
			relation.CascadeDelete = v
		}
		if fields, ok := options["displayFields"].([]any); ok {
			for _, f := range fields {
				if s, ok := f.(string); ok {
					relation.DisplayFields = append(relation.DisplayFields, s)
				}
			}
		}
		field.Relation = relation
		for k := range relationOptionKeys {
			delete(options, k)
		}
		// String constraints are meaningless on relations.
		for k := range textOnlyOptionKeys {
			delete(options, k)
		}
	}

	// Wire name -> internal name.
	if v, present := options["onlyInt"]; present {
		options["noDecimal"] = v
		delete(options, "onlyInt")
	}

	if len(options) > 0 {
		field.Options = options
	}
	return field, nil
}

func toRuleValue(v any) *string {
	if v == nil {
		return nil
	}
	if s, ok := v.(string); ok {
		s = sanitizeRuleExpr(s)
		return &s
	}
	s := fmt.Sprint(v)
	return &s
}

func toInt(v any) (int, bool) {
	switch val := v.(type) {
	case int:
		return val, true
	case int64:
		return int(val), true
	case float64:
		return int(val), true
	default:
		return 0, false
	}
}

// NormalizeOptions drops an empty option map so that "no options" is always
// represented as absence. Every producer of a Field funnels through this.
func NormalizeOptions(options map[string]any) map[string]any {
	if len(options) == 0 {
		return nil
	}
	return options
}

// sanitizeRuleExpr collapses surrounding whitespace in a rule expression so
// equivalent hand-written and generated rules compare equal.
func sanitizeRuleExpr(expr string) string {
	return strings.TrimSpace(expr)
}
