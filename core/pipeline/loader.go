package pipeline

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/hashicorp/go-multierror"
	"go.uber.org/zap"

	"github.com/asaidimu/go-pbmigrate/core"
	"github.com/asaidimu/go-pbmigrate/core/schema"
)

// collectionDoc is the on-disk shape of one authored collection: a name, a
// (fieldName -> descriptor) map, and optional metadata. One JSON file holds
// either a single document or an array of them.
type collectionDoc struct {
	Name       string              `json:"name"`
	Type       string              `json:"type"`
	Fields     map[string]fieldDoc `json:"fields"`
	FieldOrder []string            `json:"fieldOrder"`
	Rules      map[string]*string  `json:"rules"`
	Indexes    []string            `json:"indexes"`
}

type fieldDoc struct {
	Type     string                  `json:"type"`
	Required *bool                   `json:"required"`
	Unique   *bool                   `json:"unique"`
	Options  map[string]any          `json:"options"`
	Relation *schema.RelationOptions `json:"relation"`
}

// LoadDefinition reads every .json schema source in dir and builds the
// desired-state definition. A malformed file fails that file only; the
// remaining sources keep processing and the per-file failures come back
// aggregated alongside whatever was successfully loaded.
func LoadDefinition(dir string, logger *zap.Logger) (schema.SchemaDefinition, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, core.NewFilesystemError("list schema sources", dir, err)
	}

	def := schema.SchemaDefinition{}
	var errs *multierror.Error
	failed := 0
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		path := filepath.Join(dir, entry.Name())
		if err := loadSourceFile(path, def); err != nil {
			logger.Error("schema source failed", zap.String("path", path), zap.Error(err))
			errs = multierror.Append(errs, core.NewSchemaParseError(path, err))
			failed++
			continue
		}
	}

	logger.Info("loaded schema definition",
		zap.Int("collections", len(def)),
		zap.Int("failedSources", failed))
	return def, errs.ErrorOrNil()
}

func loadSourceFile(path string, def schema.SchemaDefinition) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	var docs []collectionDoc
	trimmed := strings.TrimSpace(string(data))
	if strings.HasPrefix(trimmed, "[") {
		if err := json.Unmarshal(data, &docs); err != nil {
			return fmt.Errorf("invalid collection array: %w", err)
		}
	} else {
		var doc collectionDoc
		if err := json.Unmarshal(data, &doc); err != nil {
			return fmt.Errorf("invalid collection document: %w", err)
		}
		docs = []collectionDoc{doc}
	}

	for _, doc := range docs {
		col, err := extractDoc(doc)
		if err != nil {
			return err
		}
		if _, exists := def[col.Name]; exists {
			return fmt.Errorf("collection %q declared more than once", col.Name)
		}
		def[col.Name] = col
	}
	return nil
}

func extractDoc(doc collectionDoc) (*schema.CollectionSchema, error) {
	fields := make(map[string]schema.FieldDescriptor, len(doc.Fields))
	for name, fd := range doc.Fields {
		fields[name] = schema.FieldDescriptor{
			Type:     fd.Type,
			Required: fd.Required,
			Unique:   fd.Unique,
			Options:  fd.Options,
			Relation: fd.Relation,
		}
	}

	var rules schema.RuleSet
	if len(doc.Rules) > 0 {
		rules = schema.RuleSet{}
		for key, value := range doc.Rules {
			rules[schema.RuleType(key)] = value
		}
	}

	order := doc.FieldOrder
	if order == nil && len(doc.Fields) > 0 {
		order = make([]string, 0, len(doc.Fields))
		for name := range doc.Fields {
			order = append(order, name)
		}
		sort.Strings(order)
	}

	return schema.ExtractCollection(doc.Name, schema.CollectionType(doc.Type), fields, order, rules, doc.Indexes)
}
