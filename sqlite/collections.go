// Package sqlite reads collection metadata straight out of a PocketBase
// data.db file. It is used to bootstrap a baseline snapshot for projects that
// adopt the tool against an already-running instance, where neither a
// persisted snapshot nor a migration history exists yet.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"github.com/asaidimu/go-pbmigrate/core/schema"
)

// jsonColumns are the _collections columns stored as JSON text; every other
// column is carried through as a scalar.
var jsonColumns = map[string]struct{}{
	"fields":  {},
	"schema":  {},
	"indexes": {},
	"options": {},
}

// Reader reads collection definitions from a PocketBase database file.
type Reader struct {
	db     *sql.DB
	logger *zap.Logger
}

// Open opens the database read-only. The file must already exist; silently
// creating an empty database would masquerade as a valid empty baseline.
func Open(path string, logger *zap.Logger) (*Reader, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("database file %s: %w", path, err)
	}
	db, err := sql.Open("sqlite3", "file:"+path+"?mode=ro")
	if err != nil {
		return nil, fmt.Errorf("failed to open database %s: %w", path, err)
	}
	return &Reader{db: db, logger: logger}, nil
}

// Close releases the underlying connection.
func (r *Reader) Close() error {
	return r.db.Close()
}

// Snapshot reads every row of _collections and converts it into a schema
// snapshot. Columns are read dynamically so both the modern layout (a
// "fields" column) and the legacy one (a "schema" column plus an "options"
// bag) work against the same code.
func (r *Reader) Snapshot(ctx context.Context) (*schema.SchemaSnapshot, error) {
	rows, err := r.db.QueryContext(ctx, "SELECT * FROM _collections")
	if err != nil {
		return nil, fmt.Errorf("failed to query _collections: %w", err)
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("failed to read _collections columns: %w", err)
	}

	snap := &schema.SchemaSnapshot{
		Version:     schema.SnapshotVersion,
		Timestamp:   time.Now().UTC().Format(time.RFC3339),
		Collections: map[string]*schema.CollectionSchema{},
	}

	for rows.Next() {
		values := make([]any, len(columns))
		targets := make([]any, len(columns))
		for i := range values {
			targets[i] = &values[i]
		}
		if err := rows.Scan(targets...); err != nil {
			return nil, fmt.Errorf("failed to scan _collections row: %w", err)
		}

		raw, err := rowToRaw(columns, values)
		if err != nil {
			return nil, err
		}
		col, err := schema.ConvertExternalCollection(raw)
		if err != nil {
			return nil, fmt.Errorf("failed to convert collection row: %w", err)
		}
		snap.Collections[col.Name] = col
		r.logger.Debug("read collection from database",
			zap.String("collection", col.Name),
			zap.String("type", string(col.Type)))
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate _collections: %w", err)
	}

	r.logger.Info("bootstrapped snapshot from database",
		zap.Int("collections", len(snap.Collections)))
	return snap, nil
}

// rowToRaw turns one scanned row into the raw object shape the converter
// expects, decoding JSON columns and lifting manageRule out of the legacy
// options bag.
func rowToRaw(columns []string, values []any) (map[string]any, error) {
	raw := make(map[string]any, len(columns))
	for i, column := range columns {
		value := normalizeScalar(values[i])
		if value == nil {
			if isRuleColumn(column) {
				// NULL rule columns mean locked; the key must stay present.
				raw[column] = nil
			}
			continue
		}
		if _, isJSON := jsonColumns[column]; isJSON {
			text, ok := value.(string)
			if !ok {
				return nil, fmt.Errorf("column %s is not JSON text", column)
			}
			var decoded any
			if err := json.Unmarshal([]byte(text), &decoded); err != nil {
				return nil, fmt.Errorf("column %s holds invalid JSON: %w", column, err)
			}
			raw[column] = decoded
			continue
		}
		if column == "system" {
			raw[column] = toBool(value)
			continue
		}
		raw[column] = value
	}

	// Legacy databases keep manageRule inside the options bag.
	if options, ok := raw["options"].(map[string]any); ok {
		if manage, present := options["manageRule"]; present {
			if _, alreadySet := raw["manageRule"]; !alreadySet {
				raw["manageRule"] = manage
			}
		}
	}
	delete(raw, "options")
	return raw, nil
}

func isRuleColumn(column string) bool {
	switch column {
	case "listRule", "viewRule", "createRule", "updateRule", "deleteRule", "manageRule":
		return true
	}
	return false
}

func normalizeScalar(value any) any {
	switch v := value.(type) {
	case []byte:
		return string(v)
	default:
		return v
	}
}

func toBool(value any) bool {
	switch v := value.(type) {
	case bool:
		return v
	case int64:
		return v != 0
	case string:
		return v == "1" || v == "true"
	default:
		return false
	}
}
