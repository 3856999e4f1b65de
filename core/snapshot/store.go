// Package snapshot persists the recorded schema state between runs and
// rebuilds it by replaying parsed migration operations.
package snapshot

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/buger/jsonparser"

	"github.com/asaidimu/go-pbmigrate/core"
	"github.com/asaidimu/go-pbmigrate/core/schema"
)

// Load reads a persisted snapshot. A missing file returns (nil, nil): no
// baseline is a normal first-run state, but a present file that fails
// validation is always a hard error because diffing against a corrupt
// baseline can generate destructive migrations.
func Load(path string) (*schema.SchemaSnapshot, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, core.NewSnapshotError("read snapshot", path, err)
	}
	if err := validate(data); err != nil {
		return nil, core.NewSnapshotError("validate snapshot", path, err)
	}

	var snap schema.SchemaSnapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, core.NewSnapshotError("decode snapshot", path, err)
	}
	if snap.Collections == nil {
		snap.Collections = map[string]*schema.CollectionSchema{}
	}
	return &snap, nil
}

// validate checks the top-level shape before full decoding so truncated or
// hand-edited files fail with a pointed message instead of a zero-valued
// struct.
func validate(data []byte) error {
	for _, key := range []string{"version", "timestamp", "collections"} {
		if _, _, _, err := jsonparser.Get(data, key); err != nil {
			return fmt.Errorf("missing required key %q: %w", key, err)
		}
	}
	version, err := jsonparser.GetString(data, "version")
	if err != nil {
		return fmt.Errorf("version is not a string: %w", err)
	}
	if version != schema.SnapshotVersion {
		return fmt.Errorf("unsupported snapshot version %q (want %s)", version, schema.SnapshotVersion)
	}
	return nil
}

// Save writes the snapshot atomically enough for a CLI tool: temp file in the
// same directory, then rename.
func Save(path string, snap *schema.SchemaSnapshot) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return core.NewFilesystemError("create snapshot directory", dir, err)
	}

	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return core.NewSnapshotError("encode snapshot", path, err)
	}
	data = append(data, '\n')

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return core.NewFilesystemError("write snapshot", tmp, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return core.NewFilesystemError("replace snapshot", path, err)
	}
	return nil
}

// FromDefinition captures the desired definition as a fresh snapshot.
func FromDefinition(def schema.SchemaDefinition) *schema.SchemaSnapshot {
	return schema.NewSnapshot(def, time.Now())
}

// Merge overlays custom on top of base: collections present in both are
// taken from custom wholesale. Neither input is modified.
func Merge(base, custom *schema.SchemaSnapshot) *schema.SchemaSnapshot {
	merged := &schema.SchemaSnapshot{
		Version:     schema.SnapshotVersion,
		Timestamp:   time.Now().UTC().Format(time.RFC3339),
		Collections: map[string]*schema.CollectionSchema{},
	}
	if base != nil {
		for name, col := range base.Collections {
			merged.Collections[name] = col.Clone()
		}
	}
	if custom != nil {
		for name, col := range custom.Collections {
			merged.Collections[name] = col.Clone()
		}
	}
	return merged
}
