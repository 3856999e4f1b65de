package migrate

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"github.com/asaidimu/go-pbmigrate/core"
	"github.com/asaidimu/go-pbmigrate/core/diff"
	"github.com/asaidimu/go-pbmigrate/utils"
)

// Operation is one rendered migration: a verb, the collection it touches and
// the complete script content.
type Operation struct {
	Verb       string
	Collection string
	Content    string
}

// Options configures migration file generation.
type Options struct {
	// Dir is the migrations directory; created if missing.
	Dir string
	// Force writes files even when an identical migration already exists.
	Force bool
	// BaseTimestamp overrides the filename timestamp base. Zero means now.
	// Each subsequent operation in the same run gets the next second.
	BaseTimestamp int64
	Logger        *zap.Logger
}

// RenderOperations renders every operation of a diff without touching the
// filesystem, in execution order: creations (dependency ordered), then
// modifications, then deletions.
func RenderOperations(d *diff.SchemaDiff) []Operation {
	ids := d.ExistingCollectionIDs
	var ops []Operation

	for _, col := range d.CollectionsToCreate {
		up, down := RenderCreate(col, ids)
		ops = append(ops, Operation{Verb: "created", Collection: col.Name, Content: RenderScript(up, down)})
	}
	for _, mod := range d.CollectionsToModify {
		up, down := RenderModify(mod, ids)
		ops = append(ops, Operation{Verb: "updated", Collection: mod.Collection, Content: RenderScript(up, down)})
	}
	for _, col := range d.CollectionsToDelete {
		up, down := RenderDelete(col, ids)
		ops = append(ops, Operation{Verb: "deleted", Collection: col.Name, Content: RenderScript(up, down)})
	}
	return ops
}

// Generate writes one migration file per operation in the diff and returns
// the paths written. Operations whose exact content already exists in the
// directory are skipped unless forced, which keeps reruns from piling up
// duplicate migrations.
func Generate(d *diff.SchemaDiff, opts Options) ([]string, error) {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	ops := RenderOperations(d)
	if len(ops) == 0 {
		logger.Info("schema is up to date, nothing to generate")
		return nil, nil
	}

	if err := os.MkdirAll(opts.Dir, 0o755); err != nil {
		return nil, core.NewFilesystemError("create migrations directory", opts.Dir, err)
	}
	existing, err := existingContents(opts.Dir)
	if err != nil {
		return nil, err
	}

	base := opts.BaseTimestamp
	if base == 0 {
		base = time.Now().Unix()
	}

	var written []string
	for i, op := range ops {
		name := fmt.Sprintf("%d_%s_%s.js", base+int64(i), op.Verb, utils.SanitizeName(op.Collection))
		path := filepath.Join(opts.Dir, name)

		if !opts.Force {
			if prior, dup := existing[op.Content]; dup {
				logger.Warn("skipping duplicate migration",
					zap.String("collection", op.Collection),
					zap.String("existing", prior))
				continue
			}
		}

		if err := os.WriteFile(path, []byte(op.Content), 0o644); err != nil {
			return written, core.NewFilesystemError("write migration", path, err)
		}
		existing[op.Content] = path
		written = append(written, path)
		logger.Info("wrote migration",
			zap.String("collection", op.Collection),
			zap.String("operation", op.Verb),
			zap.String("path", path))
	}
	return written, nil
}

// existingContents indexes the directory's scripts by content so duplicate
// detection is byte exact rather than name based.
func existingContents(dir string) (map[string]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, core.NewFilesystemError("list migrations", dir, err)
	}
	out := make(map[string]string)
	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".js" {
			continue
		}
		path := filepath.Join(dir, entry.Name())
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, core.NewFilesystemError("read migration", path, err)
		}
		out[string(bytes.TrimSpace(data))+"\n"] = path
	}
	return out, nil
}
