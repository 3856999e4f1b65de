package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/asaidimu/go-pbmigrate/core"
	"github.com/asaidimu/go-pbmigrate/core/diff"
	"github.com/asaidimu/go-pbmigrate/core/pipeline"
)

const (
	workDir         = "pbmigrate-demo"
	postsSchemaJSON = `{
		"name": "posts",
		"type": "base",
		"fields": {
			"title": {
				"type": "text",
				"options": { "min": 3, "max": 120 }
			},
			"body": {
				"type": "editor"
			},
			"published": {
				"type": "bool",
				"required": false
			},
			"author_id": {
				"type": "relation",
				"relation": { "collection": "users", "cascadeDelete": false }
			}
		},
		"fieldOrder": ["title", "body", "published", "author_id"],
		"rules": {
			"listRule": "",
			"viewRule": "",
			"createRule": "author_id = @request.auth.id"
		}
	}`
	tagsSchemaJSON = `{
		"name": "tags",
		"type": "base",
		"fields": {
			"label": { "type": "text", "unique": true }
		},
		"indexes": [
			"CREATE UNIQUE INDEX ` + "`idx_tags_label`" + ` ON ` + "`tags`" + ` (` + "`label`" + `)"
		]
	}`
)

func main() {
	logger, err := zap.NewDevelopment()
	if err != nil {
		log.Fatalf("failed to initialize logger: %v", err)
	}
	defer logger.Sync()

	// 1. Lay out a small project: a schema directory with two authored
	// collections and empty migration/snapshot locations.
	if err := os.MkdirAll(filepath.Join(workDir, "schema"), 0o755); err != nil {
		logger.Fatal("Failed to create demo directory", zap.Error(err))
	}
	defer os.RemoveAll(workDir)

	writeSchema := func(name, content string) {
		path := filepath.Join(workDir, "schema", name)
		if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
			logger.Fatal("Failed to write schema source", zap.String("path", path), zap.Error(err))
		}
	}
	writeSchema("posts.json", postsSchemaJSON)
	writeSchema("tags.json", tagsSchemaJSON)

	cfg := core.Config{
		SchemaDir:     filepath.Join(workDir, "schema"),
		MigrationsDir: filepath.Join(workDir, "pb_migrations"),
		SnapshotFile:  filepath.Join(workDir, ".pbmigrate", "snapshot.json"),
	}

	// 2. Build the pipeline and watch its progress through the event bus.
	p, err := pipeline.New(cfg, logger)
	if err != nil {
		logger.Fatal("Failed to initialize pipeline", zap.Error(err))
	}
	subID := p.RegisterSubscription(core.RegisterSubscriptionOptions{
		Event: core.MigrationWritten,
		Callback: func(_ context.Context, event core.PipelineEvent) error {
			logger.Info("migration file written", zap.String("path", event.Path))
			return nil
		},
		Label: core.StringPtr("demo-writer-log"),
	})
	defer p.UnregisterSubscription(subID)

	// 3. First run: everything is a creation and two migrations come out,
	// ordered so that the relation target exists before its referrer.
	result, err := p.Run(context.Background())
	if err != nil {
		logger.Fatal("Pipeline run failed", zap.Error(err))
	}
	logger.Info("First run complete",
		zap.Int("operations", result.Diff.Operations()),
		zap.Strings("written", result.Written))

	for _, path := range result.Written {
		content, err := os.ReadFile(path)
		if err != nil {
			logger.Fatal("Failed to read generated migration", zap.Error(err))
		}
		fmt.Printf("\n--- %s ---\n%s\n", filepath.Base(path), content)
	}

	// 4. Second run with no schema edits: the diff is empty and nothing is
	// written, at the filesystem level as well as the diff level.
	result, err = p.Run(context.Background())
	if err != nil {
		logger.Fatal("Second pipeline run failed", zap.Error(err))
	}
	if result.Diff.Empty() {
		logger.Info("Second run produced no changes, as expected")
	}

	// 5. Remove a collection from the sources: the deletion is detected as
	// destructive and the run aborts before writing anything.
	if err := os.Remove(filepath.Join(workDir, "schema", "tags.json")); err != nil {
		logger.Fatal("Failed to remove schema source", zap.Error(err))
	}
	result, err = p.Run(context.Background())
	if errors.Is(err, pipeline.ErrDestructiveChanges) {
		for _, change := range result.Destructive {
			logger.Warn("destructive change blocked",
				zap.String("kind", string(change.Kind)),
				zap.String("severity", string(change.Severity)),
				zap.String("detail", change.Detail))
		}
		if diff.RequiresForce(result.Destructive) {
			logger.Info("Re-run with force enabled to generate the deletion migration")
		}
	} else if err != nil {
		logger.Fatal("Unexpected pipeline failure", zap.Error(err))
	}
}
