// Package pipeline wires the stages together: load authored schemas, recover
// the current state, diff, gate destructive changes, generate migrations and
// persist the new snapshot. It is the programmatic entry point a CLI or build
// script composes; there is no other surface.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"

	"github.com/asaidimu/go-events"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/asaidimu/go-pbmigrate/core"
	"github.com/asaidimu/go-pbmigrate/core/diff"
	"github.com/asaidimu/go-pbmigrate/core/migrate"
	"github.com/asaidimu/go-pbmigrate/core/parse"
	"github.com/asaidimu/go-pbmigrate/core/schema"
	"github.com/asaidimu/go-pbmigrate/core/snapshot"
	"github.com/asaidimu/go-pbmigrate/sqlite"
)

// ErrDestructiveChanges is returned when a diff contains changes that can
// lose data and the force flag is not set. Nothing has been written when
// this comes back.
var ErrDestructiveChanges = errors.New("destructive changes detected; set force to generate anyway")

// Result carries everything one run produced, including partial results when
// the run stopped at the destructive gate.
type Result struct {
	Definition  schema.SchemaDefinition
	Current     *schema.SchemaSnapshot
	Diff        *diff.SchemaDiff
	Destructive []diff.DestructiveChange
	Written     []string
}

// Pipeline orchestrates one schema-to-migrations run and publishes progress
// on a typed event bus.
type Pipeline struct {
	cfg    core.Config
	logger *zap.Logger

	bus           *events.TypedEventBus[core.PipelineEvent]
	subscriptions map[string]*core.SubscriptionInfo
	subMu         sync.RWMutex
}

// New creates a pipeline for the given configuration.
func New(cfg core.Config, logger *zap.Logger) (*Pipeline, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	bus, err := events.NewTypedEventBus[core.PipelineEvent](events.DefaultConfig())
	if err != nil {
		return nil, fmt.Errorf("could not initialize event bus: %w", err)
	}
	return &Pipeline{
		cfg:           cfg,
		logger:        logger,
		bus:           bus,
		subscriptions: make(map[string]*core.SubscriptionInfo),
	}, nil
}

// Run executes the full flow. Destructive diffs abort with
// ErrDestructiveChanges before any file is written unless the configuration
// forces generation; the returned Result still carries the diff and the
// detected changes so callers can present them.
func (p *Pipeline) Run(ctx context.Context) (*Result, error) {
	result := &Result{}

	def, err := LoadDefinition(p.cfg.SchemaDir, p.logger)
	result.Definition = def
	if err != nil {
		// Every source was attempted and every failure is in err; diffing a
		// partial definition would read the missing collections as deletions.
		p.emit(core.PipelineEvent{Type: core.PipelineFailed, Detail: "schema loading failed", Error: err})
		return result, err
	}
	schema.EnsureIDs(def)
	if err := schema.ResolveRelations(def); err != nil {
		p.emit(core.PipelineEvent{Type: core.PipelineFailed, Detail: "relation resolution failed", Error: err})
		return result, err
	}
	p.emit(core.PipelineEvent{Type: core.SchemaLoaded, Detail: fmt.Sprintf("%d collections", len(def))})

	current, err := p.currentState(ctx)
	if err != nil {
		p.emit(core.PipelineEvent{Type: core.PipelineFailed, Detail: "state recovery failed", Error: err})
		return result, err
	}
	result.Current = current

	d := diff.Compare(def, current)
	result.Diff = d
	p.emit(core.PipelineEvent{Type: core.DiffComputed, Detail: diff.Describe(d)})
	if d.Empty() {
		p.logger.Info("schema is up to date")
		return result, nil
	}

	changes := diff.Detect(d)
	result.Destructive = changes
	for _, change := range changes {
		p.emit(core.PipelineEvent{
			Type:       core.DestructiveDetected,
			Collection: change.Collection,
			Detail:     change.Detail,
		})
	}
	if diff.RequiresForce(changes) && !p.cfg.Force {
		p.logger.Warn("aborting on destructive changes", zap.Int("changes", len(changes)))
		return result, ErrDestructiveChanges
	}

	written, err := migrate.Generate(d, migrate.Options{
		Dir:    p.cfg.MigrationsDir,
		Force:  p.cfg.Force,
		Logger: p.logger,
	})
	result.Written = written
	if err != nil {
		p.emit(core.PipelineEvent{Type: core.PipelineFailed, Detail: "generation failed", Error: err})
		return result, err
	}
	for _, path := range written {
		p.emit(core.PipelineEvent{Type: core.MigrationWritten, Path: path})
	}
	if skipped := d.Operations() - len(written); skipped > 0 {
		p.emit(core.PipelineEvent{Type: core.MigrationSkipped, Detail: fmt.Sprintf("%d duplicate migrations skipped", skipped)})
	}

	newSnap := snapshot.FromDefinition(def)
	if err := snapshot.Save(p.cfg.SnapshotFile, newSnap); err != nil {
		p.emit(core.PipelineEvent{Type: core.PipelineFailed, Detail: "snapshot save failed", Error: err})
		return result, err
	}
	p.emit(core.PipelineEvent{Type: core.SnapshotSaved, Path: p.cfg.SnapshotFile})
	return result, nil
}

// currentState recovers the last known applied schema, trying in order: the
// persisted snapshot file, reconstruction from the migration history, a
// PocketBase database file. Nil means a true first run where everything is a
// creation.
func (p *Pipeline) currentState(ctx context.Context) (*schema.SchemaSnapshot, error) {
	snap, err := snapshot.Load(p.cfg.SnapshotFile)
	if err != nil {
		return nil, err
	}
	if snap != nil {
		p.emit(core.PipelineEvent{Type: core.SnapshotLoaded, Path: p.cfg.SnapshotFile})
		return snap, nil
	}

	snap, err = p.reconstruct()
	if err != nil {
		return nil, err
	}
	if snap != nil {
		p.emit(core.PipelineEvent{Type: core.SnapshotLoaded, Detail: "reconstructed from migration history"})
		return snap, nil
	}

	if p.cfg.DatabaseFile != "" {
		reader, err := sqlite.Open(p.cfg.DatabaseFile, p.logger)
		if err != nil {
			return nil, core.NewSnapshotError("open database", p.cfg.DatabaseFile, err)
		}
		defer reader.Close()
		snap, err = reader.Snapshot(ctx)
		if err != nil {
			return nil, core.NewSnapshotError("bootstrap from database", p.cfg.DatabaseFile, err)
		}
		p.emit(core.PipelineEvent{Type: core.SnapshotLoaded, Path: p.cfg.DatabaseFile, Detail: "bootstrapped from database"})
		return snap, nil
	}
	return nil, nil
}

// reconstruct rebuilds the current state from the migration directory: the
// most recent full-snapshot script is the baseline, and every strictly newer
// migration is replayed on top in timestamp order. With no baseline the
// replay starts from an empty snapshot, which is correct as long as the
// history itself starts with creations.
func (p *Pipeline) reconstruct() (*schema.SchemaSnapshot, error) {
	dir := p.cfg.MigrationsDir
	baseline, cutoff, err := parse.LatestSnapshotFile(dir)
	if err != nil {
		return nil, core.NewSnapshotError("scan migration history", dir, err)
	}

	var snap *schema.SchemaSnapshot
	if baseline != "" {
		data, err := os.ReadFile(baseline)
		if err != nil {
			return nil, core.NewFilesystemError("read baseline snapshot", baseline, err)
		}
		snap, err = parse.ConvertMigration(string(data))
		if err != nil {
			return nil, core.NewScriptParseError(baseline, err)
		}
	}

	migrations, err := parse.ListMigrationsAfter(dir, cutoff)
	if err != nil {
		if os.IsNotExist(errors.Unwrap(err)) {
			return snap, nil
		}
		return nil, core.NewSnapshotError("scan migration history", dir, err)
	}
	if snap == nil {
		if len(migrations) == 0 {
			return nil, nil
		}
		snap = &schema.SchemaSnapshot{
			Version:     schema.SnapshotVersion,
			Collections: map[string]*schema.CollectionSchema{},
		}
	}

	for _, path := range migrations {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, core.NewFilesystemError("read migration", path, err)
		}
		ops, err := parse.ParseOperations(string(data))
		if err != nil {
			return nil, core.NewScriptParseError(path, err)
		}
		if err := snapshot.Apply(snap, ops); err != nil {
			return nil, core.NewSnapshotError("replay migration", path, err)
		}
		p.logger.Debug("replayed migration", zap.String("path", path))
	}
	return snap, nil
}

func (p *Pipeline) emit(event core.PipelineEvent) {
	if p.bus != nil {
		p.bus.Emit(string(event.Type), event)
	}
}

// RegisterSubscription registers a callback for a pipeline event type and
// returns an id for later removal.
func (p *Pipeline) RegisterSubscription(options core.RegisterSubscriptionOptions) string {
	p.subMu.Lock()
	defer p.subMu.Unlock()

	unsubscribe := p.bus.Subscribe(string(options.Event), options.Callback)
	id := uuid.New().String()

	p.subscriptions[id] = &core.SubscriptionInfo{
		Id:          &id,
		Event:       options.Event,
		Unsubscribe: unsubscribe,
		Label:       options.Label,
		Description: options.Description,
	}
	return id
}

// UnregisterSubscription removes a subscription by its id.
func (p *Pipeline) UnregisterSubscription(id string) {
	p.subMu.Lock()
	defer p.subMu.Unlock()

	if info, ok := p.subscriptions[id]; ok {
		info.Unsubscribe()
		delete(p.subscriptions, id)
	}
}

// Subscriptions lists the currently active subscriptions.
func (p *Pipeline) Subscriptions() []core.SubscriptionInfo {
	p.subMu.RLock()
	defer p.subMu.RUnlock()

	subs := make([]core.SubscriptionInfo, 0, len(p.subscriptions))
	for _, sub := range p.subscriptions {
		subs = append(subs, *sub)
	}
	return subs
}
