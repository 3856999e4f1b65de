package core

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config carries the tool configuration: where schemas live, where migration
// scripts go, and how destructive changes are gated.
type Config struct {
	// SchemaDir is the directory holding authored schema sources.
	SchemaDir string `yaml:"schemaDir"`
	// MigrationsDir is where generated migration scripts are written.
	MigrationsDir string `yaml:"migrationsDir"`
	// SnapshotFile is the path of the persisted schema snapshot.
	SnapshotFile string `yaml:"snapshotFile"`
	// DatabaseFile optionally points at a PocketBase data.db to bootstrap a
	// baseline snapshot from when neither snapshot nor history exists.
	DatabaseFile string `yaml:"databaseFile"`
	// Force allows generation to proceed past destructive changes.
	Force bool `yaml:"force"`
}

// DefaultConfig returns the configuration used when nothing is specified.
func DefaultConfig() Config {
	return Config{
		SchemaDir:     "schema",
		MigrationsDir: "pb_migrations",
		SnapshotFile:  ".pbmigrate/snapshot.json",
	}
}

// LoadConfig reads a YAML config file and applies PBMIGRATE_* environment
// overrides on top. A missing file is not an error; defaults apply.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return cfg, NewFilesystemError("read config", path, err)
			}
		} else if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("invalid config %s: %w", path, err)
		}
	}

	cfg.SchemaDir = getenv("PBMIGRATE_SCHEMA_DIR", cfg.SchemaDir)
	cfg.MigrationsDir = getenv("PBMIGRATE_MIGRATIONS_DIR", cfg.MigrationsDir)
	cfg.SnapshotFile = getenv("PBMIGRATE_SNAPSHOT_FILE", cfg.SnapshotFile)
	cfg.DatabaseFile = getenv("PBMIGRATE_DATABASE_FILE", cfg.DatabaseFile)
	cfg.Force = getenvBool("PBMIGRATE_FORCE", cfg.Force)
	return cfg, nil
}

func getenv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && strings.TrimSpace(v) != "" {
		return strings.TrimSpace(v)
	}
	return fallback
}

func getenvBool(key string, fallback bool) bool {
	if v, ok := os.LookupEnv(key); ok {
		switch strings.TrimSpace(strings.ToLower(v)) {
		case "1", "true", "yes":
			return true
		case "0", "false", "no":
			return false
		}
	}
	return fallback
}
