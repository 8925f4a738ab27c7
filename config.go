package main

import (
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/BurntSushi/toml"
)

const (
	defaultSchema             = "public"
	defaultBulkThresholdRows  = 5000
	defaultBulkThresholdBytes = 8 << 20
	defaultInsertBatchRows    = 1000

	// targetDSNEnv supplies the destination DSN when target.dsn is unset.
	targetDSNEnv = "DATABASE_URL"
)

// MigrationConfig holds the full TOML-driven migration configuration.
type MigrationConfig struct {
	Source                  SourceConfig `toml:"source"`
	Target                  TargetConfig `toml:"target"`
	Schema                  string       `toml:"schema"`
	CreateSchema            bool         `toml:"create_schema"`
	RenameLegacyIdentifiers bool         `toml:"rename_legacy_identifiers"`
	ScratchDir              string       `toml:"scratch_dir"`
	BulkTables              []string     `toml:"bulk_tables"`
	BulkThresholdRows       int          `toml:"bulk_threshold_rows"`
	BulkThresholdBytes      int64        `toml:"bulk_threshold_bytes"`
	InsertBatchRows         int          `toml:"insert_batch_rows"`
	Verify                  bool         `toml:"verify"`
	Hooks                   HooksConfig  `toml:"hooks"`

	// configDir is the directory containing the TOML file, used to resolve relative paths.
	configDir string
}

// SourceConfig identifies the source database engine and connection string.
type SourceConfig struct {
	Type string `toml:"type"` // "sqlite" (default) or "mysql"
	DSN  string `toml:"dsn"`
}

type TargetConfig struct {
	DSN string `toml:"dsn"`
}

type HooksConfig struct {
	BeforeData []string `toml:"before_data"`
	AfterData  []string `toml:"after_data"`
}

// loadConfig reads a TOML config file and returns a MigrationConfig with defaults applied.
func loadConfig(path string) (*MigrationConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	cfg := MigrationConfig{
		Schema:             defaultSchema,
		BulkThresholdRows:  defaultBulkThresholdRows,
		BulkThresholdBytes: defaultBulkThresholdBytes,
		InsertBatchRows:    defaultInsertBatchRows,
	}
	md, err := toml.Decode(string(data), &cfg)
	if err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if unknown := md.Undecoded(); len(unknown) > 0 {
		keys := make([]string, len(unknown))
		for i, k := range unknown {
			keys[i] = k.String()
		}
		return nil, fmt.Errorf("unknown config keys: %s", strings.Join(keys, ", "))
	}

	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolve config path: %w", err)
	}
	cfg.configDir = filepath.Dir(absPath)

	if err := cfg.validate(defaultCatalog()); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// validate checks cfg against the table catalog and fills environment
// and path derived values.
func (c *MigrationConfig) validate(tables []Table) error {
	c.Schema = strings.TrimSpace(c.Schema)
	if c.Schema == "" {
		return fmt.Errorf("schema must not be blank")
	}

	if c.Source.Type == "" {
		c.Source.Type = "sqlite"
	}
	if _, err := newSourceDB(c.Source.Type); err != nil {
		return err
	}
	if c.Source.DSN == "" {
		return fmt.Errorf("source.dsn is required")
	}
	if c.Source.Type == "sqlite" && !strings.HasPrefix(c.Source.DSN, "file:") {
		c.Source.DSN = c.resolvePath(c.Source.DSN)
	}

	if c.Target.DSN == "" {
		c.Target.DSN = os.Getenv(targetDSNEnv)
	}
	if c.Target.DSN == "" {
		return fmt.Errorf("target.dsn is required (or set %s)", targetDSNEnv)
	}

	if c.ScratchDir == "" {
		c.ScratchDir = os.TempDir()
	} else {
		c.ScratchDir = c.resolvePath(c.ScratchDir)
	}

	if c.BulkThresholdRows < 0 {
		return fmt.Errorf("bulk_threshold_rows must be >= 0")
	}
	if c.BulkThresholdBytes < 0 {
		return fmt.Errorf("bulk_threshold_bytes must be >= 0")
	}
	if c.InsertBatchRows <= 0 {
		return fmt.Errorf("insert_batch_rows must be > 0")
	}

	names := tableNames(tables)
	for i, t := range c.BulkTables {
		t = strings.ToLower(strings.TrimSpace(t))
		if !slices.Contains(names, t) {
			return fmt.Errorf("bulk_tables: unknown table %q (must be one of: %s)", c.BulkTables[i], strings.Join(names, ", "))
		}
		c.BulkTables[i] = t
	}
	return nil
}

// resolvePath resolves a path relative to the config file directory.
func (c *MigrationConfig) resolvePath(p string) string {
	if filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(c.configDir, p)
}

func (c *MigrationConfig) transferOptions() transferOptions {
	return transferOptions{
		Schema:             c.Schema,
		ScratchDir:         c.ScratchDir,
		BulkTables:         c.BulkTables,
		BulkThresholdRows:  c.BulkThresholdRows,
		BulkThresholdBytes: c.BulkThresholdBytes,
		InsertBatchRows:    c.InsertBatchRows,
	}
}
