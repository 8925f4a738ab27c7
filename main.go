package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:          "pgpopulate [config.toml]",
	Short:        "Populate PostgreSQL with the normalized sales dataset",
	Args:         cobra.MaximumNArgs(1),
	RunE:         runCommand,
	SilenceUsage: true,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the pgpopulate version",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintln(cmd.OutOrStdout(), versionString())
	},
}

func init() {
	rootCmd.Flags().StringVar(&configPath, "config", "", "path to migration TOML config file")
	rootCmd.AddCommand(versionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// pgExecutor is satisfied by *pgxpool.Pool and pgx.Tx. Begin on a pgx.Tx
// opens a savepoint.
type pgExecutor interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Begin(ctx context.Context) (pgx.Tx, error)
}

func runCommand(cmd *cobra.Command, args []string) error {
	// Resolve config path: positional arg takes precedence over --config flag
	cfgPath := configPath
	if len(args) > 0 {
		cfgPath = args[0]
	}
	if cfgPath == "" {
		return fmt.Errorf("config file required: pgpopulate <config.toml> or pgpopulate --config <config.toml>")
	}

	cfg, err := loadConfig(cfgPath)
	if err != nil {
		return err
	}

	report, err := runMigration(cmd.Context(), cfg, defaultCatalog())
	if err != nil {
		return err
	}
	report.logSummary()
	log.Printf("migration complete! total time: %.2f seconds", report.Elapsed.Seconds())
	return nil
}

// openTargetPool connects to PostgreSQL with a single connection so every
// phase runs on the same session.
func openTargetPool(ctx context.Context, dsn string) (*pgxpool.Pool, error) {
	poolCfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	poolCfg.MaxConns = 1

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return pool, nil
}

// runMigration copies every catalog table from the configured source into
// the target schema. On failure the returned report holds the tables that
// were committed before the error.
func runMigration(ctx context.Context, cfg *MigrationConfig, tables []Table) (*migrationReport, error) {
	start := time.Now()
	report := &migrationReport{}

	if err := validateOrder(tables); err != nil {
		return report, err
	}

	src, err := newSourceDB(cfg.Source.Type)
	if err != nil {
		return report, err
	}

	log.Printf("pgpopulate %s: %s → PostgreSQL", versionString(), src.Name())
	log.Printf(
		"config: schema=%s create_schema=%t rename_legacy_identifiers=%t bulk_tables=%v bulk_threshold_rows=%d bulk_threshold_bytes=%s insert_batch_rows=%d verify=%t",
		cfg.Schema,
		cfg.CreateSchema,
		cfg.RenameLegacyIdentifiers,
		cfg.BulkTables,
		cfg.BulkThresholdRows,
		humanize.IBytes(uint64(cfg.BulkThresholdBytes)),
		cfg.InsertBatchRows,
		cfg.Verify,
	)

	// 1. Connect to the source (read-only, single connection)
	dbName, err := src.ExtractDBName(cfg.Source.DSN)
	if err != nil {
		return report, err
	}
	log.Printf("connecting to %s '%s'...", src.Name(), dbName)
	srcDB, err := src.OpenDB(cfg.Source.DSN)
	if err != nil {
		return report, err
	}
	defer srcDB.Close()

	if err := srcDB.PingContext(ctx); err != nil {
		return report, fmt.Errorf("ping %s: %w", src.Name(), err)
	}

	// 2. Connect to PostgreSQL
	log.Printf("connecting to PostgreSQL...")
	pgPool, err := openTargetPool(ctx, cfg.Target.DSN)
	if err != nil {
		return report, err
	}
	defer pgPool.Close()

	// 3. Preflight: every catalog table must exist in the source
	log.Printf("inspecting source tables...")
	inv, err := inspectSource(ctx, srcDB, src, tables)
	if err != nil {
		return report, err
	}
	if err := inv.err(); err != nil {
		return report, err
	}
	for _, w := range inv.warnings() {
		log.Printf("  WARN: %s", w)
	}
	for _, t := range tables {
		log.Printf("  %s → %s.%s", inv.sourceName(t), cfg.Schema, t.Name)
	}

	// 4. Rename legacy mixed-case objects. This runs before create so an
	// existing legacy table is renamed in place instead of sitting beside a
	// freshly created lowercase twin.
	if cfg.RenameLegacyIdentifiers {
		log.Printf("renaming legacy identifiers in '%s'...", cfg.Schema)
		if err := applySchemaMigrations(ctx, pgPool, tables, cfg.Schema); err != nil {
			return report, fmt.Errorf("schema migrations: %w", err)
		}
	}

	// 5. Create schema and tables
	if cfg.CreateSchema {
		log.Printf("creating schema '%s'...", cfg.Schema)
		if err := createTables(ctx, pgPool, tables, cfg.Schema); err != nil {
			return report, fmt.Errorf("create tables: %w", err)
		}
	}

	// 6. before_data hooks
	if err := loadAndExecSQLFiles(ctx, pgPool, cfg, cfg.Hooks.BeforeData, "before_data"); err != nil {
		return report, fmt.Errorf("before_data hooks: %w", err)
	}

	// 7. Truncate children first
	log.Printf("truncating %d tables...", len(tables))
	if err := truncateTables(ctx, pgPool, tables, cfg.Schema); err != nil {
		return report, err
	}

	// 8. Transfer parents first, one transaction per table
	opts := cfg.transferOptions()
	for _, t := range tables {
		log.Printf("transferring %s...", t.Name)
		tr, err := transferTable(ctx, srcDB, src, pgPool, t, inv.sourceName(t), opts)
		if err != nil {
			report.Elapsed = time.Since(start)
			return report, fmt.Errorf("transfer %s: %w", t.Name, err)
		}
		report.Tables = append(report.Tables, tr)
	}

	// 9. after_data hooks
	if err := loadAndExecSQLFiles(ctx, pgPool, cfg, cfg.Hooks.AfterData, "after_data"); err != nil {
		return report, fmt.Errorf("after_data hooks: %w", err)
	}

	// 10. Verify
	if cfg.Verify {
		log.Printf("verifying...")
		if err := verifyMigration(ctx, pgPool, tables, report, cfg.Schema); err != nil {
			return report, err
		}
	}

	report.Elapsed = time.Since(start)
	return report, nil
}
