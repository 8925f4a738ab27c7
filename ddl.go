package main

import (
	"context"
	"fmt"
	"log"
	"strings"
)

// createTables creates the target schema and every catalog table that does
// not exist yet. Tables are created parents first so each REFERENCES clause
// points at an existing table.
func createTables(ctx context.Context, exec pgExecutor, tables []Table, pgSchema string) error {
	if err := validateOrder(tables); err != nil {
		return err
	}

	if err := ensureSchema(ctx, exec, pgSchema); err != nil {
		return err
	}

	for _, t := range tables {
		ddl := generateCreateTable(t, pgSchema)
		log.Printf("  creating %s.%s", pgSchema, t.Name)
		if _, err := exec.Exec(ctx, ddl); err != nil {
			return fmt.Errorf("create table %s: %w\nDDL: %s", t.Name, err, ddl)
		}
	}
	return nil
}

func ensureSchema(ctx context.Context, exec pgExecutor, pgSchema string) error {
	if _, err := exec.Exec(ctx, fmt.Sprintf("CREATE SCHEMA IF NOT EXISTS %s", pgIdent(pgSchema))); err != nil {
		return fmt.Errorf("create schema %s: %w", pgSchema, err)
	}
	return nil
}

// generateCreateTable produces a CREATE TABLE IF NOT EXISTS statement with
// the primary key and foreign keys inline.
func generateCreateTable(t Table, pgSchema string) string {
	var lines []string
	for _, col := range t.Columns {
		line := fmt.Sprintf("  %s %s", pgIdent(col.Name), col.Type)
		if !col.Nullable || col.PrimaryKey {
			line += " NOT NULL"
		}
		lines = append(lines, line)
	}

	if pk := t.primaryKey(); len(pk) > 0 {
		lines = append(lines, fmt.Sprintf("  PRIMARY KEY (%s)", quotedColumnList(pk)))
	}

	for _, fk := range t.ForeignKeys {
		line := fmt.Sprintf("  FOREIGN KEY (%s) REFERENCES %s (%s)",
			pgIdent(fk.Column), qualifiedTable(pgSchema, fk.RefTable), pgIdent(fk.RefColumn))
		if fk.DeleteRule != "" {
			line += " ON DELETE " + fk.DeleteRule
		}
		lines = append(lines, line)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "CREATE TABLE IF NOT EXISTS %s (\n", qualifiedTable(pgSchema, t.Name))
	b.WriteString(strings.Join(lines, ",\n"))
	b.WriteString("\n)")
	return b.String()
}

// generateTruncate lists tables children first.
func generateTruncate(tables []Table, pgSchema string) string {
	order := truncationOrder(tables)
	names := make([]string, len(order))
	for i, t := range order {
		names[i] = qualifiedTable(pgSchema, t.Name)
	}
	return fmt.Sprintf("TRUNCATE %s CASCADE", strings.Join(names, ", "))
}

// truncateTables clears every destination table in one statement.
func truncateTables(ctx context.Context, exec pgExecutor, tables []Table, pgSchema string) error {
	q := generateTruncate(tables, pgSchema)
	if _, err := exec.Exec(ctx, q); err != nil {
		return fmt.Errorf("truncate: %w\nSQL: %s", err, q)
	}
	return nil
}
