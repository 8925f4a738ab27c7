package main

import (
	"bufio"
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
)

// maxQueryParams is PostgreSQL's limit on bind parameters per statement.
const maxQueryParams = 65535

var errRowCountMismatch = errors.New("rows written differ from rows read")

type transferStrategy int

const (
	strategyInsert transferStrategy = iota
	strategyCopy
)

func (s transferStrategy) String() string {
	switch s {
	case strategyInsert:
		return "insert"
	case strategyCopy:
		return "copy"
	default:
		return fmt.Sprintf("strategy(%d)", int(s))
	}
}

// transferOptions carries the per-run knobs of the transfer engine.
type transferOptions struct {
	Schema             string
	ScratchDir         string
	BulkTables         []string
	BulkThresholdRows  int
	BulkThresholdBytes int64
	InsertBatchRows    int
}

// tableData is a fully read and normalized source table. Columns follow the
// source's column order and are already mapped to destination columns.
type tableData struct {
	Table   Table
	Columns []Column
	Rows    [][]any
	Bytes   int64
}

func (d *tableData) columnNames() []string {
	names := make([]string, len(d.Columns))
	for i, c := range d.Columns {
		names[i] = c.Name
	}
	return names
}

// readTable reads every row of sourceName and normalizes it for t.
func readTable(ctx context.Context, db *sql.DB, src SourceDB, t Table, sourceName string) (*tableData, error) {
	q := fmt.Sprintf("SELECT * FROM %s", src.QuoteIdentifier(sourceName))
	rows, err := db.QueryContext(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", sourceName, err)
	}
	defer rows.Close()

	labels, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("read %s columns: %w", sourceName, err)
	}

	data := &tableData{Table: t, Columns: make([]Column, len(labels))}
	seen := make(map[string]bool, len(labels))
	for i, label := range labels {
		name := normalizeColumnName(label)
		col, ok := t.column(name)
		if !ok {
			return nil, fmt.Errorf("read %s: source column %q has no destination column in %s", sourceName, label, t.Name)
		}
		if seen[name] {
			return nil, fmt.Errorf("read %s: source columns collide on %q after normalization", sourceName, name)
		}
		seen[name] = true
		data.Columns[i] = col
	}
	for _, c := range t.Columns {
		if !seen[c.Name] {
			return nil, fmt.Errorf("read %s: destination column %s.%s has no source column", sourceName, t.Name, c.Name)
		}
	}

	vals := make([]any, len(labels))
	ptrs := make([]any, len(labels))
	for i := range vals {
		ptrs[i] = &vals[i]
	}

	for rows.Next() {
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("scan %s: %w", sourceName, err)
		}
		row := make([]any, len(vals))
		for i, v := range vals {
			col := data.Columns[i]
			tv, err := src.TransformValue(v, col)
			if err != nil {
				return nil, fmt.Errorf("transform %s.%s: %w", sourceName, col.Name, err)
			}
			nv, err := normalizeValue(tv, col)
			if err != nil {
				return nil, fmt.Errorf("normalize %s.%s: %w", sourceName, col.Name, err)
			}
			row[i] = nv
			data.Bytes += valueSize(nv)
		}
		data.Rows = append(data.Rows, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read %s: %w", sourceName, err)
	}
	return data, nil
}

// chooseStrategy picks the bulk COPY path for tables that are listed
// explicitly or cross a size threshold. A zero threshold is disabled.
func chooseStrategy(data *tableData, opts transferOptions) transferStrategy {
	if slices.Contains(opts.BulkTables, data.Table.Name) {
		return strategyCopy
	}
	if opts.BulkThresholdRows > 0 && len(data.Rows) >= opts.BulkThresholdRows {
		return strategyCopy
	}
	if opts.BulkThresholdBytes > 0 && data.Bytes >= opts.BulkThresholdBytes {
		return strategyCopy
	}
	return strategyInsert
}

// rowsPerInsert bounds a multi-row INSERT by the bind parameter limit and
// the configured batch size.
func rowsPerInsert(numCols, batchRows int) int {
	if numCols < 1 {
		numCols = 1
	}
	n := maxQueryParams / numCols
	if batchRows > 0 && batchRows < n {
		n = batchRows
	}
	return max(n, 1)
}

// buildInsert renders one multi-row parameterized INSERT for rows.
func buildInsert(pgSchema string, data *tableData, rows [][]any) (string, []any) {
	var b strings.Builder
	fmt.Fprintf(&b, "INSERT INTO %s (%s) VALUES ",
		qualifiedTable(pgSchema, data.Table.Name), quotedColumnList(data.columnNames()))

	args := make([]any, 0, len(rows)*len(data.Columns))
	for i, row := range rows {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteByte('(')
		for j, v := range row {
			if j > 0 {
				b.WriteString(", ")
			}
			args = append(args, v)
			fmt.Fprintf(&b, "$%d", len(args))
		}
		b.WriteByte(')')
	}
	return b.String(), args
}

// insertRows writes data with parameterized INSERTs in one transaction.
// Either every row is committed or none is.
func insertRows(ctx context.Context, exec pgExecutor, data *tableData, opts transferOptions) (int64, error) {
	name := data.Table.Name
	if len(data.Rows) == 0 {
		log.Printf("  no data in %s, skipped insert", name)
		return 0, nil
	}

	tx, err := exec.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("begin %s: %w", name, err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	per := rowsPerInsert(len(data.Columns), opts.InsertBatchRows)
	var written int64
	for start := 0; start < len(data.Rows); start += per {
		end := min(start+per, len(data.Rows))
		q, args := buildInsert(opts.Schema, data, data.Rows[start:end])
		tag, err := tx.Exec(ctx, q, args...)
		if err != nil {
			return 0, fmt.Errorf("insert into %s (rows %d-%d): %w", name, start+1, end, err)
		}
		written += tag.RowsAffected()
	}
	if written != int64(len(data.Rows)) {
		return 0, fmt.Errorf("%w: %s read %d, inserted %d", errRowCountMismatch, name, len(data.Rows), written)
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("commit %s: %w", name, err)
	}
	log.Printf("  inserted %s rows into %s", humanize.Comma(written), name)
	return written, nil
}

// artifactPath is the deterministic CSV location for a bulk-loaded table.
// Concurrent runs sharing a scratch directory overwrite each other.
func artifactPath(scratchDir, table string) string {
	return filepath.Join(scratchDir, table+".csv")
}

// writeCSVArtifact writes data as a header-first CSV file, replacing any
// previous artifact at path. NULL is the bare csvNull marker and every other
// field is quoted, so a text value spelled like the marker stays text.
func writeCSVArtifact(path string, data *tableData) (err error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create scratch dir: %w", err)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create artifact: %w", err)
	}
	defer func() {
		if cerr := f.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("close artifact: %w", cerr)
		}
	}()

	w := bufio.NewWriter(f)
	for i, name := range data.columnNames() {
		if i > 0 {
			w.WriteByte(',')
		}
		writeQuotedField(w, name)
	}
	w.WriteByte('\n')
	for _, row := range data.Rows {
		for i, v := range row {
			if i > 0 {
				w.WriteByte(',')
			}
			if v == nil {
				w.WriteString(csvNull)
				continue
			}
			writeQuotedField(w, csvField(v, data.Columns[i]))
		}
		w.WriteByte('\n')
	}
	if err := w.Flush(); err != nil {
		return fmt.Errorf("write artifact: %w", err)
	}
	return nil
}

// writeQuotedField writes s as a double-quoted CSV field. Write errors are
// sticky on bufio.Writer and surface at Flush.
func writeQuotedField(w *bufio.Writer, s string) {
	w.WriteByte('"')
	w.WriteString(strings.ReplaceAll(s, `"`, `""`))
	w.WriteByte('"')
}

func copyStatement(pgSchema string, data *tableData) string {
	return fmt.Sprintf(`COPY %s (%s) FROM STDIN WITH (FORMAT csv, HEADER true, NULL '%s')`,
		qualifiedTable(pgSchema, data.Table.Name), quotedColumnList(data.columnNames()), csvNull)
}

// copyRows exports data to its CSV artifact and streams the file into the
// destination with COPY inside one transaction. The artifact is left behind.
func copyRows(ctx context.Context, exec pgExecutor, data *tableData, opts transferOptions) (int64, string, error) {
	name := data.Table.Name
	path := artifactPath(opts.ScratchDir, name)
	if err := writeCSVArtifact(path, data); err != nil {
		return 0, path, fmt.Errorf("export %s: %w", name, err)
	}
	size := ""
	if fi, err := os.Stat(path); err == nil {
		size = humanize.Bytes(uint64(fi.Size()))
	}
	log.Printf("  exported %s rows of %s to %s (%s) for COPY", humanize.Comma(int64(len(data.Rows))), name, path, size)

	f, err := os.Open(path)
	if err != nil {
		return 0, path, fmt.Errorf("open artifact %s: %w", path, err)
	}
	defer f.Close()

	tx, err := exec.Begin(ctx)
	if err != nil {
		return 0, path, fmt.Errorf("begin %s: %w", name, err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	tag, err := tx.Conn().PgConn().CopyFrom(ctx, f, copyStatement(opts.Schema, data))
	if err != nil {
		return 0, path, fmt.Errorf("copy into %s: %w", name, err)
	}
	written := tag.RowsAffected()
	if written != int64(len(data.Rows)) {
		return 0, path, fmt.Errorf("%w: %s read %d, copied %d", errRowCountMismatch, name, len(data.Rows), written)
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, path, fmt.Errorf("commit %s: %w", name, err)
	}
	log.Printf("  bulk loaded %s rows into %s", humanize.Comma(written), name)
	return written, path, nil
}

// transferTable moves one table from the source into the destination.
func transferTable(ctx context.Context, srcDB *sql.DB, src SourceDB, exec pgExecutor, t Table, sourceName string, opts transferOptions) (tableReport, error) {
	start := time.Now()
	rep := tableReport{Table: t.Name}

	data, err := readTable(ctx, srcDB, src, t, sourceName)
	if err != nil {
		return rep, err
	}
	rep.RowsRead = int64(len(data.Rows))
	rep.Strategy = chooseStrategy(data, opts)

	switch rep.Strategy {
	case strategyCopy:
		rep.RowsWritten, rep.Artifact, err = copyRows(ctx, exec, data, opts)
	default:
		rep.RowsWritten, err = insertRows(ctx, exec, data, opts)
	}
	rep.Duration = time.Since(start)
	return rep, err
}
