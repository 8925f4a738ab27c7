package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"strings"
)

// loadAndExecSQLFiles reads each hook file, expands {{schema}} to the
// quoted destination schema and executes its statements.
func loadAndExecSQLFiles(ctx context.Context, exec pgExecutor, cfg *MigrationConfig, files []string, phase string) error {
	if len(files) == 0 {
		return nil
	}
	log.Printf("  running %s hooks (%d files)...", phase, len(files))

	for _, f := range files {
		path := cfg.resolvePath(f)
		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("hook %s: read %s: %w", phase, f, err)
		}

		stmts := splitStatements(expandHookSQL(string(data), cfg.Schema))

		log.Printf("    %s: %d statements", f, len(stmts))
		if err := execHookFile(ctx, exec, stmts); err != nil {
			return fmt.Errorf("hook %s: %s: %w", phase, f, err)
		}
	}
	return nil
}

func expandHookSQL(sql, pgSchema string) string {
	return strings.ReplaceAll(sql, "{{schema}}", pgIdent(pgSchema))
}

// execHookFile runs one file's statements in a transaction so a failing
// hook leaves no partial effects behind.
func execHookFile(ctx context.Context, exec pgExecutor, stmts []string) error {
	tx, err := exec.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	for i, stmt := range stmts {
		if _, err := tx.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("statement %d: %w\nSQL: %s", i+1, err, stmt)
		}
	}
	return tx.Commit(ctx)
}

// splitStatements splits SQL text on top-level semicolons. Semicolons inside
// quoted literals, quoted identifiers, comments and dollar-quoted bodies do
// not end a statement. Blank statements are dropped.
func splitStatements(sql string) []string {
	var stmts []string
	start := 0
	flush := func(end int) {
		if s := strings.TrimSpace(sql[start:end]); s != "" {
			stmts = append(stmts, s)
		}
	}

	for i := 0; i < len(sql); {
		switch c := sql[i]; {
		case c == ';':
			flush(i)
			i++
			start = i
		case c == '\'' || c == '"':
			i = skipQuoted(sql, i)
		case strings.HasPrefix(sql[i:], "--"):
			i = skipLineComment(sql, i)
		case strings.HasPrefix(sql[i:], "/*"):
			i = skipBlockComment(sql, i)
		case c == '$':
			i = skipDollarQuoted(sql, i)
		default:
			i++
		}
	}
	flush(len(sql))
	return stmts
}

// skipQuoted returns the offset just past the quoted token opening at i.
// A doubled quote character is an escaped quote.
func skipQuoted(sql string, i int) int {
	q := sql[i]
	for j := i + 1; j < len(sql); j++ {
		if sql[j] != q {
			continue
		}
		if j+1 < len(sql) && sql[j+1] == q {
			j++
			continue
		}
		return j + 1
	}
	return len(sql)
}

func skipLineComment(sql string, i int) int {
	if n := strings.IndexByte(sql[i:], '\n'); n >= 0 {
		return i + n + 1
	}
	return len(sql)
}

// skipBlockComment handles nested /* */ comments.
func skipBlockComment(sql string, i int) int {
	depth := 0
	for j := i; j < len(sql); {
		switch {
		case strings.HasPrefix(sql[j:], "/*"):
			depth++
			j += 2
		case strings.HasPrefix(sql[j:], "*/"):
			depth--
			j += 2
			if depth == 0 {
				return j
			}
		default:
			j++
		}
	}
	return len(sql)
}

// skipDollarQuoted skips a $$...$$ or $tag$...$tag$ body opening at i. A
// lone $ (a positional parameter like $1) is ordinary text.
func skipDollarQuoted(sql string, i int) int {
	tag, ok := dollarTag(sql, i)
	if !ok {
		return i + 1
	}
	body := i + len(tag)
	if n := strings.Index(sql[body:], tag); n >= 0 {
		return body + n + len(tag)
	}
	return len(sql)
}

func dollarTag(sql string, i int) (string, bool) {
	j := i + 1
	for j < len(sql) && isTagByte(sql[j], j == i+1) {
		j++
	}
	if j < len(sql) && sql[j] == '$' {
		return sql[i : j+1], true
	}
	return "", false
}

func isTagByte(c byte, first bool) bool {
	switch {
	case c == '_', c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z':
		return true
	case c >= '0' && c <= '9':
		return !first
	}
	return false
}
