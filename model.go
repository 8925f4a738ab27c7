package main

import "strings"

// Column describes one destination column together with the name it carries
// in the source database and in not-yet-renamed destination schemas.
type Column struct {
	Name       string // lowercase destination name
	LegacyName string // mixed-case name, e.g. "RegionID"
	Type       string // PostgreSQL type, e.g. "integer", "numeric(10,2)"
	Nullable   bool
	PrimaryKey bool
}

// ForeignKey is a single-column reference to another catalog table.
type ForeignKey struct {
	Column     string
	RefTable   string
	RefColumn  string
	DeleteRule string // CASCADE, SET NULL, etc.
}

// Table is a static destination table definition.
type Table struct {
	Name        string
	LegacyName  string
	Columns     []Column
	ForeignKeys []ForeignKey
}

// column looks up a column by its destination name.
func (t Table) column(name string) (Column, bool) {
	for _, c := range t.Columns {
		if c.Name == name {
			return c, true
		}
	}
	return Column{}, false
}

func (t Table) primaryKey() []string {
	var cols []string
	for _, c := range t.Columns {
		if c.PrimaryKey {
			cols = append(cols, c.Name)
		}
	}
	return cols
}

// columnKind buckets PostgreSQL types into the handful of shapes value
// normalization cares about.
type columnKind int

const (
	kindOther columnKind = iota
	kindInteger
	kindNumeric
	kindText
	kindDate
	kindTimestamp
	kindBytea
)

func (c Column) kind() columnKind {
	t := strings.ToLower(c.Type)
	if i := strings.IndexByte(t, '('); i >= 0 {
		t = t[:i]
	}
	switch strings.TrimSpace(t) {
	case "smallint", "integer", "int", "bigint":
		return kindInteger
	case "numeric", "decimal", "real", "double precision":
		return kindNumeric
	case "text", "varchar", "character varying", "char":
		return kindText
	case "date":
		return kindDate
	case "timestamp", "timestamptz":
		return kindTimestamp
	case "bytea":
		return kindBytea
	default:
		return kindOther
	}
}
