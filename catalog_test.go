package main

import (
	"errors"
	"reflect"
	"strings"
	"testing"
)

func TestValidateOrder_DefaultCatalog(t *testing.T) {
	if err := validateOrder(defaultCatalog()); err != nil {
		t.Fatalf("validateOrder(default) error: %v", err)
	}
}

func TestValidateOrder_ChildBeforeParent(t *testing.T) {
	tables := defaultCatalog()
	// Move orderdetail ahead of customer and product.
	tables[2], tables[5] = tables[5], tables[2]

	err := validateOrder(tables)
	if err == nil {
		t.Fatal("expected definition order error")
	}
	if !errors.Is(err, errDefinitionOrder) {
		t.Errorf("error = %v, want errDefinitionOrder", err)
	}
	if !strings.Contains(err.Error(), "orderdetail") {
		t.Errorf("error should name the offending table, got %v", err)
	}
}

func TestValidateOrder_MissingParent(t *testing.T) {
	tables := defaultCatalog()[1:] // country without region
	if err := validateOrder(tables); !errors.Is(err, errDefinitionOrder) {
		t.Fatalf("validateOrder() = %v, want errDefinitionOrder", err)
	}
}

func TestValidateOrder_Duplicate(t *testing.T) {
	tables := defaultCatalog()
	tables = append(tables, tables[0])
	if err := validateOrder(tables); !errors.Is(err, errDefinitionOrder) {
		t.Fatalf("validateOrder() = %v, want errDefinitionOrder", err)
	}
}

func TestTruncationOrder(t *testing.T) {
	tables := defaultCatalog()
	got := tableNames(truncationOrder(tables))
	want := []string{"orderdetail", "product", "productcategory", "customer", "country", "region"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("truncationOrder() = %v, want %v", got, want)
	}
	// The input must not be reordered.
	if tables[0].Name != "region" {
		t.Errorf("truncationOrder mutated its input: first table %q", tables[0].Name)
	}
}

func TestCatalogInvariants(t *testing.T) {
	for _, tbl := range defaultCatalog() {
		if tbl.Name != strings.ToLower(tbl.Name) {
			t.Errorf("table %q is not lowercase", tbl.Name)
		}
		if !strings.EqualFold(tbl.Name, tbl.LegacyName) {
			t.Errorf("table %q legacy name %q differs beyond casing", tbl.Name, tbl.LegacyName)
		}
		if len(tbl.primaryKey()) != 1 {
			t.Errorf("table %q has primary key %v, want exactly one column", tbl.Name, tbl.primaryKey())
		}
		for _, c := range tbl.Columns {
			if c.Name != normalizeColumnName(c.LegacyName) {
				t.Errorf("%s.%s does not normalize from legacy name %q", tbl.Name, c.Name, c.LegacyName)
			}
			if c.kind() == kindOther {
				t.Errorf("%s.%s has unclassified type %q", tbl.Name, c.Name, c.Type)
			}
		}
		for _, fk := range tbl.ForeignKeys {
			if _, ok := tbl.column(fk.Column); !ok {
				t.Errorf("%s FK column %q is not a column of the table", tbl.Name, fk.Column)
			}
		}
	}
}

func TestColumnKind(t *testing.T) {
	tests := []struct {
		typ  string
		want columnKind
	}{
		{"integer", kindInteger},
		{"bigint", kindInteger},
		{"numeric(10,2)", kindNumeric},
		{"text", kindText},
		{"varchar(64)", kindText},
		{"date", kindDate},
		{"timestamptz", kindTimestamp},
		{"bytea", kindBytea},
		{"jsonb", kindOther},
	}
	for _, tt := range tests {
		if got := (Column{Type: tt.typ}).kind(); got != tt.want {
			t.Errorf("kind(%q) = %v, want %v", tt.typ, got, tt.want)
		}
	}
}
