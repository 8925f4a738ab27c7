package main

import (
	"database/sql"
	"fmt"
	"path/filepath"
	"testing"
)

// legacySalesDDL mirrors the source SQLite schema: mixed-case identifiers,
// loose SQLite typing.
var legacySalesDDL = []string{
	`CREATE TABLE Region (RegionID INTEGER PRIMARY KEY, Region TEXT NOT NULL)`,
	`CREATE TABLE Country (
		CountryID INTEGER PRIMARY KEY,
		Country TEXT NOT NULL,
		RegionID INTEGER NOT NULL REFERENCES Region(RegionID)
	)`,
	`CREATE TABLE Customer (
		CustomerID INTEGER PRIMARY KEY,
		FirstName TEXT NOT NULL,
		LastName TEXT NOT NULL,
		Address TEXT,
		City TEXT,
		CountryID INTEGER NOT NULL REFERENCES Country(CountryID)
	)`,
	`CREATE TABLE ProductCategory (
		ProductCategoryID INTEGER PRIMARY KEY,
		ProductCategory TEXT NOT NULL,
		ProductCategoryDescription TEXT
	)`,
	`CREATE TABLE Product (
		ProductID INTEGER PRIMARY KEY,
		ProductName TEXT NOT NULL,
		ProductUnitPrice REAL NOT NULL,
		ProductCategoryID INTEGER NOT NULL REFERENCES ProductCategory(ProductCategoryID)
	)`,
	`CREATE TABLE OrderDetail (
		OrderID INTEGER PRIMARY KEY,
		CustomerID INTEGER NOT NULL REFERENCES Customer(CustomerID),
		ProductID INTEGER NOT NULL REFERENCES Product(ProductID),
		OrderDate TEXT NOT NULL,
		QuantityOrdered INTEGER
	)`,
}

var legacySalesRows = []string{
	`INSERT INTO Region VALUES (1, 'Africa'), (2, 'Asia'), (3, 'Europe'), (4, 'North America')`,
	`INSERT INTO Country VALUES (1, 'Kenya', 1), (2, 'Japan', 2), (3, 'Portugal', 3), (4, 'Canada', 4)`,
	`INSERT INTO Customer VALUES
		(1, 'Amina', 'Otieno', '12 Moi Ave', 'Nairobi', 1),
		(2, 'Kenji', 'Sato', NULL, 'Osaka', 2),
		(3, 'Rita', 'Costa', '', NULL, 3)`,
	`INSERT INTO ProductCategory VALUES (1, 'Books', 'Printed matter'), (2, 'Games', NULL)`,
	`INSERT INTO Product VALUES (1, 'Atlas', 19.99, 1), (2, 'Chess', 35.5, 2)`,
}

// writeSalesFixture creates a legacy sales SQLite database in dir with
// orderRows rows of OrderDetail and returns its path.
func writeSalesFixture(t *testing.T, dir string, orderRows int) string {
	t.Helper()
	path := filepath.Join(dir, "normalized_mini_project.db")

	db, err := sql.Open("sqlite", path)
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	defer db.Close()

	for _, stmt := range append(append([]string{}, legacySalesDDL...), legacySalesRows...) {
		if _, err := db.Exec(stmt); err != nil {
			t.Fatalf("exec %q: %v", stmt[:min(len(stmt), 40)], err)
		}
	}

	tx, err := db.Begin()
	if err != nil {
		t.Fatalf("begin: %v", err)
	}
	for i := 1; i <= orderRows; i++ {
		_, err := tx.Exec(`INSERT INTO OrderDetail VALUES (?, ?, ?, ?, ?)`,
			i, i%3+1, i%2+1, fmt.Sprintf("2024-01-%02d", i%28+1), i%5+1)
		if err != nil {
			t.Fatalf("insert order %d: %v", i, err)
		}
	}
	if err := tx.Commit(); err != nil {
		t.Fatalf("commit: %v", err)
	}
	return path
}

// openFixture opens path through the read-only source adapter.
func openFixture(t *testing.T, path string) *sql.DB {
	t.Helper()
	db, err := (&sqliteSourceDB{}).OpenDB(path)
	if err != nil {
		t.Fatalf("OpenDB: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}
