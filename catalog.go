package main

import (
	"errors"
	"fmt"
	"slices"
)

var errDefinitionOrder = errors.New("table definition order violates foreign key dependencies")

// salesCatalog lists the destination tables in dependency order: every
// referenced table precedes the tables referencing it.
var salesCatalog = []Table{
	{
		Name:       "region",
		LegacyName: "Region",
		Columns: []Column{
			{Name: "regionid", LegacyName: "RegionID", Type: "integer", PrimaryKey: true},
			{Name: "region", LegacyName: "Region", Type: "text"},
		},
	},
	{
		Name:       "country",
		LegacyName: "Country",
		Columns: []Column{
			{Name: "countryid", LegacyName: "CountryID", Type: "integer", PrimaryKey: true},
			{Name: "country", LegacyName: "Country", Type: "text"},
			{Name: "regionid", LegacyName: "RegionID", Type: "integer"},
		},
		ForeignKeys: []ForeignKey{
			{Column: "regionid", RefTable: "region", RefColumn: "regionid", DeleteRule: "CASCADE"},
		},
	},
	{
		Name:       "customer",
		LegacyName: "Customer",
		Columns: []Column{
			{Name: "customerid", LegacyName: "CustomerID", Type: "integer", PrimaryKey: true},
			{Name: "firstname", LegacyName: "FirstName", Type: "text"},
			{Name: "lastname", LegacyName: "LastName", Type: "text"},
			{Name: "address", LegacyName: "Address", Type: "text", Nullable: true},
			{Name: "city", LegacyName: "City", Type: "text", Nullable: true},
			{Name: "countryid", LegacyName: "CountryID", Type: "integer"},
		},
		ForeignKeys: []ForeignKey{
			{Column: "countryid", RefTable: "country", RefColumn: "countryid", DeleteRule: "CASCADE"},
		},
	},
	{
		Name:       "productcategory",
		LegacyName: "ProductCategory",
		Columns: []Column{
			{Name: "productcategoryid", LegacyName: "ProductCategoryID", Type: "integer", PrimaryKey: true},
			{Name: "productcategory", LegacyName: "ProductCategory", Type: "text"},
			{Name: "productcategorydescription", LegacyName: "ProductCategoryDescription", Type: "text", Nullable: true},
		},
	},
	{
		Name:       "product",
		LegacyName: "Product",
		Columns: []Column{
			{Name: "productid", LegacyName: "ProductID", Type: "integer", PrimaryKey: true},
			{Name: "productname", LegacyName: "ProductName", Type: "text"},
			{Name: "productunitprice", LegacyName: "ProductUnitPrice", Type: "numeric(10,2)"},
			{Name: "productcategoryid", LegacyName: "ProductCategoryID", Type: "integer"},
		},
		ForeignKeys: []ForeignKey{
			{Column: "productcategoryid", RefTable: "productcategory", RefColumn: "productcategoryid", DeleteRule: "CASCADE"},
		},
	},
	{
		Name:       "orderdetail",
		LegacyName: "OrderDetail",
		Columns: []Column{
			{Name: "orderid", LegacyName: "OrderID", Type: "integer", PrimaryKey: true},
			{Name: "customerid", LegacyName: "CustomerID", Type: "integer"},
			{Name: "productid", LegacyName: "ProductID", Type: "integer"},
			{Name: "orderdate", LegacyName: "OrderDate", Type: "date"},
			{Name: "quantityordered", LegacyName: "QuantityOrdered", Type: "integer"},
		},
		ForeignKeys: []ForeignKey{
			{Column: "customerid", RefTable: "customer", RefColumn: "customerid", DeleteRule: "CASCADE"},
			{Column: "productid", RefTable: "product", RefColumn: "productid", DeleteRule: "CASCADE"},
		},
	},
}

// defaultCatalog returns a copy of the sales catalog safe for callers to reorder.
func defaultCatalog() []Table {
	return slices.Clone(salesCatalog)
}

// validateOrder checks that tables are listed parents first.
func validateOrder(tables []Table) error {
	seen := make(map[string]bool, len(tables))
	for _, t := range tables {
		if seen[t.Name] {
			return fmt.Errorf("%w: table %s defined twice", errDefinitionOrder, t.Name)
		}
		for _, fk := range t.ForeignKeys {
			if fk.RefTable == t.Name {
				continue
			}
			if !seen[fk.RefTable] {
				return fmt.Errorf("%w: %s.%s references %s, which is not defined before it",
					errDefinitionOrder, t.Name, fk.Column, fk.RefTable)
			}
		}
		seen[t.Name] = true
	}
	return nil
}

// truncationOrder returns tables children first.
func truncationOrder(tables []Table) []Table {
	out := slices.Clone(tables)
	slices.Reverse(out)
	return out
}

func tableNames(tables []Table) []string {
	names := make([]string, len(tables))
	for i, t := range tables {
		names[i] = t.Name
	}
	return names
}
