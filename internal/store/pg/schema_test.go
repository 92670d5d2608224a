package pg

import (
	"os"
	"regexp"
	"strings"
	"testing"
)

// The sqlmock tests feed rows by hand, so they cannot notice when the queries
// in this package drift from the shipped schema. These tests cross-check the
// select lists against the initial migration instead.

const initMigration = "../../../ops/migrations/sql/0001_init.up.sql"

var identPattern = regexp.MustCompile(`[a-z_]+`)

func selectedColumns(list string) []string {
	var out []string
	for _, tok := range identPattern.FindAllString(list, -1) {
		if tok == "coalesce" {
			continue
		}
		out = append(out, tok)
	}
	return out
}

func coalescedColumns(list string) []string {
	re := regexp.MustCompile(`coalesce\(([a-z_]+)`)
	var out []string
	for _, m := range re.FindAllStringSubmatch(list, -1) {
		out = append(out, m[1])
	}
	return out
}

func tableBody(t *testing.T, script, table string) string {
	t.Helper()
	marker := "create table if not exists " + table + " ("
	start := strings.Index(script, marker)
	if start < 0 {
		t.Fatalf("migration does not create table %s", table)
	}
	rest := script[start+len(marker):]
	end := strings.Index(rest, ");")
	if end < 0 {
		t.Fatalf("unterminated create table for %s", table)
	}
	return rest[:end]
}

func declarationOf(t *testing.T, body, table, column string) string {
	t.Helper()
	re := regexp.MustCompile(`(?m)^\s*` + column + `\s+([^,\n]+)`)
	m := re.FindStringSubmatch(body)
	if m == nil {
		t.Fatalf("%s: column %s is selected by the store but not declared", table, column)
	}
	return m[1]
}

func TestInitMigrationDeclaresSelectedColumns(t *testing.T) {
	raw, err := os.ReadFile(initMigration)
	if err != nil {
		t.Fatalf("read migration: %v", err)
	}
	script := string(raw)

	for _, tc := range []struct {
		table   string
		columns string
	}{
		{"users", userColumns},
		{"roles", roleColumns},
		{"permissions", permColumns},
	} {
		body := tableBody(t, script, tc.table)
		for _, col := range selectedColumns(tc.columns) {
			declarationOf(t, body, tc.table, col)
		}
	}
}

func TestInitMigrationCoalescedColumnsAreNullable(t *testing.T) {
	raw, err := os.ReadFile(initMigration)
	if err != nil {
		t.Fatalf("read migration: %v", err)
	}
	script := string(raw)

	// The stores insert nullif($n, '') into these columns and coalesce them
	// back on read, so the schema must permit null.
	for _, tc := range []struct {
		table   string
		columns string
	}{
		{"users", userColumns},
		{"roles", roleColumns},
		{"permissions", permColumns},
	} {
		body := tableBody(t, script, tc.table)
		for _, col := range coalescedColumns(tc.columns) {
			decl := declarationOf(t, body, tc.table, col)
			if strings.Contains(decl, "not null") {
				t.Fatalf("%s.%s is declared not null but the store writes nulls into it", tc.table, col)
			}
		}
	}
}
