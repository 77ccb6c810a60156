package sqlite

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/johndauphine/taxi-ingest/internal/typemap"
)

// DefaultBusyTimeout is applied to every connection through the DSN.
const DefaultBusyTimeout = 5 * time.Second

// Dialect holds SQLite quoting, DSN and DDL rules.
type Dialect struct{}

func (d *Dialect) DBType() string { return "sqlite" }

func (d *Dialect) QuoteIdentifier(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

// QualifyTable ignores schema unless it names an attached database.
func (d *Dialect) QualifyTable(schema, table string) string {
	if schema == "" || schema == "main" {
		return d.QuoteIdentifier(table)
	}
	return d.QuoteIdentifier(schema) + "." + d.QuoteIdentifier(table)
}

// BuildDSN returns a modernc.org/sqlite DSN for path with the pragmas the
// writer relies on. ":memory:" yields a private in-memory database.
func BuildDSN(path string) string {
	if path == ":memory:" {
		return "file::memory:"
	}
	params := url.Values{}
	params.Add("_pragma", fmt.Sprintf("busy_timeout(%d)", DefaultBusyTimeout.Milliseconds()))
	params.Add("_pragma", "journal_mode(WAL)")
	params.Add("_pragma", "synchronous(NORMAL)")
	return "file:" + path + "?" + params.Encode()
}

// TypeMapper maps loader field types to SQLite column affinities.
type TypeMapper struct{}

// MapType returns the SQLite column type for t.
func (m *TypeMapper) MapType(t typemap.FieldType) string {
	switch t {
	case typemap.Int64:
		return "INTEGER"
	case typemap.Float64:
		return "REAL"
	case typemap.Timestamp:
		return "TIMESTAMP"
	default:
		return "TEXT"
	}
}
