package mssql

import (
	"fmt"
	"net/url"
	"sort"
	"strings"

	"github.com/johndauphine/taxi-ingest/internal/typemap"
)

// Dialect holds SQL Server quoting, DSN and DDL rules.
type Dialect struct{}

func (d *Dialect) DBType() string { return "mssql" }

func (d *Dialect) QuoteIdentifier(name string) string {
	return "[" + strings.ReplaceAll(name, "]", "]]") + "]"
}

func (d *Dialect) QualifyTable(schema, table string) string {
	if schema == "" {
		return d.QuoteIdentifier(table)
	}
	return d.QuoteIdentifier(schema) + "." + d.QuoteIdentifier(table)
}

// BuildDSN returns a sqlserver:// URL as understood by go-mssqldb.
func (d *Dialect) BuildDSN(host string, port int, database, user, password string, opts map[string]any) string {
	u := url.URL{
		Scheme: "sqlserver",
		User:   url.UserPassword(user, password),
		Host:   fmt.Sprintf("%s:%d", host, port),
	}

	params := url.Values{}
	params.Set("database", database)
	keys := make([]string, 0, len(opts))
	for k := range opts {
		// sslmode is a PostgreSQL setting
		if k == "sslmode" {
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		params.Set(k, fmt.Sprint(opts[k]))
	}
	u.RawQuery = params.Encode()

	return u.String()
}

// TypeMapper maps loader field types to SQL Server column types.
type TypeMapper struct{}

// MapType returns the SQL Server column type for t.
func (m *TypeMapper) MapType(t typemap.FieldType) string {
	switch t {
	case typemap.Int64:
		return "bigint"
	case typemap.Float64:
		return "float"
	case typemap.Timestamp:
		return "datetime2"
	default:
		return "nvarchar(max)"
	}
}
