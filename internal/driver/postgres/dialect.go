package postgres

import (
	"fmt"
	"net/url"
	"sort"
	"strings"

	"github.com/johndauphine/taxi-ingest/internal/typemap"
)

// Dialect holds PostgreSQL quoting, DSN and DDL rules.
type Dialect struct{}

func (d *Dialect) DBType() string { return "postgres" }

func (d *Dialect) QuoteIdentifier(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

func (d *Dialect) QualifyTable(schema, table string) string {
	if schema == "" {
		return d.QuoteIdentifier(table)
	}
	return d.QuoteIdentifier(schema) + "." + d.QuoteIdentifier(table)
}

// BuildDSN returns a postgres:// URL. User, password and database are
// escaped so that characters like '@' or '/' survive.
func (d *Dialect) BuildDSN(host string, port int, database, user, password string, opts map[string]any) string {
	u := url.URL{
		Scheme: "postgres",
		User:   url.UserPassword(user, password),
		Host:   fmt.Sprintf("%s:%d", host, port),
		Path:   "/" + database,
	}

	params := url.Values{}
	keys := make([]string, 0, len(opts))
	for k := range opts {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		params.Set(k, fmt.Sprint(opts[k]))
	}
	u.RawQuery = params.Encode()

	return u.String()
}

// TypeMapper maps loader field types to PostgreSQL column types.
type TypeMapper struct{}

// MapType returns the PostgreSQL column type for t.
func (m *TypeMapper) MapType(t typemap.FieldType) string {
	switch t {
	case typemap.Int64:
		return "bigint"
	case typemap.Float64:
		return "double precision"
	case typemap.Timestamp:
		return "timestamp"
	default:
		return "text"
	}
}
