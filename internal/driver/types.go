package driver

import (
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/johndauphine/taxi-ingest/internal/typemap"
)

// IndexColumn is the name of the row ordinal column the loader prepends.
const IndexColumn = "index"

// Table represents a destination table with its column layout.
type Table struct {
	Schema  string   `json:"schema"`
	Name    string   `json:"name"`
	Columns []Column `json:"columns"`
}

// FullName returns the fully qualified table name (schema.table).
func (t *Table) FullName() string {
	if t.Schema == "" {
		return t.Name
	}
	return t.Schema + "." + t.Name
}

// ColumnNames returns a slice of column names.
func (t *Table) ColumnNames() []string {
	names := make([]string, len(t.Columns))
	for i, col := range t.Columns {
		names[i] = col.Name
	}
	return names
}

// SanitizedColumnNames returns the column names as they exist in the database.
func (t *Table) SanitizedColumnNames() []string {
	names := make([]string, len(t.Columns))
	for i, col := range t.Columns {
		names[i] = SanitizeIdentifier(col.Name)
	}
	return names
}

// Column represents a destination column.
type Column struct {
	Name       string            `json:"name"`
	Type       typemap.FieldType `json:"type"`
	IsNullable bool              `json:"is_nullable"`
}

// TypeMapper maps field types to a database's column types.
type TypeMapper interface {
	MapType(t typemap.FieldType) string
}

// ColumnDefinitions renders one "name type" entry per column of t, using the
// sanitized column name, the database's quoting and its type mapping.
func ColumnDefinitions(t *Table, quote func(string) string, m TypeMapper) []string {
	defs := make([]string, len(t.Columns))
	for i, col := range t.Columns {
		def := quote(SanitizeIdentifier(col.Name)) + " " + m.MapType(col.Type)
		if !col.IsNullable {
			def += " NOT NULL"
		}
		defs[i] = def
	}
	return defs
}

// SanitizeIdentifier converts an identifier to a lowercase database-friendly form.
// Example: VendorID -> vendorid, PULocationID -> pulocationid, trip-id -> trip_id
func SanitizeIdentifier(ident string) string {
	if ident == "" {
		return "col_"
	}
	s := strings.ToLower(ident)
	var sb strings.Builder
	for _, r := range s {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_' {
			sb.WriteRune(r)
		} else {
			sb.WriteRune('_')
		}
	}
	s = sb.String()
	// Prefix with col_ if starts with digit
	if unicode.IsDigit(rune(s[0])) {
		s = "col_" + s
	}
	return s
}

// MaxIdentifierLength is the longest identifier, in bytes, PostgreSQL keeps.
// Longer names are silently truncated by the server.
const MaxIdentifierLength = 63

// IdentifierKey returns the name a column ends up with in the most
// restrictive database: sanitized, then cut to MaxIdentifierLength bytes
// without splitting a character. Two columns with the same key collide.
func IdentifierKey(name string) string {
	s := SanitizeIdentifier(name)
	if len(s) <= MaxIdentifierLength {
		return s
	}
	cut := 0
	for i, r := range s {
		end := i + utf8.RuneLen(r)
		if end > MaxIdentifierLength {
			break
		}
		cut = end
	}
	return s[:cut]
}

// ValidateIdentifier checks if a database identifier (schema, table name)
// is safe to use in SQL. Returns an error if the identifier contains
// characters that could enable SQL injection.
//
// Valid identifiers:
// - Start with letter or underscore
// - Contain only letters, digits, underscores and $
// - Maximum length of 63 characters (PostgreSQL limit)
// - Not empty
func ValidateIdentifier(name string) error {
	if name == "" {
		return fmt.Errorf("identifier cannot be empty")
	}

	if len(name) > 63 {
		return fmt.Errorf("identifier too long: %d characters (max 63)", len(name))
	}

	first := rune(name[0])
	if !isValidIdentifierStart(first) {
		return fmt.Errorf("identifier must start with letter or underscore: %q", name)
	}

	for i, r := range name {
		if i == 0 {
			continue
		}
		if !isValidIdentifierChar(r) {
			return fmt.Errorf("identifier contains invalid character %q at position %d: %q", r, i, name)
		}
	}

	return nil
}

func isValidIdentifierStart(r rune) bool {
	return (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || r == '_'
}

func isValidIdentifierChar(r rune) bool {
	return isValidIdentifierStart(r) ||
		(r >= '0' && r <= '9') ||
		r == '$'
}
