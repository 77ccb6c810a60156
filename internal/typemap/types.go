// Package typemap holds the declared column types of a source file and the
// coercion of raw CSV text into typed values.
package typemap

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"
)

// FieldType is the semantic type of a source column.
type FieldType int

const (
	// String is text; also the type of any column the map does not name.
	String FieldType = iota
	// Int64 is a nullable 64-bit integer.
	Int64
	// Float64 is a double precision float.
	Float64
	// Timestamp is a date/time without time zone.
	Timestamp
)

// String returns the lower-case type name accepted by ParseFieldType.
func (t FieldType) String() string {
	switch t {
	case String:
		return "string"
	case Int64:
		return "int64"
	case Float64:
		return "float64"
	case Timestamp:
		return "timestamp"
	default:
		return fmt.Sprintf("FieldType(%d)", int(t))
	}
}

// ParseFieldType converts a type name (case-insensitive) to a FieldType.
// pandas-style names such as "int" or "datetime" are accepted too.
func ParseFieldType(s string) (FieldType, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "string", "str", "text":
		return String, nil
	case "int64", "int", "integer", "bigint":
		return Int64, nil
	case "float64", "float", "double":
		return Float64, nil
	case "timestamp", "datetime", "date":
		return Timestamp, nil
	}
	return String, fmt.Errorf("unknown field type %q", s)
}

// TypeMap maps column names to their declared type. The same map is applied
// to every chunk so types never drift between chunks.
type TypeMap map[string]FieldType

// YellowTaxi returns the type map for NYC TLC yellow taxi trip files.
func YellowTaxi() TypeMap {
	return TypeMap{
		"VendorID":              Int64,
		"passenger_count":       Int64,
		"trip_distance":         Float64,
		"RatecodeID":            Int64,
		"store_and_fwd_flag":    String,
		"PULocationID":          Int64,
		"DOLocationID":          Int64,
		"payment_type":          Int64,
		"fare_amount":           Float64,
		"extra":                 Float64,
		"mta_tax":               Float64,
		"tip_amount":            Float64,
		"tolls_amount":          Float64,
		"improvement_surcharge": Float64,
		"total_amount":          Float64,
		"congestion_surcharge":  Float64,
		"tpep_pickup_datetime":  Timestamp,
		"tpep_dropoff_datetime": Timestamp,
	}
}

// Lookup returns the declared type of a column, String when undeclared.
func (m TypeMap) Lookup(name string) FieldType {
	if t, ok := m[name]; ok {
		return t
	}
	return String
}

// Clone returns a copy that can be modified independently.
func (m TypeMap) Clone() TypeMap {
	c := make(TypeMap, len(m))
	for k, v := range m {
		c[k] = v
	}
	return c
}

// Merge returns a copy of m with the given overrides applied.
// Override values are type names as accepted by ParseFieldType.
func (m TypeMap) Merge(overrides map[string]string) (TypeMap, error) {
	c := m.Clone()
	for name, typ := range overrides {
		ft, err := ParseFieldType(typ)
		if err != nil {
			return nil, fmt.Errorf("column %s: %w", name, err)
		}
		c[name] = ft
	}
	return c, nil
}

// Missing returns the declared columns that are absent from header, sorted.
func (m TypeMap) Missing(header []string) []string {
	present := make(map[string]bool, len(header))
	for _, h := range header {
		present[h] = true
	}
	var missing []string
	for name := range m {
		if !present[name] {
			missing = append(missing, name)
		}
	}
	sort.Strings(missing)
	return missing
}

// timestampLayouts are tried in order when parsing Timestamp fields.
var timestampLayouts = []string{
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	time.RFC3339Nano,
	"2006-01-02 15:04:05.999999999",
	"2006-01-02",
}

// ParseValue coerces raw CSV text to the Go value for t.
// Empty text is NULL (nil) for every type. Values returned are
// int64, float64, string or time.Time.
func ParseValue(t FieldType, raw string) (any, error) {
	if raw == "" {
		return nil, nil
	}
	switch t {
	case Int64:
		return parseInt(raw)
	case Float64:
		f, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
		if err != nil {
			return nil, fmt.Errorf("invalid float64 value %q", raw)
		}
		return f, nil
	case Timestamp:
		ts, err := ParseTimestamp(raw)
		if err != nil {
			return nil, err
		}
		return ts, nil
	default:
		return raw, nil
	}
}

func parseInt(raw string) (any, error) {
	s := strings.TrimSpace(raw)
	n, err := strconv.ParseInt(s, 10, 64)
	if err == nil {
		return n, nil
	}
	if errors.Is(err, strconv.ErrRange) {
		return nil, fmt.Errorf("int64 value %q out of range", raw)
	}
	// Integral decimals such as "1.0" show up in files written by float-typed
	// tools. The fraction is dropped textually so no digit passes through a float.
	whole, frac, ok := strings.Cut(s, ".")
	if !ok || whole == "" || whole == "-" || whole == "+" || strings.Trim(frac, "0") != "" {
		return nil, fmt.Errorf("invalid int64 value %q", raw)
	}
	n, err = strconv.ParseInt(whole, 10, 64)
	if errors.Is(err, strconv.ErrRange) {
		return nil, fmt.Errorf("int64 value %q out of range", raw)
	}
	if err != nil {
		return nil, fmt.Errorf("invalid int64 value %q", raw)
	}
	return n, nil
}

// ParseTimestamp parses a timestamp in any of the accepted layouts.
// Zone-less layouts are interpreted as UTC.
func ParseTimestamp(raw string) (time.Time, error) {
	s := strings.TrimSpace(raw)
	for _, layout := range timestampLayouts {
		if ts, err := time.Parse(layout, s); err == nil {
			return ts, nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid timestamp value %q", raw)
}
