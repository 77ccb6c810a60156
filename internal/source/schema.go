package source

import (
	"github.com/johndauphine/taxi-ingest/internal/typemap"
)

// Column is a source column as read from the header row.
type Column struct {
	Name       string            `json:"name"`
	Type       typemap.FieldType `json:"type"`
	OrdinalPos int               `json:"ordinal_position"`
}

// ColumnNames returns the names of cols in order.
func ColumnNames(cols []Column) []string {
	names := make([]string, len(cols))
	for i, c := range cols {
		names[i] = c.Name
	}
	return names
}

// Chunk is a bounded, ordered batch of rows taken off the source in one read.
type Chunk struct {
	// Seq is the 1-based position of the chunk in the source.
	Seq int

	// FirstRow is the zero-based source ordinal of Rows[0].
	FirstRow int64

	// Columns describes every row's values, in order.
	Columns []Column

	// Rows holds coerced values: int64, float64, string, time.Time or nil.
	Rows [][]any
}

// Len returns the number of rows in the chunk.
func (c *Chunk) Len() int {
	return len(c.Rows)
}
