package source

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/johndauphine/taxi-ingest/internal/ingesterr"
	"github.com/johndauphine/taxi-ingest/internal/typemap"
)

// DefaultChunkSize is the number of rows per chunk when none is configured.
const DefaultChunkSize = 100000

// ctxCheckInterval is how many rows are read between context checks.
const ctxCheckInterval = 4096

// ReaderOptions configures a ChunkReader.
type ReaderOptions struct {
	// ChunkSize is the maximum number of rows per chunk.
	ChunkSize int

	// Delimiter separates fields. Zero means comma.
	Delimiter rune

	// TypeMap declares column types. Every declared column must be present
	// in the header; undeclared header columns are read as strings.
	TypeMap typemap.TypeMap
}

// ChunkReader lazily reads a delimited file with a header row and returns
// it as a sequence of typed chunks. It is finite and cannot be restarted.
// Next returns io.EOF, and only io.EOF, once the source is exhausted.
type ChunkReader struct {
	csv     *csv.Reader
	opts    ReaderOptions
	columns []Column
	header  bool
	seq     int
	rows    int64
	done    bool
	err     error
}

// NewChunkReader creates a reader over r. Nothing is read until Header or Next.
func NewChunkReader(r io.Reader, opts ReaderOptions) *ChunkReader {
	if opts.ChunkSize <= 0 {
		opts.ChunkSize = DefaultChunkSize
	}
	if opts.TypeMap == nil {
		opts.TypeMap = typemap.TypeMap{}
	}

	cr := csv.NewReader(r)
	if opts.Delimiter != 0 {
		cr.Comma = opts.Delimiter
	}
	cr.ReuseRecord = true

	return &ChunkReader{csv: cr, opts: opts}
}

// Header reads the header row if it has not been read yet and returns the
// typed source columns.
func (r *ChunkReader) Header() ([]Column, error) {
	if r.err != nil {
		return nil, r.err
	}
	if r.header {
		return r.columns, nil
	}

	record, err := r.csv.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			err = fmt.Errorf("source is empty: no header row")
		}
		return nil, r.fail(ingesterr.Source("reading header", err))
	}

	cols := make([]Column, len(record))
	seen := make(map[string]bool, len(record))
	for i, name := range record {
		if i == 0 {
			name = strings.TrimPrefix(name, "\ufeff")
		}
		name = strings.TrimSpace(name)
		if name == "" {
			return nil, r.fail(ingesterr.Schema("reading header", fmt.Errorf("column %d has no name", i+1)))
		}
		if seen[name] {
			return nil, r.fail(ingesterr.Schema("reading header", fmt.Errorf("duplicate column %q", name)))
		}
		seen[name] = true
		cols[i] = Column{Name: name, Type: r.opts.TypeMap.Lookup(name), OrdinalPos: i + 1}
	}

	if missing := r.opts.TypeMap.Missing(ColumnNames(cols)); len(missing) > 0 {
		return nil, r.fail(ingesterr.Schema("reading header",
			fmt.Errorf("declared columns missing from header: %s", strings.Join(missing, ", "))))
	}

	r.columns = cols
	r.header = true
	return cols, nil
}

// Next returns the next chunk of at most ChunkSize rows. A chunk is never
// empty. Errors are sticky: after a failure every call returns it again.
func (r *ChunkReader) Next(ctx context.Context) (*Chunk, error) {
	if r.err != nil {
		return nil, r.err
	}
	if _, err := r.Header(); err != nil {
		return nil, err
	}
	if r.done {
		return nil, io.EOF
	}

	chunk := &Chunk{
		Seq:      r.seq + 1,
		FirstRow: r.rows,
		Columns:  r.columns,
		Rows:     make([][]any, 0, min(r.opts.ChunkSize, 1024)),
	}

	for len(chunk.Rows) < r.opts.ChunkSize {
		if len(chunk.Rows)%ctxCheckInterval == 0 {
			if err := ctx.Err(); err != nil {
				return nil, r.fail(ingesterr.Source("reading chunk", err))
			}
		}

		record, err := r.csv.Read()
		if errors.Is(err, io.EOF) {
			r.done = true
			break
		}
		if err != nil {
			return nil, r.fail(classifyReadError(err))
		}

		row, err := r.coerce(record)
		if err != nil {
			return nil, r.fail(err)
		}
		chunk.Rows = append(chunk.Rows, row)
		r.rows++
	}

	if len(chunk.Rows) == 0 {
		return nil, io.EOF
	}
	r.seq++
	return chunk, nil
}

// Columns returns the header columns, or nil before the header is read.
func (r *ChunkReader) Columns() []Column {
	return r.columns
}

// RowsRead returns the number of data rows read so far.
func (r *ChunkReader) RowsRead() int64 {
	return r.rows
}

func (r *ChunkReader) coerce(record []string) ([]any, error) {
	row := make([]any, len(record))
	for i, raw := range record {
		v, err := typemap.ParseValue(r.columns[i].Type, raw)
		if err != nil {
			line, _ := r.csv.FieldPos(i)
			return nil, ingesterr.Schema(
				fmt.Sprintf("line %d column %s", line, r.columns[i].Name), err)
		}
		row[i] = v
	}
	return row, nil
}

func (r *ChunkReader) fail(err error) error {
	r.err = err
	return err
}

// classifyReadError separates field-count mismatches, which break the
// schema, from malformed or truncated input.
func classifyReadError(err error) error {
	var pe *csv.ParseError
	if errors.As(err, &pe) && errors.Is(pe.Err, csv.ErrFieldCount) {
		return ingesterr.Schema("reading chunk", err)
	}
	return ingesterr.Source("reading chunk", err)
}
