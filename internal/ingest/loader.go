// Package ingest loads a delimited source file into a destination table,
// chunk by chunk, so the whole file never has to fit in memory.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"
	"github.com/johndauphine/taxi-ingest/internal/checkpoint"
	"github.com/johndauphine/taxi-ingest/internal/driver"
	"github.com/johndauphine/taxi-ingest/internal/ingesterr"
	"github.com/johndauphine/taxi-ingest/internal/logging"
	"github.com/johndauphine/taxi-ingest/internal/source"
	"github.com/johndauphine/taxi-ingest/internal/typemap"
)

// Config contains loader configuration.
type Config struct {
	// Table is the destination table name.
	Table string

	// Schema is the destination schema. Empty uses the connection default.
	Schema string

	// ChunkSize is the maximum number of rows per chunk.
	ChunkSize int

	// IncludeIndex prepends a bigint "index" column holding each row's
	// zero-based position in the source.
	IncludeIndex bool

	// Delimiter separates fields. Zero means comma.
	Delimiter rune

	// TypeMap declares column types. Nil means the yellow taxi map.
	TypeMap typemap.TypeMap

	// Open controls how Run fetches its location.
	Open source.OpenOptions

	// TargetType is recorded in run history.
	TargetType string
}

// Reporter receives progress notifications. *progress.Tracker implements it.
type Reporter interface {
	TableCreated(table string)
	ChunkInserted(seq int, n int)
	Done(table string)
}

type nopReporter struct{}

func (nopReporter) TableCreated(string)    {}
func (nopReporter) ChunkInserted(int, int) {}
func (nopReporter) Done(string)            {}

// Option configures a Loader.
type Option func(*Loader)

// WithReporter sets the progress reporter.
func WithReporter(r Reporter) Option {
	return func(l *Loader) {
		if r != nil {
			l.reporter = r
		}
	}
}

// WithHistory records the run and its chunks in b.
func WithHistory(b checkpoint.Backend) Option {
	return func(l *Loader) { l.history = b }
}

// WithRunID overrides the generated run ID.
func WithRunID(id string) Option {
	return func(l *Loader) { l.runID = id }
}

// Result summarises a finished (or failed) load.
type Result struct {
	RunID      string
	Table      string
	State      State
	Rows       int64
	Chunks     int
	ChunkSizes []int
	Stats      Stats

	// TableRows is the destination's own row count after the last chunk.
	// It is only meaningful when Validated is true.
	TableRows int64
	Validated bool
}

// Loader runs one ingest: replace the destination table from the source
// header, then append every chunk in source order. A Loader is single-use.
type Loader struct {
	writer   driver.Writer
	cfg      Config
	reporter Reporter
	history  checkpoint.Backend
	runID    string
	state    State
}

// New creates a Loader writing through w.
func New(w driver.Writer, cfg Config, opts ...Option) *Loader {
	if cfg.ChunkSize <= 0 {
		cfg.ChunkSize = source.DefaultChunkSize
	}
	if cfg.TypeMap == nil {
		cfg.TypeMap = typemap.YellowTaxi()
	}
	if cfg.TargetType == "" && w != nil {
		cfg.TargetType = w.DBType()
	}

	l := &Loader{
		writer:   w,
		cfg:      cfg,
		reporter: nopReporter{},
		state:    NotStarted,
	}
	for _, opt := range opts {
		opt(l)
	}
	if l.runID == "" {
		l.runID = uuid.NewString()
	}
	return l
}

// Ingest loads the file at location into targetTable with the yellow taxi
// type map and a row index column.
func Ingest(ctx context.Context, location string, w driver.Writer, targetTable string, chunkSize int) (*Result, error) {
	l := New(w, Config{
		Table:        targetTable,
		ChunkSize:    chunkSize,
		IncludeIndex: true,
	})
	return l.Run(ctx, location)
}

// State returns the loader's current state.
func (l *Loader) State() State {
	return l.state
}

// RunID returns the identifier recorded in run history.
func (l *Loader) RunID() string {
	return l.runID
}

// Run opens location (path, file://, http(s):// or s3://) and loads it.
func (l *Loader) Run(ctx context.Context, location string) (*Result, error) {
	return l.execute(ctx, location, func() (io.ReadCloser, error) {
		return source.Open(ctx, location, l.cfg.Open)
	})
}

// IngestReader loads from r, which may be gzip or zstd compressed.
func (l *Loader) IngestReader(ctx context.Context, r io.Reader) (*Result, error) {
	return l.execute(ctx, "reader", func() (io.ReadCloser, error) {
		rc, err := source.Decompress(io.NopCloser(r))
		if err != nil {
			return nil, ingesterr.Source("decompressing input", err)
		}
		return rc, nil
	})
}

func (l *Loader) execute(ctx context.Context, name string, open func() (io.ReadCloser, error)) (*Result, error) {
	if l.state != NotStarted {
		return nil, fmt.Errorf("loader already used (state %s)", l.state)
	}
	if err := driver.ValidateIdentifier(l.cfg.Table); err != nil {
		l.state = Failed
		return nil, ingesterr.Schema("validating table name", err)
	}

	l.startHistory(name)
	logging.Info("Ingesting %s into %s (chunk size %d)", name, l.tableName(), l.cfg.ChunkSize)

	res, err := l.load(ctx, open)
	res.RunID = l.runID
	if err != nil {
		l.state = Failed
		res.State = Failed
		l.finishHistory(err)
		return res, err
	}

	res.State = l.state
	l.finishHistory(nil)
	logging.Info("Ingested %d rows in %d chunks into %s: %s", res.Rows, res.Chunks, l.tableName(), res.Stats.String())
	return res, nil
}

func (l *Loader) load(ctx context.Context, open func() (io.ReadCloser, error)) (*Result, error) {
	res := &Result{Table: l.tableName()}

	rc, err := open()
	if err != nil {
		return res, ingesterr.Source("opening source", err)
	}
	defer rc.Close()

	reader := source.NewChunkReader(rc, source.ReaderOptions{
		ChunkSize: l.cfg.ChunkSize,
		Delimiter: l.cfg.Delimiter,
		TypeMap:   l.cfg.TypeMap,
	})

	chunk, err := l.next(ctx, reader, res)
	if err != nil && !errors.Is(err, io.EOF) {
		return res, err
	}

	table, err := l.destinationTable(reader.Columns())
	if err != nil {
		return res, err
	}

	start := time.Now()
	if err := l.resetSchema(ctx, table); err != nil {
		return res, err
	}
	res.Stats.SchemaTime = time.Since(start)

	for chunk != nil {
		if err := l.appendChunk(ctx, table, chunk, res); err != nil {
			return res, err
		}
		chunk, err = l.next(ctx, reader, res)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return res, err
		}
	}

	l.validateRowCount(ctx, table, res)

	if err := l.transition(Done); err != nil {
		return res, err
	}
	l.reporter.Done(l.tableName())
	return res, nil
}

// next reads one chunk, timing it. It returns io.EOF unwrapped.
func (l *Loader) next(ctx context.Context, reader *source.ChunkReader, res *Result) (*source.Chunk, error) {
	start := time.Now()
	chunk, err := reader.Next(ctx)
	res.Stats.ReadTime += time.Since(start)
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, io.EOF
		}
		return nil, ingesterr.Source("reading source", err)
	}
	return chunk, nil
}

// ValidationTimeout bounds the final row count query.
const ValidationTimeout = 2 * time.Minute

// validateRowCount compares the rows written with the destination's count.
// A difference is reported, not failed: the data is already committed.
func (l *Loader) validateRowCount(ctx context.Context, t *driver.Table, res *Result) {
	ctx, cancel := context.WithTimeout(ctx, ValidationTimeout)
	defer cancel()

	n, err := l.writer.RowCount(ctx, t)
	if err != nil {
		logging.Warn("%s row count skipped: %v", l.tableName(), err)
		return
	}
	res.TableRows = n
	res.Validated = true
	if n == res.Rows {
		logging.Info("%s OK %d rows", l.tableName(), n)
		return
	}
	logging.Warn("%s DIFF source=%d target=%d (diff=%d)", l.tableName(), res.Rows, n, res.Rows-n)
}

// resetSchema drops and recreates the destination table empty. It is the
// only destructive step and runs exactly once, before any row is written.
func (l *Loader) resetSchema(ctx context.Context, t *driver.Table) error {
	if err := l.transition(SchemaCreated); err != nil {
		return err
	}
	if err := l.writer.ResetSchema(ctx, t); err != nil {
		return ingesterr.Storage("creating table "+t.FullName(), err)
	}
	l.reporter.TableCreated(l.tableName())
	return nil
}

func (l *Loader) appendChunk(ctx context.Context, t *driver.Table, chunk *source.Chunk, res *Result) error {
	if err := l.transition(Appending); err != nil {
		return err
	}
	if err := l.checkColumns(t, chunk); err != nil {
		return err
	}

	rows := chunk.Rows
	if l.cfg.IncludeIndex {
		rows = make([][]any, len(chunk.Rows))
		for i, row := range chunk.Rows {
			withIndex := make([]any, 0, len(row)+1)
			withIndex = append(withIndex, chunk.FirstRow+int64(i))
			rows[i] = append(withIndex, row...)
		}
	}

	start := time.Now()
	n, err := l.writer.WriteChunk(ctx, t, rows)
	res.Stats.WriteTime += time.Since(start)
	if err != nil {
		return ingesterr.Storage(fmt.Sprintf("appending chunk %d", chunk.Seq), err)
	}

	res.Rows += n
	res.Chunks++
	res.ChunkSizes = append(res.ChunkSizes, int(n))
	res.Stats.Rows = res.Rows
	res.Stats.Chunks = res.Chunks

	logging.Debug("Chunk %d: %d rows (rows %d-%d)", chunk.Seq, n, chunk.FirstRow, chunk.FirstRow+n-1)
	l.reporter.ChunkInserted(chunk.Seq, int(n))
	l.recordChunk(chunk.Seq, int(n))
	return nil
}

// checkColumns verifies the chunk carries exactly the established columns.
func (l *Loader) checkColumns(t *driver.Table, chunk *source.Chunk) error {
	want := t.ColumnNames()
	if l.cfg.IncludeIndex {
		want = want[1:]
	}
	if len(chunk.Columns) != len(want) {
		return ingesterr.Schema(fmt.Sprintf("chunk %d", chunk.Seq),
			fmt.Errorf("has %d columns, table has %d", len(chunk.Columns), len(want)))
	}
	for i, c := range chunk.Columns {
		if c.Name != want[i] {
			return ingesterr.Schema(fmt.Sprintf("chunk %d", chunk.Seq),
				fmt.Errorf("column %d is %q, table has %q", i+1, c.Name, want[i]))
		}
	}
	return nil
}

// destinationTable derives the table layout from the source header.
func (l *Loader) destinationTable(cols []source.Column) (*driver.Table, error) {
	t := &driver.Table{Schema: l.cfg.Schema, Name: l.cfg.Table}
	if l.cfg.IncludeIndex {
		t.Columns = append(t.Columns, driver.Column{Name: driver.IndexColumn, Type: typemap.Int64})
	}
	for _, c := range cols {
		t.Columns = append(t.Columns, driver.Column{Name: c.Name, Type: c.Type, IsNullable: true})
	}

	seen := make(map[string]string, len(t.Columns))
	for _, c := range t.Columns {
		key := driver.IdentifierKey(c.Name)
		if prev, dup := seen[key]; dup {
			return nil, ingesterr.Schema("deriving table",
				fmt.Errorf("columns %q and %q both map to %q", prev, c.Name, key))
		}
		seen[key] = c.Name
	}
	return t, nil
}

func (l *Loader) transition(next State) error {
	if !l.state.CanTransition(next) {
		return fmt.Errorf("illegal loader transition %s -> %s", l.state, next)
	}
	l.state = next
	return nil
}

func (l *Loader) tableName() string {
	if l.cfg.Schema == "" {
		return l.cfg.Table
	}
	return l.cfg.Schema + "." + l.cfg.Table
}

func (l *Loader) startHistory(name string) {
	if l.history == nil {
		return
	}
	if err := l.history.CreateRun(l.runID, name, l.tableName(), l.cfg.TargetType, l.cfg.ChunkSize); err != nil {
		logging.Warn("Run history disabled: %v", err)
		l.history = nil
	}
}

func (l *Loader) recordChunk(seq, rows int) {
	if l.history == nil {
		return
	}
	if err := l.history.RecordChunk(l.runID, int64(seq), rows); err != nil {
		logging.Warn("Failed to record chunk %d: %v", seq, err)
	}
}

func (l *Loader) finishHistory(runErr error) {
	if l.history == nil {
		return
	}
	status, msg := checkpoint.StatusSuccess, ""
	if runErr != nil {
		status, msg = checkpoint.StatusFailed, runErr.Error()
	}
	if err := l.history.CompleteRun(l.runID, status, msg); err != nil {
		logging.Warn("Failed to complete run %s: %v", l.runID, err)
	}
}
