package postgres

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/johndauphine/taxi-ingest/internal/dbconfig"
	"github.com/johndauphine/taxi-ingest/internal/driver"
	"github.com/johndauphine/taxi-ingest/internal/logging"
)

// DB is the subset of *pgxpool.Pool the writer uses.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Begin(ctx context.Context) (pgx.Tx, error)
	CopyFrom(ctx context.Context, tableName pgx.Identifier, columnNames []string, rowSrc pgx.CopyFromSource) (int64, error)
	Ping(ctx context.Context) error
	Close()
}

// Writer implements driver.Writer for PostgreSQL.
type Writer struct {
	db         DB
	config     *dbconfig.TargetConfig
	dialect    *Dialect
	typeMapper driver.TypeMapper
}

// NewWriter creates a new PostgreSQL writer backed by a pgx pool.
func NewWriter(cfg *dbconfig.TargetConfig, opts driver.WriterOptions) (*Writer, error) {
	dialect := &Dialect{}
	dsn := dialect.BuildDSN(cfg.Host, cfg.Port, cfg.Database, cfg.User, cfg.Password, cfg.DSNOptions())

	poolCfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parsing dsn: %w", err)
	}
	if opts.MaxConns > 0 {
		poolCfg.MaxConns = int32(opts.MaxConns)
	}

	pool, err := pgxpool.NewWithConfig(context.Background(), poolCfg)
	if err != nil {
		return nil, fmt.Errorf("creating pool: %w", err)
	}

	if err := pool.Ping(context.Background()); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	logging.Debug("Connected to PostgreSQL target: %s:%d/%s", cfg.Host, cfg.Port, cfg.Database)

	return NewWriterWithDB(pool, cfg), nil
}

// NewWriterWithDB wraps an existing connection pool.
func NewWriterWithDB(db DB, cfg *dbconfig.TargetConfig) *Writer {
	return &Writer{
		db:         db,
		config:     cfg,
		dialect:    &Dialect{},
		typeMapper: &TypeMapper{},
	}
}

// Close closes all connections.
func (w *Writer) Close() {
	w.db.Close()
}

// Ping tests the connection.
func (w *Writer) Ping(ctx context.Context) error {
	return w.db.Ping(ctx)
}

// DBType returns the database type.
func (w *Writer) DBType() string {
	return "postgres"
}

func (w *Writer) qualified(t *driver.Table) string {
	return w.dialect.QualifyTable(t.Schema, driver.SanitizeIdentifier(t.Name))
}

// CreateTableSQL returns the CREATE TABLE statement for t.
func (w *Writer) CreateTableSQL(t *driver.Table) string {
	defs := driver.ColumnDefinitions(t, w.dialect.QuoteIdentifier, w.typeMapper)
	return fmt.Sprintf("CREATE TABLE %s (\n    %s\n)", w.qualified(t), strings.Join(defs, ",\n    "))
}

// ResetSchema drops t if it exists and recreates it empty, in one transaction.
func (w *Writer) ResetSchema(ctx context.Context, t *driver.Table) error {
	tx, err := w.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if t.Schema != "" && t.Schema != "public" {
		if _, err := tx.Exec(ctx, "CREATE SCHEMA IF NOT EXISTS "+w.dialect.QuoteIdentifier(t.Schema)); err != nil {
			return fmt.Errorf("creating schema %s: %w", t.Schema, err)
		}
	}
	if _, err := tx.Exec(ctx, "DROP TABLE IF EXISTS "+w.qualified(t)); err != nil {
		return fmt.Errorf("dropping table %s: %w", t.FullName(), err)
	}
	if _, err := tx.Exec(ctx, w.CreateTableSQL(t)); err != nil {
		return fmt.Errorf("creating table %s: %w", t.FullName(), err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("committing schema reset: %w", err)
	}
	logging.Debug("Reset table %s", w.qualified(t))
	return nil
}

// WriteChunk appends rows using the COPY protocol.
func (w *Writer) WriteChunk(ctx context.Context, t *driver.Table, rows [][]any) (int64, error) {
	if len(rows) == 0 {
		return 0, nil
	}
	ident := pgx.Identifier{driver.SanitizeIdentifier(t.Name)}
	if t.Schema != "" {
		ident = pgx.Identifier{t.Schema, driver.SanitizeIdentifier(t.Name)}
	}

	n, err := w.db.CopyFrom(ctx, ident, t.SanitizedColumnNames(), pgx.CopyFromRows(rows))
	if err != nil {
		return n, fmt.Errorf("copy into %s: %w", t.FullName(), err)
	}
	if n != int64(len(rows)) {
		return n, fmt.Errorf("copy into %s: wrote %d of %d rows", t.FullName(), n, len(rows))
	}
	return n, nil
}

// RowCount returns the exact row count of t.
func (w *Writer) RowCount(ctx context.Context, t *driver.Table) (int64, error) {
	var count int64
	if err := w.db.QueryRow(ctx, "SELECT COUNT(*) FROM "+w.qualified(t)).Scan(&count); err != nil {
		return 0, fmt.Errorf("counting rows in %s: %w", t.FullName(), err)
	}
	return count, nil
}
