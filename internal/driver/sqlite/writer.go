package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/johndauphine/taxi-ingest/internal/dbconfig"
	"github.com/johndauphine/taxi-ingest/internal/driver"
	"github.com/johndauphine/taxi-ingest/internal/logging"
	// Register modernc SQLite driver with database/sql.
	_ "modernc.org/sqlite"
)

// Writer implements driver.Writer for SQLite.
type Writer struct {
	db         *sql.DB
	config     *dbconfig.TargetConfig
	dialect    *Dialect
	typeMapper driver.TypeMapper
}

// NewWriter opens (creating if needed) the SQLite file at cfg.Database.
func NewWriter(cfg *dbconfig.TargetConfig, opts driver.WriterOptions) (*Writer, error) {
	if cfg.Database == "" {
		return nil, fmt.Errorf("sqlite target requires database (file path)")
	}

	db, err := sql.Open("sqlite", BuildDSN(cfg.Database))
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	// One connection: SQLite has a single writer, and ":memory:" lives per connection.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	logging.Debug("Opened SQLite target: %s", cfg.Database)

	return &Writer{
		db:         db,
		config:     cfg,
		dialect:    &Dialect{},
		typeMapper: &TypeMapper{},
	}, nil
}

// Close closes the database.
func (w *Writer) Close() {
	w.db.Close()
}

// Ping tests the connection.
func (w *Writer) Ping(ctx context.Context) error {
	return w.db.PingContext(ctx)
}

// DBType returns the database type.
func (w *Writer) DBType() string {
	return "sqlite"
}

// DB returns the underlying database handle.
func (w *Writer) DB() *sql.DB {
	return w.db
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
	tx, err := w.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, "DROP TABLE IF EXISTS "+w.qualified(t)); err != nil {
		return fmt.Errorf("dropping table %s: %w", t.FullName(), err)
	}
	if _, err := tx.ExecContext(ctx, w.CreateTableSQL(t)); err != nil {
		return fmt.Errorf("creating table %s: %w", t.FullName(), err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing schema reset: %w", err)
	}
	logging.Debug("Reset table %s", w.qualified(t))
	return nil
}

func (w *Writer) insertSQL(t *driver.Table) string {
	cols := t.SanitizedColumnNames()
	quoted := make([]string, len(cols))
	for i, c := range cols {
		quoted[i] = w.dialect.QuoteIdentifier(c)
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(cols)), ", ")
	return fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)", w.qualified(t), strings.Join(quoted, ", "), placeholders)
}

// WriteChunk appends rows with a prepared INSERT inside one transaction.
func (w *Writer) WriteChunk(ctx context.Context, t *driver.Table, rows [][]any) (int64, error) {
	if len(rows) == 0 {
		return 0, nil
	}

	tx, err := w.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, w.insertSQL(t))
	if err != nil {
		return 0, fmt.Errorf("preparing insert into %s: %w", t.FullName(), err)
	}
	defer stmt.Close()

	for i, row := range rows {
		if _, err := stmt.ExecContext(ctx, row...); err != nil {
			return 0, fmt.Errorf("inserting row %d into %s: %w", i, t.FullName(), err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("committing chunk: %w", err)
	}
	return int64(len(rows)), nil
}

// RowCount returns the exact row count of t.
func (w *Writer) RowCount(ctx context.Context, t *driver.Table) (int64, error) {
	var count int64
	if err := w.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM "+w.qualified(t)).Scan(&count); err != nil {
		return 0, fmt.Errorf("counting rows in %s: %w", t.FullName(), err)
	}
	return count, nil
}
