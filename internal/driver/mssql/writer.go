package mssql

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/johndauphine/taxi-ingest/internal/dbconfig"
	"github.com/johndauphine/taxi-ingest/internal/driver"
	"github.com/johndauphine/taxi-ingest/internal/logging"
	mssql "github.com/microsoft/go-mssqldb"
)

// Writer implements driver.Writer for SQL Server.
type Writer struct {
	db         *sql.DB
	config     *dbconfig.TargetConfig
	dialect    *Dialect
	typeMapper driver.TypeMapper
}

// NewWriter creates a new SQL Server writer.
func NewWriter(cfg *dbconfig.TargetConfig, opts driver.WriterOptions) (*Writer, error) {
	dialect := &Dialect{}
	dsn := dialect.BuildDSN(cfg.Host, cfg.Port, cfg.Database, cfg.User, cfg.Password, cfg.DSNOptions())

	db, err := sql.Open("sqlserver", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening connection: %w", err)
	}

	if opts.MaxConns > 0 {
		db.SetMaxOpenConns(opts.MaxConns)
	}
	db.SetConnMaxLifetime(30 * time.Minute)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	logging.Debug("Connected to MSSQL target: %s:%d/%s", cfg.Host, cfg.Port, cfg.Database)

	return &Writer{
		db:         db,
		config:     cfg,
		dialect:    dialect,
		typeMapper: &TypeMapper{},
	}, nil
}

// Close closes all connections.
func (w *Writer) Close() {
	w.db.Close()
}

// Ping tests the connection.
func (w *Writer) Ping(ctx context.Context) error {
	return w.db.PingContext(ctx)
}

// DBType returns the database type.
func (w *Writer) DBType() string {
	return "mssql"
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
	if t.Schema != "" && t.Schema != "dbo" {
		if err := w.createSchema(ctx, t.Schema); err != nil {
			return fmt.Errorf("creating schema %s: %w", t.Schema, err)
		}
	}

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

// createSchema runs CREATE SCHEMA outside the table transaction; SQL Server
// requires it to be the only statement in its batch.
func (w *Writer) createSchema(ctx context.Context, schema string) error {
	var exists int
	err := w.db.QueryRowContext(ctx,
		"SELECT 1 FROM sys.schemas WHERE name = @schema",
		sql.Named("schema", schema)).Scan(&exists)
	if err == sql.ErrNoRows {
		_, err = w.db.ExecContext(ctx, "CREATE SCHEMA "+w.dialect.QuoteIdentifier(schema))
		return err
	}
	return err
}

// WriteChunk appends rows with the TDS bulk copy protocol.
func (w *Writer) WriteChunk(ctx context.Context, t *driver.Table, rows [][]any) (int64, error) {
	if len(rows) == 0 {
		return 0, nil
	}

	conn, err := w.db.Conn(ctx)
	if err != nil {
		return 0, fmt.Errorf("getting connection: %w", err)
	}
	defer conn.Close()

	var written int64
	err = conn.Raw(func(driverConn any) error {
		mssqlConn, ok := driverConn.(*mssql.Conn)
		if !ok {
			return fmt.Errorf("expected *mssql.Conn, got %T", driverConn)
		}

		bulk := mssqlConn.CreateBulkContext(ctx, w.qualified(t), t.SanitizedColumnNames())
		bulk.Options.Tablock = true
		bulk.Options.RowsPerBatch = len(rows)

		for _, row := range rows {
			if err := bulk.AddRow(row); err != nil {
				return fmt.Errorf("adding row: %w", err)
			}
		}

		n, err := bulk.Done()
		written = n
		if err != nil {
			return fmt.Errorf("finalizing bulk insert: %w", err)
		}
		if n != int64(len(rows)) {
			return fmt.Errorf("bulk insert: expected %d rows, got %d", len(rows), n)
		}
		return nil
	})
	if err != nil {
		return written, fmt.Errorf("bulk copy into %s: %w", t.FullName(), err)
	}
	return written, nil
}

// RowCount returns the exact row count of t.
func (w *Writer) RowCount(ctx context.Context, t *driver.Table) (int64, error) {
	var count int64
	if err := w.db.QueryRowContext(ctx, "SELECT COUNT_BIG(*) FROM "+w.qualified(t)).Scan(&count); err != nil {
		return 0, fmt.Errorf("counting rows in %s: %w", t.FullName(), err)
	}
	return count, nil
}
