// Package driver provides pluggable destination database abstractions.
// Each database (PostgreSQL, SQL Server, SQLite) implements the Driver
// interface and registers itself on import.
package driver

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/johndauphine/taxi-ingest/internal/dbconfig"
)

// DriverDefaults contains default values for a database driver.
// Used by config.applyDefaults() to set sensible defaults for each database type.
type DriverDefaults struct {
	// Port is the default port (e.g., 5432 for PostgreSQL, 1433 for MSSQL).
	Port int

	// Schema is the default schema (e.g., "public" for PostgreSQL, "dbo" for MSSQL).
	Schema string

	// SSLMode is the default SSL mode for PostgreSQL-style connections.
	SSLMode string
}

// Driver represents a pluggable destination database.
//
// To add a new database:
// 1. Create a package under internal/driver/<dbname>/
// 2. Implement the Driver interface
// 3. Register via init(): driver.Register(&MyDriver{})
type Driver interface {
	// Name returns the primary driver name (e.g., "postgres", "mssql").
	Name() string

	// Aliases returns alternative names for this driver.
	Aliases() []string

	// Defaults returns the default configuration values for this driver.
	Defaults() DriverDefaults

	// NewWriter connects to the destination and returns a Writer.
	NewWriter(cfg *dbconfig.TargetConfig, opts WriterOptions) (Writer, error)
}

// WriterOptions contains options for creating a Writer.
type WriterOptions struct {
	// MaxConns caps the connection pool. The loader is sequential, so one
	// connection is enough; a second lets Ping run beside a long COPY.
	MaxConns int
}

// Writer writes chunks into a destination table.
type Writer interface {
	// ResetSchema drops the table if it exists and creates it empty from t.
	// This is destructive: any rows in an existing table of that name are lost.
	ResetSchema(ctx context.Context, t *Table) error

	// WriteChunk appends rows to t and returns the number of rows written.
	// Each row holds one value per column of t, in order.
	WriteChunk(ctx context.Context, t *Table, rows [][]any) (int64, error)

	// RowCount returns the exact number of rows in t.
	RowCount(ctx context.Context, t *Table) (int64, error)

	// Ping tests the connection.
	Ping(ctx context.Context) error

	// DBType returns the registered driver name.
	DBType() string

	// Close releases all connections.
	Close()
}

var (
	registryMu sync.RWMutex
	registry   = make(map[string]Driver)
	primary    = make(map[string]Driver)
)

// Register makes a driver available by its name and aliases.
// It panics on duplicate names, which can only happen through a coding error.
func Register(d Driver) {
	registryMu.Lock()
	defer registryMu.Unlock()

	names := append([]string{d.Name()}, d.Aliases()...)
	for _, n := range names {
		key := strings.ToLower(n)
		if _, dup := registry[key]; dup {
			panic(fmt.Sprintf("driver: Register called twice for %q", n))
		}
		registry[key] = d
	}
	primary[d.Name()] = d
}

// Get returns the driver registered under name or one of its aliases.
func Get(name string) (Driver, error) {
	registryMu.RLock()
	defer registryMu.RUnlock()

	if d, ok := registry[strings.ToLower(name)]; ok {
		return d, nil
	}
	return nil, fmt.Errorf("unsupported target type %q (available: %s)", name, strings.Join(namesLocked(), ", "))
}

// Canonicalize returns the primary name for name or an alias.
func Canonicalize(name string) (string, error) {
	d, err := Get(name)
	if err != nil {
		return "", err
	}
	return d.Name(), nil
}

// Names returns the primary names of all registered drivers, sorted.
func Names() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()
	return namesLocked()
}

func namesLocked() []string {
	names := make([]string, 0, len(primary))
	for n := range primary {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Open looks up the driver for cfg.Type and creates a writer.
func Open(cfg *dbconfig.TargetConfig, opts WriterOptions) (Writer, error) {
	d, err := Get(cfg.Type)
	if err != nil {
		return nil, err
	}
	if opts.MaxConns <= 0 {
		opts.MaxConns = 2
	}
	return d.NewWriter(cfg, opts)
}
