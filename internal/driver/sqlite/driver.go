// Package sqlite provides the SQLite driver implementation on the pure-Go
// modernc.org/sqlite engine. It registers itself with the driver registry
// on import.
package sqlite

import (
	"github.com/johndauphine/taxi-ingest/internal/dbconfig"
	"github.com/johndauphine/taxi-ingest/internal/driver"
)

func init() {
	driver.Register(&Driver{})
}

// Driver implements driver.Driver for SQLite files.
type Driver struct{}

// Name returns the primary driver name.
func (d *Driver) Name() string {
	return "sqlite"
}

// Aliases returns alternative names for the driver.
func (d *Driver) Aliases() []string {
	return []string{"sqlite3"}
}

// Defaults returns the default configuration values for SQLite.
// SQLite has no server and no schemas.
func (d *Driver) Defaults() driver.DriverDefaults {
	return driver.DriverDefaults{}
}

// NewWriter opens the database file named by cfg.Database.
func (d *Driver) NewWriter(cfg *dbconfig.TargetConfig, opts driver.WriterOptions) (driver.Writer, error) {
	return NewWriter(cfg, opts)
}
