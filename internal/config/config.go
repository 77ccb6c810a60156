// Package config loads and validates the ingest configuration.
package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"
	"unicode/utf8"

	"gopkg.in/yaml.v3"

	"github.com/johndauphine/taxi-ingest/internal/dbconfig"
	"github.com/johndauphine/taxi-ingest/internal/driver"
	"github.com/johndauphine/taxi-ingest/internal/logging"
	"github.com/johndauphine/taxi-ingest/internal/typemap"
)

// Defaults for the NYC TLC yellow taxi course setup.
const (
	DefaultURLPrefix = "https://github.com/DataTalksClub/nyc-tlc-data/releases/download/yellow"
	DefaultYear      = 2021
	DefaultMonth     = 1
	DefaultTable     = "yellow_taxi_data"
	DefaultChunkSize = 100000
	DefaultHost      = "localhost"
	DefaultUser      = "root"
	DefaultPassword  = "root"
	DefaultDatabase  = "ny_taxi"
	DefaultTarget    = "postgres"
)

// TargetConfig is an alias so callers only need to import config.
type TargetConfig = dbconfig.TargetConfig

// Config is the full ingest configuration.
type Config struct {
	Source  SourceConfig  `yaml:"source"`
	Target  TargetConfig  `yaml:"target"`
	Ingest  IngestConfig  `yaml:"ingest"`
	Logging LoggingConfig `yaml:"logging"`
	State   StateConfig   `yaml:"state"`
}

// SourceConfig locates the input file.
type SourceConfig struct {
	URL       string        `yaml:"url"`        // explicit location; overrides the template
	URLPrefix string        `yaml:"url_prefix"` // release download prefix
	Year      int           `yaml:"year"`
	Month     int           `yaml:"month"`
	Delimiter string        `yaml:"delimiter"` // single character (default: ",")
	Timeout   time.Duration `yaml:"timeout"`   // HTTP download timeout (0 = none)
	S3Region  string        `yaml:"s3_region"`
}

// IngestConfig controls the loader.
type IngestConfig struct {
	Table        string            `yaml:"table"`
	ChunkSize    int               `yaml:"chunk_size"`
	IncludeIndex *bool             `yaml:"include_index"` // default: true
	Types        map[string]string `yaml:"types"`         // column -> int64|float64|string|timestamp
	ParseDates   []string          `yaml:"parse_dates"`   // columns read as timestamps
}

// LoggingConfig controls log output.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug|info|warn|error
	Format string `yaml:"format"` // text|json
}

// StateConfig controls run history.
type StateConfig struct {
	Path string `yaml:"path"` // SQLite file; empty disables history
}

// Default returns a configuration with every default applied.
func Default() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}

// Load reads a YAML file, expanding ${VAR} references from the environment,
// and applies defaults. It does not validate.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}
	cfg, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	return cfg, nil
}

// Parse decodes YAML config bytes and applies defaults.
func Parse(data []byte) (*Config, error) {
	expanded := os.ExpandEnv(string(data))

	cfg := &Config{}
	dec := yaml.NewDecoder(strings.NewReader(expanded))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, err
	}
	cfg.applyDefaults()
	return cfg, nil
}

// ApplyDefaults fills unset fields. It is safe to call more than once, for
// example after command-line overrides change the target type.
func (c *Config) ApplyDefaults() {
	c.applyDefaults()
}

func (c *Config) applyDefaults() {
	if c.Source.URLPrefix == "" {
		c.Source.URLPrefix = DefaultURLPrefix
	}
	if c.Source.Year == 0 {
		c.Source.Year = DefaultYear
	}
	if c.Source.Month == 0 {
		c.Source.Month = DefaultMonth
	}
	if c.Source.Delimiter == "" {
		c.Source.Delimiter = ","
	}

	if c.Target.Type == "" {
		c.Target.Type = DefaultTarget
	}
	if name, err := driver.Canonicalize(c.Target.Type); err == nil {
		c.Target.Type = name
	}
	if d, err := driver.Get(c.Target.Type); err == nil {
		defaults := d.Defaults()
		if c.Target.Port == 0 {
			c.Target.Port = defaults.Port
		}
		if c.Target.Schema == "" {
			c.Target.Schema = defaults.Schema
		}
		if c.Target.SSLMode == "" {
			c.Target.SSLMode = defaults.SSLMode
		}
	}
	if c.Target.Type == "sqlite" {
		if c.Target.Database == "" {
			c.Target.Database = DefaultDatabase + ".db"
		}
	} else {
		if c.Target.Host == "" {
			c.Target.Host = DefaultHost
		}
		if c.Target.User == "" {
			c.Target.User = DefaultUser
		}
		if c.Target.Password == "" {
			c.Target.Password = DefaultPassword
		}
		if c.Target.Database == "" {
			c.Target.Database = DefaultDatabase
		}
	}

	if c.Ingest.Table == "" {
		c.Ingest.Table = DefaultTable
	}
	if c.Ingest.ChunkSize == 0 {
		c.Ingest.ChunkSize = DefaultChunkSize
	}
	if c.Ingest.IncludeIndex == nil {
		on := true
		c.Ingest.IncludeIndex = &on
	}

	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "text"
	}
}

// SetTargetType switches the destination driver. Fields still holding the
// previous driver's defaults are cleared so the new driver's defaults apply.
func (c *Config) SetTargetType(t string) {
	if name, err := driver.Canonicalize(t); err == nil {
		t = name
	}
	if t == c.Target.Type {
		return
	}
	if d, err := driver.Get(c.Target.Type); err == nil {
		defaults := d.Defaults()
		if c.Target.Port == defaults.Port {
			c.Target.Port = 0
		}
		if c.Target.Schema == defaults.Schema {
			c.Target.Schema = ""
		}
		if c.Target.SSLMode == defaults.SSLMode {
			c.Target.SSLMode = ""
		}
	}
	if c.Target.Type == "sqlite" && c.Target.Database == DefaultDatabase+".db" {
		c.Target.Database = ""
	}
	if t == "sqlite" && c.Target.Database == DefaultDatabase {
		c.Target.Database = ""
	}
	c.Target.Type = t
	c.applyDefaults()
}

// Validate checks the configuration and returns every problem found.
func (c *Config) Validate() error {
	var errs []string

	if c.Source.URL == "" {
		if c.Source.Year <= 0 {
			errs = append(errs, fmt.Sprintf("source.year must be positive, got %d", c.Source.Year))
		}
		if c.Source.Month < 1 || c.Source.Month > 12 {
			errs = append(errs, fmt.Sprintf("source.month must be 1-12, got %d", c.Source.Month))
		}
	}
	if utf8.RuneCountInString(c.Source.Delimiter) != 1 {
		errs = append(errs, fmt.Sprintf("source.delimiter must be a single character, got %q", c.Source.Delimiter))
	}
	if c.Source.Timeout < 0 {
		errs = append(errs, "source.timeout cannot be negative")
	}

	if _, err := driver.Get(c.Target.Type); err != nil {
		errs = append(errs, "target.type: "+err.Error())
	}
	if c.Target.Type != "sqlite" && c.Target.Host == "" {
		errs = append(errs, "target.host is required")
	}
	if c.Target.Database == "" {
		errs = append(errs, "target.database is required")
	}
	if c.Target.Schema != "" {
		if err := driver.ValidateIdentifier(c.Target.Schema); err != nil {
			errs = append(errs, "target.schema: "+err.Error())
		}
	}

	if err := driver.ValidateIdentifier(c.Ingest.Table); err != nil {
		errs = append(errs, "ingest.table: "+err.Error())
	}
	if c.Ingest.ChunkSize <= 0 {
		errs = append(errs, fmt.Sprintf("ingest.chunk_size must be positive, got %d", c.Ingest.ChunkSize))
	}
	if _, err := c.TypeMap(); err != nil {
		errs = append(errs, "ingest.types: "+err.Error())
	}

	if _, err := logging.ParseLevel(c.Logging.Level); err != nil {
		errs = append(errs, "logging.level: "+err.Error())
	}
	if f := strings.ToLower(c.Logging.Format); f != "text" && f != "json" {
		errs = append(errs, fmt.Sprintf("logging.format must be text or json, got %q", c.Logging.Format))
	}

	if len(errs) > 0 {
		return fmt.Errorf("invalid config:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

// SourceURL returns the explicit source URL, or the monthly release file
// built from the prefix, year and month.
func (c *Config) SourceURL() string {
	if c.Source.URL != "" {
		return c.Source.URL
	}
	return fmt.Sprintf("%s/yellow_tripdata_%04d-%02d.csv.gz",
		strings.TrimRight(c.Source.URLPrefix, "/"), c.Source.Year, c.Source.Month)
}

// TypeMap returns the yellow taxi type map with configured overrides.
func (c *Config) TypeMap() (typemap.TypeMap, error) {
	m, err := typemap.YellowTaxi().Merge(c.Ingest.Types)
	if err != nil {
		return nil, err
	}
	for _, col := range c.Ingest.ParseDates {
		m[col] = typemap.Timestamp
	}
	return m, nil
}

// DelimiterRune returns the field delimiter as a rune.
func (c *Config) DelimiterRune() rune {
	r, _ := utf8.DecodeRuneInString(c.Source.Delimiter)
	if r == utf8.RuneError {
		return ','
	}
	return r
}

// IncludeIndex reports whether the row index column is written.
func (c *Config) IncludeIndex() bool {
	return c.Ingest.IncludeIndex == nil || *c.Ingest.IncludeIndex
}

// Summary returns a human-readable description with the password masked.
func (c *Config) Summary() string {
	t := c.Target.Redacted()
	var sb strings.Builder
	fmt.Fprintf(&sb, "source:  %s\n", c.SourceURL())
	if t.Type == "sqlite" {
		fmt.Fprintf(&sb, "target:  sqlite %s\n", t.Database)
	} else {
		fmt.Fprintf(&sb, "target:  %s %s@%s:%d/%s (schema %s)\n", t.Type, t.User, t.Host, t.Port, t.Database, t.Schema)
	}
	fmt.Fprintf(&sb, "table:   %s\n", c.Ingest.Table)
	fmt.Fprintf(&sb, "chunk:   %d rows\n", c.Ingest.ChunkSize)
	return sb.String()
}
