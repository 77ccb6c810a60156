// Package dbconfig provides database configuration types used by both
// the config and driver packages. This package exists to break the
// circular import between config and driver packages.
package dbconfig

// TargetConfig holds destination database connection settings.
type TargetConfig struct {
	Type     string `yaml:"type"` // "postgres", "mssql" or "sqlite" (default: postgres)
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Database string `yaml:"database"` // SQLite: path to the database file
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Schema   string `yaml:"schema"`
	SSLMode  string `yaml:"ssl_mode"` // PostgreSQL: disable, require, verify-ca, verify-full
	// MSSQL only
	TrustServerCert bool  `yaml:"trust_server_cert"` // trust server certificate (default: false)
	Encrypt         *bool `yaml:"encrypt"`           // enable TLS encryption (default: driver default)
	// Extra DSN parameters appended verbatim, e.g. application_name for PostgreSQL.
	Params map[string]string `yaml:"params"`
}

// DSNOptions returns a map of options for building a DSN.
func (c *TargetConfig) DSNOptions() map[string]any {
	opts := make(map[string]any)
	if c.SSLMode != "" {
		opts["sslmode"] = c.SSLMode
	}
	if c.Encrypt != nil {
		opts["encrypt"] = *c.Encrypt
	}
	if c.TrustServerCert {
		opts["trustServerCertificate"] = true
	}
	for k, v := range c.Params {
		opts[k] = v
	}
	return opts
}

// Redacted returns a copy with the password masked, for logging.
func (c TargetConfig) Redacted() TargetConfig {
	if c.Password != "" {
		c.Password = "****"
	}
	return c
}
