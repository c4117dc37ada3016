// Package config provides configuration management for the LeapREST CLI.
//
// Values are layered: defaults, then leaprest.yaml, then LEAPREST_
// environment variables, then flags the user actually set. An optional
// environments section overrides the base values for a named target.
package config

import (
	"github.com/leapstack-labs/leaprest/pkg/catalog"
	"github.com/leapstack-labs/leaprest/pkg/core"
)

// DatabaseConfig is an alias for the adapter connection configuration.
type DatabaseConfig = core.AdapterConfig

// DemoPolicy is an alias for the limits applied without a license.
type DemoPolicy = catalog.DemoPolicy

// ServerConfig holds configuration for the HTTP gateway.
type ServerConfig struct {
	Addr          string `koanf:"addr"`
	Watch         bool   `koanf:"watch"`
	SessionSecret string `koanf:"session_secret"`
	AnonRole      string `koanf:"anon_role"`
}

// Config holds all CLI configuration options.
type Config struct {
	// ProjectRoot is the directory relative paths resolve against.
	ProjectRoot string `koanf:"-"`

	Dialect          string               `koanf:"dialect"`
	SchemaFile       string               `koanf:"schema_file"`
	DBSchema         string               `koanf:"db_schema"`
	Root             string               `koanf:"root"`
	Role             string               `koanf:"role"`
	MaxRows          int                  `koanf:"max_rows"`
	License          string               `koanf:"license"`
	LicensePublicKey string               `koanf:"license_public_key"`
	Environment      string               `koanf:"environment"`
	Verbose          bool                 `koanf:"verbose"`
	OutputFormat     string               `koanf:"output"`
	Database         *DatabaseConfig      `koanf:"database"`
	Server           *ServerConfig        `koanf:"server"`
	Demo             DemoPolicy           `koanf:"demo"`
	Environments     map[string]EnvConfig `koanf:"environments"`
}

// EnvConfig holds environment-specific configuration overrides.
type EnvConfig struct {
	SchemaFile string          `koanf:"schema_file"`
	License    string          `koanf:"license"`
	Database   *DatabaseConfig `koanf:"database"`
}

// Default configuration values.
const (
	DefaultDialect    = "postgresql"
	DefaultDBSchema   = "public"
	DefaultRoot       = "/"
	DefaultRole       = "anonymous"
	DefaultSchemaFile = "schema.json"
	DefaultAddr       = ":3000"
	DefaultOutput     = "auto" // Auto-detect: TTY=text, non-TTY=markdown
)

// GetServerConfig returns the server config with defaults applied for any unset values.
func (c *Config) GetServerConfig() *ServerConfig {
	s := &ServerConfig{}
	if c.Server != nil {
		*s = *c.Server
	}
	if s.Addr == "" {
		s.Addr = DefaultAddr
	}
	if s.AnonRole == "" {
		s.AnonRole = c.Role
	}
	return s
}
