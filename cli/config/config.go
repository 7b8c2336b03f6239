// Package config loads and saves the cqrs CLI configuration file.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

// ConfigFileName is the default config file name.
const ConfigFileName = "cqrs.yaml"

// Storage drivers.
const (
	DriverPostgres = "postgres"
	DriverMemory   = "memory"
)

// SQL drivers usable with the postgres storage driver.
const (
	SQLDriverPgx = "pgx"
	SQLDriverPq  = "postgres"
)

// Serializers.
const (
	SerializerJSON     = "json"
	SerializerMsgpack  = "msgpack"
	SerializerProtobuf = "protobuf"
)

// ErrNotFound is returned by FindConfig when no config file exists in the
// directory or any of its parents.
var ErrNotFound = errors.New("config: " + ConfigFileName + " not found")

// Config represents the cqrs CLI configuration.
type Config struct {
	// Version of the config file format
	Version string `yaml:"version"`

	Project  ProjectConfig  `yaml:"project"`
	Database DatabaseConfig `yaml:"database"`
	Store    StoreConfig    `yaml:"store"`
}

// ProjectConfig contains project-level settings.
type ProjectConfig struct {
	Name string `yaml:"name"`
}

// DatabaseConfig contains database connection settings.
type DatabaseConfig struct {
	// Driver is the storage driver (postgres, memory).
	Driver string `yaml:"driver"`

	// SQLDriver selects the database/sql driver for postgres (pgx, postgres).
	SQLDriver string `yaml:"sql_driver,omitempty"`

	// URL is the connection string. ${VAR} references are expanded.
	URL string `yaml:"url,omitempty"`

	// Schema is the PostgreSQL schema holding the event store tables.
	Schema string `yaml:"schema"`
}

// StoreConfig contains event store settings.
type StoreConfig struct {
	// Serializer is the event payload encoding (json, msgpack, protobuf).
	Serializer string `yaml:"serializer"`
}

// Overrides are the environment variables that take precedence over the file.
type Overrides struct {
	DatabaseURL       string `env:"CQRS_DATABASE_URL"`
	DatabaseSchema    string `env:"CQRS_DATABASE_SCHEMA"`
	DatabaseDriver    string `env:"CQRS_DATABASE_DRIVER"`
	DatabaseSQLDriver string `env:"CQRS_DATABASE_SQL_DRIVER"`
	Serializer        string `env:"CQRS_SERIALIZER"`
}

// DefaultConfig returns a default configuration.
func DefaultConfig() *Config {
	return &Config{
		Version: "1",
		Project: ProjectConfig{
			Name: "my-cqrs-app",
		},
		Database: DatabaseConfig{
			Driver:    DriverPostgres,
			SQLDriver: SQLDriverPgx,
			URL:       "${DATABASE_URL}",
			Schema:    "cqrs",
		},
		Store: StoreConfig{
			Serializer: SerializerJSON,
		},
	}
}

// Load loads configuration from the specified directory.
func Load(dir string) (*Config, error) {
	return LoadFile(filepath.Join(dir, ConfigFileName))
}

// LoadFile loads configuration from a specific file path. Fields missing
// from the file keep their defaults and environment overrides are applied.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}

	if err := cfg.ApplyEnv(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyEnv overrides fields with the CQRS_* environment variables that are set.
func (c *Config) ApplyEnv() error {
	var o Overrides
	if err := env.Parse(&o); err != nil {
		return fmt.Errorf("config: environment: %w", err)
	}

	set := func(dst *string, v string) {
		if v != "" {
			*dst = v
		}
	}
	set(&c.Database.URL, o.DatabaseURL)
	set(&c.Database.Schema, o.DatabaseSchema)
	set(&c.Database.Driver, o.DatabaseDriver)
	set(&c.Database.SQLDriver, o.DatabaseSQLDriver)
	set(&c.Store.Serializer, o.Serializer)
	return nil
}

// Save saves the configuration to the specified directory.
func (c *Config) Save(dir string) error {
	return c.SaveFile(filepath.Join(dir, ConfigFileName))
}

// SaveFile saves the configuration to a specific file path.
func (c *Config) SaveFile(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return err
	}

	header := []byte("# cqrs CLI configuration\n# CQRS_DATABASE_URL, CQRS_DATABASE_SCHEMA and CQRS_DATABASE_DRIVER override the values below.\n\n")
	return os.WriteFile(path, append(header, data...), 0o644)
}

// ResolvedURL returns the database URL with environment references expanded.
func (c *Config) ResolvedURL() string {
	return os.ExpandEnv(c.Database.URL)
}

// Exists checks if a config file exists in the directory.
func Exists(dir string) bool {
	_, err := os.Stat(filepath.Join(dir, ConfigFileName))
	return err == nil
}

// FindConfig searches for a config file starting from dir and going up.
// It returns the directory holding the file.
func FindConfig(dir string) (string, *Config, error) {
	current := dir
	for {
		path := filepath.Join(current, ConfigFileName)
		if _, err := os.Stat(path); err == nil {
			cfg, err := LoadFile(path)
			if err != nil {
				return "", nil, err
			}
			return current, cfg, nil
		}

		parent := filepath.Dir(current)
		if parent == current {
			return "", nil, ErrNotFound
		}
		current = parent
	}
}

// Validate returns every problem found in the configuration.
func (c *Config) Validate() []string {
	var problems []string

	if c.Project.Name == "" {
		problems = append(problems, "project.name is required")
	}

	switch c.Database.Driver {
	case DriverMemory:
	case DriverPostgres:
		if c.ResolvedURL() == "" {
			problems = append(problems, "database.url is required for the postgres driver")
		}
		if c.Database.SQLDriver != "" && c.Database.SQLDriver != SQLDriverPgx && c.Database.SQLDriver != SQLDriverPq {
			problems = append(problems, "database.sql_driver must be 'pgx' or 'postgres'")
		}
	case "":
		problems = append(problems, "database.driver is required")
	default:
		problems = append(problems, "database.driver must be 'postgres' or 'memory'")
	}

	switch c.Store.Serializer {
	case "", SerializerJSON, SerializerMsgpack, SerializerProtobuf:
	default:
		problems = append(problems, "store.serializer must be 'json', 'msgpack' or 'protobuf'")
	}

	return problems
}
