// Package config loads the PDP configuration from YAML and the environment.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Environment variables read by LoadFromEnv.
const (
	EnvPort          = "PORT"
	EnvPolicyStoreID = "POLICY_STORE_ID"
	EnvEntities      = "ENTITIES_TABLE_NAME"
	EnvAWSRegion     = "AWS_REGION"
)

// EngineKind names a decision engine backend.
type EngineKind string

const (
	EngineLocal EngineKind = "local" // policies from a directory of .cedar files
	EngineAVP   EngineKind = "avp"   // Amazon Verified Permissions policy store
)

// EntitiesKind names an entity provider backend.
type EntitiesKind string

const (
	EntitiesNone     EntitiesKind = ""
	EntitiesMemory   EntitiesKind = "memory"
	EntitiesSQLite   EntitiesKind = "sqlite"
	EntitiesRedis    EntitiesKind = "redis"
	EntitiesDynamoDB EntitiesKind = "dynamodb"
)

const sqliteScheme = "sqlite://"

// Config holds PDP configuration.
type Config struct {
	// Listen is the HTTP listen address (e.g., ":3000")
	Listen string `yaml:"listen"`

	// PolicyStoreID is a policy directory for the local engine or a
	// Verified Permissions policy store id.
	PolicyStoreID string `yaml:"policy_store_id"`

	// Entities selects the entity provider: a cedarentities.json file or its
	// directory, sqlite://<path>, redis://..., or a DynamoDB table name.
	Entities string `yaml:"entities"`

	// Schema is an optional cedarschema or cedarschema.json path.
	Schema string `yaml:"schema"`

	// AWSRegion overrides the SDK's default region resolution.
	AWSRegion string `yaml:"aws_region"`

	// ParentHops limits ancestor expansion for keyed stores. 0 is unlimited.
	ParentHops int `yaml:"parent_hops"`

	Search SearchConfig `yaml:"search"`
	Log    LogConfig    `yaml:"log"`
	Audit  AuditConfig  `yaml:"audit"`
}

// SearchConfig tunes the search operations.
type SearchConfig struct {
	PageSize    int `yaml:"page_size"`
	Concurrency int `yaml:"concurrency"`
}

// LogConfig selects the slog handler.
type LogConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // text or json
}

// AuditConfig adds decision audit destinations beyond the slog trail.
type AuditConfig struct {
	DB     string `yaml:"db"`     // SQLite audit log path
	Syslog string `yaml:"syslog"` // syslog socket, e.g. /dev/log
}

// DefaultConfig returns configuration with defaults.
func DefaultConfig() *Config {
	return &Config{
		Listen: ":3000",
		Search: SearchConfig{PageSize: 50, Concurrency: 8},
		Log:    LogConfig{Level: "info", Format: "text"},
	}
}

// Load reads the YAML file at path over the defaults, then applies
// environment overrides. An empty path skips the file.
func Load(path string) (*Config, error) {
	c := DefaultConfig()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("config load: %w", err)
		}
		if err := yaml.Unmarshal(data, c); err != nil {
			return nil, fmt.Errorf("config unmarshal: %w", err)
		}
	}
	c.LoadFromEnv(os.Getenv)
	return c, nil
}

// LoadFromEnv applies the environment variables that are set.
func (c *Config) LoadFromEnv(getenv func(string) string) {
	if v := getenv(EnvPort); v != "" {
		c.Listen = ":" + strings.TrimPrefix(v, ":")
	}
	if v := getenv(EnvPolicyStoreID); v != "" {
		c.PolicyStoreID = v
	}
	if v := getenv(EnvEntities); v != "" {
		c.Entities = v
	}
	if v := getenv(EnvAWSRegion); v != "" {
		c.AWSRegion = v
	}
}

// Validate checks configuration for errors.
func (c *Config) Validate() error {
	if c.Listen == "" {
		return errors.New("listen address is required")
	}
	if c.PolicyStoreID == "" {
		return fmt.Errorf("policy_store_id is required (or set %s)", EnvPolicyStoreID)
	}
	if c.ParentHops < 0 {
		return errors.New("parent_hops must not be negative")
	}
	if c.Search.PageSize < 0 || c.Search.Concurrency < 0 {
		return errors.New("search.page_size and search.concurrency must not be negative")
	}
	if _, err := c.LogLevel(); err != nil {
		return err
	}
	switch c.Log.Format {
	case "", "text", "json":
	default:
		return fmt.Errorf("log.format must be text or json, got %q", c.Log.Format)
	}
	if c.EntitiesKind() == EntitiesSQLite && c.SQLitePath() == "" {
		return errors.New("entities: sqlite:// requires a path")
	}
	return nil
}

// LogLevel parses Log.Level. Empty means info.
func (c *Config) LogLevel() (slog.Level, error) {
	var level slog.Level
	if c.Log.Level == "" {
		return slog.LevelInfo, nil
	}
	if err := level.UnmarshalText([]byte(c.Log.Level)); err != nil {
		return 0, fmt.Errorf("log.level: %w", err)
	}
	return level, nil
}

// EngineKind reports the engine selected by PolicyStoreID: an existing
// directory selects the local engine.
func (c *Config) EngineKind() EngineKind {
	if isDir(c.PolicyStoreID) {
		return EngineLocal
	}
	return EngineAVP
}

// EntitiesKind reports the provider selected by Entities.
func (c *Config) EntitiesKind() EntitiesKind {
	e := c.Entities
	switch {
	case e == "":
		return EntitiesNone
	case strings.HasPrefix(e, sqliteScheme):
		return EntitiesSQLite
	case strings.HasPrefix(e, "redis://"), strings.HasPrefix(e, "rediss://"):
		return EntitiesRedis
	case strings.HasSuffix(e, ".json"), isDir(e):
		return EntitiesMemory
	}
	return EntitiesDynamoDB
}

// SQLitePath returns the database path of a sqlite:// entities value.
func (c *Config) SQLitePath() string {
	return strings.TrimPrefix(c.Entities, sqliteScheme)
}

// EntitiesDir returns the directory holding the entities file of a memory
// provider, where a sibling schema is looked up.
func (c *Config) EntitiesDir() string {
	if isDir(c.Entities) {
		return c.Entities
	}
	return filepath.Dir(c.Entities)
}

// EntitiesFile returns the entities document of a memory provider.
func (c *Config) EntitiesFile(defaultName string) string {
	if isDir(c.Entities) {
		return filepath.Join(c.Entities, defaultName)
	}
	return c.Entities
}

func isDir(path string) bool {
	if path == "" {
		return false
	}
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}
