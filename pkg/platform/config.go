// Package platform wires the presence hub, its relationship store, and the
// HTTP surface into one runnable server.
package platform

import (
	"fmt"
	"os"
	"regexp"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds the complete server configuration.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Auth     AuthConfig     `yaml:"auth"`
	Database DatabaseConfig `yaml:"database"`
	Presence PresenceConfig `yaml:"presence"`
	Audit    AuditConfig    `yaml:"audit"`
	Admin    AdminConfig    `yaml:"admin"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// ServerConfig configures the HTTP listener.
type ServerConfig struct {
	Address         string        `yaml:"address"`
	Path            string        `yaml:"path"`    // WebSocket endpoint
	Channel         string        `yaml:"channel"` // required assertion audience
	AllowedOrigins  []string      `yaml:"allowed_origins"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// AuthConfig configures identity assertion verification. Exactly one of
// PublicKeyFile (RS256) or SigningKey (HS256) must be set.
type AuthConfig struct {
	PublicKeyFile string        `yaml:"public_key_file"`
	SigningKey    string        `yaml:"signing_key"`
	Leeway        time.Duration `yaml:"leeway"`
}

// DatabaseConfig configures the relationship store. An empty DSN selects the
// in-memory store.
type DatabaseConfig struct {
	DSN          string   `yaml:"dsn"`
	MaxOpenConns int      `yaml:"max_open_conns"`
	Migrate      bool     `yaml:"migrate"`
	Identities   []string `yaml:"identities"` // registered at startup
}

// PresenceConfig tunes the hub.
type PresenceConfig struct {
	ProbeInterval time.Duration `yaml:"probe_interval"`
	MaxTextLength int           `yaml:"max_text_length"`
	StoreTimeout  time.Duration `yaml:"store_timeout"`
	QueueSize     int           `yaml:"queue_size"`
}

// AuditConfig configures the audit trail of authentication attempts and
// relationship changes. Events go to the database when one is configured and
// to a bounded in-memory log otherwise.
type AuditConfig struct {
	Enabled         bool          `yaml:"enabled"`
	RetentionDays   int           `yaml:"retention_days"`
	CleanupInterval time.Duration `yaml:"cleanup_interval"`
	MemoryCapacity  int           `yaml:"memory_capacity"`
}

// AdminConfig configures the admin REST API served under /api/v1/admin.
type AdminConfig struct {
	Enabled bool        `yaml:"enabled"`
	APIKeys []APIKeyDef `yaml:"api_keys"`
}

// APIKeyDef defines an admin API key, given either in plain text or as a
// bcrypt hash.
type APIKeyDef struct {
	Key     string `yaml:"key"`
	KeyHash string `yaml:"key_hash"`
	Name    string `yaml:"name"`
}

// LoggingConfig configures the default slog logger.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // text, json
}

// Defaults applied to empty fields.
const (
	DefaultAddress         = ":3001"
	DefaultPath            = "/chat"
	DefaultChannel         = "chat"
	DefaultShutdownTimeout = 15 * time.Second
	DefaultMaxOpenConns    = 25
	DefaultProbeInterval   = 10 * time.Second
	DefaultMaxTextLength   = 2000
	DefaultStoreTimeout    = 5 * time.Second
	DefaultRetentionDays   = 90
	DefaultCleanupInterval = 24 * time.Hour
	DefaultLogLevel        = "info"
	DefaultLogFormat       = "text"
)

// LoadConfig loads configuration from a file.
// The path is expected to come from command line arguments, controlled by the administrator.
func LoadConfig(path string) (*Config, error) {
	// #nosec G304 -- path is from CLI args, controlled by admin
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	return ParseConfig(data)
}

// ParseConfig parses YAML configuration, expanding ${VAR} references first.
func ParseConfig(data []byte) (*Config, error) {
	data = []byte(expandEnvVars(string(data)))

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	applyDefaults(&cfg)

	return &cfg, nil
}

// DefaultConfig returns a configuration with every default applied.
func DefaultConfig() *Config {
	var cfg Config
	applyDefaults(&cfg)
	return &cfg
}

var envVarPattern = regexp.MustCompile(`\$\{([^}]+)\}`)

// expandEnvVars expands ${VAR} patterns in the string.
func expandEnvVars(s string) string {
	return envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		varName := match[2 : len(match)-1]
		return os.Getenv(varName)
	})
}

// applyDefaults applies default values to the config.
func applyDefaults(cfg *Config) {
	if cfg.Server.Address == "" {
		cfg.Server.Address = DefaultAddress
	}
	if cfg.Server.Path == "" {
		cfg.Server.Path = DefaultPath
	}
	if cfg.Server.Channel == "" {
		cfg.Server.Channel = DefaultChannel
	}
	if cfg.Server.ShutdownTimeout == 0 {
		cfg.Server.ShutdownTimeout = DefaultShutdownTimeout
	}
	if cfg.Database.MaxOpenConns == 0 {
		cfg.Database.MaxOpenConns = DefaultMaxOpenConns
	}
	if cfg.Presence.ProbeInterval == 0 {
		cfg.Presence.ProbeInterval = DefaultProbeInterval
	}
	if cfg.Presence.MaxTextLength == 0 {
		cfg.Presence.MaxTextLength = DefaultMaxTextLength
	}
	if cfg.Presence.StoreTimeout == 0 {
		cfg.Presence.StoreTimeout = DefaultStoreTimeout
	}
	if cfg.Audit.RetentionDays == 0 {
		cfg.Audit.RetentionDays = DefaultRetentionDays
	}
	if cfg.Audit.CleanupInterval == 0 {
		cfg.Audit.CleanupInterval = DefaultCleanupInterval
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = DefaultLogLevel
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = DefaultLogFormat
	}
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	var errs []string

	if !strings.HasPrefix(c.Server.Path, "/") {
		errs = append(errs, "server.path must start with /")
	}

	switch {
	case c.Auth.PublicKeyFile == "" && c.Auth.SigningKey == "":
		errs = append(errs, "auth.public_key_file or auth.signing_key is required")
	case c.Auth.PublicKeyFile != "" && c.Auth.SigningKey != "":
		errs = append(errs, "auth.public_key_file and auth.signing_key are mutually exclusive")
	}
	if c.Auth.Leeway < 0 {
		errs = append(errs, "auth.leeway must not be negative")
	}

	if c.Database.MaxOpenConns < 0 {
		errs = append(errs, "database.max_open_conns must not be negative")
	}
	if c.Database.Migrate && c.Database.DSN == "" {
		errs = append(errs, "database.migrate requires database.dsn")
	}
	for i, name := range c.Database.Identities {
		if strings.TrimSpace(name) == "" {
			errs = append(errs, fmt.Sprintf("database.identities[%d] is empty", i))
		}
	}

	if c.Presence.ProbeInterval < 0 {
		errs = append(errs, "presence.probe_interval must be positive")
	}
	if c.Presence.MaxTextLength < 0 {
		errs = append(errs, "presence.max_text_length must be positive")
	}
	if c.Presence.StoreTimeout < 0 {
		errs = append(errs, "presence.store_timeout must be positive")
	}

	if c.Audit.RetentionDays < 0 {
		errs = append(errs, "audit.retention_days must be positive")
	}
	if c.Audit.CleanupInterval < 0 {
		errs = append(errs, "audit.cleanup_interval must be positive")
	}
	if c.Audit.MemoryCapacity < 0 {
		errs = append(errs, "audit.memory_capacity must not be negative")
	}

	if c.Admin.Enabled && len(c.Admin.APIKeys) == 0 {
		errs = append(errs, "admin.api_keys is required when admin is enabled")
	}
	for i, k := range c.Admin.APIKeys {
		if (k.Key == "") == (k.KeyHash == "") {
			errs = append(errs, fmt.Sprintf("admin.api_keys[%d] needs exactly one of key or key_hash", i))
		}
	}

	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Sprintf("logging.level %q is not one of debug, info, warn, error", c.Logging.Level))
	}
	switch c.Logging.Format {
	case "text", "json":
	default:
		errs = append(errs, fmt.Sprintf("logging.format %q is not one of text, json", c.Logging.Format))
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation errors: %s", strings.Join(errs, "; "))
	}

	return nil
}
