// Package server provides a factory for creating the presence server.
package server

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/txn2/presence/pkg/platform"
)

// Version is set at build time.
var Version = "dev"

// Environment variables read by DefaultConfig.
const (
	EnvSigningKey    = "PRESENCE_SIGNING_KEY"
	EnvPublicKeyFile = "PRESENCE_PUBLIC_KEY_FILE"
	EnvDatabaseDSN   = "PRESENCE_DATABASE_DSN"
)

// LoadConfig reads the configuration file at path. An empty path yields
// DefaultConfig.
func LoadConfig(path string) (*platform.Config, error) {
	if path == "" {
		return DefaultConfig(), nil
	}
	cfg, err := platform.LoadConfig(path)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	return cfg, nil
}

// DefaultConfig returns the default configuration with keys and database
// taken from the environment.
func DefaultConfig() *platform.Config {
	cfg := platform.DefaultConfig()
	cfg.Auth.SigningKey = os.Getenv(EnvSigningKey)
	cfg.Auth.PublicKeyFile = os.Getenv(EnvPublicKeyFile)
	cfg.Database.DSN = os.Getenv(EnvDatabaseDSN)
	return cfg
}

// New validates cfg and creates a platform.
func New(cfg *platform.Config, opts ...platform.Option) (*platform.Platform, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	p, err := platform.New(append([]platform.Option{platform.WithConfig(cfg)}, opts...)...)
	if err != nil {
		return nil, fmt.Errorf("creating platform: %w", err)
	}
	return p, nil
}

// NewWithConfig creates a platform from the configuration file at path.
func NewWithConfig(path string) (*platform.Platform, error) {
	cfg, err := LoadConfig(path)
	if err != nil {
		return nil, err
	}
	return New(cfg)
}

// NewWithDefaults creates a platform from DefaultConfig.
func NewWithDefaults() (*platform.Platform, error) {
	return New(DefaultConfig())
}

// NewLogger builds a logger writing to w as configured.
func NewLogger(cfg platform.LoggingConfig, w io.Writer) *slog.Logger {
	opts := &slog.HandlerOptions{Level: parseLevel(cfg.Level)}
	if strings.EqualFold(cfg.Format, "json") {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

func parseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
