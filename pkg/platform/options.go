package platform

import (
	"database/sql"

	"github.com/txn2/presence/pkg/audit"
	"github.com/txn2/presence/pkg/auth"
	"github.com/txn2/presence/pkg/hub"
	"github.com/txn2/presence/pkg/relation"
)

// Options configures the platform.
type Options struct {
	// Config is the platform configuration.
	Config *Config

	// Database connection (optional, will be opened from config if not provided).
	// The platform does not close a connection it did not open.
	DB *sql.DB

	// Store (optional, will be created from config if not provided).
	Store relation.Store

	// Verifier (optional, will be created from config if not provided).
	Verifier auth.Verifier

	// AuditLogger (optional, will be created from config if audit is enabled).
	AuditLogger audit.Logger

	// HubOptions are passed to hub.New.
	HubOptions []hub.Option
}

// Option is a functional option for configuring the platform.
type Option func(*Options)

// WithConfig sets the configuration.
func WithConfig(cfg *Config) Option {
	return func(o *Options) {
		o.Config = cfg
	}
}

// WithDB sets the database connection.
func WithDB(db *sql.DB) Option {
	return func(o *Options) {
		o.DB = db
	}
}

// WithStore sets the relationship store.
func WithStore(store relation.Store) Option {
	return func(o *Options) {
		o.Store = store
	}
}

// WithVerifier sets the identity assertion verifier.
func WithVerifier(v auth.Verifier) Option {
	return func(o *Options) {
		o.Verifier = v
	}
}

// WithAuditLogger sets the audit logger.
func WithAuditLogger(l audit.Logger) Option {
	return func(o *Options) {
		o.AuditLogger = l
	}
}

// WithHubOptions appends hub options.
func WithHubOptions(opts ...hub.Option) Option {
	return func(o *Options) {
		o.HubOptions = append(o.HubOptions, opts...)
	}
}
