package platform

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	_ "github.com/lib/pq" // postgres driver

	"github.com/txn2/presence/pkg/admin"
	"github.com/txn2/presence/pkg/audit"
	auditpostgres "github.com/txn2/presence/pkg/audit/postgres"
	"github.com/txn2/presence/pkg/auth"
	"github.com/txn2/presence/pkg/database/migrate"
	"github.com/txn2/presence/pkg/health"
	presencehttp "github.com/txn2/presence/pkg/http"
	"github.com/txn2/presence/pkg/hub"
	"github.com/txn2/presence/pkg/relation"
	"github.com/txn2/presence/pkg/relation/postgres"
)

// Endpoint paths served next to the WebSocket endpoint.
const (
	LivenessPath  = "/healthz"
	ReadinessPath = "/readyz"
	StatsPath     = "/stats"
)

const readHeaderTimeout = 10 * time.Second

// identityCreator is implemented by stores that can register identities.
type identityCreator interface {
	CreateIdentity(ctx context.Context, name string) (int64, error)
}

// Platform is the presence server facade.
type Platform struct {
	config    *Config
	lifecycle *Lifecycle

	db       *sql.DB
	store    relation.Store
	verifier auth.Verifier
	audit    audit.Logger
	hub      *hub.Hub
	health   *health.Checker

	handler http.Handler
	server  *http.Server

	mu       sync.Mutex
	listener net.Listener
}

// New creates a new platform instance.
func New(opts ...Option) (*Platform, error) {
	options := &Options{}
	for _, opt := range opts {
		opt(options)
	}

	if options.Config == nil {
		return nil, fmt.Errorf("config is required")
	}

	p := &Platform{
		config:    options.Config,
		lifecycle: NewLifecycle(),
		health:    health.NewChecker(),
	}

	if err := p.initializeComponents(options); err != nil {
		if p.store != nil && options.Store == nil {
			_ = p.store.Close()
		}
		return nil, fmt.Errorf("initializing components: %w", err)
	}

	return p, nil
}

// initializeComponents initializes all platform components.
func (p *Platform) initializeComponents(opts *Options) error {
	if err := p.initStore(opts); err != nil {
		return err
	}
	if err := p.initVerifier(opts); err != nil {
		return err
	}
	p.initAudit(opts)
	p.initHub(opts)
	p.initHTTP()
	p.registerLifecycle()
	return nil
}

// initStore selects the relationship store: an explicit store, Postgres when
// a connection or DSN is available, or the in-memory store otherwise.
func (p *Platform) initStore(opts *Options) error {
	if opts.Store != nil {
		p.store = opts.Store
		p.db = opts.DB
		return nil
	}

	db := opts.DB
	if db == nil && p.config.Database.DSN != "" {
		var err error
		if db, err = p.openDatabase(); err != nil {
			return err
		}
	}

	if db == nil {
		slog.Warn("no database configured; relationships are kept in memory")
		p.store = relation.NewMemoryStore()
		return nil
	}

	if p.config.Database.Migrate {
		if err := migrate.Run(db); err != nil {
			if opts.DB == nil {
				_ = db.Close()
			}
			return fmt.Errorf("migrating database: %w", err)
		}
	}

	p.db = db
	store := postgres.New(db)
	if opts.DB == nil {
		p.store = store
		p.lifecycle.RegisterCloser("relationship store", store)
		return nil
	}
	p.store = unownedStore{store}
	return nil
}

func (p *Platform) openDatabase() (*sql.DB, error) {
	db, err := sql.Open("postgres", p.config.Database.DSN)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	db.SetMaxOpenConns(p.config.Database.MaxOpenConns)
	return db, nil
}

// unownedStore leaves a caller supplied connection open on Close.
type unownedStore struct {
	*postgres.Store
}

func (unownedStore) Close() error { return nil }

func (p *Platform) initVerifier(opts *Options) error {
	if opts.Verifier != nil {
		p.verifier = opts.Verifier
		return nil
	}

	cfg := auth.JWTConfig{Leeway: p.config.Auth.Leeway}
	if p.config.Auth.PublicKeyFile != "" {
		key, err := auth.LoadRSAPublicKey(p.config.Auth.PublicKeyFile)
		if err != nil {
			return fmt.Errorf("loading verification key: %w", err)
		}
		cfg.PublicKey = key
	}
	if p.config.Auth.SigningKey != "" {
		cfg.SigningKey = []byte(p.config.Auth.SigningKey)
	}

	v, err := auth.NewJWTVerifier(cfg)
	if err != nil {
		return fmt.Errorf("creating verifier: %w", err)
	}
	p.verifier = v
	return nil
}

// initAudit selects the audit logger: an explicit logger, Postgres when a
// database is in use, or a bounded in-memory log.
func (p *Platform) initAudit(opts *Options) {
	if opts.AuditLogger != nil {
		p.audit = opts.AuditLogger
		return
	}
	if !p.config.Audit.Enabled {
		return
	}

	if p.db == nil {
		p.audit = audit.NewMemoryLogger(p.config.Audit.MemoryCapacity)
		return
	}

	store := auditpostgres.New(p.db, auditpostgres.Config{RetentionDays: p.config.Audit.RetentionDays})
	p.audit = store
	p.lifecycle.Append(Hook{
		Name: "audit cleanup",
		OnStart: func(context.Context) error {
			store.StartCleanupRoutine(p.config.Audit.CleanupInterval)
			return nil
		},
		OnStop: func(context.Context) error {
			return store.Close()
		},
	})
}

func (p *Platform) initHub(opts *Options) {
	hubOpts := opts.HubOptions
	if p.audit != nil {
		hubOpts = append([]hub.Option{hub.WithAuditLogger(p.audit)}, hubOpts...)
	}
	p.hub = hub.New(hub.Config{
		Channel:       p.config.Server.Channel,
		ProbeInterval: p.config.Presence.ProbeInterval,
		MaxTextLength: p.config.Presence.MaxTextLength,
		StoreTimeout:  p.config.Presence.StoreTimeout,
		QueueSize:     p.config.Presence.QueueSize,
	}, p.verifier, p.store, hubOpts...)
}

func (p *Platform) initHTTP() {
	if p.db != nil {
		p.health.AddCheck("database", p.db.PingContext)
	}

	mux := http.NewServeMux()
	mux.Handle(p.config.Server.Path,
		presencehttp.TokenMiddleware(presencehttp.NewHandler(p.hub, p.config.Server.AllowedOrigins, p.hub.MaxTextLength())))
	mux.Handle("GET "+LivenessPath, p.health.LivenessHandler())
	mux.Handle("GET "+ReadinessPath, p.health.ReadinessHandler())
	mux.Handle("GET "+StatsPath, health.StatsHandler(func() any { return p.hub.Stats() }))
	if p.config.Admin.Enabled {
		mux.Handle(admin.Prefix+"/", p.adminHandler())
	}

	p.handler = mux
	p.server = &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: readHeaderTimeout,
	}
}

func (p *Platform) adminHandler() http.Handler {
	authn := &admin.APIKeyAuthenticator{Keys: make(map[string]admin.User, len(p.config.Admin.APIKeys))}
	for _, k := range p.config.Admin.APIKeys {
		user := admin.User{Name: k.Name}
		if k.KeyHash != "" {
			authn.Hashed = append(authn.Hashed, admin.HashedKey{Hash: []byte(k.KeyHash), User: user})
			continue
		}
		authn.Keys[k.Key] = user
	}

	deps := admin.Deps{
		Relations:         p.store,
		Presence:          p.hub,
		Stats:             func() any { return p.hub.Stats() },
		DatabaseAvailable: p.db != nil,
	}
	if p.audit != nil {
		deps.AuditQuerier = p.audit
	}
	if c, ok := p.store.(identityCreator); ok {
		deps.Identities = c
	}
	return admin.NewHandler(deps, admin.RequireAdmin(authn))
}

// registerLifecycle orders startup as identities, hub, listener, readiness,
// after any audit cleanup hook.
// Shutdown runs in reverse: drain readiness, stop accepting upgrades, close
// every connection, close the store.
func (p *Platform) registerLifecycle() {
	p.lifecycle.Append(Hook{Name: "identities", OnStart: p.seedIdentities})

	var (
		cancel context.CancelFunc
		done   chan error
	)
	p.lifecycle.Append(Hook{
		Name: "presence hub",
		OnStart: func(context.Context) error {
			var ctx context.Context
			ctx, cancel = context.WithCancel(context.Background())
			done = make(chan error, 1)
			go func() { done <- p.hub.Run(ctx) }()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			cancel()
			select {
			case err := <-done:
				return err
			case <-ctx.Done():
				return fmt.Errorf("waiting for hub: %w", ctx.Err())
			}
		},
	})

	p.lifecycle.Append(Hook{Name: "http server", OnStart: p.startHTTP, OnStop: p.stopHTTP})

	p.lifecycle.Append(Hook{
		Name: "readiness",
		OnStart: func(context.Context) error {
			p.health.SetReady()
			return nil
		},
		OnStop: func(context.Context) error {
			p.health.SetDraining()
			return nil
		},
	})
}

func (p *Platform) seedIdentities(ctx context.Context) error {
	names := p.config.Database.Identities
	if len(names) == 0 {
		return nil
	}
	creator, ok := p.store.(identityCreator)
	if !ok {
		return fmt.Errorf("store %T cannot register identities", p.store)
	}
	for _, name := range names {
		if _, err := creator.CreateIdentity(ctx, name); err != nil {
			return fmt.Errorf("registering identity %q: %w", name, err)
		}
	}
	slog.Info("identities registered", "count", len(names))
	return nil
}

func (p *Platform) startHTTP(_ context.Context) error {
	ln, err := net.Listen("tcp", p.config.Server.Address)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", p.config.Server.Address, err)
	}

	p.mu.Lock()
	p.listener = ln
	p.mu.Unlock()

	slog.Info("presence server listening",
		"address", ln.Addr().String(), "path", p.config.Server.Path, "channel", p.config.Server.Channel)

	go func() {
		if err := p.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("http server failed", "error", err)
		}
	}()
	return nil
}

func (p *Platform) stopHTTP(ctx context.Context) error {
	if err := p.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutting down http server: %w", err)
	}
	return nil
}

// Start starts the platform.
func (p *Platform) Start(ctx context.Context) error {
	return p.lifecycle.Start(ctx)
}

// Stop stops the platform.
func (p *Platform) Stop(ctx context.Context) error {
	return p.lifecycle.Stop(ctx)
}

// Config returns the platform configuration.
func (p *Platform) Config() *Config {
	return p.config
}

// Hub returns the presence hub.
func (p *Platform) Hub() *hub.Hub {
	return p.hub
}

// Store returns the relationship store.
func (p *Platform) Store() relation.Store {
	return p.store
}

// Audit returns the audit logger, or nil when auditing is disabled.
func (p *Platform) Audit() audit.Logger {
	return p.audit
}

// Health returns the readiness checker.
func (p *Platform) Health() *health.Checker {
	return p.health
}

// Handler returns the HTTP handler serving the WebSocket and health endpoints.
func (p *Platform) Handler() http.Handler {
	return p.handler
}

// Addr returns the bound listener address, or nil before Start.
func (p *Platform) Addr() net.Addr {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.listener == nil {
		return nil
	}
	return p.listener.Addr()
}
