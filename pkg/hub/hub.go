// Package hub runs the presence event loop. A single goroutine owns the
// session registry and the room table; transports feed it connection events
// and it answers through session.Conn.
package hub

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/txn2/presence/pkg/audit"
	"github.com/txn2/presence/pkg/auth"
	"github.com/txn2/presence/pkg/relation"
	"github.com/txn2/presence/pkg/room"
	"github.com/txn2/presence/pkg/session"
	"github.com/txn2/presence/pkg/social"
)

// Defaults applied by New to zero Config fields.
const (
	DefaultChannel       = "chat"
	DefaultProbeInterval = 10 * time.Second
	DefaultMaxTextLength = 2000
	DefaultStoreTimeout  = 5 * time.Second
	DefaultQueueSize     = 256
)

// Config configures a Hub.
type Config struct {
	// Channel is the audience identity assertions must carry.
	Channel string

	// ProbeInterval is the liveness probe period.
	ProbeInterval time.Duration

	// MaxTextLength caps chat messages, in characters.
	MaxTextLength int

	// StoreTimeout bounds every relationship store call.
	StoreTimeout time.Duration

	// QueueSize is the inbound event buffer.
	QueueSize int
}

func (c *Config) applyDefaults() {
	if c.Channel == "" {
		c.Channel = DefaultChannel
	}
	if c.ProbeInterval <= 0 {
		c.ProbeInterval = DefaultProbeInterval
	}
	if c.MaxTextLength <= 0 {
		c.MaxTextLength = DefaultMaxTextLength
	}
	if c.StoreTimeout <= 0 {
		c.StoreTimeout = DefaultStoreTimeout
	}
	if c.QueueSize <= 0 {
		c.QueueSize = DefaultQueueSize
	}
}

// Option configures a Hub.
type Option func(*options)

type options struct {
	roomOpts []room.Option
	audit    audit.Logger
}

// WithClock sets the clock used to timestamp room history.
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		o.roomOpts = append(o.roomOpts, room.WithClock(now))
	}
}

// WithAuditLogger records authentication attempts and relationship changes.
func WithAuditLogger(l audit.Logger) Option {
	return func(o *options) {
		o.audit = l
	}
}

// Hub is the presence event loop.
type Hub struct {
	cfg      Config
	verifier auth.Verifier
	store    relation.Store
	social   *social.Engine
	rooms    *room.Manager
	sessions *session.Registry
	audit    audit.Logger

	events chan event
	done   chan struct{}

	// mu guards stopped against in-flight enqueues.
	mu      sync.RWMutex
	stopped bool
}

// New creates a hub. Call Run to start processing events.
func New(cfg Config, verifier auth.Verifier, store relation.Store, opts ...Option) *Hub {
	cfg.applyDefaults()

	var o options
	for _, opt := range opts {
		opt(&o)
	}

	return &Hub{
		cfg:      cfg,
		verifier: verifier,
		store:    store,
		social:   social.NewEngine(store),
		rooms:    room.NewManager(o.roomOpts...),
		sessions: session.NewRegistry(),
		audit:    o.audit,
		events:   make(chan event, cfg.QueueSize),
		done:     make(chan struct{}),
	}
}

// MaxTextLength returns the chat text cap, in characters.
func (h *Hub) MaxTextLength() int {
	return h.cfg.MaxTextLength
}

// Channel returns the audience this hub accepts.
func (h *Hub) Channel() string {
	return h.cfg.Channel
}

// Stats is a point-in-time view of hub load.
type Stats struct {
	session.Stats
	Rooms int `json:"rooms"`
}

// Stats is safe to call from any goroutine.
func (h *Hub) Stats() Stats {
	return Stats{Stats: h.sessions.Stats(), Rooms: len(h.rooms.List())}
}

// Sessions copies the live sessions. It is safe to call from any goroutine.
func (h *Hub) Sessions() []session.Info {
	return h.sessions.Infos()
}

// RoomOf returns the room the identity is in, or 0.
func (h *Hub) RoomOf(name string) room.ID {
	return h.rooms.RoomOf(name)
}

// Room returns a snapshot of room id.
func (h *Hub) Room(id room.ID) (room.Snapshot, error) {
	return h.rooms.Get(id)
}

// Run processes events until ctx is canceled, then closes every connection,
// including those opened but not yet processed.
func (h *Hub) Run(ctx context.Context) error {
	ticker := time.NewTicker(h.cfg.ProbeInterval)
	defer ticker.Stop()

	slog.Info("presence hub started", "channel", h.cfg.Channel, "probe_interval", h.cfg.ProbeInterval)
	for {
		select {
		case <-ctx.Done():
			h.stop()
			h.shutdown()
			slog.Info("presence hub stopped", "channel", h.cfg.Channel)
			return nil
		case ev := <-h.events:
			h.process(ev)
		case <-ticker.C:
			h.probe()
		}
	}
}

// Open registers a new connection. It returns ErrStopped once Run is
// stopping; the caller owns the connection then.
func (h *Hub) Open(conn session.Conn) error {
	if !h.enqueue(openEvent{conn: conn}) {
		return ErrStopped
	}
	return nil
}

// Receive delivers an inbound frame from the connection with handle.
func (h *Hub) Receive(handle string, data []byte) {
	h.enqueue(receiveEvent{handle: handle, data: data})
}

// Pong records a liveness reply.
func (h *Hub) Pong(handle string) {
	h.enqueue(pongEvent{handle: handle})
}

// Closed reports that the transport lost the connection.
func (h *Hub) Closed(handle string) {
	h.enqueue(closedEvent{handle: handle})
}

// enqueue drops the event once Run is stopping and reports whether it was
// queued.
func (h *Hub) enqueue(ev event) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if h.stopped {
		return false
	}
	select {
	case h.events <- ev:
		return true
	case <-h.done:
		return false
	}
}

// stop refuses further events and registers the connections still queued so
// shutdown closes them.
func (h *Hub) stop() {
	close(h.done)
	h.mu.Lock()
	h.stopped = true
	h.mu.Unlock()

	for {
		select {
		case ev := <-h.events:
			if open, ok := ev.(openEvent); ok {
				h.sessions.Open(open.conn)
			}
		default:
			return
		}
	}
}

func (h *Hub) storeContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), h.cfg.StoreTimeout)
}
