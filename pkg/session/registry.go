package session

import (
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/txn2/presence/pkg/relation"
	"github.com/txn2/presence/pkg/room"
	"github.com/txn2/presence/pkg/social"
)

// Registry maps connection handles to sessions. Sessions are mutated only
// through Registry methods so observers such as health checks can read
// concurrently with the event loop.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]*Session
	order    []string
	now      func() time.Time
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		sessions: make(map[string]*Session),
		now:      time.Now,
	}
}

// Open creates an unauthenticated, alive session for conn. Opening a handle
// that is already registered returns the existing session.
func (r *Registry) Open(conn Conn) *Session {
	r.mu.Lock()
	defer r.mu.Unlock()

	if s, ok := r.sessions[conn.ID()]; ok {
		return s
	}
	s := &Session{Conn: conn, Alive: true, OpenedAt: r.now()}
	r.sessions[conn.ID()] = s
	r.order = append(r.order, conn.ID())
	return s
}

// Get returns the session for handle.
func (r *Registry) Get(handle string) (*Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s, ok := r.sessions[handle]
	return s, ok
}

// Remove deletes the session for handle and returns it.
func (r *Registry) Remove(handle string) (*Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.sessions[handle]
	if !ok {
		return nil, false
	}
	delete(r.sessions, handle)
	r.order = slices.DeleteFunc(r.order, func(h string) bool { return h == handle })
	return s, true
}

// Bind marks the session authenticated as id. It returns the other sessions
// already authenticated as the same identity; the caller terminates them.
// Rebinding to a different identity resets the session's room and views.
func (r *Registry) Bind(handle string, id relation.Identity) ([]*Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.sessions[handle]
	if !ok {
		return nil, ErrUnknownHandle
	}
	if s.Authenticated && s.Identity != id {
		s.Room = 0
		s.Views = social.Views{}
	}
	s.Authenticated = true
	s.Identity = id

	var displaced []*Session
	for _, h := range r.order {
		other := r.sessions[h]
		if h != handle && other.Authenticated && other.Identity.Name == id.Name {
			displaced = append(displaced, other)
		}
	}
	return displaced, nil
}

// SetAlive sets the liveness flag and reports whether the handle exists.
func (r *Registry) SetAlive(handle string, alive bool) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.sessions[handle]
	if ok {
		s.Alive = alive
	}
	return ok
}

// SetRoom records the room the session is in.
func (r *Registry) SetRoom(handle string, id room.ID) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if s, ok := r.sessions[handle]; ok {
		s.Room = id
	}
}

// SetViews replaces the cached social views.
func (r *Registry) SetViews(handle string, v social.Views) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if s, ok := r.sessions[handle]; ok {
		s.Views = v
	}
}

// ForEachAuthenticated calls fn for every authenticated session matching
// pred, in registration order. A nil pred matches all. The set is captured
// before the first call, so fn may mutate the registry.
func (r *Registry) ForEachAuthenticated(pred func(*Session) bool, fn func(*Session)) {
	for _, s := range r.All() {
		if !s.Authenticated {
			continue
		}
		if pred != nil && !pred(s) {
			continue
		}
		fn(s)
	}
}

// ByName returns the authenticated sessions bound to name.
func (r *Registry) ByName(name string) []*Session {
	var out []*Session
	r.ForEachAuthenticated(IsNamed(name), func(s *Session) {
		out = append(out, s)
	})
	return out
}

// All returns every session in registration order.
func (r *Registry) All() []*Session {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*Session, 0, len(r.order))
	for _, h := range r.order {
		out = append(out, r.sessions[h])
	}
	return out
}

// Infos copies every session in registration order.
func (r *Registry) Infos() []Info {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Info, 0, len(r.order))
	for _, h := range r.order {
		s := r.sessions[h]
		out = append(out, Info{
			Handle:        h,
			Name:          s.Name(),
			Authenticated: s.Authenticated,
			Room:          s.Room,
			OpenedAt:      s.OpenedAt,
		})
	}
	return out
}

// OnlineNames returns the sorted, de-duplicated names of authenticated
// sessions.
func (r *Registry) OnlineNames() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	seen := make(map[string]bool, len(r.sessions))
	names := make([]string, 0, len(r.sessions))
	for _, s := range r.sessions {
		if s.Authenticated && !seen[s.Identity.Name] {
			seen[s.Identity.Name] = true
			names = append(names, s.Identity.Name)
		}
	}
	sort.Strings(names)
	return names
}

// Stats is a point-in-time count of sessions.
type Stats struct {
	Connections   int `json:"connections"`
	Authenticated int `json:"authenticated"`
}

// Stats counts open and authenticated sessions.
func (r *Registry) Stats() Stats {
	r.mu.RLock()
	defer r.mu.RUnlock()

	st := Stats{Connections: len(r.sessions)}
	for _, s := range r.sessions {
		if s.Authenticated {
			st.Authenticated++
		}
	}
	return st
}

// IsNamed matches sessions bound to name.
func IsNamed(name string) func(*Session) bool {
	return func(s *Session) bool { return s.Identity.Name == name }
}

// InRoom matches sessions whose identity is in room id.
func InRoom(id room.ID) func(*Session) bool {
	return func(s *Session) bool { return id != 0 && s.Room == id }
}
