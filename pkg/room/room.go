// Package room manages ephemeral chat rooms: creation, membership, chat
// history, and destruction once the last member leaves.
//
// Operations return an Effect describing who must be told what; the caller
// performs the delivery.
package room

import (
	"errors"
	"slices"
	"sort"
	"sync"
	"time"
)

// Room errors. They are recoverable and reported to the actor.
var (
	// ErrNoSuchRoom is returned for an id that was never allocated or whose
	// room has been destroyed.
	ErrNoSuchRoom = errors.New("room does not exist")

	// ErrAlreadyMember is returned when joining the room the actor is in.
	ErrAlreadyMember = errors.New("already in this room")

	// ErrNotInRoom is returned when the actor has no room.
	ErrNotInRoom = errors.New("not in a room")
)

// ID identifies a room. IDs start at 1, increase monotonically, and are never
// reused. The zero ID means "no room".
type ID int64

// Entry is one chat history line.
type Entry struct {
	Text      string
	Author    string
	Timestamp time.Time
}

// Snapshot is an immutable copy of a room.
type Snapshot struct {
	ID      ID
	Owner   string
	Members []string
	History []Entry
}

// Summary is the listing entry for a room.
type Summary struct {
	ID      ID
	Owner   string
	Members int
}

// Update is a room snapshot to deliver to Recipients.
type Update struct {
	Room       Snapshot
	Recipients []string
}

// Effect is the fan-out produced by a room operation.
type Effect struct {
	// Updates are room snapshots for their members, in order.
	Updates []Update

	// Cleared names identities that are now in no room.
	Cleared []string

	// ListingChanged is set when a room was created or destroyed.
	ListingChanged bool
}

func (e *Effect) merge(other Effect) {
	e.Updates = append(e.Updates, other.Updates...)
	e.Cleared = append(e.Cleared, other.Cleared...)
	e.ListingChanged = e.ListingChanged || other.ListingChanged
}

type room struct {
	id      ID
	owner   string
	members []string
	history []Entry
}

func (r *room) snapshot() Snapshot {
	return Snapshot{
		ID:      r.id,
		Owner:   r.owner,
		Members: slices.Clone(r.members),
		History: slices.Clone(r.history),
	}
}

// Manager owns the room table. Membership is tracked per identity name so an
// identity is in at most one room.
type Manager struct {
	mu     sync.RWMutex
	rooms  map[ID]*room
	member map[string]ID
	lastID ID
	now    func() time.Time
}

// Option configures a Manager.
type Option func(*Manager)

// WithClock overrides the clock used to timestamp history entries.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

// NewManager creates an empty room table.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		rooms:  make(map[ID]*room),
		member: make(map[string]ID),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Create leaves the actor's current room, allocates a new room with the actor
// as owner and sole member, and flags the listing as changed.
func (m *Manager) Create(actor string) Effect {
	m.mu.Lock()
	defer m.mu.Unlock()

	var eff Effect
	if _, ok := m.member[actor]; ok {
		eff.merge(m.leave(actor))
		eff.Cleared = nil
	}

	m.lastID++
	r := &room{id: m.lastID, owner: actor, members: []string{actor}}
	m.rooms[r.id] = r
	m.member[actor] = r.id

	eff.Updates = append(eff.Updates, Update{Room: r.snapshot(), Recipients: []string{actor}})
	eff.ListingChanged = true
	return eff
}

// Join moves the actor into room id and notifies its members.
func (m *Manager) Join(actor string, id ID) (Effect, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	target, ok := m.rooms[id]
	if !ok {
		return Effect{}, ErrNoSuchRoom
	}
	current, inRoom := m.member[actor]
	if inRoom && current == id {
		return Effect{}, ErrAlreadyMember
	}

	var eff Effect
	if inRoom {
		eff.merge(m.leave(actor))
		eff.Cleared = nil
	}

	target.members = append(target.members, actor)
	m.member[actor] = id

	snap := target.snapshot()
	eff.Updates = append(eff.Updates, Update{Room: snap, Recipients: snap.Members})
	return eff, nil
}

// Leave removes the actor from their room. An emptied room is destroyed.
func (m *Manager) Leave(actor string) (Effect, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.member[actor]; !ok {
		return Effect{}, ErrNotInRoom
	}
	return m.leave(actor), nil
}

// Release is Leave for a disconnecting identity: not being in a room is not
// an error.
func (m *Manager) Release(actor string) Effect {
	eff, err := m.Leave(actor)
	if err != nil {
		return Effect{}
	}
	eff.Cleared = nil
	return eff
}

// leave assumes the actor is a member and m.mu is held.
func (m *Manager) leave(actor string) Effect {
	id := m.member[actor]
	r := m.rooms[id]
	delete(m.member, actor)
	r.members = slices.DeleteFunc(r.members, func(n string) bool { return n == actor })

	eff := Effect{Cleared: []string{actor}}
	if len(r.members) == 0 {
		delete(m.rooms, id)
		eff.ListingChanged = true
		return eff
	}
	snap := r.snapshot()
	eff.Updates = []Update{{Room: snap, Recipients: snap.Members}}
	return eff
}

// Post appends text to the actor's room history and sends the whole room to
// every member.
func (m *Manager) Post(actor, text string) (Effect, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	id, ok := m.member[actor]
	if !ok {
		return Effect{}, ErrNotInRoom
	}
	r := m.rooms[id]
	r.history = append(r.history, Entry{Text: text, Author: actor, Timestamp: m.now()})

	snap := r.snapshot()
	return Effect{Updates: []Update{{Room: snap, Recipients: snap.Members}}}, nil
}

// RoomOf returns the room the identity is in, or 0.
func (m *Manager) RoomOf(name string) ID {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.member[name]
}

// Get returns a snapshot of room id.
func (m *Manager) Get(id ID) (Snapshot, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	r, ok := m.rooms[id]
	if !ok {
		return Snapshot{}, ErrNoSuchRoom
	}
	return r.snapshot(), nil
}

// List returns the live rooms ordered by id.
func (m *Manager) List() []Summary {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]Summary, 0, len(m.rooms))
	for _, r := range m.rooms {
		out = append(out, Summary{ID: r.id, Owner: r.owner, Members: len(r.members)})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
