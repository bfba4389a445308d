package relation

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"sync"
)

type edge struct{ from, to int64 }

// graph is the full state of a MemoryStore. It is copied for every Update so
// a failed transaction leaves the committed state untouched.
type graph struct {
	names      map[int64]string
	ids        map[string]int64
	friendship map[edge]struct{}
	foes       map[edge]struct{}
	requests   map[edge]struct{}
}

func (g *graph) clone() *graph {
	return &graph{
		names:      maps.Clone(g.names),
		ids:        maps.Clone(g.ids),
		friendship: maps.Clone(g.friendship),
		foes:       maps.Clone(g.foes),
		requests:   maps.Clone(g.requests),
	}
}

// MemoryStore implements Store in process memory. It backs tests and the
// database-less development mode.
type MemoryStore struct {
	mu     sync.RWMutex
	g      *graph
	nextID int64
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		g: &graph{
			names:      make(map[int64]string),
			ids:        make(map[string]int64),
			friendship: make(map[edge]struct{}),
			foes:       make(map[edge]struct{}),
			requests:   make(map[edge]struct{}),
		},
	}
}

// CreateIdentity registers name and returns its id. Registering an existing
// name returns the existing id.
func (s *MemoryStore) CreateIdentity(_ context.Context, name string) (int64, error) {
	if name == "" {
		return 0, fmt.Errorf("identity name is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if id, ok := s.g.ids[name]; ok {
		return id, nil
	}
	s.nextID++
	s.g.ids[name] = s.nextID
	s.g.names[s.nextID] = name
	return s.nextID, nil
}

// FindIDByName resolves a username.
func (s *MemoryStore) FindIDByName(ctx context.Context, name string) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return memTx{s.g}.FindIDByName(ctx, name)
}

// FindNameByID resolves an id.
func (s *MemoryStore) FindNameByID(ctx context.Context, id int64) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return memTx{s.g}.FindNameByID(ctx, id)
}

// ListFriends returns the friends of id.
func (s *MemoryStore) ListFriends(ctx context.Context, id int64) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return memTx{s.g}.ListFriends(ctx, id)
}

// ListFoes returns the identities id has marked as foes.
func (s *MemoryStore) ListFoes(ctx context.Context, id int64) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return memTx{s.g}.ListFoes(ctx, id)
}

// ListPendingRequestsFor returns the senders of pending requests to id.
func (s *MemoryStore) ListPendingRequestsFor(ctx context.Context, id int64) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return memTx{s.g}.ListPendingRequestsFor(ctx, id)
}

// Update applies fn to a copy of the graph and commits it if fn succeeds.
func (s *MemoryStore) Update(ctx context.Context, fn func(Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}
	work := s.g.clone()
	if err := fn(memTx{work}); err != nil {
		return err
	}
	s.g = work
	return nil
}

// Close is a no-op.
func (*MemoryStore) Close() error {
	return nil
}

// memTx reads and writes one graph. Callers hold the store lock.
type memTx struct{ g *graph }

func (t memTx) FindIDByName(_ context.Context, name string) (int64, error) {
	id, ok := t.g.ids[name]
	if !ok {
		return 0, ErrNotFound
	}
	return id, nil
}

func (t memTx) FindNameByID(_ context.Context, id int64) (string, error) {
	name, ok := t.g.names[id]
	if !ok {
		return "", ErrNotFound
	}
	return name, nil
}

func (t memTx) ListFriends(_ context.Context, id int64) ([]string, error) {
	var out []string
	for e := range t.g.friendship {
		switch id {
		case e.from:
			out = append(out, t.g.names[e.to])
		case e.to:
			out = append(out, t.g.names[e.from])
		}
	}
	slices.Sort(out)
	return out, nil
}

func (t memTx) ListFoes(_ context.Context, id int64) ([]string, error) {
	return t.outgoing(t.g.foes, id), nil
}

func (t memTx) ListPendingRequestsFor(_ context.Context, id int64) ([]string, error) {
	var out []string
	for e := range t.g.requests {
		if e.to == id {
			out = append(out, t.g.names[e.from])
		}
	}
	slices.Sort(out)
	return out, nil
}

func (t memTx) outgoing(set map[edge]struct{}, id int64) []string {
	var out []string
	for e := range set {
		if e.from == id {
			out = append(out, t.g.names[e.to])
		}
	}
	slices.Sort(out)
	return out
}

func (t memTx) InsertFriendship(_ context.Context, a, b int64) error {
	first, second := Pair(a, b)
	t.g.friendship[edge{first, second}] = struct{}{}
	return nil
}

func (t memTx) DeleteFriendship(_ context.Context, a, b int64) error {
	first, second := Pair(a, b)
	delete(t.g.friendship, edge{first, second})
	return nil
}

func (t memTx) InsertFoe(_ context.Context, from, to int64) error {
	t.g.foes[edge{from, to}] = struct{}{}
	return nil
}

func (t memTx) DeleteFoe(_ context.Context, from, to int64) error {
	delete(t.g.foes, edge{from, to})
	return nil
}

func (t memTx) InsertPendingRequest(_ context.Context, from, to int64) error {
	t.g.requests[edge{from, to}] = struct{}{}
	return nil
}

func (t memTx) DeletePendingRequest(_ context.Context, from, to int64) error {
	delete(t.g.requests, edge{from, to})
	return nil
}

// Verify interface compliance.
var (
	_ Store = (*MemoryStore)(nil)
	_ Tx    = memTx{}
)
