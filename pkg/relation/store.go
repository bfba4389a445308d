// Package relation defines the durable store of identities and pairwise
// relationship facts (friendships, foe marks, pending friend requests).
//
// The store is the source of truth for the social graph. Mutations that must
// land together are grouped with Update, which runs them in one transaction.
package relation

import (
	"context"
	"errors"
)

// ErrNotFound is returned when an identity lookup has no match.
var ErrNotFound = errors.New("identity not found")

// Identity is a registered user.
type Identity struct {
	ID   int64
	Name string
}

// Reader holds the read side of the store. List results are usernames in
// ascending order.
type Reader interface {
	// FindIDByName resolves a username. Returns ErrNotFound if unknown.
	FindIDByName(ctx context.Context, name string) (int64, error)

	// FindNameByID resolves an id. Returns ErrNotFound if unknown.
	FindNameByID(ctx context.Context, id int64) (string, error)

	// ListFriends returns the friends of id.
	ListFriends(ctx context.Context, id int64) ([]string, error)

	// ListFoes returns the identities id has marked as foes.
	ListFoes(ctx context.Context, id int64) ([]string, error)

	// ListPendingRequestsFor returns the identities with a pending friend
	// request addressed to id.
	ListPendingRequestsFor(ctx context.Context, id int64) ([]string, error)
}

// Writer holds the mutating side of the store. Inserting an existing fact and
// deleting a missing one both succeed.
type Writer interface {
	InsertFriendship(ctx context.Context, a, b int64) error
	DeleteFriendship(ctx context.Context, a, b int64) error
	InsertFoe(ctx context.Context, from, to int64) error
	DeleteFoe(ctx context.Context, from, to int64) error
	InsertPendingRequest(ctx context.Context, from, to int64) error
	DeletePendingRequest(ctx context.Context, from, to int64) error
}

// Tx is the view of the store inside Update.
type Tx interface {
	Reader
	Writer
}

// Store is a relationship store.
type Store interface {
	Reader

	// Update runs fn in a single transaction. If fn returns an error nothing
	// it wrote is kept.
	Update(ctx context.Context, fn func(Tx) error) error

	// Close releases resources.
	Close() error
}

// Pair orders two ids so that the smaller one comes first. Friendships are
// stored once per unordered pair in this order.
func Pair(a, b int64) (first, second int64) {
	if a > b {
		return b, a
	}
	return a, b
}
