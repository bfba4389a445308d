// Package social enforces the friend / foe / pending-request state machine
// for every pair of identities.
//
// For an unordered pair {A, B} exactly one of these holds:
//
//	NONE | FRIENDS | FOES | PENDING(requester)
//
// Every transition retracts the facts of the other states inside a single
// store transaction. Session views (friends, foes, requests) are derived from
// the store after each mutation and never edited in place.
package social

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"github.com/txn2/presence/pkg/relation"
)

// State is the relationship of a pair as seen from one side.
type State int

// Pair states.
const (
	StateNone State = iota
	StateFriends
	StateFoes
	// StatePendingOut means the actor requested friendship with the target.
	StatePendingOut
	// StatePendingIn means the target requested friendship with the actor.
	StatePendingIn
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case StateFriends:
		return "friends"
	case StateFoes:
		return "foes"
	case StatePendingOut:
		return "pending-out"
	case StatePendingIn:
		return "pending-in"
	default:
		return "none"
	}
}

// Views are the per-identity lists derived from the store.
type Views struct {
	Friends  []string
	Foes     []string
	Requests []string
}

// Effect lists the identities whose views changed and must be re-derived and
// pushed to their live sessions. The actor is always first.
type Effect struct {
	Affected []relation.Identity
}

// Engine applies social graph operations to a relation.Store.
type Engine struct {
	store relation.Store
}

// NewEngine creates an engine over store.
func NewEngine(store relation.Store) *Engine {
	return &Engine{store: store}
}

// Derive recomputes the views of id from the store.
func (e *Engine) Derive(ctx context.Context, id int64) (Views, error) {
	friends, err := deriveFriends(ctx, e.store, id)
	if err != nil {
		return Views{}, err
	}
	foes, err := deriveFoes(ctx, e.store, id)
	if err != nil {
		return Views{}, err
	}
	requests, err := derivePending(ctx, e.store, id)
	if err != nil {
		return Views{}, err
	}
	return Views{Friends: friends, Foes: foes, Requests: requests}, nil
}

func deriveFriends(ctx context.Context, r relation.Reader, id int64) ([]string, error) {
	names, err := r.ListFriends(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("deriving friends: %w", err)
	}
	return names, nil
}

func deriveFoes(ctx context.Context, r relation.Reader, id int64) ([]string, error) {
	names, err := r.ListFoes(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("deriving foes: %w", err)
	}
	return names, nil
}

func derivePending(ctx context.Context, r relation.Reader, id int64) ([]string, error) {
	names, err := r.ListPendingRequestsFor(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("deriving friend requests: %w", err)
	}
	return names, nil
}

// StateOf reports the relationship between actor and target as seen by actor.
func StateOf(ctx context.Context, r relation.Reader, actor, target relation.Identity) (State, error) {
	friends, err := r.ListFriends(ctx, actor.ID)
	if err != nil {
		return StateNone, fmt.Errorf("reading friends: %w", err)
	}
	if slices.Contains(friends, target.Name) {
		return StateFriends, nil
	}

	for _, side := range [][2]relation.Identity{{actor, target}, {target, actor}} {
		foes, err := r.ListFoes(ctx, side[0].ID)
		if err != nil {
			return StateNone, fmt.Errorf("reading foes: %w", err)
		}
		if slices.Contains(foes, side[1].Name) {
			return StateFoes, nil
		}
	}

	incoming, err := r.ListPendingRequestsFor(ctx, actor.ID)
	if err != nil {
		return StateNone, fmt.Errorf("reading friend requests: %w", err)
	}
	if slices.Contains(incoming, target.Name) {
		return StatePendingIn, nil
	}
	outgoing, err := r.ListPendingRequestsFor(ctx, target.ID)
	if err != nil {
		return StateNone, fmt.Errorf("reading friend requests: %w", err)
	}
	if slices.Contains(outgoing, actor.Name) {
		return StatePendingOut, nil
	}
	return StateNone, nil
}

// RequestFriend asks target for friendship. If target already asked the
// actor, the friendship is established instead.
func (e *Engine) RequestFriend(ctx context.Context, actor relation.Identity, targetName string) (Effect, error) {
	return e.mutate(ctx, actor, targetName, func(tx relation.Tx, target relation.Identity) error {
		state, err := StateOf(ctx, tx, actor, target)
		if err != nil {
			return err
		}
		switch state {
		case StateFriends:
			return ErrAlreadyFriends
		case StatePendingOut:
			return nil
		case StatePendingIn:
			return befriend(ctx, tx, actor.ID, target.ID)
		default:
			if err := clearFoes(ctx, tx, actor.ID, target.ID); err != nil {
				return err
			}
			return tx.InsertPendingRequest(ctx, actor.ID, target.ID)
		}
	})
}

// RequestFoe marks target as the actor's foe, retracting any friendship and
// pending request between them.
func (e *Engine) RequestFoe(ctx context.Context, actor relation.Identity, targetName string) (Effect, error) {
	return e.mutate(ctx, actor, targetName, func(tx relation.Tx, target relation.Identity) error {
		foes, err := tx.ListFoes(ctx, actor.ID)
		if err != nil {
			return fmt.Errorf("reading foes: %w", err)
		}
		if slices.Contains(foes, target.Name) {
			return ErrAlreadyFoe
		}
		if err := tx.DeleteFriendship(ctx, actor.ID, target.ID); err != nil {
			return err
		}
		if err := clearRequests(ctx, tx, actor.ID, target.ID); err != nil {
			return err
		}
		return tx.InsertFoe(ctx, actor.ID, target.ID)
	})
}

// RemoveFriend retracts the friendship with target if there is one.
func (e *Engine) RemoveFriend(ctx context.Context, actor relation.Identity, targetName string) (Effect, error) {
	return e.mutate(ctx, actor, targetName, func(tx relation.Tx, target relation.Identity) error {
		return tx.DeleteFriendship(ctx, actor.ID, target.ID)
	})
}

// RemoveFoe retracts the actor's foe mark on target if there is one.
func (e *Engine) RemoveFoe(ctx context.Context, actor relation.Identity, targetName string) (Effect, error) {
	return e.mutate(ctx, actor, targetName, func(tx relation.Tx, target relation.Identity) error {
		return tx.DeleteFoe(ctx, actor.ID, target.ID)
	})
}

// DismissFriendRequest drops the pending request from requester to the actor
// without creating a friendship. Dismissing a request that does not exist
// succeeds.
func (e *Engine) DismissFriendRequest(ctx context.Context, actor relation.Identity, requesterName string) (Effect, error) {
	return e.mutate(ctx, actor, requesterName, func(tx relation.Tx, requester relation.Identity) error {
		return tx.DeletePendingRequest(ctx, requester.ID, actor.ID)
	})
}

// mutate resolves the target and runs apply in one store transaction.
func (e *Engine) mutate(
	ctx context.Context,
	actor relation.Identity,
	targetName string,
	apply func(tx relation.Tx, target relation.Identity) error,
) (Effect, error) {
	if targetName == actor.Name {
		return Effect{}, ErrSelfReference
	}

	var target relation.Identity
	err := e.store.Update(ctx, func(tx relation.Tx) error {
		id, err := tx.FindIDByName(ctx, targetName)
		if errors.Is(err, relation.ErrNotFound) {
			return ErrTargetUnknown
		}
		if err != nil {
			return err
		}
		if id == actor.ID {
			return ErrSelfReference
		}
		target = relation.Identity{ID: id, Name: targetName}
		return apply(tx, target)
	})
	if err != nil {
		return Effect{}, err
	}
	return Effect{Affected: []relation.Identity{actor, target}}, nil
}

// befriend turns a pending request into a friendship.
func befriend(ctx context.Context, tx relation.Tx, a, b int64) error {
	if err := tx.InsertFriendship(ctx, a, b); err != nil {
		return err
	}
	if err := clearFoes(ctx, tx, a, b); err != nil {
		return err
	}
	return clearRequests(ctx, tx, a, b)
}

func clearFoes(ctx context.Context, tx relation.Tx, a, b int64) error {
	if err := tx.DeleteFoe(ctx, a, b); err != nil {
		return err
	}
	return tx.DeleteFoe(ctx, b, a)
}

func clearRequests(ctx context.Context, tx relation.Tx, a, b int64) error {
	if err := tx.DeletePendingRequest(ctx, a, b); err != nil {
		return err
	}
	return tx.DeletePendingRequest(ctx, b, a)
}
