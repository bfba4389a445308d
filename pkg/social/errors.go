package social

import "errors"

// Graph errors. They are recoverable: reported to the actor, never fatal to
// the connection.
var (
	// ErrTargetUnknown is returned when a name does not resolve to an identity.
	ErrTargetUnknown = errors.New("unknown user")

	// ErrSelfReference is returned when an actor targets themselves.
	ErrSelfReference = errors.New("cannot target yourself")

	// ErrAlreadyFriends is returned when requesting an existing friend.
	ErrAlreadyFriends = errors.New("already friends")

	// ErrAlreadyFoe is returned when marking an existing foe.
	ErrAlreadyFoe = errors.New("already a foe")
)
