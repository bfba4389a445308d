package audit

import (
	"time"

	"github.com/google/uuid"
)

// Action names what was attempted.
type Action string

// Audited actions.
const (
	ActionAuthenticate  Action = "authenticate"
	ActionRequestFriend Action = "request_friend"
	ActionRequestFoe    Action = "request_foe"
	ActionRemoveFriend  Action = "remove_friend"
	ActionRemoveFoe     Action = "remove_foe"
	ActionDismiss       Action = "dismiss_friend_request"
)

// NewEvent creates a new audit event.
func NewEvent(action Action) *Event {
	return &Event{
		ID:        uuid.NewString(),
		Timestamp: time.Now().UTC(),
		Action:    action,
	}
}

// WithActor sets the identity that attempted the action.
func (e *Event) WithActor(actor string) *Event {
	e.Actor = actor
	return e
}

// WithTarget sets the identity the action was aimed at.
func (e *Event) WithTarget(target string) *Event {
	e.Target = target
	return e
}

// WithConnection sets the connection handle.
func (e *Event) WithConnection(connection string) *Event {
	e.Connection = connection
	return e
}

// WithResult records the outcome. A nil err marks success.
func (e *Event) WithResult(err error) *Event {
	e.Success = err == nil
	e.ErrorMessage = ""
	if err != nil {
		e.ErrorMessage = err.Error()
	}
	e.DurationMS = time.Since(e.Timestamp).Milliseconds()
	return e
}
