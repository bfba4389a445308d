package hub

import "errors"

var (
	// ErrInvalidText is returned for an empty or over-long chat message.
	ErrInvalidText = errors.New("invalid message text")

	// ErrRecipientOffline is returned when a direct message names an
	// identity with no live session.
	ErrRecipientOffline = errors.New("recipient is offline")

	// ErrStopped is returned by Open once the hub has shut down.
	ErrStopped = errors.New("hub stopped")

	// ErrUnavailable replaces store failures in responses to clients.
	ErrUnavailable = errors.New("service temporarily unavailable")
)
