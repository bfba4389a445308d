// Package protocol defines the wire format spoken over a presence connection.
//
// Every frame is a JSON object carrying an integer discriminant and an
// optional payload:
//
//	{"type": 2, "payload": "bob"}
//
// Inbound frames decode into one of the Request variants; outbound frames are
// built with the Response constructors.
package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// MessageType discriminates inbound frames.
type MessageType int

// Inbound message types.
const (
	TypeAuthenticate MessageType = iota
	TypeMessage
	TypeAddFriend
	TypeAddFoe
	TypeRemoveFriend
	TypeRemoveFoe
	TypeDismissFriendRequest
	TypeCreateRoom
	TypeJoinRoom
	TypeLeaveRoom
)

// Close status codes used when the server terminates a connection (RFC 6455).
const (
	CloseNormal          = 1000
	CloseGoingAway       = 1001
	ClosePolicyViolation = 1008
)

// Protocol errors. Both are fatal to the connection.
var (
	// ErrUnknownMessageType is returned for a discriminant outside the protocol.
	ErrUnknownMessageType = errors.New("unknown message type")

	// ErrUnauthenticated is returned when a request that needs an identity
	// arrives on a session that has not authenticated.
	ErrUnauthenticated = errors.New("unauthenticated access")

	// ErrMalformed is returned when a frame or its payload cannot be decoded.
	ErrMalformed = errors.New("malformed message")
)

// UnknownTypeError carries the discriminant of a frame outside the protocol.
// It matches ErrUnknownMessageType with errors.Is.
type UnknownTypeError struct {
	Type MessageType
}

func (e *UnknownTypeError) Error() string {
	return fmt.Sprintf("%s: %d", ErrUnknownMessageType, int(e.Type))
}

// Is reports whether target is ErrUnknownMessageType.
func (*UnknownTypeError) Is(target error) bool {
	return target == ErrUnknownMessageType
}

// Request is an inbound frame decoded into its typed variant.
type Request interface {
	// Type returns the discriminant the request was decoded from.
	Type() MessageType
	// Name is a short label used in logs and close reasons.
	Name() string
}

// Authenticate carries an identity assertion.
type Authenticate struct{ Token string }

// PostMessage appends text to the sender's current room.
type PostMessage struct{ Text string }

// DirectMessage sends text to every live session of Recipient.
type DirectMessage struct {
	Recipient string
	Text      string
}

// AddFriend requests (or completes) a friendship with Target.
type AddFriend struct{ Target string }

// AddFoe marks Target as a foe.
type AddFoe struct{ Target string }

// RemoveFriend retracts a friendship with Target.
type RemoveFriend struct{ Target string }

// RemoveFoe retracts the sender's foe mark on Target.
type RemoveFoe struct{ Target string }

// DismissFriendRequest drops a pending request sent by Requester.
type DismissFriendRequest struct{ Requester string }

// CreateRoom creates a room owned by the sender.
type CreateRoom struct{}

// JoinRoom moves the sender into RoomID.
type JoinRoom struct{ RoomID int64 }

// LeaveRoom removes the sender from their current room.
type LeaveRoom struct{}

func (Authenticate) Type() MessageType         { return TypeAuthenticate }
func (PostMessage) Type() MessageType          { return TypeMessage }
func (DirectMessage) Type() MessageType        { return TypeMessage }
func (AddFriend) Type() MessageType            { return TypeAddFriend }
func (AddFoe) Type() MessageType               { return TypeAddFoe }
func (RemoveFriend) Type() MessageType         { return TypeRemoveFriend }
func (RemoveFoe) Type() MessageType            { return TypeRemoveFoe }
func (DismissFriendRequest) Type() MessageType { return TypeDismissFriendRequest }
func (CreateRoom) Type() MessageType           { return TypeCreateRoom }
func (JoinRoom) Type() MessageType             { return TypeJoinRoom }
func (LeaveRoom) Type() MessageType            { return TypeLeaveRoom }

func (Authenticate) Name() string         { return "authenticate" }
func (PostMessage) Name() string          { return "send message" }
func (DirectMessage) Name() string        { return "send direct message" }
func (AddFriend) Name() string            { return "add friend" }
func (AddFoe) Name() string               { return "add foe" }
func (RemoveFriend) Name() string         { return "remove friend" }
func (RemoveFoe) Name() string            { return "remove foe" }
func (DismissFriendRequest) Name() string { return "dismiss friend request" }
func (CreateRoom) Name() string           { return "create room" }
func (JoinRoom) Name() string             { return "join room" }
func (LeaveRoom) Name() string            { return "leave room" }

// frame is the raw envelope of an inbound message.
type frame struct {
	Type    *MessageType    `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

type textPayload struct {
	Recipient string `json:"recipient"`
	Text      string `json:"text"`
}

// Decode parses one inbound frame. Errors wrap ErrMalformed or
// ErrUnknownMessageType.
func Decode(data []byte) (Request, error) {
	var f frame
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if f.Type == nil {
		return nil, fmt.Errorf("%w: missing type", ErrMalformed)
	}

	switch *f.Type {
	case TypeAuthenticate:
		token, err := decodeString(f.Payload)
		if err != nil {
			return nil, err
		}
		return Authenticate{Token: token}, nil
	case TypeMessage:
		var p textPayload
		if err := decodePayload(f.Payload, &p); err != nil {
			return nil, err
		}
		if p.Recipient != "" {
			return DirectMessage(p), nil
		}
		return PostMessage{Text: p.Text}, nil
	case TypeAddFriend, TypeAddFoe, TypeRemoveFriend, TypeRemoveFoe, TypeDismissFriendRequest:
		name, err := decodeString(f.Payload)
		if err != nil {
			return nil, err
		}
		return targeted(*f.Type, strings.TrimSpace(name)), nil
	case TypeCreateRoom:
		return CreateRoom{}, nil
	case TypeJoinRoom:
		var id int64
		if err := decodePayload(f.Payload, &id); err != nil {
			return nil, err
		}
		return JoinRoom{RoomID: id}, nil
	case TypeLeaveRoom:
		return LeaveRoom{}, nil
	default:
		return nil, &UnknownTypeError{Type: *f.Type}
	}
}

func targeted(t MessageType, name string) Request {
	switch t {
	case TypeAddFriend:
		return AddFriend{Target: name}
	case TypeAddFoe:
		return AddFoe{Target: name}
	case TypeRemoveFriend:
		return RemoveFriend{Target: name}
	case TypeRemoveFoe:
		return RemoveFoe{Target: name}
	default:
		return DismissFriendRequest{Requester: name}
	}
}

func decodeString(raw json.RawMessage) (string, error) {
	var s string
	if err := decodePayload(raw, &s); err != nil {
		return "", err
	}
	return s, nil
}

func decodePayload(raw json.RawMessage, v any) error {
	if len(raw) == 0 {
		return fmt.Errorf("%w: missing payload", ErrMalformed)
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return nil
}
