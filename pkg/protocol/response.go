package protocol

import "time"

// ResponseType discriminates outbound frames.
type ResponseType int

// Outbound response types.
const (
	RespAuthenticated ResponseType = iota
	RespMessage
	RespFriends
	RespFoes
	RespOnlinePeople
	RespError
	RespFriendRequests
	RespRoom
	RespRooms
)

// Response is an outbound frame.
type Response struct {
	Type    ResponseType `json:"type"`
	Payload any          `json:"payload,omitempty"`
}

// ChatMessage is the payload of a direct message delivery. WindowName names
// the conversation the message belongs to from the receiver's point of view;
// an empty Author marks the sender's own echo.
type ChatMessage struct {
	Text       string `json:"text"`
	Author     string `json:"author"`
	WindowName string `json:"windowName"`
}

// ChatEntry is one line of a room's history.
type ChatEntry struct {
	Text      string    `json:"text"`
	Author    string    `json:"author"`
	Timestamp time.Time `json:"timestamp"`
}

// RoomView is the full room snapshot pushed to members.
type RoomView struct {
	ID      int64       `json:"id"`
	Owner   string      `json:"owner"`
	Members []string    `json:"members"`
	History []ChatEntry `json:"history"`
}

// RoomSummary is one entry of the global rooms listing.
type RoomSummary struct {
	ID      int64  `json:"id"`
	Owner   string `json:"owner"`
	Members int    `json:"members"`
}

// Authenticated acknowledges a successful identity assertion.
func Authenticated() Response {
	return Response{Type: RespAuthenticated}
}

// Error reports a recoverable failure to the requester.
func Error(msg string) Response {
	return Response{Type: RespError, Payload: msg}
}

// Friends carries the receiver's friend list.
func Friends(names []string) Response {
	return Response{Type: RespFriends, Payload: nonNil(names)}
}

// Foes carries the identities the receiver has marked as foes.
func Foes(names []string) Response {
	return Response{Type: RespFoes, Payload: nonNil(names)}
}

// FriendRequests carries the names that have a pending request to the receiver.
func FriendRequests(names []string) Response {
	return Response{Type: RespFriendRequests, Payload: nonNil(names)}
}

// OnlinePeople carries the presence snapshot.
func OnlinePeople(names []string) Response {
	return Response{Type: RespOnlinePeople, Payload: nonNil(names)}
}

// Message delivers a direct chat message.
func Message(m ChatMessage) Response {
	return Response{Type: RespMessage, Payload: m}
}

// Room pushes a room snapshot.
func Room(v RoomView) Response {
	if v.Members == nil {
		v.Members = []string{}
	}
	if v.History == nil {
		v.History = []ChatEntry{}
	}
	return Response{Type: RespRoom, Payload: v}
}

// NoRoom tells the receiver they are no longer in any room.
func NoRoom() Response {
	return Response{Type: RespRoom}
}

// Rooms carries the global rooms listing.
func Rooms(rooms []RoomSummary) Response {
	if rooms == nil {
		rooms = []RoomSummary{}
	}
	return Response{Type: RespRooms, Payload: rooms}
}

func nonNil(names []string) []string {
	if names == nil {
		return []string{}
	}
	return names
}
