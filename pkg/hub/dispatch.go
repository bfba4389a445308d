package hub

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"unicode/utf8"

	"github.com/txn2/presence/pkg/audit"
	"github.com/txn2/presence/pkg/protocol"
	"github.com/txn2/presence/pkg/relation"
	"github.com/txn2/presence/pkg/room"
	"github.com/txn2/presence/pkg/session"
	"github.com/txn2/presence/pkg/social"
)

// Close reasons sent with policy-violation closes.
const (
	reasonMalformedToken = "JWT malformed."
	reasonUnknownUser    = "Unknown user."
	reasonDuplicateLogin = "Another login detected."
	reasonMalformed      = "Received malformed payload."
)

// recoverable errors are reported to the actor verbatim.
var recoverable = []error{
	social.ErrTargetUnknown,
	social.ErrSelfReference,
	social.ErrAlreadyFriends,
	social.ErrAlreadyFoe,
	room.ErrNoSuchRoom,
	room.ErrAlreadyMember,
	room.ErrNotInRoom,
	ErrInvalidText,
	ErrRecipientOffline,
}

func (h *Hub) receive(handle string, data []byte) {
	s, ok := h.sessions.Get(handle)
	if !ok {
		slog.Debug("frame for unknown connection", "conn", handle)
		return
	}

	req, err := protocol.Decode(data)
	if err != nil {
		var unknown *protocol.UnknownTypeError
		if errors.As(err, &unknown) {
			h.terminate(s, protocol.ClosePolicyViolation,
				fmt.Sprintf("Received payload of invalid type: %d", int(unknown.Type)))
			return
		}
		slog.Debug("malformed frame", "conn", handle, "error", err)
		h.terminate(s, protocol.ClosePolicyViolation, reasonMalformed)
		return
	}

	if a, ok := req.(protocol.Authenticate); ok {
		h.authenticate(s, a.Token)
		return
	}
	if !s.Authenticated {
		h.terminate(s, protocol.ClosePolicyViolation,
			fmt.Sprintf("Attempt to %s while unauthenticated.", req.Name()))
		return
	}
	h.dispatch(s, req)
}

func (h *Hub) authenticate(s *session.Session, token string) {
	ev := audit.NewEvent(audit.ActionAuthenticate).WithConnection(s.Handle())

	claims, err := h.verifier.Verify(token)
	if err != nil {
		slog.Info("rejected identity assertion", "conn", s.Handle(), "error", err)
		h.record(ev.WithResult(err))
		h.terminate(s, protocol.ClosePolicyViolation, reasonMalformedToken)
		return
	}
	ev = ev.WithActor(claims.Subject)
	if err := claims.CheckAudience(h.cfg.Channel); err != nil {
		slog.Info("rejected identity assertion", "conn", s.Handle(), "error", err)
		h.record(ev.WithResult(err))
		h.terminate(s, protocol.ClosePolicyViolation, fmt.Sprintf("Wrong JWT audience: %s. Expected %q.",
			strings.Join(claims.Audience, ", "), h.cfg.Channel))
		return
	}

	ctx, cancel := h.storeContext()
	defer cancel()

	id, err := h.store.FindIDByName(ctx, claims.Subject)
	if errors.Is(err, relation.ErrNotFound) {
		h.record(ev.WithResult(err))
		h.terminate(s, protocol.ClosePolicyViolation, reasonUnknownUser)
		return
	}
	if err != nil {
		slog.Error("resolving identity", "conn", s.Handle(), "user", claims.Subject, "error", err)
		h.record(ev.WithResult(err))
		h.send(s, protocol.Error(fmt.Sprintf("Failed to authenticate: %s", ErrUnavailable)))
		return
	}
	identity := relation.Identity{ID: id, Name: claims.Subject}

	if s.Authenticated && s.Identity != identity && s.Room != 0 {
		eff := h.rooms.Release(s.Identity.Name)
		h.sessions.SetRoom(s.Handle(), 0)
		h.applyRooms(eff)
	}
	displaced, err := h.sessions.Bind(s.Handle(), identity)
	if err != nil {
		slog.Error("binding session", "conn", s.Handle(), "error", err)
		h.record(ev.WithResult(err))
		return
	}
	for _, d := range displaced {
		h.terminate(d, protocol.ClosePolicyViolation, reasonDuplicateLogin)
	}

	slog.Info("authenticated", "conn", s.Handle(), "user", identity.Name)
	h.record(ev.WithResult(nil))
	h.send(s, protocol.Authenticated())
	h.pushViews(ctx, []relation.Identity{identity})
	h.send(s, protocol.Rooms(summaries(h.rooms.List())))
}

func (h *Hub) dispatch(s *session.Session, req protocol.Request) {
	ctx, cancel := h.storeContext()
	defer cancel()

	switch r := req.(type) {
	case protocol.PostMessage:
		h.postMessage(s, r)
	case protocol.DirectMessage:
		h.directMessage(s, r)
	case protocol.AddFriend:
		h.applySocial(ctx, s, req, r.Target, audit.ActionRequestFriend, h.social.RequestFriend)
	case protocol.AddFoe:
		h.applySocial(ctx, s, req, r.Target, audit.ActionRequestFoe, h.social.RequestFoe)
	case protocol.RemoveFriend:
		h.applySocial(ctx, s, req, r.Target, audit.ActionRemoveFriend, h.social.RemoveFriend)
	case protocol.RemoveFoe:
		h.applySocial(ctx, s, req, r.Target, audit.ActionRemoveFoe, h.social.RemoveFoe)
	case protocol.DismissFriendRequest:
		h.applySocial(ctx, s, req, r.Requester, audit.ActionDismiss, h.social.DismissFriendRequest)
	case protocol.CreateRoom:
		h.applyRooms(h.rooms.Create(s.Identity.Name))
	case protocol.JoinRoom:
		eff, err := h.rooms.Join(s.Identity.Name, room.ID(r.RoomID))
		if err != nil {
			h.reject(s, req, "", err)
			return
		}
		h.applyRooms(eff)
	case protocol.LeaveRoom:
		eff, err := h.rooms.Leave(s.Identity.Name)
		if err != nil {
			h.reject(s, req, "", err)
			return
		}
		h.applyRooms(eff)
	default:
		slog.Error("unhandled request", "conn", s.Handle(), "request", req.Name())
	}
}

type socialOp func(ctx context.Context, actor relation.Identity, target string) (social.Effect, error)

func (h *Hub) applySocial(ctx context.Context, s *session.Session, req protocol.Request, target string,
	action audit.Action, op socialOp,
) {
	ev := audit.NewEvent(action).
		WithConnection(s.Handle()).
		WithActor(s.Identity.Name).
		WithTarget(target)

	eff, err := op(ctx, s.Identity, target)
	h.record(ev.WithResult(err))
	if err != nil {
		h.reject(s, req, target, err)
		return
	}
	h.pushViews(ctx, eff.Affected)
}

// pushViews re-derives the views of each identity with a live session and
// sends them to all of its sessions.
func (h *Hub) pushViews(ctx context.Context, ids []relation.Identity) {
	for _, id := range ids {
		targets := h.sessions.ByName(id.Name)
		if len(targets) == 0 {
			continue
		}
		views, err := h.social.Derive(ctx, id.ID)
		if err != nil {
			slog.Error("deriving views", "user", id.Name, "error", err)
			for _, s := range targets {
				h.send(s, protocol.Error(fmt.Sprintf("Failed to load contacts: %s", ErrUnavailable)))
			}
			continue
		}
		for _, s := range targets {
			h.sessions.SetViews(s.Handle(), views)
			h.send(s, protocol.Friends(views.Friends))
			h.send(s, protocol.Foes(views.Foes))
			h.send(s, protocol.FriendRequests(views.Requests))
		}
	}
}

func (h *Hub) postMessage(s *session.Session, req protocol.PostMessage) {
	if err := h.validateText(req.Text); err != nil {
		h.reject(s, req, "", err)
		return
	}
	eff, err := h.rooms.Post(s.Identity.Name, req.Text)
	if err != nil {
		h.reject(s, req, "", err)
		return
	}
	h.applyRooms(eff)
}

func (h *Hub) directMessage(s *session.Session, req protocol.DirectMessage) {
	if err := h.validateText(req.Text); err != nil {
		h.reject(s, req, req.Recipient, err)
		return
	}
	if req.Recipient == s.Identity.Name {
		h.reject(s, req, req.Recipient, social.ErrSelfReference)
		return
	}
	recipients := h.sessions.ByName(req.Recipient)
	if len(recipients) == 0 {
		h.reject(s, req, req.Recipient, ErrRecipientOffline)
		return
	}

	author := s.Identity.Name
	for _, r := range recipients {
		h.send(r, protocol.Message(protocol.ChatMessage{Text: req.Text, Author: author, WindowName: author}))
	}
	h.send(s, protocol.Message(protocol.ChatMessage{Text: req.Text, WindowName: req.Recipient}))
}

func (h *Hub) validateText(text string) error {
	if strings.TrimSpace(text) == "" {
		return fmt.Errorf("%w: empty", ErrInvalidText)
	}
	if utf8.RuneCountInString(text) > h.cfg.MaxTextLength {
		return fmt.Errorf("%w: longer than %d characters", ErrInvalidText, h.cfg.MaxTextLength)
	}
	return nil
}

// reject sends exactly one error response to the actor. Errors outside the
// recoverable set are logged and replaced with ErrUnavailable.
func (h *Hub) reject(s *session.Session, req protocol.Request, subject string, err error) {
	msg := "Failed to " + req.Name()
	if subject != "" {
		msg += " " + subject
	}
	if isRecoverable(err) {
		msg += ": " + err.Error()
	} else {
		slog.Error("request failed", "conn", s.Handle(), "user", s.Name(), "request", req.Name(), "error", err)
		msg += ": " + ErrUnavailable.Error()
	}
	h.send(s, protocol.Error(msg))
}

func isRecoverable(err error) bool {
	for _, target := range recoverable {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

// record writes ev to the audit logger, if any. Failures are logged and
// otherwise ignored.
func (h *Hub) record(ev *audit.Event) {
	if h.audit == nil {
		return
	}
	ctx, cancel := h.storeContext()
	defer cancel()
	if err := h.audit.Log(ctx, *ev); err != nil {
		slog.Warn("recording audit event", "action", ev.Action, "conn", ev.Connection, "error", err)
	}
}
