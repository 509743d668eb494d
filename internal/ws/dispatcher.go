package ws

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/DoyleJ11/word-duel-backend/internal/apperr"
	"github.com/DoyleJ11/word-duel-backend/internal/auth"
	"github.com/DoyleJ11/word-duel-backend/internal/engine"
	"github.com/DoyleJ11/word-duel-backend/internal/friends"
	"github.com/DoyleJ11/word-duel-backend/internal/hub"
	"github.com/DoyleJ11/word-duel-backend/internal/invite"
	"github.com/DoyleJ11/word-duel-backend/internal/presence"
	"github.com/DoyleJ11/word-duel-backend/internal/types"
	"go.uber.org/zap"
)

const defaultEventTimeout = 5 * time.Second

// Dispatcher turns inbound client events into calls on the presence
// directory, invite manager and room registry. It knows nothing about the
// transport; errors go back to the originating connection only.
type Dispatcher struct {
	presence *presence.Directory
	invites  *invite.Manager
	rooms    *hub.Hub
	friends  friends.Directory
	verifier auth.Verifier
	timeout  time.Duration
	log      *zap.Logger
}

type Deps struct {
	Presence *presence.Directory
	Invites  *invite.Manager
	Rooms    *hub.Hub
	Friends  friends.Directory
	Verifier auth.Verifier
	// EventTimeout bounds how long one inbound event may take.
	EventTimeout time.Duration
	Logger       *zap.Logger
}

func NewDispatcher(deps Deps) *Dispatcher {
	if deps.EventTimeout <= 0 {
		deps.EventTimeout = defaultEventTimeout
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	return &Dispatcher{
		presence: deps.Presence,
		invites:  deps.Invites,
		rooms:    deps.Rooms,
		friends:  deps.Friends,
		verifier: deps.Verifier,
		timeout:  deps.EventTimeout,
		log:      deps.Logger.Named("gateway"),
	}
}

// Session is the per-connection state. It is only touched by the
// connection's read loop.
type Session struct {
	conn      presence.Conn
	user      *types.UserRef
	announced bool
}

// NewSession starts a session for conn. user is the identity verified at the
// handshake, or nil when the client will send its token in announceOnline.
func (d *Dispatcher) NewSession(conn presence.Conn, user *types.UserRef) *Session {
	return &Session{conn: conn, user: user}
}

func (s *Session) User() (types.UserRef, bool) {
	if s.user == nil || !s.announced {
		return types.UserRef{}, false
	}
	return *s.user, true
}

func (d *Dispatcher) Handle(ctx context.Context, s *Session, msg types.ClientMessage) {
	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	if err := d.handle(ctx, s, msg); err != nil {
		d.reply(s, msg.Type, err)
	}
}

// Reject reports a malformed frame back to the client.
func (d *Dispatcher) Reject(s *Session, err error) {
	d.reply(s, "", apperr.Errorf(apperr.CodeInvalidRequest, "malformed message: %v", err))
}

func (d *Dispatcher) reply(s *Session, event string, err error) {
	code := apperr.CodeOf(err)
	fields := []zap.Field{zap.String("conn_id", s.conn.ID()), zap.String("event", event), zap.Error(err)}
	if code == apperr.CodeInternal {
		d.log.Error("event failed", fields...)
	} else {
		d.log.Debug("event rejected", fields...)
	}
	s.conn.Send(types.ErrorMessage(string(code), apperr.MessageOf(err)))
}

func (d *Dispatcher) handle(ctx context.Context, s *Session, msg types.ClientMessage) error {
	if msg.Type == types.InAnnounceOnline {
		return d.announce(ctx, s, msg.Token)
	}
	user, ok := s.User()
	if !ok {
		return apperr.Errorf(apperr.CodeUnauthenticated, "announce before sending %q", msg.Type)
	}
	if e, ok := d.presence.Lookup(user.ID); !ok || e.Conn.ID() != s.conn.ID() {
		return apperr.Errorf(apperr.CodeUnauthenticated, "connection superseded by a newer one")
	}

	switch msg.Type {
	case types.InListOnlineFriends:
		return d.sendOnlineList(ctx, s, user)

	case types.InInviteSend:
		return d.sendInvite(ctx, user, msg.ToUserID)

	case types.InInviteRespond:
		if msg.InviteID == "" {
			return apperr.Errorf(apperr.CodeInvalidRequest, "inviteId is required")
		}
		_, err := d.invites.Respond(ctx, msg.InviteID, user.ID, msg.Accept)
		return err

	case types.InRoomReady:
		return d.route(ctx, msg.RoomID, engine.Command{Type: engine.CmdReady, UserID: user.ID})

	case types.InRoomGuess:
		return d.route(ctx, msg.RoomID, engine.Command{Type: engine.CmdGuess, UserID: user.ID, Text: msg.Text})

	case types.InRoomLeave:
		err := d.route(ctx, msg.RoomID, engine.Command{Type: engine.CmdLeave, UserID: user.ID})
		if errors.Is(err, apperr.ErrNotFound) {
			// room already reaped
			return nil
		}
		return err

	default:
		return apperr.Errorf(apperr.CodeInvalidRequest, "unknown event type %q", msg.Type)
	}
}

func (d *Dispatcher) announce(ctx context.Context, s *Session, token string) error {
	if token != "" {
		user, err := d.verifier.Verify(token)
		if err != nil {
			return err
		}
		if s.announced && s.user != nil && s.user.ID != user.ID {
			return apperr.Errorf(apperr.CodeInvalidRequest, "connection already announced as another user")
		}
		s.user = &user
	}
	if s.user == nil {
		return apperr.Errorf(apperr.CodeUnauthenticated, "token required")
	}

	user := *s.user
	first := !s.announced
	if old := d.presence.Announce(user, s.conn); old != nil {
		old.Close()
		d.log.Info("closed superseded connection", zap.String("user_id", user.ID), zap.String("conn_id", old.ID()))
	}
	s.announced = true

	ids, err := d.friends.FriendsOf(ctx, user.ID)
	if err != nil {
		// presence still counts; the list is just empty
		d.log.Warn("loading friends", zap.String("user_id", user.ID), zap.Error(err))
	}
	online := d.presence.OnlineFriendsOf(user.ID, ids)
	s.conn.Send(types.ServerMessage{Type: types.OutOnlineList, Friends: online})

	if first {
		for _, f := range online {
			d.presence.Notify(f.ID, types.ServerMessage{Type: types.OutUserOnline, UserID: user.ID})
		}
		d.log.Info("user announced", zap.String("user_id", user.ID), zap.String("conn_id", s.conn.ID()))
	}
	return nil
}

func (d *Dispatcher) sendOnlineList(ctx context.Context, s *Session, user types.UserRef) error {
	ids, err := d.friends.FriendsOf(ctx, user.ID)
	if err != nil {
		return fmt.Errorf("loading friends: %w", err)
	}
	s.conn.Send(types.ServerMessage{
		Type:    types.OutOnlineList,
		Friends: d.presence.OnlineFriendsOf(user.ID, ids),
	})
	return nil
}

func (d *Dispatcher) sendInvite(ctx context.Context, from types.UserRef, toID string) error {
	if toID == "" {
		return apperr.Errorf(apperr.CodeInvalidRequest, "toUserId is required")
	}
	if toID == from.ID {
		_, err := d.invites.Send(ctx, from, from)
		return err
	}
	entry, ok := d.presence.Lookup(toID)
	if !ok {
		return apperr.ErrNotOnline
	}
	ok, err := friends.AreFriends(ctx, d.friends, from.ID, toID)
	if err != nil {
		return fmt.Errorf("checking friendship: %w", err)
	}
	if !ok {
		return apperr.Errorf(apperr.CodeNotAuthorized, "can only invite friends")
	}
	_, err = d.invites.Send(ctx, from, entry.User)
	return err
}

func (d *Dispatcher) route(ctx context.Context, roomID string, cmd engine.Command) error {
	if roomID == "" {
		return apperr.Errorf(apperr.CodeInvalidRequest, "roomId is required")
	}
	return d.rooms.Route(ctx, roomID, cmd)
}

// Close ends the session. Only the user's current connection takes the user
// offline; a superseded one just goes away.
func (d *Dispatcher) Close(s *Session) {
	user, ok := s.User()
	if !ok {
		return
	}
	if !d.presence.Remove(user.ID, s.conn.ID()) {
		return
	}
	d.log.Info("user offline", zap.String("user_id", user.ID))

	ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
	defer cancel()
	ids, err := d.friends.FriendsOf(ctx, user.ID)
	if err != nil {
		d.log.Warn("loading friends", zap.String("user_id", user.ID), zap.Error(err))
		return
	}
	for _, f := range d.presence.OnlineFriendsOf(user.ID, ids) {
		d.presence.Notify(f.ID, types.ServerMessage{Type: types.OutUserOffline, UserID: user.ID})
	}
}
