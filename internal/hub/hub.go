// Package hub is the registry of live duel rooms.
package hub

import (
	"context"
	"errors"

	"github.com/DoyleJ11/word-duel-backend/internal/apperr"
	"github.com/DoyleJ11/word-duel-backend/internal/engine"
	"github.com/DoyleJ11/word-duel-backend/internal/room"
	"github.com/DoyleJ11/word-duel-backend/internal/types"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

var ErrClosed = errors.New("hub closed")

type HubMsg interface{ isHubMsg() }

type CreateRoom struct {
	Players [2]types.UserRef
	Reply   chan *room.Room
}

// GetRoom resolves a room for a member. Reply gets nil plus an error code
// when the room is unknown or userID is not seated in it.
type GetRoom struct {
	RoomID string
	UserID string
	Reply  chan lookup
}

type RemoveRoom struct {
	RoomID string
}

type UserOffline struct {
	UserID string
}

type CountRooms struct {
	Reply chan int
}

type ShutdownHub struct{}

func (CreateRoom) isHubMsg()  {}
func (GetRoom) isHubMsg()     {}
func (RemoveRoom) isHubMsg()  {}
func (UserOffline) isHubMsg() {}
func (CountRooms) isHubMsg()  {}
func (ShutdownHub) isHubMsg() {}

// Presence reports whether a user still has a live connection.
type Presence interface {
	IsOnline(userID string) bool
}

type Option func(*Hub)

// WithPresence has new rooms treat players who are already offline as having
// left, so the room finishes instead of idling in Lobby.
func WithPresence(p Presence) Option {
	return func(h *Hub) { h.presence = p }
}

type lookup struct {
	room *room.Room
	err  error
}

// Hub owns the room id -> room map and the user -> rooms index. Room
// settings other than id, players and reap hook come from template.
type Hub struct {
	inbox    chan HubMsg
	rooms    map[string]*room.Room
	members  map[string]map[string]struct{}
	template room.Config
	presence Presence
	log      *zap.Logger
	roomLog  *zap.Logger
	ctx      context.Context
	cancel   context.CancelFunc
}

func NewHub(parent context.Context, template room.Config, opts ...Option) *Hub {
	ctx, cancel := context.WithCancel(parent)
	log := template.Logger
	if log == nil {
		log = zap.NewNop()
	}
	h := &Hub{
		inbox:    make(chan HubMsg, 64),
		rooms:    make(map[string]*room.Room),
		members:  make(map[string]map[string]struct{}),
		template: template,
		log:      log.Named("hub"),
		roomLog:  log.Named("room"),
		ctx:      ctx,
		cancel:   cancel,
	}
	for _, opt := range opts {
		opt(h)
	}
	go h.loop()
	return h
}

func (h *Hub) Inbox() chan<- HubMsg { return h.inbox }

// CreateRoom opens a room for a and b and returns its id.
func (h *Hub) CreateRoom(ctx context.Context, a, b types.UserRef) (string, error) {
	reply := make(chan *room.Room, 1)
	if err := h.send(ctx, CreateRoom{Players: [2]types.UserRef{a, b}, Reply: reply}); err != nil {
		return "", err
	}
	select {
	case r := <-reply:
		return r.ID(), nil
	case <-ctx.Done():
		return "", ctx.Err()
	case <-h.ctx.Done():
		return "", ErrClosed
	}
}

// Route hands cmd to the room after checking membership. The registry only
// does the lookup; the room's own mailbox decides BUSY.
func (h *Hub) Route(ctx context.Context, roomID string, cmd engine.Command) error {
	reply := make(chan lookup, 1)
	if err := h.send(ctx, GetRoom{RoomID: roomID, UserID: cmd.UserID, Reply: reply}); err != nil {
		return err
	}
	var res lookup
	select {
	case res = <-reply:
	case <-ctx.Done():
		return ctx.Err()
	case <-h.ctx.Done():
		return ErrClosed
	}
	if res.err != nil {
		return res.err
	}
	return res.room.Submit(ctx, cmd)
}

// Remove forgets a room. Rooms call this on their way out.
func (h *Hub) Remove(roomID string) {
	h.enqueue(RemoveRoom{RoomID: roomID})
}

// UserOffline injects a leave into every room userID sits in.
func (h *Hub) UserOffline(userID string) {
	h.enqueue(UserOffline{UserID: userID})
}

func (h *Hub) Count() int {
	reply := make(chan int, 1)
	if !h.enqueue(CountRooms{Reply: reply}) {
		return 0
	}
	select {
	case n := <-reply:
		return n
	case <-h.ctx.Done():
		return 0
	}
}

func (h *Hub) Close() {
	h.enqueue(ShutdownHub{})
}

func (h *Hub) send(ctx context.Context, msg HubMsg) error {
	select {
	case h.inbox <- msg:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-h.ctx.Done():
		return ErrClosed
	}
}

func (h *Hub) enqueue(msg HubMsg) bool {
	select {
	case h.inbox <- msg:
		return true
	case <-h.ctx.Done():
		return false
	}
}

func (h *Hub) loop() {
	for {
		select {
		case <-h.ctx.Done():
			h.shutdown()
			return

		case m := <-h.inbox:
			switch msg := m.(type) {
			case CreateRoom:
				msg.Reply <- h.create(msg.Players)

			case GetRoom:
				r, ok := h.rooms[msg.RoomID]
				switch {
				case !ok:
					msg.Reply <- lookup{err: apperr.ErrNotFound}
				case !h.isMember(msg.UserID, msg.RoomID):
					msg.Reply <- lookup{err: apperr.ErrNotAuthorized}
				default:
					msg.Reply <- lookup{room: r}
				}

			case RemoveRoom:
				h.remove(msg.RoomID)

			case UserOffline:
				for id := range h.members[msg.UserID] {
					if r := h.rooms[id]; r != nil {
						r.Post(room.Disconnect{UserID: msg.UserID})
					}
				}

			case CountRooms:
				msg.Reply <- len(h.rooms)

			case ShutdownHub:
				h.shutdown()
				return
			}
		}
	}
}

func (h *Hub) create(players [2]types.UserRef) *room.Room {
	cfg := h.template
	cfg.ID = uuid.NewString()
	cfg.Players = players
	cfg.OnReap = h.Remove
	cfg.Logger = h.roomLog

	r := room.New(h.ctx, cfg)
	h.rooms[cfg.ID] = r
	for _, p := range players {
		if h.members[p.ID] == nil {
			h.members[p.ID] = make(map[string]struct{})
		}
		h.members[p.ID][cfg.ID] = struct{}{}
	}
	h.log.Info("room created",
		zap.String("room_id", cfg.ID),
		zap.String("player_a", players[0].ID),
		zap.String("player_b", players[1].ID))

	// presence drops the entry before notifying listeners, so a player who
	// is offline here either had their UserOffline handled before this room
	// existed or will have it handled after.
	if h.presence != nil {
		for _, p := range players {
			if !h.presence.IsOnline(p.ID) {
				h.log.Info("player offline at room creation",
					zap.String("room_id", cfg.ID), zap.String("user_id", p.ID))
				r.Post(room.Disconnect{UserID: p.ID})
			}
		}
	}
	return r
}

func (h *Hub) isMember(userID, roomID string) bool {
	_, ok := h.members[userID][roomID]
	return ok
}

func (h *Hub) remove(roomID string) {
	if _, ok := h.rooms[roomID]; !ok {
		return
	}
	delete(h.rooms, roomID)
	for userID, rooms := range h.members {
		delete(rooms, roomID)
		if len(rooms) == 0 {
			delete(h.members, userID)
		}
	}
	h.log.Debug("room removed", zap.String("room_id", roomID))
}

func (h *Hub) shutdown() {
	for _, r := range h.rooms {
		r.Post(room.Shutdown{})
	}
	clear(h.rooms)
	clear(h.members)
	h.cancel()
}
