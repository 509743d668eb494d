// Package invite runs the invite lifecycle between two online users.
package invite

import (
	"context"
	"errors"
	"time"

	"github.com/DoyleJ11/word-duel-backend/internal/apperr"
	"github.com/DoyleJ11/word-duel-backend/internal/types"
	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"
)

type State string

const (
	StatePending   State = "pending"
	StateAccepted  State = "accepted"
	StateRejected  State = "rejected"
	StateExpired   State = "expired"
	StateCancelled State = "cancelled"
)

const DefaultTTL = 60 * time.Second

var ErrClosed = errors.New("invite manager closed")

type Invite struct {
	ID        string
	From      types.UserRef
	To        types.UserRef
	CreatedAt time.Time
	State     State
}

func (i Invite) View() *types.InviteView {
	return &types.InviteView{
		ID:        i.ID,
		From:      i.From,
		To:        i.To,
		CreatedAt: i.CreatedAt,
		State:     string(i.State),
	}
}

// Presence is the slice of the presence directory the manager needs.
type Presence interface {
	IsOnline(userID string) bool
	Notify(userID string, msg types.ServerMessage) bool
}

// RoomCreator opens a duel room for an accepted invite.
type RoomCreator interface {
	CreateRoom(ctx context.Context, a, b types.UserRef) (string, error)
}

type Msg interface{ isInviteMsg() }

type sendMsg struct {
	From, To types.UserRef
	Reply    chan result
}

type respondMsg struct {
	Ctx         context.Context
	InviteID    string
	ResponderID string
	Accept      bool
	Reply       chan result
}

type expireMsg struct{ InviteID string }

type offlineMsg struct{ UserID string }

type countMsg struct{ Reply chan int }

type Shutdown struct{}

func (sendMsg) isInviteMsg()    {}
func (respondMsg) isInviteMsg() {}
func (expireMsg) isInviteMsg()  {}
func (offlineMsg) isInviteMsg() {}
func (countMsg) isInviteMsg()   {}
func (Shutdown) isInviteMsg()   {}

type result struct {
	Invite Invite
	Err    error
}

type pending struct {
	invite Invite
	timer  clockwork.Timer
}

type Config struct {
	TTL      time.Duration
	Presence Presence
	Rooms    RoomCreator
	Clock    clockwork.Clock
	Logger   *zap.Logger
}

// Manager owns every pending invite. All state changes happen on its own
// goroutine; callers talk to it through the inbox.
type Manager struct {
	inbox    chan Msg
	pending  map[string]*pending
	pairs    map[[2]string]string // unordered pair -> invite id
	ttl      time.Duration
	presence Presence
	rooms    RoomCreator
	clock    clockwork.Clock
	log      *zap.Logger
	ctx      context.Context
	cancel   context.CancelFunc
}

func NewManager(parent context.Context, cfg Config) *Manager {
	ctx, cancel := context.WithCancel(parent)
	if cfg.TTL <= 0 {
		cfg.TTL = DefaultTTL
	}
	if cfg.Clock == nil {
		cfg.Clock = clockwork.NewRealClock()
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	m := &Manager{
		inbox:    make(chan Msg, 64),
		pending:  make(map[string]*pending),
		pairs:    make(map[[2]string]string),
		ttl:      cfg.TTL,
		presence: cfg.Presence,
		rooms:    cfg.Rooms,
		clock:    cfg.Clock,
		log:      cfg.Logger.Named("invite"),
		ctx:      ctx,
		cancel:   cancel,
	}
	go m.loop()
	return m
}

func (m *Manager) Inbox() chan<- Msg { return m.inbox }

// Send creates a pending invite from -> to.
func (m *Manager) Send(ctx context.Context, from, to types.UserRef) (Invite, error) {
	reply := make(chan result, 1)
	return m.call(ctx, sendMsg{From: from, To: to, Reply: reply}, reply)
}

// Respond resolves a pending invite. Only the invitee may respond.
func (m *Manager) Respond(ctx context.Context, inviteID, responderID string, accept bool) (Invite, error) {
	reply := make(chan result, 1)
	return m.call(ctx, respondMsg{
		Ctx:         ctx,
		InviteID:    inviteID,
		ResponderID: responderID,
		Accept:      accept,
		Reply:       reply,
	}, reply)
}

// UserOffline cancels every pending invite involving userID.
func (m *Manager) UserOffline(userID string) {
	m.enqueue(offlineMsg{UserID: userID})
}

// Pending reports how many invites are waiting for an answer.
func (m *Manager) Pending() int {
	reply := make(chan int, 1)
	if !m.enqueue(countMsg{Reply: reply}) {
		return 0
	}
	select {
	case n := <-reply:
		return n
	case <-m.ctx.Done():
		return 0
	}
}

func (m *Manager) Close() {
	m.enqueue(Shutdown{})
}

func (m *Manager) call(ctx context.Context, msg Msg, reply chan result) (Invite, error) {
	select {
	case m.inbox <- msg:
	case <-ctx.Done():
		return Invite{}, ctx.Err()
	case <-m.ctx.Done():
		return Invite{}, ErrClosed
	}
	select {
	case r := <-reply:
		return r.Invite, r.Err
	case <-ctx.Done():
		return Invite{}, ctx.Err()
	case <-m.ctx.Done():
		return Invite{}, ErrClosed
	}
}

func (m *Manager) enqueue(msg Msg) bool {
	select {
	case m.inbox <- msg:
		return true
	case <-m.ctx.Done():
		return false
	}
}

func (m *Manager) loop() {
	for {
		select {
		case <-m.ctx.Done():
			m.shutdown()
			return

		case msg := <-m.inbox:
			switch msg := msg.(type) {
			case sendMsg:
				inv, err := m.handleSend(msg.From, msg.To)
				msg.Reply <- result{Invite: inv, Err: err}

			case respondMsg:
				inv, err := m.handleRespond(msg)
				msg.Reply <- result{Invite: inv, Err: err}

			case expireMsg:
				m.handleExpire(msg.InviteID)

			case offlineMsg:
				m.handleOffline(msg.UserID)

			case countMsg:
				msg.Reply <- len(m.pending)

			case Shutdown:
				m.shutdown()
				return
			}
		}
	}
}

func (m *Manager) handleSend(from, to types.UserRef) (Invite, error) {
	if from.ID == "" || to.ID == "" || from.ID == to.ID {
		return Invite{}, apperr.Errorf(apperr.CodeInvalidRequest, "cannot invite yourself")
	}
	if m.presence != nil && !m.presence.IsOnline(to.ID) {
		return Invite{}, apperr.ErrNotOnline
	}
	if _, ok := m.pairs[pairKey(from.ID, to.ID)]; ok {
		return Invite{}, apperr.ErrAlreadyPending
	}

	inv := Invite{
		ID:        uuid.NewString(),
		From:      from,
		To:        to,
		CreatedAt: m.clock.Now(),
		State:     StatePending,
	}
	id := inv.ID
	p := &pending{invite: inv}
	p.timer = m.clock.AfterFunc(m.ttl, func() {
		m.enqueue(expireMsg{InviteID: id})
	})
	m.pending[id] = p
	m.pairs[pairKey(from.ID, to.ID)] = id

	m.log.Debug("invite sent",
		zap.String("invite_id", id),
		zap.String("from", from.ID),
		zap.String("to", to.ID))

	m.notify(to.ID, types.ServerMessage{Type: types.OutInviteReceived, Invite: inv.View()})
	m.notify(from.ID, types.ServerMessage{Type: types.OutInviteSent, Invite: inv.View()})
	return inv, nil
}

func (m *Manager) handleRespond(msg respondMsg) (Invite, error) {
	p, ok := m.pending[msg.InviteID]
	if !ok {
		return Invite{}, apperr.ErrNotFound
	}
	inv := p.invite
	if inv.To.ID != msg.ResponderID {
		return Invite{}, apperr.ErrNotAuthorized
	}

	if !msg.Accept {
		m.resolve(p, StateRejected)
		inv.State = StateRejected
		m.notify(inv.From.ID, types.ServerMessage{Type: types.OutInviteRejected, InviteID: inv.ID})
		return inv, nil
	}

	if m.presence != nil && !m.presence.IsOnline(inv.From.ID) {
		return Invite{}, apperr.ErrNotOnline
	}

	// A failed room creation leaves the invite pending so the invitee can retry.
	roomID, err := m.rooms.CreateRoom(msg.Ctx, inv.From, inv.To)
	if err != nil {
		m.log.Error("create room for invite", zap.String("invite_id", inv.ID), zap.Error(err))
		return Invite{}, err
	}
	m.resolve(p, StateAccepted)
	inv.State = StateAccepted

	from, to := inv.From, inv.To
	m.notify(from.ID, types.ServerMessage{
		Type: types.OutInviteAccepted, InviteID: inv.ID, RoomID: roomID, Opponent: &to,
	})
	m.notify(to.ID, types.ServerMessage{
		Type: types.OutInviteAccepted, InviteID: inv.ID, RoomID: roomID, Opponent: &from,
	})
	return inv, nil
}

func (m *Manager) handleExpire(inviteID string) {
	p, ok := m.pending[inviteID]
	if !ok {
		// already resolved; stale timer
		return
	}
	m.resolve(p, StateExpired)
	inv := p.invite
	msg := types.ServerMessage{Type: types.OutInviteExpired, InviteID: inv.ID}
	m.notify(inv.From.ID, msg)
	m.notify(inv.To.ID, msg)
}

func (m *Manager) handleOffline(userID string) {
	for _, p := range m.pending {
		inv := p.invite
		var other string
		switch userID {
		case inv.From.ID:
			other = inv.To.ID
		case inv.To.ID:
			other = inv.From.ID
		default:
			continue
		}
		m.resolve(p, StateCancelled)
		m.notify(other, types.ServerMessage{
			Type:     types.OutInviteExpired,
			InviteID: inv.ID,
			Reason:   string(StateCancelled),
		})
	}
}

// resolve drops p from the pending set. Deleting while ranging over the map
// in handleOffline is fine.
func (m *Manager) resolve(p *pending, s State) {
	if p.timer != nil {
		p.timer.Stop()
	}
	delete(m.pending, p.invite.ID)
	delete(m.pairs, pairKey(p.invite.From.ID, p.invite.To.ID))
	m.log.Debug("invite resolved", zap.String("invite_id", p.invite.ID), zap.String("state", string(s)))
}

func (m *Manager) notify(userID string, msg types.ServerMessage) {
	if m.presence == nil {
		return
	}
	m.presence.Notify(userID, msg)
}

func (m *Manager) shutdown() {
	for _, p := range m.pending {
		if p.timer != nil {
			p.timer.Stop()
		}
	}
	clear(m.pending)
	clear(m.pairs)
	m.cancel()
}

func pairKey(a, b string) [2]string {
	if a > b {
		a, b = b, a
	}
	return [2]string{a, b}
}
