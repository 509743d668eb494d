package invite

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/DoyleJ11/word-duel-backend/internal/apperr"
	"github.com/DoyleJ11/word-duel-backend/internal/types"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

var (
	ana  = types.UserRef{ID: "ana", DisplayName: "Ana"}
	beto = types.UserRef{ID: "beto", DisplayName: "Beto"}
	caio = types.UserRef{ID: "caio", DisplayName: "Caio"}
)

type fakePresence struct {
	mu     sync.Mutex
	online map[string]bool
	inbox  map[string][]types.ServerMessage
}

func newFakePresence(ids ...string) *fakePresence {
	p := &fakePresence{online: map[string]bool{}, inbox: map[string][]types.ServerMessage{}}
	for _, id := range ids {
		p.online[id] = true
	}
	return p
}

func (p *fakePresence) IsOnline(id string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.online[id]
}

func (p *fakePresence) Notify(id string, msg types.ServerMessage) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.inbox[id] = append(p.inbox[id], msg)
	return true
}

func (p *fakePresence) typesFor(id string) []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []string
	for _, m := range p.inbox[id] {
		out = append(out, m.Type)
	}
	return out
}

func (p *fakePresence) count(id, msgType string) int {
	n := 0
	for _, t := range p.typesFor(id) {
		if t == msgType {
			n++
		}
	}
	return n
}

type fakeRooms struct {
	mu    sync.Mutex
	calls int
	err   error
}

func (r *fakeRooms) CreateRoom(_ context.Context, a, b types.UserRef) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls++
	if r.err != nil {
		return "", r.err
	}
	return "room-" + a.ID + "-" + b.ID, nil
}

func newManager(t *testing.T, p *fakePresence, rooms *fakeRooms) (*Manager, *clockwork.FakeClock) {
	t.Helper()
	clock := clockwork.NewFakeClock()
	m := NewManager(context.Background(), Config{
		TTL:      DefaultTTL,
		Presence: p,
		Rooms:    rooms,
		Clock:    clock,
		Logger:   zaptest.NewLogger(t),
	})
	t.Cleanup(m.Close)
	return m, clock
}

func TestSend_NotifiesBothSides(t *testing.T) {
	p := newFakePresence("ana", "beto")
	m, _ := newManager(t, p, &fakeRooms{})

	inv, err := m.Send(context.Background(), ana, beto)
	require.NoError(t, err)
	assert.Equal(t, StatePending, inv.State)
	assert.NotEmpty(t, inv.ID)

	assert.Equal(t, []string{types.OutInviteReceived}, p.typesFor("beto"))
	assert.Equal(t, []string{types.OutInviteSent}, p.typesFor("ana"))
	assert.Equal(t, 1, m.Pending())
}

func TestSend_Errors(t *testing.T) {
	p := newFakePresence("ana", "beto")
	m, _ := newManager(t, p, &fakeRooms{})
	ctx := context.Background()

	_, err := m.Send(ctx, ana, caio)
	assert.ErrorIs(t, err, apperr.ErrNotOnline)

	_, err = m.Send(ctx, ana, ana)
	assert.Equal(t, apperr.CodeInvalidRequest, apperr.CodeOf(err))

	_, err = m.Send(ctx, ana, beto)
	require.NoError(t, err)
	_, err = m.Send(ctx, beto, ana)
	assert.ErrorIs(t, err, apperr.ErrAlreadyPending, "pair is unordered")
	_, err = m.Send(ctx, ana, beto)
	assert.ErrorIs(t, err, apperr.ErrAlreadyPending)
}

func TestRespond_AcceptCreatesRoom(t *testing.T) {
	p := newFakePresence("ana", "beto")
	rooms := &fakeRooms{}
	m, _ := newManager(t, p, rooms)
	ctx := context.Background()

	inv, err := m.Send(ctx, ana, beto)
	require.NoError(t, err)

	_, err = m.Respond(ctx, inv.ID, "ana", true)
	assert.ErrorIs(t, err, apperr.ErrNotAuthorized, "inviter cannot accept")

	got, err := m.Respond(ctx, inv.ID, "beto", true)
	require.NoError(t, err)
	assert.Equal(t, StateAccepted, got.State)
	assert.Equal(t, 1, rooms.calls)
	assert.Equal(t, 1, p.count("ana", types.OutInviteAccepted))
	assert.Equal(t, 1, p.count("beto", types.OutInviteAccepted))

	_, err = m.Respond(ctx, inv.ID, "beto", true)
	assert.ErrorIs(t, err, apperr.ErrNotFound)
	assert.Equal(t, 0, m.Pending())

	_, err = m.Send(ctx, beto, ana)
	assert.NoError(t, err, "resolved pair can invite again")
}

func TestRespond_RoomFailureKeepsInvitePending(t *testing.T) {
	p := newFakePresence("ana", "beto")
	rooms := &fakeRooms{err: errors.New("registry down")}
	m, _ := newManager(t, p, rooms)

	inv, err := m.Send(context.Background(), ana, beto)
	require.NoError(t, err)

	_, err = m.Respond(context.Background(), inv.ID, "beto", true)
	require.Error(t, err)
	assert.Equal(t, apperr.CodeInternal, apperr.CodeOf(err))
	assert.Equal(t, 1, m.Pending())
	assert.Zero(t, p.count("ana", types.OutInviteAccepted))
}

func TestRespond_RejectNotifiesInviter(t *testing.T) {
	p := newFakePresence("ana", "beto")
	rooms := &fakeRooms{}
	m, _ := newManager(t, p, rooms)

	inv, err := m.Send(context.Background(), ana, beto)
	require.NoError(t, err)

	got, err := m.Respond(context.Background(), inv.ID, "beto", false)
	require.NoError(t, err)
	assert.Equal(t, StateRejected, got.State)
	assert.Equal(t, 1, p.count("ana", types.OutInviteRejected))
	assert.Zero(t, rooms.calls)
}

func TestExpiry_FiresExactlyOnce(t *testing.T) {
	p := newFakePresence("ana", "beto")
	m, clock := newManager(t, p, &fakeRooms{})

	inv, err := m.Send(context.Background(), ana, beto)
	require.NoError(t, err)

	clock.Advance(DefaultTTL - time.Second)
	assert.Equal(t, 1, m.Pending())

	clock.Advance(time.Second)
	require.Eventually(t, func() bool {
		return p.count("ana", types.OutInviteExpired) == 1 && p.count("beto", types.OutInviteExpired) == 1
	}, time.Second, 5*time.Millisecond)

	clock.Advance(DefaultTTL)
	assert.Equal(t, 0, m.Pending())
	assert.Equal(t, 1, p.count("ana", types.OutInviteExpired))

	_, err = m.Respond(context.Background(), inv.ID, "beto", true)
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestExpiry_StaleTimerAfterAcceptIsNoop(t *testing.T) {
	p := newFakePresence("ana", "beto")
	m, clock := newManager(t, p, &fakeRooms{})

	inv, err := m.Send(context.Background(), ana, beto)
	require.NoError(t, err)
	_, err = m.Respond(context.Background(), inv.ID, "beto", true)
	require.NoError(t, err)

	// the expire message can still sit in the inbox; inject it directly
	m.Inbox() <- expireMsg{InviteID: inv.ID}
	clock.Advance(2 * DefaultTTL)

	assert.Equal(t, 0, m.Pending())
	assert.Zero(t, p.count("ana", types.OutInviteExpired))
	assert.Zero(t, p.count("beto", types.OutInviteExpired))
}

func TestUserOffline_CancelsAndNotifiesOtherParty(t *testing.T) {
	p := newFakePresence("ana", "beto", "caio")
	m, _ := newManager(t, p, &fakeRooms{})
	ctx := context.Background()

	_, err := m.Send(ctx, ana, beto)
	require.NoError(t, err)
	_, err = m.Send(ctx, caio, ana)
	require.NoError(t, err)

	m.UserOffline("ana")
	assert.Equal(t, 0, m.Pending())

	for _, id := range []string{"beto", "caio"} {
		p.mu.Lock()
		last := p.inbox[id][len(p.inbox[id])-1]
		p.mu.Unlock()
		assert.Equal(t, types.OutInviteExpired, last.Type)
		assert.Equal(t, "cancelled", last.Reason)
	}
	assert.Zero(t, p.count("ana", types.OutInviteExpired))
}

func TestRespond_InviterGoneOffline(t *testing.T) {
	p := newFakePresence("ana", "beto")
	rooms := &fakeRooms{}
	m, _ := newManager(t, p, rooms)

	inv, err := m.Send(context.Background(), ana, beto)
	require.NoError(t, err)

	p.mu.Lock()
	p.online["ana"] = false
	p.mu.Unlock()

	_, err = m.Respond(context.Background(), inv.ID, beto.ID, true)
	assert.ErrorIs(t, err, apperr.ErrNotOnline)
	assert.Zero(t, rooms.calls)
	assert.Zero(t, p.count("beto", types.OutInviteAccepted))
}

func TestSend_PairKeyDoesNotCollide(t *testing.T) {
	xy := types.UserRef{ID: "x|y"}
	z := types.UserRef{ID: "z"}
	x := types.UserRef{ID: "x"}
	yz := types.UserRef{ID: "y|z"}
	p := newFakePresence(xy.ID, z.ID, x.ID, yz.ID)
	m, _ := newManager(t, p, &fakeRooms{})

	_, err := m.Send(context.Background(), xy, z)
	require.NoError(t, err)
	_, err = m.Send(context.Background(), x, yz)
	require.NoError(t, err)
	assert.Equal(t, 2, m.Pending())

	_, err = m.Send(context.Background(), z, xy)
	assert.ErrorIs(t, err, apperr.ErrAlreadyPending)
}
