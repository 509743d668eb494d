// Package presence tracks which users have a live connection and delivers
// targeted messages to them.
package presence

import (
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/DoyleJ11/word-duel-backend/internal/types"
	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"
)

// Conn is the outbound half of a client connection.
type Conn interface {
	ID() string
	// Send queues msg for delivery. It must not block; false means the
	// message was dropped.
	Send(msg types.ServerMessage) bool
	// Close ends a connection that a newer announce superseded. It must
	// not block.
	Close()
}

// Listener is told when a user's last connection goes away.
type Listener interface {
	UserOffline(userID string)
}

type Entry struct {
	User        types.UserRef
	Conn        Conn
	OnlineSince time.Time
}

// Directory maps user id -> current connection. At most one live connection
// is kept per user; a newer announce supersedes the older one.
type Directory struct {
	mu        sync.RWMutex
	entries   map[string]Entry
	listeners []Listener
	clock     clockwork.Clock
	log       *zap.Logger
}

func NewDirectory(clock clockwork.Clock, log *zap.Logger) *Directory {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Directory{
		entries: make(map[string]Entry),
		clock:   clock,
		log:     log.Named("presence"),
	}
}

// AddListener registers l for offline notifications. Not safe to call once
// connections are flowing.
func (d *Directory) AddListener(l Listener) {
	d.listeners = append(d.listeners, l)
}

// Announce registers conn as the live connection for user and returns the
// connection it replaced, if any. Announcing the same connection twice is a
// no-op apart from refreshing the user snapshot.
func (d *Directory) Announce(user types.UserRef, conn Conn) Conn {
	d.mu.Lock()
	defer d.mu.Unlock()

	prev, ok := d.entries[user.ID]
	if ok && prev.Conn.ID() == conn.ID() {
		prev.User = user
		d.entries[user.ID] = prev
		return nil
	}

	d.entries[user.ID] = Entry{User: user, Conn: conn, OnlineSince: d.clock.Now()}
	if ok {
		d.log.Info("connection superseded",
			zap.String("user_id", user.ID),
			zap.String("old_conn", prev.Conn.ID()),
			zap.String("new_conn", conn.ID()))
		return prev.Conn
	}
	d.log.Debug("user online", zap.String("user_id", user.ID))
	return nil
}

// Remove drops the mapping for userID only if connID is still the current
// connection. Listeners are notified after the lock is released.
func (d *Directory) Remove(userID, connID string) bool {
	d.mu.Lock()
	e, ok := d.entries[userID]
	if !ok || e.Conn.ID() != connID {
		d.mu.Unlock()
		return false
	}
	delete(d.entries, userID)
	d.mu.Unlock()

	d.log.Debug("user offline", zap.String("user_id", userID))
	for _, l := range d.listeners {
		l.UserOffline(userID)
	}
	return true
}

func (d *Directory) IsOnline(userID string) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	_, ok := d.entries[userID]
	return ok
}

func (d *Directory) Lookup(userID string) (Entry, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	e, ok := d.entries[userID]
	return e, ok
}

// OnlineFriendsOf filters friendIDs down to those currently online, ordered
// by display name (then id) so repeated listings are stable.
func (d *Directory) OnlineFriendsOf(userID string, friendIDs []string) []types.UserRef {
	d.mu.RLock()
	out := make([]types.UserRef, 0, len(friendIDs))
	for _, id := range friendIDs {
		if id == userID {
			continue
		}
		if e, ok := d.entries[id]; ok {
			out = append(out, e.User)
		}
	}
	d.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		a, b := strings.ToLower(out[i].DisplayName), strings.ToLower(out[j].DisplayName)
		if a != b {
			return a < b
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// Notify delivers msg to the user's current connection only.
func (d *Directory) Notify(userID string, msg types.ServerMessage) bool {
	e, ok := d.Lookup(userID)
	if !ok {
		return false
	}
	if !e.Conn.Send(msg) {
		d.log.Warn("dropped outbound message",
			zap.String("user_id", userID),
			zap.String("type", msg.Type))
		return false
	}
	return true
}

func (d *Directory) Count() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.entries)
}
