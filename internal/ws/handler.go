package ws

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/DoyleJ11/word-duel-backend/internal/types"
	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

type Options struct {
	OriginPatterns []string
	WriteTimeout   time.Duration
	PingInterval   time.Duration
	OutboxSize     int
}

func (o *Options) applyDefaults() {
	if o.WriteTimeout <= 0 {
		o.WriteTimeout = 3 * time.Second
	}
	if o.PingInterval <= 0 {
		o.PingInterval = 30 * time.Second
	}
	if o.OutboxSize <= 0 {
		o.OutboxSize = 32
	}
}

// conn is the presence-facing side of one socket. Send never blocks; a full
// outbox drops the message.
type conn struct {
	id     string
	sock   *websocket.Conn
	out    chan types.ServerMessage
	closed chan struct{}
	once   sync.Once
}

func (c *conn) ID() string { return c.id }

func (c *conn) Send(msg types.ServerMessage) bool {
	select {
	case <-c.closed:
		return false
	default:
	}
	select {
	case c.out <- msg:
		return true
	default:
		return false
	}
}

func (c *conn) close() { c.once.Do(func() { close(c.closed) }) }

// Close stops the writer and closes the socket, which ends the read loop.
// The close handshake runs in the background.
func (c *conn) Close() {
	c.close()
	if c.sock != nil {
		go c.sock.Close(websocket.StatusPolicyViolation, "superseded by a newer connection")
	}
}

// Handler upgrades the request and pumps frames between the socket and the
// dispatcher. A token may come in the query string or Authorization header;
// otherwise the client sends it in announceOnline.
func Handler(d *Dispatcher, opts Options) http.HandlerFunc {
	opts.applyDefaults()
	return func(w http.ResponseWriter, r *http.Request) {
		var user *types.UserRef
		if tok := handshakeToken(r); tok != "" {
			u, err := d.verifier.Verify(tok)
			if err != nil {
				http.Error(w, "unauthenticated", http.StatusUnauthorized)
				return
			}
			user = &u
		}

		ws, err := websocket.Accept(w, r, &websocket.AcceptOptions{
			OriginPatterns: opts.OriginPatterns,
		})
		if err != nil {
			d.log.Debug("websocket accept", zap.Error(err))
			return
		}
		defer ws.Close(websocket.StatusNormalClosure, "bye")

		c := &conn{
			id:     uuid.NewString(),
			sock:   ws,
			out:    make(chan types.ServerMessage, opts.OutboxSize),
			closed: make(chan struct{}),
		}
		session := d.NewSession(c, user)
		defer d.Close(session)
		defer c.close()

		// Writer goroutine
		writeCtx, writeCancel := context.WithCancel(r.Context())
		defer writeCancel()
		go writeLoop(writeCtx, ws, c, opts, d.log)

		// Reader loop
		for {
			_, data, err := ws.Read(r.Context())
			if err != nil {
				switch websocket.CloseStatus(err) {
				case websocket.StatusNormalClosure, websocket.StatusGoingAway:
				default:
					d.log.Debug("websocket read", zap.String("conn_id", c.id), zap.Error(err))
				}
				return
			}

			var msg types.ClientMessage
			if err := json.Unmarshal(data, &msg); err != nil {
				d.log.Warn("bad json from client", zap.String("conn_id", c.id), zap.Error(err))
				d.Reject(session, err)
				continue
			}
			d.Handle(r.Context(), session, msg)
		}
	}
}

func writeLoop(ctx context.Context, ws *websocket.Conn, c *conn, opts Options, log *zap.Logger) {
	ping := time.NewTicker(opts.PingInterval)
	defer ping.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-c.closed:
			return

		case msg := <-c.out:
			wctx, cancel := context.WithTimeout(ctx, opts.WriteTimeout)
			err := wsjson.Write(wctx, ws, msg)
			cancel()
			if err != nil {
				log.Debug("websocket write", zap.String("conn_id", c.id), zap.Error(err))
				ws.Close(websocket.StatusPolicyViolation, "write failed")
				return
			}

		case <-ping.C:
			pctx, cancel := context.WithTimeout(ctx, opts.WriteTimeout)
			err := ws.Ping(pctx)
			cancel()
			if err != nil {
				ws.Close(websocket.StatusGoingAway, "ping timeout")
				return
			}
		}
	}
}

func handshakeToken(r *http.Request) string {
	if tok := r.URL.Query().Get("token"); tok != "" {
		return tok
	}
	if h := r.Header.Get("Authorization"); strings.HasPrefix(h, "Bearer ") {
		return strings.TrimPrefix(h, "Bearer ")
	}
	return ""
}
