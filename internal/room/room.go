// Package room runs one duel as a goroutine actor around engine.Apply.
package room

import (
	"context"
	"time"

	"github.com/DoyleJ11/word-duel-backend/internal/apperr"
	"github.com/DoyleJ11/word-duel-backend/internal/engine"
	"github.com/DoyleJ11/word-duel-backend/internal/keyword"
	"github.com/DoyleJ11/word-duel-backend/internal/stats"
	"github.com/DoyleJ11/word-duel-backend/internal/types"
	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"
)

const (
	DefaultMailbox   = 64
	DefaultReapGrace = 30 * time.Second

	keywordTimeout = 2 * time.Second
	statsTimeout   = 5 * time.Second
)

type Msg interface{ isRoomMsg() }

// FromClient carries a player command. Reply gets exactly one value.
type FromClient struct {
	Cmd   engine.Command
	Reply chan error
}

func (FromClient) isRoomMsg() {}

// Disconnect is a leave injected by the registry; nobody waits for it.
type Disconnect struct{ UserID string }

func (Disconnect) isRoomMsg() {}

type tick struct{}

func (tick) isRoomMsg() {}

type reap struct{}

func (reap) isRoomMsg() {}

type Shutdown struct{}

func (Shutdown) isRoomMsg() {}

type GetState struct {
	Reply chan View
}

func (GetState) isRoomMsg() {}

type View struct {
	ID    string
	State engine.State
	Acked [2]bool
}

// Notifier delivers a message to one user's live connection.
type Notifier interface {
	Notify(userID string, msg types.ServerMessage) bool
}

type Config struct {
	ID        string
	Players   [2]types.UserRef
	Rules     engine.Rules
	Mailbox   int
	ReapGrace time.Duration
	Clock     clockwork.Clock
	Keywords  keyword.Provider
	Notifier  Notifier
	Stats     stats.Recorder
	// OnReap is called from the room goroutine right before it exits.
	OnReap func(roomID string)
	Logger *zap.Logger
}

type Room struct {
	id       string
	inbox    chan Msg
	done     chan struct{}
	state    engine.State
	acked    [2]bool
	started  bool
	grace    time.Duration
	clock    clockwork.Clock
	ticker   clockwork.Ticker
	reaper   clockwork.Timer
	keywords keyword.Provider
	notifier Notifier
	stats    stats.Recorder
	onReap   func(string)
	log      *zap.Logger
	ctx      context.Context
	cancel   context.CancelFunc
}

func New(parent context.Context, cfg Config) *Room {
	ctx, cancel := context.WithCancel(parent)
	if cfg.Mailbox <= 0 {
		cfg.Mailbox = DefaultMailbox
	}
	if cfg.ReapGrace <= 0 {
		cfg.ReapGrace = DefaultReapGrace
	}
	if cfg.Rules == (engine.Rules{}) {
		cfg.Rules = engine.DefaultRules()
	}
	if cfg.Clock == nil {
		cfg.Clock = clockwork.NewRealClock()
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}

	r := &Room{
		id:       cfg.ID,
		inbox:    make(chan Msg, cfg.Mailbox),
		done:     make(chan struct{}),
		state:    engine.NewState(cfg.Players[0], cfg.Players[1], cfg.Rules),
		grace:    cfg.ReapGrace,
		clock:    cfg.Clock,
		keywords: cfg.Keywords,
		notifier: cfg.Notifier,
		stats:    cfg.Stats,
		onReap:   cfg.OnReap,
		log:      cfg.Logger.With(zap.String("room_id", cfg.ID)),
		ctx:      ctx,
		cancel:   cancel,
	}
	go r.loop()
	return r
}

func (r *Room) ID() string { return r.id }

func (r *Room) Inbox() chan<- Msg { return r.inbox }

// Done is closed once the room goroutine has exited.
func (r *Room) Done() <-chan struct{} { return r.done }

// Submit enqueues cmd without blocking and waits for the room's verdict.
// A full mailbox yields BUSY; a reaped room yields NOT_FOUND.
func (r *Room) Submit(ctx context.Context, cmd engine.Command) error {
	reply := make(chan error, 1)
	select {
	case <-r.done:
		return apperr.ErrNotFound
	default:
	}
	select {
	case r.inbox <- FromClient{Cmd: cmd, Reply: reply}:
	default:
		return apperr.ErrBusy
	}
	select {
	case err := <-reply:
		return err
	case <-r.done:
		return apperr.ErrNotFound
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Post delivers msg even when the mailbox is momentarily full.
func (r *Room) Post(msg Msg) {
	select {
	case r.inbox <- msg:
		return
	default:
	}
	go func() {
		select {
		case r.inbox <- msg:
		case <-r.done:
		}
	}()
}

func (r *Room) loop() {
	defer close(r.done)
	for {
		var tickC <-chan time.Time
		if r.ticker != nil {
			tickC = r.ticker.Chan()
		}

		select {
		case <-r.ctx.Done():
			r.shutdown()
			return

		case <-tickC:
			r.apply(engine.Command{Type: engine.CmdTick})

		case m := <-r.inbox:
			switch msg := m.(type) {
			case FromClient:
				msg.Reply <- r.apply(msg.Cmd)

			case Disconnect:
				r.apply(engine.Command{Type: engine.CmdLeave, UserID: msg.UserID})

			case tick:
				r.apply(engine.Command{Type: engine.CmdTick})

			case reap:
				r.log.Debug("grace period over")
				r.shutdown()
				return

			case GetState:
				msg.Reply <- View{ID: r.id, State: r.state, Acked: r.acked}

			case Shutdown:
				r.shutdown()
				return
			}
		}

		if r.readyToReap() {
			r.shutdown()
			return
		}
	}
}

func (r *Room) apply(cmd engine.Command) error {
	prev := r.state
	events, next, err := engine.Apply(r.state, cmd, r.drawKeyword)
	if err != nil {
		if apperr.CodeOf(err) == apperr.CodeInternal {
			r.log.Error("apply command", zap.String("cmd", string(cmd.Type)), zap.Error(err))
		}
		return err
	}
	r.state = next

	if cmd.Type == engine.CmdLeave {
		if idx := r.state.SlotOf(cmd.UserID); idx >= 0 {
			r.acked[idx] = true
		}
	}

	if prev.Phase == engine.PhaseLobby && next.Phase == engine.PhasePlaying {
		r.started = true
		r.ticker = r.clock.NewTicker(time.Second)
		r.log.Info("duel started", zap.Int("keyword_length", next.Keyword.Len()))
	}

	for _, e := range events {
		if r.notifier != nil {
			r.notifier.Notify(e.To, r.toMessage(e))
		}
	}

	if prev.Phase != engine.PhaseFinished && next.Phase == engine.PhaseFinished {
		r.finish()
	}
	return nil
}

func (r *Room) drawKeyword() (engine.Keyword, error) {
	if r.keywords == nil {
		return engine.Keyword{}, keyword.ErrEmpty
	}
	ctx, cancel := context.WithTimeout(r.ctx, keywordTimeout)
	defer cancel()
	return r.keywords.Next(ctx)
}

func (r *Room) finish() {
	r.stopTicker()
	r.log.Info("duel finished",
		zap.String("reason", string(r.state.EndReason)),
		zap.Int("score_a", r.state.Players[0].Score),
		zap.Int("score_b", r.state.Players[1].Score))

	if r.state.EndReason == engine.EndTimeout {
		for i, p := range r.state.Players {
			opp := r.state.Players[1-i]
			outcome := engine.OutcomeFor(p.Score, opp.Score)
			stats.Async(r.log, r.stats, statsTimeout, p.User.ID, string(outcome), p.Score)
		}
	}

	if r.started {
		r.reaper = r.clock.AfterFunc(r.grace, func() {
			select {
			case r.inbox <- reap{}:
			case <-r.done:
			}
		})
	}
}

// readyToReap reports whether the room can go away now: both players have
// acknowledged the end, or the duel never started.
func (r *Room) readyToReap() bool {
	if r.state.Phase != engine.PhaseFinished {
		return false
	}
	if !r.started {
		return true
	}
	return r.acked[0] && r.acked[1]
}

func (r *Room) stopTicker() {
	if r.ticker != nil {
		r.ticker.Stop()
		r.ticker = nil
	}
}

func (r *Room) shutdown() {
	r.stopTicker()
	if r.reaper != nil {
		r.reaper.Stop()
	}
	r.cancel()
	if r.onReap != nil {
		r.onReap(r.id)
	}
}

func (r *Room) toMessage(e engine.Event) types.ServerMessage {
	msg := types.ServerMessage{RoomID: r.id}
	switch e.Type {
	case engine.EvtOpponentReady:
		msg.Type = types.OutOpponentReady
	case engine.EvtGameStarted:
		msg.Type = types.OutRoomStart
		msg.Length = e.Length
		msg.DurationSeconds = e.Duration
		if idx := r.state.SlotOf(e.To); idx >= 0 {
			opp := r.state.Players[1-idx].User
			msg.Opponent = &opp
		}
	case engine.EvtGuessEvaluated:
		msg.Type = types.OutGuessResult
		msg.Correct = types.Bool(e.Correct)
		msg.Tags = e.Result.Strings()
		if e.Correct {
			msg.YourScore = types.Int(e.YourScore)
			msg.OpponentScore = types.Int(e.OpponentScore)
		}
	case engine.EvtNewKeyword:
		msg.Type = types.OutNewKeyword
		msg.Length = e.Length
	case engine.EvtOpponentScored:
		msg.Type = types.OutOpponentGuessResult
		msg.YourScore = types.Int(e.YourScore)
		msg.OpponentScore = types.Int(e.OpponentScore)
	case engine.EvtOpponentLeft:
		msg.Type = types.OutOpponentLeft
	case engine.EvtGameEnded:
		msg.Type = types.OutRoomEnd
		msg.YourScore = types.Int(e.YourScore)
		msg.OpponentScore = types.Int(e.OpponentScore)
		msg.Outcome = string(e.Outcome)
	}
	return msg
}
