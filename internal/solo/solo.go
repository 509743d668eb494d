// Package solo runs single-player games against the same evaluator the duel
// rooms use.
package solo

import (
	"context"
	"sync"
	"time"

	"github.com/DoyleJ11/word-duel-backend/internal/apperr"
	"github.com/DoyleJ11/word-duel-backend/internal/engine"
	"github.com/DoyleJ11/word-duel-backend/internal/keyword"
	"github.com/DoyleJ11/word-duel-backend/internal/stats"
	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"
)

const (
	DefaultMaxTries = 5
	DefaultIdleTTL  = time.Hour
)

type game struct {
	id        string
	userID    string
	keyword   engine.Keyword
	tries     int
	startedAt time.Time
}

type View struct {
	ID        string `json:"id"`
	Length    int    `json:"length"`
	MaxTries  int    `json:"maxTries"`
	TriesLeft int    `json:"triesLeft"`
}

type Attempt struct {
	Tags      []string `json:"tags"`
	Correct   bool     `json:"correct"`
	TriesLeft int      `json:"triesLeft"`
	Finished  bool     `json:"finished"`
	Score     *int     `json:"score,omitempty"`
	// Word is revealed only once the game is over.
	Word string `json:"word,omitempty"`
}

type Config struct {
	MaxTries int
	IdleTTL  time.Duration
	Keywords keyword.Provider
	Stats    stats.Recorder
	Clock    clockwork.Clock
	Logger   *zap.Logger
}

// Service keeps in-progress games in memory. Finished games are dropped.
type Service struct {
	mu       sync.Mutex
	games    map[string]*game
	maxTries int
	idleTTL  time.Duration
	keywords keyword.Provider
	stats    stats.Recorder
	clock    clockwork.Clock
	log      *zap.Logger
}

func NewService(cfg Config) *Service {
	if cfg.MaxTries <= 0 {
		cfg.MaxTries = DefaultMaxTries
	}
	if cfg.IdleTTL <= 0 {
		cfg.IdleTTL = DefaultIdleTTL
	}
	if cfg.Stats == nil {
		cfg.Stats = stats.Nop{}
	}
	if cfg.Clock == nil {
		cfg.Clock = clockwork.NewRealClock()
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	return &Service{
		games:    make(map[string]*game),
		maxTries: cfg.MaxTries,
		idleTTL:  cfg.IdleTTL,
		keywords: cfg.Keywords,
		stats:    cfg.Stats,
		clock:    cfg.Clock,
		log:      cfg.Logger.Named("solo"),
	}
}

func (s *Service) Start(ctx context.Context, userID string) (View, error) {
	kw, err := s.keywords.Next(ctx)
	if err != nil {
		return View{}, err
	}
	kw.Word = engine.Normalize(kw.Word)
	if kw.Word == "" {
		return View{}, keyword.ErrEmpty
	}

	g := &game{id: uuid.NewString(), userID: userID, keyword: kw, startedAt: s.clock.Now()}
	s.mu.Lock()
	s.sweepLocked()
	s.games[g.id] = g
	s.mu.Unlock()

	return View{ID: g.id, Length: kw.Len(), MaxTries: s.maxTries, TriesLeft: s.maxTries}, nil
}

func (s *Service) Guess(ctx context.Context, gameID, userID, text string) (Attempt, error) {
	s.mu.Lock()
	g, ok := s.games[gameID]
	if !ok {
		s.mu.Unlock()
		return Attempt{}, apperr.ErrNotFound
	}
	if g.userID != userID {
		s.mu.Unlock()
		return Attempt{}, apperr.ErrNotAuthorized
	}
	res, err := engine.Evaluate(g.keyword.Word, engine.Normalize(text))
	if err != nil {
		s.mu.Unlock()
		return Attempt{}, err
	}
	g.tries++
	won := res.Win()
	finished := won || g.tries >= s.maxTries
	if finished {
		delete(s.games, gameID)
	}
	tries := g.tries
	word := g.keyword.Word
	s.mu.Unlock()

	out := Attempt{
		Tags:      res.Strings(),
		Correct:   won,
		TriesLeft: s.maxTries - tries,
		Finished:  finished,
	}
	if !finished {
		return out, nil
	}

	score := engine.SoloScore(tries, s.maxTries, won)
	out.Score = &score
	out.Word = word

	outcome := string(engine.OutcomeLoss)
	if won {
		outcome = string(engine.OutcomeWin)
	}
	if err := s.stats.RecordSoloResult(ctx, userID, outcome, score); err != nil {
		s.log.Warn("recording solo result", zap.String("user_id", userID), zap.Error(err))
	}
	return out, nil
}

// Active reports the number of unfinished games.
func (s *Service) Active() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.games)
}

func (s *Service) sweepLocked() {
	cutoff := s.clock.Now().Add(-s.idleTTL)
	for id, g := range s.games {
		if g.startedAt.Before(cutoff) {
			delete(s.games, id)
		}
	}
}
