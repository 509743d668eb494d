package solo

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/DoyleJ11/word-duel-backend/internal/apperr"
	"github.com/DoyleJ11/word-duel-backend/internal/keyword"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

type soloSink struct {
	mu   sync.Mutex
	rows []string
}

func (s *soloSink) RecordDuelResult(context.Context, string, string, int) error { return nil }

func (s *soloSink) RecordSoloResult(_ context.Context, userID, outcome string, _ int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rows = append(s.rows, userID+":"+outcome)
	return nil
}

func newService(t *testing.T, sink *soloSink, clock clockwork.Clock) *Service {
	return NewService(Config{
		Keywords: keyword.NewStatic([]string{"termo"}, 1),
		Stats:    sink,
		Clock:    clock,
		Logger:   zaptest.NewLogger(t),
	})
}

func TestSolo_WinOnThirdTry(t *testing.T) {
	sink := &soloSink{}
	s := newService(t, sink, clockwork.NewFakeClock())
	ctx := context.Background()

	g, err := s.Start(ctx, "ana")
	require.NoError(t, err)
	assert.Equal(t, 5, g.Length)
	assert.Equal(t, 5, g.TriesLeft)

	for _, w := range []string{"metro", "tremo"} {
		a, err := s.Guess(ctx, g.ID, "ana", w)
		require.NoError(t, err)
		assert.False(t, a.Finished)
		assert.Empty(t, a.Word)
	}
	a, err := s.Guess(ctx, g.ID, "ana", "TERMO")
	require.NoError(t, err)
	assert.True(t, a.Correct)
	assert.True(t, a.Finished)
	require.NotNil(t, a.Score)
	assert.Equal(t, 600, *a.Score)
	assert.Equal(t, "TERMO", a.Word)
	assert.Equal(t, []string{"ana:win"}, sink.rows)

	_, err = s.Guess(ctx, g.ID, "ana", "TERMO")
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestSolo_LossAfterMaxTries(t *testing.T) {
	sink := &soloSink{}
	s := newService(t, sink, clockwork.NewFakeClock())
	ctx := context.Background()
	g, err := s.Start(ctx, "ana")
	require.NoError(t, err)

	var last Attempt
	for i := 0; i < 5; i++ {
		last, err = s.Guess(ctx, g.ID, "ana", "AAAAA")
		require.NoError(t, err)
	}
	assert.True(t, last.Finished)
	assert.False(t, last.Correct)
	assert.Equal(t, 0, *last.Score)
	assert.Equal(t, []string{"ana:loss"}, sink.rows)
	assert.Equal(t, 0, s.Active())
}

func TestSolo_Errors(t *testing.T) {
	s := newService(t, &soloSink{}, clockwork.NewFakeClock())
	ctx := context.Background()
	g, err := s.Start(ctx, "ana")
	require.NoError(t, err)

	_, err = s.Guess(ctx, g.ID, "beto", "TERMO")
	assert.ErrorIs(t, err, apperr.ErrNotAuthorized)

	a, err := s.Guess(ctx, g.ID, "ana", "TERM")
	assert.ErrorIs(t, err, apperr.ErrInvalidGuessLength)
	assert.Zero(t, a.TriesLeft, "rejected guesses return no attempt")

	next, err := s.Guess(ctx, g.ID, "ana", "METRO")
	require.NoError(t, err)
	assert.Equal(t, 4, next.TriesLeft, "invalid guesses do not cost a try")
}

func TestSolo_IdleGamesAreSwept(t *testing.T) {
	clock := clockwork.NewFakeClock()
	s := newService(t, &soloSink{}, clock)
	ctx := context.Background()

	old, err := s.Start(ctx, "ana")
	require.NoError(t, err)
	clock.Advance(DefaultIdleTTL + time.Minute)
	_, err = s.Start(ctx, "beto")
	require.NoError(t, err)

	assert.Equal(t, 1, s.Active())
	_, err = s.Guess(ctx, old.ID, "ana", "TERMO")
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}
