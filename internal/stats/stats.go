// Package stats records finished game results.
package stats

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/DoyleJ11/word-duel-backend/internal/store"
	"github.com/redis/go-redis/v9"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"
)

const (
	ModeDuel = "duel"
	ModeSolo = "solo"
)

type Recorder interface {
	RecordDuelResult(ctx context.Context, userID, outcome string, score int) error
	RecordSoloResult(ctx context.Context, userID, outcome string, score int) error
}

type Nop struct{}

func (Nop) RecordDuelResult(context.Context, string, string, int) error { return nil }
func (Nop) RecordSoloResult(context.Context, string, string, int) error { return nil }

// Multi fans a result out to every recorder and reports all failures.
type Multi []Recorder

func (m Multi) RecordDuelResult(ctx context.Context, userID, outcome string, score int) error {
	return m.each(func(r Recorder) error { return r.RecordDuelResult(ctx, userID, outcome, score) })
}

func (m Multi) RecordSoloResult(ctx context.Context, userID, outcome string, score int) error {
	return m.each(func(r Recorder) error { return r.RecordSoloResult(ctx, userID, outcome, score) })
}

func (m Multi) each(fn func(Recorder) error) error {
	var (
		g    errgroup.Group
		mu   sync.Mutex
		errs error
	)
	for _, r := range m {
		r := r // per-iteration copy; go.mod targets go1.21 loop semantics
		g.Go(func() error {
			if err := fn(r); err != nil {
				mu.Lock()
				errs = multierr.Append(errs, err)
				mu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()
	return errs
}

// Async records a duel result off the caller's goroutine. Failures are
// logged and otherwise ignored.
func Async(log *zap.Logger, r Recorder, timeout time.Duration, userID, outcome string, score int) {
	if r == nil {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		if err := r.RecordDuelResult(ctx, userID, outcome, score); err != nil {
			log.Warn("recording duel result",
				zap.String("user_id", userID),
				zap.String("outcome", outcome),
				zap.Error(err))
		}
	}()
}

type Gorm struct {
	db *gorm.DB
}

func NewGorm(db *gorm.DB) *Gorm {
	return &Gorm{db: db}
}

func (g *Gorm) RecordDuelResult(ctx context.Context, userID, outcome string, score int) error {
	return g.insert(ctx, ModeDuel, userID, outcome, score)
}

func (g *Gorm) RecordSoloResult(ctx context.Context, userID, outcome string, score int) error {
	return g.insert(ctx, ModeSolo, userID, outcome, score)
}

func (g *Gorm) insert(ctx context.Context, mode, userID, outcome string, score int) error {
	row := store.DuelResult{UserID: userID, Mode: mode, Outcome: outcome, Score: score}
	if err := g.db.WithContext(ctx).Create(&row).Error; err != nil {
		return fmt.Errorf("inserting %s result: %w", mode, err)
	}
	return nil
}

// Redis keeps a running ranking per mode in a sorted set plus per-user
// outcome counters in a hash.
type Redis struct {
	client *redis.Client
}

func NewRedis(client *redis.Client) *Redis {
	return &Redis{client: client}
}

func rankingKey(mode string) string { return fmt.Sprintf("ranking:%s", mode) }

func playerKey(mode, userID string) string { return fmt.Sprintf("player:%s:%s", userID, mode) }

func (r *Redis) RecordDuelResult(ctx context.Context, userID, outcome string, score int) error {
	return r.record(ctx, ModeDuel, userID, outcome, score)
}

func (r *Redis) RecordSoloResult(ctx context.Context, userID, outcome string, score int) error {
	return r.record(ctx, ModeSolo, userID, outcome, score)
}

func (r *Redis) record(ctx context.Context, mode, userID, outcome string, score int) error {
	pipe := r.client.TxPipeline()
	pipe.ZIncrBy(ctx, rankingKey(mode), float64(score), userID)
	pipe.HIncrBy(ctx, playerKey(mode, userID), outcome, 1)
	pipe.HIncrBy(ctx, playerKey(mode, userID), "games", 1)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("recording %s result: %w", mode, err)
	}
	return nil
}

type RankEntry struct {
	Rank   int64  `json:"rank"`
	UserID string `json:"userId"`
	Score  int64  `json:"score"`
}

// Top returns the n best accumulated scores for mode.
func (r *Redis) Top(ctx context.Context, mode string, n int) ([]RankEntry, error) {
	if n <= 0 {
		return nil, nil
	}
	res, err := r.client.ZRevRangeWithScores(ctx, rankingKey(mode), 0, int64(n-1)).Result()
	if err != nil {
		return nil, fmt.Errorf("reading %s ranking: %w", mode, err)
	}
	out := make([]RankEntry, len(res))
	for i, z := range res {
		member, _ := z.Member.(string)
		out[i] = RankEntry{Rank: int64(i + 1), UserID: member, Score: int64(z.Score)}
	}
	return out, nil
}
