// Package keyword supplies secret words to duel rooms and solo games.
package keyword

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"strconv"
	"sync"

	"github.com/DoyleJ11/word-duel-backend/internal/engine"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

var ErrEmpty = errors.New("keyword: no words available")

type Provider interface {
	Next(ctx context.Context) (engine.Keyword, error)
}

// Func adapts a plain function to Provider.
type Func func(ctx context.Context) (engine.Keyword, error)

func (f Func) Next(ctx context.Context) (engine.Keyword, error) { return f(ctx) }

// DefaultWords is the built-in five letter list used when no database is
// configured.
var DefaultWords = []string{
	"TERMO", "SAGAZ", "NOBRE", "AFETO", "PLENA", "MORAL", "FAZER", "SONHO",
	"PODER", "VIGOR", "LINDA", "AMIGO", "CAUSA", "TEMPO", "ETNIA", "MUNDO",
	"JUSTO", "LOUCO", "HONRA", "FORTE", "CARTA", "NOITE", "PRAIA", "VERDE",
}

// Static draws uniformly from an in-memory list.
type Static struct {
	mu    sync.Mutex
	words []string
	rng   *rand.Rand
}

func NewStatic(words []string, seed int64) *Static {
	cp := make([]string, 0, len(words))
	for _, w := range words {
		if w = engine.Normalize(w); w != "" {
			cp = append(cp, w)
		}
	}
	return &Static{words: cp, rng: rand.New(rand.NewSource(seed))}
}

func (s *Static) Next(ctx context.Context) (engine.Keyword, error) {
	if err := ctx.Err(); err != nil {
		return engine.Keyword{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.words) == 0 {
		return engine.Keyword{}, ErrEmpty
	}
	i := s.rng.Intn(len(s.words))
	return engine.Keyword{ID: strconv.Itoa(i), Word: s.words[i]}, nil
}

// Postgres draws a random active row from the keywords table.
type Postgres struct {
	pool *pgxpool.Pool
}

func NewPostgres(pool *pgxpool.Pool) *Postgres {
	return &Postgres{pool: pool}
}

const nextKeywordSQL = `SELECT id::text, word FROM keywords WHERE active ORDER BY random() LIMIT 1`

func (p *Postgres) Next(ctx context.Context) (engine.Keyword, error) {
	var kw engine.Keyword
	err := p.pool.QueryRow(ctx, nextKeywordSQL).Scan(&kw.ID, &kw.Word)
	if errors.Is(err, pgx.ErrNoRows) {
		return engine.Keyword{}, ErrEmpty
	}
	if err != nil {
		return engine.Keyword{}, fmt.Errorf("querying keyword: %w", err)
	}
	return kw, nil
}
