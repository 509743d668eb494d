package httpapi

import (
	"context"
	"net/http"

	"github.com/DoyleJ11/word-duel-backend/internal/auth"
	"github.com/DoyleJ11/word-duel-backend/internal/hub"
	"github.com/DoyleJ11/word-duel-backend/internal/invite"
	"github.com/DoyleJ11/word-duel-backend/internal/presence"
	"github.com/DoyleJ11/word-duel-backend/internal/solo"
	"github.com/DoyleJ11/word-duel-backend/internal/stats"
	"github.com/DoyleJ11/word-duel-backend/internal/ws"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"
)

// Ranking is served when a ranking backend is configured.
type Ranking interface {
	Top(ctx context.Context, mode string, n int) ([]stats.RankEntry, error)
}

type Deps struct {
	Presence   *presence.Directory
	Invites    *invite.Manager
	Rooms      *hub.Hub
	Solo       *solo.Service
	Dispatcher *ws.Dispatcher
	WS         ws.Options
	Verifier   auth.Verifier
	Ranking    Ranking
	Logger     *zap.Logger
}

func SetupRoutes(d Deps) http.Handler {
	log := d.Logger
	if log == nil {
		log = zap.NewNop()
	}
	log = log.Named("http")

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(requestLogger(log))

	// Public routes
	r.Get("/healthz", Healthz)
	r.Get("/stats", Stats(d.Presence, d.Rooms, d.Invites, d.Solo))
	r.Get("/ws", ws.Handler(d.Dispatcher, d.WS))
	if d.Ranking != nil {
		r.Get("/ranking/{mode}", RankingTop(d.Ranking, log))
	}

	r.Route("/solo/games", func(r chi.Router) {
		r.Use(requireUser(d.Verifier))
		r.Post("/", StartSolo(d.Solo, log))
		r.Post("/{id}/guesses", GuessSolo(d.Solo, log))
	})
	return r
}
