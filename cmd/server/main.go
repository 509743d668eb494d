package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/DoyleJ11/word-duel-backend/internal/auth"
	"github.com/DoyleJ11/word-duel-backend/internal/config"
	"github.com/DoyleJ11/word-duel-backend/internal/engine"
	"github.com/DoyleJ11/word-duel-backend/internal/friends"
	"github.com/DoyleJ11/word-duel-backend/internal/httpapi"
	"github.com/DoyleJ11/word-duel-backend/internal/hub"
	"github.com/DoyleJ11/word-duel-backend/internal/invite"
	"github.com/DoyleJ11/word-duel-backend/internal/keyword"
	"github.com/DoyleJ11/word-duel-backend/internal/logging"
	"github.com/DoyleJ11/word-duel-backend/internal/presence"
	"github.com/DoyleJ11/word-duel-backend/internal/room"
	"github.com/DoyleJ11/word-duel-backend/internal/solo"
	"github.com/DoyleJ11/word-duel-backend/internal/stats"
	"github.com/DoyleJ11/word-duel-backend/internal/store"
	"github.com/DoyleJ11/word-duel-backend/internal/ws"
	"github.com/jonboulle/clockwork"
	"github.com/redis/go-redis/v9"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to the YAML config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatal(err)
	}
	logger, err := logging.New(cfg.Env, cfg.LogLevel)
	if err != nil {
		log.Fatal(err)
	}
	defer logger.Sync() //nolint:errcheck

	if err := run(cfg, logger); err != nil {
		logger.Fatal("server stopped", zap.Error(err))
	}
}

type backends struct {
	keywords keyword.Provider
	friends  friends.Directory
	stats    stats.Recorder
	ranking  httpapi.Ranking
	closers  []func() error
}

func (b *backends) close() error {
	var err error
	for i := len(b.closers) - 1; i >= 0; i-- {
		err = multierr.Append(err, b.closers[i]())
	}
	return err
}

// openBackends wires Postgres and Redis when configured and falls back to the
// in-memory adapters otherwise.
func openBackends(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*backends, error) {
	b := &backends{
		keywords: keyword.NewStatic(wordsOrDefault(cfg.Keywords.Words), cfg.Keywords.Seed),
		friends:  friends.NewStatic(cfg.FriendPairs()),
	}
	var recorders stats.Multi

	if cfg.Postgres.DSN != "" {
		db, err := store.OpenGorm(cfg.Postgres.DSN)
		if err != nil {
			return nil, err
		}
		sqlDB, err := db.DB()
		if err != nil {
			return nil, fmt.Errorf("unwrapping gorm db: %w", err)
		}
		b.closers = append(b.closers, sqlDB.Close)

		if err := store.Migrate(db); err != nil {
			return nil, multierr.Append(err, b.close())
		}
		if err := store.SeedKeywords(ctx, db, wordsOrDefault(cfg.Keywords.Words)); err != nil {
			return nil, multierr.Append(err, b.close())
		}

		gf := friends.NewGorm(db)
		for _, p := range cfg.FriendPairs() {
			if err := gf.Add(ctx, p[0], p[1]); err != nil {
				return nil, multierr.Append(err, b.close())
			}
		}
		b.friends = gf
		recorders = append(recorders, stats.NewGorm(db))

		if cfg.Keywords.Source == "postgres" {
			pool, err := store.OpenPool(ctx, cfg.Postgres.DSN, cfg.Postgres.MaxConns)
			if err != nil {
				return nil, multierr.Append(err, b.close())
			}
			b.closers = append(b.closers, func() error { pool.Close(); return nil })
			b.keywords = keyword.NewPostgres(pool)
		}
		logger.Info("postgres enabled", zap.String("keywords", cfg.Keywords.Source))
	}

	if cfg.Redis.Addr != "" {
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := client.Ping(ctx).Err(); err != nil {
			return nil, multierr.Append(fmt.Errorf("connecting to redis: %w", err), b.close())
		}
		b.closers = append(b.closers, client.Close)
		rr := stats.NewRedis(client)
		recorders = append(recorders, rr)
		b.ranking = rr
		logger.Info("redis ranking enabled", zap.String("addr", cfg.Redis.Addr))
	}

	switch len(recorders) {
	case 0:
		b.stats = stats.Nop{}
	case 1:
		b.stats = recorders[0]
	default:
		b.stats = recorders
	}
	return b, nil
}

func wordsOrDefault(words []string) []string {
	if len(words) == 0 {
		return keyword.DefaultWords
	}
	return words
}

func run(cfg *config.Config, logger *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	b, err := openBackends(ctx, cfg, logger)
	if err != nil {
		return err
	}

	verifier, err := auth.NewHMAC(cfg.Auth.Secret, auth.WithIssuer(cfg.Auth.Issuer))
	if err != nil {
		return multierr.Append(err, b.close())
	}

	clock := clockwork.NewRealClock()
	pres := presence.NewDirectory(clock, logger)
	rooms := hub.NewHub(ctx, room.Config{
		Rules: engine.Rules{
			DurationSec:    int(cfg.Duel.MatchDuration.Seconds()),
			ScoreIncrement: cfg.Duel.ScoreIncrement,
		},
		Mailbox:   cfg.Duel.Mailbox,
		ReapGrace: cfg.Duel.ReapGrace,
		Clock:     clock,
		Keywords:  b.keywords,
		Notifier:  pres,
		Stats:     b.stats,
		Logger:    logger,
	}, hub.WithPresence(pres))
	invites := invite.NewManager(ctx, invite.Config{
		TTL:      cfg.Duel.InviteTTL,
		Presence: pres,
		Rooms:    rooms,
		Clock:    clock,
		Logger:   logger,
	})
	pres.AddListener(invites)
	pres.AddListener(rooms)

	soloSvc := solo.NewService(solo.Config{
		MaxTries: cfg.Solo.MaxTries,
		IdleTTL:  cfg.Solo.IdleTTL,
		Keywords: b.keywords,
		Stats:    b.stats,
		Clock:    clock,
		Logger:   logger,
	})

	dispatcher := ws.NewDispatcher(ws.Deps{
		Presence:     pres,
		Invites:      invites,
		Rooms:        rooms,
		Friends:      b.friends,
		Verifier:     verifier,
		EventTimeout: cfg.Duel.EventTimeout,
		Logger:       logger,
	})

	// Build the router with every component injected
	handler := httpapi.SetupRoutes(httpapi.Deps{
		Presence:   pres,
		Invites:    invites,
		Rooms:      rooms,
		Solo:       soloSvc,
		Dispatcher: dispatcher,
		WS: ws.Options{
			OriginPatterns: cfg.HTTP.OriginPatterns,
			PingInterval:   cfg.HTTP.PingInterval,
		},
		Verifier: verifier,
		Ranking:  b.ranking,
		Logger:   logger,
	})

	srv := &http.Server{
		Addr:         cfg.HTTP.Addr,
		Handler:      handler,
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
		IdleTimeout:  cfg.HTTP.IdleTimeout,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("listening", zap.String("addr", cfg.HTTP.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
		defer cancel()
		err := srv.Shutdown(shutdownCtx)
		invites.Close()
		rooms.Close()
		return multierr.Append(err, b.close())
	})
	return g.Wait()
}
