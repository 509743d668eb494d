package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/DoyleJ11/word-duel-backend/internal/apperr"
	"github.com/DoyleJ11/word-duel-backend/internal/auth"
	"github.com/DoyleJ11/word-duel-backend/internal/hub"
	"github.com/DoyleJ11/word-duel-backend/internal/invite"
	"github.com/DoyleJ11/word-duel-backend/internal/presence"
	"github.com/DoyleJ11/word-duel-backend/internal/solo"
	"github.com/DoyleJ11/word-duel-backend/internal/stats"
	"github.com/DoyleJ11/word-duel-backend/internal/types"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"
)

type ctxKey struct{}

func userFrom(ctx context.Context) (types.UserRef, bool) {
	u, ok := ctx.Value(ctxKey{}).(types.UserRef)
	return u, ok
}

func requireUser(v auth.Verifier) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			user, err := v.Verify(r.Header.Get("Authorization"))
			if err != nil {
				writeError(w, err)
				return
			}
			next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), ctxKey{}, user)))
		})
	}
}

func requestLogger(log *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)
			log.Debug("request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.Status()),
				zap.Duration("took", time.Since(start)),
				zap.String("request_id", middleware.GetReqID(r.Context())))
		})
	}
}

func Healthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
}

type statsResponse struct {
	OnlineUsers    int `json:"onlineUsers"`
	Rooms          int `json:"rooms"`
	PendingInvites int `json:"pendingInvites"`
	SoloGames      int `json:"soloGames"`
}

func Stats(p *presence.Directory, rooms *hub.Hub, invites *invite.Manager, s *solo.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, statsResponse{
			OnlineUsers:    p.Count(),
			Rooms:          rooms.Count(),
			PendingInvites: invites.Pending(),
			SoloGames:      s.Active(),
		})
	}
}

func RankingTop(rank Ranking, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		mode := chi.URLParam(r, "mode")
		if mode != stats.ModeDuel && mode != stats.ModeSolo {
			writeError(w, apperr.Errorf(apperr.CodeNotFound, "unknown mode %q", mode))
			return
		}
		limit := 10
		if raw := r.URL.Query().Get("limit"); raw != "" {
			n, err := strconv.Atoi(raw)
			if err != nil || n <= 0 || n > 100 {
				writeError(w, apperr.Errorf(apperr.CodeInvalidRequest, "limit must be 1..100"))
				return
			}
			limit = n
		}
		entries, err := rank.Top(r.Context(), mode, limit)
		if err != nil {
			log.Error("reading ranking", zap.Error(err))
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, entries)
	}
}

func StartSolo(s *solo.Service, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user, _ := userFrom(r.Context())
		game, err := s.Start(r.Context(), user.ID)
		if err != nil {
			log.Error("starting solo game", zap.String("user_id", user.ID), zap.Error(err))
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, game)
	}
}

type guessRequest struct {
	Text string `json:"text"`
}

func GuessSolo(s *solo.Service, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user, _ := userFrom(r.Context())
		var req guessRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, apperr.Errorf(apperr.CodeInvalidRequest, "bad json"))
			return
		}
		res, err := s.Guess(r.Context(), chi.URLParam(r, "id"), user.ID, req.Text)
		if err != nil {
			if apperr.CodeOf(err) == apperr.CodeInternal {
				log.Error("solo guess", zap.Error(err))
			}
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, res)
	}
}

func statusFor(code apperr.Code) int {
	switch code {
	case apperr.CodeUnauthenticated:
		return http.StatusUnauthorized
	case apperr.CodeNotAuthorized:
		return http.StatusForbidden
	case apperr.CodeNotFound:
		return http.StatusNotFound
	case apperr.CodeInvalidRequest, apperr.CodeInvalidGuessLength:
		return http.StatusBadRequest
	case apperr.CodeInvalidState, apperr.CodeAlreadyPending, apperr.CodeNotOnline:
		return http.StatusConflict
	case apperr.CodeBusy:
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

func writeError(w http.ResponseWriter, err error) {
	code := apperr.CodeOf(err)
	writeJSON(w, statusFor(code), types.ErrorMessage(string(code), apperr.MessageOf(err)))
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
