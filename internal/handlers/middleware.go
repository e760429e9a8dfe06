package handlers

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5/middleware"
	"golang.org/x/time/rate"

	"procurement/internal/actor"
	"procurement/internal/apperr"
)

const (
	headerActorID           = "X-Actor-Id"
	headerActorRole         = "X-Actor-Role"
	headerActorJurisdiction = "X-Actor-Jurisdiction"
)

// actorFromHeaders доверяет личности, выставленной шлюзом аутентификации.
// Запрос без X-Actor-Id выполняется анонимно.
func (h *Handler) actorFromHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw := r.Header.Get(headerActorID)
		if raw == "" {
			next.ServeHTTP(w, r)
			return
		}
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || id <= 0 {
			h.writeError(w, r, apperr.Validation("http.actor", "invalid %s %q", headerActorID, raw))
			return
		}
		role, err := actor.ParseRole(r.Header.Get(headerActorRole))
		if err != nil {
			h.writeError(w, r, apperr.Validation("http.actor", "%v", err))
			return
		}
		a := actor.Actor{ID: id, Role: role, Jurisdiction: r.Header.Get(headerActorJurisdiction)}
		next.ServeHTTP(w, r.WithContext(actor.WithActor(r.Context(), a)))
	})
}

// RateLimiter - одно ведро токенов на все запросы процесса
type RateLimiter struct {
	limiter *rate.Limiter
}

// NewRateLimiter пропускает rps запросов в секунду с заданным burst.
// При rps <= 0 ограничение выключено.
func NewRateLimiter(rps float64, burst int) *RateLimiter {
	limit := rate.Limit(rps)
	if rps <= 0 {
		limit = rate.Inf
	}
	if burst < 1 {
		burst = 1
	}
	return &RateLimiter{limiter: rate.NewLimiter(limit, burst)}
}

func (rl *RateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !rl.limiter.Allow() {
			w.Header().Set("Retry-After", "1")
			writeJSON(w, http.StatusTooManyRequests, map[string]any{
				"request_id": middleware.GetReqID(r.Context()),
				"error":      errorBody{Code: "rate_limited", Message: "too many requests"},
			})
			return
		}
		next.ServeHTTP(w, r)
	})
}
