package handlers

import (
	"fmt"
	"net/http"

	"github.com/santridigital/kreator-gateway/internal/gateway/classify"
	"github.com/santridigital/kreator-gateway/internal/gateway/credentials"
	"github.com/santridigital/kreator-gateway/internal/shared/redis"
)

type Middleware struct {
	creds *credentials.Store
	redis *redis.Client
	limit int
}

func NewMiddleware(creds *credentials.Store, redisClient *redis.Client, limit int) *Middleware {
	if limit <= 0 {
		limit = 100 // fallback default
	}
	return &Middleware{
		creds: creds,
		redis: redisClient,
		limit: limit,
	}
}

// RateLimitMiddleware enforces rate limits keyed by the active credential,
// falling back to the client address when no credential is active. Passes
// requests through untouched when Redis is not configured or unreachable.
func (m *Middleware) RateLimitMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if m.redis == nil {
			next.ServeHTTP(w, r)
			return
		}

		callerID := r.RemoteAddr
		if active, err := m.creds.Active(r.Context()); err == nil && active != nil {
			callerID = active.ID
		}

		exceeded, remaining, err := m.redis.CheckRateLimit(r.Context(), callerID, m.limit)
		if err != nil {
			next.ServeHTTP(w, r)
			return
		}

		w.Header().Set("X-RateLimit-Limit", fmt.Sprintf("%d", m.limit))
		w.Header().Set("X-RateLimit-Remaining", fmt.Sprintf("%d", remaining))

		if exceeded {
			w.Header().Set("Retry-After", "60")
			writeError(w, http.StatusTooManyRequests, classify.KindGeneric, "rate limit exceeded")
			return
		}

		next.ServeHTTP(w, r)
	})
}

// CORSMiddleware handles CORS
func (m *Middleware) CORSMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, Accept")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}
