package middleware

import (
	"log"
	"net/http"
	"strconv"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// UserRateLimiter throttles API calls per Telegram user.
type UserRateLimiter struct {
	mu       sync.Mutex
	limiters map[int64]*rate.Limiter
	limit    rate.Limit
	burst    int
}

// NewUserRateLimiter allows limit requests per second per user with the
// given burst.
func NewUserRateLimiter(limit rate.Limit, burst int) *UserRateLimiter {
	return &UserRateLimiter{
		limiters: make(map[int64]*rate.Limiter),
		limit:    limit,
		burst:    burst,
	}
}

func (rl *UserRateLimiter) limiterFor(userID int64) *rate.Limiter {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	l, ok := rl.limiters[userID]
	if !ok {
		l = rate.NewLimiter(rl.limit, rl.burst)
		rl.limiters[userID] = l
	}
	return l
}

// retryAfter is the whole number of seconds until one more token is available.
func (rl *UserRateLimiter) retryAfter() string {
	if rl.limit <= 0 || rl.limit == rate.Inf {
		return "1"
	}
	wait := time.Duration(float64(time.Second) / float64(rl.limit))
	return strconv.Itoa(int((wait + time.Second - 1) / time.Second))
}

// Middleware must run after the auth middleware.
func (rl *UserRateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, ok := UserFromContext(r.Context())
		if !ok {
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}

		if !rl.limiterFor(user.ID).Allow() {
			log.Printf("Rate limit exceeded for user %d on %s %s", user.ID, r.Method, r.URL.Path)
			w.Header().Set("Retry-After", rl.retryAfter())
			http.Error(w, "Too Many Requests", http.StatusTooManyRequests)
			return
		}

		next.ServeHTTP(w, r)
	})
}
