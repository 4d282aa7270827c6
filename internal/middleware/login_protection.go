// Package middleware provides HTTP middleware for authentication,
// authorization, activity tracking and request context handling.
package middleware

import (
	"log/slog"
	"net/http"
	"sync"

	"golang.org/x/time/rate"
)

// LoginProtection rate-limits login POSTs per client IP. It sits in front
// of the account lockout in the authenticator: the limiter slows password
// guessing across accounts, the lockout throttles a single account.
type LoginProtection struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	rate     rate.Limit
	burst    int
	maxKeys  int
}

// NewLoginProtection creates a login rate limiter allowing rps requests per
// second with the given burst per IP.
func NewLoginProtection(rps float64, burst int) *LoginProtection {
	if rps <= 0 {
		rps = 0.5
	}
	if burst <= 0 {
		burst = 5
	}
	return &LoginProtection{
		limiters: make(map[string]*rate.Limiter),
		rate:     rate.Limit(rps),
		burst:    burst,
		maxKeys:  10000,
	}
}

func (lp *LoginProtection) allow(ip string) bool {
	lp.mu.Lock()
	defer lp.mu.Unlock()

	// Reset rather than evict when the map grows unreasonably.
	if len(lp.limiters) >= lp.maxKeys {
		lp.limiters = make(map[string]*rate.Limiter)
	}

	limiter, ok := lp.limiters[ip]
	if !ok {
		limiter = rate.NewLimiter(lp.rate, lp.burst)
		lp.limiters[ip] = limiter
	}
	return limiter.Allow()
}

// Middleware returns HTTP middleware limiting POST requests per client IP.
// Apply to the login route.
func (lp *LoginProtection) Middleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Method != http.MethodPost {
				next.ServeHTTP(w, r)
				return
			}

			ip := clientIP(r)
			if !lp.allow(ip) {
				slog.Warn("login rate limit exceeded", "ip", ip)
				http.Error(w, "Too many login requests, slow down.", http.StatusTooManyRequests)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// clientIP extracts the client IP from the request.
func clientIP(r *http.Request) string {
	if ip := r.Header.Get("X-Real-IP"); ip != "" {
		return ip
	}
	if ip := r.Header.Get("X-Forwarded-For"); ip != "" {
		// X-Forwarded-For can contain multiple IPs; take the first one
		return ip
	}
	return r.RemoteAddr
}
