// middleware.go

// Per-client rate limiting for the Telegram auth routes.
package auth

import (
	"errors"
	"net"
	"net/http"

	"github.com/MGallo-Code/tgbridge/internal/store"
)

// RateLimit throttles requests per client IP using h.RL and h.RateAuth.
// No-op when h.RL is nil. Limiter failures are logged and the request is let through;
// the limiter never decides trust.
func (h *AuthHandler) RateLimit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if h.RL == nil {
			next.ServeHTTP(w, r)
			return
		}
		ip := clientIP(r)
		if err := h.RL.Allow(r.Context(), "tg_auth:"+ip, h.RateAuth); err != nil {
			if errors.Is(err, store.ErrRateLimitExceeded) {
				logWarn(r, "telegram auth rate limited", "client_ip", ip)
				TooManyRequests(w)
				return
			}
			logError(r, "rate limiter failed, allowing request", "error", err)
		}
		next.ServeHTTP(w, r)
	})
}

// clientIP strips the port from r.RemoteAddr.
// chi's RealIP middleware may already have replaced it with a bare address.
func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
