package middleware

import (
	"context"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/tablyhq/tably-backend/api/responses"
	pkgerrors "github.com/tablyhq/tably-backend/pkg/errors"
	"github.com/tablyhq/tably-backend/pkg/logger"
)

type rateLimiter interface {
	FixedWindowAllow(ctx context.Context, scope string, limit int64, window time.Duration) (bool, int64, error)
}

// JoinRateLimit throttles session joins per client IP over a fixed window.
// Redis outages fail open.
func JoinRateLimit(limiter rateLimiter, limit int, window time.Duration, logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()

			if limiter == nil || limit <= 0 {
				next.ServeHTTP(w, r)
				return
			}

			allowed, count, err := limiter.FixedWindowAllow(ctx, "join:"+clientIP(r), int64(limit), window)
			if err != nil {
				if logg != nil {
					logg.Warn(ctx, "join rate limit check failed")
				}
				next.ServeHTTP(w, r)
				return
			}
			if !allowed {
				err := pkgerrors.New(pkgerrors.CodeRateLimit, "too many join attempts").
					WithDetails(map[string]any{"retry_after_seconds": int(window.Seconds()), "count": count})
				responses.WriteError(ctx, logg, w, err)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func clientIP(r *http.Request) string {
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		parts := strings.Split(forwarded, ",")
		return strings.TrimSpace(parts[0])
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
