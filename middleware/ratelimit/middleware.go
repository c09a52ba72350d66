package ratelimit

import (
	"context"
	"net"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"gigsync/middleware/ratelimit/domain"
)

type KeyFunc func(r *http.Request) string

// Decider é o que o middleware precisa de um limiter de categoria
// (implementado por *application.Limiter).
type Decider interface {
	Allow(ctx context.Context, key domain.Key) (domain.Decision, error)
	Category() domain.Category
}

type Options struct {
	Limiter             Decider
	KeyFn               KeyFunc
	KeyHeader           string
	TrustXForwardedFor  bool
	RejectStatus        int
	AddRateLimitHeaders bool
	// FailClosed bloqueia quando o store do limiter falha.
	// Padrão: deixa passar (o limite do cliente não é a proteção final).
	FailClosed bool
	Logger     *zap.Logger
}

func DefaultKeyFunc(keyHeader string, trustXFF bool) KeyFunc {
	return func(r *http.Request) string {
		if keyHeader != "" {
			if v := strings.TrimSpace(r.Header.Get(keyHeader)); v != "" {
				return v
			}
		}

		if trustXFF {
			// pega o primeiro IP do X-Forwarded-For (cliente original)
			if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
				parts := strings.Split(xff, ",")
				if len(parts) > 0 {
					ip := strings.TrimSpace(parts[0])
					if ip != "" {
						return ip
					}
				}
			}
		}

		// fallback: RemoteAddr
		host, _, err := net.SplitHostPort(strings.TrimSpace(r.RemoteAddr))
		if err == nil && host != "" {
			return host
		}
		if r.RemoteAddr != "" {
			return r.RemoteAddr
		}
		return "unknown"
	}
}

// Middleware aplica o limiter de uma categoria às requisições.
// Sem Limiter, é um no-op.
func Middleware(opts Options) func(next http.Handler) http.Handler {
	if opts.Limiter == nil {
		return func(next http.Handler) http.Handler { return next }
	}
	if opts.RejectStatus == 0 {
		opts.RejectStatus = http.StatusTooManyRequests
	}
	if opts.KeyFn == nil {
		opts.KeyFn = DefaultKeyFunc(opts.KeyHeader, opts.TrustXForwardedFor)
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := opts.KeyFn(r)

			dec, err := opts.Limiter.Allow(r.Context(), domain.Key(key))
			if err != nil {
				opts.Logger.Error("rate limit unavailable",
					zap.String("category", string(opts.Limiter.Category())),
					zap.Bool("fail_closed", opts.FailClosed),
					zap.Error(err))
				if opts.FailClosed {
					http.Error(w, http.StatusText(http.StatusServiceUnavailable), http.StatusServiceUnavailable)
					return
				}
				next.ServeHTTP(w, r)
				return
			}

			if opts.AddRateLimitHeaders {
				h := w.Header()
				h.Set("X-RateLimit-Category", string(opts.Limiter.Category()))
				h.Set("X-RateLimit-Limit", formatInt(dec.Limit))
				h.Set("X-RateLimit-Remaining", formatInt(dec.Remaining))
				if !dec.ResetAt.IsZero() {
					h.Set("X-RateLimit-Reset", formatInt(int(dec.ResetAt.Unix())))
				}
			}

			if !dec.Allowed {
				w.Header().Set("Retry-After", formatInt(retryAfterSeconds(dec.RetryAfter)))
				http.Error(w, http.StatusText(opts.RejectStatus), opts.RejectStatus)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// retryAfterSeconds arredonda para cima: Retry-After=0 faria o cliente
// tentar de novo dentro da mesma janela.
func retryAfterSeconds(d time.Duration) int {
	if d <= 0 {
		return 1
	}
	s := int(d / time.Second)
	if d%time.Second != 0 {
		s++
	}
	return s
}
