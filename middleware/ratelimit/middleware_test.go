package ratelimit

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"code.cloudfoundry.org/clock/fakeclock"
	"github.com/stretchr/testify/require"

	"gigsync/middleware/ratelimit/application"
	"gigsync/middleware/ratelimit/domain"
	"gigsync/middleware/ratelimit/infra"
)

func newLimiter(t *testing.T, limit int, window time.Duration) *application.Limiter {
	t.Helper()
	clk := fakeclock.NewFakeClock(time.Date(2026, 2, 1, 10, 0, 0, 0, time.UTC))
	svc := application.NewService(infra.NewMemoryStore(), application.WithClock(clk))
	lim, err := application.NewLimiter(domain.CategoryApplication, domain.Policy{Limit: limit, Window: window}, svc)
	require.NoError(t, err)
	return lim
}

func serve(h http.Handler, remote, apiKey string) *httptest.ResponseRecorder {
	r := httptest.NewRequest(http.MethodPost, "http://agent/v1/gigs/g1/applications", nil)
	r.RemoteAddr = remote
	if apiKey != "" {
		r.Header.Set("X-User-ID", apiKey)
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, r)
	return w
}

func TestMiddleware_AllowsThenRejectsSameKey(t *testing.T) {
	calls := 0
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusOK)
		_, _ = io.WriteString(w, "ok")
	})

	h := Middleware(Options{
		Limiter:             newLimiter(t, 1, time.Minute),
		AddRateLimitHeaders: true,
	})(next)

	// 1) primeira passa
	w1 := serve(h, "10.0.0.1:1234", "")
	require.Equal(t, http.StatusOK, w1.Code)
	require.Equal(t, "application", w1.Header().Get("X-RateLimit-Category"))
	require.Equal(t, "1", w1.Header().Get("X-RateLimit-Limit"))
	require.Equal(t, "0", w1.Header().Get("X-RateLimit-Remaining"))
	require.NotEmpty(t, w1.Header().Get("X-RateLimit-Reset"))

	// 2) segunda deve bloquear (limit=1 na janela)
	w2 := serve(h, "10.0.0.1:1234", "")
	require.Equal(t, http.StatusTooManyRequests, w2.Code)
	require.Equal(t, "60", w2.Header().Get("Retry-After"))

	require.Equal(t, 1, calls, "expected next handler to be called once")
}

func TestMiddleware_KeyByHeader(t *testing.T) {
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	h := Middleware(Options{
		Limiter:   newLimiter(t, 1, time.Minute),
		KeyHeader: "X-User-ID",
	})(next)

	// duas chaves diferentes => ambas passam (cada chave tem sua própria janela)
	require.Equal(t, http.StatusOK, serve(h, "10.0.0.1:1234", "u1").Code)
	require.Equal(t, http.StatusOK, serve(h, "10.0.0.1:1234", "u2").Code)
	require.Equal(t, http.StatusTooManyRequests, serve(h, "10.0.0.1:1234", "u1").Code)
}

type brokenLimiter struct{}

func (brokenLimiter) Allow(context.Context, domain.Key) (domain.Decision, error) {
	return domain.Decision{}, errors.New("store down")
}

func (brokenLimiter) Category() domain.Category { return domain.CategoryAuth }

func TestMiddleware_StoreFailure(t *testing.T) {
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	open := Middleware(Options{Limiter: brokenLimiter{}})(next)
	require.Equal(t, http.StatusOK, serve(open, "10.0.0.1:1", "").Code)

	closed := Middleware(Options{Limiter: brokenLimiter{}, FailClosed: true})(next)
	require.Equal(t, http.StatusServiceUnavailable, serve(closed, "10.0.0.1:1", "").Code)
}

func TestMiddleware_NoLimiterIsNoop(t *testing.T) {
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusAccepted)
	})
	require.Equal(t, http.StatusAccepted, serve(Middleware(Options{})(next), "10.0.0.1:1", "").Code)
}

func TestRetryAfterSeconds_RoundsUp(t *testing.T) {
	require.Equal(t, 1, retryAfterSeconds(0))
	require.Equal(t, 1, retryAfterSeconds(10*time.Millisecond))
	require.Equal(t, 3, retryAfterSeconds(2500*time.Millisecond))
	require.Equal(t, 2, retryAfterSeconds(2*time.Second))
}
