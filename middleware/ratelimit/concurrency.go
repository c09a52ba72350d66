package ratelimit

import (
	"context"
	"net/http"
	"time"

	"go.uber.org/zap"

	"gigsync/middleware/ratelimit/application"
	"gigsync/middleware/ratelimit/domain"
	"gigsync/middleware/ratelimit/infra"
)

type ConcurrencyOptions struct {
	// Max é ignorado quando Pool é informado.
	Max int
	// Pool permite compartilhar as vagas entre vários grupos de rotas.
	Pool           domain.SlotPool
	RejectStatus   int
	AcquireTimeout time.Duration
	Logger         *zap.Logger
}

// ConcurrencyMiddleware limita quantas requisições de escrita estão em voo.
// Sem Pool e com Max <= 0 é um no-op.
func ConcurrencyMiddleware(opts ConcurrencyOptions) func(next http.Handler) http.Handler {
	pool := opts.Pool
	if pool == nil {
		if opts.Max <= 0 {
			return func(next http.Handler) http.Handler { return next }
		}
		pool = infra.NewChanPool(opts.Max)
	}
	if opts.RejectStatus == 0 {
		opts.RejectStatus = http.StatusServiceUnavailable
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	svc := application.ConcurrencyService{Pool: pool, AcquireTimeout: opts.AcquireTimeout}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			err := svc.Run(r.Context(), func(context.Context) error {
				next.ServeHTTP(w, r)
				return nil
			})
			if err == nil {
				return
			}
			logger.Warn("no write slot available",
				zap.Int("in_flight", svc.InFlight()),
				zap.String("path", r.URL.Path))
			w.Header().Set("Retry-After", "1")
			http.Error(w, http.StatusText(opts.RejectStatus), opts.RejectStatus)
		})
	}
}
