package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"gigsync/logging"
	"gigsync/middleware/ratelimit"
	"gigsync/middleware/ratelimit/application"
	"gigsync/middleware/ratelimit/domain"
	offline "gigsync/offline/domain"
)

// Queue é o lado da fila offline usado pelos handlers
// (implementado por *offline/application.Queue).
type Queue interface {
	Submit(ctx context.Context, op offline.Operation) (offline.SubmitResult, error)
	GetQueue(ctx context.Context) ([]offline.QueuedOperation, error)
	ProcessQueue(ctx context.Context) (offline.ReplayReport, error)
	Clear(ctx context.Context) error
}

// Connectivity recebe os relatos de rede do shell (implementado por *infra.Watcher).
type Connectivity interface {
	Update(ctx context.Context, connected bool) bool
	Connected() bool
}

type Options struct {
	Queue        Queue
	Limiters     *application.Limiters
	Connectivity Connectivity
	// Gatherer habilita GET /metrics quando não nil.
	Gatherer prometheus.Gatherer

	KeyHeader        string
	TrustXFF         bool
	RateLimitHeaders bool
	FailClosed       bool
	Concurrency      ratelimit.ConcurrencyOptions

	Logger *zap.Logger
}

type Handler struct {
	queue    Queue
	limiters *application.Limiters
	conn     Connectivity
	opts     Options
	logger   *zap.Logger
}

func New(opts Options) *Handler {
	logger := logging.OrNop(opts.Logger)
	opts.Concurrency.Logger = logger
	return &Handler{
		queue:    opts.Queue,
		limiters: opts.Limiters,
		conn:     opts.Connectivity,
		opts:     opts,
		logger:   logger,
	}
}

// Router monta o chi.Mux com todas as rotas.
func (h *Handler) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(requestLogger(h.logger))
	r.Use(middleware.Recoverer)

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusNotFound, "not_found", "resource not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "method not allowed")
	})

	r.Get("/healthz", h.handleHealth)
	if h.opts.Gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(h.opts.Gatherer, promhttp.HandlerOpts{}))
	}

	h.Register(r)
	return r
}

// Register registra as rotas /v1 em r.
func (h *Handler) Register(r chi.Router) {
	r.Route("/v1", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			r.Use(ratelimit.ConcurrencyMiddleware(h.opts.Concurrency))

			r.With(h.limit(domain.CategoryGigCreation)).
				Post("/gigs", h.write(offline.TypeCreateGig))
			r.With(h.limit(domain.CategoryApplication)).
				Post("/gigs/{gigID}/applications", h.write(offline.TypeApplyToGig))
			r.Post("/gigs/{gigID}/saves", h.write(offline.TypeSaveGig))
			r.With(h.limit(domain.CategoryMessage)).
				Post("/messages", h.write(offline.TypeSendMessage))
			r.Patch("/profile", h.write(offline.TypeUpdateProfile))
		})

		r.With(h.limit(domain.CategoryAuth)).
			Post("/auth/attempts", func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(http.StatusNoContent)
			})

		r.Get("/queue", h.handleListQueue)
		r.Post("/queue/replay", h.handleReplay)
		r.Delete("/queue", h.handleClearQueue)

		r.Put("/connectivity", h.handleConnectivity)
	})
}

// limit devolve o middleware da categoria; sem limiter configurado, passa direto.
func (h *Handler) limit(cat domain.Category) func(http.Handler) http.Handler {
	l := h.limiters.Get(cat)
	if l == nil {
		return func(next http.Handler) http.Handler { return next }
	}
	return ratelimit.Middleware(ratelimit.Options{
		Limiter:             l,
		KeyHeader:           h.opts.KeyHeader,
		TrustXForwardedFor:  h.opts.TrustXFF,
		AddRateLimitHeaders: h.opts.RateLimitHeaders,
		FailClosed:          h.opts.FailClosed,
		Logger:              h.logger,
	})
}

func requestLogger(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)

			route := r.URL.Path
			if rc := chi.RouteContext(r.Context()); rc != nil && rc.RoutePattern() != "" {
				route = rc.RoutePattern()
			}
			logger.Debug("request",
				zap.String("method", r.Method),
				zap.String("route", route),
				zap.Int("status", ww.Status()),
				zap.Duration("took", time.Since(start)),
				zap.String("request_id", middleware.GetReqID(r.Context())))
		})
	}
}
