package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"gigsync/middleware/ratelimit"
	"gigsync/middleware/ratelimit/application"
	"gigsync/middleware/ratelimit/domain"
	"gigsync/middleware/ratelimit/infra"
	offapp "gigsync/offline/application"
	offline "gigsync/offline/domain"
	"gigsync/storage"
)

// Exemplo: limiter e fila offline embutidos direto no seu webserver,
// sem o agente. O "backend" aqui só loga a escrita.
func main() {
	logger, _ := zap.NewDevelopment()
	defer func() { _ = logger.Sync() }()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	store := infra.NewMemoryStore(infra.WithIdleTTL(2 * time.Minute))
	store.StartJanitor(ctx)

	lim, err := application.NewLimiter(domain.CategoryMessage,
		domain.Policy{Limit: 5, Window: time.Minute},
		application.NewService(store),
		application.WithLogger(logger))
	if err != nil {
		logger.Fatal("limiter", zap.Error(err))
	}

	disp := offapp.NewDispatcher().Register(offline.TypeSendMessage,
		offline.HandlerFunc(func(_ context.Context, p map[string]any) error {
			logger.Info("message sent", zap.Any("payload", p))
			return nil
		}))
	q := offapp.New(storage.NewMemory(), disp, offapp.WithLogger(logger))

	mux := http.NewServeMux()
	mux.HandleFunc("POST /messages", func(w http.ResponseWriter, r *http.Request) {
		_, err := q.Submit(r.Context(), offline.Operation{
			Type:    offline.TypeSendMessage,
			Payload: map[string]any{"conversationId": r.URL.Query().Get("c"), "content": r.URL.Query().Get("text")},
		})
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadGateway)
			return
		}
		w.WriteHeader(http.StatusCreated)
	})

	h := http.Handler(mux)
	h = ratelimit.ConcurrencyMiddleware(ratelimit.ConcurrencyOptions{Max: 50, Logger: logger})(h)
	h = ratelimit.Middleware(ratelimit.Options{
		Limiter:             lim,
		KeyHeader:           "X-User-ID", // ou vazio para usar IP
		TrustXForwardedFor:  true,
		AddRateLimitHeaders: true,
		Logger:              logger,
	})(h)

	addr := ":8081"
	if v := os.Getenv("LISTEN_ADDR"); v != "" {
		addr = v
	}

	srv := &http.Server{
		Addr:              addr,
		Handler:           h,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       90 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	logger.Info("example server listening", zap.String("addr", addr))
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Fatal("server error", zap.Error(err))
	}
}
