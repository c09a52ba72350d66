package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"gigsync/api"
	"gigsync/middleware/ratelimit"
	offline "gigsync/offline/domain"
	"gigsync/storage"
)

const kvSweepInterval = time.Minute

// runSweeper apaga periodicamente as chaves vencidas do storage até ctx
// encerrar. Falhas só são logadas.
func runSweeper(ctx context.Context, sw storage.Sweeper, every time.Duration, logger *zap.Logger) error {
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-t.C:
			n, err := sw.Sweep(ctx)
			if err != nil {
				logger.Warn("kv sweep failed", zap.Error(err))
				continue
			}
			if n > 0 {
				logger.Debug("kv sweep", zap.Int64("removed", n))
			}
		}
	}
}

func newServeCmd(c *cli) *cobra.Command {
	var listen string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the local HTTP API, the connectivity prober and the replay loop",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if listen != "" {
				c.cfg.ListenAddr = listen
			}
			return serve(cmd.Context(), c)
		},
	}
	cmd.Flags().StringVar(&listen, "listen", "", "listen address (overrides listen_addr)")
	return cmd
}

func serve(parent context.Context, c *cli) error {
	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, c.cfg, c.logger)
	if err != nil {
		return err
	}
	defer func() { _ = a.Close() }()
	if a.backend == nil {
		return errNoBackend
	}

	a.watcher.OnReconnect(func(ctx context.Context) {
		report, err := a.queue.ProcessQueue(ctx)
		if err != nil {
			if !errors.Is(err, offline.ErrOffline) {
				c.logger.Error("replay on reconnect failed", zap.Error(err))
			}
			return
		}
		for _, res := range report.Failed() {
			c.logger.Warn("queued operation dropped after failure",
				zap.String("id", res.Operation.ID),
				zap.String("type", res.Operation.Type),
				zap.Error(res.Err))
		}
	})

	for _, s := range a.memStores {
		s.StartJanitor(ctx)
	}

	h := api.New(api.Options{
		Queue:            a.queue,
		Limiters:         a.limiters,
		Connectivity:     a.watcher,
		Gatherer:         a.registry,
		KeyHeader:        c.cfg.RateLimit.KeyHeader,
		TrustXFF:         c.cfg.RateLimit.TrustXFF,
		RateLimitHeaders: c.cfg.RateLimit.Headers,
		Concurrency: ratelimit.ConcurrencyOptions{
			Max:            c.cfg.Concurrency.Max,
			RejectStatus:   http.StatusServiceUnavailable,
			AcquireTimeout: c.cfg.Concurrency.Timeout,
		},
		Logger: c.logger.Named("api"),
	})

	srv := &http.Server{
		Addr:              c.cfg.ListenAddr,
		Handler:           h.Router(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       90 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		c.logger.Info("agent listening",
			zap.String("addr", c.cfg.ListenAddr),
			zap.String("backend", c.cfg.Backend.URL),
			zap.String("storage", c.cfg.Storage.Driver),
			zap.String("ratelimit_store", c.cfg.RateLimit.Store))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	if p := a.prober(); p != nil && c.cfg.Backend.ProbeInterval > 0 {
		g.Go(func() error { return p.Run(gctx) })
	}
	if sw, ok := a.kv.(storage.Sweeper); ok {
		g.Go(func() error { return runSweeper(gctx, sw, kvSweepInterval, c.logger.Named("storage")) })
	}

	err = g.Wait()
	c.logger.Info("agent stopped")
	return err
}
