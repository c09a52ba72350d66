package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"

	"gigsync/config"
	"gigsync/metrics"
	rlapp "gigsync/middleware/ratelimit/application"
	rldomain "gigsync/middleware/ratelimit/domain"
	rlinfra "gigsync/middleware/ratelimit/infra"
	offapp "gigsync/offline/application"
	offinfra "gigsync/offline/infra"
	"gigsync/storage"
)

var errNoBackend = errors.New("backend.url is required for this command")

// app reúne as dependências montadas a partir da configuração.
type app struct {
	cfg      config.Config
	logger   *zap.Logger
	kv       storage.Backend
	registry *prometheus.Registry
	metrics  *metrics.Metrics

	watcher  *offinfra.Watcher
	backend  *offinfra.Backend
	queue    *offapp.Queue
	limiters *rlapp.Limiters
	stats    *rlinfra.MemoryStatsStore
	// stores em memória precisam do janitor rodando.
	memStores []*rlinfra.MemoryStore
	// redisStats só existe com stats.redis_enabled.
	redisStats *rlinfra.RedisStatsStore
}

func newApp(ctx context.Context, cfg config.Config, logger *zap.Logger) (*app, error) {
	kv, err := storage.Open(ctx, cfg.Storage)
	if err != nil {
		return nil, fmt.Errorf("open storage: %w", err)
	}

	a := &app{
		cfg:      cfg,
		logger:   logger,
		kv:       kv,
		registry: prometheus.NewRegistry(),
		watcher:  offinfra.NewWatcher(logger.Named("connectivity")),
		stats:    rlinfra.NewMemoryStatsStore(rlinfra.WithTrackKeys(cfg.Stats.TrackKeys)),
	}
	a.registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	a.metrics = metrics.New(a.registry)

	disp := offapp.NewDispatcher()
	if cfg.Backend.URL != "" {
		a.backend = offinfra.NewBackend(cfg.Backend.URL, cfg.Backend.APIKey,
			offinfra.WithBackendTimeout(cfg.Backend.Timeout),
			offinfra.WithBackendLogger(logger.Named("backend")))
		for opType, h := range a.backend.Handlers() {
			disp.Register(opType, h)
		}
	}

	a.queue = offapp.New(kv, disp,
		offapp.WithKey(cfg.Queue.Key),
		offapp.WithLogger(logger.Named("queue")),
		offapp.WithConnectivity(a.watcher),
		offapp.WithRecorder(a.metrics),
		offapp.WithActionTimeout(cfg.Queue.ActionTimeout),
		offapp.WithRetry(cfg.Queue.MaxAttempts, cfg.Queue.RetryBase),
		offapp.WithReplayRate(cfg.Queue.ReplayRPS, 1))

	statsStores := rlinfra.MultiStatsStore{a.stats, rlinfra.NewPrometheusStatsStore(a.metrics)}
	if cfg.Stats.RedisEnabled {
		r, ok := kv.(*storage.Redis)
		if !ok {
			_ = kv.Close()
			return nil, errors.New("stats.redis_enabled requires storage.driver=redis")
		}
		a.redisStats = rlinfra.NewRedisStatsStore(r.Client(),
			rlinfra.WithStatsPrefix(cfg.Stats.Prefix),
			rlinfra.WithStatsTTL(cfg.Stats.TTL),
			rlinfra.WithStatsTrackKeys(cfg.Stats.TrackKeys))
		statsStores = append(statsStores, a.redisStats)
	}

	policies := cfg.RateLimit.Policies()
	lims, err := rlapp.NewLimiters(policies, a.recordStore(policies), nil,
		rlapp.WithStats(statsStores),
		rlapp.WithLogger(logger.Named("ratelimit")))
	if err != nil {
		_ = kv.Close()
		return nil, err
	}
	a.limiters = lims
	return a, nil
}

// recordStore escolhe o store de registros de cada categoria; a escolha vale
// para a instância inteira.
func (a *app) recordStore(policies map[rldomain.Category]rldomain.Policy) func(rldomain.Category) rldomain.RecordStore {
	return func(cat rldomain.Category) rldomain.RecordStore {
		if a.cfg.RateLimit.Store == config.RateStoreKV {
			// expira com folga sobre a janela, senão a janela reiniciaria cedo
			return rlinfra.NewKVStore(a.kv, "ratelimit:"+string(cat),
				rlinfra.WithRecordTTL(2*policies[cat].Window))
		}
		// ociosidade > janela, pelo mesmo motivo
		s := rlinfra.NewMemoryStore(rlinfra.WithIdleTTL(2 * policies[cat].Window))
		a.memStores = append(a.memStores, s)
		return s
	}
}

func (a *app) prober() *offinfra.Prober {
	if a.backend == nil {
		return nil
	}
	return &offinfra.Prober{
		URL:      a.backend.HealthURL(),
		Interval: a.cfg.Backend.ProbeInterval,
		Timeout:  a.cfg.Backend.Timeout,
		Client:   &http.Client{},
		Watcher:  a.watcher,
		Logger:   a.logger.Named("prober"),
	}
}

func (a *app) Close() error {
	return a.kv.Close()
}
