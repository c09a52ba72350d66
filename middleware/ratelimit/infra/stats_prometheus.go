package infra

import (
	"context"

	"gigsync/middleware/ratelimit/domain"
)

// DecisionCounter é o subconjunto de metrics.Metrics usado aqui.
type DecisionCounter interface {
	Decision(category string, allowed bool)
}

// PrometheusStatsStore encaminha decisões para contadores Prometheus.
// Só usa a categoria como label (a chave explodiria a cardinalidade).
type PrometheusStatsStore struct {
	counter DecisionCounter
}

func NewPrometheusStatsStore(c DecisionCounter) *PrometheusStatsStore {
	return &PrometheusStatsStore{counter: c}
}

func (s *PrometheusStatsStore) Record(_ context.Context, ev domain.StatsEvent) error {
	s.counter.Decision(string(ev.Category), ev.Allowed)
	return nil
}

// MultiStatsStore grava em todos os stores e devolve o primeiro erro.
type MultiStatsStore []domain.StatsStore

func (m MultiStatsStore) Record(ctx context.Context, ev domain.StatsEvent) error {
	var first error
	for _, s := range m {
		if s == nil {
			continue
		}
		if err := s.Record(ctx, ev); err != nil && first == nil {
			first = err
		}
	}
	return first
}
