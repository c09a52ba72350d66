package infra

import (
	"context"
	"sync"

	"gigsync/middleware/ratelimit/domain"
)

type Counters struct {
	Allowed int64
	Denied  int64
}

func (c *Counters) add(allowed bool) {
	if allowed {
		c.Allowed++
		return
	}
	c.Denied++
}

// MemoryStatsStore é uma implementação simples em memória.
// Útil para testes e desenvolvimento.
//
// Não faz expiração e não é indicada para produção.
type MemoryStatsStore struct {
	mu         sync.Mutex
	total      Counters
	byCategory map[domain.Category]Counters
	byKey      map[string]Counters

	trackKeys bool
}

type MemoryStatsOption func(*MemoryStatsStore)

func WithTrackKeys(track bool) MemoryStatsOption {
	return func(s *MemoryStatsStore) { s.trackKeys = track }
}

func NewMemoryStatsStore(opts ...MemoryStatsOption) *MemoryStatsStore {
	s := &MemoryStatsStore{
		byCategory: make(map[domain.Category]Counters),
		byKey:      make(map[string]Counters),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *MemoryStatsStore) Record(_ context.Context, ev domain.StatsEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.total.add(ev.Allowed)

	c := s.byCategory[ev.Category]
	c.add(ev.Allowed)
	s.byCategory[ev.Category] = c

	if s.trackKeys {
		k := string(ev.Category) + ":" + string(ev.Key)
		kc := s.byKey[k]
		kc.add(ev.Allowed)
		s.byKey[k] = kc
	}
	return nil
}

func (s *MemoryStatsStore) Total() Counters {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.total
}

func (s *MemoryStatsStore) ByCategory() map[domain.Category]Counters {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[domain.Category]Counters, len(s.byCategory))
	for k, v := range s.byCategory {
		out[k] = v
	}
	return out
}

// ByKey usa chaves no formato "categoria:chave".
func (s *MemoryStatsStore) ByKey() map[string]Counters {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]Counters, len(s.byKey))
	for k, v := range s.byKey {
		out[k] = v
	}
	return out
}
