package application

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"code.cloudfoundry.org/clock"

	"gigsync/middleware/ratelimit/domain"
)

var ErrInvalidPolicy = errors.New("ratelimit: limit and window must be > 0")

// Service concentra a regra de janela fixa do rate limit.
//
// Ele não sabe nada sobre HTTP (headers/status), apenas retorna uma decisão.
// Chamadas são serializadas por instância: duas checagens concorrentes da
// mesma chave nunca leem o mesmo Count.
type Service struct {
	store domain.RecordStore
	clock clock.Clock
	mu    sync.Mutex
}

type ServiceOption func(*Service)

func WithClock(c clock.Clock) ServiceOption {
	return func(s *Service) { s.clock = c }
}

func NewService(store domain.RecordStore, opts ...ServiceOption) *Service {
	s := &Service{store: store, clock: clock.NewClock()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// CheckLimit decide se a ação de key é permitida em limit ações por window.
//
//   - sem registro, ou janela expirada: nova janela com Count=1, permitido
//   - Count >= limit: negado, sem alterar o estado
//   - caso contrário: Count++ e permitido
//
// Negação não é erro; erro só indica falha do store.
func (s *Service) CheckLimit(ctx context.Context, key domain.Key, limit int, window time.Duration) (domain.Decision, error) {
	if limit <= 0 || window <= 0 {
		return domain.Decision{}, ErrInvalidPolicy
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.clock.Now()

	rec, ok, err := s.store.Load(ctx, key)
	if err != nil {
		return domain.Decision{}, fmt.Errorf("load rate limit record: %w", err)
	}

	if !ok || rec.Expired(now, window) {
		rec = domain.Record{Count: 1, WindowStart: now}
		if err := s.store.Save(ctx, key, rec); err != nil {
			return domain.Decision{}, fmt.Errorf("save rate limit record: %w", err)
		}
		return allowed(rec, limit, window), nil
	}

	if rec.Count >= limit {
		resetAt := rec.WindowStart.Add(window)
		retry := resetAt.Sub(now)
		if retry <= 0 {
			retry = time.Millisecond
		}
		return domain.Decision{
			Allowed:    false,
			Limit:      limit,
			Remaining:  0,
			ResetAt:    resetAt,
			RetryAfter: retry,
		}, nil
	}

	rec.Count++
	if err := s.store.Save(ctx, key, rec); err != nil {
		return domain.Decision{}, fmt.Errorf("save rate limit record: %w", err)
	}
	return allowed(rec, limit, window), nil
}

// Reset apaga o registro de key (ex: após login bem-sucedido).
func (s *Service) Reset(ctx context.Context, key domain.Key) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.store.Delete(ctx, key)
}

func allowed(rec domain.Record, limit int, window time.Duration) domain.Decision {
	return domain.Decision{
		Allowed:   true,
		Limit:     limit,
		Remaining: limit - rec.Count,
		ResetAt:   rec.WindowStart.Add(window),
	}
}
