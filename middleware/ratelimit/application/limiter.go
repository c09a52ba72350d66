package application

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"gigsync/middleware/ratelimit/domain"
)

// Limiter é um Service preso a uma categoria e sua política.
type Limiter struct {
	category domain.Category
	policy   domain.Policy
	svc      *Service
	stats    domain.StatsStore
	logger   *zap.Logger
}

type LimiterOption func(*Limiter)

func WithStats(s domain.StatsStore) LimiterOption {
	return func(l *Limiter) { l.stats = s }
}

func WithLogger(logger *zap.Logger) LimiterOption {
	return func(l *Limiter) { l.logger = logger }
}

func NewLimiter(category domain.Category, policy domain.Policy, svc *Service, opts ...LimiterOption) (*Limiter, error) {
	if policy.Limit <= 0 || policy.Window <= 0 {
		return nil, fmt.Errorf("category %s: %w", category, ErrInvalidPolicy)
	}
	l := &Limiter{category: category, policy: policy, svc: svc, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(l)
	}
	return l, nil
}

func (l *Limiter) Category() domain.Category { return l.category }
func (l *Limiter) Policy() domain.Policy     { return l.policy }

// Allow aplica a política da categoria à chave.
// Estatísticas são best-effort: falha ao registrar não muda a decisão.
func (l *Limiter) Allow(ctx context.Context, key domain.Key) (domain.Decision, error) {
	dec, err := l.svc.CheckLimit(ctx, key, l.policy.Limit, l.policy.Window)
	if err != nil {
		l.logger.Error("rate limit check failed",
			zap.String("category", string(l.category)),
			zap.String("key", string(key)),
			zap.Error(err))
		return domain.Decision{}, err
	}

	if !dec.Allowed {
		l.logger.Debug("rate limit exceeded",
			zap.String("category", string(l.category)),
			zap.String("key", string(key)),
			zap.Duration("retry_after", dec.RetryAfter))
	}

	if l.stats != nil {
		ev := domain.StatsEvent{Category: l.category, Key: key, Allowed: dec.Allowed, At: l.svc.clock.Now()}
		if err := l.stats.Record(ctx, ev); err != nil {
			l.logger.Warn("rate limit stats record failed", zap.Error(err))
		}
	}
	return dec, nil
}

func (l *Limiter) Reset(ctx context.Context, key domain.Key) error {
	return l.svc.Reset(ctx, key)
}
