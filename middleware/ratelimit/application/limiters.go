package application

import (
	"fmt"

	"gigsync/middleware/ratelimit/domain"
)

// Limiters agrupa um limiter independente por categoria.
//
// Cada categoria recebe sua própria instância de Service e de store (via
// newStore), então os espaços de chave nunca se misturam.
type Limiters struct {
	byCategory map[domain.Category]*Limiter
}

// NewLimiters cria um limiter por entrada de policies.
func NewLimiters(
	policies map[domain.Category]domain.Policy,
	newStore func(domain.Category) domain.RecordStore,
	svcOpts []ServiceOption,
	limOpts ...LimiterOption,
) (*Limiters, error) {
	ls := &Limiters{byCategory: make(map[domain.Category]*Limiter, len(policies))}
	for cat, pol := range policies {
		svc := NewService(newStore(cat), svcOpts...)
		lim, err := NewLimiter(cat, pol, svc, limOpts...)
		if err != nil {
			return nil, err
		}
		ls.byCategory[cat] = lim
	}
	return ls, nil
}

// Get retorna o limiter da categoria, ou nil se não configurada.
func (ls *Limiters) Get(cat domain.Category) *Limiter {
	if ls == nil {
		return nil
	}
	return ls.byCategory[cat]
}

func (ls *Limiters) MustGet(cat domain.Category) *Limiter {
	l := ls.Get(cat)
	if l == nil {
		panic(fmt.Sprintf("ratelimit: no limiter for category %q", cat))
	}
	return l
}
