package application

import (
	"context"
	"errors"
	"time"

	"gigsync/middleware/ratelimit/domain"
)

// ErrNoSlot indica que nenhuma vaga ficou livre dentro do prazo.
var ErrNoSlot = errors.New("no concurrency slot available")

// ConcurrencyService limita quantas escritas seguem ao backend ao mesmo tempo.
// Não sabe nada de HTTP.
type ConcurrencyService struct {
	Pool domain.SlotPool
	// AcquireTimeout <= 0 espera até o ctx encerrar.
	AcquireTimeout time.Duration
}

// Acquire devolve (release, true) com uma vaga; sem Pool, sempre consegue.
func (s ConcurrencyService) Acquire(ctx context.Context) (func(), bool) {
	if s.Pool == nil {
		return func() {}, true
	}
	if s.AcquireTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.AcquireTimeout)
		defer cancel()
	}
	return s.Pool.Acquire(ctx)
}

// Run executa fn segurando uma vaga e a libera ao final.
func (s ConcurrencyService) Run(ctx context.Context, fn func(context.Context) error) error {
	release, ok := s.Acquire(ctx)
	if !ok {
		return ErrNoSlot
	}
	defer release()
	return fn(ctx)
}

func (s ConcurrencyService) InFlight() int {
	if s.Pool == nil {
		return 0
	}
	return s.Pool.InUse()
}
