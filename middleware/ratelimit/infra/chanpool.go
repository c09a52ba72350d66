package infra

import (
	"context"
	"sync"

	"gigsync/middleware/ratelimit/domain"
)

// SlotChan é um SlotPool sobre um channel com buffer: cada vaga ocupada é um
// elemento no buffer.
type SlotChan struct {
	slots chan struct{}
}

var _ domain.SlotPool = (*SlotChan)(nil)

// NewChanPool cria um pool com capacidade size (mínimo 1).
func NewChanPool(size int) *SlotChan {
	if size < 1 {
		size = 1
	}
	return &SlotChan{slots: make(chan struct{}, size)}
}

// Acquire devolve um release idempotente: chamar duas vezes não libera
// uma vaga alheia.
func (p *SlotChan) Acquire(ctx context.Context) (func(), bool) {
	if ctx.Err() != nil {
		return nil, false
	}
	select {
	case p.slots <- struct{}{}:
		var once sync.Once
		return func() { once.Do(func() { <-p.slots }) }, true
	case <-ctx.Done():
		return nil, false
	}
}

func (p *SlotChan) InUse() int { return len(p.slots) }
func (p *SlotChan) Cap() int   { return cap(p.slots) }
