package application

import (
	"sort"

	"gigsync/offline/domain"
)

// Dispatcher é o registro fixo tipo -> handler usado no replay.
// Deve ser montado na inicialização; não é seguro registrar durante o uso.
type Dispatcher struct {
	handlers map[string]domain.Handler
}

func NewDispatcher() *Dispatcher {
	return &Dispatcher{handlers: make(map[string]domain.Handler)}
}

func (d *Dispatcher) Register(opType string, h domain.Handler) *Dispatcher {
	d.handlers[opType] = h
	return d
}

func (d *Dispatcher) Lookup(opType string) (domain.Handler, bool) {
	if d == nil {
		return nil, false
	}
	h, ok := d.handlers[opType]
	return h, ok
}

func (d *Dispatcher) Types() []string {
	out := make([]string, 0, len(d.handlers))
	for t := range d.handlers {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}
