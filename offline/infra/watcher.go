package infra

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"gigsync/logging"
)

// Listener é chamado quando a conectividade volta.
type Listener func(ctx context.Context)

// Watcher guarda o último estado de conectividade reportado e avisa os
// listeners na transição ausente -> presente.
//
// O primeiro "conectado" após a criação também conta como transição (o estado
// inicial é desconhecido), para que operações de uma sessão anterior sejam
// reexecutadas na subida.
type Watcher struct {
	mu        sync.Mutex
	known     bool
	connected bool
	listeners []Listener
	logger    *zap.Logger
}

func NewWatcher(logger *zap.Logger) *Watcher {
	return &Watcher{logger: logging.OrNop(logger)}
}

func (w *Watcher) OnReconnect(l Listener) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.listeners = append(w.listeners, l)
}

// Connected implementa domain.Connectivity. Estado desconhecido conta como offline.
func (w *Watcher) Connected() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.known && w.connected
}

// Update registra o novo estado. Na borda de reconexão, chama os listeners
// de forma síncrona, na ordem de registro. Retorna true se houve reconexão.
func (w *Watcher) Update(ctx context.Context, connected bool) bool {
	w.mu.Lock()
	reconnected := connected && (!w.known || !w.connected)
	changed := !w.known || w.connected != connected
	w.known = true
	w.connected = connected
	listeners := append([]Listener(nil), w.listeners...)
	w.mu.Unlock()

	if changed {
		w.logger.Info("connectivity changed", zap.Bool("connected", connected))
	}
	if !reconnected {
		return false
	}
	for _, l := range listeners {
		l(ctx)
	}
	return true
}
