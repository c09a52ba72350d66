package storage

import (
	"context"
	"sync"
	"time"
)

// Memory é uma implementação em memória de KV.
// Útil para testes e desenvolvimento; o conteúdo se perde ao reiniciar.
type Memory struct {
	mu   sync.RWMutex
	data map[string]string
	exp  map[string]time.Time
	now  func() time.Time
}

func NewMemory() *Memory {
	return &Memory{
		data: make(map[string]string),
		exp:  make(map[string]time.Time),
		now:  time.Now,
	}
}

func (m *Memory) Get(_ context.Context, key string) (string, bool, error) {
	m.mu.RLock()
	v, ok := m.data[key]
	at, hasExp := m.exp[key]
	m.mu.RUnlock()
	if ok && hasExp && !m.now().Before(at) {
		m.mu.Lock()
		// pode ter sido regravada entre os locks
		if cur, still := m.exp[key]; still && !m.now().Before(cur) {
			delete(m.data, key)
			delete(m.exp, key)
		}
		m.mu.Unlock()
		return "", false, nil
	}
	return v, ok, nil
}

func (m *Memory) Set(_ context.Context, key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = value
	delete(m.exp, key)
	return nil
}

func (m *Memory) SetWithTTL(ctx context.Context, key, value string, ttl time.Duration) error {
	if ttl <= 0 {
		return m.Set(ctx, key, value)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = value
	m.exp[key] = m.now().Add(ttl)
	return nil
}

func (m *Memory) Remove(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, key)
	delete(m.exp, key)
	return nil
}

// Len conta também chaves expiradas ainda não lidas.
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.data)
}

func (m *Memory) Close() error { return nil }
