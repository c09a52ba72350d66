package infra

import (
	"context"
	"sync"
	"time"

	"code.cloudfoundry.org/clock"

	"gigsync/middleware/ratelimit/domain"
)

// MemoryStore é o RecordStore canônico: volátil, por instância, com limpeza
// periódica de chaves inativas. O estado se perde ao reiniciar o processo.
type MemoryStore struct {
	mu           sync.Mutex
	entries      map[domain.Key]*storeEntry
	idleTTL      time.Duration
	cleanupEvery time.Duration
	clock        clock.Clock
}

type storeEntry struct {
	rec      domain.Record
	lastSeen time.Time
}

type StoreOption func(*MemoryStore)

// WithIdleTTL define após quanto tempo sem acesso uma chave pode ser descartada.
// Deve ser maior que a maior janela da política, senão a janela reinicia cedo.
func WithIdleTTL(d time.Duration) StoreOption {
	return func(s *MemoryStore) { s.idleTTL = d }
}

func WithCleanupEvery(d time.Duration) StoreOption {
	return func(s *MemoryStore) { s.cleanupEvery = d }
}

func WithStoreClock(c clock.Clock) StoreOption {
	return func(s *MemoryStore) { s.clock = c }
}

func NewMemoryStore(opts ...StoreOption) *MemoryStore {
	s := &MemoryStore{
		entries:      make(map[domain.Key]*storeEntry),
		idleTTL:      2 * time.Hour,
		cleanupEvery: 5 * time.Minute,
		clock:        clock.NewClock(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *MemoryStore) CleanupEvery() time.Duration { return s.cleanupEvery }

// Load implementa domain.RecordStore.
func (s *MemoryStore) Load(_ context.Context, key domain.Key) (domain.Record, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ent, ok := s.entries[key]
	if !ok {
		return domain.Record{}, false, nil
	}
	ent.lastSeen = s.clock.Now()
	return ent.rec, true, nil
}

func (s *MemoryStore) Save(_ context.Context, key domain.Key, rec domain.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.entries[key] = &storeEntry{rec: rec, lastSeen: s.clock.Now()}
	return nil
}

func (s *MemoryStore) Delete(_ context.Context, key domain.Key) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.entries, key)
	return nil
}

func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

func (s *MemoryStore) Cleanup() {
	cutoff := s.clock.Now().Add(-s.idleTTL)

	s.mu.Lock()
	defer s.mu.Unlock()

	for k, ent := range s.entries {
		if ent.lastSeen.Before(cutoff) {
			delete(s.entries, k)
		}
	}
}

// StartJanitor inicia uma goroutine que limpa chaves inativas periodicamente.
// Pare cancelando o contexto.
func (s *MemoryStore) StartJanitor(ctx context.Context) {
	if s.cleanupEvery <= 0 {
		return
	}

	t := s.clock.NewTicker(s.cleanupEvery)
	go func() {
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C():
				s.Cleanup()
			}
		}
	}()
}
