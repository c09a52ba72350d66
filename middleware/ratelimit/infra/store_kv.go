package infra

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"gigsync/middleware/ratelimit/domain"
	"gigsync/storage"
)

// KVStore persiste os registros num storage.KV (um JSON por chave).
//
// O prefixo isola o espaço de chaves de cada categoria, ex:
// "ratelimit:application:user-42".
type KVStore struct {
	kv     storage.KV
	prefix string
	ttl    time.Duration
}

type KVStoreOption func(*KVStore)

// WithRecordTTL faz cada registro expirar ttl depois da última gravação,
// quando o backend implementa storage.Expirer. Use um valor maior que a
// janela da política.
func WithRecordTTL(ttl time.Duration) KVStoreOption {
	return func(s *KVStore) { s.ttl = ttl }
}

func NewKVStore(kv storage.KV, prefix string, opts ...KVStoreOption) *KVStore {
	s := &KVStore{kv: kv, prefix: strings.TrimRight(prefix, ":") + ":"}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *KVStore) Load(ctx context.Context, key domain.Key) (domain.Record, bool, error) {
	raw, ok, err := s.kv.Get(ctx, s.prefix+string(key))
	if err != nil || !ok {
		return domain.Record{}, false, err
	}

	var rec domain.Record
	if err := json.Unmarshal([]byte(raw), &rec); err != nil {
		// registro corrompido equivale a ausência: a próxima ação abre janela nova
		return domain.Record{}, false, nil
	}
	return rec, true, nil
}

func (s *KVStore) Save(ctx context.Context, key domain.Key, rec domain.Record) error {
	b, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encode rate limit record: %w", err)
	}
	if exp, ok := s.kv.(storage.Expirer); ok && s.ttl > 0 {
		return exp.SetWithTTL(ctx, s.prefix+string(key), string(b), s.ttl)
	}
	return s.kv.Set(ctx, s.prefix+string(key), string(b))
}

func (s *KVStore) Delete(ctx context.Context, key domain.Key) error {
	return s.kv.Remove(ctx, s.prefix+string(key))
}
