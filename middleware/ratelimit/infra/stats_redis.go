package infra

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"gigsync/middleware/ratelimit/domain"
)

// RedisStatsStore agrega decisões por categoria no Redis:
//
//	<prefix>:<categoria>                  hash allowed/denied (cumulativo)
//	<prefix>:<categoria>:h:<AAAAMMDDHH>   hash allowed/denied por hora (expira em ttl)
//	<prefix>:<categoria>:denied_keys      zset chave -> negações (só com trackKeys)
type RedisStatsStore struct {
	rdb       *redis.Client
	prefix    string
	ttl       time.Duration
	trackKeys bool
}

type RedisStatsOption func(*RedisStatsStore)

func WithStatsPrefix(prefix string) RedisStatsOption {
	return func(s *RedisStatsStore) {
		if p := strings.Trim(prefix, ":"); p != "" {
			s.prefix = p
		}
	}
}

func WithStatsTTL(d time.Duration) RedisStatsOption {
	return func(s *RedisStatsStore) { s.ttl = d }
}

func WithStatsTrackKeys(track bool) RedisStatsOption {
	return func(s *RedisStatsStore) { s.trackKeys = track }
}

func NewRedisStatsStore(rdb *redis.Client, opts ...RedisStatsOption) *RedisStatsStore {
	s := &RedisStatsStore{
		rdb:    rdb,
		prefix: "gigsync:ratelimit:stats",
		ttl:    24 * time.Hour,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *RedisStatsStore) categoryKey(cat domain.Category) string {
	c := strings.TrimSpace(string(cat))
	if c == "" {
		c = "uncategorized"
	}
	return s.prefix + ":" + c
}

func (s *RedisStatsStore) Record(ctx context.Context, ev domain.StatsEvent) error {
	at := ev.At
	if at.IsZero() {
		at = time.Now()
	}
	field := "denied"
	if ev.Allowed {
		field = "allowed"
	}
	base := s.categoryKey(ev.Category)

	_, err := s.rdb.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HIncrBy(ctx, base, field, 1)

		hourKey := base + ":h:" + at.UTC().Format("2006010215")
		pipe.HIncrBy(ctx, hourKey, field, 1)
		if s.ttl > 0 {
			pipe.Expire(ctx, hourKey, s.ttl)
		}

		if s.trackKeys && !ev.Allowed {
			if k := strings.TrimSpace(string(ev.Key)); k != "" {
				pipe.ZIncrBy(ctx, base+":denied_keys", 1, k)
				if s.ttl > 0 {
					pipe.Expire(ctx, base+":denied_keys", s.ttl)
				}
			}
		}
		return nil
	})
	return err
}

// Snapshot lê os contadores cumulativos de uma categoria.
func (s *RedisStatsStore) Snapshot(ctx context.Context, cat domain.Category) (Counters, error) {
	vals, err := s.rdb.HMGet(ctx, s.categoryKey(cat), "allowed", "denied").Result()
	if err != nil {
		return Counters{}, err
	}
	var c Counters
	c.Allowed, err = hashInt(vals[0])
	if err != nil {
		return Counters{}, err
	}
	c.Denied, err = hashInt(vals[1])
	return c, err
}

// TopDenied devolve até n chaves com mais negações (requer trackKeys).
func (s *RedisStatsStore) TopDenied(ctx context.Context, cat domain.Category, n int64) ([]redis.Z, error) {
	if n <= 0 {
		return nil, nil
	}
	return s.rdb.ZRevRangeWithScores(ctx, s.categoryKey(cat)+":denied_keys", 0, n-1).Result()
}

func hashInt(v any) (int64, error) {
	if v == nil {
		return 0, nil
	}
	str, ok := v.(string)
	if !ok {
		return 0, fmt.Errorf("unexpected redis hash value %T", v)
	}
	return strconv.ParseInt(str, 10, 64)
}
