package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// Redis implementa KV sobre um *redis.Client.
// Todas as chaves recebem o prefixo configurado (ex: "gigsync:").
type Redis struct {
	rdb    *redis.Client
	prefix string
	owned  bool
}

type RedisOption func(*Redis)

func WithRedisPrefix(prefix string) RedisOption {
	return func(r *Redis) {
		prefix = strings.Trim(prefix, ":")
		if prefix != "" {
			prefix += ":"
		}
		r.prefix = prefix
	}
}

// NewRedis usa um cliente existente; Close não fecha o cliente.
func NewRedis(rdb *redis.Client, opts ...RedisOption) *Redis {
	r := &Redis{rdb: rdb}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// DialRedis abre um cliente próprio e valida a conexão com PING.
func DialRedis(ctx context.Context, cfg RedisConfig) (*Redis, error) {
	if strings.TrimSpace(cfg.Addr) == "" {
		return nil, errors.New("redis addr is required")
	}
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	r := NewRedis(rdb, WithRedisPrefix(cfg.Prefix))
	r.owned = true
	return r, nil
}

func (r *Redis) Get(ctx context.Context, key string) (string, bool, error) {
	v, err := r.rdb.Get(ctx, r.prefix+key).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, ioErr("get", key, err)
	}
	return v, true, nil
}

func (r *Redis) Set(ctx context.Context, key, value string) error {
	if err := r.rdb.Set(ctx, r.prefix+key, value, 0).Err(); err != nil {
		return ioErr("set", key, err)
	}
	return nil
}

func (r *Redis) SetWithTTL(ctx context.Context, key, value string, ttl time.Duration) error {
	if ttl < 0 {
		ttl = 0
	}
	if err := r.rdb.Set(ctx, r.prefix+key, value, ttl).Err(); err != nil {
		return ioErr("set", key, err)
	}
	return nil
}

func (r *Redis) Remove(ctx context.Context, key string) error {
	if err := r.rdb.Del(ctx, r.prefix+key).Err(); err != nil {
		return ioErr("remove", key, err)
	}
	return nil
}

func (r *Redis) Client() *redis.Client { return r.rdb }

func (r *Redis) Close() error {
	if r == nil || r.rdb == nil || !r.owned {
		return nil
	}
	return r.rdb.Close()
}
