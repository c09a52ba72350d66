package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrIO marca falhas de leitura/escrita no backend.
// Use errors.Is(err, storage.ErrIO) para distinguir de erros de validação.
var ErrIO = errors.New("storage i/o failure")

// KV é o contrato de persistência chave-valor.
//
// Get retorna ok=false (e err=nil) quando a chave não existe.
// Remove de uma chave ausente não é erro.
type KV interface {
	Get(ctx context.Context, key string) (value string, ok bool, err error)
	Set(ctx context.Context, key, value string) error
	Remove(ctx context.Context, key string) error
}

// Expirer é implementado pelos backends que expiram chaves sozinhos.
// ttl <= 0 equivale a Set (sem expiração).
type Expirer interface {
	SetWithTTL(ctx context.Context, key, value string, ttl time.Duration) error
}

// Sweeper é implementado pelos backends que precisam de limpeza ativa das
// chaves vencidas (Redis expira sozinho).
type Sweeper interface {
	Sweep(ctx context.Context) (int64, error)
}

const (
	DriverMemory = "memory"
	DriverRedis  = "redis"
	DriverLibsql = "libsql"
)

type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	Prefix   string `mapstructure:"prefix"`
}

type Config struct {
	Driver    string      `mapstructure:"driver"`
	Path      string      `mapstructure:"path"`
	URL       string      `mapstructure:"url"`
	AuthToken string      `mapstructure:"auth_token"`
	Redis     RedisConfig `mapstructure:"redis"`
}

// Backend é um KV que possui recursos a liberar.
type Backend interface {
	KV
	Close() error
}

// Open cria o backend configurado em cfg.Driver (padrão: memory).
func Open(ctx context.Context, cfg Config) (Backend, error) {
	driver := strings.ToLower(strings.TrimSpace(cfg.Driver))
	if driver == "" {
		driver = DriverMemory
	}

	switch driver {
	case DriverMemory:
		return NewMemory(), nil
	case DriverRedis:
		return DialRedis(ctx, cfg.Redis)
	case DriverLibsql:
		return OpenSQL(ctx, cfg)
	default:
		return nil, fmt.Errorf("unsupported storage driver: %s", cfg.Driver)
	}
}

func ioErr(op, key string, err error) error {
	return fmt.Errorf("%s %q: %w: %w", op, key, ErrIO, err)
}
