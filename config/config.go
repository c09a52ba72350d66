// Package config carrega a configuração do agente via viper
// (defaults em código, arquivo opcional, variáveis GIGSYNC_*).
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"gigsync/middleware/ratelimit/domain"
	"gigsync/storage"
)

const EnvPrefix = "GIGSYNC"

type Config struct {
	ListenAddr  string            `mapstructure:"listen_addr"`
	Log         LogConfig         `mapstructure:"log"`
	Storage     storage.Config    `mapstructure:"storage"`
	Queue       QueueConfig       `mapstructure:"queue"`
	Backend     BackendConfig     `mapstructure:"backend"`
	RateLimit   RateLimitConfig   `mapstructure:"ratelimit"`
	Stats       StatsConfig       `mapstructure:"stats"`
	Concurrency ConcurrencyConfig `mapstructure:"concurrency"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

type QueueConfig struct {
	Key           string        `mapstructure:"key"`
	ActionTimeout time.Duration `mapstructure:"action_timeout"`
	MaxAttempts   int           `mapstructure:"max_attempts"`
	RetryBase     time.Duration `mapstructure:"retry_base"`
	ReplayRPS     float64       `mapstructure:"replay_rps"`
}

type BackendConfig struct {
	URL           string        `mapstructure:"url"`
	APIKey        string        `mapstructure:"api_key"`
	Timeout       time.Duration `mapstructure:"timeout"`
	ProbeInterval time.Duration `mapstructure:"probe_interval"`
}

const (
	RateStoreMemory = "memory"
	RateStoreKV     = "kv"
)

type RateLimitConfig struct {
	// Store escolhe onde os registros vivem, para TODAS as categorias.
	Store       string        `mapstructure:"store"`
	KeyHeader   string        `mapstructure:"key_header"`
	TrustXFF    bool          `mapstructure:"trust_xff"`
	Headers     bool          `mapstructure:"headers"`
	GigCreation domain.Policy `mapstructure:"gig_creation"`
	Application domain.Policy `mapstructure:"application"`
	Message     domain.Policy `mapstructure:"message"`
	Auth        domain.Policy `mapstructure:"auth"`
}

// Policies devolve a política de cada categoria.
func (c RateLimitConfig) Policies() map[domain.Category]domain.Policy {
	return map[domain.Category]domain.Policy{
		domain.CategoryGigCreation: c.GigCreation,
		domain.CategoryApplication: c.Application,
		domain.CategoryMessage:     c.Message,
		domain.CategoryAuth:        c.Auth,
	}
}

type StatsConfig struct {
	RedisEnabled bool          `mapstructure:"redis_enabled"`
	Prefix       string        `mapstructure:"prefix"`
	TTL          time.Duration `mapstructure:"ttl"`
	TrackKeys    bool          `mapstructure:"track_keys"`
}

type ConcurrencyConfig struct {
	Max     int           `mapstructure:"max"`
	Timeout time.Duration `mapstructure:"timeout"`
}

// SetDefaults registra os valores padrão em v.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("listen_addr", "127.0.0.1:8787")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	v.SetDefault("storage.driver", storage.DriverLibsql)
	v.SetDefault("storage.path", "data/gigsync.db")
	v.SetDefault("storage.url", "")
	v.SetDefault("storage.auth_token", "")
	v.SetDefault("storage.redis.addr", "")
	v.SetDefault("storage.redis.password", "")
	v.SetDefault("storage.redis.db", 0)
	v.SetDefault("storage.redis.prefix", "gigsync")

	v.SetDefault("queue.key", "offline_queue")
	v.SetDefault("queue.action_timeout", 15*time.Second)
	v.SetDefault("queue.max_attempts", 1)
	v.SetDefault("queue.retry_base", 500*time.Millisecond)
	v.SetDefault("queue.replay_rps", 0)

	v.SetDefault("backend.url", "")
	v.SetDefault("backend.api_key", "")
	v.SetDefault("backend.timeout", 10*time.Second)
	v.SetDefault("backend.probe_interval", 15*time.Second)

	v.SetDefault("ratelimit.store", RateStoreMemory)
	v.SetDefault("ratelimit.key_header", "X-User-ID")
	v.SetDefault("ratelimit.trust_xff", false)
	v.SetDefault("ratelimit.headers", true)
	v.SetDefault("ratelimit.gig_creation.limit", 5)
	v.SetDefault("ratelimit.gig_creation.window", time.Hour)
	v.SetDefault("ratelimit.application.limit", 20)
	v.SetDefault("ratelimit.application.window", time.Hour)
	v.SetDefault("ratelimit.message.limit", 30)
	v.SetDefault("ratelimit.message.window", time.Minute)
	v.SetDefault("ratelimit.auth.limit", 5)
	v.SetDefault("ratelimit.auth.window", 15*time.Minute)

	v.SetDefault("stats.redis_enabled", false)
	v.SetDefault("stats.prefix", "gigsync:ratelimit:stats")
	v.SetDefault("stats.ttl", 24*time.Hour)
	v.SetDefault("stats.track_keys", false)

	v.SetDefault("concurrency.max", 16)
	v.SetDefault("concurrency.timeout", 2*time.Second)
}

// New cria um viper com defaults e leitura de ambiente (GIGSYNC_LOG_LEVEL etc).
func New() *viper.Viper {
	v := viper.New()
	SetDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

// Load lê o arquivo (se informado), decodifica e valida.
func Load(v *viper.Viper, file string) (Config, error) {
	if file != "" {
		v.SetConfigFile(file)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config %s: %w", file, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	var errs []error

	switch strings.ToLower(c.Storage.Driver) {
	case storage.DriverMemory, storage.DriverRedis, storage.DriverLibsql:
	default:
		errs = append(errs, fmt.Errorf("storage.driver: unsupported %q", c.Storage.Driver))
	}
	if strings.EqualFold(c.Storage.Driver, storage.DriverRedis) && strings.TrimSpace(c.Storage.Redis.Addr) == "" {
		errs = append(errs, errors.New("storage.redis.addr is required when storage.driver=redis"))
	}

	switch c.RateLimit.Store {
	case RateStoreMemory, RateStoreKV:
	default:
		errs = append(errs, fmt.Errorf("ratelimit.store: must be %q or %q", RateStoreMemory, RateStoreKV))
	}
	for cat, p := range c.RateLimit.Policies() {
		if p.Limit <= 0 || p.Window <= 0 {
			errs = append(errs, fmt.Errorf("ratelimit.%s: limit and window must be > 0", cat))
		}
	}

	if c.Queue.MaxAttempts < 1 {
		errs = append(errs, errors.New("queue.max_attempts must be >= 1"))
	}
	if c.Queue.ReplayRPS < 0 {
		errs = append(errs, errors.New("queue.replay_rps must be >= 0"))
	}
	if c.Concurrency.Max < 0 {
		errs = append(errs, errors.New("concurrency.max must be >= 0"))
	}
	if c.Stats.RedisEnabled && !strings.EqualFold(c.Storage.Driver, storage.DriverRedis) {
		errs = append(errs, errors.New("stats.redis_enabled requires storage.driver=redis"))
	}

	return errors.Join(errs...)
}
