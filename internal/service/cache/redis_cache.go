package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	applogger "TradeGP/pkg/logger"

	"github.com/redis/go-redis/v9"
)

type RedisCache struct {
	cli    redis.UniversalClient
	prefix string
	l      *applogger.Logger
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	Prefix   string
}

func NewRedisCache(cfg RedisConfig, l *applogger.Logger) *RedisCache {
	rdb := redis.NewClient(&redis.Options{Addr: cfg.Addr, Password: cfg.Password, DB: cfg.DB})
	return newRedisCache(rdb, cfg.Prefix, l)
}

func newRedisCache(cli redis.UniversalClient, prefix string, l *applogger.Logger) *RedisCache {
	if l == nil {
		l = applogger.Nop()
	}
	return &RedisCache{cli: cli, prefix: prefix, l: l.Component("redis_cache")}
}

// Ping checks connectivity with a short deadline.
func (r *RedisCache) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := r.cli.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis ping: %w", err)
	}
	return nil
}

func (r *RedisCache) Close() error { return r.cli.Close() }

func (r *RedisCache) wrapKey(key string) string {
	if r.prefix == "" {
		return key
	}
	return r.prefix + ":" + key
}

func (r *RedisCache) GetBytes(ctx context.Context, key string) ([]byte, bool) {
	b, err := r.cli.Get(ctx, r.wrapKey(key)).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			r.l.Warn("redis get failed", applogger.String("key", key), applogger.Error(err))
		}
		return nil, false
	}
	return b, true
}

func (r *RedisCache) SetBytes(ctx context.Context, key string, value []byte, ttl time.Duration) {
	if err := r.cli.Set(ctx, r.wrapKey(key), value, ttl).Err(); err != nil {
		r.l.Warn("redis set failed", applogger.String("key", key), applogger.Error(err))
	}
}
