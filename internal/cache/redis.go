package cache

import (
	"context"
	"time"

	rdb "github.com/redis/go-redis/v9"
)

// redisClient implementa Client sobre go-redis.
// TakeOnce usa GETDEL, que es atómico en el server y por lo tanto vale
// también con múltiples nodos apuntando al mismo Redis.
type redisClient struct {
	c          *rdb.Client
	prefix     string
	defaultTTL time.Duration
}

func newRedis(cfg Config) *redisClient {
	ttl := cfg.DefaultTTL
	if ttl <= 0 {
		ttl = 2 * time.Minute
	}
	return &redisClient{
		c:          rdb.NewClient(&rdb.Options{Addr: cfg.RedisAddr, DB: cfg.RedisDB}),
		prefix:     cfg.Prefix,
		defaultTTL: ttl,
	}
}

func (r *redisClient) key(k string) string { return r.prefix + k }

func (r *redisClient) Get(ctx context.Context, key string) ([]byte, bool) {
	b, err := r.c.Get(ctx, r.key(key)).Bytes()
	if err != nil {
		return nil, false
	}
	return b, true
}

func (r *redisClient) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = r.defaultTTL
	}
	return r.c.Set(ctx, r.key(key), value, ttl).Err()
}

func (r *redisClient) Delete(ctx context.Context, key string) error {
	return r.c.Del(ctx, r.key(key)).Err()
}

func (r *redisClient) TakeOnce(ctx context.Context, key string) ([]byte, bool) {
	b, err := r.c.GetDel(ctx, r.key(key)).Bytes()
	if err != nil {
		return nil, false
	}
	return b, true
}

func (r *redisClient) Ping(ctx context.Context) error { return r.c.Ping(ctx).Err() }
func (r *redisClient) Close() error                   { return r.c.Close() }
