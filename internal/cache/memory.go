package cache

import (
	"context"
	"sync"
	"time"

	gocache "github.com/patrickmn/go-cache"
)

// memoryClient implementa Client sobre patrickmn/go-cache.
// go-cache no ofrece get-and-delete atómico, por eso TakeOnce serializa con mu.
type memoryClient struct {
	mu     sync.Mutex
	c      *gocache.Cache
	prefix string
}

func newMemory(cfg Config) *memoryClient {
	ttl := cfg.DefaultTTL
	if ttl <= 0 {
		ttl = 2 * time.Minute
	}
	return &memoryClient{
		c:      gocache.New(ttl, time.Minute),
		prefix: cfg.Prefix,
	}
}

func (m *memoryClient) key(k string) string { return m.prefix + k }

func (m *memoryClient) Get(_ context.Context, key string) ([]byte, bool) {
	v, ok := m.c.Get(m.key(key))
	if !ok {
		return nil, false
	}
	b, _ := v.([]byte)
	return b, true
}

func (m *memoryClient) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = gocache.DefaultExpiration
	}
	m.c.Set(m.key(key), value, ttl)
	return nil
}

func (m *memoryClient) Delete(_ context.Context, key string) error {
	m.c.Delete(m.key(key))
	return nil
}

func (m *memoryClient) TakeOnce(_ context.Context, key string) ([]byte, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	k := m.key(key)
	v, ok := m.c.Get(k)
	if !ok {
		return nil, false
	}
	m.c.Delete(k)
	b, _ := v.([]byte)
	return b, true
}

func (m *memoryClient) Ping(context.Context) error { return nil }
func (m *memoryClient) Close() error               { return nil }
