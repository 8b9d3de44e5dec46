package cache

import (
	"context"
	"sync"
	"time"

	gocache "github.com/patrickmn/go-cache"
)

// memoryClient implementa Client sobre go-cache.
type memoryClient struct {
	prefix string
	c      *gocache.Cache
	// go-cache no tiene get-and-delete; mu serializa Take.
	mu sync.Mutex
}

// NewMemory crea un cliente en memoria con limpieza de expirados cada minuto.
func NewMemory(prefix string) Client {
	return &memoryClient{prefix: prefix, c: gocache.New(gocache.NoExpiration, time.Minute)}
}

func ttlOf(ttl time.Duration) time.Duration {
	if ttl <= 0 {
		return gocache.NoExpiration
	}
	return ttl
}

func (m *memoryClient) Get(_ context.Context, key string) (string, error) {
	v, ok := m.c.Get(prefixed(m.prefix, key))
	if !ok {
		return "", ErrNotFound
	}
	s, _ := v.(string)
	return s, nil
}

func (m *memoryClient) Set(_ context.Context, key, value string, ttl time.Duration) error {
	m.c.Set(prefixed(m.prefix, key), value, ttlOf(ttl))
	return nil
}

func (m *memoryClient) SetNX(_ context.Context, key, value string, ttl time.Duration) (bool, error) {
	// Add falla si la key existe y no expiró.
	if err := m.c.Add(prefixed(m.prefix, key), value, ttlOf(ttl)); err != nil {
		return false, nil
	}
	return true, nil
}

func (m *memoryClient) Take(_ context.Context, key string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	k := prefixed(m.prefix, key)
	v, ok := m.c.Get(k)
	if !ok {
		return "", ErrNotFound
	}
	m.c.Delete(k)
	s, _ := v.(string)
	return s, nil
}

func (m *memoryClient) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.c.Delete(prefixed(m.prefix, key))
	return nil
}

func (m *memoryClient) Ping(context.Context) error { return nil }

func (m *memoryClient) Close() error {
	m.c.Flush()
	return nil
}
