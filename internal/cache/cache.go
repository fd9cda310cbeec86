// Package cache stores enrichment responses keyed by brand, year and model
// code so repeated batches do not pay for the same lookup twice.
package cache

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rotisserie/eris"
)

// ErrMiss is returned by Get when the key is absent or expired.
var ErrMiss = errors.New("cache: miss")

// Client is a byte-oriented key/value cache with TTLs.
type Client interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
	Close() error
}

// MemoryClient is an in-process Client.
type MemoryClient struct {
	mu      sync.Mutex
	entries map[string]memoryEntry
	now     func() time.Time
}

type memoryEntry struct {
	value     []byte
	expiresAt time.Time
}

// NewMemoryClient returns an empty in-memory cache.
func NewMemoryClient() *MemoryClient {
	return &MemoryClient{entries: make(map[string]memoryEntry), now: time.Now}
}

func (c *MemoryClient) Get(_ context.Context, key string) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[key]
	if !ok {
		return nil, ErrMiss
	}
	if !e.expiresAt.IsZero() && !c.now().Before(e.expiresAt) {
		delete(c.entries, key)
		return nil, ErrMiss
	}
	return append([]byte(nil), e.value...), nil
}

// Set stores value; a non-positive ttl never expires.
func (c *MemoryClient) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	e := memoryEntry{value: append([]byte(nil), value...)}
	if ttl > 0 {
		e.expiresAt = c.now().Add(ttl)
	}
	c.entries[key] = e
	return nil
}

func (c *MemoryClient) Delete(_ context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, key)
	return nil
}

func (c *MemoryClient) Close() error { return nil }

// Backend is the persistence surface a store exposes for cached enrichment.
type Backend interface {
	GetCachedEnrichment(ctx context.Context, key string) ([]byte, error)
	SetCachedEnrichment(ctx context.Context, key string, data []byte, ttl time.Duration) error
	DeleteCachedEnrichment(ctx context.Context, key string) error
}

// StoreClient adapts a store Backend to Client. Backends return nil data
// for a miss.
type StoreClient struct {
	backend Backend
}

// NewStoreClient wraps b.
func NewStoreClient(b Backend) *StoreClient {
	return &StoreClient{backend: b}
}

func (c *StoreClient) Get(ctx context.Context, key string) ([]byte, error) {
	data, err := c.backend.GetCachedEnrichment(ctx, key)
	if err != nil {
		return nil, eris.Wrap(err, "cache: store get")
	}
	if data == nil {
		return nil, ErrMiss
	}
	return data, nil
}

func (c *StoreClient) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return eris.Wrap(c.backend.SetCachedEnrichment(ctx, key, value, ttl), "cache: store set")
}

func (c *StoreClient) Delete(ctx context.Context, key string) error {
	return eris.Wrap(c.backend.DeleteCachedEnrichment(ctx, key), "cache: store delete")
}

// Close is a no-op; the store owns its connection.
func (c *StoreClient) Close() error { return nil }
