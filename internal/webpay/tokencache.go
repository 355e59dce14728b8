package webpay

import (
	"context"
	"sync"
	"time"

	"github.com/tecnogrow/paybridge/pkg/redis"
)

// TokenCache remembers which tenant a gateway token belongs to. The inbound
// commit callback only carries the token, so without this mapping the commit
// would have to run under default credentials.
type TokenCache interface {
	Remember(ctx context.Context, token, tenantID string, ttl time.Duration) error
	Recall(ctx context.Context, token string) (tenantID string, ok bool, err error)
	Forget(ctx context.Context, token string) error
}

// RedisTokenCache persists the mapping in redis so it survives restarts and
// is shared between replicas.
type RedisTokenCache struct {
	client *redis.Client
}

func NewRedisTokenCache(client *redis.Client) *RedisTokenCache {
	return &RedisTokenCache{client: client}
}

func (c *RedisTokenCache) Remember(ctx context.Context, token, tenantID string, ttl time.Duration) error {
	return c.client.StoreToken(ctx, token, tenantID, ttl)
}

func (c *RedisTokenCache) Recall(ctx context.Context, token string) (string, bool, error) {
	return c.client.LookupToken(ctx, token)
}

func (c *RedisTokenCache) Forget(ctx context.Context, token string) error {
	return c.client.DeleteToken(ctx, token)
}

type memoryEntry struct {
	tenantID  string
	expiresAt time.Time
}

// MemoryTokenCache is the in-process fallback used when no redis backend is
// configured. Entries expire on read and on subsequent writes; tokens are
// minutes-lived so the map stays small.
type MemoryTokenCache struct {
	mu      sync.Mutex
	entries map[string]memoryEntry
	clock   func() time.Time
}

func NewMemoryTokenCache() *MemoryTokenCache {
	return &MemoryTokenCache{
		entries: make(map[string]memoryEntry),
		clock:   time.Now,
	}
}

func (c *MemoryTokenCache) Remember(_ context.Context, token, tenantID string, ttl time.Duration) error {
	now := c.clock()

	c.mu.Lock()
	defer c.mu.Unlock()
	for key, entry := range c.entries {
		if now.After(entry.expiresAt) {
			delete(c.entries, key)
		}
	}
	c.entries[token] = memoryEntry{tenantID: tenantID, expiresAt: now.Add(ttl)}
	return nil
}

func (c *MemoryTokenCache) Recall(_ context.Context, token string) (string, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.entries[token]
	if !ok {
		return "", false, nil
	}
	if c.clock().After(entry.expiresAt) {
		delete(c.entries, token)
		return "", false, nil
	}
	return entry.tenantID, true, nil
}

func (c *MemoryTokenCache) Forget(_ context.Context, token string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, token)
	return nil
}
