package redis

import (
	"context"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/tecnogrow/paybridge/pkg/config"
)

type fakeStore struct {
	values map[string]string
}

func newFakeStore() *fakeStore {
	return &fakeStore{values: map[string]string{}}
}

func (f *fakeStore) Ping(ctx context.Context) *redis.StatusCmd {
	return redis.NewStatusResult("PONG", nil)
}

func (f *fakeStore) Set(ctx context.Context, key string, value any, ttl time.Duration) *redis.StatusCmd {
	f.values[key] = value.(string)
	return redis.NewStatusResult("OK", nil)
}

func (f *fakeStore) Get(ctx context.Context, key string) *redis.StringCmd {
	if val, ok := f.values[key]; ok {
		return redis.NewStringResult(val, nil)
	}
	return redis.NewStringResult("", redis.Nil)
}

func (f *fakeStore) Del(ctx context.Context, keys ...string) *redis.IntCmd {
	var removed int64
	for _, key := range keys {
		if _, ok := f.values[key]; ok {
			delete(f.values, key)
			removed++
		}
	}
	return redis.NewIntResult(removed, nil)
}

func TestTokenKeyNamespacing(t *testing.T) {
	c := &Client{store: newFakeStore()}
	if got := c.TokenKey("tok-123"); got != "pb:webpay_token:tok-123" {
		t.Fatalf("TokenKey = %s", got)
	}
}

func TestStoreAndLookupToken(t *testing.T) {
	c := &Client{store: newFakeStore()}
	ctx := context.Background()

	if err := c.StoreToken(ctx, "tok-1", "tecnogrow", time.Minute); err != nil {
		t.Fatalf("StoreToken: %v", err)
	}

	tenantID, ok, err := c.LookupToken(ctx, "tok-1")
	if err != nil {
		t.Fatalf("LookupToken: %v", err)
	}
	if !ok || tenantID != "tecnogrow" {
		t.Fatalf("LookupToken = %q, %v", tenantID, ok)
	}
}

func TestLookupTokenMissIsNotAnError(t *testing.T) {
	c := &Client{store: newFakeStore()}

	tenantID, ok, err := c.LookupToken(context.Background(), "unknown")
	if err != nil {
		t.Fatalf("LookupToken: %v", err)
	}
	if ok || tenantID != "" {
		t.Fatalf("expected miss, got %q %v", tenantID, ok)
	}
}

func TestOptionsFromConfigRequiresBackend(t *testing.T) {
	if _, err := optionsFromConfig(config.RedisConfig{}); err == nil {
		t.Fatal("expected error when neither url nor address is set")
	}
}

func TestOptionsFromConfigAddress(t *testing.T) {
	opts, err := optionsFromConfig(config.RedisConfig{
		Address:     "localhost:6379",
		PoolSize:    8,
		DialTimeout: 2 * time.Second,
	})
	if err != nil {
		t.Fatalf("optionsFromConfig: %v", err)
	}
	if opts.Addr != "localhost:6379" || opts.PoolSize != 8 {
		t.Fatalf("opts = %+v", opts)
	}
}
