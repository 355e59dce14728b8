package webpay

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tecnogrow/paybridge/internal/tenants"
	"github.com/tecnogrow/paybridge/pkg/config"
)

func adapterRegistry(t *testing.T) *tenants.Registry {
	t.Helper()
	registry, err := tenants.NewRegistry([]config.TenantDefinition{
		{
			ID:      "tecnogrow",
			Name:    "Tecnogrow",
			Origins: []string{"https://www.tecnogrow.cl"},
			Odoo:    config.OdooDefinition{URL: "https://www.tecnogrow.cl"},
			Webpay: &config.WebpayDefinition{
				CommerceCode: "597055555532",
				APIKey:       "tecnogrow-key",
			},
		},
		{
			ID:      "hidrofarm",
			Name:    "Hidrofarm",
			Origins: []string{"https://shop.hidrofarm.cl"},
			Odoo:    config.OdooDefinition{URL: "https://shop.hidrofarm.cl"},
			Webpay: &config.WebpayDefinition{
				CommerceCode: "597099999999",
				APIKey:       "hidrofarm-key",
			},
		},
	}, nil)
	require.NoError(t, err)
	return registry
}

func newTestAdapter(t *testing.T, handler http.HandlerFunc) (*Adapter, *MemoryTokenCache) {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	cache := NewMemoryTokenCache()
	adapter, err := NewAdapter(AdapterParams{
		Registry:  adapterRegistry(t),
		Cache:     cache,
		ReturnURL: "https://bridge.example/api/v1/payments/commit",
		TokenTTL:  time.Minute,
		Logger:    testLogger(),
		baseURL:   server.URL,
	})
	require.NoError(t, err)
	return adapter, cache
}

func TestCreateTransactionBuildsIdentifiersAndRemembersToken(t *testing.T) {
	adapter, cache := newTestAdapter(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "tecnogrow-key", r.Header.Get(headerAPIKeySecret))

		var req createRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "juan-pere_10000_20251019", req.BuyOrder)
		assert.True(t, strings.HasPrefix(req.SessionID, "tecnogrow__"))
		assert.LessOrEqual(t, len(req.SessionID), 60)

		json.NewEncoder(w).Encode(CreateResponse{Token: "tok-create", URL: "https://gateway/form"})
	})

	tenant, ok := adapter.registry.ResolveByID("tecnogrow")
	require.True(t, ok)

	resp, err := adapter.CreateTransaction(context.Background(), CreateTransactionRequest{
		Tenant:       tenant,
		Amount:       10000,
		CustomerName: "Juan Pérez",
		OrderDate:    "2025-10-19",
	})
	require.NoError(t, err)

	assert.Equal(t, "tok-create", resp.Token)
	assert.Equal(t, "https://gateway/form", resp.RedirectURL)
	assert.Equal(t, "tecnogrow", resp.TenantID)

	tenantID, found, err := cache.Recall(context.Background(), "tok-create")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "tecnogrow", tenantID)
}

func TestCreateTransactionDefaultsTenant(t *testing.T) {
	adapter, _ := newTestAdapter(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(CreateResponse{Token: "tok-default", URL: "https://gateway/form"})
	})

	resp, err := adapter.CreateTransaction(context.Background(), CreateTransactionRequest{Amount: 5000})
	require.NoError(t, err)
	assert.Equal(t, "tecnogrow", resp.TenantID)
	assert.Contains(t, resp.BuyOrder, "cliente_5000_")
}

func TestCommitTransactionUsesRememberedTenantCredentials(t *testing.T) {
	adapter, cache := newTestAdapter(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "hidrofarm-key", r.Header.Get(headerAPIKeySecret))
		json.NewEncoder(w).Encode(map[string]any{"status": "AUTHORIZED", "response_code": 0, "buy_order": "bo"})
	})

	require.NoError(t, cache.Remember(context.Background(), "tok-h", "hidrofarm", time.Minute))

	result, err := adapter.CommitTransaction(context.Background(), "tok-h")
	require.NoError(t, err)
	assert.Equal(t, "hidrofarm", result.TenantID)
	assert.True(t, result.IsSuccessful())

	// Token is single-use; the mapping is evicted after a successful commit.
	_, found, err := cache.Recall(context.Background(), "tok-h")
	require.NoError(t, err)
	assert.False(t, found)
}

func TestCommitTransactionUnknownTokenFallsBackToDefault(t *testing.T) {
	adapter, _ := newTestAdapter(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "tecnogrow-key", r.Header.Get(headerAPIKeySecret))
		json.NewEncoder(w).Encode(map[string]any{"status": "FAILED", "response_code": -1})
	})

	result, err := adapter.CommitTransaction(context.Background(), "tok-lost")
	require.NoError(t, err)
	assert.Equal(t, "tecnogrow", result.TenantID)
	assert.False(t, result.IsSuccessful())
}

func TestCommitTransactionGatewayFailurePropagates(t *testing.T) {
	adapter, _ := newTestAdapter(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	})

	_, err := adapter.CommitTransaction(context.Background(), "tok-err")
	assert.Error(t, err)
}

func TestAdapterReusesClientPerTenant(t *testing.T) {
	adapter, _ := newTestAdapter(t, func(w http.ResponseWriter, r *http.Request) {})

	tenant := adapter.registry.DefaultTenant()
	first, err := adapter.clientFor(tenant)
	require.NoError(t, err)
	second, err := adapter.clientFor(tenant)
	require.NoError(t, err)
	assert.Same(t, first, second)
}

func TestMemoryTokenCacheExpiry(t *testing.T) {
	cache := NewMemoryTokenCache()
	current := time.Now()
	cache.clock = func() time.Time { return current }

	require.NoError(t, cache.Remember(context.Background(), "tok", "tecnogrow", time.Minute))

	_, found, err := cache.Recall(context.Background(), "tok")
	require.NoError(t, err)
	assert.True(t, found)

	current = current.Add(2 * time.Minute)
	_, found, err = cache.Recall(context.Background(), "tok")
	require.NoError(t, err)
	assert.False(t, found)
}
