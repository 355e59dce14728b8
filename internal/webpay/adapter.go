package webpay

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/tecnogrow/paybridge/internal/buyorder"
	"github.com/tecnogrow/paybridge/internal/tenants"
	"github.com/tecnogrow/paybridge/pkg/logger"
	"github.com/tecnogrow/paybridge/pkg/metrics"
)

// Gateway is the surface the reconciliation engine and controllers depend on.
type Gateway interface {
	CreateTransaction(ctx context.Context, req CreateTransactionRequest) (*CreateTransactionResponse, error)
	CommitTransaction(ctx context.Context, token string) (*TransactionResult, error)
}

// CreateTransactionRequest is the resolved init input: the tenant has already
// been picked by the caller.
type CreateTransactionRequest struct {
	Tenant       *tenants.Tenant
	Amount       int64
	CustomerName string
	OrderDate    string
}

// CreateTransactionResponse carries the gateway output enriched with the
// locally derived identifiers the storefront needs to echo back.
type CreateTransactionResponse struct {
	Token       string `json:"token"`
	RedirectURL string `json:"redirect_url"`
	BuyOrder    string `json:"buy_order"`
	SessionID   string `json:"session_id"`
	TenantID    string `json:"tenant_id"`
}

// AdapterParams configure the tenant-aware gateway adapter.
type AdapterParams struct {
	Registry  *tenants.Registry
	Cache     TokenCache
	ReturnURL string
	TokenTTL  time.Duration
	Logger    *logger.Logger
	Metrics   *metrics.TransactionMetrics

	// baseURL overrides the gateway host in tests.
	baseURL string
}

// Adapter selects per-tenant gateway credentials, builds identifiers and
// keeps the token→tenant mapping needed to route the bare commit callback.
type Adapter struct {
	registry  *tenants.Registry
	cache     TokenCache
	returnURL string
	tokenTTL  time.Duration
	logger    *logger.Logger
	metrics   *metrics.TransactionMetrics
	baseURL   string

	mu      sync.Mutex
	clients map[string]*Client
}

// NewAdapter builds the adapter. Clients are constructed lazily per tenant
// and reused afterwards.
func NewAdapter(params AdapterParams) (*Adapter, error) {
	if params.Logger == nil {
		return nil, errLoggerRequired
	}
	cache := params.Cache
	if cache == nil {
		cache = NewMemoryTokenCache()
	}
	ttl := params.TokenTTL
	if ttl <= 0 {
		ttl = 30 * time.Minute
	}
	return &Adapter{
		registry:  params.Registry,
		cache:     cache,
		returnURL: strings.TrimSpace(params.ReturnURL),
		tokenTTL:  ttl,
		logger:    params.Logger,
		metrics:   params.Metrics,
		baseURL:   params.baseURL,
		clients:   make(map[string]*Client),
	}, nil
}

func (a *Adapter) clientFor(tenant *tenants.Tenant) (*Client, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if client, ok := a.clients[tenant.ID]; ok {
		return client, nil
	}

	params := ClientParams{
		BaseURL: a.baseURL,
		Logger:  a.logger,
	}
	if tenant.Webpay != nil {
		params.CommerceCode = tenant.Webpay.CommerceCode
		params.APIKey = tenant.Webpay.APIKey
		params.Production = tenant.Webpay.IsProduction()
	}

	client, err := NewClient(params)
	if err != nil {
		return nil, err
	}
	a.clients[tenant.ID] = client
	return client, nil
}

// CreateTransaction opens a gateway transaction under the tenant's
// credentials and remembers the token for commit-time tenant recovery.
func (a *Adapter) CreateTransaction(ctx context.Context, req CreateTransactionRequest) (*CreateTransactionResponse, error) {
	tenant := req.Tenant
	if tenant == nil {
		tenant = a.registry.DefaultTenant()
	}

	buyOrder := buyorder.BuildFromCustomer(req.CustomerName, req.Amount, req.OrderDate)
	sessionID := a.registry.EncodeSession(tenant, uuid.NewString())

	client, err := a.clientFor(tenant)
	if err != nil {
		return nil, err
	}

	created, err := client.Create(ctx, buyOrder, sessionID, req.Amount, a.returnURL)
	if err != nil {
		return nil, err
	}

	lctx := a.logger.WithTenantID(ctx, tenant.ID)
	if err := a.cache.Remember(ctx, created.Token, tenant.ID, a.tokenTTL); err != nil {
		// The commit path falls back to default credentials on a miss, so a
		// cache write failure degrades routing accuracy, not availability.
		a.logger.Error(lctx, "failed to remember gateway token", err)
	}

	a.metrics.IncCreated(tenant.ID)

	return &CreateTransactionResponse{
		Token:       created.Token,
		RedirectURL: created.URL,
		BuyOrder:    buyOrder,
		SessionID:   sessionID,
		TenantID:    tenant.ID,
	}, nil
}

// CommitTransaction confirms a transaction. The tenant is recovered from the
// token cache; unknown tokens run under the default tenant's credentials,
// which keeps commits working after the cache was lost.
func (a *Adapter) CommitTransaction(ctx context.Context, token string) (*TransactionResult, error) {
	tenant := a.resolveTokenTenant(ctx, token)

	client, err := a.clientFor(tenant)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	result, err := client.Commit(ctx, token)
	a.metrics.ObserveCommit(time.Since(start))
	if err != nil {
		return nil, err
	}

	result.TenantID = tenant.ID
	if err := a.cache.Forget(ctx, token); err != nil {
		a.logger.Warn(a.logger.WithTenantID(ctx, tenant.ID), "failed to evict gateway token")
	}
	return result, nil
}

func (a *Adapter) resolveTokenTenant(ctx context.Context, token string) *tenants.Tenant {
	tenantID, ok, err := a.cache.Recall(ctx, token)
	if err != nil {
		a.logger.Error(ctx, "token cache lookup failed", err)
	}
	if ok {
		if tenant, found := a.registry.ResolveByID(tenantID); found {
			return tenant
		}
	}
	a.logger.Warn(a.logger.WithToken(ctx, redactToken(token)), "token not in cache, committing under default tenant")
	return a.registry.DefaultTenant()
}
