// Package reconcile drives the per-transaction state machine behind the
// gateway callback and the best-effort ERP reconciliation that follows a
// captured payment.
package reconcile

import (
	"context"

	"github.com/tecnogrow/paybridge/internal/tenants"
	"github.com/tecnogrow/paybridge/internal/webpay"
	"github.com/tecnogrow/paybridge/pkg/logger"
	"github.com/tecnogrow/paybridge/pkg/metrics"
)

// Outcome is the terminal state of one transaction.
type Outcome string

const (
	OutcomeSuccess   Outcome = "success"
	OutcomeRejected  Outcome = "rejected"
	OutcomeCancelled Outcome = "cancelled"
	OutcomeError     Outcome = "error"
)

// Callback carries the fields the gateway sends back, over GET query params
// or a POST form. A normal return carries Token; a shopper abort carries
// AbortToken plus the buy order and session echo fields.
type Callback struct {
	Token      string
	AbortToken string
	BuyOrder   string
	SessionID  string
}

// Resolution is the processed callback: the terminal outcome, the storefront
// redirect matching it, and the gateway result when a commit happened.
type Resolution struct {
	Outcome     Outcome
	RedirectURL string
	Tenant      *tenants.Tenant
	Result      *webpay.TransactionResult
	ERPSynced   bool
	ERPError    error
}

// GatewayCommitter is the slice of the gateway adapter the engine uses.
type GatewayCommitter interface {
	CommitTransaction(ctx context.Context, token string) (*webpay.TransactionResult, error)
}

// Engine resolves callbacks into terminal outcomes. Gateway truth always
// wins: once a commit reports success the outcome is SUCCESS regardless of
// what the ERP sync does.
type Engine struct {
	gateway  GatewayCommitter
	registry *tenants.Registry
	syncer   *Syncer
	logger   *logger.Logger
	metrics  *metrics.TransactionMetrics
}

// EngineParams configure the reconciliation engine.
type EngineParams struct {
	Gateway  GatewayCommitter
	Registry *tenants.Registry
	Syncer   *Syncer
	Logger   *logger.Logger
	Metrics  *metrics.TransactionMetrics
}

func NewEngine(params EngineParams) *Engine {
	return &Engine{
		gateway:  params.Gateway,
		registry: params.Registry,
		syncer:   params.Syncer,
		logger:   params.Logger,
		metrics:  params.Metrics,
	}
}

// Process runs the state machine for one callback.
func (e *Engine) Process(ctx context.Context, cb Callback) Resolution {
	resolution := e.resolve(ctx, cb)
	e.metrics.IncOutcome(string(resolution.Outcome))
	return resolution
}

func (e *Engine) resolve(ctx context.Context, cb Callback) Resolution {
	if cb.Token == "" {
		tenant := e.tenantFromSession(cb.SessionID)
		if cb.AbortToken != "" {
			e.logger.Info(e.logger.WithTenantID(ctx, tenant.ID), "shopper cancelled payment at gateway")
			return Resolution{
				Outcome:     OutcomeCancelled,
				RedirectURL: tenant.PaymentStatusURL(string(OutcomeCancelled)),
				Tenant:      tenant,
			}
		}
		e.logger.Warn(ctx, "callback carried neither token nor abort marker")
		return Resolution{
			Outcome:     OutcomeError,
			RedirectURL: tenant.PaymentStatusURL(string(OutcomeError)),
			Tenant:      tenant,
		}
	}

	result, err := e.gateway.CommitTransaction(ctx, cb.Token)
	if err != nil {
		tenant := e.tenantFromSession(cb.SessionID)
		e.logger.Error(e.logger.WithTenantID(ctx, tenant.ID), "gateway commit failed", err)
		return Resolution{
			Outcome:     OutcomeError,
			RedirectURL: tenant.PaymentStatusURL(string(OutcomeError)),
			Tenant:      tenant,
		}
	}

	tenant := e.tenantFromResult(result, cb.SessionID)
	lctx := e.logger.WithTenantID(ctx, tenant.ID)
	lctx = e.logger.WithBuyOrder(lctx, result.BuyOrder)

	if !result.IsSuccessful() {
		e.logger.Info(lctx, "gateway rejected payment")
		return Resolution{
			Outcome:     OutcomeRejected,
			RedirectURL: tenant.PaymentStatusURL(string(OutcomeRejected)),
			Tenant:      tenant,
			Result:      result,
		}
	}

	resolution := Resolution{
		Outcome:     OutcomeSuccess,
		RedirectURL: tenant.SuccessURL(result.BuyOrder),
		Tenant:      tenant,
		Result:      result,
	}

	if e.syncer != nil {
		if err := e.syncer.Sync(ctx, tenant, result); err != nil {
			// Secondary failure only: the gateway already captured the money.
			e.logger.Error(lctx, "erp reconciliation incomplete after captured payment", err)
			e.metrics.IncERPSyncFailure()
			resolution.ERPError = err
		} else {
			resolution.ERPSynced = true
		}
	}
	return resolution
}

func (e *Engine) tenantFromSession(sessionID string) *tenants.Tenant {
	if tenant, ok := e.registry.ResolveBySession(sessionID); ok {
		return tenant
	}
	return e.registry.DefaultTenant()
}

func (e *Engine) tenantFromResult(result *webpay.TransactionResult, sessionID string) *tenants.Tenant {
	if tenant, ok := e.registry.ResolveByID(result.TenantID); ok {
		return tenant
	}
	if tenant, ok := e.registry.ResolveBySession(result.SessionID); ok {
		return tenant
	}
	return e.tenantFromSession(sessionID)
}
