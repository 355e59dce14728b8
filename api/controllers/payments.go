package controllers

import (
	"context"
	"net/http"

	"github.com/tecnogrow/paybridge/api/middleware"
	"github.com/tecnogrow/paybridge/api/responses"
	"github.com/tecnogrow/paybridge/api/validators"
	"github.com/tecnogrow/paybridge/internal/reconcile"
	"github.com/tecnogrow/paybridge/internal/tenants"
	"github.com/tecnogrow/paybridge/internal/webpay"
	"github.com/tecnogrow/paybridge/pkg/logger"
)

// PaymentInitiator is the slice of the gateway adapter the init endpoint
// uses.
type PaymentInitiator interface {
	CreateTransaction(ctx context.Context, req webpay.CreateTransactionRequest) (*webpay.CreateTransactionResponse, error)
}

// CallbackProcessor resolves gateway callbacks into terminal outcomes.
type CallbackProcessor interface {
	Process(ctx context.Context, cb reconcile.Callback) reconcile.Resolution
}

// PaymentsController exposes the init and commit endpoints.
type PaymentsController struct {
	initiator PaymentInitiator
	processor CallbackProcessor
	registry  *tenants.Registry
	returnURL string
	logger    *logger.Logger
}

// PaymentsControllerParams wire the controller's collaborators.
type PaymentsControllerParams struct {
	Initiator PaymentInitiator
	Processor CallbackProcessor
	Registry  *tenants.Registry
	ReturnURL string
	Logger    *logger.Logger
}

func NewPaymentsController(params PaymentsControllerParams) *PaymentsController {
	return &PaymentsController{
		initiator: params.Initiator,
		processor: params.Processor,
		registry:  params.Registry,
		returnURL: params.ReturnURL,
		logger:    params.Logger,
	}
}

type initRequest struct {
	Amount       int64  `json:"amount" validate:"required,gt=0"`
	CustomerName string `json:"customer_name" validate:"omitempty,max=120"`
	OrderDate    string `json:"order_date" validate:"omitempty,datetime=2006-01-02"`
	TenantID     string `json:"tenant_id" validate:"omitempty,max=64"`
}

type initResponse struct {
	Token       string `json:"token"`
	RedirectURL string `json:"redirect_url"`
	BuyOrder    string `json:"buy_order"`
	SessionID   string `json:"session_id"`
	TenantID    string `json:"tenant_id"`
	ReturnURL   string `json:"return_url"`
}

// Init opens a gateway transaction for the resolved tenant.
func (c *PaymentsController) Init(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var body initRequest
	if err := validators.DecodeJSONBody(r, &body); err != nil {
		responses.WriteError(ctx, c.logger, w, err)
		return
	}

	tenant, err := c.resolveTenant(ctx, body.TenantID)
	if err != nil {
		responses.WriteError(ctx, c.logger, w, err)
		return
	}

	created, err := c.initiator.CreateTransaction(ctx, webpay.CreateTransactionRequest{
		Tenant:       tenant,
		Amount:       body.Amount,
		CustomerName: body.CustomerName,
		OrderDate:    body.OrderDate,
	})
	if err != nil {
		responses.WriteError(ctx, c.logger, w, err)
		return
	}

	responses.WriteSuccess(w, initResponse{
		Token:       created.Token,
		RedirectURL: created.RedirectURL,
		BuyOrder:    created.BuyOrder,
		SessionID:   created.SessionID,
		TenantID:    created.TenantID,
		ReturnURL:   c.returnURL,
	})
}

// resolveTenant prefers an explicit id (a hard error when unknown) over the
// origin-resolved tenant from the middleware.
func (c *PaymentsController) resolveTenant(ctx context.Context, explicitID string) (*tenants.Tenant, error) {
	if explicitID != "" {
		return c.registry.RequireByID(explicitID)
	}
	if tenant, ok := middleware.TenantFromContext(ctx); ok {
		return tenant, nil
	}
	return c.registry.DefaultTenant(), nil
}

type commitResponse struct {
	Outcome     string                    `json:"outcome"`
	RedirectURL string                    `json:"redirect_url"`
	TenantID    string                    `json:"tenant_id"`
	ERPSynced   bool                      `json:"erp_synced"`
	Transaction *webpay.TransactionResult `json:"transaction,omitempty"`
}

// CommitJSON answers the callback with a diagnostic JSON payload. The
// gateway itself posts forms; this transport exists for storefront scripts
// and manual inspection.
func (c *PaymentsController) CommitJSON(w http.ResponseWriter, r *http.Request) {
	resolution := c.processor.Process(r.Context(), callbackFromRequest(r))

	responses.WriteSuccess(w, commitResponse{
		Outcome:     string(resolution.Outcome),
		RedirectURL: resolution.RedirectURL,
		TenantID:    resolution.Tenant.ID,
		ERPSynced:   resolution.ERPSynced,
		Transaction: resolution.Result,
	})
}

// CommitRedirect sends the shopper's browser back to the tenant storefront.
func (c *PaymentsController) CommitRedirect(w http.ResponseWriter, r *http.Request) {
	resolution := c.processor.Process(r.Context(), callbackFromRequest(r))
	http.Redirect(w, r, resolution.RedirectURL, http.StatusSeeOther)
}

// callbackFromRequest reads the recognized fields from query params or form
// values. The gateway is inconsistent about casing across flows, so both
// spellings are accepted.
func callbackFromRequest(r *http.Request) reconcile.Callback {
	if r.Method == http.MethodPost {
		r.ParseForm()
	}
	return reconcile.Callback{
		Token:      firstValue(r, "token_ws", "TOKEN_WS"),
		AbortToken: firstValue(r, "TBK_TOKEN", "tbk_token"),
		BuyOrder:   firstValue(r, "TBK_ORDEN_COMPRA", "tbk_orden_compra"),
		SessionID:  firstValue(r, "TBK_ID_SESION", "tbk_id_sesion"),
	}
}

func firstValue(r *http.Request, names ...string) string {
	for _, name := range names {
		if v := r.FormValue(name); v != "" {
			return v
		}
	}
	return ""
}
