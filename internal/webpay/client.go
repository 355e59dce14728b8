// Package webpay talks to the Transbank Webpay Plus REST API. A Client holds
// one commerce account's credentials; the Adapter layers tenant-scoped client
// selection and token bookkeeping on top.
package webpay

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	pkgerrors "github.com/tecnogrow/paybridge/pkg/errors"
	"github.com/tecnogrow/paybridge/pkg/logger"
)

const (
	hostIntegration = "https://webpay3gint.transbank.cl"
	hostProduction  = "https://webpay3g.transbank.cl"

	transactionsPath = "/rswebpaytransaction/api/webpay/v1.2/transactions"

	headerAPIKeyID     = "Tbk-Api-Key-Id"
	headerAPIKeySecret = "Tbk-Api-Key-Secret"
)

// Transbank's published integration credentials, used when a tenant carries
// no gateway account of its own.
const (
	IntegrationCommerceCode = "597055555532"
	IntegrationAPIKey       = "579B532A7440BB0C9079DED94D31EA1615BACEB56610332264630D42D0A36B1C"
)

var (
	errLoggerRequired = errors.New("webpay logger is required")
	errTokenRequired  = errors.New("webpay token is required")
)

// ClientParams configure one commerce account connection.
type ClientParams struct {
	CommerceCode string
	APIKey       string
	Production   bool
	HTTPClient   *http.Client
	BaseURL      string
	Logger       *logger.Logger
}

// Client issues create and commit calls against one commerce account.
type Client struct {
	commerceCode string
	apiKey       string
	baseURL      string
	httpClient   *http.Client
	logger       *logger.Logger
}

// CreateResponse is the gateway's answer to a create call.
type CreateResponse struct {
	Token string `json:"token"`
	URL   string `json:"url"`
}

// CardDetail carries the masked card data echoed on commit.
type CardDetail struct {
	CardNumber string `json:"card_number"`
}

// TransactionResult is the normalized commit outcome. The gateway is the
// system of record for everything here; TenantID is filled in locally by the
// Adapter.
type TransactionResult struct {
	VCI               string          `json:"vci"`
	Amount            decimal.Decimal `json:"amount"`
	Status            string          `json:"status"`
	BuyOrder          string          `json:"buy_order"`
	SessionID         string          `json:"session_id"`
	CardDetail        CardDetail      `json:"card_detail"`
	AccountingDate    string          `json:"accounting_date"`
	TransactionDate   string          `json:"transaction_date"`
	AuthorizationCode string          `json:"authorization_code"`
	PaymentTypeCode   string          `json:"payment_type_code"`
	ResponseCode      int             `json:"response_code"`
	InstallmentsNum   int             `json:"installments_number"`

	TenantID string `json:"tenant_id,omitempty"`
}

// IsSuccessful reports whether the gateway approved the payment. Different
// response shapes surface approval through either field, so both are checked.
func (r TransactionResult) IsSuccessful() bool {
	return r.Status == "AUTHORIZED" || r.ResponseCode == 0
}

// NewClient builds a gateway client for one commerce account.
func NewClient(params ClientParams) (*Client, error) {
	if params.Logger == nil {
		return nil, errLoggerRequired
	}

	commerceCode := strings.TrimSpace(params.CommerceCode)
	apiKey := strings.TrimSpace(params.APIKey)
	if commerceCode == "" || apiKey == "" {
		commerceCode = IntegrationCommerceCode
		apiKey = IntegrationAPIKey
	}

	baseURL := params.BaseURL
	if baseURL == "" {
		if params.Production {
			baseURL = hostProduction
		} else {
			baseURL = hostIntegration
		}
	}

	httpClient := params.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}

	return &Client{
		commerceCode: commerceCode,
		apiKey:       apiKey,
		baseURL:      strings.TrimRight(baseURL, "/"),
		httpClient:   httpClient,
		logger:       params.Logger,
	}, nil
}

// CommerceCode returns the account the client authenticates as.
func (c *Client) CommerceCode() string {
	if c == nil {
		return ""
	}
	return c.commerceCode
}

type createRequest struct {
	BuyOrder  string `json:"buy_order"`
	SessionID string `json:"session_id"`
	Amount    int64  `json:"amount"`
	ReturnURL string `json:"return_url"`
}

// Create opens a transaction and returns the token plus the hosted payment
// form URL the shopper must be redirected to.
func (c *Client) Create(ctx context.Context, buyOrder, sessionID string, amount int64, returnURL string) (*CreateResponse, error) {
	body := createRequest{
		BuyOrder:  buyOrder,
		SessionID: sessionID,
		Amount:    amount,
		ReturnURL: returnURL,
	}

	var out CreateResponse
	if err := c.do(ctx, http.MethodPost, transactionsPath, body, &out); err != nil {
		return nil, err
	}
	if out.Token == "" || out.URL == "" {
		return nil, pkgerrors.New(pkgerrors.CodeGateway, "gateway create returned an incomplete response")
	}

	lctx := c.logger.WithBuyOrder(ctx, buyOrder)
	c.logger.Info(c.logger.WithToken(lctx, redactToken(out.Token)), "gateway transaction created")
	return &out, nil
}

// Commit confirms a transaction after the shopper returns from the hosted
// form.
func (c *Client) Commit(ctx context.Context, token string) (*TransactionResult, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, errTokenRequired, "commit requires a token")
	}

	var out TransactionResult
	if err := c.do(ctx, http.MethodPut, transactionsPath+"/"+token, nil, &out); err != nil {
		return nil, err
	}

	lctx := c.logger.WithBuyOrder(ctx, out.BuyOrder)
	lctx = c.logger.WithFields(lctx, map[string]any{
		"status":        out.Status,
		"response_code": out.ResponseCode,
	})
	c.logger.Info(lctx, "gateway transaction committed")
	return &out, nil
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "encoding gateway request")
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "building gateway request")
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(headerAPIKeyID, c.commerceCode)
	req.Header.Set(headerAPIKeySecret, c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeGateway, err, "calling payment gateway")
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeGateway, err, "reading gateway response")
	}

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return gatewayError(resp.StatusCode, raw)
	}

	if err := json.Unmarshal(raw, out); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeGateway, err, "decoding gateway response")
	}
	return nil
}

type gatewayErrorBody struct {
	ErrorMessage string `json:"error_message"`
	Description  string `json:"description"`
}

func gatewayError(status int, raw []byte) error {
	var body gatewayErrorBody
	_ = json.Unmarshal(raw, &body)

	message := body.ErrorMessage
	if message == "" {
		message = body.Description
	}
	if message == "" {
		message = strings.TrimSpace(string(raw))
	}
	if message == "" {
		message = http.StatusText(status)
	}

	return pkgerrors.
		New(pkgerrors.CodeGateway, fmt.Sprintf("gateway returned %d: %s", status, message)).
		WithDetails(map[string]any{"http_status": status})
}

// redactToken keeps enough of a token to correlate log lines without
// disclosing it.
func redactToken(token string) string {
	if len(token) <= 8 {
		return token
	}
	return token[:8] + "..."
}
