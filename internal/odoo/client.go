// Package odoo speaks Odoo's JSON-RPC protocol: a common service for
// authentication and an object service for model calls via execute_kw.
package odoo

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/tecnogrow/paybridge/internal/tenants"
	pkgerrors "github.com/tecnogrow/paybridge/pkg/errors"
	"github.com/tecnogrow/paybridge/pkg/logger"
)

const jsonrpcPath = "/jsonrpc"

var errCredentialsRequired = errors.New("odoo url, database, username and password are required")

// RPCError is the error object of a JSON-RPC response. DataMessage carries
// the server-side exception text, which is where business-rule errors such as
// stock shortages surface.
type RPCError struct {
	Code        int
	Message     string
	DataMessage string
}

func (e *RPCError) Error() string {
	if e.DataMessage != "" {
		return fmt.Sprintf("odoo rpc error %d: %s: %s", e.Code, e.Message, e.DataMessage)
	}
	return fmt.Sprintf("odoo rpc error %d: %s", e.Code, e.Message)
}

// Text returns every message the server attached, for keyword inspection.
func (e *RPCError) Text() string {
	return strings.TrimSpace(e.Message + " " + e.DataMessage)
}

// stockKeywords are the ERP error fragments that identify an inventory
// shortage blocking order confirmation. Matching on wording is fragile but it
// is the only signal the ERP exposes; keep the list here so revisiting it
// never touches the reconciliation state machine.
var stockKeywords = []string{"stock", "reabastecimiento", "no se encontró", "no se encontro"}

// IsStockBlock reports whether an ERP error is a recognizable inventory
// shortage rather than a general failure.
func IsStockBlock(err error) bool {
	var rpcErr *RPCError
	if !errors.As(err, &rpcErr) {
		return false
	}
	text := strings.ToLower(rpcErr.Text())
	for _, keyword := range stockKeywords {
		if strings.Contains(text, keyword) {
			return true
		}
	}
	return false
}

// Client is a JSON-RPC connection to one tenant's Odoo instance. The uid
// obtained at authentication is cached and reused across calls.
type Client struct {
	creds      tenants.OdooCredentials
	httpClient *http.Client
	logger     *logger.Logger

	requestID atomic.Int64

	mu  sync.Mutex
	uid int
}

// ClientParams configure one Odoo connection.
type ClientParams struct {
	Credentials tenants.OdooCredentials
	HTTPClient  *http.Client
	Logger      *logger.Logger
}

func NewClient(params ClientParams) (*Client, error) {
	creds := params.Credentials
	if creds.BaseURL == "" || creds.Database == "" || creds.Username == "" || creds.Password == "" {
		return nil, errCredentialsRequired
	}

	httpClient := params.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}

	return &Client{
		creds:      creds,
		httpClient: httpClient,
		logger:     params.Logger,
	}, nil
}

type rpcRequest struct {
	JSONRPC string    `json:"jsonrpc"`
	Method  string    `json:"method"`
	Params  rpcParams `json:"params"`
	ID      int64     `json:"id"`
}

type rpcParams struct {
	Service string `json:"service"`
	Method  string `json:"method"`
	Args    []any  `json:"args"`
}

type rpcResponse struct {
	Result json.RawMessage `json:"result"`
	Error  *rpcErrorBody   `json:"error"`
}

type rpcErrorBody struct {
	Code    int          `json:"code"`
	Message string       `json:"message"`
	Data    rpcErrorData `json:"data"`
}

type rpcErrorData struct {
	Message string `json:"message"`
}

func (c *Client) call(ctx context.Context, service, method string, args []any) (json.RawMessage, error) {
	payload, err := json.Marshal(rpcRequest{
		JSONRPC: "2.0",
		Method:  "call",
		Params:  rpcParams{Service: service, Method: method, Args: args},
		ID:      c.requestID.Add(1),
	})
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "encoding odoo request")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.creds.BaseURL+jsonrpcPath, bytes.NewReader(payload))
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "building odoo request")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeERP, err, "calling odoo")
	}
	defer resp.Body.Close()

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return nil, pkgerrors.New(pkgerrors.CodeERP, fmt.Sprintf("odoo returned status %d", resp.StatusCode))
	}

	var decoded rpcResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeERP, err, "decoding odoo response")
	}
	if decoded.Error != nil {
		rpcErr := &RPCError{
			Code:        decoded.Error.Code,
			Message:     decoded.Error.Message,
			DataMessage: decoded.Error.Data.Message,
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeERP, rpcErr, "odoo call failed")
	}
	return decoded.Result, nil
}

// Authenticate resolves and caches the numeric uid for the configured user.
func (c *Client) Authenticate(ctx context.Context) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.uid > 0 {
		return c.uid, nil
	}

	raw, err := c.call(ctx, "common", "authenticate", []any{
		c.creds.Database, c.creds.Username, c.creds.Password, map[string]any{},
	})
	if err != nil {
		return 0, err
	}

	// Odoo answers false, not an error, on bad credentials.
	var uid int
	if err := json.Unmarshal(raw, &uid); err != nil || uid <= 0 {
		return 0, pkgerrors.New(pkgerrors.CodeERP, "odoo authentication rejected")
	}

	c.uid = uid
	if c.logger != nil {
		c.logger.Info(c.logger.WithField(ctx, "uid", uid), "authenticated with odoo")
	}
	return uid, nil
}

// ExecuteKw runs a model method through the object service, authenticating
// first when needed. The result is decoded into out when out is non-nil.
func (c *Client) ExecuteKw(ctx context.Context, model, method string, args []any, kwargs map[string]any, out any) error {
	uid, err := c.Authenticate(ctx)
	if err != nil {
		return err
	}

	callArgs := []any{c.creds.Database, uid, c.creds.Password, model, method}
	callArgs = append(callArgs, args...)
	if kwargs != nil {
		callArgs = append(callArgs, kwargs)
	}

	raw, err := c.call(ctx, "object", "execute_kw", callArgs)
	if err != nil {
		return err
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeERP, err, fmt.Sprintf("decoding %s.%s result", model, method))
	}
	return nil
}
