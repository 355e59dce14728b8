package odoo

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/shopspring/decimal"

	pkgerrors "github.com/tecnogrow/paybridge/pkg/errors"
	"github.com/tecnogrow/paybridge/pkg/logger"
)

const (
	modelSaleOrder          = "sale.order"
	modelPaymentTransaction = "payment.transaction"
	modelCurrency           = "res.currency"

	// Currency id used when the order carries none and the CLP lookup fails.
	fallbackCurrencyID = 44

	defaultCurrencyName = "CLP"
)

// Many2One is Odoo's relational field encoding: either false or [id, "name"].
type Many2One struct {
	ID   int
	Name string
}

func (m *Many2One) UnmarshalJSON(data []byte) error {
	var pair []json.RawMessage
	if err := json.Unmarshal(data, &pair); err != nil {
		// false means unset
		*m = Many2One{}
		return nil
	}
	if len(pair) > 0 {
		if err := json.Unmarshal(pair[0], &m.ID); err != nil {
			return err
		}
	}
	if len(pair) > 1 {
		if err := json.Unmarshal(pair[1], &m.Name); err != nil {
			return err
		}
	}
	return nil
}

func (m Many2One) IsSet() bool {
	return m.ID > 0
}

// Order is the slice of a sale.order this service reads. Orders are never
// created here; the ERP is the system of record.
type Order struct {
	ID            int             `json:"id"`
	Name          string          `json:"name"`
	State         string          `json:"state"`
	AmountTotal   decimal.Decimal `json:"amount_total"`
	Partner       Many2One        `json:"partner_id"`
	DateOrder     string          `json:"date_order"`
	InvoiceStatus string          `json:"invoice_status"`
	Currency      Many2One        `json:"currency_id"`
	Company       Many2One        `json:"company_id"`
}

var orderFields = []string{
	"id", "name", "state", "amount_total", "partner_id",
	"date_order", "invoice_status", "currency_id", "company_id",
}

// executor is the RPC surface SalesService needs; tests stub it.
type executor interface {
	ExecuteKw(ctx context.Context, model, method string, args []any, kwargs map[string]any, out any) error
}

// SalesService locates and transitions sale orders and maintains their
// payment transaction records.
type SalesService struct {
	rpc    executor
	logger *logger.Logger
}

func NewSalesService(rpc executor, logg *logger.Logger) *SalesService {
	return &SalesService{rpc: rpc, logger: logg}
}

func (s *SalesService) searchOrders(ctx context.Context, domain []any) (*Order, error) {
	var orders []Order
	err := s.rpc.ExecuteKw(ctx, modelSaleOrder, "search_read",
		[]any{[]any{domain}},
		map[string]any{"fields": orderFields, "limit": 1},
		&orders)
	if err != nil {
		return nil, err
	}
	if len(orders) == 0 {
		return nil, nil
	}
	return &orders[0], nil
}

// OrderByName looks an order up by its exact ERP name.
func (s *SalesService) OrderByName(ctx context.Context, name string) (*Order, error) {
	if name == "" {
		return nil, nil
	}
	return s.searchOrders(ctx, []any{
		[]any{"name", "=", name},
	})
}

// FindOrder is the fuzzy fallback: partner name partial match, exact amount,
// date within the same calendar day. Empty criteria are skipped.
func (s *SalesService) FindOrder(ctx context.Context, customerHint string, amount *int64, orderDate string) (*Order, error) {
	domain := []any{}
	if customerHint != "" {
		domain = append(domain, []any{"partner_id", "ilike", customerHint})
	}
	if amount != nil {
		domain = append(domain, []any{"amount_total", "=", *amount})
	}
	if orderDate != "" {
		domain = append(domain, []any{"date_order", ">=", orderDate + " 00:00:00"})
		domain = append(domain, []any{"date_order", "<=", orderDate + " 23:59:59"})
	}
	if len(domain) == 0 {
		return nil, nil
	}
	return s.searchOrders(ctx, domain)
}

// ConfirmOrder runs the ERP's native confirmation action.
func (s *SalesService) ConfirmOrder(ctx context.Context, orderID int) error {
	return s.rpc.ExecuteKw(ctx, modelSaleOrder, "action_confirm",
		[]any{[]any{[]int{orderID}}}, nil, nil)
}

// ForceSaleState writes the confirmed state directly, bypassing the
// confirmation action. Used only as compensation for stock-blocked orders
// whose payment is already captured.
func (s *SalesService) ForceSaleState(ctx context.Context, orderID int) error {
	return s.rpc.ExecuteKw(ctx, modelSaleOrder, "write",
		[]any{[]any{[]int{orderID}, map[string]any{"state": "sale"}}}, nil, nil)
}

// AppendNote records an explanatory payment note on the order.
func (s *SalesService) AppendNote(ctx context.Context, orderID int, buyOrder string) error {
	note := fmt.Sprintf("Pago procesado vía Webpay - Orden: %s", buyOrder)
	return s.rpc.ExecuteKw(ctx, modelSaleOrder, "write",
		[]any{[]any{[]int{orderID}, map[string]any{"note": note}}}, nil, nil)
}

// DefaultCurrencyID resolves the CLP currency id, falling back to a
// well-known id when the lookup fails or finds nothing.
func (s *SalesService) DefaultCurrencyID(ctx context.Context) int {
	var ids []int
	err := s.rpc.ExecuteKw(ctx, modelCurrency, "search",
		[]any{[]any{[]any{[]any{"name", "=", defaultCurrencyName}}}},
		map[string]any{"limit": 1},
		&ids)
	if err != nil || len(ids) == 0 {
		if err != nil && s.logger != nil {
			s.logger.Warn(ctx, "currency lookup failed, using fallback id")
		}
		return fallbackCurrencyID
	}
	return ids[0]
}

// PaymentRecord is the payment.transaction row kept in sync with a gateway
// result.
type PaymentRecord struct {
	ProviderRef       int64
	PaymentMethodRef  int64
	Reference         string
	Amount            decimal.Decimal
	AuthorizationCode string
}

// UpsertPaymentTransaction searches for an existing payment.transaction keyed
// by (provider, reference) and updates it, creating one linked to the order
// when absent.
func (s *SalesService) UpsertPaymentTransaction(ctx context.Context, order *Order, record PaymentRecord) error {
	if order == nil {
		return pkgerrors.New(pkgerrors.CodeInternal, "payment upsert requires an order")
	}

	amount, _ := record.Amount.Float64()

	var existing []int
	err := s.rpc.ExecuteKw(ctx, modelPaymentTransaction, "search",
		[]any{[]any{[]any{
			[]any{"provider_id", "=", record.ProviderRef},
			[]any{"reference", "=", record.Reference},
		}}},
		map[string]any{"limit": 1},
		&existing)
	if err != nil {
		return err
	}

	if len(existing) > 0 {
		return s.rpc.ExecuteKw(ctx, modelPaymentTransaction, "write",
			[]any{[]any{[]int{existing[0]}, map[string]any{
				"amount":             amount,
				"state":              "done",
				"provider_reference": record.AuthorizationCode,
			}}}, nil, nil)
	}

	currencyID := order.Currency.ID
	if !order.Currency.IsSet() {
		currencyID = s.DefaultCurrencyID(ctx)
	}

	values := map[string]any{
		"provider_id":        record.ProviderRef,
		"reference":          record.Reference,
		"amount":             amount,
		"currency_id":        currencyID,
		"partner_id":         order.Partner.ID,
		"state":              "done",
		"provider_reference": record.AuthorizationCode,
		"sale_order_ids":     []any{[]any{6, 0, []int{order.ID}}},
	}
	if record.PaymentMethodRef > 0 {
		values["payment_method_id"] = record.PaymentMethodRef
	}

	var created int
	return s.rpc.ExecuteKw(ctx, modelPaymentTransaction, "create",
		[]any{[]any{values}}, nil, &created)
}
