package odoo

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type rpcCall struct {
	model  string
	method string
	args   []any
	kwargs map[string]any
}

type stubExecutor struct {
	calls   []rpcCall
	results map[string]any
	errs    map[string]error
}

func newStubExecutor() *stubExecutor {
	return &stubExecutor{results: map[string]any{}, errs: map[string]error{}}
}

func (s *stubExecutor) ExecuteKw(_ context.Context, model, method string, args []any, kwargs map[string]any, out any) error {
	s.calls = append(s.calls, rpcCall{model: model, method: method, args: args, kwargs: kwargs})

	key := model + "." + method
	if err, ok := s.errs[key]; ok {
		return err
	}
	if out == nil {
		return nil
	}
	result, ok := s.results[key]
	if !ok {
		return nil
	}
	raw, err := json.Marshal(result)
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, out)
}

func (s *stubExecutor) lastCall(t *testing.T) rpcCall {
	t.Helper()
	require.NotEmpty(t, s.calls)
	return s.calls[len(s.calls)-1]
}

func TestOrderByName(t *testing.T) {
	stub := newStubExecutor()
	stub.results["sale.order.search_read"] = []map[string]any{{
		"id":           12,
		"name":         "S04589",
		"state":        "draft",
		"amount_total": 10000.0,
		"partner_id":   []any{5, "Juan Pérez"},
		"currency_id":  []any{44, "CLP"},
	}}
	svc := NewSalesService(stub, testLogger())

	order, err := svc.OrderByName(context.Background(), "S04589")
	require.NoError(t, err)
	require.NotNil(t, order)

	assert.Equal(t, 12, order.ID)
	assert.Equal(t, "Juan Pérez", order.Partner.Name)
	assert.True(t, order.AmountTotal.Equal(decimal.NewFromInt(10000)))
	assert.True(t, order.Currency.IsSet())
}

func TestOrderByNameEmptyNameSkipsRPC(t *testing.T) {
	stub := newStubExecutor()
	svc := NewSalesService(stub, testLogger())

	order, err := svc.OrderByName(context.Background(), "")
	require.NoError(t, err)
	assert.Nil(t, order)
	assert.Empty(t, stub.calls)
}

func TestFindOrderBuildsDayWindowDomain(t *testing.T) {
	stub := newStubExecutor()
	stub.results["sale.order.search_read"] = []map[string]any{{"id": 3, "name": "S01"}}
	svc := NewSalesService(stub, testLogger())

	amount := int64(10000)
	order, err := svc.FindOrder(context.Background(), "juan pere", &amount, "2025-10-19")
	require.NoError(t, err)
	require.NotNil(t, order)

	call := stub.lastCall(t)
	require.Len(t, call.args, 1)
	domain, ok := call.args[0].([]any)
	require.True(t, ok)
	require.Len(t, domain, 1)
	criteria, ok := domain[0].([]any)
	require.True(t, ok)

	assert.Equal(t, []any{"partner_id", "ilike", "juan pere"}, criteria[0])
	assert.Equal(t, []any{"amount_total", "=", amount}, criteria[1])
	assert.Equal(t, []any{"date_order", ">=", "2025-10-19 00:00:00"}, criteria[2])
	assert.Equal(t, []any{"date_order", "<=", "2025-10-19 23:59:59"}, criteria[3])
}

func TestFindOrderWithoutCriteria(t *testing.T) {
	stub := newStubExecutor()
	svc := NewSalesService(stub, testLogger())

	order, err := svc.FindOrder(context.Background(), "", nil, "")
	require.NoError(t, err)
	assert.Nil(t, order)
	assert.Empty(t, stub.calls)
}

func TestFindOrderNoMatch(t *testing.T) {
	stub := newStubExecutor()
	stub.results["sale.order.search_read"] = []map[string]any{}
	svc := NewSalesService(stub, testLogger())

	order, err := svc.FindOrder(context.Background(), "nadie", nil, "")
	require.NoError(t, err)
	assert.Nil(t, order)
}

func TestConfirmAndForceState(t *testing.T) {
	stub := newStubExecutor()
	svc := NewSalesService(stub, testLogger())

	require.NoError(t, svc.ConfirmOrder(context.Background(), 12))
	assert.Equal(t, "action_confirm", stub.lastCall(t).method)

	require.NoError(t, svc.ForceSaleState(context.Background(), 12))
	call := stub.lastCall(t)
	assert.Equal(t, "write", call.method)
	payload, ok := call.args[0].([]any)
	require.True(t, ok)
	assert.Equal(t, map[string]any{"state": "sale"}, payload[1])
}

func TestAppendNoteReferencesBuyOrder(t *testing.T) {
	stub := newStubExecutor()
	svc := NewSalesService(stub, testLogger())

	require.NoError(t, svc.AppendNote(context.Background(), 12, "juan-pere_10000_20251019"))

	call := stub.lastCall(t)
	payload, ok := call.args[0].([]any)
	require.True(t, ok)
	values, ok := payload[1].(map[string]any)
	require.True(t, ok)
	assert.Contains(t, values["note"], "juan-pere_10000_20251019")
}

func TestDefaultCurrencyID(t *testing.T) {
	stub := newStubExecutor()
	stub.results["res.currency.search"] = []int{44}
	svc := NewSalesService(stub, testLogger())
	assert.Equal(t, 44, svc.DefaultCurrencyID(context.Background()))

	empty := newStubExecutor()
	empty.results["res.currency.search"] = []int{}
	svc = NewSalesService(empty, testLogger())
	assert.Equal(t, fallbackCurrencyID, svc.DefaultCurrencyID(context.Background()))

	failing := newStubExecutor()
	failing.errs["res.currency.search"] = assert.AnError
	svc = NewSalesService(failing, testLogger())
	assert.Equal(t, fallbackCurrencyID, svc.DefaultCurrencyID(context.Background()))
}

func TestUpsertPaymentTransactionUpdatesExisting(t *testing.T) {
	stub := newStubExecutor()
	stub.results["payment.transaction.search"] = []int{9}
	svc := NewSalesService(stub, testLogger())

	order := &Order{ID: 12, Currency: Many2One{ID: 44}}
	err := svc.UpsertPaymentTransaction(context.Background(), order, PaymentRecord{
		ProviderRef: 3,
		Reference:   "juan-pere_10000_20251019",
		Amount:      decimal.NewFromInt(10000),
	})
	require.NoError(t, err)

	call := stub.lastCall(t)
	assert.Equal(t, "payment.transaction", call.model)
	assert.Equal(t, "write", call.method)
}

func TestUpsertPaymentTransactionCreatesWithCurrencyFallback(t *testing.T) {
	stub := newStubExecutor()
	stub.results["payment.transaction.search"] = []int{}
	stub.results["res.currency.search"] = []int{44}
	svc := NewSalesService(stub, testLogger())

	order := &Order{ID: 12, Partner: Many2One{ID: 5}}
	err := svc.UpsertPaymentTransaction(context.Background(), order, PaymentRecord{
		ProviderRef:      3,
		PaymentMethodRef: 8,
		Reference:        "juan-pere_10000_20251019",
		Amount:           decimal.NewFromInt(10000),
	})
	require.NoError(t, err)

	call := stub.lastCall(t)
	assert.Equal(t, "create", call.method)
	payload, ok := call.args[0].([]any)
	require.True(t, ok)
	values, ok := payload[0].(map[string]any)
	require.True(t, ok)

	assert.Equal(t, 44, values["currency_id"])
	assert.Equal(t, 5, values["partner_id"])
	assert.Equal(t, int64(8), values["payment_method_id"])
	assert.Equal(t, "done", values["state"])
}

func TestUpsertPaymentTransactionRequiresOrder(t *testing.T) {
	svc := NewSalesService(newStubExecutor(), testLogger())
	err := svc.UpsertPaymentTransaction(context.Background(), nil, PaymentRecord{})
	assert.Error(t, err)
}

func TestMany2OneUnmarshal(t *testing.T) {
	var m Many2One
	require.NoError(t, json.Unmarshal([]byte(`[5, "Juan Pérez"]`), &m))
	assert.Equal(t, 5, m.ID)
	assert.Equal(t, "Juan Pérez", m.Name)

	require.NoError(t, json.Unmarshal([]byte(`false`), &m))
	assert.False(t, m.IsSet())
}
