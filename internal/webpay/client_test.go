package webpay

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	pkgerrors "github.com/tecnogrow/paybridge/pkg/errors"
	"github.com/tecnogrow/paybridge/pkg/logger"
)

func testLogger() *logger.Logger {
	return logger.New(logger.Options{ServiceName: "test", Level: zerolog.Disabled, Output: io.Discard})
}

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	client, err := NewClient(ClientParams{
		CommerceCode: "597055555532",
		APIKey:       "test-key",
		BaseURL:      server.URL,
		Logger:       testLogger(),
	})
	require.NoError(t, err)
	return client
}

func TestNewClientRequiresLogger(t *testing.T) {
	_, err := NewClient(ClientParams{})
	assert.Error(t, err)
}

func TestNewClientDefaultsToIntegrationCredentials(t *testing.T) {
	client, err := NewClient(ClientParams{Logger: testLogger()})
	require.NoError(t, err)
	assert.Equal(t, IntegrationCommerceCode, client.CommerceCode())
	assert.Equal(t, hostIntegration, client.baseURL)
}

func TestNewClientProductionHost(t *testing.T) {
	client, err := NewClient(ClientParams{
		CommerceCode: "12345",
		APIKey:       "k",
		Production:   true,
		Logger:       testLogger(),
	})
	require.NoError(t, err)
	assert.Equal(t, hostProduction, client.baseURL)
}

func TestCreateSendsCredentialHeadersAndBody(t *testing.T) {
	var gotReq createRequest
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, transactionsPath, r.URL.Path)
		assert.Equal(t, "597055555532", r.Header.Get(headerAPIKeyID))
		assert.Equal(t, "test-key", r.Header.Get(headerAPIKeySecret))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotReq))

		json.NewEncoder(w).Encode(CreateResponse{
			Token: "01ab-token",
			URL:   "https://webpay3gint.transbank.cl/webpayserver/initTransaction",
		})
	})

	resp, err := client.Create(context.Background(), "juan_10000_20251019", "default__abc", 10000, "https://bridge.example/api/v1/payments/commit")
	require.NoError(t, err)

	assert.Equal(t, "01ab-token", resp.Token)
	assert.Equal(t, "juan_10000_20251019", gotReq.BuyOrder)
	assert.Equal(t, "default__abc", gotReq.SessionID)
	assert.Equal(t, int64(10000), gotReq.Amount)
	assert.Equal(t, "https://bridge.example/api/v1/payments/commit", gotReq.ReturnURL)
}

func TestCreateRejectsIncompleteResponse(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(CreateResponse{Token: "only-token"})
	})

	_, err := client.Create(context.Background(), "bo", "sid", 1000, "https://ret")
	require.Error(t, err)
	assert.Equal(t, pkgerrors.CodeGateway, pkgerrors.As(err).Code())
}

func TestCommitPutsTokenPath(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPut, r.Method)
		assert.Equal(t, transactionsPath+"/tok-1", r.URL.Path)

		json.NewEncoder(w).Encode(map[string]any{
			"status":             "AUTHORIZED",
			"response_code":      0,
			"buy_order":          "juan_10000_20251019",
			"session_id":         "default__abc",
			"amount":             10000,
			"authorization_code": "1213",
			"card_detail":        map[string]string{"card_number": "6623"},
		})
	})

	result, err := client.Commit(context.Background(), "tok-1")
	require.NoError(t, err)

	assert.Equal(t, "AUTHORIZED", result.Status)
	assert.Equal(t, "juan_10000_20251019", result.BuyOrder)
	assert.Equal(t, "6623", result.CardDetail.CardNumber)
	assert.True(t, result.Amount.Equal(decimal.NewFromInt(10000)))
}

func TestCommitRequiresToken(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("no request expected")
	})

	_, err := client.Commit(context.Background(), "  ")
	require.Error(t, err)
	assert.Equal(t, pkgerrors.CodeValidation, pkgerrors.As(err).Code())
}

func TestGatewayErrorMapping(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
		json.NewEncoder(w).Encode(map[string]string{"error_message": "Invalid value for parameter: buy_order"})
	})

	_, err := client.Commit(context.Background(), "tok-err")
	require.Error(t, err)

	typed := pkgerrors.As(err)
	require.NotNil(t, typed)
	assert.Equal(t, pkgerrors.CodeGateway, typed.Code())
	assert.Contains(t, typed.Message(), "Invalid value for parameter")
}

func TestIsSuccessful(t *testing.T) {
	assert.True(t, TransactionResult{Status: "AUTHORIZED", ResponseCode: 1}.IsSuccessful())
	assert.True(t, TransactionResult{Status: "FAILED", ResponseCode: 0}.IsSuccessful())
	assert.False(t, TransactionResult{Status: "FAILED", ResponseCode: 1}.IsSuccessful())
}

func TestRedactToken(t *testing.T) {
	assert.Equal(t, "short", redactToken("short"))
	assert.Equal(t, "e9d7b1c8...", redactToken("e9d7b1c8aa00ff"))
}
