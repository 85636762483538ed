package gateway_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gallerix/payment-service/internal/config"
	"github.com/gallerix/payment-service/internal/gateway"
)

func newTestClient(t *testing.T, baseURL string) *gateway.Client {
	t.Helper()
	signer := gateway.NewSigner("mch-1001", "SERIAL01", newTestKey(t))
	return gateway.NewClient(config.GatewayConfig{
		BaseURL:          baseURL,
		MerchantID:       "mch-1001",
		PaymentNotifyURL: "https://merchant.example/payments/webhook",
		RefundNotifyURL:  "https://merchant.example/refunds/webhook",
	}, signer)
}

func TestClient_CreatePaymentIntent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/v3/pay/intents", r.URL.Path)
		assert.True(t, strings.HasPrefix(r.Header.Get("Authorization"), "WALLETPAY2-SHA256-RSA2048 "))
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

		var req gateway.PaymentIntentRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "mch-1001", req.MerchantID)
		assert.Equal(t, "O1", req.OutTradeNo)
		assert.Equal(t, "https://merchant.example/payments/webhook", req.NotifyURL)
		assert.Equal(t, int64(20000), req.Amount.Total)

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"prepay_id":"prepay-abc"}`))
	}))
	defer srv.Close()

	client := newTestClient(t, srv.URL)

	resp, err := client.CreatePaymentIntent(context.Background(), &gateway.PaymentIntentRequest{
		Description: "art purchase",
		OutTradeNo:  "O1",
		Amount:      gateway.Amount{Total: 20000, Currency: "CNY"},
		Payer:       gateway.Payer{OpenID: "openid-1"},
	})
	require.NoError(t, err)
	assert.Equal(t, "prepay-abc", resp.PrepayID)
}

func TestClient_CreatePaymentIntent_GatewayRejection(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"code":"PARAM_ERROR","message":"amount invalid"}`))
	}))
	defer srv.Close()

	client := newTestClient(t, srv.URL)

	_, err := client.CreatePaymentIntent(context.Background(), &gateway.PaymentIntentRequest{
		OutTradeNo: "O1",
		Amount:     gateway.Amount{Total: -1, Currency: "CNY"},
	})
	assert.ErrorIs(t, err, gateway.ErrGatewayStatus)
	assert.Contains(t, err.Error(), "PARAM_ERROR")
}

func TestClient_CreateRefund(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v3/refunds", r.URL.Path)

		var call gateway.RefundCall
		require.NoError(t, json.NewDecoder(r.Body).Decode(&call))
		assert.Equal(t, "RF123", call.OutRefundNo)
		assert.Equal(t, "https://merchant.example/refunds/webhook", call.NotifyURL)
		assert.Equal(t, int64(5000), call.Amount.Refund)

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"refund_id":"gw-refund-1","status":"PROCESSING"}`))
	}))
	defer srv.Close()

	client := newTestClient(t, srv.URL)

	resp, err := client.CreateRefund(context.Background(), &gateway.RefundCall{
		OutTradeNo:  "O1",
		OutRefundNo: "RF123",
		Amount:      gateway.RefundAmount{Refund: 5000, Total: 20000, Currency: "CNY"},
	})
	require.NoError(t, err)
	assert.Equal(t, "gw-refund-1", resp.RefundID)
	assert.Equal(t, "PROCESSING", resp.Status)
}

func TestClient_QueryOrder(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/v3/pay/intents/out-trade-no/O1", r.URL.Path)
		assert.Equal(t, "mch-1001", r.URL.Query().Get("mchid"))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"out_trade_no":"O1","transaction_id":"tx-1","trade_state":"SUCCESS"}`))
	}))
	defer srv.Close()

	client := newTestClient(t, srv.URL)

	status, err := client.QueryOrder(context.Background(), "O1")
	require.NoError(t, err)
	assert.Equal(t, "tx-1", status.TransactionID)
	assert.Equal(t, "SUCCESS", status.TradeState)
}

func TestClient_CloseOrder(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v3/pay/intents/out-trade-no/O1/close", r.URL.Path)
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	client := newTestClient(t, srv.URL)
	assert.NoError(t, client.CloseOrder(context.Background(), "O1"))
}
