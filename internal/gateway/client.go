package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/gallerix/payment-service/internal/config"
)

// ErrGatewayStatus marks a non-2xx answer from the gateway. The local
// transaction that triggered the call must be rolled back by the caller.
var ErrGatewayStatus = errors.New("gateway: request rejected")

// Client is the signed REST client for the payment gateway.
type Client struct {
	baseURL          string
	httpClient       *http.Client
	signer           *Signer
	merchantID       string
	paymentNotifyURL string
	refundNotifyURL  string
}

func NewClient(cfg config.GatewayConfig, signer *Signer) *Client {
	return &Client{
		baseURL:          cfg.BaseURL,
		httpClient:       &http.Client{Timeout: 15 * time.Second},
		signer:           signer,
		merchantID:       cfg.MerchantID,
		paymentNotifyURL: cfg.PaymentNotifyURL,
		refundNotifyURL:  cfg.RefundNotifyURL,
	}
}

// CreatePaymentIntent registers the order with the gateway and returns the
// prepay id the client app needs to invoke the wallet.
func (c *Client) CreatePaymentIntent(ctx context.Context, req *PaymentIntentRequest) (*PaymentIntentResponse, error) {
	req.MerchantID = c.merchantID
	req.NotifyURL = c.paymentNotifyURL

	var resp PaymentIntentResponse
	if err := c.do(ctx, http.MethodPost, "/v3/pay/intents", req, &resp); err != nil {
		return nil, err
	}
	if resp.PrepayID == "" {
		return nil, fmt.Errorf("%w: empty prepay_id", ErrGatewayStatus)
	}
	return &resp, nil
}

// CloseOrder voids an unpaid payment intent at the gateway.
func (c *Client) CloseOrder(ctx context.Context, outTradeNo string) error {
	path := fmt.Sprintf("/v3/pay/intents/out-trade-no/%s/close", url.PathEscape(outTradeNo))
	body := struct {
		MerchantID string `json:"mchid"`
	}{MerchantID: c.merchantID}
	return c.do(ctx, http.MethodPost, path, body, nil)
}

// QueryOrder fetches the gateway's current view of one order.
func (c *Client) QueryOrder(ctx context.Context, outTradeNo string) (*OrderStatus, error) {
	path := fmt.Sprintf("/v3/pay/intents/out-trade-no/%s?mchid=%s",
		url.PathEscape(outTradeNo), url.QueryEscape(c.merchantID))

	var status OrderStatus
	if err := c.do(ctx, http.MethodGet, path, nil, &status); err != nil {
		return nil, err
	}
	return &status, nil
}

// CreateRefund asks the gateway to refund a settled transaction. The
// outcome arrives asynchronously on the refund webhook.
func (c *Client) CreateRefund(ctx context.Context, call *RefundCall) (*RefundResponse, error) {
	call.NotifyURL = c.refundNotifyURL

	var resp RefundResponse
	if err := c.do(ctx, http.MethodPost, "/v3/refunds", call, &resp); err != nil {
		return nil, err
	}
	if resp.RefundID == "" {
		return nil, fmt.Errorf("%w: empty refund_id", ErrGatewayStatus)
	}
	return &resp, nil
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		if err != nil {
			return fmt.Errorf("gateway: failed to marshal request body: %w", err)
		}
	}

	// The signature covers the path including the query string.
	auth, err := c.signer.AuthorizationHeader(method, path, string(payload))
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("gateway: failed to build request: %w", err)
	}
	req.Header.Set("Authorization", auth)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("gateway: request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("gateway: failed to read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		log.Warn().
			Str("method", method).
			Str("path", path).
			Int("status", resp.StatusCode).
			Str("body", string(respBody)).
			Msg("Gateway rejected request")
		return fmt.Errorf("%w: status %d: %s", ErrGatewayStatus, resp.StatusCode, string(respBody))
	}

	if out != nil && len(respBody) > 0 {
		if err := json.Unmarshal(respBody, out); err != nil {
			return fmt.Errorf("gateway: failed to decode response: %w", err)
		}
	}
	return nil
}
