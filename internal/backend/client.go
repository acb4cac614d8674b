package backend

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/angelmondragon/farmgate-checkout/pkg/config"
	"github.com/angelmondragon/farmgate-checkout/pkg/logger"
	"github.com/go-resty/resty/v2"
)

const idempotencyHeader = "Idempotency-Key"

type accessTokenKey struct{}

// WithAccessToken stores the caller's bearer token for outgoing backend calls.
func WithAccessToken(ctx context.Context, token string) context.Context {
	return context.WithValue(ctx, accessTokenKey{}, token)
}

// AccessTokenFromContext returns the bearer token placed by WithAccessToken.
func AccessTokenFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	token, _ := ctx.Value(accessTokenKey{}).(string)
	return token
}

// Client talks to the marketplace backend. Every endpoint is relative to the configured base URL.
type Client struct {
	http   *resty.Client
	logger *logger.Logger
}

// New builds a backend client from config.
func New(cfg config.BackendConfig, logg *logger.Logger) (*Client, error) {
	base := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if base == "" {
		return nil, fmt.Errorf("backend base url is required")
	}
	if _, err := url.Parse(base); err != nil {
		return nil, fmt.Errorf("parsing backend base url: %w", err)
	}

	httpClient := resty.New().
		SetBaseURL(base).
		SetHeader("Accept", "application/json").
		SetHeader("Content-Type", "application/json")
	if cfg.Timeout > 0 {
		httpClient.SetTimeout(cfg.Timeout)
	}
	if cfg.UserAgentName != "" {
		httpClient.SetHeader("User-Agent", cfg.UserAgentName)
	}

	return &Client{http: httpClient, logger: logg}, nil
}

// CreateOrder registers an order for the cart lines. The idempotency key makes retries safe.
func (c *Client) CreateOrder(ctx context.Context, req CreateOrderRequest) Result[CreatedOrder] {
	var out CreatedOrder
	headers := map[string]string{}
	if key := strings.TrimSpace(req.IdempotencyKey); key != "" {
		headers[idempotencyHeader] = key
	}
	if failure := c.do(ctx, http.MethodPost, "/orders", req, headers, &out); failure != nil {
		return Fail[CreatedOrder](failure)
	}
	if out.OrderID == "" {
		return Fail[CreatedOrder](&Error{Kind: KindServer, Detail: "order response missing order_id"})
	}
	return Ok(out)
}

// CreatePaymentIntent requests an intent for the order total.
func (c *Client) CreatePaymentIntent(ctx context.Context, req CreateIntentRequest) Result[PaymentIntent] {
	var out PaymentIntent
	if failure := c.do(ctx, http.MethodPost, "/payments/intents", req, nil, &out); failure != nil {
		return Fail[PaymentIntent](failure)
	}
	if out.IntentID == "" || out.ClientSecret == "" {
		return Fail[PaymentIntent](&Error{Kind: KindServer, Detail: "intent response missing intent_id or client_secret"})
	}
	return Ok(out)
}

// ConfirmPayment asks the backend to verify the authorization and record the transaction.
func (c *Client) ConfirmPayment(ctx context.Context, req ConfirmPaymentRequest) Result[Transaction] {
	var out Transaction
	if failure := c.do(ctx, http.MethodPost, "/payments/confirm", req, nil, &out); failure != nil {
		return Fail[Transaction](failure)
	}
	return Ok(out)
}

// ValidateQuantity asks whether requested units are available. Insufficient stock is a normal answer.
func (c *Client) ValidateQuantity(ctx context.Context, productID string, requested int) Result[QuantityCheck] {
	var out QuantityCheck
	path := fmt.Sprintf("/products/%s/validate-quantity", url.PathEscape(productID))
	body := map[string]int{"quantity": requested}
	if failure := c.do(ctx, http.MethodPost, path, body, nil, &out); failure != nil {
		return Fail[QuantityCheck](failure)
	}
	return Ok(out)
}

// CheckSession verifies the bearer token is still accepted by the backend.
func (c *Client) CheckSession(ctx context.Context) Result[Session] {
	var out Session
	if failure := c.do(ctx, http.MethodGet, "/auth/session", nil, nil, &out); failure != nil {
		return Fail[Session](failure)
	}
	return Ok(out)
}

func (c *Client) do(ctx context.Context, method, path string, body any, headers map[string]string, out any) *Error {
	req := c.http.R().SetContext(ctx)
	if token := AccessTokenFromContext(ctx); token != "" {
		req.SetAuthToken(token)
	}
	for k, v := range headers {
		req.SetHeader(k, v)
	}
	if body != nil {
		req.SetBody(body)
	}

	resp, err := req.Execute(method, path)
	if err != nil {
		failure := &Error{Kind: KindNetwork, Detail: err.Error(), cause: err}
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			failure.cause = ctx.Err()
		}
		c.warn(ctx, method, path, failure)
		return failure
	}

	status := resp.StatusCode()
	if status >= 400 {
		failure := classify(path, status, resp.Body())
		c.warn(ctx, method, path, failure)
		return failure
	}

	if out == nil {
		return nil
	}
	if err := decodeData(resp.Body(), out); err != nil {
		failure := &Error{Kind: KindServer, Status: status, Detail: "malformed response body", cause: err}
		c.warn(ctx, method, path, failure)
		return failure
	}
	return nil
}

// decodeData accepts both {"data": {...}} envelopes and bare objects.
func decodeData(body []byte, out any) error {
	if len(strings.TrimSpace(string(body))) == 0 {
		return errors.New("empty body")
	}
	var envelope struct {
		Data json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(body, &envelope); err == nil && len(envelope.Data) > 0 && string(envelope.Data) != "null" {
		return json.Unmarshal(envelope.Data, out)
	}
	return json.Unmarshal(body, out)
}

func (c *Client) warn(ctx context.Context, method, path string, failure *Error) {
	if c.logger == nil || failure == nil {
		return
	}
	ctx = c.logger.WithFields(ctx, map[string]any{
		"method": method,
		"path":   path,
		"status": failure.Status,
		"kind":   string(failure.Kind),
	})
	c.logger.Warn(ctx, "backend call failed")
}
