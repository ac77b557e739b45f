package processor

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"
)

// HTTPClient talks to the payment processor over its REST surface.
// Request/response logging is wired once at construction instead of
// through process-wide client hooks.
type HTTPClient struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	log        *zap.Logger
}

type HTTPClientConfig struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration
}

func NewHTTPClient(cfg HTTPClientConfig, log *zap.Logger) *HTTPClient {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	clientLog := log.Named("processor.client")
	return &HTTPClient{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:  cfg.APIKey,
		httpClient: &http.Client{
			Timeout:   timeout,
			Transport: &loggingTransport{base: http.DefaultTransport, log: clientLog},
		},
		log: clientLog,
	}
}

var _ Client = (*HTTPClient)(nil)

func (c *HTTPClient) CreateCheckoutSession(ctx context.Context, req CreateCheckoutRequest) (*CheckoutSession, error) {
	var session CheckoutSession
	if err := c.post(ctx, "create_checkout", "/v1/checkout_sessions", req.IdempotencyKey, req, &session); err != nil {
		return nil, err
	}
	return &session, nil
}

func (c *HTTPClient) CreateRefund(ctx context.Context, req CreateRefundRequest) (*Refund, error) {
	var refund Refund
	if err := c.post(ctx, "create_refund", "/v1/refunds", req.IdempotencyKey, req, &refund); err != nil {
		return nil, err
	}
	return &refund, nil
}

func (c *HTTPClient) ReportedFees(ctx context.Context, transferGroup string) (*FeeReport, error) {
	const op = "reported_fees"

	endpoint := c.baseURL + "/v1/fees?transfer_group=" + url.QueryEscape(transferGroup)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, newError(KindAPI, op, 0, "build request", err)
	}
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, newError(KindConnection, op, 0, "request failed", err)
	}
	defer resp.Body.Close()

	var report FeeReport
	if err := c.decode(op, resp, &report); err != nil {
		return nil, err
	}
	return &report, nil
}

func (c *HTTPClient) post(ctx context.Context, op, path, idempotencyKey string, body any, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return newError(KindAPI, op, 0, "encode request", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return newError(KindAPI, op, 0, "build request", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	if idempotencyKey != "" {
		httpReq.Header.Set("Idempotency-Key", idempotencyKey)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return newError(KindConnection, op, 0, "request failed", err)
	}
	defer resp.Body.Close()

	return c.decode(op, resp, out)
}

type apiErrorBody struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func (c *HTTPClient) decode(op string, resp *http.Response, out any) error {
	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return newError(KindConnection, op, resp.StatusCode, "read response", err)
	}

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		if out == nil {
			return nil
		}
		if err := json.Unmarshal(raw, out); err != nil {
			return newError(KindAPI, op, resp.StatusCode, "decode response", err)
		}
		return nil
	}

	var apiErr apiErrorBody
	_ = json.Unmarshal(raw, &apiErr)
	message := apiErr.Error.Message
	if message == "" {
		message = fmt.Sprintf("unexpected status %d", resp.StatusCode)
	}

	kind := KindAPI
	switch {
	case resp.StatusCode == http.StatusConflict,
		strings.EqualFold(apiErr.Error.Code, "idempotency_key_in_use"):
		kind = KindIdempotencyConflict
	case resp.StatusCode >= http.StatusInternalServerError:
		kind = KindConnection
	}

	return newError(kind, op, resp.StatusCode, message, nil)
}

// loggingTransport logs each processor round trip without bodies;
// payloads can carry card-adjacent data.
type loggingTransport struct {
	base http.RoundTripper
	log  *zap.Logger
}

func (t *loggingTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	start := time.Now()
	resp, err := t.base.RoundTrip(req)

	fields := []zap.Field{
		zap.String("method", req.Method),
		zap.String("path", req.URL.Path),
		zap.Int64("duration_ms", time.Since(start).Milliseconds()),
	}
	if err != nil {
		t.log.Warn("processor_request_failed", append(fields, zap.Error(err))...)
		return resp, err
	}

	fields = append(fields, zap.Int("status", resp.StatusCode))
	if resp.StatusCode >= http.StatusBadRequest {
		t.log.Warn("processor_request", fields...)
	} else {
		t.log.Debug("processor_request", fields...)
	}
	return resp, err
}
