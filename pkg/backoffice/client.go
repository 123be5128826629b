// Package backoffice is the HTTP client for the backoffice API that owns the
// catalog, stock, sales, parked sales and loyalty balances. Every call goes
// through a circuit breaker that trips on transport failures and 5xx answers;
// 4xx answers are mapped to typed errors and never count against the breaker.
package backoffice

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/sony/gobreaker/v2"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/angelmondragon/packfinderz-pos/pkg/config"
	pkgerrors "github.com/angelmondragon/packfinderz-pos/pkg/errors"
)

const (
	defaultTimeout         = 10 * time.Second
	responseBodyReadLimit  = 1 << 20
	errorBodyReadLimit     = 4096
	defaultBreakerFailures = 5
)

var (
	errBaseURLRequired = errors.New("backoffice base url is required")
	errServerStatus    = errors.New("backoffice server error")
)

// Client talks to the backoffice HTTP API.
type Client struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
	breaker    *gobreaker.CircuitBreaker[*response]
	settings   gobreaker.Settings
}

// Option configures optional client behavior.
type Option func(*Client)

// WithHTTPClient overrides the default instrumented HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.httpClient = client
		}
	}
}

// WithAPIKey sets the bearer token sent on every request.
func WithAPIKey(key string) Option {
	return func(c *Client) {
		c.apiKey = strings.TrimSpace(key)
	}
}

// WithBreakerSettings overrides the circuit breaker settings.
func WithBreakerSettings(st gobreaker.Settings) Option {
	return func(c *Client) {
		c.settings = st
	}
}

// NewClient builds a client against baseURL.
func NewClient(baseURL string, opts ...Option) (*Client, error) {
	trimmed := strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if trimmed == "" {
		return nil, errBaseURLRequired
	}
	if _, err := url.ParseRequestURI(trimmed); err != nil {
		return nil, fmt.Errorf("invalid backoffice base url: %w", err)
	}

	c := &Client{
		baseURL: trimmed,
		httpClient: &http.Client{
			Timeout:   defaultTimeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
		settings: defaultBreakerSettings(defaultBreakerFailures),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}
	if c.settings.Name == "" {
		c.settings.Name = "backoffice"
	}
	if c.settings.IsSuccessful == nil {
		c.settings.IsSuccessful = isBreakerSuccess
	}
	c.breaker = gobreaker.NewCircuitBreaker[*response](c.settings)
	return c, nil
}

// NewFromConfig builds a client using the backoffice section of the config.
func NewFromConfig(cfg config.BackofficeConfig, opts ...Option) (*Client, error) {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	st := defaultBreakerSettings(cfg.BreakerFailureThreshold)
	st.MaxRequests = cfg.BreakerMaxRequests
	st.Interval = cfg.BreakerInterval
	st.Timeout = cfg.BreakerOpenTimeout

	base := []Option{
		WithAPIKey(cfg.APIKey),
		WithBreakerSettings(st),
		WithHTTPClient(&http.Client{
			Timeout:   timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		}),
	}
	return NewClient(cfg.BaseURL, append(base, opts...)...)
}

func defaultBreakerSettings(failures uint32) gobreaker.Settings {
	if failures == 0 {
		failures = defaultBreakerFailures
	}
	return gobreaker.Settings{
		Name: "backoffice",
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= failures
		},
		IsSuccessful: isBreakerSuccess,
	}
}

// Caller cancellation says nothing about backoffice health.
func isBreakerSuccess(err error) bool {
	return err == nil || errors.Is(err, context.Canceled)
}

// BreakerState exposes the breaker state for readiness reporting.
func (c *Client) BreakerState() string {
	if c == nil || c.breaker == nil {
		return ""
	}
	return c.breaker.State().String()
}

type response struct {
	status int
	body   []byte
}

// do performs a request and returns the raw 2xx body. Non-2xx statuses are
// translated into typed errors; subject names the entity for 404 messages.
func (c *Client) do(ctx context.Context, method, path string, query url.Values, payload any, subject string) ([]byte, error) {
	if c == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "backoffice client not configured")
	}

	var body []byte
	if payload != nil {
		encoded, err := json.Marshal(payload)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "encode backoffice request")
		}
		body = encoded
	}

	target := c.baseURL + "/" + strings.TrimLeft(path, "/")
	if len(query) > 0 {
		target += "?" + query.Encode()
	}

	resp, err := c.breaker.Execute(func() (*response, error) {
		var reader io.Reader
		if body != nil {
			reader = bytes.NewReader(body)
		}
		req, err := http.NewRequestWithContext(ctx, method, target, reader)
		if err != nil {
			return nil, err
		}
		req.Header.Set("Accept", "application/json")
		if body != nil {
			req.Header.Set("Content-Type", "application/json")
		}
		if c.apiKey != "" {
			req.Header.Set("Authorization", "Bearer "+c.apiKey)
		}

		httpResp, err := c.httpClient.Do(req)
		if err != nil {
			return nil, err
		}
		defer func() { _ = httpResp.Body.Close() }()

		limit := int64(responseBodyReadLimit)
		if httpResp.StatusCode >= 300 {
			limit = errorBodyReadLimit
		}
		raw, err := io.ReadAll(io.LimitReader(httpResp.Body, limit))
		if err != nil {
			return nil, err
		}
		out := &response{status: httpResp.StatusCode, body: raw}
		if httpResp.StatusCode >= 500 {
			return out, errServerStatus
		}
		return out, nil
	})

	op := method + " " + path
	switch {
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "backoffice unavailable").
			WithDetails(map[string]any{"operation": op, "breaker": c.breaker.State().String()})
	case errors.Is(err, errServerStatus):
		return nil, statusError(resp.status, resp.body, op, subject)
	case err != nil:
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "backoffice request failed").
			WithDetails(map[string]any{"operation": op})
	}

	if resp.status < 200 || resp.status >= 300 {
		return nil, statusError(resp.status, resp.body, op, subject)
	}
	return resp.body, nil
}

type errorBody struct {
	Message string `json:"message"`
	Error   string `json:"error"`
	Errors  []struct {
		Field   string `json:"field"`
		Message string `json:"message"`
	} `json:"errors"`
}

// messageFrom prefers the first structured validation message over the
// generic message.
func messageFrom(raw []byte) string {
	var parsed errorBody
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return strings.TrimSpace(string(raw))
	}
	for _, e := range parsed.Errors {
		if strings.TrimSpace(e.Message) != "" {
			return strings.TrimSpace(e.Message)
		}
	}
	if parsed.Message != "" {
		return parsed.Message
	}
	return parsed.Error
}

func statusError(status int, raw []byte, op, subject string) *pkgerrors.Error {
	msg := messageFrom(raw)
	details := map[string]any{"status": status, "operation": op}
	cause := fmt.Errorf("status %d: %s", status, msg)

	switch {
	case status == http.StatusNotFound:
		if subject == "" {
			subject = "resource"
		}
		return pkgerrors.Wrap(pkgerrors.CodeNotFound, cause, subject+" not found").WithDetails(details)
	case status == http.StatusBadRequest || status == http.StatusUnprocessableEntity:
		if msg == "" {
			msg = "request rejected by backoffice"
		}
		return pkgerrors.Wrap(pkgerrors.CodeValidation, cause, msg).WithDetails(details)
	case status == http.StatusConflict:
		if msg == "" {
			msg = "backoffice reported a conflict"
		}
		return pkgerrors.Wrap(pkgerrors.CodeConflict, cause, msg).WithDetails(details)
	case status >= 500:
		return pkgerrors.Wrap(pkgerrors.CodeDependency, cause, "backoffice server error").WithDetails(details)
	default:
		return pkgerrors.Wrap(pkgerrors.CodeDependency, cause, "unexpected backoffice response").WithDetails(details)
	}
}

// decodeData unmarshals either a bare payload or one wrapped as {"data": ...}.
func decodeData(raw []byte, dest any) error {
	var envelope struct {
		Data json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(raw, &envelope); err == nil && len(envelope.Data) > 0 && string(envelope.Data) != "null" {
		raw = envelope.Data
	}
	if err := json.Unmarshal(raw, dest); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "decode backoffice response")
	}
	return nil
}

func (c *Client) getJSON(ctx context.Context, path string, query url.Values, subject string, dest any) error {
	raw, err := c.do(ctx, http.MethodGet, path, query, nil, subject)
	if err != nil {
		return err
	}
	return decodeData(raw, dest)
}

func (c *Client) postJSON(ctx context.Context, path string, payload any, subject string, dest any) error {
	raw, err := c.do(ctx, http.MethodPost, path, nil, payload, subject)
	if err != nil {
		return err
	}
	if dest == nil || len(bytes.TrimSpace(raw)) == 0 {
		return nil
	}
	return decodeData(raw, dest)
}

func requireID(value, name string) (string, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return "", pkgerrors.New(pkgerrors.CodeValidation, name+" is required")
	}
	return url.PathEscape(trimmed), nil
}
