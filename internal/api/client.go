package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"

	"github.com/itsobito471-bot/thebottlestories/pkg/httpclient"
	"github.com/itsobito471-bot/thebottlestories/pkg/logger"
)

// ServiceName labels upstream errors and the circuit breaker.
const ServiceName = "storefront-api"

// TokenFunc returns the bearer token for the current device, or "".
type TokenFunc func(ctx context.Context) string

// Client is the typed client of the storefront REST API.
type Client struct {
	baseURL string
	http    httpclient.Doer
	token   TokenFunc
	logger  *slog.Logger
}

// New creates a client for baseURL (e.g. "https://api.thebottlestories.com/api").
func New(baseURL string, doer httpclient.Doer, logger *slog.Logger) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    doer,
		logger:  logger,
	}
}

// WithToken returns a copy that authenticates every call with fn.
func (c *Client) WithToken(fn TokenFunc) *Client {
	cpy := *c
	cpy.token = fn
	return &cpy
}

func (c *Client) newRequest(ctx context.Context, method, path string, query url.Values, body io.Reader, contentType string) (*http.Request, error) {
	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	if body == nil {
		body = http.NoBody
	}

	req, err := http.NewRequestWithContext(ctx, method, u, body)
	if err != nil {
		return nil, fmt.Errorf("build %s %s: %w", method, path, err)
	}
	req.Header.Set("Accept", "application/json")
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if c.token != nil {
		if tok := c.token(ctx); tok != "" {
			req.Header.Set("Authorization", "Bearer "+tok)
		}
	}
	if id := logger.CorrelationIDFromContext(ctx); id != "" {
		req.Header.Set("X-Correlation-ID", id)
	}
	otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(req.Header))
	return req, nil
}

// do sends req and decodes a 2xx JSON body into out (when out is non-nil).
// Error statuses become AppErrors carrying the API message verbatim.
func (c *Client) do(ctx context.Context, req *http.Request, out any) error {
	resp, err := c.http.Do(ctx, req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", req.Method, req.URL.Path, err)
	}

	if resp.StatusCode >= http.StatusBadRequest {
		level := slog.LevelWarn
		if httpclient.IsClientError(resp.StatusCode) {
			level = slog.LevelDebug
		}
		logger.WithContext(ctx, c.logger).Log(ctx, level, "storefront api returned an error",
			slog.String("method", req.Method),
			slog.String("path", req.URL.Path),
			slog.Int("status", resp.StatusCode),
		)
		return httpclient.ParseResponseError(resp, ServiceName)
	}
	defer func() { _ = resp.Body.Close() }()

	if out == nil || resp.StatusCode == http.StatusNoContent {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		return fmt.Errorf("decode %s %s response: %w", req.Method, req.URL.Path, err)
	}
	return nil
}

func (c *Client) getJSON(ctx context.Context, path string, query url.Values, out any) error {
	req, err := c.newRequest(ctx, http.MethodGet, path, query, nil, "")
	if err != nil {
		return err
	}
	return c.do(ctx, req, out)
}

func (c *Client) sendJSON(ctx context.Context, method, path string, in, out any) error {
	payload, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("encode %s %s: %w", method, path, err)
	}
	req, err := c.newRequest(ctx, method, path, nil, bytes.NewReader(payload), "application/json")
	if err != nil {
		return err
	}
	return c.do(ctx, req, out)
}

// decodeList accepts a bare array or an object wrapping it under field.
func decodeList[T any](raw json.RawMessage, field string) ([]T, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return []T{}, nil
	}
	var list []T
	if raw[0] == '[' {
		if err := json.Unmarshal(raw, &list); err != nil {
			return nil, err
		}
		return list, nil
	}
	var wrapped map[string]json.RawMessage
	if err := json.Unmarshal(raw, &wrapped); err != nil {
		return nil, err
	}
	inner, ok := wrapped[field]
	if !ok {
		inner, ok = wrapped["data"]
	}
	if !ok {
		return []T{}, nil
	}
	return decodeList[T](inner, field)
}
