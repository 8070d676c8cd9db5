// Package supabase stores the ledger and user accounts in Supabase through
// its PostgREST API. Expected tables: expenses, incomes, categories, users
// (see schema.sql).
package supabase

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/sony/gobreaker"
	"go.opentelemetry.io/otel"
	"go.uber.org/zap"

	"github.com/boddenberg/finance-tracker-go/internal/domain"
	"github.com/boddenberg/finance-tracker-go/internal/infra/resilience"
)

var tracer = otel.Tracer("supabase")

const (
	preferRepresentation = "return=representation"
	preferMinimal        = "return=minimal"
)

// Client wraps HTTP calls to the Supabase PostgREST API.
type Client struct {
	httpClient     *http.Client
	baseURL        string
	apiKey         string
	serviceRoleKey string
	cb             *gobreaker.CircuitBreaker
	cfg            resilience.Config
	logger         *zap.Logger
}

// NewClient creates a Supabase client.
func NewClient(httpClient *http.Client, baseURL, apiKey, serviceRoleKey string, cb *gobreaker.CircuitBreaker, cfg resilience.Config, logger *zap.Logger) *Client {
	return &Client{
		httpClient:     httpClient,
		baseURL:        strings.TrimRight(baseURL, "/"),
		apiKey:         apiKey,
		serviceRoleKey: serviceRoleKey,
		cb:             cb,
		cfg:            cfg,
		logger:         logger,
	}
}

// Guarded reports that every call already goes through the client's own
// breaker and retry loop.
func (c *Client) Guarded() bool { return true }

// Ping issues a one-row read against the categories table.
func (c *Client) Ping(ctx context.Context) error {
	q := url.Values{"select": {"id"}, "limit": {"1"}}
	_, err := c.call(ctx, http.MethodGet, "categories", q, nil, "")
	return err
}

// call runs one request through the breaker with retries.
func (c *Client) call(ctx context.Context, method, table string, query url.Values, body any, prefer string) ([]byte, error) {
	return resilience.Call(ctx, c.cb, c.cfg, func(ctx context.Context) ([]byte, error) {
		return c.doRequest(ctx, method, table, query, body, prefer)
	})
}

// doRequest executes an authenticated request to PostgREST. A 409 from a
// unique index becomes *domain.ErrConflict; other non-2xx statuses are
// returned as plain errors so the retry loop can try again.
func (c *Client) doRequest(ctx context.Context, method, table string, query url.Values, body any, prefer string) ([]byte, error) {
	target := fmt.Sprintf("%s/rest/v1/%s", c.baseURL, table)
	if len(query) > 0 {
		target += "?" + query.Encode()
	}

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return nil, resilience.Permanent(fmt.Errorf("encode %s payload: %w", table, err))
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		return nil, resilience.Permanent(err)
	}
	req.Header.Set("apikey", c.apiKey)
	req.Header.Set("Authorization", "Bearer "+c.serviceRoleKey)
	req.Header.Set("Content-Type", "application/json")
	if prefer != "" {
		req.Header.Set("Prefer", prefer)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Error("supabase: request failed",
			zap.String("method", method),
			zap.String("table", table),
			zap.Error(err),
		)
		return nil, err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read %s response: %w", table, err)
	}

	switch {
	case resp.StatusCode == http.StatusConflict:
		return nil, &domain.ErrConflict{Message: conflictMessage(table)}
	case resp.StatusCode >= 400 && resp.StatusCode < 500:
		c.logger.Warn("supabase: request rejected",
			zap.String("method", method),
			zap.String("table", table),
			zap.Int("status", resp.StatusCode),
			zap.String("body", string(respBody)),
		)
		return nil, resilience.Permanent(fmt.Errorf("supabase %s %s returned %d: %s", method, table, resp.StatusCode, respBody))
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		c.logger.Warn("supabase: non-2xx response",
			zap.String("method", method),
			zap.String("table", table),
			zap.Int("status", resp.StatusCode),
		)
		return nil, fmt.Errorf("supabase %s %s returned %d", method, table, resp.StatusCode)
	}

	c.logger.Debug("supabase: request OK",
		zap.String("method", method),
		zap.String("table", table),
		zap.Int("status", resp.StatusCode),
	)
	return respBody, nil
}

func conflictMessage(table string) string {
	switch table {
	case "users":
		return "username already taken"
	case "categories":
		return "category already exists"
	default:
		return table + " row already exists"
	}
}

// decodeRows unmarshals a PostgREST array; an empty body is an empty array.
func decodeRows[T any](body []byte, table string) ([]T, error) {
	var rows []T
	if len(bytes.TrimSpace(body)) == 0 {
		return rows, nil
	}
	if err := json.Unmarshal(body, &rows); err != nil {
		return nil, fmt.Errorf("decode %s: %w", table, err)
	}
	return rows, nil
}

// escapeLike makes s safe for an ilike filter that should match exactly.
func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`, `*`, `\*`)
	return r.Replace(s)
}
