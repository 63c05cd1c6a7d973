// Package httpdata fetches grid pages from a JSON-over-HTTP data API.
package httpdata

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	apperrors "github.com/louisbranch/pricedesk/internal/platform/errors"
	"github.com/louisbranch/pricedesk/internal/platform/timeouts"
	"github.com/louisbranch/pricedesk/internal/services/grid/domain"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
)

// maxBodyBytes caps one page response.
const maxBodyBytes = 32 << 20

// ErrURLRequired indicates a client was built without an endpoint.
var ErrURLRequired = errors.New("data endpoint url is required")

// Config configures a Client.
type Config struct {
	// URL is the full endpoint, e.g. http://localhost:8095/alertes/summary.
	URL         string
	BearerToken string
	// Timeout bounds each call. Zero uses timeouts.FetchPage.
	Timeout    time.Duration
	HTTPClient *http.Client
}

// Client POSTs page queries to one endpoint.
type Client struct {
	url     string
	token   string
	timeout time.Duration
	client  *http.Client
}

// request is the body sent for each page.
type request struct {
	Page    int            `json:"page"`
	Limit   int            `json:"limit"`
	Filters map[string]any `json:"filters"`
	Sort    string         `json:"sort,omitempty"`
}

// NewClient creates a client for cfg.URL.
func NewClient(cfg Config) (*Client, error) {
	url := strings.TrimSpace(cfg.URL)
	if url == "" {
		return nil, ErrURLRequired
	}
	client := cfg.HTTPClient
	if client == nil {
		client = http.DefaultClient
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = timeouts.FetchPage
	}
	return &Client{
		url:     url,
		token:   cfg.BearerToken,
		timeout: timeout,
		client:  client,
	}, nil
}

// FetchPage implements domain.Fetcher. The body is returned unparsed.
func (c *Client) FetchPage(ctx context.Context, q domain.Query) (json.RawMessage, error) {
	filters := map[string]any(q.Filter)
	if filters == nil {
		filters = map[string]any{}
	}
	body, err := json.Marshal(request{
		Page:    q.Page,
		Limit:   q.PageSize,
		Filters: filters,
		Sort:    q.Sort.OrderBy(),
	})
	if err != nil {
		return nil, fmt.Errorf("encode page request: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build page request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(req.Header))

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CodeGridRemoteUnavailable, fmt.Sprintf("page request: %v", err), err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		// Drain a little so the connection can be reused.
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4<<10))
		return nil, statusError(resp)
	}

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes+1))
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CodeGridRemoteUnavailable, fmt.Sprintf("read page response: %v", err), err)
	}
	if len(raw) > maxBodyBytes {
		return nil, apperrors.New(apperrors.CodeGridPayloadInvalid, "page response too large")
	}
	return raw, nil
}

func statusError(resp *http.Response) error {
	code := apperrors.CodeGridFetchFailed
	switch resp.StatusCode {
	case http.StatusTooManyRequests, http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		code = apperrors.CodeGridRemoteUnavailable
	}
	return apperrors.WithMetadata(code, fmt.Sprintf("page request returned %s", resp.Status), map[string]string{
		"Status": strconv.Itoa(resp.StatusCode),
	})
}
