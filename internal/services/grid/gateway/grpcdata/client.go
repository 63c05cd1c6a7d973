// Package grpcdata fetches grid pages from a gRPC data service using
// google.protobuf.Struct messages, so any service exposing a
// Struct-in/Struct-out unary method can back a grid.
package grpcdata

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	apperrors "github.com/louisbranch/pricedesk/internal/platform/errors"
	"github.com/louisbranch/pricedesk/internal/platform/timeouts"
	"github.com/louisbranch/pricedesk/internal/services/grid/domain"
	gogrpc "google.golang.org/grpc"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"
)

const (
	// DefaultService is the data service name, also used for health checks.
	DefaultService = "pricedesk.data.v1.DataService"
	// DefaultMethod lists one page of rows.
	DefaultMethod = "/" + DefaultService + "/ListRows"
)

// ErrConnRequired indicates a client was built without a connection.
var ErrConnRequired = errors.New("grpc data connection is required")

// Config configures a Client.
type Config struct {
	// Method is the full unary method name. Empty uses DefaultMethod.
	Method string
	// Timeout bounds each call. Zero uses timeouts.FetchPage.
	Timeout time.Duration
}

// Client invokes one unary method per page.
type Client struct {
	conn    gogrpc.ClientConnInterface
	method  string
	timeout time.Duration
}

// NewClient creates a client over conn.
func NewClient(conn gogrpc.ClientConnInterface, cfg Config) (*Client, error) {
	if conn == nil {
		return nil, ErrConnRequired
	}
	method := strings.TrimSpace(cfg.Method)
	if method == "" {
		method = DefaultMethod
	}
	if !strings.HasPrefix(method, "/") {
		method = "/" + method
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = timeouts.FetchPage
	}
	return &Client{conn: conn, method: method, timeout: timeout}, nil
}

// FetchPage implements domain.Fetcher. The response Struct is returned as
// JSON.
func (c *Client) FetchPage(ctx context.Context, q domain.Query) (json.RawMessage, error) {
	req, err := requestStruct(q)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	resp := &structpb.Struct{}
	if err := c.conn.Invoke(ctx, c.method, req, resp); err != nil {
		return nil, apperrors.FromGRPCStatus(err)
	}
	raw, err := protojson.Marshal(resp)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CodeGridPayloadInvalid, fmt.Sprintf("encode page response: %v", err), err)
	}
	return raw, nil
}

// requestStruct builds {"page", "limit", "filters", "sort"}. Filters go
// through JSON so any JSON-serializable value is accepted.
func requestStruct(q domain.Query) (*structpb.Struct, error) {
	filters := map[string]any(q.Filter)
	if filters == nil {
		filters = map[string]any{}
	}
	body, err := json.Marshal(map[string]any{
		"page":    q.Page,
		"limit":   q.PageSize,
		"filters": filters,
		"sort":    q.Sort.OrderBy(),
	})
	if err != nil {
		return nil, fmt.Errorf("encode page request: %w", err)
	}
	req := &structpb.Struct{}
	if err := protojson.Unmarshal(body, req); err != nil {
		return nil, fmt.Errorf("encode page request: %w", err)
	}
	return req, nil
}
